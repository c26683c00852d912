package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aaronwang/bidding-app/api-gateway/internal/ledger"
	"github.com/aaronwang/bidding-app/api-gateway/internal/service"
	"github.com/aaronwang/bidding-app/shared/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	router http.Handler
	ledger *ledger.Memory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	reg := prometheus.NewRegistry()
	l := ledger.NewMemory()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc, err := service.NewAuctionService(context.Background(), service.Options{
		AuctionID:  "lot-1",
		Transferer: l,
		Logger:     log,
		Metrics:    service.NewMetrics(reg),
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	return &testServer{
		router: NewHandler(svc, log, reg, nil).SetupRoutes(),
		ledger: l,
	}
}

func (s *testServer) do(t *testing.T, method, path string, caller models.Participant, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if caller != "" {
		req.Header.Set(ParticipantHeader, string(caller))
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestAuctionLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "POST", "/api/v1/auction/start", "seller", `{"product":"Book","initial_price":10}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, "POST", "/api/v1/auction/offers", "alice", `{"price":20}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decode[models.AuctionResponse](t, rec)
	assert.Equal(t, models.Participant("alice"), resp.Auction.HighestBidder)

	rec = s.do(t, "POST", "/api/v1/auction/accept", "seller", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, "POST", "/api/v1/auction/pay", "alice", `{"amount":20}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[models.AuctionResponse](t, rec)
	assert.Equal(t, models.StatusIdle, resp.Auction.Status)

	bal, _ := s.ledger.Balance(context.Background(), "seller")
	assert.EqualValues(t, 20, bal)

	rec = s.do(t, "GET", "/api/v1/auction", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusIdle, decode[models.Auction](t, rec).Status)
}

func TestRejectionStatusCodes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "POST", "/api/v1/auction/offers", "alice", `{"price":5}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "InvalidState", decode[models.ErrorResponse](t, rec).Kind)

	s.do(t, "POST", "/api/v1/auction/start", "seller", `{"product":"Book","initial_price":10}`)

	rec = s.do(t, "POST", "/api/v1/auction/offers", "alice", `{"price":10}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	errResp := decode[models.ErrorResponse](t, rec)
	assert.Equal(t, "BidTooLow", errResp.Kind)
	require.NotNil(t, errResp.Auction)
	assert.EqualValues(t, 10, errResp.Auction.HighestBid)

	rec = s.do(t, "POST", "/api/v1/auction/accept", "alice", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	s.do(t, "POST", "/api/v1/auction/accept", "seller", "")
	rec = s.do(t, "POST", "/api/v1/auction/pay", "seller", `{"amount":11}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "AmountMismatch", decode[models.ErrorResponse](t, rec).Kind)

	s.ledger.Reject("seller", true)
	rec = s.do(t, "POST", "/api/v1/auction/pay", "seller", `{"amount":10}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, models.StatusAccepted, decode[models.ErrorResponse](t, rec).Auction.Status)
}

// staleReads answers GetAuction with a record that moved on after the
// operation under test was refused
type staleReads struct {
	*service.AuctionService
	later models.Auction
}

func (s staleReads) GetAuction(context.Context) models.Auction {
	return s.later
}

func TestRejectionCarriesRecordAtRefusal(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := service.NewAuctionService(context.Background(), service.Options{
		AuctionID:  "lot-1",
		Transferer: ledger.NewMemory(),
		Logger:     log,
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	later := models.Auction{ID: "lot-1", Status: models.StatusAccepted, HighestBid: 99, HighestBidder: "bob", Version: 9}
	s := &testServer{router: NewHandler(staleReads{svc, later}, log, prometheus.NewRegistry(), nil).SetupRoutes()}

	s.do(t, "POST", "/api/v1/auction/start", "seller", `{"product":"Book","initial_price":10}`)
	rec := s.do(t, "POST", "/api/v1/auction/offers", "alice", `{"price":10}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	errResp := decode[models.ErrorResponse](t, rec)
	require.NotNil(t, errResp.Auction)
	assert.Equal(t, models.StatusSelling, errResp.Auction.Status)
	assert.EqualValues(t, 10, errResp.Auction.HighestBid)
	assert.Equal(t, models.Participant("seller"), errResp.Auction.HighestBidder)
	assert.EqualValues(t, 1, errResp.Auction.Version)
}

func TestRequestValidation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "POST", "/api/v1/auction/start", "", `{"product":"Book","initial_price":10}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, "POST", "/api/v1/auction/start", "seller", `{"initial_price":10}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, "POST", "/api/v1/auction/start", "seller", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, "POST", "/api/v1/auction/offers", "alice", `{"price":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "GET", "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, rec)["status"])

	s.do(t, "POST", "/api/v1/auction/start", "seller", `{"product":"Book","initial_price":10}`)
	rec = s.do(t, "GET", "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `auction_operations_total{op="start_selling",outcome="ok"} 1`)
}
