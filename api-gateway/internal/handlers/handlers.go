package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aaronwang/bidding-app/api-gateway/internal/auction"
	"github.com/aaronwang/bidding-app/shared/models"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ParticipantHeader carries the caller identity set by the fronting proxy
const ParticipantHeader = "X-Participant-ID"

// AuctionService is the auction API served over HTTP. Rejected operations
// return the record as it stood when the operation was refused.
type AuctionService interface {
	GetAuction(ctx context.Context) models.Auction
	StartSelling(ctx context.Context, caller models.Participant, req *models.StartSellingRequest) (*models.AuctionResponse, error)
	Offer(ctx context.Context, caller models.Participant, req *models.OfferRequest) (*models.AuctionResponse, error)
	AcceptOffer(ctx context.Context, caller models.Participant) (*models.AuctionResponse, error)
	Pay(ctx context.Context, caller models.Participant, req *models.PayRequest) (*models.AuctionResponse, *models.Settlement, error)
}

// Handler contains HTTP request handlers
type Handler struct {
	auctionService AuctionService
	log            *slog.Logger
	gatherer       prometheus.Gatherer
	origins        []string
}

// NewHandler creates a new HTTP handler. gatherer backs /metrics; origins
// lists the CORS origins allowed to call the API.
func NewHandler(auctionService AuctionService, log *slog.Logger, gatherer prometheus.Gatherer, origins []string) *Handler {
	if log == nil {
		log = slog.Default()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Handler{
		auctionService: auctionService,
		log:            log,
		gatherer:       gatherer,
		origins:        origins,
	}
}

// SetupRoutes configures all HTTP routes
func (h *Handler) SetupRoutes() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})).Methods("GET")

	api := router.PathPrefix("/api/v1/auction").Subrouter()
	api.HandleFunc("", h.GetAuction).Methods("GET")
	api.HandleFunc("/start", h.StartSelling).Methods("POST")
	api.HandleFunc("/offers", h.Offer).Methods("POST")
	api.HandleFunc("/accept", h.AcceptOffer).Methods("POST")
	api.HandleFunc("/pay", h.Pay).Methods("POST")

	router.Use(h.loggingMiddleware)

	origins := h.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", ParticipantHeader}),
	)(router)
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "api-gateway",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// GetAuction returns the current auction record
func (h *Handler) GetAuction(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.auctionService.GetAuction(r.Context()))
}

// StartSelling opens a listing for the caller
func (h *Handler) StartSelling(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req models.StartSellingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Product == "" {
		respondError(w, http.StatusBadRequest, "Product is required")
		return
	}

	resp, err := h.auctionService.StartSelling(r.Context(), caller, &req)
	if err != nil {
		respondRejection(w, resp, err)
		return
	}
	respondJSON(w, http.StatusCreated, resp)
}

// Offer handles bid placement requests
func (h *Handler) Offer(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req models.OfferRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := h.auctionService.Offer(r.Context(), caller, &req)
	if err != nil {
		respondRejection(w, resp, err)
		return
	}
	respondJSON(w, http.StatusCreated, resp)
}

// AcceptOffer lets the seller accept the highest bid
func (h *Handler) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	resp, err := h.auctionService.AcceptOffer(r.Context(), caller)
	if err != nil {
		respondRejection(w, resp, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// Pay settles the accepted listing
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req models.PayRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, _, err := h.auctionService.Pay(r.Context(), caller, &req)
	if err != nil {
		respondRejection(w, resp, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (models.Participant, bool) {
	p := models.Participant(r.Header.Get(ParticipantHeader))
	if p.IsZero() {
		respondError(w, http.StatusUnauthorized, ParticipantHeader+" header is required")
		return "", false
	}
	return p, true
}

// respondRejection maps machine errors to status codes and includes the
// unchanged auction record carried by resp
func respondRejection(w http.ResponseWriter, resp *models.AuctionResponse, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, auction.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, auction.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, auction.ErrBidTooLow), errors.Is(err, auction.ErrAmountMismatch):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, auction.ErrTransferFailed):
		status = http.StatusBadGateway
	}

	body := models.ErrorResponse{
		Error: err.Error(),
		Kind:  auction.Kind(err),
	}
	if resp != nil {
		body.Auction = &resp.Auction
	}
	respondJSON(w, status, body)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, models.ErrorResponse{Error: message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs all HTTP requests
func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		h.log.Debug("http request",
			"method", r.Method,
			"uri", r.RequestURI,
			"status", rec.status,
			"duration", time.Since(start))
	})
}
