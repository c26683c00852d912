package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aaronwang/bidding-app/api-gateway/internal/auction"
	redisClient "github.com/aaronwang/bidding-app/api-gateway/internal/redis"
	"github.com/aaronwang/bidding-app/shared/models"
	"github.com/google/uuid"
)

// SnapshotStore persists the auction record between calls
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, a models.Auction) (*redisClient.SaveResult, error)
	LoadSnapshot(ctx context.Context, auctionID string) (*models.Auction, error)
}

// EventPublisher delivers auction events to downstream systems
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *models.AuctionEvent) error
}

// Options configures an AuctionService
type Options struct {
	AuctionID  string
	Transferer auction.Transferer
	Store      SnapshotStore
	Publishers []EventPublisher
	Logger     *slog.Logger
	Metrics    *Metrics
	// PublishTimeout bounds each asynchronous publish (default 5s)
	PublishTimeout time.Duration
}

// AuctionService hosts the auction machine: it restores and saves snapshots
// and publishes an event after every successful operation. Persistence and
// publication never fail an operation that the machine accepted.
type AuctionService struct {
	machine        *auction.Machine
	store          SnapshotStore
	publishers     []EventPublisher
	log            *slog.Logger
	metrics        *Metrics
	publishTimeout time.Duration
	now            func() time.Time
	wg             sync.WaitGroup
}

// NewAuctionService creates the service, restoring the last stored snapshot
// for opts.AuctionID when a store is configured
func NewAuctionService(ctx context.Context, opts Options) (*AuctionService, error) {
	if opts.AuctionID == "" {
		return nil, fmt.Errorf("auction ID is required")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	timeout := opts.PublishTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	record := models.NewAuction(opts.AuctionID)
	if opts.Store != nil {
		stored, err := opts.Store.LoadSnapshot(ctx, opts.AuctionID)
		if err != nil {
			return nil, fmt.Errorf("failed to restore auction: %w", err)
		}
		if stored != nil {
			record = stored
			record.ID = opts.AuctionID
			log.Info("restored auction snapshot",
				"auction", record.ID, "status", record.Status, "version", record.Version)
		}
	}

	s := &AuctionService{
		machine:        auction.New(record, opts.Transferer),
		store:          opts.Store,
		publishers:     opts.Publishers,
		log:            log,
		metrics:        opts.Metrics,
		publishTimeout: timeout,
		now:            time.Now,
	}
	s.metrics.trackHighestBid(func() uint64 {
		return s.machine.Snapshot().HighestBid
	})
	return s, nil
}

// GetAuction returns the current auction record
func (s *AuctionService) GetAuction(ctx context.Context) models.Auction {
	return s.machine.Snapshot()
}

// StartSelling opens a listing for the caller
func (s *AuctionService) StartSelling(ctx context.Context, caller models.Participant, req *models.StartSellingRequest) (*models.AuctionResponse, error) {
	a, err := s.machine.StartSelling(ctx, caller, req.Product, req.InitialPrice)
	if err != nil {
		return s.rejected("start_selling", caller, a, err)
	}

	event := s.newEvent(models.EventListingStarted, caller, a)
	s.commit(ctx, "start_selling", a, event)

	return &models.AuctionResponse{
		Success: true,
		Message: fmt.Sprintf("Listing %q started at %d", a.Product, a.HighestBid),
		Auction: a,
		EventID: event.EventID,
	}, nil
}

// Offer places a bid for the caller
func (s *AuctionService) Offer(ctx context.Context, caller models.Participant, req *models.OfferRequest) (*models.AuctionResponse, error) {
	a, err := s.machine.Offer(ctx, caller, req.Price)
	if err != nil {
		return s.rejected("offer", caller, a, err)
	}

	event := s.newEvent(models.EventOfferPlaced, caller, a)
	s.commit(ctx, "offer", a, event)

	return &models.AuctionResponse{
		Success: true,
		Message: "Offer placed successfully!",
		Auction: a,
		EventID: event.EventID,
	}, nil
}

// AcceptOffer freezes the highest bid on behalf of the seller
func (s *AuctionService) AcceptOffer(ctx context.Context, caller models.Participant) (*models.AuctionResponse, error) {
	a, err := s.machine.AcceptOffer(ctx, caller)
	if err != nil {
		return s.rejected("accept_offer", caller, a, err)
	}

	event := s.newEvent(models.EventOfferAccepted, caller, a)
	s.commit(ctx, "accept_offer", a, event)

	return &models.AuctionResponse{
		Success: true,
		Message: fmt.Sprintf("Accepted offer of %d from %s", a.HighestBid, a.HighestBidder),
		Auction: a,
		EventID: event.EventID,
	}, nil
}

// Pay settles the accepted listing with the caller's attached amount. The
// settlement ID is the listing ID, so a repeated settlement of the same
// listing archives as one row.
func (s *AuctionService) Pay(ctx context.Context, caller models.Participant, req *models.PayRequest) (*models.AuctionResponse, *models.Settlement, error) {
	a, settled, err := s.machine.Pay(ctx, caller, req.Amount)
	if err != nil {
		resp, err := s.rejected("pay", caller, a, err)
		return resp, nil, err
	}

	settled.SettledAt = s.now().UTC()

	event := s.newEvent(models.EventSettled, caller, a)
	event.ListingID = settled.ID
	event.Product = settled.Product
	event.Seller = settled.Seller
	event.Bidder = settled.Buyer
	event.Amount = settled.Amount
	s.commit(ctx, "pay", a, event)
	s.metrics.addSettled(settled.Amount)

	return &models.AuctionResponse{
		Success: true,
		Message: fmt.Sprintf("Paid %d to %s", settled.Amount, settled.Seller),
		Auction: a,
		EventID: event.EventID,
	}, &settled, nil
}

// Close waits for in-flight event publications
func (s *AuctionService) Close() {
	s.wg.Wait()
}

func (s *AuctionService) newEvent(typ models.EventType, caller models.Participant, a models.Auction) *models.AuctionEvent {
	return &models.AuctionEvent{
		EventID:   uuid.New().String(),
		AuctionID: a.ID,
		ListingID: a.ListingID,
		Type:      typ,
		Caller:    caller,
		Product:   a.Product,
		Seller:    a.Seller,
		Bidder:    a.HighestBidder,
		Amount:    a.HighestBid,
		Version:   a.Version,
		Timestamp: s.now().UTC(),
	}
}

// rejected reports a refused operation together with the record the machine
// returned while still holding its lock
func (s *AuctionService) rejected(op string, caller models.Participant, a models.Auction, err error) (*models.AuctionResponse, error) {
	s.metrics.observe(op, "rejected")
	s.log.Info("operation rejected",
		"op", op, "caller", caller, "kind", auction.Kind(err), "error", err)
	return &models.AuctionResponse{
		Success: false,
		Message: err.Error(),
		Auction: a,
	}, err
}

// commit saves the snapshot and fans the event out. The machine has already
// applied the operation, so failures here are logged only.
func (s *AuctionService) commit(ctx context.Context, op string, a models.Auction, event *models.AuctionEvent) {
	s.metrics.observe(op, "ok")
	s.log.Info("operation applied",
		"op", op, "auction", a.ID, "status", a.Status, "version", a.Version,
		"caller", event.Caller, "amount", event.Amount)

	if s.store != nil {
		res, err := s.store.SaveSnapshot(ctx, a)
		switch {
		case err != nil:
			s.log.Warn("failed to save snapshot", "version", a.Version, "error", err)
		case !res.Stored:
			s.log.Debug("newer snapshot already stored",
				"version", a.Version, "stored_version", res.PreviousVersion)
		}
	}

	for _, p := range s.publishers {
		s.wg.Add(1)
		go func(p EventPublisher) {
			defer s.wg.Done()
			pctx, cancel := context.WithTimeout(context.Background(), s.publishTimeout)
			defer cancel()
			if err := p.PublishEvent(pctx, event); err != nil {
				s.log.Warn("failed to publish event",
					"event", event.EventID, "type", event.Type, "error", err)
			}
		}(p)
	}
}
