package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/idempotency"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/metrics"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/repository"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// ErrRequestInFlight is returned when another request holding the same
// idempotency key has not finished yet.
var ErrRequestInFlight = errors.New("a booking with this idempotency key is already in progress")

// errStaleKey means the idempotency window remembers a booking the ledger
// no longer has.
var errStaleKey = errors.New("idempotency key refers to a booking that no longer exists")

const (
	maxIdempotencyKey = 255
	cleanupTimeout    = 5 * time.Second
)

// BookingResult is the outcome of a booking. Replayed is set when the
// booking was committed by an earlier request with the same key.
type BookingResult struct {
	Booking   *model.Booking
	Remaining int
	Replayed  bool
}

// BookingService runs the booking flow: reserve seats, record the booking,
// then tell observers. A reservation whose booking cannot be recorded is
// released again.
type BookingService struct {
	inventory *Inventory
	bookings  BookingStore
	idem      idempotency.Store
	notifier  Notifier
	publisher Publisher
	validate  *validator.Validate
	logger    *zap.Logger

	pending sync.WaitGroup
}

// NewBookingService constructs a BookingService with its dependencies.
func NewBookingService(
	inventory *Inventory,
	bookings BookingStore,
	idem idempotency.Store,
	notifier Notifier,
	publisher Publisher,
	logger *zap.Logger,
) *BookingService {
	return &BookingService{
		inventory: inventory,
		bookings:  bookings,
		idem:      idem,
		notifier:  notifier,
		publisher: publisher,
		validate:  newValidator(),
		logger:    logger.With(zap.String("component", "booking_service")),
	}
}

// Book reserves req.Quantity seats and records the booking. key is the
// client's idempotency key and may be empty.
func (s *BookingService) Book(ctx context.Context, req model.BookingRequest, key string) (*BookingResult, error) {
	req = normalizeBooking(req)
	if err := check(s.validate, req); err != nil {
		metrics.Bookings.WithLabelValues("invalid").Inc()
		return nil, err
	}
	ticket, ok := model.LookupTicketType(req.TicketType)
	if !ok {
		metrics.Bookings.WithLabelValues("invalid").Inc()
		return nil, invalid("ticket_type", fmt.Sprintf("unknown ticket type %q", req.TicketType))
	}
	if req.Quantity < ticket.MinQty {
		metrics.Bookings.WithLabelValues("invalid").Inc()
		return nil, invalid("quantity", fmt.Sprintf("%s requires at least %d tickets", ticket.Label, ticket.MinQty))
	}

	key = strings.TrimSpace(key)
	if len(key) > maxIdempotencyKey {
		return nil, invalid("idempotency_key", fmt.Sprintf("idempotency key must be at most %d characters", maxIdempotencyKey))
	}

	claimed := false
	if key != "" {
		claim, err := s.idem.Claim(ctx, key)
		switch {
		case err != nil:
			// The ledger's unique key still rejects a duplicate commit.
			s.logger.Warn("idempotency store unavailable", zap.Error(err))
		case claim.State == idempotency.Done:
			res, err := s.replay(ctx, key)
			if !errors.Is(err, errStaleKey) {
				return res, err
			}
			if claimed, err = s.reclaim(ctx, key); err != nil {
				return nil, err
			}
		case claim.State == idempotency.Pending:
			metrics.Bookings.WithLabelValues("in_flight").Inc()
			return nil, ErrRequestInFlight
		default:
			claimed = true
		}
	}

	committed := false
	defer func() {
		if claimed && !committed {
			cctx, cancel := cleanupContext(ctx)
			defer cancel()
			if err := s.idem.Release(cctx, key); err != nil {
				s.logger.Warn("release idempotency key", zap.Error(err))
			}
		}
	}()

	res, err := s.inventory.ReserveSeats(ctx, req.EventID, req.Quantity)
	if err != nil {
		metrics.Bookings.WithLabelValues(resultOf(err)).Inc()
		return nil, err
	}

	booking := &model.Booking{
		EventID:        req.EventID,
		CustomerName:   req.CustomerName,
		CustomerEmail:  req.CustomerEmail,
		CustomerPhone:  req.CustomerPhone,
		TicketType:     ticket.Label,
		Quantity:       req.Quantity,
		TotalPrice:     ticket.Total(res.UnitPrice, req.Quantity),
		IdempotencyKey: key,
	}
	if err := s.bookings.Insert(ctx, booking); err != nil {
		s.compensate(ctx, res, err)
		if errors.Is(err, repository.ErrDuplicateBooking) {
			committed = true
			return s.replay(ctx, key)
		}
		metrics.Bookings.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("record booking: %w", err)
	}
	committed = true

	if claimed {
		cctx, cancel := cleanupContext(ctx)
		if err := s.idem.Complete(cctx, key, booking.ID); err != nil {
			s.logger.Warn("complete idempotency key", zap.String("booking_id", booking.ID), zap.Error(err))
		}
		cancel()
	}

	metrics.Bookings.WithLabelValues("ok").Inc()
	metrics.SeatsReserved.Add(float64(booking.Quantity))
	s.logger.Info("booking created",
		zap.String("booking_id", booking.ID),
		zap.String("event_id", booking.EventID),
		zap.Int("quantity", booking.Quantity),
		zap.Int("remaining", res.Remaining),
	)

	s.notifier.Publish(res.Update())
	s.publish(ctx, *booking, res.Remaining)

	return &BookingResult{Booking: booking, Remaining: res.Remaining}, nil
}

// publish hands the committed booking to the publisher off the request path.
// The send is detached from ctx so a client hanging up does not drop it.
func (s *BookingService) publish(ctx context.Context, booking model.Booking, remaining int) {
	pctx, cancel := cleanupContext(ctx)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer cancel()
		if err := s.publisher.BookingCreated(pctx, &booking, remaining); err != nil {
			s.logger.Warn("publish booking event", zap.String("booking_id", booking.ID), zap.Error(err))
		}
	}()
}

// Wait blocks until every booking event handed to the publisher has been
// sent or has failed.
func (s *BookingService) Wait() {
	s.pending.Wait()
}

// reclaim drops a key whose booking is gone from the ledger and claims it
// again so the request is processed as new.
func (s *BookingService) reclaim(ctx context.Context, key string) (bool, error) {
	s.logger.Warn("idempotency key refers to a missing booking, claiming it again", zap.String("idempotency_key", key))
	if err := s.idem.Release(ctx, key); err != nil {
		s.logger.Warn("release idempotency key", zap.Error(err))
		return false, nil
	}
	claim, err := s.idem.Claim(ctx, key)
	switch {
	case err != nil:
		s.logger.Warn("idempotency store unavailable", zap.Error(err))
		return false, nil
	case claim.State != idempotency.New:
		metrics.Bookings.WithLabelValues("in_flight").Inc()
		return false, ErrRequestInFlight
	}
	return true, nil
}

// compensate gives back the seats of a reservation whose booking was not
// recorded. The request context may already be done, so it runs detached.
func (s *BookingService) compensate(ctx context.Context, res Reservation, cause error) {
	cctx, cancel := cleanupContext(ctx)
	defer cancel()

	update, err := s.inventory.ReleaseSeats(cctx, res)
	if err != nil {
		metrics.Compensations.WithLabelValues("failed").Inc()
		s.logger.Error("seat compensation failed, inventory and ledger disagree",
			zap.String("event_id", res.EventID),
			zap.Int("quantity", res.Quantity),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return
	}
	metrics.Compensations.WithLabelValues("ok").Inc()
	s.logger.Warn("booking not recorded, seats released",
		zap.String("event_id", res.EventID),
		zap.Int("quantity", res.Quantity),
		zap.Error(cause),
	)
	s.notifier.Publish(update)
}

// replay returns the booking an earlier request committed under key.
func (s *BookingService) replay(ctx context.Context, key string) (*BookingResult, error) {
	booking, err := s.bookings.GetByIdempotencyKey(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errStaleKey
	}
	if err != nil {
		return nil, fmt.Errorf("load replayed booking: %w", err)
	}

	remaining := 0
	if event, err := s.inventory.events.GetByID(ctx, booking.EventID); err == nil {
		remaining = event.AvailableSeats
	}

	// The key may have come back through the ledger's unique index after the
	// idempotency window lost it; remember it again.
	if err := s.idem.Complete(ctx, key, booking.ID); err != nil {
		s.logger.Warn("complete idempotency key", zap.String("booking_id", booking.ID), zap.Error(err))
	}

	metrics.Bookings.WithLabelValues("replayed").Inc()
	return &BookingResult{Booking: booking, Remaining: remaining, Replayed: true}, nil
}

func cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
}

func resultOf(err error) string {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return "invalid"
	case errors.Is(err, repository.ErrInsufficientInventory):
		return "insufficient"
	case errors.Is(err, repository.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func normalizeBooking(req model.BookingRequest) model.BookingRequest {
	req.EventID = strings.TrimSpace(req.EventID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerEmail = strings.ToLower(strings.TrimSpace(req.CustomerEmail))
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	req.TicketType = strings.TrimSpace(req.TicketType)
	return req
}
