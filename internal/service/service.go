// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the repository layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/repository"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// EventStore is the durable home of events and their seat inventory.
// Seat counts only change through DecrementAvailableSeats,
// IncrementAvailableSeats and Update, each of which is atomic per event.
type EventStore interface {
	Create(ctx context.Context, in model.EventInput) (*model.Event, error)
	List(ctx context.Context) ([]model.Event, error)
	GetByID(ctx context.Context, id string) (*model.Event, error)
	DecrementAvailableSeats(ctx context.Context, id string, n int) (model.SeatChange, error)
	IncrementAvailableSeats(ctx context.Context, id string, n int) (model.SeatChange, error)
	Update(ctx context.Context, id string, in model.EventInput) (*model.Event, error)
	Delete(ctx context.Context, id string) error
}

// BookingStore is the append-only booking ledger.
type BookingStore interface {
	Insert(ctx context.Context, b *model.Booking) error
	ListByEvent(ctx context.Context, eventID string) ([]model.Booking, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*model.Booking, error)
}

// Notifier fans seat changes out to observers. Publish must not block.
type Notifier interface {
	Publish(u model.SeatUpdate)
	Forget(eventID string)
}

// Publisher emits booking domain events to downstream consumers.
type Publisher interface {
	BookingCreated(ctx context.Context, b *model.Booking, availableSeats int) error
}

// EventService orchestrates event-related business operations.
type EventService struct {
	events    EventStore
	bookings  BookingStore
	inventory *Inventory
	notifier  Notifier
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewEventService constructs an EventService with its dependencies.
func NewEventService(
	events EventStore,
	bookings BookingStore,
	inventory *Inventory,
	notifier Notifier,
	logger *zap.Logger,
) *EventService {
	return &EventService{
		events:    events,
		bookings:  bookings,
		inventory: inventory,
		notifier:  notifier,
		validate:  newValidator(),
		logger:    logger.With(zap.String("component", "event_service")),
	}
}

// CreateEvent validates the input and stores a new event with every seat available.
func (s *EventService) CreateEvent(ctx context.Context, in model.EventInput) (*model.Event, error) {
	in = normalizeEvent(in)
	if err := check(s.validate, in); err != nil {
		return nil, err
	}

	event, err := s.events.Create(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	s.logger.Info("event created",
		zap.String("event_id", event.ID),
		zap.Int("total_seats", event.TotalSeats),
	)
	return event, nil
}

// ListEvents returns all events ordered by date.
func (s *EventService) ListEvents(ctx context.Context) ([]model.Event, error) {
	events, err := s.events.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if events == nil {
		events = []model.Event{}
	}
	return events, nil
}

// GetEvent returns a single event by ID.
func (s *EventService) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if strings.TrimSpace(id) == "" {
		return nil, repository.ErrNotFound
	}
	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

// UpdateEvent edits an event. Capacity changes go through the inventory
// controller so observers see the new seat count.
func (s *EventService) UpdateEvent(ctx context.Context, id string, in model.EventInput) (*model.Event, error) {
	in = normalizeEvent(in)
	if err := check(s.validate, in); err != nil {
		return nil, err
	}
	return s.inventory.AdjustCapacity(ctx, id, in)
}

// DeleteEvent removes an event that no booking references.
func (s *EventService) DeleteEvent(ctx context.Context, id string) error {
	if err := s.events.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrEventHasBookings) {
			return err
		}
		return fmt.Errorf("delete event: %w", err)
	}
	s.notifier.Forget(id)
	s.logger.Info("event deleted", zap.String("event_id", id))
	return nil
}

// ListBookings returns all bookings for an event.
func (s *EventService) ListBookings(ctx context.Context, eventID string) ([]model.Booking, error) {
	if _, err := s.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	bookings, err := s.bookings.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	if bookings == nil {
		bookings = []model.Booking{}
	}
	return bookings, nil
}

func normalizeEvent(in model.EventInput) model.EventInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Location = strings.TrimSpace(in.Location)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	return in
}
