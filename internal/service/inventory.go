package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/repository"
	"go.uber.org/zap"
)

// Reservation is a successful seat decrement that has not yet been recorded
// in the ledger.
type Reservation struct {
	EventID   string
	Quantity  int
	Remaining int
	Version   int64
	UnitPrice float64
}

// Update is the seat update observers should see for this reservation.
func (r Reservation) Update() model.SeatUpdate {
	return model.SeatUpdate{ID: r.EventID, AvailableSeats: r.Remaining, Version: r.Version}
}

// Inventory is the only writer of available seats.
type Inventory struct {
	events   EventStore
	notifier Notifier
	logger   *zap.Logger
}

// NewInventory constructs an Inventory over the given store.
func NewInventory(events EventStore, notifier Notifier, logger *zap.Logger) *Inventory {
	return &Inventory{
		events:   events,
		notifier: notifier,
		logger:   logger.With(zap.String("component", "inventory")),
	}
}

// ReserveSeats takes quantity seats from the event in a single atomic step.
// It fails with ErrInsufficientInventory rather than ever taking a partial
// amount or driving the count below zero.
func (inv *Inventory) ReserveSeats(ctx context.Context, eventID string, quantity int) (Reservation, error) {
	if quantity <= 0 {
		return Reservation{}, invalid("quantity", "quantity must be greater than 0")
	}

	change, err := inv.events.DecrementAvailableSeats(ctx, eventID, quantity)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrInsufficientInventory) {
			return Reservation{}, err
		}
		return Reservation{}, fmt.Errorf("reserve seats: %w", err)
	}

	return Reservation{
		EventID:   eventID,
		Quantity:  quantity,
		Remaining: change.AvailableSeats,
		Version:   change.Version,
		UnitPrice: change.Price,
	}, nil
}

// ReleaseSeats returns a reservation's seats to the pool. It undoes a
// reservation whose booking could not be recorded.
func (inv *Inventory) ReleaseSeats(ctx context.Context, r Reservation) (model.SeatUpdate, error) {
	change, err := inv.events.IncrementAvailableSeats(ctx, r.EventID, r.Quantity)
	if err != nil {
		return model.SeatUpdate{}, fmt.Errorf("release %d seats for event %s: %w", r.Quantity, r.EventID, err)
	}
	return change.Update(), nil
}

// AdjustCapacity applies an admin edit. Available seats shift by the same
// amount as total seats; a total below the committed seats is refused.
func (inv *Inventory) AdjustCapacity(ctx context.Context, eventID string, in model.EventInput) (*model.Event, error) {
	if in.TotalSeats <= 0 {
		return nil, invalid("total_seats", "total_seats must be greater than 0")
	}

	before, err := inv.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("adjust capacity: %w", err)
	}

	after, err := inv.events.Update(ctx, eventID, in)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrCapacityBelowCommitted) {
			return nil, err
		}
		return nil, fmt.Errorf("adjust capacity: %w", err)
	}

	if after.SeatVersion != before.SeatVersion {
		inv.notifier.Publish(model.SeatUpdate{
			ID:             after.ID,
			AvailableSeats: after.AvailableSeats,
			Version:        after.SeatVersion,
		})
		inv.logger.Info("capacity adjusted",
			zap.String("event_id", eventID),
			zap.Int("total_seats", after.TotalSeats),
			zap.Int("available_seats", after.AvailableSeats),
		)
	}
	return after, nil
}
