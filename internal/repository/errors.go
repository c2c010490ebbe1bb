package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrInsufficientInventory is returned when a conditional seat decrement
// matched no row because too few seats remain.
var ErrInsufficientInventory = errors.New("not enough seats available")

// ErrCapacityBelowCommitted is returned when an edit would shrink total_seats
// below the seats already held by bookings.
var ErrCapacityBelowCommitted = errors.New("total seats cannot be lower than seats already booked")

// ErrEventHasBookings is returned when deleting an event that bookings still reference.
var ErrEventHasBookings = errors.New("event has bookings and cannot be deleted")

// ErrDuplicateBooking is returned when a booking with the same idempotency key exists.
var ErrDuplicateBooking = errors.New("booking with this idempotency key already exists")

// ErrStoreUnavailable marks failures where the database could not be reached
// or timed out. No mutation is known to have been applied.
var ErrStoreUnavailable = errors.New("store unavailable")

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// classify wraps err with ErrStoreUnavailable when it looks like a
// connectivity or timeout problem, and with op as context otherwise.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
