package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInput(seats int) model.EventInput {
	return model.EventInput{
		Title:      "Concert",
		Location:   "Hall A",
		Date:       time.Date(2026, 12, 1, 20, 0, 0, 0, time.UTC),
		Price:      25,
		TotalSeats: seats,
	}
}

func TestMemoryEvents_CreateStartsFull(t *testing.T) {
	events := NewMemoryStore().Events()

	e, err := events.Create(context.Background(), newInput(10))

	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, 10, e.TotalSeats)
	assert.Equal(t, 10, e.AvailableSeats)
}

func TestMemoryEvents_ListSortedByDate(t *testing.T) {
	events := NewMemoryStore().Events()
	ctx := context.Background()

	later := newInput(1)
	later.Title = "Later"
	later.Date = later.Date.Add(48 * time.Hour)
	_, err := events.Create(ctx, later)
	require.NoError(t, err)
	_, err = events.Create(ctx, newInput(1))
	require.NoError(t, err)

	list, err := events.List(ctx)

	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Concert", list[0].Title)
	assert.Equal(t, "Later", list[1].Title)
}

func TestMemoryEvents_Decrement(t *testing.T) {
	events := NewMemoryStore().Events()
	ctx := context.Background()
	e, _ := events.Create(ctx, newInput(5))

	change, err := events.DecrementAvailableSeats(ctx, e.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, change.AvailableSeats)
	assert.Equal(t, int64(1), change.Version)
	assert.Equal(t, 25.0, change.Price)

	_, err = events.DecrementAvailableSeats(ctx, e.ID, 3)
	assert.ErrorIs(t, err, ErrInsufficientInventory)

	got, _ := events.GetByID(ctx, e.ID)
	assert.Equal(t, 2, got.AvailableSeats)

	_, err = events.DecrementAvailableSeats(ctx, "missing", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryEvents_ConcurrentDecrementNeverOversells(t *testing.T) {
	events := NewMemoryStore().Events()
	ctx := context.Background()
	e, _ := events.Create(ctx, newInput(100))

	var wg sync.WaitGroup
	var granted atomic.Int64
	for i := 0; i < 300; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := events.DecrementAvailableSeats(ctx, e.ID, n); err == nil {
				granted.Add(int64(n))
			}
		}(i%3 + 1)
	}
	wg.Wait()

	got, _ := events.GetByID(ctx, e.ID)
	assert.GreaterOrEqual(t, got.AvailableSeats, 0)
	assert.Equal(t, int64(100), granted.Load()+int64(got.AvailableSeats))
}

func TestMemoryEvents_IncrementCapsAtTotal(t *testing.T) {
	events := NewMemoryStore().Events()
	ctx := context.Background()
	e, _ := events.Create(ctx, newInput(4))
	_, _ = events.DecrementAvailableSeats(ctx, e.ID, 2)

	change, err := events.IncrementAvailableSeats(ctx, e.ID, 5)

	require.NoError(t, err)
	assert.Equal(t, 4, change.AvailableSeats)
}

func TestMemoryEvents_UpdateShiftsAvailability(t *testing.T) {
	events := NewMemoryStore().Events()
	ctx := context.Background()
	e, _ := events.Create(ctx, newInput(10))
	_, _ = events.DecrementAvailableSeats(ctx, e.ID, 4)

	grown, err := events.Update(ctx, e.ID, newInput(15))
	require.NoError(t, err)
	assert.Equal(t, 15, grown.TotalSeats)
	assert.Equal(t, 11, grown.AvailableSeats)

	shrunk, err := events.Update(ctx, e.ID, newInput(4))
	require.NoError(t, err)
	assert.Equal(t, 0, shrunk.AvailableSeats)

	_, err = events.Update(ctx, e.ID, newInput(3))
	assert.ErrorIs(t, err, ErrCapacityBelowCommitted)

	_, err = events.Update(ctx, "missing", newInput(3))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryEvents_DeleteBlockedByBookings(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	booked, _ := store.Events().Create(ctx, newInput(10))
	empty, _ := store.Events().Create(ctx, newInput(10))
	require.NoError(t, store.Bookings().Insert(ctx, &model.Booking{EventID: booked.ID, Quantity: 1}))

	assert.ErrorIs(t, store.Events().Delete(ctx, booked.ID), ErrEventHasBookings)
	assert.NoError(t, store.Events().Delete(ctx, empty.ID))
	assert.ErrorIs(t, store.Events().Delete(ctx, empty.ID), ErrNotFound)

	_, err := store.Events().GetByID(ctx, empty.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryBookings_IdempotencyKeyUnique(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	e, _ := store.Events().Create(ctx, newInput(10))

	first := &model.Booking{EventID: e.ID, Quantity: 1, IdempotencyKey: "k1"}
	require.NoError(t, store.Bookings().Insert(ctx, first))
	assert.NotEmpty(t, first.ID)

	err := store.Bookings().Insert(ctx, &model.Booking{EventID: e.ID, Quantity: 1, IdempotencyKey: "k1"})
	assert.ErrorIs(t, err, ErrDuplicateBooking)

	got, err := store.Bookings().GetByIdempotencyKey(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	list, _ := store.Bookings().ListByEvent(ctx, e.ID)
	assert.Len(t, list, 1)
}

func TestMemoryBookings_UnknownEvent(t *testing.T) {
	err := NewMemoryStore().Bookings().Insert(context.Background(), &model.Booking{EventID: "nope", Quantity: 1})
	assert.ErrorIs(t, err, ErrNotFound)
}
