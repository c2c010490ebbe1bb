package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWriter struct {
	err    error
	msgs   []kafka.Message
	calls  int
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.calls++
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func testBooking() *model.Booking {
	return &model.Booking{
		ID:          "b-1",
		EventID:     "e-1",
		TicketType:  "VIP Access",
		Quantity:    2,
		TotalPrice:  50,
		BookingDate: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestProducer_BookingCreated(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, zap.NewNop())

	require.NoError(t, p.BookingCreated(context.Background(), testBooking(), 8))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "e-1", string(w.msgs[0].Key))

	var got BookingEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, TypeBookingCreated, got.Type)
	assert.Equal(t, "b-1", got.BookingID)
	assert.Equal(t, 2, got.Quantity)
	assert.Equal(t, 8, got.AvailableSeats)
	assert.Equal(t, 50.0, got.TotalPrice)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestProducer_BreakerOpensAfterFailures(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker unreachable")}
	p := newProducer(w, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.Error(t, p.BookingCreated(ctx, testBooking(), 8))
	}
	assert.Equal(t, 5, w.calls)

	err := p.BookingCreated(ctx, testBooking(), 8)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 5, w.calls, "open breaker must not reach the writer")
	assert.Equal(t, "rejected", result(err))
}

func TestNoop(t *testing.T) {
	var n Noop
	assert.NoError(t, n.BookingCreated(context.Background(), testBooking(), 0))
	assert.NoError(t, n.Close())
}
