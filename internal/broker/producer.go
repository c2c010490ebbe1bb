// Package broker publishes booking events for downstream consumers.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/metrics"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// TypeBookingCreated is the type field of a committed booking message.
const TypeBookingCreated = "booking.created"

// BookingEvent is the message value written for every committed booking.
type BookingEvent struct {
	Type           string    `json:"type"`
	BookingID      string    `json:"bookingId"`
	EventID        string    `json:"eventId"`
	TicketType     string    `json:"ticketType"`
	Quantity       int       `json:"quantity"`
	TotalPrice     float64   `json:"totalPrice"`
	AvailableSeats int       `json:"availableSeats"`
	OccurredAt     time.Time `json:"occurredAt"`
}

func newBookingEvent(b *model.Booking, availableSeats int) BookingEvent {
	return BookingEvent{
		Type:           TypeBookingCreated,
		BookingID:      b.ID,
		EventID:        b.EventID,
		TicketType:     b.TicketType,
		Quantity:       b.Quantity,
		TotalPrice:     b.TotalPrice,
		AvailableSeats: availableSeats,
		OccurredAt:     b.BookingDate,
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes booking events to Kafka behind a circuit breaker so an
// unreachable cluster stops costing each booking a write timeout.
type Producer struct {
	writer messageWriter
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// NewProducer constructs a Producer for the given brokers and topic.
func NewProducer(brokers []string, topic string, logger *zap.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           2 * time.Second,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newProducer(writer, logger)
}

func newProducer(w messageWriter, logger *zap.Logger) *Producer {
	logger = logger.With(zap.String("component", "broker"))
	settings := gobreaker.Settings{
		Name:        "kafka-bookings",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn(
				"circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &Producer{writer: w, cb: gobreaker.NewCircuitBreaker(settings), logger: logger}
}

// BookingCreated publishes a committed booking keyed by its event id, so all
// messages for one event land on one partition in commit order.
func (p *Producer) BookingCreated(ctx context.Context, b *model.Booking, availableSeats int) error {
	data, err := json.Marshal(newBookingEvent(b, availableSeats))
	if err != nil {
		return fmt.Errorf("encode booking event: %w", err)
	}

	_, err = p.cb.Execute(func() (interface{}, error) {
		return nil, p.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(b.EventID),
			Value: data,
			Time:  time.Now(),
		})
	})
	if err != nil {
		metrics.BrokerPublish.WithLabelValues(result(err)).Inc()
		return fmt.Errorf("publish booking %s: %w", b.ID, err)
	}
	metrics.BrokerPublish.WithLabelValues("ok").Inc()
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func result(err error) string {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "rejected"
	}
	return "error"
}

// Noop discards booking events. Used when no brokers are configured.
type Noop struct{}

func (Noop) BookingCreated(context.Context, *model.Booking, int) error { return nil }

func (Noop) Close() error { return nil }
