package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/google/uuid"
)

// MemoryStore keeps events and bookings in process memory. It has no atomic
// conditional write to lean on, so every seat mutation runs under a lock
// owned by that event alone. Each operation takes exactly one event lock.
type MemoryStore struct {
	mu       sync.RWMutex
	events   map[string]*memEvent
	bookings []model.Booking
	byKey    map[string]int // idempotency key -> index in bookings
}

type memEvent struct {
	mu    sync.Mutex
	event model.Event
	// deleted is set under mu so a racing reservation sees the removal.
	deleted bool
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events: make(map[string]*memEvent),
		byKey:  make(map[string]int),
	}
}

// Events returns the store's EventStore view.
func (s *MemoryStore) Events() *MemoryEvents { return &MemoryEvents{s} }

// Bookings returns the store's booking ledger view.
func (s *MemoryStore) Bookings() *MemoryBookings { return &MemoryBookings{s} }

func (s *MemoryStore) lookup(id string) (*memEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.events[id]
	return rec, ok
}

// MemoryEvents implements the event store contract over a MemoryStore.
type MemoryEvents struct{ s *MemoryStore }

func (m *MemoryEvents) Create(_ context.Context, in model.EventInput) (*model.Event, error) {
	e := model.Event{
		ID:             uuid.New().String(),
		Title:          in.Title,
		Description:    in.Description,
		Location:       in.Location,
		Date:           in.Date.UTC(),
		Price:          in.Price,
		TotalSeats:     in.TotalSeats,
		AvailableSeats: in.TotalSeats,
		ImageURL:       in.ImageURL,
		CreatedAt:      time.Now().UTC(),
	}

	m.s.mu.Lock()
	m.s.events[e.ID] = &memEvent{event: e}
	m.s.mu.Unlock()

	return &e, nil
}

func (m *MemoryEvents) List(_ context.Context) ([]model.Event, error) {
	m.s.mu.RLock()
	recs := make([]*memEvent, 0, len(m.s.events))
	for _, rec := range m.s.events {
		recs = append(recs, rec)
	}
	m.s.mu.RUnlock()

	events := make([]model.Event, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		if !rec.deleted {
			events = append(events, rec.event)
		}
		rec.mu.Unlock()
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].Date.Equal(events[j].Date) {
			return events[i].CreatedAt.Before(events[j].CreatedAt)
		}
		return events[i].Date.Before(events[j].Date)
	})
	return events, nil
}

func (m *MemoryEvents) GetByID(_ context.Context, id string) (*model.Event, error) {
	rec, ok := m.s.lookup(id)
	if !ok {
		return nil, ErrNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.deleted {
		return nil, ErrNotFound
	}
	e := rec.event
	return &e, nil
}

func (m *MemoryEvents) DecrementAvailableSeats(ctx context.Context, id string, n int) (model.SeatChange, error) {
	rec, ok := m.s.lookup(id)
	if !ok {
		return model.SeatChange{}, ErrNotFound
	}
	if err := ctx.Err(); err != nil {
		return model.SeatChange{}, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.deleted {
		return model.SeatChange{}, ErrNotFound
	}
	if rec.event.AvailableSeats < n {
		return model.SeatChange{}, ErrInsufficientInventory
	}
	rec.event.AvailableSeats -= n
	rec.event.SeatVersion++
	return changeOf(&rec.event), nil
}

func (m *MemoryEvents) IncrementAvailableSeats(_ context.Context, id string, n int) (model.SeatChange, error) {
	rec, ok := m.s.lookup(id)
	if !ok {
		return model.SeatChange{}, ErrNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.deleted {
		return model.SeatChange{}, ErrNotFound
	}
	rec.event.AvailableSeats = min(rec.event.AvailableSeats+n, rec.event.TotalSeats)
	rec.event.SeatVersion++
	return changeOf(&rec.event), nil
}

func (m *MemoryEvents) Update(_ context.Context, id string, in model.EventInput) (*model.Event, error) {
	rec, ok := m.s.lookup(id)
	if !ok {
		return nil, ErrNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.deleted {
		return nil, ErrNotFound
	}
	if in.TotalSeats < rec.event.Committed() {
		return nil, ErrCapacityBelowCommitted
	}

	e := &rec.event
	if in.TotalSeats != e.TotalSeats {
		e.AvailableSeats += in.TotalSeats - e.TotalSeats
		e.TotalSeats = in.TotalSeats
		e.SeatVersion++
	}
	e.Title = in.Title
	e.Description = in.Description
	e.Location = in.Location
	e.Date = in.Date.UTC()
	e.Price = in.Price
	e.ImageURL = in.ImageURL

	out := *e
	return &out, nil
}

func (m *MemoryEvents) Delete(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	rec, ok := m.s.events[id]
	if !ok {
		return ErrNotFound
	}
	for _, b := range m.s.bookings {
		if b.EventID == id {
			return ErrEventHasBookings
		}
	}

	rec.mu.Lock()
	rec.deleted = true
	rec.mu.Unlock()
	delete(m.s.events, id)
	return nil
}

func changeOf(e *model.Event) model.SeatChange {
	return model.SeatChange{
		EventID:        e.ID,
		AvailableSeats: e.AvailableSeats,
		Version:        e.SeatVersion,
		Price:          e.Price,
	}
}

// MemoryBookings implements the booking ledger contract over a MemoryStore.
type MemoryBookings struct{ s *MemoryStore }

func (m *MemoryBookings) Insert(_ context.Context, b *model.Booking) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.BookingDate.IsZero() {
		b.BookingDate = time.Now().UTC()
	}

	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if _, ok := m.s.events[b.EventID]; !ok {
		return ErrNotFound
	}
	if b.IdempotencyKey != "" {
		if _, dup := m.s.byKey[b.IdempotencyKey]; dup {
			return ErrDuplicateBooking
		}
		m.s.byKey[b.IdempotencyKey] = len(m.s.bookings)
	}
	m.s.bookings = append(m.s.bookings, *b)
	return nil
}

func (m *MemoryBookings) ListByEvent(_ context.Context, eventID string) ([]model.Booking, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	var out []model.Booking
	for _, b := range m.s.bookings {
		if b.EventID == eventID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *MemoryBookings) GetByIdempotencyKey(_ context.Context, key string) (*model.Booking, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	i, ok := m.s.byKey[key]
	if !ok {
		return nil, ErrNotFound
	}
	b := m.s.bookings[i]
	return &b, nil
}
