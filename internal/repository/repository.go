// Package repository implements persistence for events and bookings.
// The PostgreSQL repositories use pgx directly (no ORM); the memory store
// implements the same contract in-process.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const eventColumns = `id, title, description, location, date, price, total_seats,
	available_seats, seat_version, image_url, created_at`

// EventRepository handles persistence for events and their seat inventory.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Location, &e.Date, &e.Price,
		&e.TotalSeats, &e.AvailableSeats, &e.SeatVersion, &e.ImageURL, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Create inserts a new event with all seats available.
func (r *EventRepository) Create(ctx context.Context, in model.EventInput) (*model.Event, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO events (id, title, description, location, date, price, total_seats,
			available_seats, seat_version, image_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7, 0, $8, $9)
		 RETURNING `+eventColumns,
		uuid.New().String(), in.Title, in.Description, in.Location, in.Date.UTC(), in.Price,
		in.TotalSeats, in.ImageURL, time.Now().UTC(),
	)
	event, err := scanEvent(row)
	if err != nil {
		return nil, classify("insert event", err)
	}
	return event, nil
}

// List returns all events ordered by date ascending.
func (r *EventRepository) List(ctx context.Context) ([]model.Event, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM events
		 ORDER BY date ASC, created_at ASC`,
	)
	if err != nil {
		return nil, classify("list events", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, classify("scan event", err)
		}
		events = append(events, *e)
	}
	return events, classify("list events", rows.Err())
}

// GetByID returns a single event or ErrNotFound.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*model.Event, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	event, err := scanEvent(r.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, classify("get event", err)
	}
	return event, nil
}

// DecrementAvailableSeats takes n seats in one conditional UPDATE. The row
// lock Postgres holds for the statement serialises concurrent callers, so the
// condition and the write can never observe different values.
func (r *EventRepository) DecrementAvailableSeats(ctx context.Context, id string, n int) (model.SeatChange, error) {
	if !validID(id) {
		return model.SeatChange{}, ErrNotFound
	}
	change := model.SeatChange{EventID: id}
	err := r.db.QueryRow(ctx,
		`UPDATE events
		 SET available_seats = available_seats - $2,
		     seat_version = seat_version + 1
		 WHERE id = $1 AND available_seats >= $2
		 RETURNING available_seats, seat_version, price`,
		id, n,
	).Scan(&change.AvailableSeats, &change.Version, &change.Price)
	if err == nil {
		return change, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.SeatChange{}, classify("decrement seats", err)
	}

	// No row matched: tell a missing event apart from a full one. This read
	// only picks the error; it never grants seats.
	exists, err := r.exists(ctx, id)
	if err != nil {
		return model.SeatChange{}, err
	}
	if !exists {
		return model.SeatChange{}, ErrNotFound
	}
	return model.SeatChange{}, ErrInsufficientInventory
}

// IncrementAvailableSeats returns n seats to the pool, never beyond total_seats.
func (r *EventRepository) IncrementAvailableSeats(ctx context.Context, id string, n int) (model.SeatChange, error) {
	change := model.SeatChange{EventID: id}
	err := r.db.QueryRow(ctx,
		`UPDATE events
		 SET available_seats = LEAST(available_seats + $2, total_seats),
		     seat_version = seat_version + 1
		 WHERE id = $1
		 RETURNING available_seats, seat_version, price`,
		id, n,
	).Scan(&change.AvailableSeats, &change.Version, &change.Price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.SeatChange{}, ErrNotFound
		}
		return model.SeatChange{}, classify("increment seats", err)
	}
	return change, nil
}

// Update rewrites the event's fields. available_seats moves by the same delta
// as total_seats; the edit is refused when the new total is below the seats
// already committed. Both rules are evaluated against the locked row.
func (r *EventRepository) Update(ctx context.Context, id string, in model.EventInput) (*model.Event, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	event, err := scanEvent(r.db.QueryRow(ctx,
		`UPDATE events
		 SET title = $2, description = $3, location = $4, date = $5, price = $6,
		     available_seats = available_seats + ($7 - total_seats),
		     seat_version = seat_version + CASE WHEN total_seats = $7 THEN 0 ELSE 1 END,
		     total_seats = $7,
		     image_url = $8
		 WHERE id = $1 AND total_seats - available_seats <= $7
		 RETURNING `+eventColumns,
		id, in.Title, in.Description, in.Location, in.Date.UTC(), in.Price, in.TotalSeats, in.ImageURL,
	))
	if err == nil {
		return event, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, classify("update event", err)
	}

	exists, err := r.exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}
	return nil, ErrCapacityBelowCommitted
}

// Delete removes an event that has no bookings.
func (r *EventRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	tag, err := r.db.Exec(ctx,
		`DELETE FROM events
		 WHERE id = $1
		   AND NOT EXISTS (SELECT 1 FROM bookings WHERE event_id = $1)`,
		id,
	)
	if err != nil {
		if pgErrorCode(err) == pgForeignKeyViolation {
			return ErrEventHasBookings
		}
		return classify("delete event", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	exists, err := r.exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrEventHasBookings
}

func (r *EventRepository) exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, classify("check event", err)
	}
	return exists, nil
}

// BookingRepository is the append-only booking ledger.
type BookingRepository struct {
	db *pgxpool.Pool
}

// NewBookingRepository constructs a BookingRepository.
func NewBookingRepository(db *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingColumns = `id, event_id, customer_name, customer_email, customer_phone,
	ticket_type, quantity, total_price, booking_date, COALESCE(idempotency_key, '')`

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var b model.Booking
	err := row.Scan(&b.ID, &b.EventID, &b.CustomerName, &b.CustomerEmail, &b.CustomerPhone,
		&b.TicketType, &b.Quantity, &b.TotalPrice, &b.BookingDate, &b.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Insert appends a booking. ID and BookingDate are assigned when empty.
func (r *BookingRepository) Insert(ctx context.Context, b *model.Booking) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.BookingDate.IsZero() {
		b.BookingDate = time.Now().UTC()
	}

	var key *string
	if b.IdempotencyKey != "" {
		key = &b.IdempotencyKey
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO bookings (id, event_id, customer_name, customer_email, customer_phone,
			ticket_type, quantity, total_price, booking_date, idempotency_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		b.ID, b.EventID, b.CustomerName, b.CustomerEmail, b.CustomerPhone,
		b.TicketType, b.Quantity, b.TotalPrice, b.BookingDate, key,
	)
	if err != nil {
		switch pgErrorCode(err) {
		case pgUniqueViolation:
			return ErrDuplicateBooking
		case pgForeignKeyViolation:
			return ErrNotFound
		}
		return classify("insert booking", err)
	}
	return nil
}

// ListByEvent returns all bookings for a given event, oldest first.
func (r *BookingRepository) ListByEvent(ctx context.Context, eventID string) ([]model.Booking, error) {
	if !validID(eventID) {
		return nil, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings
		 WHERE event_id = $1
		 ORDER BY booking_date ASC`,
		eventID,
	)
	if err != nil {
		return nil, classify("list bookings", err)
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, classify("scan booking", err)
		}
		bookings = append(bookings, *b)
	}
	return bookings, classify("list bookings", rows.Err())
}

// GetByIdempotencyKey returns the booking created under key, or ErrNotFound.
func (r *BookingRepository) GetByIdempotencyKey(ctx context.Context, key string) (*model.Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE idempotency_key = $1`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, classify("get booking by key", err)
	}
	return b, nil
}

// validID rejects identifiers that could never match a UUID column, so they
// surface as not-found instead of a cast error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
