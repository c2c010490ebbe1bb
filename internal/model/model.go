// Package model defines the core domain types for the event ticketing system.
package model

import "time"

// Event represents a bookable happening with a fixed seat pool.
type Event struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Location       string    `json:"location"`
	Date           time.Time `json:"date"`
	Price          float64   `json:"price"`
	TotalSeats     int       `json:"total_seats"`
	AvailableSeats int       `json:"available_seats"`
	ImageURL       string    `json:"image_url"`
	CreatedAt      time.Time `json:"created_at"`

	// SeatVersion increases on every change to AvailableSeats.
	SeatVersion int64 `json:"-"`
}

// Committed returns the number of seats held by bookings.
func (e *Event) Committed() int {
	return e.TotalSeats - e.AvailableSeats
}

// SoldOut returns true when no seats remain.
func (e *Event) SoldOut() bool {
	return e.AvailableSeats <= 0
}

// Booking is a committed purchase of Quantity seats against one event.
type Booking struct {
	ID             string    `json:"id"`
	EventID        string    `json:"event_id"`
	CustomerName   string    `json:"customer_name"`
	CustomerEmail  string    `json:"customer_email"`
	CustomerPhone  string    `json:"customer_phone,omitempty"`
	TicketType     string    `json:"ticket_type"`
	Quantity       int       `json:"quantity"`
	TotalPrice     float64   `json:"total_price"`
	BookingDate    time.Time `json:"booking_date"`
	IdempotencyKey string    `json:"-"`
}

// EventInput is the admin payload for creating or editing an event.
type EventInput struct {
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description"`
	Location    string    `json:"location" validate:"required"`
	Date        time.Time `json:"date" validate:"required"`
	Price       float64   `json:"price" validate:"gte=0,lte=9999999999.99"`
	TotalSeats  int       `json:"total_seats" validate:"gt=0,lte=100000"`
	ImageURL    string    `json:"image_url"`
}

// BookingRequest is the payload for booking seats.
type BookingRequest struct {
	EventID       string `json:"event_id" validate:"required"`
	CustomerName  string `json:"customer_name" validate:"required"`
	CustomerEmail string `json:"customer_email" validate:"required,email"`
	CustomerPhone string `json:"customer_phone"`
	TicketType    string `json:"ticket_type"`
	Quantity      int    `json:"quantity" validate:"gt=0,lte=100000"`

	// TotalPrice is accepted for compatibility with older clients and ignored.
	TotalPrice float64 `json:"total_price,omitempty"`
}

// BookingResponse is returned from POST /bookings.
type BookingResponse struct {
	Message        string  `json:"message"`
	BookingID      string  `json:"bookingId"`
	TotalPrice     float64 `json:"total_price"`
	AvailableSeats int     `json:"available_seats"`
}

// SeatUpdate is broadcast to observers whenever an event's seat count changes.
type SeatUpdate struct {
	ID             string `json:"id"`
	AvailableSeats int    `json:"available_seats"`
	Version        int64  `json:"version"`
}

// SeatChange is what the store reports after mutating available_seats.
type SeatChange struct {
	EventID        string
	AvailableSeats int
	Version        int64
	Price          float64
}

// Update converts the change into a broadcastable SeatUpdate.
func (c SeatChange) Update() SeatUpdate {
	return SeatUpdate{ID: c.EventID, AvailableSeats: c.AvailableSeats, Version: c.Version}
}

// MessageResponse is a plain confirmation envelope.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
