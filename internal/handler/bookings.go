package handler

import (
	"net/http"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/service"
	"go.uber.org/zap"
)

// IdempotencyKeyHeader carries the client's retry key for POST /bookings.
const IdempotencyKeyHeader = "Idempotency-Key"

// BookingHandler serves seat bookings.
type BookingHandler struct {
	svc    *service.BookingService
	logger *zap.Logger
}

// NewBookingHandler constructs a BookingHandler.
func NewBookingHandler(svc *service.BookingService, logger *zap.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, logger: logger}
}

// CreateBooking handles POST /bookings
// A retry carrying the same Idempotency-Key gets the original booking back
// with 200 instead of booking again.
func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req model.BookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := h.svc.Book(r.Context(), req, r.Header.Get(IdempotencyKeyHeader))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	status, msg := http.StatusCreated, "Booking successful"
	if res.Replayed {
		status, msg = http.StatusOK, "Booking already confirmed"
	}
	writeJSON(w, status, model.BookingResponse{
		Message:        msg,
		BookingID:      res.Booking.ID,
		TotalPrice:     res.Booking.TotalPrice,
		AvailableSeats: res.Remaining,
	})
}
