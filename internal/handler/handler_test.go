package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/broker"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/idempotency"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/realtime"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/repository"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T, events service.EventStore, ledger service.BookingStore, limiter *RateLimiter) http.Handler {
	t.Helper()
	log := zap.NewNop()

	hub := realtime.NewHub(log)
	go hub.Run()
	t.Cleanup(hub.Stop)

	inventory := service.NewInventory(events, hub, log)
	eventSvc := service.NewEventService(events, ledger, inventory, hub, log)
	bookingSvc := service.NewBookingService(inventory, ledger, idempotency.NewMemoryStore(time.Hour), hub, broker.Noop{}, log)

	if limiter == nil {
		limiter = NewRateLimiter(1000, 1000)
	}
	return NewRouter(Routes{
		Events:         NewEventHandler(eventSvc, log),
		Bookings:       NewBookingHandler(bookingSvc, log),
		Realtime:       hub.ServeWS(realtime.Upgrader(nil)),
		Limiter:        limiter,
		Logger:         log,
		RequestTimeout: 5 * time.Second,
		AllowedOrigins: []string{"*"},
	})
}

func memoryRouter(t *testing.T) http.Handler {
	store := repository.NewMemoryStore()
	return newTestRouter(t, store.Events(), store.Bookings(), nil)
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createEvent(t *testing.T, h http.Handler, seats int) model.Event {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/events", map[string]any{
		"title":       "Jazz Night",
		"location":    "Blue Room",
		"date":        "2026-11-20T19:30",
		"price":       "20",
		"total_seats": seats,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[model.Event](t, rec)
}

func booking(eventID string, qty int) map[string]any {
	return map[string]any{
		"event_id":       eventID,
		"customer_name":  "Ada Lovelace",
		"customer_email": "ada@example.com",
		"quantity":       qty,
		"ticket_type":    "Standard Entry",
		"total_price":    0.01,
	}
}

func TestCreateEvent(t *testing.T) {
	h := memoryRouter(t)

	e := createEvent(t, h, 10)

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, 10, e.AvailableSeats)
	assert.Equal(t, 20.0, e.Price)

	rec := do(t, h, http.MethodPost, "/events", map[string]any{"title": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/events", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateEvent_RejectsOutOfRangeNumbers(t *testing.T) {
	h := memoryRouter(t)

	cases := map[string]map[string]any{
		"infinite price": {"price": "Infinity", "total_seats": 10},
		"nan price":      {"price": "NaN", "total_seats": 10},
		"huge price":     {"price": 1e11, "total_seats": 10},
		"huge capacity":  {"price": 20, "total_seats": 3000000000},
	}
	for name, fields := range cases {
		t.Run(name, func(t *testing.T) {
			body := map[string]any{"title": "Jazz Night", "location": "Blue Room", "date": "2026-11-20T19:30"}
			for k, v := range fields {
				body[k] = v
			}

			rec := do(t, h, http.MethodPost, "/events", body)

			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}

	// Nothing was stored, and the listing still encodes.
	rec := do(t, h, http.MethodGet, "/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestWriteJSON_UnencodableValue(t *testing.T) {
	rec := httptest.NewRecorder()

	writeJSON(rec, http.StatusOK, map[string]float64{"price": math.Inf(1)})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestListAndGetEvents(t *testing.T) {
	h := memoryRouter(t)

	rec := do(t, h, http.MethodGet, "/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	e := createEvent(t, h, 5)

	rec = do(t, h, http.MethodGet, "/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Event](t, rec), 1)

	rec = do(t, h, http.MethodGet, "/api/events/"+e.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, e.ID, decode[model.Event](t, rec).ID)

	rec = do(t, h, http.MethodGet, "/events/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "event not found", decode[model.ErrorResponse](t, rec).Error)
}

func TestBookingFlow(t *testing.T) {
	h := memoryRouter(t)
	e := createEvent(t, h, 10)

	rec := do(t, h, http.MethodPost, "/api/bookings", booking(e.ID, 4))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[model.BookingResponse](t, rec)
	assert.Equal(t, "Booking successful", res.Message)
	assert.NotEmpty(t, res.BookingID)
	assert.Equal(t, 6, res.AvailableSeats)
	assert.Equal(t, 80.0, res.TotalPrice)

	rec = do(t, h, http.MethodPost, "/api/bookings", booking(e.ID, 10))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Not enough seats available", decode[model.ErrorResponse](t, rec).Error)

	rec = do(t, h, http.MethodPost, "/api/bookings", booking(e.ID, 6))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 0, decode[model.BookingResponse](t, rec).AvailableSeats)

	rec = do(t, h, http.MethodPost, "/api/bookings", booking(e.ID, 1))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/events/"+e.ID+"/bookings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Booking](t, rec), 2)

	rec = do(t, h, http.MethodPost, "/bookings", booking("missing", 1))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBookingValidation(t *testing.T) {
	h := memoryRouter(t)
	e := createEvent(t, h, 10)

	body := booking(e.ID, 1)
	body["customer_email"] = "nope"
	rec := do(t, h, http.MethodPost, "/bookings", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[model.ErrorResponse](t, rec).Error, "customer_email")
}

func TestBookingIdempotencyKey(t *testing.T) {
	h := memoryRouter(t)
	e := createEvent(t, h, 10)

	first := do(t, h, http.MethodPost, "/bookings", booking(e.ID, 2), IdempotencyKeyHeader, "abc-123")
	require.Equal(t, http.StatusCreated, first.Code)

	second := do(t, h, http.MethodPost, "/bookings", booking(e.ID, 2), IdempotencyKeyHeader, "abc-123")
	require.Equal(t, http.StatusOK, second.Code)

	assert.Equal(t,
		decode[model.BookingResponse](t, first).BookingID,
		decode[model.BookingResponse](t, second).BookingID,
	)

	rec := do(t, h, http.MethodGet, "/events/"+e.ID, nil)
	assert.Equal(t, 8, decode[model.Event](t, rec).AvailableSeats)
}

func TestUpdateEvent(t *testing.T) {
	h := memoryRouter(t)
	e := createEvent(t, h, 10)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/bookings", booking(e.ID, 6)).Code)

	edit := map[string]any{
		"id":              e.ID,
		"title":           "Jazz Night",
		"location":        "Main Hall",
		"date":            "2026-11-20T19:30",
		"price":           20,
		"total_seats":     "12",
		"available_seats": 4,
	}
	rec := do(t, h, http.MethodPut, "/api/events/"+e.ID, edit)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Event updated", decode[model.MessageResponse](t, rec).Message)

	got := decode[model.Event](t, do(t, h, http.MethodGet, "/events/"+e.ID, nil))
	assert.Equal(t, 6, got.AvailableSeats)
	assert.Equal(t, "Main Hall", got.Location)

	edit["total_seats"] = 5
	rec = do(t, h, http.MethodPut, "/api/events/"+e.ID, edit)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/events/missing", edit)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteEvent(t *testing.T) {
	h := memoryRouter(t)
	booked := createEvent(t, h, 10)
	empty := createEvent(t, h, 10)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/bookings", booking(booked.ID, 1)).Code)

	rec := do(t, h, http.MethodDelete, "/events/"+booked.ID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/events/"+empty.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Event deleted", decode[model.MessageResponse](t, rec).Message)

	rec = do(t, h, http.MethodGet, "/events/"+empty.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBookingRateLimit(t *testing.T) {
	store := repository.NewMemoryStore()
	h := newTestRouter(t, store.Events(), store.Bookings(), NewRateLimiter(0.001, 1))
	e := createEvent(t, h, 10)

	assert.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/bookings", booking(e.ID, 1)).Code)

	rec := do(t, h, http.MethodPost, "/bookings", booking(e.ID, 1))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// Forwarding headers are not trusted unless configured.
	rec = do(t, h, http.MethodPost, "/bookings", booking(e.ID, 1),
		"X-Forwarded-For", "203.0.113.7", "X-Real-IP", "203.0.113.8")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Event reads are not limited.
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/events", nil).Code)
}

type unavailableStore struct {
	service.EventStore
}

func (unavailableStore) List(context.Context) ([]model.Event, error) {
	return nil, fmt.Errorf("list events: %w: %w", repository.ErrStoreUnavailable, context.DeadlineExceeded)
}

func (unavailableStore) GetByID(context.Context, string) (*model.Event, error) {
	return nil, errors.New("relation \"events\" does not exist")
}

func TestStoreFailures(t *testing.T) {
	store := repository.NewMemoryStore()
	h := newTestRouter(t, unavailableStore{store.Events()}, store.Bookings(), nil)

	rec := do(t, h, http.MethodGet, "/events", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	rec = do(t, h, http.MethodGet, "/events/some-id", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decode[model.ErrorResponse](t, rec).Error)
}

func TestHealthAndMetrics(t *testing.T) {
	h := memoryRouter(t)

	rec := do(t, h, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ticketing_realtime_observers")
}

func TestRouter_TrustedProxyKeysLimiterOnForwardedAddress(t *testing.T) {
	store := repository.NewMemoryStore()
	log := zap.NewNop()
	hub := realtime.NewHub(log)
	go hub.Run()
	t.Cleanup(hub.Stop)

	inventory := service.NewInventory(store.Events(), hub, log)
	eventSvc := service.NewEventService(store.Events(), store.Bookings(), inventory, hub, log)
	bookingSvc := service.NewBookingService(inventory, store.Bookings(), idempotency.NewMemoryStore(time.Hour), hub, broker.Noop{}, log)
	h := NewRouter(Routes{
		Events:     NewEventHandler(eventSvc, log),
		Bookings:   NewBookingHandler(bookingSvc, log),
		Realtime:   hub.ServeWS(realtime.Upgrader(nil)),
		Limiter:    NewRateLimiter(0.001, 1),
		Logger:     log,
		TrustProxy: true,
	})
	e := createEvent(t, h, 10)

	first := do(t, h, http.MethodPost, "/bookings", booking(e.ID, 1), "X-Forwarded-For", "203.0.113.7")
	assert.Equal(t, http.StatusCreated, first.Code)
	again := do(t, h, http.MethodPost, "/bookings", booking(e.ID, 1), "X-Forwarded-For", "203.0.113.7")
	assert.Equal(t, http.StatusTooManyRequests, again.Code)
	other := do(t, h, http.MethodPost, "/bookings", booking(e.ID, 1), "X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, http.StatusCreated, other.Code)
}

func TestRateLimiter_ForgetsIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("10.0.0.1"))
	assert.False(t, rl.allow("10.0.0.1"))
	assert.True(t, rl.allow("10.0.0.2"))

	now = now.Add(time.Hour)
	assert.True(t, rl.allow("10.0.0.3"))
	assert.Len(t, rl.visitors, 1)
}
