package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Admin forms post numbers as strings and dates in the browser's
// datetime-local format, so EventInput decodes those leniently.
var eventDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// UnmarshalJSON accepts numeric fields as JSON numbers or numeric strings and
// dates as RFC 3339 or datetime-local (read as UTC). Unknown fields such as
// id or available_seats are ignored.
func (in *EventInput) UnmarshalJSON(data []byte) error {
	var raw struct {
		Title       string          `json:"title"`
		Description string          `json:"description"`
		Location    string          `json:"location"`
		Date        string          `json:"date"`
		Price       json.RawMessage `json:"price"`
		TotalSeats  json.RawMessage `json:"total_seats"`
		ImageURL    string          `json:"image_url"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	price, err := parseNumber(raw.Price)
	if err != nil {
		return fmt.Errorf("price: %w", err)
	}
	seats, err := parseNumber(raw.TotalSeats)
	if err != nil {
		return fmt.Errorf("total_seats: %w", err)
	}
	if seats != float64(int(seats)) {
		return fmt.Errorf("total_seats: %v is not a whole number", seats)
	}
	date, err := parseEventDate(raw.Date)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}

	*in = EventInput{
		Title:       raw.Title,
		Description: raw.Description,
		Location:    raw.Location,
		Date:        date,
		Price:       price,
		TotalSeats:  int(seats),
		ImageURL:    raw.ImageURL,
	}
	return nil
}

func parseNumber(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("%q is not a finite number", s)
		}
		return f, nil
	}
	var f float64
	err := json.Unmarshal(raw, &f)
	return f, err
}

func parseEventDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range eventDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
