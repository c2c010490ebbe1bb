package model

import (
	"math"
	"strings"
)

// TicketType is a priced admission class. Prices are derived server-side.
type TicketType struct {
	ID         string
	Label      string
	Multiplier float64
	MinQty     int
}

// DefaultTicketType is used when a booking names no ticket type.
var DefaultTicketType = TicketType{ID: "standard", Label: "Standard Entry", Multiplier: 1, MinQty: 1}

var ticketTypes = []TicketType{
	DefaultTicketType,
	{ID: "vip", Label: "VIP Access", Multiplier: 2.5, MinQty: 1},
	{ID: "group", Label: "Group Bundle", Multiplier: 0.8, MinQty: 4},
}

// LookupTicketType resolves a ticket type by id or label, case-insensitively.
// An empty name resolves to DefaultTicketType.
func LookupTicketType(name string) (TicketType, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultTicketType, true
	}
	for _, tt := range ticketTypes {
		if strings.EqualFold(tt.ID, name) || strings.EqualFold(tt.Label, name) {
			return tt, true
		}
	}
	return TicketType{}, false
}

// Total prices quantity tickets of this type at unitPrice, rounded to cents.
func (t TicketType) Total(unitPrice float64, quantity int) float64 {
	return math.Round(unitPrice*t.Multiplier*float64(quantity)*100) / 100
}
