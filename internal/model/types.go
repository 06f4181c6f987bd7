package model

import (
	"time"
)

// Core harbor domain types.

// SlotType is a categorical berth label used as a soft preference by
// type-aware strategies.
type SlotType string

const (
	SlotGuest     SlotType = "guest"
	SlotFlex      SlotType = "flex"
	SlotPermanent SlotType = "permanent"
	SlotDropIn    SlotType = "drop-in"
	SlotOther     SlotType = "other"
)

const day = 24 * time.Hour

type Boat struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name,omitempty"`
	Width     float64   `json:"width"`
	Arrival   time.Time `json:"arrival"`
	Departure time.Time `json:"departure"`
}

// Duration is the length of the boat's stay.
func (b Boat) Duration() time.Duration { return b.Departure.Sub(b.Arrival) }

// StayDays is the number of whole days in the stay.
func (b Boat) StayDays() int { return int(b.Duration() / day) }

type Slot struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name,omitempty"`
	MaxWidth       float64    `json:"maxWidth"`
	Reserved       bool       `json:"reserved"`
	AvailableFrom  *time.Time `json:"availableFrom,omitempty"`
	AvailableUntil *time.Time `json:"availableUntil,omitempty"`
	Type           SlotType   `json:"type,omitempty"`
}

// HasWindow reports whether both availability bounds are set.
func (s Slot) HasWindow() bool { return s.AvailableFrom != nil && s.AvailableUntil != nil }

// Temporary reports whether the slot is reserved but lent out for a window.
func (s Slot) Temporary() bool { return s.Reserved && s.HasWindow() }

// Stay assigns a boat to a slot for [Start, End).
type Stay struct {
	BoatID   int64     `json:"boatId"`
	SlotID   int64     `json:"slotId"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Strategy string    `json:"strategy"`
	Detail   string    `json:"detail,omitempty"`
}

// Overlaps uses half-open intervals; touching endpoints do not overlap.
func (s Stay) Overlaps(start, end time.Time) bool {
	lo := s.Start
	if start.After(lo) {
		lo = start
	}
	hi := s.End
	if end.Before(hi) {
		hi = end
	}
	return lo.Before(hi)
}

// Days is the stay length in fractional days.
func (s Stay) Days() float64 { return s.End.Sub(s.Start).Hours() / 24 }

type Subscription struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret,omitempty"`
}
