package model

import (
	"errors"
	"math"
	"testing"
	"time"
)

var d0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestBoatValidate(t *testing.T) {
	ok := Boat{ID: 1, Width: 3, Arrival: d0, Departure: d0.Add(48 * time.Hour)}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid boat rejected: %v", err)
	}
	bad := []Boat{
		{ID: 2, Width: 0, Arrival: d0, Departure: d0.Add(time.Hour)},
		{ID: 3, Width: -1, Arrival: d0, Departure: d0.Add(time.Hour)},
		{ID: 4, Width: math.NaN(), Arrival: d0, Departure: d0.Add(time.Hour)},
		{ID: 5, Width: 2, Arrival: d0, Departure: d0},
		{ID: 6, Width: 2, Arrival: d0, Departure: d0.Add(-time.Hour)},
	}
	for _, b := range bad {
		if err := b.Validate(); !errors.Is(err, ErrInvalid) {
			t.Fatalf("boat %d: expected ErrInvalid, got %v", b.ID, err)
		}
	}
}

func TestSlotValidate(t *testing.T) {
	from, until := d0, d0.Add(72*time.Hour)
	good := []Slot{
		{ID: 1, MaxWidth: 3},
		{ID: 2, MaxWidth: 3, Reserved: true},
		{ID: 3, MaxWidth: 3, Reserved: true, AvailableFrom: &from, AvailableUntil: &until},
	}
	for _, s := range good {
		if err := s.Validate(); err != nil {
			t.Fatalf("slot %d rejected: %v", s.ID, err)
		}
	}
	bad := []Slot{
		{ID: 4, MaxWidth: 0},
		{ID: 5, MaxWidth: 3, Reserved: true, AvailableFrom: &from},
		{ID: 6, MaxWidth: 3, Reserved: true, AvailableUntil: &until},
		{ID: 7, MaxWidth: 3, Reserved: true, AvailableFrom: &until, AvailableUntil: &from},
	}
	for _, s := range bad {
		if err := s.Validate(); !errors.Is(err, ErrInvalid) {
			t.Fatalf("slot %d: expected ErrInvalid, got %v", s.ID, err)
		}
	}
}

func TestValidateSnapshotDuplicates(t *testing.T) {
	b := Boat{ID: 1, Width: 2, Arrival: d0, Departure: d0.Add(time.Hour)}
	if err := ValidateSnapshot([]Boat{b, b}, nil); !errors.Is(err, ErrInvalid) {
		t.Fatalf("duplicate boats accepted: %v", err)
	}
	s := Slot{ID: 1, MaxWidth: 2}
	if err := ValidateSnapshot([]Boat{b}, []Slot{s, s}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("duplicate slots accepted: %v", err)
	}
	if err := ValidateSnapshot(nil, nil); err != nil {
		t.Fatalf("empty snapshot rejected: %v", err)
	}
}

func TestStayOverlapsHalfOpen(t *testing.T) {
	s := Stay{Start: d0, End: d0.Add(24 * time.Hour)}
	if s.Overlaps(d0.Add(24*time.Hour), d0.Add(48*time.Hour)) {
		t.Fatalf("touching endpoints must not overlap")
	}
	if s.Overlaps(d0.Add(-24*time.Hour), d0) {
		t.Fatalf("touching start must not overlap")
	}
	if !s.Overlaps(d0.Add(23*time.Hour), d0.Add(48*time.Hour)) {
		t.Fatalf("expected overlap")
	}
	if !s.Overlaps(d0.Add(time.Hour), d0.Add(2*time.Hour)) {
		t.Fatalf("contained interval must overlap")
	}
}

func TestBoatStayDays(t *testing.T) {
	b := Boat{Arrival: d0, Departure: d0.Add(7*24*time.Hour + 23*time.Hour)}
	if got := b.StayDays(); got != 7 {
		t.Fatalf("StayDays = %d, want 7", got)
	}
}
