package model

import (
	"errors"
	"fmt"
)

// ErrInvalid marks input rejected at the model boundary.
var ErrInvalid = errors.New("invalid input")

func (b Boat) Validate() error {
	if !(b.Width > 0) {
		return fmt.Errorf("%w: boat %d: width must be > 0", ErrInvalid, b.ID)
	}
	if b.Arrival.IsZero() || b.Departure.IsZero() {
		return fmt.Errorf("%w: boat %d: arrival and departure are required", ErrInvalid, b.ID)
	}
	if !b.Departure.After(b.Arrival) {
		return fmt.Errorf("%w: boat %d: departure must be after arrival", ErrInvalid, b.ID)
	}
	return nil
}

func (s Slot) Validate() error {
	if !(s.MaxWidth > 0) {
		return fmt.Errorf("%w: slot %d: maxWidth must be > 0", ErrInvalid, s.ID)
	}
	if (s.AvailableFrom == nil) != (s.AvailableUntil == nil) {
		return fmt.Errorf("%w: slot %d: availableFrom and availableUntil must be set together", ErrInvalid, s.ID)
	}
	if s.HasWindow() && s.AvailableUntil.Before(*s.AvailableFrom) {
		return fmt.Errorf("%w: slot %d: availableUntil before availableFrom", ErrInvalid, s.ID)
	}
	return nil
}

// ValidateSnapshot checks every record and rejects duplicate ids.
func ValidateSnapshot(boats []Boat, slots []Slot) error {
	seenBoats := make(map[int64]struct{}, len(boats))
	for _, b := range boats {
		if err := b.Validate(); err != nil {
			return err
		}
		if _, dup := seenBoats[b.ID]; dup {
			return fmt.Errorf("%w: duplicate boat id %d", ErrInvalid, b.ID)
		}
		seenBoats[b.ID] = struct{}{}
	}
	seenSlots := make(map[int64]struct{}, len(slots))
	for _, s := range slots {
		if err := s.Validate(); err != nil {
			return err
		}
		if _, dup := seenSlots[s.ID]; dup {
			return fmt.Errorf("%w: duplicate slot id %d", ErrInvalid, s.ID)
		}
		seenSlots[s.ID] = struct{}{}
	}
	return nil
}
