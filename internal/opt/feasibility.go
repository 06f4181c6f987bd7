package opt

import (
	"harborplan/internal/model"
)

// Feasible reports whether boat can occupy slot for its whole stay given the
// stays already placed in the current run. Stays on other slots are ignored.
func Feasible(slot model.Slot, boat model.Boat, placed []model.Stay) bool {
	if boat.Width > slot.MaxWidth {
		return false
	}
	if slot.Reserved {
		if !slot.HasWindow() {
			return false
		}
		if slot.AvailableFrom.After(boat.Arrival) || slot.AvailableUntil.Before(boat.Departure) {
			return false
		}
	}
	for _, st := range placed {
		if st.SlotID != slot.ID {
			continue
		}
		if st.Overlaps(boat.Arrival, boat.Departure) {
			return false
		}
	}
	return true
}

// Ledger is the growing stay list of one strategy invocation, indexed by
// slot id. It is never shared between invocations.
type Ledger struct {
	name   string
	stays  []model.Stay
	bySlot map[int64][]model.Stay
	placed map[int64]struct{}
}

func NewLedger(strategy string, capacity int) *Ledger {
	return &Ledger{
		name:   strategy,
		stays:  make([]model.Stay, 0, capacity),
		bySlot: map[int64][]model.Stay{},
		placed: make(map[int64]struct{}, capacity),
	}
}

// Fits checks feasibility against the stays already on slot.
func (l *Ledger) Fits(slot model.Slot, boat model.Boat) bool {
	return Feasible(slot, boat, l.bySlot[slot.ID])
}

// Candidates returns the feasible slots for boat, in input order.
func (l *Ledger) Candidates(boat model.Boat, slots []model.Slot) []model.Slot {
	out := make([]model.Slot, 0, len(slots))
	for _, s := range slots {
		if l.Fits(s, boat) {
			out = append(out, s)
		}
	}
	return out
}

// Place records boat on slot for its arrival/departure interval.
func (l *Ledger) Place(boat model.Boat, slot model.Slot, detail string) model.Stay {
	st := model.Stay{
		BoatID:   boat.ID,
		SlotID:   slot.ID,
		Start:    boat.Arrival,
		End:      boat.Departure,
		Strategy: l.name,
		Detail:   detail,
	}
	l.stays = append(l.stays, st)
	l.bySlot[slot.ID] = append(l.bySlot[slot.ID], st)
	l.placed[boat.ID] = struct{}{}
	return st
}

func (l *Ledger) Placed(boatID int64) bool {
	_, ok := l.placed[boatID]
	return ok
}

func (l *Ledger) Stays() []model.Stay { return l.stays }
