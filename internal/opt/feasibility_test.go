package opt

import (
	"testing"
	"time"

	"harborplan/internal/model"
)

var d0 = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

func at(days int) time.Time { return d0.Add(time.Duration(days) * 24 * time.Hour) }

func boat(id int64, width float64, from, to int) model.Boat {
	return model.Boat{ID: id, Width: width, Arrival: at(from), Departure: at(to)}
}

func slot(id int64, maxWidth float64) model.Slot {
	return model.Slot{ID: id, MaxWidth: maxWidth}
}

func windowSlot(id int64, maxWidth float64, from, to int) model.Slot {
	f, u := at(from), at(to)
	return model.Slot{ID: id, MaxWidth: maxWidth, Reserved: true, AvailableFrom: &f, AvailableUntil: &u}
}

func TestFeasibleWidthIsStrict(t *testing.T) {
	if !Feasible(slot(1, 3.0), boat(1, 3.0, 0, 5), nil) {
		t.Fatalf("equal width must fit")
	}
	if Feasible(slot(1, 3.0), boat(1, 3.0000001, 0, 5), nil) {
		t.Fatalf("wider boat must not fit")
	}
}

func TestFeasibleReservationWindow(t *testing.T) {
	b := boat(1, 2, 0, 10)
	reservedNoWindow := model.Slot{ID: 1, MaxWidth: 3, Reserved: true}
	if Feasible(reservedNoWindow, b, nil) {
		t.Fatalf("reserved slot without window must be unavailable")
	}
	if Feasible(windowSlot(2, 3, 2, 8), b, nil) {
		t.Fatalf("stay exceeding window must be rejected")
	}
	if Feasible(windowSlot(3, 3, -1, 5), b, nil) {
		t.Fatalf("partial overlap with window must be rejected")
	}
	if !Feasible(windowSlot(4, 3, 0, 10), b, nil) {
		t.Fatalf("window matching the stay exactly must be accepted")
	}
	if !Feasible(windowSlot(5, 3, -5, 20), b, nil) {
		t.Fatalf("window containing the stay must be accepted")
	}
}

func TestFeasibleOccupancyHalfOpen(t *testing.T) {
	s := slot(1, 3)
	placed := []model.Stay{{BoatID: 9, SlotID: 1, Start: at(0), End: at(5)}}
	if !Feasible(s, boat(1, 2, 5, 8), placed) {
		t.Fatalf("boat arriving when the previous departs must fit")
	}
	if !Feasible(s, boat(2, 2, -3, 0), placed) {
		t.Fatalf("boat departing when the previous arrives must fit")
	}
	if Feasible(s, boat(3, 2, 4, 8), placed) {
		t.Fatalf("overlapping stay must be rejected")
	}
	other := []model.Stay{{BoatID: 9, SlotID: 2, Start: at(0), End: at(5)}}
	if !Feasible(s, boat(4, 2, 1, 3), other) {
		t.Fatalf("stays on other slots must be ignored")
	}
}

func TestLedgerIndexesBySlot(t *testing.T) {
	l := NewLedger("x", 2)
	s1, s2 := slot(1, 3), slot(2, 3)
	b1 := boat(1, 2, 0, 5)
	l.Place(b1, s1, "")
	if l.Fits(s1, boat(2, 2, 1, 2)) {
		t.Fatalf("slot 1 is occupied")
	}
	if !l.Fits(s2, boat(2, 2, 1, 2)) {
		t.Fatalf("slot 2 is free")
	}
	if !l.Placed(1) || l.Placed(2) {
		t.Fatalf("placed set wrong")
	}
	if got := l.Stays(); len(got) != 1 || got[0].Strategy != "x" || got[0].Start != b1.Arrival || got[0].End != b1.Departure {
		t.Fatalf("unexpected stays: %+v", got)
	}
}
