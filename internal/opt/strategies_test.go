package opt

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"harborplan/internal/model"
)

func place(t *testing.T, s Strategy, boats []model.Boat, slots []model.Slot) []model.Stay {
	t.Helper()
	stays, err := s.Place(context.Background(), boats, slots)
	if err != nil {
		t.Fatalf("%s: Place: %v", s.Name(), err)
	}
	return stays
}

func typed(s model.Slot, t model.SlotType) model.Slot {
	s.Type = t
	return s
}

func TestPerfectFit(t *testing.T) {
	stays := place(t, LargestFirst(), []model.Boat{boat(1, 3.0, 0, 5)}, []model.Slot{slot(1, 3.0)})
	if len(stays) != 1 || stays[0].SlotID != 1 || stays[0].BoatID != 1 {
		t.Fatalf("expected boat 1 on slot 1, got %+v", stays)
	}
	if stays[0].Strategy != "largest_first" {
		t.Fatalf("attribution = %q", stays[0].Strategy)
	}
}

func TestEveryStrategyEdgeCases(t *testing.T) {
	for _, s := range Default(11).All() {
		if got := place(t, s, nil, []model.Slot{slot(1, 3)}); len(got) != 0 {
			t.Fatalf("%s: zero boats gave %d stays", s.Name(), len(got))
		}
		if got := place(t, s, []model.Boat{boat(1, 2, 0, 3)}, nil); len(got) != 0 {
			t.Fatalf("%s: zero slots gave %d stays", s.Name(), len(got))
		}
		if got := place(t, s, []model.Boat{boat(1, 5.0, 0, 3)}, []model.Slot{slot(1, 4.0)}); len(got) != 0 {
			t.Fatalf("%s: boat wider than every slot was placed", s.Name())
		}
		if got := place(t, s, []model.Boat{boat(1, 2, 0, 10)}, []model.Slot{windowSlot(1, 3, 2, 8)}); len(got) != 0 {
			t.Fatalf("%s: boat outside reservation window was placed", s.Name())
		}
		overlapping := []model.Boat{boat(1, 2, 0, 5), boat(2, 2.5, 3, 8)}
		if got := place(t, s, overlapping, []model.Slot{slot(1, 3)}); len(got) != 1 {
			t.Fatalf("%s: expected exactly one of two overlapping boats, got %d", s.Name(), len(got))
		}
	}
}

func TestTieBreakPicksFirstSlot(t *testing.T) {
	boats := []model.Boat{boat(1, 2.5, 0, 5)}
	slots := []model.Slot{slot(1, 3.0), slot(2, 3.0)}
	for _, s := range Default(1).All() {
		if s.Name() == "random" {
			continue
		}
		for run := 0; run < 3; run++ {
			got := place(t, s, boats, slots)
			if len(got) != 1 || got[0].SlotID != 1 {
				t.Fatalf("%s run %d: expected slot 1, got %+v", s.Name(), run, got)
			}
		}
	}
}

func TestTemporaryFirstPrefersWindowedSlot(t *testing.T) {
	got := place(t, TemporaryFirst(), []model.Boat{boat(1, 2, 0, 5)},
		[]model.Slot{slot(1, 2), windowSlot(2, 3, -1, 10)})
	if len(got) != 1 || got[0].SlotID != 2 {
		t.Fatalf("expected temporary slot 2, got %+v", got)
	}
}

func TestBestFitUsesAbsoluteDifference(t *testing.T) {
	got := place(t, BestFit(), []model.Boat{boat(1, 2, 0, 5)}, []model.Slot{slot(1, 4), slot(2, 2.2), slot(3, 3)})
	if len(got) != 1 || got[0].SlotID != 2 {
		t.Fatalf("expected slot 2, got %+v", got)
	}
}

func TestMultiObjectiveScoring(t *testing.T) {
	got := place(t, MultiObjective(), []model.Boat{boat(1, 2, 0, 5)},
		[]model.Slot{slot(1, 2.0), windowSlot(2, 2.2, -1, 10)})
	if len(got) != 1 || got[0].SlotID != 2 {
		t.Fatalf("temporary bonus should win, got %+v", got)
	}
	got = place(t, MultiObjective(), []model.Boat{boat(1, 2, 0, 5)},
		[]model.Slot{typed(slot(1, 2.0), model.SlotGuest), slot(2, 2.1)})
	if len(got) != 1 || got[0].SlotID != 2 {
		t.Fatalf("guest penalty should steer away from slot 1, got %+v", got)
	}
}

func TestMultiObjectiveOrdering(t *testing.T) {
	// Same width: the shorter stay goes first and takes the only slot.
	boats := []model.Boat{boat(1, 2, 0, 10), boat(2, 2, 1, 3)}
	got := place(t, MultiObjective(), boats, []model.Slot{slot(1, 3)})
	if len(got) != 1 || got[0].BoatID != 2 {
		t.Fatalf("expected shorter stay placed, got %+v", got)
	}
}

func TestSlotTypeMatchingBuckets(t *testing.T) {
	cases := []struct {
		name  string
		boat  model.Boat
		slots []model.Slot
		want  int64
		cat   string
	}{
		{"short→guest", boat(1, 2, 0, 3),
			[]model.Slot{typed(slot(1, 2), model.SlotPermanent), typed(slot(2, 3), model.SlotGuest)}, 2, "guest"},
		{"medium→flex", boat(1, 2, 0, 10),
			[]model.Slot{typed(slot(1, 2), model.SlotGuest), typed(slot(2, 3), model.SlotFlex)}, 2, "flex"},
		{"medium→drop-in as other", boat(1, 2, 0, 10),
			[]model.Slot{typed(slot(1, 2), model.SlotGuest), typed(slot(2, 3), model.SlotDropIn)}, 2, "other"},
		{"long→permanent", boat(1, 2, 0, 40),
			[]model.Slot{typed(slot(1, 2), model.SlotGuest), typed(slot(2, 3), model.SlotPermanent)}, 2, "permanent"},
		{"long falls back to flex", boat(1, 2, 0, 40),
			[]model.Slot{typed(slot(1, 2), model.SlotGuest), typed(slot(2, 3), model.SlotFlex)}, 2, "flex"},
	}
	for _, c := range cases {
		got := place(t, SlotTypeMatching(), []model.Boat{c.boat}, c.slots)
		if len(got) != 1 || got[0].SlotID != c.want || got[0].Detail != c.cat {
			t.Fatalf("%s: got %+v", c.name, got)
		}
	}
}

func TestConstraintBasedRules(t *testing.T) {
	cases := []struct {
		name  string
		boat  model.Boat
		slots []model.Slot
		want  int64
		rule  string
	}{
		{"wide hull gets spare width", boat(1, 4.5, 0, 3),
			[]model.Slot{slot(1, 4.6), slot(2, 5.0), slot(3, 6.0)}, 2, "wide-hull"},
		{"wide hull without room falls back", boat(1, 4.5, 0, 3),
			[]model.Slot{slot(1, 4.6)}, 1, "best-fit"},
		{"long stay to permanent", boat(1, 2, 0, 40),
			[]model.Slot{typed(slot(1, 2), model.SlotFlex), typed(slot(2, 3), model.SlotPermanent)}, 2, "long-stay"},
		{"short stay to guest", boat(1, 2, 0, 3),
			[]model.Slot{typed(slot(1, 2), model.SlotPermanent), typed(slot(2, 3), model.SlotGuest)}, 2, "short-stay"},
		{"medium stay best fit", boat(1, 2, 0, 10),
			[]model.Slot{typed(slot(1, 3), model.SlotFlex), typed(slot(2, 2), model.SlotGuest)}, 2, "best-fit"},
	}
	for _, c := range cases {
		got := place(t, ConstraintBased(), []model.Boat{c.boat}, c.slots)
		if len(got) != 1 || got[0].SlotID != c.want || got[0].Detail != c.rule {
			t.Fatalf("%s: got %+v", c.name, got)
		}
	}
}

func TestHybridKeepsLeastWaste(t *testing.T) {
	got := place(t, HybridOptimal(), []model.Boat{boat(1, 2, 0, 5)},
		[]model.Slot{slot(1, 2.5), windowSlot(2, 3.0, -1, 10)})
	if len(got) != 1 || got[0].SlotID != 1 || got[0].Detail != "via largest_first" {
		t.Fatalf("expected slot 1 via largest_first, got %+v", got)
	}
	if got[0].Strategy != "hybrid_optimal" {
		t.Fatalf("attribution = %q", got[0].Strategy)
	}
}

func TestSeasonal(t *testing.T) {
	slots := []model.Slot{slot(1, 4), slot(2, 2)}
	got := place(t, Seasonal(), []model.Boat{boat(1, 2, 0, 3)}, slots)
	if len(got) != 1 || got[0].SlotID != 2 || got[0].Detail != "high" {
		t.Fatalf("high season should best-fit, got %+v", got)
	}
	winter := model.Boat{ID: 2, Width: 2,
		Arrival:   time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		Departure: time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)}
	got = place(t, Seasonal(), []model.Boat{winter}, slots)
	if len(got) != 1 || got[0].SlotID != 1 || got[0].Detail != "low" {
		t.Fatalf("low season should take widest, got %+v", got)
	}
	spanning := model.Boat{Width: 2,
		Arrival:   time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC),
		Departure: time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)}
	if !inHighSeason(spanning) {
		t.Fatalf("stay reaching into next summer is high season")
	}
}

func TestTimeBlock(t *testing.T) {
	if blockSize(14) != 24*time.Hour || blockSize(15) != 7*24*time.Hour ||
		blockSize(90) != 7*24*time.Hour || blockSize(91) != 30*24*time.Hour {
		t.Fatalf("unexpected block sizes")
	}
	got := place(t, TimeBlock(), []model.Boat{boat(1, 2, 0, 5), boat(2, 3, 0, 5)}, []model.Slot{slot(1, 3)})
	if len(got) != 1 || got[0].BoatID != 2 {
		t.Fatalf("widest boat should win the block, got %+v", got)
	}
	if got[0].Detail != "block_20240610" || got[0].Strategy != "time_block" {
		t.Fatalf("unexpected attribution %+v", got[0])
	}
	got = place(t, TimeBlock(), []model.Boat{boat(1, 2, 0, 2), boat(2, 3, 2, 4)}, []model.Slot{slot(1, 3)})
	if len(got) != 2 {
		t.Fatalf("sequential boats should share the slot, got %+v", got)
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, s := range Default(3).All() {
		stays, err := s.Place(ctx, []model.Boat{boat(1, 2, 0, 3)}, []model.Slot{slot(1, 3)})
		if !errors.Is(err, context.Canceled) || stays != nil {
			t.Fatalf("%s: expected cancellation, got %v %v", s.Name(), stays, err)
		}
	}
}

func randomSnapshot(seed int64, nBoats, nSlots int) ([]model.Boat, []model.Slot) {
	rng := rand.New(rand.NewSource(seed))
	types := []model.SlotType{model.SlotGuest, model.SlotFlex, model.SlotPermanent, model.SlotDropIn, model.SlotOther, ""}
	boats := make([]model.Boat, nBoats)
	for i := range boats {
		arr := d0.Add(time.Duration(rng.Intn(60*24)) * time.Hour)
		boats[i] = model.Boat{
			ID:        int64(i + 1),
			Width:     1.5 + float64(rng.Intn(36))/10,
			Arrival:   arr,
			Departure: arr.Add(time.Duration(1+rng.Intn(45*24)) * time.Hour),
		}
	}
	slots := make([]model.Slot, nSlots)
	for i := range slots {
		s := model.Slot{ID: int64(i + 1), MaxWidth: 2 + float64(rng.Intn(36))/10, Type: types[rng.Intn(len(types))]}
		switch rng.Intn(4) {
		case 0:
			f := d0.Add(time.Duration(rng.Intn(20*24)) * time.Hour)
			u := f.Add(time.Duration(5*24+rng.Intn(40*24)) * time.Hour)
			s.Reserved, s.AvailableFrom, s.AvailableUntil = true, &f, &u
		case 1:
			s.Reserved = true
		}
		slots[i] = s
	}
	return boats, slots
}

func TestStrategyInvariants(t *testing.T) {
	boats, slots := randomSnapshot(42, 80, 15)
	boatByID := map[int64]model.Boat{}
	for _, b := range boats {
		boatByID[b.ID] = b
	}
	slotByID := map[int64]model.Slot{}
	for _, s := range slots {
		slotByID[s.ID] = s
	}
	for _, s := range Default(99).All() {
		stays := place(t, s, boats, slots)
		seen := map[int64]bool{}
		for i, st := range stays {
			b, sl := boatByID[st.BoatID], slotByID[st.SlotID]
			if seen[st.BoatID] {
				t.Fatalf("%s: boat %d placed twice", s.Name(), st.BoatID)
			}
			seen[st.BoatID] = true
			if b.Width > sl.MaxWidth {
				t.Fatalf("%s: boat %d too wide for slot %d", s.Name(), b.ID, sl.ID)
			}
			if sl.Reserved && (!sl.HasWindow() || sl.AvailableFrom.After(b.Arrival) || sl.AvailableUntil.Before(b.Departure)) {
				t.Fatalf("%s: boat %d outside window of slot %d", s.Name(), b.ID, sl.ID)
			}
			if st.Start != b.Arrival || st.End != b.Departure {
				t.Fatalf("%s: stay interval differs from boat interval", s.Name())
			}
			for _, other := range stays[i+1:] {
				if other.SlotID == st.SlotID && other.Overlaps(st.Start, st.End) {
					t.Fatalf("%s: double booking on slot %d", s.Name(), st.SlotID)
				}
			}
		}
		again := place(t, s, boats, slots)
		if !reflect.DeepEqual(stays, again) {
			t.Fatalf("%s: not deterministic", s.Name())
		}
	}
}

func TestRandomSeedDiffers(t *testing.T) {
	boats, slots := randomSnapshot(5, 40, 12)
	a := place(t, Random(1), boats, slots)
	b := place(t, Random(1), boats, slots)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("same seed should reproduce")
	}
}

func TestRegistry(t *testing.T) {
	r := Default(1)
	if n := len(r.Names()); n != 14 {
		t.Fatalf("expected 14 strategies, got %d", n)
	}
	if _, err := r.Lookup("largest_first"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if _, err := r.Lookup("Largest_First"); !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("lookup must be case-sensitive, got %v", err)
	}
	all, err := r.Resolve(nil)
	if err != nil || len(all) != 14 || all[0].Name() != "largest_first" {
		t.Fatalf("resolve all: %v %d", err, len(all))
	}
	two, err := r.Resolve([]string{"best_fit", "random", "best_fit"})
	if err != nil || len(two) != 2 || two[0].Name() != "best_fit" {
		t.Fatalf("resolve dedupe: %v %v", err, two)
	}
	if _, err := r.Resolve([]string{"best_fit", "nope"}); !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("unknown name must fail, got %v", err)
	}
}

func TestRegistryDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	NewRegistry(BestFit(), BestFit())
}
