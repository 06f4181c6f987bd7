package opt

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	"harborplan/internal/model"
)

const (
	shortStayDays = 7
	longStayDays  = 30

	wideBoatWidth  = 4.0
	wideBoatMargin = 0.5

	temporaryBonus = 0.2
	guestPenalty   = 0.1
)

func LargestFirst() Strategy {
	return &greedy{
		name:        "largest_first",
		description: "Places the widest boats first so large hulls get a berth",
		order:       byWidthDesc,
		pick:        pickMinWaste,
	}
}

func SmallestFirst() Strategy {
	return &greedy{
		name:        "smallest_first",
		description: "Places the narrowest boats first to maximise the count placed",
		order:       byWidthAsc,
		pick:        pickMinWaste,
	}
}

func BestFit() Strategy {
	return &greedy{
		name:        "best_fit",
		description: "Takes boats by arrival and picks the slot closest to the hull width",
		order:       byArrival,
		pick:        pickClosestWidth,
	}
}

func EarliestArrival() Strategy {
	return &greedy{
		name:        "earliest_arrival",
		description: "First come, first served by arrival time",
		order:       byArrival,
		pick:        pickMinWaste,
	}
}

func TemporaryFirst() Strategy {
	return &greedy{
		name:        "temporary_first",
		description: "Fills reserved slots lent out for a window before regular slots",
		order:       byArrival,
		pick:        pickTemporaryFirst,
	}
}

func ShortStayFirst() Strategy {
	return &greedy{
		name:        "short_stay_first",
		description: "Places the shortest stays first",
		order:       byDurationAsc,
		pick:        pickMinWaste,
	}
}

func LongStayFirst() Strategy {
	return &greedy{
		name:        "long_stay_first",
		description: "Places the longest stays first to limit berth changes",
		order:       byDurationDesc,
		pick:        pickMinWaste,
	}
}

func MultiObjective() Strategy {
	return &greedy{
		name:        "multi_objective",
		description: "Scores each slot on width fit, temporary availability and guest reservation",
		order: func(bs []model.Boat) {
			sort.SliceStable(bs, func(i, j int) bool {
				a, b := bs[i], bs[j]
				if a.Width != b.Width {
					return a.Width > b.Width
				}
				if a.Duration() != b.Duration() {
					return a.Duration() < b.Duration()
				}
				return a.Arrival.Before(b.Arrival)
			})
		},
		pick: pickMultiObjective,
	}
}

func SlotTypeMatching() Strategy {
	return &greedy{
		name:        "slot_type_matching",
		description: "Matches stay length to slot category: guest for short, flex for medium, permanent for long",
		order:       byArrival,
		pick:        pickByStayCategory,
	}
}

func ConstraintBased() Strategy {
	return &greedy{
		name:        "constraint_based",
		description: "Applies harbour master rules: wide hulls get spare width, long stays permanent, short stays guest",
		order: func(bs []model.Boat) {
			sort.SliceStable(bs, func(i, j int) bool {
				a, b := bs[i], bs[j]
				if a.Width != b.Width {
					return a.Width > b.Width
				}
				return a.Duration() > b.Duration()
			})
		},
		pick: pickByRules,
	}
}

func pickClosestWidth(b model.Boat, cands []model.Slot) (model.Slot, string, bool) {
	s, ok := minBy(cands, func(s model.Slot) float64 { return math.Abs(s.MaxWidth - b.Width) })
	return s, "", ok
}

func pickTemporaryFirst(b model.Boat, cands []model.Slot) (model.Slot, string, bool) {
	if s, ok := minWaste(b, filter(cands, model.Slot.Temporary)); ok {
		return s, "", true
	}
	s, ok := minWaste(b, filter(cands, func(s model.Slot) bool { return !s.Reserved }))
	return s, "", ok
}

func pickMultiObjective(b model.Boat, cands []model.Slot) (model.Slot, string, bool) {
	s, ok := maxBy(cands, func(s model.Slot) float64 {
		score := 1 - wasted(b, s)/s.MaxWidth
		if s.Temporary() {
			score += temporaryBonus
		}
		if s.Type == model.SlotGuest {
			score -= guestPenalty
		}
		return score
	})
	return s, "", ok
}

// categoryOf folds unknown and drop-in types into "other".
func categoryOf(t model.SlotType) model.SlotType {
	switch t {
	case model.SlotGuest, model.SlotFlex, model.SlotPermanent:
		return t
	}
	return model.SlotOther
}

// categoryPreference is the fallback order of slot categories for a stay.
func categoryPreference(days int) []model.SlotType {
	switch {
	case days <= shortStayDays:
		return []model.SlotType{model.SlotGuest, model.SlotFlex, model.SlotOther, model.SlotPermanent}
	case days <= longStayDays:
		return []model.SlotType{model.SlotFlex, model.SlotOther, model.SlotGuest, model.SlotPermanent}
	default:
		return []model.SlotType{model.SlotPermanent, model.SlotFlex, model.SlotOther, model.SlotGuest}
	}
}

func ofCategory(t model.SlotType) func(model.Slot) bool {
	return func(s model.Slot) bool { return categoryOf(s.Type) == t }
}

func pickByStayCategory(b model.Boat, cands []model.Slot) (model.Slot, string, bool) {
	for _, t := range categoryPreference(b.StayDays()) {
		if s, ok := minWaste(b, filter(cands, ofCategory(t))); ok {
			return s, string(t), true
		}
	}
	return model.Slot{}, "", false
}

func pickByRules(b model.Boat, cands []model.Slot) (model.Slot, string, bool) {
	days := b.StayDays()
	switch {
	case b.Width > wideBoatWidth:
		roomy := filter(cands, func(s model.Slot) bool { return s.MaxWidth >= b.Width+wideBoatMargin })
		if s, ok := minWaste(b, roomy); ok {
			return s, "wide-hull", true
		}
	case days > longStayDays:
		if s, ok := minWaste(b, filter(cands, ofCategory(model.SlotPermanent))); ok {
			return s, "long-stay", true
		}
	case days <= shortStayDays:
		if s, ok := minWaste(b, filter(cands, ofCategory(model.SlotGuest))); ok {
			return s, "short-stay", true
		}
	}
	s, ok := minWaste(b, cands)
	return s, "best-fit", ok
}

// randomStrategy shuffles the boats and picks uniformly among feasible slots.
// A zero seed draws a fresh seed per invocation.
type randomStrategy struct {
	seed int64
}

func Random(seed int64) Strategy { return &randomStrategy{seed: seed} }

func (r *randomStrategy) Name() string { return "random" }
func (r *randomStrategy) Description() string {
	return "Random order and random feasible slot; a control baseline"
}

func (r *randomStrategy) Place(ctx context.Context, boats []model.Boat, slots []model.Slot) ([]model.Stay, error) {
	seed := r.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	g := &greedy{
		name: r.Name(),
		order: func(bs []model.Boat) {
			rng.Shuffle(len(bs), func(i, j int) { bs[i], bs[j] = bs[j], bs[i] })
		},
		pick: func(_ model.Boat, cands []model.Slot) (model.Slot, string, bool) {
			return cands[rng.Intn(len(cands))], "", true
		},
	}
	return g.Place(ctx, boats, slots)
}
