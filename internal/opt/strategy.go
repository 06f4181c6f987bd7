package opt

import (
	"context"
	"sort"

	"harborplan/internal/model"
)

// Strategy places boats on slots. Implementations are stateless between calls
// and safe to run concurrently over the same read-only snapshot. Place only
// fails when ctx is done; unplaced boats are simply absent from the result.
type Strategy interface {
	Name() string
	Description() string
	Place(ctx context.Context, boats []model.Boat, slots []model.Slot) ([]model.Stay, error)
}

// picker selects one of the feasible candidates (never empty) for boat.
type picker func(boat model.Boat, candidates []model.Slot) (slot model.Slot, detail string, ok bool)

// greedy is the single-pass shape shared by most heuristics: order the boats,
// then place each one on a picked feasible slot. Decisions are never revisited.
type greedy struct {
	name        string
	description string
	order       func([]model.Boat)
	pick        picker
}

func (g *greedy) Name() string        { return g.name }
func (g *greedy) Description() string { return g.description }

func (g *greedy) Place(ctx context.Context, boats []model.Boat, slots []model.Slot) ([]model.Stay, error) {
	ordered := append([]model.Boat(nil), boats...)
	if g.order != nil {
		g.order(ordered)
	}
	l := NewLedger(g.name, len(boats))
	for _, b := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cands := l.Candidates(b, slots)
		if len(cands) == 0 {
			continue
		}
		s, detail, ok := g.pick(b, cands)
		if !ok {
			continue
		}
		l.Place(b, s, detail)
	}
	return l.Stays(), nil
}

func wasted(b model.Boat, s model.Slot) float64 { return s.MaxWidth - b.Width }

// minBy returns the first slot with the smallest key.
func minBy(slots []model.Slot, key func(model.Slot) float64) (model.Slot, bool) {
	if len(slots) == 0 {
		return model.Slot{}, false
	}
	best, bestKey := slots[0], key(slots[0])
	for _, s := range slots[1:] {
		if k := key(s); k < bestKey {
			best, bestKey = s, k
		}
	}
	return best, true
}

// maxBy returns the first slot with the largest key.
func maxBy(slots []model.Slot, key func(model.Slot) float64) (model.Slot, bool) {
	return minBy(slots, func(s model.Slot) float64 { return -key(s) })
}

func minWaste(b model.Boat, slots []model.Slot) (model.Slot, bool) {
	return minBy(slots, func(s model.Slot) float64 { return wasted(b, s) })
}

func filter(slots []model.Slot, keep func(model.Slot) bool) []model.Slot {
	var out []model.Slot
	for _, s := range slots {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

func pickMinWaste(b model.Boat, cands []model.Slot) (model.Slot, string, bool) {
	s, ok := minWaste(b, cands)
	return s, "", ok
}

// Boat orderings. All sorts are stable so equal keys keep input order.

func byWidthDesc(bs []model.Boat) {
	sort.SliceStable(bs, func(i, j int) bool { return bs[i].Width > bs[j].Width })
}

func byWidthAsc(bs []model.Boat) {
	sort.SliceStable(bs, func(i, j int) bool { return bs[i].Width < bs[j].Width })
}

func byArrival(bs []model.Boat) {
	sort.SliceStable(bs, func(i, j int) bool { return bs[i].Arrival.Before(bs[j].Arrival) })
}

func byDurationAsc(bs []model.Boat) {
	sort.SliceStable(bs, func(i, j int) bool { return bs[i].Duration() < bs[j].Duration() })
}

func byDurationDesc(bs []model.Boat) {
	sort.SliceStable(bs, func(i, j int) bool { return bs[i].Duration() > bs[j].Duration() })
}
