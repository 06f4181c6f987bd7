package opt

import (
	"context"
	"math"
	"sort"
	"time"

	"harborplan/internal/model"
)

// hybridRules are consulted in order; a later rule must beat the current
// candidate's wasted width strictly to replace it.
var hybridRules = []struct {
	name string
	pick picker
}{
	{"largest_first", pickMinWaste},
	{"best_fit", pickClosestWidth},
	{"temporary_first", pickTemporaryFirst},
}

func HybridOptimal() Strategy {
	return &greedy{
		name:        "hybrid_optimal",
		description: "Per boat, asks several selection rules and keeps the least wasted width",
		order: func(bs []model.Boat) {
			inv := func(b model.Boat) float64 { return 1 / math.Max(1, b.Duration().Seconds()) }
			sort.SliceStable(bs, func(i, j int) bool {
				a, b := bs[i], bs[j]
				if a.Width != b.Width {
					return a.Width > b.Width
				}
				return inv(a) > inv(b)
			})
		},
		pick: pickHybrid,
	}
}

func pickHybrid(b model.Boat, cands []model.Slot) (model.Slot, string, bool) {
	var (
		best  model.Slot
		via   string
		found bool
	)
	bestWaste := math.Inf(1)
	for _, r := range hybridRules {
		s, _, ok := r.pick(b, cands)
		if !ok {
			continue
		}
		if w := wasted(b, s); w < bestWaste {
			best, via, found, bestWaste = s, r.name, true, w
		}
	}
	if !found {
		return model.Slot{}, "", false
	}
	return best, "via " + via, true
}

// Seasonal packs tightly during the high season and spreads boats onto the
// widest slots otherwise.
func Seasonal() Strategy {
	return &greedy{
		name:        "seasonal",
		description: "Best fit in high season (June to August), roomiest slot in low season",
		order:       byArrival,
		pick: func(b model.Boat, cands []model.Slot) (model.Slot, string, bool) {
			if inHighSeason(b) {
				s, ok := minWaste(b, cands)
				return s, "high", ok
			}
			s, ok := maxBy(cands, func(s model.Slot) float64 { return s.MaxWidth })
			return s, "low", ok
		},
	}
}

// inHighSeason reports whether the stay intersects [June 1, September 1) of
// any year it spans.
func inHighSeason(b model.Boat) bool {
	arr, dep := b.Arrival.UTC(), b.Departure.UTC()
	for y := arr.Year(); y <= dep.Year(); y++ {
		start := time.Date(y, time.June, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(y, time.September, 1, 0, 0, 0, 0, time.UTC)
		if arr.Before(end) && dep.After(start) {
			return true
		}
	}
	return false
}

type timeBlock struct{}

// TimeBlock cuts the planning horizon into blocks and places the boats present
// in each block, widest first.
func TimeBlock() Strategy { return timeBlock{} }

func (timeBlock) Name() string { return "time_block" }
func (timeBlock) Description() string {
	return "Splits the horizon into daily, weekly or monthly blocks and packs each block widest first"
}

// blockSize picks the block length from the horizon length in days.
func blockSize(horizonDays int) time.Duration {
	switch {
	case horizonDays <= 14:
		return 24 * time.Hour
	case horizonDays <= 90:
		return 7 * 24 * time.Hour
	default:
		return 30 * 24 * time.Hour
	}
}

func (t timeBlock) Place(ctx context.Context, boats []model.Boat, slots []model.Slot) ([]model.Stay, error) {
	l := NewLedger(t.Name(), len(boats))
	if len(boats) == 0 {
		return l.Stays(), nil
	}
	first, last := boats[0].Arrival, boats[0].Departure
	for _, b := range boats[1:] {
		if b.Arrival.Before(first) {
			first = b.Arrival
		}
		if b.Departure.After(last) {
			last = b.Departure
		}
	}
	size := blockSize(int(last.Sub(first)/(24*time.Hour)) + 1)

	for start := first; start.Before(last); start = start.Add(size) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start.Add(size)
		if end.After(last) {
			end = last
		}
		var present []model.Boat
		for _, b := range boats {
			if b.Arrival.Before(end) && b.Departure.After(start) && !l.Placed(b.ID) {
				present = append(present, b)
			}
		}
		byWidthDesc(present)
		detail := "block_" + start.UTC().Format("20060102")
		for _, b := range present {
			if s, ok := minWaste(b, l.Candidates(b, slots)); ok {
				l.Place(b, s, detail)
			}
		}
	}
	return l.Stays(), nil
}
