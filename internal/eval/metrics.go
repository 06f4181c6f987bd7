// Package eval scores and ranks strategy results.
package eval

import (
	"time"

	"harborplan/internal/model"
)

// Metrics is the per-strategy evaluation record. It is derived from a stay set
// and the full snapshot and never mutated after Evaluate returns.
type Metrics struct {
	BoatsPlaced               int     `json:"boats_placed"`
	TotalBoats                int     `json:"total_boats"`
	Assignments               int     `json:"assignments"`
	PlacementRate             float64 `json:"placement_rate"`
	AverageWidthUtilization   float64 `json:"average_width_utilization"`
	TotalWidthUtilization     float64 `json:"total_width_utilization"`
	AggregateWidthUtilization float64 `json:"aggregate_width_utilization"`
	TempSlotsUsage            float64 `json:"temp_slots_usage"`
	AverageStayDays           float64 `json:"average_stay_days"` // mean stay duration
	MaxSimultaneousOccupancy  int     `json:"max_simultaneous_occupancy"`
	AverageOccupancy          float64 `json:"average_occupancy"`
	OccupancyRate             float64 `json:"occupancy_rate"`
}

// Evaluate computes Metrics for stays against the snapshot. Stays that
// reference unknown boats or slots are ignored.
func Evaluate(stays []model.Stay, boats []model.Boat, slots []model.Slot) Metrics {
	m := Metrics{TotalBoats: len(boats)}
	boatByID := make(map[int64]model.Boat, len(boats))
	for _, b := range boats {
		boatByID[b.ID] = b
	}
	slotByID := make(map[int64]model.Slot, len(slots))
	for _, s := range slots {
		slotByID[s.ID] = s
	}

	placed := map[int64]struct{}{}
	var usedWidth, offeredWidth, stayDays float64
	temp := 0
	// calendar day -> boats present that day
	daily := map[time.Time]map[int64]struct{}{}

	for _, st := range stays {
		b, okB := boatByID[st.BoatID]
		s, okS := slotByID[st.SlotID]
		if !okB || !okS {
			continue
		}
		m.Assignments++
		placed[st.BoatID] = struct{}{}
		m.TotalWidthUtilization += b.Width / s.MaxWidth
		usedWidth += b.Width
		offeredWidth += s.MaxWidth
		stayDays += st.Days()
		if s.Temporary() {
			temp++
		}
		last := dateOf(st.End)
		for d := dateOf(st.Start); !d.After(last); d = d.AddDate(0, 0, 1) {
			if daily[d] == nil {
				daily[d] = map[int64]struct{}{}
			}
			daily[d][st.BoatID] = struct{}{}
		}
	}

	m.BoatsPlaced = len(placed)
	if len(boats) > 0 {
		m.PlacementRate = float64(m.BoatsPlaced) / float64(len(boats))
	}
	if m.Assignments > 0 {
		n := float64(m.Assignments)
		m.AverageWidthUtilization = m.TotalWidthUtilization / n
		m.AggregateWidthUtilization = usedWidth / offeredWidth
		m.TempSlotsUsage = float64(temp) / n
		m.AverageStayDays = stayDays / n
	}
	if len(daily) > 0 {
		total := 0
		for _, present := range daily {
			total += len(present)
			if len(present) > m.MaxSimultaneousOccupancy {
				m.MaxSimultaneousOccupancy = len(present)
			}
		}
		m.AverageOccupancy = float64(total) / float64(len(daily))
		if len(slots) > 0 {
			m.OccupancyRate = m.AverageOccupancy / float64(len(slots))
		}
	}
	return m
}

func dateOf(t time.Time) time.Time {
	y, mo, d := t.UTC().Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

// Map flattens the record into the key/value form handed to collaborators.
func (m Metrics) Map() map[string]any {
	return map[string]any{
		"boats_placed":                m.BoatsPlaced,
		"total_boats":                 m.TotalBoats,
		"assignments":                 m.Assignments,
		"placement_rate":              m.PlacementRate,
		"average_width_utilization":   m.AverageWidthUtilization,
		"total_width_utilization":     m.TotalWidthUtilization,
		"aggregate_width_utilization": m.AggregateWidthUtilization,
		"temp_slots_usage":            m.TempSlotsUsage,
		"average_stay_days":           m.AverageStayDays,
		"max_simultaneous_occupancy":  m.MaxSimultaneousOccupancy,
		"average_occupancy":           m.AverageOccupancy,
		"occupancy_rate":              m.OccupancyRate,
	}
}
