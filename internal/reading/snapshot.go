// internal/reading/snapshot.go
package reading

import "time"

// Snapshot is the per-link system view published downstream. It is a
// value: consumers receive copies and never share mutable state with
// the poll loop.
type Snapshot struct {
	LinkID string    `json:"link_id"`
	Taken  time.Time `json:"taken"`
	LinkUp bool      `json:"link_up"`

	Packs []Pack `json:"packs"`

	TotalCurrentA     float64 `json:"total_current_a"`
	MeanVoltageV      float64 `json:"mean_voltage_v"`
	TotalRemainAh     float64 `json:"total_remain_ah"`
	TotalFullAh       float64 `json:"total_full_ah"`
	SOCPercent        float64 `json:"soc_percent"`
	MaxCell           CellRef `json:"max_cell"`
	MinCell           CellRef `json:"min_cell"`
	CellDiffMilliVolt int     `json:"cell_diff_millivolt"`
}

// Aggregate builds a snapshot over the given packs, computing system
// totals and the system-wide extreme cells. Stale packs stay in the
// snapshot and in the totals, but only fresh readings may claim the
// system extremes.
func Aggregate(linkID string, packs []Pack, taken time.Time) Snapshot {
	s := Snapshot{
		LinkID: linkID,
		Taken:  taken,
		Packs:  make([]Pack, 0, len(packs)),
	}

	var voltageSum float64
	first := true

	for _, p := range packs {
		s.Packs = append(s.Packs, p.Clone())

		s.TotalCurrentA += p.CurrentA
		voltageSum += p.VoltageV
		s.TotalRemainAh += p.RemainAh
		s.TotalFullAh += p.FullAh

		if !p.Fresh || len(p.CellMilliVolt) == 0 {
			continue
		}
		maxRef := CellRef{Pack: p.Address, Index: p.MaxCell.Index, MilliVolt: p.MaxCell.MilliVolt}
		minRef := CellRef{Pack: p.Address, Index: p.MinCell.Index, MilliVolt: p.MinCell.MilliVolt}
		if first {
			s.MaxCell, s.MinCell = maxRef, minRef
			first = false
			continue
		}
		if maxRef.MilliVolt > s.MaxCell.MilliVolt {
			s.MaxCell = maxRef
		}
		if minRef.MilliVolt < s.MinCell.MilliVolt {
			s.MinCell = minRef
		}
	}

	if n := len(packs); n > 0 {
		s.MeanVoltageV = Round(voltageSum/float64(n), 2)
		s.TotalCurrentA = Round(s.TotalCurrentA, 2)
	}
	if s.TotalFullAh > 0 {
		s.SOCPercent = Round(s.TotalRemainAh/s.TotalFullAh*100, 1)
	}
	if !first {
		s.CellDiffMilliVolt = s.MaxCell.MilliVolt - s.MinCell.MilliVolt
	}

	return s
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Packs = make([]Pack, len(s.Packs))
	for i := range s.Packs {
		out.Packs[i] = s.Packs[i].Clone()
	}
	return out
}
