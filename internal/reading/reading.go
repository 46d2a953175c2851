// internal/reading/reading.go

// Package reading holds the canonical, protocol-independent view of a
// battery installation. Family drivers produce Pack values; everything
// downstream consumes them without knowing which wire format they came
// from.
package reading

import (
	"math"
	"time"
)

// CellRef points at one cell. Index is 1-based, matching the labels
// printed on pack enclosures.
type CellRef struct {
	Pack      int `json:"pack,omitempty"`
	Index     int `json:"index"`
	MilliVolt int `json:"millivolt"`
}

// Pack is one normalized BMS pack reading.
type Pack struct {
	Address int       `json:"address"`
	Fresh   bool      `json:"fresh"`
	Taken   time.Time `json:"taken"`

	CellMilliVolt     []int   `json:"cell_millivolt"`
	MaxCell           CellRef `json:"max_cell"`
	MinCell           CellRef `json:"min_cell"`
	CellDiffMilliVolt int     `json:"cell_diff_millivolt"`

	TempC    []float64 `json:"temp_c"`
	TempMosC *float64  `json:"temp_mos_c,omitempty"`

	CurrentA float64 `json:"current_a"`
	VoltageV float64 `json:"voltage_v"`
	PowerKW  float64 `json:"power_kw"`

	RemainAh   float64 `json:"remain_ah"`
	FullAh     float64 `json:"full_ah"`
	DesignAh   float64 `json:"design_ah"`
	SOCPercent float64 `json:"soc_percent"`
	SOHPercent float64 `json:"soh_percent"`
	CycleCount int     `json:"cycle_count"`

	BalanceCurrentA *float64 `json:"balance_current_a,omitempty"`

	EnergyChargedWh    float64 `json:"energy_charged_wh"`
	EnergyDischargedWh float64 `json:"energy_discharged_wh"`

	Alarms []Flag `json:"alarms"`
}

// FinishCells fills the max/min/diff summary from CellMilliVolt.
func (p *Pack) FinishCells() {
	if len(p.CellMilliVolt) == 0 {
		p.MaxCell = CellRef{}
		p.MinCell = CellRef{}
		p.CellDiffMilliVolt = 0
		return
	}

	maxIdx, minIdx := 0, 0
	for i, mv := range p.CellMilliVolt {
		if mv > p.CellMilliVolt[maxIdx] {
			maxIdx = i
		}
		if mv < p.CellMilliVolt[minIdx] {
			minIdx = i
		}
	}

	p.MaxCell = CellRef{Index: maxIdx + 1, MilliVolt: p.CellMilliVolt[maxIdx]}
	p.MinCell = CellRef{Index: minIdx + 1, MilliVolt: p.CellMilliVolt[minIdx]}
	p.CellDiffMilliVolt = p.MaxCell.MilliVolt - p.MinCell.MilliVolt
}

// Derive fills power and per-cycle energy counters from voltage,
// current and the refresh interval. Charged energy accrues while power
// is non-negative, discharged while negative.
func (p *Pack) Derive(interval time.Duration) {
	p.PowerKW = Round(p.VoltageV*p.CurrentA/1000, 4)

	wh := math.Abs(p.PowerKW) * interval.Seconds() / 3600 * 1000
	if p.PowerKW >= 0 {
		p.EnergyChargedWh = Round(wh, 5)
		p.EnergyDischargedWh = 0
	} else {
		p.EnergyChargedWh = 0
		p.EnergyDischargedWh = Round(wh, 5)
	}
}

// Clone returns a deep copy.
func (p Pack) Clone() Pack {
	out := p
	out.CellMilliVolt = append([]int(nil), p.CellMilliVolt...)
	out.TempC = append([]float64(nil), p.TempC...)
	out.Alarms = append([]Flag(nil), p.Alarms...)
	if p.TempMosC != nil {
		v := *p.TempMosC
		out.TempMosC = &v
	}
	if p.BalanceCurrentA != nil {
		v := *p.BalanceCurrentA
		out.BalanceCurrentA = &v
	}
	return out
}
