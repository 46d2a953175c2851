// internal/publish/sensors.go
package publish

import (
	"fmt"
	"strings"

	"github.com/tamzrod/bms-telemetry/internal/reading"
)

// sensor is one Home Assistant entity derived from a snapshot.
type sensor struct {
	entity      string // topic-safe identifier, unique per broker
	link        string
	name        string
	unit        string
	deviceClass string
	state       any
	attributes  map[string]any
}

// sensors maps a snapshot onto its entity set: system-level rollups
// plus a fixed group per pack.
func (p *MQTTPublisher) sensors(snap reading.Snapshot) []sensor {
	link := snap.LinkID
	mk := func(key, name, unit, class string, state any, attrs map[string]any) sensor {
		return sensor{
			entity:      entityID(p.base, link, key),
			link:        link,
			name:        name,
			unit:        unit,
			deviceClass: class,
			state:       state,
			attributes:  attrs,
		}
	}

	sysAttrs := map[string]any{
		"link_up":         snap.LinkUp,
		"taken":           snap.Taken,
		"packs":           len(snap.Packs),
		"max_cell":        snap.MaxCell,
		"min_cell":        snap.MinCell,
		"total_remain_ah": snap.TotalRemainAh,
		"total_full_ah":   snap.TotalFullAh,
	}

	out := []sensor{
		mk("soc", "State of charge", "%", "battery", snap.SOCPercent, sysAttrs),
		mk("current", "Total current", "A", "current", snap.TotalCurrentA, nil),
		mk("voltage", "Mean voltage", "V", "voltage", snap.MeanVoltageV, nil),
		mk("cell_diff", "Cell spread", "mV", "", snap.CellDiffMilliVolt, nil),
	}

	for _, pk := range snap.Packs {
		key := fmt.Sprintf("pack%d", pk.Address)
		attrs := map[string]any{
			"fresh":     pk.Fresh,
			"cells_mv":  pk.CellMilliVolt,
			"temps_c":   pk.TempC,
			"cycles":    pk.CycleCount,
			"remain_ah": pk.RemainAh,
			"full_ah":   pk.FullAh,
			"alarms":    pk.Alarms,
		}
		out = append(out,
			mk(key+"_voltage", fmt.Sprintf("Pack %d voltage", pk.Address), "V", "voltage", pk.VoltageV, attrs),
			mk(key+"_current", fmt.Sprintf("Pack %d current", pk.Address), "A", "current", pk.CurrentA, nil),
			mk(key+"_power", fmt.Sprintf("Pack %d power", pk.Address), "kW", "power", pk.PowerKW, nil),
			mk(key+"_soc", fmt.Sprintf("Pack %d SOC", pk.Address), "%", "battery", pk.SOCPercent, nil),
			mk(key+"_soh", fmt.Sprintf("Pack %d SOH", pk.Address), "%", "", pk.SOHPercent, nil),
		)
	}

	return out
}

// entityID joins the parts into a broker-safe identifier.
func entityID(parts ...string) string {
	id := strings.ToLower(strings.Join(parts, "_"))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, id)
}
