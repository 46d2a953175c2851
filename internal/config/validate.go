// internal/config/validate.go
package config

import (
	"fmt"
)

var knownProtocols = map[string]bool{
	"pace-lv":    true,
	"pace-lv-v1": true,
	"jk-modbus":  true,
	"tdt":        true,
}

var knownTransports = map[string]bool{
	"usb-serial":            true,
	"serial-over-tcp":       true,
	"serial-over-websocket": true,
}

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if len(cfg.Links) == 0 {
		return fmt.Errorf("config: at least one link required")
	}

	// ------------------------------------------------------------
	// LINK VALIDATION
	// ------------------------------------------------------------

	seen := make(map[string]string)

	for i, l := range cfg.Links {
		if l.ID == "" {
			return fmt.Errorf("link %d: id required", i)
		}
		if prev, ok := seen[l.ID]; ok {
			return fmt.Errorf("link id collision: %q used by links %s and %d", l.ID, prev, i)
		}
		seen[l.ID] = fmt.Sprintf("%d", i)

		if !knownProtocols[l.Protocol] {
			return fmt.Errorf("link %q: unknown protocol %q", l.ID, l.Protocol)
		}

		if !knownTransports[l.Transport.Kind] {
			return fmt.Errorf("link %q: unknown transport kind %q", l.ID, l.Transport.Kind)
		}
		if l.Transport.Address == "" {
			return fmt.Errorf("link %q: transport address required", l.ID)
		}
		if l.Transport.BaudRate < 0 {
			return fmt.Errorf("link %q: baud_rate must be >= 0", l.ID)
		}
		if l.Transport.BaudRate != 0 && l.Transport.Kind != "usb-serial" {
			return fmt.Errorf("link %q: baud_rate is only valid for usb-serial", l.ID)
		}
		if l.Transport.TimeoutMs < 0 {
			return fmt.Errorf("link %q: timeout_ms must be >= 0", l.ID)
		}

		p := l.Poll
		for name, v := range map[string]int{
			"interval_ms":        p.IntervalMs,
			"settle_ms":          p.SettleMs,
			"request_retries":    p.RequestRetries,
			"enumerate_retries":  p.EnumerateRetries,
			"reconnect_delay_ms": p.ReconnectDelayMs,
			"max_packs":          p.MaxPacks,
		} {
			if v < 0 {
				return fmt.Errorf("link %q: %s must be >= 0", l.ID, name)
			}
		}
		if p.MaxPacks > 255 {
			return fmt.Errorf("link %q: max_packs must be <= 255", l.ID)
		}

		// first_address / cell_count describe the JK register map only
		if l.Protocol == "jk-modbus" {
			if p.FirstAddress < 0 || p.FirstAddress > 247 {
				return fmt.Errorf("link %q: first_address must be in 0..247", l.ID)
			}
			if p.CellCount < 0 || p.CellCount > 32 {
				return fmt.Errorf("link %q: cell_count must be in 0..32", l.ID)
			}
		} else {
			if p.FirstAddress != 0 {
				return fmt.Errorf("link %q: first_address is only valid for jk-modbus", l.ID)
			}
			if p.CellCount != 0 {
				return fmt.Errorf("link %q: cell_count is only valid for jk-modbus", l.ID)
			}
		}
	}

	// ------------------------------------------------------------
	// PUBLISHER VALIDATION (OPT-IN)
	// ------------------------------------------------------------

	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.Port < 0 || cfg.MQTT.Port > 65535 {
			return fmt.Errorf("mqtt: port must be in 0..65535")
		}
	}

	return nil
}
