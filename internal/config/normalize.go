// internal/config/normalize.go
package config

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	for i := range cfg.Links {
		l := &cfg.Links[i]

		if l.Transport.Kind == "usb-serial" && l.Transport.BaudRate == 0 {
			l.Transport.BaudRate = 9600
		}
		if l.Transport.TimeoutMs == 0 {
			l.Transport.TimeoutMs = 3000
		}

		p := &l.Poll
		if p.IntervalMs == 0 {
			p.IntervalMs = 5000
		}
		if p.SettleMs == 0 {
			p.SettleMs = 150
		}
		if p.RequestRetries == 0 {
			p.RequestRetries = 3
		}
		if p.EnumerateRetries == 0 {
			p.EnumerateRetries = 3
		}
		if p.ReconnectDelayMs == 0 {
			p.ReconnectDelayMs = 5000
		}
		if p.MaxPacks == 0 {
			p.MaxPacks = 16
		}
		if l.Protocol == "jk-modbus" && p.CellCount == 0 {
			p.CellCount = 16
		}
	}

	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.Port == 0 {
			cfg.MQTT.Port = 1883
		}
		if cfg.MQTT.ClientID == "" {
			cfg.MQTT.ClientID = "bms-telemetry"
		}
		if cfg.MQTT.BaseTopic == "" {
			cfg.MQTT.BaseTopic = "bms"
		}
	}
}
