// internal/publish/mqtt.go

// Package publish fans completed snapshots out to downstream
// consumers: an MQTT broker with Home Assistant discovery, and a REST
// endpoint serving the latest state per link.
package publish

import (
	"encoding/json"
	"fmt"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tamzrod/bms-telemetry/internal/config"
	"github.com/tamzrod/bms-telemetry/internal/reading"
)

// mqttClient is the exact contract the publisher uses.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTPublisher pushes snapshots to a broker in Home Assistant's MQTT
// sensor layout: a retained discovery document per entity, then state
// documents on every snapshot.
type MQTTPublisher struct {
	cli  mqttClient
	base string
	log  *slog.Logger

	discovered map[string]bool
}

// NewMQTT connects to the broker and returns a ready publisher.
func NewMQTT(cfg config.MQTTConfig, log *slog.Logger) (*MQTTPublisher, error) {
	if log == nil {
		log = slog.Default()
	}

	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port)).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	cli := mqtt.NewClient(opts)
	if tok := cli.Connect(); tok.Wait() && tok.Error() != nil {
		return nil, fmt.Errorf("publish: mqtt connect: %w", tok.Error())
	}

	return &MQTTPublisher{
		cli:        cli,
		base:       cfg.BaseTopic,
		log:        log,
		discovered: make(map[string]bool),
	}, nil
}

// Publish announces any new entities, then publishes their states.
// Called from the supervisor goroutine of one link; entities of
// different links never collide.
func (p *MQTTPublisher) Publish(snap reading.Snapshot) error {
	for _, s := range p.sensors(snap) {
		if err := p.publishSensor(s); err != nil {
			return err
		}
	}
	return nil
}

func (p *MQTTPublisher) publishSensor(s sensor) error {
	stateTopic := fmt.Sprintf("%s/%s/state", p.base, s.entity)

	if !p.discovered[s.entity] {
		doc := map[string]any{
			"name":                     s.name,
			"unique_id":                s.entity,
			"state_topic":              stateTopic,
			"value_template":           "{{ value_json.state }}",
			"json_attributes_topic":    stateTopic,
			"json_attributes_template": "{{ value_json.attributes | tojson }}",
			"device": map[string]any{
				"identifiers":  []string{fmt.Sprintf("%s_%s", p.base, s.link)},
				"name":         fmt.Sprintf("BMS %s", s.link),
				"manufacturer": "bms-telemetry",
			},
		}
		if s.unit != "" {
			doc["unit_of_measurement"] = s.unit
		}
		if s.deviceClass != "" {
			doc["device_class"] = s.deviceClass
		}

		topic := fmt.Sprintf("homeassistant/sensor/%s/config", s.entity)
		if err := p.send(topic, true, doc); err != nil {
			return err
		}
		p.discovered[s.entity] = true
		p.log.Debug("entity announced", "entity", s.entity)
	}

	return p.send(stateTopic, false, map[string]any{
		"state":      s.state,
		"attributes": s.attributes,
	})
}

func (p *MQTTPublisher) send(topic string, retained bool, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("publish: encode %s: %w", topic, err)
	}
	tok := p.cli.Publish(topic, 0, retained, raw)
	if tok.Wait() && tok.Error() != nil {
		return fmt.Errorf("publish: %s: %w", topic, tok.Error())
	}
	return nil
}
