// Package mqtt publishes controller telemetry with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/hydroponics/internal/env"
)

// DefaultPrefix is the topic prefix used when none is configured.
const DefaultPrefix = "hydroponics"

// Topics are the topics one controller publishes on.
type Topics struct {
	State     string // actuator activation labels
	Telemetry string // periodic readings
	System    string // lifecycle events and LWT
}

// NewTopics derives the topic set from prefix.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{
		State:     prefix + "/state",
		Telemetry: prefix + "/telemetry",
		System:    prefix + "/system",
	}
}

// Publisher publishes controller events to MQTT. Failures are returned to
// the caller, which logs them; none should stop the process.
type Publisher interface {
	// PublishState announces an actuator activation by label.
	// It never waits for the broker.
	PublishState(label string) error

	// PublishTelemetry sends a periodic readings record.
	PublishTelemetry(t Telemetry) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// StatePayload is the message published on every activation.
type StatePayload struct {
	State StateInner `json:"state"`
}

// StateInner carries the action label.
type StateInner struct {
	Timestamp string `json:"timestamp"`
	Action    string `json:"action"`
}

// FormatState creates the JSON payload for an activation label.
func FormatState(label string, at time.Time) ([]byte, error) {
	return json.Marshal(StatePayload{State: StateInner{
		Timestamp: at.UTC().Format(time.RFC3339),
		Action:    label,
	}})
}

// Telemetry is the periodic readings record. Nil values were never measured
// and encode as null.
type Telemetry struct {
	Timestamp   time.Time `json:"-"`
	Time        string    `json:"timestamp"`
	Initialized bool      `json:"initialized"`
	ElapsedDays int       `json:"elapsedDays"`
	Solids      *float64  `json:"tdsValue"`
	Acidity     *float64  `json:"phValue"`
	Temperature *float64  `json:"temperature"`
	Humidity    *float64  `json:"humidity"`
	Level       *float64  `json:"tankLevel"`
}

func readingPtr(r env.Reading) *float64 {
	if !r.Valid {
		return nil
	}
	v := r.Value
	return &v
}

// TelemetryFromSnapshot builds a telemetry record from an environment snapshot.
func TelemetryFromSnapshot(snap env.Snapshot, at time.Time) Telemetry {
	return Telemetry{
		Timestamp:   at,
		Initialized: snap.Cycle.Initialized,
		ElapsedDays: snap.Cycle.ElapsedDays,
		Solids:      readingPtr(snap.Reading(env.DissolvedSolids)),
		Acidity:     readingPtr(snap.Reading(env.Acidity)),
		Temperature: readingPtr(snap.Reading(env.Temperature)),
		Humidity:    readingPtr(snap.Reading(env.Humidity)),
		Level:       readingPtr(snap.Reading(env.WaterLevel)),
	}
}

// FormatTelemetry creates the JSON payload for a telemetry record.
func FormatTelemetry(t Telemetry) ([]byte, error) {
	t.Time = t.Timestamp.UTC().Format(time.RFC3339)
	return json.Marshal(t)
}

// SystemPayload is used for simple events (LWT, RECONNECTED) that don't
// carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{System: SystemPayloadInner{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     event.Event,
		Reason:    event.Reason,
	}})
}
