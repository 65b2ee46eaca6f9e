package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/hydroponics/internal/env"
	"github.com/sweeney/hydroponics/internal/events"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string                 `json:"event,omitempty"`
	Reason        string                 `json:"reason,omitempty"`
	Ready         bool                   `json:"ready"`
	Flags         string                 `json:"flags"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	StartTime     string                 `json:"start_time"`
	Timestamp     string                 `json:"timestamp"`
	MQTT          MQTTStatus             `json:"mqtt"`
	Cycle         CycleJSON              `json:"cycle"`
	AcidityOffset float64                `json:"acidity_offset"`
	Readings      map[string]ReadingJSON `json:"readings"`
	Actuators     []ActuatorJSON         `json:"actuators"`
	Network       *NetworkJSON           `json:"network,omitempty"`
	Config        ConfigJSON             `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CycleJSON is the JSON representation of the growth cycle.
type CycleJSON struct {
	Initialized bool   `json:"initialized"`
	StartTime   string `json:"start_time,omitempty"`
	ElapsedDays int    `json:"elapsed_days"`
}

// ReadingJSON is one quantity. Value is null until first measured.
type ReadingJSON struct {
	Value *float64  `json:"value"`
	Band  *BandJSON `json:"band,omitempty"`
}

// BandJSON is a target band.
type BandJSON struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// ActuatorJSON is the JSON representation of one actuation group.
type ActuatorJSON struct {
	Name           string `json:"name"`
	Phase          string `json:"phase"`
	Label          string `json:"label,omitempty"`
	Activations    int    `json:"activations"`
	LastLabel      string `json:"last_label,omitempty"`
	LastActivation string `json:"last_activation,omitempty"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	Gate        string `json:"gate"`
	TelemetryMs int64  `json:"telemetry_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	AcidityMs   int64  `json:"acidity_ms"`
	SolidsMs    int64  `json:"solids_ms"`
	LevelMs     int64  `json:"level_ms"`
	Simulated   bool   `json:"simulated,omitempty"`
}

// Ready reports whether the clock is synced and a growth cycle is running.
func (s Snapshot) Ready() bool {
	return s.Env.Bits.Has(events.Time | events.Cycle)
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Ready:         snap.Ready(),
		Flags:         snap.Env.Bits.String(),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Cycle: CycleJSON{
			Initialized: snap.Env.Cycle.Initialized,
			ElapsedDays: snap.Env.Cycle.ElapsedDays,
		},
		AcidityOffset: snap.Env.AcidityOffset,
		Readings:      make(map[string]ReadingJSON, len(env.Quantities)),
		Actuators:     make([]ActuatorJSON, 0, len(snap.Actuators)),
		Config: ConfigJSON{
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			Gate:        snap.Config.Gate,
			TelemetryMs: snap.Config.TelemetryMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			AcidityMs:   snap.Config.AcidityMs,
			SolidsMs:    snap.Config.SolidsMs,
			LevelMs:     snap.Config.LevelMs,
			Simulated:   snap.Config.Simulated,
		},
	}
	if snap.Env.Cycle.Initialized {
		inner.Cycle.StartTime = time.Unix(snap.Env.Cycle.StartTime, 0).UTC().Format(time.RFC3339)
	}

	for _, q := range env.Quantities {
		var rj ReadingJSON
		if r := snap.Env.Reading(q); r.Valid {
			v := r.Value
			rj.Value = &v
		}
		if b := snap.Env.Band(q); b.Set {
			rj.Band = &BandJSON{Min: b.Min, Max: b.Max}
		}
		inner.Readings[q.String()] = rj
	}

	for _, a := range snap.Actuators {
		aj := ActuatorJSON{
			Name:        a.Name,
			Phase:       a.Phase.String(),
			Label:       a.Label,
			Activations: a.Activations,
			LastLabel:   a.LastLabel,
		}
		if !a.LastActivation.IsZero() {
			aj.LastActivation = a.LastActivation.UTC().Format(time.RFC3339)
		}
		inner.Actuators = append(inner.Actuators, aj)
	}

	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
