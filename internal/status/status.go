// Package status provides a thread-safe status tracker for the hydroponics daemon.
// It is read by HTTP handlers and the MQTT heartbeat.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/hydroponics/internal/actuator"
	"github.com/sweeney/hydroponics/internal/env"
)

// NetworkInfo contains network state as reported by the host.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Broker      string
	HTTPAddr    string
	Gate        string
	TelemetryMs int64
	HeartbeatMs int64
	AcidityMs   int64
	SolidsMs    int64
	LevelMs     int64
	Simulated   bool
}

// Source reports the status of one actuation group.
type Source interface {
	Status() actuator.Status
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Env           env.Snapshot
	Actuators     []actuator.Status
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds daemon-level state behind an RWMutex and pulls the
// environment and actuator state when a snapshot is taken.
type Tracker struct {
	env     *env.Environment
	sources []Source
	now     func() time.Time

	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker. e may be nil in tests.
func NewTracker(startTime time.Time, cfg Config, e *env.Environment, sources ...Source) *Tracker {
	return &Tracker{
		env:     e,
		sources: sources,
		now:     time.Now,
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	if t.env != nil {
		s.Env = t.env.Snapshot()
	}
	s.Actuators = make([]actuator.Status, 0, len(t.sources))
	for _, src := range t.sources {
		s.Actuators = append(s.Actuators, src.Status())
	}
	s.Now = t.now()
	return s
}
