package main

import (
	"context"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/sweeney/hydroponics/internal/env"
	"github.com/sweeney/hydroponics/internal/events"
	"github.com/sweeney/hydroponics/internal/mqtt"
	"github.com/sweeney/hydroponics/internal/status"
)

// loopDeps are the collaborators of runLoop.
type loopDeps struct {
	publisher     mqtt.Publisher
	conn          mqtt.ConnectionStatus
	tracker       *status.Tracker
	env           *env.Environment
	now           func() time.Time
	minSyncedYear int
	log           *slog.Logger
}

// runLoop owns the daemon lifecycle: it publishes STARTUP, periodic
// telemetry and HEARTBEAT, keeps the clock and network bits current and
// publishes SHUTDOWN when a signal arrives. It returns when signalled or
// when ctx is cancelled.
func runLoop(ctx context.Context, d loopDeps, telemetry, heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	d.refresh()
	d.publishSystem("STARTUP", "", true)

	for {
		select {
		case <-ctx.Done():
			d.log.Warn("control loops stopped, shutting down")
			d.publishSystem("SHUTDOWN", "LOOP_EXIT", true)
			return nil

		case s := <-sig:
			d.log.Info("shutting down", "signal", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			d.publishSystem("SHUTDOWN", signalName, true)
			return nil

		case <-telemetry:
			d.refresh()
			t := mqtt.TelemetryFromSnapshot(d.env.Snapshot(), d.now())
			if err := d.publisher.PublishTelemetry(t); err != nil {
				d.log.Warn("telemetry publish error", "error", err)
			}

		case <-heartbeat:
			d.refresh()
			snap := d.tracker.Snapshot()
			d.log.Info("heartbeat",
				"uptime", snap.Uptime().Truncate(time.Second),
				"day", snap.Env.Cycle.ElapsedDays,
				"flags", snap.Env.Bits,
			)
			d.publishSystem("HEARTBEAT", "", false)
		}
	}
}

// refresh updates the time, network and MQTT state ahead of a publish.
func (d loopDeps) refresh() {
	if clockSynced(d.now(), d.minSyncedYear) {
		d.env.SetFlag(events.Time, true)
	}
	if d.conn != nil {
		d.tracker.SetMQTTConnected(d.conn.IsConnected())
	}
	if net := readNetworkInfo(); net != nil {
		applyNetwork(d.env, d.tracker, net)
	}
}

func (d loopDeps) publishSystem(event, reason string, retained bool) {
	snap := d.tracker.Snapshot()
	se := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := d.publisher.PublishSystem(se); err != nil {
		d.log.Warn("system event publish error", "event", event, "error", err)
		return
	}
	d.log.Debug("published system event", "event", event)
}

// clockSynced treats any wall clock at or after minYear as synchronized;
// an unsynced board boots near the epoch.
func clockSynced(now time.Time, minYear int) bool {
	return now.Year() >= minYear
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

// applyNetwork records net on the tracker and mirrors it into the network
// and WiFi bits. A nil net leaves both untouched.
func applyNetwork(e *env.Environment, tracker *status.Tracker, net *status.NetworkInfo) {
	if net == nil {
		return
	}
	tracker.SetNetwork(net)
	e.SetFlag(events.Network, net.Status == "connected")
	e.SetFlag(events.WiFi, net.Type == "wifi" && net.WifiStatus == "connected")
}
