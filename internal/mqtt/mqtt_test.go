package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/hydroponics/internal/env"
	"github.com/sweeney/hydroponics/internal/events"
)

func TestNewTopics(t *testing.T) {
	got := NewTopics("farm/bay1")
	if got.State != "farm/bay1/state" {
		t.Errorf("state topic: got %s", got.State)
	}
	if got.Telemetry != "farm/bay1/telemetry" {
		t.Errorf("telemetry topic: got %s", got.Telemetry)
	}
	if got.System != "farm/bay1/system" {
		t.Errorf("system topic: got %s", got.System)
	}
	if def := NewTopics(""); def.State != "hydroponics/state" {
		t.Errorf("default prefix: got %s", def.State)
	}
}

func TestFormatStateExactJSON(t *testing.T) {
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	payload, err := FormatState("PUMP_PH_UP", at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := `{"state":{"timestamp":"2026-05-01T09:00:00Z","action":"PUMP_PH_UP"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatStateTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	payload, _ := FormatState("VALVE_FILL", time.Date(2026, 5, 1, 11, 0, 0, 0, loc))

	var parsed StatePayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.State.Timestamp != "2026-05-01T09:00:00Z" {
		t.Errorf("expected UTC timestamp, got %s", parsed.State.Timestamp)
	}
}

func TestTelemetryFromSnapshot(t *testing.T) {
	e, err := env.New(events.NewBus(), env.Defaults{})
	if err != nil {
		t.Fatal(err)
	}
	e.Set(env.Acidity, 6.2)
	e.Set(env.DissolvedSolids, 810)
	e.SetClimate(22.5, 60)

	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	tel := TelemetryFromSnapshot(e.Snapshot(), at)
	payload, err := FormatTelemetry(tel)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"timestamp":"2026-05-01T09:00:00Z","initialized":false,"elapsedDays":0,` +
		`"tdsValue":810,"phValue":6.2,"temperature":22.5,"humidity":60,"tankLevel":null}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestTelemetryCycleFields(t *testing.T) {
	e, _ := env.New(events.NewBus(), env.Defaults{})
	if err := e.SetCycleStart(1767225600); err != nil {
		t.Fatal(err)
	}
	e.SetElapsedDays(9)

	tel := TelemetryFromSnapshot(e.Snapshot(), time.Now())
	if !tel.Initialized || tel.ElapsedDays != 9 {
		t.Errorf("cycle fields: got initialized=%v days=%d", tel.Initialized, tel.ElapsedDays)
	}
	if tel.Acidity != nil || tel.Level != nil {
		t.Error("unmeasured readings must be nil")
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC),
		Event:     "STARTUP",
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := `{"system":{"timestamp":"2026-02-03T10:00:00Z","event":"STARTUP"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestWillPayloadFormat(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"SHUTDOWN","reason":"MQTT_DISCONNECT"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"system":{"event":"HEARTBEAT"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "IGNORED", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("raw payload not returned verbatim: %s", payload)
	}
}

func TestFakePublisher(t *testing.T) {
	pub := NewFakePublisher()

	pub.PublishState("PUMP_TDS_A_B")
	pub.PublishTelemetry(Telemetry{ElapsedDays: 3})
	pub.PublishSystem(SystemEvent{Event: "STARTUP", Timestamp: time.Now()})

	if got := pub.States(); len(got) != 1 || got[0] != "PUMP_TDS_A_B" {
		t.Errorf("states: got %v", got)
	}
	if got := pub.Telemetry(); len(got) != 1 || got[0].ElapsedDays != 3 {
		t.Errorf("telemetry: got %v", got)
	}
	if got := pub.SystemEvents(); len(got) != 1 || got[0].Event != "STARTUP" {
		t.Errorf("system events: got %v", got)
	}
	if len(pub.SystemPayloads()) != 1 {
		t.Error("expected system payload to be recorded")
	}
}

func TestFakePublisherErrors(t *testing.T) {
	pub := NewFakePublisher()
	pub.StateError = errors.New("broker gone")
	pub.SystemError = errors.New("broker gone")

	if err := pub.PublishState("VALVE_DRAIN"); err == nil {
		t.Error("expected state error")
	}
	if err := pub.PublishSystem(SystemEvent{Event: "HEARTBEAT"}); err == nil {
		t.Error("expected system error")
	}
	if len(pub.States()) != 0 || len(pub.SystemEvents()) != 0 {
		t.Error("failed publishes must not be recorded")
	}
}

func TestFakePublisherReset(t *testing.T) {
	pub := NewFakePublisher()
	pub.PublishState("PUMP_PH_DOWN")
	pub.SetConnected(true)
	pub.Close()
	pub.StateError = errors.New("x")

	pub.Reset()

	if len(pub.States()) != 0 || pub.Closed() || pub.IsConnected() || pub.StateError != nil {
		t.Error("reset did not clear state")
	}
	if err := pub.PublishState("PUMP_PH_UP"); err != nil {
		t.Errorf("publisher not reusable after reset: %v", err)
	}
}

func TestFakePublisherConcurrent(t *testing.T) {
	pub := NewFakePublisher()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pub.PublishState("PUMP_PH_UP")
		}()
	}
	wg.Wait()
	if got := len(pub.States()); got != 20 {
		t.Errorf("states: got %d, want 20", got)
	}
}
