package mqtt

import "sync"

// FakePublisher records published messages for test assertions.
// Safe for concurrent use; actuators publish from timer goroutines.
type FakePublisher struct {
	mu sync.Mutex

	states         []string
	telemetry      []Telemetry
	systemEvents   []SystemEvent
	systemPayloads [][]byte
	closed         bool
	connected      bool

	// StateError, if set, is returned by PublishState.
	StateError error

	// TelemetryError, if set, is returned by PublishTelemetry.
	TelemetryError error

	// SystemError, if set, is returned by PublishSystem.
	SystemError error
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishState records the label.
func (f *FakePublisher) PublishState(label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StateError != nil {
		return f.StateError
	}
	f.states = append(f.states, label)
	return nil
}

// PublishTelemetry records the record.
func (f *FakePublisher) PublishTelemetry(t Telemetry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.TelemetryError != nil {
		return f.TelemetryError
	}
	f.telemetry = append(f.telemetry, t)
	return nil
}

// PublishSystem records the system event and its payload.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SystemError != nil {
		return f.SystemError
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.systemEvents = append(f.systemEvents, event)
	f.systemPayloads = append(f.systemPayloads, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// SetConnected controls the return value of IsConnected.
func (f *FakePublisher) SetConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// States returns a copy of the published labels.
func (f *FakePublisher) States() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.states...)
}

// Telemetry returns a copy of the published telemetry records.
func (f *FakePublisher) Telemetry() []Telemetry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Telemetry(nil), f.telemetry...)
}

// SystemEvents returns a copy of the published system events.
func (f *FakePublisher) SystemEvents() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SystemEvent(nil), f.systemEvents...)
}

// SystemPayloads returns a copy of the system payloads.
func (f *FakePublisher) SystemPayloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.systemPayloads...)
}

// Closed reports whether Close was called.
func (f *FakePublisher) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Reset clears recorded messages and injected errors.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = nil
	f.telemetry = nil
	f.systemEvents = nil
	f.systemPayloads = nil
	f.closed = false
	f.connected = false
	f.StateError = nil
	f.TelemetryError = nil
	f.SystemError = nil
}
