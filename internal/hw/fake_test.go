package hw

import (
	"errors"
	"math"
	"testing"
)

func TestFakeAnalogRead(t *testing.T) {
	f := NewFakeAnalog(100, 200, 300)

	for i, want := range []int{100, 200, 300, 300} {
		got, err := f.Read()
		if err != nil {
			t.Fatalf("read %d: unexpected error: %v", i, err)
		}
		if got != want {
			t.Errorf("read %d: got %d, want %d", i, got, want)
		}
	}
	if f.Reads != 4 {
		t.Errorf("Reads: got %d, want 4", f.Reads)
	}
}

func TestFakeAnalogNoSamples(t *testing.T) {
	f := NewFakeAnalog()
	if _, err := f.Read(); err == nil {
		t.Error("expected error with no samples")
	}
}

func TestFakeAnalogError(t *testing.T) {
	f := NewFakeAnalog(1)
	f.ReadError = errors.New("simulated error")
	_, err := f.Read()
	if err == nil || err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeAnalogSetSamples(t *testing.T) {
	f := NewFakeAnalog(1, 2)
	f.Read()
	f.SetSamples(7)
	if got, _ := f.Read(); got != 7 {
		t.Errorf("after SetSamples: got %d, want 7", got)
	}
}

func TestFakeOutput(t *testing.T) {
	o := NewFakeOutput("pump")
	if o.On() {
		t.Error("should start off")
	}
	if o.Name() != "pump" {
		t.Errorf("Name: got %q", o.Name())
	}

	o.Write(true)
	o.Write(true)
	o.Write(false)
	o.Write(true)

	if !o.On() {
		t.Error("expected on after last write")
	}
	if got := o.Activations(); got != 2 {
		t.Errorf("Activations: got %d, want 2", got)
	}
	if got := len(o.Writes()); got != 4 {
		t.Errorf("Writes: got %d, want 4", got)
	}
}

func TestFakeOutputError(t *testing.T) {
	o := NewFakeOutput("valve")
	o.WriteError = errors.New("stuck")
	if err := o.Write(true); err == nil {
		t.Error("expected write error")
	}
	if o.On() {
		t.Error("failed write must not change state")
	}
}

func TestFakeDistance(t *testing.T) {
	f := NewFakeDistance(8, 9, 10)
	f.Errors = []error{nil, errors.New("timeout")}

	if d, err := f.Measure(); err != nil || d != 8 {
		t.Errorf("first: got %v, %v", d, err)
	}
	if _, err := f.Measure(); err == nil {
		t.Error("second: expected error")
	}
	if d, _ := f.Measure(); d != 10 {
		t.Errorf("third: got %v, want 10", d)
	}
	if d, _ := f.Measure(); d != 10 {
		t.Errorf("repeat: got %v, want 10", d)
	}

	f.Set(6)
	if d, _ := f.Measure(); d != 6 {
		t.Errorf("after Set: got %v, want 6", d)
	}
}

func TestEchoToDistance(t *testing.T) {
	// 1166 µs round trip is roughly 20 cm.
	got := EchoToDistance(1166)
	if math.Abs(got-20.0) > 0.05 {
		t.Errorf("got %.3f cm, want ~20", got)
	}
}
