package hw

import (
	"errors"
	"sync"
)

// FakeAnalog is a test double that returns scripted ADC samples.
type FakeAnalog struct {
	mu sync.Mutex

	// Samples contains scripted raw values to return.
	// Each call to Read() consumes the next sample.
	Samples []int

	index int

	// Reads counts calls to Read.
	Reads int

	// ReadError, if set, will be returned by Read().
	ReadError error
}

// NewFakeAnalog creates a FakeAnalog with the given samples.
func NewFakeAnalog(samples ...int) *FakeAnalog {
	return &FakeAnalog{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeAnalog) Read() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reads++
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	if len(f.Samples) == 0 {
		return 0, errors.New("no samples configured")
	}
	s := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return s, nil
}

// SetSamples replaces the scripted samples and rewinds.
func (f *FakeAnalog) SetSamples(samples ...int) {
	f.mu.Lock()
	f.Samples = samples
	f.index = 0
	f.mu.Unlock()
}

// FakeOutput records every write for test assertions. It is safe for use
// from the timer goroutines that turn pumps off.
type FakeOutput struct {
	name string

	mu     sync.Mutex
	on     bool
	writes []bool

	// WriteError, if set, will be returned by Write.
	WriteError error
}

// NewFakeOutput creates an output that starts off.
func NewFakeOutput(name string) *FakeOutput {
	return &FakeOutput{name: name}
}

// Write records the level.
func (f *FakeOutput) Write(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	f.on = on
	f.writes = append(f.writes, on)
	return nil
}

// Name returns the output's label.
func (f *FakeOutput) Name() string {
	return f.name
}

// On reports the last written level.
func (f *FakeOutput) On() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.on
}

// Writes returns a copy of every level written so far.
func (f *FakeOutput) Writes() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.writes...)
}

// Activations counts off-to-on writes.
func (f *FakeOutput) Activations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	prev := false
	for _, w := range f.writes {
		if w && !prev {
			n++
		}
		prev = w
	}
	return n
}

// FakeDistance returns scripted distances; a nil error entry means success.
type FakeDistance struct {
	mu sync.Mutex

	Distances []float64
	Errors    []error
	index     int
}

// NewFakeDistance creates a sensor returning the given distances in order.
func NewFakeDistance(distances ...float64) *FakeDistance {
	return &FakeDistance{Distances: distances}
}

// Measure returns the next scripted distance, repeating the last one.
func (f *FakeDistance) Measure() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Distances) == 0 {
		return 0, errors.New("no distances configured")
	}
	i := f.index
	if f.index < len(f.Distances)-1 {
		f.index++
	}
	if i < len(f.Errors) && f.Errors[i] != nil {
		return 0, f.Errors[i]
	}
	return f.Distances[i], nil
}

// Set replaces the scripted distances with a single value.
func (f *FakeDistance) Set(d float64) {
	f.mu.Lock()
	f.Distances = []float64{d}
	f.Errors = nil
	f.index = 0
	f.mu.Unlock()
}

// FakeClimate returns a fixed temperature and humidity.
type FakeClimate struct {
	Temperature float64
	Humidity    float64
	Err         error
}

// Sense returns the configured values.
func (f *FakeClimate) Sense() (float64, float64, error) {
	if f.Err != nil {
		return 0, 0, f.Err
	}
	return f.Temperature, f.Humidity, nil
}
