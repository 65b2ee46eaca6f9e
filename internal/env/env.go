// Package env holds the shared environment state: the latest sensor readings,
// target bands and growth-cycle metadata every control loop reads and writes.
//
// Critical sections protect memory only. No method performs I/O or blocks
// while holding the lock; readiness bits are signalled after it is released.
package env

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/sweeney/hydroponics/internal/events"
)

var (
	// ErrInvalidBand is returned when a band has min > max or a non-finite bound.
	ErrInvalidBand = errors.New("env: invalid band")

	// ErrNoBand is returned for quantities that have no target band.
	ErrNoBand = errors.New("env: quantity has no target band")
)

// Quantity identifies a measured field of the environment.
type Quantity int

const (
	Temperature Quantity = iota
	Humidity
	Acidity
	DissolvedSolids
	WaterLevel

	numQuantities
)

// Quantities lists every measured quantity in display order.
var Quantities = []Quantity{Temperature, Humidity, Acidity, DissolvedSolids, WaterLevel}

func (q Quantity) String() string {
	switch q {
	case Temperature:
		return "temperature"
	case Humidity:
		return "humidity"
	case Acidity:
		return "acidity"
	case DissolvedSolids:
		return "dissolved_solids"
	case WaterLevel:
		return "water_level"
	default:
		return fmt.Sprintf("quantity(%d)", int(q))
	}
}

// Bit returns the readiness bit signalled when q changes.
func (q Quantity) Bit() events.Bits {
	switch q {
	case Temperature:
		return events.Temperature
	case Humidity:
		return events.Humidity
	case Acidity:
		return events.Acidity
	case DissolvedSolids:
		return events.DissolvedSolids
	case WaterLevel:
		return events.WaterLevel
	default:
		return 0
	}
}

// HasBand reports whether q carries a target band.
func (q Quantity) HasBand() bool {
	return q == Acidity || q == DissolvedSolids || q == WaterLevel
}

func (q Quantity) valid() bool {
	return q >= 0 && q < numQuantities
}

// Reading is a measured value plus whether it has ever been written.
type Reading struct {
	Value float64
	Valid bool
}

// Band is an inclusive [Min, Max] target range. A zero Band is unset.
type Band struct {
	Min float64
	Max float64
	Set bool
}

// NewBand validates and returns a band.
func NewBand(min, max float64) (Band, error) {
	if math.IsNaN(min) || math.IsNaN(max) || math.IsInf(min, 0) || math.IsInf(max, 0) {
		return Band{}, fmt.Errorf("%w: non-finite bound", ErrInvalidBand)
	}
	if min > max {
		return Band{}, fmt.Errorf("%w: min %.2f > max %.2f", ErrInvalidBand, min, max)
	}
	return Band{Min: min, Max: max, Set: true}, nil
}

// Contains reports whether v lies inside the band. An unset band contains nothing.
func (b Band) Contains(v float64) bool {
	return b.Set && v >= b.Min && v <= b.Max
}

// Cycle is the growth-cycle metadata.
type Cycle struct {
	Initialized bool
	StartTime   int64 // epoch seconds
	ElapsedDays int
}

// Defaults are the bands and trims applied at construction.
type Defaults struct {
	AcidityBand    Band
	WaterLevelBand Band
	AcidityOffset  float64
}

// Snapshot is a point-in-time copy of the environment.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Readings      [numQuantities]Reading
	Bands         [numQuantities]Band
	AcidityOffset float64
	Cycle         Cycle
	Bits          events.Bits
}

// Reading returns the snapshot's reading for q.
func (s Snapshot) Reading(q Quantity) Reading {
	if !q.valid() {
		return Reading{}
	}
	return s.Readings[q]
}

// Band returns the snapshot's band for q.
func (s Snapshot) Band(q Quantity) Band {
	if !q.valid() {
		return Band{}
	}
	return s.Bands[q]
}

// Environment is the single shared state instance.
type Environment struct {
	bus *events.Bus

	mu            sync.RWMutex
	readings      [numQuantities]Reading
	bands         [numQuantities]Band
	acidityOffset float64
	cycle         Cycle
}

// New creates an environment bound to bus. Every reading starts unset.
func New(bus *events.Bus, d Defaults) (*Environment, error) {
	if bus == nil {
		return nil, errors.New("env: nil event bus")
	}
	e := &Environment{bus: bus, acidityOffset: d.AcidityOffset}
	if d.AcidityBand.Set {
		if _, err := NewBand(d.AcidityBand.Min, d.AcidityBand.Max); err != nil {
			return nil, fmt.Errorf("acidity default: %w", err)
		}
		e.bands[Acidity] = d.AcidityBand
	}
	if d.WaterLevelBand.Set {
		if _, err := NewBand(d.WaterLevelBand.Min, d.WaterLevelBand.Max); err != nil {
			return nil, fmt.Errorf("water level default: %w", err)
		}
		e.bands[WaterLevel] = d.WaterLevelBand
	}
	return e, nil
}

// Bus returns the readiness bus the environment signals on.
func (e *Environment) Bus() *events.Bus {
	return e.bus
}

// Get returns the last written value of q and whether it has been written.
func (e *Environment) Get(q Quantity) (float64, bool) {
	if !q.valid() {
		return 0, false
	}
	e.mu.RLock()
	r := e.readings[q]
	e.mu.RUnlock()
	return r.Value, r.Valid
}

// Set stores v for q and signals q's readiness bit only if the value changed.
// NaN is rejected as a measurement failure and leaves the old value in place.
func (e *Environment) Set(q Quantity, v float64) bool {
	if !q.valid() || math.IsNaN(v) {
		return false
	}
	e.mu.Lock()
	changed := e.assign(q, v)
	e.mu.Unlock()
	if changed {
		e.bus.Signal(q.Bit())
	}
	return changed
}

// SetClimate stores temperature and humidity in one critical section and
// signals the bits of the fields that changed.
func (e *Environment) SetClimate(temperature, humidity float64) {
	var bits events.Bits
	e.mu.Lock()
	if !math.IsNaN(temperature) && e.assign(Temperature, temperature) {
		bits |= events.Temperature
	}
	if !math.IsNaN(humidity) && e.assign(Humidity, humidity) {
		bits |= events.Humidity
	}
	e.mu.Unlock()
	if bits != 0 {
		e.bus.Signal(bits)
	}
}

// assign must be called with mu held.
func (e *Environment) assign(q Quantity, v float64) bool {
	r := e.readings[q]
	if r.Valid && r.Value == v {
		return false
	}
	e.readings[q] = Reading{Value: v, Valid: true}
	return true
}

// Band returns the current target band of q.
func (e *Environment) Band(q Quantity) Band {
	if !q.valid() {
		return Band{}
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bands[q]
}

// SetBand replaces both bounds of q's band atomically. Readers never observe
// a min from one update paired with a max from another. events.Band is
// signalled once, and only if the band changed; the reading bits are left
// alone.
func (e *Environment) SetBand(q Quantity, min, max float64) error {
	if !q.valid() || !q.HasBand() {
		return fmt.Errorf("%w: %s", ErrNoBand, q)
	}
	b, err := NewBand(min, max)
	if err != nil {
		return fmt.Errorf("%s: %w", q, err)
	}
	e.mu.Lock()
	changed := e.bands[q] != b
	e.bands[q] = b
	e.mu.Unlock()
	if changed {
		e.bus.Signal(events.Band)
	}
	return nil
}

// InBand returns q's reading, its band and whether the reading is valid and
// inside the band, all observed under one read lock.
func (e *Environment) InBand(q Quantity) (Reading, Band, bool) {
	if !q.valid() {
		return Reading{}, Band{}, false
	}
	e.mu.RLock()
	r, b := e.readings[q], e.bands[q]
	e.mu.RUnlock()
	return r, b, r.Valid && b.Contains(r.Value)
}

// AcidityOffset returns the operator calibration trim added to acidity readings.
func (e *Environment) AcidityOffset() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.acidityOffset
}

// SetAcidityOffset replaces the operator calibration trim.
func (e *Environment) SetAcidityOffset(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return errors.New("env: non-finite acidity offset")
	}
	e.mu.Lock()
	e.acidityOffset = v
	e.mu.Unlock()
	return nil
}

// Cycle returns the growth-cycle metadata.
func (e *Environment) Cycle() Cycle {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cycle
}

// SetCycleStart applies a cycle start time and marks the cycle initialized.
// Initialized never reverts. The cycle bit is signalled only on change.
func (e *Environment) SetCycleStart(start int64) error {
	if start <= 0 {
		return fmt.Errorf("env: invalid cycle start %d", start)
	}
	e.mu.Lock()
	changed := !e.cycle.Initialized || e.cycle.StartTime != start
	e.cycle.StartTime = start
	e.cycle.Initialized = true
	e.mu.Unlock()
	if changed {
		e.bus.Signal(events.Cycle)
	}
	return nil
}

// SetElapsedDays records the scheduler's latest elapsed-day computation.
func (e *Environment) SetElapsedDays(days int) {
	e.mu.Lock()
	e.cycle.ElapsedDays = days
	e.mu.Unlock()
}

// SetFlag sets or clears readiness bits that carry no value, such as network
// or time availability.
func (e *Environment) SetFlag(bits events.Bits, on bool) {
	e.bus.Set(bits, on)
}

// Snapshot returns a consistent copy of the whole environment.
func (e *Environment) Snapshot() Snapshot {
	e.mu.RLock()
	s := Snapshot{
		Readings:      e.readings,
		Bands:         e.bands,
		AcidityOffset: e.acidityOffset,
		Cycle:         e.cycle,
	}
	e.mu.RUnlock()
	s.Bits = e.bus.Bits()
	return s
}
