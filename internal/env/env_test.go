package env

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/sweeney/hydroponics/internal/events"
)

func newTestEnv(t *testing.T) (*Environment, *events.Bus) {
	t.Helper()
	bus := events.NewBus()
	e, err := New(bus, Defaults{
		AcidityBand:    Band{Min: 5.5, Max: 6.5, Set: true},
		WaterLevelBand: Band{Min: 20, Max: 24, Set: true},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e, bus
}

func TestNewRejectsNilBus(t *testing.T) {
	if _, err := New(nil, Defaults{}); err == nil {
		t.Error("expected error for nil bus")
	}
}

func TestNewRejectsInvertedDefault(t *testing.T) {
	_, err := New(events.NewBus(), Defaults{AcidityBand: Band{Min: 7, Max: 6, Set: true}})
	if !errors.Is(err, ErrInvalidBand) {
		t.Errorf("got %v, want ErrInvalidBand", err)
	}
}

func TestFreshStateIsUnset(t *testing.T) {
	e, _ := newTestEnv(t)
	for _, q := range Quantities {
		if _, ok := e.Get(q); ok {
			t.Errorf("%s: expected unset", q)
		}
	}
	if e.Band(DissolvedSolids).Set {
		t.Error("dissolved solids band should start unset")
	}
	if b := e.Band(Acidity); b.Min != 5.5 || b.Max != 6.5 {
		t.Errorf("acidity band: got %+v", b)
	}
	if b := e.Band(WaterLevel); b.Min != 20 || b.Max != 24 {
		t.Errorf("water level band: got %+v", b)
	}
}

func TestZeroIsDistinguishableFromUnset(t *testing.T) {
	e, _ := newTestEnv(t)
	e.Set(WaterLevel, 0)
	v, ok := e.Get(WaterLevel)
	if !ok {
		t.Fatal("expected zero reading to be valid")
	}
	if v != 0 {
		t.Errorf("got %v, want 0", v)
	}
}

func TestSetSignalsOnlyOnChange(t *testing.T) {
	e, bus := newTestEnv(t)

	if !e.Set(Acidity, 6.1) {
		t.Error("first write should report a change")
	}
	if !bus.Bits().Has(events.Acidity) {
		t.Fatal("expected acidity bit after first write")
	}

	bus.Clear(events.Acidity)
	if e.Set(Acidity, 6.1) {
		t.Error("same value should not report a change")
	}
	if bus.Bits().Has(events.Acidity) {
		t.Error("same value must not re-signal")
	}

	e.Set(Acidity, 6.2)
	if !bus.Bits().Has(events.Acidity) {
		t.Error("new value should signal")
	}
}

func TestSetRejectsNaN(t *testing.T) {
	e, _ := newTestEnv(t)
	e.Set(WaterLevel, 22)
	if e.Set(WaterLevel, math.NaN()) {
		t.Error("NaN should be rejected")
	}
	if v, _ := e.Get(WaterLevel); v != 22 {
		t.Errorf("last valid value lost: got %v", v)
	}
}

func TestSetClimate(t *testing.T) {
	e, bus := newTestEnv(t)
	e.SetClimate(24.5, 60)
	if !bus.Bits().Has(events.Temperature | events.Humidity) {
		t.Errorf("bits: got %v", bus.Bits())
	}

	bus.Clear(events.Temperature | events.Humidity)
	e.SetClimate(24.5, 61)
	if bus.Bits().Has(events.Temperature) {
		t.Error("unchanged temperature should not signal")
	}
	if !bus.Bits().Has(events.Humidity) {
		t.Error("changed humidity should signal")
	}
}

func TestSetBand(t *testing.T) {
	e, bus := newTestEnv(t)

	if err := e.SetBand(DissolvedSolids, 575, 625); err != nil {
		t.Fatalf("SetBand: %v", err)
	}
	b := e.Band(DissolvedSolids)
	if !b.Set || b.Min != 575 || b.Max != 625 {
		t.Errorf("band: got %+v", b)
	}
	if !bus.Bits().Has(events.Band) {
		t.Error("expected band change to signal")
	}
	if bus.Bits().Has(events.DissolvedSolids) {
		t.Error("band change must not mark the reading as updated")
	}

	bus.Clear(events.Band)
	if err := e.SetBand(DissolvedSolids, 575, 625); err != nil {
		t.Fatalf("SetBand: %v", err)
	}
	if bus.Bits().Has(events.Band) {
		t.Error("identical band must not re-signal")
	}
}

func TestWaterLevelBandDoesNotMarkMeasured(t *testing.T) {
	e, bus := newTestEnv(t)

	if err := e.SetBand(WaterLevel, 18, 26); err != nil {
		t.Fatalf("SetBand: %v", err)
	}
	if bus.Bits().Has(events.WaterLevel) {
		t.Errorf("water level bit set without a measurement: %v", bus.Bits())
	}
	if _, ok := e.Get(WaterLevel); ok {
		t.Error("water level should still be unset")
	}
}

func TestSetBandValidation(t *testing.T) {
	e, _ := newTestEnv(t)

	if err := e.SetBand(DissolvedSolids, 700, 600); !errors.Is(err, ErrInvalidBand) {
		t.Errorf("inverted band: got %v, want ErrInvalidBand", err)
	}
	if err := e.SetBand(Temperature, 1, 2); !errors.Is(err, ErrNoBand) {
		t.Errorf("temperature band: got %v, want ErrNoBand", err)
	}
	if err := e.SetBand(Acidity, math.NaN(), 7); !errors.Is(err, ErrInvalidBand) {
		t.Errorf("NaN band: got %v, want ErrInvalidBand", err)
	}
	if b := e.Band(Acidity); b.Min != 5.5 || b.Max != 6.5 {
		t.Errorf("rejected update changed band: %+v", b)
	}
}

// Concurrent writers alternate between two disjoint bands; readers must
// never see a min from one and a max from the other.
func TestBandAtomicity(t *testing.T) {
	e, _ := newTestEnv(t)
	if err := e.SetBand(DissolvedSolids, 575, 625); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 2000; i++ {
				if (i+w)%2 == 0 {
					e.SetBand(DissolvedSolids, 875, 925)
				} else {
					e.SetBand(DissolvedSolids, 575, 625)
				}
			}
		}(w)
	}

	var readers sync.WaitGroup
	for r := 0; r < 4; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				b := e.Band(DissolvedSolids)
				if b.Min > b.Max {
					t.Errorf("torn band: %+v", b)
					return
				}
				if b.Min == 575 && b.Max != 625 || b.Min == 875 && b.Max != 925 {
					t.Errorf("mixed band: %+v", b)
					return
				}
			}
		}()
	}

	wg.Wait()
	close(stop)
	readers.Wait()
}

func TestInBand(t *testing.T) {
	e, _ := newTestEnv(t)

	if _, _, ok := e.InBand(WaterLevel); ok {
		t.Error("unset reading cannot be in band")
	}
	e.Set(WaterLevel, 20)
	if _, _, ok := e.InBand(WaterLevel); !ok {
		t.Error("lower bound is inclusive")
	}
	e.Set(WaterLevel, 24)
	if _, _, ok := e.InBand(WaterLevel); !ok {
		t.Error("upper bound is inclusive")
	}
	e.Set(WaterLevel, 25)
	r, b, ok := e.InBand(WaterLevel)
	if ok {
		t.Error("25 is outside 20..24")
	}
	if r.Value != 25 || b.Max != 24 {
		t.Errorf("got reading %+v band %+v", r, b)
	}
}

func TestCycleStartMonotonic(t *testing.T) {
	e, bus := newTestEnv(t)

	if e.Cycle().Initialized {
		t.Fatal("cycle should start uninitialized")
	}
	if err := e.SetCycleStart(0); err == nil {
		t.Error("expected error for zero start time")
	}
	if e.Cycle().Initialized {
		t.Error("invalid start must not initialize the cycle")
	}

	if err := e.SetCycleStart(1700000000); err != nil {
		t.Fatalf("SetCycleStart: %v", err)
	}
	if !bus.Bits().Has(events.Cycle) {
		t.Error("expected cycle bit")
	}

	bus.Clear(events.Cycle)
	e.SetCycleStart(1700000000)
	if bus.Bits().Has(events.Cycle) {
		t.Error("same start time must not re-signal")
	}

	e.SetCycleStart(-5)
	c := e.Cycle()
	if !c.Initialized || c.StartTime != 1700000000 {
		t.Errorf("cycle: got %+v", c)
	}
}

func TestAcidityOffset(t *testing.T) {
	e, _ := newTestEnv(t)
	if err := e.SetAcidityOffset(0.15); err != nil {
		t.Fatal(err)
	}
	if got := e.AcidityOffset(); got != 0.15 {
		t.Errorf("got %v, want 0.15", got)
	}
	if err := e.SetAcidityOffset(math.Inf(1)); err == nil {
		t.Error("expected error for infinite offset")
	}
}

func TestSnapshot(t *testing.T) {
	e, _ := newTestEnv(t)
	e.Set(Acidity, 6.0)
	e.SetBand(DissolvedSolids, 675, 725)
	e.SetCycleStart(1700000000)
	e.SetElapsedDays(9)
	e.SetFlag(events.Time, true)

	s := e.Snapshot()
	if r := s.Reading(Acidity); !r.Valid || r.Value != 6.0 {
		t.Errorf("acidity: got %+v", r)
	}
	if s.Reading(Temperature).Valid {
		t.Error("temperature should be unset in snapshot")
	}
	if b := s.Band(DissolvedSolids); b.Min != 675 || b.Max != 725 {
		t.Errorf("band: got %+v", b)
	}
	if s.Cycle.ElapsedDays != 9 {
		t.Errorf("elapsed days: got %d, want 9", s.Cycle.ElapsedDays)
	}
	if !s.Bits.Has(events.Time | events.Cycle | events.Acidity) {
		t.Errorf("bits: got %v", s.Bits)
	}
}
