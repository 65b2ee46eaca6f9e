package control

import (
	"sync"
	"testing"
	"time"

	"github.com/sweeney/hydroponics/internal/actuator"
	"github.com/sweeney/hydroponics/internal/env"
	"github.com/sweeney/hydroponics/internal/events"
	"github.com/sweeney/hydroponics/internal/hw"
)

// 4.096 V full scale over 32768 counts.
const testVoltsPerCount = 4.096 / 32768

// countsFor returns the raw count that reads as millivolts.
func countsFor(millivolts float64) int {
	return int(millivolts / (testVoltsPerCount * 1000))
}

var testStart = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) *env.Environment {
	t.Helper()
	acidity, _ := env.NewBand(5.5, 6.5)
	level, _ := env.NewBand(20, 24)
	e, err := env.New(events.NewBus(), env.Defaults{AcidityBand: acidity, WaterLevelBand: level})
	if err != nil {
		t.Fatalf("env.New: %v", err)
	}
	return e
}

type labelRecorder struct {
	mu     sync.Mutex
	labels []string
}

func (r *labelRecorder) PublishState(label string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.labels = append(r.labels, label)
	return nil
}

func (r *labelRecorder) Labels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.labels...)
}

func newTestDebouncer(t *testing.T, e *env.Environment, timers *actuator.FakeTimers, pub actuator.Publisher, name string, duration, cooldown time.Duration) *actuator.Debouncer {
	t.Helper()
	d, err := actuator.New(actuator.Config{Name: name, Duration: duration, Cooldown: cooldown}, actuator.Deps{
		Timers:    timers,
		Publisher: pub,
		Bus:       e.Bus(),
		Now:       timers.Now,
	})
	if err != nil {
		t.Fatalf("actuator.New: %v", err)
	}
	return d
}

func newTestSampler(t *testing.T, in hw.AnalogInput) *Sampler {
	t.Helper()
	s, err := NewSampler(in, 4, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSampler: %v", err)
	}
	s.Sleep = func(time.Duration) {}
	return s
}

type countingObserver struct {
	mu    sync.Mutex
	ticks map[Outcome]int
}

func (o *countingObserver) ObserveTick(loop string, outcome Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ticks == nil {
		o.ticks = make(map[Outcome]int)
	}
	o.ticks[outcome]++
}

func (o *countingObserver) total() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, c := range o.ticks {
		n += c
	}
	return n
}
