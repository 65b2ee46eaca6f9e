// Package cycle schedules the growth cycle: it recovers the persisted cycle
// start, ramps the dissolved-solids band by elapsed days and switches the
// grow light by hour of day.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/sweeney/hydroponics/internal/env"
	"github.com/sweeney/hydroponics/internal/events"
	"github.com/sweeney/hydroponics/internal/hw"
)

// StartKey is the store key holding the cycle start in epoch seconds.
const StartKey = "cycle_start_tm"

// SecondsPerDay is the length of one cycle day.
const SecondsPerDay = 86400

// ErrNoStore is returned when the scheduler is built without a store.
var ErrNoStore = errors.New("cycle: nil store")

// Store persists the cycle start across restarts. A missing key is not an error.
type Store interface {
	GetInt64(key string) (int64, bool, error)
	SetInt64(key string, value int64) error
}

// Step is one row of the ramp table; it applies from Day until the next row.
type Step struct {
	Day int
	Min float64
	Max float64
}

// Config is the scheduler's ramp table and light window.
type Config struct {
	Ramp         []Step
	LightOnHour  int
	LightOffHour int
}

// Scheduler owns the light output and the dissolved-solids band.
type Scheduler struct {
	env   *env.Environment
	store Store
	light hw.Output
	cfg   Config
	now   func() time.Time
	log   *slog.Logger

	// mu serializes Step between Run and operator-triggered Start.
	mu         sync.Mutex
	lightOn    bool
	lightKnown bool
}

// New validates the ramp table and builds a scheduler.
func New(e *env.Environment, store Store, light hw.Output, cfg Config, now func() time.Time, logger *slog.Logger) (*Scheduler, error) {
	if e == nil {
		return nil, errors.New("cycle: nil environment")
	}
	if store == nil {
		return nil, ErrNoStore
	}
	if light == nil {
		return nil, errors.New("cycle: nil light output")
	}
	if len(cfg.Ramp) == 0 || cfg.Ramp[0].Day != 0 {
		return nil, errors.New("cycle: ramp must start at day 0")
	}
	for i, s := range cfg.Ramp {
		if _, err := env.NewBand(s.Min, s.Max); err != nil {
			return nil, fmt.Errorf("cycle: ramp day %d: %w", s.Day, err)
		}
		if i > 0 && s.Day <= cfg.Ramp[i-1].Day {
			return nil, fmt.Errorf("cycle: ramp day %d not ascending", s.Day)
		}
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scheduler{
		env:   e,
		store: store,
		light: light,
		cfg:   cfg,
		now:   now,
		log:   logger.With("component", "cycle"),
	}, nil
}

// Init applies the persisted cycle start, if any. Calling it again with the
// same persisted value changes nothing.
func (s *Scheduler) Init() error {
	start, ok, err := s.store.GetInt64(StartKey)
	if err != nil {
		return fmt.Errorf("read %s: %w", StartKey, err)
	}
	if !ok || start <= 0 {
		s.log.Info("no cycle in progress")
		return nil
	}
	if err := s.env.SetCycleStart(start); err != nil {
		return err
	}
	s.log.Info("cycle recovered", "start", time.Unix(start, 0).UTC().Format(time.RFC3339))
	return nil
}

// Start records now as the start of a new cycle, applies it and recomputes
// the band immediately.
func (s *Scheduler) Start() (int64, error) {
	start := s.now().Unix()
	if err := s.store.SetInt64(StartKey, start); err != nil {
		return 0, fmt.Errorf("write %s: %w", StartKey, err)
	}
	if err := s.env.SetCycleStart(start); err != nil {
		return 0, err
	}
	s.log.Info("cycle started", "start", time.Unix(start, 0).UTC().Format(time.RFC3339))
	s.Step()
	return start, nil
}

// ElapsedDays is floor((now-start)/86400), never negative.
func ElapsedDays(start, now int64) int {
	if now <= start {
		return 0
	}
	return int((now - start) / SecondsPerDay)
}

// BandForDay returns the last ramp row whose Day is at or before day.
func BandForDay(ramp []Step, day int) Step {
	band := ramp[0]
	for _, s := range ramp {
		if day >= s.Day {
			band = s
		}
	}
	return band
}

// LightOn reports whether hour lies in [onHour, offHour).
func LightOn(hour, onHour, offHour int) bool {
	return hour >= onHour && hour < offHour
}

// Step recomputes elapsed days, the dissolved-solids band and the light.
func (s *Scheduler) Step() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.updateLight(now)

	c := s.env.Cycle()
	if !c.Initialized {
		s.log.Debug("cycle not initialized")
		return
	}
	days := ElapsedDays(c.StartTime, now.Unix())
	s.env.SetElapsedDays(days)

	step := BandForDay(s.cfg.Ramp, days)
	current := s.env.Band(env.DissolvedSolids)
	if current.Set && current.Min == step.Min && current.Max == step.Max {
		return
	}
	if err := s.env.SetBand(env.DissolvedSolids, step.Min, step.Max); err != nil {
		s.log.Error("set band", "err", err)
		return
	}
	s.log.Info("dissolved solids band", "day", days, "min", step.Min, "max", step.Max)
}

func (s *Scheduler) updateLight(now time.Time) {
	on := LightOn(now.Hour(), s.cfg.LightOnHour, s.cfg.LightOffHour)
	if s.lightKnown && s.lightOn == on {
		return
	}
	if err := s.light.Write(on); err != nil {
		s.log.Error("light write failed", "err", err)
		return
	}
	s.lightOn, s.lightKnown = on, true
	s.log.Info("grow light", "on", on, "hour", now.Hour())
}

// Run waits until the clock is synchronized and a cycle is running, steps
// once, then steps on every tick until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, tick <-chan time.Time) error {
	s.log.Info("waiting for time and cycle")
	if _, ok := s.env.Bus().WaitContext(ctx, events.Time|events.Cycle, true); !ok {
		return nil
	}
	s.Step()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			s.Step()
		}
	}
}

// Off switches the light off.
func (s *Scheduler) Off() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lightKnown = false
	return s.light.Write(false)
}
