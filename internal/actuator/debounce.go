// Package actuator implements the debounce/cooldown state machine that
// arbitrates pump and valve activation:
//
//	Idle --Activate--> Active --duration fires--> Cooldown --cooldown fires--> Idle
//
// The duration and cooldown timers are both armed at activation, so the
// cooldown overlaps the active time. Activate calls while not Idle are no-ops.
package actuator

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/sweeney/hydroponics/internal/events"
	"github.com/sweeney/hydroponics/internal/hw"
)

// ErrNoOutputs is returned when an action drives no outputs.
var ErrNoOutputs = errors.New("actuator: action has no outputs")

// Phase is the debounce state.
type Phase int

const (
	Idle Phase = iota
	Active
	Cooldown
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "IDLE"
	case Active:
		return "ACTIVE"
	case Cooldown:
		return "COOLDOWN"
	default:
		return "UNKNOWN"
	}
}

// Action is one way of firing a group, e.g. the acid-up pump of the acidity pair.
type Action struct {
	Label   string // telemetry label, e.g. "PUMP_PH_UP"
	Outputs []hw.Output
	Bit     events.Bits // activity bit held while the outputs are on
}

// Publisher receives a label on every activation. Failures are logged only.
type Publisher interface {
	PublishState(label string) error
}

// Journal persists activations.
type Journal interface {
	RecordActivation(group, label string, at time.Time) error
}

// Observer is notified of activations and phase changes (metrics).
type Observer interface {
	Activated(group, label string)
	PhaseChanged(group string, phase Phase)
}

// Config names a group and its timings.
type Config struct {
	Name string
	// Duration is how long the outputs stay on.
	Duration time.Duration
	// Cooldown is the quiet period enforced after the outputs turn off.
	Cooldown time.Duration
}

// Deps are the collaborators of a Debouncer. Only Timers is required.
type Deps struct {
	Timers    TimerFactory
	Publisher Publisher
	Bus       *events.Bus
	Journal   Journal
	Observer  Observer
	Logger    *slog.Logger
	Now       func() time.Time
}

// Status is a point-in-time view of a Debouncer.
type Status struct {
	Name           string
	Phase          Phase
	Label          string // label of the action currently on; empty unless Active
	Activations    int
	LastLabel      string
	LastActivation time.Time
}

// Debouncer is one actuation group. Its phase is mutated by the owning loop
// (Activate, Release) and by the timer callbacks, always under mu. Output
// writes happen outside mu.
type Debouncer struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	durationTimer Timer
	cooldownTimer Timer

	mu     sync.Mutex
	phase  Phase
	active *Action
	// offPending is set from leaving Active until the outputs are written off.
	// A cooldown that fires before then (zero or very short cooldown) sets
	// cooldownDue and the group goes Idle once the outputs are off.
	offPending     bool
	cooldownDue    bool
	activations    int
	lastLabel      string
	lastActivation time.Time
}

// New creates a Debouncer. Its two timers are created here and reused for
// the life of the process.
func New(cfg Config, deps Deps) (*Debouncer, error) {
	if deps.Timers == nil {
		return nil, errors.New("actuator: nil timer factory")
	}
	if cfg.Name == "" {
		return nil, errors.New("actuator: empty group name")
	}
	if cfg.Duration <= 0 {
		return nil, fmt.Errorf("actuator %s: duration must be positive", cfg.Name)
	}
	if cfg.Cooldown < 0 {
		return nil, fmt.Errorf("actuator %s: negative cooldown", cfg.Name)
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	d := &Debouncer{
		cfg:  cfg,
		deps: deps,
		log:  deps.Logger.With("component", "actuator", "group", cfg.Name),
	}
	d.durationTimer = deps.Timers.NewTimer(cfg.Name+"_duration", d.durationExpired)
	d.cooldownTimer = deps.Timers.NewTimer(cfg.Name+"_cooldown", d.cooldownExpired)
	return d, nil
}

// Name returns the group name.
func (d *Debouncer) Name() string {
	return d.cfg.Name
}

// Phase returns the current phase.
func (d *Debouncer) Phase() Phase {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phase
}

// Status returns a snapshot of the group.
func (d *Debouncer) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Status{
		Name:           d.cfg.Name,
		Phase:          d.phase,
		Activations:    d.activations,
		LastLabel:      d.lastLabel,
		LastActivation: d.lastActivation,
	}
	if d.phase == Active && d.active != nil {
		s.Label = d.active.Label
	}
	return s
}

// Activate fires the action if the group is Idle. It reports whether the
// action fired; a call while Active or Cooldown is dropped without error.
func (d *Debouncer) Activate(a Action) (bool, error) {
	if len(a.Outputs) == 0 {
		return false, ErrNoOutputs
	}

	d.mu.Lock()
	if d.phase != Idle {
		d.mu.Unlock()
		return false, nil
	}
	// Reserve the group before touching hardware.
	d.phase = Active
	d.active = &a
	d.cooldownDue = false
	d.mu.Unlock()

	for i, out := range a.Outputs {
		if err := out.Write(true); err != nil {
			for _, prev := range a.Outputs[:i] {
				prev.Write(false)
			}
			d.mu.Lock()
			d.phase = Idle
			d.active = nil
			d.mu.Unlock()
			return false, fmt.Errorf("activate %s: %w", a.Label, err)
		}
	}

	now := d.deps.Now()
	d.mu.Lock()
	d.activations++
	d.lastLabel = a.Label
	d.lastActivation = now
	d.durationTimer.Start(d.cfg.Duration)
	d.cooldownTimer.Start(d.cfg.Duration + d.cfg.Cooldown)
	d.mu.Unlock()

	d.log.Info("actuator on", "action", a.Label, "duration", d.cfg.Duration, "cooldown", d.cfg.Cooldown)
	if d.deps.Bus != nil && a.Bit != 0 {
		d.deps.Bus.Signal(a.Bit)
	}
	if d.deps.Observer != nil {
		d.deps.Observer.Activated(d.cfg.Name, a.Label)
		d.deps.Observer.PhaseChanged(d.cfg.Name, Active)
	}
	if d.deps.Publisher != nil {
		if err := d.deps.Publisher.PublishState(a.Label); err != nil {
			d.log.Warn("publish state failed", "action", a.Label, "err", err)
		}
	}
	if d.deps.Journal != nil {
		if err := d.deps.Journal.RecordActivation(d.cfg.Name, a.Label, now); err != nil {
			d.log.Warn("journal write failed", "action", a.Label, "err", err)
		}
	}
	return true, nil
}

// Release turns the outputs off early if the group is Active. The group
// still waits out its cooldown before it can fire again.
func (d *Debouncer) Release() bool {
	d.mu.Lock()
	if d.phase != Active {
		d.mu.Unlock()
		return false
	}
	d.durationTimer.Stop()
	a := d.leaveActive()
	d.mu.Unlock()

	d.switchOff(a, "released")
	return true
}

func (d *Debouncer) durationExpired() {
	d.mu.Lock()
	if d.phase != Active {
		d.mu.Unlock()
		return
	}
	a := d.leaveActive()
	d.mu.Unlock()

	d.switchOff(a, "duration elapsed")
}

// leaveActive must be called with mu held.
func (d *Debouncer) leaveActive() *Action {
	a := d.active
	d.active = nil
	d.phase = Cooldown
	d.offPending = true
	return a
}

// switchOff writes the outputs off, then completes a cooldown that came due
// in the meantime.
func (d *Debouncer) switchOff(a *Action, reason string) {
	defer d.finishOff()
	if a == nil {
		return
	}
	for _, out := range a.Outputs {
		if err := out.Write(false); err != nil {
			d.log.Error("output off failed", "output", out.Name(), "err", err)
		}
	}
	if d.deps.Bus != nil && a.Bit != 0 {
		d.deps.Bus.Clear(a.Bit)
	}
	if d.deps.Observer != nil {
		d.deps.Observer.PhaseChanged(d.cfg.Name, Cooldown)
	}
	d.log.Info("actuator off", "action", a.Label, "reason", reason)
}

func (d *Debouncer) finishOff() {
	d.mu.Lock()
	d.offPending = false
	due := d.cooldownDue && d.phase == Cooldown
	if due {
		d.cooldownDue = false
		d.phase = Idle
	}
	d.mu.Unlock()

	if due {
		d.ready()
	}
}

func (d *Debouncer) cooldownExpired() {
	d.mu.Lock()
	if d.phase == Active || d.offPending {
		d.cooldownDue = true
		d.mu.Unlock()
		return
	}
	if d.phase != Cooldown {
		d.mu.Unlock()
		return
	}
	d.phase = Idle
	d.mu.Unlock()
	d.ready()
}

func (d *Debouncer) ready() {
	if d.deps.Observer != nil {
		d.deps.Observer.PhaseChanged(d.cfg.Name, Idle)
	}
	d.log.Debug("actuator ready")
}
