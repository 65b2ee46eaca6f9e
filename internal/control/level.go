package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sweeney/hydroponics/internal/actuator"
	"github.com/sweeney/hydroponics/internal/env"
	"github.com/sweeney/hydroponics/internal/events"
	"github.com/sweeney/hydroponics/internal/hw"
)

// Telemetry labels published when a valve opens.
const (
	LabelFill  = "VALVE_FILL"
	LabelDrain = "VALVE_DRAIN"
)

// LevelLoop keeps the reservoir level inside its band with a fill/drain
// valve pair and runs the distribution pump while the level is good.
type LevelLoop struct {
	env        *env.Environment
	sensor     hw.DistanceSensor
	tankHeight float64
	valves     *actuator.Debouncer
	fill       actuator.Action
	drain      actuator.Action
	mainPump   hw.Output
	pumpOn     bool
	pumpKnown  bool

	Observer Observer
	log      *slog.Logger
}

// LevelDeps are the collaborators of a LevelLoop.
type LevelDeps struct {
	Env         *env.Environment
	Sensor      hw.DistanceSensor
	TankHeight  float64
	Valves      *actuator.Debouncer
	Fill, Drain hw.Output
	MainPump    hw.Output
	Logger      *slog.Logger
}

// NewLevelLoop validates deps and builds the loop.
func NewLevelLoop(d LevelDeps) (*LevelLoop, error) {
	if d.Env == nil {
		return nil, errors.New("control: nil environment")
	}
	if d.Sensor == nil || d.Valves == nil || d.Fill == nil || d.Drain == nil || d.MainPump == nil {
		return nil, errors.New("control: level loop missing sensor, valves or outputs")
	}
	if d.TankHeight <= 0 {
		return nil, fmt.Errorf("control: tank height %v", d.TankHeight)
	}
	if d.Logger == nil {
		d.Logger = discardLogger()
	}
	return &LevelLoop{
		env:        d.Env,
		sensor:     d.Sensor,
		tankHeight: d.TankHeight,
		valves:     d.Valves,
		fill:       actuator.Action{Label: LabelFill, Outputs: []hw.Output{d.Fill}, Bit: events.Valve},
		drain:      actuator.Action{Label: LabelDrain, Outputs: []hw.Output{d.Drain}, Bit: events.Valve},
		mainPump:   d.MainPump,
		log:        d.Logger.With("component", "level"),
	}, nil
}

// Step runs one control period. A failed measurement leaves the last level
// and every output untouched.
func (l *LevelLoop) Step() (Outcome, error) {
	distance, err := l.sensor.Measure()
	if err != nil {
		return Failed, fmt.Errorf("level measure: %w", err)
	}
	level := l.tankHeight - distance
	if level < 0 {
		level = 0
	}
	l.env.Set(env.WaterLevel, level)
	l.log.Debug("reading", "distance", distance, "level", level)

	band := l.env.Band(env.WaterLevel)
	if !band.Set {
		return Deferred, nil
	}

	if band.Contains(level) {
		if l.valves.Release() {
			l.log.Info("level in band, valves closed", "level", level)
		}
		if err := l.setMainPump(true); err != nil {
			return Failed, err
		}
		return InBand, nil
	}

	if err := l.setMainPump(false); err != nil {
		return Failed, err
	}

	action, outcome := l.fill, Raised
	if level > band.Max {
		action, outcome = l.drain, Lowered
	}
	l.log.Warn("water level out of band", "quantity", env.WaterLevel.String(), "value", level, "min", band.Min, "max", band.Max)
	fired, err := l.valves.Activate(action)
	if err != nil {
		return Failed, err
	}
	if !fired {
		return Dropped, nil
	}
	return outcome, nil
}

func (l *LevelLoop) setMainPump(on bool) error {
	if l.pumpKnown && l.pumpOn == on {
		return nil
	}
	if err := l.mainPump.Write(on); err != nil {
		return fmt.Errorf("main pump: %w", err)
	}
	l.pumpOn, l.pumpKnown = on, true
	l.env.SetFlag(events.PumpMain, on)
	l.log.Info("main pump", "on", on)
	return nil
}

// Run steps the loop on every tick until ctx is cancelled. The main pump is
// switched off on the way out.
func (l *LevelLoop) Run(ctx context.Context, tick <-chan time.Time) error {
	defer l.setMainPump(false)
	return run(ctx, tick, "level", l.log, l.Observer, l.Step)
}
