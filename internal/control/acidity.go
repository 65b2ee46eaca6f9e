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

// Telemetry labels published on acidity pump activation.
const (
	LabelAcidUp   = "PUMP_PH_UP"
	LabelAcidDown = "PUMP_PH_DOWN"
)

// AcidityLoop keeps pH inside its band with a raise/lower pump pair that
// shares one debounce group.
type AcidityLoop struct {
	env       *env.Environment
	sampler   *Sampler
	converter AcidityConverter
	// millivoltsPerCount scales averaged ADC counts to probe millivolts.
	millivoltsPerCount float64
	pumps              *actuator.Debouncer
	up, down           actuator.Action
	gate               Gate
	wait               waitLog

	Observer Observer
	log      *slog.Logger
}

// AcidityDeps are the collaborators of an AcidityLoop.
type AcidityDeps struct {
	Env       *env.Environment
	Sampler   *Sampler
	Converter AcidityConverter
	Pumps     *actuator.Debouncer
	Up, Down  hw.Output
	Gate      Gate
	Logger    *slog.Logger
	// VoltsPerCount scales ADC counts to volts.
	VoltsPerCount float64
}

// NewAcidityLoop validates deps and builds the loop.
func NewAcidityLoop(d AcidityDeps) (*AcidityLoop, error) {
	if d.Env == nil {
		return nil, errors.New("control: nil environment")
	}
	if d.Sampler == nil || d.Pumps == nil || d.Up == nil || d.Down == nil {
		return nil, errors.New("control: acidity loop missing sampler, pumps or outputs")
	}
	if d.VoltsPerCount <= 0 {
		return nil, fmt.Errorf("control: volts per count %v", d.VoltsPerCount)
	}
	if d.Logger == nil {
		d.Logger = discardLogger()
	}
	return &AcidityLoop{
		env:                d.Env,
		sampler:            d.Sampler,
		converter:          d.Converter,
		millivoltsPerCount: d.VoltsPerCount * 1000,
		pumps:              d.Pumps,
		up:                 actuator.Action{Label: LabelAcidUp, Outputs: []hw.Output{d.Up}, Bit: events.PumpAcidUp},
		down:               actuator.Action{Label: LabelAcidDown, Outputs: []hw.Output{d.Down}, Bit: events.PumpAcidDown},
		gate:               d.Gate,
		log:                d.Logger.With("component", "acidity"),
	}, nil
}

// Step runs one control period: sample, publish, gate, decide.
func (l *AcidityLoop) Step() (Outcome, error) {
	counts, err := l.sampler.Average()
	if err != nil {
		return Failed, fmt.Errorf("acidity sample: %w", err)
	}
	millivolts := counts * l.millivoltsPerCount
	value := l.converter.Convert(millivolts) + l.env.AcidityOffset()
	l.env.Set(env.Acidity, value)
	l.log.Debug("reading", "mv", millivolts, "ph", value)

	if reason, attrs := l.gate.Check(l.env); reason != "" {
		l.wait.deferred(l.log, reason, attrs)
		return Deferred, nil
	}
	l.wait.ready(l.log)

	band := l.env.Band(env.Acidity)
	var (
		action  actuator.Action
		outcome Outcome
	)
	switch {
	case !band.Set || band.Contains(value):
		return InBand, nil
	case value < band.Min:
		action, outcome = l.up, Raised
	default:
		action, outcome = l.down, Lowered
	}

	l.log.Warn("acidity out of band", "quantity", env.Acidity.String(), "value", value, "min", band.Min, "max", band.Max)
	fired, err := l.pumps.Activate(action)
	if err != nil {
		return Failed, err
	}
	if !fired {
		return Dropped, nil
	}
	return outcome, nil
}

// Run steps the loop on every tick until ctx is cancelled.
func (l *AcidityLoop) Run(ctx context.Context, tick <-chan time.Time) error {
	return run(ctx, tick, "acidity", l.log, l.Observer, l.Step)
}
