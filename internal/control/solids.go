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

// LabelSolids is published when the nutrient A+B pumps fire.
const LabelSolids = "PUMP_TDS_A_B"

// SolidsLoop raises dissolved solids by dosing nutrient A and B together.
// There is no actuator that lowers them.
type SolidsLoop struct {
	env           *env.Environment
	sampler       *Sampler
	converter     SolidsConverter
	voltsPerCount float64
	temperature   float64
	useMeasured   bool
	pumps         *actuator.Debouncer
	dose          actuator.Action
	gate          Gate
	wait          waitLog

	Observer Observer
	log      *slog.Logger
}

// SolidsDeps are the collaborators of a SolidsLoop.
type SolidsDeps struct {
	Env           *env.Environment
	Sampler       *Sampler
	Converter     SolidsConverter
	Pumps         *actuator.Debouncer
	A, B          hw.Output
	Gate          Gate
	Logger        *slog.Logger
	VoltsPerCount float64
	// Temperature is used for compensation unless UseMeasured is set and a
	// measured temperature is available.
	Temperature float64
	UseMeasured bool
}

// NewSolidsLoop validates deps and builds the loop.
func NewSolidsLoop(d SolidsDeps) (*SolidsLoop, error) {
	if d.Env == nil {
		return nil, errors.New("control: nil environment")
	}
	if d.Sampler == nil || d.Pumps == nil || d.A == nil || d.B == nil {
		return nil, errors.New("control: solids loop missing sampler, pumps or outputs")
	}
	if d.VoltsPerCount <= 0 {
		return nil, fmt.Errorf("control: volts per count %v", d.VoltsPerCount)
	}
	if d.Logger == nil {
		d.Logger = discardLogger()
	}
	return &SolidsLoop{
		env:           d.Env,
		sampler:       d.Sampler,
		converter:     d.Converter,
		voltsPerCount: d.VoltsPerCount,
		temperature:   d.Temperature,
		useMeasured:   d.UseMeasured,
		pumps:         d.Pumps,
		dose:          actuator.Action{Label: LabelSolids, Outputs: []hw.Output{d.A, d.B}, Bit: events.PumpSolids},
		gate:          d.Gate,
		log:           d.Logger.With("component", "solids"),
	}, nil
}

func (l *SolidsLoop) compensationTemperature() float64 {
	if l.useMeasured {
		if t, ok := l.env.Get(env.Temperature); ok {
			return t
		}
	}
	return l.temperature
}

// Step runs one control period.
func (l *SolidsLoop) Step() (Outcome, error) {
	counts, err := l.sampler.Average()
	if err != nil {
		return Failed, fmt.Errorf("solids sample: %w", err)
	}
	volts := counts * l.voltsPerCount
	temperature := l.compensationTemperature()
	value := l.converter.Convert(volts, temperature)
	l.env.Set(env.DissolvedSolids, value)
	l.log.Debug("reading", "volts", volts, "temperature", temperature, "ppm", value)

	if reason, attrs := l.gate.Check(l.env); reason != "" {
		l.wait.deferred(l.log, reason, attrs)
		return Deferred, nil
	}

	band := l.env.Band(env.DissolvedSolids)
	if !band.Set {
		l.wait.deferred(l.log, "no target band", []any{"quantity", env.DissolvedSolids.String()})
		return Deferred, nil
	}
	l.wait.ready(l.log)

	switch {
	case band.Contains(value):
		return InBand, nil
	case value > band.Max:
		l.log.Warn("dissolved solids above band, dilution needed", "quantity", env.DissolvedSolids.String(), "value", value, "max", band.Max)
		return Unactionable, nil
	}

	l.log.Warn("dissolved solids below band", "quantity", env.DissolvedSolids.String(), "value", value, "min", band.Min)
	fired, err := l.pumps.Activate(l.dose)
	if err != nil {
		return Failed, err
	}
	if !fired {
		return Dropped, nil
	}
	return Raised, nil
}

// Run steps the loop on every tick until ctx is cancelled.
func (l *SolidsLoop) Run(ctx context.Context, tick <-chan time.Time) error {
	return run(ctx, tick, "solids", l.log, l.Observer, l.Step)
}
