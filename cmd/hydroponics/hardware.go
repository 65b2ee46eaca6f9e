package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/sweeney/hydroponics/internal/config"
	"github.com/sweeney/hydroponics/internal/hw"
)

// rig is every device the controller drives.
type rig struct {
	acidity, solids  hw.AnalogInput
	acidUp, acidDown hw.Output
	solidsA, solidsB hw.Output
	fill, drain      hw.Output
	mainPump, light  hw.Output
	distance         hw.DistanceSensor
	climate          hw.ClimateSensor // nil when absent

	closers []io.Closer
}

// Close releases the buses in reverse order of opening.
func (r *rig) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openRig opens the GPIO chip, the ADC and the climate sensor. A missing
// climate sensor is tolerated; everything else is fatal.
func openRig(cfg config.Config, logger *slog.Logger) (_ *rig, err error) {
	r := &rig{}
	defer func() {
		if err != nil {
			r.Close()
		}
	}()

	chip, err := hw.OpenChip(cfg.Hardware.Chip)
	if err != nil {
		return nil, err
	}
	r.closers = append(r.closers, chip)

	p := cfg.Hardware.Pins
	outputs := []struct {
		dst  *hw.Output
		pin  int
		name string
	}{
		{&r.acidUp, p.AcidUp, "acid_up"},
		{&r.acidDown, p.AcidDown, "acid_down"},
		{&r.solidsA, p.SolidsA, "solids_a"},
		{&r.solidsB, p.SolidsB, "solids_b"},
		{&r.fill, p.Fill, "fill"},
		{&r.drain, p.Drain, "drain"},
		{&r.mainPump, p.MainPump, "main_pump"},
		{&r.light, p.Light, "light"},
	}
	for _, o := range outputs {
		out, err := chip.Output(o.pin, o.name)
		if err != nil {
			return nil, fmt.Errorf("output %s: %w", o.name, err)
		}
		*o.dst = out
	}

	if r.distance, err = chip.Ultrasonic(p.Trigger, p.Echo, cfg.Level.MaxDistance); err != nil {
		return nil, fmt.Errorf("ultrasonic: %w", err)
	}

	adc, err := hw.OpenADS1115(byte(cfg.Hardware.ADCAddress))
	if err != nil {
		return nil, err
	}
	r.closers = append(r.closers, adc)
	if r.acidity, err = adc.Channel(cfg.Acidity.Channel); err != nil {
		return nil, fmt.Errorf("acidity channel: %w", err)
	}
	if r.solids, err = adc.Channel(cfg.Solids.Channel); err != nil {
		return nil, fmt.Errorf("solids channel: %w", err)
	}

	if cfg.Climate.Enabled {
		aht, err := hw.OpenAHT20(cfg.Hardware.I2CBus)
		if err != nil {
			logger.Warn("climate sensor unavailable", "error", err)
		} else {
			r.climate = aht
			r.closers = append(r.closers, aht)
		}
	}
	return r, nil
}

// simulatedRig builds fake devices reading a neutral probe, a low nutrient
// concentration and a tank inside its level band.
func simulatedRig(cfg config.Config) *rig {
	vpc := cfg.Hardware.VoltsPerCount()
	counts := func(volts float64) int { return int(volts / vpc) }

	levelMid := (cfg.Level.Target.Min + cfg.Level.Target.Max) / 2
	return &rig{
		acidity:  hw.NewFakeAnalog(counts(cfg.Acidity.NeutralMillivolts / 1000)),
		solids:   hw.NewFakeAnalog(counts(0.5)),
		acidUp:   hw.NewFakeOutput("acid_up"),
		acidDown: hw.NewFakeOutput("acid_down"),
		solidsA:  hw.NewFakeOutput("solids_a"),
		solidsB:  hw.NewFakeOutput("solids_b"),
		fill:     hw.NewFakeOutput("fill"),
		drain:    hw.NewFakeOutput("drain"),
		mainPump: hw.NewFakeOutput("main_pump"),
		light:    hw.NewFakeOutput("light"),
		distance: hw.NewFakeDistance(cfg.Level.TankHeight - levelMid),
		climate:  &hw.FakeClimate{Temperature: 22, Humidity: 55},
	}
}
