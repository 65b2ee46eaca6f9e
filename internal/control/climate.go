package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sweeney/hydroponics/internal/env"
	"github.com/sweeney/hydroponics/internal/hw"
)

// ClimateLoop publishes ambient temperature and humidity. It drives nothing.
type ClimateLoop struct {
	env    *env.Environment
	sensor hw.ClimateSensor

	Observer Observer
	log      *slog.Logger
}

// NewClimateLoop builds the loop.
func NewClimateLoop(e *env.Environment, sensor hw.ClimateSensor, logger *slog.Logger) (*ClimateLoop, error) {
	if e == nil {
		return nil, errors.New("control: nil environment")
	}
	if sensor == nil {
		return nil, errors.New("control: nil climate sensor")
	}
	if logger == nil {
		logger = discardLogger()
	}
	return &ClimateLoop{env: e, sensor: sensor, log: logger.With("component", "climate")}, nil
}

// Step reads the sensor and stores both values in one update.
func (l *ClimateLoop) Step() (Outcome, error) {
	t, h, err := l.sensor.Sense()
	if err != nil {
		return Failed, fmt.Errorf("climate sense: %w", err)
	}
	l.env.SetClimate(t, h)
	l.log.Debug("reading", "temperature", t, "humidity", h)
	return InBand, nil
}

// Run steps the loop on every tick until ctx is cancelled.
func (l *ClimateLoop) Run(ctx context.Context, tick <-chan time.Time) error {
	return run(ctx, tick, "climate", l.log, l.Observer, l.Step)
}
