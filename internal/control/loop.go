// Package control implements the periodic sensor loops: each tick samples a
// sensor, publishes the converted reading to the environment and, when the
// readiness gate allows it, hands an actuation decision to the loop's
// debounce group.
package control

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// Outcome is what one tick of a loop did.
type Outcome int

const (
	// InBand means the reading was published and needed no correction.
	InBand Outcome = iota
	// Raised means the "raise" actuator fired.
	Raised
	// Lowered means the "lower" actuator fired.
	Lowered
	// Dropped means a correction was needed but the group was not idle.
	Dropped
	// Deferred means the readiness gate kept the loop from deciding.
	Deferred
	// Unactionable means the reading is out of band with no actuator for it.
	Unactionable
	// Failed means the sensor could not be read; state was left untouched.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case InBand:
		return "in_band"
	case Raised:
		return "raised"
	case Lowered:
		return "lowered"
	case Dropped:
		return "dropped"
	case Deferred:
		return "deferred"
	case Unactionable:
		return "unactionable"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Observer is notified after every tick (metrics).
type Observer interface {
	ObserveTick(loop string, outcome Outcome)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// run drives step from tick until ctx is cancelled. The select is the loop's
// only suspension point.
func run(ctx context.Context, tick <-chan time.Time, name string, log *slog.Logger, obs Observer, step func() (Outcome, error)) error {
	log.Info("loop started")
	for {
		select {
		case <-ctx.Done():
			log.Info("loop stopped")
			return nil
		case <-tick:
			outcome, err := step()
			if err != nil {
				log.Warn("tick failed", "err", err)
			}
			if obs != nil {
				obs.ObserveTick(name, outcome)
			}
		}
	}
}
