package control

import (
	"log/slog"

	"github.com/sweeney/hydroponics/internal/config"
	"github.com/sweeney/hydroponics/internal/env"
	"github.com/sweeney/hydroponics/internal/events"
)

// Gate is the cross-cutting readiness check that precedes any dosing decision.
type Gate struct {
	// Policy is config.GateInBand or config.GateMeasured.
	Policy string
	// RequireCycle also requires cycle.initialized.
	RequireCycle bool
}

// Check returns an empty reason when dosing may proceed. Otherwise it
// returns why not, with log attributes naming the quantity and threshold.
func (g Gate) Check(e *env.Environment) (string, []any) {
	if !e.Bus().Bits().Has(events.WaterLevel) {
		return "water level not measured", []any{"quantity", env.WaterLevel.String()}
	}
	if g.Policy != config.GateMeasured {
		r, b, ok := e.InBand(env.WaterLevel)
		if !ok {
			return "water level outside band", []any{
				"quantity", env.WaterLevel.String(),
				"value", r.Value,
				"min", b.Min,
				"max", b.Max,
			}
		}
	}
	if g.RequireCycle && !e.Cycle().Initialized {
		return "cycle not initialized", []any{"quantity", "cycle"}
	}
	return "", nil
}

// waitLog logs a deferred decision at warn when the reason changes and at
// debug while it persists, so a long wait does not flood the log.
type waitLog struct {
	last string
}

func (w *waitLog) deferred(log *slog.Logger, reason string, attrs []any) {
	if reason == w.last {
		log.Debug("dosing deferred: "+reason, attrs...)
		return
	}
	w.last = reason
	log.Warn("dosing deferred: "+reason, attrs...)
}

func (w *waitLog) ready(log *slog.Logger) {
	if w.last != "" {
		log.Info("dosing gate open")
		w.last = ""
	}
}
