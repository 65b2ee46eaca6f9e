package cycle

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// CronTicker delivers ticks on a cron schedule. A tick that finds the
// channel full is dropped.
type CronTicker struct {
	c  *cron.Cron
	ch chan time.Time
}

// NewCronTicker parses spec (standard cron or a descriptor such as
// "@every 10m") and starts delivering ticks.
func NewCronTicker(spec string) (*CronTicker, error) {
	c := cron.New()
	t := &CronTicker{c: c, ch: make(chan time.Time, 1)}
	if _, err := c.AddFunc(spec, t.fire); err != nil {
		return nil, fmt.Errorf("cron spec %q: %w", spec, err)
	}
	c.Start()
	return t, nil
}

// EverySpec returns the cron descriptor for a fixed period.
func EverySpec(d time.Duration) string {
	return "@every " + d.String()
}

func (t *CronTicker) fire() {
	select {
	case t.ch <- time.Now():
	default:
	}
}

// C returns the tick channel.
func (t *CronTicker) C() <-chan time.Time {
	return t.ch
}

// Stop stops the schedule; running jobs are not waited for.
func (t *CronTicker) Stop() {
	t.c.Stop()
}
