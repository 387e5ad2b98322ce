package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/dotsetgreg/repcue/pkg/logger"
)

// Reaper stops idle pair workers on a cron schedule.
type Reaper struct {
	engine *Engine
	expr   string
	ttl    time.Duration
	now    func() time.Time
}

func NewReaper(engine *Engine, expr string, ttl time.Duration) (*Reaper, error) {
	expr = strings.TrimSpace(expr)
	gron := gronx.New()
	if !gron.IsValid(expr) {
		return nil, fmt.Errorf("idle reaper: invalid cron expression %q", expr)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("idle reaper: ttl must be positive")
	}
	return &Reaper{engine: engine, expr: expr, ttl: ttl, now: time.Now}, nil
}

// Next returns the first tick strictly after ref.
func (r *Reaper) Next(ref time.Time) (time.Time, error) {
	return gronx.NextTickAfter(r.expr, ref, false)
}

// Run reaps on every tick until ctx is done.
func (r *Reaper) Run(ctx context.Context) error {
	logger.InfoCF("engine", "Idle reaper started", map[string]interface{}{
		"schedule": r.expr,
		"ttl":      r.ttl.String(),
	})
	for {
		next, err := r.Next(r.now())
		if err != nil {
			return fmt.Errorf("idle reaper: next tick: %w", err)
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			r.engine.ReapIdle(r.ttl)
		}
	}
}
