// Package jobs runs periodic housekeeping. Presence is not swept here: stale
// online flags are corrected when they are read.
package jobs

import (
	"context"
	"sort"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Purger drops expired entries and reports how many were removed.
type Purger interface {
	Purge() int
}

type Janitor struct {
	cron    *cron.Cron
	targets map[string]Purger
	logger  *zap.Logger
}

// NewJanitor schedules every target on spec, a standard cron expression or a
// descriptor such as "@every 1m".
func NewJanitor(spec string, targets map[string]Purger, logger *zap.Logger) (*Janitor, error) {
	j := &Janitor{
		cron:    cron.New(),
		targets: targets,
		logger:  logger,
	}
	if _, err := j.cron.AddFunc(spec, func() { j.RunOnce() }); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop waits for a running purge to finish or ctx to end.
func (j *Janitor) Stop(ctx context.Context) {
	select {
	case <-j.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// RunOnce purges every target and returns the removed counts by name.
func (j *Janitor) RunOnce() map[string]int {
	names := make([]string, 0, len(j.targets))
	for name := range j.targets {
		names = append(names, name)
	}
	sort.Strings(names)

	removed := make(map[string]int, len(names))
	for _, name := range names {
		n := j.targets[name].Purge()
		removed[name] = n
		if n > 0 {
			j.logger.Debug("purged expired entries", zap.String("target", name), zap.Int("removed", n))
		}
	}
	return removed
}
