// Package cronsvc runs the in-process scheduled jobs.
package cronsvc

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/registrar/core"
)

const purgeTimeout = 4 * time.Minute

type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

type Scheduler struct {
	c        *cron.Cron
	purger   Purger
	logger   core.Logger
	onPurged func(n int)
}

// NewScheduler schedules the recycle-bin purge on spec. An empty spec yields a scheduler with no jobs.
func NewScheduler(spec string, purger Purger, logger core.Logger, onPurged func(n int)) (*Scheduler, error) {
	s := &Scheduler{
		c:        cron.New(cron.WithChain(cron.Recover(cronLogger{logger}), cron.SkipIfStillRunning(cronLogger{logger}))),
		purger:   purger,
		logger:   logger,
		onPurged: onPurged,
	}
	if spec == "" {
		return s, nil
	}
	if _, err := s.c.AddFunc(spec, s.PurgeExpired); err != nil {
		return nil, errors.Wrapf(err, "scheduling recycle bin purge %q", spec)
	}
	return s, nil
}

func (s *Scheduler) Jobs() int { return len(s.c.Entries()) }

func (s *Scheduler) Start() { s.c.Start() }

// Stop waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.c.Stop().Done():
	case <-ctx.Done():
	}
}

// PurgeExpired runs one purge of the recycle bin.
func (s *Scheduler) PurgeExpired() {
	ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
	defer cancel()

	n, err := s.purger.PurgeExpired(ctx, core.NowFunc())
	if err != nil {
		s.logger.Error("purging recycle bin", errors.Wrap(err, "purging recycle bin"))
		return
	}
	s.logger.Info("recycle bin purged", "count", n)
	if s.onPurged != nil {
		s.onPurged(n)
	}
}

// cronLogger adapts core.Logger to cron.Logger.
type cronLogger struct{ logger core.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{err}, keysAndValues...)...)
}
