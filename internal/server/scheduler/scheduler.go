// Package scheduler runs the reconciler on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/intake/internal/common"
	"github.com/dmitrijs2005/intake/internal/logging"
	"github.com/dmitrijs2005/intake/internal/server/promotion"
	"github.com/robfig/cron/v3"
)

// Runner is one reconciliation pass; *promotion.Reconciler implements it.
type Runner interface {
	Run(ctx context.Context) (*promotion.RunReport, error)
}

type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	logger logging.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// New parses spec (standard five-field cron or a descriptor such as
// "@every 5m") and registers the reconciler. Overlapping ticks are skipped.
func New(spec string, runner Runner, logger logging.Logger) (*Scheduler, error) {
	logger = logger.With("module", "scheduler")
	cl := cronLogger{logger: logger}

	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		runner: runner,
		logger: logger,
	}
	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.logger.Info(ctx, "reconciler scheduled", "next", s.cron.Entries()[0].Next)
}

// Stop prevents new runs, cancels the running one and waits for it, or for
// ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	if s.cancel != nil {
		s.cancel()
	}
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) runOnce() {
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	report, err := s.runner.Run(ctx)
	switch {
	case errors.Is(err, common.ErrRunInProgress):
		s.logger.Info(ctx, "reconciliation skipped, another run holds the lock")
		return
	case err != nil:
		s.logger.Error(ctx, "reconciliation failed", "error", err)
		return
	}

	for _, b := range report.Batches {
		s.logger.Info(ctx, "batch reconciled",
			"kind", b.Kind,
			"skipped", b.Skipped,
			"validated", b.Count(promotion.ResultValidated),
			"rejected", b.Count(promotion.ResultRejected),
			"pending", b.Count(promotion.ResultPending),
			"deferred", b.Count(promotion.ResultDeferred),
			"failed", b.Count(promotion.ResultFailed),
		)
	}
}

// cronLogger routes cron's own messages to the service logger.
type cronLogger struct {
	logger logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(context.Background(), msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(context.Background(), msg, append(keysAndValues, "error", err)...)
}
