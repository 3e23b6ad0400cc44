package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/ericfisherdev/mergemint/internal/domain/model"
)

// Drainer runs one drain invocation.
type Drainer interface {
	Drain(ctx context.Context, opts DrainOptions) (model.DrainReport, error)
}

// DrainScheduler triggers drains from an in-process cron schedule. A tick is
// skipped while the previous one is still running. HTTP triggers are not
// coordinated with it.
type DrainScheduler struct {
	cron    *cron.Cron
	drainer Drainer
	opts    DrainOptions
	logger  *slog.Logger

	mu       sync.Mutex
	baseCtx  context.Context
	stopOnce sync.Once
}

// NewDrainScheduler parses schedule (standard five-field cron or a descriptor
// such as "@every 1m") and prepares the scheduler without starting it.
func NewDrainScheduler(drainer Drainer, schedule string, opts DrainOptions, logger *slog.Logger) (*DrainScheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cl := cronLogger{logger: logger}
	s := &DrainScheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		drainer: drainer,
		opts:    opts,
		logger:  logger,
		baseCtx: context.Background(),
	}

	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		return nil, fmt.Errorf("parse drain schedule %q: %w", schedule, err)
	}

	return s, nil
}

// Start begins running the schedule. Ticks use ctx as their parent context.
func (s *DrainScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("drain scheduler started", "post_comment", s.opts.PostComment)
}

// Stop halts the schedule and waits for a running tick to finish or ctx to
// end. It is safe to call more than once.
func (s *DrainScheduler) Stop(ctx context.Context) {
	s.stopOnce.Do(func() {
		done := s.cron.Stop().Done()
		select {
		case <-done:
			s.logger.Info("drain scheduler stopped")
		case <-ctx.Done():
			s.logger.Warn("drain scheduler stop timed out", "error", ctx.Err())
		}
	})
}

func (s *DrainScheduler) tick() {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	report, err := s.drainer.Drain(ctx, s.opts)
	if err != nil {
		s.logger.Error("scheduled drain failed", "error", err)
		return
	}

	s.logger.Debug("scheduled drain complete", "run_id", report.RunID, "outcome", report.Outcome)
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
