package reconcile

import (
	"context"
	"fmt"
	"sync/atomic"

	"chartgate/config"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler owns the cron entries of every sweep.
type Scheduler struct {
	Cron        *cron.Cron
	Verifier    *Verifier
	Expirer     *Expirer
	Snapshotter *Snapshotter
	Repairer    *Repairer
	Logger      *zap.Logger
	Ctx         context.Context

	triggered atomic.Bool
}

func NewScheduler(ctx context.Context, logger *zap.Logger, v *Verifier, e *Expirer, s *Snapshotter, r *Repairer) *Scheduler {
	cl := cronLogger{logger.Sugar()}
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		Verifier:    v,
		Expirer:     e,
		Snapshotter: s,
		Repairer:    r,
		Logger:      logger,
		Ctx:         ctx,
	}
}

// RegisterAll adds one entry per job. The snapshot job is only registered
// when enabled.
func (s *Scheduler) RegisterAll(cfg config.ScheduleConfig) error {
	if _, err := s.Cron.AddFunc(cfg.VerifyCron, s.verifyTask); err != nil {
		return fmt.Errorf("register verify task: %w", err)
	}
	if _, err := s.Cron.AddFunc(cfg.ExpiryCron, s.expiryTask); err != nil {
		return fmt.Errorf("register expiry task: %w", err)
	}
	if _, err := s.Cron.AddFunc(cfg.RepairCron, s.repairTask); err != nil {
		return fmt.Errorf("register repair task: %w", err)
	}
	if cfg.SnapshotEnable && s.Snapshotter != nil {
		if _, err := s.Cron.AddFunc(cfg.SnapshotCron, s.snapshotTask); err != nil {
			return fmt.Errorf("register snapshot task: %w", err)
		}
	}
	return nil
}

func (s *Scheduler) Start() {
	s.Cron.Start()
	s.Logger.Info("scheduler started", zap.Int("entries", len(s.Cron.Entries())))
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.Logger.Info("scheduler stopped")
}

// RunNow executes every registered job once, for RUN_ON_START.
func (s *Scheduler) RunNow() {
	for _, e := range s.Cron.Entries() {
		e.Job.Run()
	}
}

// TriggerVerify starts an extra verification sweep in the background,
// unless a triggered sweep is still running. It returns whether one started.
func (s *Scheduler) TriggerVerify() bool {
	if !s.triggered.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		defer s.triggered.Store(false)
		s.verifyTask()
	}()
	return true
}

func (s *Scheduler) verifyTask() {
	s.Logger.Debug("running verification sweep")
	s.Verifier.Sweep(s.Ctx)
}

func (s *Scheduler) expiryTask() {
	s.Logger.Debug("running expiry sweep")
	s.Expirer.Sweep(s.Ctx)
}

func (s *Scheduler) snapshotTask() {
	s.Logger.Debug("running price snapshot")
	s.Snapshotter.Capture(s.Ctx)
}

func (s *Scheduler) repairTask() {
	s.Logger.Debug("running activation repair")
	s.Repairer.Sweep(s.Ctx)
}

// cronLogger routes cron's own messages into zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
