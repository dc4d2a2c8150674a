package scheduler

import (
	"context"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/berfenger/e3dc2mqtt/internal/core/domain"
	"github.com/reugn/go-quartz/logger"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

const refreshJobName = "refresh"

// Sender is the part of an actor context the scheduler needs.
type Sender interface {
	Send(pid *actor.PID, message interface{})
}

// RefreshScheduler drives the refresh cadence: every interval the target
// gets a RefreshRequest. The coordinator drops requests while a cycle is
// running, so a slow device never queues cycles.
type RefreshScheduler struct {
	scheduler quartz.Scheduler
	interval  time.Duration
	sender    Sender
	target    *actor.PID
	logger    *zap.Logger
}

type refreshJob struct {
	sender Sender
	target *actor.PID
}

func (j *refreshJob) Execute(_ context.Context) error {
	j.sender.Send(j.target, domain.RefreshRequest{})
	return nil
}

func (j *refreshJob) Description() string {
	return refreshJobName
}

func NewRefreshScheduler(interval time.Duration, sender Sender, target *actor.PID, zlogger *zap.Logger) *RefreshScheduler {
	return &RefreshScheduler{
		scheduler: quartz.NewStdScheduler(),
		interval:  interval,
		sender:    sender,
		target:    target,
		logger:    zlogger.With(zap.String("component", "scheduler")),
	}
}

// SetQuartzLogger routes the go-quartz internal logs through zap.
func SetQuartzLogger(zlogger *zap.Logger) {
	level := logger.LevelInfo
	if zlogger.Core().Enabled(zap.DebugLevel) {
		level = logger.LevelDebug
	}
	logger.SetDefault(logger.NewSimpleLogger(zap.NewStdLog(zlogger), level))
}

func (s *RefreshScheduler) Start(ctx context.Context) error {
	s.scheduler.Start(ctx)
	job := &refreshJob{sender: s.sender, target: s.target}
	if err := s.scheduler.ScheduleJob(quartz.NewJobDetail(job, quartz.NewJobKey(refreshJobName)), quartz.NewSimpleTrigger(s.interval)); err != nil {
		s.scheduler.Stop()
		return err
	}
	s.logger.Info("refresh scheduled", zap.Duration("interval", s.interval))
	return nil
}

func (s *RefreshScheduler) Stop() {
	s.scheduler.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.scheduler.Wait(ctx)
	s.logger.Debug("refresh scheduler stopped")
}
