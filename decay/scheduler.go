package decay

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/rushteam/searchkit/core"
	"github.com/rushteam/searchkit/pkg/logging"
)

// Scheduler 按 cron 表达式周期性执行全量 sweep。
type Scheduler struct {
	cron    *cron.Cron
	engine  *Engine
	spec    string
	timeout time.Duration
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// NewScheduler 创建调度器，spec 为空时使用 @daily。
func NewScheduler(engine *Engine, spec string) (*Scheduler, error) {
	if spec == "" {
		spec = "@daily"
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		engine:  engine,
		spec:    spec,
		timeout: engine.Config().SweepTimeout,
		logger:  logging.Component("decay.scheduler"),
		ctx:     ctx,
		cancel:  cancel,
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		cancel()
		return nil, core.WrapDomainError(core.ModuleDecay, core.ErrorCodeInvalidInput, "invalid decay schedule "+spec, err)
	}
	return s, nil
}

// Start 启动调度。
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Str("schedule", s.spec).Msg("decay scheduler started")
}

// Stop 停止调度，取消正在运行的 sweep 并等待其返回。
func (s *Scheduler) Stop() {
	s.once.Do(func() {
		s.cancel()
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.logger.Info().Msg("decay scheduler stopped")
	})
}

// Next 返回下一次触发时间。
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) run() {
	if s.engine.Running() {
		s.logger.Info().Msg("decay sweep already running, skip")
		return
	}
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	report, err := s.engine.ApplyDecayToAllUsers(ctx)
	if err != nil {
		s.logger.Error().Err(err).
			Int("processed", report.Processed).
			Str("cursor", report.Cursor).
			Msg("scheduled decay sweep incomplete")
	}
}
