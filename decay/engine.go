package decay

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/searchkit/core"
	"github.com/rushteam/searchkit/pkg/logging"
	"github.com/rushteam/searchkit/pkg/metrics"
)

// ErrSweepRunning 表示已有一个 sweep 在运行。
var ErrSweepRunning = core.NewDomainError(core.ModuleDecay, core.ErrorCodeConflict, "decay: sweep already running")

// SweepReport 是一次 sweep 的统计。
type SweepReport struct {
	Processed int           `json:"processed"` // 成功处理（含无变化）
	Decayed   int           `json:"decayed"`
	Failed    int           `json:"failed"`
	Total     int           `json:"total"`
	Cursor    string        `json:"cursor,omitempty"` // 中断时可用于 Resume
	Completed bool          `json:"completed"`
	Duration  time.Duration `json:"duration"`
}

// Engine 对存储中的画像执行衰减。
type Engine struct {
	store    core.PreferenceStore
	cfg      Config
	now      core.Clock
	logger   zerolog.Logger
	sweeping atomic.Bool
}

// NewEngine 创建衰减引擎，now 为 nil 时使用 time.Now。
func NewEngine(store core.PreferenceStore, cfg Config, now core.Clock) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:  store,
		cfg:    cfg,
		now:    now,
		logger: logging.Component("decay"),
	}
}

// Config 返回引擎配置。
func (e *Engine) Config() Config { return e.cfg }

// Running 判断是否有 sweep 在运行。
func (e *Engine) Running() bool { return e.sweeping.Load() }

// ApplyDecayToUser 按距上次衰减的时间衰减用户画像，返回是否有变化。
// 画像不存在时返回 false，不创建画像。
func (e *Engine) ApplyDecayToUser(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, core.InvalidInput(core.ModuleDecay, "userId is required")
	}
	_, changed, err := e.decayUser(ctx, userID)
	outcome := "unchanged"
	switch {
	case err != nil:
		outcome = "failed"
	case changed:
		outcome = "decayed"
	}
	metrics.DecayUsersTotal.WithLabelValues("user", outcome).Inc()
	return changed, err
}

func (e *Engine) decayUser(ctx context.Context, userID string) (*core.PreferenceProfile, bool, error) {
	now := e.now()
	changed := false
	p, err := e.store.Update(ctx, userID, func(p *core.PreferenceProfile) (bool, error) {
		if p.LastUpdated == 0 && p.IsEmpty() {
			return false, nil
		}
		var elapsed time.Duration
		if last, ok := LastDecay(p); ok {
			elapsed = now.Sub(last)
		}
		if elapsed <= 0 && len(p.RecentSearches)+len(p.RecentlyViewed)+len(p.PurchaseHistory) == 0 {
			return false, nil
		}
		Apply(p, e.cfg, elapsed, now)
		if err := p.AdditionalData.Set(core.ExtLastDecayAt, now); err != nil {
			return false, err
		}
		changed = true
		return true, nil
	})
	return p, changed, err
}

// ApplyImmediateDecay 把一类偏好直接乘以 factor（0 < factor <= 1），其他类型不受影响。
func (e *Engine) ApplyImmediateDecay(ctx context.Context, userID string, t core.PreferenceType, factor float64) (bool, error) {
	if userID == "" {
		return false, core.InvalidInput(core.ModuleDecay, "userId is required")
	}
	if factor <= 0 || factor > 1 {
		return false, core.InvalidInput(core.ModuleDecay, "decay factor must be in (0, 1]")
	}
	if _, err := core.ParsePreferenceType(string(t)); err != nil {
		return false, err
	}
	changed := false
	_, err := e.store.Update(ctx, userID, func(p *core.PreferenceProfile) (bool, error) {
		if p.LastUpdated == 0 && p.IsEmpty() {
			return false, nil
		}
		ApplyFactor(p, t, factor, e.cfg.Floor)
		changed = true
		return true, nil
	})
	outcome := "decayed"
	if err != nil {
		outcome = "failed"
	} else if !changed {
		outcome = "unchanged"
	}
	metrics.DecayUsersTotal.WithLabelValues("immediate", outcome).Inc()
	return changed, err
}

// MaybeDecay 在请求路径上惰性衰减：画像超过 LazyInterval 未衰减时衰减并返回新画像。
// 失败时记录日志并返回原画像。
func (e *Engine) MaybeDecay(ctx context.Context, p *core.PreferenceProfile) *core.PreferenceProfile {
	if !e.cfg.Enabled || !ShouldDecay(p, e.cfg.LazyInterval, e.now()) {
		return p
	}
	updated, _, err := e.decayUser(ctx, p.UserID)
	if err != nil || updated == nil {
		e.logger.Warn().Err(err).Str("user", p.UserID).Msg("lazy decay failed")
		metrics.DecayUsersTotal.WithLabelValues("lazy", "failed").Inc()
		return p
	}
	metrics.DecayUsersTotal.WithLabelValues("lazy", "decayed").Inc()
	return updated
}

// ApplyDecayToAllUsers 从头执行一次全量 sweep。
func (e *Engine) ApplyDecayToAllUsers(ctx context.Context) (SweepReport, error) {
	return e.Resume(ctx, "")
}

// Resume 从 cursor 继续 sweep。同一时刻只允许一个 sweep，否则返回 ErrSweepRunning。
//
// 单个用户失败只计数不中断；ctx 取消或存储遍历失败时返回已完成部分的统计，
// report.Cursor 指向尚未完成的批次起点。重做已衰减的用户不会再次衰减。
func (e *Engine) Resume(ctx context.Context, cursor string) (SweepReport, error) {
	if !e.sweeping.CompareAndSwap(false, true) {
		return SweepReport{}, ErrSweepRunning
	}
	defer e.sweeping.Store(false)

	start := time.Now()
	var report SweepReport
	defer func() {
		report.Duration = time.Since(start)
		metrics.DecaySweepDuration.Observe(report.Duration.Seconds())
	}()

	batch := e.cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}
	for {
		if err := ctx.Err(); err != nil {
			report.Cursor = cursor
			return report, err
		}
		ids, next, err := e.store.Scan(ctx, cursor, batch)
		if err != nil {
			report.Cursor = cursor
			e.logger.Error().Err(err).Str("cursor", cursor).Msg("decay sweep scan failed")
			return report, err
		}
		processed, decayed, failed := e.sweepBatch(ctx, ids)
		if err := ctx.Err(); err != nil {
			// 批次内被取消的用户会失败，游标停在批次起点，Resume 时整批重做
			report.Processed += processed
			report.Decayed += decayed
			report.Cursor = cursor
			return report, err
		}
		report.Total += len(ids)
		report.Processed += processed
		report.Decayed += decayed
		report.Failed += failed
		if next == "" {
			report.Completed = true
			e.logger.Info().
				Int("total", report.Total).
				Int("processed", report.Processed).
				Int("decayed", report.Decayed).
				Int("failed", report.Failed).
				Msg("decay sweep completed")
			return report, nil
		}
		cursor = next
	}
}

func (e *Engine) sweepBatch(ctx context.Context, ids []string) (processed, decayed, failed int) {
	var ok, dec, bad atomic.Int64
	eg, gctx := errgroup.WithContext(ctx)
	limit := e.cfg.Concurrency
	if limit <= 0 {
		limit = 1
	}
	eg.SetLimit(limit)
	for _, id := range ids {
		userID := id
		eg.Go(func() error {
			_, changed, err := e.decayUser(gctx, userID)
			if err != nil {
				// 单个用户失败不影响其他用户
				e.logger.Warn().Err(err).Str("user", userID).Msg("decay user failed")
				metrics.DecayUsersTotal.WithLabelValues("sweep", "failed").Inc()
				bad.Add(1)
				return nil
			}
			ok.Add(1)
			if changed {
				dec.Add(1)
				metrics.DecayUsersTotal.WithLabelValues("sweep", "decayed").Inc()
			} else {
				metrics.DecayUsersTotal.WithLabelValues("sweep", "unchanged").Inc()
			}
			return nil
		})
	}
	_ = eg.Wait()
	return int(ok.Load()), int(dec.Load()), int(bad.Load())
}
