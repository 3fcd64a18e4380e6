package nlp

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/rushteam/searchkit/core"
	"github.com/rushteam/searchkit/pkg/metrics"
)

// ErrRateLimited 表示对外部索引的调用被本地限流拒绝。
var ErrRateLimited = core.NewDomainError(core.ModuleNLP, core.ErrorCodeUnavailable, "nlp: index call rate limited")

// guardedIndex 给外部索引调用加上限流、熔断与超时。
type guardedIndex struct {
	index   core.SearchIndex
	cb      *gobreaker.CircuitBreaker[[]core.TermCount]
	limiter *rate.Limiter
}

func newGuardedIndex(name string, index core.SearchIndex, cfg Config, logger zerolog.Logger) *guardedIndex {
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 1
	}
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}
	g := &guardedIndex{
		index: index,
		cb:    gobreaker.NewCircuitBreaker[[]core.TermCount](st),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return g
}

// call 执行 fn；限流时不排队，直接返回 ErrRateLimited。
func (g *guardedIndex) call(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) ([]core.TermCount, error)) ([]core.TermCount, error) {
	if g.limiter != nil && !g.limiter.Allow() {
		return nil, ErrRateLimited
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return g.cb.Execute(func() ([]core.TermCount, error) {
		return fn(ctx)
	})
}
