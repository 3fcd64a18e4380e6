package stream

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/rushteam/searchkit/core"
	"github.com/rushteam/searchkit/pkg/logging"
	"github.com/rushteam/searchkit/pkg/metrics"
)

// ErrPublisherClosed 表示 Publisher 已关闭。
var ErrPublisherClosed = core.NewDomainError(core.ModuleStream, core.ErrorCodeUnavailable, "stream: publisher closed")

const closeTimeout = 10 * time.Second

type producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
	Close()
}

// Publisher 把交互事件批量写入 Kafka。Publish 不阻塞，失败只记录日志与指标。
type Publisher struct {
	client        producer
	topic         string
	batchSize     int
	flushInterval time.Duration
	now           core.Clock
	logger        zerolog.Logger

	mu        sync.Mutex
	buffer    []*kgo.Record
	closed    bool
	closeOnce sync.Once
	wg        sync.WaitGroup
	stopCh    chan struct{}
}

// NewPublisher 创建 Publisher。
func NewPublisher(cfg Config) (*Publisher, error) {
	if !cfg.Enabled() {
		return nil, core.InvalidInput(core.ModuleStream, "stream.brokers is required")
	}
	client, err := kgo.NewClient(append(cfg.clientOpts(), cfg.producerOpts()...)...)
	if err != nil {
		return nil, core.Unavailable(core.ModuleStream, "stream: create producer", err)
	}
	return newPublisher(client, cfg), nil
}

func newPublisher(client producer, cfg Config) *Publisher {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.Topic == "" {
		cfg.Topic = def.Topic
	}
	p := &Publisher{
		client:        client,
		topic:         cfg.Topic,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		now:           time.Now,
		logger:        logging.Component("stream.publisher"),
		buffer:        make([]*kgo.Record, 0, cfg.BatchSize),
		stopCh:        make(chan struct{}),
	}
	p.wg.Add(1)
	go p.flushLoop()
	return p
}

// Publish 校验并缓冲一条事件，缺失时间戳时补当前时间。
func (p *Publisher) Publish(ctx context.Context, ev *core.UserInteraction) error {
	if ev == nil {
		return core.InvalidInput(core.ModuleStream, "interaction is required")
	}
	if err := ev.Validate(); err != nil {
		metrics.StreamEventsTotal.WithLabelValues("publish", "invalid").Inc()
		return err
	}
	out := *ev
	if out.Timestamp.IsZero() {
		out.Timestamp = p.now()
	}
	data, err := json.Marshal(&out)
	if err != nil {
		return core.WrapDomainError(core.ModuleStream, core.ErrorCodeInternalError, "stream: encode interaction", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPublisherClosed
	}
	p.buffer = append(p.buffer, &kgo.Record{Topic: p.topic, Key: []byte(out.UserID), Value: data})
	if len(p.buffer) >= p.batchSize {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.flush(context.WithoutCancel(ctx))
		}()
	}
	return nil
}

func (p *Publisher) flushLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.flush(context.Background())
		case <-p.stopCh:
			return
		}
	}
}

// flush 把缓冲的记录交给 kafka 客户端异步发送。
func (p *Publisher) flush(ctx context.Context) {
	p.mu.Lock()
	if len(p.buffer) == 0 {
		p.mu.Unlock()
		return
	}
	records := p.buffer
	p.buffer = make([]*kgo.Record, 0, p.batchSize)
	p.mu.Unlock()

	for _, r := range records {
		p.client.Produce(ctx, r, p.onProduced)
	}
}

func (p *Publisher) onProduced(r *kgo.Record, err error) {
	if err != nil {
		p.logger.Warn().Err(err).Str("user", string(r.Key)).Msg("publish interaction failed")
		metrics.StreamEventsTotal.WithLabelValues("publish", "failed").Inc()
		return
	}
	metrics.StreamEventsTotal.WithLabelValues("publish", "sent").Inc()
}

// Close 停止接收事件，发送剩余缓冲并等待已发送记录确认。
func (p *Publisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		close(p.stopCh)
		p.wg.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		p.flush(ctx)
		err = p.client.Flush(ctx)
		p.client.Close()
	})
	return err
}
