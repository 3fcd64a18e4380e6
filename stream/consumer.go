package stream

import (
	"context"
	"errors"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/rushteam/searchkit/core"
	"github.com/rushteam/searchkit/pkg/logging"
	"github.com/rushteam/searchkit/pkg/metrics"
)

// Handler 处理一条交互事件（由 preference.Collector 或 service.Service 实现）。
type Handler interface {
	RecordInteraction(ctx context.Context, ev *core.UserInteraction) bool
}

type fetcher interface {
	PollFetches(ctx context.Context) kgo.Fetches
	CommitUncommittedOffsets(ctx context.Context) error
	Close()
}

// Consumer 以消费组方式读取交互事件并交给 Handler。
//
// 无法解码或被拒绝的事件只计数，不会阻塞分区；位点在每批处理完后提交。
type Consumer struct {
	client  fetcher
	handler Handler
	logger  zerolog.Logger
}

// NewConsumer 创建消费者。
func NewConsumer(cfg Config, h Handler) (*Consumer, error) {
	if !cfg.Enabled() {
		return nil, core.InvalidInput(core.ModuleStream, "stream.brokers is required")
	}
	if cfg.Topic == "" || cfg.Group == "" {
		return nil, core.InvalidInput(core.ModuleStream, "stream.topic and stream.group are required")
	}
	opts := append(cfg.clientOpts(),
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.DisableAutoCommit(),
	)
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, core.Unavailable(core.ModuleStream, "stream: create consumer", err)
	}
	return newConsumer(client, h), nil
}

func newConsumer(client fetcher, h Handler) *Consumer {
	return &Consumer{client: client, handler: h, logger: logging.Component("stream.consumer")}
}

// Run 持续消费直到 ctx 取消或客户端关闭。
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info().Msg("interaction consumer started")
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			c.logger.Info().Msg("interaction consumer stopped")
			return nil
		}
		for _, fe := range fetches.Errors() {
			if errors.Is(fe.Err, context.Canceled) {
				return nil
			}
			c.logger.Warn().Err(fe.Err).Str("topic", fe.Topic).Int32("partition", fe.Partition).Msg("fetch failed")
		}
		fetches.EachRecord(func(r *kgo.Record) {
			c.Handle(ctx, r)
		})
		if err := c.client.CommitUncommittedOffsets(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn().Err(err).Msg("commit offsets failed")
		}
	}
}

// Handle 解码并处理一条记录，返回事件是否被接受。
func (c *Consumer) Handle(ctx context.Context, r *kgo.Record) bool {
	var ev core.UserInteraction
	if err := json.Unmarshal(r.Value, &ev); err != nil {
		c.logger.Warn().Err(err).Int64("offset", r.Offset).Msg("undecodable interaction")
		metrics.StreamEventsTotal.WithLabelValues("consume", "invalid").Inc()
		return false
	}
	if !c.handler.RecordInteraction(ctx, &ev) {
		metrics.StreamEventsTotal.WithLabelValues("consume", "rejected").Inc()
		return false
	}
	metrics.StreamEventsTotal.WithLabelValues("consume", "applied").Inc()
	return true
}

// Close 关闭客户端（离开消费组）。
func (c *Consumer) Close() { c.client.Close() }
