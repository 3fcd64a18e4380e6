// Package stream 通过 Kafka 收发交互事件。
//
// Publisher 在业务侧批量写入事件，Consumer 在引擎侧消费事件并交给偏好采集器。
// 同一用户的事件以 UserID 为 key 写入同一分区，保证按序处理。
package stream

import (
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Config 是事件流配置，Brokers 为空表示不启用。
type Config struct {
	Brokers  []string `koanf:"brokers"`
	Topic    string   `koanf:"topic"`
	Group    string   `koanf:"group"`
	ClientID string   `koanf:"client_id"`

	BatchSize     int           `koanf:"batch_size" validate:"gte=0"`
	FlushInterval time.Duration `koanf:"flush_interval"`
	Compression   string        `koanf:"compression" validate:"omitempty,oneof=none gzip snappy lz4 zstd"`
	Acks          string        `koanf:"acks" validate:"omitempty,oneof=none leader all"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{
		Topic:         "search-interactions",
		Group:         "searchkit",
		ClientID:      "searchkit",
		BatchSize:     100,
		FlushInterval: time.Second,
		Acks:          "leader",
	}
}

// Enabled 判断是否配置了 broker。
func (c Config) Enabled() bool { return len(c.Brokers) > 0 }

func (c Config) clientOpts() []kgo.Opt {
	opts := []kgo.Opt{kgo.SeedBrokers(c.Brokers...)}
	if c.ClientID != "" {
		opts = append(opts, kgo.ClientID(c.ClientID))
	}
	return opts
}

func (c Config) producerOpts() []kgo.Opt {
	var opts []kgo.Opt
	switch c.Acks {
	case "none":
		opts = append(opts, kgo.RequiredAcks(kgo.NoAck()), kgo.DisableIdempotentWrite())
	case "all":
		opts = append(opts, kgo.RequiredAcks(kgo.AllISRAcks()))
	default:
		// 幂等写要求 acks=all
		opts = append(opts, kgo.RequiredAcks(kgo.LeaderAck()), kgo.DisableIdempotentWrite())
	}

	switch c.Compression {
	case "gzip":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.GzipCompression()))
	case "snappy":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.SnappyCompression()))
	case "lz4":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.Lz4Compression()))
	case "zstd":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.ZstdCompression()))
	}
	return opts
}
