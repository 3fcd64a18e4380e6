package experiment

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/searchkit/core"
	"github.com/rushteam/searchkit/pkg/logging"
	"github.com/rushteam/searchkit/pkg/metrics"
)

// EventKind 是实验结果事件类型。
type EventKind string

const (
	EventImpression  EventKind = "impression"
	EventInteraction EventKind = "interaction"
	EventConversion  EventKind = "conversion"
)

// 存储 key
func assignKey(experimentID string) string { return "exp:assign:" + experimentID }
func countKey(experimentID string) string  { return "exp:count:" + experimentID }
func resultKey(experimentID, variantID string) string {
	return "exp:result:" + experimentID + ":" + variantID
}

type record struct {
	assignment *core.Assignment
	kind       EventKind
	field      string
}

// Recorder 异步记录分配与实验结果：调用方只做非阻塞入队，缓冲区满时丢弃并计数。
type Recorder struct {
	kv      core.KeyValueStore
	ch      chan record
	done    chan struct{}
	timeout time.Duration
	logger  zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewRecorder 创建并启动记录器，buffer 是队列长度。
func NewRecorder(kv core.KeyValueStore, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 1024
	}
	r := &Recorder{
		kv:      kv,
		ch:      make(chan record, buffer),
		done:    make(chan struct{}),
		timeout: 2 * time.Second,
		logger:  logging.Component("experiment.recorder"),
	}
	go r.loop()
	return r
}

// RecordAssignment 入队一条分配记录，返回是否入队成功。
func (r *Recorder) RecordAssignment(a *core.Assignment) bool {
	return r.enqueue(record{assignment: a}, "assignment")
}

// RecordEvent 入队一条实验结果事件，field 为空时使用 kind。
func (r *Recorder) RecordEvent(a *core.Assignment, kind EventKind, field string) bool {
	if field == "" {
		field = string(kind)
	}
	return r.enqueue(record{assignment: a, kind: kind, field: field}, string(kind))
}

func (r *Recorder) enqueue(rec record, label string) bool {
	if rec.assignment == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		metrics.ExperimentRecordDropped.WithLabelValues(label).Inc()
		return false
	}
	select {
	case r.ch <- rec:
		return true
	default:
		metrics.ExperimentRecordDropped.WithLabelValues(label).Inc()
		return false
	}
}

// Close 停止接收新记录，并等待队列中已有的记录写完。
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	close(r.ch)
	r.mu.Unlock()
	<-r.done
}

func (r *Recorder) loop() {
	defer close(r.done)
	for rec := range r.ch {
		r.write(rec)
	}
}

func (r *Recorder) write(rec record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	a := rec.assignment
	var err error
	if rec.kind == "" {
		err = r.writeAssignment(ctx, a)
	} else {
		_, err = r.kv.HIncrBy(ctx, resultKey(a.ExperimentID, a.VariantID), rec.field, 1)
	}
	if err != nil {
		r.logger.Warn().Err(err).
			Str("experiment", a.ExperimentID).
			Str("variant", a.VariantID).
			Str("kind", string(rec.kind)).
			Msg("write experiment record failed")
	}
}

// writeAssignment 记录 subject -> variant，同一主体重复分配到同一变体时不重复计数。
func (r *Recorder) writeAssignment(ctx context.Context, a *core.Assignment) error {
	prev, err := r.kv.HGet(ctx, assignKey(a.ExperimentID), a.SubjectID)
	if err == nil && string(prev) == a.VariantID {
		return nil
	}
	if err != nil && !core.IsStoreNotFound(err) {
		return err
	}
	if err := r.kv.HSet(ctx, assignKey(a.ExperimentID), a.SubjectID, []byte(a.VariantID)); err != nil {
		return err
	}
	_, err = r.kv.HIncrBy(ctx, countKey(a.ExperimentID), a.VariantID, 1)
	return err
}

// Counts 返回实验各变体的分配人数。
func (r *Recorder) Counts(ctx context.Context, experimentID string) (map[string]int64, error) {
	return r.readCounters(ctx, countKey(experimentID))
}

// Results 返回某变体的结果计数。
func (r *Recorder) Results(ctx context.Context, experimentID, variantID string) (map[string]int64, error) {
	return r.readCounters(ctx, resultKey(experimentID, variantID))
}

// AssignedVariant 返回主体已记录的变体。
func (r *Recorder) AssignedVariant(ctx context.Context, experimentID, subjectID string) (string, error) {
	v, err := r.kv.HGet(ctx, assignKey(experimentID), subjectID)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func (r *Recorder) readCounters(ctx context.Context, key string) (map[string]int64, error) {
	raw, err := r.kv.HGetAll(ctx, key)
	if err != nil {
		if core.IsStoreNotFound(err) {
			return map[string]int64{}, nil
		}
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for field, v := range raw {
		n, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			continue
		}
		out[field] = n
	}
	return out, nil
}
