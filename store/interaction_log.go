package store

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rushteam/searchkit/core"
	"github.com/rushteam/searchkit/pkg/logging"
)

// DefaultMaxInteractionsPerUser 是每个用户保留的交互条数。
const DefaultMaxInteractionsPerUser = 500

// InteractionLog 以有序集合保存用户交互：key = log:user:{id}，score = 时间戳，member = JSON 记录。
type InteractionLog struct {
	kv         core.KeyValueStore
	KeyPrefix  string
	MaxPerUser int
}

// NewInteractionLog 创建交互日志；maxPerUser <= 0 时使用默认值。
func NewInteractionLog(kv core.KeyValueStore, maxPerUser int) *InteractionLog {
	if maxPerUser <= 0 {
		maxPerUser = DefaultMaxInteractionsPerUser
	}
	return &InteractionLog{kv: kv, KeyPrefix: "log:user:", MaxPerUser: maxPerUser}
}

var _ core.InteractionLog = (*InteractionLog)(nil)

func (l *InteractionLog) Append(ctx context.Context, rec core.InteractionRecord) error {
	if rec.UserID == "" {
		return core.InvalidInput(core.ModuleStore, "interaction log: empty user id")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode interaction: %w", err)
	}
	key := l.KeyPrefix + rec.UserID
	if err := l.kv.ZAdd(ctx, key, float64(rec.Timestamp), string(data)); err != nil {
		return fmt.Errorf("append interaction: %w", err)
	}
	// 只保留最新的 MaxPerUser 条（按 score 升序删除最旧的）
	if err := l.kv.ZRemRangeByRank(ctx, key, 0, int64(-l.MaxPerUser-1)); err != nil {
		return fmt.Errorf("trim interactions: %w", err)
	}
	return nil
}

func (l *InteractionLog) Recent(ctx context.Context, userID string, limit int) ([]core.InteractionRecord, error) {
	if limit <= 0 {
		limit = l.MaxPerUser
	}
	members, err := l.kv.ZRange(ctx, l.KeyPrefix+userID, 0, int64(limit-1))
	if err != nil {
		return nil, fmt.Errorf("read interactions: %w", err)
	}
	out := make([]core.InteractionRecord, 0, len(members))
	for _, m := range members {
		var rec core.InteractionRecord
		if err := json.Unmarshal([]byte(m), &rec); err != nil {
			logging.Warn().Err(err).Str("user", userID).Msg("skip malformed interaction record")
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
