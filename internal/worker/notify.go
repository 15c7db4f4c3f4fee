package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ExportNotifyMessage 是通过 Redis Pub/Sub 转发给前端的统一消息。
// 字段名与前端解析保持一致。
type ExportNotifyMessage struct {
	Status        string   `json:"status"`
	ResumeID      uint     `json:"resume_id"`
	CorrelationID string   `json:"correlation_id"`
	ErrorCode     int      `json:"error_code"`
	ErrorMessage  string   `json:"error_message"`
	MissingIDs    []string `json:"missing_ids,omitempty"`
}

// Publisher 是发布通知所需的 Redis 能力，*redis.Client 满足该接口。
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// NotifyChannel 返回某用户的通知频道名。
func NotifyChannel(userID uint) string {
	return fmt.Sprintf("user_notify:%d", userID)
}

func publishNotify(ctx context.Context, pub Publisher, userID uint, notify ExportNotifyMessage) error {
	data, err := json.Marshal(notify)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := NotifyChannel(userID)
	if err := pub.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}
