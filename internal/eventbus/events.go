package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType 事件类型
type EventType string

const (
	EventHoneypotPassed        EventType = "honeypot.passed"
	EventHoneypotFailed        EventType = "honeypot.failed"
	EventWorkerAccuracyUpdated EventType = "worker.accuracy_updated"
	EventWorkerTrustUpdated    EventType = "worker.trust_updated"
)

// Event 总线上的一条事件
// 投递语义为至少一次,订阅者必须对相同 ID 的重复投递保持幂等
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	TaskID    string          `json:"task_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// HoneypotPassedPayload 蜜罐通过事件载荷
type HoneypotPassedPayload struct {
	TaskID           string  `json:"task_id"`
	UserID           string  `json:"user_id"`
	AccuracyRate     float64 `json:"accuracy_rate"`
	TrustScoreChange float64 `json:"trust_score_change"`
}

// HoneypotFailedPayload 蜜罐失败事件载荷
type HoneypotFailedPayload struct {
	TaskID         string  `json:"task_id"`
	UserID         string  `json:"user_id"`
	ExpectedLabel  string  `json:"expected_label"`
	SubmittedLabel string  `json:"submitted_label"`
	AccuracyImpact float64 `json:"accuracy_impact"`
}

// WorkerAccuracyUpdatedPayload 外部系统推送的工作者准确率修正
type WorkerAccuracyUpdatedPayload struct {
	UserID       string  `json:"user_id"`
	AccuracyRate float64 `json:"accuracy_rate"`
}

// WorkerTrustUpdatedPayload 外部系统推送的工作者信任分修正
type WorkerTrustUpdatedPayload struct {
	UserID     string  `json:"user_id"`
	TrustScore float64 `json:"trust_score"`
}

// NewEvent 创建带载荷的事件
func NewEvent(eventType EventType, taskID, userID string, payload interface{}) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		TaskID:    taskID,
		UserID:    userID,
		Payload:   data,
		CreatedAt: time.Now(),
	}, nil
}

// DecodePayload 解码事件载荷到目标结构
func (e *Event) DecodePayload(target interface{}) error {
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return fmt.Errorf("failed to decode event payload: %w", err)
	}
	return nil
}
