package websocket

import (
	"encoding/json"
	"fmt"

	"github.com/crowdqc/quality-gin/internal/eventbus"
)

// BridgeEvents 把事件总线上的事件推送给 WebSocket 客户端
// 带 UserID 的事件只推给对应用户, 其余事件广播给所有客户端
func BridgeEvents(hub *Hub, bus eventbus.Bus) {
	forward := func(evt *eventbus.Event) error {
		data, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("failed to marshal event for websocket: %w", err)
		}

		if evt.UserID != "" {
			hub.BroadcastToUser(evt.UserID, data)
			return nil
		}

		select {
		case hub.Broadcast <- data:
		default:
			// Hub 未运行或广播队列已满, 丢弃不阻塞事件分发
		}
		return nil
	}

	for _, eventType := range []eventbus.EventType{
		eventbus.EventHoneypotPassed,
		eventbus.EventHoneypotFailed,
		eventbus.EventWorkerAccuracyUpdated,
		eventbus.EventWorkerTrustUpdated,
	} {
		bus.Subscribe(eventType, forward)
	}
}
