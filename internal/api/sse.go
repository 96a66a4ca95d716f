package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/crowdqc/quality-gin/internal/auth"
	"github.com/crowdqc/quality-gin/internal/eventbus"
)

// SSEBroker 把事件总线上的事件扇出给 SSE 订阅者
// 带 user_id 的事件只推给对应用户的连接
type SSEBroker struct {
	mu      sync.RWMutex
	clients map[chan []byte]string // 订阅通道 -> 用户 ID
}

// NewSSEBroker 创建 SSE 消息分发器
func NewSSEBroker() *SSEBroker {
	return &SSEBroker{
		clients: make(map[chan []byte]string),
	}
}

// Subscribe 注册一个订阅通道
func (b *SSEBroker) Subscribe(userID string) chan []byte {
	ch := make(chan []byte, 256)
	b.mu.Lock()
	b.clients[ch] = userID
	b.mu.Unlock()
	return ch
}

// Unsubscribe 注销订阅通道
func (b *SSEBroker) Unsubscribe(ch chan []byte) {
	b.mu.Lock()
	if _, ok := b.clients[ch]; ok {
		delete(b.clients, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish 发布消息
// userID 为空时广播给所有订阅者, 否则只发给该用户的连接
func (b *SSEBroker) Publish(userID string, data []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch, owner := range b.clients {
		if userID != "" && owner != userID {
			continue
		}
		select {
		case ch <- data:
		default:
			// 消费太慢的订阅者丢消息, 不阻塞发布方
		}
	}
}

// SubscriberCount 当前订阅者数量
func (b *SSEBroker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// BridgeSSE 订阅事件总线, 把事件转发给 SSE 订阅者
func BridgeSSE(broker *SSEBroker, bus eventbus.Bus) {
	forward := func(evt *eventbus.Event) error {
		data, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("failed to marshal event for sse: %w", err)
		}
		broker.Publish(evt.UserID, data)
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

// SSEHandler SSE 处理器
// 工作者通过它实时接收蜜罐结果和信任分变更事件
// token 从 query 参数传入, 验证器关闭时从 user_id 参数读取身份
func SSEHandler(broker *SSEBroker, validator *auth.TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var userID string

		if validator.Enabled() {
			token := c.Query("token")
			if token == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
				c.Abort()
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				c.Abort()
				return
			}
			userID = claims.Sub
		} else {
			userID = c.Query("user_id")
		}

		// SSE 响应头
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no") // 禁用 Nginx 缓冲

		flusher, ok := c.Writer.(http.Flusher)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
			c.Abort()
			return
		}

		messageChan := broker.Subscribe(userID)
		defer broker.Unsubscribe(messageChan)

		// 初始连接消息
		initialMsg := map[string]interface{}{
			"type":    "connected",
			"user_id": userID,
			"time":    time.Now().Unix(),
		}
		initialData, _ := json.Marshal(initialMsg)
		if err := sendSSEMessage(c.Writer, initialData); err != nil {
			return
		}
		flusher.Flush()

		heartbeat := time.NewTicker(30 * time.Second)
		defer heartbeat.Stop()

		for {
			select {
			case <-c.Request.Context().Done():
				return
			case <-heartbeat.C:
				msg := map[string]interface{}{
					"type": "heartbeat",
					"time": time.Now().Unix(),
				}
				data, _ := json.Marshal(msg)
				if err := sendSSEMessage(c.Writer, data); err != nil {
					return
				}
				flusher.Flush()
			case message, ok := <-messageChan:
				if !ok {
					return
				}
				if err := sendSSEMessage(c.Writer, message); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

// sendSSEMessage 发送 SSE 消息
func sendSSEMessage(w io.Writer, data []byte) error {
	// SSE 格式: data: <json>\n\n
	_, err := fmt.Fprintf(w, "data: %s\n\n", string(data))
	return err
}
