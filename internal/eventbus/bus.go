package eventbus

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Handler 事件处理函数
// 投递语义为至少一次,处理函数必须按事件 ID 幂等
type Handler func(evt *Event) error

// Outbox 事件持久化接口
// 生产环境由 events 表实现,测试可以传 nil 跳过持久化
type Outbox interface {
	Save(evt *Event) error
	MarkDelivered(eventID string) error
	MarkFailed(eventID string) error
}

// Bus 异步事件总线接口
type Bus interface {
	Publish(evt *Event) error
	Subscribe(eventType EventType, handler Handler)
	Stop()
}

// bus 基于 worker 池的事件总线实现
// Publish 先写 outbox 再入队,worker 异步分发给订阅者并带重试
type bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Handler
	outbox      Outbox
	logger      *logrus.Logger
	queue       chan *Event
	workers     int
	maxRetries  int
	stop        chan struct{}
	wg          sync.WaitGroup
}

// New 创建事件总线
// outbox 为 nil 时跳过持久化(仅内存投递)
func New(outbox Outbox, workers int, logger *logrus.Logger) Bus {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = logrus.New()
	}

	b := &bus{
		subscribers: make(map[EventType][]Handler),
		outbox:      outbox,
		logger:      logger,
		queue:       make(chan *Event, 1000),
		workers:     workers,
		maxRetries:  3,
		stop:        make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		b.wg.Add(1)
		go b.worker()
	}

	return b
}

// Publish 发布事件
// 队列满时事件仍已持久化到 outbox,不会丢失,只是本进程不再分发
func (b *bus) Publish(evt *Event) error {
	if evt == nil {
		return fmt.Errorf("nil event")
	}

	// 1. 持久化到 outbox
	if b.outbox != nil {
		if err := b.outbox.Save(evt); err != nil {
			return fmt.Errorf("failed to save event: %w", err)
		}
	}

	// 2. 异步入队分发
	select {
	case b.queue <- evt:
	default:
		b.logger.WithFields(logrus.Fields{
			"event_id": evt.ID,
			"type":     evt.Type,
		}).Warn("event queue full, event persisted but not dispatched")
	}

	return nil
}

// Subscribe 订阅指定类型的事件
func (b *bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// worker 事件分发 worker
func (b *bus) worker() {
	defer b.wg.Done()
	for {
		select {
		case evt := <-b.queue:
			b.dispatch(evt)
		case <-b.stop:
			// 停止前清空队列,保证已入队事件分发完成
			for {
				select {
				case evt := <-b.queue:
					b.dispatch(evt)
				default:
					return
				}
			}
		}
	}
}

// dispatch 分发事件到所有订阅者,失败时指数退避重试
func (b *bus) dispatch(evt *Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.subscribers[evt.Type]))
	copy(handlers, b.subscribers[evt.Type])
	b.mu.RUnlock()

	backoff := 100 * time.Millisecond
	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		success := true
		for _, handler := range handlers {
			if err := handler(evt); err != nil {
				success = false
				b.logger.WithFields(logrus.Fields{
					"event_id": evt.ID,
					"type":     evt.Type,
					"attempt":  attempt,
				}).WithError(err).Warn("event handler failed")
			}
		}

		if success {
			if b.outbox != nil {
				if err := b.outbox.MarkDelivered(evt.ID); err != nil {
					b.logger.WithError(err).Warn("failed to mark event delivered")
				}
			}
			return
		}

		if attempt < b.maxRetries {
			time.Sleep(backoff)
			backoff *= 2
		}
	}

	if b.outbox != nil {
		if err := b.outbox.MarkFailed(evt.ID); err != nil {
			b.logger.WithError(err).Warn("failed to mark event failed")
		}
	}
}

// Stop 停止事件总线,等待在途事件分发完成
func (b *bus) Stop() {
	close(b.stop)
	b.wg.Wait()
}
