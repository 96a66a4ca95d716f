package honeypot

import (
	"fmt"
	"sync"
)

// Honeypot 活跃蜜罐池中的一条记录
// 蜜罐是带已知正确答案的任务,永远由单个工作者的答案对照标准答案判定,
// 不参与多提交共识
type Honeypot struct {
	TaskID        string     `json:"task_id"`
	ExpectedLabel string     `json:"expected_label"`
	Difficulty    Difficulty `json:"difficulty"`
	Points        int        `json:"points"`
	TrustBonus    int        `json:"trust_bonus"`
}

// Validate 验证蜜罐定义
func (h *Honeypot) Validate() error {
	if h.TaskID == "" {
		return fmt.Errorf("honeypot task ID is required")
	}
	if h.ExpectedLabel == "" {
		return fmt.Errorf("honeypot expected label is required")
	}
	if !h.Difficulty.Valid() {
		return fmt.Errorf("unknown difficulty %q", h.Difficulty)
	}
	if h.Points < 0 || h.TrustBonus < 0 {
		return fmt.Errorf("points and trust bonus must be non-negative")
	}
	return nil
}

// Store 活跃蜜罐池接口
// 生产环境由 honeypots 表实现,测试使用内存实现
type Store interface {
	// Get 按任务 ID 查找蜜罐,不存在时返回 nil
	Get(taskID string) (*Honeypot, error)
	// ListActive 返回所有活跃蜜罐
	ListActive() ([]*Honeypot, error)
	// Add 向池中加入蜜罐
	Add(hp *Honeypot) error
	// Remove 从池中移除蜜罐
	Remove(taskID string) error
}

// memoryStore 内存蜜罐池
type memoryStore struct {
	mu        sync.RWMutex
	honeypots map[string]*Honeypot
}

// NewMemoryStore 创建内存蜜罐池
func NewMemoryStore() Store {
	return &memoryStore{honeypots: make(map[string]*Honeypot)}
}

func (s *memoryStore) Get(taskID string) (*Honeypot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hp, ok := s.honeypots[taskID]
	if !ok {
		return nil, nil
	}
	clone := *hp
	return &clone, nil
}

func (s *memoryStore) ListActive() ([]*Honeypot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]*Honeypot, 0, len(s.honeypots))
	for _, hp := range s.honeypots {
		clone := *hp
		list = append(list, &clone)
	}
	return list, nil
}

func (s *memoryStore) Add(hp *Honeypot) error {
	if err := hp.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *hp
	s.honeypots[hp.TaskID] = &clone
	return nil
}

func (s *memoryStore) Remove(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.honeypots, taskID)
	return nil
}
