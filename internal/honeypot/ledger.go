package honeypot

import (
	"sync"
	"time"
)

// TrustRecord 单个工作者的信任账本条目
// 只由蜜罐引擎在每次蜜罐提交后修改
type TrustRecord struct {
	UserID         string    `json:"user_id"`
	TotalAttempted int       `json:"total_attempted"`
	TotalCorrect   int       `json:"total_correct"`
	AccuracyRate   float64   `json:"accuracy_rate"`
	TrustScore     float64   `json:"trust_score"`
	Streak         int       `json:"streak"`
	BestStreak     int       `json:"best_streak"`
	AttemptsToday  int       `json:"attempts_today"`
	LastHoneypotAt time.Time `json:"last_honeypot_at"`
}

// NeutralTrustScore 新工作者的初始信任分
const NeutralTrustScore = 50.0

// NewTrustRecord 创建初始信任记录
// 首次蜜罐尝试时惰性创建,信任分初始化为中性值
func NewTrustRecord(userID string) *TrustRecord {
	return &TrustRecord{
		UserID:     userID,
		TrustScore: NeutralTrustScore,
	}
}

// Clone 返回记录副本
func (r *TrustRecord) Clone() *TrustRecord {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// TrustLedger 工作者信任账本接口
// 契约: 读取当前记录或默认值,应用描述的增量,写回
// 同一工作者的读写必须串行,不同工作者可以完全并行
type TrustLedger interface {
	// Get 读取记录副本,不存在时返回 nil
	Get(userID string) (*TrustRecord, error)
	// Update 在该工作者的串行化临界区内执行 fn
	// 记录不存在时以 NewTrustRecord 惰性创建; fn 返回错误时不写回
	Update(userID string, fn func(r *TrustRecord) error) (*TrustRecord, error)
	// Reset 管理性重置: 删除该工作者的记录
	Reset(userID string) error
	// Snapshot 返回所有记录的副本,用于统计
	Snapshot() ([]*TrustRecord, error)
}

// memoryLedger 分键锁的内存账本实现
// 生产部署使用 repository.TrustRepository 的数据库实现
type memoryLedger struct {
	mu      sync.RWMutex
	entries map[string]*ledgerEntry
}

type ledgerEntry struct {
	mu  sync.Mutex
	rec *TrustRecord
}

// NewMemoryLedger 创建内存信任账本
func NewMemoryLedger() TrustLedger {
	return &memoryLedger{entries: make(map[string]*ledgerEntry)}
}

// entry 获取或创建工作者的账本条目
func (l *memoryLedger) entry(userID string, create bool) *ledgerEntry {
	l.mu.RLock()
	e, ok := l.entries[userID]
	l.mu.RUnlock()
	if ok || !create {
		return e
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok = l.entries[userID]; ok {
		return e
	}
	e = &ledgerEntry{}
	l.entries[userID] = e
	return e
}

func (l *memoryLedger) Get(userID string) (*TrustRecord, error) {
	e := l.entry(userID, false)
	if e == nil {
		return nil, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Clone(), nil
}

func (l *memoryLedger) Update(userID string, fn func(r *TrustRecord) error) (*TrustRecord, error) {
	e := l.entry(userID, true)
	e.mu.Lock()
	defer e.mu.Unlock()

	working := e.rec.Clone()
	if working == nil {
		working = NewTrustRecord(userID)
	}
	if err := fn(working); err != nil {
		return nil, err
	}
	e.rec = working
	return working.Clone(), nil
}

func (l *memoryLedger) Reset(userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, userID)
	return nil
}

func (l *memoryLedger) Snapshot() ([]*TrustRecord, error) {
	l.mu.RLock()
	entries := make([]*ledgerEntry, 0, len(l.entries))
	for _, e := range l.entries {
		entries = append(entries, e)
	}
	l.mu.RUnlock()

	records := make([]*TrustRecord, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if e.rec != nil {
			records = append(records, e.rec.Clone())
		}
		e.mu.Unlock()
	}
	return records, nil
}

// SameUTCDay 检查两个时间是否落在同一个 UTC 日历日
// 每日尝试窗口按精确的 UTC 日界计算,不容忍时钟漂移
func SameUTCDay(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
