package honeypot

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/crowdqc/quality-gin/internal/eventbus"
	"github.com/crowdqc/quality-gin/internal/statemachine"
	"github.com/sirupsen/logrus"
)

// Clock 可注入时钟
// 所有时间判断("现在"、"今天")都通过它,保证测试的确定性
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock 返回系统时钟
func RealClock() Clock { return realClock{} }

// Submission 蜜罐提交输入
type Submission struct {
	TaskID         string  `json:"task_id"`
	UserID         string  `json:"user_id"`
	SubmittedLabel string  `json:"submitted_label"`
	Confidence     float64 `json:"confidence,omitempty"`
	TimeSpentMs    int64   `json:"time_spent_ms,omitempty"`
}

// Result 一次蜜罐判定的结果
// 不做长期持久化,只通过事件和账本产生副作用
type Result struct {
	TaskID           string       `json:"task_id"`
	UserID           string       `json:"user_id"`
	ExpectedLabel    string       `json:"expected_label"`
	SubmittedLabel   string       `json:"submitted_label"`
	IsCorrect        bool         `json:"is_correct"`
	AccuracyImpact   float64      `json:"accuracy_impact"`
	TrustScoreChange float64      `json:"trust_score_change"`
	PointsEarned     int          `json:"points_earned"`
	Record           *TrustRecord `json:"record"`
}

// Statistics 引擎聚合统计
type Statistics struct {
	TotalHoneypots  int     `json:"total_honeypots"`
	TotalWorkers    int     `json:"total_workers"`
	AverageAccuracy float64 `json:"average_accuracy"`
	AverageTrust    float64 `json:"average_trust"`
	SuccessRate     float64 `json:"success_rate"`
}

// Engine 蜜罐信任评分引擎
// 对照已知答案判定蜜罐提交,维护信任账本,选择下一个蜜罐,
// 并通过事件总线对外发布通过/失败事件
type Engine struct {
	cfgMu  sync.RWMutex
	cfg    Config
	ledger TrustLedger
	store  Store
	bus    eventbus.Bus
	clock  Clock
	logger *logrus.Logger
}

// NewEngine 创建蜜罐引擎
// bus 可以为 nil(不发布事件); clock 为 nil 时使用系统时钟
func NewEngine(cfg Config, ledger TrustLedger, store Store, bus eventbus.Bus, clock Clock, logger *logrus.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid honeypot config: %w", err)
	}
	if ledger == nil {
		return nil, fmt.Errorf("trust ledger is required")
	}
	if store == nil {
		return nil, fmt.Errorf("honeypot store is required")
	}
	if clock == nil {
		clock = RealClock()
	}
	if logger == nil {
		logger = logrus.New()
	}

	e := &Engine{
		cfg:    cfg,
		ledger: ledger,
		store:  store,
		bus:    bus,
		clock:  clock,
		logger: logger,
	}

	// 订阅外部系统推送的准确率/信任分修正
	if bus != nil {
		bus.Subscribe(eventbus.EventWorkerAccuracyUpdated, e.absorbAccuracyUpdate)
		bus.Subscribe(eventbus.EventWorkerTrustUpdated, e.absorbTrustUpdate)
	}

	return e, nil
}

// ProcessSubmission 判定一次蜜罐提交
// 更新信任账本、驱动任务状态机到 COMPLETED/FAILED 并发布事件
func (e *Engine) ProcessSubmission(sub *Submission, machine statemachine.Machine) (*Result, error) {
	if sub == nil {
		return nil, fmt.Errorf("nil submission")
	}
	cfg := e.Config()

	// 1. 查找活跃蜜罐
	hp, err := e.store.Get(sub.TaskID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up honeypot: %w", err)
	}
	if hp == nil {
		return nil, fmt.Errorf("%w: task %s", ErrHoneypotNotFound, sub.TaskID)
	}

	// 任务已终态时不修改账本
	if statemachine.IsTerminal(machine.CurrentState()) {
		return nil, fmt.Errorf("%w: task %s", ErrTaskTerminal, sub.TaskID)
	}

	now := e.clock.Now()

	// 4. 精确大小写敏感匹配标准答案
	isCorrect := sub.SubmittedLabel == hp.ExpectedLabel

	result := &Result{
		TaskID:         sub.TaskID,
		UserID:         sub.UserID,
		ExpectedLabel:  hp.ExpectedLabel,
		SubmittedLabel: sub.SubmittedLabel,
		IsCorrect:      isCorrect,
	}

	// 2-8. 在该工作者的串行化临界区内计算增量并更新账本
	record, err := e.ledger.Update(sub.UserID, func(r *TrustRecord) error {
		// 2. 每日尝试上限,按 UTC 日历日滚动
		if !SameUTCDay(r.LastHoneypotAt, now) {
			r.AttemptsToday = 0
		}
		if r.AttemptsToday >= cfg.MaxDailyAttempts {
			return fmt.Errorf("%w: user %s reached %d attempts", ErrDailyLimitExceeded, sub.UserID, cfg.MaxDailyAttempts)
		}

		// 5. 准确率影响: 基础值乘以连对系数(使用更新前的连对数)
		base := 0.10
		if !isCorrect {
			base = -0.20
		}
		streak := r.Streak
		if streak > cfg.MaxStreak {
			streak = cfg.MaxStreak
		}
		result.AccuracyImpact = round2(base * (1 + float64(streak)*cfg.StreakBonus))

		// 6. 信任分变化: 准确率因子加作答时间因子,答错时放大惩罚
		timeChange := 0.0
		idealMs := hp.Difficulty.IdealTime().Milliseconds()
		if isCorrect && sub.TimeSpentMs > 0 {
			if float64(sub.TimeSpentMs) < 0.5*float64(idealMs) {
				timeChange = 0.05
			} else if float64(sub.TimeSpentMs) > 1.5*float64(idealMs) {
				timeChange = -0.03
			}
		}
		raw := result.AccuracyImpact*cfg.AccuracyWeight + timeChange*cfg.TimeWeight
		if !isCorrect {
			raw *= cfg.PenaltyMultiplier
		}
		result.TrustScoreChange = round2(raw)

		// 7. 积分: 答对得基础分加信任奖励,快于理想时间再得时间奖励
		if isCorrect {
			points := hp.Points + hp.TrustBonus
			if sub.TimeSpentMs > 0 && sub.TimeSpentMs < idealMs {
				bonus := math.Floor(float64(idealMs-sub.TimeSpentMs)/1000.0) * 0.1
				points += int(math.Round(bonus))
			}
			result.PointsEarned = points
		}

		// 8. 应用账本增量
		r.TotalAttempted++
		r.AttemptsToday++
		if isCorrect {
			r.TotalCorrect++
			r.Streak++
			if r.Streak > r.BestStreak {
				r.BestStreak = r.Streak
			}
		} else {
			r.Streak = 0
		}
		r.AccuracyRate = float64(r.TotalCorrect) / float64(r.TotalAttempted)
		r.TrustScore = clamp(r.TrustScore+result.TrustScoreChange, 0, 100)
		r.LastHoneypotAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Record = record

	// 9. 驱动任务状态机
	target := statemachine.StateCompleted
	if !isCorrect {
		target = statemachine.StateFailed
	}
	if err := machine.Transition(target, &statemachine.Context{
		TaskID:    sub.TaskID,
		UserID:    sub.UserID,
		Reason:    "honeypot evaluated",
		Timestamp: now,
		Metadata: map[string]interface{}{
			"is_honeypot":     true,
			"expected_label":  hp.ExpectedLabel,
			"submitted_label": sub.SubmittedLabel,
			"is_correct":      isCorrect,
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to transition honeypot task: %w", err)
	}

	// 任务已终态,蜜罐从活跃池退役,不再被推荐给其他工作者
	if err := e.store.Remove(sub.TaskID); err != nil {
		e.logger.WithField("task_id", sub.TaskID).WithError(err).Warn("failed to retire honeypot from pool")
	}

	// 10. 发布事件
	e.publishResult(result, record)

	// 11. 返回判定结果
	return result, nil
}

// publishResult 发布蜜罐通过/失败事件
func (e *Engine) publishResult(result *Result, record *TrustRecord) {
	if e.bus == nil {
		return
	}

	var evt *eventbus.Event
	var err error
	if result.IsCorrect {
		evt, err = eventbus.NewEvent(eventbus.EventHoneypotPassed, result.TaskID, result.UserID,
			&eventbus.HoneypotPassedPayload{
				TaskID:           result.TaskID,
				UserID:           result.UserID,
				AccuracyRate:     record.AccuracyRate,
				TrustScoreChange: result.TrustScoreChange,
			})
	} else {
		evt, err = eventbus.NewEvent(eventbus.EventHoneypotFailed, result.TaskID, result.UserID,
			&eventbus.HoneypotFailedPayload{
				TaskID:         result.TaskID,
				UserID:         result.UserID,
				ExpectedLabel:  result.ExpectedLabel,
				SubmittedLabel: result.SubmittedLabel,
				AccuracyImpact: result.AccuracyImpact,
			})
	}
	if err != nil {
		e.logger.WithError(err).Warn("failed to build honeypot event")
		return
	}
	if err := e.bus.Publish(evt); err != nil {
		e.logger.WithError(err).Warn("failed to publish honeypot event")
	}
}

// IsEligibleForHoneypot 判断工作者是否有资格接收蜜罐
func (e *Engine) IsEligibleForHoneypot(userID string) (bool, error) {
	cfg := e.Config()

	record, err := e.ledger.Get(userID)
	if err != nil {
		return false, fmt.Errorf("failed to read trust record: %w", err)
	}
	// 新工作者按中性默认值判定
	if record == nil {
		return NeutralTrustScore >= cfg.TrustScoreThreshold, nil
	}

	if record.TrustScore < cfg.TrustScoreThreshold {
		return false, nil
	}

	attemptsToday := record.AttemptsToday
	if !SameUTCDay(record.LastHoneypotAt, e.clock.Now()) {
		attemptsToday = 0
	}
	if attemptsToday >= cfg.MaxDailyAttempts {
		return false, nil
	}

	if record.TotalAttempted >= 5 && record.AccuracyRate < cfg.AccuracyThreshold {
		return false, nil
	}
	return true, nil
}

// GetNextHoneypot 为工作者选择下一个蜜罐
// 无资格或池中没有合适蜜罐时返回 nil
// workerLevel <= 0 时不做等级过滤
func (e *Engine) GetNextHoneypot(userID string, workerLevel int) (*Honeypot, error) {
	eligible, err := e.IsEligibleForHoneypot(userID)
	if err != nil {
		return nil, err
	}
	if !eligible {
		return nil, nil
	}

	pool, err := e.store.ListActive()
	if err != nil {
		return nil, fmt.Errorf("failed to list honeypots: %w", err)
	}

	// 按工作者等级过滤难度
	candidates := make([]*Honeypot, 0, len(pool))
	for _, hp := range pool {
		if workerLevel > 0 && !hp.Difficulty.AllowsWorkerLevel(workerLevel) {
			continue
		}
		candidates = append(candidates, hp)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	// 候选排序保证选择确定性: 难度升序,同难度按任务 ID
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Difficulty.Rank() != candidates[j].Difficulty.Rank() {
			return candidates[i].Difficulty.Rank() < candidates[j].Difficulty.Rank()
		}
		return candidates[i].TaskID < candidates[j].TaskID
	})

	record, err := e.ledger.Get(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read trust record: %w", err)
	}

	// 没有信任记录的新工作者从最低难度开始
	if record == nil {
		return candidates[0], nil
	}

	// 按准确率选择偏好难度,偏好桶为空时退回第一个候选
	var preferred Difficulty
	switch {
	case record.AccuracyRate < 0.7:
		preferred = DifficultyEasy
	case record.AccuracyRate > 0.95:
		preferred = DifficultyHard
	default:
		preferred = DifficultyMedium
	}
	for _, hp := range candidates {
		if hp.Difficulty == preferred {
			return hp, nil
		}
	}
	return candidates[0], nil
}

// GetTrustRecord 读取工作者信任记录,不存在时返回 nil
func (e *Engine) GetTrustRecord(userID string) (*TrustRecord, error) {
	return e.ledger.Get(userID)
}

// ResetWorkerStats 管理性重置工作者统计
func (e *Engine) ResetWorkerStats(userID string) error {
	return e.ledger.Reset(userID)
}

// GetStatistics 返回引擎聚合统计
func (e *Engine) GetStatistics() (*Statistics, error) {
	pool, err := e.store.ListActive()
	if err != nil {
		return nil, fmt.Errorf("failed to list honeypots: %w", err)
	}
	records, err := e.ledger.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot ledger: %w", err)
	}

	stats := &Statistics{
		TotalHoneypots: len(pool),
		TotalWorkers:   len(records),
	}
	if len(records) == 0 {
		return stats, nil
	}

	var sumAccuracy, sumTrust float64
	var attempted, correct int
	for _, r := range records {
		sumAccuracy += r.AccuracyRate
		sumTrust += r.TrustScore
		attempted += r.TotalAttempted
		correct += r.TotalCorrect
	}
	stats.AverageAccuracy = round2(sumAccuracy / float64(len(records)))
	stats.AverageTrust = round2(sumTrust / float64(len(records)))
	if attempted > 0 {
		stats.SuccessRate = round2(float64(correct) / float64(attempted))
	}
	return stats, nil
}

// Config 返回当前引擎配置
func (e *Engine) Config() Config {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg
}

// UpdateConfig 运行时更新引擎配置
func (e *Engine) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid honeypot config: %w", err)
	}
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	e.cfg = cfg
	return nil
}

// absorbAccuracyUpdate 吸收外部系统推送的准确率修正
// 订阅者按事件重复投递幂等: 写入是绝对值设置而不是增量
func (e *Engine) absorbAccuracyUpdate(evt *eventbus.Event) error {
	var payload eventbus.WorkerAccuracyUpdatedPayload
	if err := evt.DecodePayload(&payload); err != nil {
		return err
	}
	if payload.UserID == "" {
		return fmt.Errorf("accuracy update without user ID")
	}
	_, err := e.ledger.Update(payload.UserID, func(r *TrustRecord) error {
		r.AccuracyRate = clamp(payload.AccuracyRate, 0, 1)
		return nil
	})
	return err
}

// absorbTrustUpdate 吸收外部系统推送的信任分修正
func (e *Engine) absorbTrustUpdate(evt *eventbus.Event) error {
	var payload eventbus.WorkerTrustUpdatedPayload
	if err := evt.DecodePayload(&payload); err != nil {
		return err
	}
	if payload.UserID == "" {
		return fmt.Errorf("trust update without user ID")
	}
	_, err := e.ledger.Update(payload.UserID, func(r *TrustRecord) error {
		r.TrustScore = clamp(payload.TrustScore, 0, 100)
		return nil
	})
	return err
}

// round2 四舍五入到两位小数
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// clamp 将值限制在 [min, max]
func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
