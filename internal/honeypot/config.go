package honeypot

import "fmt"

// Config 蜜罐引擎配置
// 所有参数都可以在运行时通过 UpdateConfig 覆盖
type Config struct {
	// AccuracyThreshold 准确率门槛: totalAttempted ≥ 5 且低于该值的工作者
	// 失去蜜罐资格
	AccuracyThreshold float64 `json:"accuracy_threshold" mapstructure:"accuracy_threshold"`
	// TrustScoreThreshold 信任分门槛,低于该值的工作者失去蜜罐资格
	TrustScoreThreshold float64 `json:"trust_score_threshold" mapstructure:"trust_score_threshold"`
	// MaxDailyAttempts 单个工作者每个 UTC 日历日的蜜罐尝试上限
	MaxDailyAttempts int `json:"max_daily_attempts" mapstructure:"max_daily_attempts"`
	// AccuracyWeight 信任分变化中准确率因子的权重
	AccuracyWeight float64 `json:"accuracy_weight" mapstructure:"accuracy_weight"`
	// TimeWeight 信任分变化中作答时间因子的权重
	TimeWeight float64 `json:"time_weight" mapstructure:"time_weight"`
	// StreakBonus 连对奖励系数
	StreakBonus float64 `json:"streak_bonus" mapstructure:"streak_bonus"`
	// MaxStreak 连对奖励计入的最大连对数
	MaxStreak int `json:"max_streak" mapstructure:"max_streak"`
	// PenaltyMultiplier 答错时信任分惩罚倍数
	PenaltyMultiplier float64 `json:"penalty_multiplier" mapstructure:"penalty_multiplier"`
}

// DefaultConfig 返回默认引擎配置
func DefaultConfig() Config {
	return Config{
		AccuracyThreshold:   0.85,
		TrustScoreThreshold: 50,
		MaxDailyAttempts:    10,
		AccuracyWeight:      0.7,
		TimeWeight:          0.3,
		StreakBonus:         0.1,
		MaxStreak:           5,
		PenaltyMultiplier:   2,
	}
}

// Validate 验证配置合法性
func (c *Config) Validate() error {
	if c.AccuracyThreshold < 0 || c.AccuracyThreshold > 1 {
		return fmt.Errorf("accuracy_threshold must be in [0,1], got %v", c.AccuracyThreshold)
	}
	if c.TrustScoreThreshold < 0 || c.TrustScoreThreshold > 100 {
		return fmt.Errorf("trust_score_threshold must be in [0,100], got %v", c.TrustScoreThreshold)
	}
	if c.MaxDailyAttempts <= 0 {
		return fmt.Errorf("max_daily_attempts must be positive, got %d", c.MaxDailyAttempts)
	}
	if c.AccuracyWeight <= 0 || c.TimeWeight < 0 {
		return fmt.Errorf("invalid weights: accuracy=%v time=%v", c.AccuracyWeight, c.TimeWeight)
	}
	if c.StreakBonus < 0 {
		return fmt.Errorf("streak_bonus must be non-negative, got %v", c.StreakBonus)
	}
	if c.MaxStreak <= 0 {
		return fmt.Errorf("max_streak must be positive, got %d", c.MaxStreak)
	}
	if c.PenaltyMultiplier < 1 {
		return fmt.Errorf("penalty_multiplier must be >= 1, got %v", c.PenaltyMultiplier)
	}
	return nil
}
