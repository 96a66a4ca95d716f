package honeypot

import (
	"fmt"
	"strings"
	"time"
)

// Difficulty 蜜罐难度,封闭枚举
type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

// idealTimes 各难度的理想作答时间
// 难度分支基于枚举和查表,不做字符串比较
var idealTimes = map[Difficulty]time.Duration{
	DifficultyEasy:   10 * time.Second,
	DifficultyMedium: 30 * time.Second,
	DifficultyHard:   60 * time.Second,
}

// difficultyRank 难度排序: easy < medium < hard
var difficultyRank = map[Difficulty]int{
	DifficultyEasy:   0,
	DifficultyMedium: 1,
	DifficultyHard:   2,
}

// Valid 检查难度是否为已知枚举值
func (d Difficulty) Valid() bool {
	_, ok := difficultyRank[d]
	return ok
}

// IdealTime 返回该难度的理想作答时间
func (d Difficulty) IdealTime() time.Duration {
	return idealTimes[d]
}

// Rank 返回难度序号,用于"最低难度优先"选择
func (d Difficulty) Rank() int {
	return difficultyRank[d]
}

// AllowsWorkerLevel 检查难度是否适合给定工作者等级
// 等级区间有意重叠,保证大多数等级都有可选蜜罐:
// easy ≤10, medium 5–50, hard ≥20
func (d Difficulty) AllowsWorkerLevel(level int) bool {
	switch d {
	case DifficultyEasy:
		return level <= 10
	case DifficultyMedium:
		return level >= 5 && level <= 50
	case DifficultyHard:
		return level >= 20
	default:
		return false
	}
}

// ParseDifficulty 解析难度字符串,大小写不敏感
func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(strings.ToUpper(s))
	if !d.Valid() {
		return "", fmt.Errorf("unknown difficulty %q", s)
	}
	return d, nil
}
