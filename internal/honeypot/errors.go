package honeypot

import "errors"

var (
	// ErrHoneypotNotFound 引用的蜜罐任务 ID 不在活跃池中
	ErrHoneypotNotFound = errors.New("honeypot not found")

	// ErrDailyLimitExceeded 工作者当日蜜罐尝试次数已达上限
	// 调用方应等到下一个 UTC 日历日再重试
	ErrDailyLimitExceeded = errors.New("daily honeypot attempt limit exceeded")

	// ErrTaskTerminal 蜜罐任务已处于终态,不再接受提交
	ErrTaskTerminal = errors.New("honeypot task is in a terminal state")
)
