package statemachine

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition 请求的状态转换从当前状态不可达
// 该错误不会被自动重试,任务状态保持不变
var ErrInvalidTransition = errors.New("invalid state transition")

// InvalidTransitionError 携带转换详情的 ErrInvalidTransition
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}
