package capability

import (
	"errors"
	"fmt"
)

var (
	// ErrAgentBusy Agent 正在执行任务
	ErrAgentBusy = errors.New("agent is busy")

	// ErrAgentNotFound Agent 不存在
	ErrAgentNotFound = errors.New("agent not found")

	// ErrAgentUnavailable Agent 处于不可指派的状态（error / stopping / stopped）
	ErrAgentUnavailable = errors.New("agent is not available for assignment")

	// ErrTaskNotFound 任务不在执行中
	ErrTaskNotFound = errors.New("task not found")

	// ErrNoEligibleAgent 没有满足必需能力的候选 Agent
	ErrNoEligibleAgent = errors.New("no eligible agent")

	// ErrQueueFull 等待队列已满
	ErrQueueFull = errors.New("agent queue is full")

	// ErrInvalidConfiguration 配置无效
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrManagerClosed 管理器已关闭
	ErrManagerClosed = errors.New("manager is shut down")

	// ErrUnknownAction 未知的优化动作
	ErrUnknownAction = errors.New("unknown optimization action")
)

// UnknownAgentTypeError 类型名不在能力目录中
type UnknownAgentTypeError struct {
	TypeName string
}

func (e UnknownAgentTypeError) Error() string {
	return fmt.Sprintf("unknown agent type: %s", e.TypeName)
}

// InvalidTransitionError 非法状态转换
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}
