package engine

import "errors"

var (
	// ErrInvalidTurn 非当前行动方、会话未进行或原型不属于该角色
	ErrInvalidTurn = errors.New("invalid turn")
	// ErrInsufficientResources 行动点不足
	ErrInsufficientResources = errors.New("insufficient resources")
	// ErrSessionNotFound 会话不存在
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidState 会话状态不允许该操作
	ErrInvalidState = errors.New("invalid session state")
	// ErrUnknownActionType 没有注册对应的结算器，属于程序缺陷
	ErrUnknownActionType = errors.New("unknown action type")
)
