package game

import (
	"errors"

	"github.com/jacl-coder/CyberChess-Server/internal/engine"
	"github.com/jacl-coder/CyberChess-Server/internal/scenario"
)

// 房间管理错误
var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomFull          = errors.New("room is full")
	ErrRoomInProgress    = errors.New("room is in progress")
	ErrRoomLimit         = errors.New("too many rooms")
	ErrInvalidReconnect  = errors.New("no matching player to reconnect")
	ErrNotReady          = errors.New("players are not ready")
	ErrNotInRoom         = errors.New("not in room")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnknownConnection = errors.New("unknown connection")
	ErrInvalidPayload    = errors.New("invalid payload")
)

// 错误码
const (
	CodeRoomNotFound          = "ROOM_NOT_FOUND"
	CodeRoomFull              = "ROOM_FULL"
	CodeRoomInProgress        = "ROOM_IN_PROGRESS"
	CodeRoomLimit             = "ROOM_LIMIT"
	CodeInvalidTurn           = "INVALID_TURN"
	CodeInsufficientResources = "INSUFFICIENT_RESOURCES"
	CodeInvalidReconnect      = "INVALID_RECONNECT"
	CodeNotReady              = "NOT_READY"
	CodeNotInRoom             = "NOT_IN_ROOM"
	CodeRateLimited           = "RATE_LIMITED"
	CodeInvalidPayload        = "INVALID_PAYLOAD"
	CodeInvalidState          = "INVALID_STATE"
	CodeScenarioNotFound      = "SCENARIO_NOT_FOUND"
	CodeInternal              = "INTERNAL_ERROR"
)

// ErrorCode 将错误映射为稳定的错误码
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrRoomNotFound), errors.Is(err, engine.ErrSessionNotFound):
		return CodeRoomNotFound
	case errors.Is(err, ErrRoomFull):
		return CodeRoomFull
	case errors.Is(err, ErrRoomInProgress):
		return CodeRoomInProgress
	case errors.Is(err, ErrRoomLimit):
		return CodeRoomLimit
	case errors.Is(err, ErrInvalidReconnect):
		return CodeInvalidReconnect
	case errors.Is(err, ErrNotReady):
		return CodeNotReady
	case errors.Is(err, ErrNotInRoom), errors.Is(err, ErrUnknownConnection):
		return CodeNotInRoom
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrInvalidPayload):
		return CodeInvalidPayload
	case errors.Is(err, engine.ErrInvalidTurn):
		return CodeInvalidTurn
	case errors.Is(err, engine.ErrInsufficientResources):
		return CodeInsufficientResources
	case errors.Is(err, engine.ErrInvalidState):
		return CodeInvalidState
	case errors.Is(err, scenario.ErrScenarioNotFound):
		return CodeScenarioNotFound
	default:
		return CodeInternal
	}
}
