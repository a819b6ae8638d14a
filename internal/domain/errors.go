package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrBotNotFound      = errors.New("bot not found")
	ErrInvalidConfig    = errors.New("invalid bot config")
	ErrUnknownAlert     = errors.New("unknown alert kind")
	ErrDuplicateAlert   = errors.New("duplicate alert")
	ErrPriceUnavailable = errors.New("price unavailable")
	ErrPositionClosed   = errors.New("position already closed")
	ErrRateLimited      = errors.New("rate limited")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrWSDisconnect     = errors.New("websocket disconnected")
	ErrLockHeld         = errors.New("lock already held")
)
