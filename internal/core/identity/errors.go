package identity

import "errors"

var (
	// ErrLocked 确定性 ID 已被其他进程持有
	ErrLocked = errors.New("identity: host identity held by another process")

	// ErrUnknownMode 未知的身份模式
	ErrUnknownMode = errors.New("identity: unknown identity mode")
)
