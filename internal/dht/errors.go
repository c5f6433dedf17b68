package dht

import (
	"errors"
	"fmt"
)

// 预定义错误
var (
	// ErrNotStarted 引擎未启动
	ErrNotStarted = errors.New("dht: engine not started")

	// ErrAlreadyStarted 引擎已启动
	ErrAlreadyStarted = errors.New("dht: engine already started")

	// ErrClosed 引擎已停止
	ErrClosed = errors.New("dht: engine is closed")

	// ErrInvalidConfig 无效配置
	ErrInvalidConfig = errors.New("dht: invalid config")

	// ErrNilTransport 未提供传输
	ErrNilTransport = errors.New("dht: transport is nil")

	// ErrNilStore 未提供本地存储
	ErrNilStore = errors.New("dht: local store is nil")

	// ErrValueTooLarge 值超过 MaxValueSize
	ErrValueTooLarge = errors.New("dht: value too large")

	// ErrValueGone 复制时值已不在本地存储
	ErrValueGone = errors.New("dht: value no longer stored")
)

// Error DHT 错误类型
type Error struct {
	Op      string // 操作名称
	Err     error  // 底层错误
	Message string // 错误消息
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("dht %s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("dht %s: %v", e.Op, e.Err)
}

// Unwrap 实现错误解包
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError 创建 DHT 错误
func NewError(op string, err error, message string) *Error {
	return &Error{Op: op, Err: err, Message: message}
}
