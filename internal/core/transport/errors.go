package transport

import "errors"

var (
	// ErrClosed 传输已关闭
	ErrClosed = errors.New("transport: closed")

	// ErrFrameTooLarge 数据报超过最大长度
	ErrFrameTooLarge = errors.New("transport: frame too large")
)
