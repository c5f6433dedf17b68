package store

import "errors"

var (
	// ErrClosed 存储已关闭
	ErrClosed = errors.New("store: closed")

	// ErrNilKV 未提供底层 KV 存储
	ErrNilKV = errors.New("store: kv store is required")
)
