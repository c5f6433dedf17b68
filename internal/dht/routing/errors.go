package routing

import "errors"

var (
	// ErrOwnID 操作对象是本节点自身 ID
	ErrOwnID = errors.New("routing: own identifier is never stored")

	// ErrBucketFull 目标桶已满，调用方需先通过 Blocker 解决
	ErrBucketFull = errors.New("routing: bucket is full")
)
