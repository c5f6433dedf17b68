package registry

import "errors"

// 预定义错误
var (
	// ErrInvalidURL 注册中心地址无效
	ErrInvalidURL = errors.New("registry: invalid url")

	// ErrUnexpectedStatus 注册中心返回非成功状态码
	ErrUnexpectedStatus = errors.New("registry: unexpected status")

	// ErrInvalidPort 登记的端口无效
	ErrInvalidPort = errors.New("registry: invalid port")
)
