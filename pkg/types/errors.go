package types

import "errors"

// ============================================================================
//                              ID 相关错误
// ============================================================================

var (
	// ErrLengthMismatch 字节长度与 ID 长度不一致
	ErrLengthMismatch = errors.New("types: identifier length mismatch")

	// ErrInvalidID 无法解析的 ID 字符串
	ErrInvalidID = errors.New("types: invalid identifier")
)

// ============================================================================
//                              Contact 相关错误
// ============================================================================

var (
	// ErrInvalidAddress 无效的联系人地址
	ErrInvalidAddress = errors.New("types: invalid contact address")

	// ErrInvalidPort 无效端口
	ErrInvalidPort = errors.New("types: invalid port number")
)
