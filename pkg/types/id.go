package types

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/bits"

	"github.com/mr-tron/base58"
	"lukechampine.com/blake3"
)

// ============================================================================
//                              ID - 160 位标识符
// ============================================================================

const (
	// IDLength ID 字节长度
	IDLength = 20

	// IDBits ID 位长度
	IDBits = IDLength * 8
)

// ID 160 位大端标识符
//
// 既是节点在覆盖网络中的地址，也是查找键。按无符号整数比较，
// 节点间距离为两者的 XOR。
type ID [IDLength]byte

// ZeroID 全零 ID
var ZeroID ID

// RandomID 生成均匀随机的 ID
func RandomID() ID {
	var id ID
	if _, err := rand.Read(id[:]); err != nil {
		panic(fmt.Sprintf("types: crypto/rand failed: %v", err))
	}
	return id
}

// IDFromBytes 从字节切片创建 ID
//
// 长度必须恰好为 IDLength，否则返回 ErrLengthMismatch。
func IDFromBytes(b []byte) (ID, error) {
	var id ID
	if len(b) != IDLength {
		return id, fmt.Errorf("%w: got %d bytes, want %d", ErrLengthMismatch, len(b), IDLength)
	}
	copy(id[:], b)
	return id, nil
}

// HashID 计算任意字节内容的 160 位摘要
//
// 使用 BLAKE3 并将输出长度设为 IDLength。
func HashID(data []byte) ID {
	h := blake3.New(IDLength, nil)
	_, _ = h.Write(data)
	var id ID
	copy(id[:], h.Sum(nil))
	return id
}

// HashString 计算字符串键的 ID
func HashString(key string) ID {
	return HashID([]byte(key))
}

// ParseID 从 Base58 字符串解析 ID
func ParseID(s string) (ID, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return ZeroID, fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	return IDFromBytes(b)
}

// ParseHexID 从十六进制字符串解析 ID
func ParseHexID(s string) (ID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ZeroID, fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	return IDFromBytes(b)
}

// String 返回 Base58 表示
func (id ID) String() string {
	return base58.Encode(id[:])
}

// ShortString 返回 Base58 前 8 个字符，用于日志
func (id ID) ShortString() string {
	s := id.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// Hex 返回十六进制表示
func (id ID) Hex() string {
	return hex.EncodeToString(id[:])
}

// Bytes 返回字节切片副本
func (id ID) Bytes() []byte {
	b := make([]byte, IDLength)
	copy(b, id[:])
	return b
}

// IsZero 是否为全零 ID
func (id ID) IsZero() bool {
	return id == ZeroID
}

// Equal 比较两个 ID 是否相等
func (id ID) Equal(other ID) bool {
	return id == other
}

// ============================================================================
//                              距离与比较
// ============================================================================

// Xor 返回 XOR 距离
func (id ID) Xor(other ID) ID {
	var d ID
	for i := range id {
		d[i] = id[i] ^ other[i]
	}
	return d
}

// Compare 按无符号大端整数比较，返回 -1 / 0 / 1
func (id ID) Compare(other ID) int {
	return bytes.Compare(id[:], other[:])
}

// Less 是否按无符号整数小于 other
func (id ID) Less(other ID) bool {
	return id.Compare(other) < 0
}

// CloserTo 判断 id 到 target 的距离是否严格小于 other 到 target 的距离
func (id ID) CloserTo(target, other ID) bool {
	return id.Xor(target).Less(other.Xor(target))
}

// Bit 返回位 i 的值（0 为最低有效位）
func (id ID) Bit(i int) uint {
	byteIdx, mask := bitPosition(i)
	if id[byteIdx]&mask != 0 {
		return 1
	}
	return 0
}

// HighestDifferingBit 返回两个 ID 的最高不同位索引
//
// 取值范围 [0, IDBits-1]，0 表示最低有效位。
// 调用方必须保证两者不相等；相等时返回 -1。
func (id ID) HighestDifferingBit(other ID) int {
	for i := 0; i < IDLength; i++ {
		if x := id[i] ^ other[i]; x != 0 {
			return (IDLength-1-i)*8 + bits.Len8(x) - 1
		}
	}
	return -1
}

// RandomizeBeyond 生成落在指定桶中的随机 ID
//
// 返回 id 的副本：翻转位 bit，保持所有更高位不变，比 bit 更低的位
// 全部随机。结果与 id 的最高不同位恰好是 bit。
func (id ID) RandomizeBeyond(bit int) ID {
	if bit < 0 || bit >= IDBits {
		panic(fmt.Sprintf("types: bit index %d out of range", bit))
	}

	noise := RandomID()
	out := id
	for i := 0; i < bit; i++ {
		byteIdx, mask := bitPosition(i)
		out[byteIdx] = (out[byteIdx] &^ mask) | (noise[byteIdx] & mask)
	}

	byteIdx, mask := bitPosition(bit)
	out[byteIdx] ^= mask
	return out
}

// bitPosition 将位索引转换为字节下标与掩码
func bitPosition(i int) (int, byte) {
	return IDLength - 1 - i/8, byte(1) << (i % 8)
}
