// Package types 定义 go-kad 的基础类型
//
// 这是整个系统的最底层包，不依赖任何其他内部包。
// 所有类型都是纯值类型，用于在各模块间传递数据。
//
// # 文件组织
//
//   - id.go      - ID：160 位大端标识符，XOR 距离与比较
//   - contact.go - Contact：节点 ID + 网络地址
//   - errors.go  - 公共错误定义
//
// # ID 位编号
//
// 位索引从整个标识符的最低有效位开始计数：
// 位 0 是最后一个字节的最低位，位 159 是第一个字节的最高位。
package types
