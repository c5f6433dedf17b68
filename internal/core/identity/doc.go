// Package identity 提供节点 ID 来源
//
// 两种提供者：
//
//   - Random：每次启动生成随机 ID
//   - Host：由可执行文件路径、用户名、主机名、操作系统与网卡 MAC 地址派生的
//     确定性 ID。同一主机同一用户下只有第一个进程能持有它（文件锁），
//     其余进程回退为随机 ID。
//
// 确定性 ID 的唯一性是尽力而为的：文件锁失效时两个进程可能得到同一 ID，
// 随机回退始终安全。
package identity
