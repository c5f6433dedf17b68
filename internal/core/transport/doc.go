// Package transport 实现节点的数据报传输层
//
// DHT 的所有消息都是单个数据报，transport 只负责收发字节帧，
// 编解码与会话匹配由上层完成。
//
// # 实现
//
//   - udp（默认）：单个双栈 UDP 套接字，按来源地址限速
//
// # 使用示例
//
//	conn, err := udp.Listen(udp.Config{Port: 8810})
//	n, from, err := conn.Receive(buf)
//	err = conn.Send(frame, to)
//
// # 并发安全
//
// Receive 只应由一个接收循环调用；Send 可并发调用。
//
// # Fx 模块集成
//
//	app := fx.New(
//	    udp.Module(),
//	    fx.Invoke(func(conn transport.Conn) {
//	        // 交给 DHT 引擎使用
//	    }),
//	)
//
// 套接字的关闭由持有它的引擎负责。
package transport
