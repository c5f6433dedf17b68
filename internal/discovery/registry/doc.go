// Package registry 实现节点目录服务及其 HTTP 客户端
//
// 目录服务维护一份有界的已知节点列表，首项固定为兜底种子节点。
// 节点入网成功后通过 POST /nodes 登记自己的端口，地址由服务端按
// 请求来源推断；新节点启动时通过 GET /nodes 获取引导列表。
//
// # 线格式
//
//	GET  /nodes  -> [{"hostAddress":"127.0.0.1","hostPort":8810}, ...]
//	POST /nodes  <- {"hostPort":9000}
package registry
