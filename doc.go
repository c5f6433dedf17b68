// Package kad 提供 Kademlia 分布式哈希表节点
//
// 节点通过 UDP 与对等节点交换消息，维护 160 位标识空间上的路由表，
// 并把值保存在本地 Badger 存储中，定期过期、复制与刷新。
//
// # 快速开始
//
//	import kad "github.com/dep2p/go-kad"
//
//	node, err := kad.New(ctx,
//	    kad.WithPort(0),
//	    kad.WithRegistry("http://localhost:5000/"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Close()
//
//	if err := node.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	_ = node.Put(ctx, "greeting", []byte("hello"))
//	values := node.Get(ctx, "greeting")
//
// # 入网流程
//
// Start 启动传输与后台循环后执行 Connect：
//
//  1. 合并静态引导节点与注册中心返回的节点列表
//  2. 注册中心不可用时使用兜底节点
//  3. 逐个 Bootstrap（Ping 并写入路由表）
//  4. JoinNetwork（查找自身 ID 填充路由表）
//  5. 入网成功且启用登记时，向注册中心登记本节点端口
//
// 任何一步失败都不会阻止节点启动。
//
// # 文件组织
//
//	kad/
//	├── doc.go       # 包文档
//	├── version.go   # 版本信息
//	├── errors.go    # 公共错误
//	├── options.go   # 用户选项
//	├── fx.go        # Fx 应用组装
//	├── node.go      # Node 定义、生命周期
//	└── connect.go   # 引导、入网与登记
package kad
