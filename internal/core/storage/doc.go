// Package storage 提供节点的持久化存储服务
//
// 基于 BadgerDB 实现，所有组件共用一个数据库，通过 kv.Store 的键前缀隔离数据。
//
//	storage (本包)     - fx 模块与配置
//	  ├── kv           - 带前缀隔离的 KV 抽象
//	  └── engine       - 存储引擎接口
//	        └── badger - BadgerDB 实现
package storage
