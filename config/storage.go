package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// StorageConfig 存储配置
//
// 数据目录结构：
//
//	${DataDir}/
//	└── kad.db/         # BadgerDB（值索引 + 值负载）
type StorageConfig struct {
	// DataDir 数据目录路径
	DataDir string `json:"data_dir"`

	// SyncWrites 每次写入同步到磁盘
	SyncWrites bool `json:"sync_writes"`

	// IndexSaveInterval 值索引定期保存间隔
	IndexSaveInterval Duration `json:"index_save_interval"`

	// GCInterval BadgerDB 值日志 GC 间隔，0 表示禁用
	GCInterval Duration `json:"gc_interval"`
}

// DefaultStorageConfig 返回默认的存储配置
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		DataDir:           "./data",
		SyncWrites:        false,
		IndexSaveInterval: Duration(10 * time.Minute),
		GCInterval:        Duration(10 * time.Minute),
	}
}

// Validate 验证存储配置的有效性
func (c *StorageConfig) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("storage: data_dir cannot be empty")
	}
	if c.IndexSaveInterval <= 0 {
		return fmt.Errorf("storage: index_save_interval must be positive")
	}
	if c.GCInterval < 0 {
		return fmt.Errorf("storage: gc_interval cannot be negative")
	}
	return nil
}

// DBPath 返回 BadgerDB 数据库路径
func (c *StorageConfig) DBPath() string {
	return filepath.Join(c.DataDir, "kad.db")
}
