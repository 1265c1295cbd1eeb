package database

import (
	"fmt"

	"linkshare-backend/pkg/models"
)

// DatabaseInterface 定义存储访问接口
//
// 所有后端共享同一份逻辑契约：
//   - Fetch 返回有序的集合内容（uploads/auditLog 倒序，chatMessages 正序）
//   - Append 分配 id 并返回已存储的记录
//   - Patch / Remove 对不存在的 id 静默跳过
//   - Subscribe 注册后立即以当前内容回调一次，之后每次提交的变更（本地或外部）
//     至少回调一次；不同集合之间没有顺序保证
//   - RenameUser 是跨四个集合的单一事务：users.username、uploads.submitted_by、
//     chatMessages.username、auditLog.admin_username 要么全部改写，要么全部不改
type DatabaseInterface interface {
	Fetch(collection string) ([]models.Record, error)
	Append(collection string, record models.Record) (models.Record, error)
	// Patch performs a partial update using the provided patch map.
	// Allowed keys per collection: users -> "username","email","password_hash","role";
	// uploads -> "title","description","status". Chat and audit log are append-only.
	Patch(collection, id string, patch map[string]interface{}) error
	Remove(collection, id string) error
	Subscribe(collection string, fn func(records []models.Record)) (func(), error)
	RenameUser(oldUsername, newUsername string) error

	// 健康检查
	HealthCheck() error

	// 关闭连接
	Close() error
}

// DatabaseConfig 存储配置
type DatabaseConfig struct {
	Backend     string // memory | local | sqlite | postgres
	DataDir     string
	SQLitePath  string
	PostgresDSN string
	Debug       bool
}

// NewDatabase 根据配置选择存储实现
func NewDatabase(config DatabaseConfig) DatabaseInterface {
	switch config.Backend {
	case "memory":
		fmt.Printf("🧠  Using in-memory store\n")
		return NewMemoryDatabase()
	case "local":
		fmt.Printf("🗂️  Using local JSON file store at %s\n", config.DataDir)
		return NewLocalDatabase(config.DataDir)
	case "sqlite":
		fmt.Printf("🗄️  Using SQLite store at %s\n", config.SQLitePath)
		return NewSQLiteDatabase(config.SQLitePath)
	case "postgres":
		fmt.Printf("🌐  Using PostgreSQL store\n")
		return NewPostgresDatabase(config.PostgresDSN)
	}

	panic("No valid store backend configured. Please set STORE_BACKEND to memory, local, sqlite or postgres")
}

// allowedPatchKeys 各集合允许的部分更新字段
var allowedPatchKeys = map[string]map[string]bool{
	models.CollectionUsers: {
		"username":      true,
		"email":         true,
		"password_hash": true,
		"role":          true,
	},
	models.CollectionUploads: {
		"title":       true,
		"description": true,
		"status":      true,
	},
}

// validatePatch 校验 patch 的集合与字段
func validatePatch(collection string, patch map[string]interface{}) error {
	allowed, ok := allowedPatchKeys[collection]
	if !ok {
		return fmt.Errorf("collection %s is append-only and cannot be patched", collection)
	}
	for key := range patch {
		if !allowed[key] {
			return fmt.Errorf("patch key %q is not allowed for collection %s", key, collection)
		}
	}
	return nil
}

// knownCollection 检查集合名是否合法
func knownCollection(collection string) bool {
	switch collection {
	case models.CollectionUsers, models.CollectionUploads, models.CollectionChat, models.CollectionAuditLog:
		return true
	}
	return false
}
