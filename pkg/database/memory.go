package database

import (
	"fmt"
	"sync"
	"time"

	"linkshare-backend/pkg/models"
)

// MemoryDatabase 内存存储实现（模拟实时文档存储：进程内即时提交 + 发布订阅）
type MemoryDatabase struct {
	mu          sync.RWMutex
	collections map[string][]models.Record
	notifier    *notifier
	closed      bool
}

// NewMemoryDatabase 创建内存存储实例
func NewMemoryDatabase() DatabaseInterface {
	db := &MemoryDatabase{
		collections: make(map[string][]models.Record),
	}
	for _, c := range models.Collections {
		db.collections[c] = nil
	}
	db.notifier = newNotifier(db.Fetch)
	return db
}

// Fetch 返回集合的有序内容
func (db *MemoryDatabase) Fetch(collection string) ([]models.Record, error) {
	if !knownCollection(collection) {
		return nil, fmt.Errorf("unknown collection: %s", collection)
	}

	db.mu.RLock()
	records := cloneRecords(db.collections[collection])
	db.mu.RUnlock()

	sortRecords(collection, records)
	return records, nil
}

// Append 追加记录并分配 id
func (db *MemoryDatabase) Append(collection string, record models.Record) (models.Record, error) {
	if !knownCollection(collection) {
		return nil, fmt.Errorf("unknown collection: %s", collection)
	}

	stored := cloneRecord(record)
	if stored.RecordID() == "" {
		stored.SetRecordID(timestampID())
	}
	stampCreation(stored)

	db.mu.Lock()
	db.collections[collection] = append(db.collections[collection], stored)
	db.mu.Unlock()

	db.notifier.broadcast(collection)
	return cloneRecord(stored), nil
}

// Patch 部分更新记录，id 不存在时静默跳过
func (db *MemoryDatabase) Patch(collection, id string, patch map[string]interface{}) error {
	if err := validatePatch(collection, patch); err != nil {
		return err
	}

	db.mu.Lock()
	found := false
	for _, record := range db.collections[collection] {
		if record.RecordID() == id {
			if err := applyPatch(record, patch); err != nil {
				db.mu.Unlock()
				return err
			}
			found = true
			break
		}
	}
	db.mu.Unlock()

	if found {
		db.notifier.broadcast(collection)
	}
	return nil
}

// Remove 删除记录，id 不存在时静默跳过
func (db *MemoryDatabase) Remove(collection, id string) error {
	if !knownCollection(collection) {
		return fmt.Errorf("unknown collection: %s", collection)
	}

	db.mu.Lock()
	records := db.collections[collection]
	found := false
	for i, record := range records {
		if record.RecordID() == id {
			db.collections[collection] = append(records[:i], records[i+1:]...)
			found = true
			break
		}
	}
	db.mu.Unlock()

	if found {
		db.notifier.broadcast(collection)
	}
	return nil
}

// Subscribe 订阅集合变更
func (db *MemoryDatabase) Subscribe(collection string, fn func([]models.Record)) (func(), error) {
	return db.notifier.subscribe(collection, fn)
}

// RenameUser 级联改写所有冗余的用户名字段（单一提交点，失败则不产生任何变更）
func (db *MemoryDatabase) RenameUser(oldUsername, newUsername string) error {
	db.mu.Lock()

	// 先在暂存副本上改写，全部成功后一次性替换
	staged := make(map[string][]models.Record, len(db.collections))
	changed := make(map[string]bool)
	for collection, records := range db.collections {
		copied := cloneRecords(records)
		for _, record := range copied {
			if renameInRecord(record, oldUsername, newUsername) {
				changed[collection] = true
			}
		}
		staged[collection] = copied
	}

	for collection, records := range staged {
		db.collections[collection] = records
	}
	db.mu.Unlock()

	for collection := range changed {
		db.notifier.broadcast(collection)
	}
	return nil
}

// HealthCheck 健康检查
func (db *MemoryDatabase) HealthCheck() error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return fmt.Errorf("memory store is closed")
	}
	return nil
}

// Close 关闭存储
func (db *MemoryDatabase) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.closed = true
	return nil
}

// stampCreation 补齐新记录缺失的时间戳
func stampCreation(record models.Record) {
	now := time.Now()
	switch v := record.(type) {
	case *models.User:
		if v.CreatedAt.IsZero() {
			v.CreatedAt = now
		}
		v.UpdatedAt = now
	case *models.Upload:
		if v.CreatedAt.IsZero() {
			v.CreatedAt = now
		}
	case *models.ChatMessage:
		if v.Timestamp.IsZero() {
			v.Timestamp = now
		}
	case *models.AuditLogEntry:
		if v.Timestamp.IsZero() {
			v.Timestamp = now
		}
	}
}
