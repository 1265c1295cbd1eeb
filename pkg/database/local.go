package database

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"linkshare-backend/pkg/models"

	"github.com/fsnotify/fsnotify"
)

// LocalDatabase 本地 JSON 文件存储实现
//
// 每个集合一个文件（users.json、uploads.json、chatMessages.json、auditLog.json），
// 对应浏览器端的 localStorage 键。目录由 fsnotify 监听：另一个进程写入
// 数据文件时重新读取对应集合并通知订阅者（等价于浏览器的 storage 事件）。
type LocalDatabase struct {
	dataDir  string
	mu       sync.Mutex
	notifier *notifier
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewLocalDatabase 创建本地文件存储实例
func NewLocalDatabase(dataDir string) DatabaseInterface {
	if dataDir == "" {
		dataDir = "./data"
	}

	// 尝试创建数据目录，失败则回退到临时目录
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		fmt.Printf("Warning: Failed to create data directory: %v\n", err)
		dataDir = filepath.Join(os.TempDir(), "linkshare-data")
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			fmt.Printf("Warning: Failed to create temp data directory: %v\n", err)
			dataDir = "."
		}
	}

	db := &LocalDatabase{
		dataDir: dataDir,
		done:    make(chan struct{}),
	}
	db.notifier = newNotifier(db.Fetch)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fmt.Printf("Warning: storage watch disabled, fsnotify unavailable: %v\n", err)
	} else if err := watcher.Add(dataDir); err != nil {
		fmt.Printf("Warning: storage watch disabled for %s: %v\n", dataDir, err)
		watcher.Close()
	} else {
		db.watcher = watcher
		go db.watchStorage()
	}

	return db
}

// watchStorage 监听数据目录的外部写入并广播对应集合的变更
func (db *LocalDatabase) watchStorage() {
	for {
		select {
		case event, ok := <-db.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			collection := strings.TrimSuffix(filepath.Base(event.Name), ".json")
			if knownCollection(collection) {
				db.notifier.broadcast(collection)
			}
		case _, ok := <-db.watcher.Errors:
			if !ok {
				return
			}
		case <-db.done:
			return
		}
	}
}

// Fetch 返回集合的有序内容
func (db *LocalDatabase) Fetch(collection string) ([]models.Record, error) {
	if !knownCollection(collection) {
		return nil, fmt.Errorf("unknown collection: %s", collection)
	}

	db.mu.Lock()
	records, err := db.load(collection)
	db.mu.Unlock()
	if err != nil {
		return nil, err
	}

	sortRecords(collection, records)
	return records, nil
}

// Append 追加记录并分配 id
func (db *LocalDatabase) Append(collection string, record models.Record) (models.Record, error) {
	if !knownCollection(collection) {
		return nil, fmt.Errorf("unknown collection: %s", collection)
	}

	stored := cloneRecord(record)
	if stored.RecordID() == "" {
		stored.SetRecordID(timestampID())
	}
	stampCreation(stored)

	db.mu.Lock()
	records, err := db.load(collection)
	if err != nil {
		db.mu.Unlock()
		return nil, err
	}
	records = append(records, stored)
	err = db.save(collection, records)
	db.mu.Unlock()
	if err != nil {
		return nil, err
	}

	db.notifier.broadcast(collection)
	return cloneRecord(stored), nil
}

// Patch 部分更新记录，id 不存在时静默跳过
func (db *LocalDatabase) Patch(collection, id string, patch map[string]interface{}) error {
	if err := validatePatch(collection, patch); err != nil {
		return err
	}

	db.mu.Lock()
	records, err := db.load(collection)
	if err != nil {
		db.mu.Unlock()
		return err
	}

	found := false
	for _, record := range records {
		if record.RecordID() == id {
			if err := applyPatch(record, patch); err != nil {
				db.mu.Unlock()
				return err
			}
			found = true
			break
		}
	}

	if !found {
		db.mu.Unlock()
		return nil
	}

	err = db.save(collection, records)
	db.mu.Unlock()
	if err != nil {
		return err
	}

	db.notifier.broadcast(collection)
	return nil
}

// Remove 删除记录，id 不存在时静默跳过
func (db *LocalDatabase) Remove(collection, id string) error {
	if !knownCollection(collection) {
		return fmt.Errorf("unknown collection: %s", collection)
	}

	db.mu.Lock()
	records, err := db.load(collection)
	if err != nil {
		db.mu.Unlock()
		return err
	}

	found := false
	for i, record := range records {
		if record.RecordID() == id {
			records = append(records[:i], records[i+1:]...)
			found = true
			break
		}
	}

	if !found {
		db.mu.Unlock()
		return nil
	}

	err = db.save(collection, records)
	db.mu.Unlock()
	if err != nil {
		return err
	}

	db.notifier.broadcast(collection)
	return nil
}

// Subscribe 订阅集合变更
func (db *LocalDatabase) Subscribe(collection string, fn func([]models.Record)) (func(), error) {
	return db.notifier.subscribe(collection, fn)
}

// RenameUser 级联改写所有冗余的用户名字段
//
// 四个集合先全部写入临时文件，然后逐个原子替换；任何一步失败都会在替换
// 之前中止并清理临时文件，不留下部分改写的状态。
func (db *LocalDatabase) RenameUser(oldUsername, newUsername string) error {
	db.mu.Lock()

	staged := make(map[string][]models.Record)
	changed := make([]string, 0, len(models.Collections))
	for _, collection := range models.Collections {
		records, err := db.load(collection)
		if err != nil {
			db.mu.Unlock()
			return fmt.Errorf("rename aborted, failed to load %s: %w", collection, err)
		}
		touched := false
		for _, record := range records {
			if renameInRecord(record, oldUsername, newUsername) {
				touched = true
			}
		}
		if touched {
			staged[collection] = records
			changed = append(changed, collection)
		}
	}

	// 写临时文件
	tempFiles := make(map[string]string, len(staged))
	abort := func() {
		for _, tmp := range tempFiles {
			os.Remove(tmp)
		}
	}
	for collection, records := range staged {
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			abort()
			db.mu.Unlock()
			return fmt.Errorf("rename aborted, failed to encode %s: %w", collection, err)
		}
		tmp := db.filePath(collection) + ".tmp"
		if err := os.WriteFile(tmp, data, 0644); err != nil {
			abort()
			db.mu.Unlock()
			return fmt.Errorf("rename aborted, failed to stage %s: %w", collection, err)
		}
		tempFiles[collection] = tmp
	}

	// 全部暂存成功后才替换
	for collection, tmp := range tempFiles {
		if err := os.Rename(tmp, db.filePath(collection)); err != nil {
			abort()
			db.mu.Unlock()
			return fmt.Errorf("rename failed while committing %s: %w", collection, err)
		}
	}
	db.mu.Unlock()

	for _, collection := range changed {
		db.notifier.broadcast(collection)
	}
	return nil
}

// HealthCheck 健康检查
func (db *LocalDatabase) HealthCheck() error {
	// 检查数据目录是否可访问
	if _, err := os.Stat(db.dataDir); os.IsNotExist(err) {
		return fmt.Errorf("data directory does not exist: %s", db.dataDir)
	}
	return nil
}

// Close 关闭存储
func (db *LocalDatabase) Close() error {
	close(db.done)
	if db.watcher != nil {
		return db.watcher.Close()
	}
	return nil
}

// 私有辅助方法

func (db *LocalDatabase) filePath(collection string) string {
	return filepath.Join(db.dataDir, collection+".json")
}

func (db *LocalDatabase) load(collection string) ([]models.Record, error) {
	data, err := os.ReadFile(db.filePath(collection))
	if os.IsNotExist(err) {
		return []models.Record{}, nil
	}
	if err != nil {
		return nil, err
	}

	return decodeRecords(collection, data)
}

func (db *LocalDatabase) save(collection string, records []models.Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(db.filePath(collection), data, 0644)
}
