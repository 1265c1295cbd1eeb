package database

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"linkshare-backend/pkg/models"
)

// 本地后端的 id 分配：时间戳派生、单调递增（模拟浏览器端 Date.now()）
var (
	idMu   sync.Mutex
	lastID int64
)

func timestampID() string {
	idMu.Lock()
	defer idMu.Unlock()
	now := time.Now().UnixMilli()
	if now <= lastID {
		now = lastID + 1
	}
	lastID = now
	return strconv.FormatInt(now, 10)
}

// cloneRecord 深拷贝一条记录，避免调用方与存储共享可变状态
func cloneRecord(r models.Record) models.Record {
	switch v := r.(type) {
	case *models.User:
		c := *v
		return &c
	case *models.Upload:
		c := *v
		return &c
	case *models.ChatMessage:
		c := *v
		return &c
	case *models.AuditLogEntry:
		c := *v
		return &c
	}
	return r
}

func cloneRecords(records []models.Record) []models.Record {
	out := make([]models.Record, len(records))
	for i, r := range records {
		out[i] = cloneRecord(r)
	}
	return out
}

// applyPatch 将白名单字段写入记录（仅内存/文件后端使用，SQL 后端走 UPDATE）
func applyPatch(record models.Record, patch map[string]interface{}) error {
	for key, value := range patch {
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("patch value for %q must be a string", key)
		}
		switch v := record.(type) {
		case *models.User:
			switch key {
			case "username":
				v.Username = str
			case "email":
				v.Email = str
			case "password_hash":
				v.Password = str
			case "role":
				v.Role = models.Role(str)
			default:
				return fmt.Errorf("patch key %q is not allowed for users", key)
			}
			v.UpdatedAt = time.Now()
		case *models.Upload:
			switch key {
			case "title":
				v.Title = str
			case "description":
				v.Description = str
			case "status":
				v.Status = models.UploadStatus(str)
			default:
				return fmt.Errorf("patch key %q is not allowed for uploads", key)
			}
		default:
			return fmt.Errorf("record type does not support patching")
		}
	}
	return nil
}

// sortRecords 按集合的固定顺序排序：
// uploads/auditLog 倒序（最新在前），chatMessages 正序，users 按创建时间
func sortRecords(collection string, records []models.Record) {
	switch collection {
	case models.CollectionUploads:
		sort.SliceStable(records, func(i, j int) bool {
			a := records[i].(*models.Upload)
			b := records[j].(*models.Upload)
			return a.CreatedAt.After(b.CreatedAt)
		})
	case models.CollectionAuditLog:
		sort.SliceStable(records, func(i, j int) bool {
			a := records[i].(*models.AuditLogEntry)
			b := records[j].(*models.AuditLogEntry)
			return a.Timestamp.After(b.Timestamp)
		})
	case models.CollectionChat:
		sort.SliceStable(records, func(i, j int) bool {
			a := records[i].(*models.ChatMessage)
			b := records[j].(*models.ChatMessage)
			return a.Timestamp.Before(b.Timestamp)
		})
	case models.CollectionUsers:
		sort.SliceStable(records, func(i, j int) bool {
			a := records[i].(*models.User)
			b := records[j].(*models.User)
			return a.CreatedAt.Before(b.CreatedAt)
		})
	}
}

// decodeRecords 将集合的 JSON 数组解码为记录切片
// 时间戳以 ISO-8601 字符串序列化，解码后恢复为 time.Time
func decodeRecords(collection string, data []byte) ([]models.Record, error) {
	switch collection {
	case models.CollectionUsers:
		var users []models.User
		if err := json.Unmarshal(data, &users); err != nil {
			return nil, err
		}
		out := make([]models.Record, len(users))
		for i := range users {
			out[i] = &users[i]
		}
		return out, nil
	case models.CollectionUploads:
		var uploads []models.Upload
		if err := json.Unmarshal(data, &uploads); err != nil {
			return nil, err
		}
		out := make([]models.Record, len(uploads))
		for i := range uploads {
			out[i] = &uploads[i]
		}
		return out, nil
	case models.CollectionChat:
		var messages []models.ChatMessage
		if err := json.Unmarshal(data, &messages); err != nil {
			return nil, err
		}
		out := make([]models.Record, len(messages))
		for i := range messages {
			out[i] = &messages[i]
		}
		return out, nil
	case models.CollectionAuditLog:
		var entries []models.AuditLogEntry
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, err
		}
		out := make([]models.Record, len(entries))
		for i := range entries {
			out[i] = &entries[i]
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown collection: %s", collection)
}

// renameInRecord 将记录中所有冗余的用户名字段从 old 改为 new。
// 返回是否发生了改写。
func renameInRecord(record models.Record, oldUsername, newUsername string) bool {
	switch v := record.(type) {
	case *models.User:
		if v.Username == oldUsername {
			v.Username = newUsername
			v.UpdatedAt = time.Now()
			return true
		}
	case *models.Upload:
		if v.SubmittedBy == oldUsername {
			v.SubmittedBy = newUsername
			return true
		}
	case *models.ChatMessage:
		if v.Username == oldUsername {
			v.Username = newUsername
			return true
		}
	case *models.AuditLogEntry:
		if v.AdminUsername == oldUsername {
			v.AdminUsername = newUsername
			return true
		}
	}
	return false
}
