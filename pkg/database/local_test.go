package database

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"linkshare-backend/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) (DatabaseInterface, string) {
	t.Helper()
	dir := t.TempDir()
	db := NewLocalDatabase(dir)
	t.Cleanup(func() { db.Close() })
	return db, dir
}

func TestLocalPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db := NewLocalDatabase(dir)
	stored, err := db.Append(models.CollectionUsers, &models.User{
		Username: "alice", Email: "a@example.com", Password: "hash", Role: models.RoleAdmin,
	})
	require.NoError(t, err)
	createdAt := stored.(*models.User).CreatedAt
	require.NoError(t, db.Close())

	// 重新打开：时间戳从ISO-8601字符串恢复为time.Time
	reopened := NewLocalDatabase(dir)
	defer reopened.Close()

	records, err := reopened.Fetch(models.CollectionUsers)
	require.NoError(t, err)
	require.Len(t, records, 1)

	user := records[0].(*models.User)
	assert.Equal(t, stored.RecordID(), user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.False(t, user.CreatedAt.IsZero())
	assert.WithinDuration(t, createdAt, user.CreatedAt, time.Second)
}

func TestLocalFileLayout(t *testing.T) {
	db, dir := newLocal(t)

	_, err := db.Append(models.CollectionChat, &models.ChatMessage{Username: "Guest", Text: "hello"})
	require.NoError(t, err)

	// 每个集合一个JSON文件
	_, err = os.Stat(filepath.Join(dir, "chatMessages.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "users.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalEmptyCollections(t *testing.T) {
	db, _ := newLocal(t)

	for _, collection := range models.Collections {
		records, err := db.Fetch(collection)
		require.NoError(t, err)
		assert.Empty(t, records, collection)
	}
}

func TestLocalPatchAndRemove(t *testing.T) {
	db, _ := newLocal(t)

	stored, err := db.Append(models.CollectionUploads, &models.Upload{
		Title: "t", URL: "https://example.com", Status: models.UploadPending, SubmittedBy: "u",
	})
	require.NoError(t, err)

	require.NoError(t, db.Patch(models.CollectionUploads, stored.RecordID(), map[string]interface{}{
		"status": string(models.UploadApproved),
	}))

	records, err := db.Fetch(models.CollectionUploads)
	require.NoError(t, err)
	assert.Equal(t, models.UploadApproved, records[0].(*models.Upload).Status)

	// 静默跳过不存在的id
	require.NoError(t, db.Patch(models.CollectionUploads, "missing", map[string]interface{}{
		"status": string(models.UploadPending),
	}))
	require.NoError(t, db.Remove(models.CollectionUploads, "missing"))

	require.NoError(t, db.Remove(models.CollectionUploads, stored.RecordID()))
	records, err = db.Fetch(models.CollectionUploads)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestLocalRenameUser(t *testing.T) {
	db, dir := newLocal(t)

	_, err := db.Append(models.CollectionUsers, &models.User{Username: "old_name"})
	require.NoError(t, err)
	_, err = db.Append(models.CollectionUploads, &models.Upload{
		Title: "t", URL: "https://example.com", Status: models.UploadApproved, SubmittedBy: "old_name",
	})
	require.NoError(t, err)
	_, err = db.Append(models.CollectionChat, &models.ChatMessage{Username: "old_name", Text: "hi"})
	require.NoError(t, err)
	_, err = db.Append(models.CollectionAuditLog, &models.AuditLogEntry{
		AdminUsername: "old_name", Action: models.AuditRejected, UploadID: "1", UploadTitle: "t",
	})
	require.NoError(t, err)

	require.NoError(t, db.RenameUser("old_name", "new_name"))

	users, _ := db.Fetch(models.CollectionUsers)
	assert.Equal(t, "new_name", users[0].(*models.User).Username)
	uploads, _ := db.Fetch(models.CollectionUploads)
	assert.Equal(t, "new_name", uploads[0].(*models.Upload).SubmittedBy)
	messages, _ := db.Fetch(models.CollectionChat)
	assert.Equal(t, "new_name", messages[0].(*models.ChatMessage).Username)
	entries, _ := db.Fetch(models.CollectionAuditLog)
	assert.Equal(t, "new_name", entries[0].(*models.AuditLogEntry).AdminUsername)

	// 不留临时文件
	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestLocalSubscribeImmediateDelivery(t *testing.T) {
	db, _ := newLocal(t)

	_, err := db.Append(models.CollectionUploads, &models.Upload{
		Title: "t", URL: "https://example.com", Status: models.UploadPending, SubmittedBy: "u",
	})
	require.NoError(t, err)

	var got []models.Record
	unsubscribe, err := db.Subscribe(models.CollectionUploads, func(records []models.Record) {
		got = records
	})
	require.NoError(t, err)
	defer unsubscribe()

	require.Len(t, got, 1)
	assert.Equal(t, "t", got[0].(*models.Upload).Title)
}

func TestLocalWatcherPicksUpExternalWrites(t *testing.T) {
	db, dir := newLocal(t)

	delivered := make(chan int, 8)
	unsubscribe, err := db.Subscribe(models.CollectionChat, func(records []models.Record) {
		delivered <- len(records)
	})
	require.NoError(t, err)
	defer unsubscribe()

	// 初始交付
	require.Equal(t, 0, <-delivered)

	// 模拟另一个进程直接写数据文件
	payload := `[{"id":"100","username":"Guest","text":"external","timestamp":"2025-06-01T12:00:00Z"}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chatMessages.json"), []byte(payload), 0644))

	select {
	case n := <-delivered:
		assert.Equal(t, 1, n)
	case <-time.After(3 * time.Second):
		t.Fatal("external write was not observed by the watcher")
	}
}
