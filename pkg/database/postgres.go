package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"linkshare-backend/pkg/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// pgNotifyChannel 变更通知使用的 LISTEN/NOTIFY 通道，payload 为集合名
const pgNotifyChannel = "linkshare_changes"

// PostgresDatabase PostgreSQL存储实现
type PostgresDatabase struct {
	db       *sql.DB
	listener *pq.Listener
	notifier *notifier
	done     chan struct{}
}

// NewPostgresDatabase 创建PostgreSQL存储实例
func NewPostgresDatabase(dsn string) DatabaseInterface {
	// 尝试多种连接策略来适配受限网络环境
	// Sanitize DSN to avoid stray CR/LF from env values
	dsn = strings.TrimSpace(dsn)
	strategies := []string{
		addConnectionParams(dsn, "prefer_simple_protocol=true"),
		addConnectionParams(dsn, "prefer_simple_protocol=true&connect_timeout=10"),
		dsn, // 最后尝试原始DSN
	}

	var db *sql.DB
	var err error

	for i, strategy := range strategies {
		fmt.Printf("🔄 Trying connection strategy %d...\n", i+1)

		db, err = sql.Open("postgres", strategy)
		if err != nil {
			fmt.Printf("❌ Strategy %d failed to open: %v\n", i+1, err)
			continue
		}

		// 设置连接池参数
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)

		// 测试连接
		if err = db.Ping(); err != nil {
			fmt.Printf("❌ Strategy %d failed to ping: %v\n", i+1, err)
			db.Close()
			continue
		}

		fmt.Printf("✅ PostgreSQL connection established successfully with strategy %d\n", i+1)

		store := &PostgresDatabase{
			db:   db,
			done: make(chan struct{}),
		}
		store.notifier = newNotifier(store.Fetch)
		store.startListener(dsn)
		return store
	}

	// 所有策略都失败了
	panic(fmt.Sprintf("Failed to connect to PostgreSQL with all strategies. Last error: %v", err))
}

// startListener 订阅服务端变更通知（其他实例的提交也会触发）
func (db *PostgresDatabase) startListener(dsn string) {
	listener := pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			fmt.Printf("⚠️  PostgreSQL listener event %d: %v\n", ev, err)
		}
	})
	if err := listener.Listen(pgNotifyChannel); err != nil {
		fmt.Printf("⚠️  Live change notifications disabled: %v\n", err)
		listener.Close()
		return
	}

	db.listener = listener
	go func() {
		for {
			select {
			case n := <-listener.Notify:
				if n != nil && knownCollection(n.Extra) {
					db.notifier.broadcast(n.Extra)
				}
			case <-db.done:
				return
			}
		}
	}()
}

// addConnectionParams 添加连接参数到DSN
func addConnectionParams(dsn, params string) string {
	if params == "" {
		return dsn
	}

	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}

	return dsn + separator + params
}

// notifyChange 在本进程广播变更，并通过 pg_notify 通知其他实例
func (db *PostgresDatabase) notifyChange(collection string) {
	if _, err := db.db.Exec("SELECT pg_notify($1, $2)", pgNotifyChannel, collection); err != nil {
		fmt.Printf("⚠️  pg_notify failed for %s: %v\n", collection, err)
	}
	db.notifier.broadcast(collection)
}

// Fetch 返回集合的有序内容
func (db *PostgresDatabase) Fetch(collection string) ([]models.Record, error) {
	switch collection {
	case models.CollectionUsers:
		rows, err := db.db.Query(`
            SELECT id, username, COALESCE(email,''), COALESCE(password_hash,''), role, created_at, updated_at
            FROM users ORDER BY created_at ASC
        `)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch users: %w", err)
		}
		defer rows.Close()

		var records []models.Record
		for rows.Next() {
			var u models.User
			if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
				return nil, fmt.Errorf("failed to scan user: %w", err)
			}
			records = append(records, &u)
		}
		return records, rows.Err()

	case models.CollectionUploads:
		rows, err := db.db.Query(`
            SELECT id, title, url, COALESCE(description,''), status, submitted_by, created_at
            FROM uploads ORDER BY created_at DESC
        `)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch uploads: %w", err)
		}
		defer rows.Close()

		var records []models.Record
		for rows.Next() {
			var u models.Upload
			if err := rows.Scan(&u.ID, &u.Title, &u.URL, &u.Description, &u.Status, &u.SubmittedBy, &u.CreatedAt); err != nil {
				return nil, fmt.Errorf("failed to scan upload: %w", err)
			}
			records = append(records, &u)
		}
		return records, rows.Err()

	case models.CollectionChat:
		rows, err := db.db.Query(`
            SELECT id, username, text, timestamp
            FROM chat_messages ORDER BY timestamp ASC
        `)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch chat messages: %w", err)
		}
		defer rows.Close()

		var records []models.Record
		for rows.Next() {
			var m models.ChatMessage
			if err := rows.Scan(&m.ID, &m.Username, &m.Text, &m.Timestamp); err != nil {
				return nil, fmt.Errorf("failed to scan chat message: %w", err)
			}
			records = append(records, &m)
		}
		return records, rows.Err()

	case models.CollectionAuditLog:
		rows, err := db.db.Query(`
            SELECT id, admin_username, action, upload_id, upload_title, timestamp
            FROM audit_log ORDER BY timestamp DESC
        `)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch audit log: %w", err)
		}
		defer rows.Close()

		var records []models.Record
		for rows.Next() {
			var e models.AuditLogEntry
			if err := rows.Scan(&e.ID, &e.AdminUsername, &e.Action, &e.UploadID, &e.UploadTitle, &e.Timestamp); err != nil {
				return nil, fmt.Errorf("failed to scan audit entry: %w", err)
			}
			records = append(records, &e)
		}
		return records, rows.Err()
	}

	return nil, fmt.Errorf("unknown collection: %s", collection)
}

// Append 追加记录，id 由服务端分配（不透明字符串）
func (db *PostgresDatabase) Append(collection string, record models.Record) (models.Record, error) {
	stored := cloneRecord(record)
	stored.SetRecordID(uuid.New().String())
	stampCreation(stored)

	var err error
	switch v := stored.(type) {
	case *models.User:
		if collection != models.CollectionUsers {
			return nil, fmt.Errorf("record type does not match collection %s", collection)
		}
		_, err = db.db.Exec(`
            INSERT INTO users (id, username, email, password_hash, role, created_at, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7)
        `, v.ID, v.Username, v.Email, v.Password, v.Role, v.CreatedAt, v.UpdatedAt)
	case *models.Upload:
		if collection != models.CollectionUploads {
			return nil, fmt.Errorf("record type does not match collection %s", collection)
		}
		_, err = db.db.Exec(`
            INSERT INTO uploads (id, title, url, description, status, submitted_by, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7)
        `, v.ID, v.Title, v.URL, v.Description, v.Status, v.SubmittedBy, v.CreatedAt)
	case *models.ChatMessage:
		if collection != models.CollectionChat {
			return nil, fmt.Errorf("record type does not match collection %s", collection)
		}
		_, err = db.db.Exec(`
            INSERT INTO chat_messages (id, username, text, timestamp)
            VALUES ($1, $2, $3, $4)
        `, v.ID, v.Username, v.Text, v.Timestamp)
	case *models.AuditLogEntry:
		if collection != models.CollectionAuditLog {
			return nil, fmt.Errorf("record type does not match collection %s", collection)
		}
		_, err = db.db.Exec(`
            INSERT INTO audit_log (id, admin_username, action, upload_id, upload_title, timestamp)
            VALUES ($1, $2, $3, $4, $5, $6)
        `, v.ID, v.AdminUsername, v.Action, v.UploadID, v.UploadTitle, v.Timestamp)
	default:
		return nil, fmt.Errorf("unsupported record type for collection %s", collection)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to append to %s: %w", collection, err)
	}

	db.notifyChange(collection)
	return stored, nil
}

// Patch 部分更新记录，id 不存在时静默跳过（UPDATE 影响 0 行）
func (db *PostgresDatabase) Patch(collection, id string, patch map[string]interface{}) error {
	if err := validatePatch(collection, patch); err != nil {
		return err
	}
	if len(patch) == 0 {
		return nil
	}

	table := pgTables[collection]
	setClauses := []string{}
	args := []interface{}{}
	i := 1
	for key, value := range patch {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", key, i))
		args = append(args, value)
		i++
	}

	if collection == models.CollectionUsers {
		setClauses = append(setClauses, "updated_at = NOW()")
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", table, strings.Join(setClauses, ", "), i)
	args = append(args, id)

	res, err := db.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to patch %s: %w", collection, err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		db.notifyChange(collection)
	}
	return nil
}

// Remove 删除记录，id 不存在时静默跳过
func (db *PostgresDatabase) Remove(collection, id string) error {
	table, ok := pgTables[collection]
	if !ok {
		return fmt.Errorf("unknown collection: %s", collection)
	}

	res, err := db.db.Exec(fmt.Sprintf("DELETE FROM %s WHERE id = $1", table), id)
	if err != nil {
		return fmt.Errorf("failed to remove from %s: %w", collection, err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		db.notifyChange(collection)
	}
	return nil
}

// Subscribe 订阅集合变更
func (db *PostgresDatabase) Subscribe(collection string, fn func([]models.Record)) (func(), error) {
	return db.notifier.subscribe(collection, fn)
}

// RenameUser 级联改写所有冗余的用户名字段（单一事务）
func (db *PostgresDatabase) RenameUser(oldUsername, newUsername string) error {
	tx, err := db.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin rename transaction: %w", err)
	}

	statements := []string{
		"UPDATE users SET username = $2, updated_at = NOW() WHERE username = $1",
		"UPDATE uploads SET submitted_by = $2 WHERE submitted_by = $1",
		"UPDATE chat_messages SET username = $2 WHERE username = $1",
		"UPDATE audit_log SET admin_username = $2 WHERE admin_username = $1",
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(stmt, oldUsername, newUsername); err != nil {
			tx.Rollback()
			return fmt.Errorf("rename transaction failed: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rename transaction: %w", err)
	}

	for _, collection := range models.Collections {
		db.notifyChange(collection)
	}
	return nil
}

// HealthCheck 健康检查
func (db *PostgresDatabase) HealthCheck() error {
	return db.db.Ping()
}

// Close 关闭连接
func (db *PostgresDatabase) Close() error {
	close(db.done)
	if db.listener != nil {
		db.listener.Close()
	}
	return db.db.Close()
}

// pgTables 集合名到表名的映射
var pgTables = map[string]string{
	models.CollectionUsers:    "users",
	models.CollectionUploads:  "uploads",
	models.CollectionChat:     "chat_messages",
	models.CollectionAuditLog: "audit_log",
}
