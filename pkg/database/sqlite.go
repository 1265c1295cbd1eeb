package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"linkshare-backend/pkg/database/migrations"
	"linkshare-backend/pkg/models"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteDatabase embedded single-file store. Change notifications are
// in-process only; there is no push channel to other processes.
type SQLiteDatabase struct {
	db       *sql.DB
	notifier *notifier
}

// NewSQLiteDatabase opens (creating if needed) the database file and brings
// the schema to the latest migration version.
func NewSQLiteDatabase(path string) DatabaseInterface {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			panic(fmt.Sprintf("Failed to create SQLite data directory %s: %v", dir, err))
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		panic(fmt.Sprintf("Failed to open SQLite database: %v", err))
	}

	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY churn under concurrent handlers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		panic(fmt.Sprintf("Failed to ping SQLite database: %v", err))
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		panic(fmt.Sprintf("Failed to migrate SQLite database: %v", err))
	}

	fmt.Printf("✅ SQLite database ready at %s\n", path)

	store := &SQLiteDatabase{db: db}
	store.notifier = newNotifier(store.Fetch)
	return store
}

// Fetch returns the ordered contents of a collection.
func (db *SQLiteDatabase) Fetch(collection string) ([]models.Record, error) {
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

// Append inserts a record with a server-assigned opaque id.
func (db *SQLiteDatabase) Append(collection string, record models.Record) (models.Record, error) {
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
            VALUES (?, ?, ?, ?, ?, ?, ?)
        `, v.ID, v.Username, v.Email, v.Password, v.Role, v.CreatedAt, v.UpdatedAt)
	case *models.Upload:
		if collection != models.CollectionUploads {
			return nil, fmt.Errorf("record type does not match collection %s", collection)
		}
		_, err = db.db.Exec(`
            INSERT INTO uploads (id, title, url, description, status, submitted_by, created_at)
            VALUES (?, ?, ?, ?, ?, ?, ?)
        `, v.ID, v.Title, v.URL, v.Description, v.Status, v.SubmittedBy, v.CreatedAt)
	case *models.ChatMessage:
		if collection != models.CollectionChat {
			return nil, fmt.Errorf("record type does not match collection %s", collection)
		}
		_, err = db.db.Exec(`
            INSERT INTO chat_messages (id, username, text, timestamp)
            VALUES (?, ?, ?, ?)
        `, v.ID, v.Username, v.Text, v.Timestamp)
	case *models.AuditLogEntry:
		if collection != models.CollectionAuditLog {
			return nil, fmt.Errorf("record type does not match collection %s", collection)
		}
		_, err = db.db.Exec(`
            INSERT INTO audit_log (id, admin_username, action, upload_id, upload_title, timestamp)
            VALUES (?, ?, ?, ?, ?, ?)
        `, v.ID, v.AdminUsername, v.Action, v.UploadID, v.UploadTitle, v.Timestamp)
	default:
		return nil, fmt.Errorf("unsupported record type for collection %s", collection)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to append to %s: %w", collection, err)
	}

	db.notifier.broadcast(collection)
	return stored, nil
}

// Patch performs a partial update; missing ids are a silent no-op.
func (db *SQLiteDatabase) Patch(collection, id string, patch map[string]interface{}) error {
	if err := validatePatch(collection, patch); err != nil {
		return err
	}
	if len(patch) == 0 {
		return nil
	}

	table := pgTables[collection]
	setClauses := []string{}
	args := []interface{}{}
	for key, value := range patch {
		setClauses = append(setClauses, fmt.Sprintf("%s = ?", key))
		args = append(args, value)
	}

	if collection == models.CollectionUsers {
		setClauses = append(setClauses, "updated_at = CURRENT_TIMESTAMP")
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", table, strings.Join(setClauses, ", "))
	args = append(args, id)

	res, err := db.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to patch %s: %w", collection, err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		db.notifier.broadcast(collection)
	}
	return nil
}

// Remove deletes a record; missing ids are a silent no-op.
func (db *SQLiteDatabase) Remove(collection, id string) error {
	table, ok := pgTables[collection]
	if !ok {
		return fmt.Errorf("unknown collection: %s", collection)
	}

	res, err := db.db.Exec(fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), id)
	if err != nil {
		return fmt.Errorf("failed to remove from %s: %w", collection, err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		db.notifier.broadcast(collection)
	}
	return nil
}

// Subscribe registers a change callback for a collection.
func (db *SQLiteDatabase) Subscribe(collection string, fn func([]models.Record)) (func(), error) {
	return db.notifier.subscribe(collection, fn)
}

// RenameUser rewrites every denormalized username field in one transaction.
func (db *SQLiteDatabase) RenameUser(oldUsername, newUsername string) error {
	tx, err := db.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin rename transaction: %w", err)
	}

	statements := []string{
		"UPDATE users SET username = ?2, updated_at = CURRENT_TIMESTAMP WHERE username = ?1",
		"UPDATE uploads SET submitted_by = ?2 WHERE submitted_by = ?1",
		"UPDATE chat_messages SET username = ?2 WHERE username = ?1",
		"UPDATE audit_log SET admin_username = ?2 WHERE admin_username = ?1",
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
		db.notifier.broadcast(collection)
	}
	return nil
}

// HealthCheck pings the database.
func (db *SQLiteDatabase) HealthCheck() error {
	return db.db.Ping()
}

// Close closes the database file.
func (db *SQLiteDatabase) Close() error {
	return db.db.Close()
}
