package models

import "time"

// AuditAction is the moderation decision recorded in the audit log.
type AuditAction string

const (
	AuditApproved AuditAction = "approved"
	AuditRejected AuditAction = "rejected"
)

// AuditLogEntry records one moderation decision. The upload title is
// snapshotted so the entry stays meaningful after the upload is deleted.
// Entries are append-only and never mutated by normal flows.
type AuditLogEntry struct {
	ID            string      `json:"id" db:"id"`
	AdminUsername string      `json:"admin_username" db:"admin_username"` // denormalized
	Action        AuditAction `json:"action" db:"action"`
	UploadID      string      `json:"upload_id" db:"upload_id"`
	UploadTitle   string      `json:"upload_title" db:"upload_title"`
	Timestamp     time.Time   `json:"timestamp" db:"timestamp"`
}

func (e *AuditLogEntry) RecordID() string      { return e.ID }
func (e *AuditLogEntry) SetRecordID(id string) { e.ID = id }
