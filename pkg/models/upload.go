package models

import "time"

// UploadStatus is the moderation state of a submitted link.
// The only legal transition is pending -> approved; a pending upload may
// instead be rejected, which deletes it. Approved uploads are never
// re-pended.
type UploadStatus string

const (
	UploadPending  UploadStatus = "pending"
	UploadApproved UploadStatus = "approved"
)

// Upload represents a community link submission
type Upload struct {
	ID          string       `json:"id" db:"id"`
	Title       string       `json:"title" db:"title"`
	URL         string       `json:"url" db:"url"`
	Description string       `json:"description,omitempty" db:"description"`
	Status      UploadStatus `json:"status" db:"status"`
	SubmittedBy string       `json:"submitted_by" db:"submitted_by"` // username, denormalized
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
}

func (u *Upload) RecordID() string      { return u.ID }
func (u *Upload) SetRecordID(id string) { u.ID = id }

// UploadCreateRequest represents the request payload for submitting a link
type UploadCreateRequest struct {
	URL         string `json:"url" validate:"required,url"`
	Description string `json:"description,omitempty"`
}
