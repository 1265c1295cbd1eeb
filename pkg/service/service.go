package service

import (
	"fmt"
	"net/url"
	"strings"

	"linkshare-backend/pkg/database"
	"linkshare-backend/pkg/models"
	"linkshare-backend/pkg/syncstatus"

	"golang.org/x/crypto/bcrypt"
)

// Service owns all domain mutations. Handlers never touch the store
// directly; every command goes through here so the role checks and the
// sync indicator are applied in exactly one place.
type Service struct {
	store   database.DatabaseInterface
	tracker *syncstatus.Tracker

	ownerUsername string
	ownerEmail    string
}

// New wires the service to a store. ownerUsername/ownerEmail reserve the
// identity that is granted the owner role on first registration.
func New(store database.DatabaseInterface, tracker *syncstatus.Tracker, ownerUsername, ownerEmail string) *Service {
	return &Service{
		store:         store,
		tracker:       tracker,
		ownerUsername: ownerUsername,
		ownerEmail:    ownerEmail,
	}
}

// Store exposes the underlying store for subscription wiring at startup.
func (s *Service) Store() database.DatabaseInterface {
	return s.store
}

// SyncStatus returns the current save indicator state.
func (s *Service) SyncStatus() syncstatus.Status {
	return s.tracker.Status()
}

// ---------- users ----------

// Register creates an account. Usernames are unique case-insensitively.
// The reserved owner identity receives the owner role on first
// registration; everyone else starts as a regular user.
func (s *Service) Register(req *models.UserRegisterRequest) (*models.User, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}
	if strings.EqualFold(username, models.GuestUsername) {
		return nil, fmt.Errorf("%w: username %q is reserved", ErrInvalidInput, models.GuestUsername)
	}

	users, err := s.store.Fetch(models.CollectionUsers)
	if err != nil {
		return nil, err
	}
	for _, r := range users {
		if u, ok := r.(*models.User); ok && strings.EqualFold(u.Username, username) {
			return nil, ErrUsernameTaken
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	role := models.RoleUser
	if s.isReservedOwner(username, req.Email) {
		role = models.RoleOwner
	}

	user := &models.User{
		Username: username,
		Email:    strings.TrimSpace(req.Email),
		Password: string(hash),
		Role:     role,
	}

	var stored models.Record
	err = s.tracker.Track(func() error {
		var appendErr error
		stored, appendErr = s.store.Append(models.CollectionUsers, user)
		return appendErr
	})
	if err != nil {
		return nil, err
	}
	return stored.(*models.User), nil
}

// isReservedOwner matches the configured owner identity by name or email.
func (s *Service) isReservedOwner(username, email string) bool {
	if s.ownerUsername != "" && strings.EqualFold(username, s.ownerUsername) {
		return true
	}
	if s.ownerEmail != "" && email != "" && strings.EqualFold(email, s.ownerEmail) {
		return true
	}
	return false
}

// Login verifies credentials. Lookup is case-insensitive; a wrong
// username and a wrong password are indistinguishable to the caller.
func (s *Service) Login(req *models.UserLoginRequest) (*models.User, error) {
	users, err := s.store.Fetch(models.CollectionUsers)
	if err != nil {
		return nil, err
	}
	for _, r := range users {
		u, ok := r.(*models.User)
		if !ok || !strings.EqualFold(u.Username, req.Username) {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)) != nil {
			return nil, ErrInvalidCredentials
		}
		return u, nil
	}
	return nil, ErrInvalidCredentials
}

// GetUser returns a user by id, or ErrNotFound.
func (s *Service) GetUser(id string) (*models.User, error) {
	users, err := s.store.Fetch(models.CollectionUsers)
	if err != nil {
		return nil, err
	}
	for _, r := range users {
		if u, ok := r.(*models.User); ok && u.ID == id {
			return u, nil
		}
	}
	return nil, ErrNotFound
}

// ListUsers returns every account. Moderator only.
func (s *Service) ListUsers(actor *models.User) ([]*models.User, error) {
	if actor == nil || !CanModerate(actor.Role) {
		return nil, ErrPermissionDenied
	}
	records, err := s.store.Fetch(models.CollectionUsers)
	if err != nil {
		return nil, err
	}
	users := make([]*models.User, 0, len(records))
	for _, r := range records {
		if u, ok := r.(*models.User); ok {
			users = append(users, u)
		}
	}
	return users, nil
}

// UpdateRole changes another user's role. Owner only, never self, and
// the owner role itself is only ever granted through registration.
func (s *Service) UpdateRole(actor *models.User, targetID string, newRole models.Role) error {
	if actor == nil || !CanUpdateRole(actor.Role, actor.ID, targetID) {
		return ErrPermissionDenied
	}
	if !newRole.Valid() || newRole == models.RoleOwner {
		return fmt.Errorf("%w: invalid role %q", ErrInvalidInput, newRole)
	}
	target, err := s.GetUser(targetID)
	if err != nil {
		return err
	}
	if target.Role == models.RoleOwner {
		return ErrPermissionDenied
	}
	return s.tracker.Track(func() error {
		return s.store.Patch(models.CollectionUsers, targetID, map[string]interface{}{
			"role": string(newRole),
		})
	})
}

// DeleteUser removes an account. Owner accounts are never deletable.
func (s *Service) DeleteUser(actor *models.User, targetID string) error {
	if actor == nil {
		return ErrPermissionDenied
	}
	target, err := s.GetUser(targetID)
	if err != nil {
		return err
	}
	if !CanDeleteUser(actor.Role, actor.ID, target.Role, targetID) {
		return ErrPermissionDenied
	}
	return s.tracker.Track(func() error {
		return s.store.Remove(models.CollectionUsers, targetID)
	})
}

// ChangeUsername renames the actor and rewrites every denormalized copy
// of the old name (uploads, chat, audit log) as one transaction.
func (s *Service) ChangeUsername(actor *models.User, newUsername string) (*models.User, error) {
	if actor == nil {
		return nil, ErrPermissionDenied
	}
	newUsername = strings.TrimSpace(newUsername)
	if newUsername == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if strings.EqualFold(newUsername, models.GuestUsername) {
		return nil, fmt.Errorf("%w: username %q is reserved", ErrInvalidInput, models.GuestUsername)
	}
	if newUsername == actor.Username {
		return actor, nil
	}

	users, err := s.store.Fetch(models.CollectionUsers)
	if err != nil {
		return nil, err
	}
	for _, r := range users {
		if u, ok := r.(*models.User); ok && u.ID != actor.ID && strings.EqualFold(u.Username, newUsername) {
			return nil, ErrUsernameTaken
		}
	}

	err = s.tracker.Track(func() error {
		return s.store.RenameUser(actor.Username, newUsername)
	})
	if err != nil {
		return nil, err
	}
	return s.GetUser(actor.ID)
}

// ChangePassword replaces the actor's password hash.
func (s *Service) ChangePassword(actor *models.User, newPassword string) error {
	if actor == nil {
		return ErrPermissionDenied
	}
	if newPassword == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return s.tracker.Track(func() error {
		return s.store.Patch(models.CollectionUsers, actor.ID, map[string]interface{}{
			"password_hash": string(hash),
		})
	})
}

// ---------- uploads ----------

// SubmitUpload creates a pending link. The title is derived from the
// URL's host. Guests submit as "Guest".
func (s *Service) SubmitUpload(username string, req *models.UploadCreateRequest) (*models.Upload, error) {
	rawURL := strings.TrimSpace(req.URL)
	if rawURL == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidInput)
	}
	if username == "" {
		username = models.GuestUsername
	}

	upload := &models.Upload{
		Title:       titleFromURL(rawURL),
		URL:         rawURL,
		Description: strings.TrimSpace(req.Description),
		Status:      models.UploadPending,
		SubmittedBy: username,
	}

	var stored models.Record
	err := s.tracker.Track(func() error {
		var appendErr error
		stored, appendErr = s.store.Append(models.CollectionUploads, upload)
		return appendErr
	})
	if err != nil {
		return nil, err
	}
	return stored.(*models.Upload), nil
}

// titleFromURL uses the URL's host as the display title, falling back to
// the raw string when it does not parse.
func titleFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return rawURL
	}
	return u.Hostname()
}

// ListUploads returns what the viewer is allowed to see: moderators see
// everything, signed-in users see approved posts plus their own pending
// submissions, guests see approved posts only.
func (s *Service) ListUploads(viewer *models.User) ([]*models.Upload, error) {
	records, err := s.store.Fetch(models.CollectionUploads)
	if err != nil {
		return nil, err
	}
	moderator := viewer != nil && CanModerate(viewer.Role)
	uploads := make([]*models.Upload, 0, len(records))
	for _, r := range records {
		u, ok := r.(*models.Upload)
		if !ok {
			continue
		}
		switch {
		case moderator:
			uploads = append(uploads, u)
		case u.Status == models.UploadApproved:
			uploads = append(uploads, u)
		case viewer != nil && u.SubmittedBy == viewer.Username:
			uploads = append(uploads, u)
		}
	}
	return uploads, nil
}

// Approve moves a pending upload to approved and logs the action.
// Approving a non-pending or unknown id is a silent no-op, so a double
// click never produces a duplicate audit entry.
func (s *Service) Approve(actor *models.User, uploadID string) error {
	if actor == nil || !CanModerate(actor.Role) {
		return ErrPermissionDenied
	}
	upload, err := s.findUpload(uploadID)
	if err != nil || upload == nil || upload.Status != models.UploadPending {
		return err
	}
	return s.tracker.Track(func() error {
		if err := s.store.Patch(models.CollectionUploads, uploadID, map[string]interface{}{
			"status": string(models.UploadApproved),
		}); err != nil {
			return err
		}
		return s.appendAudit(actor.Username, models.AuditApproved, upload)
	})
}

// Reject deletes a pending upload and logs the action. Non-pending and
// unknown ids are a silent no-op.
func (s *Service) Reject(actor *models.User, uploadID string) error {
	if actor == nil || !CanModerate(actor.Role) {
		return ErrPermissionDenied
	}
	upload, err := s.findUpload(uploadID)
	if err != nil || upload == nil || upload.Status != models.UploadPending {
		return err
	}
	return s.tracker.Track(func() error {
		if err := s.store.Remove(models.CollectionUploads, uploadID); err != nil {
			return err
		}
		return s.appendAudit(actor.Username, models.AuditRejected, upload)
	})
}

// RemovePost deletes an already-approved post. Unlike reject this writes
// no audit entry. The asymmetry matches the observed moderation flow and
// is kept deliberately; see DESIGN.md.
func (s *Service) RemovePost(actor *models.User, uploadID string) error {
	if actor == nil || !CanModerate(actor.Role) {
		return ErrPermissionDenied
	}
	return s.tracker.Track(func() error {
		return s.store.Remove(models.CollectionUploads, uploadID)
	})
}

func (s *Service) findUpload(id string) (*models.Upload, error) {
	records, err := s.store.Fetch(models.CollectionUploads)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if u, ok := r.(*models.Upload); ok && u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

// appendAudit snapshots the upload title so the log stays meaningful
// after the upload itself is gone.
func (s *Service) appendAudit(adminUsername string, action models.AuditAction, upload *models.Upload) error {
	_, err := s.store.Append(models.CollectionAuditLog, &models.AuditLogEntry{
		AdminUsername: adminUsername,
		Action:        action,
		UploadID:      upload.ID,
		UploadTitle:   upload.Title,
	})
	return err
}

// ListAuditLog returns the moderation history. Moderator only.
func (s *Service) ListAuditLog(actor *models.User) ([]*models.AuditLogEntry, error) {
	if actor == nil || !CanModerate(actor.Role) {
		return nil, ErrPermissionDenied
	}
	records, err := s.store.Fetch(models.CollectionAuditLog)
	if err != nil {
		return nil, err
	}
	entries := make([]*models.AuditLogEntry, 0, len(records))
	for _, r := range records {
		if e, ok := r.(*models.AuditLogEntry); ok {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// ---------- chat ----------

// SendMessage appends a chat message. An empty username means a guest
// session and is attributed to "Guest".
func (s *Service) SendMessage(username, text string) (*models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: message text is required", ErrInvalidInput)
	}
	if username == "" {
		username = models.GuestUsername
	}

	var stored models.Record
	err := s.tracker.Track(func() error {
		var appendErr error
		stored, appendErr = s.store.Append(models.CollectionChat, &models.ChatMessage{
			Username: username,
			Text:     text,
		})
		return appendErr
	})
	if err != nil {
		return nil, err
	}
	return stored.(*models.ChatMessage), nil
}

// ListMessages returns the chat history in chronological order.
func (s *Service) ListMessages() ([]*models.ChatMessage, error) {
	records, err := s.store.Fetch(models.CollectionChat)
	if err != nil {
		return nil, err
	}
	messages := make([]*models.ChatMessage, 0, len(records))
	for _, r := range records {
		if m, ok := r.(*models.ChatMessage); ok {
			messages = append(messages, m)
		}
	}
	return messages, nil
}
