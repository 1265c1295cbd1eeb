package service

import (
	"testing"

	"linkshare-backend/pkg/database"
	"linkshare-backend/pkg/models"
	"linkshare-backend/pkg/syncstatus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const reservedOwner = "site_owner"

func newTestService(t *testing.T) *Service {
	t.Helper()
	store := database.NewMemoryDatabase()
	t.Cleanup(func() { store.Close() })
	return New(store, syncstatus.NewTracker(nil), reservedOwner, "owner@example.com")
}

func register(t *testing.T, svc *Service, username, password string) *models.User {
	t.Helper()
	user, err := svc.Register(&models.UserRegisterRequest{Username: username, Password: password})
	require.NoError(t, err)
	return user
}

func registerWithRole(t *testing.T, svc *Service, username string, role models.Role) *models.User {
	t.Helper()
	user := register(t, svc, username, "pw1234")
	if user.Role == role {
		return user
	}
	owner, err := svc.GetUser(mustOwner(t, svc).ID)
	require.NoError(t, err)
	require.NoError(t, svc.UpdateRole(owner, user.ID, role))
	updated, err := svc.GetUser(user.ID)
	require.NoError(t, err)
	return updated
}

func mustOwner(t *testing.T, svc *Service) *models.User {
	t.Helper()
	users, err := svc.store.Fetch(models.CollectionUsers)
	require.NoError(t, err)
	for _, r := range users {
		if u := r.(*models.User); u.Role == models.RoleOwner {
			return u
		}
	}
	t.Fatal("no owner registered")
	return nil
}

func TestRegister(t *testing.T) {
	t.Run("assigns user role and hashes password", func(t *testing.T) {
		svc := newTestService(t)
		user := register(t, svc, "alice", "secret123")

		assert.Equal(t, models.RoleUser, user.Role)
		assert.NotEmpty(t, user.ID)
		assert.NotEqual(t, "secret123", user.Password)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("secret123")))
	})

	t.Run("reserved identity becomes owner", func(t *testing.T) {
		svc := newTestService(t)
		owner := register(t, svc, reservedOwner, "pw1234")
		assert.Equal(t, models.RoleOwner, owner.Role)
	})

	t.Run("reserved email becomes owner", func(t *testing.T) {
		svc := newTestService(t)
		user, err := svc.Register(&models.UserRegisterRequest{
			Username: "someone", Email: "Owner@Example.com", Password: "pw1234",
		})
		require.NoError(t, err)
		assert.Equal(t, models.RoleOwner, user.Role)
	})

	t.Run("duplicate username is rejected case-insensitively", func(t *testing.T) {
		svc := newTestService(t)
		register(t, svc, "Alice", "pw1234")

		_, err := svc.Register(&models.UserRegisterRequest{Username: "alice", Password: "other"})
		assert.ErrorIs(t, err, ErrUsernameTaken)

		_, err = svc.Register(&models.UserRegisterRequest{Username: "ALICE", Password: "other"})
		assert.ErrorIs(t, err, ErrUsernameTaken)
	})

	t.Run("guest name is reserved", func(t *testing.T) {
		svc := newTestService(t)
		_, err := svc.Register(&models.UserRegisterRequest{Username: "guest", Password: "pw1234"})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("empty username or password rejected", func(t *testing.T) {
		svc := newTestService(t)
		_, err := svc.Register(&models.UserRegisterRequest{Username: "", Password: "pw"})
		assert.ErrorIs(t, err, ErrInvalidInput)
		_, err = svc.Register(&models.UserRegisterRequest{Username: "bob", Password: ""})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestLogin(t *testing.T) {
	svc := newTestService(t)
	register(t, svc, "Alice", "secret123")

	t.Run("correct credentials", func(t *testing.T) {
		user, err := svc.Login(&models.UserLoginRequest{Username: "Alice", Password: "secret123"})
		require.NoError(t, err)
		assert.Equal(t, "Alice", user.Username)
	})

	t.Run("username lookup is case-insensitive", func(t *testing.T) {
		user, err := svc.Login(&models.UserLoginRequest{Username: "alice", Password: "secret123"})
		require.NoError(t, err)
		assert.Equal(t, "Alice", user.Username)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Login(&models.UserLoginRequest{Username: "Alice", Password: "nope"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.Login(&models.UserLoginRequest{Username: "nobody", Password: "secret123"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestSubmitUpload(t *testing.T) {
	t.Run("title derived from url host", func(t *testing.T) {
		svc := newTestService(t)
		upload, err := svc.SubmitUpload("sample_user", &models.UploadCreateRequest{URL: "https://example.com/page"})
		require.NoError(t, err)

		assert.Equal(t, "example.com", upload.Title)
		assert.Equal(t, models.UploadPending, upload.Status)
		assert.Equal(t, "sample_user", upload.SubmittedBy)
		assert.NotEmpty(t, upload.ID)
		assert.False(t, upload.CreatedAt.IsZero())
	})

	t.Run("guest submission attributed to Guest", func(t *testing.T) {
		svc := newTestService(t)
		upload, err := svc.SubmitUpload("", &models.UploadCreateRequest{URL: "https://example.org/x"})
		require.NoError(t, err)
		assert.Equal(t, models.GuestUsername, upload.SubmittedBy)
	})

	t.Run("unparseable url falls back to raw string", func(t *testing.T) {
		svc := newTestService(t)
		upload, err := svc.SubmitUpload("u", &models.UploadCreateRequest{URL: "not a url"})
		require.NoError(t, err)
		assert.Equal(t, "not a url", upload.Title)
	})

	t.Run("empty url rejected", func(t *testing.T) {
		svc := newTestService(t)
		_, err := svc.SubmitUpload("u", &models.UploadCreateRequest{URL: "  "})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestApprove(t *testing.T) {
	t.Run("owner approves pending submission with one audit entry", func(t *testing.T) {
		svc := newTestService(t)
		owner := register(t, svc, reservedOwner, "pw1234")
		register(t, svc, "sample_user", "pw1234")

		upload, err := svc.SubmitUpload("sample_user", &models.UploadCreateRequest{URL: "https://example.com/page"})
		require.NoError(t, err)

		require.NoError(t, svc.Approve(owner, upload.ID))

		uploads, err := svc.ListUploads(owner)
		require.NoError(t, err)
		require.Len(t, uploads, 1)
		assert.Equal(t, models.UploadApproved, uploads[0].Status)
		assert.Equal(t, "sample_user", uploads[0].SubmittedBy)

		entries, err := svc.ListAuditLog(owner)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, models.AuditApproved, entries[0].Action)
		assert.Equal(t, owner.Username, entries[0].AdminUsername)
		assert.Equal(t, "example.com", entries[0].UploadTitle)
		assert.Equal(t, upload.ID, entries[0].UploadID)
	})

	t.Run("approving twice never duplicates the audit entry", func(t *testing.T) {
		svc := newTestService(t)
		owner := register(t, svc, reservedOwner, "pw1234")

		upload, err := svc.SubmitUpload("u", &models.UploadCreateRequest{URL: "https://example.com"})
		require.NoError(t, err)

		require.NoError(t, svc.Approve(owner, upload.ID))
		require.NoError(t, svc.Approve(owner, upload.ID))

		entries, err := svc.ListAuditLog(owner)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("unknown id is a silent no-op", func(t *testing.T) {
		svc := newTestService(t)
		owner := register(t, svc, reservedOwner, "pw1234")

		require.NoError(t, svc.Approve(owner, "does-not-exist"))

		entries, err := svc.ListAuditLog(owner)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("regular user may not approve", func(t *testing.T) {
		svc := newTestService(t)
		user := register(t, svc, "pleb", "pw1234")

		upload, err := svc.SubmitUpload("pleb", &models.UploadCreateRequest{URL: "https://example.com"})
		require.NoError(t, err)

		assert.ErrorIs(t, svc.Approve(user, upload.ID), ErrPermissionDenied)
	})
}

func TestReject(t *testing.T) {
	svc := newTestService(t)
	owner := register(t, svc, reservedOwner, "pw1234")

	upload, err := svc.SubmitUpload("u", &models.UploadCreateRequest{URL: "https://example.com/spam"})
	require.NoError(t, err)

	require.NoError(t, svc.Reject(owner, upload.ID))

	uploads, err := svc.ListUploads(owner)
	require.NoError(t, err)
	assert.Empty(t, uploads)

	entries, err := svc.ListAuditLog(owner)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditRejected, entries[0].Action)
	assert.Equal(t, "example.com", entries[0].UploadTitle)

	// 再次拒绝同一id：静默跳过，不产生新日志
	require.NoError(t, svc.Reject(owner, upload.ID))
	entries, err = svc.ListAuditLog(owner)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRemovePost(t *testing.T) {
	// 删除已批准帖子不写审计日志（与reject的不对称是既有行为）
	svc := newTestService(t)
	owner := register(t, svc, reservedOwner, "pw1234")

	upload, err := svc.SubmitUpload("u", &models.UploadCreateRequest{URL: "https://example.com"})
	require.NoError(t, err)
	require.NoError(t, svc.Approve(owner, upload.ID))

	require.NoError(t, svc.RemovePost(owner, upload.ID))

	uploads, err := svc.ListUploads(owner)
	require.NoError(t, err)
	assert.Empty(t, uploads)

	entries, err := svc.ListAuditLog(owner)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditApproved, entries[0].Action)
}

func TestListUploadsVisibility(t *testing.T) {
	svc := newTestService(t)
	owner := register(t, svc, reservedOwner, "pw1234")
	submitter := register(t, svc, "submitter", "pw1234")
	other := register(t, svc, "other", "pw1234")

	approved, err := svc.SubmitUpload("submitter", &models.UploadCreateRequest{URL: "https://approved.example.com"})
	require.NoError(t, err)
	require.NoError(t, svc.Approve(owner, approved.ID))

	_, err = svc.SubmitUpload("submitter", &models.UploadCreateRequest{URL: "https://pending.example.com"})
	require.NoError(t, err)

	t.Run("guest sees approved only", func(t *testing.T) {
		uploads, err := svc.ListUploads(nil)
		require.NoError(t, err)
		require.Len(t, uploads, 1)
		assert.Equal(t, models.UploadApproved, uploads[0].Status)
	})

	t.Run("submitter sees own pending", func(t *testing.T) {
		uploads, err := svc.ListUploads(submitter)
		require.NoError(t, err)
		assert.Len(t, uploads, 2)
	})

	t.Run("other user does not see foreign pending", func(t *testing.T) {
		uploads, err := svc.ListUploads(other)
		require.NoError(t, err)
		assert.Len(t, uploads, 1)
	})

	t.Run("moderator sees everything", func(t *testing.T) {
		uploads, err := svc.ListUploads(owner)
		require.NoError(t, err)
		assert.Len(t, uploads, 2)
	})
}

func TestChat(t *testing.T) {
	svc := newTestService(t)
	register(t, svc, "sample_user", "pw1234")

	// 游客先发言，登录用户随后发言，两条消息按时间顺序共存
	first, err := svc.SendMessage("", "hello")
	require.NoError(t, err)
	assert.Equal(t, models.GuestUsername, first.Username)

	second, err := svc.SendMessage("sample_user", "hi")
	require.NoError(t, err)
	assert.Equal(t, "sample_user", second.Username)

	messages, err := svc.ListMessages()
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "hello", messages[0].Text)
	assert.Equal(t, models.GuestUsername, messages[0].Username)
	assert.Equal(t, "hi", messages[1].Text)
	assert.Equal(t, "sample_user", messages[1].Username)

	t.Run("empty message rejected", func(t *testing.T) {
		_, err := svc.SendMessage("sample_user", "   ")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestChangeUsername(t *testing.T) {
	t.Run("cascades into uploads, chat and audit log", func(t *testing.T) {
		svc := newTestService(t)
		owner := register(t, svc, reservedOwner, "pw1234")

		upload, err := svc.SubmitUpload(owner.Username, &models.UploadCreateRequest{URL: "https://example.com"})
		require.NoError(t, err)
		require.NoError(t, svc.Approve(owner, upload.ID))
		_, err = svc.SendMessage(owner.Username, "hello")
		require.NoError(t, err)

		renamed, err := svc.ChangeUsername(owner, "new_owner")
		require.NoError(t, err)
		assert.Equal(t, "new_owner", renamed.Username)
		assert.Equal(t, models.RoleOwner, renamed.Role)

		uploads, err := svc.ListUploads(renamed)
		require.NoError(t, err)
		require.Len(t, uploads, 1)
		assert.Equal(t, "new_owner", uploads[0].SubmittedBy)

		messages, err := svc.ListMessages()
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.Equal(t, "new_owner", messages[0].Username)

		entries, err := svc.ListAuditLog(renamed)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "new_owner", entries[0].AdminUsername)
	})

	t.Run("collision with another user leaves every collection untouched", func(t *testing.T) {
		svc := newTestService(t)
		owner := register(t, svc, reservedOwner, "pw1234")
		alice := register(t, svc, "Alice", "pw1234")

		upload, err := svc.SubmitUpload("Alice", &models.UploadCreateRequest{URL: "https://example.com"})
		require.NoError(t, err)
		require.NoError(t, svc.Approve(owner, upload.ID))
		_, err = svc.SendMessage("Alice", "mine")
		require.NoError(t, err)

		_, err = svc.ChangeUsername(alice, reservedOwner)
		assert.ErrorIs(t, err, ErrUsernameTaken)

		// 大小写不同也算冲突
		_, err = svc.ChangeUsername(alice, "SITE_OWNER")
		assert.ErrorIs(t, err, ErrUsernameTaken)

		current, err := svc.GetUser(alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "Alice", current.Username)

		uploads, err := svc.ListUploads(owner)
		require.NoError(t, err)
		assert.Equal(t, "Alice", uploads[0].SubmittedBy)

		messages, err := svc.ListMessages()
		require.NoError(t, err)
		assert.Equal(t, "Alice", messages[0].Username)
	})

	t.Run("case-only rename of own name is allowed", func(t *testing.T) {
		svc := newTestService(t)
		alice := register(t, svc, "alice", "pw1234")

		renamed, err := svc.ChangeUsername(alice, "Alice")
		require.NoError(t, err)
		assert.Equal(t, "Alice", renamed.Username)
	})

	t.Run("guest name is reserved", func(t *testing.T) {
		svc := newTestService(t)
		alice := register(t, svc, "alice", "pw1234")
		_, err := svc.ChangeUsername(alice, "Guest")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestChangePassword(t *testing.T) {
	svc := newTestService(t)
	alice := register(t, svc, "alice", "oldpass")

	require.NoError(t, svc.ChangePassword(alice, "newpass"))

	_, err := svc.Login(&models.UserLoginRequest{Username: "alice", Password: "oldpass"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	user, err := svc.Login(&models.UserLoginRequest{Username: "alice", Password: "newpass"})
	require.NoError(t, err)
	assert.Equal(t, alice.ID, user.ID)
}

func TestUpdateRole(t *testing.T) {
	t.Run("owner promotes user to admin", func(t *testing.T) {
		svc := newTestService(t)
		owner := register(t, svc, reservedOwner, "pw1234")
		bob := register(t, svc, "bob", "pw1234")

		require.NoError(t, svc.UpdateRole(owner, bob.ID, models.RoleAdmin))

		updated, err := svc.GetUser(bob.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RoleAdmin, updated.Role)
	})

	t.Run("owner may not change own role", func(t *testing.T) {
		svc := newTestService(t)
		owner := register(t, svc, reservedOwner, "pw1234")
		assert.ErrorIs(t, svc.UpdateRole(owner, owner.ID, models.RoleAdmin), ErrPermissionDenied)
	})

	t.Run("non-owner may not change roles", func(t *testing.T) {
		svc := newTestService(t)
		register(t, svc, reservedOwner, "pw1234")
		admin := registerWithRole(t, svc, "admin_user", models.RoleAdmin)
		bob := register(t, svc, "bob", "pw1234")

		assert.ErrorIs(t, svc.UpdateRole(admin, bob.ID, models.RoleAdmin), ErrPermissionDenied)
	})

	t.Run("owner role cannot be granted", func(t *testing.T) {
		svc := newTestService(t)
		owner := register(t, svc, reservedOwner, "pw1234")
		bob := register(t, svc, "bob", "pw1234")

		assert.ErrorIs(t, svc.UpdateRole(owner, bob.ID, models.RoleOwner), ErrInvalidInput)
	})

	t.Run("unknown role rejected", func(t *testing.T) {
		svc := newTestService(t)
		owner := register(t, svc, reservedOwner, "pw1234")
		bob := register(t, svc, "bob", "pw1234")

		assert.ErrorIs(t, svc.UpdateRole(owner, bob.ID, models.Role("superuser")), ErrInvalidInput)
	})
}

func TestDeleteUser(t *testing.T) {
	t.Run("owner account is never deletable", func(t *testing.T) {
		svc := newTestService(t)
		owner := register(t, svc, reservedOwner, "pw1234")
		coOwner := registerWithRole(t, svc, "co", models.RoleCoOwner)

		assert.ErrorIs(t, svc.DeleteUser(owner, owner.ID), ErrPermissionDenied)
		assert.ErrorIs(t, svc.DeleteUser(coOwner, owner.ID), ErrPermissionDenied)
	})

	t.Run("co-owner may not delete co-owner", func(t *testing.T) {
		svc := newTestService(t)
		register(t, svc, reservedOwner, "pw1234")
		co1 := registerWithRole(t, svc, "co1", models.RoleCoOwner)
		co2 := registerWithRole(t, svc, "co2", models.RoleCoOwner)

		assert.ErrorIs(t, svc.DeleteUser(co1, co2.ID), ErrPermissionDenied)
	})

	t.Run("co-owner may delete admin", func(t *testing.T) {
		svc := newTestService(t)
		register(t, svc, reservedOwner, "pw1234")
		co := registerWithRole(t, svc, "co", models.RoleCoOwner)
		admin := registerWithRole(t, svc, "adm", models.RoleAdmin)

		require.NoError(t, svc.DeleteUser(co, admin.ID))
		_, err := svc.GetUser(admin.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("admin may not delete anyone", func(t *testing.T) {
		svc := newTestService(t)
		register(t, svc, reservedOwner, "pw1234")
		admin := registerWithRole(t, svc, "adm", models.RoleAdmin)
		bob := register(t, svc, "bob", "pw1234")

		assert.ErrorIs(t, svc.DeleteUser(admin, bob.ID), ErrPermissionDenied)
	})

	t.Run("unknown target surfaces not found", func(t *testing.T) {
		svc := newTestService(t)
		owner := register(t, svc, reservedOwner, "pw1234")
		assert.ErrorIs(t, svc.DeleteUser(owner, "ghost"), ErrNotFound)
	})
}
