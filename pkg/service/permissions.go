package service

import "linkshare-backend/pkg/models"

// Role checks are pure functions of (actor role, actor id, target role,
// target id) and are shared by every handler and every backend. Hierarchy:
// owner > co-owner > admin > user.

// CanModerate reports whether a role may approve, reject or remove uploads.
func CanModerate(role models.Role) bool {
	switch role {
	case models.RoleOwner, models.RoleCoOwner, models.RoleAdmin:
		return true
	}
	return false
}

// CanUpdateRole reports whether the actor may change the target's role.
// Only the owner may, and never their own.
func CanUpdateRole(actorRole models.Role, actorID, targetID string) bool {
	return actorRole == models.RoleOwner && actorID != targetID
}

// CanDeleteUser reports whether the actor may delete the target account.
// Owner accounts can never be deleted, by anyone. Co-owners may not
// delete other co-owners.
func CanDeleteUser(actorRole models.Role, actorID string, targetRole models.Role, targetID string) bool {
	if targetRole == models.RoleOwner {
		return false
	}
	switch actorRole {
	case models.RoleOwner:
		return true
	case models.RoleCoOwner:
		return targetRole != models.RoleCoOwner
	}
	return false
}
