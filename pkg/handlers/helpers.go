package handlers

import (
	"errors"
	"net/http"

	"linkshare-backend/pkg/middleware"
	"linkshare-backend/pkg/models"
	"linkshare-backend/pkg/service"
	"linkshare-backend/pkg/utils"
)

// viewerFromContext 返回当前请求的用户，游客返回nil
func viewerFromContext(r *http.Request) *models.User {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		return nil
	}
	return user
}

// freshActor 从存储重新读取当前用户
// token里的角色可能已过期（被owner改过角色），权限判断必须用最新角色
func freshActor(svc *service.Service, r *http.Request) (*models.User, error) {
	ctxUser := viewerFromContext(r)
	if ctxUser == nil {
		return nil, service.ErrPermissionDenied
	}
	return svc.GetUser(ctxUser.ID)
}

// writeServiceError 将service错误映射为HTTP响应
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrUsernameTaken):
		utils.WriteConflictResponse(w, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		utils.WriteUnauthorizedResponse(w, err.Error())
	case errors.Is(err, service.ErrPermissionDenied):
		utils.WriteForbiddenResponse(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		utils.WriteNotFoundResponse(w, err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		utils.WriteBadRequestResponse(w, err.Error())
	default:
		utils.WriteInternalServerErrorResponse(w, err.Error())
	}
}
