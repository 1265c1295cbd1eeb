package handlers

import (
	"net/http"

	"linkshare-backend/pkg/config"
	"linkshare-backend/pkg/models"
	"linkshare-backend/pkg/service"
	"linkshare-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
)

// AdminHandler 用户管理与审计日志处理器
type AdminHandler struct {
	config *config.Config
	svc    *service.Service
}

// NewAdminHandler 创建管理处理器
func NewAdminHandler(cfg *config.Config, svc *service.Service) *AdminHandler {
	return &AdminHandler{
		config: cfg,
		svc:    svc,
	}
}

// ListUsers 列出所有用户（仅审核员）
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	actor, err := freshActor(h.svc, r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	users, err := h.svc.ListUsers(actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, users)
}

// UpdateRole 修改用户角色（仅owner，且不能改自己）
func (h *AdminHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	actor, err := freshActor(h.svc, r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var req struct {
		Role string `json:"role"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	if err := h.svc.UpdateRole(actor, chi.URLParam(r, "id"), models.Role(req.Role)); err != nil {
		writeServiceError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"message": "Role updated"})
}

// DeleteUser 删除用户（owner/co-owner，owner账号永不可删）
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, err := freshActor(h.svc, r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if err := h.svc.DeleteUser(actor, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"message": "User deleted"})
}

// ListAuditLog 查看审核日志（仅审核员）
func (h *AdminHandler) ListAuditLog(w http.ResponseWriter, r *http.Request) {
	actor, err := freshActor(h.svc, r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	entries, err := h.svc.ListAuditLog(actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, entries)
}
