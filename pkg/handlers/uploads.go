package handlers

import (
	"net/http"

	"linkshare-backend/pkg/config"
	"linkshare-backend/pkg/models"
	"linkshare-backend/pkg/service"
	"linkshare-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
)

// UploadHandler 链接提交与审核处理器
type UploadHandler struct {
	config *config.Config
	svc    *service.Service
}

// NewUploadHandler 创建上传处理器
func NewUploadHandler(cfg *config.Config, svc *service.Service) *UploadHandler {
	return &UploadHandler{
		config: cfg,
		svc:    svc,
	}
}

// List 列出当前用户可见的上传
// 审核员看到全部，登录用户看到已批准的加上自己的待审，游客只看到已批准的
func (h *UploadHandler) List(w http.ResponseWriter, r *http.Request) {
	uploads, err := h.svc.ListUploads(viewerFromContext(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, uploads)
}

// Create 提交链接，未登录时以 Guest 身份提交
func (h *UploadHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.UploadCreateRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	username := ""
	if viewer := viewerFromContext(r); viewer != nil {
		username = viewer.Username
	}

	upload, err := h.svc.SubmitUpload(username, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.WriteCreatedResponse(w, upload)
}

// Approve 批准待审上传并记录审计日志
func (h *UploadHandler) Approve(w http.ResponseWriter, r *http.Request) {
	actor, err := freshActor(h.svc, r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if err := h.svc.Approve(actor, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"message": "Upload approved"})
}

// Reject 拒绝并删除待审上传，记录审计日志
func (h *UploadHandler) Reject(w http.ResponseWriter, r *http.Request) {
	actor, err := freshActor(h.svc, r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if err := h.svc.Reject(actor, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"message": "Upload rejected"})
}

// Remove 删除已批准的帖子（不写审计日志）
func (h *UploadHandler) Remove(w http.ResponseWriter, r *http.Request) {
	actor, err := freshActor(h.svc, r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if err := h.svc.RemovePost(actor, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"message": "Post removed"})
}
