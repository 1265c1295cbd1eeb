package handlers

import (
	"net/http"

	"linkshare-backend/pkg/config"
	"linkshare-backend/pkg/service"
	"linkshare-backend/pkg/utils"
)

// ProfileHandler 个人资料处理器
type ProfileHandler struct {
	config *config.Config
	svc    *service.Service
}

// NewProfileHandler 创建个人资料处理器
func NewProfileHandler(cfg *config.Config, svc *service.Service) *ProfileHandler {
	return &ProfileHandler{
		config: cfg,
		svc:    svc,
	}
}

// Me 返回当前用户的最新资料
func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := freshActor(h.svc, r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, user)
}

// ChangeUsername 修改用户名
// 旧用户名在uploads/chat/auditLog里的所有副本会在一个事务里一并改写
// 旧access token里还是旧用户名，这里随响应发放新令牌
func (h *ProfileHandler) ChangeUsername(w http.ResponseWriter, r *http.Request) {
	actor, err := freshActor(h.svc, r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var req struct {
		Username string `json:"username"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	user, err := h.svc.ChangeUsername(actor, req.Username)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	jwtService := utils.NewJWTService(h.config.JWTSecret)
	accessToken, expiresIn, err := jwtService.GenerateAccessToken(user)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to generate token: "+err.Error())
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"user":         user,
		"access_token": accessToken,
		"expires_in":   expiresIn,
	})
}

// ChangePassword 修改密码
func (h *ProfileHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	actor, err := freshActor(h.svc, r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var req struct {
		Password string `json:"password"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	if err := h.svc.ChangePassword(actor, req.Password); err != nil {
		writeServiceError(w, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"message": "Password updated"})
}
