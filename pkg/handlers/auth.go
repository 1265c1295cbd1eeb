package handlers

import (
	"net/http"
	"strings"

	"linkshare-backend/pkg/config"
	"linkshare-backend/pkg/models"
	"linkshare-backend/pkg/service"
	"linkshare-backend/pkg/utils"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	config *config.Config
	svc    *service.Service
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(cfg *config.Config, svc *service.Service) *AuthHandler {
	return &AuthHandler{
		config: cfg,
		svc:    svc,
	}
}

// Register 用户注册
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.UserRegisterRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	user, err := h.svc.Register(&req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// 注册即登录，直接发放访问令牌
	jwtService := utils.NewJWTService(h.config.JWTSecret)
	accessToken, expiresIn, err := jwtService.GenerateAccessToken(user)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to generate token: "+err.Error())
		return
	}

	utils.WriteCreatedResponse(w, models.UserLoginResponse{
		User:        *user,
		AccessToken: accessToken,
		ExpiresIn:   expiresIn,
	})
}

// Login 用户登录
// remember=true时额外发放refresh token，会话可跨重启恢复
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.UserLoginRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}

	user, err := h.svc.Login(&req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	jwtService := utils.NewJWTService(h.config.JWTSecret)

	resp := models.UserLoginResponse{User: *user}
	if req.Remember {
		accessToken, refreshToken, expiresIn, err := jwtService.GenerateTokenPair(user)
		if err != nil {
			utils.WriteInternalServerErrorResponse(w, "Failed to generate tokens: "+err.Error())
			return
		}
		resp.AccessToken = accessToken
		resp.RefreshToken = refreshToken
		resp.ExpiresIn = expiresIn
	} else {
		accessToken, expiresIn, err := jwtService.GenerateAccessToken(user)
		if err != nil {
			utils.WriteInternalServerErrorResponse(w, "Failed to generate token: "+err.Error())
			return
		}
		resp.AccessToken = accessToken
		resp.ExpiresIn = expiresIn
	}

	utils.WriteSuccessResponse(w, resp)
}

// RefreshToken 刷新令牌
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshTokenRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		utils.WriteBadRequestResponse(w, "refresh_token is required")
		return
	}

	jwtService := utils.NewJWTService(h.config.JWTSecret)
	accessToken, expiresIn, err := jwtService.RefreshAccessToken(req.RefreshToken)
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Invalid or expired refresh token: "+err.Error())
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"access_token": accessToken,
		"expires_in":   expiresIn,
	})
}

// Logout 用户登出
// 令牌无服务端状态，登出由客户端丢弃令牌完成
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"message": "Logged out",
	})
}

// HealthCheck 健康检查
func (h *AuthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if err := h.svc.Store().HealthCheck(); err != nil {
		status = "degraded: " + err.Error()
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"status":      status,
		"backend":     h.config.StoreBackend,
		"sync_status": h.svc.SyncStatus(),
		"environment": h.config.Environment,
	})
}
