package handlers

import (
	"fmt"
	"net/http"
	"time"

	"linkshare-backend/pkg/config"
	"linkshare-backend/pkg/database"
	customMiddleware "linkshare-backend/pkg/middleware"
	"linkshare-backend/pkg/service"
	"linkshare-backend/pkg/utils"
	"linkshare-backend/pkg/ws"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxRequestBody = 1 << 20 // 1MB

// SetupMiddleware 设置全局中间件
func SetupMiddleware(router *chi.Mux, cfg *config.Config) {
	// 基础中间件
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	// Normalize path and restore scheme/host before logging and routing
	router.Use(customMiddleware.Normalize())
	router.Use(customMiddleware.Logger(cfg))
	router.Use(customMiddleware.Recovery(cfg))

	// CORS中间件
	router.Use(customMiddleware.CORS(cfg))

	// 超时中间件
	router.Use(middleware.Timeout(30 * time.Second))

	// 压缩中间件
	router.Use(middleware.Compress(5))

	// 请求体大小限制
	router.Use(customMiddleware.MaxBodySize(maxRequestBody))

	// 开发环境额外中间件
	if cfg.IsDevelopment() {
		router.Use(middleware.Heartbeat("/ping"))
	}
}

// SetupRoutes 设置所有API路由
func SetupRoutes(router *chi.Mux, cfg *config.Config, svc *service.Service, hub *ws.Hub) {
	// 创建处理器
	authHandler := NewAuthHandler(cfg, svc)
	uploadHandler := NewUploadHandler(cfg, svc)
	chatHandler := NewChatHandler(cfg, svc, hub)
	adminHandler := NewAdminHandler(cfg, svc)
	profileHandler := NewProfileHandler(cfg, svc)

	// 健康检查端点
	router.Get("/", authHandler.HealthCheck)
	router.Get("/health", authHandler.HealthCheck)

	// 存储连接状态端点（调试用）
	if cfg.IsDevelopment() {
		router.Get("/debug/db-pool", func(w http.ResponseWriter, r *http.Request) {
			utils.WriteSuccessResponse(w, database.GetConnectionStats())
		})
	}

	// WebSocket实时推送
	router.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(hub, w, r)
	})

	// API路由组
	router.Route("/api", func(r chi.Router) {
		// 公开路由（不需要认证）
		r.Route("/auth", func(r chi.Router) {
			r.Use(customMiddleware.ContentTypeJSON)
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.RefreshToken)
			r.Post("/logout", authHandler.Logout)
		})

		// 当前同步状态
		r.Get("/sync-status", func(w http.ResponseWriter, r *http.Request) {
			utils.WriteSuccessResponse(w, map[string]interface{}{
				"status": svc.SyncStatus(),
			})
		})

		// 上传列表与提交：游客可访问，带token则以对应身份处理
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.OptionalAuthMiddleware(cfg))

			r.Get("/uploads", uploadHandler.List)
			r.Post("/uploads", uploadHandler.Create)

			r.Get("/chat", chatHandler.List)
			r.Post("/chat", chatHandler.Send)
		})

		// 需要认证的路由
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.AuthMiddleware(cfg))

			// 审核操作
			r.Route("/uploads/{id}", func(r chi.Router) {
				r.Post("/approve", uploadHandler.Approve)
				r.Post("/reject", uploadHandler.Reject)
				r.Delete("/", uploadHandler.Remove)
			})

			// 个人资料
			r.Route("/profile", func(r chi.Router) {
				r.Get("/me", profileHandler.Me)
				r.Put("/username", profileHandler.ChangeUsername)
				r.Put("/password", profileHandler.ChangePassword)
			})

			// 用户管理与审计日志
			r.Route("/admin", func(r chi.Router) {
				r.Get("/users", adminHandler.ListUsers)
				r.Put("/users/{id}/role", adminHandler.UpdateRole)
				r.Delete("/users/{id}", adminHandler.DeleteUser)
				r.Get("/audit-log", adminHandler.ListAuditLog)
			})
		})
	})

	// 404处理
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteNotFoundResponse(w, fmt.Sprintf("Route not found: %s %s", r.Method, r.URL.Path))
	})

	// 405处理
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteErrorResponseWithCode(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			fmt.Sprintf("Method %s not allowed for %s", r.Method, r.URL.Path), "")
	})
}
