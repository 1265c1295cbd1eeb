package middleware

import (
	"fmt"
	"net/http"
	"time"

	"linkshare-backend/pkg/config"

	"github.com/go-chi/chi/v5/middleware"
)

// Logger 创建日志中间件
func Logger(cfg *config.Config) func(http.Handler) http.Handler {
	if cfg.IsProduction() {
		return CustomLogger(cfg)
	}
	// 开发环境统一使用Chi的默认日志中间件
	return middleware.Logger
}

// CustomLogger 自定义日志中间件
func CustomLogger(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// 创建响应写入器包装器来捕获状态码
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			duration := time.Since(start)

			// 获取用户信息（如果有）
			userInfo := "guest"
			if user, ok := GetUserFromContext(r.Context()); ok && user != nil {
				userInfo = user.Username
			}

			// 生产环境：结构化日志
			fmt.Printf(`{"time":"%s","method":"%s","path":"%s","status":%d,"duration":"%s","user":"%s","ip":"%s","user_agent":"%s"}`+"\n",
				time.Now().Format(time.RFC3339),
				r.Method,
				r.URL.Path,
				ww.Status(),
				duration,
				userInfo,
				getClientIP(r),
				r.UserAgent(),
			)
		})
	}
}

// getClientIP 获取客户端IP地址
func getClientIP(r *http.Request) string {
	// 检查X-Forwarded-For头（代理/负载均衡器）
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}

	// 检查X-Real-IP头
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	return r.RemoteAddr
}
