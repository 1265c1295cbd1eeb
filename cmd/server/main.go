package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"linkshare-backend/pkg/config"
	"linkshare-backend/pkg/database"
	"linkshare-backend/pkg/handlers"
	"linkshare-backend/pkg/models"
	"linkshare-backend/pkg/service"
	"linkshare-backend/pkg/syncstatus"
	"linkshare-backend/pkg/ws"

	"github.com/go-chi/chi/v5"
)

func main() {
	// 加载并验证配置
	cfg := config.GetCached()
	if err := cfg.Validate(); err != nil {
		fmt.Printf("❌ Configuration error: %v\n", err)
		os.Exit(1)
	}

	// 初始化存储
	store := database.GetDatabase(database.DatabaseConfig{
		Backend:     cfg.StoreBackend,
		DataDir:     cfg.DataDir,
		SQLitePath:  cfg.SQLitePath,
		PostgresDSN: cfg.PostgresDSN,
		Debug:       cfg.Debug,
	})
	defer database.CloseDatabase()

	// WebSocket hub：向所有客户端推送集合变更、聊天消息和同步状态
	hub := ws.NewHub()
	go hub.Run()

	tracker := syncstatus.NewTracker(func(s syncstatus.Status) {
		hub.Broadcast(ws.EventSyncStatus, map[string]interface{}{"status": s})
	})

	svc := service.New(store, tracker, cfg.OwnerUsername, cfg.OwnerEmail)

	// 订阅所有集合：每次提交的变更都把最新快照推给在线客户端
	for _, collection := range models.Collections {
		collection := collection
		unsubscribe, err := store.Subscribe(collection, func(records []models.Record) {
			hub.Broadcast(ws.EventCollectionChanged, ws.CollectionPayload{
				Collection: collection,
				Records:    records,
			})
		})
		if err != nil {
			fmt.Printf("❌ Failed to subscribe to %s: %v\n", collection, err)
			os.Exit(1)
		}
		defer unsubscribe()
	}

	// 创建Chi路由器
	router := chi.NewRouter()
	handlers.SetupMiddleware(router, cfg)
	handlers.SetupRoutes(router, cfg, svc, hub)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // WebSocket连接不能有写超时
		IdleTimeout:  60 * time.Second,
	}

	// 优雅关闭
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		fmt.Printf("🌐 Server listening on :%s (backend: %s, env: %s)\n",
			cfg.Port, cfg.StoreBackend, cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("❌ Server error: %v\n", err)
			stop()
		}
	}()

	<-ctx.Done()
	fmt.Println("🔄 Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		fmt.Printf("⚠️  Shutdown error: %v\n", err)
	}
	fmt.Println("✅ Server stopped")
}
