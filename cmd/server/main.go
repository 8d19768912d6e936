package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/snapsell/internal/config"
	"github.com/snapsell/internal/db"
	"github.com/snapsell/internal/handler"
	"github.com/snapsell/internal/router"
	"github.com/snapsell/internal/service"

	"github.com/gin-gonic/gin"
)

func main() {
	// .env 不存在时忽略，线上直接读环境变量
	_ = godotenv.Load()

	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	// 初始化数据库
	if err := db.Init(cfg.DatabasePath); err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	api := handler.NewAPI(db.DB, cfg.JWTSecret)

	// 只为尚未配置的系统设置写入环境变量提供的初始值
	if err := api.Settings().EnsureDefaults(service.SystemSettingsInput{
		AIProvider:     cfg.AIProvider,
		OpenAIAPIKey:   cfg.OpenAIAPIKey,
		DeepSeekAPIKey: cfg.DeepSeekAPIKey,
		Currency:       cfg.Currency,
	}); err != nil {
		log.Fatalf("failed to seed system settings: %v", err)
	}

	// 启动时校验已配置的 AI Key，失败只告警，不阻塞启动
	verifyAIConnection(api.Settings())

	// 设置并运行 Gin 服务器
	r := router.SetupRouter(api)
	if err := r.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("failed to run server: %v", err)
	}
}

func verifyAIConnection(settings *service.SystemSettingService) {
	current, err := settings.GetSettings()
	if err != nil {
		log.Printf("failed to load system settings for AI check: %v", err)
		return
	}

	apiKey := current.OpenAIAPIKey
	if current.AIProvider == service.AIProviderDeepSeek {
		apiKey = current.DeepSeekAPIKey
	}
	if apiKey == "" {
		log.Printf("no %s api key configured, generation endpoints will fail until one is set", current.AIProvider)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := settings.TestAIConnection(ctx, current.AIProvider, apiKey); err != nil {
		log.Printf("AI connectivity check failed: %v", err)
	}
}
