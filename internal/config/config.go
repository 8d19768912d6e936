package config

import (
	"fmt"
	"os"
	"strings"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr     string
	Port           string
	DatabasePath   string
	JWTSecret      string
	GinMode        string
	AIProvider     string
	OpenAIAPIKey   string
	DeepSeekAPIKey string
	Currency       string
}

// Load 从环境变量读取应用配置，并为缺失项提供安全的默认值。
func Load() AppConfig {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	listenAddr := strings.TrimSpace(os.Getenv("LISTEN_ADDR"))
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%s", port)
	}

	databasePath := strings.TrimSpace(os.Getenv("DATABASE_PATH"))
	if databasePath == "" {
		databasePath = "snapsell.db"
	}

	jwtSecret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if jwtSecret == "" {
		jwtSecret = "snapsell-dev-secret"
	}

	ginMode := strings.TrimSpace(os.Getenv("GIN_MODE"))
	if ginMode == "" {
		ginMode = "release"
	}

	currency := strings.TrimSpace(os.Getenv("CURRENCY"))
	if currency == "" {
		currency = "BGN"
	}

	return AppConfig{
		ListenAddr:     listenAddr,
		Port:           port,
		DatabasePath:   databasePath,
		JWTSecret:      jwtSecret,
		GinMode:        ginMode,
		AIProvider:     strings.TrimSpace(os.Getenv("AI_PROVIDER")),
		OpenAIAPIKey:   strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		DeepSeekAPIKey: strings.TrimSpace(os.Getenv("DEEPSEEK_API_KEY")),
		Currency:       currency,
	}
}
