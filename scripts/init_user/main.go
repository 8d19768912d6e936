package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/snapsell/internal/config"
	"github.com/snapsell/internal/db"
	"golang.org/x/crypto/bcrypt"
)

// 创建首个卖家账号，已存在用户时直接退出。
func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if err := db.Init(cfg.DatabasePath); err != nil {
		log.Fatal("数据库初始化失败:", err)
	}

	var count int64
	db.DB.Model(&db.User{}).Count(&count)
	if count > 0 {
		fmt.Println("用户已存在，无需初始化")
		return
	}

	email := strings.ToLower(strings.TrimSpace(os.Getenv("SEED_EMAIL")))
	password := os.Getenv("SEED_PASSWORD")
	if email == "" || len(password) < 8 {
		log.Fatal("需要设置 SEED_EMAIL 和至少 8 位的 SEED_PASSWORD")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal("密码加密失败:", err)
	}

	user := db.User{
		Email:    email,
		Password: string(hashedPassword),
	}
	if err := db.DB.Create(&user).Error; err != nil {
		log.Fatal("创建用户失败:", err)
	}

	fmt.Printf("已创建账号 %s\n", email)
}
