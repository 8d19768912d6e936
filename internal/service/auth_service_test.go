package service

import (
	"errors"
	"testing"

	"github.com/snapsell/internal/db"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupAuthTestDB(t *testing.T) func() {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := gdb.AutoMigrate(&db.User{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	db.DB = gdb

	return func() {
		sqlDB, err := db.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
}

func TestAuthServiceRegisterAndLogin(t *testing.T) {
	cleanup := setupAuthTestDB(t)
	defer cleanup()

	svc := NewAuthService(db.DB, "test-secret")

	token, err := svc.Register("Seller@Example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if token == "" {
		t.Fatal("expected a token")
	}

	userID, err := svc.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken returned error: %v", err)
	}
	if userID == 0 {
		t.Fatal("expected user id in token")
	}

	// 邮箱归一化后登录
	loginToken, err := svc.Login("seller@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	loginUserID, err := svc.ParseToken(loginToken)
	if err != nil {
		t.Fatalf("ParseToken returned error: %v", err)
	}
	if loginUserID != userID {
		t.Fatalf("expected same user id, got %d and %d", userID, loginUserID)
	}
}

func TestAuthServiceRejectsDuplicateEmail(t *testing.T) {
	cleanup := setupAuthTestDB(t)
	defer cleanup()

	svc := NewAuthService(db.DB, "test-secret")

	if _, err := svc.Register("seller@example.com", "correct-horse"); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	if _, err := svc.Register("seller@example.com", "another-pass"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	// 唯一索引兜底，大小写变体也会命中
	if _, err := svc.Register("Seller@Example.com", "another-pass"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken for case variant, got %v", err)
	}

	var count int64
	if err := db.DB.Model(&db.User{}).Count(&count).Error; err != nil {
		t.Fatalf("count users: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single user row, got %d", count)
	}
}

func TestAuthServiceValidatesInput(t *testing.T) {
	cleanup := setupAuthTestDB(t)
	defer cleanup()

	svc := NewAuthService(db.DB, "test-secret")

	if _, err := svc.Register("not-an-email", "correct-horse"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for malformed email, got %v", err)
	}
	if _, err := svc.Register("seller@example.com", "short"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for short password, got %v", err)
	}
}

func TestAuthServiceRejectsBadCredentials(t *testing.T) {
	cleanup := setupAuthTestDB(t)
	defer cleanup()

	svc := NewAuthService(db.DB, "test-secret")

	if _, err := svc.Register("seller@example.com", "correct-horse"); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	if _, err := svc.Login("seller@example.com", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login("unknown@example.com", "correct-horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthServiceRejectsForeignToken(t *testing.T) {
	cleanup := setupAuthTestDB(t)
	defer cleanup()

	svc := NewAuthService(db.DB, "test-secret")
	other := NewAuthService(db.DB, "other-secret")

	token, err := svc.Register("seller@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	if _, err := other.ParseToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}
	if _, err := svc.ParseToken("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}
}
