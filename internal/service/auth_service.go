package service

import (
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/snapsell/internal/db"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	accessTokenTTL    = 24 * time.Hour
	minPasswordLength = 8
)

var (
	// ErrEmailTaken 在注册邮箱已被占用时返回。
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials 在邮箱或密码不匹配时返回。
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInvalidToken 在令牌缺失、过期或签名不合法时返回。
	ErrInvalidToken = errors.New("invalid or expired token")
)

// AuthService 负责账号注册、登录与访问令牌的签发校验。
type AuthService struct {
	db     *gorm.DB
	secret []byte
}

// NewAuthService 构造 AuthService，secret 用于 HS256 签名。
func NewAuthService(gdb *gorm.DB, secret string) *AuthService {
	return &AuthService{db: gdb, secret: []byte(secret)}
}

// Register 创建新账号并返回访问令牌。
func (s *AuthService) Register(email, password string) (string, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return "", err
	}
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLength)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	// 邮箱唯一性交给唯一索引保证，并发重复注册也只会有一个成功
	user := db.User{Email: normalized, Password: string(hashed)}
	if err := s.db.Create(&user).Error; err != nil {
		if isDuplicateEmail(err) {
			return "", ErrEmailTaken
		}
		return "", fmt.Errorf("create user: %w", err)
	}

	return s.issueToken(user.ID)
}

// Login 校验邮箱密码并返回访问令牌。
func (s *AuthService) Login(email, password string) (string, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return "", ErrInvalidCredentials
	}

	var user db.User
	if err := s.db.Where("email = ?", normalized).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	return s.issueToken(user.ID)
}

// ParseToken 校验访问令牌并返回其中的用户 ID。
func (s *AuthService) ParseToken(tokenString string) (uint, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return 0, ErrInvalidToken
	}

	userID, err := strconv.ParseUint(claims.Subject, 10, 32)
	if err != nil || userID == 0 {
		return 0, ErrInvalidToken
	}

	return uint(userID), nil
}

func (s *AuthService) issueToken(userID uint) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(accessTokenTTL)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

func isDuplicateEmail(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint")
}

func normalizeEmail(email string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(email))
	if trimmed == "" {
		return "", fmt.Errorf("%w: email is required", ErrValidation)
	}
	if _, err := mail.ParseAddress(trimmed); err != nil {
		return "", fmt.Errorf("%w: malformed email", ErrValidation)
	}
	return trimmed, nil
}
