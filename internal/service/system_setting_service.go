package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/snapsell/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// AIProviderOpenAI 表示使用 OpenAI 能力。
	AIProviderOpenAI = "openai"
	// AIProviderDeepSeek 表示使用 DeepSeek 能力。
	AIProviderDeepSeek = "deepseek"
)

var supportedAIProviders = []string{AIProviderOpenAI, AIProviderDeepSeek}

// defaultListingCurrency 为刊登默认货币，可在系统设置中覆盖。
const defaultListingCurrency = "BGN"

// SystemSettings 描述可配置的系统信息。
type SystemSettings struct {
	AIProvider     string
	OpenAIAPIKey   string
	DeepSeekAPIKey string
	Currency       string
	PricingPrompt  string
	TextPrompt     string
}

// ErrAIAPIKeyMissing 表示未提供必需的 AI 平台 API Key。
var ErrAIAPIKeyMissing = errors.New("api key is required")

// SystemSettingsInput 用于更新系统设置。
type SystemSettingsInput struct {
	AIProvider     string
	OpenAIAPIKey   string
	DeepSeekAPIKey string
	Currency       string
	PricingPrompt  string
	TextPrompt     string
}

// SystemSettingService 提供系统设置的读取与更新能力。
type SystemSettingService struct {
	db              *gorm.DB
	httpClient      httpDoer
	openAIBaseURL   string
	deepSeekBaseURL string
}

// NewSystemSettingService 构造 SystemSettingService。
func NewSystemSettingService(gdb *gorm.DB) *SystemSettingService {
	return &SystemSettingService{
		db:              gdb,
		httpClient:      &http.Client{Timeout: 10 * time.Second},
		openAIBaseURL:   "https://api.openai.com/v1",
		deepSeekBaseURL: "https://api.deepseek.com/v1",
	}
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

var settingKeys = []string{
	db.SettingKeyAIProvider,
	db.SettingKeyOpenAIAPIKey,
	db.SettingKeyDeepSeekAPIKey,
	db.SettingKeyCurrency,
	db.SettingKeyPricingPrompt,
	db.SettingKeyTextPrompt,
}

// GetSettings 读取系统设置，如未设置将返回默认值。
func (s *SystemSettingService) GetSettings() (SystemSettings, error) {
	result := SystemSettings{AIProvider: AIProviderOpenAI, Currency: defaultListingCurrency}

	var records []db.SystemSetting
	if err := s.db.Where("key IN ?", settingKeys).Find(&records).Error; err != nil {
		return result, fmt.Errorf("load system settings: %w", err)
	}

	for _, record := range records {
		switch record.Key {
		case db.SettingKeyAIProvider:
			if provider := normalizeAIProvider(record.Value); provider != "" {
				result.AIProvider = provider
			}
		case db.SettingKeyOpenAIAPIKey:
			result.OpenAIAPIKey = record.Value
		case db.SettingKeyDeepSeekAPIKey:
			result.DeepSeekAPIKey = record.Value
		case db.SettingKeyCurrency:
			if strings.TrimSpace(record.Value) != "" {
				result.Currency = strings.TrimSpace(record.Value)
			}
		case db.SettingKeyPricingPrompt:
			result.PricingPrompt = record.Value
		case db.SettingKeyTextPrompt:
			result.TextPrompt = record.Value
		}
	}

	return result, nil
}

// UpdateSettings 保存系统设置，未填写货币时回退默认值。
func (s *SystemSettingService) UpdateSettings(input SystemSettingsInput) (SystemSettings, error) {
	provider := normalizeAIProvider(input.AIProvider)
	if provider == "" {
		provider = AIProviderOpenAI
	}

	sanitized := SystemSettings{
		AIProvider:     provider,
		OpenAIAPIKey:   strings.TrimSpace(input.OpenAIAPIKey),
		DeepSeekAPIKey: strings.TrimSpace(input.DeepSeekAPIKey),
		Currency:       strings.ToUpper(strings.TrimSpace(input.Currency)),
		PricingPrompt:  strings.TrimSpace(input.PricingPrompt),
		TextPrompt:     strings.TrimSpace(input.TextPrompt),
	}

	if sanitized.Currency == "" {
		sanitized.Currency = defaultListingCurrency
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		pairs := map[string]string{
			db.SettingKeyAIProvider:     sanitized.AIProvider,
			db.SettingKeyOpenAIAPIKey:   sanitized.OpenAIAPIKey,
			db.SettingKeyDeepSeekAPIKey: sanitized.DeepSeekAPIKey,
			db.SettingKeyCurrency:       sanitized.Currency,
			db.SettingKeyPricingPrompt:  sanitized.PricingPrompt,
			db.SettingKeyTextPrompt:     sanitized.TextPrompt,
		}
		for _, key := range settingKeys {
			if err := upsertSetting(tx, key, pairs[key]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return SystemSettings{}, fmt.Errorf("update system settings: %w", err)
	}

	return sanitized, nil
}

// EnsureDefaults 仅为尚未配置的键写入初始值，已有配置不会被环境变量覆盖。
func (s *SystemSettingService) EnsureDefaults(input SystemSettingsInput) error {
	pairs := map[string]string{
		db.SettingKeyAIProvider:     normalizeAIProvider(input.AIProvider),
		db.SettingKeyOpenAIAPIKey:   strings.TrimSpace(input.OpenAIAPIKey),
		db.SettingKeyDeepSeekAPIKey: strings.TrimSpace(input.DeepSeekAPIKey),
		db.SettingKeyCurrency:       strings.ToUpper(strings.TrimSpace(input.Currency)),
		db.SettingKeyPricingPrompt:  strings.TrimSpace(input.PricingPrompt),
		db.SettingKeyTextPrompt:     strings.TrimSpace(input.TextPrompt),
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, key := range settingKeys {
			value := pairs[key]
			if value == "" {
				continue
			}

			var existing db.SystemSetting
			err := tx.Where("key = ?", key).First(&existing).Error
			if err == nil && strings.TrimSpace(existing.Value) != "" {
				continue
			}
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("load setting %s: %w", key, err)
			}

			if err := upsertSetting(tx, key, value); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertSetting(tx *gorm.DB, key, value string) error {
	setting := db.SystemSetting{Key: key, Value: value}
	if err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"value":      value,
			"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
		}),
	}).Create(&setting).Error; err != nil {
		return fmt.Errorf("upsert setting %s: %w", key, err)
	}
	return nil
}

// SetHTTPClient 替换用于访问第三方服务的 HTTP 客户端，主要面向测试场景。
func (s *SystemSettingService) SetHTTPClient(client httpDoer) {
	if client == nil {
		s.httpClient = &http.Client{Timeout: 10 * time.Second}
		return
	}
	s.httpClient = client
}

// SetOpenAIBaseURL 覆盖 OpenAI API 的基础地址，便于测试或自定义代理。
func (s *SystemSettingService) SetOpenAIBaseURL(base string) {
	trimmed := strings.TrimSpace(base)
	s.openAIBaseURL = strings.TrimRight(trimmed, "/")
}

// SetDeepSeekBaseURL 覆盖 DeepSeek API 的基础地址，便于测试或自定义代理。
func (s *SystemSettingService) SetDeepSeekBaseURL(base string) {
	trimmed := strings.TrimSpace(base)
	s.deepSeekBaseURL = strings.TrimRight(trimmed, "/")
}

// TestAIConnection 调用指定 AI 平台的模型接口验证 API Key 的有效性。
func (s *SystemSettingService) TestAIConnection(ctx context.Context, provider, apiKey string) error {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return ErrAIAPIKeyMissing
	}

	prov := normalizeAIProvider(provider)
	if prov == "" {
		prov = AIProviderOpenAI
	}

	client := s.httpClient
	if client == nil {
		client = http.DefaultClient
	}

	base := ""
	label := ""
	switch prov {
	case AIProviderDeepSeek:
		base = s.deepSeekBaseURL
		if strings.TrimSpace(base) == "" {
			base = "https://api.deepseek.com/v1"
		}
		label = "DeepSeek"
	default:
		base = s.openAIBaseURL
		if strings.TrimSpace(base) == "" {
			base = "https://api.openai.com/v1"
		}
		label = "OpenAI"
	}

	endpoint := strings.TrimRight(base, "/") + "/models"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", strings.ToLower(label), err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("User-Agent", "snapsell-admin/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("请求 %s 接口失败: %w", label, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		msg := strings.TrimSpace(string(body))
		if msg != "" {
			return fmt.Errorf("%s 返回错误：%s (%s)", label, resp.Status, msg)
		}
		return fmt.Errorf("%s 返回错误：%s", label, resp.Status)
	}

	return nil
}

func normalizeAIProvider(provider string) string {
	trimmed := strings.ToLower(strings.TrimSpace(provider))
	for _, candidate := range supportedAIProviders {
		if trimmed == candidate {
			return candidate
		}
	}
	return ""
}
