package db

import "gorm.io/gorm"

// SystemSetting 存储可配置的系统级键值对。
type SystemSetting struct {
	gorm.Model
	Key   string `gorm:"size:100;uniqueIndex;not null"`
	Value string `gorm:"type:text"`
}

// TableName 自定义表名以保持命名一致。
func (SystemSetting) TableName() string {
	return "system_settings"
}

const (
	// SettingKeyAIProvider 表示使用的 AI 平台。
	SettingKeyAIProvider = "ai_provider"
	// SettingKeyOpenAIAPIKey 表示 OpenAI API Key。
	SettingKeyOpenAIAPIKey = "openai_api_key"
	// SettingKeyDeepSeekAPIKey 表示 DeepSeek API Key。
	SettingKeyDeepSeekAPIKey = "deepseek_api_key"
	// SettingKeyCurrency 表示刊登使用的固定货币。
	SettingKeyCurrency = "currency"
	// SettingKeyPricingPrompt 表示定价生成的系统提示词。
	SettingKeyPricingPrompt = "pricing_prompt"
	// SettingKeyTextPrompt 表示文案生成的系统提示词。
	SettingKeyTextPrompt = "text_prompt"
)
