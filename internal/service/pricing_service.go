package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	defaultOpenAIPricingModel   = "gpt-4o-mini"
	defaultDeepSeekPricingModel = "deepseek-chat"
	defaultPricingMaxTokens     = 200
	defaultPricingTemperature   = 0.2
)

const defaultPricingSystemPrompt = "你是一名二手交易平台的估价师。根据商品照片给出三档建议售价：" +
	"fast（快速出手价）、recommended（推荐价）、max（理想上限价）。" +
	"三档价格必须为正数且严格递增。只输出 JSON 对象 {\"fast\":数字,\"recommended\":数字,\"max\":数字}，不要附加任何说明。"

// ErrPricingMalformed 表示模型返回的价格不满足三档递增的要求。
var ErrPricingMalformed = errors.New("pricing generator returned malformed tiers")

// PricingTiers 为三档建议售价，固定货币，fast < recommended < max。
type PricingTiers struct {
	Fast        float64 `json:"fast"`
	Recommended float64 `json:"recommended"`
	Max         float64 `json:"max"`
}

// Contains 判断给定价格是否恰好等于三档之一。
func (t PricingTiers) Contains(price float64) bool {
	return price == t.Fast || price == t.Recommended || price == t.Max
}

// PricingInput 描述生成价格建议所需的上下文。
type PricingInput struct {
	ImageURL string
	Currency string
}

// PricingResult 返回三档价格及少量用量元数据。
type PricingResult struct {
	Tiers            PricingTiers
	PromptTokens     int
	CompletionTokens int
}

// PricingGenerator 定义估价能力，便于在业务层注入不同实现。
type PricingGenerator interface {
	GeneratePricing(ctx context.Context, input PricingInput) (PricingResult, error)
}

// AIPricingService 基于视觉大模型接口对商品照片估价。
type AIPricingService struct {
	client *aiChatClient
}

// NewAIPricingService 构造默认的 AIPricingService。
func NewAIPricingService(settings *SystemSettingService) *AIPricingService {
	return &AIPricingService{
		client: newAIChatClient(settings, defaultOpenAIPricingModel, defaultDeepSeekPricingModel),
	}
}

// SetHTTPClient 覆盖默认 HTTP 客户端，主要用于测试。
func (s *AIPricingService) SetHTTPClient(client httpDoer) {
	s.client.SetHTTPClient(client)
}

// SetOpenAIBaseURL 覆盖默认的 OpenAI API 地址。
func (s *AIPricingService) SetOpenAIBaseURL(base string) {
	s.client.SetOpenAIBaseURL(base)
}

// SetDeepSeekBaseURL 覆盖默认的 DeepSeek API 地址。
func (s *AIPricingService) SetDeepSeekBaseURL(base string) {
	s.client.SetDeepSeekBaseURL(base)
}

// SetOpenAIModel 指定 OpenAI 估价所使用的模型名称。
func (s *AIPricingService) SetOpenAIModel(model string) {
	s.client.SetOpenAIModel(model)
}

// SetDeepSeekModel 指定 DeepSeek 估价所使用的模型名称。
func (s *AIPricingService) SetDeepSeekModel(model string) {
	s.client.SetDeepSeekModel(model)
}

// GeneratePricing 调用当前配置的 AI 平台对商品照片给出三档售价。
func (s *AIPricingService) GeneratePricing(ctx context.Context, input PricingInput) (PricingResult, error) {
	imageURL := strings.TrimSpace(input.ImageURL)
	if imageURL == "" {
		return PricingResult{}, fmt.Errorf("image url is required")
	}

	settings, err := s.client.settings.GetSettings()
	if err != nil {
		return PricingResult{}, fmt.Errorf("读取系统设置失败: %w", err)
	}

	systemPrompt := strings.TrimSpace(settings.PricingPrompt)
	if systemPrompt == "" {
		systemPrompt = defaultPricingSystemPrompt
	}

	userPrompt := buildPricingPrompt(input.Currency)
	logAIExchange("PRICING", "prompt", userPrompt)

	result, err := s.client.callWithSettings(ctx, settings, aiChatRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		ImageURL:     imageURL,
		MaxTokens:    defaultPricingMaxTokens,
		Temperature:  defaultPricingTemperature,
	})
	if err != nil {
		return PricingResult{}, err
	}

	logAIExchange("PRICING", "response", result.Content)

	tiers, err := parsePricingTiers(result.Content)
	if err != nil {
		return PricingResult{}, err
	}

	return PricingResult{
		Tiers:            tiers,
		PromptTokens:     result.PromptTokens,
		CompletionTokens: result.CompletionTokens,
	}, nil
}

func buildPricingPrompt(currency string) string {
	currency = strings.TrimSpace(currency)
	if currency == "" {
		currency = defaultListingCurrency
	}

	var builder strings.Builder
	builder.WriteString("请根据图片中的二手商品给出三档建议售价，货币为 ")
	builder.WriteString(currency)
	builder.WriteString("。")
	return builder.String()
}

func parsePricingTiers(content string) (PricingTiers, error) {
	raw, err := extractJSONObject(content)
	if err != nil {
		return PricingTiers{}, fmt.Errorf("%w: %s", ErrPricingMalformed, strings.TrimSpace(content))
	}

	var tiers PricingTiers
	if err := json.Unmarshal([]byte(raw), &tiers); err != nil {
		return PricingTiers{}, fmt.Errorf("%w: %v", ErrPricingMalformed, err)
	}

	if tiers.Fast <= 0 || tiers.Recommended <= 0 || tiers.Max <= 0 {
		return PricingTiers{}, fmt.Errorf("%w: tiers must be positive", ErrPricingMalformed)
	}
	if !(tiers.Fast < tiers.Recommended && tiers.Recommended < tiers.Max) {
		return PricingTiers{}, fmt.Errorf("%w: tiers must be strictly ascending", ErrPricingMalformed)
	}

	return tiers, nil
}
