package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	defaultOpenAITextModel   = "gpt-4o-mini"
	defaultDeepSeekTextModel = "deepseek-chat"
	defaultTextMaxTokens     = 600
	defaultTextTemperature   = 0.5
)

const defaultTextSystemPrompt = "你是一名二手交易平台的文案编辑。根据商品照片和卖家确定的售价，" +
	"写出吸引买家的刊登标题和描述。标题不超过 60 字，描述使用 Markdown、两到四段。" +
	"文案要与售价定位相符，不得虚构商品细节。" +
	"只输出 JSON 对象 {\"title\":\"...\",\"description\":\"...\",\"platformHint\":\"...\"}，" +
	"platformHint 为最适合转发的外部平台名称，没有建议时置空字符串。"

// ErrListingTextMalformed 表示模型返回的文案缺少必需字段。
var ErrListingTextMalformed = errors.New("text generator returned malformed listing text")

// ListingTextInput 描述生成刊登文案所需的上下文。
type ListingTextInput struct {
	ImageURL string
	// Price 为卖家已确认的售价，文案必须与该价位匹配。
	Price    float64
	Currency string
}

// ListingText 为模型生成的刊登文案。
type ListingText struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	PlatformHint string `json:"platformHint"`
}

// ListingTextResult 返回文案及少量用量元数据。
type ListingTextResult struct {
	Text             ListingText
	PromptTokens     int
	CompletionTokens int
}

// ListingTextGenerator 定义文案生成能力，便于在业务层注入不同实现。
type ListingTextGenerator interface {
	GenerateListingText(ctx context.Context, input ListingTextInput) (ListingTextResult, error)
}

// AIListingTextService 基于视觉大模型接口生成刊登文案。
type AIListingTextService struct {
	client *aiChatClient
}

// NewAIListingTextService 构造默认的 AIListingTextService。
func NewAIListingTextService(settings *SystemSettingService) *AIListingTextService {
	return &AIListingTextService{
		client: newAIChatClient(settings, defaultOpenAITextModel, defaultDeepSeekTextModel),
	}
}

// SetHTTPClient 覆盖默认 HTTP 客户端，主要用于测试。
func (s *AIListingTextService) SetHTTPClient(client httpDoer) {
	s.client.SetHTTPClient(client)
}

// SetOpenAIBaseURL 覆盖默认的 OpenAI API 地址。
func (s *AIListingTextService) SetOpenAIBaseURL(base string) {
	s.client.SetOpenAIBaseURL(base)
}

// SetDeepSeekBaseURL 覆盖默认的 DeepSeek API 地址。
func (s *AIListingTextService) SetDeepSeekBaseURL(base string) {
	s.client.SetDeepSeekBaseURL(base)
}

// SetOpenAIModel 指定 OpenAI 文案生成所使用的模型名称。
func (s *AIListingTextService) SetOpenAIModel(model string) {
	s.client.SetOpenAIModel(model)
}

// SetDeepSeekModel 指定 DeepSeek 文案生成所使用的模型名称。
func (s *AIListingTextService) SetDeepSeekModel(model string) {
	s.client.SetDeepSeekModel(model)
}

// GenerateListingText 调用当前配置的 AI 平台按已确认售价生成刊登文案。
func (s *AIListingTextService) GenerateListingText(ctx context.Context, input ListingTextInput) (ListingTextResult, error) {
	imageURL := strings.TrimSpace(input.ImageURL)
	if imageURL == "" {
		return ListingTextResult{}, fmt.Errorf("image url is required")
	}
	if input.Price <= 0 {
		return ListingTextResult{}, fmt.Errorf("price must be positive")
	}

	settings, err := s.client.settings.GetSettings()
	if err != nil {
		return ListingTextResult{}, fmt.Errorf("读取系统设置失败: %w", err)
	}

	systemPrompt := strings.TrimSpace(settings.TextPrompt)
	if systemPrompt == "" {
		systemPrompt = defaultTextSystemPrompt
	}

	userPrompt := buildListingTextPrompt(input.Price, input.Currency)
	logAIExchange("LISTING_TEXT", "prompt", userPrompt)

	result, err := s.client.callWithSettings(ctx, settings, aiChatRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		ImageURL:     imageURL,
		MaxTokens:    defaultTextMaxTokens,
		Temperature:  defaultTextTemperature,
	})
	if err != nil {
		return ListingTextResult{}, err
	}

	logAIExchange("LISTING_TEXT", "response", result.Content)

	text, err := parseListingText(result.Content)
	if err != nil {
		return ListingTextResult{}, err
	}

	return ListingTextResult{
		Text:             text,
		PromptTokens:     result.PromptTokens,
		CompletionTokens: result.CompletionTokens,
	}, nil
}

func buildListingTextPrompt(price float64, currency string) string {
	currency = strings.TrimSpace(currency)
	if currency == "" {
		currency = defaultListingCurrency
	}

	var builder strings.Builder
	builder.WriteString("售价：")
	builder.WriteString(strconv.FormatFloat(price, 'f', -1, 64))
	builder.WriteString(" ")
	builder.WriteString(currency)
	builder.WriteString("\n请根据图片中的商品写出刊登标题和描述。")
	return builder.String()
}

func parseListingText(content string) (ListingText, error) {
	raw, err := extractJSONObject(content)
	if err != nil {
		return ListingText{}, fmt.Errorf("%w: %s", ErrListingTextMalformed, strings.TrimSpace(content))
	}

	var text ListingText
	if err := json.Unmarshal([]byte(raw), &text); err != nil {
		return ListingText{}, fmt.Errorf("%w: %v", ErrListingTextMalformed, err)
	}

	text.Title = strings.TrimSpace(text.Title)
	text.Description = strings.TrimSpace(text.Description)
	text.PlatformHint = strings.TrimSpace(text.PlatformHint)

	if text.Title == "" || text.Description == "" {
		return ListingText{}, fmt.Errorf("%w: title and description are required", ErrListingTextMalformed)
	}

	return text, nil
}
