package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/snapsell/internal/db"
	"gorm.io/gorm"
)

const maxImageURLLength = 2048

// errDraftAdvanced 在提交时发现草稿阶段已被其他请求推进，仅在事务内部使用。
var errDraftAdvanced = errors.New("draft advanced concurrently")

// finalTextPolicy 剥离用户提交的最终标题与描述中的 HTML 标签。
var finalTextPolicy = bluemonday.StrictPolicy()

// DraftService 实现草稿生命周期状态机：
// created → priced → text_generated → finalized，只允许单向推进。
// 每个草稿同一时刻至多允许一个推进阶段的操作在途，外部生成器
// 对每个阶段至多被调用一次，重复请求以 Conflict 形式幂等返回。
type DraftService struct {
	db       *gorm.DB
	settings *SystemSettingService
	pricing  PricingGenerator
	text     ListingTextGenerator
	locks    sync.Map // per-draft mutex: draft ID → *sync.Mutex
}

// NewDraftService 构造 DraftService。
func NewDraftService(gdb *gorm.DB, settings *SystemSettingService, pricing PricingGenerator, text ListingTextGenerator) *DraftService {
	return &DraftService{
		db:       gdb,
		settings: settings,
		pricing:  pricing,
		text:     text,
	}
}

func (s *DraftService) lock(draftID string) *sync.Mutex {
	value, _ := s.locks.LoadOrStore(draftID, &sync.Mutex{})
	return value.(*sync.Mutex)
}

func (s *DraftService) loadOwned(draftID string, ownerID uint) (*db.Draft, error) {
	var draft db.Draft
	if err := s.db.First(&draft, "id = ?", draftID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDraftNotFound
		}
		return nil, fmt.Errorf("load draft: %w", err)
	}

	if draft.OwnerID != ownerID {
		return nil, ErrForbidden
	}

	return &draft, nil
}

// Create 校验图片引用后创建 created 阶段的草稿。只做格式校验，不回源取图。
func (s *DraftService) Create(ownerID uint, imageURL string) (*db.Draft, error) {
	trimmed := strings.TrimSpace(imageURL)
	if err := validateImageURL(trimmed); err != nil {
		return nil, err
	}

	draft := db.Draft{
		ID:       uuid.NewString(),
		OwnerID:  ownerID,
		ImageURL: trimmed,
		Phase:    db.DraftPhaseCreated,
	}

	if err := s.db.Create(&draft).Error; err != nil {
		return nil, fmt.Errorf("create draft: %w", err)
	}

	return &draft, nil
}

// Get 返回草稿当前状态，供客户端在 InvalidPhase/Conflict 之后重新同步。
func (s *DraftService) Get(ownerID uint, draftID string) (*db.Draft, error) {
	return s.loadOwned(draftID, ownerID)
}

// GeneratePricing 调用估价生成器并把草稿推进到 priced 阶段。
// 草稿已在 priced 或之后阶段时返回 Conflict，不会重复调用生成器；
// 生成器失败时草稿保持 created 阶段，调用方可安全重试。
func (s *DraftService) GeneratePricing(ctx context.Context, ownerID uint, draftID string) (PricingTiers, error) {
	mu := s.lock(draftID)
	mu.Lock()
	defer mu.Unlock()

	draft, err := s.loadOwned(draftID, ownerID)
	if err != nil {
		return PricingTiers{}, err
	}

	if draft.Phase != db.DraftPhaseCreated {
		return PricingTiers{}, conflict(draft.Phase)
	}

	settings, err := s.settings.GetSettings()
	if err != nil {
		return PricingTiers{}, fmt.Errorf("load settings: %w", err)
	}

	result, err := s.pricing.GeneratePricing(ctx, PricingInput{
		ImageURL: draft.ImageURL,
		Currency: settings.Currency,
	})
	if err != nil {
		return PricingTiers{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	// 阶段推进与结果写入必须是同一次提交，phase 条件是提交屏障。
	res := s.db.Model(&db.Draft{}).
		Where("id = ? AND phase = ?", draft.ID, db.DraftPhaseCreated).
		Updates(map[string]interface{}{
			"phase":             db.DraftPhasePriced,
			"price_fast":        result.Tiers.Fast,
			"price_recommended": result.Tiers.Recommended,
			"price_max":         result.Tiers.Max,
		})
	if res.Error != nil {
		return PricingTiers{}, fmt.Errorf("commit pricing: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		fresh, loadErr := s.loadOwned(draftID, ownerID)
		if loadErr != nil {
			return PricingTiers{}, loadErr
		}
		return PricingTiers{}, conflict(fresh.Phase)
	}

	return result.Tiers, nil
}

// GetPricing 返回已生成的三档价格，尚未估价时返回 NotReady。
func (s *DraftService) GetPricing(ownerID uint, draftID string) (PricingTiers, error) {
	draft, err := s.loadOwned(draftID, ownerID)
	if err != nil {
		return PricingTiers{}, err
	}

	if db.DraftPhaseRank(draft.Phase) < db.DraftPhaseRank(db.DraftPhasePriced) {
		return PricingTiers{}, notReady(draft.Phase)
	}

	return draftTiers(draft), nil
}

// GenerateText 持久化选定价格、调用文案生成器并把草稿推进到 text_generated 阶段。
// 对已生成文案的草稿以相同价格重放时直接返回既有文案；价格一经选定不可变更，
// 不一致的重放返回 Conflict。选定价格必须恰好等于三档之一。
func (s *DraftService) GenerateText(ctx context.Context, ownerID uint, draftID string, selectedPrice float64) (*db.Draft, error) {
	mu := s.lock(draftID)
	mu.Lock()
	defer mu.Unlock()

	draft, err := s.loadOwned(draftID, ownerID)
	if err != nil {
		return nil, err
	}

	switch draft.Phase {
	case db.DraftPhasePriced:
		// 继续生成
	case db.DraftPhaseTextGenerated:
		if draft.SelectedPrice == selectedPrice {
			return draft, nil
		}
		return nil, conflict(draft.Phase)
	default:
		return nil, invalidPhase(draft.Phase)
	}

	if !draftTiers(draft).Contains(selectedPrice) {
		return nil, fmt.Errorf("%w: selected price must be one of the suggested tiers", ErrValidation)
	}

	settings, err := s.settings.GetSettings()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	result, err := s.text.GenerateListingText(ctx, ListingTextInput{
		ImageURL: draft.ImageURL,
		Price:    selectedPrice,
		Currency: settings.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	res := s.db.Model(&db.Draft{}).
		Where("id = ? AND phase = ?", draft.ID, db.DraftPhasePriced).
		Updates(map[string]interface{}{
			"phase":           db.DraftPhaseTextGenerated,
			"selected_price":  selectedPrice,
			"generated_title": result.Text.Title,
			"generated_body":  result.Text.Description,
			"platform_hint":   result.Text.PlatformHint,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("commit listing text: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		fresh, loadErr := s.loadOwned(draftID, ownerID)
		if loadErr != nil {
			return nil, loadErr
		}
		return nil, conflict(fresh.Phase)
	}

	draft.Phase = db.DraftPhaseTextGenerated
	draft.SelectedPrice = selectedPrice
	draft.GeneratedTitle = result.Text.Title
	draft.GeneratedBody = result.Text.Description
	draft.PlatformHint = result.Text.PlatformHint
	return draft, nil
}

// Finalize 用客户端最终确认的文案原子地创建刊登并把草稿推进到 finalized。
// 草稿只读保留并记录 listing_id，重复 finalize 返回同一个刊登 ID。
func (s *DraftService) Finalize(ownerID uint, draftID, finalTitle, finalDescription string) (string, error) {
	mu := s.lock(draftID)
	mu.Lock()
	defer mu.Unlock()

	draft, err := s.loadOwned(draftID, ownerID)
	if err != nil {
		return "", err
	}

	if draft.Phase == db.DraftPhaseFinalized {
		// 终结后草稿只读，互斥量不再需要
		s.locks.Delete(draftID)
		return draft.ListingID, nil
	}
	if draft.Phase != db.DraftPhaseTextGenerated {
		return "", invalidPhase(draft.Phase)
	}

	title := strings.TrimSpace(finalTextPolicy.Sanitize(finalTitle))
	description := strings.TrimSpace(finalTextPolicy.Sanitize(finalDescription))
	if title == "" {
		return "", fmt.Errorf("%w: final title is required", ErrValidation)
	}
	if description == "" {
		return "", fmt.Errorf("%w: final description is required", ErrValidation)
	}

	settings, err := s.settings.GetSettings()
	if err != nil {
		return "", fmt.Errorf("load settings: %w", err)
	}

	listingID := uuid.NewString()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&db.Draft{}).
			Where("id = ? AND phase = ?", draft.ID, db.DraftPhaseTextGenerated).
			Updates(map[string]interface{}{
				"phase":      db.DraftPhaseFinalized,
				"listing_id": listingID,
			})
		if res.Error != nil {
			return fmt.Errorf("advance draft: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errDraftAdvanced
		}

		listing := db.Listing{
			ID:                   listingID,
			OwnerID:              draft.OwnerID,
			Title:                title,
			Description:          description,
			Price:                draft.SelectedPrice,
			Currency:             settings.Currency,
			ImageURL:             draft.ImageURL,
			ExternalPlatformHint: draft.PlatformHint,
		}
		if err := tx.Create(&listing).Error; err != nil {
			return fmt.Errorf("create listing: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errDraftAdvanced) {
			fresh, loadErr := s.loadOwned(draftID, ownerID)
			if loadErr != nil {
				return "", loadErr
			}
			if fresh.Phase == db.DraftPhaseFinalized {
				s.locks.Delete(draftID)
				return fresh.ListingID, nil
			}
			return "", conflict(fresh.Phase)
		}
		return "", fmt.Errorf("finalize draft: %w", err)
	}

	s.locks.Delete(draftID)
	return listingID, nil
}

func draftTiers(draft *db.Draft) PricingTiers {
	return PricingTiers{
		Fast:        draft.PriceFast,
		Recommended: draft.PriceRecommended,
		Max:         draft.PriceMax,
	}
}

func validateImageURL(imageURL string) error {
	if imageURL == "" {
		return fmt.Errorf("%w: image url is required", ErrValidation)
	}
	if len(imageURL) > maxImageURLLength {
		return fmt.Errorf("%w: image url too long", ErrValidation)
	}

	parsed, err := url.Parse(imageURL)
	if err != nil {
		return fmt.Errorf("%w: malformed image url", ErrValidation)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: image url must use http or https", ErrValidation)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%w: image url must include a host", ErrValidation)
	}

	return nil
}
