package db

import "time"

// 草稿生命周期阶段，只允许单向推进。
const (
	// DraftPhaseCreated 表示草稿刚创建，仅包含图片引用。
	DraftPhaseCreated = "created"
	// DraftPhasePriced 表示已生成三档价格建议。
	DraftPhasePriced = "priced"
	// DraftPhaseTextGenerated 表示已按选定价格生成文案。
	DraftPhaseTextGenerated = "text_generated"
	// DraftPhaseFinalized 表示草稿已转为正式刊登，只读保留。
	DraftPhaseFinalized = "finalized"
)

// DraftPhaseRank 返回阶段的序号，用于比较阶段先后。未知阶段返回 -1。
func DraftPhaseRank(phase string) int {
	switch phase {
	case DraftPhaseCreated:
		return 0
	case DraftPhasePriced:
		return 1
	case DraftPhaseTextGenerated:
		return 2
	case DraftPhaseFinalized:
		return 3
	default:
		return -1
	}
}

// Draft 定义了刊登草稿模型。
// 价格与文案字段是否有效以 Phase 为准：Phase >= priced 时价格三档有效，
// Phase >= text_generated 时 SelectedPrice 与生成文案有效。
type Draft struct {
	ID               string `gorm:"primaryKey;size:36"`
	OwnerID          uint   `gorm:"index;not null"`
	ImageURL         string `gorm:"size:2048;not null"`
	Phase            string `gorm:"size:32;not null;index"`
	PriceFast        float64
	PriceRecommended float64
	PriceMax         float64
	SelectedPrice    float64
	GeneratedTitle   string `gorm:"size:255"`
	GeneratedBody    string `gorm:"type:text"`
	PlatformHint     string `gorm:"size:100"`
	// ListingID 在 finalize 时写入，重复 finalize 直接返回该值。
	ListingID string `gorm:"size:36"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
