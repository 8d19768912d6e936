package db

import "time"

// Listing 定义了正式刊登模型，创建后除删除外不可变更。
type Listing struct {
	ID                   string `gorm:"primaryKey;size:36"`
	OwnerID              uint   `gorm:"index;not null"`
	Title                string `gorm:"size:255;not null"`
	Description          string `gorm:"type:text"`
	Price                float64
	Currency             string `gorm:"size:8"`
	ImageURL             string `gorm:"size:2048"`
	ExternalPlatformHint string `gorm:"size:100"`
	CreatedAt            time.Time
}
