package service

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/microcosm-cc/bluemonday"
	"github.com/snapsell/internal/db"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"gorm.io/gorm"
)

var (
	markdownEngine = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Linkify),
		goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
	)
	descriptionSanitizer = bluemonday.UGCPolicy()
)

// ListingService 负责已成交刊登的查询与删除，刊登创建只经由草稿 finalize。
type ListingService struct {
	db *gorm.DB
}

// NewListingService 构造 ListingService。
func NewListingService(gdb *gorm.DB) *ListingService {
	return &ListingService{db: gdb}
}

// ListByOwner 返回指定用户的刊登，按创建时间倒序。
func (s *ListingService) ListByOwner(ownerID uint) ([]db.Listing, int64, error) {
	var listings []db.Listing
	if err := s.db.Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&listings).Error; err != nil {
		return nil, 0, fmt.Errorf("list listings: %w", err)
	}

	return listings, int64(len(listings)), nil
}

// Get 返回属于调用者的单条刊登。
func (s *ListingService) Get(ownerID uint, listingID string) (*db.Listing, error) {
	var listing db.Listing
	if err := s.db.First(&listing, "id = ?", listingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, fmt.Errorf("get listing: %w", err)
	}

	if listing.OwnerID != ownerID {
		return nil, ErrForbidden
	}

	return &listing, nil
}

// Delete 删除属于调用者的刊登。
func (s *ListingService) Delete(ownerID uint, listingID string) error {
	listing, err := s.Get(ownerID, listingID)
	if err != nil {
		return err
	}

	if err := s.db.Delete(&db.Listing{}, "id = ?", listing.ID).Error; err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}

	return nil
}

// RenderDescriptionHTML 把刊登描述的 Markdown 渲染为净化后的 HTML，
// 供客户端的预览/分享视图直接展示。渲染失败时返回空串。
func RenderDescriptionHTML(description string) string {
	var buf bytes.Buffer
	if err := markdownEngine.Convert([]byte(description), &buf); err != nil {
		return ""
	}
	return string(descriptionSanitizer.SanitizeBytes(buf.Bytes()))
}
