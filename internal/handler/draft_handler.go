package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/snapsell/internal/db"
)

type createDraftPayload struct {
	ImageURL string `json:"imageUrl"`
}

type generateTextPayload struct {
	SelectedPrice float64 `json:"selectedPrice"`
}

type finalizeDraftPayload struct {
	FinalTitle       string `json:"finalTitle"`
	FinalDescription string `json:"finalDescription"`
}

// CreateDraft 校验图片引用并创建新的刊登草稿
func (a *API) CreateDraft(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "missing bearer token")
		return
	}

	var payload createDraftPayload
	if !bindJSON(c, &payload, "invalid draft payload") {
		return
	}

	draft, err := a.drafts.Create(userID, payload.ImageURL)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"draftId": draft.ID})
}

// GetDraft 返回草稿当前状态，供客户端重新同步
func (a *API) GetDraft(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "missing bearer token")
		return
	}

	draft, err := a.drafts.Get(userID, c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, draftToPayload(draft))
}

// GeneratePricing 触发估价并把草稿推进到 priced 阶段
func (a *API) GeneratePricing(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "missing bearer token")
		return
	}

	tiers, err := a.drafts.GeneratePricing(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"draftId": c.Param("id"),
		"status":  db.DraftPhasePriced,
		"pricing": gin.H{
			"fast":        tiers.Fast,
			"recommended": tiers.Recommended,
			"max":         tiers.Max,
		},
	})
}

// GetPricing 返回已生成的三档价格建议
func (a *API) GetPricing(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "missing bearer token")
		return
	}

	tiers, err := a.drafts.GetPricing(userID, c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"fast":        tiers.Fast,
		"recommended": tiers.Recommended,
		"max":         tiers.Max,
	})
}

// GenerateText 保存选定价格并生成刊登文案
func (a *API) GenerateText(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "missing bearer token")
		return
	}

	var payload generateTextPayload
	if !bindJSON(c, &payload, "invalid generate-text payload") {
		return
	}

	draft, err := a.drafts.GenerateText(c.Request.Context(), userID, c.Param("id"), payload.SelectedPrice)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"draftId": draft.ID,
		"status":  draft.Phase,
		"generatedText": gin.H{
			"title":       draft.GeneratedTitle,
			"description": draft.GeneratedBody,
		},
	})
}

// FinalizeDraft 用客户端确认的文案创建正式刊登
func (a *API) FinalizeDraft(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "missing bearer token")
		return
	}

	var payload finalizeDraftPayload
	if !bindJSON(c, &payload, "invalid finalize payload") {
		return
	}

	listingID, err := a.drafts.Finalize(userID, c.Param("id"), payload.FinalTitle, payload.FinalDescription)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"listingId": listingID})
}

func draftToPayload(draft *db.Draft) gin.H {
	payload := gin.H{
		"draftId":   draft.ID,
		"status":    draft.Phase,
		"imageUrl":  draft.ImageURL,
		"createdAt": draft.CreatedAt.Format(time.RFC3339),
		"updatedAt": draft.UpdatedAt.Format(time.RFC3339),
	}

	if db.DraftPhaseRank(draft.Phase) >= db.DraftPhaseRank(db.DraftPhasePriced) {
		payload["pricing"] = gin.H{
			"fast":        draft.PriceFast,
			"recommended": draft.PriceRecommended,
			"max":         draft.PriceMax,
		}
	}

	if db.DraftPhaseRank(draft.Phase) >= db.DraftPhaseRank(db.DraftPhaseTextGenerated) {
		payload["selectedPrice"] = draft.SelectedPrice
		payload["generatedText"] = gin.H{
			"title":       draft.GeneratedTitle,
			"description": draft.GeneratedBody,
		}
		if draft.PlatformHint != "" {
			payload["platformHint"] = draft.PlatformHint
		}
	}

	if draft.Phase == db.DraftPhaseFinalized {
		payload["listingId"] = draft.ListingID
	}

	return payload
}
