package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/snapsell/internal/db"
	"github.com/snapsell/internal/service"
)

// ListListings 返回当前用户的全部刊登
func (a *API) ListListings(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "missing bearer token")
		return
	}

	listings, total, err := a.listings.ListByOwner(userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	items := make([]gin.H, 0, len(listings))
	for i := range listings {
		items = append(items, listingToPayload(&listings[i], false))
	}

	c.JSON(http.StatusOK, gin.H{"items": items, "total": total})
}

// GetListing 返回单条刊登详情，附带渲染后的描述 HTML
func (a *API) GetListing(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "missing bearer token")
		return
	}

	listing, err := a.listings.Get(userID, c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, listingToPayload(listing, true))
}

// DeleteListing 删除当前用户的刊登
func (a *API) DeleteListing(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "missing bearer token")
		return
	}

	if err := a.listings.Delete(userID, c.Param("id")); err != nil {
		handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func listingToPayload(listing *db.Listing, withRenderedDescription bool) gin.H {
	payload := gin.H{
		"id":          listing.ID,
		"title":       listing.Title,
		"description": listing.Description,
		"price":       listing.Price,
		"currency":    listing.Currency,
		"imageUrl":    listing.ImageURL,
		"createdAt":   listing.CreatedAt.Format(time.RFC3339),
	}

	if listing.ExternalPlatformHint != "" {
		payload["externalPlatformHint"] = listing.ExternalPlatformHint
	}

	if withRenderedDescription {
		payload["descriptionHtml"] = service.RenderDescriptionHTML(listing.Description)
	}

	return payload
}
