package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/snapsell/internal/service"
)

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, message)
		return false
	}
	return true
}

// handleServiceError 把业务错误分类映射为 HTTP 状态码。
// 阶段类错误（InvalidPhase/NotReady/Conflict）附带草稿当前阶段，
// 客户端据此重新同步；Conflict 额外标记 already_done，应视为成功。
func handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		respondError(c, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, service.ErrForbidden):
		respondError(c, http.StatusForbidden, "you do not own this resource")
	case errors.Is(err, service.ErrDraftNotFound):
		respondError(c, http.StatusNotFound, "draft not found")
	case errors.Is(err, service.ErrListingNotFound):
		respondError(c, http.StatusNotFound, "listing not found")
	case errors.Is(err, service.ErrEmailTaken):
		respondError(c, http.StatusConflict, "email already registered")
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":  "phase already advanced",
			"status": "already_done",
			"phase":  service.CurrentPhase(err),
		})
	case errors.Is(err, service.ErrInvalidPhase):
		c.JSON(http.StatusConflict, gin.H{
			"error": "operation not allowed in current phase",
			"phase": service.CurrentPhase(err),
		})
	case errors.Is(err, service.ErrNotReady):
		c.JSON(http.StatusConflict, gin.H{
			"error": "requested data not generated yet",
			"phase": service.CurrentPhase(err),
		})
	case errors.Is(err, service.ErrUpstream):
		respondError(c, http.StatusBadGateway, "generation service failed, please retry")
	default:
		respondError(c, http.StatusInternalServerError, "internal error")
	}
}
