package router

import (
	"github.com/gin-gonic/gin"
	"github.com/snapsell/internal/handler"
)

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API) *gin.Engine {
	r := gin.Default()

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	// 注册登录无需令牌
	auth := r.Group("/auth")
	{
		auth.POST("/register", api.Register)
		auth.POST("/login", api.Login)
	}

	// 其余接口均要求 Bearer 令牌
	authorized := r.Group("")
	authorized.Use(api.AuthRequired())
	{
		drafts := authorized.Group("/drafts")
		{
			drafts.POST("", api.CreateDraft)
			drafts.GET("/:id", api.GetDraft)
			drafts.POST("/:id/pricing", api.GeneratePricing)
			drafts.GET("/:id/pricing", api.GetPricing)
			drafts.POST("/:id/generate-text", api.GenerateText)
			drafts.POST("/:id/finalize", api.FinalizeDraft)
		}

		listings := authorized.Group("/listings")
		{
			listings.GET("", api.ListListings)
			listings.GET("/:id", api.GetListing)
			listings.DELETE("/:id", api.DeleteListing)
		}
	}

	return r
}
