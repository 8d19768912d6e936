package handler

import (
	"github.com/snapsell/internal/service"
	"gorm.io/gorm"
)

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db       *gorm.DB
	auth     *service.AuthService
	drafts   *service.DraftService
	listings *service.ListingService
	system   *service.SystemSettingService
}

// NewAPI constructs a handler set with shared services.
func NewAPI(gdb *gorm.DB, jwtSecret string) *API {
	systemService := service.NewSystemSettingService(gdb)
	pricingService := service.NewAIPricingService(systemService)
	textService := service.NewAIListingTextService(systemService)

	return newAPI(gdb, jwtSecret, systemService, pricingService, textService)
}

// NewAPIWithGenerators 注入自定义的估价与文案生成器，主要用于测试。
func NewAPIWithGenerators(gdb *gorm.DB, jwtSecret string, pricing service.PricingGenerator, text service.ListingTextGenerator) *API {
	systemService := service.NewSystemSettingService(gdb)
	return newAPI(gdb, jwtSecret, systemService, pricing, text)
}

func newAPI(gdb *gorm.DB, jwtSecret string, system *service.SystemSettingService, pricing service.PricingGenerator, text service.ListingTextGenerator) *API {
	return &API{
		db:       gdb,
		auth:     service.NewAuthService(gdb, jwtSecret),
		drafts:   service.NewDraftService(gdb, system, pricing, text),
		listings: service.NewListingService(gdb),
		system:   system,
	}
}

// DB exposes the underlying gorm instance for legacy paths.
func (a *API) DB() *gorm.DB {
	return a.db
}

// Settings 返回系统设置服务，供启动时写入默认配置。
func (a *API) Settings() *service.SystemSettingService {
	return a.system
}
