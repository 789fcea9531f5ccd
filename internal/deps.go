package internal

import (
	"bitwise74/accounts-api/internal/metrics"
	"bitwise74/accounts-api/internal/service"

	"gorm.io/gorm"
)

type Deps struct {
	DB       *gorm.DB
	Accounts *service.Accounts
	Metrics  *metrics.Collector // nil when metrics are disabled

	// StaticURL prefixes stylesheet links in the HTML pages
	StaticURL string
}
