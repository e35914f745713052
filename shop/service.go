// Package shop implements the storefront around the reconciliation core: checkout,
// order tracking and administration, the catalog, ingredients and the dashboard.
package shop

import (
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ribon-matchalatte/backend/inventory"
	"github.com/shopspring/decimal"
)

// Stock levels shown next to each ingredient
const (
	LevelOK       = "ok"
	LevelLow      = "low"
	LevelCritical = "critical"
)

type Config struct {
	LowStockThreshold      decimal.Decimal
	CriticalStockThreshold decimal.Decimal
}

func DefaultConfig() Config {
	return Config{
		LowStockThreshold:      decimal.NewFromInt(100),
		CriticalStockThreshold: decimal.NewFromInt(50),
	}
}

// Service routes every stock-affecting operation through the inventory service so
// there is a single implementation of reconciliation and availability.
type Service struct {
	store     Store
	inventory *inventory.Service
	logger    cmtlog.Logger
	config    Config
}

func NewService(store Store, inv *inventory.Service, logger cmtlog.Logger, config Config) *Service {
	if logger == nil {
		logger = cmtlog.NewNopLogger()
	}
	return &Service{
		store:     store,
		inventory: inv,
		logger:    logger.With("module", "shop"),
		config:    config,
	}
}

// Level classifies a stock quantity as ok, low or critical
func (s *Service) Level(stock decimal.Decimal) string {
	switch {
	case stock.LessThan(s.config.CriticalStockThreshold):
		return LevelCritical
	case stock.LessThan(s.config.LowStockThreshold):
		return LevelLow
	default:
		return LevelOK
	}
}
