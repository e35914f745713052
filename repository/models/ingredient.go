package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ingredient is a raw material tracked in grams (or the unit named by its recipes)
type Ingredient struct {
	ID            string          `gorm:"column:id;primaryKey;type:varchar(50)" json:"id"`
	Name          string          `gorm:"column:name;type:varchar(100);not null" json:"name"`
	Type          string          `gorm:"column:type;type:varchar(50)" json:"type"`
	StockQuantity decimal.Decimal `gorm:"column:stock_quantity;type:numeric(14,3);not null;default:0;check:chk_ingredients_stock_nonneg,stock_quantity >= 0" json:"stock_quantity"`
	PricePerUnit  decimal.Decimal `gorm:"column:price_per_unit;type:numeric(14,2);not null;default:0" json:"price_per_unit"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Ingredient) TableName() string { return "ingredients" }
