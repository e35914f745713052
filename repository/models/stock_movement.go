package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type MovementKind string

const (
	MovementDeduction  MovementKind = "deduction"
	MovementRestock    MovementKind = "restock"
	MovementAdjustment MovementKind = "adjustment"
)

// StockMovement records a single change of an ingredient's stock. It is written in
// the same transaction as the change itself and is never updated.
type StockMovement struct {
	ID           string          `gorm:"column:id;primaryKey;type:varchar(50)" json:"id"`
	IngredientID string          `gorm:"column:ingredient_id;type:varchar(50);not null;index" json:"ingredient_id"`
	OrderID      *string         `gorm:"column:order_id;type:varchar(50);index" json:"order_id,omitempty"`
	Kind         MovementKind    `gorm:"column:kind;type:varchar(20);not null" json:"kind"`
	Delta        decimal.Decimal `gorm:"column:delta;type:numeric(14,3);not null" json:"delta"`
	StockBefore  decimal.Decimal `gorm:"column:stock_before;type:numeric(14,3);not null" json:"stock_before"`
	StockAfter   decimal.Decimal `gorm:"column:stock_after;type:numeric(14,3);not null" json:"stock_after"`
	Reason       string          `gorm:"column:reason;type:text" json:"reason"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (StockMovement) TableName() string { return "stock_movements" }
