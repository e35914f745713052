package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category groups products on the menu (tea, coffee, ...)
type Category struct {
	ID        string    `gorm:"column:id;primaryKey;type:varchar(50)" json:"id"`
	Name      string    `gorm:"column:name;type:varchar(100);not null;uniqueIndex" json:"name"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Category) TableName() string { return "categories" }

// Product is a sellable drink. IsActive is derived from ingredient stock and is
// only written by the availability evaluator.
type Product struct {
	ID            string          `gorm:"column:id;primaryKey;type:varchar(50)" json:"id"`
	Name          string          `gorm:"column:name;type:varchar(150);not null" json:"name"`
	Description   string          `gorm:"column:description;type:text" json:"description"`
	Price         decimal.Decimal `gorm:"column:price;type:numeric(14,2);not null" json:"price"`
	ImageURL      string          `gorm:"column:image_url;type:text" json:"image_url"`
	StockQuantity int             `gorm:"column:stock_quantity;not null;default:0" json:"stock_quantity"`
	CategoryID    *string         `gorm:"column:category_id;type:varchar(50);index" json:"category_id,omitempty"`
	Category      *Category       `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	IsActive      bool            `gorm:"column:is_active;not null;default:false" json:"is_active"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`

	// Relationships
	Recipe []RecipeEntry `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" json:"recipe,omitempty"`
}

func (Product) TableName() string { return "products" }
