package models

import "github.com/shopspring/decimal"

// RecipeEntry is one line of a product's bill of materials: the quantity of an
// ingredient consumed by a single unit of the product
type RecipeEntry struct {
	ID           string          `gorm:"column:id;primaryKey;type:varchar(50)" json:"id"`
	ProductID    string          `gorm:"column:product_id;type:varchar(50);not null;uniqueIndex:idx_recipe_product_ingredient" json:"product_id"`
	IngredientID string          `gorm:"column:ingredient_id;type:varchar(50);not null;uniqueIndex:idx_recipe_product_ingredient;index" json:"ingredient_id"`
	Quantity     decimal.Decimal `gorm:"column:quantity;type:numeric(14,3);not null;check:chk_recipe_quantity_positive,quantity > 0" json:"quantity"`
	Unit         string          `gorm:"column:unit;type:varchar(20);not null;default:'g'" json:"unit"`
	Ingredient   *Ingredient     `gorm:"foreignKey:IngredientID;constraint:OnDelete:CASCADE" json:"ingredient,omitempty"`
}

func (RecipeEntry) TableName() string { return "product_ingredients" }
