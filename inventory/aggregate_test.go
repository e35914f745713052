package inventory

import (
	"testing"

	"github.com/ribon-matchalatte/backend/repository/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAggregateUsage(t *testing.T) {
	g := func(v int64) decimal.Decimal { return decimal.NewFromInt(v) }
	entries := []models.RecipeEntry{
		{ProductID: "latte", IngredientID: "matcha", Quantity: g(10)},
		{ProductID: "latte", IngredientID: "sugar", Quantity: g(5)},
		{ProductID: "shot", IngredientID: "matcha", Quantity: g(10)},
		{ProductID: "unordered", IngredientID: "milk", Quantity: g(200)},
	}
	items := []models.OrderItem{
		{ProductID: "latte", Quantity: 2},
		{ProductID: "shot", Quantity: 1},
		{ProductID: "no-recipe", Quantity: 3},
	}

	usage := aggregateUsage(items, entries)

	assert.Len(t, usage, 2)
	assert.True(t, usage["matcha"].Equal(g(30)))
	assert.True(t, usage["sugar"].Equal(g(10)))
}

func TestAggregateUsageFractional(t *testing.T) {
	entries := []models.RecipeEntry{
		{ProductID: "latte", IngredientID: "matcha", Quantity: decimal.RequireFromString("2.5")},
	}
	usage := aggregateUsage([]models.OrderItem{{ProductID: "latte", Quantity: 3}}, entries)
	assert.Equal(t, "7.5", usage["matcha"].String())
}

func TestProductIDsOfDeduplicates(t *testing.T) {
	ids := productIDsOf([]models.OrderItem{{ProductID: "a"}, {ProductID: "b"}, {ProductID: "a"}})
	assert.Equal(t, []string{"a", "b"}, ids)
}
