package shop_test

import (
	"context"
	"testing"

	"github.com/ribon-matchalatte/backend/inventory"
	"github.com/ribon-matchalatte/backend/repository/kvstore"
	"github.com/ribon-matchalatte/backend/repository/models"
	"github.com/ribon-matchalatte/backend/shop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func newShop(t *testing.T) (*shop.Service, *kvstore.Store) {
	t.Helper()
	s, _, store := newShopWithInventory(t)
	return s, store
}

func newShopWithInventory(t *testing.T) (*shop.Service, *inventory.Service, *kvstore.Store) {
	t.Helper()
	store, err := kvstore.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	inv := inventory.NewService(store, nil, inventory.DefaultConfig())
	return shop.NewService(store, inv, nil, shop.DefaultConfig()), inv, store
}

// seedMenu creates a sellable latte (10g matcha) and returns its ID
func seedMenu(t *testing.T, s *shop.Service, matcha int64) (productID, ingredientID string) {
	t.Helper()
	ctx := context.Background()
	stock := dec(matcha)
	ingredient, err := s.CreateIngredient(ctx, shop.IngredientInput{Name: "Matcha", StockQuantity: &stock})
	require.NoError(t, err)
	product, err := s.CreateProduct(ctx, shop.ProductInput{Name: "Matcha Latte", Price: dec(55000)})
	require.NoError(t, err)
	assert.False(t, product.IsActive, "no recipe yet")
	_, err = s.SetRecipeEntry(ctx, product.ID, shop.RecipeEntryInput{IngredientID: ingredient.ID, Quantity: dec(10)})
	require.NoError(t, err)
	return product.ID, ingredient.ID
}

func checkout(productID string, quantity int) shop.CheckoutRequest {
	return shop.CheckoutRequest{
		Items:         []shop.CheckoutItem{{ProductID: productID, Quantity: quantity}},
		Address:       "12 Nguyen Hue, District 1",
		Phone:         "091 234 5678",
		PaymentMethod: models.PaymentCash,
	}
}

func TestValidPhone(t *testing.T) {
	tests := []struct {
		phone string
		want  bool
	}{
		{"0912345678", true},
		{"091-234-5678", true},
		{"84912345678", true},
		{"+84 38 765 4321", true},
		{"0212345678", false},
		{"091234567", false},
		{"09123456789", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.phone, func(t *testing.T) {
			assert.Equal(t, tt.want, shop.ValidPhone(tt.phone))
		})
	}
}

func TestCheckout(t *testing.T) {
	ctx := context.Background()
	s, _ := newShop(t)
	productID, _ := seedMenu(t, s, 100)

	order, err := s.Checkout(ctx, checkout(productID, 3))
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, order.Status)
	assert.Equal(t, "0912345678", order.Phone)
	assert.Equal(t, "0912345678", order.CustomerIdentifier)
	assert.True(t, order.TotalPrice.Equal(dec(165000)))
	require.Len(t, order.Items, 1)
	assert.True(t, order.Items[0].Price.Equal(dec(55000)))

	tracked, err := s.TrackOrders(ctx, "0912 345 678")
	require.NoError(t, err)
	require.Len(t, tracked, 1)
	assert.Equal(t, order.ID, tracked[0].ID)
}

func TestCheckoutRejects(t *testing.T) {
	ctx := context.Background()
	s, _ := newShop(t)
	productID, _ := seedMenu(t, s, 100)
	inactive, err := s.CreateProduct(ctx, shop.ProductInput{Name: "Seasonal", Price: dec(1)})
	require.NoError(t, err)

	bad := checkout(productID, 1)
	bad.Phone = "12345"
	_, err = s.Checkout(ctx, bad)
	assert.True(t, shop.IsValidation(err))

	bad = checkout(productID, 0)
	_, err = s.Checkout(ctx, bad)
	assert.True(t, shop.IsValidation(err))

	bad = checkout(productID, 1)
	bad.PaymentMethod = "Card"
	_, err = s.Checkout(ctx, bad)
	assert.True(t, shop.IsValidation(err))

	_, err = s.Checkout(ctx, checkout(inactive.ID, 1))
	assert.ErrorIs(t, err, shop.ErrProductUnavailable)

	_, err = s.Checkout(ctx, checkout("ghost", 1))
	assert.ErrorIs(t, err, inventory.ErrNotFound)
}

func TestUpdateStatusCompletesThroughInventory(t *testing.T) {
	ctx := context.Background()
	s, store := newShop(t)
	productID, ingredientID := seedMenu(t, s, 100)
	order, err := s.Checkout(ctx, checkout(productID, 3))
	require.NoError(t, err)

	for _, status := range []models.OrderStatus{models.OrderPreparing, models.OrderShipping, models.OrderDelivered} {
		updated, err := s.UpdateStatus(ctx, order.ID, status)
		require.NoError(t, err)
		assert.Equal(t, status, updated.Status)
	}
	ingredients, err := store.Ingredients(ctx, []string{ingredientID})
	require.NoError(t, err)
	assert.True(t, ingredients[0].StockQuantity.Equal(dec(100)), "no deduction before completion")

	completed, err := s.UpdateStatus(ctx, order.ID, models.OrderCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, completed.Status)
	ingredients, err = store.Ingredients(ctx, []string{ingredientID})
	require.NoError(t, err)
	assert.True(t, ingredients[0].StockQuantity.Equal(dec(70)))

	_, err = s.UpdateStatus(ctx, order.ID, models.OrderFailed)
	assert.ErrorIs(t, err, inventory.ErrInvalidTransition)

	_, err = s.UpdateStatus(ctx, order.ID, "Lost")
	assert.True(t, shop.IsValidation(err))
}

func TestUpdateStatusInsufficientStockBlocksCompletion(t *testing.T) {
	ctx := context.Background()
	s, _ := newShop(t)
	productID, ingredientID := seedMenu(t, s, 30)
	order, err := s.Checkout(ctx, checkout(productID, 3))
	require.NoError(t, err)

	// another sale drains the stock before this order is completed
	_, err = s.UpdateIngredient(ctx, ingredientID, shop.IngredientInput{Name: "Matcha", StockQuantity: ptr(dec(20))})
	require.NoError(t, err)

	_, err = s.UpdateStatus(ctx, order.ID, models.OrderCompleted)
	_, insufficient := inventory.AsInsufficientStock(err)
	require.True(t, insufficient, "got %v", err)

	current, err := s.Order(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, current.Status)
}

func TestReconciledOrderCompletesWithoutSecondDeduction(t *testing.T) {
	ctx := context.Background()
	s, inv, store := newShopWithInventory(t)
	productID, ingredientID := seedMenu(t, s, 100)
	order, err := s.Checkout(ctx, checkout(productID, 3))
	require.NoError(t, err)
	_, err = s.UpdateStatus(ctx, order.ID, models.OrderDelivered)
	require.NoError(t, err)

	_, err = inv.Reconcile(ctx, order.ID)
	require.NoError(t, err)
	stats, err := s.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.AwaitingClose)

	_, err = s.UpdateStatus(ctx, order.ID, models.OrderFailed)
	assert.ErrorIs(t, err, inventory.ErrInvalidTransition, "deducted stock would be lost")

	completed, err := s.UpdateStatus(ctx, order.ID, models.OrderCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, completed.Status)

	ingredients, err := store.Ingredients(ctx, []string{ingredientID})
	require.NoError(t, err)
	assert.True(t, ingredients[0].StockQuantity.Equal(dec(70)))
	movements, err := s.Movements(ctx, ingredientID, 10)
	require.NoError(t, err)
	var deductions int
	for _, m := range movements {
		if m.Kind == models.MovementDeduction {
			deductions++
		}
	}
	assert.Equal(t, 1, deductions)

	stats, err = s.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.AwaitingClose)
}

func TestIngredientEditsReEvaluateProducts(t *testing.T) {
	ctx := context.Background()
	s, _ := newShop(t)
	productID, ingredientID := seedMenu(t, s, 100)

	product, err := s.Product(ctx, productID)
	require.NoError(t, err)
	require.True(t, product.IsActive)

	view, err := s.UpdateIngredient(ctx, ingredientID, shop.IngredientInput{Name: "Matcha", StockQuantity: ptr(dec(5))})
	require.NoError(t, err)
	assert.Equal(t, shop.LevelCritical, view.Level)
	product, err = s.Product(ctx, productID)
	require.NoError(t, err)
	assert.False(t, product.IsActive)

	view, err = s.Restock(ctx, ingredientID, dec(70))
	require.NoError(t, err)
	assert.Equal(t, shop.LevelLow, view.Level)
	product, err = s.Product(ctx, productID)
	require.NoError(t, err)
	assert.True(t, product.IsActive)

	movements, err := s.Movements(ctx, ingredientID, 2)
	require.NoError(t, err)
	require.Len(t, movements, 2)
	assert.Equal(t, models.MovementRestock, movements[0].Kind)

	require.NoError(t, s.DeleteIngredient(ctx, ingredientID))
	product, err = s.Product(ctx, productID)
	require.NoError(t, err)
	assert.False(t, product.IsActive, "recipe is empty once its only ingredient is gone")
	assert.Empty(t, product.Recipe)
}

func TestRecipeEditsReEvaluateProduct(t *testing.T) {
	ctx := context.Background()
	s, _ := newShop(t)
	productID, ingredientID := seedMenu(t, s, 100)

	_, err := s.SetRecipeEntry(ctx, productID, shop.RecipeEntryInput{IngredientID: ingredientID, Quantity: dec(150)})
	require.NoError(t, err)
	product, err := s.Product(ctx, productID)
	require.NoError(t, err)
	assert.False(t, product.IsActive)

	_, err = s.SetRecipeEntry(ctx, productID, shop.RecipeEntryInput{IngredientID: ingredientID, Quantity: dec(0)})
	assert.True(t, shop.IsValidation(err))

	require.NoError(t, s.RemoveRecipeEntry(ctx, productID, ingredientID))
	recipe, err := s.Recipe(ctx, productID)
	require.NoError(t, err)
	assert.Empty(t, recipe)
}

func TestProductUpdateCannotSetActive(t *testing.T) {
	ctx := context.Background()
	s, _ := newShop(t)
	product, err := s.CreateProduct(ctx, shop.ProductInput{Name: "Water", Price: dec(10000)})
	require.NoError(t, err)

	updated, err := s.UpdateProduct(ctx, product.ID, shop.ProductInput{Name: "Still Water", Price: dec(12000)})
	require.NoError(t, err)
	assert.Equal(t, "Still Water", updated.Name)
	assert.False(t, updated.IsActive)

	_, err = s.UpdateProduct(ctx, "ghost", shop.ProductInput{Name: "x"})
	assert.ErrorIs(t, err, inventory.ErrNotFound)
	_, err = s.CreateProduct(ctx, shop.ProductInput{Name: " ", Price: dec(1)})
	assert.True(t, shop.IsValidation(err))
}

func TestDashboard(t *testing.T) {
	ctx := context.Background()
	s, _ := newShop(t)
	productID, _ := seedMenu(t, s, 100)
	_, err := s.CreateIngredient(ctx, shop.IngredientInput{Name: "Oat Milk", StockQuantity: ptr(dec(60))})
	require.NoError(t, err)

	completed, err := s.Checkout(ctx, checkout(productID, 2))
	require.NoError(t, err)
	_, err = s.UpdateStatus(ctx, completed.ID, models.OrderCompleted)
	require.NoError(t, err)
	failed, err := s.Checkout(ctx, checkout(productID, 5))
	require.NoError(t, err)
	_, err = s.UpdateStatus(ctx, failed.ID, models.OrderFailed)
	require.NoError(t, err)
	_, err = s.Checkout(ctx, checkout(productID, 1))
	require.NoError(t, err)

	stats, err := s.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Products)
	assert.Equal(t, 1, stats.ActiveProducts)
	assert.Equal(t, 2, stats.Ingredients)
	assert.Equal(t, 2, stats.LowStock, "matcha at 80 and oat milk at 60")
	assert.Equal(t, 0, stats.CriticalStock)
	assert.Equal(t, 3, stats.Orders)
	assert.Equal(t, 3, stats.CupsSold)
	assert.True(t, stats.Revenue.Equal(dec(165000)))
	assert.Equal(t, 1, stats.OrdersByStatus[models.OrderFailed])
	assert.Equal(t, 0, stats.AwaitingClose)
}

func TestCategories(t *testing.T) {
	ctx := context.Background()
	s, _ := newShop(t)
	category, err := s.CreateCategory(ctx, "Matcha")
	require.NoError(t, err)
	_, err = s.CreateCategory(ctx, "matcha")
	assert.ErrorIs(t, err, inventory.ErrDuplicate)

	product, err := s.CreateProduct(ctx, shop.ProductInput{Name: "Latte", Price: dec(1), CategoryID: &category.ID})
	require.NoError(t, err)
	require.NotNil(t, product.Category)
	assert.Equal(t, "Matcha", product.Category.Name)

	categories, err := s.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, categories, 1)
}

func ptr[T any](v T) *T { return &v }
