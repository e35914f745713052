package inventory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/ribon-matchalatte/backend/inventory"
	"github.com/ribon-matchalatte/backend/repository/kvstore"
	"github.com/ribon-matchalatte/backend/repository/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   *kvstore.Store
	service *inventory.Service
	alerts  *recordingAlerter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := kvstore.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &fixture{
		t:      t,
		ctx:    context.Background(),
		store:  store,
		alerts: &recordingAlerter{},
	}
	f.service = inventory.NewService(store, nil, inventory.DefaultConfig())
	f.service.SetAlerter(f.alerts)
	return f
}

func (f *fixture) ingredient(id, name string, stock int64) {
	f.t.Helper()
	require.NoError(f.t, f.store.CreateIngredient(f.ctx, &models.Ingredient{
		ID:            id,
		Name:          name,
		StockQuantity: dec(stock),
	}))
}

// product creates a product whose recipe maps ingredient ID to grams per unit
func (f *fixture) product(id string, recipe map[string]int64) {
	f.t.Helper()
	require.NoError(f.t, f.store.CreateProduct(f.ctx, &models.Product{ID: id, Name: id, Price: dec(45000)}))
	for ingredientID, quantity := range recipe {
		require.NoError(f.t, f.store.UpsertRecipeEntry(f.ctx, &models.RecipeEntry{
			ProductID:    id,
			IngredientID: ingredientID,
			Quantity:     dec(quantity),
		}))
	}
}

func (f *fixture) order(status models.OrderStatus, items map[string]int) string {
	f.t.Helper()
	order := &models.Order{
		CustomerIdentifier: "0912345678",
		Status:             status,
		Phone:              "0912345678",
		Address:            "1 Le Loi, District 1",
		PaymentMethod:      models.PaymentCash,
	}
	for productID, quantity := range items {
		order.Items = append(order.Items, models.OrderItem{ProductID: productID, Quantity: quantity, Price: dec(45000)})
	}
	require.NoError(f.t, f.store.CreateOrder(f.ctx, order))
	return order.ID
}

func (f *fixture) stock(id string) decimal.Decimal {
	f.t.Helper()
	ingredients, err := f.store.Ingredients(f.ctx, []string{id})
	require.NoError(f.t, err)
	require.Len(f.t, ingredients, 1)
	return ingredients[0].StockQuantity
}

func (f *fixture) active(id string) bool {
	f.t.Helper()
	products, err := f.store.ProductsByID(f.ctx, []string{id})
	require.NoError(f.t, err)
	require.Len(f.t, products, 1)
	return products[0].IsActive
}

// matchaMenu seeds the two-product menu: latte uses 10g matcha and 5g sugar,
// shot uses 10g matcha.
func (f *fixture) matchaMenu(matcha, sugar int64) {
	f.ingredient("matcha", "Matcha", matcha)
	f.ingredient("sugar", "Sugar", sugar)
	f.product("latte", map[string]int64{"matcha": 10, "sugar": 5})
	f.product("shot", map[string]int64{"matcha": 10})
}

type recordingAlerter struct {
	mu       sync.Mutex
	subjects []string
}

func (a *recordingAlerter) Alert(_ context.Context, subject, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subjects = append(a.subjects, subject)
	return nil
}

func (a *recordingAlerter) Subjects() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.subjects...)
}

// countingStore counts availability writes
type countingStore struct {
	inventory.Store
	mu     sync.Mutex
	writes int
}

func (c *countingStore) SetProductActive(ctx context.Context, id string, active bool) error {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
	return c.Store.SetProductActive(ctx, id, active)
}
