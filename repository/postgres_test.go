package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/ribon-matchalatte/backend/inventory"
	"github.com/ribon-matchalatte/backend/repository/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openPostgres connects to RIBON_TEST_POSTGRES_DSN, skipping when it is unset
func openPostgres(t *testing.T) *Repository {
	t.Helper()
	dsn := os.Getenv("RIBON_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("RIBON_TEST_POSTGRES_DSN not set")
	}
	r := NewRepository(nil)
	require.NoError(t, r.ConnectDB(dsn, 1))
	require.NoError(t, r.Migrate())
	t.Cleanup(func() { r.Close() })
	return r
}

type pgFixture struct {
	t          *testing.T
	ctx        context.Context
	repo       *Repository
	ingredient string
	product    string
}

func newPGFixture(t *testing.T, stock int64) *pgFixture {
	f := &pgFixture{t: t, ctx: context.Background(), repo: openPostgres(t)}
	ingredient := &models.Ingredient{Name: "Matcha " + uuid.NewString()[:8], StockQuantity: decimal.NewFromInt(stock)}
	require.NoError(t, f.repo.CreateIngredient(f.ctx, ingredient))
	product := &models.Product{Name: "Latte", Price: decimal.NewFromInt(45000)}
	require.NoError(t, f.repo.CreateProduct(f.ctx, product))
	require.NoError(t, f.repo.UpsertRecipeEntry(f.ctx, &models.RecipeEntry{
		ProductID:    product.ID,
		IngredientID: ingredient.ID,
		Quantity:     decimal.NewFromInt(30),
	}))
	f.ingredient, f.product = ingredient.ID, product.ID
	return f
}

func (f *pgFixture) order() string {
	f.t.Helper()
	order := &models.Order{
		CustomerIdentifier: "0912345678",
		Status:             models.OrderDelivered,
		Phone:              "0912345678",
		Address:            "1 Le Loi, District 1",
		PaymentMethod:      models.PaymentCash,
		TotalPrice:         decimal.NewFromInt(45000),
		Items:              []models.OrderItem{{ProductID: f.product, Quantity: 1, Price: decimal.NewFromInt(45000)}},
	}
	require.NoError(f.t, f.repo.CreateOrder(f.ctx, order))
	return order.ID
}

func (f *pgFixture) stock() decimal.Decimal {
	f.t.Helper()
	ingredients, err := f.repo.Ingredients(f.ctx, []string{f.ingredient})
	require.NoError(f.t, err)
	require.Len(f.t, ingredients, 1)
	return ingredients[0].StockQuantity
}

func TestPostgresConcurrentCompletionsKeepFloor(t *testing.T) {
	f := newPGFixture(t, 50)
	service := inventory.NewService(f.repo, nil, inventory.DefaultConfig())
	orders := []string{f.order(), f.order(), f.order()}

	errs := make([]error, len(orders))
	var wg sync.WaitGroup
	for i, id := range orders {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = service.CompleteOrder(f.ctx, id)
		}(i, id)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		_, insufficient := inventory.AsInsufficientStock(err)
		assert.True(t, insufficient || errors.Is(err, inventory.ErrConflict), "unexpected error %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.True(t, f.stock().Equal(decimal.NewFromInt(20)))
}

func TestPostgresReconcileThenComplete(t *testing.T) {
	f := newPGFixture(t, 100)
	service := inventory.NewService(f.repo, nil, inventory.DefaultConfig())
	orderID := f.order()

	_, err := service.Reconcile(f.ctx, orderID)
	require.NoError(t, err)
	_, err = service.Reconcile(f.ctx, orderID)
	assert.ErrorIs(t, err, inventory.ErrAlreadyReconciled)

	err = f.repo.UpdateOrderStatus(f.ctx, orderID, models.OrderDelivered, models.OrderFailed)
	assert.ErrorIs(t, err, inventory.ErrInvalidTransition)

	_, err = service.CompleteOrder(f.ctx, orderID)
	require.NoError(t, err)
	order, err := f.repo.Order(f.ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, order.Status)
	assert.True(t, f.stock().Equal(decimal.NewFromInt(70)))
}
