package inventory_test

import (
	"testing"

	"github.com/ribon-matchalatte/backend/inventory"
	"github.com/ribon-matchalatte/backend/repository/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateAll(t *testing.T) {
	f := newFixture(t)
	f.matchaMenu(50, 3)
	f.product("water", nil)

	changes, err := f.service.EvaluateAll(f.ctx)
	require.NoError(t, err)
	require.Len(t, changes, 3)

	byID := map[string]inventory.AvailabilityChange{}
	for _, c := range changes {
		byID[c.ProductID] = c
	}
	assert.False(t, byID["latte"].Active, "3g sugar cannot cover 5g")
	assert.False(t, byID["latte"].Changed)
	assert.True(t, byID["shot"].Active)
	assert.True(t, byID["shot"].Changed)
	assert.False(t, byID["water"].Active, "no recipe means never sellable")

	assert.False(t, f.active("latte"))
	assert.True(t, f.active("shot"))
	assert.False(t, f.active("water"))
}

func TestRecipelessProductStaysInactive(t *testing.T) {
	f := newFixture(t)
	f.product("water", nil)
	require.NoError(t, f.store.SetProductActive(f.ctx, "water", true))

	changes, err := f.service.Evaluate(f.ctx, "water")
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.True(t, changes[0].PreviousActive)
	assert.False(t, changes[0].Active)
	assert.False(t, f.active("water"))
}

func TestEvaluateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.matchaMenu(50, 20)
	counting := &countingStore{Store: f.store}
	service := inventory.NewService(counting, nil, inventory.DefaultConfig())

	_, err := service.EvaluateAll(f.ctx)
	require.NoError(t, err)
	first := counting.writes
	assert.Equal(t, 2, first)

	changes, err := service.EvaluateAll(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, first, counting.writes, "second run must not write")
	for _, c := range changes {
		assert.False(t, c.Changed)
	}
}

func TestEvaluateUnknownProduct(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Evaluate(f.ctx, "ghost")
	assert.ErrorIs(t, err, inventory.ErrNotFound)
}

func TestDeductionDeactivatesDependentProducts(t *testing.T) {
	f := newFixture(t)
	f.matchaMenu(55, 40)
	f.ingredient("milk", "Milk", 500)
	f.product("milk-tea", map[string]int64{"milk": 100})
	_, err := f.service.EvaluateAll(f.ctx)
	require.NoError(t, err)
	require.True(t, f.active("latte"))

	// 50g matcha consumed leaves 5g, below a single serving
	orderID := f.order(models.OrderDelivered, map[string]int{"latte": 4, "shot": 1})
	counting := &countingStore{Store: f.store}
	service := inventory.NewService(counting, nil, inventory.DefaultConfig())
	_, err = service.CompleteOrder(f.ctx, orderID)
	require.NoError(t, err)

	assert.False(t, f.active("latte"))
	assert.False(t, f.active("shot"))
	assert.True(t, f.active("milk-tea"))
	assert.Equal(t, 2, counting.writes, "only products using the deducted ingredients are touched")
}

func TestRestockReactivatesProduct(t *testing.T) {
	f := newFixture(t)
	f.matchaMenu(5, 20)
	_, err := f.service.EvaluateAll(f.ctx)
	require.NoError(t, err)
	require.False(t, f.active("shot"))

	stock, err := f.service.Restock(f.ctx, "matcha", dec(5))
	require.NoError(t, err)
	assert.True(t, stock.Equal(dec(10)))
	assert.True(t, f.active("shot"))
	assert.True(t, f.active("latte"))
}
