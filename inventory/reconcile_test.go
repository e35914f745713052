package inventory_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/ribon-matchalatte/backend/inventory"
	"github.com/ribon-matchalatte/backend/repository/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileDeductsAggregatedUsage(t *testing.T) {
	f := newFixture(t)
	f.matchaMenu(50, 20)
	orderID := f.order(models.OrderDelivered, map[string]int{"latte": 2, "shot": 1})

	summary, err := f.service.Reconcile(f.ctx, orderID)
	require.NoError(t, err)

	assert.True(t, summary["matcha"].Equal(dec(30)))
	assert.True(t, summary["sugar"].Equal(dec(10)))
	assert.True(t, f.stock("matcha").Equal(dec(20)))
	assert.True(t, f.stock("sugar").Equal(dec(10)))

	order, err := f.store.Order(f.ctx, orderID)
	require.NoError(t, err)
	assert.NotNil(t, order.ReconciledAt)
	assert.Equal(t, models.OrderDelivered, order.Status, "reconcile alone does not complete the order")
}

func TestReconcileInsufficientStockChangesNothing(t *testing.T) {
	f := newFixture(t)
	f.matchaMenu(25, 20)
	orderID := f.order(models.OrderDelivered, map[string]int{"latte": 2, "shot": 1})

	_, err := f.service.Reconcile(f.ctx, orderID)
	shortage, ok := inventory.AsInsufficientStock(err)
	require.True(t, ok, "got %v", err)
	require.Len(t, shortage.Shortages, 1)
	assert.Equal(t, "Matcha", shortage.Shortages[0].Name)
	assert.True(t, shortage.Shortages[0].Required.Equal(dec(30)))
	assert.True(t, shortage.Shortages[0].Available.Equal(dec(25)))

	assert.True(t, f.stock("matcha").Equal(dec(25)))
	assert.True(t, f.stock("sugar").Equal(dec(20)))

	order, err := f.store.Order(f.ctx, orderID)
	require.NoError(t, err)
	assert.Nil(t, order.ReconciledAt)
}

func TestReconcileReportsEveryShortage(t *testing.T) {
	f := newFixture(t)
	f.matchaMenu(5, 1)
	orderID := f.order(models.OrderPending, map[string]int{"latte": 1})

	_, err := f.service.Reconcile(f.ctx, orderID)
	shortage, ok := inventory.AsInsufficientStock(err)
	require.True(t, ok)
	require.Len(t, shortage.Shortages, 2)
	assert.Contains(t, err.Error(), "Matcha")
	assert.Contains(t, err.Error(), "Sugar")
}

func TestReconcileSumsDuplicateProductLines(t *testing.T) {
	f := newFixture(t)
	f.matchaMenu(100, 100)
	order := &models.Order{
		CustomerIdentifier: "0912345678",
		Status:             models.OrderPending,
		Phone:              "0912345678",
		PaymentMethod:      models.PaymentCash,
		Items: []models.OrderItem{
			{ProductID: "shot", Quantity: 1},
			{ProductID: "shot", Quantity: 2},
		},
	}
	require.NoError(t, f.store.CreateOrder(f.ctx, order))

	summary, err := f.service.Reconcile(f.ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, summary["matcha"].Equal(dec(30)))
	assert.True(t, f.stock("matcha").Equal(dec(70)))
}

func TestReconcileErrors(t *testing.T) {
	f := newFixture(t)
	f.matchaMenu(50, 20)

	_, err := f.service.Reconcile(f.ctx, "missing")
	assert.ErrorIs(t, err, inventory.ErrNotFound)

	empty := f.order(models.OrderPending, nil)
	_, err = f.service.Reconcile(f.ctx, empty)
	assert.ErrorIs(t, err, inventory.ErrEmptyOrder)

	orderID := f.order(models.OrderPending, map[string]int{"shot": 1})
	_, err = f.service.Reconcile(f.ctx, orderID)
	require.NoError(t, err)
	_, err = f.service.Reconcile(f.ctx, orderID)
	assert.ErrorIs(t, err, inventory.ErrAlreadyReconciled)
	assert.True(t, f.stock("matcha").Equal(dec(40)), "second call must not deduct again")
}

func TestReconcileAfterIngredientDeleted(t *testing.T) {
	f := newFixture(t)
	f.matchaMenu(50, 20)
	orderID := f.order(models.OrderPending, map[string]int{"latte": 1})

	require.NoError(t, f.store.DeleteIngredient(f.ctx, "matcha"))

	summary, err := f.service.Reconcile(f.ctx, orderID)
	require.NoError(t, err)
	assert.Len(t, summary, 1)
	assert.True(t, f.stock("sugar").Equal(dec(15)))
}

func TestCompleteOrder(t *testing.T) {
	f := newFixture(t)
	f.matchaMenu(50, 20)
	orderID := f.order(models.OrderDelivered, map[string]int{"latte": 2, "shot": 1})

	_, err := f.service.CompleteOrder(f.ctx, orderID)
	require.NoError(t, err)

	order, err := f.store.Order(f.ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, order.Status)
	assert.NotNil(t, order.ReconciledAt)

	_, err = f.service.CompleteOrder(f.ctx, orderID)
	assert.ErrorIs(t, err, inventory.ErrAlreadyReconciled)
	assert.True(t, f.stock("matcha").Equal(dec(20)))
}

func TestCompleteOrderInsufficientKeepsStatus(t *testing.T) {
	f := newFixture(t)
	f.matchaMenu(25, 20)
	orderID := f.order(models.OrderShipping, map[string]int{"latte": 2, "shot": 1})

	_, err := f.service.CompleteOrder(f.ctx, orderID)
	_, ok := inventory.AsInsufficientStock(err)
	require.True(t, ok)

	order, err := f.store.Order(f.ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderShipping, order.Status)
	assert.Len(t, f.alerts.Subjects(), 1, "insufficient stock on completion alerts the operator")
}

func TestCompleteOrderRejectsTerminalStatus(t *testing.T) {
	f := newFixture(t)
	f.matchaMenu(50, 20)
	orderID := f.order(models.OrderFailed, map[string]int{"shot": 1})

	_, err := f.service.CompleteOrder(f.ctx, orderID)
	assert.ErrorIs(t, err, inventory.ErrInvalidTransition)
	assert.True(t, f.stock("matcha").Equal(dec(50)))
}

func TestCriticalStockAlert(t *testing.T) {
	f := newFixture(t)
	f.matchaMenu(60, 100)
	orderID := f.order(models.OrderPending, map[string]int{"shot": 2})

	_, err := f.service.Reconcile(f.ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ingredients below critical stock"}, f.alerts.Subjects())
}

func TestConcurrentReconciliationsNeverOversell(t *testing.T) {
	f := newFixture(t)
	f.ingredient("matcha", "Matcha", 50)
	f.product("big", map[string]int64{"matcha": 30})
	orders := []string{
		f.order(models.OrderDelivered, map[string]int{"big": 1}),
		f.order(models.OrderDelivered, map[string]int{"big": 1}),
	}

	errs := make([]error, len(orders))
	var wg sync.WaitGroup
	for i, id := range orders {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = f.service.CompleteOrder(f.ctx, id)
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
	assert.True(t, f.stock("matcha").Equal(dec(20)))
}

func TestCompleteOrderAfterReconcile(t *testing.T) {
	f := newFixture(t)
	f.matchaMenu(50, 20)
	orderID := f.order(models.OrderDelivered, map[string]int{"latte": 2})

	_, err := f.service.Reconcile(f.ctx, orderID)
	require.NoError(t, err)
	require.True(t, f.stock("matcha").Equal(dec(30)))

	summary, err := f.service.CompleteOrder(f.ctx, orderID)
	require.NoError(t, err)
	assert.Empty(t, summary, "ingredients were already deducted")
	assert.True(t, f.stock("matcha").Equal(dec(30)))
	assert.True(t, f.stock("sugar").Equal(dec(10)))

	order, err := f.store.Order(f.ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, order.Status)

	_, err = f.service.CompleteOrder(f.ctx, orderID)
	assert.ErrorIs(t, err, inventory.ErrAlreadyReconciled)
}

func TestReconcileRejectsFailedOrder(t *testing.T) {
	f := newFixture(t)
	f.matchaMenu(50, 20)
	orderID := f.order(models.OrderFailed, map[string]int{"shot": 1})

	_, err := f.service.Reconcile(f.ctx, orderID)
	assert.ErrorIs(t, err, inventory.ErrInvalidTransition)
	assert.True(t, f.stock("matcha").Equal(dec(50)))
}

func TestConcurrentCompletionOfOneOrderDeductsOnce(t *testing.T) {
	f := newFixture(t)
	f.matchaMenu(500, 500)
	orderID := f.order(models.OrderDelivered, map[string]int{"latte": 3})

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.service.CompleteOrder(f.ctx, orderID)
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, inventory.ErrAlreadyReconciled) || errors.Is(err, inventory.ErrConflict), "unexpected error %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.True(t, f.stock("matcha").Equal(dec(470)))
	assert.True(t, f.stock("sugar").Equal(dec(485)))
}
