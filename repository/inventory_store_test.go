package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ribon-matchalatte/backend/inventory"
	"github.com/ribon-matchalatte/backend/repository/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), gormConfig())
	require.NoError(t, err)
	r := NewRepository(nil)
	r.db = db
	return r, mock
}

func ingredientRow(id string, stock int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "stock_quantity"}).
		AddRow(id, "Matcha", decimal.NewFromInt(stock).String())
}

func TestApplyAdjustmentsFloorRejection(t *testing.T) {
	r, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE "ingredients" SET .*stock_quantity \+ .*>= 0.*RETURNING`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "stock_quantity"}))
	mock.ExpectQuery(`SELECT \* FROM "ingredients"`).
		WillReturnRows(ingredientRow("matcha", 50))
	mock.ExpectRollback()

	movements, err := r.ApplyAdjustments(context.Background(), inventory.Batch{
		Kind:        models.MovementDeduction,
		Adjustments: []inventory.Adjustment{{IngredientID: "matcha", Delta: decimal.NewFromInt(-60)}},
	})
	assert.Nil(t, movements)
	shortage, ok := inventory.AsInsufficientStock(err)
	require.True(t, ok, "got %v", err)
	require.Len(t, shortage.Shortages, 1)
	assert.Equal(t, "matcha", shortage.Shortages[0].IngredientID)
	assert.True(t, shortage.Shortages[0].Required.Equal(decimal.NewFromInt(60)))
	assert.True(t, shortage.Shortages[0].Available.Equal(decimal.NewFromInt(50)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyAdjustmentsExpectMismatchIsConflict(t *testing.T) {
	r, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE "ingredients" SET .*stock_quantity = .*RETURNING`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "stock_quantity"}))
	mock.ExpectQuery(`SELECT \* FROM "ingredients"`).
		WillReturnRows(ingredientRow("matcha", 50))
	mock.ExpectRollback()

	expect := decimal.NewFromInt(40)
	_, err := r.ApplyAdjustments(context.Background(), inventory.Batch{
		Kind:        models.MovementAdjustment,
		Adjustments: []inventory.Adjustment{{IngredientID: "matcha", Delta: decimal.NewFromInt(10), Expect: &expect}},
	})
	assert.ErrorIs(t, err, inventory.ErrConflict)
	_, insufficient := inventory.AsInsufficientStock(err)
	assert.False(t, insufficient)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyAdjustmentsSecondReconciliation(t *testing.T) {
	r, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "orders" SET .*reconciled_at IS NULL`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .* FROM "orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "reconciled_at"}).
			AddRow("o-1", string(models.OrderDelivered), time.Now().UTC()))
	mock.ExpectRollback()

	_, err := r.ApplyAdjustments(context.Background(), inventory.Batch{
		Kind:        models.MovementDeduction,
		OrderID:     "o-1",
		Adjustments: []inventory.Adjustment{{IngredientID: "matcha", Delta: decimal.NewFromInt(-10)}},
	})
	assert.ErrorIs(t, err, inventory.ErrAlreadyReconciled)
	assert.NoError(t, mock.ExpectationsWereMet(), "no stock update after a lost claim")
}

func TestApplyAdjustmentsCompletionLosesStatusRace(t *testing.T) {
	r, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "orders" SET .*reconciled_at IS NULL.*status = `).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .* FROM "orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "reconciled_at"}).
			AddRow("o-1", string(models.OrderFailed), nil))
	mock.ExpectRollback()

	_, err := r.ApplyAdjustments(context.Background(), inventory.Batch{
		Kind:        models.MovementDeduction,
		OrderID:     "o-1",
		Complete:    true,
		FromStatus:  models.OrderDelivered,
		Adjustments: []inventory.Adjustment{{IngredientID: "matcha", Delta: decimal.NewFromInt(-10)}},
	})
	assert.ErrorIs(t, err, inventory.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrderStatusRefusesFailingReconciledOrder(t *testing.T) {
	r, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "orders" SET .*reconciled_at IS NULL`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectQuery(`SELECT \* FROM "orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "reconciled_at"}).
			AddRow("o-1", string(models.OrderDelivered), time.Now().UTC()))
	mock.ExpectQuery(`SELECT \* FROM "order_items"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "product_id", "quantity", "price"}))

	err := r.UpdateOrderStatus(context.Background(), "o-1", models.OrderDelivered, models.OrderFailed)
	assert.ErrorIs(t, err, inventory.ErrInvalidTransition)
	assert.False(t, errors.Is(err, inventory.ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}
