package inventory

import (
	"context"

	"github.com/ribon-matchalatte/backend/repository/models"
	"github.com/shopspring/decimal"
)

// Adjustment changes one ingredient's stock by Delta. When Expect is set the store
// applies it only if the current stock still equals *Expect.
type Adjustment struct {
	IngredientID string
	Delta        decimal.Decimal
	Expect       *decimal.Decimal
}

// Batch is a set of adjustments a Store must apply atomically: either every
// adjustment and its stock movement is written or nothing is.
//
// When OrderID is set the store also marks the order reconciled in the same
// transaction, failing with ErrAlreadyReconciled if it already was and with
// ErrConflict if it is Failed. Complete moves the order from FromStatus to
// Completed; a status other than FromStatus yields ErrConflict.
type Batch struct {
	Kind        models.MovementKind
	Reason      string
	Adjustments []Adjustment

	OrderID    string
	Complete   bool
	FromStatus models.OrderStatus
}

// Store is the data access the reconciliation core needs.
//
// ApplyAdjustments must enforce the non-negative floor itself (conditional update or
// optimistic transaction) and report a floor violation as *InsufficientStockError, a
// missing ingredient or order as *NotFoundError and a lost race as ErrConflict.
//
// UpdateOrderStatus is a compare-and-set on the status. Completed is only reachable
// for an order that is already reconciled and Failed only for one that is not; the
// store enforces both in the same conditional write and reports a violation as
// ErrInvalidTransition, a status other than from as ErrConflict.
type Store interface {
	// Order returns the order with its items
	Order(ctx context.Context, orderID string) (*models.Order, error)
	RecipeEntries(ctx context.Context, productIDs []string) ([]models.RecipeEntry, error)
	Ingredients(ctx context.Context, ids []string) ([]models.Ingredient, error)
	Products(ctx context.Context) ([]models.Product, error)
	ProductsByID(ctx context.Context, ids []string) ([]models.Product, error)
	ProductsUsingIngredients(ctx context.Context, ingredientIDs []string) ([]models.Product, error)
	SetProductActive(ctx context.Context, productID string, active bool) error
	ApplyAdjustments(ctx context.Context, batch Batch) ([]models.StockMovement, error)
	UpdateOrderStatus(ctx context.Context, id string, from, to models.OrderStatus) error
}
