package inventory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is matched by every *NotFoundError
	ErrNotFound = errors.New("not found")
	// ErrEmptyOrder is returned when an order has no line items to reconcile
	ErrEmptyOrder = errors.New("order has no items")
	// ErrConflict means a concurrent write invalidated the snapshot the operation was based on
	ErrConflict = errors.New("concurrent stock update, retry")
	// ErrAlreadyReconciled is returned when an order's ingredients were already deducted
	ErrAlreadyReconciled = errors.New("order already reconciled")
	// ErrInvalidAmount rejects non-positive restocks and negative stock targets
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInvalidTransition rejects order status changes out of a terminal status
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrInUse is returned when deleting a record other records still reference
	ErrInUse = errors.New("still referenced")
	// ErrDuplicate is returned when a unique name is already taken
	ErrDuplicate = errors.New("already exists")
)

// NotFoundError names the missing entity
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NewNotFound builds a *NotFoundError
func NewNotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// Shortage describes one ingredient that cannot cover the requested amount
type Shortage struct {
	IngredientID string          `json:"ingredient_id"`
	Name         string          `json:"name"`
	Required     decimal.Decimal `json:"required"`
	Available    decimal.Decimal `json:"available"`
}

// InsufficientStockError lists every ingredient that blocked a deduction. Nothing
// was written when it is returned.
type InsufficientStockError struct {
	Shortages []Shortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		name := s.Name
		if name == "" {
			name = s.IngredientID
		}
		parts = append(parts, fmt.Sprintf("%s (required: %s, available: %s)", name, s.Required, s.Available))
	}
	return "insufficient stock: " + strings.Join(parts, ", ")
}

// AsInsufficientStock unwraps err into an *InsufficientStockError
func AsInsufficientStock(err error) (*InsufficientStockError, bool) {
	var target *InsufficientStockError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
