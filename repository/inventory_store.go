package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/ribon-matchalatte/backend/inventory"
	"github.com/ribon-matchalatte/backend/repository/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ inventory.Store = (*Repository)(nil)

func (r *Repository) Order(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Preload("Items").Where("id = ?", orderID).First(&order).Error
	if err != nil {
		return nil, translateError(err, "order", orderID)
	}
	return &order, nil
}

func (r *Repository) RecipeEntries(ctx context.Context, productIDs []string) ([]models.RecipeEntry, error) {
	var entries []models.RecipeEntry
	if len(productIDs) == 0 {
		return entries, nil
	}
	err := r.db.WithContext(ctx).Where("product_id IN ?", productIDs).Find(&entries).Error
	return entries, translateError(err, "recipe entry", "")
}

func (r *Repository) Ingredients(ctx context.Context, ids []string) ([]models.Ingredient, error) {
	var ingredients []models.Ingredient
	if len(ids) == 0 {
		return ingredients, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&ingredients).Error
	return ingredients, translateError(err, "ingredient", "")
}

func (r *Repository) Products(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := r.db.WithContext(ctx).Order("id").Find(&products).Error
	return products, translateError(err, "product", "")
}

func (r *Repository) ProductsByID(ctx context.Context, ids []string) ([]models.Product, error) {
	var products []models.Product
	if len(ids) == 0 {
		return products, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&products).Error
	return products, translateError(err, "product", "")
}

func (r *Repository) ProductsUsingIngredients(ctx context.Context, ingredientIDs []string) ([]models.Product, error) {
	var products []models.Product
	if len(ingredientIDs) == 0 {
		return products, nil
	}
	used := r.db.Model(&models.RecipeEntry{}).Select("product_id").Where("ingredient_id IN ?", ingredientIDs)
	err := r.db.WithContext(ctx).Where("id IN (?)", used).Order("id").Find(&products).Error
	return products, translateError(err, "product", "")
}

func (r *Repository) SetProductActive(ctx context.Context, productID string, active bool) error {
	result := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", productID).
		Update("is_active", active)
	if result.Error != nil {
		return translateError(result.Error, "product", productID)
	}
	if result.RowsAffected == 0 {
		return inventory.NewNotFound("product", productID)
	}
	return nil
}

// ApplyAdjustments runs the batch in one database transaction. Each adjustment is
// a single conditional UPDATE that only matches while the new stock stays
// non-negative, so concurrent deductions can never drive stock below zero. Rows
// are locked in ingredient ID order to avoid deadlocks between batches.
func (r *Repository) ApplyAdjustments(ctx context.Context, batch inventory.Batch) ([]models.StockMovement, error) {
	adjustments := append([]inventory.Adjustment(nil), batch.Adjustments...)
	sort.Slice(adjustments, func(i, j int) bool {
		return adjustments[i].IngredientID < adjustments[j].IngredientID
	})

	var movements []models.StockMovement
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		movements = movements[:0]

		var orderID *string
		if batch.OrderID != "" {
			if err := markReconciled(tx, batch, now); err != nil {
				return err
			}
			orderID = &batch.OrderID
		}

		var shortages []inventory.Shortage
		for _, adj := range adjustments {
			var ingredient models.Ingredient
			query := tx.Model(&ingredient).
				Clauses(clause.Returning{}).
				Where("id = ? AND stock_quantity + ? >= 0", adj.IngredientID, adj.Delta)
			if adj.Expect != nil {
				query = query.Where("stock_quantity = ?", *adj.Expect)
			}
			result := query.Updates(map[string]any{
				"stock_quantity": gorm.Expr("stock_quantity + ?", adj.Delta),
				"updated_at":     now,
			})
			if result.Error != nil {
				return translateError(result.Error, "ingredient", adj.IngredientID)
			}
			if result.RowsAffected == 0 {
				shortage, err := diagnoseAdjustment(tx, adj)
				if err != nil {
					return err
				}
				shortages = append(shortages, shortage)
				continue
			}
			movements = append(movements, models.StockMovement{
				ID:           uuid.NewString(),
				IngredientID: adj.IngredientID,
				OrderID:      orderID,
				Kind:         batch.Kind,
				Delta:        adj.Delta,
				StockBefore:  ingredient.StockQuantity.Sub(adj.Delta),
				StockAfter:   ingredient.StockQuantity,
				Reason:       batch.Reason,
				CreatedAt:    now,
			})
		}
		if len(shortages) > 0 {
			return &inventory.InsufficientStockError{Shortages: shortages}
		}
		if len(movements) == 0 {
			return nil
		}
		return translateError(tx.Create(&movements).Error, "stock movement", "")
	})
	if err != nil {
		return nil, err
	}
	return movements, nil
}

// markReconciled claims the order for this batch. The WHERE clause makes a second
// reconciliation of the same order match no row.
func markReconciled(tx *gorm.DB, batch inventory.Batch, now time.Time) error {
	updates := map[string]any{"reconciled_at": now, "updated_at": now}
	query := tx.Model(&models.Order{}).Where("id = ? AND reconciled_at IS NULL", batch.OrderID)
	if batch.Complete {
		query = query.Where("status = ?", batch.FromStatus)
		updates["status"] = models.OrderCompleted
	} else {
		query = query.Where("status <> ?", models.OrderFailed)
	}
	result := query.Updates(updates)
	if result.Error != nil {
		return translateError(result.Error, "order", batch.OrderID)
	}
	if result.RowsAffected == 1 {
		return nil
	}

	var order models.Order
	err := tx.Select("id", "status", "reconciled_at").Where("id = ?", batch.OrderID).First(&order).Error
	if err != nil {
		return translateError(err, "order", batch.OrderID)
	}
	if order.ReconciledAt != nil {
		return inventory.ErrAlreadyReconciled
	}
	return fmt.Errorf("%w: order %s moved to %s", inventory.ErrConflict, order.ID, order.Status)
}

// diagnoseAdjustment explains why a conditional stock update matched no row
func diagnoseAdjustment(tx *gorm.DB, adj inventory.Adjustment) (inventory.Shortage, error) {
	var ingredient models.Ingredient
	err := tx.Where("id = ?", adj.IngredientID).First(&ingredient).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return inventory.Shortage{}, inventory.NewNotFound("ingredient", adj.IngredientID)
	}
	if err != nil {
		return inventory.Shortage{}, translateError(err, "ingredient", adj.IngredientID)
	}
	if adj.Expect != nil && !ingredient.StockQuantity.Equal(*adj.Expect) {
		return inventory.Shortage{}, fmt.Errorf("%w: ingredient %s changed since it was read", inventory.ErrConflict, adj.IngredientID)
	}
	return inventory.Shortage{
		IngredientID: ingredient.ID,
		Name:         ingredient.Name,
		Required:     adj.Delta.Neg(),
		Available:    ingredient.StockQuantity,
	}, nil
}

// UpdateOrderStatus is a conditional UPDATE on the current status. The
// reconciled_at predicate keeps Completed orders reconciled and Failed orders
// unreconciled under concurrent Reconcile calls.
func (r *Repository) UpdateOrderStatus(ctx context.Context, id string, from, to models.OrderStatus) error {
	query := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ? AND status = ?", id, from)
	switch to {
	case models.OrderCompleted:
		query = query.Where("reconciled_at IS NOT NULL")
	case models.OrderFailed:
		query = query.Where("reconciled_at IS NULL")
	}
	result := query.Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return translateError(result.Error, "order", id)
	}
	if result.RowsAffected == 1 {
		return nil
	}

	order, err := r.Order(ctx, id)
	if err != nil {
		return err
	}
	if order.Status != from {
		return fmt.Errorf("%w: order %s is no longer %s", inventory.ErrConflict, id, from)
	}
	if order.ReconciledAt == nil {
		return fmt.Errorf("%w: order %s has not been reconciled", inventory.ErrInvalidTransition, id)
	}
	return fmt.Errorf("%w: order %s is already reconciled", inventory.ErrInvalidTransition, id)
}
