package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/ribon-matchalatte/backend/repository/models"
	"github.com/shopspring/decimal"
)

// Adjust adds delta (which may be negative) to an ingredient's stock and returns
// the new stock. A result below zero fails with *InsufficientStockError and writes
// nothing. Availability is not re-evaluated.
func (s *Service) Adjust(ctx context.Context, ingredientID string, delta decimal.Decimal, reason string) (decimal.Decimal, error) {
	if delta.IsZero() {
		ingredient, err := s.ingredient(ctx, ingredientID)
		if err != nil {
			return decimal.Zero, err
		}
		return ingredient.StockQuantity, nil
	}
	movement, err := s.applySingle(ctx, models.MovementAdjustment, reason, func(context.Context) (Adjustment, error) {
		return Adjustment{IngredientID: ingredientID, Delta: delta}, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return movement.StockAfter, nil
}

// Restock adds a positive amount to an ingredient and re-evaluates the products
// that use it, since more stock can make them sellable again.
func (s *Service) Restock(ctx context.Context, ingredientID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	movement, err := s.applySingle(ctx, models.MovementRestock, "restock", func(context.Context) (Adjustment, error) {
		return Adjustment{IngredientID: ingredientID, Delta: amount}, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	s.logger.Info("Ingredient restocked",
		"ingredient_id", ingredientID,
		"amount", amount.String(),
		"stock_before", movement.StockBefore.String(),
		"stock_after", movement.StockAfter.String(),
	)
	if _, err := s.EvaluateAffected(ctx, []string{ingredientID}); err != nil {
		return movement.StockAfter, fmt.Errorf("restocked but availability evaluation failed: %w", err)
	}
	return movement.StockAfter, nil
}

// SetStock overwrites an ingredient's stock with an absolute value using a
// compare-and-set on the value it read. Availability is not re-evaluated.
func (s *Service) SetStock(ctx context.Context, ingredientID string, target decimal.Decimal, reason string) (decimal.Decimal, error) {
	if target.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}
	var unchanged bool
	movement, err := s.applySingle(ctx, models.MovementAdjustment, reason, func(ctx context.Context) (Adjustment, error) {
		ingredient, err := s.ingredient(ctx, ingredientID)
		if err != nil {
			return Adjustment{}, err
		}
		current := ingredient.StockQuantity
		if current.Equal(target) {
			unchanged = true
			return Adjustment{}, nil
		}
		return Adjustment{IngredientID: ingredientID, Delta: target.Sub(current), Expect: &current}, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	if unchanged {
		return target, nil
	}
	return movement.StockAfter, nil
}

// applySingle builds and applies a one-adjustment batch, rebuilding it after a
// conflict. A zero IngredientID from build means there is nothing to apply.
func (s *Service) applySingle(
	ctx context.Context,
	kind models.MovementKind,
	reason string,
	build func(context.Context) (Adjustment, error),
) (models.StockMovement, error) {
	var lastErr error
	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		adjustment, err := build(ctx)
		if err != nil {
			return models.StockMovement{}, err
		}
		if adjustment.IngredientID == "" {
			return models.StockMovement{}, nil
		}
		movements, err := s.store.ApplyAdjustments(ctx, Batch{
			Kind:        kind,
			Reason:      reason,
			Adjustments: []Adjustment{adjustment},
		})
		if err == nil {
			if len(movements) != 1 {
				return models.StockMovement{}, fmt.Errorf("expected 1 stock movement, got %d", len(movements))
			}
			return movements[0], nil
		}
		if !errors.Is(err, ErrConflict) {
			return models.StockMovement{}, err
		}
		lastErr = err
		s.logger.Debug("Stock adjustment conflicted, retrying", "ingredient_id", adjustment.IngredientID, "attempt", attempt)
	}
	return models.StockMovement{}, lastErr
}

func (s *Service) ingredient(ctx context.Context, id string) (*models.Ingredient, error) {
	ingredients, err := s.store.Ingredients(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(ingredients) == 0 {
		return nil, NewNotFound("ingredient", id)
	}
	return &ingredients[0], nil
}
