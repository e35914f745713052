package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ribon-matchalatte/backend/repository/models"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// DeductionSummary maps ingredient ID to the amount deducted from its stock
type DeductionSummary map[string]decimal.Decimal

// Reconcile deducts the ingredients consumed by an order. Either every ingredient
// is deducted or none is. The order status is left untouched, and a Failed order
// cannot be reconciled.
func (s *Service) Reconcile(ctx context.Context, orderID string) (DeductionSummary, error) {
	return s.reconcile(ctx, orderID, false)
}

// CompleteOrder deducts the order's ingredients and moves it to Completed in the
// same storage transaction. On any error the status is not changed. An order
// already reconciled through Reconcile is moved to Completed without a second
// deduction; one that is already Completed yields ErrAlreadyReconciled.
func (s *Service) CompleteOrder(ctx context.Context, orderID string) (DeductionSummary, error) {
	return s.reconcile(ctx, orderID, true)
}

func (s *Service) reconcile(ctx context.Context, orderID string, complete bool) (DeductionSummary, error) {
	var lastErr error
	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		summary, movements, err := s.reconcileOnce(ctx, orderID, complete)
		if err == nil {
			if len(movements) > 0 {
				s.afterDeduction(ctx, orderID, movements)
			}
			return summary, nil
		}
		if !errors.Is(err, ErrConflict) {
			if shortage, ok := AsInsufficientStock(err); ok && complete {
				s.alert(ctx,
					fmt.Sprintf("Order %s cannot be completed: insufficient stock", orderID),
					shortage.Error(),
				)
			}
			s.logger.Info("Order reconciliation failed", "order_id", orderID, "err", err)
			return nil, err
		}
		lastErr = err
		s.logger.Info("Order reconciliation conflicted, retrying", "order_id", orderID, "attempt", attempt, "err", err)
	}
	return nil, lastErr
}

func (s *Service) reconcileOnce(ctx context.Context, orderID string, complete bool) (DeductionSummary, []models.StockMovement, error) {
	order, err := s.store.Order(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if order.ReconciledAt != nil {
		if !complete || order.Status == models.OrderCompleted {
			return nil, nil, ErrAlreadyReconciled
		}
		// ingredients were deducted by an earlier Reconcile, only the status moves
		if err := s.store.UpdateOrderStatus(ctx, orderID, order.Status, models.OrderCompleted); err != nil {
			return nil, nil, err
		}
		return DeductionSummary{}, nil, nil
	}
	if order.Status == models.OrderFailed || (complete && order.Status.Terminal()) {
		return nil, nil, fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, orderID, order.Status)
	}
	if len(order.Items) == 0 {
		return nil, nil, ErrEmptyOrder
	}

	entries, err := s.store.RecipeEntries(ctx, productIDsOf(order.Items))
	if err != nil {
		return nil, nil, err
	}
	usage := aggregateUsage(order.Items, entries)
	ingredientIDs := sortedKeys(usage)

	ingredients, err := s.store.Ingredients(ctx, ingredientIDs)
	if err != nil {
		return nil, nil, err
	}
	stock := lo.KeyBy(ingredients, func(ingredient models.Ingredient) string { return ingredient.ID })

	var shortages []Shortage
	for _, id := range ingredientIDs {
		ingredient, ok := stock[id]
		if !ok {
			return nil, nil, NewNotFound("ingredient", id)
		}
		if ingredient.StockQuantity.LessThan(usage[id]) {
			shortages = append(shortages, Shortage{
				IngredientID: id,
				Name:         ingredient.Name,
				Required:     usage[id],
				Available:    ingredient.StockQuantity,
			})
		}
	}
	if len(shortages) > 0 {
		return nil, nil, &InsufficientStockError{Shortages: shortages}
	}

	batch := Batch{
		Kind:       models.MovementDeduction,
		Reason:     "order " + orderID,
		OrderID:    orderID,
		Complete:   complete,
		FromStatus: order.Status,
	}
	for _, id := range ingredientIDs {
		batch.Adjustments = append(batch.Adjustments, Adjustment{IngredientID: id, Delta: usage[id].Neg()})
	}

	movements, err := s.store.ApplyAdjustments(ctx, batch)
	if err != nil {
		if _, ok := AsInsufficientStock(err); ok {
			// stock moved between the sufficiency check and the write
			return nil, nil, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return nil, nil, err
	}

	summary := make(DeductionSummary, len(usage))
	for id, amount := range usage {
		summary[id] = amount
	}
	return summary, movements, nil
}

// afterDeduction logs the audit trail, re-evaluates the affected products and
// raises a critical-stock alert for ingredients that crossed the threshold.
// Failures here are logged only: the deduction is already committed.
func (s *Service) afterDeduction(ctx context.Context, orderID string, movements []models.StockMovement) {
	ingredientIDs := make([]string, 0, len(movements))
	var critical []string
	for _, m := range movements {
		s.logger.Info("Ingredient deducted",
			"order_id", orderID,
			"ingredient_id", m.IngredientID,
			"amount", m.Delta.Neg().String(),
			"stock_before", m.StockBefore.String(),
			"stock_after", m.StockAfter.String(),
		)
		ingredientIDs = append(ingredientIDs, m.IngredientID)
		threshold := s.config.CriticalThreshold
		if m.StockAfter.LessThan(threshold) && !m.StockBefore.LessThan(threshold) {
			critical = append(critical, fmt.Sprintf("%s: %s left", m.IngredientID, m.StockAfter))
		}
	}

	if _, err := s.EvaluateAffected(ctx, ingredientIDs); err != nil {
		s.logger.Error("Availability evaluation after deduction failed", "order_id", orderID, "err", err)
	}
	if len(critical) > 0 {
		s.alert(ctx, "Ingredients below critical stock", strings.Join(critical, "\n"))
	}
}

// aggregateUsage sums recipe quantity times ordered quantity per ingredient over
// every (order item, recipe entry of that item's product) pair. Duplicate product
// lines contribute once each.
func aggregateUsage(items []models.OrderItem, entries []models.RecipeEntry) map[string]decimal.Decimal {
	byProduct := make(map[string][]models.RecipeEntry)
	for _, entry := range entries {
		byProduct[entry.ProductID] = append(byProduct[entry.ProductID], entry)
	}

	usage := make(map[string]decimal.Decimal)
	for _, item := range items {
		quantity := decimal.NewFromInt(int64(item.Quantity))
		for _, entry := range byProduct[item.ProductID] {
			usage[entry.IngredientID] = usage[entry.IngredientID].Add(entry.Quantity.Mul(quantity))
		}
	}
	return usage
}

func productIDsOf(items []models.OrderItem) []string {
	return lo.Uniq(lo.Map(items, func(item models.OrderItem, _ int) string { return item.ProductID }))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}
