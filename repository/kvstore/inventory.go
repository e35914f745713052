package kvstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/ribon-matchalatte/backend/inventory"
	"github.com/ribon-matchalatte/backend/repository/models"
)

var _ inventory.Store = (*Store)(nil)

func (s *Store) Order(_ context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	err := s.view(func(txn *badger.Txn) error {
		return getOrder(txn, orderID, &order)
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func getOrder(txn *badger.Txn, orderID string, order *models.Order) error {
	err := getJSON(txn, prefixOrder+orderID, order)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return inventory.NewNotFound("order", orderID)
	}
	return err
}

func (s *Store) RecipeEntries(_ context.Context, productIDs []string) ([]models.RecipeEntry, error) {
	var entries []models.RecipeEntry
	err := s.view(func(txn *badger.Txn) error {
		for _, id := range productIDs {
			found, err := scanJSON[models.RecipeEntry](txn, prefixRecipe+id+":")
			if err != nil {
				return err
			}
			entries = append(entries, found...)
		}
		return nil
	})
	return entries, err
}

// Ingredients returns the ingredients that exist among ids
func (s *Store) Ingredients(_ context.Context, ids []string) ([]models.Ingredient, error) {
	var ingredients []models.Ingredient
	err := s.view(func(txn *badger.Txn) error {
		for _, id := range ids {
			var ingredient models.Ingredient
			err := getJSON(txn, prefixIngredient+id, &ingredient)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			ingredients = append(ingredients, ingredient)
		}
		return nil
	})
	return ingredients, err
}

func (s *Store) Products(_ context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.view(func(txn *badger.Txn) error {
		var err error
		products, err = scanJSON[models.Product](txn, prefixProduct)
		return err
	})
	return products, err
}

// ProductsByID returns the products that exist among ids
func (s *Store) ProductsByID(_ context.Context, ids []string) ([]models.Product, error) {
	var products []models.Product
	err := s.view(func(txn *badger.Txn) error {
		var err error
		products, err = getProducts(txn, ids)
		return err
	})
	return products, err
}

func getProducts(txn *badger.Txn, ids []string) ([]models.Product, error) {
	var products []models.Product
	for _, id := range ids {
		var product models.Product
		err := getJSON(txn, prefixProduct+id, &product)
		if errors.Is(err, badger.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, nil
}

func (s *Store) ProductsUsingIngredients(_ context.Context, ingredientIDs []string) ([]models.Product, error) {
	var products []models.Product
	err := s.view(func(txn *badger.Txn) error {
		ids, err := productsUsing(txn, ingredientIDs)
		if err != nil {
			return err
		}
		products, err = getProducts(txn, ids)
		return err
	})
	return products, err
}

func productsUsing(txn *badger.Txn, ingredientIDs []string) ([]string, error) {
	seen := make(map[string]struct{})
	var ids []string
	for _, ingredientID := range ingredientIDs {
		err := scan(txn, prefixRecipeByIngredient+ingredientID+":", true, func(key string, _ []byte) error {
			id := lastSegment(key)
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) SetProductActive(_ context.Context, productID string, active bool) error {
	return s.update(func(txn *badger.Txn) error {
		var product models.Product
		err := getJSON(txn, prefixProduct+productID, &product)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return inventory.NewNotFound("product", productID)
		}
		if err != nil {
			return err
		}
		product.IsActive = active
		product.UpdatedAt = s.now()
		return setJSON(txn, prefixProduct+productID, &product)
	})
}

// ApplyAdjustments applies the batch in one optimistic transaction. A concurrent
// commit touching the same ingredients or order makes Badger reject it with
// ErrConflict.
func (s *Store) ApplyAdjustments(ctx context.Context, batch inventory.Batch) ([]models.StockMovement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	adjustments := append([]inventory.Adjustment(nil), batch.Adjustments...)
	sort.Slice(adjustments, func(i, j int) bool {
		return adjustments[i].IngredientID < adjustments[j].IngredientID
	})

	var movements []models.StockMovement
	err := s.update(func(txn *badger.Txn) error {
		now := s.now()
		movements = movements[:0]

		var shortages []inventory.Shortage
		ingredients := make([]models.Ingredient, len(adjustments))
		for i, adj := range adjustments {
			err := getJSON(txn, prefixIngredient+adj.IngredientID, &ingredients[i])
			if errors.Is(err, badger.ErrKeyNotFound) {
				return inventory.NewNotFound("ingredient", adj.IngredientID)
			}
			if err != nil {
				return err
			}
			before := ingredients[i].StockQuantity
			if adj.Expect != nil && !before.Equal(*adj.Expect) {
				return fmt.Errorf("%w: ingredient %s changed since it was read", inventory.ErrConflict, adj.IngredientID)
			}
			if before.Add(adj.Delta).IsNegative() {
				shortages = append(shortages, inventory.Shortage{
					IngredientID: adj.IngredientID,
					Name:         ingredients[i].Name,
					Required:     adj.Delta.Neg(),
					Available:    before,
				})
			}
		}
		if len(shortages) > 0 {
			return &inventory.InsufficientStockError{Shortages: shortages}
		}

		var orderID *string
		if batch.OrderID != "" {
			var order models.Order
			if err := getOrder(txn, batch.OrderID, &order); err != nil {
				return err
			}
			if order.ReconciledAt != nil {
				return inventory.ErrAlreadyReconciled
			}
			if order.Status == models.OrderFailed {
				return fmt.Errorf("%w: order %s moved to %s", inventory.ErrConflict, order.ID, order.Status)
			}
			if batch.Complete {
				if order.Status != batch.FromStatus {
					return fmt.Errorf("%w: order %s moved to %s", inventory.ErrConflict, order.ID, order.Status)
				}
				order.Status = models.OrderCompleted
			}
			order.ReconciledAt = &now
			order.UpdatedAt = now
			if err := setJSON(txn, prefixOrder+order.ID, &order); err != nil {
				return err
			}
			orderID = &order.ID
		}

		for i, adj := range adjustments {
			ingredient := &ingredients[i]
			before := ingredient.StockQuantity
			ingredient.StockQuantity = before.Add(adj.Delta)
			ingredient.UpdatedAt = now
			if err := setJSON(txn, prefixIngredient+ingredient.ID, ingredient); err != nil {
				return err
			}
			movement := models.StockMovement{
				ID:           uuid.NewString(),
				IngredientID: ingredient.ID,
				OrderID:      orderID,
				Kind:         batch.Kind,
				Delta:        adj.Delta,
				StockBefore:  before,
				StockAfter:   ingredient.StockQuantity,
				Reason:       batch.Reason,
				CreatedAt:    now,
			}
			if err := setJSON(txn, movementKey(movement), &movement); err != nil {
				return err
			}
			movements = append(movements, movement)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return movements, nil
}

func movementKey(m models.StockMovement) string {
	return fmt.Sprintf("%s%s:%019d:%s", prefixMovement, m.IngredientID, m.CreatedAt.UnixNano(), m.ID)
}

func (s *Store) UpdateOrderStatus(_ context.Context, id string, from, to models.OrderStatus) error {
	return s.update(func(txn *badger.Txn) error {
		var order models.Order
		if err := getOrder(txn, id, &order); err != nil {
			return err
		}
		if order.Status != from {
			return fmt.Errorf("%w: order %s is %s, not %s", inventory.ErrConflict, id, order.Status, from)
		}
		if err := checkReconciledTransition(&order, to); err != nil {
			return err
		}
		order.Status = to
		order.UpdatedAt = s.now()
		return setJSON(txn, prefixOrder+id, &order)
	})
}

// checkReconciledTransition keeps Completed and reconciled_at in step
func checkReconciledTransition(order *models.Order, to models.OrderStatus) error {
	switch {
	case to == models.OrderCompleted && order.ReconciledAt == nil:
		return fmt.Errorf("%w: order %s has not been reconciled", inventory.ErrInvalidTransition, order.ID)
	case to == models.OrderFailed && order.ReconciledAt != nil:
		return fmt.Errorf("%w: order %s is already reconciled", inventory.ErrInvalidTransition, order.ID)
	}
	return nil
}
