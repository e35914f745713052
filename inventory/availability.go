package inventory

import (
	"context"

	"github.com/ribon-matchalatte/backend/repository/models"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// AvailabilityChange is the evaluation outcome for one product
type AvailabilityChange struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	PreviousActive bool   `json:"previous_active"`
	Active         bool   `json:"new_active"`
	Changed        bool   `json:"changed"`
}

// EvaluateAll re-derives is_active for every product in the catalog
func (s *Service) EvaluateAll(ctx context.Context) ([]AvailabilityChange, error) {
	products, err := s.store.Products(ctx)
	if err != nil {
		return nil, err
	}
	return s.evaluateProducts(ctx, products)
}

// Evaluate re-derives is_active for the given products. Unknown IDs are reported
// as *NotFoundError.
func (s *Service) Evaluate(ctx context.Context, productIDs ...string) ([]AvailabilityChange, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	products, err := s.store.ProductsByID(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	found := make(map[string]struct{}, len(products))
	for _, p := range products {
		found[p.ID] = struct{}{}
	}
	for _, id := range productIDs {
		if _, ok := found[id]; !ok {
			return nil, NewNotFound("product", id)
		}
	}
	return s.evaluateProducts(ctx, products)
}

// EvaluateAffected re-derives is_active only for products whose recipe references
// one of the given ingredients.
func (s *Service) EvaluateAffected(ctx context.Context, ingredientIDs []string) ([]AvailabilityChange, error) {
	if len(ingredientIDs) == 0 {
		return nil, nil
	}
	products, err := s.store.ProductsUsingIngredients(ctx, ingredientIDs)
	if err != nil {
		return nil, err
	}
	return s.evaluateProducts(ctx, products)
}

func (s *Service) evaluateProducts(ctx context.Context, products []models.Product) ([]AvailabilityChange, error) {
	if len(products) == 0 {
		return []AvailabilityChange{}, nil
	}
	ids := lo.Map(products, func(p models.Product, _ int) string { return p.ID })

	entries, err := s.store.RecipeEntries(ctx, ids)
	if err != nil {
		return nil, err
	}
	recipes := make(map[string][]models.RecipeEntry, len(products))
	ingredientSet := make(map[string]struct{})
	for _, entry := range entries {
		recipes[entry.ProductID] = append(recipes[entry.ProductID], entry)
		ingredientSet[entry.IngredientID] = struct{}{}
	}

	ingredients, err := s.store.Ingredients(ctx, sortedKeys(ingredientSet))
	if err != nil {
		return nil, err
	}
	stock := make(map[string]decimal.Decimal, len(ingredients))
	for _, ingredient := range ingredients {
		stock[ingredient.ID] = ingredient.StockQuantity
	}

	changes := make([]AvailabilityChange, 0, len(products))
	for _, p := range products {
		active := sellable(recipes[p.ID], stock)
		change := AvailabilityChange{
			ProductID:      p.ID,
			Name:           p.Name,
			PreviousActive: p.IsActive,
			Active:         active,
			Changed:        active != p.IsActive,
		}
		if change.Changed {
			if err := s.store.SetProductActive(ctx, p.ID, active); err != nil {
				return changes, err
			}
			s.logger.Info("Product availability changed", "product_id", p.ID, "name", p.Name, "active", active)
		}
		changes = append(changes, change)
	}
	return changes, nil
}

// sellable reports whether one unit of a product can be made. A product without a
// recipe never is, nor is one referencing an ingredient that no longer exists.
func sellable(recipe []models.RecipeEntry, stock map[string]decimal.Decimal) bool {
	if len(recipe) == 0 {
		return false
	}
	for _, entry := range recipe {
		available, ok := stock[entry.IngredientID]
		if !ok || available.LessThan(entry.Quantity) {
			return false
		}
	}
	return true
}
