package shop

import (
	"context"
	"strings"

	"github.com/ribon-matchalatte/backend/inventory"
	"github.com/ribon-matchalatte/backend/repository/models"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// IngredientView is an ingredient with its stock level
type IngredientView struct {
	models.Ingredient
	Level string `json:"level"`
}

func (s *Service) view(ingredient models.Ingredient) IngredientView {
	return IngredientView{Ingredient: ingredient, Level: s.Level(ingredient.StockQuantity)}
}

func (s *Service) ListIngredients(ctx context.Context) ([]IngredientView, error) {
	ingredients, err := s.store.ListIngredients(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]IngredientView, 0, len(ingredients))
	for _, ingredient := range ingredients {
		views = append(views, s.view(ingredient))
	}
	return views, nil
}

func (s *Service) Ingredient(ctx context.Context, id string) (*IngredientView, error) {
	ingredients, err := s.store.Ingredients(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(ingredients) == 0 {
		return nil, inventory.NewNotFound("ingredient", id)
	}
	v := s.view(ingredients[0])
	return &v, nil
}

type IngredientInput struct {
	Name          string           `json:"name"`
	Type          string           `json:"type"`
	PricePerUnit  decimal.Decimal  `json:"price_per_unit"`
	StockQuantity *decimal.Decimal `json:"stock_quantity,omitempty"`
}

func (in IngredientInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return newValidationError("name is required")
	}
	if in.PricePerUnit.IsNegative() {
		return newValidationError("price_per_unit must not be negative")
	}
	if in.StockQuantity != nil && in.StockQuantity.IsNegative() {
		return newValidationError("stock_quantity must not be negative")
	}
	return nil
}

func (s *Service) CreateIngredient(ctx context.Context, in IngredientInput) (*IngredientView, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	ingredient := &models.Ingredient{
		Name:         strings.TrimSpace(in.Name),
		Type:         in.Type,
		PricePerUnit: in.PricePerUnit,
	}
	if in.StockQuantity != nil {
		ingredient.StockQuantity = *in.StockQuantity
	}
	if err := s.store.CreateIngredient(ctx, ingredient); err != nil {
		return nil, err
	}
	v := s.view(*ingredient)
	return &v, nil
}

// UpdateIngredient edits the ingredient's details. A stock value is applied as an
// adjustment through the inventory service, after which the products using the
// ingredient are re-evaluated.
func (s *Service) UpdateIngredient(ctx context.Context, id string, in IngredientInput) (*IngredientView, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	ingredient := &models.Ingredient{
		ID:           id,
		Name:         strings.TrimSpace(in.Name),
		Type:         in.Type,
		PricePerUnit: in.PricePerUnit,
	}
	if err := s.store.UpdateIngredientDetails(ctx, ingredient); err != nil {
		return nil, err
	}
	if in.StockQuantity != nil {
		if _, err := s.inventory.SetStock(ctx, id, *in.StockQuantity, "manual edit"); err != nil {
			return nil, err
		}
		if _, err := s.inventory.EvaluateAffected(ctx, []string{id}); err != nil {
			return nil, err
		}
	}
	return s.Ingredient(ctx, id)
}

// DeleteIngredient removes the ingredient with its recipe entries and re-evaluates
// the products that used it
func (s *Service) DeleteIngredient(ctx context.Context, id string) error {
	affected, err := s.store.ProductsUsingIngredients(ctx, []string{id})
	if err != nil {
		return err
	}
	if err := s.store.DeleteIngredient(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Ingredient deleted", "ingredient_id", id, "affected_products", len(affected))

	ids := lo.Map(affected, func(p models.Product, _ int) string { return p.ID })
	_, err = s.inventory.Evaluate(ctx, ids...)
	return err
}

func (s *Service) Restock(ctx context.Context, id string, amount decimal.Decimal) (*IngredientView, error) {
	if _, err := s.inventory.Restock(ctx, id, amount); err != nil {
		return nil, err
	}
	return s.Ingredient(ctx, id)
}

// Movements returns an ingredient's stock history, newest first
func (s *Service) Movements(ctx context.Context, id string, limit int) ([]models.StockMovement, error) {
	if _, err := s.Ingredient(ctx, id); err != nil {
		return nil, err
	}
	return s.store.Movements(ctx, id, limit)
}
