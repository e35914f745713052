package shop

import (
	"context"
	"strings"

	"github.com/ribon-matchalatte/backend/repository/models"
	"github.com/shopspring/decimal"
)

// ProductInput holds the admin-editable product fields. Availability is derived
// from stock and cannot be set here.
type ProductInput struct {
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	ImageURL      string          `json:"image_url"`
	StockQuantity int             `json:"stock_quantity"`
	CategoryID    *string         `json:"category_id,omitempty"`
}

func (in ProductInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return newValidationError("name is required")
	}
	if in.Price.IsNegative() {
		return newValidationError("price must not be negative")
	}
	if in.StockQuantity < 0 {
		return newValidationError("stock_quantity must not be negative")
	}
	return nil
}

func (in ProductInput) apply(p *models.Product) {
	p.Name = strings.TrimSpace(in.Name)
	p.Description = in.Description
	p.Price = in.Price
	p.ImageURL = in.ImageURL
	p.StockQuantity = in.StockQuantity
	p.CategoryID = in.CategoryID
}

// ListProducts returns the catalog; the public storefront only sees active products
func (s *Service) ListProducts(ctx context.Context, activeOnly bool) ([]models.Product, error) {
	return s.store.ListProducts(ctx, activeOnly)
}

func (s *Service) Product(ctx context.Context, id string) (*models.Product, error) {
	return s.store.Product(ctx, id)
}

func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	product := &models.Product{}
	in.apply(product)
	if err := s.store.CreateProduct(ctx, product); err != nil {
		return nil, err
	}
	return s.evaluated(ctx, product.ID)
}

func (s *Service) UpdateProduct(ctx context.Context, id string, in ProductInput) (*models.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	product := &models.Product{ID: id}
	in.apply(product)
	if err := s.store.UpdateProduct(ctx, product); err != nil {
		return nil, err
	}
	return s.evaluated(ctx, id)
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := s.store.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Product deleted", "product_id", id)
	return nil
}

// evaluated re-derives a product's availability and returns its fresh state
func (s *Service) evaluated(ctx context.Context, productID string) (*models.Product, error) {
	if _, err := s.inventory.Evaluate(ctx, productID); err != nil {
		return nil, err
	}
	return s.store.Product(ctx, productID)
}

// Categories

func (s *Service) ListCategories(ctx context.Context) ([]models.Category, error) {
	return s.store.ListCategories(ctx)
}

func (s *Service) CreateCategory(ctx context.Context, name string) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, newValidationError("name is required")
	}
	category := &models.Category{Name: name}
	if err := s.store.CreateCategory(ctx, category); err != nil {
		return nil, err
	}
	return category, nil
}

// Recipes

// Recipe returns a product's bill of materials with each ingredient loaded
func (s *Service) Recipe(ctx context.Context, productID string) ([]models.RecipeEntry, error) {
	product, err := s.store.Product(ctx, productID)
	if err != nil {
		return nil, err
	}
	return product.Recipe, nil
}

type RecipeEntryInput struct {
	IngredientID string          `json:"ingredient_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	Unit         string          `json:"unit"`
}

// SetRecipeEntry adds an ingredient to a product's recipe or replaces its quantity
func (s *Service) SetRecipeEntry(ctx context.Context, productID string, in RecipeEntryInput) (*models.RecipeEntry, error) {
	if in.IngredientID == "" {
		return nil, newValidationError("ingredient_id is required")
	}
	if !in.Quantity.IsPositive() {
		return nil, newValidationError("quantity must be positive")
	}
	entry := &models.RecipeEntry{
		ProductID:    productID,
		IngredientID: in.IngredientID,
		Quantity:     in.Quantity,
		Unit:         in.Unit,
	}
	if err := s.store.UpsertRecipeEntry(ctx, entry); err != nil {
		return nil, err
	}
	if _, err := s.inventory.Evaluate(ctx, productID); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) RemoveRecipeEntry(ctx context.Context, productID, ingredientID string) error {
	if err := s.store.DeleteRecipeEntry(ctx, productID, ingredientID); err != nil {
		return err
	}
	_, err := s.inventory.Evaluate(ctx, productID)
	return err
}
