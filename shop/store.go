package shop

import (
	"context"

	"github.com/ribon-matchalatte/backend/inventory"
	"github.com/ribon-matchalatte/backend/repository/models"
)

// Store is the storefront data access. It embeds the reconciliation core's Store
// so one implementation serves both.
//
// Missing records are reported as *inventory.NotFoundError, a product still
// referenced by orders as inventory.ErrInUse and a taken name as
// inventory.ErrDuplicate.
type Store interface {
	inventory.Store

	// ListProducts returns products ordered by name, with their category
	ListProducts(ctx context.Context, activeOnly bool) ([]models.Product, error)
	// Product returns one product with its category and recipe
	Product(ctx context.Context, id string) (*models.Product, error)
	// CreateProduct stores a new product as inactive
	CreateProduct(ctx context.Context, product *models.Product) error
	// UpdateProduct writes every editable field except is_active
	UpdateProduct(ctx context.Context, product *models.Product) error
	DeleteProduct(ctx context.Context, id string) error

	ListCategories(ctx context.Context) ([]models.Category, error)
	CreateCategory(ctx context.Context, category *models.Category) error

	ListIngredients(ctx context.Context) ([]models.Ingredient, error)
	// CreateIngredient stores the ingredient and, for a positive opening stock, an
	// adjustment movement in the same transaction
	CreateIngredient(ctx context.Context, ingredient *models.Ingredient) error
	// UpdateIngredientDetails writes name, type and price. Stock is never touched.
	UpdateIngredientDetails(ctx context.Context, ingredient *models.Ingredient) error
	// DeleteIngredient removes the ingredient and every recipe entry using it
	DeleteIngredient(ctx context.Context, id string) error
	// Movements returns an ingredient's stock history, newest first
	Movements(ctx context.Context, ingredientID string, limit int) ([]models.StockMovement, error)

	UpsertRecipeEntry(ctx context.Context, entry *models.RecipeEntry) error
	DeleteRecipeEntry(ctx context.Context, productID, ingredientID string) error

	CreateOrder(ctx context.Context, order *models.Order) error
	// ListOrders returns orders newest first; an empty status lists all
	ListOrders(ctx context.Context, status models.OrderStatus) ([]models.Order, error)
	OrdersByPhone(ctx context.Context, phone string) ([]models.Order, error)

	CreateContact(ctx context.Context, contact *models.Contact) error
	// ListContacts returns messages newest first; an empty status lists all
	ListContacts(ctx context.Context, status models.ContactStatus) ([]models.Contact, error)
	Contact(ctx context.Context, id string) (*models.Contact, error)
	UpdateContactStatus(ctx context.Context, id string, status models.ContactStatus) error

	// CreateReview reports an unknown product as *inventory.NotFoundError
	CreateReview(ctx context.Context, review *models.Review) error
	// Reviews returns a product's reviews newest first
	Reviews(ctx context.Context, productID string) ([]models.Review, error)
}
