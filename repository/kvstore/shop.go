package kvstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/ribon-matchalatte/backend/inventory"
	"github.com/ribon-matchalatte/backend/repository/models"
	"github.com/ribon-matchalatte/backend/shop"
)

var _ shop.Store = (*Store)(nil)

// Products

func (s *Store) ListProducts(_ context.Context, activeOnly bool) ([]models.Product, error) {
	var products []models.Product
	err := s.view(func(txn *badger.Txn) error {
		all, err := scanJSON[models.Product](txn, prefixProduct)
		if err != nil {
			return err
		}
		for i := range all {
			if activeOnly && !all[i].IsActive {
				continue
			}
			if err := loadCategory(txn, &all[i]); err != nil {
				return err
			}
			products = append(products, all[i])
		}
		return nil
	})
	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products, err
}

func (s *Store) Product(_ context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := s.view(func(txn *badger.Txn) error {
		err := getJSON(txn, prefixProduct+id, &product)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return inventory.NewNotFound("product", id)
		}
		if err != nil {
			return err
		}
		if err := loadCategory(txn, &product); err != nil {
			return err
		}
		product.Recipe, err = scanJSON[models.RecipeEntry](txn, prefixRecipe+id+":")
		if err != nil {
			return err
		}
		for i := range product.Recipe {
			var ingredient models.Ingredient
			err := getJSON(txn, prefixIngredient+product.Recipe[i].IngredientID, &ingredient)
			if err == nil {
				product.Recipe[i].Ingredient = &ingredient
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func loadCategory(txn *badger.Txn, product *models.Product) error {
	if product.CategoryID == nil {
		return nil
	}
	var category models.Category
	err := getJSON(txn, prefixCategory+*product.CategoryID, &category)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	product.Category = &category
	return nil
}

func checkCategory(txn *badger.Txn, categoryID *string) error {
	if categoryID == nil {
		return nil
	}
	ok, err := exists(txn, prefixCategory+*categoryID)
	if err != nil {
		return err
	}
	if !ok {
		return inventory.NewNotFound("category", *categoryID)
	}
	return nil
}

func (s *Store) CreateProduct(_ context.Context, product *models.Product) error {
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	now := s.now()
	product.IsActive = false
	product.CreatedAt = now
	product.UpdatedAt = now
	return s.update(func(txn *badger.Txn) error {
		if err := checkCategory(txn, product.CategoryID); err != nil {
			return err
		}
		ok, err := exists(txn, prefixProduct+product.ID)
		if err != nil {
			return err
		}
		if ok {
			return fmt.Errorf("%w: product %s", inventory.ErrDuplicate, product.ID)
		}
		return setJSON(txn, prefixProduct+product.ID, stripProduct(*product))
	})
}

func (s *Store) UpdateProduct(_ context.Context, product *models.Product) error {
	return s.update(func(txn *badger.Txn) error {
		var current models.Product
		err := getJSON(txn, prefixProduct+product.ID, &current)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return inventory.NewNotFound("product", product.ID)
		}
		if err != nil {
			return err
		}
		if err := checkCategory(txn, product.CategoryID); err != nil {
			return err
		}
		current.Name = product.Name
		current.Description = product.Description
		current.Price = product.Price
		current.ImageURL = product.ImageURL
		current.StockQuantity = product.StockQuantity
		current.CategoryID = product.CategoryID
		current.UpdatedAt = s.now()
		*product = current
		return setJSON(txn, prefixProduct+product.ID, stripProduct(current))
	})
}

// stripProduct drops the loaded relations so only the row itself is stored
func stripProduct(p models.Product) *models.Product {
	p.Category = nil
	p.Recipe = nil
	return &p
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	return s.update(func(txn *badger.Txn) error {
		ok, err := exists(txn, prefixProduct+id)
		if err != nil {
			return err
		}
		if !ok {
			return inventory.NewNotFound("product", id)
		}

		var referenced bool
		err = scan(txn, prefixOrderByProduct+id+":", true, func(string, []byte) error {
			referenced = true
			return nil
		})
		if err != nil {
			return err
		}
		if referenced {
			return fmt.Errorf("%w: product %s has orders", inventory.ErrInUse, id)
		}

		var ingredientIDs []string
		err = scan(txn, prefixRecipe+id+":", true, func(key string, _ []byte) error {
			ingredientIDs = append(ingredientIDs, lastSegment(key))
			return nil
		})
		if err != nil {
			return err
		}
		for _, ingredientID := range ingredientIDs {
			if err := deleteRecipeKeys(txn, id, ingredientID); err != nil {
				return err
			}
		}
		if err := deletePrefix(txn, prefixReview+id+":"); err != nil {
			return err
		}
		return txn.Delete([]byte(prefixProduct + id))
	})
}

// Categories

func (s *Store) ListCategories(_ context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := s.view(func(txn *badger.Txn) error {
		var err error
		categories, err = scanJSON[models.Category](txn, prefixCategory)
		return err
	})
	sort.Slice(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })
	return categories, err
}

func (s *Store) CreateCategory(_ context.Context, category *models.Category) error {
	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	category.CreatedAt = s.now()
	nameKey := prefixCategoryName + strings.ToLower(category.Name)
	return s.update(func(txn *badger.Txn) error {
		taken, err := exists(txn, nameKey)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: category %q", inventory.ErrDuplicate, category.Name)
		}
		if err := txn.Set([]byte(nameKey), []byte(category.ID)); err != nil {
			return err
		}
		return setJSON(txn, prefixCategory+category.ID, category)
	})
}

// Ingredients

func (s *Store) ListIngredients(_ context.Context) ([]models.Ingredient, error) {
	var ingredients []models.Ingredient
	err := s.view(func(txn *badger.Txn) error {
		var err error
		ingredients, err = scanJSON[models.Ingredient](txn, prefixIngredient)
		return err
	})
	sort.Slice(ingredients, func(i, j int) bool { return ingredients[i].Name < ingredients[j].Name })
	return ingredients, err
}

func (s *Store) CreateIngredient(_ context.Context, ingredient *models.Ingredient) error {
	if ingredient.ID == "" {
		ingredient.ID = uuid.NewString()
	}
	if ingredient.StockQuantity.IsNegative() {
		return inventory.ErrInvalidAmount
	}
	now := s.now()
	ingredient.CreatedAt = now
	ingredient.UpdatedAt = now
	return s.update(func(txn *badger.Txn) error {
		ok, err := exists(txn, prefixIngredient+ingredient.ID)
		if err != nil {
			return err
		}
		if ok {
			return fmt.Errorf("%w: ingredient %s", inventory.ErrDuplicate, ingredient.ID)
		}
		if err := setJSON(txn, prefixIngredient+ingredient.ID, ingredient); err != nil {
			return err
		}
		if !ingredient.StockQuantity.IsPositive() {
			return nil
		}
		movement := models.StockMovement{
			ID:           uuid.NewString(),
			IngredientID: ingredient.ID,
			Kind:         models.MovementAdjustment,
			Delta:        ingredient.StockQuantity,
			StockAfter:   ingredient.StockQuantity,
			Reason:       "opening stock",
			CreatedAt:    now,
		}
		return setJSON(txn, movementKey(movement), &movement)
	})
}

func (s *Store) UpdateIngredientDetails(_ context.Context, ingredient *models.Ingredient) error {
	return s.update(func(txn *badger.Txn) error {
		var current models.Ingredient
		err := getJSON(txn, prefixIngredient+ingredient.ID, &current)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return inventory.NewNotFound("ingredient", ingredient.ID)
		}
		if err != nil {
			return err
		}
		current.Name = ingredient.Name
		current.Type = ingredient.Type
		current.PricePerUnit = ingredient.PricePerUnit
		current.UpdatedAt = s.now()
		*ingredient = current
		return setJSON(txn, prefixIngredient+current.ID, &current)
	})
}

func (s *Store) DeleteIngredient(_ context.Context, id string) error {
	return s.update(func(txn *badger.Txn) error {
		ok, err := exists(txn, prefixIngredient+id)
		if err != nil {
			return err
		}
		if !ok {
			return inventory.NewNotFound("ingredient", id)
		}
		productIDs, err := productsUsing(txn, []string{id})
		if err != nil {
			return err
		}
		for _, productID := range productIDs {
			if err := deleteRecipeKeys(txn, productID, id); err != nil {
				return err
			}
		}
		return txn.Delete([]byte(prefixIngredient + id))
	})
}

func (s *Store) Movements(_ context.Context, ingredientID string, limit int) ([]models.StockMovement, error) {
	var movements []models.StockMovement
	err := s.view(func(txn *badger.Txn) error {
		var err error
		movements, err = scanJSON[models.StockMovement](txn, prefixMovement+ingredientID+":")
		return err
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(movements)-1; i < j; i, j = i+1, j-1 {
		movements[i], movements[j] = movements[j], movements[i]
	}
	if limit > 0 && len(movements) > limit {
		movements = movements[:limit]
	}
	return movements, nil
}

// Recipes

func (s *Store) UpsertRecipeEntry(_ context.Context, entry *models.RecipeEntry) error {
	if entry.Unit == "" {
		entry.Unit = "g"
	}
	return s.update(func(txn *badger.Txn) error {
		ok, err := exists(txn, prefixProduct+entry.ProductID)
		if err != nil {
			return err
		}
		if !ok {
			return inventory.NewNotFound("product", entry.ProductID)
		}
		ok, err = exists(txn, prefixIngredient+entry.IngredientID)
		if err != nil {
			return err
		}
		if !ok {
			return inventory.NewNotFound("ingredient", entry.IngredientID)
		}

		key := recipeKey(entry.ProductID, entry.IngredientID)
		var current models.RecipeEntry
		err = getJSON(txn, key, &current)
		switch {
		case err == nil:
			entry.ID = current.ID
		case errors.Is(err, badger.ErrKeyNotFound):
			if entry.ID == "" {
				entry.ID = uuid.NewString()
			}
		default:
			return err
		}
		stored := *entry
		stored.Ingredient = nil
		if err := setJSON(txn, key, &stored); err != nil {
			return err
		}
		return txn.Set([]byte(prefixRecipeByIngredient+entry.IngredientID+":"+entry.ProductID), nil)
	})
}

func (s *Store) DeleteRecipeEntry(_ context.Context, productID, ingredientID string) error {
	return s.update(func(txn *badger.Txn) error {
		ok, err := exists(txn, recipeKey(productID, ingredientID))
		if err != nil {
			return err
		}
		if !ok {
			return inventory.NewNotFound("recipe entry", productID+"/"+ingredientID)
		}
		return deleteRecipeKeys(txn, productID, ingredientID)
	})
}

func recipeKey(productID, ingredientID string) string {
	return prefixRecipe + productID + ":" + ingredientID
}

func deleteRecipeKeys(txn *badger.Txn, productID, ingredientID string) error {
	if err := txn.Delete([]byte(recipeKey(productID, ingredientID))); err != nil {
		return err
	}
	return txn.Delete([]byte(prefixRecipeByIngredient + ingredientID + ":" + productID))
}

// Orders

func (s *Store) CreateOrder(_ context.Context, order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	now := s.now()
	order.CreatedAt = now
	order.UpdatedAt = now
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
		if order.Items[i].ID == "" {
			order.Items[i].ID = uuid.NewString()
		}
	}
	return s.update(func(txn *badger.Txn) error {
		stored := *order
		stored.Items = make([]models.OrderItem, len(order.Items))
		for i, item := range order.Items {
			ok, err := exists(txn, prefixProduct+item.ProductID)
			if err != nil {
				return err
			}
			if !ok {
				return inventory.NewNotFound("product", item.ProductID)
			}
			item.Product = nil
			stored.Items[i] = item
			if err := txn.Set([]byte(prefixOrderByProduct+item.ProductID+":"+order.ID), nil); err != nil {
				return err
			}
		}
		if err := txn.Set([]byte(prefixOrderByPhone+order.Phone+":"+order.ID), nil); err != nil {
			return err
		}
		return setJSON(txn, prefixOrder+order.ID, &stored)
	})
}

func (s *Store) ListOrders(_ context.Context, status models.OrderStatus) ([]models.Order, error) {
	var orders []models.Order
	err := s.view(func(txn *badger.Txn) error {
		all, err := scanJSON[models.Order](txn, prefixOrder)
		if err != nil {
			return err
		}
		for _, order := range all {
			if status == "" || order.Status == status {
				orders = append(orders, order)
			}
		}
		return nil
	})
	sortNewestFirst(orders)
	return orders, err
}

func (s *Store) OrdersByPhone(_ context.Context, phone string) ([]models.Order, error) {
	var orders []models.Order
	err := s.view(func(txn *badger.Txn) error {
		var ids []string
		err := scan(txn, prefixOrderByPhone+phone+":", true, func(key string, _ []byte) error {
			ids = append(ids, lastSegment(key))
			return nil
		})
		if err != nil {
			return err
		}
		for _, id := range ids {
			var order models.Order
			if err := getOrder(txn, id, &order); err != nil {
				return err
			}
			orders = append(orders, order)
		}
		return nil
	})
	sortNewestFirst(orders)
	return orders, err
}

func sortNewestFirst(orders []models.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}
