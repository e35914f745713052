package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/ribon-matchalatte/backend/inventory"
	"github.com/ribon-matchalatte/backend/repository/models"
	"github.com/ribon-matchalatte/backend/shop"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ shop.Store = (*Repository)(nil)

// Products

func (r *Repository) ListProducts(ctx context.Context, activeOnly bool) ([]models.Product, error) {
	var products []models.Product
	query := r.db.WithContext(ctx).Preload("Category").Order("name")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	err := query.Find(&products).Error
	return products, translateError(err, "product", "")
}

func (r *Repository) Product(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Category").
		Preload("Recipe").
		Preload("Recipe.Ingredient").
		Where("id = ?", id).
		First(&product).Error
	if err != nil {
		return nil, translateError(err, "product", id)
	}
	return &product, nil
}

func (r *Repository) CreateProduct(ctx context.Context, product *models.Product) error {
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	product.IsActive = false
	if err := r.checkCategory(ctx, product.CategoryID); err != nil {
		return err
	}
	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(product).Error
	return translateError(err, "product", product.ID)
}

func (r *Repository) UpdateProduct(ctx context.Context, product *models.Product) error {
	if err := r.checkCategory(ctx, product.CategoryID); err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", product.ID).
		Select("name", "description", "price", "image_url", "stock_quantity", "category_id").
		Updates(product)
	if result.Error != nil {
		return translateError(result.Error, "product", product.ID)
	}
	if result.RowsAffected == 0 {
		return inventory.NewNotFound("product", product.ID)
	}
	current, err := r.Product(ctx, product.ID)
	if err != nil {
		return err
	}
	*product = *current
	return nil
}

func (r *Repository) checkCategory(ctx context.Context, categoryID *string) error {
	if categoryID == nil {
		return nil
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Category{}).Where("id = ?", *categoryID).Count(&count).Error
	if err != nil {
		return translateError(err, "category", *categoryID)
	}
	if count == 0 {
		return inventory.NewNotFound("category", *categoryID)
	}
	return nil
}

func (r *Repository) DeleteProduct(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var referenced int64
		if err := tx.Model(&models.OrderItem{}).Where("product_id = ?", id).Count(&referenced).Error; err != nil {
			return translateError(err, "product", id)
		}
		if referenced > 0 {
			return fmt.Errorf("%w: product %s has orders", inventory.ErrInUse, id)
		}
		if err := tx.Where("product_id = ?", id).Delete(&models.RecipeEntry{}).Error; err != nil {
			return translateError(err, "product", id)
		}
		if err := tx.Where("product_id = ?", id).Delete(&models.Review{}).Error; err != nil {
			return translateError(err, "product", id)
		}
		result := tx.Where("id = ?", id).Delete(&models.Product{})
		if result.Error != nil {
			return translateError(result.Error, "product", id)
		}
		if result.RowsAffected == 0 {
			return inventory.NewNotFound("product", id)
		}
		return nil
	})
}

// Categories

func (r *Repository) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := r.db.WithContext(ctx).Order("name").Find(&categories).Error
	return categories, translateError(err, "category", "")
}

func (r *Repository) CreateCategory(ctx context.Context, category *models.Category) error {
	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	var taken int64
	err := r.db.WithContext(ctx).Model(&models.Category{}).Where("LOWER(name) = LOWER(?)", category.Name).Count(&taken).Error
	if err != nil {
		return translateError(err, "category", category.ID)
	}
	if taken > 0 {
		return fmt.Errorf("%w: category %q", inventory.ErrDuplicate, category.Name)
	}
	return translateError(r.db.WithContext(ctx).Create(category).Error, "category", category.ID)
}

// Ingredients

func (r *Repository) ListIngredients(ctx context.Context) ([]models.Ingredient, error) {
	var ingredients []models.Ingredient
	err := r.db.WithContext(ctx).Order("name").Find(&ingredients).Error
	return ingredients, translateError(err, "ingredient", "")
}

func (r *Repository) CreateIngredient(ctx context.Context, ingredient *models.Ingredient) error {
	if ingredient.ID == "" {
		ingredient.ID = uuid.NewString()
	}
	if ingredient.StockQuantity.IsNegative() {
		return inventory.ErrInvalidAmount
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(ingredient).Error; err != nil {
			return translateError(err, "ingredient", ingredient.ID)
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
		}
		return translateError(tx.Create(&movement).Error, "stock movement", "")
	})
}

func (r *Repository) UpdateIngredientDetails(ctx context.Context, ingredient *models.Ingredient) error {
	result := r.db.WithContext(ctx).Model(&models.Ingredient{}).
		Where("id = ?", ingredient.ID).
		Select("name", "type", "price_per_unit").
		Updates(ingredient)
	if result.Error != nil {
		return translateError(result.Error, "ingredient", ingredient.ID)
	}
	if result.RowsAffected == 0 {
		return inventory.NewNotFound("ingredient", ingredient.ID)
	}
	return translateError(r.db.WithContext(ctx).Where("id = ?", ingredient.ID).First(ingredient).Error, "ingredient", ingredient.ID)
}

func (r *Repository) DeleteIngredient(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("ingredient_id = ?", id).Delete(&models.RecipeEntry{}).Error; err != nil {
			return translateError(err, "ingredient", id)
		}
		result := tx.Where("id = ?", id).Delete(&models.Ingredient{})
		if result.Error != nil {
			return translateError(result.Error, "ingredient", id)
		}
		if result.RowsAffected == 0 {
			return inventory.NewNotFound("ingredient", id)
		}
		return nil
	})
}

func (r *Repository) Movements(ctx context.Context, ingredientID string, limit int) ([]models.StockMovement, error) {
	var movements []models.StockMovement
	query := r.db.WithContext(ctx).Where("ingredient_id = ?", ingredientID).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&movements).Error
	return movements, translateError(err, "ingredient", ingredientID)
}

// Recipes

func (r *Repository) UpsertRecipeEntry(ctx context.Context, entry *models.RecipeEntry) error {
	if entry.Unit == "" {
		entry.Unit = "g"
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		refs := []struct{ entity, table, id string }{
			{"product", models.Product{}.TableName(), entry.ProductID},
			{"ingredient", models.Ingredient{}.TableName(), entry.IngredientID},
		}
		for _, ref := range refs {
			var count int64
			if err := tx.Table(ref.table).Where("id = ?", ref.id).Count(&count).Error; err != nil {
				return translateError(err, ref.entity, ref.id)
			}
			if count == 0 {
				return inventory.NewNotFound(ref.entity, ref.id)
			}
		}

		var current models.RecipeEntry
		err := tx.Where("product_id = ? AND ingredient_id = ?", entry.ProductID, entry.IngredientID).First(&current).Error
		switch {
		case err == nil:
			entry.ID = current.ID
			err = tx.Model(&current).Select("quantity", "unit").Updates(entry).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			if entry.ID == "" {
				entry.ID = uuid.NewString()
			}
			err = tx.Omit(clause.Associations).Create(entry).Error
		}
		return translateError(err, "recipe entry", entry.ProductID+"/"+entry.IngredientID)
	})
}

func (r *Repository) DeleteRecipeEntry(ctx context.Context, productID, ingredientID string) error {
	result := r.db.WithContext(ctx).
		Where("product_id = ? AND ingredient_id = ?", productID, ingredientID).
		Delete(&models.RecipeEntry{})
	if result.Error != nil {
		return translateError(result.Error, "recipe entry", productID+"/"+ingredientID)
	}
	if result.RowsAffected == 0 {
		return inventory.NewNotFound("recipe entry", productID+"/"+ingredientID)
	}
	return nil
}

// Orders

func (r *Repository) CreateOrder(ctx context.Context, order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
		order.Items[i].Product = nil
		if order.Items[i].ID == "" {
			order.Items[i].ID = uuid.NewString()
		}
	}
	dbTx := r.db.WithContext(ctx).Begin()
	if err := dbTx.Omit("Items").Create(order).Error; err != nil {
		dbTx.Rollback()
		return translateError(err, "order", order.ID)
	}
	if len(order.Items) > 0 {
		if err := dbTx.Create(&order.Items).Error; err != nil {
			dbTx.Rollback()
			return translateError(err, "product", "")
		}
	}
	return translateError(dbTx.Commit().Error, "order", order.ID)
}

func (r *Repository) ListOrders(ctx context.Context, status models.OrderStatus) ([]models.Order, error) {
	var orders []models.Order
	query := r.db.WithContext(ctx).Preload("Items").Order("created_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Find(&orders).Error
	return orders, translateError(err, "order", "")
}

func (r *Repository) OrdersByPhone(ctx context.Context, phone string) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Items.Product").
		Where("phone = ?", phone).
		Order("created_at DESC").
		Find(&orders).Error
	return orders, translateError(err, "order", "")
}
