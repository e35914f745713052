package repository

import (
	"context"
	"fmt"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ribon-matchalatte/backend/repository/models"
	"github.com/ribon-matchalatte/backend/shop"
	"github.com/shopspring/decimal"
)

// Seed loads the starter menu into an empty store. It works against any shop.Store
// so the embedded and the PostgreSQL deployments start from the same catalog.
func Seed(ctx context.Context, store shop.Store, logger cmtlog.Logger) error {
	existing, err := store.ListIngredients(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		logger.Info("Seed data already exists, skipping...")
		return nil
	}

	logger.Info("Seeding database with initial data...")

	categories := []models.Category{
		{ID: "CAT-MATCHA", Name: "Matcha"},
		{ID: "CAT-COFFEE", Name: "Coffee"},
		{ID: "CAT-TEA", Name: "Tea"},
	}
	for i := range categories {
		if err := store.CreateCategory(ctx, &categories[i]); err != nil {
			return fmt.Errorf("error creating category %s: %w", categories[i].ID, err)
		}
	}

	ingredients := []models.Ingredient{
		{ID: "ING-MATCHA", Name: "Matcha Powder", Type: "powder", StockQuantity: g(1000), PricePerUnit: g(900)},
		{ID: "ING-SUGAR", Name: "Cane Sugar", Type: "sweetener", StockQuantity: g(2000), PricePerUnit: g(25)},
		{ID: "ING-MILK", Name: "Fresh Milk", Type: "dairy", StockQuantity: g(5000), PricePerUnit: g(40)},
		{ID: "ING-OATMILK", Name: "Oat Milk", Type: "dairy", StockQuantity: g(40), PricePerUnit: g(90)},
		{ID: "ING-ESPRESSO", Name: "Espresso Beans", Type: "coffee", StockQuantity: g(1500), PricePerUnit: g(600)},
		{ID: "ING-JASMINE", Name: "Jasmine Tea Leaves", Type: "tea", StockQuantity: g(300), PricePerUnit: g(450)},
		{ID: "ING-ICE", Name: "Ice", Type: "other", StockQuantity: g(20000), PricePerUnit: g(1)},
	}
	for i := range ingredients {
		if err := store.CreateIngredient(ctx, &ingredients[i]); err != nil {
			return fmt.Errorf("error creating ingredient %s: %w", ingredients[i].ID, err)
		}
	}

	products := []struct {
		product models.Product
		recipe  map[string]int64
	}{
		{
			models.Product{ID: "PRD-MATCHA-LATTE", Name: "Matcha Latte", Price: g(55000), StockQuantity: 100, CategoryID: ptrString("CAT-MATCHA")},
			map[string]int64{"ING-MATCHA": 5, "ING-MILK": 150, "ING-SUGAR": 10, "ING-ICE": 100},
		},
		{
			models.Product{ID: "PRD-ICED-MATCHA", Name: "Iced Matcha", Price: g(45000), StockQuantity: 100, CategoryID: ptrString("CAT-MATCHA")},
			map[string]int64{"ING-MATCHA": 6, "ING-SUGAR": 10, "ING-ICE": 150},
		},
		{
			// inactive until oat milk is restocked
			models.Product{ID: "PRD-OAT-MATCHA", Name: "Oat Matcha Latte", Price: g(62000), StockQuantity: 50, CategoryID: ptrString("CAT-MATCHA")},
			map[string]int64{"ING-MATCHA": 5, "ING-OATMILK": 150},
		},
		{
			models.Product{ID: "PRD-ESPRESSO", Name: "Espresso", Price: g(35000), StockQuantity: 100, CategoryID: ptrString("CAT-COFFEE")},
			map[string]int64{"ING-ESPRESSO": 18},
		},
		{
			models.Product{ID: "PRD-JASMINE", Name: "Jasmine Milk Tea", Price: g(40000), StockQuantity: 80, CategoryID: ptrString("CAT-TEA")},
			map[string]int64{"ING-JASMINE": 8, "ING-MILK": 120, "ING-SUGAR": 12},
		},
	}
	for i := range products {
		p := &products[i]
		if err := store.CreateProduct(ctx, &p.product); err != nil {
			return fmt.Errorf("error creating product %s: %w", p.product.ID, err)
		}
		for ingredientID, quantity := range p.recipe {
			entry := models.RecipeEntry{ProductID: p.product.ID, IngredientID: ingredientID, Quantity: g(quantity)}
			if err := store.UpsertRecipeEntry(ctx, &entry); err != nil {
				return fmt.Errorf("error creating recipe entry %s/%s: %w", p.product.ID, ingredientID, err)
			}
		}
	}

	logger.Info("Database seeding completed successfully")
	return nil
}

func g(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func ptrString(s string) *string {
	return &s
}
