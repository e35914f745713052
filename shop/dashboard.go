package shop

import (
	"context"

	"github.com/ribon-matchalatte/backend/repository/models"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

type DashboardStats struct {
	Products       int                        `json:"products"`
	ActiveProducts int                        `json:"active_products"`
	Ingredients    int                        `json:"ingredients"`
	LowStock       int                        `json:"low_stock_ingredients"`
	CriticalStock  int                        `json:"critical_stock_ingredients"`
	Orders         int                        `json:"orders"`
	OrdersByStatus map[models.OrderStatus]int `json:"orders_by_status"`
	Revenue        decimal.Decimal            `json:"revenue"`
	CupsSold       int                        `json:"cups_sold"`
	AwaitingClose  int                        `json:"reconciled_not_completed"`
}

// Dashboard aggregates catalog, stock and sales figures. Failed orders count
// toward neither revenue nor cups sold. AwaitingClose counts orders whose
// ingredients were deducted by an admin reconcile but that are not Completed yet.
func (s *Service) Dashboard(ctx context.Context) (*DashboardStats, error) {
	var (
		products    []models.Product
		ingredients []models.Ingredient
		orders      []models.Order
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		products, err = s.store.ListProducts(ctx, false)
		return err
	})
	g.Go(func() (err error) {
		ingredients, err = s.store.ListIngredients(ctx)
		return err
	})
	g.Go(func() (err error) {
		orders, err = s.store.ListOrders(ctx, "")
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := &DashboardStats{
		Products:       len(products),
		Ingredients:    len(ingredients),
		Orders:         len(orders),
		OrdersByStatus: make(map[models.OrderStatus]int),
		Revenue:        decimal.Zero,
	}
	for _, p := range products {
		if p.IsActive {
			stats.ActiveProducts++
		}
	}
	for _, ingredient := range ingredients {
		switch s.Level(ingredient.StockQuantity) {
		case LevelCritical:
			stats.CriticalStock++
			stats.LowStock++
		case LevelLow:
			stats.LowStock++
		}
	}
	for _, order := range orders {
		stats.OrdersByStatus[order.Status]++
		if order.Status == models.OrderFailed {
			continue
		}
		stats.Revenue = stats.Revenue.Add(order.TotalPrice)
		for _, item := range order.Items {
			stats.CupsSold += item.Quantity
		}
		if order.ReconciledAt != nil && order.Status != models.OrderCompleted {
			stats.AwaitingClose++
		}
	}
	return stats, nil
}
