package shop

import (
	"context"
	"fmt"

	"github.com/ribon-matchalatte/backend/inventory"
	"github.com/ribon-matchalatte/backend/repository/models"
)

func (s *Service) ListOrders(ctx context.Context, status models.OrderStatus) ([]models.Order, error) {
	if status != "" && !status.Valid() {
		return nil, newValidationError(fmt.Sprintf("unknown order status %q", status))
	}
	return s.store.ListOrders(ctx, status)
}

func (s *Service) Order(ctx context.Context, id string) (*models.Order, error) {
	return s.store.Order(ctx, id)
}

// UpdateStatus moves an order to a new status. Completed and Failed are final.
// Completion goes through inventory.CompleteOrder so the ingredients are deducted
// in the same transaction; if that fails the status is left unchanged. An order
// whose ingredients were already deducted cannot be marked Failed.
func (s *Service) UpdateStatus(ctx context.Context, id string, to models.OrderStatus) (*models.Order, error) {
	if !to.Valid() {
		return nil, newValidationError(fmt.Sprintf("unknown order status %q", to))
	}
	order, err := s.store.Order(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status == to {
		return order, nil
	}
	if order.Status.Terminal() {
		return nil, fmt.Errorf("%w: order %s is already %s", inventory.ErrInvalidTransition, id, order.Status)
	}

	if to == models.OrderCompleted {
		if _, err := s.inventory.CompleteOrder(ctx, id); err != nil {
			return nil, err
		}
	} else if err := s.store.UpdateOrderStatus(ctx, id, order.Status, to); err != nil {
		return nil, err
	}
	s.logger.Info("Order status changed", "order_id", id, "from", order.Status, "to", to)
	return s.store.Order(ctx, id)
}
