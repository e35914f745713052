package shop

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ribon-matchalatte/backend/inventory"
	"github.com/ribon-matchalatte/backend/repository/models"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Vietnamese mobile numbers, local (0xx) or with the 84 country code
var phonePattern = regexp.MustCompile(`^(0[35789])\d{8}$|^(84[35789])\d{8}$`)

// NormalizePhone strips every non-digit character
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidPhone reports whether phone is a Vietnamese mobile number
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(NormalizePhone(phone))
}

type CheckoutItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CheckoutRequest struct {
	Items         []CheckoutItem       `json:"items"`
	Address       string               `json:"address"`
	Phone         string               `json:"phone"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
	Notes         string               `json:"notes"`
	UserID        *string              `json:"user_id,omitempty"`
}

func (r CheckoutRequest) validate() error {
	if len(r.Items) == 0 {
		return newValidationError("cart is empty")
	}
	for _, item := range r.Items {
		if item.ProductID == "" {
			return newValidationError("product_id is required")
		}
		if item.Quantity <= 0 {
			return newValidationError(fmt.Sprintf("quantity for %s must be positive", item.ProductID))
		}
	}
	if strings.TrimSpace(r.Address) == "" {
		return newValidationError("address is required")
	}
	if !ValidPhone(r.Phone) {
		return newValidationError("phone must be a valid Vietnamese mobile number")
	}
	switch r.PaymentMethod {
	case models.PaymentCash, models.PaymentBankTransfer:
	default:
		return newValidationError(fmt.Sprintf("unsupported payment method %q", r.PaymentMethod))
	}
	return nil
}

// Checkout places a Pending order. Prices are captured from the catalog at this
// moment. Stock is not deducted until the order is completed.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*models.Order, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	ids := lo.Uniq(lo.Map(req.Items, func(item CheckoutItem, _ int) string { return item.ProductID }))
	products, err := s.store.ProductsByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	catalog := make(map[string]models.Product, len(products))
	for _, p := range products {
		catalog[p.ID] = p
	}

	phone := NormalizePhone(req.Phone)
	order := &models.Order{
		UserID:             req.UserID,
		CustomerIdentifier: phone,
		Status:             models.OrderPending,
		Address:            strings.TrimSpace(req.Address),
		Phone:              phone,
		PaymentMethod:      req.PaymentMethod,
		Notes:              req.Notes,
		TotalPrice:         decimal.Zero,
	}
	if req.UserID != nil {
		order.CustomerIdentifier = *req.UserID
	}
	for _, item := range req.Items {
		product, ok := catalog[item.ProductID]
		if !ok {
			return nil, inventory.NewNotFound("product", item.ProductID)
		}
		if !product.IsActive {
			return nil, fmt.Errorf("%w: %s", ErrProductUnavailable, product.Name)
		}
		order.Items = append(order.Items, models.OrderItem{
			ProductID: product.ID,
			Quantity:  item.Quantity,
			Price:     product.Price,
		})
		order.TotalPrice = order.TotalPrice.Add(product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	s.logger.Info("Order placed", "order_id", order.ID, "items", len(order.Items), "total", order.TotalPrice.String())
	return order, nil
}

// TrackOrders returns the orders placed with a phone number, newest first
func (s *Service) TrackOrders(ctx context.Context, phone string) ([]models.Order, error) {
	if !ValidPhone(phone) {
		return nil, newValidationError("phone must be a valid Vietnamese mobile number")
	}
	return s.store.OrdersByPhone(ctx, NormalizePhone(phone))
}
