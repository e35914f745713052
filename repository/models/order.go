package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "Pending"
	OrderPreparing OrderStatus = "Preparing"
	OrderShipping  OrderStatus = "Shipping"
	OrderDelivered OrderStatus = "Delivered"
	OrderCompleted OrderStatus = "Completed"
	OrderFailed    OrderStatus = "Failed"
)

// Valid reports whether s is one of the known order statuses
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderPreparing, OrderShipping, OrderDelivered, OrderCompleted, OrderFailed:
		return true
	}
	return false
}

// Terminal reports whether no further status change may follow s
func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderFailed
}

type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "Cash"
	PaymentBankTransfer PaymentMethod = "Bank Transfer"
)

// Order is placed at checkout by a guest or a signed-in customer
type Order struct {
	ID                 string          `gorm:"column:id;primaryKey;type:varchar(50)" json:"id"`
	UserID             *string         `gorm:"column:user_id;type:varchar(50);index" json:"user_id,omitempty"`
	CustomerIdentifier string          `gorm:"column:customer_identifier;type:varchar(100);not null" json:"customer_identifier"`
	Status             OrderStatus     `gorm:"column:status;type:varchar(20);not null;default:'Pending';index" json:"status"`
	TotalPrice         decimal.Decimal `gorm:"column:total_price;type:numeric(14,2);not null" json:"total_price"`
	Address            string          `gorm:"column:address;type:text;not null" json:"address"`
	Phone              string          `gorm:"column:phone;type:varchar(20);not null;index" json:"phone"`
	PaymentMethod      PaymentMethod   `gorm:"column:payment_method;type:varchar(20);not null" json:"payment_method"`
	Notes              string          `gorm:"column:notes;type:text" json:"notes"`
	ReconciledAt       *time.Time      `gorm:"column:reconciled_at" json:"reconciled_at,omitempty"` // Null until ingredients are deducted
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`

	// Relationships
	Items []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
}

func (Order) TableName() string { return "orders" }

// OrderItem is a product line of an order with the price captured at checkout
type OrderItem struct {
	ID        string          `gorm:"column:id;primaryKey;type:varchar(50)" json:"id"`
	OrderID   string          `gorm:"column:order_id;type:varchar(50);not null;index" json:"order_id"`
	ProductID string          `gorm:"column:product_id;type:varchar(50);not null;index" json:"product_id"`
	Product   *Product        `gorm:"foreignKey:ProductID;constraint:OnDelete:RESTRICT" json:"product,omitempty"`
	Quantity  int             `gorm:"column:quantity;not null;check:chk_order_items_quantity_positive,quantity > 0" json:"quantity"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(14,2);not null" json:"price"`
}

func (OrderItem) TableName() string { return "order_items" }
