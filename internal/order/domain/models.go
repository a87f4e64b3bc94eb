// Package domain defines the order read model consumed by invoicing.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// OrderStatus values the invoicing core cares about.
const (
	StatusShipped  = "SHIPPED"
	StatusInvoiced = "INVOICED"
	StatusReturned = "RETURNED"
)

// Order is the persisted order record owned by the fulfillment layer.
type Order struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	OrderNumber   string       `gorm:"type:text;not null;index"`
	StoreID       snowflake.ID `gorm:"not null;index"`
	Marketplace   string       `gorm:"type:text;not null"`
	Status        string       `gorm:"type:text;not null"`
	CustomerName  string       `gorm:"type:text;not null"`
	Address       string       `gorm:"type:text"`
	CountryCode   string       `gorm:"type:text;not null;default:''"`
	NationalID    string       `gorm:"type:text;not null;default:''"`
	TaxNumber     string       `gorm:"type:text;not null;default:''"`
	PaymentMethod string       `gorm:"type:text;not null;default:''"`
	GrossTotal    float64      `gorm:"not null;default:0"`
	Discount      float64      `gorm:"not null;default:0"`
	IsExport      bool         `gorm:"not null;default:false"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`

	Lines []OrderLine `gorm:"foreignKey:OrderID"`
}

// TableName sets the database table name.
func (Order) TableName() string { return "orders" }

// OrderLine is one purchasable row on an order.
type OrderLine struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	OrderID   snowflake.ID `gorm:"not null;index"`
	SKU       string       `gorm:"type:text;not null"`
	Name      string       `gorm:"type:text;not null"`
	Quantity  int64        `gorm:"not null"`
	UnitPrice float64      `gorm:"not null"`
	VATRate   float64      `gorm:"not null;default:0"`
}

// TableName sets the database table name.
func (OrderLine) TableName() string { return "order_lines" }

// Gross is the undiscounted line total.
func (l OrderLine) Gross() float64 {
	return l.UnitPrice * float64(l.Quantity)
}

// Source is the order collaborator contract consumed by the invoicing core.
type Source interface {
	GetOrder(ctx context.Context, id snowflake.ID) (*Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*Order, error)
	UpdateOrderStatus(ctx context.Context, id snowflake.ID, status string) error
}

// Notifier pushes order-level events back to the originating marketplace.
// Implementations are best-effort; callers must tolerate failure.
type Notifier interface {
	NotifyInvoiced(ctx context.Context, order *Order, documentNumber string) error
}

var (
	ErrOrderNotFound = errors.New("order_not_found")
)
