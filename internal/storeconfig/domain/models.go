// Package domain holds per-sales-channel fiscal configuration.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// StoreFiscalConfig is immutable administrative configuration, except for
// NextCardCode which the invoicing core increments on successful issuance.
type StoreFiscalConfig struct {
	ID      snowflake.ID `gorm:"primaryKey"`
	StoreID snowflake.ID `gorm:"not null;uniqueIndex"`

	InvoiceSerial     string `gorm:"type:text;not null"`
	InvoiceBulkSerial string `gorm:"type:text;not null"`
	ReceiptSerial     string `gorm:"type:text;not null"`
	ReceiptBulkSerial string `gorm:"type:text;not null"`
	ExportSerial      string `gorm:"type:text;not null;default:''"`
	ExportBulkSerial  string `gorm:"type:text;not null;default:''"`

	InvoicePartyCode      string `gorm:"type:text;not null"`
	ReceiptPartyCode      string `gorm:"type:text;not null"`
	BankTransferPartyCode string `gorm:"type:text;not null;default:''"`
	InvoiceAccountCode    string `gorm:"type:text;not null"`
	ReceiptAccountCode    string `gorm:"type:text;not null"`

	SupportsExport bool `gorm:"not null;default:false"`
	ExportEnabled  bool `gorm:"not null;default:false"`

	NextCardCode int64 `gorm:"not null;default:1"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (StoreFiscalConfig) TableName() string { return "store_fiscal_configs" }

// Serial returns the serial prefix for a document kind, honoring the bulk variant.
func (c StoreFiscalConfig) Serial(kind string, bulk bool) string {
	switch kind {
	case SerialExport:
		if bulk {
			return c.ExportBulkSerial
		}
		return c.ExportSerial
	case SerialReceipt:
		if bulk {
			return c.ReceiptBulkSerial
		}
		return c.ReceiptSerial
	default:
		if bulk {
			return c.InvoiceBulkSerial
		}
		return c.InvoiceSerial
	}
}

const (
	SerialInvoice = "invoice"
	SerialReceipt = "receipt"
	SerialExport  = "export"
)

// Repository provides store fiscal configuration lookups.
type Repository interface {
	GetByStoreID(ctx context.Context, storeID snowflake.ID) (*StoreFiscalConfig, error)
	// IncrementNextCardCode consumes one customer card code. Called only after
	// a successful standard-invoice issuance.
	IncrementNextCardCode(ctx context.Context, storeID snowflake.ID) error
}

var (
	ErrConfigNotFound = errors.New("store_fiscal_config_not_found")
)
