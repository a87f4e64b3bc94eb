// Package domain contains persistence models and contracts for fiscal invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "PENDING"
	InvoiceStatusSuccess InvoiceStatus = "SUCCESS"
	InvoiceStatusError   InvoiceStatus = "ERROR"
)

// DocumentKind classifies the fiscal document issued for an order.
type DocumentKind string

const (
	DocumentKindInvoice        DocumentKind = "INVOICE"
	DocumentKindReceipt        DocumentKind = "RECEIPT"
	DocumentKindExport         DocumentKind = "EXPORT"
	DocumentKindExpenseVoucher DocumentKind = "EXPENSE_VOUCHER"
)

// Invoice is one fiscal document attempt for one order (or one return).
//
// Customer fields are snapshots taken at issuance time; they must not change
// if the order record is edited later. Request and response payloads are
// stored verbatim for audit and replay.
type Invoice struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	OrderID     snowflake.ID `gorm:"not null;index"`
	OrderNumber string       `gorm:"type:text;not null;index"`
	StoreID     snowflake.ID `gorm:"not null;index"`

	Status InvoiceStatus `gorm:"type:text;not null;default:'PENDING'"`
	Kind   DocumentKind  `gorm:"type:text;not null"`

	DocumentNumber     *string `gorm:"type:text;uniqueIndex"`
	ExternalDocumentID *string `gorm:"type:text"`
	TransactionRef     *string `gorm:"type:text"`

	SerialPrefix string `gorm:"type:text;not null"`
	PartyCode    string `gorm:"type:text;not null"`
	AccountCode  string `gorm:"type:text;not null"`
	TaxID        string `gorm:"type:text;not null"`
	ExportExempt bool   `gorm:"not null;default:false"`

	CustomerName    string `gorm:"type:text;not null"`
	CustomerAddress string `gorm:"type:text"`

	RequestPayload  datatypes.JSON `gorm:"type:jsonb"`
	ResponsePayload datatypes.JSON `gorm:"type:jsonb"`
	ErrorText       string         `gorm:"type:text;not null;default:''"`

	IssuedAt  *time.Time `gorm:""`
	CreatedAt time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// Terminal reports whether the invoice reached a final state. SUCCESS is
// immutable; ERROR may be retried but never silently re-queued.
func (i Invoice) Terminal() bool {
	return i.Status == InvoiceStatusSuccess || i.Status == InvoiceStatusError
}
