// Package domain defines the contract the invoicing core requires from the
// external fiscal platform.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Party identifies a counterpart on a fiscal document.
type Party struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	TaxID       string `json:"tax_id"`
	Address     string `json:"address,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
}

// DocumentLine is one line of the canonical document payload. UnitPrice
// already carries its proportional share of any order-level discount.
type DocumentLine struct {
	SKU       string  `json:"sku"`
	Name      string  `json:"name"`
	Quantity  int64   `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	VATRate   float64 `json:"vat_rate"`
}

// DocumentRequest is the canonical issuance payload sent to the gateway.
// VoucherNumber is the document number with the serial prefix stripped.
type DocumentRequest struct {
	DocumentNumber string         `json:"document_number"`
	VoucherNumber  string         `json:"voucher_number"`
	SerialPrefix   string         `json:"serial_prefix"`
	Kind           string         `json:"kind"`
	IssueDate      time.Time      `json:"issue_date"`
	Buyer          Party          `json:"buyer"`
	PartyCode      string         `json:"party_code"`
	AccountCode    string         `json:"account_code"`
	ExportExempt   bool           `json:"export_exempt"`
	Lines          []DocumentLine `json:"lines"`
	GrossTotal     float64        `json:"gross_total"`
	Discount       float64        `json:"discount"`
	NetTotal       float64        `json:"net_total"`
}

// DocumentResult is the per-document outcome reported by the gateway.
type DocumentResult struct {
	VoucherNumber  string `json:"voucher_number"`
	Success        bool   `json:"success"`
	ExternalID     string `json:"external_id"`
	TransactionRef string `json:"transaction_ref"`
	Message        string `json:"message"`
}

// Client is the fiscal platform capability surface.
//
// CheckTaxpayer callers are required to collapse any error into "not
// registered"; the fail-open stance lives at the call site, not here.
type Client interface {
	CheckTaxpayer(ctx context.Context, taxID string) (bool, error)
	UpsertParty(ctx context.Context, party Party) error
	IssueDocument(ctx context.Context, req DocumentRequest) (DocumentResult, error)
	IssueBatch(ctx context.Context, reqs []DocumentRequest) ([]DocumentResult, error)
}

// CallLog is one outbound gateway call, recorded regardless of outcome.
// Rows are append-only and never mutated.
type CallLog struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	Provider   string       `gorm:"type:text;not null"`
	CallType   string       `gorm:"type:text;not null"`
	Endpoint   string       `gorm:"type:text;not null"`
	Method     string       `gorm:"type:text;not null"`
	Request    string       `gorm:"type:text"`
	Response   string       `gorm:"type:text"`
	StatusCode int          `gorm:"not null;default:0"`
	Success    bool         `gorm:"not null;default:false"`
	ErrorText  string       `gorm:"type:text;not null;default:''"`
	DurationMS int64        `gorm:"not null;default:0"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CallLog) TableName() string { return "fiscal_call_logs" }

// GatewayError is a transport or application failure reported by the fiscal
// platform. Invoices that hit one persist as ERROR and stay retriable.
type GatewayError struct {
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fiscal gateway error (status %d): %s", e.StatusCode, e.Message)
	}
	return "fiscal gateway error: " + e.Message
}

var (
	// ErrMissingCredentials means the client cannot authenticate. Fatal,
	// surfaced immediately, never retried by this layer.
	ErrMissingCredentials = errors.New("fiscal_credentials_missing")
	// ErrPartyExists is the idempotent "already registered" upsert outcome.
	ErrPartyExists = errors.New("fiscal_party_exists")
)
