package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// IssueOptions tune a single issuance.
type IssueOptions struct {
	// Bulk selects the bulk serial variants during profile resolution.
	Bulk bool
}

// BulkResult reports per-order outcomes of a bulk issuance. Partial success
// is expected and reconciled item by item.
type BulkResult struct {
	Succeeded []Invoice
	Failed    []BulkFailure
}

// BulkFailure is one order that did not end in a SUCCESS invoice.
type BulkFailure struct {
	OrderID snowflake.ID
	Err     string
}

// Service is the invoice lifecycle contract exposed to collaborators.
type Service interface {
	QueueInvoice(ctx context.Context, orderID snowflake.ID, opts IssueOptions) (Invoice, error)
	IssueInvoice(ctx context.Context, orderID snowflake.ID, opts IssueOptions) (Invoice, error)
	RetryInvoice(ctx context.Context, invoiceID snowflake.ID) (Invoice, error)
	IssueBulk(ctx context.Context, orderIDs []snowflake.ID, opts IssueOptions) (BulkResult, error)
	IssueRefundVoucher(ctx context.Context, orderID snowflake.ID) (Invoice, error)
	GetInvoice(ctx context.Context, invoiceID snowflake.ID) (Invoice, error)
	GetInvoiceByOrder(ctx context.Context, orderID snowflake.ID) (Invoice, error)
	IsRegisteredRecipient(ctx context.Context, taxID string) bool
}

var (
	ErrDuplicateInvoice    = errors.New("invoice_already_issued")
	ErrInvoiceNotFound     = errors.New("invoice_not_found")
	ErrInvoiceNotRetriable = errors.New("invoice_not_retriable")
	ErrAllocationFailed    = errors.New("sequence_allocation_failed")
	ErrMissingSerial       = errors.New("store_serial_not_configured")
)
