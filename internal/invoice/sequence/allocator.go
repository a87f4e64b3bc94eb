// Package sequence allocates fiscal document numbers.
//
// Numbers are derived, not stored in a counter table: the allocator reads the
// highest existing document number sharing a serial prefix and year, under an
// exclusive row lock held by the caller's transaction, and increments it. The
// lock must stay held through the insert that consumes the number, otherwise
// two transactions can observe the same maximum.
package sequence

import (
	"context"
	"fmt"

	"github.com/orderstack/fulfill/internal/clock"
	invoicedomain "github.com/orderstack/fulfill/internal/invoice/domain"
	"github.com/orderstack/fulfill/internal/invoice/format"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Allocator struct {
	log *zap.Logger
	clk clock.Clock
}

func NewAllocator(log *zap.Logger, clk clock.Clock) *Allocator {
	return &Allocator{
		log: log.Named("invoice.sequence"),
		clk: clk,
	}
}

// Allocate returns the next unused document number for the serial prefix.
// It must be called inside the transaction that will insert the row consuming
// the number; the row lock is scoped to that transaction.
func (a *Allocator) Allocate(ctx context.Context, tx *gorm.DB, serialPrefix string) (string, error) {
	year := a.clk.Now().Year()

	last, err := a.lastNumber(ctx, tx, serialPrefix, year)
	if err != nil {
		return "", fmt.Errorf("%w: %v", invoicedomain.ErrAllocationFailed, err)
	}

	next := int64(1)
	if last != "" {
		seq, err := format.SplitDocumentNumber(last, serialPrefix, year)
		if err != nil {
			// Recoverable degraded mode: a malformed suffix restarts the
			// series rather than blocking issuance.
			a.log.Warn("malformed document number in series, restarting sequence",
				zap.String("serial_prefix", serialPrefix),
				zap.Int("year", year),
				zap.String("document_number", last),
				zap.Error(err),
			)
		} else {
			next = seq + 1
		}
	}

	return format.FormatDocumentNumber(serialPrefix, year, next)
}

func (a *Allocator) lastNumber(ctx context.Context, tx *gorm.DB, serialPrefix string, year int) (string, error) {
	query := `SELECT document_number
		 FROM invoices
		 WHERE document_number LIKE ?
		 ORDER BY document_number DESC
		 LIMIT 1` + lockClause(tx)

	var last *string
	err := tx.WithContext(ctx).
		Raw(query, fmt.Sprintf("%s%04d%%", serialPrefix, year)).
		Scan(&last).Error
	if err != nil {
		return "", err
	}
	if last == nil {
		return "", nil
	}
	return *last, nil
}

// lockClause returns the exclusive read lock suffix. SQLite has no FOR UPDATE
// and serializes writers at the connection level, so the clause is elided there.
func lockClause(tx *gorm.DB) string {
	if tx.Dialector.Name() == "sqlite" {
		return ""
	}
	return " FOR UPDATE"
}
