package sequence

import (
	"context"
	"fmt"
	"sync"

	"github.com/orderstack/fulfill/internal/clock"
	invoicedomain "github.com/orderstack/fulfill/internal/invoice/domain"
	"github.com/orderstack/fulfill/internal/invoice/format"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// BulkCounter pre-allocates document numbers for batched issuance.
//
// The counter is process-local and non-durable. It is seeded once per serial
// prefix and year from the persisted maximum, then increments in memory under
// a mutex. A crash between reservation and commit loses reserved numbers (a
// gap), never duplicates them, because the next seed re-reads persisted state.
// Two processes bulk-issuing the same prefix concurrently can still collide;
// single issuance always goes through the locked Allocator.
type BulkCounter struct {
	db  *gorm.DB
	log *zap.Logger
	clk clock.Clock

	mu   sync.Mutex
	next map[string]int64
}

func NewBulkCounter(db *gorm.DB, log *zap.Logger, clk clock.Clock) *BulkCounter {
	return &BulkCounter{
		db:   db,
		log:  log.Named("invoice.sequence.bulk"),
		clk:  clk,
		next: make(map[string]int64),
	}
}

// Next reserves the next document number for the serial prefix.
func (c *BulkCounter) Next(ctx context.Context, serialPrefix string) (string, error) {
	year := c.clk.Now().Year()
	key := fmt.Sprintf("%s%04d", serialPrefix, year)

	c.mu.Lock()
	defer c.mu.Unlock()

	seq, ok := c.next[key]
	if !ok {
		seeded, err := c.seed(ctx, serialPrefix, year)
		if err != nil {
			return "", fmt.Errorf("%w: %v", invoicedomain.ErrAllocationFailed, err)
		}
		seq = seeded
	}
	c.next[key] = seq + 1

	return format.FormatDocumentNumber(serialPrefix, year, seq)
}

func (c *BulkCounter) seed(ctx context.Context, serialPrefix string, year int) (int64, error) {
	var last *string
	err := c.db.WithContext(ctx).
		Raw(`SELECT document_number
		 FROM invoices
		 WHERE document_number LIKE ?
		 ORDER BY document_number DESC
		 LIMIT 1`, fmt.Sprintf("%s%04d%%", serialPrefix, year)).
		Scan(&last).Error
	if err != nil {
		return 0, err
	}
	if last == nil {
		return 1, nil
	}

	seq, err := format.SplitDocumentNumber(*last, serialPrefix, year)
	if err != nil {
		c.log.Warn("malformed document number in series, restarting sequence",
			zap.String("serial_prefix", serialPrefix),
			zap.Int("year", year),
			zap.String("document_number", *last),
			zap.Error(err),
		)
		return 1, nil
	}
	return seq + 1, nil
}
