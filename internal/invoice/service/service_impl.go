package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/orderstack/fulfill/internal/audit/domain"
	"github.com/orderstack/fulfill/internal/clock"
	"github.com/orderstack/fulfill/internal/invoice/builder"
	invoicedomain "github.com/orderstack/fulfill/internal/invoice/domain"
	"github.com/orderstack/fulfill/internal/invoice/profile"
	"github.com/orderstack/fulfill/internal/invoice/sequence"
	orderdomain "github.com/orderstack/fulfill/internal/order/domain"
	fiscaldomain "github.com/orderstack/fulfill/internal/providers/fiscal/domain"
	storeconfigdomain "github.com/orderstack/fulfill/internal/storeconfig/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Allocator   *sequence.Allocator
	BulkCounter *sequence.BulkCounter
	Resolver    *profile.Resolver
	Gateway     fiscaldomain.Client
	Orders      orderdomain.Source
	StoreCfg    storeconfigdomain.Repository
	AuditSvc    auditdomain.Service
	Notifier    orderdomain.Notifier `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID       *snowflake.Node
	clk         clock.Clock
	allocator   *sequence.Allocator
	bulkCounter *sequence.BulkCounter
	resolver    *profile.Resolver
	gateway     fiscaldomain.Client
	orders      orderdomain.Source
	storeCfg    storeconfigdomain.Repository
	auditSvc    auditdomain.Service
	notifier    orderdomain.Notifier
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("invoice.service"),
		genID:       p.GenID,
		clk:         p.Clock,
		allocator:   p.Allocator,
		bulkCounter: p.BulkCounter,
		resolver:    p.Resolver,
		gateway:     p.Gateway,
		orders:      p.Orders,
		storeCfg:    p.StoreCfg,
		auditSvc:    p.AuditSvc,
		notifier:    p.Notifier,
	}
}

// QueueInvoice creates or reuses a PENDING invoice for the order. Safe to
// call repeatedly: an existing PENDING invoice is returned as-is, an ERROR
// invoice is deleted and replaced, a SUCCESS invoice rejects the call.
func (s *Service) QueueInvoice(ctx context.Context, orderID snowflake.ID, opts invoicedomain.IssueOptions) (invoicedomain.Invoice, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	return s.ensurePending(ctx, order)
}

// IssueInvoice drives one order through queue, profile resolution, number
// allocation, payload build and gateway submission.
func (s *Service) IssueInvoice(ctx context.Context, orderID snowflake.ID, opts invoicedomain.IssueOptions) (invoicedomain.Invoice, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	cfg, err := s.storeCfg.GetByStoreID(ctx, order.StoreID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	inv, err := s.ensurePending(ctx, order)
	if err != nil {
		return inv, err
	}

	prof, err := s.resolver.Resolve(ctx, order, cfg, opts.Bulk)
	if err != nil {
		return inv, err
	}

	inv, err = s.stampProfile(ctx, inv, prof)
	if err != nil {
		return inv, err
	}

	return s.submit(ctx, order, cfg, inv)
}

// RetryInvoice resubmits an ERROR invoice. The payload is rebuilt from the
// current order and the stored invoice metadata; the previously allocated
// document number is reused, never burned.
func (s *Service) RetryInvoice(ctx context.Context, invoiceID snowflake.ID) (invoicedomain.Invoice, error) {
	inv, err := s.GetInvoice(ctx, invoiceID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if inv.Status != invoicedomain.InvoiceStatusError {
		return inv, invoicedomain.ErrInvoiceNotRetriable
	}

	order, err := s.orders.GetOrder(ctx, inv.OrderID)
	if err != nil {
		if !errors.Is(err, orderdomain.ErrOrderNotFound) {
			return inv, err
		}
		// The order may have been re-ingested under a fresh internal id.
		order, err = s.orders.GetOrderByNumber(ctx, inv.OrderNumber)
		if err != nil {
			return inv, err
		}
	}

	cfg, err := s.storeCfg.GetByStoreID(ctx, order.StoreID)
	if err != nil {
		return inv, err
	}

	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Exec(
		`UPDATE invoices SET status = ?, error_text = '', updated_at = ? WHERE id = ?`,
		invoicedomain.InvoiceStatusPending, now, inv.ID,
	).Error; err != nil {
		return inv, err
	}
	inv.Status = invoicedomain.InvoiceStatusPending
	inv.ErrorText = ""

	return s.submit(ctx, order, cfg, inv)
}

// IssueBulk pre-resolves one profile and pre-allocates one number per order,
// submits the whole batch in a single gateway call, then reconciles per-item
// outcomes back onto each invoice. Partial success is expected.
//
// Prepared items are keyed by the full document number. Gateway responses
// only carry the voucher number (prefix stripped), so two serials in one
// batch colliding on the same voucher would make the reply ambiguous; the
// later item is rejected at prepare time and stays retriable on its own.
func (s *Service) IssueBulk(ctx context.Context, orderIDs []snowflake.ID, opts invoicedomain.IssueOptions) (invoicedomain.BulkResult, error) {
	opts.Bulk = true

	var result invoicedomain.BulkResult

	type prepared struct {
		order *orderdomain.Order
		cfg   *storeconfigdomain.StoreFiscalConfig
		inv   invoicedomain.Invoice
		req   fiscaldomain.DocumentRequest
	}
	preparedByDoc := make(map[string]*prepared, len(orderIDs))
	docByVoucher := make(map[string]string, len(orderIDs))
	requests := make([]fiscaldomain.DocumentRequest, 0, len(orderIDs))

	for _, orderID := range orderIDs {
		item, err := s.prepareBulkItem(ctx, orderID, opts)
		if err != nil {
			result.Failed = append(result.Failed, invoicedomain.BulkFailure{
				OrderID: orderID,
				Err:     err.Error(),
			})
			continue
		}
		p := &prepared{order: item.order, cfg: item.cfg, inv: item.inv, req: item.req}

		if priorDoc, collides := docByVoucher[p.req.VoucherNumber]; collides {
			msg := fmt.Sprintf("voucher %s already carried by document %s in this batch",
				p.req.VoucherNumber, priorDoc)
			inv, markErr := s.markError(ctx, p.inv, msg)
			if markErr != nil {
				s.log.Error("failed to persist voucher collision error",
					zap.String("order_number", p.inv.OrderNumber),
					zap.Error(markErr),
				)
			}
			result.Failed = append(result.Failed, invoicedomain.BulkFailure{
				OrderID: inv.OrderID,
				Err:     msg,
			})
			continue
		}

		docByVoucher[p.req.VoucherNumber] = p.req.DocumentNumber
		preparedByDoc[p.req.DocumentNumber] = p
		requests = append(requests, p.req)
	}

	if len(requests) == 0 {
		return result, nil
	}

	results, err := s.gateway.IssueBatch(ctx, requests)
	if err != nil {
		// The whole batch call failed; every prepared invoice lands in ERROR
		// and stays retriable.
		for _, p := range preparedByDoc {
			inv, markErr := s.markError(ctx, p.inv, err.Error())
			if markErr != nil {
				s.log.Error("failed to persist bulk error state",
					zap.String("order_number", p.inv.OrderNumber),
					zap.Error(markErr),
				)
			}
			result.Failed = append(result.Failed, invoicedomain.BulkFailure{
				OrderID: inv.OrderID,
				Err:     err.Error(),
			})
		}
		return result, err
	}

	reconciled := make(map[string]bool, len(results))
	for _, res := range results {
		doc, ok := docByVoucher[res.VoucherNumber]
		if !ok {
			s.log.Warn("batch response references unknown voucher",
				zap.String("voucher_number", res.VoucherNumber),
			)
			continue
		}
		p := preparedByDoc[doc]
		reconciled[doc] = true

		if res.Success {
			inv, err := s.markSuccess(ctx, p.order, p.cfg, p.inv, p.req, res)
			if err != nil {
				result.Failed = append(result.Failed, invoicedomain.BulkFailure{
					OrderID: p.inv.OrderID,
					Err:     err.Error(),
				})
				continue
			}
			result.Succeeded = append(result.Succeeded, inv)
			continue
		}

		inv, err := s.markError(ctx, p.inv, res.Message)
		if err != nil {
			s.log.Error("failed to persist bulk item error",
				zap.String("order_number", p.inv.OrderNumber),
				zap.Error(err),
			)
		}
		result.Failed = append(result.Failed, invoicedomain.BulkFailure{
			OrderID: inv.OrderID,
			Err:     res.Message,
		})
	}

	for doc, p := range preparedByDoc {
		if reconciled[doc] {
			continue
		}
		inv, err := s.markError(ctx, p.inv, "no result returned for document "+doc)
		if err != nil {
			s.log.Error("failed to persist missing-result error",
				zap.String("order_number", p.inv.OrderNumber),
				zap.Error(err),
			)
		}
		result.Failed = append(result.Failed, invoicedomain.BulkFailure{
			OrderID: inv.OrderID,
			Err:     "no result returned for document " + doc,
		})
	}

	return result, nil
}

type bulkItem struct {
	order *orderdomain.Order
	cfg   *storeconfigdomain.StoreFiscalConfig
	inv   invoicedomain.Invoice
	req   fiscaldomain.DocumentRequest
}

func (s *Service) prepareBulkItem(ctx context.Context, orderID snowflake.ID, opts invoicedomain.IssueOptions) (bulkItem, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return bulkItem{}, err
	}
	cfg, err := s.storeCfg.GetByStoreID(ctx, order.StoreID)
	if err != nil {
		return bulkItem{}, err
	}
	inv, err := s.ensurePending(ctx, order)
	if err != nil {
		return bulkItem{}, err
	}

	prof, err := s.resolver.Resolve(ctx, order, cfg, opts.Bulk)
	if err != nil {
		return bulkItem{}, err
	}

	// Bulk pre-allocates from the in-process counter; a retried invoice that
	// already carries a number keeps it.
	if inv.DocumentNumber == nil {
		docNo, err := s.bulkCounter.Next(ctx, prof.SerialPrefix)
		if err != nil {
			return bulkItem{}, err
		}
		inv, err = s.persistProfile(ctx, inv, prof, &docNo)
		if err != nil {
			return bulkItem{}, err
		}
	} else {
		inv, err = s.persistProfile(ctx, inv, prof, nil)
		if err != nil {
			return bulkItem{}, err
		}
	}

	req := builder.Build(order, profileFromInvoice(inv), *inv.DocumentNumber, s.clk.Now())
	return bulkItem{order: order, cfg: cfg, inv: inv, req: req}, nil
}

// IssueRefundVoucher issues the expense voucher for a returned order. The
// party code is inherited from the order's prior SUCCESS invoice when one
// exists, keeping fiscal continuity; otherwise it is re-derived.
func (s *Service) IssueRefundVoucher(ctx context.Context, orderID snowflake.ID) (invoicedomain.Invoice, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	cfg, err := s.storeCfg.GetByStoreID(ctx, order.StoreID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	prior, err := s.successInvoice(ctx, order, invoicedomain.DocumentKindExpenseVoucher)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	var prof profile.Resolved
	if prior != nil {
		prof = profile.Resolved{
			Kind:         invoicedomain.DocumentKindExpenseVoucher,
			SerialPrefix: prior.SerialPrefix,
			PartyCode:    prior.PartyCode,
			AccountCode:  prior.AccountCode,
			TaxID:        prior.TaxID,
		}
	} else {
		resolved, err := s.resolver.Resolve(ctx, order, cfg, false)
		if err != nil {
			return invoicedomain.Invoice{}, err
		}
		resolved.Kind = invoicedomain.DocumentKindExpenseVoucher
		prof = resolved
	}

	inv, err := s.ensurePendingVoucher(ctx, order, prof.TaxID)
	if err != nil {
		return inv, err
	}

	inv, err = s.stampProfile(ctx, inv, prof)
	if err != nil {
		return inv, err
	}
	return s.submit(ctx, order, cfg, inv)
}

func (s *Service) GetInvoice(ctx context.Context, invoiceID snowflake.ID) (invoicedomain.Invoice, error) {
	var inv invoicedomain.Invoice
	err := s.db.WithContext(ctx).First(&inv, "id = ?", invoiceID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
		}
		return invoicedomain.Invoice{}, err
	}
	return inv, nil
}

func (s *Service) GetInvoiceByOrder(ctx context.Context, orderID snowflake.ID) (invoicedomain.Invoice, error) {
	var inv invoicedomain.Invoice
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		First(&inv, "order_id = ?", orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
		}
		return invoicedomain.Invoice{}, err
	}
	return inv, nil
}

// IsRegisteredRecipient is exposed for reuse by order ingestion. Registry
// failures resolve to false.
func (s *Service) IsRegisteredRecipient(ctx context.Context, taxID string) bool {
	return s.resolver.IsRegistered(ctx, taxID)
}
