package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	invoicedomain "github.com/orderstack/fulfill/internal/invoice/domain"
	"github.com/orderstack/fulfill/internal/invoice/builder"
	"github.com/orderstack/fulfill/internal/invoice/profile"
	orderdomain "github.com/orderstack/fulfill/internal/order/domain"
	fiscaldomain "github.com/orderstack/fulfill/internal/providers/fiscal/domain"
	storeconfigdomain "github.com/orderstack/fulfill/internal/storeconfig/domain"
	pkgdb "github.com/orderstack/fulfill/pkg/db"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ensurePending returns the invoice the order should issue under. SUCCESS
// rejects, PENDING is reused, ERROR is deleted and replaced. Both order id
// and order number are checked: a re-ingested order gets a fresh internal id
// but must never get a second document.
func (s *Service) ensurePending(ctx context.Context, order *orderdomain.Order) (invoicedomain.Invoice, error) {
	var result invoicedomain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.invoicesForOrder(ctx, tx, order)
		if err != nil {
			return err
		}

		for _, inv := range existing {
			if inv.Status == invoicedomain.InvoiceStatusSuccess {
				result = inv
				return invoicedomain.ErrDuplicateInvoice
			}
		}
		for _, inv := range existing {
			if inv.Status == invoicedomain.InvoiceStatusPending {
				result = inv
				return nil
			}
		}
		for _, inv := range existing {
			if err := tx.WithContext(ctx).Exec(
				`DELETE FROM invoices WHERE id = ? AND status = ?`,
				inv.ID, invoicedomain.InvoiceStatusError,
			).Error; err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		fresh := invoicedomain.Invoice{
			ID:              s.genID.Generate(),
			OrderID:         order.ID,
			OrderNumber:     order.OrderNumber,
			StoreID:         order.StoreID,
			Status:          invoicedomain.InvoiceStatusPending,
			CustomerName:    order.CustomerName,
			CustomerAddress: order.Address,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.WithContext(ctx).Create(&fresh).Error; err != nil {
			return err
		}
		result = fresh
		return nil
	})
	if err != nil {
		if errors.Is(err, invoicedomain.ErrDuplicateInvoice) {
			return result, invoicedomain.ErrDuplicateInvoice
		}
		// A concurrent Queue may have won the race on the one-pending-per-order
		// constraint; surface its row instead of failing.
		if pkgdb.IsDuplicateKeyErr(err) {
			return s.pendingForOrder(ctx, order)
		}
		return invoicedomain.Invoice{}, err
	}
	return result, nil
}

func (s *Service) invoicesForOrder(ctx context.Context, tx *gorm.DB, order *orderdomain.Order) ([]invoicedomain.Invoice, error) {
	query := `SELECT * FROM invoices
		 WHERE (order_id = ? OR order_number = ?) AND kind <> ?
		 ORDER BY created_at ASC` + lockClause(tx)

	var invoices []invoicedomain.Invoice
	err := tx.WithContext(ctx).
		Raw(query, order.ID, order.OrderNumber, invoicedomain.DocumentKindExpenseVoucher).
		Scan(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *Service) pendingForOrder(ctx context.Context, order *orderdomain.Order) (invoicedomain.Invoice, error) {
	var inv invoicedomain.Invoice
	err := s.db.WithContext(ctx).
		First(&inv, "order_id = ? AND status = ? AND kind <> ?",
			order.ID, invoicedomain.InvoiceStatusPending, invoicedomain.DocumentKindExpenseVoucher).Error
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	return inv, nil
}

// stampProfile writes the resolved profile onto the invoice, allocating a
// document number if the row does not already carry one. Allocation and the
// update consuming the number share one transaction so the series lock is
// held across the whole read-increment-write window.
func (s *Service) stampProfile(ctx context.Context, inv invoicedomain.Invoice, prof profile.Resolved) (invoicedomain.Invoice, error) {
	if inv.DocumentNumber != nil {
		return s.persistProfile(ctx, inv, prof, nil)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		docNo, err := s.allocator.Allocate(ctx, tx, prof.SerialPrefix)
		if err != nil {
			return err
		}
		return s.applyProfile(ctx, tx, &inv, prof, &docNo)
	})
	if err != nil {
		return inv, err
	}
	return inv, nil
}

func (s *Service) persistProfile(ctx context.Context, inv invoicedomain.Invoice, prof profile.Resolved, docNo *string) (invoicedomain.Invoice, error) {
	err := s.applyProfile(ctx, s.db, &inv, prof, docNo)
	return inv, err
}

func (s *Service) applyProfile(ctx context.Context, tx *gorm.DB, inv *invoicedomain.Invoice, prof profile.Resolved, docNo *string) error {
	now := time.Now().UTC()
	number := inv.DocumentNumber
	if docNo != nil {
		number = docNo
	}

	if err := tx.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET kind = ?, document_number = ?, serial_prefix = ?, party_code = ?,
		     account_code = ?, tax_id = ?, export_exempt = ?, updated_at = ?
		 WHERE id = ?`,
		prof.Kind, number, prof.SerialPrefix, prof.PartyCode,
		prof.AccountCode, prof.TaxID, prof.ExportExempt, now,
		inv.ID,
	).Error; err != nil {
		return err
	}

	inv.Kind = prof.Kind
	inv.DocumentNumber = number
	inv.SerialPrefix = prof.SerialPrefix
	inv.PartyCode = prof.PartyCode
	inv.AccountCode = prof.AccountCode
	inv.TaxID = prof.TaxID
	inv.ExportExempt = prof.ExportExempt
	inv.UpdatedAt = now
	return nil
}

// submit builds the payload, records it, sends it, and settles the invoice
// into SUCCESS or ERROR.
func (s *Service) submit(ctx context.Context, order *orderdomain.Order, cfg *storeconfigdomain.StoreFiscalConfig, inv invoicedomain.Invoice) (invoicedomain.Invoice, error) {
	req := builder.Build(order, profileFromInvoice(inv), *inv.DocumentNumber, s.clk.Now())

	inv, err := s.storeRequestPayload(ctx, inv, req)
	if err != nil {
		return inv, err
	}

	result, err := s.gateway.IssueDocument(ctx, req)
	if err != nil {
		marked, markErr := s.markError(ctx, inv, err.Error())
		if markErr != nil {
			s.log.Error("failed to persist invoice error state",
				zap.String("order_number", inv.OrderNumber),
				zap.Error(markErr),
			)
			return inv, markErr
		}
		return marked, err
	}

	if !result.Success {
		marked, markErr := s.markError(ctx, inv, result.Message)
		if markErr != nil {
			return inv, markErr
		}
		return marked, &fiscaldomain.GatewayError{Message: result.Message}
	}

	return s.markSuccess(ctx, order, cfg, inv, req, result)
}

func (s *Service) storeRequestPayload(ctx context.Context, inv invoicedomain.Invoice, req fiscaldomain.DocumentRequest) (invoicedomain.Invoice, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return inv, err
	}
	if err := s.db.WithContext(ctx).Exec(
		`UPDATE invoices SET request_payload = ?, updated_at = ? WHERE id = ?`,
		datatypes.JSON(payload), time.Now().UTC(), inv.ID,
	).Error; err != nil {
		return inv, err
	}
	inv.RequestPayload = datatypes.JSON(payload)
	return inv, nil
}

// markSuccess flips the invoice to SUCCESS exactly once, then runs the
// administrative side effects. Side-effect failures are logged and absorbed:
// nothing may revert a confirmed fiscal document.
func (s *Service) markSuccess(ctx context.Context, order *orderdomain.Order, cfg *storeconfigdomain.StoreFiscalConfig, inv invoicedomain.Invoice, req fiscaldomain.DocumentRequest, result fiscaldomain.DocumentResult) (invoicedomain.Invoice, error) {
	response, err := json.Marshal(result)
	if err != nil {
		response = []byte(`{}`)
	}

	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, external_document_id = ?, transaction_ref = ?,
		     response_payload = ?, error_text = '', issued_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		invoicedomain.InvoiceStatusSuccess, nullable(result.ExternalID), nullable(result.TransactionRef),
		datatypes.JSON(response), now, now,
		inv.ID, invoicedomain.InvoiceStatusPending,
	).Error; err != nil {
		return inv, err
	}

	inv.Status = invoicedomain.InvoiceStatusSuccess
	inv.ExternalDocumentID = nullable(result.ExternalID)
	inv.TransactionRef = nullable(result.TransactionRef)
	inv.ResponsePayload = datatypes.JSON(response)
	inv.IssuedAt = &now
	inv.UpdatedAt = now

	s.runSideEffects(ctx, order, cfg, inv)
	return inv, nil
}

func (s *Service) runSideEffects(ctx context.Context, order *orderdomain.Order, cfg *storeconfigdomain.StoreFiscalConfig, inv invoicedomain.Invoice) {
	if inv.Kind == invoicedomain.DocumentKindInvoice {
		if err := s.storeCfg.IncrementNextCardCode(ctx, cfg.StoreID); err != nil {
			s.log.Warn("failed to advance customer card code",
				zap.String("order_number", inv.OrderNumber),
				zap.Error(err),
			)
		}
	}

	targetID := inv.ID.String()
	metadata := map[string]any{
		"order_id":     inv.OrderID.String(),
		"order_number": inv.OrderNumber,
		"kind":         string(inv.Kind),
	}
	if inv.DocumentNumber != nil {
		metadata["document_number"] = *inv.DocumentNumber
	}
	if err := s.auditSvc.AuditLog(ctx, inv.StoreID, "invoice.issued", "invoice", &targetID, metadata); err != nil {
		s.log.Warn("failed to record issuance history",
			zap.String("order_number", inv.OrderNumber),
			zap.Error(err),
		)
	}

	if inv.Kind != invoicedomain.DocumentKindExpenseVoucher {
		if err := s.orders.UpdateOrderStatus(ctx, order.ID, orderdomain.StatusInvoiced); err != nil {
			s.log.Warn("failed to flip order status to invoiced",
				zap.String("order_number", inv.OrderNumber),
				zap.Error(err),
			)
		}
	}

	if s.notifier != nil && inv.DocumentNumber != nil {
		if err := s.notifier.NotifyInvoiced(ctx, order, *inv.DocumentNumber); err != nil {
			s.log.Warn("marketplace invoice notification failed",
				zap.String("order_number", inv.OrderNumber),
				zap.String("marketplace", order.Marketplace),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) markError(ctx context.Context, inv invoicedomain.Invoice, message string) (invoicedomain.Invoice, error) {
	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Exec(
		`UPDATE invoices SET status = ?, error_text = ?, updated_at = ? WHERE id = ? AND status <> ?`,
		invoicedomain.InvoiceStatusError, message, now,
		inv.ID, invoicedomain.InvoiceStatusSuccess,
	).Error; err != nil {
		return inv, err
	}
	inv.Status = invoicedomain.InvoiceStatusError
	inv.ErrorText = message
	inv.UpdatedAt = now
	return inv, nil
}

func (s *Service) successInvoice(ctx context.Context, order *orderdomain.Order, excludeKind invoicedomain.DocumentKind) (*invoicedomain.Invoice, error) {
	var inv invoicedomain.Invoice
	err := s.db.WithContext(ctx).
		First(&inv, "(order_id = ? OR order_number = ?) AND status = ? AND kind <> ?",
			order.ID, order.OrderNumber, invoicedomain.InvoiceStatusSuccess, excludeKind).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &inv, nil
}

// ensurePendingVoucher is the refund-side counterpart of ensurePending: a
// SUCCESS voucher for the order rejects with ErrDuplicateInvoice, a PENDING
// voucher is reused, and ERROR vouchers from failed attempts are deleted and
// replaced.
func (s *Service) ensurePendingVoucher(ctx context.Context, order *orderdomain.Order, taxID string) (invoicedomain.Invoice, error) {
	var result invoicedomain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.vouchersForOrder(ctx, tx, order)
		if err != nil {
			return err
		}

		for _, inv := range existing {
			if inv.Status == invoicedomain.InvoiceStatusSuccess {
				result = inv
				return invoicedomain.ErrDuplicateInvoice
			}
		}
		for _, inv := range existing {
			if inv.Status == invoicedomain.InvoiceStatusPending {
				result = inv
				return nil
			}
		}
		for _, inv := range existing {
			if err := tx.WithContext(ctx).Exec(
				`DELETE FROM invoices WHERE id = ? AND status = ?`,
				inv.ID, invoicedomain.InvoiceStatusError,
			).Error; err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		fresh := invoicedomain.Invoice{
			ID:              s.genID.Generate(),
			OrderID:         order.ID,
			OrderNumber:     order.OrderNumber,
			StoreID:         order.StoreID,
			Status:          invoicedomain.InvoiceStatusPending,
			Kind:            invoicedomain.DocumentKindExpenseVoucher,
			CustomerName:    order.CustomerName,
			CustomerAddress: order.Address,
			TaxID:           taxID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.WithContext(ctx).Create(&fresh).Error; err != nil {
			return err
		}
		result = fresh
		return nil
	})
	if err != nil {
		if errors.Is(err, invoicedomain.ErrDuplicateInvoice) {
			return result, invoicedomain.ErrDuplicateInvoice
		}
		if pkgdb.IsDuplicateKeyErr(err) {
			return s.pendingVoucherForOrder(ctx, order)
		}
		return invoicedomain.Invoice{}, err
	}
	return result, nil
}

func (s *Service) vouchersForOrder(ctx context.Context, tx *gorm.DB, order *orderdomain.Order) ([]invoicedomain.Invoice, error) {
	query := `SELECT * FROM invoices
		 WHERE (order_id = ? OR order_number = ?) AND kind = ?
		 ORDER BY created_at ASC` + lockClause(tx)

	var invoices []invoicedomain.Invoice
	err := tx.WithContext(ctx).
		Raw(query, order.ID, order.OrderNumber, invoicedomain.DocumentKindExpenseVoucher).
		Scan(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *Service) pendingVoucherForOrder(ctx context.Context, order *orderdomain.Order) (invoicedomain.Invoice, error) {
	var inv invoicedomain.Invoice
	err := s.db.WithContext(ctx).
		First(&inv, "order_id = ? AND status = ? AND kind = ?",
			order.ID, invoicedomain.InvoiceStatusPending, invoicedomain.DocumentKindExpenseVoucher).Error
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	return inv, nil
}

func profileFromInvoice(inv invoicedomain.Invoice) profile.Resolved {
	return profile.Resolved{
		Kind:         inv.Kind,
		SerialPrefix: inv.SerialPrefix,
		PartyCode:    inv.PartyCode,
		AccountCode:  inv.AccountCode,
		TaxID:        inv.TaxID,
		ExportExempt: inv.ExportExempt,
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func lockClause(tx *gorm.DB) string {
	if tx.Dialector.Name() == "sqlite" {
		return ""
	}
	return " FOR UPDATE"
}
