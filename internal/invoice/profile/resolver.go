// Package profile decides which fiscal document an order requires.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	invoicedomain "github.com/orderstack/fulfill/internal/invoice/domain"
	orderdomain "github.com/orderstack/fulfill/internal/order/domain"
	fiscaldomain "github.com/orderstack/fulfill/internal/providers/fiscal/domain"
	storeconfigdomain "github.com/orderstack/fulfill/internal/storeconfig/domain"
	"go.uber.org/zap"
)

// GenericTaxID is the sentinel identifier used on documents whose buyer is
// not a registered invoice recipient (retail receipts, export documents).
const GenericTaxID = "2222222222"

// minTaxIDDigits is the shortest identifier worth a registry lookup.
const minTaxIDDigits = 10

// Resolved is the fiscal profile an order issues under.
type Resolved struct {
	Kind         invoicedomain.DocumentKind
	SerialPrefix string
	PartyCode    string
	AccountCode  string
	TaxID        string
	ExportExempt bool
}

type Resolver struct {
	gateway fiscaldomain.Client
	log     *zap.Logger
}

func NewResolver(gateway fiscaldomain.Client, log *zap.Logger) *Resolver {
	return &Resolver{
		gateway: gateway,
		log:     log.Named("invoice.profile"),
	}
}

// Resolve walks the decision ladder; the first matching branch wins.
func (r *Resolver) Resolve(ctx context.Context, order *orderdomain.Order, cfg *storeconfigdomain.StoreFiscalConfig, bulk bool) (Resolved, error) {
	if cfg.SupportsExport && order.IsExport && cfg.ExportEnabled {
		serial := cfg.Serial(storeconfigdomain.SerialExport, bulk)
		if serial == "" {
			return Resolved{}, invoicedomain.ErrMissingSerial
		}
		return Resolved{
			Kind:         invoicedomain.DocumentKindExport,
			SerialPrefix: serial,
			PartyCode:    exportPartyCode(order.CountryCode),
			AccountCode:  cfg.InvoiceAccountCode,
			TaxID:        GenericTaxID,
			ExportExempt: true,
		}, nil
	}

	taxID := EffectiveTaxID(order)

	registered := false
	if !IsDummyTaxID(taxID) {
		taxID = digitsOnly(taxID)
		registered = r.IsRegistered(ctx, taxID)
	}

	if registered {
		r.upsertParty(ctx, order, taxID)

		serial := cfg.Serial(storeconfigdomain.SerialInvoice, bulk)
		if serial == "" {
			return Resolved{}, invoicedomain.ErrMissingSerial
		}
		return Resolved{
			Kind:         invoicedomain.DocumentKindInvoice,
			SerialPrefix: serial,
			PartyCode:    partyCode(cfg.InvoicePartyCode, cfg, order),
			AccountCode:  cfg.InvoiceAccountCode,
			TaxID:        taxID,
		}, nil
	}

	serial := cfg.Serial(storeconfigdomain.SerialReceipt, bulk)
	if serial == "" {
		return Resolved{}, invoicedomain.ErrMissingSerial
	}
	return Resolved{
		Kind:         invoicedomain.DocumentKindReceipt,
		SerialPrefix: serial,
		PartyCode:    partyCode(cfg.ReceiptPartyCode, cfg, order),
		AccountCode:  cfg.ReceiptAccountCode,
		TaxID:        GenericTaxID,
	}, nil
}

// IsRegistered queries the registry for the cleaned identifier. Any lookup
// error resolves to "not registered": gateway flakiness must never block
// issuance, it only downgrades the document to the simpler type.
func (r *Resolver) IsRegistered(ctx context.Context, taxID string) bool {
	cleaned := digitsOnly(taxID)
	if len(cleaned) < minTaxIDDigits {
		return false
	}

	registered, err := r.gateway.CheckTaxpayer(ctx, cleaned)
	if err != nil {
		r.log.Warn("taxpayer registry lookup failed, resolving to not registered",
			zap.String("tax_id", cleaned),
			zap.Error(err),
		)
		return false
	}
	return registered
}

// upsertParty mirrors the registered customer into the fiscal platform.
// "Already exists" is the idempotent success case; other failures are logged
// and never block issuance.
func (r *Resolver) upsertParty(ctx context.Context, order *orderdomain.Order, taxID string) {
	err := r.gateway.UpsertParty(ctx, fiscaldomain.Party{
		Name:        order.CustomerName,
		TaxID:       taxID,
		Address:     order.Address,
		CountryCode: order.CountryCode,
	})
	if err != nil && !errors.Is(err, fiscaldomain.ErrPartyExists) {
		r.log.Warn("customer party upsert failed",
			zap.String("order_number", order.OrderNumber),
			zap.Error(err),
		)
	}
}

// EffectiveTaxID picks the customer's usable tax identifier: the national id
// unless it is a dummy sentinel, then the tax number, then whichever is
// non-empty.
func EffectiveTaxID(order *orderdomain.Order) string {
	nationalID := strings.TrimSpace(order.NationalID)
	taxNumber := strings.TrimSpace(order.TaxNumber)

	if !IsDummyTaxID(nationalID) {
		return nationalID
	}
	if !IsDummyTaxID(taxNumber) {
		return taxNumber
	}
	if nationalID != "" {
		return nationalID
	}
	return taxNumber
}

// IsDummyTaxID reports whether the identifier is a placeholder: empty, the
// all-ones pattern, or too short to be real.
func IsDummyTaxID(id string) bool {
	cleaned := digitsOnly(id)
	if len(cleaned) < minTaxIDDigits {
		return true
	}
	return strings.Count(cleaned, "1") == len(cleaned)
}

func partyCode(base string, cfg *storeconfigdomain.StoreFiscalConfig, order *orderdomain.Order) string {
	if cfg.BankTransferPartyCode != "" && isBankTransfer(order.PaymentMethod) {
		return cfg.BankTransferPartyCode
	}
	return base
}

func isBankTransfer(paymentMethod string) bool {
	method := strings.ToLower(strings.TrimSpace(paymentMethod))
	return strings.Contains(method, "bank") || strings.Contains(method, "transfer")
}

func exportPartyCode(countryCode string) string {
	countryCode = strings.ToUpper(strings.TrimSpace(countryCode))
	if countryCode == "" {
		countryCode = "XX"
	}
	return fmt.Sprintf("EXPORT-%s", countryCode)
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
