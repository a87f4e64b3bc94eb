package profile

import (
	"context"
	"errors"
	"testing"

	invoicedomain "github.com/orderstack/fulfill/internal/invoice/domain"
	orderdomain "github.com/orderstack/fulfill/internal/order/domain"
	fiscaldomain "github.com/orderstack/fulfill/internal/providers/fiscal/domain"
	storeconfigdomain "github.com/orderstack/fulfill/internal/storeconfig/domain"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeGateway struct {
	registered map[string]bool
	checkErr   error
	upsertErr  error

	checked  []string
	upserted []fiscaldomain.Party
}

func (f *fakeGateway) CheckTaxpayer(ctx context.Context, taxID string) (bool, error) {
	f.checked = append(f.checked, taxID)
	if f.checkErr != nil {
		return false, f.checkErr
	}
	return f.registered[taxID], nil
}

func (f *fakeGateway) UpsertParty(ctx context.Context, party fiscaldomain.Party) error {
	f.upserted = append(f.upserted, party)
	return f.upsertErr
}

func (f *fakeGateway) IssueDocument(ctx context.Context, req fiscaldomain.DocumentRequest) (fiscaldomain.DocumentResult, error) {
	return fiscaldomain.DocumentResult{}, nil
}

func (f *fakeGateway) IssueBatch(ctx context.Context, reqs []fiscaldomain.DocumentRequest) ([]fiscaldomain.DocumentResult, error) {
	return nil, nil
}

func testConfig() *storeconfigdomain.StoreFiscalConfig {
	return &storeconfigdomain.StoreFiscalConfig{
		InvoiceSerial:         "EMA",
		InvoiceBulkSerial:     "EMB",
		ReceiptSerial:         "EPA",
		ReceiptBulkSerial:     "EPB",
		ExportSerial:          "EXA",
		ExportBulkSerial:      "EXB",
		InvoicePartyCode:      "120.01",
		ReceiptPartyCode:      "120.02",
		BankTransferPartyCode: "120.09",
		InvoiceAccountCode:    "600.01",
		ReceiptAccountCode:    "600.02",
		SupportsExport:        true,
		ExportEnabled:         true,
	}
}

func TestResolve_ExportBranchWins(t *testing.T) {
	gw := &fakeGateway{registered: map[string]bool{"1234567890": true}}
	r := NewResolver(gw, zap.NewNop())

	order := &orderdomain.Order{
		IsExport:    true,
		CountryCode: "de",
		NationalID:  "1234567890",
	}

	prof, err := r.Resolve(context.Background(), order, testConfig(), false)
	assert.NoError(t, err)
	assert.Equal(t, invoicedomain.DocumentKindExport, prof.Kind)
	assert.Equal(t, "EXA", prof.SerialPrefix)
	assert.Equal(t, "EXPORT-DE", prof.PartyCode)
	assert.Equal(t, GenericTaxID, prof.TaxID)
	assert.True(t, prof.ExportExempt)
	// Export documents never hit the registry.
	assert.Empty(t, gw.checked)
}

func TestResolve_ExportDisabledFallsThrough(t *testing.T) {
	gw := &fakeGateway{}
	r := NewResolver(gw, zap.NewNop())

	cfg := testConfig()
	cfg.ExportEnabled = false

	order := &orderdomain.Order{IsExport: true, NationalID: "11111111111"}
	prof, err := r.Resolve(context.Background(), order, cfg, false)
	assert.NoError(t, err)
	assert.Equal(t, invoicedomain.DocumentKindReceipt, prof.Kind)
}

func TestResolve_RegisteredCustomerGetsInvoice(t *testing.T) {
	gw := &fakeGateway{registered: map[string]bool{"1234567890": true}}
	r := NewResolver(gw, zap.NewNop())

	order := &orderdomain.Order{
		CustomerName: "Acme Trading Ltd",
		NationalID:   "1234567890",
	}

	prof, err := r.Resolve(context.Background(), order, testConfig(), false)
	assert.NoError(t, err)
	assert.Equal(t, invoicedomain.DocumentKindInvoice, prof.Kind)
	assert.Equal(t, "EMA", prof.SerialPrefix)
	assert.Equal(t, "120.01", prof.PartyCode)
	assert.Equal(t, "600.01", prof.AccountCode)
	assert.Equal(t, "1234567890", prof.TaxID)

	// Registered customers are mirrored into the fiscal platform.
	assert.Len(t, gw.upserted, 1)
	assert.Equal(t, "Acme Trading Ltd", gw.upserted[0].Name)
}

func TestResolve_BulkUsesBulkSerial(t *testing.T) {
	gw := &fakeGateway{registered: map[string]bool{"1234567890": true}}
	r := NewResolver(gw, zap.NewNop())

	order := &orderdomain.Order{NationalID: "1234567890"}
	prof, err := r.Resolve(context.Background(), order, testConfig(), true)
	assert.NoError(t, err)
	assert.Equal(t, "EMB", prof.SerialPrefix)
}

func TestResolve_UnregisteredCustomerGetsReceipt(t *testing.T) {
	gw := &fakeGateway{}
	r := NewResolver(gw, zap.NewNop())

	order := &orderdomain.Order{NationalID: "9876543210"}
	prof, err := r.Resolve(context.Background(), order, testConfig(), false)
	assert.NoError(t, err)
	assert.Equal(t, invoicedomain.DocumentKindReceipt, prof.Kind)
	assert.Equal(t, "EPA", prof.SerialPrefix)
	assert.Equal(t, "120.02", prof.PartyCode)
	assert.Equal(t, GenericTaxID, prof.TaxID)
	assert.Empty(t, gw.upserted)
}

func TestResolve_RegistryFailureFailsOpen(t *testing.T) {
	gw := &fakeGateway{
		registered: map[string]bool{"1234567890": true},
		checkErr:   errors.New("gateway timeout"),
	}
	r := NewResolver(gw, zap.NewNop())

	order := &orderdomain.Order{NationalID: "1234567890"}
	prof, err := r.Resolve(context.Background(), order, testConfig(), false)
	assert.NoError(t, err)
	// Lookup errors always resolve to the receipt branch, never invoice.
	assert.Equal(t, invoicedomain.DocumentKindReceipt, prof.Kind)
}

func TestResolve_DummyIDNeverTriggersLookup(t *testing.T) {
	gw := &fakeGateway{}
	r := NewResolver(gw, zap.NewNop())

	for _, id := range []string{"", "11111111111", "123"} {
		order := &orderdomain.Order{NationalID: id}
		prof, err := r.Resolve(context.Background(), order, testConfig(), false)
		assert.NoError(t, err)
		assert.Equal(t, invoicedomain.DocumentKindReceipt, prof.Kind, "id=%q", id)
	}
	assert.Empty(t, gw.checked)
}

func TestResolve_BankTransferOverride(t *testing.T) {
	gw := &fakeGateway{registered: map[string]bool{"1234567890": true}}
	r := NewResolver(gw, zap.NewNop())

	order := &orderdomain.Order{
		NationalID:    "1234567890",
		PaymentMethod: "bank_transfer",
	}
	prof, err := r.Resolve(context.Background(), order, testConfig(), false)
	assert.NoError(t, err)
	assert.Equal(t, "120.09", prof.PartyCode)

	// No override configured: base code stands.
	cfg := testConfig()
	cfg.BankTransferPartyCode = ""
	prof, err = r.Resolve(context.Background(), order, cfg, false)
	assert.NoError(t, err)
	assert.Equal(t, "120.01", prof.PartyCode)
}

func TestResolve_PartyExistsIsSwallowed(t *testing.T) {
	gw := &fakeGateway{
		registered: map[string]bool{"1234567890": true},
		upsertErr:  fiscaldomain.ErrPartyExists,
	}
	r := NewResolver(gw, zap.NewNop())

	order := &orderdomain.Order{NationalID: "1234567890"}
	prof, err := r.Resolve(context.Background(), order, testConfig(), false)
	assert.NoError(t, err)
	assert.Equal(t, invoicedomain.DocumentKindInvoice, prof.Kind)
}

func TestEffectiveTaxID(t *testing.T) {
	cases := []struct {
		name       string
		nationalID string
		taxNumber  string
		want       string
	}{
		{"national id wins", "12345678901", "5555555555", "12345678901"},
		{"all-ones national id falls back", "11111111111", "5555555555", "5555555555"},
		{"short national id falls back", "123", "5555555555", "5555555555"},
		{"empty national id falls back", "", "5555555555", "5555555555"},
		{"both dummy, national id non-empty", "11111111111", "", "11111111111"},
		{"both dummy, only tax number set", "", "111", "111"},
		{"both empty", "", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := &orderdomain.Order{NationalID: tc.nationalID, TaxNumber: tc.taxNumber}
			assert.Equal(t, tc.want, EffectiveTaxID(order))
		})
	}
}

func TestIsDummyTaxID(t *testing.T) {
	assert.True(t, IsDummyTaxID(""))
	assert.True(t, IsDummyTaxID("11111111111"))
	assert.True(t, IsDummyTaxID("123456789")) // 9 digits, too short
	assert.False(t, IsDummyTaxID("1234567890"))
	assert.False(t, IsDummyTaxID("123-456-78-901"))
}
