package builder

import (
	"testing"
	"time"

	"github.com/orderstack/fulfill/internal/invoice/profile"
	invoicedomain "github.com/orderstack/fulfill/internal/invoice/domain"
	orderdomain "github.com/orderstack/fulfill/internal/order/domain"
	"github.com/stretchr/testify/assert"
)

func TestDiscountedUnitPrices_ProportionalSplit(t *testing.T) {
	// Gross 100.00, discount 10.00, two lines split 60/40.
	lines := []orderdomain.OrderLine{
		{SKU: "A", Quantity: 1, UnitPrice: 60.00},
		{SKU: "B", Quantity: 1, UnitPrice: 40.00},
	}

	prices := DiscountedUnitPrices(lines, 100.00, 10.00)
	assert.Equal(t, 54.00, prices[0])
	assert.Equal(t, 36.00, prices[1])

	var sum float64
	for i, line := range lines {
		sum += prices[i] * float64(line.Quantity)
	}
	assert.InDelta(t, 90.00, sum, 0.01)
}

func TestDiscountedUnitPrices_Passthrough(t *testing.T) {
	lines := []orderdomain.OrderLine{
		{SKU: "A", Quantity: 2, UnitPrice: 19.99},
		{SKU: "B", Quantity: 1, UnitPrice: 5.00},
	}

	// No discount.
	prices := DiscountedUnitPrices(lines, 44.98, 0)
	assert.Equal(t, 19.99, prices[0])
	assert.Equal(t, 5.00, prices[1])

	// Zero gross total.
	prices = DiscountedUnitPrices(lines, 0, 10)
	assert.Equal(t, 19.99, prices[0])
	assert.Equal(t, 5.00, prices[1])
}

func TestDiscountedUnitPrices_RoundTrip(t *testing.T) {
	cases := []struct {
		gross    float64
		discount float64
		lines    []orderdomain.OrderLine
	}{
		{100.00, 10.00, []orderdomain.OrderLine{
			{Quantity: 1, UnitPrice: 60.00},
			{Quantity: 1, UnitPrice: 40.00},
		}},
		{150.00, 25.50, []orderdomain.OrderLine{
			{Quantity: 2, UnitPrice: 37.50},
			{Quantity: 3, UnitPrice: 25.00},
		}},
		{19.99, 19.99, []orderdomain.OrderLine{
			{Quantity: 1, UnitPrice: 19.99},
		}},
		{80.00, 0.01, []orderdomain.OrderLine{
			{Quantity: 1, UnitPrice: 50.00},
			{Quantity: 1, UnitPrice: 30.00},
		}},
	}

	for _, tc := range cases {
		prices := DiscountedUnitPrices(tc.lines, tc.gross, tc.discount)
		var sum float64
		for i, line := range tc.lines {
			sum += prices[i] * float64(line.Quantity)
		}
		assert.InDelta(t, tc.gross-tc.discount, sum, 0.05,
			"gross=%v discount=%v", tc.gross, tc.discount)
	}
}

func TestBuild(t *testing.T) {
	order := &orderdomain.Order{
		OrderNumber:  "ORD-1001",
		CustomerName: "Acme Trading Ltd",
		Address:      "1 Market St",
		CountryCode:  "DE",
		GrossTotal:   100.00,
		Discount:     10.00,
		Lines: []orderdomain.OrderLine{
			{SKU: "A", Name: "Widget", Quantity: 1, UnitPrice: 60.00, VATRate: 20},
			{SKU: "B", Name: "Gadget", Quantity: 1, UnitPrice: 40.00, VATRate: 20},
		},
	}
	prof := profile.Resolved{
		Kind:         invoicedomain.DocumentKindInvoice,
		SerialPrefix: "EMA",
		PartyCode:    "120.01",
		AccountCode:  "600.01",
		TaxID:        "1234567890",
	}
	issuedAt := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	req := Build(order, prof, "EMA2026000000042", issuedAt)

	assert.Equal(t, "EMA2026000000042", req.DocumentNumber)
	assert.Equal(t, "2026000000042", req.VoucherNumber)
	assert.Equal(t, "INVOICE", req.Kind)
	assert.Equal(t, "120.01", req.PartyCode)
	assert.Equal(t, "1234567890", req.Buyer.TaxID)
	assert.Equal(t, 100.00, req.GrossTotal)
	assert.Equal(t, 10.00, req.Discount)
	assert.Equal(t, 90.00, req.NetTotal)
	assert.Len(t, req.Lines, 2)
	assert.Equal(t, 54.00, req.Lines[0].UnitPrice)
	assert.Equal(t, 36.00, req.Lines[1].UnitPrice)

	// Deterministic: same inputs, same payload.
	again := Build(order, prof, "EMA2026000000042", issuedAt)
	assert.Equal(t, req, again)
}
