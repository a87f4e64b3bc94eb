// Package builder assembles the canonical document payload from an order
// snapshot and a resolved fiscal profile. Everything here is deterministic
// and reproducible from its inputs alone; no external calls.
package builder

import (
	"math"
	"time"

	"github.com/orderstack/fulfill/internal/invoice/format"
	"github.com/orderstack/fulfill/internal/invoice/profile"
	orderdomain "github.com/orderstack/fulfill/internal/order/domain"
	fiscaldomain "github.com/orderstack/fulfill/internal/providers/fiscal/domain"
)

// Build produces the issuance request for one document.
func Build(order *orderdomain.Order, prof profile.Resolved, documentNumber string, issuedAt time.Time) fiscaldomain.DocumentRequest {
	unitPrices := DiscountedUnitPrices(order.Lines, order.GrossTotal, order.Discount)

	lines := make([]fiscaldomain.DocumentLine, 0, len(order.Lines))
	for i, line := range order.Lines {
		lines = append(lines, fiscaldomain.DocumentLine{
			SKU:       line.SKU,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: unitPrices[i],
			VATRate:   line.VATRate,
		})
	}

	return fiscaldomain.DocumentRequest{
		DocumentNumber: documentNumber,
		VoucherNumber:  format.VoucherNumber(documentNumber, prof.SerialPrefix),
		SerialPrefix:   prof.SerialPrefix,
		Kind:           string(prof.Kind),
		IssueDate:      issuedAt,
		Buyer: fiscaldomain.Party{
			Code:        prof.PartyCode,
			Name:        order.CustomerName,
			TaxID:       prof.TaxID,
			Address:     order.Address,
			CountryCode: order.CountryCode,
		},
		PartyCode:    prof.PartyCode,
		AccountCode:  prof.AccountCode,
		ExportExempt: prof.ExportExempt,
		Lines:        lines,
		GrossTotal:   round2(order.GrossTotal),
		Discount:     round2(order.Discount),
		NetTotal:     round2(order.GrossTotal - order.Discount),
	}
}

// DiscountedUnitPrices spreads an order-level discount across lines in
// proportion to each line's gross share:
//
//	lineDiscount = totalDiscount * (lineGross / orderGrossTotal)
//	unitPrice    = round2((lineGross - lineDiscount) / quantity)
//
// A zero gross total or zero discount passes unit prices through unchanged.
func DiscountedUnitPrices(lines []orderdomain.OrderLine, grossTotal, discount float64) []float64 {
	prices := make([]float64, len(lines))
	for i, line := range lines {
		prices[i] = line.UnitPrice
	}
	if grossTotal == 0 || discount == 0 {
		return prices
	}

	for i, line := range lines {
		if line.Quantity == 0 {
			continue
		}
		lineGross := line.Gross()
		lineDiscount := discount * (lineGross / grossTotal)
		prices[i] = round2((lineGross - lineDiscount) / float64(line.Quantity))
	}
	return prices
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
