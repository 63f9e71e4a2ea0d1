// Package calc implements the per-line financial math and the tax
// aggregation used by the invoice mutation service.
package calc

import (
	"math"

	invoicedomain "github.com/zenbill/zenbill/internal/invoice/domain"
	"github.com/zenbill/zenbill/internal/money"
)

// LineAmounts is the derived financials for one invoice line.
type LineAmounts struct {
	Quantity    float64
	UnitPrice   float64
	DiscountPct float64
	TaxRatePct  float64

	ItemTotal      float64
	DiscountAmount float64
	TaxableAmount  float64
	TaxAmount      float64
	LineTotal      float64
}

// ComputeLine coerces the raw inputs and derives the line financials:
//
//	itemTotal      = quantity * unitPrice
//	discountAmount = round2(itemTotal * discountPct/100)
//	taxableAmount  = round2(itemTotal - discountAmount)
//	taxAmount      = round2(taxableAmount * taxRatePct/100)
//	lineTotal      = round2(taxableAmount + taxAmount)
func ComputeLine(quantity, unitPrice, discountPct, taxRatePct any) LineAmounts {
	qty := money.SafeNumber(quantity)
	price := money.SafeNumber(unitPrice)
	discount := money.SafeNumber(discountPct)
	taxRate := money.SafeNumber(taxRatePct)

	itemTotal := qty * price
	discountAmount := money.Round2(itemTotal * discount / 100)
	taxableAmount := money.Round2(itemTotal - discountAmount)
	taxAmount := money.Round2(taxableAmount * taxRate / 100)

	return LineAmounts{
		Quantity:       qty,
		UnitPrice:      price,
		DiscountPct:    discount,
		TaxRatePct:     taxRate,
		ItemTotal:      itemTotal,
		DiscountAmount: discountAmount,
		TaxableAmount:  taxableAmount,
		TaxAmount:      taxAmount,
		LineTotal:      money.Round2(taxableAmount + taxAmount),
	}
}

type bucketKey struct {
	kind      invoicedomain.TaxKind
	rateBasis int64
}

// TaxBuckets aggregates tax amounts by (kind, rate) in first-seen order. The
// rate is keyed in basis points so float comparison noise cannot split a
// bucket.
type TaxBuckets struct {
	order  []bucketKey
	byRate map[bucketKey]*Bucket
}

// Bucket is one aggregated (kind, rate) entry.
type Bucket struct {
	Kind         invoicedomain.TaxKind
	RatePct      float64
	TaxableValue float64
	TaxAmount    float64
}

func NewTaxBuckets() *TaxBuckets {
	return &TaxBuckets{byRate: make(map[bucketKey]*Bucket)}
}

// Add merges one line's tax contribution into its bucket.
func (b *TaxBuckets) Add(kind invoicedomain.TaxKind, ratePct, taxableValue, taxAmount float64) {
	if !kind.Valid() {
		kind = invoicedomain.TaxKindGST
	}
	key := bucketKey{kind: kind, rateBasis: int64(math.Round(ratePct * 100))}

	bucket, ok := b.byRate[key]
	if !ok {
		bucket = &Bucket{Kind: kind, RatePct: ratePct}
		b.byRate[key] = bucket
		b.order = append(b.order, key)
	}
	bucket.TaxableValue = money.Round2(bucket.TaxableValue + taxableValue)
	bucket.TaxAmount = money.Round2(bucket.TaxAmount + taxAmount)
}

// Buckets returns the aggregates in first-seen order.
func (b *TaxBuckets) Buckets() []Bucket {
	out := make([]Bucket, 0, len(b.order))
	for _, key := range b.order {
		out = append(out, *b.byRate[key])
	}
	return out
}
