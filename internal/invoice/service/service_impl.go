// Package service implements the invoice mutation orchestrator. Every
// mutation runs in one database transaction spanning the invoice, its lines,
// tax aggregates, product stock and the customer balance. Loyalty settlement
// is enqueued through the outbox and applied after commit by the worker.
package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/zenbill/zenbill/internal/cache"
	"github.com/zenbill/zenbill/internal/clock"
	customerdomain "github.com/zenbill/zenbill/internal/customer/domain"
	"github.com/zenbill/zenbill/internal/invoice/calc"
	"github.com/zenbill/zenbill/internal/invoice/domain"
	loyaltydomain "github.com/zenbill/zenbill/internal/loyalty/domain"
	"github.com/zenbill/zenbill/internal/money"
	obsmetrics "github.com/zenbill/zenbill/internal/observability/metrics"
	outboxdomain "github.com/zenbill/zenbill/internal/outbox/domain"
	productdomain "github.com/zenbill/zenbill/internal/product/domain"
	"github.com/zenbill/zenbill/internal/tenantctx"
	pkgdb "github.com/zenbill/zenbill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Customers  customerdomain.Repository
	Products   productdomain.Repository
	Loyalty    loyaltydomain.Service
	Pages      *cache.PageCache    `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	customers  customerdomain.Repository
	products   productdomain.Repository
	loyalty    loyaltydomain.Service
	pages      *cache.PageCache
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("invoice.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		customers:  p.Customers,
		products:   p.Products,
		loyalty:    p.Loyalty,
		pages:      p.Pages,
		obsMetrics: p.ObsMetrics,
	}
}

// lineTotals accumulates the invoice-level sums while lines are built.
type lineTotals struct {
	SubTotal      float64
	DiscountTotal float64
	TaxTotal      float64
	TotalAmount   float64
}

func (s *Service) Create(ctx context.Context, req domain.CreateInvoiceRequest) (*domain.InvoiceDetail, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidTenant
	}
	customerID, err := snowflake.ParseString(req.CustomerID)
	if err != nil {
		return nil, domain.ErrValidation
	}
	if len(req.Items) == 0 {
		return nil, domain.ErrNoItems
	}

	now := s.clock.Now()
	issueDate := now
	if req.IssueDate != nil {
		issueDate = req.IssueDate.UTC()
	}
	terms := req.PaymentTerms
	if terms == "" {
		terms = domain.TermsNet15
	}
	invoiceType := req.Type
	if invoiceType == "" {
		invoiceType = domain.InvoiceTypeStandard
	}

	var detail *domain.InvoiceDetail
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		customer, err := s.customers.FindByID(ctx, tx, tenantID, customerID)
		if err != nil {
			return err
		}
		if customer == nil {
			return domain.ErrCustomerNotFound
		}

		invoiceID := s.genID.Generate()
		items, taxDetails, totals, err := s.buildLines(ctx, tx, tenantID, invoiceID, req.Items, now)
		if err != nil {
			return err
		}

		cashback := money.Round2(money.SafeNumber(req.Cashback))
		if cashback < 0 || cashback > totals.TotalAmount {
			return domain.ErrInvalidAmount
		}
		if cashback > 0 {
			if err := s.loyalty.Redeem(ctx, tx, tenantID, customerID, invoiceID, cashback); err != nil {
				return err
			}
		}

		invoice := &domain.Invoice{
			ID:       invoiceID,
			TenantID: tenantID,

			InvoiceNumber: newInvoiceNumber(tenantID, now),
			CustomerID:    customerID,
			Type:          invoiceType,
			Status:        domain.InvoiceStatusDraft,
			IssueDate:     issueDate,
			DueDate:       terms.DueDate(issueDate),
			PaymentTerms:  terms,

			SubTotal:        totals.SubTotal,
			DiscountTotal:   totals.DiscountTotal,
			TaxTotal:        totals.TaxTotal,
			TotalAmount:     totals.TotalAmount,
			BalanceDue:      balanceDue(totals.TotalAmount, 0, cashback),
			CashbackApplied: cashback,

			Notes:     req.Notes,
			CreatedAt: now,
			UpdatedAt: now,
		}

		if err := tx.Create(invoice).Error; err != nil {
			return err
		}
		if err := tx.Create(&items).Error; err != nil {
			return err
		}
		if len(taxDetails) > 0 {
			if err := tx.Create(&taxDetails).Error; err != nil {
				return err
			}
		}

		// The credit ledger tracks invoiced value, so it moves with the
		// invoice total, not with the cashback-reduced balance due.
		if err := s.customers.AddCredit(ctx, tx, tenantID, customerID, totals.TotalAmount); err != nil {
			return err
		}
		if err := s.enqueueEvents(ctx, tx, tenantID, invoiceID, "created", now); err != nil {
			return err
		}

		detail = &domain.InvoiceDetail{Invoice: *invoice, Items: items, TaxDetails: taxDetails}
		return nil
	})
	s.recordMutation(ctx, "create", err)
	if err != nil {
		return nil, err
	}

	s.afterCommit(tenantID)
	s.log.Info("invoice created",
		zap.String("invoice_id", detail.Invoice.ID.String()),
		zap.String("invoice_number", detail.Invoice.InvoiceNumber),
		zap.Float64("total_amount", detail.Invoice.TotalAmount),
	)
	return detail, nil
}

func (s *Service) Update(ctx context.Context, invoiceID string, req domain.UpdateInvoiceRequest) (*domain.InvoiceDetail, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidTenant
	}
	id, err := snowflake.ParseString(invoiceID)
	if err != nil {
		return nil, domain.ErrInvalidInvoiceID
	}
	if len(req.Items) == 0 {
		return nil, domain.ErrNoItems
	}

	now := s.clock.Now()
	var detail *domain.InvoiceDetail
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.findForUpdate(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if !canModify(invoice.Status) {
			return domain.ErrInvalidState
		}

		if err := s.releaseStock(ctx, tx, tenantID, id); err != nil {
			return err
		}
		if err := tx.Where("tenant_id = ? AND invoice_id = ?", tenantID, id).
			Delete(&domain.InvoiceItem{}).Error; err != nil {
			return err
		}
		if err := tx.Where("tenant_id = ? AND invoice_id = ?", tenantID, id).
			Delete(&domain.TaxDetail{}).Error; err != nil {
			return err
		}

		items, taxDetails, totals, err := s.buildLines(ctx, tx, tenantID, id, req.Items, now)
		if err != nil {
			return err
		}

		cashback := money.Round2(money.SafeNumberOr(req.Cashback, invoice.CashbackApplied))
		delta := money.Round2(cashback - invoice.CashbackApplied)
		if delta < 0 || cashback > totals.TotalAmount {
			// Redeemed cashback is not returned on edit; lowering it would
			// leave the loyalty ledger and the invoice out of sync.
			return domain.ErrInvalidAmount
		}
		if delta > 0 {
			if err := s.loyalty.Redeem(ctx, tx, tenantID, invoice.CustomerID, id, delta); err != nil {
				return err
			}
		}

		if req.IssueDate != nil {
			invoice.IssueDate = req.IssueDate.UTC()
		}
		if req.PaymentTerms != nil {
			invoice.PaymentTerms = *req.PaymentTerms
		}
		invoice.DueDate = invoice.PaymentTerms.DueDate(invoice.IssueDate)
		if req.Notes != nil {
			invoice.Notes = req.Notes
		}

		oldTotal := invoice.TotalAmount
		invoice.SubTotal = totals.SubTotal
		invoice.DiscountTotal = totals.DiscountTotal
		invoice.TaxTotal = totals.TaxTotal
		invoice.TotalAmount = totals.TotalAmount
		invoice.CashbackApplied = cashback
		invoice.BalanceDue = balanceDue(totals.TotalAmount, invoice.AmountPaid, cashback)
		invoice.UpdatedAt = now
		if invoice.AmountPaid > 0 {
			if invoice.BalanceDue == 0 {
				invoice.Status = domain.InvoiceStatusPaid
				invoice.PaidDate = &now
			} else {
				invoice.Status = domain.InvoiceStatusPartial
				invoice.PaidDate = nil
			}
		}

		if err := tx.Save(invoice).Error; err != nil {
			return err
		}
		if err := tx.Create(&items).Error; err != nil {
			return err
		}
		if len(taxDetails) > 0 {
			if err := tx.Create(&taxDetails).Error; err != nil {
				return err
			}
		}

		if err := s.adjustCredit(ctx, tx, tenantID, invoice.CustomerID, totals.TotalAmount-oldTotal); err != nil {
			return err
		}
		if err := s.enqueueEvents(ctx, tx, tenantID, id, "updated", now); err != nil {
			return err
		}

		detail = &domain.InvoiceDetail{Invoice: *invoice, Items: items, TaxDetails: taxDetails}
		return nil
	})
	s.recordMutation(ctx, "update", err)
	if err != nil {
		return nil, err
	}

	s.afterCommit(tenantID)
	s.log.Info("invoice updated",
		zap.String("invoice_id", id.String()),
		zap.Float64("total_amount", detail.Invoice.TotalAmount),
	)
	return detail, nil
}

func (s *Service) AddPayment(ctx context.Context, req domain.AddPaymentRequest) (*domain.Payment, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidTenant
	}
	id, err := snowflake.ParseString(req.InvoiceID)
	if err != nil {
		return nil, domain.ErrInvalidInvoiceID
	}
	amount := money.Round2(money.SafeNumber(req.Amount))
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	now := s.clock.Now()
	paymentDate := now
	if req.PaymentDate != nil {
		paymentDate = req.PaymentDate.UTC()
	}
	method := req.Method
	if method == "" {
		method = "CASH"
	}

	var payment *domain.Payment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.findForUpdate(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if invoice.Status == domain.InvoiceStatusPaid {
			return domain.ErrInvalidState
		}
		if amount > invoice.BalanceDue {
			return domain.ErrInsufficientBalance
		}

		payment = &domain.Payment{
			ID:          s.genID.Generate(),
			TenantID:    tenantID,
			InvoiceID:   id,
			Amount:      amount,
			Method:      method,
			Status:      domain.PaymentStatusCompleted,
			PaymentDate: paymentDate,
			Reference:   req.Reference,
			CreatedAt:   now,
		}
		if err := tx.Create(payment).Error; err != nil {
			return err
		}

		invoice.AmountPaid = money.Round2(invoice.AmountPaid + amount)
		invoice.BalanceDue = balanceDue(invoice.TotalAmount, invoice.AmountPaid, invoice.CashbackApplied)
		if invoice.BalanceDue == 0 {
			invoice.Status = domain.InvoiceStatusPaid
			invoice.PaidDate = &now
		} else {
			invoice.Status = domain.InvoiceStatusPartial
		}
		invoice.UpdatedAt = now
		if err := tx.Save(invoice).Error; err != nil {
			return err
		}

		if err := s.customers.SubtractCreditClamped(ctx, tx, tenantID, invoice.CustomerID, amount); err != nil {
			return err
		}
		return s.enqueueChanged(ctx, tx, tenantID, id, "payment", now)
	})
	s.recordMutation(ctx, "add_payment", err)
	if err != nil {
		return nil, err
	}

	s.afterCommit(tenantID)
	if s.obsMetrics != nil {
		s.obsMetrics.RecordPaymentEvent(ctx, method)
	}
	s.log.Info("payment recorded",
		zap.String("invoice_id", id.String()),
		zap.Float64("amount", amount),
	)
	return payment, nil
}

func (s *Service) Delete(ctx context.Context, invoiceID string) error {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return domain.ErrInvalidTenant
	}
	id, err := snowflake.ParseString(invoiceID)
	if err != nil {
		return domain.ErrInvalidInvoiceID
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.findForUpdate(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if invoice.Status != domain.InvoiceStatusDraft {
			return domain.ErrInvalidState
		}

		if err := s.releaseStock(ctx, tx, tenantID, id); err != nil {
			return err
		}
		if invoice.TotalAmount > 0 {
			if err := s.customers.SubtractCreditClamped(ctx, tx, tenantID, invoice.CustomerID, invoice.TotalAmount); err != nil {
				return err
			}
		}
		if err := tx.Delete(invoice).Error; err != nil {
			return err
		}
		return s.enqueueChanged(ctx, tx, tenantID, id, "deleted", now)
	})
	s.recordMutation(ctx, "delete", err)
	if err != nil {
		return err
	}

	s.afterCommit(tenantID)
	s.log.Info("invoice deleted", zap.String("invoice_id", id.String()))
	return nil
}

// buildLines computes and materializes the item rows and the (kind, rate)
// tax aggregates, consuming stock for GOODS lines as it goes.
func (s *Service) buildLines(ctx context.Context, tx *gorm.DB, tenantID, invoiceID snowflake.ID, inputs []domain.LineItemInput, now time.Time) ([]domain.InvoiceItem, []domain.TaxDetail, lineTotals, error) {
	var totals lineTotals
	items := make([]domain.InvoiceItem, 0, len(inputs))
	buckets := calc.NewTaxBuckets()

	for _, input := range inputs {
		amounts := calc.ComputeLine(input.Quantity, input.UnitPrice, input.DiscountPct, input.TaxRatePct)
		if amounts.Quantity < 0 || amounts.UnitPrice < 0 ||
			amounts.DiscountPct < 0 || amounts.DiscountPct > 100 || amounts.TaxRatePct < 0 {
			return nil, nil, totals, domain.ErrValidation
		}

		kind := input.TaxKind
		if kind == "" {
			kind = domain.TaxKindGST
		}
		if !kind.Valid() {
			return nil, nil, totals, domain.ErrValidation
		}

		item := domain.InvoiceItem{
			ID:        s.genID.Generate(),
			TenantID:  tenantID,
			InvoiceID: invoiceID,

			Description: input.Description,
			Quantity:    amounts.Quantity,
			UnitPrice:   amounts.UnitPrice,
			DiscountPct: amounts.DiscountPct,
			TaxRatePct:  amounts.TaxRatePct,
			TaxKind:     kind,

			DiscountAmount: amounts.DiscountAmount,
			TaxableAmount:  amounts.TaxableAmount,
			TaxAmount:      amounts.TaxAmount,
			LineTotal:      amounts.LineTotal,
			CreatedAt:      now,
		}

		if input.ProductID != nil && *input.ProductID != "" {
			productID, err := snowflake.ParseString(*input.ProductID)
			if err != nil {
				return nil, nil, totals, domain.ErrValidation
			}
			product, err := s.products.FindByID(ctx, tx, tenantID, productID)
			if err != nil {
				return nil, nil, totals, err
			}
			if product == nil {
				return nil, nil, totals, productdomain.ErrNotFound
			}
			if product.Type.TracksStock() {
				if err := s.products.DecrementStock(ctx, tx, tenantID, productID, amounts.Quantity); err != nil {
					return nil, nil, totals, err
				}
			}
			item.ProductID = &productID
			if item.Description == "" {
				item.Description = product.Name
			}
		}

		items = append(items, item)
		buckets.Add(kind, amounts.TaxRatePct, amounts.TaxableAmount, amounts.TaxAmount)

		totals.SubTotal += amounts.ItemTotal
		totals.DiscountTotal += amounts.DiscountAmount
		totals.TaxTotal += amounts.TaxAmount
	}

	totals.SubTotal = money.Round2(totals.SubTotal)
	totals.DiscountTotal = money.Round2(totals.DiscountTotal)
	totals.TaxTotal = money.Round2(totals.TaxTotal)
	totals.TotalAmount = money.Round2(totals.SubTotal - totals.DiscountTotal + totals.TaxTotal)

	taxDetails := make([]domain.TaxDetail, 0)
	for _, bucket := range buckets.Buckets() {
		taxDetails = append(taxDetails, domain.TaxDetail{
			ID:        s.genID.Generate(),
			TenantID:  tenantID,
			InvoiceID: invoiceID,

			Kind:         bucket.Kind,
			RatePct:      bucket.RatePct,
			TaxableValue: bucket.TaxableValue,
			TaxAmount:    bucket.TaxAmount,
			CreatedAt:    now,
		})
	}
	return items, taxDetails, totals, nil
}

// releaseStock returns stock consumed by the invoice's current GOODS lines.
func (s *Service) releaseStock(ctx context.Context, tx *gorm.DB, tenantID, invoiceID snowflake.ID) error {
	var items []domain.InvoiceItem
	if err := tx.Where("tenant_id = ? AND invoice_id = ?", tenantID, invoiceID).
		Find(&items).Error; err != nil {
		return err
	}

	for _, item := range items {
		if item.ProductID == nil {
			continue
		}
		product, err := s.products.FindByID(ctx, tx, tenantID, *item.ProductID)
		if err != nil {
			return err
		}
		if product == nil || !product.Type.TracksStock() {
			continue
		}
		if err := s.products.IncrementStock(ctx, tx, tenantID, *item.ProductID, item.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) findForUpdate(ctx context.Context, tx *gorm.DB, tenantID, id snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := pkgdb.ForUpdate(tx.WithContext(ctx)).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&invoice).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrInvoiceNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

func (s *Service) adjustCredit(ctx context.Context, tx *gorm.DB, tenantID, customerID snowflake.ID, delta float64) error {
	delta = money.Round2(delta)
	switch {
	case delta > 0:
		return s.customers.AddCredit(ctx, tx, tenantID, customerID, delta)
	case delta < 0:
		return s.customers.SubtractCreditClamped(ctx, tx, tenantID, customerID, -delta)
	default:
		return nil
	}
}

// enqueueEvents writes the settlement job and the change signal. The
// settlement dedupe key collapses a create plus a rapid update into one
// pending job; ON CONFLICT keeps the insert from aborting the transaction.
func (s *Service) enqueueEvents(ctx context.Context, tx *gorm.DB, tenantID, invoiceID snowflake.ID, action string, now time.Time) error {
	settle := outboxdomain.NewLoyaltySettleEvent(s.genID.Generate(), tenantID, invoiceID, now)
	if err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(settle).Error; err != nil {
		return err
	}
	return s.enqueueChanged(ctx, tx, tenantID, invoiceID, action, now)
}

func (s *Service) enqueueChanged(ctx context.Context, tx *gorm.DB, tenantID, invoiceID snowflake.ID, action string, now time.Time) error {
	changed := outboxdomain.NewInvoiceChangedEvent(s.genID.Generate(), tenantID, invoiceID, action, now)
	return tx.WithContext(ctx).Create(changed).Error
}

// afterCommit drops this node's cached pages immediately; other nodes catch
// up through the invoice.changed outbox event.
func (s *Service) afterCommit(tenantID snowflake.ID) {
	if s.pages != nil {
		s.pages.InvalidateTenant(tenantID)
	}
}

func (s *Service) recordMutation(ctx context.Context, operation string, err error) {
	if s.obsMetrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.obsMetrics.RecordInvoiceOperation(ctx, operation, outcome)
}

func canModify(status domain.InvoiceStatus) bool {
	return status == domain.InvoiceStatusDraft || status == domain.InvoiceStatusPartial
}

// balanceDue derives the outstanding amount, clamped at zero.
func balanceDue(total, paid, cashback float64) float64 {
	due := money.Round2(total - paid - cashback)
	if due < 0 {
		return 0
	}
	return due
}

// newInvoiceNumber derives a human-readable number from the tenant suffix,
// the millisecond timestamp and a random tail. Uniqueness is ultimately
// guaranteed by the snowflake primary key, not by this string.
func newInvoiceNumber(tenantID snowflake.ID, now time.Time) string {
	suffix := tenantID.String()
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	return fmt.Sprintf("INV-%s-%d-%03d", suffix, now.UnixMilli(), rand.IntN(1000))
}
