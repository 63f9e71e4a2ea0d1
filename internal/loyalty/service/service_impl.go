package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/zenbill/zenbill/internal/clock"
	"github.com/zenbill/zenbill/internal/config"
	invoicedomain "github.com/zenbill/zenbill/internal/invoice/domain"
	loyaltydomain "github.com/zenbill/zenbill/internal/loyalty/domain"
	"github.com/zenbill/zenbill/internal/money"
	obsmetrics "github.com/zenbill/zenbill/internal/observability/metrics"
	pkgdb "github.com/zenbill/zenbill/pkg/db"
	"github.com/zenbill/zenbill/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       loyaltydomain.Repository
	Defaults   *config.LoyaltyConfigHolder
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       loyaltydomain.Repository
	defaults   *config.LoyaltyConfigHolder
	obsMetrics *obsmetrics.Metrics

	invoicerepo repository.Repository[invoicedomain.Invoice]
}

func NewService(p Params) loyaltydomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("loyalty.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		defaults:   p.Defaults,
		obsMetrics: p.ObsMetrics,

		invoicerepo: repository.ProvideStore[invoicedomain.Invoice](p.DB),
	}
}

// ProcessInvoice settles the EARN side of one committed invoice. Safe to call
// any number of times: an existing EARN transaction short-circuits, and the
// unique EARN index absorbs concurrent settlements of the same invoice.
func (s *Service) ProcessInvoice(ctx context.Context, invoiceID snowflake.ID) error {
	invoice, err := s.invoicerepo.FindOne(ctx, &invoicedomain.Invoice{ID: invoiceID})
	if err != nil {
		return err
	}
	if invoice == nil {
		return invoicedomain.ErrInvoiceNotFound
	}

	settled := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindEarnByInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}

		program, err := s.getOrInitProgram(ctx, tx, invoice.TenantID)
		if err != nil {
			return err
		}

		cashback := s.cashbackFor(program, invoice.TotalAmount)
		now := s.clock.Now()

		if err := s.repo.InsertTransaction(ctx, tx, &loyaltydomain.LoyaltyTransaction{
			ID:             s.genID.Generate(),
			TenantID:       invoice.TenantID,
			CustomerID:     invoice.CustomerID,
			InvoiceID:      invoiceID,
			Type:           loyaltydomain.TransactionTypeEarn,
			CashbackAmount: cashback,
			InvoiceTotal:   invoice.TotalAmount,
			CreatedAt:      now,
		}); err != nil {
			return err
		}

		if err := s.applyEarn(ctx, tx, invoice, cashback, now); err != nil {
			return err
		}

		settled = true
		return nil
	})
	if err != nil {
		// A concurrent settlement won the race past the read guard; the
		// unique EARN index turns the second insert into a no-op.
		if pkgdb.IsDuplicateKeyErr(err) {
			if s.obsMetrics != nil {
				s.obsMetrics.RecordLoyaltySettlement(ctx, "duplicate")
			}
			return nil
		}
		return err
	}

	if settled {
		s.log.Info("loyalty settlement applied",
			zap.String("invoice_id", invoiceID.String()),
			zap.String("tenant_id", invoice.TenantID.String()),
		)
		if s.obsMetrics != nil {
			s.obsMetrics.RecordLoyaltySettlement(ctx, "settled")
		}
	} else if s.obsMetrics != nil {
		s.obsMetrics.RecordLoyaltySettlement(ctx, "duplicate")
	}
	return nil
}

// Redeem debits cashback inside the caller's transaction so the invoice and
// the redemption commit or roll back together.
func (s *Service) Redeem(ctx context.Context, tx *gorm.DB, tenantID, customerID, invoiceID snowflake.ID, amount float64) error {
	amount = money.Round2(amount)
	if amount <= 0 {
		return loyaltydomain.ErrInvalidAmount
	}

	loyalty, err := s.repo.FindCustomerLoyaltyForUpdate(ctx, tx, tenantID, customerID)
	if err != nil {
		return err
	}
	if loyalty == nil || loyalty.AvailableCashback < amount {
		return loyaltydomain.ErrInsufficientBalance
	}

	now := s.clock.Now()
	if err := s.repo.InsertTransaction(ctx, tx, &loyaltydomain.LoyaltyTransaction{
		ID:             s.genID.Generate(),
		TenantID:       tenantID,
		CustomerID:     customerID,
		InvoiceID:      invoiceID,
		Type:           loyaltydomain.TransactionTypeRedeem,
		CashbackAmount: -amount,
		CreatedAt:      now,
	}); err != nil {
		return err
	}

	loyalty.AvailableCashback = money.Round2(loyalty.AvailableCashback - amount)
	loyalty.UpdatedAt = now
	return s.repo.SaveCustomerLoyalty(ctx, tx, loyalty)
}

func (s *Service) GetCustomerLoyalty(ctx context.Context, tenantID, customerID snowflake.ID) (*loyaltydomain.CustomerLoyalty, error) {
	var loyalty loyaltydomain.CustomerLoyalty
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND customer_id = ?", tenantID, customerID).
		First(&loyalty).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &loyalty, nil
}

func (s *Service) getOrInitProgram(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID) (*loyaltydomain.LoyaltyProgram, error) {
	program, err := s.repo.FindProgram(ctx, tx, tenantID)
	if err != nil {
		return nil, err
	}
	if program != nil {
		return program, nil
	}

	defaults := config.DefaultLoyaltyConfig()
	if s.defaults != nil {
		defaults = s.defaults.Get()
	}

	now := s.clock.Now()
	program = &loyaltydomain.LoyaltyProgram{
		ID:                    s.genID.Generate(),
		TenantID:              tenantID,
		CashbackPercentage:    defaults.CashbackPercentage,
		MinimumPurchaseAmount: defaults.MinimumPurchaseAmount,
		MaximumCashbackAmount: defaults.MaximumCashbackAmount,
		IsActive:              true,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.repo.InsertProgram(ctx, tx, program); err != nil {
		return nil, err
	}
	return program, nil
}

// cashbackFor applies the eligibility floor and the cap.
func (s *Service) cashbackFor(program *loyaltydomain.LoyaltyProgram, invoiceTotal float64) float64 {
	if invoiceTotal < program.MinimumPurchaseAmount {
		return 0
	}
	cashback := money.Round2(invoiceTotal * program.CashbackPercentage / 100)
	if cashback > program.MaximumCashbackAmount {
		cashback = program.MaximumCashbackAmount
	}
	return cashback
}

func (s *Service) applyEarn(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice, cashback float64, now time.Time) error {
	loyalty, err := s.repo.FindCustomerLoyaltyForUpdate(ctx, tx, invoice.TenantID, invoice.CustomerID)
	if err != nil {
		return err
	}
	if loyalty == nil {
		loyalty = &loyaltydomain.CustomerLoyalty{
			ID:         s.genID.Generate(),
			TenantID:   invoice.TenantID,
			CustomerID: invoice.CustomerID,
			Tier:       loyaltydomain.TierBronze,
			CreatedAt:  now,
		}
	}

	loyalty.TotalAmountSpent = money.Round2(loyalty.TotalAmountSpent + invoice.TotalAmount)
	loyalty.TotalOrders++
	loyalty.AvailableCashback = money.Round2(loyalty.AvailableCashback + cashback)
	loyalty.TotalCashbackEarned = money.Round2(loyalty.TotalCashbackEarned + cashback)
	loyalty.UpdatedAt = now

	// Tiers only move up; a later low-value invoice never demotes.
	next := loyaltydomain.TierForSpend(loyalty.TotalAmountSpent)
	if loyaltydomain.TierRank(next) > loyaltydomain.TierRank(loyalty.Tier) {
		loyalty.Tier = next
	}
	loyalty.TierBenefits = loyaltydomain.BenefitsFor(loyalty.Tier)
	expiry := now.AddDate(1, 0, 0)
	loyalty.TierExpiresAt = &expiry

	return s.repo.SaveCustomerLoyalty(ctx, tx, loyalty)
}
