package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zenbill/zenbill/internal/clock"
	"github.com/zenbill/zenbill/internal/config"
	invoicedomain "github.com/zenbill/zenbill/internal/invoice/domain"
	loyaltydomain "github.com/zenbill/zenbill/internal/loyalty/domain"
	loyaltyrepo "github.com/zenbill/zenbill/internal/loyalty/repository"
	loyaltyservice "github.com/zenbill/zenbill/internal/loyalty/service"
	outboxdomain "github.com/zenbill/zenbill/internal/outbox/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeInvalidator struct {
	tenants []snowflake.ID
}

func (f *fakeInvalidator) InvalidateTenant(tenantID snowflake.ID) {
	f.tenants = append(f.tenants, tenantID)
}

type failingLoyalty struct{}

func (failingLoyalty) ProcessInvoice(context.Context, snowflake.ID) error {
	return errors.New("settlement backend down")
}
func (failingLoyalty) Redeem(context.Context, *gorm.DB, snowflake.ID, snowflake.ID, snowflake.ID, float64) error {
	return nil
}
func (failingLoyalty) GetCustomerLoyalty(context.Context, snowflake.ID, snowflake.ID) (*loyaltydomain.CustomerLoyalty, error) {
	return nil, nil
}

func setupWorker(t *testing.T, loyaltySvc loyaltydomain.Service) (*gorm.DB, *Worker, *fakeInvalidator, *clock.FakeClock, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&invoicedomain.Invoice{},
		&loyaltydomain.LoyaltyProgram{},
		&loyaltydomain.LoyaltyTransaction{},
		&loyaltydomain.CustomerLoyalty{},
		&outboxdomain.OutboxEvent{},
	))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC))

	if loyaltySvc == nil {
		loyaltySvc = loyaltyservice.NewService(loyaltyservice.Params{
			DB:    db,
			Log:   zap.NewNop(),
			GenID: node,
			Clock: clk,
			Repo:  loyaltyrepo.Provide(),
		})
	}

	inv := &fakeInvalidator{}
	w := New(Params{
		DB:          db,
		Log:         zap.NewNop(),
		Cfg:         config.Config{WorkerPollInterval: 1, WorkerBatchSize: 10, WorkerMaxAttempts: 3},
		Clock:       clk,
		Loyalty:     loyaltySvc,
		Invalidator: inv,
	})
	return db, w, inv, clk, node
}

func seedInvoice(t *testing.T, db *gorm.DB, node *snowflake.Node, tenantID snowflake.ID, total float64) snowflake.ID {
	t.Helper()

	invoice := &invoicedomain.Invoice{
		ID:            node.Generate(),
		TenantID:      tenantID,
		InvoiceNumber: "INV-TEST",
		CustomerID:    node.Generate(),
		Type:          invoicedomain.InvoiceTypeStandard,
		Status:        invoicedomain.InvoiceStatusDraft,
		IssueDate:     time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
		DueDate:       time.Date(2026, 2, 25, 0, 0, 0, 0, time.UTC),
		PaymentTerms:  invoicedomain.TermsNet15,
		TotalAmount:   total,
		BalanceDue:    total,
		CreatedAt:     time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
		UpdatedAt:     time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, db.Create(invoice).Error)
	return invoice.ID
}

func TestRunOnceSettlesPendingEvent(t *testing.T) {
	db, w, _, clk, node := setupWorker(t, nil)
	tenantID := node.Generate()
	invoiceID := seedInvoice(t, db, node, tenantID, 20_000)

	event := outboxdomain.NewLoyaltySettleEvent(node.Generate(), tenantID, invoiceID, clk.Now().Add(-time.Second))
	require.NoError(t, db.Create(event).Error)

	handled, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, handled)

	var stored outboxdomain.OutboxEvent
	require.NoError(t, db.First(&stored, "id = ?", event.ID).Error)
	assert.True(t, stored.Published)
	require.NotNil(t, stored.PublishedAt)

	var earns int64
	require.NoError(t, db.Model(&loyaltydomain.LoyaltyTransaction{}).
		Where("invoice_id = ?", invoiceID).
		Count(&earns).Error)
	assert.Equal(t, int64(1), earns)

	// Nothing left to claim.
	handled, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, handled)
}

func TestRunOnceDropsEventForDeletedInvoice(t *testing.T) {
	db, w, _, clk, node := setupWorker(t, nil)
	tenantID := node.Generate()

	event := outboxdomain.NewLoyaltySettleEvent(node.Generate(), tenantID, node.Generate(), clk.Now().Add(-time.Second))
	require.NoError(t, db.Create(event).Error)

	handled, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, handled)

	var stored outboxdomain.OutboxEvent
	require.NoError(t, db.First(&stored, "id = ?", event.ID).Error)
	assert.True(t, stored.Published)
}

func TestRunOnceDispatchesInvalidation(t *testing.T) {
	db, w, inv, clk, node := setupWorker(t, nil)
	tenantID := node.Generate()

	event := outboxdomain.NewInvoiceChangedEvent(node.Generate(), tenantID, node.Generate(), "updated", clk.Now().Add(-time.Second))
	require.NoError(t, db.Create(event).Error)

	handled, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, handled)
	require.Len(t, inv.tenants, 1)
	assert.Equal(t, tenantID, inv.tenants[0])
}

func TestRunOnceRecordsFailureForRetry(t *testing.T) {
	db, w, _, clk, node := setupWorker(t, failingLoyalty{})
	tenantID := node.Generate()
	invoiceID := seedInvoice(t, db, node, tenantID, 20_000)

	event := outboxdomain.NewLoyaltySettleEvent(node.Generate(), tenantID, invoiceID, clk.Now().Add(-time.Second))
	require.NoError(t, db.Create(event).Error)

	handled, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, handled)

	var stored outboxdomain.OutboxEvent
	require.NoError(t, db.First(&stored, "id = ?", event.ID).Error)
	assert.False(t, stored.Published)
	assert.Equal(t, 1, stored.Attempts)
	require.NotNil(t, stored.LastError)
	assert.Contains(t, *stored.LastError, "settlement backend down")
	assert.True(t, stored.NextAttemptAt.After(clk.Now()))

	// Still leased, so the immediate next pass claims nothing.
	handled, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, handled)

	// Due again after the backoff elapses, until attempts are exhausted.
	clk.Advance(10 * time.Second)
	handled, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, handled)

	clk.Advance(time.Hour)
	handled, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, handled)

	clk.Advance(time.Hour)
	handled, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, handled)
}

func TestBackoffGrowth(t *testing.T) {
	assert.Equal(t, 5*time.Second, backoff(1))
	assert.Equal(t, 10*time.Second, backoff(2))
	assert.Equal(t, 20*time.Second, backoff(3))
	assert.Equal(t, 5*time.Minute, backoff(12))
}
