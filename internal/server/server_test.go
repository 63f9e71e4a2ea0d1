package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zenbill/zenbill/internal/clock"
	"github.com/zenbill/zenbill/internal/config"
	customerdomain "github.com/zenbill/zenbill/internal/customer/domain"
	customerrepo "github.com/zenbill/zenbill/internal/customer/repository"
	invoicedomain "github.com/zenbill/zenbill/internal/invoice/domain"
	invoiceservice "github.com/zenbill/zenbill/internal/invoice/service"
	loyaltydomain "github.com/zenbill/zenbill/internal/loyalty/domain"
	loyaltyrepo "github.com/zenbill/zenbill/internal/loyalty/repository"
	loyaltyservice "github.com/zenbill/zenbill/internal/loyalty/service"
	outboxdomain "github.com/zenbill/zenbill/internal/outbox/domain"
	productdomain "github.com/zenbill/zenbill/internal/product/domain"
	productrepo "github.com/zenbill/zenbill/internal/product/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupHTTP(t *testing.T) (*gin.Engine, *gorm.DB, snowflake.ID, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&customerdomain.Customer{},
		&productdomain.Product{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&invoicedomain.TaxDetail{},
		&invoicedomain.Payment{},
		&loyaltydomain.LoyaltyProgram{},
		&loyaltydomain.LoyaltyTransaction{},
		&loyaltydomain.CustomerLoyalty{},
		&outboxdomain.OutboxEvent{},
	))

	node, err := snowflake.NewNode(4)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC))

	loyaltySvc := loyaltyservice.NewService(loyaltyservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  loyaltyrepo.Provide(),
	})
	invoiceSvc := invoiceservice.NewService(invoiceservice.Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clk,
		Customers: customerrepo.Provide(),
		Products:  productrepo.Provide(),
		Loyalty:   loyaltySvc,
	})

	engine := NewEngine(config.Config{Mode: gin.TestMode})
	srv := NewServer(Params{
		Engine:     engine,
		Log:        zap.NewNop(),
		InvoiceSvc: invoiceSvc,
		LoyaltySvc: loyaltySvc,
	})
	RegisterRoutes(srv)

	tenantID := node.Generate()
	customer := &customerdomain.Customer{
		ID:       node.Generate(),
		TenantID: tenantID,
		Name:     "Acme Traders",
	}
	require.NoError(t, db.Create(customer).Error)

	return engine, db, tenantID, node
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, tenant string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tenant != "" {
		req.Header.Set(tenantHeader, tenant)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestInvoiceLifecycleOverHTTP(t *testing.T) {
	engine, db, tenantID, _ := setupHTTP(t)
	tenant := tenantID.String()

	var customer customerdomain.Customer
	require.NoError(t, db.First(&customer, "tenant_id = ?", tenantID).Error)

	w := doJSON(t, engine, http.MethodPost, "/api/v1/invoices", tenant, gin.H{
		"customer_id": customer.ID.String(),
		"items": []gin.H{
			{"description": "consulting", "quantity": 2, "unit_price": 100, "discount_pct": 10, "tax_rate_pct": 18},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Data invoicedomain.InvoiceDetail `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, 212.40, created.Data.Invoice.TotalAmount)
	id := created.Data.Invoice.ID.String()

	w = doJSON(t, engine, http.MethodGet, "/api/v1/invoices/"+id, tenant, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, engine, http.MethodPost, "/api/v1/invoices/"+id+"/payments", tenant, gin.H{
		"amount": 212.40,
		"method": "BANK",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(t, engine, http.MethodGet, "/api/v1/invoices?limit=10", tenant, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page invoicedomain.ListInvoicesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Data, 1)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, page.Data[0].Status)
	assert.False(t, page.HasMore)
}

func TestHTTPErrorMapping(t *testing.T) {
	engine, _, tenantID, node := setupHTTP(t)
	tenant := tenantID.String()

	// Missing tenant header.
	w := doJSON(t, engine, http.MethodGet, "/api/v1/invoices", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Unknown invoice.
	w = doJSON(t, engine, http.MethodGet, "/api/v1/invoices/"+node.Generate().String(), tenant, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Malformed id.
	w = doJSON(t, engine, http.MethodGet, "/api/v1/invoices/nope", tenant, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown customer on create.
	w = doJSON(t, engine, http.MethodPost, "/api/v1/invoices", tenant, gin.H{
		"customer_id": node.Generate().String(),
		"items":       []gin.H{{"quantity": 1, "unit_price": 10}},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Invalid cursor.
	w = doJSON(t, engine, http.MethodGet, "/api/v1/invoices?cursor=bogus", tenant, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthz(t *testing.T) {
	engine, _, _, _ := setupHTTP(t)

	w := doJSON(t, engine, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
