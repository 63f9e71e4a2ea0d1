package cache

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zenbill/zenbill/internal/clock"
	invoicedomain "github.com/zenbill/zenbill/internal/invoice/domain"
)

func TestTTLCacheExpiry(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	c := New[string](clk, time.Minute)

	c.Set("a", "one")
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "one", got)

	clk.Advance(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestTTLCacheDeletePrefix(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	c := New[int](clk, time.Minute)

	c.Set("t1|page", 1)
	c.Set("t1|other", 2)
	c.Set("t2|page", 3)

	c.DeletePrefix("t1|")

	_, ok := c.Get("t1|page")
	assert.False(t, ok)
	_, ok = c.Get("t1|other")
	assert.False(t, ok)
	got, ok := c.Get("t2|page")
	require.True(t, ok)
	assert.Equal(t, 3, got)
}

func TestPageCacheInvalidateTenant(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	c := NewPageCache(clk)

	tenantA := snowflake.ID(101)
	tenantB := snowflake.ID(202)

	reqA := invoicedomain.ListInvoicesRequest{Limit: 20}
	reqB := invoicedomain.ListInvoicesRequest{Limit: 20, Search: "acme"}

	c.Set(c.Key(tenantA, reqA), invoicedomain.ListInvoicesResponse{HasMore: true})
	c.Set(c.Key(tenantA, reqB), invoicedomain.ListInvoicesResponse{})
	c.Set(c.Key(tenantB, reqA), invoicedomain.ListInvoicesResponse{})

	c.InvalidateTenant(tenantA)

	_, ok := c.Get(c.Key(tenantA, reqA))
	assert.False(t, ok)
	_, ok = c.Get(c.Key(tenantA, reqB))
	assert.False(t, ok)
	_, ok = c.Get(c.Key(tenantB, reqA))
	assert.True(t, ok)
}

func TestPageCacheKeyDistinguishesFilters(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	c := NewPageCache(clk)

	tenant := snowflake.ID(7)
	status := invoicedomain.InvoiceStatusPaid
	base := invoicedomain.ListInvoicesRequest{Limit: 20}
	filtered := invoicedomain.ListInvoicesRequest{Limit: 20, Status: &status}

	assert.NotEqual(t, c.Key(tenant, base), c.Key(tenant, filtered))
}
