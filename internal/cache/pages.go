package cache

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/zenbill/zenbill/internal/clock"
	invoicedomain "github.com/zenbill/zenbill/internal/invoice/domain"
)

// DefaultPageTTL bounds staleness between a mutation on one node and the
// change event draining on another.
const DefaultPageTTL = 30 * time.Second

// PageCache caches first-page invoice listings per tenant. Cursor pages are
// never cached; they are already cheap keyset lookups and churn too fast to
// be worth invalidating.
type PageCache struct {
	inner *TTLCache[invoicedomain.ListInvoicesResponse]
}

// NewPageCache builds the listing cache.
func NewPageCache(clk clock.Clock) *PageCache {
	return &PageCache{inner: New[invoicedomain.ListInvoicesResponse](clk, DefaultPageTTL)}
}

// Key derives a stable cache key from the tenant and the page filters.
func (c *PageCache) Key(tenantID snowflake.ID, req invoicedomain.ListInvoicesRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s|limit=%d|q=%s", tenantID, req.Limit, req.Search)
	if req.Status != nil {
		fmt.Fprintf(&sb, "|status=%s", *req.Status)
	}
	if req.CustomerID != nil {
		fmt.Fprintf(&sb, "|customer=%s", *req.CustomerID)
	}
	if req.DateFrom != nil {
		fmt.Fprintf(&sb, "|from=%d", req.DateFrom.UnixMilli())
	}
	if req.DateTo != nil {
		fmt.Fprintf(&sb, "|to=%d", req.DateTo.UnixMilli())
	}
	return sb.String()
}

// Get returns a cached page when present.
func (c *PageCache) Get(key string) (invoicedomain.ListInvoicesResponse, bool) {
	return c.inner.Get(key)
}

// Set stores one page.
func (c *PageCache) Set(key string, page invoicedomain.ListInvoicesResponse) {
	c.inner.Set(key, page)
}

// InvalidateTenant drops every cached page for the tenant.
func (c *PageCache) InvalidateTenant(tenantID snowflake.ID) {
	c.inner.DeletePrefix(tenantID.String() + "|")
}

var _ Invalidator = (*PageCache)(nil)
