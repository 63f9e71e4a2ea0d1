package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/zenbill/zenbill/internal/invoice/domain"
	"github.com/zenbill/zenbill/internal/tenantctx"
	"github.com/zenbill/zenbill/pkg/db/pagination"
	"gorm.io/gorm"
)

func (s *Service) Get(ctx context.Context, invoiceID string) (*domain.InvoiceDetail, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidTenant
	}
	id, err := snowflake.ParseString(invoiceID)
	if err != nil {
		return nil, domain.ErrInvalidInvoiceID
	}

	var invoice domain.Invoice
	err = s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&invoice).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrInvoiceNotFound
		}
		return nil, err
	}

	var items []domain.InvoiceItem
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND invoice_id = ?", tenantID, id).
		Order("id ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}

	var taxDetails []domain.TaxDetail
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND invoice_id = ?", tenantID, id).
		Order("id ASC").
		Find(&taxDetails).Error; err != nil {
		return nil, err
	}

	return &domain.InvoiceDetail{Invoice: invoice, Items: items, TaxDetails: taxDetails}, nil
}

// List returns one keyset page ordered by (created_at DESC, id DESC). The
// snowflake ID tiebreak keeps the order total when two invoices share a
// creation timestamp, so pages never skip or repeat rows under concurrent
// inserts. First pages are served from the tenant cache when warm.
func (s *Service) List(ctx context.Context, req domain.ListInvoicesRequest) (domain.ListInvoicesResponse, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return domain.ListInvoicesResponse{}, domain.ErrInvalidTenant
	}

	req.Limit = pagination.ClampLimit(req.Limit)

	firstPage := req.Cursor == ""
	cacheKey := ""
	if firstPage && s.pages != nil {
		cacheKey = s.pages.Key(tenantID, req)
		if page, ok := s.pages.Get(cacheKey); ok {
			return page, nil
		}
	}

	query := s.db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("tenant_id = ?", tenantID)

	if req.Search != "" {
		pattern := "%" + req.Search + "%"
		query = query.Where(
			"LOWER(invoice_number) LIKE LOWER(?) OR customer_id IN (SELECT id FROM customers WHERE tenant_id = ? AND LOWER(name) LIKE LOWER(?))",
			pattern, tenantID, pattern,
		)
	}
	if req.Status != nil {
		query = query.Where("status = ?", *req.Status)
	}
	if req.CustomerID != nil {
		customerID, err := snowflake.ParseString(*req.CustomerID)
		if err != nil {
			return domain.ListInvoicesResponse{}, domain.ErrValidation
		}
		query = query.Where("customer_id = ?", customerID)
	}
	if req.DateFrom != nil {
		query = query.Where("issue_date >= ?", req.DateFrom.UTC())
	}
	if req.DateTo != nil {
		query = query.Where("issue_date <= ?", req.DateTo.UTC())
	}

	if !firstPage {
		cursor, err := pagination.Decode(req.Cursor)
		if err != nil {
			return domain.ListInvoicesResponse{}, err
		}
		query = query.Where("created_at < ? OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var invoices []domain.Invoice
	if err := query.
		Order("created_at DESC, id DESC").
		Limit(req.Limit).
		Find(&invoices).Error; err != nil {
		return domain.ListInvoicesResponse{}, err
	}

	resp := domain.ListInvoicesResponse{
		Data:    invoices,
		HasMore: len(invoices) == req.Limit,
	}
	if resp.HasMore {
		last := invoices[len(invoices)-1]
		next := pagination.Encode(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		resp.NextCursor = &next
	}

	if firstPage && s.pages != nil {
		s.pages.Set(cacheKey, resp)
	}
	return resp, nil
}
