// Package domain contains the transactional outbox used for post-commit
// side effects. Rows are written inside the same transaction as the business
// mutation and delivered at-least-once by the settlement worker, replacing
// fire-and-forget timers.
package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventType identifies the outbox event payload shape.
type EventType string

const (
	// EventLoyaltySettle requests loyalty settlement for one invoice.
	EventLoyaltySettle EventType = "loyalty.settle"
	// EventInvoiceChanged signals report/cache invalidation for a tenant.
	EventInvoiceChanged EventType = "invoice.changed"
)

// OutboxEvent is one pending side effect.
type OutboxEvent struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	TenantID snowflake.ID `gorm:"column:tenant_id;not null;index"`

	EventType EventType         `gorm:"type:text;not null;index:idx_outbox_pending"`
	Payload   datatypes.JSONMap `gorm:"type:jsonb;not null"`
	DedupeKey *string           `gorm:"type:text;uniqueIndex:ux_outbox_dedupe"`

	Published     bool       `gorm:"not null;default:false;index:idx_outbox_pending"`
	PublishedAt   *time.Time `gorm:""`
	Attempts      int        `gorm:"not null;default:0"`
	NextAttemptAt time.Time  `gorm:"not null"`
	LastError     *string    `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (OutboxEvent) TableName() string { return "outbox_events" }

// LoyaltySettleDedupeKey keys settlement enqueues so a create plus a rapid
// update collapse into one pending job.
func LoyaltySettleDedupeKey(invoiceID snowflake.ID) string {
	return fmt.Sprintf("%s:%s", EventLoyaltySettle, invoiceID)
}

// NewLoyaltySettleEvent builds a settlement job for the given invoice.
func NewLoyaltySettleEvent(id, tenantID, invoiceID snowflake.ID, now time.Time) *OutboxEvent {
	dedupe := LoyaltySettleDedupeKey(invoiceID)
	return &OutboxEvent{
		ID:            id,
		TenantID:      tenantID,
		EventType:     EventLoyaltySettle,
		Payload:       datatypes.JSONMap{"invoice_id": invoiceID.String()},
		DedupeKey:     &dedupe,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
}

// NewInvoiceChangedEvent builds an invalidation signal for the tenant.
func NewInvoiceChangedEvent(id, tenantID, invoiceID snowflake.ID, action string, now time.Time) *OutboxEvent {
	return &OutboxEvent{
		ID:        id,
		TenantID:  tenantID,
		EventType: EventInvoiceChanged,
		Payload: datatypes.JSONMap{
			"invoice_id": invoiceID.String(),
			"action":     action,
		},
		NextAttemptAt: now,
		CreatedAt:     now,
	}
}
