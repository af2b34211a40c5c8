package gateway

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WebhookEvent is a received webhook persisted for audit. The ledger is
// never consulted for dedup: idempotency rests on the order status
// transition, and refund redeliveries must append their note again.
type WebhookEvent struct {
	ID           uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	EventType    string     `json:"event_type" gorm:"index"`
	Payload      string     `json:"payload"`
	Processed    bool       `json:"processed"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	ProcessError *string    `json:"process_error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// TableName returns the database table name.
func (WebhookEvent) TableName() string {
	return "webhook_events"
}

// NewWebhookEvent creates a ledger entry for a received webhook.
func NewWebhookEvent(eventType string, payload []byte) *WebhookEvent {
	return &WebhookEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   string(payload),
		CreatedAt: time.Now(),
	}
}

// Ledger records received webhook events and their processing outcome.
type Ledger interface {
	Record(ctx context.Context, event *WebhookEvent) error
	MarkProcessed(ctx context.Context, id uuid.UUID, procErr error) error
}

type ledger struct {
	db *gorm.DB
}

// NewLedger creates a gorm-backed webhook event ledger.
func NewLedger(db *gorm.DB) Ledger {
	return &ledger{db: db}
}

func (l *ledger) Record(ctx context.Context, event *WebhookEvent) error {
	return l.db.WithContext(ctx).Create(event).Error
}

func (l *ledger) MarkProcessed(ctx context.Context, id uuid.UUID, procErr error) error {
	updates := map[string]any{
		"processed":    true,
		"processed_at": time.Now(),
	}
	if procErr != nil {
		msg := procErr.Error()
		updates["process_error"] = &msg
	}
	return l.db.WithContext(ctx).
		Model(&WebhookEvent{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// MigrateLedger creates the webhook event table.
func MigrateLedger(db *gorm.DB) error {
	return db.AutoMigrate(&WebhookEvent{})
}
