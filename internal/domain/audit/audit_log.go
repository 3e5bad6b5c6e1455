package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Action constants
const (
	ActionBillPosted         = "BILL_POSTED"
	ActionBillPaid           = "BILL_PAYMENT_RECORDED"
	ActionJournalPosted      = "JOURNAL_POSTED"
	ActionJournalReversed    = "JOURNAL_REVERSED"
	ActionStockIssued        = "STOCK_ISSUED"
	ActionStockReceived      = "STOCK_RECEIVED"
	ActionStockRecalculated  = "STOCK_RECALCULATED"
	ActionStockCostCorrected = "STOCK_COST_CORRECTED"
	ActionAccountCreated     = "ACCOUNT_CREATED"
)

// Log is an append-only audit record written in the same transaction as the
// mutation it describes
type Log struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey"`
	TenantID       uuid.UUID      `gorm:"type:uuid;not null;index:idx_audit_entity,priority:1"`
	ActorID        *uuid.UUID     `gorm:"type:uuid;index"`
	Action         string         `gorm:"type:varchar(50);not null"`
	EntityType     string         `gorm:"type:varchar(50);not null;index:idx_audit_entity,priority:2"`
	EntityID       uuid.UUID      `gorm:"type:uuid;not null;index:idx_audit_entity,priority:3"`
	IdempotencyKey string         `gorm:"type:varchar(255)"`
	CorrelationID  string         `gorm:"type:varchar(100);index"`
	Metadata       datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt      time.Time      `gorm:"not null"`
}

// TableName returns the table name for GORM
func (Log) TableName() string {
	return "audit_logs"
}

// Entry describes an audit record before it is written
type Entry struct {
	TenantID       uuid.UUID
	ActorID        uuid.UUID
	Action         string
	EntityType     string
	EntityID       uuid.UUID
	IdempotencyKey string
	CorrelationID  string
	Metadata       map[string]any
}

// NewLog builds an audit record. Metadata that cannot be encoded is replaced
// by an object carrying the encoding error.
func NewLog(e Entry) *Log {
	l := &Log{
		ID:             uuid.New(),
		TenantID:       e.TenantID,
		Action:         e.Action,
		EntityType:     e.EntityType,
		EntityID:       e.EntityID,
		IdempotencyKey: e.IdempotencyKey,
		CorrelationID:  e.CorrelationID,
		CreatedAt:      time.Now().UTC(),
	}
	if e.ActorID != uuid.Nil {
		actor := e.ActorID
		l.ActorID = &actor
	}
	if len(e.Metadata) > 0 {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			raw, _ = json.Marshal(map[string]string{"metadata_error": err.Error()})
		}
		l.Metadata = datatypes.JSON(raw)
	}
	return l
}

// Repository appends audit records
type Repository interface {
	Append(ctx context.Context, logs ...*Log) error
	ListByEntity(ctx context.Context, tenantID uuid.UUID, entityType string, entityID uuid.UUID) ([]*Log, error)
}
