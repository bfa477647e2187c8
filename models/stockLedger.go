package models

import (
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockLedgerEntry is the immutable record of a single inventory quantity
// change and its cause. The ledger is part of the consistency boundary: a
// failed append fails the whole enclosing transaction.
type StockLedgerEntry struct {
	ID            int             `gorm:"primary_key" json:"id"`
	ProductId     int             `gorm:"index;not null" json:"product_id"`
	Qty           decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	EventType     StockEventType  `gorm:"type:enum('Purchase','Sale','Return','Adjustment','Transfer');not null;index" json:"event_type"`
	SaleId        *int            `gorm:"index" json:"sale_id"`
	Reason        string          `gorm:"size:255" json:"reason"`
	CorrelationId string          `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// Append-only: the ledger is never updated or deleted. The hooks make GORM
// refuse instead of relying on call-site discipline.
func (e *StockLedgerEntry) BeforeUpdate(tx *gorm.DB) error {
	_ = tx // signature required by gorm; tx may be nil in tests
	return errors.New("stock ledger entries are append-only")
}

func (e *StockLedgerEntry) BeforeDelete(tx *gorm.DB) error {
	_ = tx
	return errors.New("stock ledger entries are append-only")
}

// RecordStockLedger appends one entry inside the caller's transaction.
func RecordStockLedger(tx *gorm.DB, entry *StockLedgerEntry) error {
	if entry.ProductId <= 0 {
		return &utils.ValidationError{Field: "product_id", Reason: "is required"}
	}
	if entry.Qty.IsZero() {
		return &utils.ValidationError{Field: "qty", Reason: "must not be zero"}
	}
	if entry.CorrelationId == "" {
		entry.CorrelationId = utils.CorrelationIdFromContextOrNew(tx.Statement.Context)
	}
	if err := tx.Create(entry).Error; err != nil {
		return utils.ClassifyDBError("record stock ledger entry", err)
	}
	return nil
}
