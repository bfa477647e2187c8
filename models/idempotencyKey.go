package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/utils"
	"gorm.io/gorm"
)

// IdempotencyKey provides durable, DB-backed at-most-once semantics for
// callers that need them. CreateSale itself is not idempotent by design; a
// caller that supplies a key gets the original sale back on a replay.
// Unique constraint: (handler_name, idem_key).
type IdempotencyKey struct {
	ID          int               `gorm:"primary_key" json:"id"`
	HandlerName string            `gorm:"size:100;not null;index:uniq_idem,unique" json:"handler_name"`
	IdemKey     string            `gorm:"size:255;not null;index:uniq_idem,unique" json:"idem_key"`
	Status      IdempotencyStatus `gorm:"size:20;not null;index" json:"status"`
	ReferenceId int               `gorm:"default:0" json:"reference_id"`
	LastError   *string           `gorm:"type:text" json:"last_error"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// ClaimIdempotencyKey inserts (or takes over) the key for this handler.
// Returns done=true when a previous run already succeeded; the caller should
// return the referenced result instead of re-executing. A key still STARTED
// by another in-flight run is reported as contention so the retry controller
// backs off and re-checks.
func ClaimIdempotencyKey(ctx context.Context, handlerName string, key string) (*IdempotencyKey, bool, error) {
	db := config.GetDB()

	record := IdempotencyKey{
		HandlerName: handlerName,
		IdemKey:     key,
		Status:      IdempotencyStatusStarted,
	}
	err := db.WithContext(ctx).Create(&record).Error
	if err == nil {
		return &record, false, nil
	}
	if !utils.IsDuplicateEntry(err) {
		return nil, false, utils.ClassifyDBError("claim idempotency key", err)
	}

	var existing IdempotencyKey
	if err := db.WithContext(ctx).
		Where("handler_name = ? AND idem_key = ?", handlerName, key).
		First(&existing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, utils.ErrorRecordNotFound
		}
		return nil, false, utils.ClassifyDBError("fetch idempotency key", err)
	}

	switch existing.Status {
	case IdempotencyStatusSucceeded:
		return &existing, true, nil
	case IdempotencyStatusStarted:
		return nil, false, &utils.ContentionError{Err: errors.New("idempotency key in flight")}
	default: // FAILED: take over
		if err := db.WithContext(ctx).Model(&IdempotencyKey{}).
			Where("id = ? AND status = ?", existing.ID, IdempotencyStatusFailed).
			Update("status", IdempotencyStatusStarted).Error; err != nil {
			return nil, false, utils.ClassifyDBError("reclaim idempotency key", err)
		}
		existing.Status = IdempotencyStatusStarted
		return &existing, false, nil
	}
}

// CompleteIdempotencyKey marks success inside the same transaction as the
// work it guards, so the key and the sale commit or roll back together.
func CompleteIdempotencyKey(tx *gorm.DB, id int, referenceId int) error {
	if err := tx.Model(&IdempotencyKey{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":       IdempotencyStatusSucceeded,
		"reference_id": referenceId,
	}).Error; err != nil {
		return utils.ClassifyDBError("complete idempotency key", err)
	}
	return nil
}

// FailIdempotencyKey records the failure outside the rolled-back transaction;
// best effort, a lost update here only means the next claim takes over later.
func FailIdempotencyKey(ctx context.Context, id int, cause error) {
	db := config.GetDB()
	msg := cause.Error()
	if err := db.WithContext(ctx).Model(&IdempotencyKey{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     IdempotencyStatusFailed,
		"last_error": &msg,
	}).Error; err != nil {
		config.LogError(config.GetLogger(), "idempotencyKey", "FailIdempotencyKey", "failed to mark idempotency key failed", id, err)
	}
}
