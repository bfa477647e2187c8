package workflow

import (
	"context"
	"strings"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/models"
	"bitbucket.org/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// AdjustInventory applies a signed administrative stock correction (shrinkage,
// recount, damage) and records it as an Adjustment ledger entry. A negative
// delta goes through the same reservation path as a sale, so it cannot push
// stock below zero. Returns the new on-hand quantity.
//
// The distributed stock lock keeps concurrent adjustments on the same product
// from interleaving with bulk maintenance jobs that bypass row locks.
func AdjustInventory(ctx context.Context, productId int, delta decimal.Decimal, reason string) (decimal.Decimal, error) {
	if delta.IsZero() {
		return decimal.Zero, &utils.ValidationError{Field: "delta", Reason: "must be non-zero"}
	}
	if strings.TrimSpace(reason) == "" {
		return decimal.Zero, &utils.ValidationError{Field: "reason", Reason: "adjustment reason is required"}
	}
	return RunWithRetry(ctx, DefaultRetryPolicy, "AdjustInventory", func(ctx context.Context) (decimal.Decimal, error) {
		return adjustInventoryAttempt(ctx, productId, delta, reason)
	})
}

func adjustInventoryAttempt(ctx context.Context, productId int, delta decimal.Decimal, reason string) (decimal.Decimal, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	lock, err := utils.ObtainStockLock(ctx, productId, "inventoryAdjustment.go", "adjustInventoryAttempt")
	if err != nil {
		return decimal.Zero, err
	}
	defer lock.Release(ctx)

	tx := db.WithContext(ctx).Begin()
	// IMPORTANT: always rollback on early-return or panic to avoid leaking DB locks
	// (leaked transactions are a common cause of MySQL 1205 lock wait timeouts).
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()
	defer func() { _ = tx.Rollback().Error }()

	var product *models.Product
	if delta.IsNegative() {
		product, err = models.ReserveProductStock(tx, productId, delta.Neg())
	} else {
		product, err = models.ReleaseProductStock(tx, productId, delta)
	}
	if err != nil {
		config.LogError(logger, "inventoryAdjustment.go", "adjustInventoryAttempt", "apply stock delta", productId, err)
		return decimal.Zero, err
	}

	entry := models.StockLedgerEntry{
		ProductId: productId,
		Qty:       delta,
		EventType: models.StockEventAdjustment,
		Reason:    strings.TrimSpace(reason),
	}
	if err := models.RecordStockLedger(tx, &entry); err != nil {
		return decimal.Zero, err
	}

	if err := tx.Commit().Error; err != nil {
		return decimal.Zero, utils.ClassifyDBError("commit inventory adjustment", err)
	}

	logger.WithFields(logrus.Fields{
		"module":      "inventoryAdjustment",
		"productId":   productId,
		"delta":       delta.String(),
		"stockOnHand": product.StockOnHand.String(),
	}).Info("inventory adjusted")

	return product.StockOnHand, nil
}
