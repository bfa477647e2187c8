package workflow

import (
	"context"
	"sort"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/models"
	"bitbucket.org/mmdatafocus/retail_backend/utils"
	"github.com/sirupsen/logrus"
)

// ReverseSale refunds a completed sale: stock goes back, compensating Return
// entries land in the ledger, the customer's running spend is reduced and the
// sale is marked Refunded. The whole reversal is one database transaction;
// the original sale rows are never modified beyond the status flip.
//
// Reversing an already-reversed sale returns ErrAlreadyReversed; reversal is
// not idempotent by replay, the status check under the header lock is what
// makes double refunds impossible.
func ReverseSale(ctx context.Context, saleId int, reason string) (*models.Sale, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, &utils.ValidationError{Field: "reason", Reason: "refund reason is required"}
	}
	return RunWithRetry(ctx, DefaultRetryPolicy, "ReverseSale", func(ctx context.Context) (*models.Sale, error) {
		return reverseSaleAttempt(ctx, saleId, reason)
	})
}

func reverseSaleAttempt(ctx context.Context, saleId int, reason string) (*models.Sale, error) {
	db := config.GetDB()
	logger := config.GetLogger()

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

	// header lock serializes concurrent reversal attempts on the same sale
	sale, err := models.GetSaleForUpdate(tx, saleId)
	if err != nil {
		return nil, err
	}
	if sale.CurrentStatus != models.SaleStatusCompleted {
		return nil, utils.ErrAlreadyReversed
	}

	details := sale.Details
	sort.Slice(details, func(i, j int) bool { return details[i].ProductId < details[j].ProductId })

	for _, detail := range details {
		if _, err := models.ReleaseProductStock(tx, detail.ProductId, detail.Qty); err != nil {
			config.LogError(logger, "saleReversal.go", "reverseSaleAttempt", "ReleaseProductStock", detail.ProductId, err)
			return nil, err
		}
		id := sale.ID
		entry := models.StockLedgerEntry{
			ProductId: detail.ProductId,
			Qty:       detail.Qty,
			EventType: models.StockEventReturn,
			SaleId:    &id,
			Reason:    reason,
		}
		if err := models.RecordStockLedger(tx, &entry); err != nil {
			config.LogError(logger, "saleReversal.go", "reverseSaleAttempt", "RecordStockLedger", detail.ProductId, err)
			return nil, err
		}
	}

	if err := models.ApplyCustomerSpend(tx, sale.CustomerId, sale.TotalAmount.Neg(), nil); err != nil {
		return nil, err
	}

	refundedAt := time.Now()
	if err := models.MarkSaleRefunded(tx, sale.ID, reason, refundedAt); err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, utils.ClassifyDBError("commit sale reversal", err)
	}

	sale.CurrentStatus = models.SaleStatusRefunded
	sale.RefundReason = strings.TrimSpace(reason)
	sale.RefundedAt = &refundedAt

	logger.WithFields(logrus.Fields{
		"module":        "saleReversal",
		"saleId":        sale.ID,
		"saleNumber":    sale.SaleNumber,
		"totalAmount":   sale.TotalAmount.String(),
		"correlationId": utils.CorrelationIdFromContextOrNew(ctx),
	}).Info("sale reversed")

	return sale, nil
}
