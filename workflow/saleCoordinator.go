package workflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/models"
	"bitbucket.org/mmdatafocus/retail_backend/utils"
	"github.com/sirupsen/logrus"
)

const createSaleHandler = "CreateSale"

// CreateSale runs the whole sale pipeline: validate, reserve stock, price,
// persist the sale with its ledger entries, update the customer's running
// spend. All writes share one database transaction, so a failure at any point
// releases every reservation taken so far. Transient lock contention is
// retried as a fresh attempt under DefaultRetryPolicy.
func CreateSale(ctx context.Context, input *models.NewSale) (*models.Sale, error) {
	return RunWithRetry(ctx, DefaultRetryPolicy, createSaleHandler, func(ctx context.Context) (*models.Sale, error) {
		return createSaleAttempt(ctx, input)
	})
}

func createSaleAttempt(ctx context.Context, input *models.NewSale) (*models.Sale, error) {
	logger := config.GetLogger()

	if err := input.Validate(ctx); err != nil {
		return nil, err
	}

	// optional durable dedupe: replays of a finished submission get the
	// original sale back without touching stock again
	var claim *models.IdempotencyKey
	if input.IdempotencyKey != "" {
		var done bool
		var err error
		claim, done, err = models.ClaimIdempotencyKey(ctx, createSaleHandler, input.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if done {
			return models.GetSale(ctx, claim.ReferenceId)
		}
	}

	sale, err := buildAndCommitSale(ctx, input, claim)
	if err != nil {
		if claim != nil {
			models.FailIdempotencyKey(ctx, claim.ID, err)
		}
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"module":        "saleCoordinator",
		"saleId":        sale.ID,
		"saleNumber":    sale.SaleNumber,
		"totalAmount":   sale.TotalAmount.String(),
		"correlationId": utils.CorrelationIdFromContextOrNew(ctx),
	}).Info("sale completed")

	return sale, nil
}

func buildAndCommitSale(ctx context.Context, input *models.NewSale, claim *models.IdempotencyKey) (*models.Sale, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	customer, err := models.GetCustomer(ctx, input.CustomerId)
	if err != nil {
		return nil, err
	}
	tier, err := models.GetCustomerTier(ctx, customer.TierId)
	if err != nil {
		return nil, err
	}
	tax, err := models.GetTax(ctx, input.TaxId)
	if err != nil {
		return nil, err
	}

	seqNo, err := utils.GetSequence[models.Sale](ctx)
	if err != nil {
		return nil, err
	}
	saleNumber := fmt.Sprintf("SAL-%06d", seqNo)

	saleDate := time.Now()
	if input.SaleDate != nil {
		saleDate = *input.SaleDate
	}

	// reserve in ascending product id order; every concurrent sale walks
	// products in the same order, which rules out lock-order deadlocks
	details := make([]models.NewSaleDetail, len(input.Details))
	copy(details, input.Details)
	sort.Slice(details, func(i, j int) bool { return details[i].ProductId < details[j].ProductId })

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

	var saleItems []models.SaleDetail
	var priceLines []utils.PriceLine
	for _, item := range details {
		product, err := models.ReserveProductStock(tx, item.ProductId, item.Qty)
		if err != nil {
			config.LogError(logger, "saleCoordinator.go", "buildAndCommitSale", "ReserveProductStock", item.ProductId, err)
			return nil, err
		}

		// unit rate is the sales price read under the same row lock as the
		// stock decrement
		saleItems = append(saleItems, models.SaleDetail{
			ProductId:         item.ProductId,
			Qty:               item.Qty,
			UnitRate:          product.SalesPrice,
			DiscountPercent:   tier.DiscountPercent,
			DetailTotalAmount: item.Qty.Mul(product.SalesPrice),
		})
		priceLines = append(priceLines, utils.PriceLine{Qty: item.Qty, UnitRate: product.SalesPrice})
	}

	totals, err := utils.CalculateSaleTotals(priceLines, tier.DiscountPercent, tax.Rate)
	if err != nil {
		return nil, err
	}

	sale := models.Sale{
		SaleNumber:      saleNumber,
		SequenceNo:      seqNo,
		CustomerId:      input.CustomerId,
		EmployeeId:      input.EmployeeId,
		PaymentMethodId: input.PaymentMethodId,
		SaleDate:        saleDate,
		Subtotal:        totals.Subtotal,
		DiscountPercent: tier.DiscountPercent,
		DiscountAmount:  totals.DiscountAmount,
		TaxRate:         tax.Rate,
		TaxAmount:       totals.TaxAmount,
		TotalAmount:     totals.TotalAmount,
		CurrentStatus:   models.SaleStatusCompleted,
		Details:         saleItems,
	}
	if err := tx.Create(&sale).Error; err != nil {
		return nil, utils.ClassifyDBError("create sale", err)
	}

	for _, detail := range sale.Details {
		saleId := sale.ID
		entry := models.StockLedgerEntry{
			ProductId: detail.ProductId,
			Qty:       detail.Qty.Neg(),
			EventType: models.StockEventSale,
			SaleId:    &saleId,
			Reason:    saleNumber,
		}
		if err := models.RecordStockLedger(tx, &entry); err != nil {
			config.LogError(logger, "saleCoordinator.go", "buildAndCommitSale", "RecordStockLedger", detail.ProductId, err)
			return nil, err
		}
	}

	if err := models.ApplyCustomerSpend(tx, customer.ID, sale.TotalAmount, &saleDate); err != nil {
		return nil, err
	}

	if claim != nil {
		if err := models.CompleteIdempotencyKey(tx, claim.ID, sale.ID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, utils.ClassifyDBError("commit sale", err)
	}
	return &sale, nil
}
