package models

import (
	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ReserveProductStock atomically checks and decrements on-hand stock for one
// line item. The product row is read FOR UPDATE, so the stock check, the
// decrement and the price snapshot all happen under the same exclusive lock:
// two reservations against the same product are strictly serialized and
// stock can never go negative.
//
// The returned product is the pre-reservation snapshot with StockOnHand
// already reflecting the decrement; UnitRate pricing reads SalesPrice from
// this snapshot (price-at-reservation-time).
func ReserveProductStock(tx *gorm.DB, productId int, qty decimal.Decimal) (*Product, error) {
	if !qty.IsPositive() {
		return nil, &utils.ValidationError{Field: "qty", Reason: "must be greater than zero"}
	}

	product, err := GetProductForUpdate(tx, productId)
	if err != nil {
		return nil, err
	}
	if product.StockOnHand.LessThan(qty) {
		return nil, &utils.InsufficientStockError{
			ProductId: productId,
			Requested: qty,
			Available: product.StockOnHand,
		}
	}

	if err := tx.Exec("UPDATE products SET stock_on_hand = stock_on_hand - ? WHERE id = ?", qty, productId).Error; err != nil {
		return nil, utils.ClassifyDBError("reserve product stock", err)
	}
	product.StockOnHand = product.StockOnHand.Sub(qty)

	if config.ReorderAlertsEnabled() && product.StockOnHand.LessThanOrEqual(product.ReorderLevel) {
		config.GetLogger().WithFields(logrus.Fields{
			"module":       "reservation",
			"productId":    product.ID,
			"sku":          product.Sku,
			"stockOnHand":  product.StockOnHand.String(),
			"reorderLevel": product.ReorderLevel.String(),
		}).Warn("product at or below reorder level")
	}

	return product, nil
}

// ReleaseProductStock increments on-hand stock under the same lock
// discipline as ReserveProductStock. Used by the compensation engine and by
// positive administrative adjustments.
func ReleaseProductStock(tx *gorm.DB, productId int, qty decimal.Decimal) (*Product, error) {
	if !qty.IsPositive() {
		return nil, &utils.ValidationError{Field: "qty", Reason: "must be greater than zero"}
	}

	product, err := GetProductForUpdate(tx, productId)
	if err != nil {
		return nil, err
	}

	if err := tx.Exec("UPDATE products SET stock_on_hand = stock_on_hand + ? WHERE id = ?", qty, productId).Error; err != nil {
		return nil, utils.ClassifyDBError("release product stock", err)
	}
	product.StockOnHand = product.StockOnHand.Add(qty)

	return product, nil
}
