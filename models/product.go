package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Product struct {
	ID           int             `gorm:"primary_key" json:"id"`
	Name         string          `gorm:"size:100;not null" json:"name" binding:"required"`
	Sku          string          `gorm:"size:100;uniqueIndex;not null" json:"sku" binding:"required"`
	SalesPrice   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sales_price"`
	PurchaseCost decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"purchase_cost"`
	StockOnHand  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"stock_on_hand"`
	ReorderLevel decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"reorder_level"`
	IsActive     *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	Name         string          `json:"name" validate:"required"`
	Sku          string          `json:"sku" validate:"required"`
	SalesPrice   decimal.Decimal `json:"sales_price"`
	PurchaseCost decimal.Decimal `json:"purchase_cost"`
	OpeningStock decimal.Decimal `json:"opening_stock"`
	ReorderLevel decimal.Decimal `json:"reorder_level"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewProduct) validate(ctx context.Context, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if input.SalesPrice.IsNegative() {
		return &utils.ValidationError{Field: "sales_price", Reason: "must not be negative"}
	}
	if input.OpeningStock.IsNegative() {
		return &utils.ValidationError{Field: "opening_stock", Reason: "must not be negative"}
	}
	// sku
	if err := utils.ValidateUnique[Product](ctx, "sku", input.Sku, id); err != nil {
		return err
	}
	return nil
}

func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {
	db := config.GetDB()

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	product := Product{
		Name:         input.Name,
		Sku:          input.Sku,
		SalesPrice:   input.SalesPrice,
		PurchaseCost: input.PurchaseCost,
		StockOnHand:  input.OpeningStock,
		ReorderLevel: input.ReorderLevel,
		IsActive:     utils.NewTrue(),
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()
	defer func() { _ = tx.Rollback().Error }()

	if err := tx.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, utils.ClassifyDBError("create product", err)
	}
	// Opening stock enters through the ledger like every other quantity change.
	if input.OpeningStock.IsPositive() {
		entry := StockLedgerEntry{
			ProductId: product.ID,
			Qty:       input.OpeningStock,
			EventType: StockEventPurchase,
			Reason:    "opening stock",
		}
		if err := RecordStockLedger(tx.WithContext(ctx), &entry); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit().Error; err != nil {
		return nil, utils.ClassifyDBError("commit product", err)
	}

	return &product, nil
}

// may return RecordNotFound
func GetProduct(ctx context.Context, id int) (*Product, error) {
	db := config.GetDB()
	var product Product
	if err := db.WithContext(ctx).First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, utils.ClassifyDBError("get product", err)
	}
	return &product, nil
}

// GetProductForUpdate reads the product row under an exclusive lock
// (SELECT ... FOR UPDATE). Blocks until the row lock is granted or the
// session's innodb_lock_wait_timeout expires, which surfaces as contention.
func GetProductForUpdate(tx *gorm.DB, id int) (*Product, error) {
	var product Product
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, utils.ClassifyDBError("lock product row", err)
	}
	return &product, nil
}
