package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Sale struct {
	ID              int             `gorm:"primary_key" json:"id"`
	SaleNumber      string          `gorm:"size:100;uniqueIndex;not null" json:"sale_number"`
	SequenceNo      int64           `gorm:"not null;default:0" json:"sequence_no"`
	CustomerId      int             `gorm:"index;not null" json:"customer_id" binding:"required"`
	EmployeeId      int             `gorm:"index;not null" json:"employee_id" binding:"required"`
	PaymentMethodId int             `gorm:"not null" json:"payment_method_id" binding:"required"`
	SaleDate        time.Time       `gorm:"not null" json:"sale_date"`
	Subtotal        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"subtotal"`
	DiscountPercent decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount_percent"`
	DiscountAmount  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount_amount"`
	TaxRate         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax_rate"`
	TaxAmount       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax_amount"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	CurrentStatus   SaleStatus      `gorm:"type:enum('Pending','Completed','Cancelled','Refunded');not null;index" json:"current_status"`
	RefundReason    string          `gorm:"type:text" json:"refund_reason"`
	RefundedAt      *time.Time      `json:"refunded_at"`
	Details         []SaleDetail    `gorm:"foreignKey:SaleId" json:"details"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// SaleDetail rows are immutable once the owning sale is Completed; reversal
// flows read them, never rewrite them.
type SaleDetail struct {
	ID                int             `gorm:"primary_key" json:"id"`
	SaleId            int             `gorm:"index;not null" json:"sale_id"`
	ProductId         int             `gorm:"index;not null" json:"product_id"`
	Qty               decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	UnitRate          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_rate"`
	DiscountPercent   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount_percent"`
	DetailTotalAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"detail_total_amount"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSale struct {
	CustomerId      int             `json:"customer_id" validate:"required,gt=0"`
	EmployeeId      int             `json:"employee_id" validate:"required,gt=0"`
	PaymentMethodId int             `json:"payment_method_id" validate:"required,gt=0"`
	TaxId           int             `json:"tax_id" validate:"required,gt=0"`
	SaleDate        *time.Time      `json:"sale_date"`
	IdempotencyKey  string          `json:"idempotency_key"`
	Details         []NewSaleDetail `json:"details" validate:"required,min=1,dive"`
}

type NewSaleDetail struct {
	ProductId int             `json:"product_id" validate:"required,gt=0"`
	Qty       decimal.Decimal `json:"qty"`
}

// Validate covers the coordinator's Validating phase: structural checks plus
// live references (customer, employee, payment method, tax, products).
func (input *NewSale) Validate(ctx context.Context) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	for _, detail := range input.Details {
		if !detail.Qty.IsPositive() {
			return &utils.ValidationError{Field: "details.qty", Reason: "must be greater than zero"}
		}
	}
	// exists & active customer
	if err := utils.ValidateActiveResourceId[Customer](ctx, input.CustomerId); err != nil {
		return &utils.ValidationError{Field: "customer_id", Reason: "customer not found"}
	}
	// exists & active employee
	if err := utils.ValidateActiveResourceId[Employee](ctx, input.EmployeeId); err != nil {
		return &utils.ValidationError{Field: "employee_id", Reason: "employee not found"}
	}
	// exists & active payment method
	if err := utils.ValidateActiveResourceId[PaymentMethod](ctx, input.PaymentMethodId); err != nil {
		return &utils.ValidationError{Field: "payment_method_id", Reason: "payment method not found"}
	}
	// exists & active tax
	if err := utils.ValidateActiveResourceId[Tax](ctx, input.TaxId); err != nil {
		return &utils.ValidationError{Field: "tax_id", Reason: "tax not found"}
	}
	// exists & active products
	for _, detail := range input.Details {
		if err := utils.ValidateActiveResourceId[Product](ctx, detail.ProductId); err != nil {
			return &utils.ValidationError{Field: "details.product_id", Reason: "product not found"}
		}
	}
	return nil
}

// may return SaleNotFound
func GetSale(ctx context.Context, id int) (*Sale, error) {
	db := config.GetDB()
	var sale Sale
	if err := db.WithContext(ctx).Preload("Details").First(&sale, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrSaleNotFound
		}
		return nil, utils.ClassifyDBError("get sale", err)
	}
	return &sale, nil
}

// GetSaleForUpdate locks the sale header row; concurrent reversal attempts on
// the same sale serialize here, so exactly one of them sees Completed.
// Details are loaded with a plain read afterwards (they are immutable).
func GetSaleForUpdate(tx *gorm.DB, id int) (*Sale, error) {
	var sale Sale
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&sale, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrSaleNotFound
		}
		return nil, utils.ClassifyDBError("lock sale row", err)
	}
	if err := tx.Where("sale_id = ?", sale.ID).Order("product_id ASC").Find(&sale.Details).Error; err != nil {
		return nil, utils.ClassifyDBError("load sale details", err)
	}
	return &sale, nil
}

// MarkSaleRefunded flips the header to Refunded inside the caller's
// transaction. Reason is recorded on the header; the compensating ledger
// entries carry it as well.
func MarkSaleRefunded(tx *gorm.DB, saleId int, reason string, refundedAt time.Time) error {
	reason = strings.TrimSpace(reason)
	if err := tx.Model(&Sale{}).Where("id = ?", saleId).Updates(map[string]interface{}{
		"current_status": SaleStatusRefunded,
		"refund_reason":  reason,
		"refunded_at":    refundedAt,
	}).Error; err != nil {
		return utils.ClassifyDBError("mark sale refunded", err)
	}
	return nil
}
