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

// CustomerTier is read-only to this engine; tiers are maintained externally
// and the list is small, so it is cached in redis.
type CustomerTier struct {
	ID              int             `gorm:"primary_key" json:"id"`
	Name            string          `gorm:"size:100;uniqueIndex;not null" json:"name" binding:"required"`
	MinimumSpend    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"minimum_spend"`
	DiscountPercent decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount_percent"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCustomerTier struct {
	Name            string          `json:"name" validate:"required"`
	MinimumSpend    decimal.Decimal `json:"minimum_spend"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

type Customer struct {
	ID               int             `gorm:"primary_key" json:"id"`
	Name             string          `gorm:"size:100;not null" json:"name" binding:"required"`
	Email            string          `gorm:"size:100" json:"email"`
	Phone            string          `gorm:"size:20" json:"phone"`
	TierId           int             `gorm:"index;not null" json:"tier_id"`
	TotalSpent       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_spent"`
	LastPurchaseDate *time.Time      `json:"last_purchase_date"`
	IsActive         *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCustomer struct {
	Name   string `json:"name" validate:"required"`
	Email  string `json:"email" validate:"omitempty,email"`
	Phone  string `json:"phone"`
	TierId int    `json:"tier_id" validate:"required,gt=0"`
}

func CreateCustomerTier(ctx context.Context, input *NewCustomerTier) (*CustomerTier, error) {
	db := config.GetDB()

	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if input.DiscountPercent.IsNegative() || input.DiscountPercent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, &utils.ValidationError{Field: "discount_percent", Reason: "must be between 0 and 100"}
	}
	if err := utils.ValidateUnique[CustomerTier](ctx, "name", input.Name, 0); err != nil {
		return nil, err
	}

	tier := CustomerTier{
		Name:            input.Name,
		MinimumSpend:    input.MinimumSpend,
		DiscountPercent: input.DiscountPercent,
	}
	if err := db.WithContext(ctx).Create(&tier).Error; err != nil {
		return nil, utils.ClassifyDBError("create customer tier", err)
	}
	// the tier list changed; drop the cache
	if err := utils.RemoveRedisList[CustomerTier](); err != nil {
		return nil, err
	}
	return &tier, nil
}

// ListCustomerTiers reads the tier list, redis or db, and caches the result.
func ListCustomerTiers(ctx context.Context) ([]*CustomerTier, error) {
	tiers, err := utils.RetrieveRedisList[CustomerTier]()
	if err != nil {
		return nil, err
	}
	if tiers == nil {
		db := config.GetDB()
		if err := db.WithContext(ctx).Order("minimum_spend ASC").Find(&tiers).Error; err != nil {
			return nil, utils.ClassifyDBError("list customer tiers", err)
		}
		if err := utils.StoreRedisList[CustomerTier](tiers); err != nil {
			return nil, err
		}
	}
	return tiers, nil
}

// may return RecordNotFound
func GetCustomerTier(ctx context.Context, id int) (*CustomerTier, error) {
	tiers, err := ListCustomerTiers(ctx)
	if err != nil {
		return nil, err
	}
	for _, tier := range tiers {
		if tier.ID == id {
			return tier, nil
		}
	}
	return nil, utils.ErrorRecordNotFound
}

func CreateCustomer(ctx context.Context, input *NewCustomer) (*Customer, error) {
	db := config.GetDB()

	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	// exists tier
	if err := utils.ValidateResourceId[CustomerTier](ctx, input.TierId); err != nil {
		return nil, &utils.ValidationError{Field: "tier_id", Reason: "tier not found"}
	}

	customer := Customer{
		Name:     input.Name,
		Email:    input.Email,
		Phone:    input.Phone,
		TierId:   input.TierId,
		IsActive: utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&customer).Error; err != nil {
		return nil, utils.ClassifyDBError("create customer", err)
	}
	return &customer, nil
}

// may return RecordNotFound
func GetCustomer(ctx context.Context, id int) (*Customer, error) {
	db := config.GetDB()
	var customer Customer
	if err := db.WithContext(ctx).First(&customer, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, utils.ClassifyDBError("get customer", err)
	}
	return &customer, nil
}

// ApplyCustomerSpend is the single owned mutation point for total_spent.
// Only the sale coordinator (positive delta on commit) and the compensation
// engine (negative delta on reversal) may call it; no other code path writes
// this aggregate. The row is locked first so concurrent sales for the same
// customer serialize.
func ApplyCustomerSpend(tx *gorm.DB, customerId int, delta decimal.Decimal, purchaseDate *time.Time) error {
	var customer Customer
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&customer, customerId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorRecordNotFound
		}
		return utils.ClassifyDBError("lock customer row", err)
	}

	if purchaseDate != nil {
		if err := tx.Exec("UPDATE customers SET total_spent = total_spent + ?, last_purchase_date = ? WHERE id = ?",
			delta, purchaseDate, customerId).Error; err != nil {
			return utils.ClassifyDBError("apply customer spend", err)
		}
		return nil
	}
	if err := tx.Exec("UPDATE customers SET total_spent = total_spent + ? WHERE id = ?",
		delta, customerId).Error; err != nil {
		return utils.ClassifyDBError("apply customer spend", err)
	}
	return nil
}
