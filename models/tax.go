package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Tax struct {
	ID        int             `gorm:"primary_key" json:"id"`
	Name      string          `gorm:"size:100;not null" json:"name" binding:"required"`
	Rate      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"rate" binding:"required"`
	IsActive  *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewTax struct {
	Name string          `json:"name" validate:"required"`
	Rate decimal.Decimal `json:"rate"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewTax) validate(ctx context.Context, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if input.Rate.IsNegative() {
		return &utils.ValidationError{Field: "rate", Reason: "must not be negative"}
	}
	// name
	if err := utils.ValidateUnique[Tax](ctx, "name", input.Name, id); err != nil {
		return err
	}
	return nil
}

func CreateTax(ctx context.Context, input *NewTax) (*Tax, error) {
	db := config.GetDB()

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	tax := Tax{
		Name:     input.Name,
		Rate:     input.Rate,
		IsActive: utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&tax).Error; err != nil {
		return nil, utils.ClassifyDBError("create tax", err)
	}
	return &tax, nil
}

// may return RecordNotFound
func GetTax(ctx context.Context, id int) (*Tax, error) {
	db := config.GetDB()
	var tax Tax
	if err := db.WithContext(ctx).First(&tax, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, utils.ClassifyDBError("get tax", err)
	}
	return &tax, nil
}
