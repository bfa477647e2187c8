package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/utils"
)

// Employee is an informational reference on a sale; this engine only checks
// that it exists and is active.
type Employee struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Email     string    `gorm:"size:100" json:"email"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewEmployee struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewEmployee) validate(ctx context.Context, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	// name
	if err := utils.ValidateUnique[Employee](ctx, "name", input.Name, id); err != nil {
		return err
	}
	// email
	if len(input.Email) > 0 {
		if err := utils.ValidateUnique[Employee](ctx, "email", input.Email, id); err != nil {
			return err
		}
	}
	return nil
}

func CreateEmployee(ctx context.Context, input *NewEmployee) (*Employee, error) {
	db := config.GetDB()

	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	employee := Employee{
		Name:     input.Name,
		Email:    input.Email,
		IsActive: utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&employee).Error; err != nil {
		return nil, utils.ClassifyDBError("create employee", err)
	}
	return &employee, nil
}
