package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/retail_backend/config"
)

// check if id exists, return RecordNotFound error
func ValidateResourceId[T any](ctx context.Context, id interface{}) error {

	count, err := ResourceCountWhere[T](ctx, "id = ?", id)
	if err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}

	return nil
}

// check if an active (is_active) resource with the id exists
func ValidateActiveResourceId[T any](ctx context.Context, id interface{}) error {

	count, err := ResourceCountWhere[T](ctx, "id = ? AND is_active = true", id)
	if err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}

	return nil
}

// check field value is unique within the table; excludeId skips the row being
// updated (0 for create)
func ValidateUnique[T any](ctx context.Context, fieldName string, value interface{}, excludeId int) error {

	count, err := ResourceCountWhere[T](ctx, fieldName+" = ? AND id <> ?", value, excludeId)
	if err != nil {
		return err
	}
	if count > 0 {
		return &ValidationError{Field: fieldName, Reason: "already exists"}
	}
	return nil
}

func ResourceCountWhere[T any](ctx context.Context, cond string, values ...interface{}) (int64, error) {
	db := config.GetDB()
	var model T
	var count int64
	if err := db.WithContext(ctx).Model(&model).Where(cond, values...).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
