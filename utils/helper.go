package utils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"github.com/bsm/redislock"
	"github.com/go-playground/validator/v10"
)

var mutex sync.Mutex

var validate = validator.New()

// ValidateStruct runs validator.v10 over an input struct and folds the first
// failure into the engine's ValidationError type.
func ValidateStruct(input any) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		first := verrs[0]
		return &ValidationError{
			Field:  strings.ToLower(first.Field()),
			Reason: fmt.Sprintf("failed '%s' validation", first.Tag()),
		}
	}
	return &ValidationError{Reason: err.Error()}
}

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

// ObtainStockLock takes the cross-process guard for administrative stock
// adjustments. Ad hoc adjustments are the code path that can violate the
// ascending-product-id lock discipline, so they are serialized per product
// outside the database as well. Caller must Release the returned lock.
func ObtainStockLock(ctx context.Context, productId int, moduleName string, functionName string) (*redislock.Lock, error) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		// Avoid nil-pointer panics when Redis lock isn't initialized yet.
		config.LogError(logger, moduleName, functionName, "Redis lock not initialized", productId, errors.New("redis lock is nil"))
		return nil, errors.New("service not ready (redis lock not initialized)")
	}
	lockKey := fmt.Sprintf("stockAdjustLock:%d", productId)
	lock, err := locker.Obtain(ctx, lockKey, 30*time.Second, nil)
	if err == redislock.ErrNotObtained {
		config.LogError(logger, moduleName, functionName, "Could not obtain stock lock for product", productId, err)
		return nil, &ContentionError{Err: err}
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining stock lock for product", productId, err)
		return nil, err
	}
	return lock, nil
}

// GetSequence returns the next sequence number for T, redis-first with a DB
// fallback (max(sequence_no)) when the counter is cold.
func GetSequence[T any](ctx context.Context) (int64, error) {
	var model T
	mutex.Lock()
	defer mutex.Unlock()
	cacheKey := strings.ToLower(GetTypeName[T]()) + "_seq"
	var seqNo int64
	var err error
	db := config.GetDB()

	for {
		seqNo, err = config.GetRedisCounter(ctx, cacheKey)
		if err != nil {
			return 0, err
		}
		// if not found in redis (or redis not wired), seed from db
		if seqNo <= 1 {
			// get max seq no from db
			var dbSeq *int64
			if err := db.WithContext(ctx).Model(&model).Select("max(sequence_no)").
				Scan(&dbSeq).Error; err != nil {
				return 0, err
			}
			// in case db has no rows yet
			if dbSeq == nil {
				seqNo = 0
			} else {
				seqNo = *dbSeq
			}
			seqNo++
			if err := config.SetRedisObject(cacheKey, &seqNo, 0); err != nil {
				return 0, err
			}
		}
		// check if sequence number already exists in db
		err = ValidateUnique[T](ctx, "sequence_no", seqNo, 0)
		if err == nil {
			break
		}
	}
	return seqNo, nil
}
