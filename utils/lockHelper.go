package utils

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/bakery_backend/config"
	"github.com/bsm/redislock"
)

var ErrLockNotObtained = errors.New("lock already held")

// ObtainLock takes a redis lease for lockKey and returns it for the caller to
// release. Returns ErrLockNotObtained when another holder has it, and
// (nil, nil) when redis is not configured so callers can fall back to the
// database advisory lock.
func ObtainLock(ctx context.Context, lockKey string, ttl time.Duration, moduleName string, functionName string) (*redislock.Lock, error) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		return nil, nil
	}
	lock, err := locker.Obtain(ctx, lockKey, ttl, nil)
	if err == redislock.ErrNotObtained {
		config.LogError(logger, moduleName, functionName, "Could not obtain lock", lockKey, err)
		return nil, ErrLockNotObtained
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining lock", lockKey, err)
		return nil, err
	}
	return lock, nil
}
