package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/bakery_backend/config"
	"bitbucket.org/mmdatafocus/bakery_backend/utils"
	"github.com/bsm/redislock"
	"gorm.io/gorm"
)

// AcquireRunLease takes the run-level mutual exclusion lease, keyed by run
// date, so a slow run can never overlap the next trigger. Returns
// (nil, nil) when redis is not configured; callers then rely on the per-cart
// database advisory lock alone.
func AcquireRunLease(ctx context.Context, runDate time.Time, ttl time.Duration) (*redislock.Lock, error) {
	lockKey := fmt.Sprintf("materialize:%s", runDate.Format("2006-01-02"))
	return utils.ObtainLock(ctx, lockKey, ttl, "workflow", "AcquireRunLease")
}

// AcquireCartMergeLock serializes merges per cart tuple across instances
// using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB that runs the merge transaction.
func AcquireCartMergeLock(tx *gorm.DB, cartKey string) error {
	lockName := fmt.Sprintf("cartmerge:%s", cartKey)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire merge lock for cart %s", cartKey)
	}
	return nil
}

// ReleaseCartMergeLock must run while the transaction is still live;
// statements issued after Commit/Rollback never reach the connection and
// the lock stays pinned to it until the pool recycles it.
func ReleaseCartMergeLock(tx *gorm.DB, cartKey string) {
	lockName := fmt.Sprintf("cartmerge:%s", cartKey)
	var ok int
	if err := tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&ok).Error; err != nil {
		config.LogError(config.GetLogger(), "workflow", "ReleaseCartMergeLock", "release advisory lock", lockName, err)
	}
}

// withCartMergeLock runs fn inside one transaction holding the cart advisory
// lock. The deferred release fires when fn returns, before gorm commits or
// rolls back, so it executes on the still-open transaction connection.
func withCartMergeLock(db *gorm.DB, cartKey string, fn func(tx *gorm.DB) error) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := AcquireCartMergeLock(tx, cartKey); err != nil {
			return err
		}
		defer ReleaseCartMergeLock(tx, cartKey)
		return fn(tx)
	})
}
