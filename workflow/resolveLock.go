package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/finfacts_backend/config"
	"bitbucket.org/mmdatafocus/finfacts_backend/utils"
)

// AcquireResolveLock serializes fact resolution per report across instances
// using MySQL advisory locks. A held lock fails fast (no wait): concurrent
// resolve triggers for the same report are user errors, not queued work.
// NOTE: GET_LOCK is connection-scoped, so acquire and release must run on one
// pinned connection (gorm Connection) that wraps the resolution transaction;
// the lock must outlive the transaction's COMMIT.
func AcquireResolveLock(tx *gorm.DB, reportId int) error {
	if tx.Dialector.Name() != "mysql" {
		// Test databases have no advisory locks; single-process only.
		return nil
	}
	lockName := fmt.Sprintf("resolve:%d", reportId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 0)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return utils.ErrorResolveInProgress
	}
	return nil
}

func ReleaseResolveLock(tx *gorm.DB, reportId int) {
	if tx.Dialector.Name() != "mysql" {
		return
	}
	lockName := fmt.Sprintf("resolve:%d", reportId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

// TryRedisResolveLock is the fast path in front of the advisory lock: it
// rejects obviously concurrent triggers before touching MySQL. Redis being
// down degrades to the advisory lock alone, never to an error.
func TryRedisResolveLock(ctx context.Context, reportId int, ttl time.Duration) (*redislock.Lock, error) {
	locker := config.GetRedisLock()
	if locker == nil {
		return nil, nil
	}
	lock, err := locker.Obtain(ctx, fmt.Sprintf("resolve:%d", reportId), ttl, nil)
	if err == redislock.ErrNotObtained {
		return nil, utils.ErrorResolveInProgress
	}
	if err != nil {
		return nil, nil
	}
	return lock, nil
}
