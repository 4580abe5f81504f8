package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
)

const recordLockTTL = 15 * time.Second

// acquireRecordLock is best-effort: it narrows contention across instances
// before the row lock is taken. When Redis is unavailable or the lock is
// busy the caller proceeds and the row lock serializes the write.
// The returned release func is never nil.
func (e *Engine) acquireRecordLock(ctx context.Context, recordID int) func() {
	if e.locker == nil {
		return func() {}
	}
	key := fmt.Sprintf("payroll:record:%d", recordID)
	lock, err := e.locker.Obtain(ctx, key, recordLockTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), 20),
	})
	if err != nil {
		fields := logrus.Fields{"field": "acquireRecordLock", "record_id": recordID}
		if errors.Is(err, redislock.ErrNotObtained) {
			e.logger.WithFields(fields).Warn("could not obtain redis lock; proceeding on row lock")
		} else {
			e.logger.WithFields(fields).Warn("error obtaining redis lock; proceeding on row lock: " + err.Error())
		}
		return func() {}
	}
	return func() {
		if releaseErr := lock.Release(context.WithoutCancel(ctx)); releaseErr != nil && !errors.Is(releaseErr, redislock.ErrLockNotHeld) {
			e.logger.WithFields(logrus.Fields{"field": "acquireRecordLock", "record_id": recordID}).
				Warn("failed to release redis lock: " + releaseErr.Error())
		}
	}
}
