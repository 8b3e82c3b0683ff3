package tus

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	log "github.com/sjqzhang/seelog"
	"github.com/sjqzhang/tusd"
)

// ReapStale cleans up uploads whose byte store saw no write for maxAge.
// Incomplete ones are terminated. Complete ones only missed their move, which
// is retried. Uploads locked by a running request are skipped.
func (handler *Handler) ReapStale(now time.Time, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	infos, err := handler.store.ListInfos()
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, info := range infos {
		if !stale(handler.uploadInfo(info), now, maxAge) {
			continue
		}
		if err := handler.locker.LockUpload(info.ID); err != nil {
			if !errors.Is(err, tusd.ErrFileLocked) {
				log.Warnf("lock stale upload %s: %v", info.ID, err)
			}
			continue
		}
		// re-read under the lock, a PATCH may have landed meanwhile
		current, err := handler.getUpload(info.ID)
		if err == nil && stale(current, now, maxAge) {
			if current.Complete() {
				_, err = handler.finalize(current)
			} else if err = handler.store.Terminate(current.ID); err == nil {
				reaped++
				handler.stats.AddCountInt64(statReaped, 1)
				uploadsReaped.Inc()
				handler.logEvent("UploadReaped", current, logrus.Fields{"idle": now.Sub(current.UpdatedAt).String()})
			}
		}
		handler.locker.UnlockUpload(info.ID)
		if err != nil && !isNotFound(err) {
			log.Errorf("reap upload %s: %v", info.ID, err)
		}
	}
	return reaped, nil
}

// StartReaper runs ReapStale every interval until ctx is done.
func (handler *Handler) StartReaper(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 || maxAge <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n, err := handler.ReapStale(now, maxAge); err != nil {
					log.Errorf("reaper: %v", err)
				} else if n > 0 {
					log.Infof("reaper removed %d stale uploads", n)
				}
			}
		}
	}()
}

func stale(info UploadInfo, now time.Time, maxAge time.Duration) bool {
	return !info.UpdatedAt.IsZero() && now.Sub(info.UpdatedAt) > maxAge
}
