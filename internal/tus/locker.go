package tus

import (
	"sync"

	"github.com/sjqzhang/tusd"
)

// Locker serialises mutations of one upload. The backend's lockfile guards
// against other processes sharing the upload directory, the held set against
// concurrent requests in this one, since lockfile treats its own pid as the owner.
type Locker struct {
	backend tusd.LockerDataStore

	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocker(backend tusd.LockerDataStore) *Locker {
	return &Locker{backend: backend, held: make(map[string]struct{})}
}

// LockUpload never blocks, a held lock yields tusd.ErrFileLocked.
func (l *Locker) LockUpload(id string) error {
	l.mu.Lock()
	if _, ok := l.held[id]; ok {
		l.mu.Unlock()
		return tusd.ErrFileLocked
	}
	l.held[id] = struct{}{}
	l.mu.Unlock()

	if err := l.backend.LockUpload(id); err != nil {
		l.release(id)
		return err
	}
	return nil
}

func (l *Locker) UnlockUpload(id string) error {
	err := l.backend.UnlockUpload(id)
	l.release(id)
	return err
}

func (l *Locker) release(id string) {
	l.mu.Lock()
	delete(l.held, id)
	l.mu.Unlock()
}
