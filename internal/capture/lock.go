package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// lockStaleness is the bound after which a .lock file is considered
// abandoned by a crashed writer, per spec.md §4.B.
const lockStaleness = 5 * time.Second

// appendLock serialises append() calls across processes sharing a base
// directory. It is best-effort: if the lock is held and not stale, the
// caller proceeds without it (small appends are atomic at the filesystem
// level, so interleaving is tolerated at the line-boundary granularity the
// reader already skips malformed lines for).
type appendLock struct {
	path string
}

func newAppendLock(baseDir string) *appendLock {
	return &appendLock{path: filepath.Join(baseDir, ".lock")}
}

// acquire attempts to take the lock, returning a release func. If the lock
// is contested and not stale, ok is false and release is a no-op — the
// caller should proceed without holding it.
func (l *appendLock) acquire() (release func(), ok bool) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err == nil {
		fmt.Fprintf(f, "%d\n", os.Getpid())
		f.Close()
		return func() { os.Remove(l.path) }, true
	}
	if !os.IsExist(err) {
		return func() {}, false
	}
	info, statErr := os.Stat(l.path)
	if statErr != nil {
		return func() {}, false
	}
	if time.Since(info.ModTime()) < lockStaleness {
		return func() {}, false
	}
	// Stale lock: steal it.
	if err := os.Remove(l.path); err != nil {
		return func() {}, false
	}
	return l.acquire()
}
