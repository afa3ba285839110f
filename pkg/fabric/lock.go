package fabric

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// hostLock is an advisory flock(2) lock keyed by node id. It serializes
// check-then-create bridge sequences across provisioning processes on the
// same host; within one process the caller still serializes operations on
// the same kernel object.
type hostLock struct {
	path string
	file *os.File
}

// acquireHostLock takes the exclusive advisory lock for a node, blocking
// until it is available. The lock file persists under dir between runs;
// only the flock matters.
func acquireHostLock(dir, nodeID string) (*hostLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("node-%s.lock", nodeID))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	return &hostLock{path: path, file: file}, nil
}

// release drops the lock. Closing the descriptor releases the flock even if
// the explicit unlock fails.
func (l *hostLock) release() error {
	defer l.file.Close()
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		return fmt.Errorf("failed to unlock %s: %w", l.path, err)
	}
	return nil
}
