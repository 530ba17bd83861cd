package instance

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

var errMalformedRecord = errors.New("malformed lock record")

// LockRecord identifies the process that owns the application identity and
// the loopback port it listens on for activation requests.
type LockRecord struct {
	PID  int
	Port int
}

func (r LockRecord) String() string {
	return fmt.Sprintf("%d:%d", r.PID, r.Port)
}

func ParseLockRecord(content string) (LockRecord, error) {
	pidStr, portStr, ok := strings.Cut(strings.TrimSpace(content), ":")
	if !ok {
		return LockRecord{}, fmt.Errorf("%w: %q", errMalformedRecord, content)
	}
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return LockRecord{}, fmt.Errorf("%w: bad pid %q", errMalformedRecord, pidStr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return LockRecord{}, fmt.Errorf("%w: bad port %q", errMalformedRecord, portStr)
	}
	return LockRecord{PID: pid, Port: port}, nil
}

func readLockRecord(path string) (LockRecord, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return LockRecord{}, err
	}
	return ParseLockRecord(string(b))
}

// writeLockRecordExclusive fails with fs.ErrExist if another process created
// the record first.
func writeLockRecordExclusive(path string, record LockRecord) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err = f.WriteString(record.String()); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err = f.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

func removeLockRecord(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
