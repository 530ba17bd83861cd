// Package instance decides which process owns the application identity and
// lets redundant launches hand control back to it.
//
// The owner ("server") keeps a LockRecord on disk and listens on a loopback
// port. A later launch reads the record, checks that the recorded process is
// still alive, and if so becomes a client that asks the server to show its
// window before exiting. A record whose process is gone is stale and is
// silently replaced.
package instance

import (
	"context"
	"errors"
	"fmt"
	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"
	"io"
	"io/fs"
	"net"
	"os"
	"sync"
	"time"
)

// ActivationCommand is the only payload the activation listener reacts to.
const ActivationCommand = "SHOW_WINDOW"

const (
	maxCommandSize      = 1024
	defaultReadTimeout  = time.Second
	defaultGuardTimeout = 2 * time.Second
	guardRetryDelay     = 50 * time.Millisecond
	acceptRetryDelay    = 100 * time.Millisecond
)

type Role int

const (
	RoleUnclaimed Role = iota
	RoleServer
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleServer:
		return "server"
	case RoleClient:
		return "client"
	default:
		return "unclaimed"
	}
}

type Arbiter struct {
	lockPath     string
	guard        *flock.Flock
	guardTimeout time.Duration
	readTimeout  time.Duration
	pid          int
	alive        func(pid int) bool
	onActivate   func()

	mu       sync.Mutex
	role     Role
	record   LockRecord
	listener net.Listener
	loopDone chan struct{}
}

type ArbiterOption func(*Arbiter)

// WithActivationHandler sets the function run when a client sends
// ActivationCommand. It runs on the accept goroutine.
func WithActivationHandler(fn func()) ArbiterOption {
	return func(a *Arbiter) { a.onActivate = fn }
}

func WithLivenessCheck(fn func(pid int) bool) ArbiterOption {
	return func(a *Arbiter) { a.alive = fn }
}

func WithPID(pid int) ArbiterOption {
	return func(a *Arbiter) { a.pid = pid }
}

func WithReadTimeout(d time.Duration) ArbiterOption {
	return func(a *Arbiter) { a.readTimeout = d }
}

func NewArbiter(lockPath string, opts ...ArbiterOption) *Arbiter {
	a := &Arbiter{
		lockPath:     lockPath,
		guard:        flock.New(lockPath + ".guard"),
		guardTimeout: defaultGuardTimeout,
		readTimeout:  defaultReadTimeout,
		pid:          os.Getpid(),
		alive:        processAlive,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Arbiter) Role() Role {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.role
}

// BecomeServerOrFindExisting resolves this process's role. A server gets its
// own record back; a client gets the record of the live server, or a zero
// record when it could not become server for another reason (returned as
// err). Calling it again on a server returns the same record.
func (a *Arbiter) BecomeServerOrFindExisting() (Role, LockRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.role != RoleUnclaimed {
		return a.role, a.record, nil
	}

	if unlock, err := a.lockGuard(); err != nil {
		log.WithFields(log.Fields{"error": err, "guard": a.guard.Path()}).Warn("Proceeding without lock guard")
	} else {
		defer unlock()
	}

	existing, err := readLockRecord(a.lockPath)
	switch {
	case err == nil:
		if existing.PID != a.pid && a.alive(existing.PID) {
			return a.resolveClient(existing, nil)
		}
		if existing.PID == a.pid {
			log.WithField("record", existing.String()).Info("Reclaiming lock record written by this process")
		} else {
			log.WithField("record", existing.String()).Info("Removing stale lock record")
		}
		if err := removeLockRecord(a.lockPath); err != nil {
			return a.resolveClient(LockRecord{}, fmt.Errorf("remove stale lock record: %w", err))
		}
	case errors.Is(err, fs.ErrNotExist):
	case errors.Is(err, errMalformedRecord):
		log.WithFields(log.Fields{"path": a.lockPath, "error": err}).Info("Removing malformed lock record")
		if err := removeLockRecord(a.lockPath); err != nil {
			return a.resolveClient(LockRecord{}, fmt.Errorf("remove malformed lock record: %w", err))
		}
	default:
		return a.resolveClient(LockRecord{}, fmt.Errorf("read lock record: %w", err))
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return a.resolveClient(LockRecord{}, fmt.Errorf("bind activation listener: %w", err))
	}
	record := LockRecord{PID: a.pid, Port: listener.Addr().(*net.TCPAddr).Port}

	if err := writeLockRecordExclusive(a.lockPath, record); err != nil {
		listener.Close()
		if errors.Is(err, fs.ErrExist) {
			if winner, readErr := readLockRecord(a.lockPath); readErr == nil {
				log.WithField("record", winner.String()).Info("Another instance claimed the lock first")
				return a.resolveClient(winner, nil)
			}
		}
		return a.resolveClient(LockRecord{}, fmt.Errorf("write lock record: %w", err))
	}

	a.role = RoleServer
	a.record = record
	a.listener = listener
	a.loopDone = make(chan struct{})
	go a.acceptLoop(listener, a.loopDone)

	log.WithFields(log.Fields{"pid": record.PID, "port": record.Port}).Info("Claimed application instance")
	return RoleServer, record, nil
}

func (a *Arbiter) resolveClient(record LockRecord, err error) (Role, LockRecord, error) {
	a.role = RoleClient
	a.record = record
	return RoleClient, record, err
}

// Release stops the activation listener and removes the lock record if it
// is still the one this arbiter wrote. It is a no-op for non-servers.
func (a *Arbiter) Release() error {
	a.mu.Lock()
	if a.role != RoleServer {
		a.mu.Unlock()
		return nil
	}
	listener, done, record := a.listener, a.loopDone, a.record
	a.role = RoleUnclaimed
	a.record = LockRecord{}
	a.listener = nil
	a.loopDone = nil
	a.mu.Unlock()

	listener.Close()
	<-done

	if unlock, err := a.lockGuard(); err == nil {
		defer unlock()
	}
	current, err := readLockRecord(a.lockPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read lock record on release: %w", err)
	}
	if current != record {
		log.WithFields(log.Fields{"ours": record.String(), "current": current.String()}).Warn("Lock record owned by another instance, leaving it")
		return nil
	}
	if err := removeLockRecord(a.lockPath); err != nil {
		return fmt.Errorf("remove lock record: %w", err)
	}
	log.WithField("record", record.String()).Info("Released application instance")
	return nil
}

func (a *Arbiter) lockGuard() (func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), a.guardTimeout)
	defer cancel()
	locked, err := a.guard.TryLockContext(ctx, guardRetryDelay)
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, errors.New("lock guard busy")
	}
	return func() {
		if err := a.guard.Unlock(); err != nil {
			log.WithError(err).Warn("Failed to release lock guard")
		}
	}, nil
}

func (a *Arbiter) acceptLoop(listener net.Listener, done chan struct{}) {
	defer close(done)
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.WithError(err).Warn("Activation listener accept failed")
			time.Sleep(acceptRetryDelay)
			continue
		}
		a.handleConn(conn)
	}
}

func (a *Arbiter) handleConn(conn net.Conn) {
	defer conn.Close()
	if err := conn.SetReadDeadline(time.Now().Add(a.readTimeout)); err != nil {
		log.WithError(err).Debug("Failed setting activation read deadline")
	}
	data, err := io.ReadAll(io.LimitReader(conn, maxCommandSize))
	if err != nil && len(data) == 0 {
		log.WithError(err).Debug("Failed reading activation command")
		return
	}
	if string(data) != ActivationCommand {
		log.WithField("bytes", len(data)).Debug("Ignoring unknown activation payload")
		return
	}
	log.Info("Received activation command")
	if a.onActivate != nil {
		a.onActivate()
	}
}
