package instance

import (
	log "github.com/sirupsen/logrus"
	"net"
	"strconv"
	"time"
)

const defaultDialTimeout = time.Second

// NativeActivator raises a top-level window found by exact title.
type NativeActivator interface {
	Activate(title string) error
}

// Activator brings an already running instance to the foreground.
type Activator struct {
	native      NativeActivator
	title       string
	dialTimeout time.Duration
}

func NewActivator(native NativeActivator, title string) *Activator {
	return &Activator{native: native, title: title, dialTimeout: defaultDialTimeout}
}

func (a *Activator) WithDialTimeout(d time.Duration) *Activator {
	a.dialTimeout = d
	return a
}

// ActivateExisting tries the native window path first and falls back to
// sending ActivationCommand to record.Port. It never blocks longer than the
// dial timeout and reports whether either path succeeded.
func (a *Activator) ActivateExisting(record LockRecord) bool {
	if a.native != nil {
		err := a.native.Activate(a.title)
		if err == nil {
			log.WithField("title", a.title).Info("Activated existing window natively")
			return true
		}
		log.WithFields(log.Fields{"title": a.title, "error": err}).Debug("Native activation failed, falling back to socket")
	}

	if record.Port == 0 {
		log.Warn("No activation port known for existing instance")
		return false
	}

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(record.Port))
	conn, err := net.DialTimeout("tcp", addr, a.dialTimeout)
	if err != nil {
		log.WithFields(log.Fields{"addr": addr, "error": err}).Warn("Failed to reach existing instance")
		return false
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(a.dialTimeout)); err != nil {
		log.WithError(err).Debug("Failed setting activation write deadline")
	}
	if _, err := conn.Write([]byte(ActivationCommand)); err != nil {
		log.WithFields(log.Fields{"addr": addr, "error": err}).Warn("Failed to send activation command")
		return false
	}
	log.WithField("addr", addr).Info("Sent activation command to existing instance")
	return true
}
