package harness

import "github.com/cockroachdb/errors"

// ErrTransient marks observation errors that are expected while the cluster
// is mid-fault: an unreachable replica during a poll, a request timeout while
// the primary is down. The poller and workload layers retry these; anything
// unmarked propagates as a genuine failure.
var ErrTransient = errors.New("transient cluster observation error")

// ErrConfig marks configuration errors: a crash plan larger than the eligible
// candidate pool, a scenario whose fault budget the cluster cannot satisfy.
// These fail before any cluster mutation is attempted.
var ErrConfig = errors.New("invalid harness configuration")

// MarkTransient tags err as transient so retry loops recognize it.
// Returns nil for a nil err.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrTransient)
}

// IsTransient reports whether err is tagged transient.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool {
	return errors.Is(err, ErrConfig)
}
