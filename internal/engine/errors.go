package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrStopped is returned by engine operations after Stop.
	ErrStopped = errors.New("engine stopped")
	// ErrBusy is returned by Resync while a transmission or another resync
	// is in flight.
	ErrBusy = errors.New("engine busy")
	// ErrAlreadyRunning is returned by a second concurrent call to Run.
	ErrAlreadyRunning = errors.New("engine already running")
)

// SyncErrorCode categorizes sync errors.
type SyncErrorCode string

const (
	// ErrCodeTransportFailed means a send failed without a server verdict:
	// network error, timeout or 5xx.
	ErrCodeTransportFailed SyncErrorCode = "TRANSPORT_FAILED"

	// ErrCodeRejected means the authority refused the command.
	ErrCodeRejected SyncErrorCode = "REJECTED"

	// ErrCodeResyncFailed means no snapshot could be fetched. The engine
	// stays in Recovering until Resync succeeds.
	ErrCodeResyncFailed SyncErrorCode = "RESYNC_FAILED"

	// ErrCodePrecondition means the command did not apply to the replica.
	// Nothing was enqueued.
	ErrCodePrecondition SyncErrorCode = "PRECONDITION"
)

// SyncError carries structured context about a sync failure.
type SyncError struct {
	Code    SyncErrorCode
	Message string

	// CommandID and Action identify the command involved, when there is one.
	CommandID string
	Action    string

	// Dropped counts the unacknowledged commands discarded on entering
	// Recovering.
	Dropped int

	Err error
}

func (e *SyncError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.CommandID != "" {
		msg += fmt.Sprintf(" (command=%s, action=%s)", e.CommandID, e.Action)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// rejecter is implemented by transport errors that carry a server verdict.
type rejecter interface {
	Rejected() bool
}

// classify maps a transport error to a sync error code.
func classify(err error) SyncErrorCode {
	var r rejecter
	if errors.As(err, &r) && r.Rejected() {
		return ErrCodeRejected
	}
	return ErrCodeTransportFailed
}

func hasCode(err error, code SyncErrorCode) bool {
	var se *SyncError
	return errors.As(err, &se) && se.Code == code
}

// IsRejected reports whether err is a sync error for a rejected command.
func IsRejected(err error) bool { return hasCode(err, ErrCodeRejected) }

// IsResyncError reports whether err is a failed snapshot fetch.
func IsResyncError(err error) bool { return hasCode(err, ErrCodeResyncFailed) }

// IsPreconditionError reports whether Dispatch refused a command because it
// did not apply to the replica.
func IsPreconditionError(err error) bool { return hasCode(err, ErrCodePrecondition) }
