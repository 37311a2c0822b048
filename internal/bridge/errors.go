package bridge

import "errors"

var (
	// ErrActuationFault is reported when the hardware fails a command or
	// raises its fault line.
	ErrActuationFault = errors.New("actuation fault")
	// ErrActuationTimeout is reported when motion does not reach a limit
	// switch in time.
	ErrActuationTimeout = errors.New("actuation timeout")
	// ErrObstructed is reported when the safety beam halts the door, and
	// returned for target writes while it is still broken.
	ErrObstructed = errors.New("obstruction detected")
	// ErrLockUnsupported is reported for lock writes when no lock relay is
	// fitted. LockTargetState is put back and LockCurrentState is left alone.
	ErrLockUnsupported = errors.New("lock not supported by driver")
)
