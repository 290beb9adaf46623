package recovery

import "errors"

var (
	// ErrCapacityExceeded is returned when the concurrency ceiling is
	// reached; the caller should retry later.
	ErrCapacityExceeded = errors.New("recovery capacity exceeded")

	// ErrPartitionNotFound is returned when the target partition healed
	// or never existed; callers can treat it as success.
	ErrPartitionNotFound = errors.New("partition not found")

	// ErrRecoveryInProgress is returned when the partition already has a
	// RUNNING session.
	ErrRecoveryInProgress = errors.New("recovery already in progress for partition")

	// ErrPlanUnavailable means the detector could not produce a recovery
	// plan; fatal to the attempt.
	ErrPlanUnavailable = errors.New("recovery plan unavailable")

	// ErrUnknownStrategy is a configuration error; strategy dispatch
	// fails closed rather than silently no-opping.
	ErrUnknownStrategy = errors.New("unknown recovery strategy")

	// ErrReconnectTimeout is raised by WAIT_RECONNECT when the partition
	// does not heal within the wait window.
	ErrReconnectTimeout = errors.New("reconnection wait timed out")

	// ErrNotRunning signals that a session reached a terminal status
	// while its executor was still working. Never surfaced to callers.
	ErrNotRunning = errors.New("session is not running")
)
