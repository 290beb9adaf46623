package domain

import "time"

// RecoveryStrategy identifies one of the predefined recovery procedures.
type RecoveryStrategy string

const (
	StrategyWaitReconnect      RecoveryStrategy = "WAIT_RECONNECT"
	StrategyForceResync        RecoveryStrategy = "FORCE_RESYNC"
	StrategyManualIntervention RecoveryStrategy = "MANUAL_INTERVENTION"
	StrategyDataRebuild        RecoveryStrategy = "DATA_REBUILD"
)

// RecoveryStatus is the session state machine state.
// RUNNING is the only non-terminal state.
type RecoveryStatus string

const (
	RecoveryStatusRunning   RecoveryStatus = "RUNNING"
	RecoveryStatusCompleted RecoveryStatus = "COMPLETED"
	RecoveryStatusFailed    RecoveryStatus = "FAILED"
	RecoveryStatusCancelled RecoveryStatus = "CANCELLED"
)

// RecoveryCounters are incremented by strategy executors as they make progress.
type RecoveryCounters struct {
	EventsProcessed   int64 `json:"events_processed"`
	ConflictsResolved int64 `json:"conflicts_resolved"`
	DataRebuilt       int64 `json:"data_rebuilt"`
	PeersReconnected  int64 `json:"peers_reconnected"`
}

// RecoverySession represents one attempt to resolve a specific partition
// using a specific strategy.
type RecoverySession struct {
	ID           string           `json:"id"`
	NodeID       string           `json:"node_id"`
	PartitionID  string           `json:"partition_id"`
	Strategy     RecoveryStrategy `json:"strategy"`
	Status       RecoveryStatus   `json:"status"`
	StartedAt    time.Time        `json:"started_at"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	Progress     int              `json:"progress"`
	CurrentStep  string           `json:"current_step"`
	ErrorMessage string           `json:"error_msg,omitempty"`
	Counters     RecoveryCounters `json:"recovery_metrics"`
}

// Terminal reports whether the session has reached a final status.
func (s *RecoverySession) Terminal() bool {
	return s.Status != RecoveryStatusRunning
}

// Duration returns the wall-clock duration for finished sessions, 0 otherwise.
func (s *RecoverySession) Duration() time.Duration {
	if s.CompletedAt == nil {
		return 0
	}
	return s.CompletedAt.Sub(s.StartedAt)
}

// Clone returns a deep copy so callers can read a session without racing
// the executor that owns it.
func (s *RecoverySession) Clone() *RecoverySession {
	cp := *s
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// ValidStrategy reports whether v names a known recovery strategy.
func ValidStrategy(v RecoveryStrategy) bool {
	switch v {
	case StrategyWaitReconnect, StrategyForceResync, StrategyManualIntervention, StrategyDataRebuild:
		return true
	}
	return false
}
