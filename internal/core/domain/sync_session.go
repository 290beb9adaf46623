package domain

import "time"

// SyncSessionStatus tracks the lifecycle of a peer-to-peer sync session.
// These records are owned by the sync engine; the recovery core only
// performs the bulk FAILED -> CANCELLED transition during FORCE_RESYNC.
type SyncSessionStatus string

const (
	SyncSessionStatusActive    SyncSessionStatus = "ACTIVE"
	SyncSessionStatusCompleted SyncSessionStatus = "COMPLETED"
	SyncSessionStatusFailed    SyncSessionStatus = "FAILED"
	SyncSessionStatusCancelled SyncSessionStatus = "CANCELLED"
)

// SyncSession is a single data-exchange session with a peer node.
type SyncSession struct {
	ID        string            `json:"id"`
	NodeID    string            `json:"node_id"`
	PeerName  string            `json:"peer_name"`
	Status    SyncSessionStatus `json:"status"`
	StartedAt time.Time         `json:"started_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
