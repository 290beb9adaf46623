package domain

import "time"

// Partition is a detected state in which one or more peer nodes are
// unreachable from this node. Owned by the partition detector; the
// recovery core only reads it.
type Partition struct {
	ID               string    `json:"id"`
	DetectedAt       time.Time `json:"detected_at"`
	UnreachablePeers []string  `json:"unreachable_peers"`
}

// RecoveryPlan is the detector's proposal for resolving a partition.
// Recomputed on demand, never persisted by the core.
type RecoveryPlan struct {
	PartitionID    string           `json:"partition_id"`
	Strategy       RecoveryStrategy `json:"strategy"`
	AutoExecutable bool             `json:"auto_executable"`
}

// ManualInterventionFlag annotates a partition record as requiring
// human action before recovery can proceed.
type ManualInterventionFlag struct {
	Required    bool      `json:"required"`
	RequestedAt time.Time `json:"requested_at"`
}

// DataRebuildFlag annotates a partition record as requiring an
// out-of-band data rebuild.
type DataRebuildFlag struct {
	Required    bool      `json:"required"`
	RequestedAt time.Time `json:"requested_at"`
}
