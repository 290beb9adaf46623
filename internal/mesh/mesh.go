package mesh

import (
	"context"

	"github.com/vietddude/meshsync/internal/core/domain"
)

// PartitionEventKind distinguishes detector notifications.
type PartitionEventKind string

const (
	// PartitionDetected is emitted when the detector observes a new split.
	PartitionDetected PartitionEventKind = "partition_detected"

	// CriticalPartition is emitted when a split is severe enough that
	// recovery should start regardless of the plan's auto flag.
	CriticalPartition PartitionEventKind = "critical_partition"
)

// PartitionEvent is a notification pushed by the partition detector.
type PartitionEvent struct {
	Kind      PartitionEventKind
	Partition *domain.Partition
}

// PartitionDetector decides that a partition exists and proposes how to
// recover from it. Implemented by the surrounding sync runtime.
type PartitionDetector interface {
	// ActivePartitions returns all partitions currently observed.
	ActivePartitions(ctx context.Context) ([]*domain.Partition, error)

	// RecoveryPlan proposes a recovery for a partition.
	// Returns nil when no plan can be produced.
	RecoveryPlan(ctx context.Context, partitionID string) (*domain.RecoveryPlan, error)

	// Subscribe registers for partition notifications. The returned func
	// cancels the subscription and closes the channel.
	Subscribe() (<-chan PartitionEvent, func())
}

// SyncEngine performs the actual peer-to-peer data exchange.
type SyncEngine interface {
	// SyncWithPeer runs a full sync round against one peer.
	SyncWithPeer(ctx context.Context, peer *domain.Peer) error
}

// PeerDiscovery enumerates reachable peer nodes.
type PeerDiscovery interface {
	// DiscoveredPeers returns the peers currently known to this node.
	DiscoveredPeers(ctx context.Context) ([]*domain.Peer, error)
}

// SyncUtils exposes maintenance operations of the sync runtime.
type SyncUtils interface {
	// ResetSyncState clears local sync bookkeeping ahead of a forced resync.
	ResetSyncState(ctx context.Context) error
}
