package storage

import (
	"context"
	"errors"

	"github.com/vietddude/meshsync/internal/core/domain"
)

var (
	// ErrSessionNotFound is returned when a recovery session doesn't exist.
	ErrSessionNotFound = errors.New("recovery session not found")
)

// SessionFilter narrows recovery session queries. Zero-valued fields
// are ignored.
type SessionFilter struct {
	NodeID string
	Status domain.RecoveryStatus
}

// RecoverySessionRepository handles recovery session persistence.
type RecoverySessionRepository interface {
	// Create persists a new session.
	Create(ctx context.Context, session *domain.RecoverySession) error

	// Update persists the current state of an existing session.
	Update(ctx context.Context, session *domain.RecoverySession) error

	// GetByID retrieves a session, ErrSessionNotFound if missing.
	GetByID(ctx context.Context, id string) (*domain.RecoverySession, error)

	// Find retrieves all sessions matching the filter.
	Find(ctx context.Context, filter SessionFilter) ([]*domain.RecoverySession, error)
}

// SyncSessionRepository handles sync session records owned by the sync
// engine. The recovery core only performs the bulk cancel used by
// FORCE_RESYNC to clear stale state.
type SyncSessionRepository interface {
	// CancelFailed transitions all FAILED sync sessions of a node to
	// CANCELLED and returns how many were affected.
	CancelFailed(ctx context.Context, nodeID string) (int64, error)
}

// PartitionRepository annotates partition records owned by the
// partition detector.
type PartitionRepository interface {
	// FlagManualIntervention marks a partition as requiring human action.
	FlagManualIntervention(ctx context.Context, partitionID string, flag domain.ManualInterventionFlag) error

	// FlagDataRebuild marks a partition as requiring a data rebuild.
	FlagDataRebuild(ctx context.Context, partitionID string, flag domain.DataRebuildFlag) error
}
