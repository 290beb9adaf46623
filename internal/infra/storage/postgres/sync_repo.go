package postgres

import (
	"context"
	"fmt"

	"github.com/vietddude/meshsync/internal/core/domain"
)

// SyncSessionRepo implements storage.SyncSessionRepository using PostgreSQL.
type SyncSessionRepo struct {
	db *DB
}

// NewSyncSessionRepo creates a new PostgreSQL sync session repository.
func NewSyncSessionRepo(db *DB) *SyncSessionRepo {
	return &SyncSessionRepo{db: db}
}

// CancelFailed transitions all FAILED sync sessions of a node to CANCELLED.
func (r *SyncSessionRepo) CancelFailed(ctx context.Context, nodeID string) (int64, error) {
	query := `
		UPDATE sync_sessions
		SET status = $1, updated_at = NOW()
		WHERE node_id = $2 AND status = $3
	`
	res, err := r.db.ExecContext(
		ctx,
		query,
		string(domain.SyncSessionStatusCancelled),
		nodeID,
		string(domain.SyncSessionStatusFailed),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel failed sync sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}
