package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/meshsync/internal/core/domain"
	"github.com/vietddude/meshsync/internal/infra/storage"
)

// SessionRepo implements storage.RecoverySessionRepository using PostgreSQL.
type SessionRepo struct {
	db *DB
}

// NewSessionRepo creates a new PostgreSQL recovery session repository.
func NewSessionRepo(db *DB) *SessionRepo {
	return &SessionRepo{db: db}
}

type sessionRow struct {
	ID                string       `db:"id"`
	NodeID            string       `db:"node_id"`
	PartitionID       string       `db:"partition_id"`
	Strategy          string       `db:"strategy"`
	Status            string       `db:"status"`
	StartedAt         time.Time    `db:"started_at"`
	CompletedAt       sql.NullTime `db:"completed_at"`
	Progress          int          `db:"progress"`
	CurrentStep       string       `db:"current_step"`
	ErrorMsg          string       `db:"error_msg"`
	EventsProcessed   int64        `db:"events_processed"`
	ConflictsResolved int64        `db:"conflicts_resolved"`
	DataRebuilt       int64        `db:"data_rebuilt"`
	PeersReconnected  int64        `db:"peers_reconnected"`
}

func (r sessionRow) toDomain() *domain.RecoverySession {
	sess := &domain.RecoverySession{
		ID:           r.ID,
		NodeID:       r.NodeID,
		PartitionID:  r.PartitionID,
		Strategy:     domain.RecoveryStrategy(r.Strategy),
		Status:       domain.RecoveryStatus(r.Status),
		StartedAt:    r.StartedAt,
		Progress:     r.Progress,
		CurrentStep:  r.CurrentStep,
		ErrorMessage: r.ErrorMsg,
		Counters: domain.RecoveryCounters{
			EventsProcessed:   r.EventsProcessed,
			ConflictsResolved: r.ConflictsResolved,
			DataRebuilt:       r.DataRebuilt,
			PeersReconnected:  r.PeersReconnected,
		},
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time
		sess.CompletedAt = &t
	}
	return sess
}

// Create persists a new recovery session.
func (r *SessionRepo) Create(ctx context.Context, sess *domain.RecoverySession) error {
	query := `
		INSERT INTO recovery_sessions (
			id, node_id, partition_id, strategy, status, started_at, completed_at,
			progress, current_step, error_msg,
			events_processed, conflicts_resolved, data_rebuilt, peers_reconnected
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.db.ExecContext(
		ctx,
		query,
		sess.ID,
		sess.NodeID,
		sess.PartitionID,
		string(sess.Strategy),
		string(sess.Status),
		sess.StartedAt,
		nullTime(sess.CompletedAt),
		sess.Progress,
		sess.CurrentStep,
		sess.ErrorMessage,
		sess.Counters.EventsProcessed,
		sess.Counters.ConflictsResolved,
		sess.Counters.DataRebuilt,
		sess.Counters.PeersReconnected,
	)
	if err != nil {
		return fmt.Errorf("failed to create recovery session: %w", err)
	}
	return nil
}

// Update persists the current state of a session.
func (r *SessionRepo) Update(ctx context.Context, sess *domain.RecoverySession) error {
	query := `
		UPDATE recovery_sessions
		SET status = $2, completed_at = $3, progress = $4, current_step = $5, error_msg = $6,
			events_processed = $7, conflicts_resolved = $8, data_rebuilt = $9, peers_reconnected = $10
		WHERE id = $1
	`
	res, err := r.db.ExecContext(
		ctx,
		query,
		sess.ID,
		string(sess.Status),
		nullTime(sess.CompletedAt),
		sess.Progress,
		sess.CurrentStep,
		sess.ErrorMessage,
		sess.Counters.EventsProcessed,
		sess.Counters.ConflictsResolved,
		sess.Counters.DataRebuilt,
		sess.Counters.PeersReconnected,
	)
	if err != nil {
		return fmt.Errorf("failed to update recovery session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrSessionNotFound
	}
	return nil
}

// GetByID retrieves a session by ID.
func (r *SessionRepo) GetByID(ctx context.Context, id string) (*domain.RecoverySession, error) {
	query := `
		SELECT id, node_id, partition_id, strategy, status, started_at, completed_at,
			progress, current_step, error_msg,
			events_processed, conflicts_resolved, data_rebuilt, peers_reconnected
		FROM recovery_sessions
		WHERE id = $1
	`
	var row sessionRow
	err := r.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recovery session: %w", err)
	}
	return row.toDomain(), nil
}

// Find retrieves sessions matching the filter, newest first.
func (r *SessionRepo) Find(ctx context.Context, filter storage.SessionFilter) ([]*domain.RecoverySession, error) {
	query := `
		SELECT id, node_id, partition_id, strategy, status, started_at, completed_at,
			progress, current_step, error_msg,
			events_processed, conflicts_resolved, data_rebuilt, peers_reconnected
		FROM recovery_sessions
		WHERE ($1 = '' OR node_id = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY started_at DESC
	`
	var rows []sessionRow
	err := r.db.SelectContext(ctx, &rows, query, filter.NodeID, string(filter.Status))
	if err != nil {
		return nil, fmt.Errorf("failed to find recovery sessions: %w", err)
	}

	sessions := make([]*domain.RecoverySession, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, row.toDomain())
	}
	return sessions, nil
}

// DeleteTerminalBefore drops finished sessions older than the cutoff.
func (r *SessionRepo) DeleteTerminalBefore(ctx context.Context, nodeID string, before time.Time) (int64, error) {
	query := `
		DELETE FROM recovery_sessions
		WHERE node_id = $1 AND status <> $2 AND completed_at < $3
	`
	res, err := r.db.ExecContext(ctx, query, nodeID, string(domain.RecoveryStatusRunning), before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune recovery sessions: %w", err)
	}
	return res.RowsAffected()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
