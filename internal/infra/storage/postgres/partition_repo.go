package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vietddude/meshsync/internal/core/domain"
)

// PartitionRepo implements storage.PartitionRepository using PostgreSQL.
// Annotations are merged into the partition record's JSONB metadata;
// the record itself is owned by the partition detector.
type PartitionRepo struct {
	db *DB
}

// NewPartitionRepo creates a new PostgreSQL partition repository.
func NewPartitionRepo(db *DB) *PartitionRepo {
	return &PartitionRepo{db: db}
}

// FlagManualIntervention marks a partition as requiring human action.
func (r *PartitionRepo) FlagManualIntervention(
	ctx context.Context,
	partitionID string,
	flag domain.ManualInterventionFlag,
) error {
	return r.mergeMetadata(ctx, partitionID, "manual_intervention", flag)
}

// FlagDataRebuild marks a partition as requiring a data rebuild.
func (r *PartitionRepo) FlagDataRebuild(
	ctx context.Context,
	partitionID string,
	flag domain.DataRebuildFlag,
) error {
	return r.mergeMetadata(ctx, partitionID, "data_rebuild", flag)
}

func (r *PartitionRepo) mergeMetadata(ctx context.Context, partitionID, key string, flag any) error {
	payload, err := json.Marshal(map[string]any{key: flag})
	if err != nil {
		return fmt.Errorf("failed to encode partition annotation: %w", err)
	}

	// Upsert so the annotation survives even when the detector has not
	// persisted the partition record yet.
	query := `
		INSERT INTO partitions (id, metadata)
		VALUES ($1, $2::jsonb)
		ON CONFLICT (id) DO UPDATE
		SET metadata = partitions.metadata || EXCLUDED.metadata
	`
	if _, err := r.db.ExecContext(ctx, query, partitionID, string(payload)); err != nil {
		return fmt.Errorf("failed to annotate partition: %w", err)
	}
	return nil
}
