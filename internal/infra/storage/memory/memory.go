package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/meshsync/internal/core/domain"
	"github.com/vietddude/meshsync/internal/infra/storage"
)

// MemoryStorage backs all in-memory repositories. Used for tests and
// for running a node without a database.
type MemoryStorage struct {
	sessions     map[string]*domain.RecoverySession
	syncSessions map[string]*domain.SyncSession
	manualFlags  map[string]domain.ManualInterventionFlag
	rebuildFlags map[string]domain.DataRebuildFlag
	mu           sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		sessions:     make(map[string]*domain.RecoverySession),
		syncSessions: make(map[string]*domain.SyncSession),
		manualFlags:  make(map[string]domain.ManualInterventionFlag),
		rebuildFlags: make(map[string]domain.DataRebuildFlag),
	}
}

// -----------------------------------------------------------------------------
// Recovery Session Repository
// -----------------------------------------------------------------------------

type SessionRepo struct {
	store *MemoryStorage
}

func NewSessionRepo(store *MemoryStorage) *SessionRepo {
	return &SessionRepo{store: store}
}

func (r *SessionRepo) Create(ctx context.Context, session *domain.RecoverySession) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.sessions[session.ID] = session.Clone()
	return nil
}

func (r *SessionRepo) Update(ctx context.Context, session *domain.RecoverySession) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.sessions[session.ID]; !ok {
		return storage.ErrSessionNotFound
	}
	r.store.sessions[session.ID] = session.Clone()
	return nil
}

func (r *SessionRepo) GetByID(ctx context.Context, id string) (*domain.RecoverySession, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if s, ok := r.store.sessions[id]; ok {
		return s.Clone(), nil
	}
	return nil, storage.ErrSessionNotFound
}

func (r *SessionRepo) Find(ctx context.Context, filter storage.SessionFilter) ([]*domain.RecoverySession, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.RecoverySession
	for _, s := range r.store.sessions {
		if filter.NodeID != "" && s.NodeID != filter.NodeID {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		out = append(out, s.Clone())
	}
	return out, nil
}

// DeleteTerminalBefore drops finished sessions older than the cutoff.
func (r *SessionRepo) DeleteTerminalBefore(ctx context.Context, nodeID string, before time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var n int64
	for id, s := range r.store.sessions {
		if s.NodeID != nodeID || !s.Terminal() {
			continue
		}
		if s.CompletedAt != nil && s.CompletedAt.Before(before) {
			delete(r.store.sessions, id)
			n++
		}
	}
	return n, nil
}

// -----------------------------------------------------------------------------
// Sync Session Repository
// -----------------------------------------------------------------------------

type SyncSessionRepo struct {
	store *MemoryStorage
}

func NewSyncSessionRepo(store *MemoryStorage) *SyncSessionRepo {
	return &SyncSessionRepo{store: store}
}

// Add seeds a sync session record. Only used by tests and dev tooling;
// production records are written by the sync engine.
func (r *SyncSessionRepo) Add(ctx context.Context, s *domain.SyncSession) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.syncSessions[s.ID] = s
	return nil
}

func (r *SyncSessionRepo) CancelFailed(ctx context.Context, nodeID string) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var n int64
	for _, s := range r.store.syncSessions {
		if s.NodeID == nodeID && s.Status == domain.SyncSessionStatusFailed {
			s.Status = domain.SyncSessionStatusCancelled
			n++
		}
	}
	return n, nil
}

// -----------------------------------------------------------------------------
// Partition Repository
// -----------------------------------------------------------------------------

type PartitionRepo struct {
	store *MemoryStorage
}

func NewPartitionRepo(store *MemoryStorage) *PartitionRepo {
	return &PartitionRepo{store: store}
}

func (r *PartitionRepo) FlagManualIntervention(ctx context.Context, partitionID string, flag domain.ManualInterventionFlag) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.manualFlags[partitionID] = flag
	return nil
}

func (r *PartitionRepo) FlagDataRebuild(ctx context.Context, partitionID string, flag domain.DataRebuildFlag) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.rebuildFlags[partitionID] = flag
	return nil
}

// ManualFlag returns the stored manual-intervention flag for a partition.
func (r *PartitionRepo) ManualFlag(partitionID string) (domain.ManualInterventionFlag, bool) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	f, ok := r.store.manualFlags[partitionID]
	return f, ok
}

// RebuildFlag returns the stored data-rebuild flag for a partition.
func (r *PartitionRepo) RebuildFlag(partitionID string) (domain.DataRebuildFlag, bool) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	f, ok := r.store.rebuildFlags[partitionID]
	return f, ok
}
