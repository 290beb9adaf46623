package worker

import (
	"context"
	"testing"
	"time"

	"github.com/vietddude/meshsync/internal/core/domain"
	"github.com/vietddude/meshsync/internal/infra/storage/memory"
)

func TestPruner_RemovesOldTerminalSessions(t *testing.T) {
	repo := memory.NewSessionRepo(memory.NewMemoryStorage())
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	oldDone := old.Add(time.Minute)
	recent := time.Now().UTC().Add(-time.Hour)
	recentDone := recent.Add(time.Minute)

	seed := []*domain.RecoverySession{
		{ID: "old-done", NodeID: "node-a", Status: domain.RecoveryStatusCompleted, StartedAt: old, CompletedAt: &oldDone},
		{ID: "old-running", NodeID: "node-a", Status: domain.RecoveryStatusRunning, StartedAt: old},
		{ID: "recent-done", NodeID: "node-a", Status: domain.RecoveryStatusFailed, StartedAt: recent, CompletedAt: &recentDone},
		{ID: "other-node", NodeID: "node-b", Status: domain.RecoveryStatusCompleted, StartedAt: old, CompletedAt: &oldDone},
	}
	for _, s := range seed {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	p := NewPruner("node-a", 24*time.Hour, repo)
	p.prune(ctx)

	if _, err := repo.GetByID(ctx, "old-done"); err == nil {
		t.Error("expected old terminal session pruned")
	}
	for _, id := range []string{"old-running", "recent-done", "other-node"} {
		if _, err := repo.GetByID(ctx, id); err != nil {
			t.Errorf("session %s should survive pruning: %v", id, err)
		}
	}
}

func TestPruner_DisabledWithoutRetention(t *testing.T) {
	p := NewPruner("node-a", 0, nil)

	done := make(chan struct{})
	go func() {
		p.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start should return immediately when retention is disabled")
	}
}
