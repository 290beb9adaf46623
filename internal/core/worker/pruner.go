package worker

import (
	"context"
	"log/slog"
	"time"
)

// SessionPruningRepo is the slice of the session store the pruner needs.
type SessionPruningRepo interface {
	DeleteTerminalBefore(ctx context.Context, nodeID string, before time.Time) (int64, error)
}

// Pruner deletes terminal recovery sessions past the retention period so
// long-lived nodes do not accumulate history forever.
type Pruner struct {
	nodeID    string
	retention time.Duration
	sessions  SessionPruningRepo
	log       *slog.Logger
}

// NewPruner creates a new Pruner worker.
func NewPruner(nodeID string, retention time.Duration, sessions SessionPruningRepo) *Pruner {
	return &Pruner{
		nodeID:    nodeID,
		retention: retention,
		sessions:  sessions,
		log:       slog.Default(),
	}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Check interval: 10% of retention period, clamped to [1m, 1h]
	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	threshold := time.Now().UTC().Add(-p.retention)

	n, err := p.sessions.DeleteTerminalBefore(ctx, p.nodeID, threshold)
	if err != nil {
		p.log.Error("Failed to prune recovery sessions", "node", p.nodeID, "error", err)
		return
	}
	if n > 0 {
		p.log.Info("Pruned recovery sessions", "node", p.nodeID, "count", n)
	}
}
