package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/meshsync/internal/core/domain"
	"github.com/vietddude/meshsync/internal/metrics"
)

// execute dispatches the session to its strategy executor. Unknown
// strategy values fail closed.
func (o *Orchestrator) execute(ctx context.Context, sess *domain.RecoverySession) error {
	switch sess.Strategy {
	case domain.StrategyWaitReconnect:
		return o.runWaitReconnect(ctx, sess)
	case domain.StrategyForceResync:
		return o.runForceResync(ctx, sess)
	case domain.StrategyManualIntervention:
		return o.runManualIntervention(ctx, sess)
	case domain.StrategyDataRebuild:
		return o.runDataRebuild(ctx, sess)
	case "":
		return fmt.Errorf("%w: partition %s", ErrPlanUnavailable, sess.PartitionID)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, sess.Strategy)
	}
}

// runWaitReconnect polls the detector until the partition disappears
// from the active list or the wait window elapses. Progress scales
// linearly from 20 to 90 across the window.
func (o *Orchestrator) runWaitReconnect(ctx context.Context, sess *domain.RecoverySession) error {
	window := o.cfg.WaitWindow
	deadline := time.Now().Add(window)

	if err := o.report(sess, 20, "Waiting for partition to heal"); err != nil {
		return err
	}

	ticker := time.NewTicker(o.cfg.WaitPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		healed, err := o.partitionHealed(ctx, sess.PartitionID)
		if err != nil {
			// Detector hiccup, keep polling.
			o.log.Warn("Failed to check partition state", "partition", sess.PartitionID, "error", err)
		} else if healed {
			return o.report(sess, 100, "Partition healed")
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: partition %s still active after %s",
				ErrReconnectTimeout, sess.PartitionID, window)
		}

		elapsed := window - time.Until(deadline)
		progress := 20 + int(70*float64(elapsed)/float64(window))
		if progress > 90 {
			progress = 90
		}
		if err := o.report(sess, progress, "Waiting for reconnection"); err != nil {
			return err
		}
	}
}

func (o *Orchestrator) partitionHealed(ctx context.Context, partitionID string) (bool, error) {
	partitions, err := o.cfg.Detector.ActivePartitions(ctx)
	if err != nil {
		return false, err
	}
	for _, p := range partitions {
		if p.ID == partitionID {
			return false, nil
		}
	}
	return true, nil
}

// runForceResync clears stale sync state, then resyncs with every
// discovered peer. Individual peer failures are logged, not fatal.
func (o *Orchestrator) runForceResync(ctx context.Context, sess *domain.RecoverySession) error {
	if err := o.report(sess, 10, "Clearing stale sync sessions"); err != nil {
		return err
	}
	cleared, err := o.cfg.SyncSessions.CancelFailed(ctx, o.cfg.NodeID)
	if err != nil {
		return fmt.Errorf("failed to cancel stale sync sessions: %w", err)
	}
	if cleared > 0 {
		o.log.Info("Cancelled stale sync sessions", "node", o.cfg.NodeID, "count", cleared)
	}

	if err := o.cfg.SyncUtils.ResetSyncState(ctx); err != nil {
		return fmt.Errorf("failed to reset sync state: %w", err)
	}
	if err := o.report(sess, 20, "Sync state reset"); err != nil {
		return err
	}

	peers, err := o.cfg.Discovery.DiscoveredPeers(ctx)
	if err != nil {
		return fmt.Errorf("failed to discover peers: %w", err)
	}

	for i, peer := range peers {
		if err := o.cfg.Engine.SyncWithPeer(ctx, peer); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			metrics.PeerSyncsTotal.WithLabelValues("error").Inc()
			o.log.Warn("Peer sync failed", "peer", peer.Name, "error", err)
		} else {
			metrics.PeerSyncsTotal.WithLabelValues("success").Inc()
			o.bumpPeersReconnected(sess)
		}

		progress := 20 + (i+1)*70/len(peers)
		step := fmt.Sprintf("Synced %d/%d peers", i+1, len(peers))
		if err := o.report(sess, progress, step); err != nil {
			return err
		}
	}
	if len(peers) == 0 {
		if err := o.report(sess, 90, "No peers discovered"); err != nil {
			return err
		}
	}

	// Settle delay lets in-flight sync operations flush.
	if err := o.sleep(ctx, o.cfg.SettleDelay); err != nil {
		return err
	}
	return o.report(sess, 90, "Resync settled")
}

// runManualIntervention flags the partition for human action and
// completes immediately; no automated repair is attempted.
func (o *Orchestrator) runManualIntervention(ctx context.Context, sess *domain.RecoverySession) error {
	if err := o.report(sess, 50, "Requesting manual intervention"); err != nil {
		return err
	}
	flag := domain.ManualInterventionFlag{Required: true, RequestedAt: time.Now().UTC()}
	if err := o.cfg.Partitions.FlagManualIntervention(ctx, sess.PartitionID, flag); err != nil {
		return fmt.Errorf("failed to flag partition for manual intervention: %w", err)
	}
	return o.report(sess, 100, "Manual intervention requested")
}

// runDataRebuild flags the partition for an out-of-band rebuild and
// completes immediately; the rebuild itself is an administrative action.
func (o *Orchestrator) runDataRebuild(ctx context.Context, sess *domain.RecoverySession) error {
	if err := o.report(sess, 50, "Requesting data rebuild"); err != nil {
		return err
	}
	flag := domain.DataRebuildFlag{Required: true, RequestedAt: time.Now().UTC()}
	if err := o.cfg.Partitions.FlagDataRebuild(ctx, sess.PartitionID, flag); err != nil {
		return fmt.Errorf("failed to flag partition for data rebuild: %w", err)
	}
	return o.report(sess, 100, "Data rebuild requested")
}

// sleep is a context-aware non-blocking delay.
func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
