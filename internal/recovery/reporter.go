package recovery

import (
	"context"
	"log/slog"
	"sort"

	"github.com/vietddude/meshsync/internal/core/domain"
	"github.com/vietddude/meshsync/internal/infra/storage"
)

// FailureReason is a distinct error message with its occurrence count.
type FailureReason struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// Report aggregates the node's recovery history.
type Report struct {
	TotalRecoveries        int             `json:"total_recoveries"`
	Completed              int             `json:"completed"`
	Failed                 int             `json:"failed"`
	AverageDurationSeconds float64         `json:"average_duration_seconds"`
	SuccessRate            float64         `json:"recovery_success_rate"`
	CommonFailureReasons   []FailureReason `json:"common_failure_reasons"`
}

// Reporter computes success/failure statistics over all historical
// sessions of a node.
type Reporter struct {
	nodeID   string
	sessions storage.RecoverySessionRepository
	log      *slog.Logger
}

// NewReporter creates a metrics reporter.
func NewReporter(nodeID string, sessions storage.RecoverySessionRepository, log *slog.Logger) *Reporter {
	if log == nil {
		log = slog.Default()
	}
	return &Reporter{nodeID: nodeID, sessions: sessions, log: log}
}

// Report never fails: it backs observability dashboards, so a store
// failure degrades to a zeroed report instead of propagating.
func (r *Reporter) Report(ctx context.Context) Report {
	out := Report{CommonFailureReasons: []FailureReason{}}

	all, err := r.sessions.Find(ctx, storage.SessionFilter{NodeID: r.nodeID})
	if err != nil {
		r.log.Warn("Failed to load recovery history", "error", err)
		return out
	}

	reasonCounts := make(map[string]int)
	var durationSum float64
	var durationN int

	for _, sess := range all {
		out.TotalRecoveries++
		switch sess.Status {
		case domain.RecoveryStatusCompleted:
			out.Completed++
		case domain.RecoveryStatusFailed:
			out.Failed++
			if sess.ErrorMessage != "" {
				reasonCounts[sess.ErrorMessage]++
			}
		}
		if sess.CompletedAt != nil {
			durationSum += sess.Duration().Seconds()
			durationN++
		}
	}

	if durationN > 0 {
		out.AverageDurationSeconds = durationSum / float64(durationN)
	}
	if out.TotalRecoveries > 0 {
		out.SuccessRate = float64(out.Completed) / float64(out.TotalRecoveries)
	}

	reasons := make([]FailureReason, 0, len(reasonCounts))
	for msg, count := range reasonCounts {
		reasons = append(reasons, FailureReason{Message: msg, Count: count})
	}
	sort.Slice(reasons, func(i, j int) bool {
		if reasons[i].Count != reasons[j].Count {
			return reasons[i].Count > reasons[j].Count
		}
		return reasons[i].Message < reasons[j].Message
	})
	if len(reasons) > 5 {
		reasons = reasons[:5]
	}
	out.CommonFailureReasons = reasons
	return out
}
