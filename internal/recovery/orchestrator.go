package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vietddude/meshsync/internal/core/domain"
	"github.com/vietddude/meshsync/internal/events"
	"github.com/vietddude/meshsync/internal/infra/storage"
	"github.com/vietddude/meshsync/internal/mesh"
	"github.com/vietddude/meshsync/internal/metrics"
)

const (
	// DefaultMaxConcurrent is the default recovery concurrency ceiling.
	DefaultMaxConcurrent = 3

	// DefaultTimeout is the default per-session recovery timeout,
	// enforced externally by the sweep.
	DefaultTimeout = 30 * time.Minute

	// DefaultSweepInterval is how often the sweep runs.
	DefaultSweepInterval = 30 * time.Second

	// DefaultWaitPollInterval is the WAIT_RECONNECT detector poll interval.
	DefaultWaitPollInterval = 5 * time.Second

	// DefaultWaitWindow bounds how long WAIT_RECONNECT waits for healing.
	DefaultWaitWindow = 5 * time.Minute

	// DefaultSettleDelay lets in-flight syncs flush after FORCE_RESYNC.
	DefaultSettleDelay = 10 * time.Second
)

// Config holds orchestrator tunables and collaborators.
type Config struct {
	NodeID           string
	MaxConcurrent    int
	Timeout          time.Duration
	SweepInterval    time.Duration
	WaitPollInterval time.Duration
	WaitWindow       time.Duration
	SettleDelay      time.Duration

	Detector  mesh.PartitionDetector
	Engine    mesh.SyncEngine
	Discovery mesh.PeerDiscovery
	SyncUtils mesh.SyncUtils

	Sessions     storage.RecoverySessionRepository
	SyncSessions storage.SyncSessionRepository
	Partitions   storage.PartitionRepository

	Bus    *events.Bus
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.WaitPollInterval <= 0 {
		c.WaitPollInterval = DefaultWaitPollInterval
	}
	if c.WaitWindow <= 0 {
		c.WaitWindow = DefaultWaitWindow
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.Bus == nil {
		c.Bus = events.NewBus()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// activeEntry tracks one RUNNING session and its executor's cancel func.
type activeEntry struct {
	session *domain.RecoverySession
	cancel  context.CancelFunc
}

// Orchestrator coordinates recovery sessions for a node: lifecycle,
// concurrency ceiling, partition exclusivity, the periodic sweep, and
// auto-recovery from detector events.
type Orchestrator struct {
	cfg      Config
	log      *slog.Logger
	bus      *events.Bus
	reporter *Reporter

	mu          sync.Mutex
	active      map[string]*activeEntry
	byPartition map[string]string
	started     bool

	runCtx      context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	sweeping    atomic.Bool
	execWG      sync.WaitGroup
	loopWG      sync.WaitGroup
}

// NewOrchestrator creates an orchestrator. Missing tunables get defaults.
func NewOrchestrator(cfg Config) *Orchestrator {
	cfg.applyDefaults()
	return &Orchestrator{
		cfg:         cfg,
		log:         cfg.Logger,
		bus:         cfg.Bus,
		reporter:    NewReporter(cfg.NodeID, cfg.Sessions, cfg.Logger),
		active:      make(map[string]*activeEntry),
		byPartition: make(map[string]string),
	}
}

// Events returns the bus carrying recovery notifications.
func (o *Orchestrator) Events() *events.Bus {
	return o.bus
}

// Start loads sessions that were RUNNING at last shutdown back into the
// active set, subscribes to detector events, and begins the sweep.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return errors.New("orchestrator already started")
	}
	o.started = true
	o.runCtx, o.cancel = context.WithCancel(ctx)
	o.mu.Unlock()

	restored, err := o.cfg.Sessions.Find(ctx, storage.SessionFilter{
		NodeID: o.cfg.NodeID,
		Status: domain.RecoveryStatusRunning,
	})
	if err != nil {
		// Best effort: an unreachable store must not prevent startup.
		o.log.Warn("Failed to load running recovery sessions", "error", err)
		restored = nil
	}

	o.mu.Lock()
	for _, sess := range restored {
		if _, exists := o.byPartition[sess.PartitionID]; exists {
			continue
		}
		_, cancel := context.WithCancel(o.runCtx)
		o.active[sess.ID] = &activeEntry{session: sess, cancel: cancel}
		o.byPartition[sess.PartitionID] = sess.ID
		metrics.ActiveRecoverySessions.Inc()
	}
	count := len(o.active)
	o.mu.Unlock()
	if count > 0 {
		o.log.Info("Restored running recovery sessions", "count", count)
	}

	if o.cfg.Detector != nil {
		ch, unsub := o.cfg.Detector.Subscribe()
		o.unsubscribe = unsub
		o.loopWG.Add(1)
		go o.consumeDetectorEvents(o.runCtx, ch)
	}

	o.loopWG.Add(1)
	go o.sweepLoop(o.runCtx)

	o.bus.Publish(events.Started{NodeID: o.cfg.NodeID, At: time.Now().UTC()})
	o.log.Info("Recovery orchestrator started",
		"node", o.cfg.NodeID,
		"max_concurrent", o.cfg.MaxConcurrent,
		"timeout", o.cfg.Timeout,
	)
	return nil
}

// Stop halts the sweep, cancels every still-RUNNING session it owns,
// and waits for executors to exit (bounded by ctx).
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return nil
	}
	o.started = false
	cancel := o.cancel
	unsub := o.unsubscribe
	o.unsubscribe = nil
	ids := make([]string, 0, len(o.active))
	for id := range o.active {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	for _, id := range ids {
		o.CancelRecoverySession(id)
	}
	cancel()

	done := make(chan struct{})
	go func() {
		o.execWG.Wait()
		o.loopWG.Wait()
		close(done)
	}()

	var stopErr error
	select {
	case <-done:
	case <-ctx.Done():
		o.log.Warn("Timed out waiting for recovery executors to stop")
		stopErr = ctx.Err()
	}

	o.bus.Publish(events.Stopped{NodeID: o.cfg.NodeID, At: time.Now().UTC()})
	o.log.Info("Recovery orchestrator stopped", "node", o.cfg.NodeID)
	return stopErr
}

// InitiateRecovery opens a new RUNNING session for the partition and
// schedules its strategy executor asynchronously. The caller receives
// the session ID immediately, not the outcome. An empty strategy means
// "use the detector's proposed plan".
func (o *Orchestrator) InitiateRecovery(
	ctx context.Context,
	partitionID string,
	strategy domain.RecoveryStrategy,
) (string, error) {
	partitions, err := o.cfg.Detector.ActivePartitions(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list active partitions: %w", err)
	}
	found := false
	for _, p := range partitions {
		if p.ID == partitionID {
			found = true
			break
		}
	}
	if !found {
		return "", fmt.Errorf("%w: %s", ErrPartitionNotFound, partitionID)
	}

	if strategy == "" {
		plan, err := o.cfg.Detector.RecoveryPlan(ctx, partitionID)
		if err != nil {
			o.log.Warn("Failed to resolve recovery plan", "partition", partitionID, "error", err)
		} else if plan != nil {
			strategy = plan.Strategy
		}
		// Still empty: the executor dispatch fails the session with
		// ErrPlanUnavailable instead of rejecting the caller.
	}

	sess := &domain.RecoverySession{
		ID:          uuid.New().String(),
		NodeID:      o.cfg.NodeID,
		PartitionID: partitionID,
		Strategy:    strategy,
		Status:      domain.RecoveryStatusRunning,
		StartedAt:   time.Now().UTC(),
		CurrentStep: "Initializing recovery",
	}

	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return "", errors.New("orchestrator is not started")
	}
	if len(o.active) >= o.cfg.MaxConcurrent {
		n := len(o.active)
		o.mu.Unlock()
		return "", fmt.Errorf("%w: %d sessions active", ErrCapacityExceeded, n)
	}
	if runningID, busy := o.byPartition[partitionID]; busy {
		o.mu.Unlock()
		return "", fmt.Errorf("%w: session %s", ErrRecoveryInProgress, runningID)
	}
	sessCtx, sessCancel := context.WithCancel(o.runCtx)
	o.active[sess.ID] = &activeEntry{session: sess, cancel: sessCancel}
	o.byPartition[partitionID] = sess.ID
	if err := o.cfg.Sessions.Create(ctx, sess); err != nil {
		delete(o.active, sess.ID)
		delete(o.byPartition, partitionID)
		sessCancel()
		o.mu.Unlock()
		return "", fmt.Errorf("failed to persist recovery session: %w", err)
	}
	clone := sess.Clone()
	o.execWG.Add(1)
	o.mu.Unlock()

	metrics.ActiveRecoverySessions.Inc()
	o.bus.Publish(events.RecoveryStarted{Session: clone})
	o.log.Info("Recovery started",
		"session", sess.ID,
		"partition", partitionID,
		"strategy", sess.Strategy,
	)

	go o.run(sessCtx, sess)
	return sess.ID, nil
}

func (o *Orchestrator) run(ctx context.Context, sess *domain.RecoverySession) {
	defer o.execWG.Done()

	if err := o.execute(ctx, sess); err != nil {
		o.finishFailed(sess, err)
		return
	}
	o.finishCompleted(sess)
}

// GetRecoverySession returns a copy of the session, preferring the live
// in-memory state over the durable store.
func (o *Orchestrator) GetRecoverySession(ctx context.Context, id string) (*domain.RecoverySession, error) {
	o.mu.Lock()
	if entry, ok := o.active[id]; ok {
		clone := entry.session.Clone()
		o.mu.Unlock()
		return clone, nil
	}
	o.mu.Unlock()
	return o.cfg.Sessions.GetByID(ctx, id)
}

// ActiveRecoverySessions returns copies of all tracked RUNNING sessions,
// oldest first.
func (o *Orchestrator) ActiveRecoverySessions() []*domain.RecoverySession {
	o.mu.Lock()
	out := make([]*domain.RecoverySession, 0, len(o.active))
	for _, entry := range o.active {
		out = append(out, entry.session.Clone())
	}
	o.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// CancelRecoverySession cancels a RUNNING session. Returns false when
// the session does not exist or is not RUNNING; repeat cancels are
// no-ops. The executor observes the status change at its next
// checkpoint; it is not forcibly interrupted.
func (o *Orchestrator) CancelRecoverySession(id string) bool {
	o.mu.Lock()
	entry, ok := o.active[id]
	if !ok || entry.session.Status != domain.RecoveryStatusRunning {
		o.mu.Unlock()
		return false
	}
	sess := entry.session
	now := time.Now().UTC()
	sess.Status = domain.RecoveryStatusCancelled
	sess.CompletedAt = &now
	sess.CurrentStep = "Cancelled"
	if err := o.cfg.Sessions.Update(context.Background(), sess); err != nil {
		o.log.Warn("Failed to persist cancelled session", "session", id, "error", err)
	}
	entry.cancel()
	removed := o.dropLocked(sess)
	clone := sess.Clone()
	o.mu.Unlock()

	if removed {
		metrics.ActiveRecoverySessions.Dec()
	}
	metrics.RecoveriesTotal.WithLabelValues(string(sess.Strategy), string(domain.RecoveryStatusCancelled)).Inc()
	o.bus.Publish(events.RecoveryCancelled{Session: clone})
	o.log.Info("Recovery cancelled", "session", id, "partition", sess.PartitionID)
	return true
}

// RecoveryMetrics aggregates historical sessions for this node.
// Never fails: store errors degrade to a zeroed report.
func (o *Orchestrator) RecoveryMetrics(ctx context.Context) Report {
	return o.reporter.Report(ctx)
}

// dropLocked removes the session from the active set and the partition
// index. Caller holds o.mu.
func (o *Orchestrator) dropLocked(sess *domain.RecoverySession) bool {
	_, ok := o.active[sess.ID]
	if !ok {
		return false
	}
	delete(o.active, sess.ID)
	if o.byPartition[sess.PartitionID] == sess.ID {
		delete(o.byPartition, sess.PartitionID)
	}
	return true
}

func (o *Orchestrator) finishCompleted(sess *domain.RecoverySession) {
	o.mu.Lock()
	if sess.Status != domain.RecoveryStatusRunning {
		// Cancelled or timed out while the executor was finishing.
		o.dropLocked(sess)
		o.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	sess.Status = domain.RecoveryStatusCompleted
	sess.Progress = 100
	sess.CompletedAt = &now
	sess.CurrentStep = "Recovery completed"
	if err := o.cfg.Sessions.Update(context.Background(), sess); err != nil {
		o.log.Warn("Failed to persist completed session", "session", sess.ID, "error", err)
	}
	removed := o.dropLocked(sess)
	clone := sess.Clone()
	o.mu.Unlock()

	if removed {
		metrics.ActiveRecoverySessions.Dec()
	}
	metrics.RecoveriesTotal.WithLabelValues(string(sess.Strategy), string(domain.RecoveryStatusCompleted)).Inc()
	metrics.RecoveryDuration.WithLabelValues(string(sess.Strategy)).Observe(clone.Duration().Seconds())
	o.bus.Publish(events.RecoveryCompleted{Session: clone})
	o.log.Info("Recovery completed",
		"session", sess.ID,
		"partition", sess.PartitionID,
		"duration", clone.Duration(),
	)
}

func (o *Orchestrator) finishFailed(sess *domain.RecoverySession, cause error) {
	o.mu.Lock()
	if sess.Status != domain.RecoveryStatusRunning {
		o.dropLocked(sess)
		o.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	sess.Status = domain.RecoveryStatusFailed
	sess.CompletedAt = &now
	sess.ErrorMessage = cause.Error()
	sess.CurrentStep = "Recovery failed"
	if err := o.cfg.Sessions.Update(context.Background(), sess); err != nil {
		o.log.Warn("Failed to persist failed session", "session", sess.ID, "error", err)
	}
	removed := o.dropLocked(sess)
	clone := sess.Clone()
	o.mu.Unlock()

	if removed {
		metrics.ActiveRecoverySessions.Dec()
	}
	metrics.RecoveriesTotal.WithLabelValues(string(sess.Strategy), string(domain.RecoveryStatusFailed)).Inc()
	metrics.RecoveryDuration.WithLabelValues(string(sess.Strategy)).Observe(clone.Duration().Seconds())
	o.bus.Publish(events.RecoveryFailed{Session: clone, Err: cause.Error()})
	o.log.Error("Recovery failed",
		"session", sess.ID,
		"partition", sess.PartitionID,
		"error", cause,
	)
}

// report records a progress step: clamp monotonic, persist, then notify.
// Returns ErrNotRunning when the session was cancelled or timed out.
func (o *Orchestrator) report(sess *domain.RecoverySession, progress int, step string) error {
	o.mu.Lock()
	if sess.Status != domain.RecoveryStatusRunning {
		o.mu.Unlock()
		return ErrNotRunning
	}
	if progress < sess.Progress {
		progress = sess.Progress
	}
	if progress > 100 {
		progress = 100
	}
	sess.Progress = progress
	sess.CurrentStep = step
	err := o.cfg.Sessions.Update(context.Background(), sess)
	o.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to persist progress: %w", err)
	}
	o.bus.Publish(events.RecoveryProgress{SessionID: sess.ID, Progress: progress, Step: step})
	return nil
}

func (o *Orchestrator) bumpPeersReconnected(sess *domain.RecoverySession) {
	o.mu.Lock()
	sess.Counters.PeersReconnected++
	o.mu.Unlock()
}

// -----------------------------------------------------------------------------
// Periodic sweep
// -----------------------------------------------------------------------------

func (o *Orchestrator) sweepLoop(ctx context.Context) {
	defer o.loopWG.Done()

	ticker := time.NewTicker(o.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.sweep()
		}
	}
}

// sweep enforces the recovery timeout, re-persists RUNNING sessions, and
// drops terminal sessions that are still in the active set. Overlapping
// sweeps are skipped, not queued.
func (o *Orchestrator) sweep() {
	if !o.sweeping.CompareAndSwap(false, true) {
		o.log.Debug("Sweep already in progress, skipping")
		return
	}
	defer o.sweeping.Store(false)

	ctx := context.Background()
	now := time.Now().UTC()
	var timedOut []*domain.RecoverySession

	o.mu.Lock()
	for id, entry := range o.active {
		sess := entry.session

		if sess.Status != domain.RecoveryStatusRunning {
			// Terminal sessions remove themselves; this is defensive.
			o.dropLocked(sess)
			continue
		}

		if now.Sub(sess.StartedAt) > o.cfg.Timeout {
			completed := now
			sess.Status = domain.RecoveryStatusFailed
			sess.ErrorMessage = "Recovery timeout"
			sess.CompletedAt = &completed
			sess.CurrentStep = "Recovery timeout"
			if err := o.cfg.Sessions.Update(ctx, sess); err != nil {
				o.log.Warn("Failed to persist timed out session", "session", id, "error", err)
			}
			entry.cancel()
			o.dropLocked(sess)
			timedOut = append(timedOut, sess.Clone())
			continue
		}

		// Reconcile the durable store with in-memory progress.
		if err := o.cfg.Sessions.Update(ctx, sess); err != nil {
			o.log.Warn("Failed to reconcile session", "session", id, "error", err)
		}
	}
	o.mu.Unlock()

	for _, sess := range timedOut {
		metrics.ActiveRecoverySessions.Dec()
		metrics.RecoveryTimeoutsTotal.Inc()
		metrics.RecoveriesTotal.WithLabelValues(string(sess.Strategy), string(domain.RecoveryStatusFailed)).Inc()
		o.bus.Publish(events.RecoveryTimeout{Session: sess})
		o.log.Warn("Recovery timed out",
			"session", sess.ID,
			"partition", sess.PartitionID,
			"started_at", sess.StartedAt,
		)
	}
}

// -----------------------------------------------------------------------------
// Detector event wiring
// -----------------------------------------------------------------------------

func (o *Orchestrator) consumeDetectorEvents(ctx context.Context, ch <-chan mesh.PartitionEvent) {
	defer o.loopWG.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			o.handlePartitionEvent(ctx, ev)
		}
	}
}

func (o *Orchestrator) handlePartitionEvent(ctx context.Context, ev mesh.PartitionEvent) {
	// A misbehaving handler must never take down the consumer loop.
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("Partition event handler panicked", "kind", ev.Kind, "panic", r)
		}
	}()

	if ev.Partition == nil {
		return
	}
	switch ev.Kind {
	case mesh.PartitionDetected:
		o.autoRecover(ctx, ev.Partition)
	case mesh.CriticalPartition:
		o.criticalRecover(ctx, ev.Partition)
	}
}

func (o *Orchestrator) autoRecover(ctx context.Context, p *domain.Partition) {
	plan, err := o.cfg.Detector.RecoveryPlan(ctx, p.ID)
	if err != nil {
		o.log.Warn("Failed to resolve recovery plan", "partition", p.ID, "error", err)
		return
	}
	if plan == nil || !plan.AutoExecutable {
		o.log.Debug("Partition not auto-recoverable", "partition", p.ID)
		return
	}

	id, err := o.InitiateRecovery(ctx, p.ID, plan.Strategy)
	if err != nil {
		o.log.Warn("Auto recovery not started", "partition", p.ID, "error", err)
		return
	}
	o.log.Info("Auto recovery started", "partition", p.ID, "session", id)
}

func (o *Orchestrator) criticalRecover(ctx context.Context, p *domain.Partition) {
	id, err := o.InitiateRecovery(ctx, p.ID, "")
	if err != nil {
		o.bus.Publish(events.CriticalRecoveryFailed{Partition: p, Err: err.Error()})
		o.log.Error("Critical recovery failed to start", "partition", p.ID, "error", err)
		return
	}
	o.bus.Publish(events.CriticalRecoveryStarted{Partition: p, SessionID: id})
	o.log.Warn("Critical recovery started", "partition", p.ID, "session", id)
}
