package recovery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/meshsync/internal/core/domain"
	"github.com/vietddude/meshsync/internal/events"
	"github.com/vietddude/meshsync/internal/infra/storage"
	"github.com/vietddude/meshsync/internal/infra/storage/memory"
	"github.com/vietddude/meshsync/internal/mesh"
)

// =============================================================================
// Mock Collaborators
// =============================================================================

type mockDetector struct {
	mu         sync.Mutex
	partitions []*domain.Partition
	plans      map[string]*domain.RecoveryPlan
	planErr    error
	events     chan mesh.PartitionEvent
}

func newMockDetector(partitionIDs ...string) *mockDetector {
	d := &mockDetector{
		plans:  make(map[string]*domain.RecoveryPlan),
		events: make(chan mesh.PartitionEvent, 8),
	}
	for _, id := range partitionIDs {
		d.partitions = append(d.partitions, &domain.Partition{
			ID:         id,
			DetectedAt: time.Now().UTC(),
		})
	}
	return d
}

func (d *mockDetector) ActivePartitions(ctx context.Context) ([]*domain.Partition, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*domain.Partition, len(d.partitions))
	copy(out, d.partitions)
	return out, nil
}

func (d *mockDetector) RecoveryPlan(ctx context.Context, partitionID string) (*domain.RecoveryPlan, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.planErr != nil {
		return nil, d.planErr
	}
	return d.plans[partitionID], nil
}

func (d *mockDetector) Subscribe() (<-chan mesh.PartitionEvent, func()) {
	var once sync.Once
	return d.events, func() { once.Do(func() { close(d.events) }) }
}

func (d *mockDetector) setPartitions(partitions ...*domain.Partition) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.partitions = partitions
}

func (d *mockDetector) setPlan(partitionID string, plan *domain.RecoveryPlan) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.plans[partitionID] = plan
}

type mockEngine struct {
	mu      sync.Mutex
	failFor map[string]error
	synced  []string
}

func (e *mockEngine) SyncWithPeer(ctx context.Context, peer *domain.Peer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err, ok := e.failFor[peer.Name]; ok {
		return err
	}
	e.synced = append(e.synced, peer.Name)
	return nil
}

type mockDiscovery struct {
	peers []*domain.Peer
	err   error
}

func (d *mockDiscovery) DiscoveredPeers(ctx context.Context) ([]*domain.Peer, error) {
	return d.peers, d.err
}

type mockSyncUtils struct {
	mu     sync.Mutex
	resets int
	err    error
}

func (u *mockSyncUtils) ResetSyncState(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return u.err
	}
	u.resets++
	return nil
}

// =============================================================================
// Fixture
// =============================================================================

type fixture struct {
	orch       *Orchestrator
	detector   *mockDetector
	engine     *mockEngine
	discovery  *mockDiscovery
	utils      *mockSyncUtils
	sessions   *memory.SessionRepo
	syncRepo   *memory.SyncSessionRepo
	partitions *memory.PartitionRepo
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()

	store := memory.NewMemoryStorage()
	f := &fixture{
		detector:   newMockDetector("p1", "p2", "p3", "p4"),
		engine:     &mockEngine{failFor: make(map[string]error)},
		discovery:  &mockDiscovery{},
		utils:      &mockSyncUtils{},
		sessions:   memory.NewSessionRepo(store),
		syncRepo:   memory.NewSyncSessionRepo(store),
		partitions: memory.NewPartitionRepo(store),
	}

	cfg := Config{
		NodeID:           "node-a",
		Timeout:          time.Minute,
		SweepInterval:    time.Hour, // tests drive sweep() directly
		WaitPollInterval: 5 * time.Millisecond,
		WaitWindow:       5 * time.Second,
		SettleDelay:      0,
		Detector:         f.detector,
		Engine:           f.engine,
		Discovery:        f.discovery,
		SyncUtils:        f.utils,
		Sessions:         f.sessions,
		SyncSessions:     f.syncRepo,
		Partitions:       f.partitions,
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	f.orch = NewOrchestrator(cfg)
	if err := f.orch.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = f.orch.Stop(stopCtx)
	})
	return f
}

// waitForStatus polls the durable store until the session reaches the
// wanted terminal status.
func (f *fixture) waitForStatus(t *testing.T, id string, want domain.RecoveryStatus) *domain.RecoverySession {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		sess, err := f.sessions.GetByID(context.Background(), id)
		if err == nil && sess.Status == want {
			return sess
		}
		time.Sleep(2 * time.Millisecond)
	}
	sess, err := f.sessions.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("session %s not found: %v", id, err)
	}
	t.Fatalf("session %s stuck in %s, want %s (step=%q err=%q)",
		id, sess.Status, want, sess.CurrentStep, sess.ErrorMessage)
	return nil
}

// =============================================================================
// Initiation
// =============================================================================

func TestInitiateRecovery_PartitionNotFound(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.orch.InitiateRecovery(context.Background(), "nope", domain.StrategyWaitReconnect)
	if !errors.Is(err, ErrPartitionNotFound) {
		t.Fatalf("expected ErrPartitionNotFound, got %v", err)
	}
}

func TestInitiateRecovery_CapacityExceeded(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.MaxConcurrent = 1
		cfg.WaitWindow = 10 * time.Second
	})

	if _, err := f.orch.InitiateRecovery(context.Background(), "p1", domain.StrategyWaitReconnect); err != nil {
		t.Fatalf("first recovery should start: %v", err)
	}

	_, err := f.orch.InitiateRecovery(context.Background(), "p2", domain.StrategyWaitReconnect)
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
}

func TestInitiateRecovery_PartitionExclusive(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.WaitWindow = 10 * time.Second
	})

	if _, err := f.orch.InitiateRecovery(context.Background(), "p1", domain.StrategyWaitReconnect); err != nil {
		t.Fatalf("first recovery should start: %v", err)
	}

	_, err := f.orch.InitiateRecovery(context.Background(), "p1", domain.StrategyForceResync)
	if !errors.Is(err, ErrRecoveryInProgress) {
		t.Fatalf("expected ErrRecoveryInProgress, got %v", err)
	}
}

func TestInitiateRecovery_ResolvesStrategyFromPlan(t *testing.T) {
	f := newFixture(t, nil)
	f.detector.setPlan("p1", &domain.RecoveryPlan{
		PartitionID: "p1",
		Strategy:    domain.StrategyForceResync,
	})

	id, err := f.orch.InitiateRecovery(context.Background(), "p1", "")
	if err != nil {
		t.Fatalf("InitiateRecovery failed: %v", err)
	}

	sess := f.waitForStatus(t, id, domain.RecoveryStatusCompleted)
	if sess.Strategy != domain.StrategyForceResync {
		t.Errorf("expected strategy from plan, got %s", sess.Strategy)
	}
}

func TestInitiateRecovery_NoPlanFailsSession(t *testing.T) {
	f := newFixture(t, nil)

	// No plan registered for p1, and no explicit strategy.
	id, err := f.orch.InitiateRecovery(context.Background(), "p1", "")
	if err != nil {
		t.Fatalf("initiation itself should succeed: %v", err)
	}

	sess := f.waitForStatus(t, id, domain.RecoveryStatusFailed)
	if sess.ErrorMessage == "" {
		t.Error("expected a failure reason on the session")
	}
}

func TestInitiateRecovery_UnknownStrategyFailsSession(t *testing.T) {
	f := newFixture(t, nil)

	id, err := f.orch.InitiateRecovery(context.Background(), "p1", domain.RecoveryStrategy("REBOOT_EVERYTHING"))
	if err != nil {
		t.Fatalf("initiation itself should succeed: %v", err)
	}

	sess := f.waitForStatus(t, id, domain.RecoveryStatusFailed)
	if sess.ErrorMessage == "" {
		t.Error("expected a failure reason on the session")
	}
}

// =============================================================================
// WAIT_RECONNECT
// =============================================================================

func TestWaitReconnect_CompletesWhenPartitionHeals(t *testing.T) {
	f := newFixture(t, nil)

	id, err := f.orch.InitiateRecovery(context.Background(), "p1", domain.StrategyWaitReconnect)
	if err != nil {
		t.Fatalf("InitiateRecovery failed: %v", err)
	}

	// Partition heals shortly after the executor starts polling.
	time.Sleep(15 * time.Millisecond)
	f.detector.setPartitions()

	sess := f.waitForStatus(t, id, domain.RecoveryStatusCompleted)
	if sess.Progress != 100 {
		t.Errorf("expected progress 100, got %d", sess.Progress)
	}
}

func TestWaitReconnect_WindowExpires(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.WaitWindow = 30 * time.Millisecond
	})

	id, err := f.orch.InitiateRecovery(context.Background(), "p1", domain.StrategyWaitReconnect)
	if err != nil {
		t.Fatalf("InitiateRecovery failed: %v", err)
	}

	sess := f.waitForStatus(t, id, domain.RecoveryStatusFailed)
	if sess.ErrorMessage == "" {
		t.Error("expected a timeout reason on the session")
	}
}

// =============================================================================
// FORCE_RESYNC
// =============================================================================

func TestForceResync_SyncsAllPeers(t *testing.T) {
	f := newFixture(t, nil)
	f.discovery.peers = []*domain.Peer{
		{Name: "peer-b", Addr: "b:9000"},
		{Name: "peer-c", Addr: "c:9000"},
	}
	_ = f.syncRepo.Add(context.Background(), &domain.SyncSession{
		ID:     "sync-1",
		NodeID: "node-a",
		Status: domain.SyncSessionStatusFailed,
	})

	id, err := f.orch.InitiateRecovery(context.Background(), "p1", domain.StrategyForceResync)
	if err != nil {
		t.Fatalf("InitiateRecovery failed: %v", err)
	}

	sess := f.waitForStatus(t, id, domain.RecoveryStatusCompleted)
	if sess.Counters.PeersReconnected != 2 {
		t.Errorf("expected 2 reconnected peers, got %d", sess.Counters.PeersReconnected)
	}

	f.utils.mu.Lock()
	resets := f.utils.resets
	f.utils.mu.Unlock()
	if resets != 1 {
		t.Errorf("expected sync state reset once, got %d", resets)
	}

	// The stale sync session was flipped to CANCELLED.
	n, err := f.syncRepo.CancelFailed(context.Background(), "node-a")
	if err != nil || n != 0 {
		t.Errorf("expected no remaining failed sync sessions, got n=%d err=%v", n, err)
	}
}

func TestForceResync_PartialPeerFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.discovery.peers = []*domain.Peer{
		{Name: "peer-b", Addr: "b:9000"},
		{Name: "peer-c", Addr: "c:9000"},
	}
	f.engine.failFor["peer-c"] = errors.New("connection refused")

	id, err := f.orch.InitiateRecovery(context.Background(), "p1", domain.StrategyForceResync)
	if err != nil {
		t.Fatalf("InitiateRecovery failed: %v", err)
	}

	// One peer failing does not fail the recovery.
	sess := f.waitForStatus(t, id, domain.RecoveryStatusCompleted)
	if sess.Counters.PeersReconnected != 1 {
		t.Errorf("expected 1 reconnected peer, got %d", sess.Counters.PeersReconnected)
	}
}

func TestForceResync_NoPeersStillCompletes(t *testing.T) {
	f := newFixture(t, nil)

	id, err := f.orch.InitiateRecovery(context.Background(), "p1", domain.StrategyForceResync)
	if err != nil {
		t.Fatalf("InitiateRecovery failed: %v", err)
	}
	f.waitForStatus(t, id, domain.RecoveryStatusCompleted)
}

// =============================================================================
// MANUAL_INTERVENTION / DATA_REBUILD
// =============================================================================

func TestManualIntervention_FlagsPartition(t *testing.T) {
	f := newFixture(t, nil)

	id, err := f.orch.InitiateRecovery(context.Background(), "p1", domain.StrategyManualIntervention)
	if err != nil {
		t.Fatalf("InitiateRecovery failed: %v", err)
	}
	f.waitForStatus(t, id, domain.RecoveryStatusCompleted)

	flag, ok := f.partitions.ManualFlag("p1")
	if !ok || !flag.Required {
		t.Errorf("expected manual intervention flag, got %+v ok=%v", flag, ok)
	}
}

func TestDataRebuild_FlagsPartition(t *testing.T) {
	f := newFixture(t, nil)

	id, err := f.orch.InitiateRecovery(context.Background(), "p1", domain.StrategyDataRebuild)
	if err != nil {
		t.Fatalf("InitiateRecovery failed: %v", err)
	}
	f.waitForStatus(t, id, domain.RecoveryStatusCompleted)

	flag, ok := f.partitions.RebuildFlag("p1")
	if !ok || !flag.Required {
		t.Errorf("expected data rebuild flag, got %+v ok=%v", flag, ok)
	}
}

// =============================================================================
// Cancellation
// =============================================================================

func TestCancelRecovery_Idempotent(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.WaitWindow = 10 * time.Second
	})

	id, err := f.orch.InitiateRecovery(context.Background(), "p1", domain.StrategyWaitReconnect)
	if err != nil {
		t.Fatalf("InitiateRecovery failed: %v", err)
	}

	if !f.orch.CancelRecoverySession(id) {
		t.Fatal("first cancel should return true")
	}
	if f.orch.CancelRecoverySession(id) {
		t.Error("second cancel should return false")
	}

	sess := f.waitForStatus(t, id, domain.RecoveryStatusCancelled)
	if sess.CompletedAt == nil {
		t.Error("cancelled session should have a completion time")
	}

	// The partition is free again.
	if _, err := f.orch.InitiateRecovery(context.Background(), "p1", domain.StrategyManualIntervention); err != nil {
		t.Errorf("partition should be free after cancel: %v", err)
	}
}

func TestCancelRecovery_UnknownSession(t *testing.T) {
	f := newFixture(t, nil)

	if f.orch.CancelRecoverySession("no-such-session") {
		t.Error("cancel of unknown session should return false")
	}
}

// =============================================================================
// Sweep / Timeout
// =============================================================================

func TestSweep_TimesOutStuckSessions(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.Timeout = 20 * time.Millisecond
		cfg.WaitWindow = 10 * time.Second
	})

	id, err := f.orch.InitiateRecovery(context.Background(), "p1", domain.StrategyWaitReconnect)
	if err != nil {
		t.Fatalf("InitiateRecovery failed: %v", err)
	}

	time.Sleep(40 * time.Millisecond)
	f.orch.sweep()

	sess := f.waitForStatus(t, id, domain.RecoveryStatusFailed)
	if sess.ErrorMessage != "Recovery timeout" {
		t.Errorf("expected timeout reason, got %q", sess.ErrorMessage)
	}
	if len(f.orch.ActiveRecoverySessions()) != 0 {
		t.Error("timed out session should leave the active set")
	}
}

func TestSweep_LeavesFreshSessionsAlone(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.WaitWindow = 10 * time.Second
	})

	id, err := f.orch.InitiateRecovery(context.Background(), "p1", domain.StrategyWaitReconnect)
	if err != nil {
		t.Fatalf("InitiateRecovery failed: %v", err)
	}

	f.orch.sweep()

	sess, err := f.orch.GetRecoverySession(context.Background(), id)
	if err != nil {
		t.Fatalf("GetRecoverySession failed: %v", err)
	}
	if sess.Status != domain.RecoveryStatusRunning {
		t.Errorf("fresh session should survive the sweep, got %s", sess.Status)
	}
}

// =============================================================================
// Active Set / Restore
// =============================================================================

func TestActiveRecoverySessions_OldestFirst(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.WaitWindow = 10 * time.Second
	})

	first, err := f.orch.InitiateRecovery(context.Background(), "p1", domain.StrategyWaitReconnect)
	if err != nil {
		t.Fatalf("InitiateRecovery failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	second, err := f.orch.InitiateRecovery(context.Background(), "p2", domain.StrategyWaitReconnect)
	if err != nil {
		t.Fatalf("InitiateRecovery failed: %v", err)
	}

	active := f.orch.ActiveRecoverySessions()
	if len(active) != 2 {
		t.Fatalf("expected 2 active sessions, got %d", len(active))
	}
	if active[0].ID != first || active[1].ID != second {
		t.Errorf("expected oldest first, got [%s %s]", active[0].ID, active[1].ID)
	}
}

func TestStart_RestoresRunningSessions(t *testing.T) {
	store := memory.NewMemoryStorage()
	sessions := memory.NewSessionRepo(store)
	stale := &domain.RecoverySession{
		ID:          "stale-1",
		NodeID:      "node-a",
		PartitionID: "p1",
		Strategy:    domain.StrategyWaitReconnect,
		Status:      domain.RecoveryStatusRunning,
		StartedAt:   time.Now().UTC().Add(-time.Hour),
	}
	if err := sessions.Create(context.Background(), stale); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	detector := newMockDetector("p1")
	orch := NewOrchestrator(Config{
		NodeID:       "node-a",
		Timeout:      30 * time.Minute,
		Detector:     detector,
		Engine:       &mockEngine{},
		Discovery:    &mockDiscovery{},
		SyncUtils:    &mockSyncUtils{},
		Sessions:     sessions,
		SyncSessions: memory.NewSyncSessionRepo(store),
		Partitions:   memory.NewPartitionRepo(store),
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err := orch.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = orch.Stop(stopCtx)
	}()

	active := orch.ActiveRecoverySessions()
	if len(active) != 1 || active[0].ID != "stale-1" {
		t.Fatalf("expected restored session, got %+v", active)
	}

	// The restored session has no executor; the sweep fails it once it
	// exceeds the recovery timeout.
	orch.sweep()
	sess, err := sessions.GetByID(context.Background(), "stale-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if sess.Status != domain.RecoveryStatusFailed {
		t.Errorf("expected restored session to time out, got %s", sess.Status)
	}
}

func TestStop_CancelsActiveSessions(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.WaitWindow = 10 * time.Second
	})

	id, err := f.orch.InitiateRecovery(context.Background(), "p1", domain.StrategyWaitReconnect)
	if err != nil {
		t.Fatalf("InitiateRecovery failed: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.orch.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	sess, err := f.sessions.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if sess.Status != domain.RecoveryStatusCancelled {
		t.Errorf("expected CANCELLED after shutdown, got %s", sess.Status)
	}
}

// =============================================================================
// Detector Events
// =============================================================================

func waitForSessions(t *testing.T, f *fixture, want int) []*domain.RecoverySession {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		all, err := f.sessions.Find(context.Background(), storage.SessionFilter{NodeID: "node-a"})
		if err == nil && len(all) >= want {
			return all
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("expected %d sessions in store", want)
	return nil
}

func TestDetectorEvent_AutoRecovers(t *testing.T) {
	f := newFixture(t, nil)
	f.detector.setPlan("p1", &domain.RecoveryPlan{
		PartitionID:    "p1",
		Strategy:       domain.StrategyManualIntervention,
		AutoExecutable: true,
	})

	f.detector.events <- mesh.PartitionEvent{
		Kind:      mesh.PartitionDetected,
		Partition: &domain.Partition{ID: "p1"},
	}

	all := waitForSessions(t, f, 1)
	if all[0].PartitionID != "p1" || all[0].Strategy != domain.StrategyManualIntervention {
		t.Errorf("unexpected auto session: %+v", all[0])
	}
}

func TestDetectorEvent_IgnoresNonAutoPlans(t *testing.T) {
	f := newFixture(t, nil)
	f.detector.setPlan("p1", &domain.RecoveryPlan{
		PartitionID:    "p1",
		Strategy:       domain.StrategyDataRebuild,
		AutoExecutable: false,
	})

	f.detector.events <- mesh.PartitionEvent{
		Kind:      mesh.PartitionDetected,
		Partition: &domain.Partition{ID: "p1"},
	}

	time.Sleep(50 * time.Millisecond)
	all, err := f.sessions.Find(context.Background(), storage.SessionFilter{NodeID: "node-a"})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("non-auto plan should not start a session, got %d", len(all))
	}
}

func TestDetectorEvent_CriticalPartition(t *testing.T) {
	f := newFixture(t, nil)
	f.detector.setPlan("p1", &domain.RecoveryPlan{
		PartitionID: "p1",
		Strategy:    domain.StrategyManualIntervention,
	})

	ch, unsub := f.orch.Events().Subscribe(16)
	defer unsub()

	f.detector.events <- mesh.PartitionEvent{
		Kind:      mesh.CriticalPartition,
		Partition: &domain.Partition{ID: "p1"},
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-ch:
			if started, ok := ev.(events.CriticalRecoveryStarted); ok {
				if started.Partition.ID != "p1" || started.SessionID == "" {
					t.Errorf("unexpected critical start event: %+v", started)
				}
				return
			}
		case <-deadline:
			t.Fatal("no critical recovery event observed")
		}
	}
}

// =============================================================================
// Metrics
// =============================================================================

func TestRecoveryMetrics_EmptyHistory(t *testing.T) {
	f := newFixture(t, nil)

	report := f.orch.RecoveryMetrics(context.Background())
	if report.TotalRecoveries != 0 || report.SuccessRate != 0 {
		t.Errorf("expected zeroed report, got %+v", report)
	}
	if report.CommonFailureReasons == nil {
		t.Error("failure reasons should be an empty slice, not nil")
	}
}

func TestRecoveryMetrics_AfterRecoveries(t *testing.T) {
	f := newFixture(t, nil)

	id, err := f.orch.InitiateRecovery(context.Background(), "p1", domain.StrategyManualIntervention)
	if err != nil {
		t.Fatalf("InitiateRecovery failed: %v", err)
	}
	f.waitForStatus(t, id, domain.RecoveryStatusCompleted)

	id, err = f.orch.InitiateRecovery(context.Background(), "p2", domain.RecoveryStrategy("BROKEN"))
	if err != nil {
		t.Fatalf("InitiateRecovery failed: %v", err)
	}
	f.waitForStatus(t, id, domain.RecoveryStatusFailed)

	report := f.orch.RecoveryMetrics(context.Background())
	if report.TotalRecoveries != 2 || report.Completed != 1 || report.Failed != 1 {
		t.Errorf("unexpected report: %+v", report)
	}
	if report.SuccessRate != 0.5 {
		t.Errorf("expected success rate 0.5, got %f", report.SuccessRate)
	}
	if len(report.CommonFailureReasons) != 1 {
		t.Errorf("expected 1 failure reason, got %d", len(report.CommonFailureReasons))
	}
}
