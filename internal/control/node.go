package control

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pressly/goose/v3"

	"github.com/vietddude/meshsync/internal/core/config"
	"github.com/vietddude/meshsync/internal/core/domain"
	"github.com/vietddude/meshsync/internal/core/worker"
	"github.com/vietddude/meshsync/internal/events"
	"github.com/vietddude/meshsync/internal/infra/meshgrpc"
	redisclient "github.com/vietddude/meshsync/internal/infra/redis"
	"github.com/vietddude/meshsync/internal/infra/storage"
	"github.com/vietddude/meshsync/internal/infra/storage/memory"
	"github.com/vietddude/meshsync/internal/infra/storage/postgres"
	"github.com/vietddude/meshsync/internal/mesh"
	"github.com/vietddude/meshsync/internal/recovery"
	"github.com/vietddude/meshsync/internal/status"
)

// Node is the main application struct that manages the recovery
// orchestrator lifecycle.
type Node struct {
	cfg          Config
	orchestrator *recovery.Orchestrator
	bus          *events.Bus
	statusServer *status.Server
	store        *memory.MemoryStorage
	db           *postgres.DB
	publisher    *redisclient.Publisher
	discovery    *meshgrpc.Discovery
	pruner       *worker.Pruner
	log          *slog.Logger
}

// Config holds the application configuration.
type Config struct {
	Port     int
	NodeID   string
	Recovery config.RecoveryConfig
	Peers    []meshgrpc.PeerConfig
	Redis    redisclient.Config
	Database postgres.Config
}

// Collaborators lets callers supply real mesh integrations. Any nil
// field falls back to a logging stub so the node can run standalone.
type Collaborators struct {
	Detector  mesh.PartitionDetector
	Engine    mesh.SyncEngine
	Discovery mesh.PeerDiscovery
	SyncUtils mesh.SyncUtils
}

// NewNode creates a new Node instance with all dependencies initialized.
func NewNode(cfg Config, collab Collaborators) (*Node, error) {

	// 1. Initialize Storage
	var sessionRepo storage.RecoverySessionRepository
	var syncRepo storage.SyncSessionRepository
	var partitionRepo storage.PartitionRepository
	var pruneRepo worker.SessionPruningRepo
	var store *memory.MemoryStorage // Only for cleanup if used
	var db *postgres.DB

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), postgres.Config{
			URL:      cfg.Database.URL,
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		// Run migrations
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		// Assuming migrations are in "migrations" folder relative to CWD
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		sessions := postgres.NewSessionRepo(db)
		sessionRepo = sessions
		pruneRepo = sessions
		syncRepo = postgres.NewSyncSessionRepo(db)
		partitionRepo = postgres.NewPartitionRepo(db)

		slog.Info("Using PostgreSQL storage")
	} else {
		store = memory.NewMemoryStorage()
		sessions := memory.NewSessionRepo(store)
		sessionRepo = sessions
		pruneRepo = sessions
		syncRepo = memory.NewSyncSessionRepo(store)
		partitionRepo = memory.NewPartitionRepo(store)

		slog.Info("Using Memory storage")
	}

	// 2. Initialize Event Bus
	bus := events.NewBus()

	// 3. Resolve Collaborators
	var discovery *meshgrpc.Discovery
	peerDiscovery := collab.Discovery
	if peerDiscovery == nil {
		discovery = meshgrpc.NewDiscovery(cfg.Peers, 0)
		peerDiscovery = discovery
	}

	detector := collab.Detector
	if detector == nil {
		detector = &noopDetector{}
	}
	engine := collab.Engine
	if engine == nil {
		engine = &logSyncEngine{}
	}
	syncUtils := collab.SyncUtils
	if syncUtils == nil {
		syncUtils = &noopSyncUtils{}
	}

	// 4. Initialize Orchestrator
	orchestrator := recovery.NewOrchestrator(recovery.Config{
		NodeID:           cfg.NodeID,
		MaxConcurrent:    cfg.Recovery.MaxConcurrent,
		Timeout:          cfg.Recovery.Timeout,
		SweepInterval:    cfg.Recovery.SweepInterval,
		WaitPollInterval: cfg.Recovery.WaitPollInterval,
		WaitWindow:       cfg.Recovery.WaitWindow,
		SettleDelay:      cfg.Recovery.SettleDelay,
		Detector:         detector,
		Engine:           engine,
		Discovery:        peerDiscovery,
		SyncUtils:        syncUtils,
		Sessions:         sessionRepo,
		SyncSessions:     syncRepo,
		Partitions:       partitionRepo,
		Bus:              bus,
	})

	// 5. Initialize Status Server
	var healthFn func(ctx context.Context) error
	if db != nil {
		healthFn = db.Health
	}
	statusServer := status.NewServer(orchestrator, healthFn, cfg.Port)

	// 6. Initialize Redis Event Relay
	var publisher *redisclient.Publisher
	if cfg.Redis.URL != "" {
		var err error
		publisher, err = redisclient.NewPublisher(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, event relay disabled", "error", err)
		}
	}

	var pruner *worker.Pruner
	if cfg.Recovery.Retention > 0 {
		pruner = worker.NewPruner(cfg.NodeID, cfg.Recovery.Retention, pruneRepo)
	}

	return &Node{
		cfg:          cfg,
		orchestrator: orchestrator,
		bus:          bus,
		statusServer: statusServer,
		store:        store,
		db:           db,
		publisher:    publisher,
		discovery:    discovery,
		pruner:       pruner,
		log:          slog.Default(),
	}, nil
}

// Orchestrator exposes the recovery orchestrator for CLI and tests.
func (n *Node) Orchestrator() *recovery.Orchestrator {
	return n.orchestrator
}

// Start starts the node and all its components.
func (n *Node) Start(ctx context.Context) error {
	if err := n.orchestrator.Start(ctx); err != nil {
		return fmt.Errorf("failed to start orchestrator: %w", err)
	}

	// Start Status Server
	go func() {
		if err := n.statusServer.Start(); err != nil {
			n.log.Error("Status server failed", "error", err)
		}
	}()

	// Start Redis Event Relay
	if n.publisher != nil {
		go n.publisher.Run(ctx, n.bus)
	}

	// Start Session History Pruner
	if n.pruner != nil {
		go n.pruner.Start(ctx)
	}

	n.log.Info("Node started", "node", n.cfg.NodeID, "port", n.cfg.Port)
	return nil
}

// Stop stops the node.
func (n *Node) Stop(ctx context.Context) error {
	n.log.Info("Stopping node...")

	if err := n.orchestrator.Stop(ctx); err != nil {
		n.log.Warn("Orchestrator stop incomplete", "error", err)
	}

	n.bus.Close()

	if n.publisher != nil {
		if err := n.publisher.Close(); err != nil {
			n.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if n.discovery != nil {
		if err := n.discovery.Close(); err != nil {
			n.log.Warn("Failed to close peer connections", "error", err)
		}
	}
	if n.db != nil {
		n.db.Close()
	}

	// Stop Status Server
	return n.statusServer.Stop(ctx)
}

// noopDetector reports no partitions. Used when the node runs without a
// mesh integration, e.g. in standalone or test deployments.
type noopDetector struct{}

func (d *noopDetector) ActivePartitions(ctx context.Context) ([]*domain.Partition, error) {
	return nil, nil
}

func (d *noopDetector) RecoveryPlan(ctx context.Context, partitionID string) (*domain.RecoveryPlan, error) {
	return nil, nil
}

func (d *noopDetector) Subscribe() (<-chan mesh.PartitionEvent, func()) {
	ch := make(chan mesh.PartitionEvent)
	var once sync.Once
	return ch, func() { once.Do(func() { close(ch) }) }
}

// logSyncEngine implements SyncEngine for stdout logging
type logSyncEngine struct{}

func (e *logSyncEngine) SyncWithPeer(ctx context.Context, peer *domain.Peer) error {
	fmt.Printf("[SYNC] %s (%s)\n", peer.Name, peer.Addr)
	return nil
}

// noopSyncUtils implements SyncUtils as a no-op
type noopSyncUtils struct{}

func (u *noopSyncUtils) ResetSyncState(ctx context.Context) error { return nil }
