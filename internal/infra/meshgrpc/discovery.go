package meshgrpc

import (
	"context"
	"crypto/tls"
	"log/slog"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vietddude/meshsync/internal/core/domain"
)

// PeerConfig names one statically configured mesh peer.
type PeerConfig struct {
	Name string `yaml:"name"`
	Addr string `yaml:"addr"`
}

// Discovery implements mesh.PeerDiscovery by probing configured peers
// with gRPC health checks. Unreachable peers are excluded from the
// discovered set.
type Discovery struct {
	peers   []PeerConfig
	timeout time.Duration
	log     *slog.Logger

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// NewDiscovery creates a discovery over a static peer list.
func NewDiscovery(peers []PeerConfig, timeout time.Duration) *Discovery {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Discovery{
		peers:   peers,
		timeout: timeout,
		log:     slog.Default(),
		conns:   make(map[string]*grpc.ClientConn),
	}
}

// DiscoveredPeers probes every configured peer and returns those that
// answer the health check.
func (d *Discovery) DiscoveredPeers(ctx context.Context) ([]*domain.Peer, error) {
	var out []*domain.Peer
	for _, peer := range d.peers {
		if err := d.probe(ctx, peer); err != nil {
			d.log.Debug("Peer unreachable", "peer", peer.Name, "addr", peer.Addr, "error", err)
			continue
		}
		out = append(out, &domain.Peer{
			Name:     peer.Name,
			Addr:     peer.Addr,
			LastSeen: time.Now().UTC(),
		})
	}
	return out, nil
}

func (d *Discovery) probe(ctx context.Context, peer PeerConfig) error {
	conn, err := d.conn(peer)
	if err != nil {
		return err
	}

	probeCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	_, err = healthpb.NewHealthClient(conn).Check(probeCtx, &healthpb.HealthCheckRequest{})
	return err
}

// conn returns a cached client connection, dialing on first use.
func (d *Discovery) conn(peer PeerConfig) (*grpc.ClientConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if conn, ok := d.conns[peer.Addr]; ok {
		return conn, nil
	}

	// Scheme decides TLS, mirroring how mesh nodes expose endpoints.
	target := peer.Addr
	var opts []grpc.DialOption
	if strings.HasPrefix(target, "https://") || strings.HasSuffix(target, ":443") {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{})))
		target = strings.TrimPrefix(target, "https://")
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		target = strings.TrimPrefix(target, "http://")
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	d.conns[peer.Addr] = conn
	return conn, nil
}

// Close tears down all cached connections.
func (d *Discovery) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var firstErr error
	for addr, conn := range d.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(d.conns, addr)
	}
	return firstErr
}
