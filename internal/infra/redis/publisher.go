package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/meshsync/internal/events"
)

const defaultChannel = "meshsync:recovery_events"

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	Channel  string `yaml:"channel"`
}

// Publisher relays recovery events to a Redis pub/sub channel so suite
// dashboards can render live recovery status.
type Publisher struct {
	rdb     *redis.Client
	channel string
	log     *slog.Logger
}

// envelope is the wire form of a relayed event.
type envelope struct {
	Type    events.Type `json:"type"`
	At      time.Time   `json:"at"`
	Payload any         `json:"payload"`
}

// NewPublisher creates a new Redis event publisher.
func NewPublisher(cfg Config) (*Publisher, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	channel := cfg.Channel
	if channel == "" {
		channel = defaultChannel
	}

	return &Publisher{
		rdb:     rdb,
		channel: channel,
		log:     slog.Default(),
	}, nil
}

// Run consumes the bus until ctx is done and publishes every event.
// Publish failures are logged, never fatal.
func (p *Publisher) Run(ctx context.Context, bus *events.Bus) {
	ch, unsubscribe := bus.Subscribe(64)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			p.publish(ctx, ev)
		}
	}
}

func (p *Publisher) publish(ctx context.Context, ev events.Event) {
	payload, err := json.Marshal(envelope{
		Type:    ev.EventType(),
		At:      time.Now().UTC(),
		Payload: ev,
	})
	if err != nil {
		p.log.Warn("Failed to encode recovery event", "type", ev.EventType(), "error", err)
		return
	}

	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.log.Warn("Failed to publish recovery event", "type", ev.EventType(), "error", err)
	}
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	return p.rdb.Close()
}
