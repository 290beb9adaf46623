package events

import (
	"sync"
	"time"

	"github.com/vietddude/meshsync/internal/core/domain"
)

// Type identifies a bus message type.
type Type string

const (
	TypeStarted                Type = "started"
	TypeStopped                Type = "stopped"
	TypeRecoveryStarted        Type = "recovery_started"
	TypeRecoveryProgress       Type = "recovery_progress"
	TypeRecoveryCompleted      Type = "recovery_completed"
	TypeRecoveryFailed         Type = "recovery_failed"
	TypeRecoveryCancelled      Type = "recovery_cancelled"
	TypeRecoveryTimeout        Type = "recovery_timeout"
	TypeCriticalRecoveryStart  Type = "critical_recovery_started"
	TypeCriticalRecoveryFailed Type = "critical_recovery_failed"
)

// Event is the common interface of all bus messages.
type Event interface {
	EventType() Type
}

// Started signals that the orchestrator began operating.
type Started struct {
	NodeID string
	At     time.Time
}

// Stopped signals that the orchestrator shut down.
type Stopped struct {
	NodeID string
	At     time.Time
}

// RecoveryStarted is emitted when a new session begins RUNNING.
type RecoveryStarted struct {
	Session *domain.RecoverySession
}

// RecoveryProgress is emitted after each persisted progress step.
type RecoveryProgress struct {
	SessionID string
	Progress  int
	Step      string
}

// RecoveryCompleted is emitted when a session finishes successfully.
type RecoveryCompleted struct {
	Session *domain.RecoverySession
}

// RecoveryFailed is emitted when a session's executor fails.
type RecoveryFailed struct {
	Session *domain.RecoverySession
	Err     string
}

// RecoveryCancelled is emitted when a running session is cancelled.
type RecoveryCancelled struct {
	Session *domain.RecoverySession
}

// RecoveryTimeout is emitted when the sweep fails a session that
// exceeded the recovery timeout.
type RecoveryTimeout struct {
	Session *domain.RecoverySession
}

// CriticalRecoveryStarted is emitted when a critical partition triggers
// an automatic recovery.
type CriticalRecoveryStarted struct {
	Partition *domain.Partition
	SessionID string
}

// CriticalRecoveryFailed is emitted when automatic recovery for a
// critical partition could not be started.
type CriticalRecoveryFailed struct {
	Partition *domain.Partition
	Err       string
}

func (Started) EventType() Type                 { return TypeStarted }
func (Stopped) EventType() Type                 { return TypeStopped }
func (RecoveryStarted) EventType() Type         { return TypeRecoveryStarted }
func (RecoveryProgress) EventType() Type        { return TypeRecoveryProgress }
func (RecoveryCompleted) EventType() Type       { return TypeRecoveryCompleted }
func (RecoveryFailed) EventType() Type          { return TypeRecoveryFailed }
func (RecoveryCancelled) EventType() Type       { return TypeRecoveryCancelled }
func (RecoveryTimeout) EventType() Type         { return TypeRecoveryTimeout }
func (CriticalRecoveryStarted) EventType() Type { return TypeCriticalRecoveryStart }
func (CriticalRecoveryFailed) EventType() Type  { return TypeCriticalRecoveryFailed }

// Bus fans events out to subscriber channels. Publish never blocks:
// a subscriber whose buffer is full misses the event rather than
// stalling recovery progress.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber with the given channel buffer.
// The returned func removes the subscription and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, unsubscribe
}

// Publish delivers the event to every subscriber that has buffer space.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber, drop.
		}
	}
}

// Close closes all subscriber channels. Further publishes are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
