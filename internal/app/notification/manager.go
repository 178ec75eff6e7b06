// Package notification provides the notification manager for broadcasting
// session progress to watchers.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/meditimer/internal/app/progress"
)

// SendTimeout bounds how long a single subscriber may block a broadcast.
const SendTimeout = 500 * time.Millisecond

// Type identifies what a notification reports.
type Type string

const (
	TypeSnapshot        Type = "snapshot"         // Current progress on attach or refresh
	TypeStateChanged    Type = "state_changed"    // Phase change, pause or resume
	TypeCueStarted      Type = "cue_started"      // A cue began playing
	TypeRepeatCompleted Type = "repeat_completed" // A repeat finished its signaling group
	TypeFinished        Type = "finished"         // The session completed
	TypeStopped         Type = "stopped"          // The session was stopped
	TypeChime           Type = "chime"            // A live chime was played
)

// Notification is one message delivered to watchers.
type Notification struct {
	SequenceNo uint64            `json:"sequence_no"`
	Type       Type              `json:"type"`
	Cue        string            `json:"cue,omitempty"` // Asset reference of the cue, if any
	Snapshot   progress.Snapshot `json:"snapshot"`
	At         time.Time         `json:"at"`
}

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(*Notification) error
}

// StreamFunc adapts a function to the Stream interface.
type StreamFunc func(*Notification) error

// Send calls f(n).
func (f StreamFunc) Send(n *Notification) error {
	return f(n)
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id     string
	stream Stream
}

// Manager manages notification subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:     id,
		stream: stream,
	}
	return id
}

// NextSequenceNo returns the next sequence number and increments the counter.
func (m *Manager) NextSequenceNo() uint64 {
	m.sequenceNoMu.Lock()
	defer m.sequenceNoMu.Unlock()
	m.sequenceNo++
	return m.sequenceNo
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

// Broadcast sends a notification to all subscribers.
// Each stream send runs in its own goroutine bounded by SendTimeout.
func (m *Manager) Broadcast(notification *Notification) {
	notification.SequenceNo = m.NextSequenceNo()
	if notification.At.IsZero() {
		notification.At = time.Now()
	}

	m.mu.RLock()
	// Copy subscriptions to avoid holding lock during sends
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), SendTimeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(notification)
			}()

			select {
			case err := <-done:
				if err != nil {
					zlog.Debug().Err(err).Msgf("notification send failed: subscription_id=%s seq=%d", s.id, notification.SequenceNo)
				}
			case <-ctx.Done():
				zlog.Debug().Msgf("notification send timed out: subscription_id=%s seq=%d", s.id, notification.SequenceNo)
			}
		}(sub)
	}

	wg.Wait()
}

// Send sends a notification to a specific subscriber.
func (m *Manager) Send(subscriptionID string, notification *Notification) error {
	m.mu.RLock()
	sub, ok := m.subscriptions[subscriptionID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	notification.SequenceNo = m.NextSequenceNo()
	if notification.At.IsZero() {
		notification.At = time.Now()
	}
	return sub.stream.Send(notification)
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close closes the manager and removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
}
