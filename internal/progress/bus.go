// Package progress implements the Progress Bus (C7): a per-connection
// event fan-out with at-least-one-per-stage and exactly-one-terminal
// delivery (§4.7), grounded on the teacher's mcpgw.Gateway SSE
// subscriber map.
package progress

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// EventKind identifies one of the four C7 event kinds.
type EventKind string

const (
	EventProgress       EventKind = "discovery.progress"
	EventComplete       EventKind = "discovery.complete"
	EventFailed         EventKind = "discovery.failed"
	EventAutomationAdded EventKind = "automation.added"
	eventHeartbeat      EventKind = "discovery.heartbeat"
)

// Event is one message on a connection's stream.
type Event struct {
	Kind         EventKind   `json:"kind"`
	ConnectionID string      `json:"connection_id"`
	Stage        string      `json:"stage,omitempty"`
	Progress     int         `json:"progress,omitempty"`
	Message      string      `json:"message,omitempty"`
	RunSummary   interface{} `json:"run_summary,omitempty"`
	Error        string      `json:"error,omitempty"`
	ErrorCategory string     `json:"error_category,omitempty"`
	TechnicalError string    `json:"technical_error,omitempty"`
	Automation   interface{} `json:"automation,omitempty"`
	SequenceNo   int64       `json:"sequence_no"`
}

const subscriberBuffer = 32

type subscriber struct {
	ch chan Event
}

// Bus fans out events per connection_id. One session's events are
// delivered to every subscriber registered for that connection_id at
// publish time; a slow subscriber's buffer overflow drops the event
// rather than blocking the publisher (heartbeats and progress events
// are safe to drop — terminal events are never dropped, see publish).
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]map[*subscriber]struct{}
	sequences   map[string]int64
}

func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string]map[*subscriber]struct{}),
		sequences:   make(map[string]int64),
	}
}

// Subscribe registers a new listener for connectionID. The returned
// channel is closed when Unsubscribe is called or ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, connectionID string) <-chan Event {
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}

	b.mu.Lock()
	if b.subscribers[connectionID] == nil {
		b.subscribers[connectionID] = make(map[*subscriber]struct{})
	}
	b.subscribers[connectionID][sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subscribers[connectionID], sub)
		if len(b.subscribers[connectionID]) == 0 {
			delete(b.subscribers, connectionID)
		}
		b.mu.Unlock()
		close(sub.ch)
	}()

	return sub.ch
}

// Publish delivers ev to every current subscriber of ev.ConnectionID.
// Terminal events (complete/failed) are never dropped: when a
// subscriber's buffer is full, its oldest buffered event is evicted to
// make room (P7). Everything else is best-effort.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	b.sequences[ev.ConnectionID]++
	ev.SequenceNo = b.sequences[ev.ConnectionID]
	subs := make([]*subscriber, 0, len(b.subscribers[ev.ConnectionID]))
	for s := range b.subscribers[ev.ConnectionID] {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	terminal := ev.Kind == EventComplete || ev.Kind == EventFailed

	for _, s := range subs {
		if terminal {
			for delivered := false; !delivered; {
				select {
				case s.ch <- ev:
					delivered = true
				default:
					select {
					case <-s.ch:
						log.Debug().Str("connection_id", ev.ConnectionID).Msg("progress bus: evicted buffered event to deliver terminal event")
					default:
					}
				}
			}
			continue
		}
		select {
		case s.ch <- ev:
		default:
			log.Debug().Str("connection_id", ev.ConnectionID).Str("kind", string(ev.Kind)).Msg("progress bus: dropped event for slow subscriber")
		}
	}
}

// Progress publishes a discovery.progress event.
func (b *Bus) Progress(connectionID, stage string, progress int, message string) {
	b.Publish(Event{Kind: EventProgress, ConnectionID: connectionID, Stage: stage, Progress: progress, Message: message})
}

// Complete publishes the terminal discovery.complete event.
func (b *Bus) Complete(connectionID string, runSummary interface{}) {
	b.Publish(Event{Kind: EventComplete, ConnectionID: connectionID, Progress: 100, RunSummary: runSummary})
}

// Failed publishes the terminal discovery.failed event.
func (b *Bus) Failed(connectionID, errMsg, category, technicalError string) {
	b.Publish(Event{Kind: EventFailed, ConnectionID: connectionID, Error: errMsg, ErrorCategory: category, TechnicalError: technicalError})
}

// AutomationAdded publishes an optional automation.added event on
// successful upsert.
func (b *Bus) AutomationAdded(connectionID string, automation interface{}) {
	b.Publish(Event{Kind: EventAutomationAdded, ConnectionID: connectionID, Automation: automation})
}

// Heartbeat starts a goroutine that emits a keep-alive ping every
// interval (default 30s, §4.7) until ctx is cancelled.
func (b *Bus) Heartbeat(ctx context.Context, connectionID string, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.Publish(Event{Kind: eventHeartbeat, ConnectionID: connectionID})
			}
		}
	}()
}
