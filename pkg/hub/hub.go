// Package hub fans out per-scan progress events to any number of live
// observers. Publishing never blocks on a slow observer.
package hub

import (
	"context"
	"sync"
	"time"

	"vigil/pkg/logger"
)

const (
	DefaultKeepalive     = 30 * time.Second
	DefaultMailboxSize   = 1024
	DefaultCompletedRing = 256
)

// Observer receives hub activity counts. Implementations must not block.
type Observer interface {
	EventPublished(eventType EventType, delivered int)
	EventDropped(scanID string)
	SubscriberAttached(scanID string)
	SubscriberDetached(scanID string)
}

type nopObserver struct{}

func (nopObserver) EventPublished(EventType, int) {}
func (nopObserver) EventDropped(string)           {}
func (nopObserver) SubscriberAttached(string)     {}
func (nopObserver) SubscriberDetached(string)     {}

// CompletionLookup reports whether a scan already finished. Used for scans
// that completed before the in-memory ring can answer.
type CompletionLookup func(ctx context.Context, scanID string) bool

type Options struct {
	Keepalive     time.Duration
	MailboxSize   int
	CompletedRing int
	Observer      Observer
	Lookup        CompletionLookup
	Logger        *logger.Logger
}

type channelState int

const (
	stateOpen channelState = iota
	stateClosing
)

type channel struct {
	state channelState
	subs  map[*Subscription]struct{}
}

type Hub struct {
	mu       sync.Mutex
	channels map[string]*channel

	// recently completed scan ids, oldest evicted first
	completed map[string]struct{}
	ring      []string
	ringPos   int

	keepalive   time.Duration
	mailboxSize int
	observer    Observer
	lookup      CompletionLookup
	logger      *logger.Logger
}

func New(opts Options) *Hub {
	if opts.Keepalive <= 0 {
		opts.Keepalive = DefaultKeepalive
	}
	if opts.MailboxSize <= 0 {
		opts.MailboxSize = DefaultMailboxSize
	}
	if opts.CompletedRing <= 0 {
		opts.CompletedRing = DefaultCompletedRing
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}

	return &Hub{
		channels:    make(map[string]*channel),
		completed:   make(map[string]struct{}, opts.CompletedRing),
		ring:        make([]string, opts.CompletedRing),
		keepalive:   opts.Keepalive,
		mailboxSize: opts.MailboxSize,
		observer:    opts.Observer,
		lookup:      opts.Lookup,
		logger:      opts.Logger,
	}
}

// Publish enqueues ev for every current observer of scanID. Events for a
// scan nobody is watching, or one that is already completing, are dropped.
func (h *Hub) Publish(scanID string, ev Event) {
	if ev.Type == TypeComplete {
		h.MarkComplete(scanID)
		return
	}

	ev.ScanID = scanID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.channels[scanID]
	if !ok || ch.state != stateOpen {
		h.observer.EventPublished(ev.Type, 0)
		return
	}

	delivered := 0
	for sub := range ch.subs {
		if sub.deliver(ev) {
			delivered++
		} else {
			h.observer.EventDropped(scanID)
		}
	}
	h.observer.EventPublished(ev.Type, delivered)
}

// MarkComplete sends the terminal event to every observer of scanID and
// stops accepting further events for it. Observers joining afterwards get
// the connected event and then an immediate end of stream.
func (h *Hub) MarkComplete(scanID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.remember(scanID)

	ch, ok := h.channels[scanID]
	if !ok || ch.state == stateClosing {
		return
	}
	ch.state = stateClosing

	ev := Complete(scanID)
	for sub := range ch.subs {
		sub.deliver(ev)
	}
	h.observer.EventPublished(TypeComplete, len(ch.subs))

	if len(ch.subs) == 0 {
		delete(h.channels, scanID)
	}

	h.logger.WithFields(logger.Fields{
		"scan_id":     scanID,
		"subscribers": len(ch.subs),
	}).Debug("Scan log stream completed")
}

// Subscribe registers a new observer for scanID. The caller must Close the
// subscription unless it reads through to the end of the stream.
func (h *Hub) Subscribe(ctx context.Context, scanID string) *Subscription {
	finished := false
	if h.lookup != nil && !h.isRemembered(scanID) {
		finished = h.lookup(ctx, scanID)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	sub := newSubscription(h, scanID, h.mailboxSize)

	if finished || h.isRememberedLocked(scanID) {
		sub.ended = true
		return sub
	}

	ch, ok := h.channels[scanID]
	if !ok {
		ch = &channel{state: stateOpen, subs: make(map[*Subscription]struct{})}
		h.channels[scanID] = ch
	}
	if ch.state == stateClosing {
		sub.ended = true
		return sub
	}

	ch.subs[sub] = struct{}{}
	sub.registered = true
	h.observer.SubscriberAttached(scanID)

	return sub
}

// Subscribers returns the number of attached observers for scanID.
func (h *Hub) Subscribers(scanID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.channels[scanID]; ok {
		return len(ch.subs)
	}
	return 0
}

// Channels returns the number of scans with a registered channel.
func (h *Hub) Channels() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels)
}

func (h *Hub) Keepalive() time.Duration {
	return h.keepalive
}

func (h *Hub) detach(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.channels[sub.scanID]
	if !ok {
		return
	}
	if _, ok := ch.subs[sub]; !ok {
		return
	}

	delete(ch.subs, sub)
	h.observer.SubscriberDetached(sub.scanID)

	if len(ch.subs) == 0 {
		delete(h.channels, sub.scanID)
	}
}

func (h *Hub) remember(scanID string) {
	if _, ok := h.completed[scanID]; ok {
		return
	}
	if old := h.ring[h.ringPos]; old != "" {
		delete(h.completed, old)
	}
	h.ring[h.ringPos] = scanID
	h.ringPos = (h.ringPos + 1) % len(h.ring)
	h.completed[scanID] = struct{}{}
}

func (h *Hub) isRemembered(scanID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.isRememberedLocked(scanID)
}

func (h *Hub) isRememberedLocked(scanID string) bool {
	_, ok := h.completed[scanID]
	return ok
}
