package hub

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

var errIdle = errors.New("hub: idle")

// Subscription is one observer's view of a scan's events. The first event
// is always connected; the stream ends after complete.
type Subscription struct {
	hub    *Hub
	scanID string

	mu         sync.Mutex
	queue      []Event
	limit      int
	notify     chan struct{}
	connected  bool
	terminal   bool // complete enqueued
	ended      bool // nothing more will be returned after the queue drains
	closed     bool
	registered bool
	dropped    int
}

func newSubscription(h *Hub, scanID string, limit int) *Subscription {
	return &Subscription{
		hub:    h,
		scanID: scanID,
		limit:  limit,
		notify: make(chan struct{}, 1),
	}
}

func (s *Subscription) ScanID() string {
	return s.scanID
}

// Dropped returns how many events overflowed this observer's mailbox.
func (s *Subscription) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// deliver never blocks. complete is always accepted.
func (s *Subscription) deliver(ev Event) bool {
	s.mu.Lock()
	if s.closed || s.terminal {
		s.mu.Unlock()
		return false
	}
	if ev.Type == TypeComplete {
		s.terminal = true
	} else if len(s.queue) >= s.limit {
		s.dropped++
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return true
}

// Next blocks until the next event is available. It returns io.EOF once
// the stream has ended and ctx.Err() if ctx is cancelled first.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	return s.next(ctx, nil)
}

func (s *Subscription) next(ctx context.Context, idle <-chan time.Time) (Event, error) {
	for {
		s.mu.Lock()
		if !s.connected {
			s.connected = true
			s.mu.Unlock()
			return Connected(s.scanID), nil
		}
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue[0] = Event{}
			s.queue = s.queue[1:]
			if ev.Type == TypeComplete {
				s.ended = true
			}
			s.mu.Unlock()
			if ev.Type == TypeComplete {
				s.Close()
			}
			return ev, nil
		}
		if s.ended || s.closed {
			s.mu.Unlock()
			return Event{}, io.EOF
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-idle:
			return Event{}, errIdle
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

// Close detaches the observer. Safe to call more than once.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue = nil
	registered := s.registered
	s.mu.Unlock()

	if registered {
		s.hub.detach(s)
	}

	select {
	case s.notify <- struct{}{}:
	default:
	}
}
