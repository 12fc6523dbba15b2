package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Frame is one unit written to an observer: an event or a keepalive.
type Frame struct {
	Event     Event
	Keepalive bool
}

// Stream subscribes to scanID and hands every frame to emit until the scan
// completes, ctx is cancelled or emit fails. A keepalive frame is emitted
// whenever no event arrived for the hub's keepalive interval.
func (h *Hub) Stream(ctx context.Context, scanID string, emit func(Frame) error) error {
	sub := h.Subscribe(ctx, scanID)
	defer sub.Close()

	timer := time.NewTimer(h.keepalive)
	defer timer.Stop()

	for {
		ev, err := sub.next(ctx, timer.C)
		switch {
		case errors.Is(err, errIdle):
			if err := emit(Frame{Keepalive: true}); err != nil {
				return err
			}
			timer.Reset(h.keepalive)
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return err
		}

		if err := emit(Frame{Event: ev}); err != nil {
			return err
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(h.keepalive)
	}
}

// SetSSEHeaders prepares a response for an event stream.
func SetSSEHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// WriteFrame writes f in event-stream framing and flushes when w supports it.
func WriteFrame(w io.Writer, f Frame) error {
	if f.Keepalive {
		if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
			return err
		}
	} else {
		payload, err := json.Marshal(f.Event)
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return err
		}
	}

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}
