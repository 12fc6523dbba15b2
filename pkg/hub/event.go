package hub

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	TypeInfo      EventType = "info"
	TypeDocker    EventType = "docker"
	TypeSuccess   EventType = "success"
	TypeWarning   EventType = "warning"
	TypeError     EventType = "error"
	TypeConnected EventType = "connected"
	TypeComplete  EventType = "complete"
)

// Event is a transient progress message broadcast to a scan's observers.
// Build events through the constructors below so each type carries the
// fields it is expected to carry.
type Event struct {
	Type          EventType
	Timestamp     time.Time
	ScanID        string
	Module        string
	Message       string
	Command       string
	FindingsCount *int
	Status        string

	// Extra holds free-form metadata flattened into the JSON object.
	// It never overrides the fields above.
	Extra map[string]any
}

func Info(module, message string) Event {
	return Event{Type: TypeInfo, Module: module, Message: message}
}

func Docker(module, message, command string) Event {
	return Event{Type: TypeDocker, Module: module, Message: message, Command: command}
}

func Success(module, message string, findings int, status string) Event {
	return Event{Type: TypeSuccess, Module: module, Message: message, FindingsCount: &findings, Status: status}
}

func Warning(module, message string) Event {
	return Event{Type: TypeWarning, Module: module, Message: message}
}

func Error(module, message string) Event {
	return Event{Type: TypeError, Module: module, Message: message}
}

func Connected(scanID string) Event {
	return Event{
		Type:      TypeConnected,
		ScanID:    scanID,
		Timestamp: time.Now().UTC(),
		Message:   "Connected to scan log stream",
	}
}

func Complete(scanID string) Event {
	return Event{
		Type:      TypeComplete,
		ScanID:    scanID,
		Timestamp: time.Now().UTC(),
		Message:   "Scan completed",
	}
}

// With returns a copy of e carrying an extra metadata key.
func (e Event) With(key string, value any) Event {
	extra := make(map[string]any, len(e.Extra)+1)
	for k, v := range e.Extra {
		extra[k] = v
	}
	extra[key] = value
	e.Extra = extra
	return e
}

var reservedKeys = map[string]struct{}{
	"type": {}, "timestamp": {}, "scan_id": {}, "module": {},
	"message": {}, "command": {}, "findings_count": {}, "status": {},
}

func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Extra)+8)
	for k, v := range e.Extra {
		if _, ok := reservedKeys[k]; ok {
			continue
		}
		out[k] = v
	}

	out["type"] = e.Type
	out["timestamp"] = e.Timestamp.UTC().Format(time.RFC3339Nano)
	out["scan_id"] = e.ScanID
	out["message"] = e.Message
	if e.Module != "" {
		out["module"] = e.Module
	}
	if e.Command != "" {
		out["command"] = e.Command
	}
	if e.FindingsCount != nil {
		out["findings_count"] = *e.FindingsCount
	}
	if e.Status != "" {
		out["status"] = e.Status
	}

	return json.Marshal(out)
}
