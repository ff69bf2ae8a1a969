package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventToggle    EventType = "toggle"
	EventInsight   EventType = "insight"
	EventTranslate EventType = "translate"
	EventHydrate   EventType = "hydrate"
	EventDelete    EventType = "delete"
	EventQuoteSave EventType = "quote_save"
	EventTracer    EventType = "tracer"
	EventExport    EventType = "export"
	EventImport    EventType = "import"
	EventError     EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// levelPriority maps event levels to numeric priorities for comparison
var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// Event is one audit record of a synchronization or tracer operation
type Event struct {
	Timestamp time.Time         `json:"ts"`
	Level     EventLevel        `json:"level"`
	Event     EventType         `json:"event"`
	ItemID    string            `json:"item_id,omitempty"`
	ProjectID string            `json:"project_id,omitempty"`
	Field     string            `json:"field,omitempty"`
	Action    string            `json:"action,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Count     int               `json:"count,omitempty"`
	Duration  int64             `json:"duration_ms,omitempty"` // in milliseconds
	Error     string            `json:"error,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events to a JSONL file
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	minLevel EventLevel
}

// NewEventLogger creates a new event logger with a minimum log level
// minLevel determines which events are written (e.g., LevelInfo skips LevelDebug)
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("events-%s.jsonl", timestamp)
	path := filepath.Join(outputDir, filename)

	// Append so two processes started in the same second share one log
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		minLevel: minLevel,
	}, nil
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil // Silently ignore if logger not initialized
	}

	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return nil
}

func levelFor(err error, ok EventLevel) (EventLevel, string) {
	if err != nil {
		return LevelError, err.Error()
	}
	return ok, ""
}

// LogToggle logs a bookmark/favorite flip and whether it was rolled back
func (l *EventLogger) LogToggle(itemID, field string, value, rolledBack bool, err error) error {
	level, errMsg := levelFor(err, LevelInfo)
	return l.Log(&Event{
		Level:  level,
		Event:  EventToggle,
		ItemID: itemID,
		Field:  field,
		Error:  errMsg,
		Extra: map[string]string{
			"value":       strconv.FormatBool(value),
			"rolled_back": strconv.FormatBool(rolledBack),
		},
	})
}

// LogInsight logs an insight generation attempt
func (l *EventLogger) LogInsight(itemID string, duration time.Duration, err error) error {
	level, errMsg := levelFor(err, LevelInfo)
	return l.Log(&Event{
		Level:    level,
		Event:    EventInsight,
		ItemID:   itemID,
		Duration: duration.Milliseconds(),
		Error:    errMsg,
	})
}

// LogTranslate logs a translation of one item section or quote row
func (l *EventLogger) LogTranslate(itemID, field, lang string, duration time.Duration, err error) error {
	level, errMsg := levelFor(err, LevelInfo)
	return l.Log(&Event{
		Level:    level,
		Event:    EventTranslate,
		ItemID:   itemID,
		Field:    field,
		Duration: duration.Milliseconds(),
		Error:    errMsg,
		Extra: map[string]string{
			"lang": lang,
		},
	})
}

// LogHydrate logs the fields a hydration applied and the ones it skipped
// because they were written locally in the meantime
func (l *EventLogger) LogHydrate(itemID string, applied int, skipped []string) error {
	event := &Event{
		Level:  LevelDebug,
		Event:  EventHydrate,
		ItemID: itemID,
		Count:  applied,
	}
	if len(skipped) > 0 {
		event.Level = LevelInfo
		event.Reason = "stale fields skipped"
		event.Extra = map[string]string{"skipped": fmt.Sprintf("%v", skipped)}
	}
	return l.Log(event)
}

// LogDelete logs an item or tracer record deletion
func (l *EventLogger) LogDelete(itemID, action string, err error) error {
	level, errMsg := levelFor(err, LevelWarning)
	return l.Log(&Event{
		Level:  level,
		Event:  EventDelete,
		ItemID: itemID,
		Action: action,
		Error:  errMsg,
	})
}

// LogQuoteSave logs a batch of quotes saved onto a reference
func (l *EventLogger) LogQuoteSave(itemID, referenceID string, count int, err error) error {
	level, errMsg := levelFor(err, LevelInfo)
	return l.Log(&Event{
		Level:  level,
		Event:  EventQuoteSave,
		ItemID: itemID,
		Count:  count,
		Error:  errMsg,
		Extra: map[string]string{
			"reference_id": referenceID,
		},
	})
}

// LogTracer logs a tracer record mutation
func (l *EventLogger) LogTracer(projectID, action, recordID string, err error) error {
	level, errMsg := levelFor(err, LevelInfo)
	return l.Log(&Event{
		Level:     level,
		Event:     EventTracer,
		ProjectID: projectID,
		ItemID:    recordID,
		Action:    action,
		Error:     errMsg,
	})
}

// LogExport logs a finance ledger export
func (l *EventLogger) LogExport(projectID, filename string, transactions int, duration time.Duration, err error) error {
	level, errMsg := levelFor(err, LevelInfo)
	return l.Log(&Event{
		Level:     level,
		Event:     EventExport,
		ProjectID: projectID,
		Count:     transactions,
		Duration:  duration.Milliseconds(),
		Error:     errMsg,
		Extra: map[string]string{
			"filename": filename,
		},
	})
}

// LogImport logs a library import run
func (l *EventLogger) LogImport(source string, imported, failed int) error {
	level := LevelInfo
	if failed > 0 {
		level = LevelWarning
	}
	return l.Log(&Event{
		Level: level,
		Event: EventImport,
		Count: imported,
		Extra: map[string]string{
			"source": source,
			"failed": strconv.Itoa(failed),
		},
	})
}

// LogError logs an error event
func (l *EventLogger) LogError(event EventType, itemID string, err error) error {
	return l.Log(&Event{
		Level:  LevelError,
		Event:  event,
		ItemID: itemID,
		Error:  err.Error(),
	})
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}
