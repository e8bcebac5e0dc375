// Package audit provides structured logging for command-execution events.
// Log entries follow a key=value format suitable for parsing and analysis.
package audit

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// EventType represents the type of command event.
type EventType string

// Event types for command execution.
const (
	EventRequest  EventType = "REQUEST"
	EventDeny     EventType = "DENY"
	EventComplete EventType = "COMPLETE"
	EventTimeout  EventType = "TIMEOUT"
)

// Event represents one command audit log entry.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time

	// Type is the event type (REQUEST, DENY, COMPLETE, TIMEOUT).
	Type EventType

	// Session identifies the control-channel session the request arrived on.
	Session string

	// User is the requesting username.
	User string

	// Cmd is the command being executed.
	Cmd string

	// Reason is the denial reason (for DENY events).
	Reason string

	// ExitCode is the command exit code (for COMPLETE events).
	ExitCode int

	// Duration is the execution time (for COMPLETE and TIMEOUT events).
	Duration time.Duration
}

// Format returns the log entry as a formatted string.
// Format: 2024-01-15T14:32:05Z CMD REQUEST session=abc user="alice" cmd="..."
func (e *Event) Format() string {
	var b strings.Builder

	b.WriteString(e.Timestamp.UTC().Format(time.RFC3339))
	b.WriteString(" CMD ")
	b.WriteString(string(e.Type))

	if e.Session != "" {
		b.WriteString(" session=")
		b.WriteString(e.Session)
	}
	b.WriteString(" user=")
	b.WriteString(quoteValue(e.User))
	b.WriteString(" cmd=")
	b.WriteString(quoteValue(e.Cmd))

	switch e.Type {
	case EventDeny:
		writeOptionalField(&b, "reason", e.Reason)
	case EventComplete:
		b.WriteString(" exit=")
		b.WriteString(strconv.Itoa(e.ExitCode))
		b.WriteString(" duration=")
		b.WriteString(formatDuration(e.Duration))
	case EventTimeout:
		b.WriteString(" duration=")
		b.WriteString(formatDuration(e.Duration))
	}

	return b.String()
}

// writeOptionalField appends " key=quoted_value" to the builder if value is non-empty.
func writeOptionalField(b *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	b.WriteString(" ")
	b.WriteString(key)
	b.WriteString("=")
	b.WriteString(quoteValue(value))
}

// quoteValue returns a quoted string value.
// Values are always quoted for consistency and to handle spaces/special chars.
func quoteValue(s string) string {
	return fmt.Sprintf("%q", s)
}

// formatDuration formats a duration as a human-readable string (e.g., "2.3s", "1m30s").
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.1fms", float64(d)/float64(time.Millisecond))
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return d.Round(time.Second).String()
}

// Logger writes audit events to an io.Writer.
// A nil Logger (or nil writer) discards events, so callers never need to
// guard their logging calls.
type Logger struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLogger creates a new audit logger that writes to the given writer.
func NewLogger(w io.Writer) *Logger {
	return &Logger{w: w}
}

// Open opens (appending, creating parents) an audit log file at path and
// returns a Logger over it.
func Open(path string) (*Logger, *os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, nil, fmt.Errorf("create audit directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit log: %w", err)
	}
	return NewLogger(f), f, nil
}

// Log writes an event to the audit log.
func (l *Logger) Log(e *Event) error {
	if l == nil || l.w == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.w.Write([]byte(e.Format() + "\n")); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	return nil
}

// LogRequest logs a CMD REQUEST event.
func (l *Logger) LogRequest(session, user, cmd string) error {
	return l.Log(&Event{
		Timestamp: time.Now(),
		Type:      EventRequest,
		Session:   session,
		User:      user,
		Cmd:       cmd,
	})
}

// LogDeny logs a CMD DENY event.
func (l *Logger) LogDeny(session, user, cmd, reason string) error {
	return l.Log(&Event{
		Timestamp: time.Now(),
		Type:      EventDeny,
		Session:   session,
		User:      user,
		Cmd:       cmd,
		Reason:    reason,
	})
}

// LogComplete logs a CMD COMPLETE event.
func (l *Logger) LogComplete(session, user, cmd string, exitCode int, duration time.Duration) error {
	return l.Log(&Event{
		Timestamp: time.Now(),
		Type:      EventComplete,
		Session:   session,
		User:      user,
		Cmd:       cmd,
		ExitCode:  exitCode,
		Duration:  duration,
	})
}

// LogTimeout logs a CMD TIMEOUT event.
func (l *Logger) LogTimeout(session, user, cmd string, duration time.Duration) error {
	return l.Log(&Event{
		Timestamp: time.Now(),
		Type:      EventTimeout,
		Session:   session,
		User:      user,
		Cmd:       cmd,
		Duration:  duration,
	})
}
