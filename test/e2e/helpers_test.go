//go:build e2e

package e2e

import (
	"bufio"
	"os"
	"strings"
	"testing"
)

// auditEvent is one parsed audit trail line.
type auditEvent struct {
	Type string
	Rest string
}

// readAuditEvents parses the audit trail into (type, remainder) pairs.
// Lines look like: 2024-01-15T14:32:05Z CMD REQUEST session=abc user="alice" ...
func readAuditEvents(t *testing.T, path string) []auditEvent {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open audit trail: %v", err)
	}
	defer f.Close()

	var events []auditEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 4)
		if len(fields) < 3 || fields[1] != "CMD" {
			t.Fatalf("malformed audit line: %q", line)
		}
		ev := auditEvent{Type: fields[2]}
		if len(fields) == 4 {
			ev.Rest = fields[3]
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("read audit trail: %v", err)
	}
	return events
}
