// Package engine implements the command-execution pipeline of the agent:
// task admission with a bounded running set and FIFO pending queue, process
// spawn with asynchronous output capture, per-task timeout, and reply
// emission over the control channel.
package engine

import (
	"bytes"
	"os/exec"
	"time"

	"github.com/google/uuid"

	"github.com/xdg/tether/internal/proto"
)

// Channel is the send side of an established control channel. The engine
// publishes every reply for a request on the channel it arrived on.
type Channel interface {
	Send(payload []byte) error
}

// taskState tracks a task through its lifecycle. A task is pending XOR
// running XOR terminal; the two terminal states are mutually exclusive and
// whichever event reaches the scheduler first wins.
type taskState int

const (
	taskPending taskState = iota
	taskRunning
	taskExited
	taskTimedOut
)

// Task is one admitted command execution, from admission through reply
// and teardown.
type Task struct {
	id      string // short uuid for log/audit correlation
	session string // control-channel session the request arrived on
	command string // resolved absolute path, immutable after creation
	token   string // caller correlation token, echoed in every reply
	channel Channel

	// req is the owned request payload. Cleared exactly once at teardown,
	// whichever exit path the task takes.
	req *proto.CommandRequest

	stdout *captureBuffer
	stderr *captureBuffer

	cmd     *exec.Cmd   // set once by start; identifies the child
	timer   *time.Timer // fixed deadline armed at start, never refreshed
	started time.Time
	state   taskState
}

// newTask builds a pending task owning the request payload.
func newTask(ch Channel, session, command string, req *proto.CommandRequest, maxOutput int64) *Task {
	return &Task{
		id:      uuid.NewString()[:8],
		session: session,
		command: command,
		token:   req.Token,
		channel: ch,
		req:     req,
		stdout:  &captureBuffer{limit: maxOutput},
		stderr:  &captureBuffer{limit: maxOutput},
		state:   taskPending,
	}
}

// commandLine returns the human-readable command for logs and audit.
func commandLine(cmd string, params []string) string {
	line := cmd
	for _, p := range params {
		line += " " + p
	}
	return line
}

// captureBuffer accumulates one output stream. It grows monotonically
// until the stream hits EOF or the byte limit; past the limit it keeps
// draining (so the child never blocks on a full pipe) but discards the
// overflow and marks itself truncated.
//
// A captureBuffer is written only by its task's reader goroutine and read
// only by the scheduler after that task's exit event, which the waiter
// goroutine sends strictly after the readers finish.
type captureBuffer struct {
	buf       bytes.Buffer
	limit     int64
	total     int64
	truncated bool
}

// Write implements io.Writer for the reader goroutine's io.Copy.
// It never returns an error; overflow is recorded, not fatal.
func (b *captureBuffer) Write(p []byte) (int, error) {
	b.total += int64(len(p))

	if b.truncated {
		return len(p), nil
	}
	if room := b.limit - int64(b.buf.Len()); int64(len(p)) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

// Bytes returns the captured data.
func (b *captureBuffer) Bytes() []byte {
	return b.buf.Bytes()
}

// Len returns the number of bytes the stream actually produced, which
// exceeds len(Bytes()) once truncated.
func (b *captureBuffer) Len() int64 {
	return b.total
}
