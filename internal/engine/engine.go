package engine

import (
	"context"
	"time"

	"github.com/xdg/tether/internal/audit"
	"github.com/xdg/tether/internal/auth"
	"github.com/xdg/tether/internal/proto"
	"github.com/xdg/tether/internal/tlog"
)

// Config holds the engine constants. Zero fields are replaced with the
// defaults below by New.
type Config struct {
	// MaxRunning bounds concurrently running commands. Tasks admitted at
	// the bound queue FIFO until a running slot frees.
	MaxRunning int

	// ExecTimeout is the fixed wall-clock deadline per command, measured
	// from task start and independent of output activity.
	ExecTimeout time.Duration

	// MaxOutputBytes caps the combined captured stdout+stderr; a command
	// exceeding it gets a "too big" error reply instead of its output.
	MaxOutputBytes int64
}

// Engine defaults, used for zero Config fields.
const (
	DefaultMaxRunning     = 5
	DefaultExecTimeout    = 30 * time.Second
	DefaultMaxOutputBytes = 4 * 1024 * 1024
)

// eventKind discriminates terminal task events delivered to the scheduler.
type eventKind int

const (
	eventExited eventKind = iota
	eventTimedOut
)

// taskEvent is a terminal notification from a task's waiter goroutine or
// timeout timer. At most one of each kind is ever outstanding per running
// task, which bounds the scheduler's event channel.
type taskEvent struct {
	task     *Task
	kind     eventKind
	exitCode int
}

// Engine is the task admission, execution, and completion pipeline.
//
// All mutable scheduling state (the running count, the pending queue, and
// task lifecycle transitions) is owned by the single goroutine running
// Run; admission and completion cross into it by message passing, so no
// locks are involved.
type Engine struct {
	cfg   Config
	gate  auth.Gate
	audit *audit.Logger

	admitc chan *Task
	eventc chan taskEvent

	// Owned by the Run goroutine.
	running map[*Task]struct{}
	pending []*Task
}

// New creates an Engine authenticating against gate. auditLog may be nil
// to disable the audit trail.
func New(cfg Config, gate auth.Gate, auditLog *audit.Logger) *Engine {
	if cfg.MaxRunning <= 0 {
		cfg.MaxRunning = DefaultMaxRunning
	}
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = DefaultExecTimeout
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = DefaultMaxOutputBytes
	}

	return &Engine{
		cfg:     cfg,
		gate:    gate,
		audit:   auditLog,
		running: make(map[*Task]struct{}),
		admitc:  make(chan *Task),
		// Each running task has at most one exit and one timeout event
		// outstanding, so this capacity means senders never block and
		// shutdown cannot strand a waiter goroutine.
		eventc: make(chan taskEvent, 2*cfg.MaxRunning),
	}
}

// Run executes the scheduler loop until ctx is cancelled. On cancellation
// all running children are killed and reaped; queued tasks are dropped
// without replies, like the rest of the agent's state, since the channel
// they would answer on is going away too.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case t := <-e.admitc:
			e.admit(t)
		case ev := <-e.eventc:
			e.handleEvent(ev)
		case <-ctx.Done():
			e.shutdown()
			return
		}
	}
}

// admit starts a task immediately when a running slot is free, otherwise
// appends it to the pending queue tail.
func (e *Engine) admit(t *Task) {
	if len(e.running) < e.cfg.MaxRunning {
		if e.start(t) {
			e.running[t] = struct{}{}
		}
		return
	}

	tlog.Debug("task %s: queued (%d running, %d pending)", t.id, len(e.running), len(e.pending))
	e.pending = append(e.pending, t)
}

// handleEvent drives a running task to its terminal state. Events for an
// already-terminated task (the loser of the exit/timeout race) are dropped
// so stale watchers can never touch a torn-down task.
func (e *Engine) handleEvent(ev taskEvent) {
	t := ev.task
	if t.state != taskRunning {
		return
	}

	switch ev.kind {
	case eventExited:
		t.state = taskExited
		t.timer.Stop()
		e.sendResult(t, ev.exitCode)
	case eventTimedOut:
		t.state = taskTimedOut
		killTask(t)
		tlog.Error("task %s: exec '%s' timeout", t.id, t.command)
		_ = e.audit.LogTimeout(t.session, t.req.Attrs.Username, commandLine(t.command, t.req.Attrs.Params), time.Since(t.started))
		e.sendError(t.channel, t.token, proto.ErrCodeTimeout)
	}

	e.teardown(t)
	delete(e.running, t)
	e.promote()
}

// promote starts the pending queue head, oldest first. If a promoted task
// fails to start (pipe or spawn error), the next one is tried so a free
// slot is never left idle while work is waiting.
func (e *Engine) promote() {
	for len(e.pending) > 0 && len(e.running) < e.cfg.MaxRunning {
		t := e.pending[0]
		e.pending = e.pending[1:]
		if e.start(t) {
			e.running[t] = struct{}{}
			return
		}
	}
}

// sendResult emits the success reply for an exited task, degrading to the
// protocol's error replies when the captures exceed the output cap or the
// reply cannot be built.
func (e *Engine) sendResult(t *Task, exitCode int) {
	user := t.req.Attrs.Username
	elapsed := time.Since(t.started)

	if t.stdout.truncated || t.stderr.truncated || t.stdout.Len()+t.stderr.Len() > e.cfg.MaxOutputBytes {
		tlog.Warn("task %s: output exceeds %d bytes, replying too-big", t.id, e.cfg.MaxOutputBytes)
		e.sendError(t.channel, t.token, proto.ErrCodeRespTooBig)
		_ = e.audit.LogComplete(t.session, user, commandLine(t.command, t.req.Attrs.Params), exitCode, elapsed)
		return
	}

	payload, err := proto.EncodeResult(t.token, exitCode, t.stdout.Bytes(), t.stderr.Bytes())
	if err != nil {
		tlog.Error("task %s: encode reply: %v", t.id, err)
		e.sendError(t.channel, t.token, proto.ErrCodeNoMem)
		return
	}

	if err := t.channel.Send(payload); err != nil {
		tlog.Warn("task %s: send reply: %v", t.id, err)
	}
	tlog.Info("task %s: '%s' exited %d after %s", t.id, t.command, exitCode, elapsed.Round(time.Millisecond))
	_ = e.audit.LogComplete(t.session, user, commandLine(t.command, t.req.Attrs.Params), exitCode, elapsed)
}

// sendError emits an error reply. Send failures are logged, not fatal;
// the channel owner notices its own transport errors.
func (e *Engine) sendError(ch Channel, token string, code proto.ErrCode) {
	if err := ch.Send(proto.EncodeError(token, code)); err != nil {
		tlog.Warn("send error reply: %v", err)
	}
}

// teardown releases a terminal task's owned resources. The request
// payload is released exactly once here, for every exit path that reached
// admission; the child itself is reaped by the waiter goroutine's Wait.
func (e *Engine) teardown(t *Task) {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.req = nil
	t.stdout = nil
	t.stderr = nil
}

// shutdown kills and abandons all running tasks. Their waiter goroutines
// still reap the children; the buffered event channel absorbs the final
// events.
func (e *Engine) shutdown() {
	for _, t := range e.pending {
		tlog.Debug("task %s: dropped pending at shutdown", t.id)
	}
	e.pending = nil

	tlog.Info("engine: shutting down, %d task(s) running", len(e.running))
	for t := range e.running {
		t.state = taskExited
		killTask(t)
		e.teardown(t)
	}
	e.running = nil
}
