package engine

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/xdg/tether/internal/proto"
	"github.com/xdg/tether/internal/tlog"
)

// start spawns the task's process and its watcher goroutines. On failure
// the requester gets a sys-error reply and start reports false so the
// caller does not consume a running slot.
func (e *Engine) start(t *Task) bool {
	cmd := exec.Command(t.command, t.req.Attrs.Params...)
	cmd.Env = commandEnv(t.req.Attrs.Env)
	// Children get their own process group so a timeout kill reaches
	// anything the command itself spawned.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return e.startFailed(t, "stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return e.startFailed(t, "stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		return e.startFailed(t, "start", err)
	}

	t.cmd = cmd
	t.state = taskRunning
	t.started = time.Now()
	tlog.Info("task %s: running '%s' (pid %d)", t.id, t.command, cmd.Process.Pid)

	// One reader per pipe, draining into the capped buffers. The local
	// captures keep the readers off the Task fields, which the scheduler
	// clears at teardown.
	var readers sync.WaitGroup
	for _, p := range []struct {
		r   io.Reader
		buf *captureBuffer
	}{
		{stdout, t.stdout},
		{stderr, t.stderr},
	} {
		readers.Add(1)
		go func(r io.Reader, buf *captureBuffer) {
			defer readers.Done()
			_, _ = io.Copy(buf, r)
		}(p.r, p.buf)
	}

	// Both pipes must hit EOF before Wait, which closes them.
	go func() {
		readers.Wait()
		code := exitCode(cmd.Wait())
		e.eventc <- taskEvent{task: t, kind: eventExited, exitCode: code}
	}()

	t.timer = time.AfterFunc(e.cfg.ExecTimeout, func() {
		e.eventc <- taskEvent{task: t, kind: eventTimedOut}
	})

	return true
}

func (e *Engine) startFailed(t *Task, what string, err error) bool {
	tlog.Error("task %s: %s: %v", t.id, what, err)
	e.sendError(t.channel, t.token, proto.ErrCodeSysErr)
	t.state = taskExited
	e.teardown(t)
	return false
}

// commandEnv builds the child environment from the agent's own, with the
// request's variables appended. Appending wins on duplicates.
func commandEnv(extra map[string]string) []string {
	env := os.Environ()
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}

// killTask force-kills a task's process group, falling back to the
// process itself when the group signal fails.
func killTask(t *Task) {
	if t.cmd == nil || t.cmd.Process == nil {
		return
	}
	pid := t.cmd.Process.Pid
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		_ = t.cmd.Process.Kill()
	}
}

// exitCode maps a Wait error to the protocol's exit code: 0 on clean
// exit, the child's own code when it exited nonzero, and -1 when it was
// signalled or Wait itself failed.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
