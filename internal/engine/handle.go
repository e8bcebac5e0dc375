package engine

import (
	"context"

	"github.com/xdg/tether/internal/lookup"
	"github.com/xdg/tether/internal/proto"
	"github.com/xdg/tether/internal/tlog"
)

// HandleCommand validates a command request and hands it to the
// scheduler. It runs on the caller's goroutine (typically a connection
// handler); only the hand-off itself can block, and it aborts when ctx is
// cancelled. Denied requests are answered immediately and never reach the
// scheduler.
func (e *Engine) HandleCommand(ctx context.Context, ch Channel, session string, req *proto.CommandRequest) {
	user := req.Attrs.Username
	_ = e.audit.LogRequest(session, user, commandLine(req.Attrs.Cmd, req.Attrs.Params))

	if user == "" || !e.gate.Authenticate(user, req.Attrs.Password) {
		tlog.Warn("session %s: operation not permitted for user %q", session, user)
		_ = e.audit.LogDeny(session, user, req.Attrs.Cmd, "authentication failed")
		e.sendError(ch, req.Token, proto.ErrCodePermit)
		return
	}

	path, err := lookup.Command(req.Attrs.Cmd)
	if err != nil {
		tlog.Warn("session %s: command %q: %v", session, req.Attrs.Cmd, err)
		_ = e.audit.LogDeny(session, user, req.Attrs.Cmd, "command not found")
		e.sendError(ch, req.Token, proto.ErrCodeNotFound)
		return
	}

	t := newTask(ch, session, path, req, e.cfg.MaxOutputBytes)
	select {
	case e.admitc <- t:
	case <-ctx.Done():
		tlog.Debug("task %s: dropped, engine stopping", t.id)
	}
}
