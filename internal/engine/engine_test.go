package engine

import (
	"context"
	"testing"
	"time"

	"github.com/xdg/tether/internal/auth"
	"github.com/xdg/tether/internal/proto"
	"github.com/xdg/tether/internal/tlog"
)

func init() {
	tlog.Discard()
}

type fakeChannel struct {
	replies chan []byte
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{replies: make(chan []byte, 16)}
}

func (c *fakeChannel) Send(payload []byte) error {
	c.replies <- payload
	return nil
}

func (c *fakeChannel) next(t *testing.T) *proto.Reply {
	t.Helper()
	select {
	case payload := <-c.replies:
		reply, err := proto.ParseReply(payload)
		if err != nil {
			t.Fatalf("parse reply: %v", err)
		}
		return reply
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a reply")
		return nil
	}
}

func allowAll(string, string) bool { return true }

func startEngine(t *testing.T, cfg Config, gate auth.Gate) *Engine {
	t.Helper()
	e := New(cfg, gate, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return e
}

func request(token, cmd string, params ...string) *proto.CommandRequest {
	return &proto.CommandRequest{
		Token: token,
		Attrs: proto.CommandAttrs{
			Username: "alice",
			Password: "secret",
			Cmd:      cmd,
			Params:   params,
		},
	}
}

func TestRunCommand(t *testing.T) {
	e := startEngine(t, Config{}, auth.GateFunc(allowAll))
	ch := newFakeChannel()

	e.HandleCommand(context.Background(), ch, "s1", request("tok1", "echo", "hello"))

	reply := ch.next(t)
	if reply.IsError() {
		t.Fatalf("unexpected error reply: %+v", reply.Attrs)
	}
	if reply.Token != "tok1" {
		t.Errorf("token = %q, want %q", reply.Token, "tok1")
	}
	if *reply.Attrs.Code != 0 {
		t.Errorf("exit code = %d, want 0", *reply.Attrs.Code)
	}
	out, err := reply.DecodeStdout()
	if err != nil {
		t.Fatalf("decode stdout: %v", err)
	}
	if string(out) != "hello\n" {
		t.Errorf("stdout = %q, want %q", out, "hello\n")
	}
}

func TestNonZeroExitCode(t *testing.T) {
	e := startEngine(t, Config{}, auth.GateFunc(allowAll))
	ch := newFakeChannel()

	e.HandleCommand(context.Background(), ch, "s1", request("tok1", "sh", "-c", "exit 3"))

	reply := ch.next(t)
	if reply.IsError() {
		t.Fatalf("unexpected error reply: %+v", reply.Attrs)
	}
	if *reply.Attrs.Code != 3 {
		t.Errorf("exit code = %d, want 3", *reply.Attrs.Code)
	}
}

func TestStderrCaptured(t *testing.T) {
	e := startEngine(t, Config{}, auth.GateFunc(allowAll))
	ch := newFakeChannel()

	e.HandleCommand(context.Background(), ch, "s1", request("tok1", "sh", "-c", "echo oops >&2"))

	reply := ch.next(t)
	errOut, err := reply.DecodeStderr()
	if err != nil {
		t.Fatalf("decode stderr: %v", err)
	}
	if string(errOut) != "oops\n" {
		t.Errorf("stderr = %q, want %q", errOut, "oops\n")
	}
}

func TestEnvPassedToChild(t *testing.T) {
	e := startEngine(t, Config{}, auth.GateFunc(allowAll))
	ch := newFakeChannel()

	req := request("tok1", "sh", "-c", "echo $TETHER_TEST_VAL")
	req.Attrs.Env = map[string]string{"TETHER_TEST_VAL": "42"}
	e.HandleCommand(context.Background(), ch, "s1", req)

	reply := ch.next(t)
	out, _ := reply.DecodeStdout()
	if string(out) != "42\n" {
		t.Errorf("stdout = %q, want %q", out, "42\n")
	}
}

func TestAuthDenied(t *testing.T) {
	deny := auth.GateFunc(func(string, string) bool { return false })
	e := startEngine(t, Config{}, deny)
	ch := newFakeChannel()

	e.HandleCommand(context.Background(), ch, "s1", request("tok1", "echo", "hi"))

	reply := ch.next(t)
	if !reply.IsError() {
		t.Fatal("want an error reply")
	}
	if reply.Attrs.Err != int(proto.ErrCodePermit) {
		t.Errorf("err = %d, want %d", reply.Attrs.Err, proto.ErrCodePermit)
	}
}

func TestEmptyUsernameDenied(t *testing.T) {
	e := startEngine(t, Config{}, auth.GateFunc(allowAll))
	ch := newFakeChannel()

	req := request("tok1", "echo", "hi")
	req.Attrs.Username = ""
	e.HandleCommand(context.Background(), ch, "s1", req)

	reply := ch.next(t)
	if reply.Attrs.Err != int(proto.ErrCodePermit) {
		t.Errorf("err = %d, want %d", reply.Attrs.Err, proto.ErrCodePermit)
	}
}

func TestCommandNotFound(t *testing.T) {
	e := startEngine(t, Config{}, auth.GateFunc(allowAll))
	ch := newFakeChannel()

	e.HandleCommand(context.Background(), ch, "s1", request("tok1", "no-such-command-xyzzy"))

	reply := ch.next(t)
	if reply.Attrs.Err != int(proto.ErrCodeNotFound) {
		t.Errorf("err = %d, want %d", reply.Attrs.Err, proto.ErrCodeNotFound)
	}
}

func TestQueueIsFIFO(t *testing.T) {
	e := startEngine(t, Config{MaxRunning: 1}, auth.GateFunc(allowAll))
	ch := newFakeChannel()

	// The first command holds the only running slot long enough for the
	// others to queue behind it.
	e.HandleCommand(context.Background(), ch, "s1", request("slow", "sh", "-c", "sleep 0.3; echo slow"))
	time.Sleep(100 * time.Millisecond)
	e.HandleCommand(context.Background(), ch, "s1", request("q1", "echo", "one"))
	e.HandleCommand(context.Background(), ch, "s1", request("q2", "echo", "two"))

	want := []string{"slow", "q1", "q2"}
	for _, token := range want {
		reply := ch.next(t)
		if reply.Token != token {
			t.Fatalf("reply token = %q, want %q", reply.Token, token)
		}
	}
}

func TestTimeoutRepliesAndFreesSlot(t *testing.T) {
	cfg := Config{MaxRunning: 1, ExecTimeout: 200 * time.Millisecond}
	e := startEngine(t, cfg, auth.GateFunc(allowAll))
	ch := newFakeChannel()

	e.HandleCommand(context.Background(), ch, "s1", request("stuck", "sleep", "30"))
	time.Sleep(50 * time.Millisecond)
	e.HandleCommand(context.Background(), ch, "s1", request("after", "echo", "ok"))

	reply := ch.next(t)
	if reply.Token != "stuck" {
		t.Fatalf("first reply token = %q, want %q", reply.Token, "stuck")
	}
	if reply.Attrs.Err != int(proto.ErrCodeTimeout) {
		t.Errorf("err = %d, want %d", reply.Attrs.Err, proto.ErrCodeTimeout)
	}

	// The queued command gets the freed slot and completes normally.
	reply = ch.next(t)
	if reply.Token != "after" {
		t.Fatalf("second reply token = %q, want %q", reply.Token, "after")
	}
	if reply.IsError() {
		t.Fatalf("unexpected error reply: %+v", reply.Attrs)
	}
}

func TestOutputTooBig(t *testing.T) {
	cfg := Config{MaxOutputBytes: 64}
	e := startEngine(t, cfg, auth.GateFunc(allowAll))
	ch := newFakeChannel()

	e.HandleCommand(context.Background(), ch, "s1", request("big", "sh", "-c", "head -c 4096 /dev/zero"))

	reply := ch.next(t)
	if reply.Attrs.Err != int(proto.ErrCodeRespTooBig) {
		t.Errorf("err = %d, want %d", reply.Attrs.Err, proto.ErrCodeRespTooBig)
	}
}

func TestConcurrencyBound(t *testing.T) {
	e := startEngine(t, Config{MaxRunning: 2}, auth.GateFunc(allowAll))
	ch := newFakeChannel()

	// Five short sleeps through two slots still yields five replies.
	tokens := []string{"t1", "t2", "t3", "t4", "t5"}
	for _, token := range tokens {
		e.HandleCommand(context.Background(), ch, "s1", request(token, "sleep", "0.05"))
	}

	seen := make(map[string]bool)
	for range tokens {
		reply := ch.next(t)
		if reply.IsError() {
			t.Fatalf("unexpected error reply for %q: %+v", reply.Token, reply.Attrs)
		}
		if seen[reply.Token] {
			t.Fatalf("duplicate reply for token %q", reply.Token)
		}
		seen[reply.Token] = true
	}
}

func TestExactlyOneReplyPerRequest(t *testing.T) {
	e := startEngine(t, Config{}, auth.GateFunc(allowAll))
	ch := newFakeChannel()

	e.HandleCommand(context.Background(), ch, "s1", request("tok1", "echo", "hi"))
	ch.next(t)

	select {
	case extra := <-ch.replies:
		t.Fatalf("unexpected extra reply: %s", extra)
	case <-time.After(200 * time.Millisecond):
	}
}
