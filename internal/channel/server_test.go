package channel

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/xdg/tether/internal/auth"
	"github.com/xdg/tether/internal/engine"
	"github.com/xdg/tether/internal/proto"
	"github.com/xdg/tether/internal/tlog"
)

func init() {
	tlog.Discard()
}

func startServer(t *testing.T, gate auth.Gate) *Server {
	t.Helper()

	eng := engine.New(engine.Config{}, gate, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		eng.Run(ctx)
	}()

	srv := NewServer(filepath.Join(t.TempDir(), "tether.sock"), eng)
	if err := srv.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}

	t.Cleanup(func() {
		if err := srv.Stop(); err != nil {
			t.Errorf("stop server: %v", err)
		}
		cancel()
		<-done
	})
	return srv
}

func allowAll(string, string) bool { return true }

func newRequest(token, cmd string, params ...string) *proto.CommandRequest {
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

func TestClientExecute(t *testing.T) {
	srv := startServer(t, auth.GateFunc(allowAll))
	client := NewClient(srv.SocketPath())

	reply, err := client.Execute(context.Background(), newRequest("tok1", "echo", "over the wire"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if reply.IsError() {
		t.Fatalf("unexpected error reply: %+v", reply.Attrs)
	}
	out, err := reply.DecodeStdout()
	if err != nil {
		t.Fatalf("decode stdout: %v", err)
	}
	if string(out) != "over the wire\n" {
		t.Errorf("stdout = %q, want %q", out, "over the wire\n")
	}
}

func TestClientExecuteDenied(t *testing.T) {
	deny := auth.GateFunc(func(string, string) bool { return false })
	srv := startServer(t, deny)
	client := NewClient(srv.SocketPath())

	reply, err := client.Execute(context.Background(), newRequest("tok1", "echo", "hi"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !reply.IsError() {
		t.Fatal("want an error reply")
	}
	if reply.Attrs.Err != int(proto.ErrCodePermit) {
		t.Errorf("err = %d, want %d", reply.Attrs.Err, proto.ErrCodePermit)
	}
	if reply.Attrs.Msg != "operation not permitted" {
		t.Errorf("msg = %q, want %q", reply.Attrs.Msg, "operation not permitted")
	}
}

func TestMultipleRequestsOneConnection(t *testing.T) {
	srv := startServer(t, auth.GateFunc(allowAll))

	conn, err := net.Dial("unix", srv.SocketPath())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	for _, req := range []*proto.CommandRequest{
		newRequest("a", "echo", "first"),
		newRequest("b", "echo", "second"),
	} {
		line := mustMarshal(t, req)
		if _, err := conn.Write(append(line, '\n')); err != nil {
			t.Fatalf("write request: %v", err)
		}
	}

	seen := make(map[string]bool)
	reader := bufio.NewReader(conn)
	for len(seen) < 2 {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		line, err := reader.ReadBytes('\n')
		if err != nil {
			t.Fatalf("read reply: %v", err)
		}
		reply, err := proto.ParseReply(line)
		if err != nil {
			t.Fatalf("parse reply: %v", err)
		}
		if reply.IsError() {
			t.Fatalf("unexpected error reply for %q: %+v", reply.Token, reply.Attrs)
		}
		if seen[reply.Token] {
			t.Fatalf("duplicate reply for %q", reply.Token)
		}
		seen[reply.Token] = true
	}
}

func TestMalformedRequestIgnored(t *testing.T) {
	srv := startServer(t, auth.GateFunc(allowAll))

	conn, err := net.Dial("unix", srv.SocketPath())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// A junk line is dropped; the next well-formed request still works.
	if _, err := conn.Write([]byte("not json\n")); err != nil {
		t.Fatalf("write junk: %v", err)
	}
	line := mustMarshal(t, newRequest("tok1", "echo", "ok"))
	if _, err := conn.Write(append(line, '\n')); err != nil {
		t.Fatalf("write request: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	replyLine, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	reply, err := proto.ParseReply(replyLine)
	if err != nil {
		t.Fatalf("parse reply: %v", err)
	}
	if reply.Token != "tok1" {
		t.Errorf("token = %q, want %q", reply.Token, "tok1")
	}
}

func TestStopRemovesSocket(t *testing.T) {
	eng := engine.New(engine.Config{}, auth.GateFunc(allowAll), nil)
	srv := NewServer(filepath.Join(t.TempDir(), "tether.sock"), eng)
	if err := srv.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	if err := srv.Stop(); err != nil {
		t.Fatalf("stop server: %v", err)
	}
	if _, err := net.Dial("unix", srv.SocketPath()); err == nil {
		t.Error("socket still accepting connections after Stop")
	}
}

func mustMarshal(t *testing.T, req *proto.CommandRequest) []byte {
	t.Helper()
	line, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return line
}
