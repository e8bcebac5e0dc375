// Package channel provides the Unix-socket control channel: a
// newline-delimited JSON transport carrying command requests in and
// command replies out.
package channel

import (
	"bufio"
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/xdg/tether/internal/engine"
	"github.com/xdg/tether/internal/proto"
	"github.com/xdg/tether/internal/tlog"
)

// DefaultSocketPath is the default path for the control socket.
var DefaultSocketPath = filepath.Join(os.Getenv("HOME"), ".local", "share", "tether", "agent.sock")

// maxRequestLine bounds a single request line. Requests are small; a
// line this long is a broken or hostile peer.
const maxRequestLine = 1 << 20

// Server accepts control-channel connections and feeds their requests to
// the engine. A connection stays open for its whole session; replies for
// its requests come back on the same connection, in completion order.
type Server struct {
	socketPath string
	engine     *engine.Engine

	listener net.Listener
	wg       sync.WaitGroup
	shutdown chan struct{}
	mu       sync.Mutex // protects listener and shutdown state
}

// NewServer creates a Server delivering requests to eng. An empty
// socketPath selects DefaultSocketPath.
func NewServer(socketPath string, eng *engine.Engine) *Server {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	return &Server{
		socketPath: socketPath,
		engine:     eng,
		shutdown:   make(chan struct{}),
	}
}

// SocketPath returns the path of the control socket.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Start begins listening on the control socket. The parent directory is
// created if needed and the socket is restricted to the owning user.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0700); err != nil {
		return err
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return err
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return err
	}

	s.listener = listener
	tlog.Info("listening on %s", s.socketPath)

	s.wg.Add(1)
	go s.acceptLoop(listener)

	return nil
}

// Stop closes the listener and all live connections, then waits for the
// connection handlers to drain.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.listener == nil {
		s.mu.Unlock()
		return nil
	}

	close(s.shutdown)
	err := s.listener.Close()
	s.listener = nil
	s.mu.Unlock()

	s.wg.Wait()
	os.Remove(s.socketPath)

	return err
}

func (s *Server) acceptLoop(listener net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				tlog.Warn("accept: %v", err)
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection reads request lines off one connection until it closes
// or the server stops. Each connection is one session; its replies are
// written back through a send-serialized session channel.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.shutdown:
			// Unblocks both the scan loop and a request hand-off stuck
			// behind an already-stopped engine.
			cancel()
			conn.Close()
		case <-ctx.Done():
		}
	}()

	sess := newSession(conn)
	tlog.Debug("session %s: connected", sess.id)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxRequestLine)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		req, err := proto.ParseCommandRequest(line)
		if err != nil {
			tlog.Warn("session %s: %v", sess.id, err)
			continue
		}

		s.engine.HandleCommand(ctx, sess, sess.id, req)
	}
	if err := scanner.Err(); err != nil {
		select {
		case <-s.shutdown:
		default:
			tlog.Debug("session %s: read: %v", sess.id, err)
		}
	}

	tlog.Debug("session %s: disconnected", sess.id)
}

// session is one connected peer. It implements the engine's reply channel
// with a write lock, because replies for a session's concurrent commands
// complete on different scheduler turns but share one connection.
type session struct {
	id   string
	conn net.Conn
	mu   sync.Mutex
}

func newSession(conn net.Conn) *session {
	return &session{
		id:   uuid.NewString()[:8],
		conn: conn,
	}
}

// Send writes one reply payload as a single line.
func (s *session) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.conn.Write(payload); err != nil {
		return err
	}
	_, err := s.conn.Write([]byte{'\n'})
	return err
}
