package channel

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/xdg/tether/internal/proto"
	"github.com/xdg/tether/internal/tlog"
)

// Client sends command requests to a running agent over its control
// socket. It opens one connection per request.
type Client struct {
	socketPath string
}

// NewClient creates a client for the agent at socketPath. An empty path
// selects DefaultSocketPath.
func NewClient(socketPath string) *Client {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	return &Client{socketPath: socketPath}
}

// Execute sends req and waits for its reply. Cancelling ctx abandons the
// wait and closes the connection.
func (c *Client) Execute(ctx context.Context, req *proto.CommandRequest) (*proto.Reply, error) {
	conn, err := (&net.Dialer{}).DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to agent (%s): %w", c.socketPath, err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			tlog.Warn("failed to close agent connection: %v", err)
		}
	}()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	// Replies arrive in completion order; with one request on this
	// connection the first line matching our token is ours.
	reader := bufio.NewReaderSize(conn, 64*1024)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to read reply: %w", err)
		}

		reply, err := proto.ParseReply(line)
		if err != nil {
			return nil, err
		}
		if reply.Token != req.Token {
			tlog.Debug("ignoring reply for token %q", reply.Token)
			continue
		}
		return reply, nil
	}
}
