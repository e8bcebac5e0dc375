// Package proto defines the command request/reply wire shapes exchanged
// over the control channel, and the reply encoder.
package proto

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// CommandRequest is an inbound command-execution request.
// Token is an opaque caller-supplied correlation string echoed verbatim
// in every reply; the engine does not deduplicate tokens.
type CommandRequest struct {
	Token string       `json:"token"`
	Attrs CommandAttrs `json:"attrs"`
}

// CommandAttrs carries the command-specific request fields.
type CommandAttrs struct {
	Username string            `json:"username"`
	Password string            `json:"password,omitempty"`
	Cmd      string            `json:"cmd"`
	Params   []string          `json:"params,omitempty"`
	Env      map[string]string `json:"env,omitempty"`
}

// ParseCommandRequest decodes one request payload.
func ParseCommandRequest(data []byte) (*CommandRequest, error) {
	var req CommandRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("parse command request: %w", err)
	}
	return &req, nil
}

// Reply is a decoded command reply, success or error.
// Used by the client side and by tests; the agent only encodes.
type Reply struct {
	Type  string     `json:"type"`
	Token string     `json:"token"`
	Attrs ReplyAttrs `json:"attrs"`
}

// ReplyAttrs holds either the success fields (Code/Stdout/Stderr) or the
// error fields (Err/Msg). Code is a pointer so a success reply with exit
// code 0 is distinguishable from an error reply.
type ReplyAttrs struct {
	Code   *int   `json:"code,omitempty"`
	Stdout string `json:"stdout,omitempty"`
	Stderr string `json:"stderr,omitempty"`
	Err    int    `json:"err,omitempty"`
	Msg    string `json:"msg,omitempty"`
}

// ParseReply decodes one reply payload.
func ParseReply(data []byte) (*Reply, error) {
	var r Reply
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse reply: %w", err)
	}
	return &r, nil
}

// IsError reports whether r carries an error instead of an exit result.
func (r *Reply) IsError() bool {
	return r.Attrs.Code == nil
}

// DecodeStdout returns the raw captured stdout bytes.
func (r *Reply) DecodeStdout() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(r.Attrs.Stdout)
	if err != nil {
		return nil, fmt.Errorf("decode stdout: %w", err)
	}
	return b, nil
}

// DecodeStderr returns the raw captured stderr bytes.
func (r *Reply) DecodeStderr() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(r.Attrs.Stderr)
	if err != nil {
		return nil, fmt.Errorf("decode stderr: %w", err)
	}
	return b, nil
}
