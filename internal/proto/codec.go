package proto

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// ErrCode identifies a command-level error in an error reply.
type ErrCode int

// Error codes carried in the "err" field of error replies.
// Values 1-5 are fixed by the existing caller protocol; ErrCodeTimeout
// is an additive extension for commands killed at the exec deadline.
const (
	ErrCodePermit ErrCode = iota + 1
	ErrCodeNotFound
	ErrCodeNoMem
	ErrCodeSysErr
	ErrCodeRespTooBig
	ErrCodeTimeout
)

// Message returns the human-readable string sent in the "msg" field.
func (c ErrCode) Message() string {
	switch c {
	case ErrCodePermit:
		return "operation not permitted"
	case ErrCodeNotFound:
		return "not found"
	case ErrCodeNoMem:
		return "no mem"
	case ErrCodeSysErr:
		return "sys error"
	case ErrCodeRespTooBig:
		return "stdout+stderr is too big"
	case ErrCodeTimeout:
		return "exec timed out"
	default:
		return ""
	}
}

// replyOverhead is the fixed structure around the base64 captures: the
// type/token/attrs framing, the code field, and JSON punctuation. A
// success reply buffer is pre-sized to the base64 expansion of both
// captures (4/3 of the combined raw length) plus this overhead, so the
// encoder never grows mid-build for the payload itself.
const replyOverhead = 200

type resultReply struct {
	Type  string      `json:"type"`
	Token string      `json:"token"`
	Attrs resultAttrs `json:"attrs"`
}

type resultAttrs struct {
	Code   int    `json:"code"`
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

type errorReply struct {
	Type  string     `json:"type"`
	Token string     `json:"token"`
	Attrs errorAttrs `json:"attrs"`
}

type errorAttrs struct {
	Err int    `json:"err"`
	Msg string `json:"msg"`
}

// EncodeResult builds the success reply payload for a completed command:
//
//	{"type":"cmd","token":T,"attrs":{"code":N,"stdout":B64,"stderr":B64}}
//
// stdout and stderr are the raw captured bytes; they are base64-encoded
// here. Callers that cannot send the returned payload should degrade to
// an ErrCodeNoMem error reply rather than dropping the request.
func EncodeResult(token string, code int, stdout, stderr []byte) ([]byte, error) {
	reply := resultReply{
		Type:  "cmd",
		Token: token,
		Attrs: resultAttrs{
			Code:   code,
			Stdout: base64.StdEncoding.EncodeToString(stdout),
			Stderr: base64.StdEncoding.EncodeToString(stderr),
		},
	}

	size := base64.StdEncoding.EncodedLen(len(stdout)+len(stderr)) + len(token) + replyOverhead
	buf := bytes.NewBuffer(make([]byte, 0, size))
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(reply); err != nil {
		return nil, fmt.Errorf("encode result reply: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// EncodeError builds the error reply payload:
//
//	{"type":"cmd","token":T,"attrs":{"err":C,"msg":S}}
func EncodeError(token string, code ErrCode) []byte {
	reply := errorReply{
		Type:  "cmd",
		Token: token,
		Attrs: errorAttrs{Err: int(code), Msg: code.Message()},
	}

	data, err := json.Marshal(reply)
	if err != nil {
		// Marshaling fixed struct types cannot fail; keep a last-resort
		// payload so the caller is never left unanswered.
		return []byte(`{"type":"cmd","token":"","attrs":{"err":4,"msg":"sys error"}}`)
	}
	return data
}
