// Package auth provides the credential gate for command requests and the
// file-backed credential store behind it.
package auth

// Gate is the boolean credential check the engine consults before
// admitting a command request. An empty username always fails.
type Gate interface {
	Authenticate(username, password string) bool
}

// GateFunc adapts a function to the Gate interface.
type GateFunc func(username, password string) bool

// Authenticate calls f.
func (f GateFunc) Authenticate(username, password string) bool {
	return f(username, password)
}
