// Package prompt provides interactive credential prompts for the tether CLI,
// designed for testability with mock implementations.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// PasswordReader defines the interface for reading a password from the user.
type PasswordReader interface {
	// ReadPassword displays promptText and reads a password without echo.
	// Returns an error if input cannot be read.
	ReadPassword(promptText string) (string, error)
}

// TerminalReader implements PasswordReader against a real terminal.
// When In is not a terminal (tests, pipes), it falls back to reading a
// plain line so the password is consumed either way.
type TerminalReader struct {
	In  *os.File
	Out io.Writer
}

// NewTerminalReader creates a TerminalReader on stdin/stderr.
// Prompts go to stderr so they don't mix with redirected stdout.
func NewTerminalReader() *TerminalReader {
	return &TerminalReader{In: os.Stdin, Out: os.Stderr}
}

// ReadPassword displays the prompt and reads a password.
// On a terminal, echo is disabled via term.ReadPassword.
func (r *TerminalReader) ReadPassword(promptText string) (string, error) {
	_, _ = fmt.Fprint(r.Out, promptText)

	fd := int(r.In.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		_, _ = fmt.Fprintln(r.Out)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(r.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Confirmed prompts twice via r and returns the password if both entries
// match. Mismatched entries return an error rather than retrying; the
// caller decides whether to loop.
func Confirmed(r PasswordReader, promptText string) (string, error) {
	first, err := r.ReadPassword(promptText)
	if err != nil {
		return "", err
	}
	second, err := r.ReadPassword("Retype password: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("passwords do not match")
	}
	return first, nil
}
