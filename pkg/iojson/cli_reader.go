package iojson

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Stdin is the path that selects standard input in Open.
const Stdin = "-"

// ErrTerminalInput is returned when stdin is requested but is a terminal.
var ErrTerminalInput = errors.New("no input provided (stdin is a terminal); pass a file or pipe input")

// Open returns a reader for path, or for standard input when path is "-".
// Reading from an interactive terminal is refused so commands do not hang
// waiting for input.
func Open(path string) (io.ReadCloser, error) {
	if path != Stdin {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open file: %w", err)
		}
		return f, nil
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, ErrTerminalInput
	}
	return io.NopCloser(os.Stdin), nil
}
