package main

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// terminalIndicator prints a "working" line on stderr while a request is in
// flight. It stays silent when stderr is not a terminal.
type terminalIndicator struct {
	w       io.Writer
	enabled bool

	mu     sync.Mutex
	active int
}

func newTerminalIndicator(w io.Writer) *terminalIndicator {
	return &terminalIndicator{w: w, enabled: isTerminal(w)}
}

func (t *terminalIndicator) Show() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active++
	if t.enabled && t.active == 1 {
		fmt.Fprint(t.w, "\rcontacting server...")
	}
}

func (t *terminalIndicator) Hide() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == 0 {
		return
	}
	t.active--
	if t.enabled && t.active == 0 {
		fmt.Fprint(t.w, "\r\033[K")
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
