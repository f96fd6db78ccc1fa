package monitor

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"
)

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("link writer closed")

// MaxLineLength is the longest partial line held back before it is flushed
// without waiting for a newline.
const MaxLineLength = 64 * 1024

// LineRenderer turns one line, without its line ending, into its rendered
// form.
type LineRenderer func(line string) string

// LinkWriter buffers output into lines, renders each complete line and
// writes it to the destination. A partial line is flushed once no output has
// arrived for the idle delay, or on Close, so prompts are not held back.
type LinkWriter struct {
	dst    io.Writer
	render LineRenderer
	idle   time.Duration

	mu     sync.Mutex
	buf    bytes.Buffer
	timer  *time.Timer
	closed bool
	err    error
}

// NewLinkWriter creates a LinkWriter. A zero idle delay disables the idle
// flush; partial lines then wait for a newline or Close.
func NewLinkWriter(dst io.Writer, render LineRenderer, idle time.Duration) *LinkWriter {
	if render == nil {
		render = func(line string) string { return line }
	}
	return &LinkWriter{dst: dst, render: render, idle: idle}
}

// Write implements io.Writer.
func (w *LinkWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, ErrClosed
	}
	if w.err != nil {
		return 0, w.err
	}

	w.buf.Write(p)

	data := w.buf.Bytes()
	if last := bytes.LastIndexByte(data, '\n'); last >= 0 {
		out := w.renderLines(data[:last+1])
		rest := append([]byte(nil), data[last+1:]...)
		w.buf.Reset()
		w.buf.Write(rest)
		if err := w.emit(out); err != nil {
			return 0, err
		}
	}

	if w.buf.Len() >= MaxLineLength {
		if err := w.flushLocked(); err != nil {
			return 0, err
		}
	}

	if w.buf.Len() > 0 && w.idle > 0 {
		if w.timer == nil {
			w.timer = time.AfterFunc(w.idle, w.flushIdle)
		} else {
			w.timer.Reset(w.idle)
		}
	}

	return len(p), nil
}

// Flush renders and writes any buffered partial line.
func (w *LinkWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

// Close flushes the partial line and stops the idle timer.
func (w *LinkWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	return w.flushLocked()
}

func (w *LinkWriter) flushIdle() {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.flushLocked()
}

func (w *LinkWriter) flushLocked() error {
	if w.buf.Len() == 0 || w.err != nil {
		return w.err
	}
	out := w.renderLines(w.buf.Bytes())
	w.buf.Reset()
	return w.emit(out)
}

// renderLines renders every line in data. Line endings, including a
// carriage return before the newline, are kept as they were.
func (w *LinkWriter) renderLines(data []byte) []byte {
	var out bytes.Buffer
	out.Grow(len(data))

	for len(data) > 0 {
		line := data
		var ending []byte
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			line, ending = data[:i], data[i:i+1]
			data = data[i+1:]
		} else {
			data = nil
		}
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line, ending = line[:n-1], append([]byte{'\r'}, ending...)
		}

		out.WriteString(w.render(string(line)))
		out.Write(ending)
	}
	return out.Bytes()
}

func (w *LinkWriter) emit(out []byte) error {
	if len(out) == 0 {
		return nil
	}
	if _, err := w.dst.Write(out); err != nil {
		w.err = err
		return err
	}
	return nil
}
