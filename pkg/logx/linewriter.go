package logx

import (
	"bytes"
	"sync"
)

// maxLineBytes caps a single buffered line; longer output is flushed in chunks.
const maxLineBytes = 16 << 10

// LineWriter is an io.Writer that logs every complete line it receives.
//
// It is meant to be plugged into exec.Cmd Stdout/Stderr. An optional Filter
// rewrites each line before it is logged (used for secret masking).
//
// A line longer than the chunk limit is filtered as a whole and then cut;
// the last Hold bytes are kept back and filtered again with the next write,
// so a match of up to Hold+1 bytes is never split across two chunks.
type LineWriter struct {
	log    Logger
	level  Level
	msg    string
	Filter func(string) string
	Hold   int

	mu  sync.Mutex
	buf bytes.Buffer
}

// NewLineWriter logs each line as msg with a "line" field at the given level.
func NewLineWriter(log Logger, level Level, msg string) *LineWriter {
	return &LineWriter{log: log, level: level, msg: msg}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		b := w.buf.Bytes()
		i := bytes.IndexByte(b, '\n')
		if i < 0 {
			if w.buf.Len() >= maxLineBytes {
				w.emitChunk(string(b))
			}
			break
		}
		line := string(bytes.TrimRight(b[:i], "\r"))
		w.buf.Next(i + 1)
		w.emit(line)
	}
	return len(p), nil
}

// Flush logs any trailing partial line.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() == 0 {
		return
	}
	w.emit(w.buf.String())
	w.buf.Reset()
}

func (w *LineWriter) emitChunk(raw string) {
	s := raw
	if w.Filter != nil {
		s = w.Filter(s)
	}
	hold := min(max(w.Hold, 0), maxLineBytes/2)
	cut := max(len(s)-hold, 0)
	w.log.Log(w.level, w.msg, String("line", s[:cut]))
	w.buf.Reset()
	w.buf.WriteString(s[cut:])
}

func (w *LineWriter) emit(line string) {
	if w.Filter != nil {
		line = w.Filter(line)
	}
	w.log.Log(w.level, w.msg, String("line", line))
}
