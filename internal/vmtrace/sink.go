package vmtrace

import (
	"errors"
	"io"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// AppendStamp appends "[<sec>.<frac>] " for elapsed nanoseconds. The fraction
// is truncated to 100 microsecond units and always has five digits.
func AppendStamp(buf []byte, elapsed int64) []byte {
	if elapsed < 0 {
		elapsed = 0
	}

	sec := elapsed / 1_000_000_000
	frac := elapsed % 1_000_000_000 / 10_000

	buf = append(buf, '[')
	buf = strconv.AppendInt(buf, sec, 10)
	buf = append(buf, '.')

	for d := int64(10_000); d > 1 && frac < d; d /= 10 {
		buf = append(buf, '0')
	}

	buf = strconv.AppendInt(buf, frac, 10)

	return append(buf, "] "...)
}

// FormatLine renders one complete trace line including the newline.
func FormatLine(elapsed int64, msg string) string {
	buf := make([]byte, 0, len(msg)+24)
	buf = AppendStamp(buf, elapsed)
	buf = append(buf, msg...)

	return string(append(buf, '\n'))
}

// Sink serializes trace lines onto a shared writer. Each line reaches the
// writer in a single Write call and write failures are counted, not returned.
type Sink struct {
	mu      sync.Mutex
	w       io.Writer
	buf     []byte
	dropped atomic.Uint64
}

func NewSink(w io.Writer) *Sink {
	return &Sink{w: w, buf: make([]byte, 0, 256)}
}

// Emit writes "[stamp] msg\n".
func (s *Sink) Emit(elapsed int64, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf = AppendStamp(s.buf[:0], elapsed)
	s.buf = append(s.buf, msg...)
	s.buf = append(s.buf, '\n')

	if n, err := s.w.Write(s.buf); err != nil || n != len(s.buf) {
		s.dropped.Add(1)
	}
}

// Dropped returns the number of lines the writer failed to accept.
func (s *Sink) Dropped() uint64 {
	return s.dropped.Load()
}

// FDWriter writes straight to a file descriptor without user space buffering.
type FDWriter int

const (
	Stdout FDWriter = 1
	Stderr FDWriter = 2
)

func (fd FDWriter) Write(p []byte) (int, error) {
	written := 0

	for written < len(p) {
		n, err := unix.Write(int(fd), p[written:])
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}

			return written, err
		}

		if n == 0 {
			return written, io.ErrShortWrite
		}

		written += n
	}

	return written, nil
}
