package response

import (
	"bufio"
	"io"
	"iter"
	"strings"
	"sync"
)

// ProgressFunc receives the bytes read so far and the declared body length,
// which is -1 when the server did not send one.
type ProgressFunc func(read, total int64)

// Stream is a single-pass reader over a response body. Every call to Next
// or Read performs at most one read on the transport body.
type Stream struct {
	body  *body
	buf   []byte
	total int64

	mu       sync.Mutex
	done     bool
	err      error
	read     int64
	progress ProgressFunc
}

var (
	_ io.ReadCloser = (*Stream)(nil)
	_ io.WriterTo   = (*Stream)(nil)
)

// OnProgress registers fn to run after every read that returned data.
func (s *Stream) OnProgress(fn ProgressFunc) *Stream {
	s.mu.Lock()
	s.progress = fn
	s.mu.Unlock()
	return s
}

// Total returns the declared body length, or -1 when unknown.
func (s *Stream) Total() int64 { return s.total }

// Next returns the next chunk. It returns io.EOF once the body is
// exhausted, at which point the stream is already closed. The returned
// slice is owned by the caller.
func (s *Stream) Next() ([]byte, error) {
	n, err := s.Read(s.buf)
	if n > 0 {
		return append([]byte(nil), s.buf[:n]...), nil
	}
	if err != nil {
		return nil, err
	}
	return []byte{}, nil
}

// Read implements io.Reader with the same single-read guarantee as Next.
func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	if s.done {
		err := s.err
		s.mu.Unlock()
		return 0, err
	}
	n, err := s.body.Read(p)
	if err != nil {
		s.done = true
		s.err = err
		s.body.Close()
		if n > 0 {
			err = nil
		}
	}
	s.read += int64(n)
	read, progress := s.read, s.progress
	s.mu.Unlock()

	if n > 0 && progress != nil {
		progress(read, s.total)
	}
	return n, err
}

// WriteTo copies the rest of the body to w and closes the stream.
func (s *Stream) WriteTo(w io.Writer) (int64, error) {
	defer s.Close()
	var written int64
	for {
		n, err := s.Read(s.buf)
		if n > 0 {
			m, werr := w.Write(s.buf[:n])
			written += int64(m)
			if werr != nil {
				return written, werr
			}
			if m < n {
				return written, io.ErrShortWrite
			}
		}
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}
}

// Close releases the body. It is idempotent.
func (s *Stream) Close() error {
	s.mu.Lock()
	if !s.done {
		s.done = true
		s.err = io.ErrClosedPipe
	}
	s.mu.Unlock()
	return s.body.Close()
}

// Chunks iterates over the remaining chunks. A read error is yielded once
// and ends iteration. Leaving the loop early closes the stream.
func (s *Stream) Chunks() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		defer s.Close()
		for {
			chunk, err := s.Next()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if len(chunk) == 0 {
				continue
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// Lines iterates over newline-separated lines with the line ending removed.
// A final line without a terminator is still yielded.
func (s *Stream) Lines() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		defer s.Close()
		br := bufio.NewReaderSize(s, len(s.buf))
		for {
			line, err := br.ReadString('\n')
			if line != "" {
				if !yield(strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r"), nil) {
					return
				}
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
		}
	}
}
