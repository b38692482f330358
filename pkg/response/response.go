// Package response wraps the result of an executed request with a lazily
// consumed body.
package response

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/ideaspaper/reqkit/internal/constants"
	"github.com/ideaspaper/reqkit/internal/filesystem"
	"github.com/ideaspaper/reqkit/internal/httputil"
	"github.com/ideaspaper/reqkit/pkg/errors"
)

type bodyState int

const (
	stateUnread bodyState = iota
	stateBuffered
	stateStreaming
	stateClosed
)

// Params builds a Response.
type Params struct {
	StatusCode int
	Status     string
	Proto      string
	Header     httputil.Header
	Body       io.ReadCloser

	EffectiveURL *url.URL
	Redirects    int
	Elapsed      time.Duration

	// Timeout is reported by read errors caused by the exchange deadline.
	Timeout time.Duration

	// Release runs once, after Body is closed.
	Release func()
}

// Response is the final response of an execution.
type Response struct {
	StatusCode int
	Status     string
	Proto      string
	Header     httputil.Header

	// EffectiveURL is the URL that produced this response, after redirects.
	EffectiveURL *url.URL
	Redirects    int
	Elapsed      time.Duration

	// Uncompressed is set when a gzip body is decoded on the fly.
	Uncompressed bool

	mu    sync.Mutex
	state bodyState
	body  *body
}

// New wraps p. The returned Response owns p.Body.
func New(p Params) *Response {
	r := &Response{
		StatusCode:   p.StatusCode,
		Status:       p.Status,
		Proto:        p.Proto,
		Header:       p.Header.Clone(),
		EffectiveURL: p.EffectiveURL,
		Redirects:    p.Redirects,
		Elapsed:      p.Elapsed,
	}
	if r.Status == "" {
		r.Status = strconv.Itoa(p.StatusCode)
	}

	src := p.Body
	if src == nil {
		src = io.NopCloser(strings.NewReader(""))
	}
	b := &body{src: src, release: p.Release, timeout: p.Timeout}
	if p.EffectiveURL != nil {
		b.url = p.EffectiveURL.String()
	}
	if strings.EqualFold(r.Header.Get(constants.HeaderContentEncoding), "gzip") {
		b.gzip = true
		r.Uncompressed = true
		r.Header.Del(constants.HeaderContentEncoding)
		r.Header.Del(constants.HeaderContentLength)
	}
	r.body = b
	return r
}

// take moves the body out of the unread state.
func (r *Response) take(next bodyState) (*body, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateUnread {
		return nil, errors.ErrBodyConsumed
	}
	r.state = next
	return r.body, nil
}

// Bytes reads the whole body. It can be called once; later buffered reads
// return errors.ErrBodyConsumed.
func (r *Response) Bytes() ([]byte, error) {
	b, err := r.take(stateBuffered)
	if err != nil {
		return nil, err
	}
	defer b.Close()
	data, err := io.ReadAll(b)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Text reads the body as UTF-8.
func (r *Response) Text() (string, error) {
	data, err := r.Bytes()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", errors.NewParseError("response body is not valid UTF-8", nil)
	}
	return string(data), nil
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	data, err := r.Bytes()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &errors.JSONError{Op: "decode", Wrapped: err}
	}
	return nil
}

// Decode reads the body of r as JSON into a T.
func Decode[T any](r *Response) (T, error) {
	var v T
	err := r.JSON(&v)
	return v, err
}

// Lookup evaluates gjson paths against a JSON body. Results come back in
// path order; a path that matches nothing yields a Result whose Exists is false.
func (r *Response) Lookup(paths ...string) ([]gjson.Result, error) {
	data, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) {
		return nil, &errors.JSONError{Op: "lookup", Wrapped: errors.NewParseError("body is not valid JSON", nil)}
	}
	return gjson.GetManyBytes(data, paths...), nil
}

// Stream hands the body out in chunks of at most chunkSize bytes. A
// non-positive chunkSize selects constants.DefaultChunkSize.
func (r *Response) Stream(chunkSize int) (*Stream, error) {
	b, err := r.take(stateStreaming)
	if err != nil {
		return nil, err
	}
	if chunkSize <= 0 {
		chunkSize = constants.DefaultChunkSize
	}
	return &Stream{body: b, buf: make([]byte, chunkSize), total: r.ContentLength()}, nil
}

// CopyTo streams the body into w and returns the number of bytes written.
// progress may be nil.
func (r *Response) CopyTo(w io.Writer, progress ProgressFunc) (int64, error) {
	s, err := r.Stream(0)
	if err != nil {
		return 0, err
	}
	return s.OnProgress(progress).WriteTo(w)
}

// SaveToFile writes the body to path through fsys, replacing the file only
// once the whole body has arrived. A nil fsys uses the OS file system.
func (r *Response) SaveToFile(fsys filesystem.FileSystem, path string, progress ProgressFunc) (int64, error) {
	if fsys == nil {
		fsys = filesystem.Default
	}
	var buf bytes.Buffer
	n, err := r.CopyTo(&buf, progress)
	if err != nil {
		return n, err
	}
	if err := filesystem.WriteFileAtomic(fsys, path, buf.Bytes(), 0644); err != nil {
		return n, errors.Wrapf(err, "save response to %s", path)
	}
	return n, nil
}

// Close releases the body without reading it. It is safe to call more than once.
func (r *Response) Close() error {
	r.mu.Lock()
	if r.state == stateUnread {
		r.state = stateClosed
	}
	b := r.body
	r.mu.Unlock()
	return b.Close()
}

// ContentType returns the Content-Type header.
func (r *Response) ContentType() string {
	return r.Header.Get(constants.HeaderContentType)
}

// ContentLength returns the declared body length, or -1 when unknown.
func (r *Response) ContentLength() int64 {
	v := r.Header.Get(constants.HeaderContentLength)
	if v == "" {
		return -1
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// IsJSON reports whether the Content-Type names a JSON media type.
func (r *Response) IsJSON() bool {
	return strings.Contains(strings.ToLower(r.ContentType()), "json")
}

func (r *Response) IsInformational() bool { return IsInformational(r.StatusCode) }
func (r *Response) IsSuccess() bool       { return IsSuccess(r.StatusCode) }
func (r *Response) IsRedirection() bool   { return IsRedirection(r.StatusCode) }
func (r *Response) IsClientError() bool   { return IsClientError(r.StatusCode) }
func (r *Response) IsServerError() bool   { return IsServerError(r.StatusCode) }

// ErrorForStatus returns a *errors.StatusError for 4xx and 5xx responses.
func (r *Response) ErrorForStatus() error {
	if !IsClientError(r.StatusCode) && !IsServerError(r.StatusCode) {
		return nil
	}
	u := ""
	if r.EffectiveURL != nil {
		u = r.EffectiveURL.String()
	}
	return &errors.StatusError{StatusCode: r.StatusCode, Status: r.Status, URL: u}
}

// body is the transport body plus release bookkeeping.
type body struct {
	src     io.ReadCloser
	gzip    bool
	decoder io.Reader

	url     string
	timeout time.Duration
	release func()

	closeOnce sync.Once
	closeErr  error
}

func (b *body) Read(p []byte) (int, error) {
	r := io.Reader(b.src)
	if b.gzip {
		if b.decoder == nil {
			zr, err := gzip.NewReader(b.src)
			if err == io.EOF {
				return 0, io.EOF
			}
			if err != nil {
				return 0, b.fail(err)
			}
			b.decoder = zr
		}
		r = b.decoder
	}
	n, err := r.Read(p)
	if err != nil && err != io.EOF {
		return n, b.fail(err)
	}
	return n, err
}

func (b *body) fail(err error) error {
	mapped := b.mapError(err)
	b.Close()
	return mapped
}

func (b *body) mapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.NewTimeoutError(b.timeout, b.url)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return errors.NewTimeoutError(b.timeout, b.url)
	}
	if errors.Is(err, context.Canceled) {
		return errors.Wrap(errors.ErrCanceled, "reading response body")
	}
	if errors.Is(err, gzip.ErrHeader) || errors.Is(err, gzip.ErrChecksum) {
		return errors.NewParseError("invalid gzip body", err)
	}
	return errors.NewNetworkError("read", b.url, err)
}

func (b *body) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = b.src.Close()
		if b.release != nil {
			b.release()
		}
	})
	return b.closeErr
}
