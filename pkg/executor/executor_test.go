package executor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideaspaper/reqkit/internal/filesystem"
	"github.com/ideaspaper/reqkit/pkg/auth"
	"github.com/ideaspaper/reqkit/pkg/cookies"
	reqerrors "github.com/ideaspaper/reqkit/pkg/errors"
	"github.com/ideaspaper/reqkit/pkg/request"
	"github.com/ideaspaper/reqkit/pkg/transport"
)

func mustDesc(t *testing.T, method, url string) request.Descriptor {
	t.Helper()
	d, err := request.New(method, url)
	require.NoError(t, err)
	return d
}

func okMock() *transport.Mock {
	return transport.NewMock(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		return transport.NewResponse(200, "ok"), nil
	})
}

// redirectChain answers with hops redirects to /hop/<n> and then 200.
func redirectChain(status, hops int) *transport.Mock {
	count := 0
	return transport.NewMock(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		count++
		if count <= hops {
			return transport.NewResponse(status, "moved", "Location", "/hop/"+strconv.Itoa(count)), nil
		}
		return transport.NewResponse(200, "final"), nil
	})
}

func TestExecuteSendsExactlyOnce(t *testing.T) {
	mock := okMock()
	exec := New(mock, Options{})

	resp, err := exec.Execute(context.Background(), mustDesc(t, "GET", "http://example.com/a"), DefaultPolicy())
	require.NoError(t, err)
	defer resp.Close()

	assert.Equal(t, 1, mock.RequestCount())
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "http://example.com/a", resp.EffectiveURL.String())

	text, err := resp.Text()
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}

func TestInvalidRequestNeverReachesTransport(t *testing.T) {
	tests := []struct {
		name string
		desc request.Descriptor
		want error
	}{
		{"bad method", mustDesc(t, "TRACE", "http://example.com"), reqerrors.ErrInvalidRequest},
		{"relative url", mustDesc(t, "GET", "/only/path"), reqerrors.ErrInvalidRequest},
		{"bad header value", mustDesc(t, "GET", "http://example.com").WithHeader("X", "a\nb"), reqerrors.ErrInvalidRequest},
		{"multipart missing file", mustDesc(t, "POST", "http://example.com").WithBody(request.Multipart(request.FilePart("f", "/missing"))), reqerrors.ErrMultipart},
		{"json encode failure", mustDesc(t, "POST", "http://example.com").WithBody(request.JSON(func() {})), reqerrors.ErrJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := okMock()
			exec := New(mock, Options{Encoder: request.Encoder{FS: filesystem.NewMockFileSystem()}})
			_, err := exec.Execute(context.Background(), tt.desc, DefaultPolicy())
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 0, mock.RequestCount())
		})
	}
}

func TestRedirectCounting(t *testing.T) {
	t.Run("n redirects make n+1 calls", func(t *testing.T) {
		mock := redirectChain(302, 3)
		resp, err := New(mock, Options{}).Execute(context.Background(), mustDesc(t, "GET", "http://example.com/start"), DefaultPolicy())
		require.NoError(t, err)
		defer resp.Close()

		assert.Equal(t, 4, mock.RequestCount())
		assert.Equal(t, 3, resp.Redirects)
		assert.Equal(t, "http://example.com/hop/3", resp.EffectiveURL.String())
	})

	t.Run("over budget makes max+1 calls", func(t *testing.T) {
		mock := redirectChain(302, 100)
		p := DefaultPolicy()
		p.MaxRedirects = 2

		_, err := New(mock, Options{}).Execute(context.Background(), mustDesc(t, "GET", "http://example.com/start"), p)
		require.ErrorIs(t, err, reqerrors.ErrTooManyRedirects)
		assert.Equal(t, 3, mock.RequestCount())

		var re *reqerrors.RedirectError
		require.True(t, errors.As(err, &re))
		assert.Equal(t, 2, re.Max)
	})

	t.Run("default budget", func(t *testing.T) {
		mock := redirectChain(301, 100)
		_, err := New(mock, Options{}).Execute(context.Background(), mustDesc(t, "GET", "http://example.com/start"), DefaultPolicy())
		require.ErrorIs(t, err, reqerrors.ErrTooManyRedirects)
		assert.Equal(t, 11, mock.RequestCount())
	})

	t.Run("following disabled returns the 3xx", func(t *testing.T) {
		mock := redirectChain(302, 1)
		p := DefaultPolicy()
		p.FollowRedirects = false

		resp, err := New(mock, Options{}).Execute(context.Background(), mustDesc(t, "GET", "http://example.com/start"), p)
		require.NoError(t, err)
		defer resp.Close()
		assert.Equal(t, 302, resp.StatusCode)
		assert.Equal(t, "/hop/1", resp.Header.Get("Location"))
		assert.Equal(t, 1, mock.RequestCount())
	})
}

func TestRedirectMethodRewriting(t *testing.T) {
	tests := []struct {
		status     int
		method     string
		wantMethod string
		keepBody   bool
	}{
		{301, "POST", "GET", false},
		{302, "PUT", "GET", false},
		{303, "POST", "GET", false},
		{303, "HEAD", "HEAD", false},
		{307, "POST", "POST", true},
		{308, "PUT", "PUT", true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status)+" "+tt.method, func(t *testing.T) {
			mock := redirectChain(tt.status, 1)
			d := mustDesc(t, tt.method, "http://example.com/form").WithBody(request.JSON(map[string]int{"n": 1}))

			resp, err := New(mock, Options{}).Execute(context.Background(), d, DefaultPolicy())
			require.NoError(t, err)
			defer resp.Close()
			require.Equal(t, 2, mock.RequestCount())

			first, second := mock.Requests[0], mock.Requests[1]
			assert.Equal(t, tt.wantMethod, second.Method)
			if tt.keepBody {
				assert.Equal(t, first.Body, second.Body)
				assert.Equal(t, "application/json", second.Header.Get("Content-Type"))
			} else {
				assert.Empty(t, second.Body)
				assert.False(t, second.Header.Has("Content-Type"))
			}
		})
	}
}

func TestCrossHostRedirectStripsCredentials(t *testing.T) {
	count := 0
	mock := transport.NewMock(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		count++
		switch count {
		case 1:
			return transport.NewResponse(302, "", "Location", "/same"), nil
		case 2:
			return transport.NewResponse(302, "", "Location", "http://other.example.net/away"), nil
		}
		return transport.NewResponse(200, "done"), nil
	})

	p := DefaultPolicy()
	p.Auth = auth.Bearer("secret")
	d := mustDesc(t, "GET", "http://api.example.com/start").WithHeader("Cookie", "session=1")

	resp, err := New(mock, Options{}).Execute(context.Background(), d, p)
	require.NoError(t, err)
	defer resp.Close()
	require.Equal(t, 3, mock.RequestCount())

	for _, i := range []int{0, 1} {
		assert.Equal(t, "Bearer secret", mock.Requests[i].Header.Get("Authorization"))
		assert.Equal(t, "session=1", mock.Requests[i].Header.Get("Cookie"))
	}
	last := mock.Requests[2]
	assert.Equal(t, "other.example.net", last.URL.Host)
	assert.False(t, last.Header.Has("Authorization"))
	assert.False(t, last.Header.Has("Cookie"))
}

func TestJSONRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in map[string]any
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"method":       r.Method,
			"content_type": r.Header.Get("Content-Type"),
			"echo":         in,
		})
	}))
	defer server.Close()

	tr, err := transport.New(transport.FlavorHTTP1, transport.Config{})
	require.NoError(t, err)
	defer tr.CloseIdleConnections()

	d := mustDesc(t, "POST", server.URL+"/echo").WithBody(request.JSON(map[string]any{"name": "reqkit", "n": 2}))
	resp, err := New(tr, Options{}).Execute(context.Background(), d, DefaultPolicy())
	require.NoError(t, err)

	var got struct {
		Method      string         `json:"method"`
		ContentType string         `json:"content_type"`
		Echo        map[string]any `json:"echo"`
	}
	require.NoError(t, resp.JSON(&got))
	assert.Equal(t, "POST", got.Method)
	assert.Equal(t, "application/json", got.ContentType)
	assert.Equal(t, map[string]any{"name": "reqkit", "n": float64(2)}, got.Echo)
}

func TestExampleGetScenario(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/get" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"url":     "http://example.org/get",
			"headers": map[string]string{"Accept": r.Header.Get("Accept")},
		})
	}))
	defer server.Close()

	tr, err := transport.New(transport.FlavorHTTP1, transport.Config{})
	require.NoError(t, err)

	d := mustDesc(t, "GET", server.URL+"/get").WithHeader("Accept", "application/json")
	resp, err := New(tr, Options{}).Execute(context.Background(), d, DefaultPolicy())
	require.NoError(t, err)
	assert.True(t, resp.IsSuccess())
	assert.True(t, resp.IsJSON())

	results, err := resp.Lookup("url", "headers.Accept")
	require.NoError(t, err)
	assert.Equal(t, "http://example.org/get", results[0].String())
	assert.Equal(t, "application/json", results[1].String())
}

func TestCookiesFlowBetweenRequests(t *testing.T) {
	mock := transport.NewMock(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		if req.URL.Path == "/login" {
			return transport.NewResponse(200, "", "Set-Cookie", "sid=abc; Path=/", "Set-Cookie", "theme=dark"), nil
		}
		return transport.NewResponse(200, ""), nil
	})
	jar := cookies.New()
	p := DefaultPolicy()
	p.Cookies = jar
	exec := New(mock, Options{})

	resp, err := exec.Execute(context.Background(), mustDesc(t, "POST", "http://example.com/login"), p)
	require.NoError(t, err)
	resp.Close()
	assert.Equal(t, 2, jar.Len())

	d := mustDesc(t, "GET", "http://example.com/profile").WithHeader("Cookie", "theme=light; extra=1")
	resp, err = exec.Execute(context.Background(), d, p)
	require.NoError(t, err)
	resp.Close()

	assert.Equal(t, "theme=light; extra=1; sid=abc", mock.LastRequest().Header.Get("Cookie"))

	_, err = exec.Execute(context.Background(), mustDesc(t, "GET", "http://elsewhere.org/"), p)
	require.NoError(t, err)
	assert.False(t, mock.LastRequest().Header.Has("Cookie"))
}

func TestRedirectStoresCookiesPerHop(t *testing.T) {
	count := 0
	mock := transport.NewMock(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		count++
		if count == 1 {
			return transport.NewResponse(302, "", "Location", "/home", "Set-Cookie", "sid=1"), nil
		}
		return transport.NewResponse(200, ""), nil
	})
	p := DefaultPolicy()
	p.Cookies = cookies.New()

	resp, err := New(mock, Options{}).Execute(context.Background(), mustDesc(t, "POST", "http://example.com/login"), p)
	require.NoError(t, err)
	resp.Close()
	assert.Equal(t, "sid=1", mock.LastRequest().Header.Get("Cookie"))
}

func TestAuthApplication(t *testing.T) {
	tests := []struct {
		name       string
		desc       request.Descriptor
		policy     auth.Policy
		wantAuth   string
		wantQuery  string
		wantBody   string
		wantErr    error
		wantCalled bool
	}{
		{
			name:       "basic header",
			desc:       mustDesc(t, "GET", "http://example.com"),
			policy:     auth.Basic("user", "pass"),
			wantAuth:   "Basic dXNlcjpwYXNz",
			wantCalled: true,
		},
		{
			name:       "caller header wins",
			desc:       mustDesc(t, "GET", "http://example.com").WithHeader("authorization", "Token mine"),
			policy:     auth.Bearer("policy"),
			wantAuth:   "Token mine",
			wantCalled: true,
		},
		{
			name:       "api key in query",
			desc:       mustDesc(t, "GET", "http://example.com/?a=1"),
			policy:     auth.APIKey("key", "k1", auth.InQuery),
			wantQuery:  "a=1&key=k1",
			wantCalled: true,
		},
		{
			name:       "api key keeps caller query order",
			desc:       mustDesc(t, "GET", "http://example.com/?z=1&a=2"),
			policy:     auth.APIKey("key", "k 1", auth.InQuery),
			wantQuery:  "z=1&a=2&key=k+1",
			wantCalled: true,
		},
		{
			name:       "existing query parameter kept",
			desc:       mustDesc(t, "GET", "http://example.com/?key=mine"),
			policy:     auth.APIKey("key", "k1", auth.InQuery),
			wantQuery:  "key=mine",
			wantCalled: true,
		},
		{
			name:       "api key makes empty body a form",
			desc:       mustDesc(t, "POST", "http://example.com"),
			policy:     auth.APIKey("key", "k1", auth.InBody),
			wantBody:   "key=k1",
			wantCalled: true,
		},
		{
			name:       "api key appended to form",
			desc:       mustDesc(t, "POST", "http://example.com").WithBody(request.Form(request.Pair{Key: "a", Value: "b"})),
			policy:     auth.APIKey("key", "k1", auth.InBody),
			wantBody:   "a=b&key=k1",
			wantCalled: true,
		},
		{
			name:    "api key cannot join a json body",
			desc:    mustDesc(t, "POST", "http://example.com").WithBody(request.JSON(1)),
			policy:  auth.APIKey("key", "k1", auth.InBody),
			wantErr: reqerrors.ErrAuth,
		},
		{
			name:    "unresolvable policy",
			desc:    mustDesc(t, "GET", "http://example.com"),
			policy:  auth.Bearer(""),
			wantErr: reqerrors.ErrAuth,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := okMock()
			p := DefaultPolicy()
			p.Auth = tt.policy

			resp, err := New(mock, Options{}).Execute(context.Background(), tt.desc, p)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, 0, mock.RequestCount())
				return
			}
			require.NoError(t, err)
			resp.Close()
			require.Equal(t, 1, mock.RequestCount())

			sent := mock.LastRequest()
			if tt.wantAuth != "" {
				assert.Equal(t, tt.wantAuth, sent.Header.Get("Authorization"))
			}
			if tt.wantQuery != "" {
				assert.Equal(t, tt.wantQuery, sent.URL.RawQuery)
			}
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, string(sent.Body))
				assert.Equal(t, "application/x-www-form-urlencoded", sent.Header.Get("Content-Type"))
			}
		})
	}
}

func TestContentTypeOnlyWhenAbsent(t *testing.T) {
	mock := okMock()
	exec := New(mock, Options{})

	d := mustDesc(t, "POST", "http://example.com").WithBody(request.Text("hi"))
	_, err := exec.Execute(context.Background(), d, DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, "text/plain; charset=utf-8", mock.LastRequest().Header.Get("Content-Type"))

	_, err = exec.Execute(context.Background(), d.WithHeader("Content-Type", "text/csv"), DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, []string{"text/csv"}, mock.LastRequest().Header.Values("Content-Type"))
}

func TestMultipartBoundaryPerRequest(t *testing.T) {
	mock := okMock()
	exec := New(mock, Options{Encoder: request.Encoder{FS: filesystem.NewMockFileSystem().WithFileString("/a.txt", "A")}})
	d := mustDesc(t, "POST", "http://example.com/upload").WithBody(request.Multipart(
		request.TextPart("k", "v"),
		request.FilePart("file", "/a.txt"),
	))

	for range 2 {
		_, err := exec.Execute(context.Background(), d, DefaultPolicy())
		require.NoError(t, err)
	}
	first := mock.Requests[0].Header.Get("Content-Type")
	second := mock.Requests[1].Header.Get("Content-Type")
	assert.True(t, strings.HasPrefix(first, "multipart/form-data; boundary=----Boundary"))
	assert.NotEqual(t, first, second)
	assert.Contains(t, string(mock.Requests[0].Body), `filename="a.txt"`)
}

func blockUntilDone(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestTimeoutFiresPromptly(t *testing.T) {
	mock := transport.NewMock(blockUntilDone)
	d := mustDesc(t, "GET", "http://example.com/slow").WithTimeout(50 * time.Millisecond)

	start := time.Now()
	_, err := New(mock, Options{}).Execute(context.Background(), d, DefaultPolicy())
	elapsed := time.Since(start)

	require.ErrorIs(t, err, reqerrors.ErrTimeout)
	var te *reqerrors.TimeoutError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 50*time.Millisecond, te.Duration)
	assert.Less(t, elapsed, 100*time.Millisecond)
}

func TestCallerDeadlineReportsRemainingBudget(t *testing.T) {
	mock := transport.NewMock(blockUntilDone)
	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	_, err := New(mock, Options{}).Execute(ctx, mustDesc(t, "GET", "http://example.com"), DefaultPolicy())

	var te *reqerrors.TimeoutError
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.Positive(t, te.Duration)
	assert.LessOrEqual(t, te.Duration, 40*time.Millisecond)
}

func TestDigestSendsWithoutHeader(t *testing.T) {
	var logs strings.Builder
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	mock := okMock()
	p := DefaultPolicy()
	p.Auth = auth.Digest("user", "pass", "realm")

	resp, err := New(mock, Options{Logger: logger}).Execute(context.Background(), mustDesc(t, "GET", "http://example.com"), p)
	require.NoError(t, err)
	resp.Close()

	assert.False(t, mock.LastRequest().Header.Has("Authorization"))
	assert.Contains(t, logs.String(), "digest auth unsupported, no header produced")
}

func TestClientTimeoutPolicyApplies(t *testing.T) {
	mock := transport.NewMock(blockUntilDone)
	p := DefaultPolicy()
	p.Timeouts.Overall = 20 * time.Millisecond

	_, err := New(mock, Options{}).Execute(context.Background(), mustDesc(t, "GET", "http://example.com"), p)
	assert.ErrorIs(t, err, reqerrors.ErrTimeout)
}

func TestCancellation(t *testing.T) {
	mock := transport.NewMock(blockUntilDone)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	_, err := New(mock, Options{}).Execute(ctx, mustDesc(t, "GET", "http://example.com"), DefaultPolicy())
	require.ErrorIs(t, err, reqerrors.ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, reqerrors.ErrTimeout)
}

// ctxBody blocks reads until the exchange context ends.
type ctxBody struct{ ctx context.Context }

func (b ctxBody) Read([]byte) (int, error) {
	<-b.ctx.Done()
	return 0, b.ctx.Err()
}

func (ctxBody) Close() error { return nil }

func TestTimeoutWhileReadingBody(t *testing.T) {
	mock := transport.NewMock(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		r := transport.NewResponse(200, "")
		r.Body = ctxBody{ctx}
		return r, nil
	})
	d := mustDesc(t, "GET", "http://example.com/stream").WithTimeout(30 * time.Millisecond)

	resp, err := New(mock, Options{}).Execute(context.Background(), d, DefaultPolicy())
	require.NoError(t, err)
	_, err = resp.Bytes()
	assert.ErrorIs(t, err, reqerrors.ErrTimeout)
}

func TestNetworkError(t *testing.T) {
	mock := transport.NewMock(nil)
	mock.Error = io.ErrUnexpectedEOF

	_, err := New(mock, Options{}).Execute(context.Background(), mustDesc(t, "GET", "http://example.com"), DefaultPolicy())
	require.ErrorIs(t, err, reqerrors.ErrNetwork)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestStateTransitions(t *testing.T) {
	type step struct{ from, to State }
	record := func(steps *[]step) func(from, to State) {
		return func(from, to State) { *steps = append(*steps, step{from, to}) }
	}

	t.Run("success", func(t *testing.T) {
		var steps []step
		_, err := New(okMock(), Options{OnTransition: record(&steps)}).
			Execute(context.Background(), mustDesc(t, "GET", "http://example.com"), DefaultPolicy())
		require.NoError(t, err)
		assert.Equal(t, []step{
			{StateBuilding, StateAwaitingTransport},
			{StateAwaitingTransport, StateDone},
		}, steps)
	})

	t.Run("redirect", func(t *testing.T) {
		var steps []step
		_, err := New(redirectChain(302, 1), Options{OnTransition: record(&steps)}).
			Execute(context.Background(), mustDesc(t, "GET", "http://example.com"), DefaultPolicy())
		require.NoError(t, err)
		assert.Equal(t, []step{
			{StateBuilding, StateAwaitingTransport},
			{StateAwaitingTransport, StateRedirecting},
			{StateRedirecting, StateAwaitingTransport},
			{StateAwaitingTransport, StateDone},
		}, steps)
	})

	t.Run("validation failure", func(t *testing.T) {
		var steps []step
		_, err := New(okMock(), Options{OnTransition: record(&steps)}).
			Execute(context.Background(), mustDesc(t, "BREW", "http://example.com"), DefaultPolicy())
		require.Error(t, err)
		assert.Equal(t, []step{{StateBuilding, StateFailed}}, steps)
	})

	assert.True(t, StateDone.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateRedirecting.Terminal())
	assert.Equal(t, "awaiting_transport", StateAwaitingTransport.String())
}

func TestConcurrentExecute(t *testing.T) {
	mock := okMock()
	exec := New(mock, Options{})
	jar := cookies.New()
	p := DefaultPolicy()
	p.Cookies = jar

	d := mustDesc(t, "GET", "http://example.com")

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := exec.Execute(context.Background(), d, p)
			if assert.NoError(t, err) {
				resp.Close()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, mock.RequestCount())
}
