package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideaspaper/reqkit/pkg/auth"
	"github.com/ideaspaper/reqkit/pkg/cookies"
	reqerrors "github.com/ideaspaper/reqkit/pkg/errors"
	"github.com/ideaspaper/reqkit/pkg/executor"
	"github.com/ideaspaper/reqkit/pkg/middleware"
	"github.com/ideaspaper/reqkit/pkg/request"
	"github.com/ideaspaper/reqkit/pkg/timeout"
	"github.com/ideaspaper/reqkit/pkg/transport"
)

func mockClient(t *testing.T, opts ...Option) (*Client, *transport.Mock) {
	t.Helper()
	mock := transport.NewMock(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		return transport.NewResponse(http.StatusOK, "ok"), nil
	})
	c, err := New(append([]Option{WithTransport(mock)}, opts...)...)
	require.NoError(t, err)
	return c, mock
}

func TestNewDefaults(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	defer c.Close()

	p := c.Policy()
	assert.True(t, p.FollowRedirects)
	assert.Equal(t, 10, p.MaxRedirects)
	assert.NotNil(t, c.Cookies())
	assert.Equal(t, "http2", c.TransportName())
}

func TestTransportSelection(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		want    string
		wantErr bool
	}{
		{"http1", []Option{WithTransportName("http1")}, "http1", false},
		{"prior knowledge", []Option{WithHTTP2PriorKnowledge()}, "h2c", false},
		{"unknown", []Option{WithTransportName("carrier-pigeon")}, "", true},
		{"custom", []Option{WithTransport(transport.NewMock(nil).Named("fake"))}, "fake", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.opts...)
			if tt.wantErr {
				assert.ErrorIs(t, err, reqerrors.ErrConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.TransportName())
		})
	}
}

func TestInvalidBaseURL(t *testing.T) {
	for _, base := range []string{"not a url", "/relative", "ftp://example.com"} {
		t.Run(base, func(t *testing.T) {
			_, err := New(WithBaseURL(base))
			assert.ErrorIs(t, err, reqerrors.ErrConfig)
		})
	}
}

func TestBaseURLAndDefaultHeaders(t *testing.T) {
	c, mock := mockClient(t,
		WithBaseURL("https://api.example.com/v1/"),
		WithDefaultHeader("X-Team", "core"),
		WithUserAgent("reqkit-test"),
	)

	resp, err := c.Get("users").Header("X-Team", "edge").Query("page", "2").Send(context.Background())
	require.NoError(t, err)
	resp.Close()

	sent := mock.LastRequest()
	assert.Equal(t, "https://api.example.com/v1/users?page=2", sent.URL.String())
	assert.Equal(t, "edge", sent.Header.Get("X-Team"))
	assert.Equal(t, "reqkit-test", sent.Header.Get("User-Agent"))
}

func TestShortcutMethods(t *testing.T) {
	c, mock := mockClient(t)
	shortcuts := map[string]func(string) *RequestBuilder{
		"GET":     c.Get,
		"POST":    c.Post,
		"PUT":     c.Put,
		"DELETE":  c.Delete,
		"PATCH":   c.Patch,
		"HEAD":    c.Head,
		"OPTIONS": c.Options,
	}
	for method, fn := range shortcuts {
		t.Run(method, func(t *testing.T) {
			_, err := fn("http://example.com/").Send(context.Background())
			require.NoError(t, err)
			assert.Equal(t, method, mock.LastRequest().Method)
		})
	}
}

func TestBuilderStickyError(t *testing.T) {
	t.Run("bad url", func(t *testing.T) {
		c, mock := mockClient(t)
		b := c.Get("http://[::1").Header("X", "1").JSON(1)
		_, err := b.Send(context.Background())
		assert.ErrorIs(t, err, reqerrors.ErrInvalidRequest)
		_, err = b.Build()
		assert.ErrorIs(t, err, reqerrors.ErrInvalidRequest)
		assert.Equal(t, 0, mock.RequestCount())
	})

	t.Run("form after json", func(t *testing.T) {
		c, mock := mockClient(t)
		_, err := c.Post("http://example.com").JSON(map[string]int{"a": 1}).Form("k", "v").Header("X", "ignored").Send(context.Background())
		assert.ErrorIs(t, err, reqerrors.ErrConfig)
		assert.Equal(t, 0, mock.RequestCount())
	})
}

func TestBuild(t *testing.T) {
	c, _ := mockClient(t, WithBaseURL("http://example.com"))
	d, err := c.Post("/items").
		Form("a", "1").
		Form("b", "2").
		Accept("application/json").
		Timeout(5 * time.Second).
		Build()
	require.NoError(t, err)

	assert.Equal(t, "http://example.com/items", d.URL().String())
	assert.Equal(t, "application/json", d.Header().Get("Accept"))
	assert.Equal(t, []request.Pair{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}, d.Body().FormPairs())
	to, ok := d.Timeout()
	assert.True(t, ok)
	assert.Equal(t, 5*time.Second, to)

	_, err = c.Get("/x").Header("Bad Name", "v").Build()
	assert.ErrorIs(t, err, reqerrors.ErrInvalidRequest)
}

func TestPerRequestAuthOverridesClient(t *testing.T) {
	c, mock := mockClient(t, WithAuth(auth.Bearer("client-token")))

	_, err := c.Get("http://example.com").Send(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer client-token", mock.LastRequest().Header.Get("Authorization"))

	_, err = c.Get("http://example.com").BasicAuth("user").Send(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Basic dXNlcjo=", mock.LastRequest().Header.Get("Authorization"))

	_, err = c.Get("http://example.com").Send(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer client-token", mock.LastRequest().Header.Get("Authorization"))
}

func TestClose(t *testing.T) {
	c, mock := mockClient(t)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.Get("http://example.com").Send(context.Background())
	assert.ErrorIs(t, err, reqerrors.ErrConfig)
	assert.Equal(t, 0, mock.RequestCount())
}

func TestCookiesDisabled(t *testing.T) {
	mock := transport.NewMock(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		return transport.NewResponse(http.StatusOK, "", "Set-Cookie", "a=1"), nil
	})
	c, err := New(WithTransport(mock), WithCookieStore(nil))
	require.NoError(t, err)
	assert.Nil(t, c.Cookies())

	for range 2 {
		_, err := c.Get("http://example.com").Send(context.Background())
		require.NoError(t, err)
	}
	assert.False(t, mock.LastRequest().Header.Has("Cookie"))
}

func TestSharedCookieStore(t *testing.T) {
	jar := cookies.New()
	require.NoError(t, jar.Store("shared=1", "example.com"))

	c, mock := mockClient(t, WithCookieStore(jar))
	_, err := c.Get("http://example.com").Send(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "shared=1", mock.LastRequest().Header.Get("Cookie"))
	assert.Same(t, jar, c.Cookies())
}

func TestStateHook(t *testing.T) {
	var last executor.State
	c, _ := mockClient(t, WithStateHook(func(from, to executor.State) { last = to }))
	_, err := c.Get("http://example.com").Send(context.Background())
	require.NoError(t, err)
	assert.Equal(t, executor.StateDone, last)
}

func TestEndToEnd(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "s3cr3t", Path: "/"})
		http.Redirect(w, r, "/me", http.StatusSeeOther)
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("sid")
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"sid": c.Value, "method": r.Method})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	collector := middleware.NewCollector(prometheus.NewRegistry())
	c, err := New(
		WithBaseURL(server.URL),
		WithTransportName("http1"),
		WithTimeout(5*time.Second),
		WithMiddleware(middleware.Metrics(collector)),
	)
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Post("/login").Form("user", "me").Send(context.Background())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, resp.Redirects)

	var got map[string]string
	require.NoError(t, resp.JSON(&got))
	assert.Equal(t, map[string]string{"sid": "s3cr3t", "method": "GET"}, got)
	assert.Equal(t, 1, c.Cookies().Len())
	assert.Equal(t, int64(2), collector.Snapshot().RequestCount)
}

func TestWithoutRedirects(t *testing.T) {
	server := httptest.NewServer(http.RedirectHandler("/elsewhere", http.StatusFound))
	defer server.Close()

	c, err := New(WithoutRedirects(), WithTransportName("http1"))
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Get(server.URL).Send(context.Background())
	require.NoError(t, err)
	defer resp.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.True(t, resp.IsRedirection())
}

func TestTimeoutLayering(t *testing.T) {
	tests := []struct {
		name     string
		opts     []Option
		override time.Duration
		want     time.Duration
		bounded  bool
	}{
		{"defaults", nil, 0, 30 * time.Second, true},
		{"connect only keeps default deadline", []Option{WithConnectTimeout(5 * time.Second)}, 0, 30 * time.Second, true},
		{"read only keeps default deadline", []Option{WithReadTimeout(5 * time.Second)}, 0, 30 * time.Second, true},
		{"pool idle only keeps default deadline", []Option{WithPoolIdleTimeout(time.Second)}, 0, 30 * time.Second, true},
		{"overall replaces default", []Option{WithTimeout(3 * time.Second)}, 0, 3 * time.Second, true},
		{"zero overall is unlimited", []Option{WithTimeout(0)}, 0, 0, false},
		{"unlimited policy", []Option{WithTimeoutPolicy(timeout.Unlimited())}, 0, 0, false},
		{"request override over connect only", []Option{WithConnectTimeout(5 * time.Second)}, 2 * time.Second, 2 * time.Second, true},
		{"request override over read only", []Option{WithReadTimeout(5 * time.Second)}, 2 * time.Second, 2 * time.Second, true},
		{"request override over unlimited", []Option{WithTimeout(0)}, 2 * time.Second, 2 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var left time.Duration
			var bounded bool
			mock := transport.NewMock(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
				var dl time.Time
				dl, bounded = ctx.Deadline()
				if bounded {
					left = time.Until(dl)
				}
				return transport.NewResponse(http.StatusOK, ""), nil
			})
			c, err := New(append(tt.opts, WithTransport(mock))...)
			require.NoError(t, err)

			b := c.Get("http://example.com")
			if tt.override > 0 {
				b = b.Timeout(tt.override)
			}
			resp, err := b.Send(context.Background())
			require.NoError(t, err)
			resp.Close()

			require.Equal(t, tt.bounded, bounded)
			if tt.bounded {
				assert.InDelta(t, tt.want.Seconds(), left.Seconds(), 0.5)
			}
		})
	}
}
