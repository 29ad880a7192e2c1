package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"syscall"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

type stubTransport struct {
	name   string
	mu     sync.Mutex
	calls  int
	probes int
	resp   *Response
	err    error
	last   *Request
	before func()
}

func (s *stubTransport) Name() string { return s.name }

func (s *stubTransport) RoundTrip(ctx context.Context, req *Request) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.last = req
	if s.before != nil {
		s.before()
	}
	return s.resp, s.err
}

func (s *stubTransport) Probe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probes++
	return errors.New("probe unavailable")
}

func testConfig(host string) Config {
	return Config{
		Host:        host,
		BearerToken: "token-123",
		Namespace:   "toolhive-system",
		Group:       "toolhive.stacklok.dev",
		Version:     "v1alpha1",
		Resource:    "mcpservers",
		UserAgent:   "kubectl/v1.32.4 (linux/amd64) kubernetes/2917b10",
		Registerer:  prometheus.NewRegistry(),
	}
}

func newTestClient(t *testing.T, host string, opts ...Option) *Client {
	t.Helper()
	c, err := New(testConfig(host), slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestNewRequiresHostAndResource(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig("")
	if _, err := New(cfg, log); err == nil {
		t.Fatal("expected error for empty host")
	}
	cfg = testConfig("https://cluster.example")
	cfg.Resource = ""
	if _, err := New(cfg, log); err == nil {
		t.Fatal("expected error for empty resource")
	}
}

func TestCollectionAndItemPaths(t *testing.T) {
	c := newTestClient(t, "https://cluster.example")
	want := "/apis/toolhive.stacklok.dev/v1alpha1/namespaces/toolhive-system/mcpservers"
	if got := c.CollectionPath(); got != want {
		t.Fatalf("unexpected collection path %q", got)
	}
	if got := c.ItemPath("wiki-42-7"); got != want+"/wiki-42-7" {
		t.Fatalf("unexpected item path %q", got)
	}
}

func TestDoFallsBackWhenDirectFails(t *testing.T) {
	direct := &stubTransport{name: "direct", err: syscall.ECONNREFUSED}
	managed := &stubTransport{name: "managed", resp: &Response{Status: http.StatusOK, Body: []byte(`{"metadata":{"name":"wiki"}}`)}}
	c := newTestClient(t, "https://cluster.example", WithTransports(direct, managed))

	data, err := c.Do(context.Background(), http.MethodGet, c.ItemPath("wiki"), nil)
	if err != nil {
		t.Fatalf("expected fallback success, got %v", err)
	}
	var payload struct {
		Metadata struct {
			Name string `json:"name"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Metadata.Name != "wiki" {
		t.Fatalf("unexpected payload %s", data)
	}
	if direct.calls != 1 || managed.calls != 1 {
		t.Fatalf("expected one call per transport, got direct=%d managed=%d", direct.calls, managed.calls)
	}
	if managed.probes != 1 {
		t.Fatalf("expected health probe before fallback, got %d", managed.probes)
	}
}

func TestDoSkipsFallbackWhenDirectSucceeds(t *testing.T) {
	direct := &stubTransport{name: "direct", resp: &Response{Status: http.StatusOK, Body: []byte(`{}`)}}
	managed := &stubTransport{name: "managed", resp: &Response{Status: http.StatusOK, Body: []byte(`{}`)}}
	c := newTestClient(t, "https://cluster.example", WithTransports(direct, managed))

	if _, err := c.Do(context.Background(), http.MethodGet, c.CollectionPath(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if managed.calls != 0 || managed.probes != 0 {
		t.Fatalf("fallback should not run, calls=%d probes=%d", managed.calls, managed.probes)
	}
}

func TestDoReturnsLastFailureWithUpstreamMessage(t *testing.T) {
	notFound := []byte(`{"kind":"Status","apiVersion":"v1","status":"Failure","message":"mcpservers.toolhive.stacklok.dev \"ghost-server\" not found","reason":"NotFound","code":404}`)
	direct := &stubTransport{name: "direct", resp: &Response{Status: http.StatusInternalServerError, Body: []byte(`{"message":"direct broke"}`)}}
	managed := &stubTransport{name: "managed", resp: &Response{Status: http.StatusNotFound, Body: notFound}}
	c := newTestClient(t, "https://cluster.example", WithTransports(direct, managed))

	_, err := c.Do(context.Background(), http.MethodGet, c.ItemPath("ghost-server"), nil)
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %T", err)
	}
	if te.Transport != "managed" || te.Kind != KindStatus {
		t.Fatalf("expected managed status failure, got %+v", te)
	}
	if te.Message != `mcpservers.toolhive.stacklok.dev "ghost-server" not found` {
		t.Fatalf("unexpected message %q", te.Message)
	}
}

func TestDoUsesGenericMessageForUnparseableErrorBody(t *testing.T) {
	only := &stubTransport{name: "managed", resp: &Response{Status: http.StatusBadGateway, Body: []byte("<html>bad gateway</html>")}}
	c := newTestClient(t, "https://cluster.example", WithTransports(only))

	_, err := c.Do(context.Background(), http.MethodGet, c.CollectionPath(), nil)
	if Message(err) != "upstream request failed" {
		t.Fatalf("unexpected message %q", Message(err))
	}
}

func TestDoReportsParseErrors(t *testing.T) {
	only := &stubTransport{name: "managed", resp: &Response{Status: http.StatusOK, Body: []byte("not json")}}
	c := newTestClient(t, "https://cluster.example", WithTransports(only))

	_, err := c.Do(context.Background(), http.MethodGet, c.CollectionPath(), nil)
	var te *TransportError
	if !errors.As(err, &te) || te.Kind != KindParse {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestDoEncodesBody(t *testing.T) {
	only := &stubTransport{name: "direct", resp: &Response{Status: http.StatusCreated, Body: []byte(`{}`)}}
	c := newTestClient(t, "https://cluster.example", WithTransports(only))

	if _, err := c.Do(context.Background(), http.MethodPost, c.CollectionPath(), map[string]string{"image": "x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(only.last.Body) != `{"image":"x"}` {
		t.Fatalf("unexpected body %s", only.last.Body)
	}
}

func TestDoStopsOnCancelledContext(t *testing.T) {
	direct := &stubTransport{name: "direct", resp: &Response{Status: http.StatusOK, Body: []byte(`{}`)}}
	c := newTestClient(t, "https://cluster.example", WithTransports(direct))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Do(ctx, http.MethodGet, c.CollectionPath(), nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if direct.calls != 0 {
		t.Fatalf("expected no transport calls, got %d", direct.calls)
	}
}

func TestDoReportsCancellationAfterFailedAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	direct := &stubTransport{name: "direct", err: syscall.ECONNREFUSED, before: cancel}
	managed := &stubTransport{name: "managed", resp: &Response{Status: http.StatusOK, Body: []byte(`{}`)}}
	c := newTestClient(t, "https://cluster.example", WithTransports(direct, managed))

	_, err := c.Do(ctx, http.MethodGet, c.CollectionPath(), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		t.Fatalf("direct failure leaked to caller: %v", err)
	}
	var te *TransportError
	if !errors.As(err, &te) || te.Transport != "managed" || te.Kind != KindConnect {
		t.Fatalf("expected managed connect error, got %+v", err)
	}
	if managed.calls != 0 {
		t.Fatalf("managed transport must not run after cancellation, got %d calls", managed.calls)
	}
}

type recordedRequest struct {
	method        string
	path          string
	query         string
	accept        string
	authorization string
	userAgent     string
	contentType   string
	contentLength int64
	body          string
}

func TestTransportsAgainstTLSServer(t *testing.T) {
	var mu sync.Mutex
	var requests []recordedRequest
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, recordedRequest{
			method:        r.Method,
			path:          r.URL.Path,
			query:         r.URL.RawQuery,
			accept:        r.Header.Get("Accept"),
			authorization: r.Header.Get("Authorization"),
			userAgent:     r.Header.Get("User-Agent"),
			contentType:   r.Header.Get("Content-Type"),
			contentLength: r.ContentLength,
			body:          string(body),
		})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"kind":"MCPServer"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	payload := []byte(`{"image":"wikipedia-mcp"}`)
	for _, transport := range c.transports {
		resp, err := transport.RoundTrip(context.Background(), &Request{Method: http.MethodPost, Path: c.CollectionPath() + "?limit=500", Body: payload})
		if err != nil {
			t.Fatalf("%s round trip: %v", transport.Name(), err)
		}
		if resp.Status != http.StatusCreated || string(resp.Body) != `{"kind":"MCPServer"}` {
			t.Fatalf("%s unexpected response %d %s", transport.Name(), resp.Status, resp.Body)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(requests) != 2 {
		t.Fatalf("expected two requests, got %d", len(requests))
	}
	for i, got := range requests {
		if got.method != http.MethodPost || got.path != c.CollectionPath() || got.query != "limit=500" {
			t.Fatalf("request %d: unexpected target %s %s?%s", i, got.method, got.path, got.query)
		}
		if got.accept != "application/json" || got.authorization != "Bearer token-123" {
			t.Fatalf("request %d: unexpected auth headers %+v", i, got)
		}
		if got.userAgent != "kubectl/v1.32.4 (linux/amd64) kubernetes/2917b10" {
			t.Fatalf("request %d: unexpected user agent %q", i, got.userAgent)
		}
		if got.contentType != "application/json" || got.contentLength != int64(len(payload)) || got.body != string(payload) {
			t.Fatalf("request %d: unexpected body headers %+v", i, got)
		}
	}
}

func TestDirectFailureFallsBackToManagedAgainstServer(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	probes := 0
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if r.URL.Path == "/healthz" {
			probes++
			if r.Header.Get("Authorization") != "" {
				t.Errorf("health probe must be unauthenticated")
			}
			_, _ = w.Write([]byte("ok"))
			return
		}
		calls++
		w.Header().Set("Content-Type", "application/json")
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"kind":"Status","message":"etcd unavailable","code":503}`))
			return
		}
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	data, err := c.Do(context.Background(), http.MethodGet, c.CollectionPath()+"?limit=500", nil)
	if err != nil {
		t.Fatalf("expected managed fallback to succeed, got %v", err)
	}
	if string(data) != `{"items":[]}` {
		t.Fatalf("unexpected payload %s", data)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 2 || probes != 1 {
		t.Fatalf("expected 2 calls and 1 probe, got calls=%d probes=%d", calls, probes)
	}
}

func TestHealthUsesProber(t *testing.T) {
	probed := &stubTransport{name: "managed"}
	client := newTestClient(t, "https://cluster.example", WithTransports(plainTransport{}, probed))
	if err := client.Health(context.Background()); err == nil {
		t.Fatal("expected the probe error to surface")
	}
	if probed.probes != 1 {
		t.Fatalf("expected one probe, got %d", probed.probes)
	}
}

type plainTransport struct{}

func (plainTransport) Name() string { return "plain" }

func (plainTransport) RoundTrip(context.Context, *Request) (*Response, error) {
	return &Response{Status: 200, Body: []byte(`{}`)}, nil
}
