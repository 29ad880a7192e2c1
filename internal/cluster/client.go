package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultMaxRedirects = 5
	probeTimeout        = 5 * time.Second
)

// Config describes the MCPServer collection endpoint and credentials.
type Config struct {
	Host         string
	BearerToken  string
	Namespace    string
	Group        string
	Version      string
	Resource     string
	UserAgent    string
	CAFile       string
	CAData       []byte
	Timeout      time.Duration
	MaxRedirects int
	Registerer   prometheus.Registerer
}

// Client issues authenticated JSON requests against the cluster API,
// trying each transport in order until one succeeds.
type Client struct {
	transports     []Transport
	collectionPath string
	logger         *slog.Logger
	metrics        *transportMetrics
}

// Option customises client construction.
type Option func(*Client)

// WithTransports replaces the default direct-then-managed transport order.
func WithTransports(transports ...Transport) Option {
	return func(c *Client) {
		if len(transports) > 0 {
			c.transports = transports
		}
	}
}

// New builds a client with the direct transport first and the managed
// transport as fallback.
func New(cfg Config, logger *slog.Logger, opts ...Option) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	required := []struct{ field, value string }{
		{"namespace", cfg.Namespace},
		{"group", cfg.Group},
		{"version", cfg.Version},
		{"resource", cfg.Resource},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return nil, fmt.Errorf("cluster %s required", r.field)
		}
	}
	builder, err := newRequestBuilder(cfg.Host, cfg.BearerToken, cfg.UserAgent)
	if err != nil {
		return nil, err
	}
	tlsConfig, insecure, err := newTLSConfig(cfg.CAFile, cfg.CAData)
	if err != nil {
		return nil, err
	}
	if insecure && builder.secure() {
		logger.Warn("cluster TLS verification disabled; set K8S_CA_FILE to pin the cluster CA", "host", builder.base.Host)
	}

	c := &Client{
		transports: []Transport{
			NewDirectTransport(builder, tlsConfig, cfg.Timeout),
			NewManagedTransport(builder, tlsConfig, cfg.Timeout, cfg.MaxRedirects),
		},
		collectionPath: fmt.Sprintf("/apis/%s/%s/namespaces/%s/%s",
			url.PathEscape(cfg.Group), url.PathEscape(cfg.Version), url.PathEscape(cfg.Namespace), url.PathEscape(cfg.Resource)),
		logger:  logger,
		metrics: newTransportMetrics(cfg.Registerer),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CollectionPath is the path of the MCPServer collection.
func (c *Client) CollectionPath() string {
	return c.collectionPath
}

// ItemPath is the path of one named MCPServer.
func (c *Client) ItemPath(name string) string {
	return c.collectionPath + "/" + url.PathEscape(name)
}

// Do sends body (JSON encoded when non-nil) and returns the JSON response.
// Earlier transport failures are logged; only the last one is returned.
func (c *Client) Do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	req := &Request{Method: method, Path: path}
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		req.Body = payload
	}

	var lastErr error
	for i, transport := range c.transports {
		if err := ctx.Err(); err != nil {
			// Report the cancellation, not the failure that preceded it.
			lastErr = connectError(transport.Name(), err)
			break
		}
		if i > 0 {
			c.probe(ctx, transport)
		}
		data, err := c.attempt(ctx, transport, req)
		if err == nil {
			c.metrics.observe(transport.Name(), "success")
			return data, nil
		}
		lastErr = err
		c.metrics.observe(transport.Name(), outcomeOf(err))
		c.logger.Warn("cluster transport failed",
			"transport", transport.Name(),
			"method", method,
			"path", path,
			"status", statusOf(err),
			"error", err,
		)
	}
	c.logger.Error("cluster request failed", "method", method, "path", path, "error", lastErr)
	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, transport Transport, req *Request) (json.RawMessage, error) {
	resp, err := transport.RoundTrip(ctx, req)
	if err != nil {
		return nil, connectError(transport.Name(), err)
	}
	return decodeResponse(transport.Name(), resp)
}

func (c *Client) probe(ctx context.Context, transport Transport) {
	prober, ok := transport.(Prober)
	if !ok {
		return
	}
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := prober.Probe(probeCtx); err != nil {
		c.logger.Warn("cluster health probe failed", "transport", transport.Name(), "error", err)
		return
	}
	c.logger.Info("cluster health probe ok", "transport", transport.Name())
}

// Health probes the first transport that supports it. It is used by the
// API's readiness endpoint and never gates requests.
func (c *Client) Health(ctx context.Context) error {
	for _, transport := range c.transports {
		if prober, ok := transport.(Prober); ok {
			return prober.Probe(ctx)
		}
	}
	return nil
}

func outcomeOf(err error) string {
	var te *TransportError
	if errors.As(err, &te) {
		return string(te.Kind)
	}
	return "error"
}

func statusOf(err error) int {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Status
	}
	return 0
}
