package cluster

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const managedTransportName = "managed"

// ManagedTransport sends requests through net/http's pooled client.
type ManagedTransport struct {
	builder *requestBuilder
	client  *http.Client
}

// NewManagedTransport constructs an http.Client backed transport with a
// bounded timeout and redirect count.
func NewManagedTransport(builder *requestBuilder, tlsConfig *tls.Config, timeout time.Duration, maxRedirects int) *ManagedTransport {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if maxRedirects <= 0 {
		maxRedirects = defaultMaxRedirects
	}
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.TLSClientConfig = tlsConfig.Clone()
	client := &http.Client{
		Timeout:   timeout,
		Transport: base,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	return &ManagedTransport{builder: builder, client: client}
}

// Name identifies the transport in logs and metrics.
func (t *ManagedTransport) Name() string { return managedTransportName }

// RoundTrip performs the request with the managed client.
func (t *ManagedTransport) RoundTrip(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := t.builder.build(ctx, req)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &Response{Status: resp.StatusCode, Body: body}, nil
}

// Probe issues an unauthenticated GET /healthz against the cluster host.
func (t *ManagedTransport) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.builder.base.String()+"/healthz", nil)
	if err != nil {
		return err
	}
	if t.builder.userAgent != "" {
		req.Header.Set("User-Agent", t.builder.userAgent)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.New(resp.Status)
	}
	return nil
}
