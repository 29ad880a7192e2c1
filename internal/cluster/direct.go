package cluster

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const directTransportName = "direct"

// DirectTransport writes the request by hand over a freshly dialed socket.
type DirectTransport struct {
	builder *requestBuilder
	tls     *tls.Config
	timeout time.Duration
}

// NewDirectTransport constructs a raw-socket transport.
func NewDirectTransport(builder *requestBuilder, tlsConfig *tls.Config, timeout time.Duration) *DirectTransport {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &DirectTransport{builder: builder, tls: tlsConfig, timeout: timeout}
}

// Name identifies the transport in logs and metrics.
func (t *DirectTransport) Name() string { return directTransportName }

// RoundTrip dials, writes the request, and buffers the whole response.
func (t *DirectTransport) RoundTrip(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := t.builder.build(ctx, req)
	if err != nil {
		return nil, err
	}
	httpReq.Close = true

	deadline := time.Now().Add(t.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	dialCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	conn, err := t.dial(dialCtx)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", t.builder.address(), err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}
	if err := httpReq.Write(conn); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	resp, err := http.ReadResponse(bufio.NewReader(conn), httpReq)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &Response{Status: resp.StatusCode, Body: body}, nil
}

func (t *DirectTransport) dial(ctx context.Context) (net.Conn, error) {
	netDialer := &net.Dialer{Timeout: t.timeout}
	if !t.builder.secure() {
		return netDialer.DialContext(ctx, "tcp", t.builder.address())
	}
	cfg := t.tls.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = t.builder.base.Hostname()
	}
	dialer := &tls.Dialer{NetDialer: netDialer, Config: cfg}
	return dialer.DialContext(ctx, "tcp", t.builder.address())
}
