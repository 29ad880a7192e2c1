package cluster

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
)

// Request is a single logical call against the cluster API.
type Request struct {
	Method string
	// Path is absolute from the API root and may carry a query string.
	Path string
	Body []byte
}

// Response is the raw outcome of one transport attempt.
type Response struct {
	Status int
	Body   []byte
}

// Transport sends a Request using one network strategy.
type Transport interface {
	Name() string
	RoundTrip(ctx context.Context, req *Request) (*Response, error)
}

// Prober is implemented by transports that can run a diagnostic check
// before they are used as a fallback.
type Prober interface {
	Probe(ctx context.Context) error
}

// requestBuilder is shared by every transport so headers stay identical.
type requestBuilder struct {
	base      *url.URL
	token     string
	userAgent string
}

func newRequestBuilder(host, token, userAgent string) (*requestBuilder, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(host), "/")
	if trimmed == "" {
		return nil, errors.New("cluster host required")
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "https://" + trimmed
	}
	base, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid cluster host: %w", err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("invalid cluster host %q", host)
	}
	return &requestBuilder{base: base, token: strings.TrimSpace(token), userAgent: userAgent}, nil
}

func (b *requestBuilder) build(ctx context.Context, req *Request) (*http.Request, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, b.base.String()+req.Path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if b.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.token)
	}
	if b.userAgent != "" {
		httpReq.Header.Set("User-Agent", b.userAgent)
	}
	if len(req.Body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.ContentLength = int64(len(req.Body))
	}
	return httpReq, nil
}

// address returns host:port for raw dialing.
func (b *requestBuilder) address() string {
	port := b.base.Port()
	if port == "" {
		port = "443"
		if b.base.Scheme == "http" {
			port = "80"
		}
	}
	return b.base.Hostname() + ":" + port
}

func (b *requestBuilder) secure() bool {
	return b.base.Scheme == "https"
}

// newTLSConfig pins the supplied CA when present. Without one, certificate
// verification is disabled: the cluster endpoint serves an internally issued
// certificate.
func newTLSConfig(caFile string, caData []byte) (*tls.Config, bool, error) {
	pem := caData
	if len(pem) == 0 && strings.TrimSpace(caFile) != "" {
		data, err := os.ReadFile(caFile)
		if err != nil {
			return nil, false, fmt.Errorf("read cluster CA: %w", err)
		}
		pem = data
	}
	if len(pem) == 0 {
		return &tls.Config{InsecureSkipVerify: true}, true, nil //nolint:gosec // internal CA, see K8S_CA_FILE
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, false, errors.New("cluster CA contains no certificates")
	}
	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, false, nil
}
