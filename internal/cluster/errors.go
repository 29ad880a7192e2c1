package cluster

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Kind classifies transport failures.
type Kind string

const (
	// KindConnect covers dial, write, read and timeout failures.
	KindConnect Kind = "connect"
	// KindStatus is a non-2xx HTTP response.
	KindStatus Kind = "status"
	// KindParse is a 2xx response whose body is not JSON.
	KindParse Kind = "parse"
)

const fallbackMessage = "upstream request failed"

// TransportError is the normalised failure returned by the cluster client.
type TransportError struct {
	Kind      Kind
	Transport string
	Status    int
	Message   string
	RawBody   []byte
	Err       error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	b.WriteString("cluster ")
	b.WriteString(string(e.Kind))
	b.WriteString(" error")
	if e.Transport != "" {
		fmt.Fprintf(&b, " via %s", e.Transport)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a 404 from the cluster API.
func IsNotFound(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Status == http.StatusNotFound
}

// Message extracts the upstream message carried by err, falling back to err.Error().
func Message(err error) string {
	var te *TransportError
	if errors.As(err, &te) && te.Message != "" {
		return te.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func connectError(transport string, err error) *TransportError {
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}
	return &TransportError{Kind: KindConnect, Transport: transport, Message: err.Error(), Err: err}
}

// decodeResponse turns a raw response into JSON or a normalised failure.
func decodeResponse(transport string, resp *Response) (json.RawMessage, error) {
	if resp.Status < 200 || resp.Status > 299 {
		return nil, &TransportError{
			Kind:      KindStatus,
			Transport: transport,
			Status:    resp.Status,
			Message:   statusMessage(resp.Body),
			RawBody:   resp.Body,
		}
	}
	if resp.Status == http.StatusNoContent && len(strings.TrimSpace(string(resp.Body))) == 0 {
		return nil, nil
	}
	if !json.Valid(resp.Body) {
		return nil, &TransportError{
			Kind:      KindParse,
			Transport: transport,
			Status:    resp.Status,
			Message:   "invalid JSON in response body",
			RawBody:   resp.Body,
		}
	}
	return json.RawMessage(resp.Body), nil
}

// statusMessage reads the message field of a metav1.Status error body.
func statusMessage(body []byte) string {
	var status metav1.Status
	if err := json.Unmarshal(body, &status); err == nil {
		if msg := strings.TrimSpace(status.Message); msg != "" {
			return msg
		}
	}
	return fallbackMessage
}
