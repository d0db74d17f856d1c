package upload

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"
)

// Transport delivers one serialized ping to the collector. The core
// only cares about the resulting status code; TLS, proxies and auth
// are the implementation's business. A timeout must surface as an
// error, which the scheduler treats as a transient failure.
type Transport interface {
	Deliver(ctx context.Context, url string, headers map[string]string, body []byte) (status int, err error)
}

// HTTPTransport delivers pings over plain net/http.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport creates a transport whose requests time out after
// the given duration.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		client: &http.Client{Timeout: timeout},
	}
}

// Deliver POSTs the body and returns the response status. The response
// body is discarded; the collector's contract is status-only.
func (t *HTTPTransport) Deliver(ctx context.Context, url string, headers map[string]string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build upload request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}
