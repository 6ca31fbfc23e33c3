package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// Request describes one connection attempt.
type Request struct {
	URL    string
	Header http.Header
}

// Transport opens a long-lived push stream. Cancelling ctx must abort the
// in-flight request and unblock the returned reader.
type Transport interface {
	Connect(ctx context.Context, req Request) (FrameReader, error)
}

// SSETransport streams text/event-stream over a plain HTTP GET.
type SSETransport struct {
	Client *http.Client
}

// NewSSETransport returns a transport whose client has no timeout: the stream is long-lived.
func NewSSETransport() *SSETransport {
	return &SSETransport{Client: &http.Client{}}
}

func (t *SSETransport) Connect(ctx context.Context, req Request) (FrameReader, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := t.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("stream returned status code: %d, response: %s", resp.StatusCode, string(body))
	}

	return newSSEReader(resp.Body), nil
}
