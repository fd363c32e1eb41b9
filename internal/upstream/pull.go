package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"lemonman/pkg/types"
)

// pullStream hands the upstream response body to the caller. Closing it
// cancels the upstream request, so a client that disconnects mid-download
// does not leave the transfer running.
type pullStream struct {
	body   io.ReadCloser
	cancel context.CancelFunc
}

func (p *pullStream) Read(b []byte) (int, error) { return p.body.Read(b) }

func (p *pullStream) Close() error {
	err := p.body.Close()
	p.cancel()
	return err
}

// errorEvent renders one well-formed SSE event carrying an error payload.
// The browser-side progress log understands {"error": ...} data objects.
func errorEvent(msg string) []byte {
	data, _ := json.Marshal(map[string]string{"error": msg})
	return []byte("data: " + string(data) + "\n\n")
}

// Pull initiates a streamed model download and returns the upstream event
// stream for relaying chunk-by-chunk. It never fails before the stream
// starts: a transport error or immediate non-2xx yields a one-event stream
// carrying the error, so a live progress view always receives a terminal,
// displayable signal instead of a dropped connection.
func (c *Client) Pull(ctx context.Context, req types.PullRequest) io.ReadCloser {
	req.Stream = true
	req.MMProj = strings.TrimSpace(req.MMProj)
	body, _ := json.Marshal(req)

	ctx, cancel := context.WithTimeout(ctx, c.pull)
	httpReq, err := c.newRequest(ctx, http.MethodPost, "/api/v1/pull", bytes.NewReader(body))
	if err != nil {
		cancel()
		return io.NopCloser(bytes.NewReader(errorEvent(err.Error())))
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		c.log.Warn().Err(err).Str("model", req.ModelName).Msg("pull failed to start")
		return io.NopCloser(bytes.NewReader(errorEvent(err.Error())))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
		msg := fmt.Sprintf("Upstream Error: %s", strings.TrimSpace(string(b)))
		c.log.Warn().Int("status", resp.StatusCode).Str("model", req.ModelName).Msg("pull rejected")
		return io.NopCloser(bytes.NewReader(errorEvent(msg)))
	}
	return &pullStream{body: resp.Body, cancel: cancel}
}
