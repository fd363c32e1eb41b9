// Package upstream is a thin client for the Lemonade Server REST API. Every
// method performs one HTTP call with a per-tier deadline; the REST contract
// is fixed and owned by the upstream server.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"lemonman/internal/config"
	"lemonman/pkg/types"
)

// Client wraps the upstream REST endpoints with an optional bearer
// credential and three timeout tiers.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	light      time.Duration
	load       time.Duration
	pull       time.Duration
	log        zerolog.Logger
}

// New constructs a Client from the panel configuration.
func New(cfg *config.Config, log zerolog.Logger) *Client {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	// Client.Timeout stays 0: each call carries its own context deadline, and
	// the pull relay must be able to stream far past any single value here.
	cli := &http.Client{Transport: tr, Timeout: 0}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: cli,
		light:      cfg.LightTimeout(),
		load:       cfg.LoadTimeout(),
		pull:       cfg.PullTimeout(),
		log:        log,
	}
}

// BaseURL returns the configured upstream base URL, for display.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// do issues the request and normalizes failures into the gateway's typed
// errors. On success the caller owns resp.Body.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ErrUnavailable(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, ErrRejected(resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.light)
	defer cancel()
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// ListModels fetches the upstream model listing.
func (c *Client) ListModels(ctx context.Context) ([]types.Model, error) {
	var out types.ModelsResponse
	if err := c.getJSON(ctx, "/api/v1/models", &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Health fetches the loaded-model state.
func (c *Client) Health(ctx context.Context) (types.Health, error) {
	var out types.Health
	if err := c.getJSON(ctx, "/api/v1/health", &out); err != nil {
		return types.Health{}, err
	}
	return out, nil
}

// Stats fetches the last-request performance stats. Stats are cosmetic, so
// any failure yields an absent Stats value rather than an error.
func (c *Client) Stats(ctx context.Context) types.Stats {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "/api/v1/stats", &raw); err != nil {
		c.log.Debug().Err(err).Msg("stats unavailable")
		return types.Stats{}
	}
	return types.Stats{Raw: raw}
}

// Load asks the upstream server to load a model. Optional fields already
// carry omitempty tags, so only non-empty values reach the wire. Model
// loading is slow; this call uses the long timeout tier.
func (c *Client) Load(ctx context.Context, req types.LoadRequest) error {
	req.LlamaCPPArgs = strings.TrimSpace(req.LlamaCPPArgs)
	req.LlamaCPPBackend = strings.TrimSpace(req.LlamaCPPBackend)
	return c.postJSON(ctx, "/api/v1/load", req, c.load)
}

// Unload unloads one model, or every loaded model when id is empty.
func (c *Client) Unload(ctx context.Context, modelID string) error {
	return c.postJSON(ctx, "/api/v1/unload", types.UnloadRequest{ModelName: modelID}, c.light)
}

// Delete removes a model's files from the upstream host. The upstream server
// unloads it first if it is running.
func (c *Client) Delete(ctx context.Context, modelID string) error {
	return c.postJSON(ctx, "/api/v1/delete", types.DeleteRequest{ModelName: modelID}, c.light)
}
