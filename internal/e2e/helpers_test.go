package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"lemonman/internal/config"
	"lemonman/internal/httpapi"
	"lemonman/internal/manager"
	"lemonman/internal/store"
	"lemonman/internal/upstream"
	"lemonman/pkg/types"
)

// fakeLemonade imitates the inference server's REST surface so the whole
// panel stack can be exercised over real HTTP.
type fakeLemonade struct {
	mu        sync.Mutex
	models    []types.Model
	loaded    string
	statsBody string
	statsFail bool

	loadBodies   []map[string]any
	unloadBodies []map[string]any
	deleteBodies []map[string]any
	pullEvents   []string
}

func (f *fakeLemonade) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/models", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewEncoder(w).Encode(types.ModelsResponse{Data: f.models})
	})
	mux.HandleFunc("GET /api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		h := types.Health{ModelLoaded: f.loaded}
		if f.loaded != "" {
			h.AllModelsLoaded = []types.LoadedModel{{ModelName: f.loaded}}
		}
		json.NewEncoder(w).Encode(h)
	})
	mux.HandleFunc("GET /api/v1/stats", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.statsFail {
			http.Error(w, "no stats yet", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, f.statsBody)
	})
	mux.HandleFunc("POST /api/v1/load", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(r)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.loadBodies = append(f.loadBodies, body)
		if id, ok := body["model_name"].(string); ok {
			f.loaded = id
		}
	})
	mux.HandleFunc("POST /api/v1/unload", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(r)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.unloadBodies = append(f.unloadBodies, body)
		f.loaded = ""
	})
	mux.HandleFunc("POST /api/v1/delete", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(r)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.deleteBodies = append(f.deleteBodies, body)
	})
	mux.HandleFunc("POST /api/v1/pull", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		events := append([]string(nil), f.pullEvents...)
		f.mu.Unlock()
		w.Header().Set("Content-Type", "text/event-stream")
		fl, _ := w.(http.Flusher)
		for _, ev := range events {
			io.WriteString(w, ev)
			if fl != nil {
				fl.Flush()
			}
		}
	})
	return mux
}

func decodeBody(r *http.Request) map[string]any {
	var m map[string]any
	_ = json.NewDecoder(r.Body).Decode(&m)
	return m
}

// newPanel stands up the fake upstream plus the real store, client, manager
// and HTTP server, and returns the panel's base URL.
func newPanel(t *testing.T, fake *fakeLemonade) (*httptest.Server, *store.Store) {
	t.Helper()
	up := httptest.NewServer(fake.handler())
	t.Cleanup(up.Close)

	dir := t.TempDir()
	cfg := &config.Config{
		BaseURL:         up.URL,
		RecipeFile:      filepath.Join(dir, "recipe_options.json"),
		PrefsFile:       filepath.Join(dir, "manager_prefs.json"),
		TimeoutLightSec: 5,
		TimeoutLoadSec:  5,
		TimeoutPullSec:  5,
	}
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatalf("defaults: %v", err)
	}

	log := zerolog.Nop()
	st := store.New(cfg.RecipeFile, cfg.PrefsFile, log)
	gw := upstream.New(cfg, log)
	mgr := manager.New(st, gw, cfg, log)
	srv := httptest.NewServer(httpapi.NewServer(mgr, cfg, log, context.Background()).Routes())
	t.Cleanup(srv.Close)
	return srv, st
}

// newDeadUpstreamPanel wires the panel against an address nothing listens on.
func newDeadUpstreamPanel(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		BaseURL:         "http://127.0.0.1:1",
		RecipeFile:      filepath.Join(dir, "recipe_options.json"),
		PrefsFile:       filepath.Join(dir, "manager_prefs.json"),
		TimeoutLightSec: 1,
		TimeoutLoadSec:  1,
		TimeoutPullSec:  1,
	}
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatalf("defaults: %v", err)
	}
	log := zerolog.Nop()
	st := store.New(cfg.RecipeFile, cfg.PrefsFile, log)
	mgr := manager.New(st, upstream.New(cfg, log), cfg, log)
	srv := httptest.NewServer(httpapi.NewServer(mgr, cfg, log, context.Background()).Routes())
	t.Cleanup(srv.Close)
	return srv
}

// noRedirectClient lets tests observe the 303 responses form posts produce.
var noRedirectClient = &http.Client{
	CheckRedirect: func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	},
}

func httpGet(t *testing.T, rawURL string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(rawURL)
	if err != nil {
		t.Fatalf("get %s: %v", rawURL, err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, string(body)
}

func postForm(t *testing.T, rawURL string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := noRedirectClient.Post(rawURL, "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("post %s: %v", rawURL, err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, string(body)
}
