package e2e

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"lemonman/pkg/types"
)

func TestPanel_IndexShowsUpstreamState(t *testing.T) {
	fake := &fakeLemonade{
		models: []types.Model{
			{ID: "user.phi-GGUF", Recipe: "llamacpp", Downloaded: true},
			{ID: "user.whisper", Recipe: "oga-hybrid", Downloaded: false},
		},
		loaded:    "user.phi-GGUF",
		statsBody: `{"tokens_per_second": 33.1}`,
	}
	srv, _ := newPanel(t, fake)

	resp, body := httpGet(t, srv.URL+"/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("index status=%d body=%s", resp.StatusCode, body)
	}
	for _, want := range []string{"user.phi-GGUF", "user.whisper", "tokens_per_second"} {
		if !strings.Contains(body, want) {
			t.Fatalf("index missing %q", want)
		}
	}
}

func TestPanel_IndexWithoutStats(t *testing.T) {
	fake := &fakeLemonade{
		models:    []types.Model{{ID: "m", Downloaded: true}},
		statsFail: true,
	}
	srv, _ := newPanel(t, fake)
	resp, body := httpGet(t, srv.URL+"/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("index status=%d", resp.StatusCode)
	}
	if strings.Contains(body, "Last Request Stats") {
		t.Fatalf("stats section should be hidden when upstream has none")
	}
}

func TestPanel_SaveDefaultsThenLoadMergesOptions(t *testing.T) {
	fake := &fakeLemonade{
		models: []types.Model{{ID: "user.phi-GGUF", Recipe: "llamacpp", Downloaded: true}},
	}
	srv, _ := newPanel(t, fake)

	resp, body := postForm(t, srv.URL+"/defaults/set", url.Values{
		"model_name":       {"user.phi-GGUF"},
		"ctx_size":         {"4096"},
		"llamacpp_args":    {"-np 4"},
		"llamacpp_backend": {"vulkan"},
	})
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("save defaults status=%d body=%s", resp.StatusCode, body)
	}

	// Load with a per-request backend override; ctx and args come from the
	// stored defaults, backend from the form.
	resp, body = postForm(t, srv.URL+"/defaults/load", url.Values{
		"model_name":       {"user.phi-GGUF"},
		"llamacpp_backend": {"cpu"},
	})
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("load status=%d body=%s", resp.StatusCode, body)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.loadBodies) != 1 {
		t.Fatalf("load calls: %d", len(fake.loadBodies))
	}
	got := fake.loadBodies[0]
	if got["model_name"] != "user.phi-GGUF" || got["ctx_size"] != float64(4096) ||
		got["llamacpp_args"] != "-np 4" || got["llamacpp_backend"] != "cpu" {
		t.Fatalf("load body: %v", got)
	}
}

func TestPanel_LoadCustomIgnoresStoredDefaults(t *testing.T) {
	fake := &fakeLemonade{
		models: []types.Model{{ID: "m", Recipe: "llamacpp", Downloaded: true}},
	}
	srv, _ := newPanel(t, fake)

	if resp, _ := postForm(t, srv.URL+"/defaults/set", url.Values{
		"model_name": {"m"}, "ctx_size": {"9999"},
	}); resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("seed defaults failed")
	}
	resp, body := postForm(t, srv.URL+"/load", url.Values{
		"model_name": {"m"},
		"ctx_size":   {"1024"},
	})
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("load status=%d body=%s", resp.StatusCode, body)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	got := fake.loadBodies[0]
	if got["ctx_size"] != float64(1024) {
		t.Fatalf("custom load should not pick up stored ctx: %v", got)
	}
}

func TestPanel_DisableSurvivesRestart(t *testing.T) {
	fake := &fakeLemonade{
		models: []types.Model{{ID: "m", Downloaded: true}},
	}
	srv, st := newPanel(t, fake)

	resp, _ := postForm(t, srv.URL+"/disable", url.Values{
		"model_name": {"m"},
		"disabled":   {"1"},
	})
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("disable status=%d", resp.StatusCode)
	}
	if !st.IsDisabled("m") {
		t.Fatalf("disable not persisted")
	}
	_, body := httpGet(t, srv.URL+"/")
	if !strings.Contains(body, "Enable") {
		t.Fatalf("disabled model should offer an Enable action")
	}
}

func TestPanel_UnloadAndDelete(t *testing.T) {
	fake := &fakeLemonade{
		models: []types.Model{{ID: "m", Downloaded: true}},
		loaded: "m",
	}
	srv, _ := newPanel(t, fake)

	if resp, _ := postForm(t, srv.URL+"/unload", url.Values{}); resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("unload all failed")
	}
	if resp, _ := postForm(t, srv.URL+"/delete_model", url.Values{"model_name": {"m"}}); resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("delete failed")
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.unloadBodies) != 1 {
		t.Fatalf("unload calls: %d", len(fake.unloadBodies))
	}
	if _, ok := fake.unloadBodies[0]["model_name"]; ok {
		t.Fatalf("unload-all should omit model_name: %v", fake.unloadBodies[0])
	}
	if len(fake.deleteBodies) != 1 || fake.deleteBodies[0]["model_name"] != "m" {
		t.Fatalf("delete bodies: %v", fake.deleteBodies)
	}
}

func TestPanel_PullStreamEndToEnd(t *testing.T) {
	fake := &fakeLemonade{
		pullEvents: []string{
			"data: {\"percent\": 25, \"file_index\": 1}\n\n",
			"data: {\"percent\": 100, \"file_index\": 1}\n\n",
		},
	}
	srv, _ := newPanel(t, fake)

	resp, body := postForm(t, srv.URL+"/pull/stream", url.Values{
		"model_name": {"user.new"},
		"checkpoint": {"org/repo:Q4_K_M"},
		"recipe":     {"llamacpp"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pull status=%d body=%s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content-type: %q", ct)
	}
	if !strings.Contains(body, `"percent": 25`) || !strings.Contains(body, `"percent": 100`) {
		t.Fatalf("relayed stream: %q", body)
	}
}

func TestPanel_UpstreamDownShowsErrorPage(t *testing.T) {
	srv := newDeadUpstreamPanel(t)

	resp, body := httpGet(t, srv.URL+"/")
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("index status=%d", resp.StatusCode)
	}
	if !strings.Contains(body, "Connection Error") || !strings.Contains(body, "Retry") {
		t.Fatalf("error page body: %q", body)
	}

	resp, _ = postForm(t, srv.URL+"/defaults/load", url.Values{"model_name": {"ghost"}})
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("action against dead upstream status=%d", resp.StatusCode)
	}
}
