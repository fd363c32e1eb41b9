package types

import "encoding/json"

// Model is one entry from the upstream GET /api/v1/models listing.
type Model struct {
	// Stable identifier for the model.
	// example: user.Phi-4-mini
	ID string `json:"id" example:"user.Phi-4-mini"`
	// Inference backend/format tag assigned by the upstream server.
	// example: llamacpp
	Recipe string `json:"recipe,omitempty" example:"llamacpp"`
	// Whether the model weights are present on the upstream host.
	// example: true
	Downloaded bool `json:"downloaded" example:"true"`
}

// ModelsResponse wraps the upstream model listing.
type ModelsResponse struct {
	Data []Model `json:"data"`
}

// LoadedModel is one entry of the health response's loaded-model list.
type LoadedModel struct {
	ModelName string `json:"model_name"`
}

// Health is the upstream GET /api/v1/health payload.
type Health struct {
	// Primary loaded model, empty when nothing is loaded.
	// example: user.Phi-4-mini
	ModelLoaded string `json:"model_loaded" example:"user.Phi-4-mini"`
	// Every model currently resident on the upstream server.
	AllModelsLoaded []LoadedModel `json:"all_models_loaded"`
}

// LoadedIDs returns the set of loaded model identifiers.
func (h Health) LoadedIDs() map[string]bool {
	ids := make(map[string]bool, len(h.AllModelsLoaded))
	for _, m := range h.AllModelsLoaded {
		if m.ModelName != "" {
			ids[m.ModelName] = true
		}
	}
	return ids
}

// LoadRequest is the upstream POST /api/v1/load payload. Optional fields are
// omitted from the body entirely when empty.
type LoadRequest struct {
	ModelName string `json:"model_name" example:"user.Phi-4-mini"`
	// Context window size in tokens.
	// example: 4096
	CtxSize int `json:"ctx_size,omitempty" example:"4096"`
	// Extra llama.cpp server arguments.
	// example: -np 4
	LlamaCPPArgs string `json:"llamacpp_args,omitempty" example:"-np 4"`
	// llama.cpp compute backend.
	// example: vulkan
	LlamaCPPBackend string `json:"llamacpp_backend,omitempty" example:"vulkan"`
}

// UnloadRequest is the upstream POST /api/v1/unload payload.
// An empty ModelName unloads every loaded model.
type UnloadRequest struct {
	ModelName string `json:"model_name,omitempty"`
}

// DeleteRequest is the upstream POST /api/v1/delete payload.
type DeleteRequest struct {
	ModelName string `json:"model_name"`
}

// PullRequest is the upstream POST /api/v1/pull payload. Stream is always
// sent as true by the panel so progress events arrive incrementally.
type PullRequest struct {
	ModelName  string `json:"model_name" example:"user.Phi-4-mini"`
	Checkpoint string `json:"checkpoint" example:"unsloth/Phi-4-mini-instruct-GGUF:Q4_K_M"`
	Recipe     string `json:"recipe" example:"llamacpp"`
	MMProj     string `json:"mmproj,omitempty"`
	Stream     bool   `json:"stream"`
}

// Stats is the opaque upstream stats payload. Absent when the stats endpoint
// failed; stats are cosmetic and never block a page render.
type Stats struct {
	Raw json.RawMessage
}

// OK reports whether a stats payload was actually fetched.
func (s Stats) OK() bool { return len(s.Raw) > 0 }

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: upstream rejected: 404 Not Found
	Error string `json:"error" example:"upstream rejected: 404 Not Found"`
	// HTTP status code.
	// example: 502
	Code int `json:"code" example:"502"`
}
