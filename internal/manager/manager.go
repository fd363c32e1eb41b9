package manager

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"lemonman/internal/config"
	"lemonman/internal/store"
	"lemonman/pkg/types"
)

// Gateway is the upstream client surface the manager needs.
type Gateway interface {
	ListModels(ctx context.Context) ([]types.Model, error)
	Health(ctx context.Context) (types.Health, error)
	Stats(ctx context.Context) types.Stats
	Load(ctx context.Context, req types.LoadRequest) error
	Unload(ctx context.Context, modelID string) error
	Delete(ctx context.Context, modelID string) error
	Pull(ctx context.Context, req types.PullRequest) io.ReadCloser
}

// Manager ties the store and gateway together for the HTTP layer.
type Manager struct {
	store   *store.Store
	gateway Gateway
	cfg     *config.Config
	log     zerolog.Logger
}

// New constructs a Manager.
func New(st *store.Store, gw Gateway, cfg *config.Config, log zerolog.Logger) *Manager {
	return &Manager{store: st, gateway: gw, cfg: cfg, log: log}
}

// isLlamaCPP reports whether a model runs on a llama.cpp recipe and so takes
// ctx/args/backend load parameters.
func isLlamaCPP(id, recipe string) bool {
	id, recipe = strings.ToLower(id), strings.ToLower(recipe)
	return strings.Contains(recipe, "llamacpp") || strings.Contains(id, "gguf") || strings.Contains(recipe, "gguf")
}

// Overview fetches upstream state and joins it with local defaults and
// disabled flags into the page model. Models and health are required; a
// stats failure only leaves the stats section absent.
func (m *Manager) Overview(ctx context.Context) (types.Overview, error) {
	models, err := m.gateway.ListModels(ctx)
	if err != nil {
		return types.Overview{}, fmt.Errorf("list models: %w", err)
	}
	health, err := m.gateway.Health(ctx)
	if err != nil {
		return types.Overview{}, fmt.Errorf("health: %w", err)
	}
	stats := m.gateway.Stats(ctx)

	loaded := health.LoadedIDs()
	disabled := m.store.Disabled()
	opts := m.store.AllOptions()

	rows := make([]types.ModelRow, 0, len(models))
	for _, mdl := range models {
		def := opts[mdl.ID]
		rows = append(rows, types.ModelRow{
			ID:             mdl.ID,
			Recipe:         mdl.Recipe,
			Downloaded:     mdl.Downloaded,
			Loaded:         loaded[mdl.ID],
			Disabled:       disabled[mdl.ID],
			DefaultCtxSize: def.CtxSize,
			DefaultArgs:    def.LlamaCPPArgs,
			DefaultBackend: def.LlamaCPPBackend,
			LlamaCPP:       isLlamaCPP(mdl.ID, mdl.Recipe),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })

	loadedModel := health.ModelLoaded
	if loadedModel == "" {
		loadedModel = "None"
	}
	return types.Overview{
		Rows:        rows,
		LoadedModel: loadedModel,
		Stats:       stats,
		RecipeFile:  m.store.RecipePath(),
		PullTimeout: m.cfg.PullTimeout().String(),
	}, nil
}

// LoadWithDefaults performs the "Load (Default)" action: ctx_size and args
// always come from the stored options, while a non-empty user-typed backend
// overrides the stored one. The asymmetry is intentional; the backend input
// sits directly on the model row and is meant as a quick switch.
func (m *Manager) LoadWithDefaults(ctx context.Context, modelID, backendOverride string) error {
	opts := m.store.GetOptions(modelID)
	req := effectiveLoadParams(modelID, opts, backendOverride)
	m.log.Info().Str("model", modelID).Int("ctx_size", req.CtxSize).
		Str("backend", req.LlamaCPPBackend).Msg("load with defaults")
	return m.gateway.Load(ctx, req)
}

// LoadCustom performs the "Load Custom" action: all fields verbatim from the
// request, no merge with storage.
func (m *Manager) LoadCustom(ctx context.Context, req types.LoadRequest) error {
	m.log.Info().Str("model", req.ModelName).Int("ctx_size", req.CtxSize).Msg("load custom")
	return m.gateway.Load(ctx, req)
}

// SaveDefaults persists a partial update of a model's stored options.
func (m *Manager) SaveDefaults(modelID string, patch store.OptionsPatch) error {
	return m.store.SetOptions(modelID, patch)
}

// SetDisabled hides or reveals a model on the panel.
func (m *Manager) SetDisabled(modelID string, disabled bool) error {
	return m.store.SetDisabled(modelID, disabled)
}

// Unload unloads one model.
func (m *Manager) Unload(ctx context.Context, modelID string) error {
	return m.gateway.Unload(ctx, modelID)
}

// UnloadAll unloads every loaded model.
func (m *Manager) UnloadAll(ctx context.Context) error {
	return m.gateway.Unload(ctx, "")
}

// Delete removes a model from the upstream host.
func (m *Manager) Delete(ctx context.Context, modelID string) error {
	return m.gateway.Delete(ctx, modelID)
}

// Pull starts a streamed download relay.
func (m *Manager) Pull(ctx context.Context, req types.PullRequest) io.ReadCloser {
	m.log.Info().Str("model", req.ModelName).Str("checkpoint", req.Checkpoint).Msg("pull start")
	return m.gateway.Pull(ctx, req)
}
