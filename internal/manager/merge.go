package manager

import (
	"strings"

	"lemonman/internal/store"
	"lemonman/pkg/types"
)

// effectiveLoadParams resolves the parameters sent upstream for a
// load-with-defaults action. Precedence for the backend: explicit non-empty
// override, then stored default, then absent. ctx_size and args come from
// the stored options only.
func effectiveLoadParams(modelID string, opts store.Options, backendOverride string) types.LoadRequest {
	backend := strings.TrimSpace(backendOverride)
	if backend == "" {
		backend = opts.LlamaCPPBackend
	}
	return types.LoadRequest{
		ModelName:       modelID,
		CtxSize:         opts.CtxSize,
		LlamaCPPArgs:    opts.LlamaCPPArgs,
		LlamaCPPBackend: backend,
	}
}
