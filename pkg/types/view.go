package types

// ModelRow is one table row of the panel page: the upstream snapshot joined
// with local state (disabled flag, stored defaults).
type ModelRow struct {
	ID         string
	Recipe     string
	Downloaded bool
	Loaded     bool
	Disabled   bool
	// Stored per-model defaults; zero values mean "none saved".
	DefaultCtxSize int
	DefaultArgs    string
	DefaultBackend string
	// True when the recipe or id marks a llama.cpp/GGUF model, which is the
	// only kind that takes a backend override.
	LlamaCPP bool
}

// Overview is the full page model rendered by GET /.
type Overview struct {
	Rows        []ModelRow
	LoadedModel string
	Stats       Stats
	RecipeFile  string
	PullTimeout string
}
