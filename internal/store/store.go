// Package store persists the two panel documents: the upstream server's own
// per-model options file (recipe_options.json) and the panel-local
// preferences file holding the disabled-model list. Both are small JSON
// documents rewritten whole on every change.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"lemonman/internal/common/fsutil"
)

// Options are the stored per-model load defaults, schema-compatible with the
// upstream server's native recipe_options.json. A model has an entry only
// when at least one field is set.
type Options struct {
	CtxSize         int    `json:"ctx_size,omitempty"`
	LlamaCPPArgs    string `json:"llamacpp_args,omitempty"`
	LlamaCPPBackend string `json:"llamacpp_backend,omitempty"`
}

// Empty reports whether no field is set.
func (o Options) Empty() bool {
	return o.CtxSize == 0 && o.LlamaCPPArgs == "" && o.LlamaCPPBackend == ""
}

// OptionsPatch is a partial update. A nil field is left untouched; a non-nil
// field set to its zero value clears that field from the stored entry. This
// keeps "omitted" and "cleared" distinct.
type OptionsPatch struct {
	CtxSize         *int
	LlamaCPPArgs    *string
	LlamaCPPBackend *string
}

type prefsDoc struct {
	Disabled []string `json:"disabled"`
}

// Store serializes read-modify-write cycles on the two documents with an
// in-process mutex and writes them atomically via temp-file-and-rename.
type Store struct {
	recipePath string
	prefsPath  string
	mu         sync.Mutex
	log        zerolog.Logger
}

// New returns a Store over the given document paths. Neither file needs to
// exist yet.
func New(recipePath, prefsPath string, log zerolog.Logger) *Store {
	return &Store{recipePath: recipePath, prefsPath: prefsPath, log: log}
}

// RecipePath returns the path of the options document, for display.
func (s *Store) RecipePath() string { return s.recipePath }

// readOptions loads the options document. A missing or corrupt file reads as
// an empty document; the next successful write heals it.
func (s *Store) readOptions() map[string]Options {
	b, err := os.ReadFile(s.recipePath)
	if err != nil {
		return map[string]Options{}
	}
	var doc map[string]Options
	if err := json.Unmarshal(b, &doc); err != nil {
		s.log.Warn().Err(err).Str("path", s.recipePath).Msg("options document corrupt, treating as empty")
		return map[string]Options{}
	}
	if doc == nil {
		doc = map[string]Options{}
	}
	return doc
}

// writeOptions rewrites the whole options document. The parent directory is
// created on demand; a mkdir failure is not fatal here because the write
// itself will report the underlying problem.
func (s *Store) writeOptions(doc map[string]Options) error {
	if dir := filepath.Dir(s.recipePath); dir != "." && !fsutil.PathExists(dir) {
		_ = os.MkdirAll(dir, 0o755)
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.recipePath, b, 0o644); err != nil {
		return fmt.Errorf("write options: %w", err)
	}
	return nil
}

// GetOptions returns the stored defaults for a model, or the zero Options
// when none are stored. It never fails.
func (s *Store) GetOptions(modelID string) Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readOptions()[modelID]
}

// AllOptions returns the full stored mapping.
func (s *Store) AllOptions() map[string]Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readOptions()
}

// SetOptions applies a partial update to a model's stored defaults and
// rewrites the document. An entry left with zero fields is removed so the
// document stays minimal.
func (s *Store) SetOptions(modelID string, patch OptionsPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.readOptions()
	entry := doc[modelID]

	if patch.CtxSize != nil {
		entry.CtxSize = *patch.CtxSize
		if entry.CtxSize < 0 {
			entry.CtxSize = 0
		}
	}
	if patch.LlamaCPPArgs != nil {
		entry.LlamaCPPArgs = strings.TrimSpace(*patch.LlamaCPPArgs)
	}
	if patch.LlamaCPPBackend != nil {
		entry.LlamaCPPBackend = strings.TrimSpace(*patch.LlamaCPPBackend)
	}

	if entry.Empty() {
		delete(doc, modelID)
	} else {
		doc[modelID] = entry
	}
	return s.writeOptions(doc)
}

// readDisabled loads the prefs document, self-healing like readOptions.
func (s *Store) readDisabled() map[string]bool {
	set := map[string]bool{}
	b, err := os.ReadFile(s.prefsPath)
	if err != nil {
		return set
	}
	var doc prefsDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		s.log.Warn().Err(err).Str("path", s.prefsPath).Msg("prefs document corrupt, treating as empty")
		return set
	}
	for _, id := range doc.Disabled {
		if id != "" {
			set[id] = true
		}
	}
	return set
}

// Disabled returns the set of hidden model ids.
func (s *Store) Disabled() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readDisabled()
}

// IsDisabled reports whether a model is hidden from the panel.
func (s *Store) IsDisabled(modelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readDisabled()[modelID]
}

// SetDisabled adds or removes a model from the hidden set. Membership is
// idempotent; the sorted list document is rewritten either way.
func (s *Store) SetDisabled(modelID string, disabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.readDisabled()
	if disabled {
		set[modelID] = true
	} else {
		delete(set, modelID)
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if dir := filepath.Dir(s.prefsPath); dir != "." && !fsutil.PathExists(dir) {
		_ = os.MkdirAll(dir, 0o755)
	}
	b, err := json.MarshalIndent(prefsDoc{Disabled: ids}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.prefsPath, b, 0o644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	return nil
}
