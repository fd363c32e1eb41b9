package httpapi

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"lemonman/internal/config"
	"lemonman/internal/store"
	"lemonman/internal/upstream"
	"lemonman/pkg/types"
)

// Service defines the methods required by the HTTP panel layer.
type Service interface {
	Overview(ctx context.Context) (types.Overview, error)
	LoadWithDefaults(ctx context.Context, modelID, backendOverride string) error
	LoadCustom(ctx context.Context, req types.LoadRequest) error
	SaveDefaults(modelID string, patch store.OptionsPatch) error
	SetDisabled(modelID string, disabled bool) error
	Unload(ctx context.Context, modelID string) error
	UnloadAll(ctx context.Context) error
	Delete(ctx context.Context, modelID string) error
	Pull(ctx context.Context, req types.PullRequest) io.ReadCloser
}

// Server renders the panel pages and translates form posts into service
// calls. All state arrives through the constructor; there are no package
// globals to configure.
type Server struct {
	svc     Service
	cfg     *config.Config
	log     zerolog.Logger
	baseCtx context.Context
}

// NewServer constructs a Server. baseCtx is the process-level context; it is
// joined with each request context so shutdown cancels in-flight upstream
// calls too.
func NewServer(svc Service, cfg *config.Config, log zerolog.Logger, baseCtx context.Context) *Server {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Server{svc: svc, cfg: cfg, log: log, baseCtx: baseCtx}
}

// Routes builds the chi mux for the panel.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	r.Use(s.requestLogger)
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if s.cfg.CORSEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
		}))
	}

	r.Get("/", s.handleIndex)
	r.Get("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/load", s.handleLoadCustom)
	r.Post("/defaults/load", s.handleLoadDefaults)
	r.Post("/defaults/set", s.handleSaveDefaults)
	r.Post("/unload", s.handleUnloadAll)
	r.Post("/unload/model", s.handleUnloadModel)
	r.Post("/delete_model", s.handleDeleteModel)
	r.Post("/disable", s.handleDisable)
	r.Post("/pull/stream", s.handlePullStream)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

// requestLogger emits one structured line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sr := &statusRecorder{ResponseWriter: w, status: 200}
		start := time.Now()
		next.ServeHTTP(sr, r)
		ev := s.log.Info().Str("method", r.Method).Str("path", r.URL.Path).
			Int("status", sr.status).Dur("dur", time.Since(start))
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			ev = ev.Str("request_id", rid)
		}
		ev.Msg("request")
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := joinContexts(s.baseCtx, r.Context())
	defer cancel()
	ov, err := s.svc.Overview(ctx)
	if err != nil {
		s.renderUpstreamError(w, r, err)
		return
	}
	s.renderIndex(w, ov)
}

// renderUpstreamError serves the full-page connection-error view with a
// retry link. Any failure to fetch models/health lands here; the operator
// retries manually.
func (s *Server) renderUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	kind := "rejected"
	status := http.StatusBadGateway
	if upstream.IsUnavailable(err) {
		kind = "unavailable"
	}
	countUpstreamError(kind)
	s.log.Error().Err(err).Str("path", r.URL.Path).Msg("upstream error")
	s.renderError(w, status, errorPage{
		BaseURL: s.cfg.BaseURL,
		Message: err.Error(),
	})
}

// action runs one mutating form handler: on success redirect back to the
// panel, on failure surface the error page for this request only.
func (s *Server) action(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context) error) {
	ctx, cancel := joinContexts(s.baseCtx, r.Context())
	defer cancel()
	if err := fn(ctx); err != nil {
		s.renderUpstreamError(w, r, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLoadCustom(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	modelID := strings.TrimSpace(r.PostFormValue("model_name"))
	if modelID == "" {
		writeJSONError(w, http.StatusBadRequest, "model_name is required")
		return
	}
	ctxSize, err := parseCtxSize(r.PostFormValue("ctx_size"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "ctx_size must be an integer")
		return
	}
	req := types.LoadRequest{
		ModelName:       modelID,
		CtxSize:         ctxSize,
		LlamaCPPArgs:    r.PostFormValue("llamacpp_args"),
		LlamaCPPBackend: r.PostFormValue("llamacpp_backend"),
	}
	s.action(w, r, func(ctx context.Context) error { return s.svc.LoadCustom(ctx, req) })
}

func (s *Server) handleLoadDefaults(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	modelID := strings.TrimSpace(r.PostFormValue("model_name"))
	if modelID == "" {
		writeJSONError(w, http.StatusBadRequest, "model_name is required")
		return
	}
	backend := r.PostFormValue("llamacpp_backend")
	s.action(w, r, func(ctx context.Context) error {
		return s.svc.LoadWithDefaults(ctx, modelID, backend)
	})
}

func (s *Server) handleSaveDefaults(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	modelID := strings.TrimSpace(r.PostFormValue("model_name"))
	if modelID == "" {
		writeJSONError(w, http.StatusBadRequest, "model_name is required")
		return
	}
	patch, err := optionsPatchFromForm(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.svc.SaveDefaults(modelID, patch); err != nil {
		// Storage write failures must reach the operator, not vanish.
		s.log.Error().Err(err).Str("model", modelID).Msg("save defaults failed")
		s.renderError(w, http.StatusInternalServerError, errorPage{
			BaseURL: s.cfg.BaseURL,
			Message: "saving defaults failed: " + err.Error(),
		})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleUnloadAll(w http.ResponseWriter, r *http.Request) {
	s.action(w, r, func(ctx context.Context) error { return s.svc.UnloadAll(ctx) })
}

func (s *Server) handleUnloadModel(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	modelID := strings.TrimSpace(r.PostFormValue("model_name"))
	if modelID == "" {
		writeJSONError(w, http.StatusBadRequest, "model_name is required")
		return
	}
	s.action(w, r, func(ctx context.Context) error { return s.svc.Unload(ctx, modelID) })
}

func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	modelID := strings.TrimSpace(r.PostFormValue("model_name"))
	if modelID == "" {
		writeJSONError(w, http.StatusBadRequest, "model_name is required")
		return
	}
	s.action(w, r, func(ctx context.Context) error { return s.svc.Delete(ctx, modelID) })
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	modelID := strings.TrimSpace(r.PostFormValue("model_name"))
	if modelID == "" {
		writeJSONError(w, http.StatusBadRequest, "model_name is required")
		return
	}
	disabled := r.PostFormValue("disabled") == "1"
	if err := s.svc.SetDisabled(modelID, disabled); err != nil {
		s.log.Error().Err(err).Str("model", modelID).Msg("set disabled failed")
		s.renderError(w, http.StatusInternalServerError, errorPage{
			BaseURL: s.cfg.BaseURL,
			Message: "updating preferences failed: " + err.Error(),
		})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handlePullStream relays the upstream pull event stream to the browser
// chunk-by-chunk with a flush after every read. The stream handle is backed
// by the joined context, so a client disconnect aborts the upstream call.
func (s *Server) handlePullStream(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	req := types.PullRequest{
		ModelName:  strings.TrimSpace(r.PostFormValue("model_name")),
		Checkpoint: strings.TrimSpace(r.PostFormValue("checkpoint")),
		Recipe:     strings.TrimSpace(r.PostFormValue("recipe")),
		MMProj:     r.PostFormValue("mmproj"),
	}
	if req.ModelName == "" || req.Checkpoint == "" || req.Recipe == "" {
		writeJSONError(w, http.StatusBadRequest, "model_name, checkpoint and recipe are required")
		return
	}

	ctx, cancel := joinContexts(s.baseCtx, r.Context())
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	stream := s.svc.Pull(ctx, req)
	defer stream.Close()

	var flush func()
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}
	buf := make([]byte, 4096)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				// client went away; closing the stream cancels upstream
				return
			}
			if flush != nil {
				flush()
			}
		}
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				s.log.Warn().Err(err).Str("model", req.ModelName).Msg("pull relay interrupted")
			}
			return
		}
	}
}

// parseCtxSize parses the ctx_size form field. Empty means unset.
func parseCtxSize(v string) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}

// optionsPatchFromForm builds a partial options update from the posted form.
// A field absent from the form stays untouched; a field posted empty clears
// the stored value.
func optionsPatchFromForm(r *http.Request) (store.OptionsPatch, error) {
	var patch store.OptionsPatch
	if vs, ok := r.PostForm["ctx_size"]; ok && len(vs) > 0 {
		n, err := parseCtxSize(vs[0])
		if err != nil {
			return patch, err
		}
		patch.CtxSize = &n
	}
	if vs, ok := r.PostForm["llamacpp_args"]; ok && len(vs) > 0 {
		patch.LlamaCPPArgs = &vs[0]
	}
	if vs, ok := r.PostForm["llamacpp_backend"]; ok && len(vs) > 0 {
		patch.LlamaCPPBackend = &vs[0]
	}
	return patch, nil
}
