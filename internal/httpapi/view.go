package httpapi

import (
	"bytes"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"

	"lemonman/pkg/types"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// indexPage is the data handed to the index template.
type indexPage struct {
	types.Overview
	StatsText string
}

// errorPage is the data handed to the connection-error template.
type errorPage struct {
	BaseURL string
	Message string
}

// statsText pretty-prints the opaque stats payload for display.
func statsText(s types.Stats) string {
	if !s.OK() {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, s.Raw, "", "  "); err != nil {
		return string(s.Raw)
	}
	return buf.String()
}

func (s *Server) renderIndex(w http.ResponseWriter, ov types.Overview) {
	page := indexPage{Overview: ov, StatsText: statsText(ov.Stats)}
	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, "index.html", page); err != nil {
		s.log.Error().Err(err).Msg("render index")
		writeJSONError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *Server) renderError(w http.ResponseWriter, status int, data errorPage) {
	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, "error.html", data); err != nil {
		s.log.Error().Err(err).Msg("render error page")
		writeJSONError(w, status, data.Message)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
