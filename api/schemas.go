package api

import (
	"net/http"
	"sort"

	"github.com/garnizeh/cleardeal/internal/submission"
)

type SchemasHandler struct {
	loader *submission.Loader
	active string
}

func NewSchemasHandler(loader *submission.Loader, active string) *SchemasHandler {
	return &SchemasHandler{loader: loader, active: active}
}

type schemasResponse struct {
	Active   string   `json:"active"`
	Versions []string `json:"versions"`
}

func (h *SchemasHandler) response() schemasResponse {
	versions := h.loader.Versions()
	sort.Strings(versions)
	return schemasResponse{Active: h.active, Versions: versions}
}

func (h *SchemasHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.response())
}

// Reload recompiles every stored schema.
func (h *SchemasHandler) Reload(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireRole(w, r, ""); !ok {
		return
	}
	if err := h.loader.Reload(r.Context()); err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.response())
}
