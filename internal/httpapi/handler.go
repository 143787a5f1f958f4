// Package httpapi is the HTTP surface the board UI talks to: export/import,
// sync status, and attachment plumbing.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/example/archboard/internal/attachments"
	"github.com/example/archboard/internal/engine"
	"github.com/example/archboard/internal/identity"
	"github.com/example/archboard/internal/presence"
	"github.com/example/archboard/internal/transfer"
)

const maxImportSize = 8 << 20

// Handler bundles the API routes.
type Handler struct {
	engine      *engine.Engine
	attachments *attachments.Service
	presence    *presence.Service
	ident       identity.Provider
	logger      zerolog.Logger
	mux         *http.ServeMux
}

// NewHandler wires the routes. The attachments and presence services may be
// nil when their backing stores are not configured; their routes then answer
// 503.
func NewHandler(eng *engine.Engine, att *attachments.Service, pres *presence.Service, ident identity.Provider, logger zerolog.Logger) *Handler {
	h := &Handler{engine: eng, attachments: att, presence: pres, ident: ident, logger: logger, mux: http.NewServeMux()}

	h.mux.HandleFunc("GET /board", h.getBoard)
	h.mux.HandleFunc("GET /board/export", h.exportBoard)
	h.mux.HandleFunc("POST /board/import", h.importBoard)
	h.mux.HandleFunc("GET /status", h.getStatus)
	h.mux.HandleFunc("POST /presence/ping", h.presencePing)
	h.mux.HandleFunc("GET /presence", h.presenceRoster)
	h.mux.HandleFunc("POST /attachments", h.uploadAttachment)
	h.mux.HandleFunc("GET /attachments/url", h.resolveAttachment)
	h.mux.HandleFunc("DELETE /attachments", h.deleteAttachment)
	h.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) getBoard(w http.ResponseWriter, r *http.Request) {
	data, err := transfer.Export(h.engine.Document(), h.engine.Connections())
	if err != nil {
		h.logger.Error().Err(err).Msg("board encode failed")
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (h *Handler) exportBoard(w http.ResponseWriter, r *http.Request) {
	data, err := transfer.Export(h.engine.Document(), h.engine.Connections())
	if err != nil {
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="board-export.json"`)
	w.Write(data)
}

func (h *Handler) importBoard(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxImportSize))
	if err != nil {
		http.Error(w, "read body failed", http.StatusBadRequest)
		return
	}

	doc, conns, err := transfer.Import(data)
	if err != nil {
		// Explicit rejection: a malformed file mutates nothing.
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	if err := h.engine.ImportBoard(r.Context(), doc, conns); err != nil {
		if errors.Is(err, engine.ErrSuspended) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		// The local copy was replaced; only the remote write went offline.
		h.logger.Warn().Err(err).Msg("import applied locally; remote write pending")
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": string(h.engine.Status())})
}

func (h *Handler) presencePing(w http.ResponseWriter, r *http.Request) {
	if h.presence == nil {
		http.Error(w, "presence not configured", http.StatusServiceUnavailable)
		return
	}
	ident, ok := h.ident.Current()
	if !ok {
		http.Error(w, "not signed in", http.StatusUnauthorized)
		return
	}
	if err := h.presence.Heartbeat(r.Context(), ident); err != nil {
		h.logger.Warn().Err(err).Msg("presence heartbeat failed")
		http.Error(w, "heartbeat failed", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) presenceRoster(w http.ResponseWriter, r *http.Request) {
	if h.presence == nil {
		http.Error(w, "presence not configured", http.StatusServiceUnavailable)
		return
	}
	roster, err := h.presence.Roster(r.Context())
	if err != nil {
		http.Error(w, "roster unavailable", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(roster)
}

func (h *Handler) uploadAttachment(w http.ResponseWriter, r *http.Request) {
	if h.attachments == nil {
		http.Error(w, "object storage not configured", http.StatusServiceUnavailable)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	handle, err := h.attachments.Upload(r.Context(), header.Filename, header.Header.Get("Content-Type"), file, header.Size)
	if err != nil {
		h.logger.Error().Err(err).Msg("attachment upload failed")
		http.Error(w, "upload failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"handle": handle})
}

func (h *Handler) resolveAttachment(w http.ResponseWriter, r *http.Request) {
	if h.attachments == nil {
		http.Error(w, "object storage not configured", http.StatusServiceUnavailable)
		return
	}

	handle := r.URL.Query().Get("handle")
	if handle == "" {
		http.Error(w, "missing handle", http.StatusBadRequest)
		return
	}

	u, err := h.attachments.Resolve(r.Context(), handle)
	if err != nil {
		http.Error(w, "resolve failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"url": u.String()})
}

func (h *Handler) deleteAttachment(w http.ResponseWriter, r *http.Request) {
	if h.attachments == nil {
		http.Error(w, "object storage not configured", http.StatusServiceUnavailable)
		return
	}

	handle := r.URL.Query().Get("handle")
	if handle == "" {
		http.Error(w, "missing handle", http.StatusBadRequest)
		return
	}

	if err := h.attachments.Delete(r.Context(), handle); err != nil {
		http.Error(w, "delete failed", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
