// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/okian/puzzlerank/internal/domain/window"
)

// WindowsHandler handles window administration requests.
type WindowsHandler struct {
	deps Dependencies
}

// NewWindowsHandler creates a new windows handler.
func NewWindowsHandler(deps Dependencies) *WindowsHandler {
	return &WindowsHandler{deps: deps}
}

// windowRequest mirrors the wire schema for POST /windows.
type windowRequest struct {
	ID       string `json:"id"`
	StartsAt string `json:"starts_at"`
	EndsAt   string `json:"ends_at"`
}

func (e windowRequest) validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("missing id")
	}
	if e.StartsAt != "" {
		if _, err := time.Parse(time.RFC3339, e.StartsAt); err != nil {
			return errors.New("invalid starts_at; must be RFC3339")
		}
	}
	if e.EndsAt != "" {
		if _, err := time.Parse(time.RFC3339, e.EndsAt); err != nil {
			return errors.New("invalid ends_at; must be RFC3339")
		}
	}
	return nil
}

// HandleWindows handles GET /windows and POST /windows requests.
func (h *WindowsHandler) HandleWindows(w http.ResponseWriter, r *http.Request) {
	const op = "api.windows"
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.deps.Windows(r.Context()))
	case http.MethodPost:
		var req windowRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		if err := req.validate(); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}

		startsAt := time.Now()
		if req.StartsAt != "" {
			startsAt, _ = time.Parse(time.RFC3339, req.StartsAt)
		}
		// A window without ends_at stays open until closed explicitly.
		var endsAt time.Time
		if req.EndsAt != "" {
			endsAt, _ = time.Parse(time.RFC3339, req.EndsAt)
		}

		if err := h.deps.OpenWindow(r.Context(), req.ID, startsAt, endsAt); err != nil {
			if errors.Is(err, window.ErrWindowExists) {
				writeError(w, http.StatusConflict, "window_exists", err)
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID, "status": "open"})
	default:
		http.NotFound(w, r)
	}
}

// HandleCloseWindow handles POST /windows/{id}/close requests.
func (h *WindowsHandler) HandleCloseWindow(w http.ResponseWriter, r *http.Request) {
	const op = "api.close_window"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/windows/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "close" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	if err := h.deps.CloseWindow(r.Context(), parts[0]); err != nil {
		switch {
		case errors.Is(err, window.ErrUnknownWindow):
			writeError(w, http.StatusNotFound, "unknown_window", err)
		case errors.Is(err, window.ErrWindowClosed):
			writeError(w, http.StatusConflict, "window_closed", err)
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": parts[0], "status": "closed"})
}
