package handler

import (
	"log/slog"
	"net/http"

	"github.com/pavelanni/docexam/internal/model"
)

type apiKeyRequest struct {
	APIKey        string `json:"apiKey"`
	AdminPassword string `json:"adminPassword"`
}

// handleSetAPIKey stores the LLM credential and loads it into the caller's
// session. An empty key clears it.
func (h *Handler) handleSetAPIKey(w http.ResponseWriter, r *http.Request) {
	var req apiKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}

	ok, err := h.checkAdminPassword(req.AdminPassword)
	if err != nil {
		slog.Error("failed to load admin password", "error", err)
		writeError(w, r, http.StatusInternalServerError, "ErrInternal")
		return
	}
	if !ok {
		slog.Warn("rejected API key change", "session_id", model.SessionIDFromContext(r.Context()))
		writeError(w, r, http.StatusForbidden, "ErrForbidden")
		return
	}

	sess := sessionFrom(r)
	if err := h.svc.SaveAPIKey(sess, req.APIKey); err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}
