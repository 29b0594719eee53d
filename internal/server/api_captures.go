package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ericbosch/kettle-logbuffer/internal/capture"
)

func (s *Server) handleListCaptures(w http.ResponseWriter, r *http.Request) {
	out := []map[string]any{}
	if s.captures != nil {
		for _, c := range s.captures.List() {
			out = append(out, c.Info())
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateCapture(w http.ResponseWriter, r *http.Request) {
	if s.captures == nil {
		writeAPIError(w, http.StatusNotImplemented, "captures_disabled", "process capture is disabled on this host", "")
		return
	}
	var spec capture.Spec
	if err := jsonDecode(w, r, &spec); err != nil {
		writeAPIError(w, http.StatusBadRequest, "bad_request", "invalid JSON body", err.Error())
		return
	}
	spec.Command = strings.TrimSpace(spec.Command)
	if spec.Command == "" {
		writeAPIError(w, http.StatusBadRequest, "bad_request", "command is required", "")
		return
	}

	c, err := s.captures.Create(r.Context(), spec)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, c.Info())
	case errors.Is(err, capture.ErrInvalidWorkdir):
		writeAPIError(w, http.StatusBadRequest, "invalid_workdir", err.Error(), "workdir must be an existing directory on the host")
	case errors.Is(err, capture.ErrCommandNotFound):
		writeAPIError(w, http.StatusFailedDependency, "command_not_found", err.Error(), "install the command or fix PATH on the host")
	default:
		s.logger.Error("create capture", "error", err)
		writeAPIError(w, http.StatusInternalServerError, "capture_failed", err.Error(), "")
	}
}

func (s *Server) handleTerminateCapture(w http.ResponseWriter, r *http.Request) {
	if s.captures == nil {
		writeAPIError(w, http.StatusNotFound, "not_found", "capture not found", "")
		return
	}
	if err := s.captures.Terminate(r.PathValue("id")); err != nil {
		if errors.Is(err, capture.ErrNotFound) {
			writeAPIError(w, http.StatusNotFound, "not_found", "capture not found", "")
			return
		}
		writeAPIError(w, http.StatusInternalServerError, "internal", err.Error(), "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
