package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/quizroom/quizroom/internal/attempt"
	"github.com/quizroom/quizroom/internal/rbac"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps the service error taxonomy onto HTTP statuses. The
// reason text of state/validation errors goes to the client; storage
// failures do not.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, attempt.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, attempt.ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, attempt.ErrInvalidState), errors.Is(err, attempt.ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		log.Printf("api: internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad json"})
		return false
	}
	return true
}

func actorFrom(r *http.Request) attempt.Actor {
	return attempt.Actor{
		ID:   rbac.SubjectFromContext(r.Context()),
		Role: rbac.RoleFromContext(r.Context()),
	}
}
