package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quizroom/quizroom/internal/attempt"
	"github.com/quizroom/quizroom/internal/roster"
)

// RosterHandlers covers the user and group administration surface.
type RosterHandlers struct {
	Store *roster.Store
}

// POST /users/bulk  { "users": [ {...}, ... ] }
func (h *RosterHandlers) BulkUpsert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Users []roster.UpsertRow `json:"users"`
	}
	if !decode(w, r, &req) {
		return
	}
	if len(req.Users) == 0 {
		writeErr(w, fmt.Errorf("%w: users is required", attempt.ErrValidation))
		return
	}
	inserted, updated, err := h.Store.BulkUpsert(r.Context(), req.Users)
	if err != nil {
		writeErr(w, fmt.Errorf("%w: %v", attempt.ErrValidation, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"inserted": inserted, "updated": updated})
}

// GET /users?role=
func (h *RosterHandlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListUsers(r.Context(), r.URL.Query().Get("role"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

// POST /groups  { "name": "..." }
func (h *RosterHandlers) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeErr(w, fmt.Errorf("%w: name is required", attempt.ErrValidation))
		return
	}
	g, err := h.Store.CreateGroup(r.Context(), req.Name, actorFrom(r).ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

// POST /groups/{groupID}/members  { "user_id": "..." }
func (h *RosterHandlers) AddMember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	groupID := chi.URLParam(r, "groupID")
	if err := h.requireGroupOwner(r, groupID); err != nil {
		writeErr(w, err)
		return
	}
	if _, ok, err := h.Store.GetUser(r.Context(), req.UserID); err != nil {
		writeErr(w, err)
		return
	} else if !ok {
		writeErr(w, fmt.Errorf("%w: user", attempt.ErrNotFound))
		return
	}
	if err := h.Store.AddMember(r.Context(), groupID, req.UserID); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "added"})
}

// DELETE /groups/{groupID}/members/{userID}
func (h *RosterHandlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	if err := h.requireGroupOwner(r, groupID); err != nil {
		writeErr(w, err)
		return
	}
	if err := h.Store.RemoveMember(r.Context(), groupID, chi.URLParam(r, "userID")); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// GET /groups/{groupID}/members
func (h *RosterHandlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	if err := h.requireGroupOwner(r, groupID); err != nil {
		writeErr(w, err)
		return
	}
	members, err := h.Store.ListMembers(r.Context(), groupID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": members})
}

func (h *RosterHandlers) requireGroupOwner(r *http.Request, groupID string) error {
	g, ok, err := h.Store.GetGroup(r.Context(), groupID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: group", attempt.ErrNotFound)
	}
	actor := actorFrom(r)
	if g.TeacherID != actor.ID && !actor.Privileged() {
		return fmt.Errorf("%w: group belongs to another teacher", attempt.ErrForbidden)
	}
	return nil
}
