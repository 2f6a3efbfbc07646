package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quizroom/quizroom/internal/attempt"
	"github.com/quizroom/quizroom/internal/quiz"
)

// QuizHandlers is the catalog surface: authoring for teachers, stripped
// reads for students.
type QuizHandlers struct {
	Catalog quiz.Catalog
	Roster  attempt.RosterView
	Now     func() time.Time
}

type quizPayload struct {
	quiz.Quiz
	Questions []quiz.Question `json:"questions"`
}

// POST /quizzes — full-definition upsert.
func (h *QuizHandlers) Put(w http.ResponseWriter, r *http.Request) {
	var req quizPayload
	if !decode(w, r, &req) {
		return
	}
	actor := actorFrom(r)
	if req.Title == "" || req.GroupID == "" {
		writeErr(w, fmt.Errorf("%w: title and group_id are required", attempt.ErrValidation))
		return
	}
	if req.ID != "" {
		existing, ok, err := h.Catalog.GetQuiz(r.Context(), req.ID)
		if err != nil {
			writeErr(w, err)
			return
		}
		if ok && existing.TeacherID != actor.ID && !actor.Privileged() {
			writeErr(w, fmt.Errorf("%w: quiz belongs to another teacher", attempt.ErrForbidden))
			return
		}
	}
	req.TeacherID = actor.ID
	z, err := h.Catalog.PutQuiz(r.Context(), req.Quiz, req.Questions)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, z)
}

// GET /quizzes?group_id= — teachers see their own, students the active
// quizzes of a group they belong to.
func (h *QuizHandlers) List(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	opts := quiz.ListOpts{GroupID: r.URL.Query().Get("group_id")}
	switch actor.Role {
	case "teacher":
		opts.TeacherID = actor.ID
	case "admin":
	default:
		if opts.GroupID == "" {
			writeErr(w, fmt.Errorf("%w: group_id is required", attempt.ErrValidation))
			return
		}
		member, err := h.Roster.IsMember(r.Context(), opts.GroupID, actor.ID)
		if err != nil {
			writeErr(w, err)
			return
		}
		if !member {
			writeErr(w, fmt.Errorf("%w: not a member of this group", attempt.ErrForbidden))
			return
		}
		opts.ActiveOnly = true
	}
	quizzes, err := h.Catalog.ListQuizzes(r.Context(), opts)
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make([]map[string]any, 0, len(quizzes))
	for _, z := range quizzes {
		out = append(out, h.quizView(z))
	}
	writeJSON(w, http.StatusOK, map[string]any{"quizzes": out})
}

// GET /quizzes/{quizID}
func (h *QuizHandlers) Get(w http.ResponseWriter, r *http.Request) {
	z, err := h.loadForActor(r, chi.URLParam(r, "quizID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.quizView(z))
}

// GET /quizzes/{quizID}/questions — grading keys are stripped for
// students.
func (h *QuizHandlers) Questions(w http.ResponseWriter, r *http.Request) {
	z, err := h.loadForActor(r, chi.URLParam(r, "quizID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	questions, err := h.Catalog.ListQuestions(r.Context(), z.ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	actor := actorFrom(r)
	if z.TeacherID != actor.ID && !actor.Privileged() {
		questions = quiz.StripAnswers(questions)
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": questions})
}

// DELETE /quizzes/{quizID}
func (h *QuizHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	z, ok, err := h.Catalog.GetQuiz(r.Context(), chi.URLParam(r, "quizID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if !ok {
		writeErr(w, fmt.Errorf("%w: quiz", attempt.ErrNotFound))
		return
	}
	if z.TeacherID != actor.ID && !actor.Privileged() {
		writeErr(w, fmt.Errorf("%w: quiz belongs to another teacher", attempt.ErrForbidden))
		return
	}
	if err := h.Catalog.DeleteQuiz(r.Context(), z.ID); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// loadForActor fetches the quiz and applies the student visibility
// rules: active quizzes of the student's group only.
func (h *QuizHandlers) loadForActor(r *http.Request, quizID string) (quiz.Quiz, error) {
	z, ok, err := h.Catalog.GetQuiz(r.Context(), quizID)
	if err != nil {
		return quiz.Quiz{}, err
	}
	if !ok {
		return quiz.Quiz{}, fmt.Errorf("%w: quiz", attempt.ErrNotFound)
	}
	actor := actorFrom(r)
	if z.TeacherID == actor.ID || actor.Privileged() {
		return z, nil
	}
	member, err := h.Roster.IsMember(r.Context(), z.GroupID, actor.ID)
	if err != nil {
		return quiz.Quiz{}, err
	}
	if !member {
		return quiz.Quiz{}, fmt.Errorf("%w: not a member of the quiz group", attempt.ErrForbidden)
	}
	if !z.IsActive {
		return quiz.Quiz{}, fmt.Errorf("%w: quiz", attempt.ErrNotFound)
	}
	return z, nil
}

func (h *QuizHandlers) quizView(z quiz.Quiz) map[string]any {
	return map[string]any{
		"id":                      z.ID,
		"title":                   z.Title,
		"description":             z.Description,
		"group_id":                z.GroupID,
		"teacher_id":              z.TeacherID,
		"timer_mode":              z.TimerMode,
		"time_limit_sec":          z.TimeLimitSec,
		"question_time_limit_sec": z.QuestionTimeLimitSec,
		"available_until":         z.AvailableUntil,
		"manual_close":            z.ManualClose,
		"anti_cheating_mode":      z.AntiCheatingMode,
		"allow_show_answers":      z.AllowShowAnswers,
		"show_results":            z.ShowResults,
		"is_active":               z.IsActive,
		"is_expired":              z.IsExpired(h.Now()),
		"created_at":              z.CreatedAt,
	}
}
