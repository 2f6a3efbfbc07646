package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quizroom/quizroom/internal/attempt"
)

// AttemptHandlers exposes the attempt engine over HTTP. Role gating
// happens in the router; owner scoping happens in the service.
type AttemptHandlers struct {
	Svc *attempt.Service
}

// POST /attempts/start  { "quiz_id": "..." }
func (h *AttemptHandlers) Start(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuizID string `json:"quiz_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := h.Svc.Start(r.Context(), req.QuizID, actorFrom(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	status := http.StatusCreated
	if res.Resumed {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

// POST /attempts/answer  { "question_id": ..., "selected_options": [...], "text_answer": ... }
func (h *AttemptHandlers) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req attempt.Submission
	if !decode(w, r, &req) {
		return
	}
	res, err := h.Svc.SubmitAnswer(r.Context(), actorFrom(r), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /attempts/{attemptID}/batch
func (h *AttemptHandlers) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Answers  []attempt.Submission `json:"answers"`
		Complete bool                 `json:"complete"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := h.Svc.SubmitBatch(r.Context(), actorFrom(r), chi.URLParam(r, "attemptID"), req.Answers, req.Complete)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /attempts/complete  { "attempt_id": "..." }
func (h *AttemptHandlers) Complete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AttemptID string `json:"attempt_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := h.Svc.Complete(r.Context(), actorFrom(r), req.AttemptID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /attempts/current?quiz_id=
func (h *AttemptHandlers) Current(w http.ResponseWriter, r *http.Request) {
	res, err := h.Svc.CurrentAttempt(r.Context(), actorFrom(r), r.URL.Query().Get("quiz_id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /attempts/my-attempts?quiz_id=
func (h *AttemptHandlers) MyAttempts(w http.ResponseWriter, r *http.Request) {
	res, err := h.Svc.MyAttempts(r.Context(), actorFrom(r), r.URL.Query().Get("quiz_id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempts": res})
}

// GET /attempts/results/{attemptID}
func (h *AttemptHandlers) Results(w http.ResponseWriter, r *http.Request) {
	res, err := h.Svc.Results(r.Context(), actorFrom(r), chi.URLParam(r, "attemptID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /attempts/quiz/{quizID}/results
func (h *AttemptHandlers) QuizResults(w http.ResponseWriter, r *http.Request) {
	res, err := h.Svc.QuizResults(r.Context(), actorFrom(r), chi.URLParam(r, "quizID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": res})
}

// POST /attempts/{attemptID}/events  { "event_type": ..., "details": ... }
func (h *AttemptHandlers) RecordEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventType string `json:"event_type"`
		Details   string `json:"details"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.Svc.RecordEvent(r.Context(), actorFrom(r), chi.URLParam(r, "attemptID"), req.EventType, req.Details); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

// POST /attempts/{attemptID}/grade  { "question_id": ..., "is_correct": ... }
func (h *AttemptHandlers) Grade(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuestionID string `json:"question_id"`
		IsCorrect  bool   `json:"is_correct"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := h.Svc.GradeAnswer(r.Context(), actorFrom(r), chi.URLParam(r, "attemptID"), req.QuestionID, req.IsCorrect)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /quizzes/{quizID}/anti-cheating-log
func (h *AttemptHandlers) AntiCheatLog(w http.ResponseWriter, r *http.Request) {
	res, err := h.Svc.AntiCheatLog(r.Context(), actorFrom(r), chi.URLParam(r, "quizID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /quizzes/{quizID}/student-statuses
func (h *AttemptHandlers) StudentStatuses(w http.ResponseWriter, r *http.Request) {
	res, err := h.Svc.StudentStatuses(r.Context(), actorFrom(r), chi.URLParam(r, "quizID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"students": res})
}

// GET /quizzes/{quizID}/student-detail/{studentID}
func (h *AttemptHandlers) StudentDetail(w http.ResponseWriter, r *http.Request) {
	res, err := h.Svc.StudentDetail(r.Context(), actorFrom(r), chi.URLParam(r, "quizID"), chi.URLParam(r, "studentID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /quizzes/{quizID}/reissue  { "student_ids": [...], "available_until": unix? }
func (h *AttemptHandlers) Reissue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StudentIDs     []string `json:"student_ids"`
		AvailableUntil *int64   `json:"available_until"`
	}
	if !decode(w, r, &req) {
		return
	}
	var until *time.Time
	if req.AvailableUntil != nil {
		t := time.Unix(*req.AvailableUntil, 0).UTC()
		until = &t
	}
	n, err := h.Svc.Reissue(r.Context(), actorFrom(r), chi.URLParam(r, "quizID"), req.StudentIDs, until)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reissued": n})
}

// POST /quizzes/{quizID}/close
func (h *AttemptHandlers) CloseEarly(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.CloseEarly(r.Context(), actorFrom(r), chi.URLParam(r, "quizID")); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}
