package quiz

import "time"

type TimerMode string

const (
	TimerNone        TimerMode = "none"
	TimerQuizTotal   TimerMode = "quiz_total"
	TimerPerQuestion TimerMode = "per_question"
)

type InputType string

const (
	InputSelect InputType = "select"
	InputText   InputType = "text"
	InputNumber InputType = "number"
)

type Option struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
	Order     int    `json:"order"`
}

type Question struct {
	ID                string    `json:"id"`
	QuizID            string    `json:"quiz_id"`
	InputType         InputType `json:"input_type"`
	Text              string    `json:"text"`
	Order             int       `json:"order"`
	Points            float64   `json:"points"`
	CorrectTextAnswer string    `json:"correct_text_answer,omitempty"` // text/number only
	Options           []Option  `json:"options,omitempty"`             // select only
}

// CorrectOptionIDs returns the ids of options flagged correct.
func (q Question) CorrectOptionIDs() []string {
	out := make([]string, 0, len(q.Options))
	for _, o := range q.Options {
		if o.IsCorrect {
			out = append(out, o.ID)
		}
	}
	return out
}

// HasOption reports whether id belongs to this question.
func (q Question) HasOption(id string) bool {
	for _, o := range q.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}

type Quiz struct {
	ID                   string     `json:"id"`
	Title                string     `json:"title"`
	Description          string     `json:"description,omitempty"`
	GroupID              string     `json:"group_id"`
	TeacherID            string     `json:"teacher_id"`
	TimerMode            TimerMode  `json:"timer_mode"`
	TimeLimitSec         int        `json:"time_limit_sec,omitempty"`
	QuestionTimeLimitSec int        `json:"question_time_limit_sec,omitempty"`
	AvailableUntil       *time.Time `json:"available_until,omitempty"`
	ManualClose          bool       `json:"manual_close"`
	AntiCheatingMode     bool       `json:"anti_cheating_mode"`
	AllowShowAnswers     bool       `json:"allow_show_answers"`
	ShowResults          bool       `json:"show_results"`
	IsActive             bool       `json:"is_active"`
	CreatedAt            time.Time  `json:"created_at"`
}

// IsExpired is computed on read, never persisted. A manually-closed quiz
// has no deadline-based expiry.
func (z Quiz) IsExpired(now time.Time) bool {
	return !z.ManualClose && z.AvailableUntil != nil && z.AvailableUntil.Before(now)
}

// StripAnswers blanks grading keys before serving a question to students.
func StripAnswers(qs []Question) []Question {
	out := make([]Question, len(qs))
	for i, q := range qs {
		q.CorrectTextAnswer = ""
		opts := make([]Option, len(q.Options))
		for j, o := range q.Options {
			o.IsCorrect = false
			opts[j] = o
		}
		q.Options = opts
		out[i] = q
	}
	return out
}
