package attempt

import "time"

// Status is the lifecycle state of a student's pass at a quiz.
// not_opened and expired are derived, never stored.
type Status string

const (
	StatusNotOpened  Status = "not_opened"
	StatusExpired    Status = "expired"
	StatusOpened     Status = "opened"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

type Attempt struct {
	ID             string     `json:"id"`
	QuizID         string     `json:"quiz_id"`
	StudentID      string     `json:"student_id"`
	Score          float64    `json:"score"`
	MaxScore       float64    `json:"max_score"` // frozen at start
	QuestionsOrder []string   `json:"questions_order"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	TimeSpent      int        `json:"time_spent,omitempty"` // seconds, set at completion
}

func (a Attempt) IsCompleted() bool { return a.CompletedAt != nil }

func (a Attempt) Percentage() float64 {
	if a.MaxScore <= 0 {
		return 0
	}
	return a.Score / a.MaxScore * 100
}

type Answer struct {
	ID              string    `json:"id"`
	AttemptID       string    `json:"attempt_id"`
	QuestionID      string    `json:"question_id"`
	SelectedOptions []string  `json:"selected_options"`          // select type
	TextAnswer      string    `json:"text_answer,omitempty"`     // text/number types
	IsCorrect       bool      `json:"is_correct"`
	PointsEarned    float64   `json:"points_earned"`
	TimeSpent       *int      `json:"time_spent,omitempty"` // seconds since previous answer
	ManuallyGraded  bool      `json:"manually_graded"`
	AnsweredAt      time.Time `json:"answered_at"`
}

// Event is one client-reported suspicious occurrence. Append-only.
type Event struct {
	ID        string    `json:"id"`
	AttemptID string    `json:"attempt_id"`
	EventType string    `json:"event_type"` // e.g. tab_switch
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Submission is one incoming answer for a single question.
type Submission struct {
	QuestionID      string   `json:"question_id"`
	SelectedOptions []string `json:"selected_options"`
	TextAnswer      string   `json:"text_answer"`
	TimeSpentSec    *int     `json:"time_spent,omitempty"` // client-reported, batch only
}
