package attempt

import (
	"context"
	"time"
)

// Store is the persistence surface for attempts, answers and anti-cheat
// events. Lookups return (zero, false, nil) on absence; the mutating
// calls carry the concurrency guarantees the service relies on:
//
//   - CreateAttempt reports created=false when an open attempt for the
//     same (quiz, student) already exists, without touching it.
//   - InsertAnswer returns ErrAlreadyAnswered on a duplicate question.
//   - AddScore is an atomic read-modify-write on the attempt score.
//   - CompleteAttempt returns ErrAlreadyCompleted when the attempt is
//     already terminal.
type Store interface {
	CreateAttempt(ctx context.Context, a Attempt) (created bool, err error)
	GetAttempt(ctx context.Context, id string) (Attempt, bool, error)
	OpenAttempt(ctx context.Context, quizID, studentID string) (Attempt, bool, error)
	LatestAttempt(ctx context.Context, quizID, studentID string) (Attempt, bool, error)
	ListByStudent(ctx context.Context, quizID, studentID string) ([]Attempt, error)
	ListByQuiz(ctx context.Context, quizID string) ([]Attempt, error)
	ListCompleted(ctx context.Context, quizID string) ([]Attempt, error)
	CompleteAttempt(ctx context.Context, id string, completedAt time.Time, timeSpent int) error
	AddScore(ctx context.Context, attemptID string, delta float64) error
	DeleteStudentAttempts(ctx context.Context, quizID, studentID string) error

	InsertAnswer(ctx context.Context, a Answer) error
	ListAnswers(ctx context.Context, attemptID string) ([]Answer, error)
	GetAnswer(ctx context.Context, attemptID, questionID string) (Answer, bool, error)
	SetAnswerGrade(ctx context.Context, answerID string, correct bool, points float64) error

	AppendEvent(ctx context.Context, e Event) error
	ListEvents(ctx context.Context, quizID string) ([]Event, error)
}
