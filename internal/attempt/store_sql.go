package attempt

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

type SQLStore struct{ db *sql.DB }

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

const attemptCols = `id, quiz_id, student_id, score, max_score, questions_order, started_at, completed_at, time_spent`

func scanAttempt(row interface{ Scan(...any) error }) (Attempt, error) {
	var a Attempt
	var orderJSON string
	var startedAt int64
	var completedAt, timeSpent sql.NullInt64
	err := row.Scan(&a.ID, &a.QuizID, &a.StudentID, &a.Score, &a.MaxScore,
		&orderJSON, &startedAt, &completedAt, &timeSpent)
	if err != nil {
		return Attempt{}, err
	}
	if err := json.Unmarshal([]byte(orderJSON), &a.QuestionsOrder); err != nil {
		return Attempt{}, err
	}
	a.StartedAt = time.Unix(startedAt, 0).UTC()
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0).UTC()
		a.CompletedAt = &t
	}
	a.TimeSpent = int(timeSpent.Int64)
	return a, nil
}

// CreateAttempt inserts the row unless an open attempt for the same
// (quiz, student) already exists. The partial unique index makes the
// insert-or-skip race-free; concurrent starts converge on one row.
func (s *SQLStore) CreateAttempt(ctx context.Context, a Attempt) (bool, error) {
	orderJSON, err := json.Marshal(a.QuestionsOrder)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (`+attemptCols+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,NULL,NULL)
		 ON CONFLICT DO NOTHING`,
		a.ID, a.QuizID, a.StudentID, a.Score, a.MaxScore, string(orderJSON), a.StartedAt.Unix())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM attempts WHERE id=$1`, id)
	return oneAttempt(row)
}

func (s *SQLStore) OpenAttempt(ctx context.Context, quizID, studentID string) (Attempt, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+attemptCols+` FROM attempts
		 WHERE quiz_id=$1 AND student_id=$2 AND completed_at IS NULL`, quizID, studentID)
	return oneAttempt(row)
}

func (s *SQLStore) LatestAttempt(ctx context.Context, quizID, studentID string) (Attempt, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+attemptCols+` FROM attempts
		 WHERE quiz_id=$1 AND student_id=$2
		 ORDER BY started_at DESC LIMIT 1`, quizID, studentID)
	return oneAttempt(row)
}

func oneAttempt(row *sql.Row) (Attempt, bool, error) {
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, false, nil
	}
	if err != nil {
		return Attempt{}, false, err
	}
	return a, true, nil
}

func (s *SQLStore) ListByStudent(ctx context.Context, quizID, studentID string) ([]Attempt, error) {
	return s.listAttempts(ctx,
		`SELECT `+attemptCols+` FROM attempts
		 WHERE quiz_id=$1 AND student_id=$2 ORDER BY started_at DESC`, quizID, studentID)
}

func (s *SQLStore) ListByQuiz(ctx context.Context, quizID string) ([]Attempt, error) {
	return s.listAttempts(ctx,
		`SELECT `+attemptCols+` FROM attempts WHERE quiz_id=$1 ORDER BY started_at`, quizID)
}

// ListCompleted returns the leaderboard ordering: best score first,
// earliest finish breaking ties.
func (s *SQLStore) ListCompleted(ctx context.Context, quizID string) ([]Attempt, error) {
	return s.listAttempts(ctx,
		`SELECT `+attemptCols+` FROM attempts
		 WHERE quiz_id=$1 AND completed_at IS NOT NULL
		 ORDER BY score DESC, completed_at ASC`, quizID)
}

func (s *SQLStore) listAttempts(ctx context.Context, query string, args ...any) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CompleteAttempt flips the attempt terminal. The WHERE guard keeps
// concurrent or repeated completions from rewriting completed_at.
func (s *SQLStore) CompleteAttempt(ctx context.Context, id string, completedAt time.Time, timeSpent int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE attempts SET completed_at=$1, time_spent=$2
		 WHERE id=$3 AND completed_at IS NULL`,
		completedAt.Unix(), timeSpent, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyCompleted
	}
	return nil
}

// AddScore increments the stored score in the database so concurrent
// submissions never lose an update.
func (s *SQLStore) AddScore(ctx context.Context, attemptID string, delta float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE attempts SET score = score + $1 WHERE id=$2`, delta, attemptID)
	return err
}

// DeleteStudentAttempts wipes a student's attempts for one quiz; answers
// and events follow through the FK cascade.
func (s *SQLStore) DeleteStudentAttempts(ctx context.Context, quizID, studentID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM attempts WHERE quiz_id=$1 AND student_id=$2`, quizID, studentID)
	return err
}

func (s *SQLStore) InsertAnswer(ctx context.Context, a Answer) error {
	optsJSON, err := json.Marshal(a.SelectedOptions)
	if err != nil {
		return err
	}
	var timeSpent any
	if a.TimeSpent != nil {
		timeSpent = *a.TimeSpent
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO answers (id, attempt_id, question_id, selected_options, text_answer,
		   is_correct, points_earned, time_spent, manually_graded, answered_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0,$9)
		 ON CONFLICT DO NOTHING`,
		a.ID, a.AttemptID, a.QuestionID, string(optsJSON), a.TextAnswer,
		boolToInt(a.IsCorrect), a.PointsEarned, timeSpent, a.AnsweredAt.Unix())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyAnswered
	}
	return nil
}

const answerCols = `id, attempt_id, question_id, selected_options, text_answer,
	is_correct, points_earned, time_spent, manually_graded, answered_at`

func scanAnswer(row interface{ Scan(...any) error }) (Answer, error) {
	var a Answer
	var optsJSON string
	var correct, manual int
	var timeSpent sql.NullInt64
	var answeredAt int64
	err := row.Scan(&a.ID, &a.AttemptID, &a.QuestionID, &optsJSON, &a.TextAnswer,
		&correct, &a.PointsEarned, &timeSpent, &manual, &answeredAt)
	if err != nil {
		return Answer{}, err
	}
	if err := json.Unmarshal([]byte(optsJSON), &a.SelectedOptions); err != nil {
		return Answer{}, err
	}
	a.IsCorrect = correct != 0
	a.ManuallyGraded = manual != 0
	if timeSpent.Valid {
		v := int(timeSpent.Int64)
		a.TimeSpent = &v
	}
	a.AnsweredAt = time.Unix(answeredAt, 0).UTC()
	return a, nil
}

func (s *SQLStore) ListAnswers(ctx context.Context, attemptID string) ([]Answer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+answerCols+` FROM answers WHERE attempt_id=$1 ORDER BY answered_at, id`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Answer{}
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetAnswer(ctx context.Context, attemptID, questionID string) (Answer, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+answerCols+` FROM answers WHERE attempt_id=$1 AND question_id=$2`, attemptID, questionID)
	a, err := scanAnswer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Answer{}, false, nil
	}
	if err != nil {
		return Answer{}, false, err
	}
	return a, true, nil
}

func (s *SQLStore) SetAnswerGrade(ctx context.Context, answerID string, correct bool, points float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE answers SET is_correct=$1, points_earned=$2, manually_graded=1 WHERE id=$3`,
		boolToInt(correct), points, answerID)
	return err
}

func (s *SQLStore) AppendEvent(ctx context.Context, e Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO anti_cheat_events (id, attempt_id, event_type, details, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		e.ID, e.AttemptID, e.EventType, e.Details, e.CreatedAt.Unix())
	return err
}

func (s *SQLStore) ListEvents(ctx context.Context, quizID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.id, e.attempt_id, e.event_type, e.details, e.created_at
		 FROM anti_cheat_events e JOIN attempts a ON a.id = e.attempt_id
		 WHERE a.quiz_id=$1 ORDER BY e.created_at, e.id`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Event{}
	for rows.Next() {
		var e Event
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.AttemptID, &e.EventType, &e.Details, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
