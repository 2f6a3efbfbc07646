package quiz

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Catalog is the read-mostly quiz/question surface the attempt engine
// consumes. Authoring happens through PutQuiz (full-definition upsert).
type Catalog interface {
	GetQuiz(ctx context.Context, id string) (Quiz, bool, error)
	ListQuizzes(ctx context.Context, opts ListOpts) ([]Quiz, error)
	ListQuestions(ctx context.Context, quizID string) ([]Question, error)
	GetQuestion(ctx context.Context, id string) (Question, bool, error)
	PutQuiz(ctx context.Context, z Quiz, questions []Question) (Quiz, error)
	DeleteQuiz(ctx context.Context, id string) error
	SetDeadline(ctx context.Context, id string, until *time.Time, manualClose bool) error
}

type ListOpts struct {
	GroupID    string
	TeacherID  string
	ActiveOnly bool
}

type SQLStore struct{ db *sql.DB }

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

const quizCols = `id, title, description, group_id, teacher_id, timer_mode,
	time_limit_sec, question_time_limit_sec, available_until,
	manual_close, anti_cheating_mode, allow_show_answers, show_results, is_active, created_at`

func scanQuiz(row interface{ Scan(...any) error }) (Quiz, error) {
	var z Quiz
	var timeLimit, qTimeLimit, availableUntil sql.NullInt64
	var manualClose, antiCheat, allowShow, showResults, active int
	var createdAt int64
	err := row.Scan(&z.ID, &z.Title, &z.Description, &z.GroupID, &z.TeacherID, &z.TimerMode,
		&timeLimit, &qTimeLimit, &availableUntil,
		&manualClose, &antiCheat, &allowShow, &showResults, &active, &createdAt)
	if err != nil {
		return Quiz{}, err
	}
	z.TimeLimitSec = int(timeLimit.Int64)
	z.QuestionTimeLimitSec = int(qTimeLimit.Int64)
	if availableUntil.Valid {
		t := time.Unix(availableUntil.Int64, 0).UTC()
		z.AvailableUntil = &t
	}
	z.ManualClose = manualClose != 0
	z.AntiCheatingMode = antiCheat != 0
	z.AllowShowAnswers = allowShow != 0
	z.ShowResults = showResults != 0
	z.IsActive = active != 0
	z.CreatedAt = time.Unix(createdAt, 0).UTC()
	return z, nil
}

func (s *SQLStore) GetQuiz(ctx context.Context, id string) (Quiz, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+quizCols+` FROM quizzes WHERE id=$1`, id)
	z, err := scanQuiz(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Quiz{}, false, nil
	}
	if err != nil {
		return Quiz{}, false, err
	}
	return z, true, nil
}

func (s *SQLStore) ListQuizzes(ctx context.Context, opts ListOpts) ([]Quiz, error) {
	q := `SELECT ` + quizCols + ` FROM quizzes WHERE 1=1`
	args := []any{}
	n := 0
	add := func(cond string, v any) {
		n++
		args = append(args, v)
		q += cond + placeholder(n)
	}
	if opts.GroupID != "" {
		add(` AND group_id=`, opts.GroupID)
	}
	if opts.TeacherID != "" {
		add(` AND teacher_id=`, opts.TeacherID)
	}
	if opts.ActiveOnly {
		q += ` AND is_active=1`
	}
	q += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Quiz{}
	for rows.Next() {
		z, err := scanQuiz(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, z)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListQuestions(ctx context.Context, quizID string) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, quiz_id, input_type, text, ord, points, correct_text_answer
		 FROM questions WHERE quiz_id=$1 ORDER BY ord, id`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Question{}
	for rows.Next() {
		var q Question
		var key sql.NullString
		if err := rows.Scan(&q.ID, &q.QuizID, &q.InputType, &q.Text, &q.Order, &q.Points, &key); err != nil {
			return nil, err
		}
		q.CorrectTextAnswer = key.String
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		opts, err := s.listOptions(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Options = opts
	}
	return out, nil
}

func (s *SQLStore) GetQuestion(ctx context.Context, id string) (Question, bool, error) {
	var q Question
	var key sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, quiz_id, input_type, text, ord, points, correct_text_answer
		 FROM questions WHERE id=$1`, id).
		Scan(&q.ID, &q.QuizID, &q.InputType, &q.Text, &q.Order, &q.Points, &key)
	if errors.Is(err, sql.ErrNoRows) {
		return Question{}, false, nil
	}
	if err != nil {
		return Question{}, false, err
	}
	q.CorrectTextAnswer = key.String
	opts, err := s.listOptions(ctx, q.ID)
	if err != nil {
		return Question{}, false, err
	}
	q.Options = opts
	return q, true, nil
}

func (s *SQLStore) listOptions(ctx context.Context, questionID string) ([]Option, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, is_correct, ord FROM options WHERE question_id=$1 ORDER BY ord, id`, questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Option{}
	for rows.Next() {
		var o Option
		var correct int
		if err := rows.Scan(&o.ID, &o.Text, &correct, &o.Order); err != nil {
			return nil, err
		}
		o.IsCorrect = correct != 0
		out = append(out, o)
	}
	return out, rows.Err()
}

// PutQuiz upserts the quiz row and replaces its question set.
func (s *SQLStore) PutQuiz(ctx context.Context, z Quiz, questions []Question) (Quiz, error) {
	if z.ID == "" {
		z.ID = uuid.NewString()
	}
	if z.TimerMode == "" {
		z.TimerMode = TimerNone
	}
	if z.CreatedAt.IsZero() {
		z.CreatedAt = time.Now().UTC()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Quiz{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var availableUntil any
	if z.AvailableUntil != nil && !z.ManualClose {
		availableUntil = z.AvailableUntil.Unix()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO quizzes (`+quizCols+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		 ON CONFLICT (id) DO UPDATE SET
		   title=EXCLUDED.title, description=EXCLUDED.description,
		   timer_mode=EXCLUDED.timer_mode, time_limit_sec=EXCLUDED.time_limit_sec,
		   question_time_limit_sec=EXCLUDED.question_time_limit_sec,
		   available_until=EXCLUDED.available_until, manual_close=EXCLUDED.manual_close,
		   anti_cheating_mode=EXCLUDED.anti_cheating_mode,
		   allow_show_answers=EXCLUDED.allow_show_answers, show_results=EXCLUDED.show_results,
		   is_active=EXCLUDED.is_active`,
		z.ID, z.Title, z.Description, z.GroupID, z.TeacherID, string(z.TimerMode),
		nullIfZero(z.TimeLimitSec), nullIfZero(z.QuestionTimeLimitSec), availableUntil,
		boolToInt(z.ManualClose), boolToInt(z.AntiCheatingMode),
		boolToInt(z.AllowShowAnswers), boolToInt(z.ShowResults), boolToInt(z.IsActive),
		z.CreatedAt.Unix())
	if err != nil {
		return Quiz{}, err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM questions WHERE quiz_id=$1`, z.ID); err != nil {
		return Quiz{}, err
	}
	now := time.Now().Unix()
	for i, q := range questions {
		if q.ID == "" {
			q.ID = uuid.NewString()
			questions[i].ID = q.ID
		}
		var key any
		if q.InputType == InputText || q.InputType == InputNumber {
			if q.CorrectTextAnswer != "" {
				key = q.CorrectTextAnswer
			}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO questions (id, quiz_id, input_type, text, ord, points, correct_text_answer, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			q.ID, z.ID, string(q.InputType), q.Text, q.Order, q.Points, key, now)
		if err != nil {
			return Quiz{}, err
		}
		for _, o := range q.Options {
			if o.ID == "" {
				o.ID = uuid.NewString()
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO options (id, question_id, text, is_correct, ord) VALUES ($1,$2,$3,$4,$5)`,
				o.ID, q.ID, o.Text, boolToInt(o.IsCorrect), o.Order)
			if err != nil {
				return Quiz{}, err
			}
		}
	}
	if err = tx.Commit(); err != nil {
		return Quiz{}, err
	}
	return z, nil
}

// DeleteQuiz removes the quiz; attempts, answers and events go with it
// through the FK cascade.
func (s *SQLStore) DeleteQuiz(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM quizzes WHERE id=$1`, id)
	return err
}

func (s *SQLStore) SetDeadline(ctx context.Context, id string, until *time.Time, manualClose bool) error {
	var availableUntil any
	if until != nil {
		availableUntil = until.Unix()
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE quizzes SET available_until=$1, manual_close=$2 WHERE id=$3`,
		availableUntil, boolToInt(manualClose), id)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfZero(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}
