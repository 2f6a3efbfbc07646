package attempt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/quizroom/quizroom/internal/audit"
	"github.com/quizroom/quizroom/internal/quiz"
	"github.com/quizroom/quizroom/internal/roster"
)

// Actor is the authenticated caller, as established by the auth
// middleware.
type Actor struct {
	ID   string
	Role string
}

// Privileged actors bypass group-membership and ownership checks.
func (a Actor) Privileged() bool { return a.Role == "admin" }

// RosterView is the slice of the roster the engine consumes.
type RosterView interface {
	GetUser(ctx context.Context, id string) (roster.User, bool, error)
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	ListMembers(ctx context.Context, groupID string) ([]roster.User, error)
}

// Service drives the attempt lifecycle: start, answer, complete, and
// the teacher-facing views built on top.
type Service struct {
	store   Store
	catalog quiz.Catalog
	roster  RosterView
	audit   audit.Sink
	now     func() time.Time
	rng     *rand.Rand
}

func NewService(store Store, catalog quiz.Catalog, rv RosterView, sink audit.Sink, now func() time.Time, rng *rand.Rand) *Service {
	if now == nil {
		now = time.Now
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if sink == nil {
		sink = audit.Nop{}
	}
	return &Service{store: store, catalog: catalog, roster: rv, audit: sink, now: now, rng: rng}
}

type StartResult struct {
	Attempt Attempt `json:"attempt"`
	Resumed bool    `json:"resumed"`
}

// Start opens an attempt, or returns the caller's existing open attempt
// unchanged. The insert-or-skip in the store plus the re-fetch make
// concurrent starts converge on a single row.
func (s *Service) Start(ctx context.Context, quizID string, actor Actor) (StartResult, error) {
	z, ok, err := s.catalog.GetQuiz(ctx, quizID)
	if err != nil {
		return StartResult{}, err
	}
	if !ok {
		return StartResult{}, notFound("quiz")
	}
	if !z.IsActive {
		return StartResult{}, ErrQuizInactive
	}
	now := s.now().UTC()
	if z.IsExpired(now) {
		return StartResult{}, ErrQuizExpired
	}
	if !actor.Privileged() {
		member, err := s.roster.IsMember(ctx, z.GroupID, actor.ID)
		if err != nil {
			return StartResult{}, err
		}
		if !member {
			return StartResult{}, fmt.Errorf("%w: not a member of the quiz group", ErrForbidden)
		}
	}

	questions, err := s.catalog.ListQuestions(ctx, quizID)
	if err != nil {
		return StartResult{}, err
	}
	var maxScore float64
	for _, q := range questions {
		maxScore += q.Points
	}
	a := Attempt{
		ID:             uuid.NewString(),
		QuizID:         quizID,
		StudentID:      actor.ID,
		MaxScore:       maxScore,
		QuestionsOrder: ShuffledOrder(s.rng, questions),
		StartedAt:      now,
	}
	created, err := s.store.CreateAttempt(ctx, a)
	if err != nil {
		return StartResult{}, err
	}
	cur, ok, err := s.store.OpenAttempt(ctx, quizID, actor.ID)
	if err != nil {
		return StartResult{}, err
	}
	if !ok {
		// the row was completed between insert and fetch
		if !created {
			return StartResult{}, ErrAlreadyCompleted
		}
		cur = a
	}
	if created {
		s.auditLog(ctx, actor, "attempt_started", "attempt", cur.ID,
			map[string]any{"quiz_id": quizID})
	}
	return StartResult{Attempt: cur, Resumed: !created}, nil
}

type AnswerResult struct {
	IsCorrect    bool    `json:"is_correct"`
	PointsEarned float64 `json:"points_earned"`
	NeedsManual  bool    `json:"needs_manual_grading,omitempty"`
}

// SubmitAnswer evaluates and records a single answer against the
// caller's open attempt for the question's quiz.
func (s *Service) SubmitAnswer(ctx context.Context, actor Actor, sub Submission) (AnswerResult, error) {
	q, ok, err := s.catalog.GetQuestion(ctx, sub.QuestionID)
	if err != nil {
		return AnswerResult{}, err
	}
	if !ok {
		return AnswerResult{}, notFound("question")
	}
	a, ok, err := s.store.OpenAttempt(ctx, q.QuizID, actor.ID)
	if err != nil {
		return AnswerResult{}, err
	}
	if !ok {
		return AnswerResult{}, ErrNoActiveAttempt
	}
	answers, err := s.store.ListAnswers(ctx, a.ID)
	if err != nil {
		return AnswerResult{}, err
	}
	ts := sinceLastAnswer(s.now(), a.StartedAt, answers)
	_, ev, err := s.record(ctx, a, q, sub, ts)
	if err != nil {
		return AnswerResult{}, err
	}
	return AnswerResult{IsCorrect: ev.IsCorrect, PointsEarned: ev.PointsEarned, NeedsManual: ev.NeedsManual}, nil
}

// record evaluates, inserts, and applies the score delta. Duplicate
// submissions fail on insert before any score is touched.
func (s *Service) record(ctx context.Context, a Attempt, q quiz.Question, sub Submission, timeSpent int) (Answer, Evaluation, error) {
	ev, err := Evaluate(q, sub)
	if err != nil {
		return Answer{}, Evaluation{}, err
	}
	ts := timeSpent
	ans := Answer{
		ID:              uuid.NewString(),
		AttemptID:       a.ID,
		QuestionID:      q.ID,
		SelectedOptions: sub.SelectedOptions,
		TextAnswer:      sub.TextAnswer,
		IsCorrect:       ev.IsCorrect,
		PointsEarned:    ev.PointsEarned,
		TimeSpent:       &ts,
		AnsweredAt:      s.now().UTC(),
	}
	if err := s.store.InsertAnswer(ctx, ans); err != nil {
		return Answer{}, Evaluation{}, err
	}
	if ev.PointsEarned != 0 {
		if err := s.store.AddScore(ctx, a.ID, ev.PointsEarned); err != nil {
			return Answer{}, Evaluation{}, err
		}
	}
	return ans, ev, nil
}

type BatchResult struct {
	Submitted   int     `json:"submitted_count"`
	Skipped     int     `json:"skipped_count"`
	Score       float64 `json:"score"`
	MaxScore    float64 `json:"max_score"`
	Percentage  float64 `json:"percentage"`
	IsCompleted bool    `json:"is_completed"`
}

// SubmitBatch processes submissions sequentially. Already-answered and
// foreign questions are skipped and tallied; an invalid option aborts
// the whole batch. With complete set the attempt is closed afterwards.
func (s *Service) SubmitBatch(ctx context.Context, actor Actor, attemptID string, items []Submission, complete bool) (BatchResult, error) {
	a, ok, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return BatchResult{}, err
	}
	if !ok {
		return BatchResult{}, notFound("attempt")
	}
	if a.StudentID != actor.ID && !actor.Privileged() {
		return BatchResult{}, fmt.Errorf("%w: attempt belongs to another student", ErrForbidden)
	}
	if a.IsCompleted() {
		return BatchResult{}, ErrAlreadyCompleted
	}

	questions, err := s.catalog.ListQuestions(ctx, a.QuizID)
	if err != nil {
		return BatchResult{}, err
	}
	byID := make(map[string]quiz.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	existing, err := s.store.ListAnswers(ctx, a.ID)
	if err != nil {
		return BatchResult{}, err
	}
	answered := make(map[string]bool, len(existing))
	prev := a.StartedAt
	for _, e := range existing {
		answered[e.QuestionID] = true
		if e.AnsweredAt.After(prev) {
			prev = e.AnsweredAt
		}
	}

	res := BatchResult{MaxScore: a.MaxScore}
	score := a.Score
	for _, it := range items {
		if answered[it.QuestionID] {
			res.Skipped++
			continue
		}
		q, ok := byID[it.QuestionID]
		if !ok {
			res.Skipped++
			continue
		}
		ts := sinceLastAnswer(s.now(), prev, nil)
		if it.TimeSpentSec != nil && *it.TimeSpentSec >= 0 {
			ts = *it.TimeSpentSec
		}
		ans, ev, err := s.record(ctx, a, q, it, ts)
		if errors.Is(err, ErrAlreadyAnswered) {
			res.Skipped++
			continue
		}
		if err != nil {
			return BatchResult{}, err
		}
		answered[q.ID] = true
		prev = ans.AnsweredAt
		score += ev.PointsEarned
		res.Submitted++
	}
	res.Score = score
	if a.MaxScore > 0 {
		res.Percentage = score / a.MaxScore * 100
	}

	if complete {
		now := s.now().UTC()
		err := s.store.CompleteAttempt(ctx, a.ID, now, elapsedSeconds(a.StartedAt, now))
		if err != nil && !errors.Is(err, ErrAlreadyCompleted) {
			return BatchResult{}, err
		}
		res.IsCompleted = true
		s.auditLog(ctx, actor, "attempt_completed", "attempt", a.ID,
			map[string]any{"quiz_id": a.QuizID, "score": score, "max_score": a.MaxScore})
	}
	return res, nil
}

type CompleteResult struct {
	Score      float64 `json:"score"`
	MaxScore   float64 `json:"max_score"`
	Percentage float64 `json:"percentage"`
	TimeSpent  int     `json:"time_spent"`
}

// Complete closes the attempt. Completion is terminal: repeating the
// call returns AlreadyCompleted and the stored row never changes again.
func (s *Service) Complete(ctx context.Context, actor Actor, attemptID string) (CompleteResult, error) {
	a, ok, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return CompleteResult{}, err
	}
	if !ok {
		return CompleteResult{}, notFound("attempt")
	}
	if a.StudentID != actor.ID && !actor.Privileged() {
		return CompleteResult{}, fmt.Errorf("%w: attempt belongs to another student", ErrForbidden)
	}
	now := s.now().UTC()
	ts := elapsedSeconds(a.StartedAt, now)
	if err := s.store.CompleteAttempt(ctx, a.ID, now, ts); err != nil {
		return CompleteResult{}, err
	}
	fresh, _, err := s.store.GetAttempt(ctx, a.ID)
	if err != nil {
		return CompleteResult{}, err
	}
	s.auditLog(ctx, actor, "attempt_completed", "attempt", a.ID,
		map[string]any{"quiz_id": a.QuizID, "score": fresh.Score, "max_score": fresh.MaxScore})
	return CompleteResult{
		Score:      fresh.Score,
		MaxScore:   fresh.MaxScore,
		Percentage: fresh.Percentage(),
		TimeSpent:  ts,
	}, nil
}

type CurrentResult struct {
	HasAttempt          bool     `json:"has_attempt"`
	Attempt             *Attempt `json:"attempt,omitempty"`
	AnsweredQuestionIDs []string `json:"answered_question_ids,omitempty"`
}

// CurrentAttempt supports page-reload resumption: the open attempt plus
// which questions are already behind the student.
func (s *Service) CurrentAttempt(ctx context.Context, actor Actor, quizID string) (CurrentResult, error) {
	a, ok, err := s.store.OpenAttempt(ctx, quizID, actor.ID)
	if err != nil {
		return CurrentResult{}, err
	}
	if !ok {
		return CurrentResult{}, nil
	}
	answers, err := s.store.ListAnswers(ctx, a.ID)
	if err != nil {
		return CurrentResult{}, err
	}
	ids := make([]string, 0, len(answers))
	for _, ans := range answers {
		ids = append(ids, ans.QuestionID)
	}
	return CurrentResult{HasAttempt: true, Attempt: &a, AnsweredQuestionIDs: ids}, nil
}

func (s *Service) MyAttempts(ctx context.Context, actor Actor, quizID string) ([]Attempt, error) {
	return s.store.ListByStudent(ctx, quizID, actor.ID)
}

type QuestionResult struct {
	QuestionID        string         `json:"question_id"`
	Text              string         `json:"text"`
	InputType         quiz.InputType `json:"input_type"`
	Answered          bool           `json:"answered"`
	SelectedOptions   []string       `json:"selected_options"`
	TextAnswer        string         `json:"text_answer,omitempty"`
	CorrectOptions    []string       `json:"correct_options,omitempty"`
	CorrectTextAnswer string         `json:"correct_text_answer,omitempty"`
	IsCorrect         bool           `json:"is_correct"`
	PointsEarned      float64        `json:"points_earned"`
	MaxPoints         float64        `json:"max_points"`
	ManuallyGraded    bool           `json:"manually_graded"`
	NeedsManual       bool           `json:"needs_manual_grading,omitempty"`
	TimeSpent         *int           `json:"time_spent,omitempty"`
}

type ResultDetail struct {
	Attempt    Attempt          `json:"attempt"`
	Percentage float64          `json:"percentage"`
	Questions  []QuestionResult `json:"questions"`
}

// Results returns the per-question breakdown of one attempt. Students
// see their own attempts only when the quiz publishes results; the
// grading keys are included only when the quiz allows showing answers
// (teachers and admins always get them).
func (s *Service) Results(ctx context.Context, actor Actor, attemptID string) (ResultDetail, error) {
	a, ok, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return ResultDetail{}, err
	}
	if !ok {
		return ResultDetail{}, notFound("attempt")
	}
	z, ok, err := s.catalog.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return ResultDetail{}, err
	}
	if !ok {
		return ResultDetail{}, notFound("quiz")
	}
	owner := a.StudentID == actor.ID
	staff := z.TeacherID == actor.ID || actor.Privileged()
	if !owner && !staff {
		return ResultDetail{}, fmt.Errorf("%w: attempt belongs to another student", ErrForbidden)
	}
	if owner && !staff && !z.ShowResults {
		return ResultDetail{}, fmt.Errorf("%w: results are not published for this quiz", ErrForbidden)
	}
	showKeys := staff || z.AllowShowAnswers

	qs, err := s.questionResults(ctx, a, showKeys)
	if err != nil {
		return ResultDetail{}, err
	}
	return ResultDetail{Attempt: a, Percentage: a.Percentage(), Questions: qs}, nil
}

func (s *Service) questionResults(ctx context.Context, a Attempt, showKeys bool) ([]QuestionResult, error) {
	questions, err := s.catalog.ListQuestions(ctx, a.QuizID)
	if err != nil {
		return nil, err
	}
	answers, err := s.store.ListAnswers(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	byQuestion := make(map[string]Answer, len(answers))
	for _, ans := range answers {
		byQuestion[ans.QuestionID] = ans
	}

	// every question gets a row, answered or not
	out := []QuestionResult{}
	for _, q := range OrderQuestions(a.QuestionsOrder, questions) {
		qr := QuestionResult{
			QuestionID: q.ID,
			Text:       q.Text,
			InputType:  q.InputType,
			MaxPoints:  q.Points,
		}
		if ans, answered := byQuestion[q.ID]; answered {
			qr.Answered = true
			qr.SelectedOptions = ans.SelectedOptions
			qr.TextAnswer = ans.TextAnswer
			qr.IsCorrect = ans.IsCorrect
			qr.PointsEarned = ans.PointsEarned
			qr.ManuallyGraded = ans.ManuallyGraded
			qr.TimeSpent = ans.TimeSpent
			if q.InputType == quiz.InputText && !ans.ManuallyGraded {
				qr.NeedsManual = true
			}
		}
		if showKeys {
			qr.CorrectOptions = q.CorrectOptionIDs()
			qr.CorrectTextAnswer = q.CorrectTextAnswer
		}
		out = append(out, qr)
	}
	return out, nil
}

type RankedResult struct {
	Rank        int       `json:"rank"`
	AttemptID   string    `json:"attempt_id"`
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name"`
	Score       float64   `json:"score"`
	MaxScore    float64   `json:"max_score"`
	Percentage  float64   `json:"percentage"`
	TimeSpent   int       `json:"time_spent"`
	CompletedAt time.Time `json:"completed_at"`
}

// QuizResults lists completed attempts best-first for the quiz owner.
func (s *Service) QuizResults(ctx context.Context, actor Actor, quizID string) ([]RankedResult, error) {
	if _, err := s.quizForStaff(ctx, quizID, actor); err != nil {
		return nil, err
	}
	attempts, err := s.store.ListCompleted(ctx, quizID)
	if err != nil {
		return nil, err
	}
	names := map[string]string{}
	out := make([]RankedResult, 0, len(attempts))
	for i, a := range attempts {
		out = append(out, RankedResult{
			Rank:        i + 1,
			AttemptID:   a.ID,
			StudentID:   a.StudentID,
			StudentName: s.displayName(ctx, names, a.StudentID),
			Score:       a.Score,
			MaxScore:    a.MaxScore,
			Percentage:  a.Percentage(),
			TimeSpent:   a.TimeSpent,
			CompletedAt: *a.CompletedAt,
		})
	}
	return out, nil
}

// StudentStatuses is the teacher's live progress view over the quiz's
// group.
func (s *Service) StudentStatuses(ctx context.Context, actor Actor, quizID string) ([]MemberStatus, error) {
	z, err := s.quizForStaff(ctx, quizID, actor)
	if err != nil {
		return nil, err
	}
	members, err := s.roster.ListMembers(ctx, z.GroupID)
	if err != nil {
		return nil, err
	}
	questions, err := s.catalog.ListQuestions(ctx, quizID)
	if err != nil {
		return nil, err
	}
	attempts, err := s.store.ListByQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	latest := map[string]Attempt{}
	for _, a := range attempts {
		// rows arrive oldest-first, so the newest attempt wins
		latest[a.StudentID] = a
	}
	expired := z.IsExpired(s.now())

	out := []MemberStatus{}
	for _, m := range members {
		if m.Role != "student" {
			continue
		}
		ms := MemberStatus{
			StudentID:      m.ID,
			StudentName:    m.DisplayName(),
			TotalQuestions: len(questions),
		}
		if a, ok := latest[m.ID]; ok {
			answers, err := s.store.ListAnswers(ctx, a.ID)
			if err != nil {
				return nil, err
			}
			ms.AttemptID = a.ID
			ms.AnsweredCount = len(answers)
			ms.Score = &a.Score
			ms.MaxScore = &a.MaxScore
			ms.AvgTimePerAnswer = avgTime(answers)
			ms.Status = DeriveStatus(&a, len(answers), expired)
		} else {
			ms.Status = DeriveStatus(nil, 0, expired)
		}
		out = append(out, ms)
	}
	return out, nil
}

type StudentDetail struct {
	Student     roster.User      `json:"student"`
	Status      Status           `json:"status"`
	Attempt     *Attempt         `json:"attempt,omitempty"`
	Percentage  float64          `json:"percentage"`
	Questions   []QuestionResult `json:"questions"`
	NeedsManual bool             `json:"needs_manual_grading"`
}

// StudentDetail is the teacher's drill-down on one student's latest
// attempt, including answers that still need a manual verdict.
func (s *Service) StudentDetail(ctx context.Context, actor Actor, quizID, studentID string) (StudentDetail, error) {
	z, err := s.quizForStaff(ctx, quizID, actor)
	if err != nil {
		return StudentDetail{}, err
	}
	u, ok, err := s.roster.GetUser(ctx, studentID)
	if err != nil {
		return StudentDetail{}, err
	}
	if !ok {
		return StudentDetail{}, notFound("student")
	}
	d := StudentDetail{Student: u, Questions: []QuestionResult{}}

	a, ok, err := s.store.LatestAttempt(ctx, quizID, studentID)
	if err != nil {
		return StudentDetail{}, err
	}
	if !ok {
		d.Status = DeriveStatus(nil, 0, z.IsExpired(s.now()))
		return d, nil
	}
	qs, err := s.questionResults(ctx, a, true)
	if err != nil {
		return StudentDetail{}, err
	}
	answered := 0
	for _, qr := range qs {
		if qr.Answered {
			answered++
		}
		if qr.NeedsManual {
			d.NeedsManual = true
		}
	}
	d.Attempt = &a
	d.Percentage = a.Percentage()
	d.Questions = qs
	d.Status = DeriveStatus(&a, answered, z.IsExpired(s.now()))
	return d, nil
}

// RecordEvent appends one anti-cheat event. When the quiz does not run
// in anti-cheating mode the event is accepted and discarded, so clients
// never need to know whether monitoring is on.
func (s *Service) RecordEvent(ctx context.Context, actor Actor, attemptID, eventType, details string) error {
	if eventType == "" {
		return fmt.Errorf("%w: event_type is required", ErrValidation)
	}
	a, ok, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	if !ok {
		return notFound("attempt")
	}
	if a.StudentID != actor.ID && !actor.Privileged() {
		return fmt.Errorf("%w: attempt belongs to another student", ErrForbidden)
	}
	z, ok, err := s.catalog.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return err
	}
	if !ok || !z.AntiCheatingMode {
		return nil
	}
	return s.store.AppendEvent(ctx, Event{
		ID:        uuid.NewString(),
		AttemptID: attemptID,
		EventType: eventType,
		Details:   details,
		CreatedAt: s.now().UTC(),
	})
}

type EventRecord struct {
	Event
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
}

type AntiCheatReport struct {
	Enabled         bool             `json:"enabled"`
	Events          []EventRecord    `json:"events"`
	IdenticalGroups []IdenticalGroup `json:"identical_answer_groups"`
}

// AntiCheatLog assembles the recorded events and the identical-answer
// groups over completed attempts.
func (s *Service) AntiCheatLog(ctx context.Context, actor Actor, quizID string) (AntiCheatReport, error) {
	z, err := s.quizForStaff(ctx, quizID, actor)
	if err != nil {
		return AntiCheatReport{}, err
	}
	report := AntiCheatReport{Events: []EventRecord{}, IdenticalGroups: []IdenticalGroup{}}
	if !z.AntiCheatingMode {
		return report, nil
	}
	report.Enabled = true

	attempts, err := s.store.ListByQuiz(ctx, quizID)
	if err != nil {
		return AntiCheatReport{}, err
	}
	studentOf := make(map[string]string, len(attempts))
	for _, a := range attempts {
		studentOf[a.ID] = a.StudentID
	}
	names := map[string]string{}

	events, err := s.store.ListEvents(ctx, quizID)
	if err != nil {
		return AntiCheatReport{}, err
	}
	for _, e := range events {
		sid := studentOf[e.AttemptID]
		report.Events = append(report.Events, EventRecord{
			Event:       e,
			StudentID:   sid,
			StudentName: s.displayName(ctx, names, sid),
		})
	}

	questions, err := s.catalog.ListQuestions(ctx, quizID)
	if err != nil {
		return AntiCheatReport{}, err
	}
	answersByAttempt := map[string][]Answer{}
	for _, a := range attempts {
		if !a.IsCompleted() {
			continue
		}
		answers, err := s.store.ListAnswers(ctx, a.ID)
		if err != nil {
			return AntiCheatReport{}, err
		}
		answersByAttempt[a.ID] = answers
	}
	report.IdenticalGroups = FindIdenticalGroups(questions, attempts, answersByAttempt,
		func(sid string) string { return s.displayName(ctx, names, sid) })
	return report, nil
}

// Reissue wipes the named students' attempts so they can retake the
// quiz, optionally moving the deadline forward.
func (s *Service) Reissue(ctx context.Context, actor Actor, quizID string, studentIDs []string, newDeadline *time.Time) (int, error) {
	if len(studentIDs) == 0 {
		return 0, fmt.Errorf("%w: student_ids is required", ErrValidation)
	}
	if _, err := s.quizForStaff(ctx, quizID, actor); err != nil {
		return 0, err
	}
	for _, sid := range studentIDs {
		if err := s.store.DeleteStudentAttempts(ctx, quizID, sid); err != nil {
			return 0, err
		}
	}
	if newDeadline != nil {
		if err := s.catalog.SetDeadline(ctx, quizID, newDeadline, false); err != nil {
			return 0, err
		}
	}
	s.auditLog(ctx, actor, "quiz_reissued", "quiz", quizID,
		map[string]any{"student_ids": studentIDs})
	return len(studentIDs), nil
}

// CloseEarly moves the deadline to now, expiring the quiz for everyone
// who has not completed it.
func (s *Service) CloseEarly(ctx context.Context, actor Actor, quizID string) error {
	if _, err := s.quizForStaff(ctx, quizID, actor); err != nil {
		return err
	}
	now := s.now().UTC()
	if err := s.catalog.SetDeadline(ctx, quizID, &now, false); err != nil {
		return err
	}
	s.auditLog(ctx, actor, "quiz_closed_early", "quiz", quizID, nil)
	return nil
}

type GradeResult struct {
	AnswerID     string  `json:"answer_id"`
	IsCorrect    bool    `json:"is_correct"`
	PointsEarned float64 `json:"points_earned"`
	AttemptScore float64 `json:"attempt_score"`
}

// GradeAnswer is the manual override for free-text answers: the teacher
// sets the verdict and the attempt score absorbs the delta.
func (s *Service) GradeAnswer(ctx context.Context, actor Actor, attemptID, questionID string, correct bool) (GradeResult, error) {
	a, ok, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return GradeResult{}, err
	}
	if !ok {
		return GradeResult{}, notFound("attempt")
	}
	if _, err := s.quizForStaff(ctx, a.QuizID, actor); err != nil {
		return GradeResult{}, err
	}
	ans, ok, err := s.store.GetAnswer(ctx, attemptID, questionID)
	if err != nil {
		return GradeResult{}, err
	}
	if !ok {
		return GradeResult{}, notFound("answer")
	}
	q, ok, err := s.catalog.GetQuestion(ctx, questionID)
	if err != nil {
		return GradeResult{}, err
	}
	if !ok {
		return GradeResult{}, notFound("question")
	}

	var newPoints float64
	if correct {
		newPoints = q.Points
	}
	if err := s.store.SetAnswerGrade(ctx, ans.ID, correct, newPoints); err != nil {
		return GradeResult{}, err
	}
	if delta := newPoints - ans.PointsEarned; delta != 0 {
		if err := s.store.AddScore(ctx, a.ID, delta); err != nil {
			return GradeResult{}, err
		}
	}
	fresh, _, err := s.store.GetAttempt(ctx, a.ID)
	if err != nil {
		return GradeResult{}, err
	}
	s.auditLog(ctx, actor, "answer_manually_graded", "attempt", attemptID,
		map[string]any{"question_id": questionID, "is_correct": correct})
	return GradeResult{
		AnswerID:     ans.ID,
		IsCorrect:    correct,
		PointsEarned: newPoints,
		AttemptScore: fresh.Score,
	}, nil
}

// quizForStaff loads the quiz and checks the caller owns it or is
// privileged.
func (s *Service) quizForStaff(ctx context.Context, quizID string, actor Actor) (quiz.Quiz, error) {
	z, ok, err := s.catalog.GetQuiz(ctx, quizID)
	if err != nil {
		return quiz.Quiz{}, err
	}
	if !ok {
		return quiz.Quiz{}, notFound("quiz")
	}
	if z.TeacherID != actor.ID && !actor.Privileged() {
		return quiz.Quiz{}, fmt.Errorf("%w: quiz belongs to another teacher", ErrForbidden)
	}
	return z, nil
}

func (s *Service) displayName(ctx context.Context, cache map[string]string, studentID string) string {
	if n, ok := cache[studentID]; ok {
		return n
	}
	n := studentID
	if u, ok, err := s.roster.GetUser(ctx, studentID); err == nil && ok {
		n = u.DisplayName()
	}
	cache[studentID] = n
	return n
}

func (s *Service) auditLog(ctx context.Context, actor Actor, action, resourceType, resourceID string, details any) {
	var payload string
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			payload = string(b)
		}
	}
	e := audit.Entry{
		UserID:       actor.ID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      payload,
	}
	if err := s.audit.Append(ctx, e); err != nil {
		log.Printf("audit: append %s: %v", action, err)
	}
}

// sinceLastAnswer measures whole seconds since the most recent answer,
// or since the attempt started when nothing is answered yet.
func sinceLastAnswer(now, startedAt time.Time, answers []Answer) int {
	ref := startedAt
	for _, a := range answers {
		if a.AnsweredAt.After(ref) {
			ref = a.AnsweredAt
		}
	}
	return elapsedSeconds(ref, now)
}

func elapsedSeconds(from, to time.Time) int {
	d := int(to.Sub(from).Seconds())
	if d < 0 {
		return 0
	}
	return d
}
