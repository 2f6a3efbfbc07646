package attempt

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/quizroom/quizroom/internal/audit"
	"github.com/quizroom/quizroom/internal/quiz"
	"github.com/quizroom/quizroom/internal/roster"
)

// ---- in-memory fakes ----

type fakeStore struct {
	attempts map[string]Attempt
	answers  map[string][]Answer
	events   []Event
}

func newFakeStore() *fakeStore {
	return &fakeStore{attempts: map[string]Attempt{}, answers: map[string][]Answer{}}
}

func (f *fakeStore) CreateAttempt(_ context.Context, a Attempt) (bool, error) {
	for _, x := range f.attempts {
		if x.QuizID == a.QuizID && x.StudentID == a.StudentID && !x.IsCompleted() {
			return false, nil
		}
	}
	f.attempts[a.ID] = a
	return true, nil
}

func (f *fakeStore) GetAttempt(_ context.Context, id string) (Attempt, bool, error) {
	a, ok := f.attempts[id]
	return a, ok, nil
}

func (f *fakeStore) OpenAttempt(_ context.Context, quizID, studentID string) (Attempt, bool, error) {
	for _, a := range f.attempts {
		if a.QuizID == quizID && a.StudentID == studentID && !a.IsCompleted() {
			return a, true, nil
		}
	}
	return Attempt{}, false, nil
}

func (f *fakeStore) LatestAttempt(_ context.Context, quizID, studentID string) (Attempt, bool, error) {
	var best Attempt
	found := false
	for _, a := range f.attempts {
		if a.QuizID == quizID && a.StudentID == studentID {
			if !found || a.StartedAt.After(best.StartedAt) {
				best, found = a, true
			}
		}
	}
	return best, found, nil
}

func (f *fakeStore) ListByStudent(_ context.Context, quizID, studentID string) ([]Attempt, error) {
	out := []Attempt{}
	for _, a := range f.attempts {
		if a.QuizID == quizID && a.StudentID == studentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) ListByQuiz(_ context.Context, quizID string) ([]Attempt, error) {
	out := []Attempt{}
	for _, a := range f.attempts {
		if a.QuizID == quizID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) ListCompleted(_ context.Context, quizID string) ([]Attempt, error) {
	out := []Attempt{}
	for _, a := range f.attempts {
		if a.QuizID == quizID && a.IsCompleted() {
			out = append(out, a)
		}
	}
	for i := range out {
		for j := i + 1; j < len(out); j++ {
			if out[j].Score > out[i].Score {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (f *fakeStore) CompleteAttempt(_ context.Context, id string, completedAt time.Time, timeSpent int) error {
	a, ok := f.attempts[id]
	if !ok || a.IsCompleted() {
		return ErrAlreadyCompleted
	}
	a.CompletedAt = &completedAt
	a.TimeSpent = timeSpent
	f.attempts[id] = a
	return nil
}

func (f *fakeStore) AddScore(_ context.Context, attemptID string, delta float64) error {
	a := f.attempts[attemptID]
	a.Score += delta
	f.attempts[attemptID] = a
	return nil
}

func (f *fakeStore) DeleteStudentAttempts(_ context.Context, quizID, studentID string) error {
	for id, a := range f.attempts {
		if a.QuizID == quizID && a.StudentID == studentID {
			delete(f.attempts, id)
			delete(f.answers, id)
		}
	}
	return nil
}

func (f *fakeStore) InsertAnswer(_ context.Context, a Answer) error {
	for _, x := range f.answers[a.AttemptID] {
		if x.QuestionID == a.QuestionID {
			return ErrAlreadyAnswered
		}
	}
	f.answers[a.AttemptID] = append(f.answers[a.AttemptID], a)
	return nil
}

func (f *fakeStore) ListAnswers(_ context.Context, attemptID string) ([]Answer, error) {
	return f.answers[attemptID], nil
}

func (f *fakeStore) GetAnswer(_ context.Context, attemptID, questionID string) (Answer, bool, error) {
	for _, a := range f.answers[attemptID] {
		if a.QuestionID == questionID {
			return a, true, nil
		}
	}
	return Answer{}, false, nil
}

func (f *fakeStore) SetAnswerGrade(_ context.Context, answerID string, correct bool, points float64) error {
	for attemptID, list := range f.answers {
		for i, a := range list {
			if a.ID == answerID {
				a.IsCorrect = correct
				a.PointsEarned = points
				a.ManuallyGraded = true
				f.answers[attemptID][i] = a
				return nil
			}
		}
	}
	return errors.New("answer not found")
}

func (f *fakeStore) AppendEvent(_ context.Context, e Event) error {
	f.events = append(f.events, e)
	return nil
}

func (f *fakeStore) ListEvents(_ context.Context, quizID string) ([]Event, error) {
	out := []Event{}
	for _, e := range f.events {
		if a, ok := f.attempts[e.AttemptID]; ok && a.QuizID == quizID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeCatalog struct {
	quizzes   map[string]quiz.Quiz
	questions map[string][]quiz.Question
}

func (f *fakeCatalog) GetQuiz(_ context.Context, id string) (quiz.Quiz, bool, error) {
	z, ok := f.quizzes[id]
	return z, ok, nil
}

func (f *fakeCatalog) ListQuizzes(context.Context, quiz.ListOpts) ([]quiz.Quiz, error) {
	return nil, nil
}

func (f *fakeCatalog) ListQuestions(_ context.Context, quizID string) ([]quiz.Question, error) {
	return f.questions[quizID], nil
}

func (f *fakeCatalog) GetQuestion(_ context.Context, id string) (quiz.Question, bool, error) {
	for _, qs := range f.questions {
		for _, q := range qs {
			if q.ID == id {
				return q, true, nil
			}
		}
	}
	return quiz.Question{}, false, nil
}

func (f *fakeCatalog) PutQuiz(_ context.Context, z quiz.Quiz, qs []quiz.Question) (quiz.Quiz, error) {
	f.quizzes[z.ID] = z
	f.questions[z.ID] = qs
	return z, nil
}

func (f *fakeCatalog) DeleteQuiz(_ context.Context, id string) error {
	delete(f.quizzes, id)
	delete(f.questions, id)
	return nil
}

func (f *fakeCatalog) SetDeadline(_ context.Context, id string, until *time.Time, manualClose bool) error {
	z := f.quizzes[id]
	z.AvailableUntil = until
	z.ManualClose = manualClose
	f.quizzes[id] = z
	return nil
}

type fakeRoster struct {
	users   map[string]roster.User
	members map[string]map[string]bool
}

func (f *fakeRoster) GetUser(_ context.Context, id string) (roster.User, bool, error) {
	u, ok := f.users[id]
	return u, ok, nil
}

func (f *fakeRoster) IsMember(_ context.Context, groupID, userID string) (bool, error) {
	return f.members[groupID][userID], nil
}

func (f *fakeRoster) ListMembers(_ context.Context, groupID string) ([]roster.User, error) {
	out := []roster.User{}
	for id := range f.members[groupID] {
		out = append(out, f.users[id])
	}
	return out, nil
}

// ---- fixture ----

type fixture struct {
	svc     *Service
	store   *fakeStore
	catalog *fakeCatalog
	clock   *fakeClock
	quizID  string
	// question ids: q1 select (opts a,b,c; b correct), q2 text "Paris", q3 number "3"
	q1, q2, q3    string
	optA, optB, optC string
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time            { return c.t }
func (c *fakeClock) Advance(d time.Duration)   { c.t = c.t.Add(d) }

const (
	student = "stu-1"
	teacher = "tea-1"
	groupID = "grp-1"
)

func studentActor() Actor { return Actor{ID: student, Role: "student"} }
func teacherActor() Actor { return Actor{ID: teacher, Role: "teacher"} }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: newFakeStore(),
		clock: &fakeClock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)},
		quizID: uuid.NewString(),
		q1: uuid.NewString(), q2: uuid.NewString(), q3: uuid.NewString(),
		optA: uuid.NewString(), optB: uuid.NewString(), optC: uuid.NewString(),
	}
	f.catalog = &fakeCatalog{
		quizzes: map[string]quiz.Quiz{
			f.quizID: {
				ID: f.quizID, Title: "Capitals", GroupID: groupID, TeacherID: teacher,
				TimerMode: quiz.TimerNone, AntiCheatingMode: true,
				AllowShowAnswers: true, ShowResults: true, IsActive: true,
			},
		},
		questions: map[string][]quiz.Question{
			f.quizID: {
				{ID: f.q1, QuizID: f.quizID, InputType: quiz.InputSelect, Text: "Pick B", Order: 1, Points: 1,
					Options: []quiz.Option{
						{ID: f.optA, Text: "A"},
						{ID: f.optB, Text: "B", IsCorrect: true},
						{ID: f.optC, Text: "C"},
					}},
				{ID: f.q2, QuizID: f.quizID, InputType: quiz.InputText, Text: "Capital of France", Order: 2, Points: 1,
					CorrectTextAnswer: "Paris"},
				{ID: f.q3, QuizID: f.quizID, InputType: quiz.InputNumber, Text: "1+2", Order: 3, Points: 1,
					CorrectTextAnswer: "3"},
			},
		},
	}
	rv := &fakeRoster{
		users: map[string]roster.User{
			student: {ID: student, Username: "ann", Role: "student", FirstName: "Ann", LastName: "Lee"},
			teacher: {ID: teacher, Username: "bob", Role: "teacher"},
		},
		members: map[string]map[string]bool{groupID: {student: true}},
	}
	f.svc = NewService(f.store, f.catalog, rv, audit.Nop{}, f.clock.Now, rand.New(rand.NewSource(1)))
	return f
}

func (f *fixture) addStudent(id, username string) {
	rv := f.svc.roster.(*fakeRoster)
	rv.users[id] = roster.User{ID: id, Username: username, Role: "student"}
	rv.members[groupID][id] = true
}

func (f *fixture) start(t *testing.T, actor Actor) Attempt {
	t.Helper()
	res, err := f.svc.Start(context.Background(), f.quizID, actor)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return res.Attempt
}

// ---- lifecycle ----

func TestStartIsIdempotentWhileOpen(t *testing.T) {
	f := newFixture(t)
	first, err := f.svc.Start(context.Background(), f.quizID, studentActor())
	if err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if first.Resumed {
		t.Fatalf("first start reported resumed")
	}
	if first.Attempt.MaxScore != 3 {
		t.Fatalf("max score = %v, want 3", first.Attempt.MaxScore)
	}
	if len(first.Attempt.QuestionsOrder) != 3 {
		t.Fatalf("questions order has %d entries", len(first.Attempt.QuestionsOrder))
	}

	f.clock.Advance(time.Minute)
	second, err := f.svc.Start(context.Background(), f.quizID, studentActor())
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if !second.Resumed {
		t.Fatalf("second start did not resume")
	}
	if second.Attempt.ID != first.Attempt.ID {
		t.Fatalf("second start created a new attempt")
	}
	if len(f.store.attempts) != 1 {
		t.Fatalf("%d attempts stored, want 1", len(f.store.attempts))
	}
}

func TestStartRejectsExpiredQuiz(t *testing.T) {
	f := newFixture(t)
	past := f.clock.Now().Add(-time.Hour)
	z := f.catalog.quizzes[f.quizID]
	z.AvailableUntil = &past
	f.catalog.quizzes[f.quizID] = z

	_, err := f.svc.Start(context.Background(), f.quizID, studentActor())
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err = %v, want invalid state", err)
	}
}

func TestStartRejectsNonMember(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Start(context.Background(), f.quizID, Actor{ID: "outsider", Role: "student"})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want forbidden", err)
	}
}

func TestManualCloseIgnoresDeadline(t *testing.T) {
	f := newFixture(t)
	past := f.clock.Now().Add(-time.Hour)
	z := f.catalog.quizzes[f.quizID]
	z.AvailableUntil = &past
	z.ManualClose = true
	f.catalog.quizzes[f.quizID] = z

	if _, err := f.svc.Start(context.Background(), f.quizID, studentActor()); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

// ---- scoring ----

func TestScoreIsSumOfCorrectAnswers(t *testing.T) {
	f := newFixture(t)
	a := f.start(t, studentActor())
	ctx := context.Background()

	r1, err := f.svc.SubmitAnswer(ctx, studentActor(), Submission{QuestionID: f.q1, SelectedOptions: []string{f.optB}})
	if err != nil {
		t.Fatalf("submit q1: %v", err)
	}
	if !r1.IsCorrect || r1.PointsEarned != 1 {
		t.Fatalf("q1 verdict = %+v", r1)
	}
	r2, err := f.svc.SubmitAnswer(ctx, studentActor(), Submission{QuestionID: f.q2, TextAnswer: "london"})
	if err != nil {
		t.Fatalf("submit q2: %v", err)
	}
	if r2.IsCorrect || r2.PointsEarned != 0 {
		t.Fatalf("q2 verdict = %+v", r2)
	}
	r3, err := f.svc.SubmitAnswer(ctx, studentActor(), Submission{QuestionID: f.q3, TextAnswer: "3.0"})
	if err != nil {
		t.Fatalf("submit q3: %v", err)
	}
	if !r3.IsCorrect {
		t.Fatalf("q3 verdict = %+v", r3)
	}

	got := f.store.attempts[a.ID].Score
	if got != 2 {
		t.Fatalf("score = %v, want 2", got)
	}
}

func TestDuplicateAnswerIsRejected(t *testing.T) {
	f := newFixture(t)
	a := f.start(t, studentActor())
	ctx := context.Background()

	if _, err := f.svc.SubmitAnswer(ctx, studentActor(), Submission{QuestionID: f.q1, SelectedOptions: []string{f.optB}}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err := f.svc.SubmitAnswer(ctx, studentActor(), Submission{QuestionID: f.q1, SelectedOptions: []string{f.optA}})
	if !errors.Is(err, ErrAlreadyAnswered) {
		t.Fatalf("err = %v, want already answered", err)
	}
	if got := f.store.attempts[a.ID].Score; got != 1 {
		t.Fatalf("score after duplicate = %v, want 1", got)
	}
}

func TestInvalidOptionRejectedBeforeScoring(t *testing.T) {
	f := newFixture(t)
	a := f.start(t, studentActor())

	_, err := f.svc.SubmitAnswer(context.Background(), studentActor(),
		Submission{QuestionID: f.q1, SelectedOptions: []string{f.optB, "bogus"}})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	if len(f.store.answers[a.ID]) != 0 {
		t.Fatalf("answer was recorded despite invalid option")
	}
}

// ---- completion ----

func TestCompletionIsTerminal(t *testing.T) {
	f := newFixture(t)
	a := f.start(t, studentActor())
	ctx := context.Background()

	if _, err := f.svc.SubmitAnswer(ctx, studentActor(), Submission{QuestionID: f.q1, SelectedOptions: []string{f.optB}}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	f.clock.Advance(90 * time.Second)
	res, err := f.svc.Complete(ctx, studentActor(), a.ID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.Score != 1 || res.MaxScore != 3 {
		t.Fatalf("result = %+v", res)
	}
	if res.TimeSpent != 90 {
		t.Fatalf("time spent = %d, want 90", res.TimeSpent)
	}

	if _, err := f.svc.Complete(ctx, studentActor(), a.ID); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("second complete: %v, want already completed", err)
	}
	if _, err := f.svc.SubmitAnswer(ctx, studentActor(), Submission{QuestionID: f.q2, TextAnswer: "Paris"}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("submit after complete: %v, want invalid state", err)
	}
}

// ---- batch ----

func TestBatchSubmitAllCorrectAndComplete(t *testing.T) {
	f := newFixture(t)
	a := f.start(t, studentActor())
	five := 5

	res, err := f.svc.SubmitBatch(context.Background(), studentActor(), a.ID, []Submission{
		{QuestionID: f.q1, SelectedOptions: []string{f.optB}, TimeSpentSec: &five},
		{QuestionID: f.q2, TextAnswer: "Paris "},
		{QuestionID: f.q3, TextAnswer: "3.0"},
	}, true)
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}
	if res.Submitted != 3 || res.Skipped != 0 {
		t.Fatalf("submitted/skipped = %d/%d", res.Submitted, res.Skipped)
	}
	if res.Score != 3 || res.MaxScore != 3 || res.Percentage != 100 {
		t.Fatalf("score = %v/%v (%v%%)", res.Score, res.MaxScore, res.Percentage)
	}
	if !res.IsCompleted {
		t.Fatalf("batch did not complete the attempt")
	}
	if !f.store.attempts[a.ID].IsCompleted() {
		t.Fatalf("stored attempt still open")
	}
}

func TestBatchSkipsAnsweredAndForeignQuestions(t *testing.T) {
	f := newFixture(t)
	a := f.start(t, studentActor())
	ctx := context.Background()

	if _, err := f.svc.SubmitAnswer(ctx, studentActor(), Submission{QuestionID: f.q1, SelectedOptions: []string{f.optB}}); err != nil {
		t.Fatalf("seed answer: %v", err)
	}
	res, err := f.svc.SubmitBatch(ctx, studentActor(), a.ID, []Submission{
		{QuestionID: f.q1, SelectedOptions: []string{f.optA}}, // already answered
		{QuestionID: "not-in-quiz", TextAnswer: "x"},
		{QuestionID: f.q2, TextAnswer: "paris"},
	}, false)
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}
	if res.Submitted != 1 || res.Skipped != 2 {
		t.Fatalf("submitted/skipped = %d/%d, want 1/2", res.Submitted, res.Skipped)
	}
	if res.Score != 2 {
		t.Fatalf("score = %v, want 2", res.Score)
	}
	if res.IsCompleted {
		t.Fatalf("batch completed without the flag")
	}
}

// ---- resumption and results ----

func TestCurrentAttemptReportsAnsweredQuestions(t *testing.T) {
	f := newFixture(t)
	f.start(t, studentActor())
	ctx := context.Background()

	if _, err := f.svc.SubmitAnswer(ctx, studentActor(), Submission{QuestionID: f.q2, TextAnswer: "PARIS"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	cur, err := f.svc.CurrentAttempt(ctx, studentActor(), f.quizID)
	if err != nil {
		t.Fatalf("CurrentAttempt: %v", err)
	}
	if !cur.HasAttempt {
		t.Fatalf("no current attempt")
	}
	if len(cur.AnsweredQuestionIDs) != 1 || cur.AnsweredQuestionIDs[0] != f.q2 {
		t.Fatalf("answered ids = %v", cur.AnsweredQuestionIDs)
	}
}

func TestResultsHiddenWhenNotPublished(t *testing.T) {
	f := newFixture(t)
	z := f.catalog.quizzes[f.quizID]
	z.ShowResults = false
	f.catalog.quizzes[f.quizID] = z

	a := f.start(t, studentActor())
	ctx := context.Background()
	if _, err := f.svc.Complete(ctx, studentActor(), a.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if _, err := f.svc.Results(ctx, studentActor(), a.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("student results err = %v, want forbidden", err)
	}
	// the quiz owner still sees everything
	if _, err := f.svc.Results(ctx, teacherActor(), a.ID); err != nil {
		t.Fatalf("teacher results: %v", err)
	}
}

func TestResultsOmitKeysWhenNotAllowed(t *testing.T) {
	f := newFixture(t)
	z := f.catalog.quizzes[f.quizID]
	z.AllowShowAnswers = false
	f.catalog.quizzes[f.quizID] = z

	a := f.start(t, studentActor())
	ctx := context.Background()
	if _, err := f.svc.SubmitAnswer(ctx, studentActor(), Submission{QuestionID: f.q1, SelectedOptions: []string{f.optA}}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.svc.Complete(ctx, studentActor(), a.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	det, err := f.svc.Results(ctx, studentActor(), a.ID)
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(det.Questions) != 3 {
		t.Fatalf("%d question results, want 3", len(det.Questions))
	}
	for _, qr := range det.Questions {
		if len(qr.CorrectOptions) != 0 || qr.CorrectTextAnswer != "" {
			t.Fatalf("grading key leaked to student: %+v", qr)
		}
	}
}

func TestResultsIncludeUnansweredQuestions(t *testing.T) {
	f := newFixture(t)
	a := f.start(t, studentActor())
	ctx := context.Background()

	if _, err := f.svc.SubmitAnswer(ctx, studentActor(), Submission{QuestionID: f.q1, SelectedOptions: []string{f.optB}}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.svc.Complete(ctx, studentActor(), a.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	det, err := f.svc.Results(ctx, studentActor(), a.ID)
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(det.Questions) != 3 {
		t.Fatalf("%d question results, want every question", len(det.Questions))
	}
	answered := 0
	for _, qr := range det.Questions {
		if qr.Answered {
			answered++
			continue
		}
		if qr.IsCorrect || qr.PointsEarned != 0 || qr.TimeSpent != nil {
			t.Fatalf("unanswered row carries a verdict: %+v", qr)
		}
		if qr.MaxPoints == 0 {
			t.Fatalf("unanswered row lost its max points")
		}
	}
	if answered != 1 {
		t.Fatalf("%d answered rows, want 1", answered)
	}
}

// ---- teacher views ----

func TestStudentStatuses(t *testing.T) {
	f := newFixture(t)
	f.addStudent("stu-2", "cody")
	ctx := context.Background()

	a := f.start(t, studentActor())
	if _, err := f.svc.SubmitAnswer(ctx, studentActor(), Submission{QuestionID: f.q1, SelectedOptions: []string{f.optB}}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	rows, err := f.svc.StudentStatuses(ctx, teacherActor(), f.quizID)
	if err != nil {
		t.Fatalf("StudentStatuses: %v", err)
	}
	byID := map[string]MemberStatus{}
	for _, r := range rows {
		byID[r.StudentID] = r
	}
	if len(byID) != 2 {
		t.Fatalf("%d rows, want 2", len(byID))
	}
	if got := byID[student]; got.Status != StatusInProgress || got.AnsweredCount != 1 || got.TotalQuestions != 3 {
		t.Fatalf("stu-1 row = %+v", got)
	}
	if got := byID["stu-2"]; got.Status != StatusNotOpened || got.AvgTimePerAnswer != nil {
		t.Fatalf("stu-2 row = %+v", got)
	}

	if _, err := f.svc.Complete(ctx, studentActor(), a.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	rows, err = f.svc.StudentStatuses(ctx, teacherActor(), f.quizID)
	if err != nil {
		t.Fatalf("StudentStatuses after complete: %v", err)
	}
	for _, r := range rows {
		if r.StudentID == student && r.Status != StatusCompleted {
			t.Fatalf("status after complete = %s", r.Status)
		}
	}
}

func TestStudentStatusesExpiredOverlay(t *testing.T) {
	f := newFixture(t)
	f.addStudent("stu-2", "cody")
	ctx := context.Background()

	// stu-1 opens but never answers; stu-2 answers one question
	f.start(t, studentActor())
	other := Actor{ID: "stu-2", Role: "student"}
	f.start(t, other)
	if _, err := f.svc.SubmitAnswer(ctx, other, Submission{QuestionID: f.q1, SelectedOptions: []string{f.optB}}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	past := f.clock.Now().Add(-time.Minute)
	z := f.catalog.quizzes[f.quizID]
	z.AvailableUntil = &past
	f.catalog.quizzes[f.quizID] = z

	rows, err := f.svc.StudentStatuses(ctx, teacherActor(), f.quizID)
	if err != nil {
		t.Fatalf("StudentStatuses: %v", err)
	}
	for _, r := range rows {
		switch r.StudentID {
		case student:
			if r.Status != StatusExpired {
				t.Fatalf("unanswered attempt on expired quiz = %s, want expired", r.Status)
			}
		case "stu-2":
			if r.Status != StatusInProgress {
				t.Fatalf("answered attempt on expired quiz = %s, want in_progress", r.Status)
			}
		}
	}
}

func TestStudentDetailFlagsUngradedTextAnswer(t *testing.T) {
	f := newFixture(t)
	a := f.start(t, studentActor())
	ctx := context.Background()

	// wrong answer against a keyed text question still awaits a manual verdict
	if _, err := f.svc.SubmitAnswer(ctx, studentActor(), Submission{QuestionID: f.q2, TextAnswer: "Lyon"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	det, err := f.svc.StudentDetail(ctx, teacherActor(), f.quizID, student)
	if err != nil {
		t.Fatalf("StudentDetail: %v", err)
	}
	if !det.NeedsManual {
		t.Fatalf("keyed text answer not flagged for manual grading")
	}
	for _, qr := range det.Questions {
		if qr.QuestionID == f.q2 && !qr.NeedsManual {
			t.Fatalf("text row not flagged: %+v", qr)
		}
	}

	if _, err := f.svc.GradeAnswer(ctx, teacherActor(), a.ID, f.q2, true); err != nil {
		t.Fatalf("GradeAnswer: %v", err)
	}
	det, err = f.svc.StudentDetail(ctx, teacherActor(), f.quizID, student)
	if err != nil {
		t.Fatalf("StudentDetail after grade: %v", err)
	}
	if det.NeedsManual {
		t.Fatalf("flag survived a manual verdict")
	}
}

func TestStudentStatusesForbiddenForOtherTeacher(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.StudentStatuses(context.Background(), Actor{ID: "tea-2", Role: "teacher"}, f.quizID)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want forbidden", err)
	}
}

func TestGradeAnswerAppliesScoreDelta(t *testing.T) {
	f := newFixture(t)
	// strip the key from the text question so it needs a manual verdict
	qs := f.catalog.questions[f.quizID]
	for i := range qs {
		if qs[i].ID == f.q2 {
			qs[i].CorrectTextAnswer = ""
		}
	}
	a := f.start(t, studentActor())
	ctx := context.Background()

	r, err := f.svc.SubmitAnswer(ctx, studentActor(), Submission{QuestionID: f.q2, TextAnswer: "a free-form essay"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if r.IsCorrect || !r.NeedsManual {
		t.Fatalf("verdict = %+v, want incorrect + needs manual", r)
	}

	g, err := f.svc.GradeAnswer(ctx, teacherActor(), a.ID, f.q2, true)
	if err != nil {
		t.Fatalf("GradeAnswer: %v", err)
	}
	if g.PointsEarned != 1 || g.AttemptScore != 1 {
		t.Fatalf("grade result = %+v", g)
	}

	// flipping back removes the points again
	g, err = f.svc.GradeAnswer(ctx, teacherActor(), a.ID, f.q2, false)
	if err != nil {
		t.Fatalf("GradeAnswer revert: %v", err)
	}
	if g.AttemptScore != 0 {
		t.Fatalf("score after revert = %v, want 0", g.AttemptScore)
	}
}

func TestReissueWipesAttemptsAndMovesDeadline(t *testing.T) {
	f := newFixture(t)
	a := f.start(t, studentActor())
	ctx := context.Background()
	if _, err := f.svc.Complete(ctx, studentActor(), a.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	until := f.clock.Now().Add(time.Hour)
	n, err := f.svc.Reissue(ctx, teacherActor(), f.quizID, []string{student}, &until)
	if err != nil {
		t.Fatalf("Reissue: %v", err)
	}
	if n != 1 {
		t.Fatalf("reissued %d, want 1", n)
	}
	if len(f.store.attempts) != 0 {
		t.Fatalf("attempts survived reissue")
	}
	z := f.catalog.quizzes[f.quizID]
	if z.AvailableUntil == nil || !z.AvailableUntil.Equal(until) {
		t.Fatalf("deadline not moved: %v", z.AvailableUntil)
	}

	// the student can start over
	if _, err := f.svc.Start(ctx, f.quizID, studentActor()); err != nil {
		t.Fatalf("restart after reissue: %v", err)
	}
}

func TestCloseEarlyExpiresQuiz(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.svc.CloseEarly(ctx, teacherActor(), f.quizID); err != nil {
		t.Fatalf("CloseEarly: %v", err)
	}
	f.clock.Advance(time.Second)
	_, err := f.svc.Start(ctx, f.quizID, studentActor())
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("start after close: %v, want invalid state", err)
	}
}

// ---- anti-cheat events ----

func TestEventsDiscardedWhenModeOff(t *testing.T) {
	f := newFixture(t)
	z := f.catalog.quizzes[f.quizID]
	z.AntiCheatingMode = false
	f.catalog.quizzes[f.quizID] = z

	a := f.start(t, studentActor())
	ctx := context.Background()
	if err := f.svc.RecordEvent(ctx, studentActor(), a.ID, "tab_switch", ""); err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}
	if len(f.store.events) != 0 {
		t.Fatalf("event persisted with mode off")
	}
}

func TestAntiCheatLogCollectsEventsAndGroups(t *testing.T) {
	f := newFixture(t)
	f.addStudent("stu-2", "cody")
	f.addStudent("stu-3", "dana")
	ctx := context.Background()

	same := []Submission{
		{QuestionID: f.q1, SelectedOptions: []string{f.optB}},
		{QuestionID: f.q2, TextAnswer: "Paris"},
		{QuestionID: f.q3, TextAnswer: "3"},
	}
	different := []Submission{
		{QuestionID: f.q1, SelectedOptions: []string{f.optA}},
		{QuestionID: f.q2, TextAnswer: "Lyon"},
		{QuestionID: f.q3, TextAnswer: "4"},
	}
	for actor, subs := range map[Actor][]Submission{
		studentActor():                    same,
		{ID: "stu-2", Role: "student"}:    same,
		{ID: "stu-3", Role: "student"}:    different,
	} {
		a := f.start(t, actor)
		if _, err := f.svc.SubmitBatch(ctx, actor, a.ID, subs, true); err != nil {
			t.Fatalf("batch for %s: %v", actor.ID, err)
		}
		if err := f.svc.RecordEvent(ctx, actor, a.ID, "tab_switch", `{"count":1}`); err != nil {
			t.Fatalf("event for %s: %v", actor.ID, err)
		}
	}

	report, err := f.svc.AntiCheatLog(ctx, teacherActor(), f.quizID)
	if err != nil {
		t.Fatalf("AntiCheatLog: %v", err)
	}
	if !report.Enabled {
		t.Fatalf("report disabled")
	}
	if len(report.Events) != 3 {
		t.Fatalf("%d events, want 3", len(report.Events))
	}
	if len(report.IdenticalGroups) != 1 {
		t.Fatalf("%d groups, want 1", len(report.IdenticalGroups))
	}
	if len(report.IdenticalGroups[0].Members) != 2 {
		t.Fatalf("group size = %d, want 2", len(report.IdenticalGroups[0].Members))
	}
	for _, m := range report.IdenticalGroups[0].Members {
		if m.StudentID == "stu-3" {
			t.Fatalf("differing attempt grouped")
		}
	}
}
