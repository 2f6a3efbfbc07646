package attempt

import (
	"sort"
	"strings"
	"time"

	"github.com/quizroom/quizroom/internal/quiz"
)

// unansweredMark stands in for a question the attempt never answered,
// so two attempts that skipped the same questions still compare equal.
const unansweredMark = "_"

// Signature folds an attempt's answers into one canonical string.
// Questions are walked in id order; option ids are sorted; free text is
// trimmed and lowercased. Two byte-identical signatures mean the two
// attempts answered every question the same way.
func Signature(questions []quiz.Question, answers []Answer) string {
	byQuestion := make(map[string]Answer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}
	qids := make([]string, len(questions))
	types := make(map[string]quiz.InputType, len(questions))
	for i, q := range questions {
		qids[i] = q.ID
		types[q.ID] = q.InputType
	}
	sort.Strings(qids)

	var b strings.Builder
	for _, qid := range qids {
		b.WriteString(qid)
		b.WriteByte('=')
		a, ok := byQuestion[qid]
		if !ok {
			b.WriteString(unansweredMark)
			b.WriteByte(';')
			continue
		}
		if types[qid] == quiz.InputSelect {
			opts := append([]string(nil), a.SelectedOptions...)
			sort.Strings(opts)
			b.WriteString(strings.Join(opts, ","))
		} else {
			t := strings.ToLower(strings.TrimSpace(a.TextAnswer))
			if t == "" {
				t = unansweredMark
			}
			b.WriteString(t)
		}
		b.WriteByte(';')
	}
	return b.String()
}

// IdenticalGroup is a set of completed attempts with matching answer
// signatures. Only groups of two or more are reported, and only as a
// heuristic; matching answers are not proof of collusion.
type IdenticalGroup struct {
	Members []GroupMember `json:"members"`
}

type GroupMember struct {
	AttemptID   string     `json:"attempt_id"`
	StudentID   string     `json:"student_id"`
	StudentName string     `json:"student_name"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// FindIdenticalGroups compares completed attempts by signature.
// nameOf resolves a student id to a display name.
func FindIdenticalGroups(questions []quiz.Question, attempts []Attempt, answersByAttempt map[string][]Answer, nameOf func(studentID string) string) []IdenticalGroup {
	bySig := map[string][]Attempt{}
	sigs := []string{}
	for _, a := range attempts {
		if !a.IsCompleted() {
			continue
		}
		sig := Signature(questions, answersByAttempt[a.ID])
		if _, ok := bySig[sig]; !ok {
			sigs = append(sigs, sig)
		}
		bySig[sig] = append(bySig[sig], a)
	}

	out := []IdenticalGroup{}
	for _, sig := range sigs {
		members := bySig[sig]
		if len(members) < 2 {
			continue
		}
		g := IdenticalGroup{}
		for _, a := range members {
			g.Members = append(g.Members, GroupMember{
				AttemptID:   a.ID,
				StudentID:   a.StudentID,
				StudentName: nameOf(a.StudentID),
				CompletedAt: a.CompletedAt,
			})
		}
		out = append(out, g)
	}
	return out
}
