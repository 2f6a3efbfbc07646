package attempt

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/quizroom/quizroom/internal/quiz"
)

// Evaluation is the grading verdict for one submission. Full credit or
// nothing; no partial scoring.
type Evaluation struct {
	IsCorrect    bool
	PointsEarned float64
	NeedsManual  bool // text question with no stored key
}

// Evaluate grades a submission against its question. The only error it
// can return is ErrInvalidOption; unparseable or wrong answers are
// simply incorrect.
func Evaluate(q quiz.Question, sub Submission) (Evaluation, error) {
	var correct bool
	var needsManual bool

	switch q.InputType {
	case quiz.InputSelect:
		for _, id := range sub.SelectedOptions {
			if !q.HasOption(id) {
				return Evaluation{}, ErrInvalidOption
			}
		}
		correct = sameIDSet(sub.SelectedOptions, q.CorrectOptionIDs())
	case quiz.InputText:
		if q.CorrectTextAnswer == "" {
			needsManual = true
		} else {
			correct = normalizeText(sub.TextAnswer) == normalizeText(q.CorrectTextAnswer)
		}
	case quiz.InputNumber:
		got, errG := strconv.ParseFloat(strings.TrimSpace(sub.TextAnswer), 64)
		want, errW := strconv.ParseFloat(strings.TrimSpace(q.CorrectTextAnswer), 64)
		correct = errG == nil && errW == nil && got == want
	}

	ev := Evaluation{IsCorrect: correct, NeedsManual: needsManual}
	if correct {
		ev.PointsEarned = q.Points
	}
	return ev, nil
}

// normalizeText folds a free-text answer for comparison: trim, Unicode
// NFKC, lowercase, and the Cyrillic yo collapsed to ye.
func normalizeText(s string) string {
	s = strings.TrimSpace(s)
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "ё", "е")
	return s
}

// sameIDSet compares two id slices as sets. Empty equals empty.
func sameIDSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, id := range a {
		seen[id] = struct{}{}
	}
	if len(seen) != len(b) {
		return false
	}
	for _, id := range b {
		if _, ok := seen[id]; !ok {
			return false
		}
	}
	return true
}
