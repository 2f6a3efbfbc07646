package attempt

// MemberStatus is one row of a teacher's live progress view: where every
// student in the quiz's group currently stands.
type MemberStatus struct {
	StudentID        string   `json:"student_id"`
	StudentName      string   `json:"student_name"`
	Status           Status   `json:"status"`
	AttemptID        string   `json:"attempt_id,omitempty"`
	Score            *float64 `json:"score,omitempty"`
	MaxScore         *float64 `json:"max_score,omitempty"`
	AnsweredCount    int      `json:"answered_count"`
	TotalQuestions   int      `json:"total_questions"`
	AvgTimePerAnswer *float64 `json:"avg_time_per_answer,omitempty"` // seconds; nil with no answers
}

// DeriveStatus classifies one student's standing. a is nil when the
// student never started; quizExpired reflects the quiz deadline at the
// time of the call. The expired overlay covers students who never got
// past opening the quiz: once answers exist the attempt stays
// in_progress even after the deadline.
func DeriveStatus(a *Attempt, answeredCount int, quizExpired bool) Status {
	switch {
	case a == nil && quizExpired:
		return StatusExpired
	case a == nil:
		return StatusNotOpened
	case a.IsCompleted():
		return StatusCompleted
	case answeredCount > 0:
		return StatusInProgress
	case quizExpired:
		return StatusExpired
	default:
		return StatusOpened
	}
}

// avgTime is sum(time_spent)/answered_count; an answer with no recorded
// duration counts as zero. Nil with nothing answered.
func avgTime(answers []Answer) *float64 {
	if len(answers) == 0 {
		return nil
	}
	var sum float64
	for _, a := range answers {
		if a.TimeSpent != nil {
			sum += float64(*a.TimeSpent)
		}
	}
	v := sum / float64(len(answers))
	return &v
}
