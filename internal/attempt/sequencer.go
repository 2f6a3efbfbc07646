package attempt

import (
	"math/rand"

	"github.com/quizroom/quizroom/internal/quiz"
)

// ShuffledOrder builds the per-attempt question permutation. The
// permutation is frozen into the attempt row at start and never
// reshuffled afterwards.
func ShuffledOrder(rng *rand.Rand, questions []quiz.Question) []string {
	ids := make([]string, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	return ids
}

// OrderQuestions arranges questions to match the attempt's stored
// permutation. Questions deleted since the attempt started are dropped;
// questions added since are appended in authored order.
func OrderQuestions(order []string, questions []quiz.Question) []quiz.Question {
	byID := make(map[string]quiz.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	out := make([]quiz.Question, 0, len(questions))
	for _, id := range order {
		if q, ok := byID[id]; ok {
			out = append(out, q)
			delete(byID, id)
		}
	}
	for _, q := range questions {
		if _, ok := byID[q.ID]; ok {
			out = append(out, q)
		}
	}
	return out
}
