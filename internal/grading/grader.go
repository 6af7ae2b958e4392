// Package grading scores a submitted answer record against a question set.
package grading

import (
	"math"
	"slices"

	"github.com/pavelanni/docexam/internal/model"
)

// IsCorrect reports whether the selected indices equal the question's
// correct set. Order is irrelevant; an empty selection is never correct
// for a well-formed question.
func IsCorrect(q model.Question, selected []int) bool {
	return slices.Equal(indexSet(selected), indexSet(q.CorrectAnswerIndices))
}

// indexSet returns the distinct indices in ascending order.
func indexSet(indices []int) []int {
	out := slices.Clone(indices)
	slices.Sort(out)
	return slices.Compact(out)
}

// Grade computes the exam result. It does not modify its inputs and the
// returned result holds its own copy of the answers.
func Grade(questions []model.Question, answers model.Answers) model.ExamResult {
	correct := 0
	for _, q := range questions {
		if IsCorrect(q, answers[q.ID]) {
			correct++
		}
	}
	total := len(questions)
	return model.ExamResult{
		Score:          Score(correct, total),
		TotalQuestions: total,
		CorrectCount:   correct,
		WrongCount:     total - correct,
		UserAnswers:    answers.Clone(),
	}
}

// Score returns round(correct/total*100). An empty exam scores 0.
func Score(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(correct) / float64(total) * 100))
}

// Breakdown reports per-question correctness, keyed by question id.
func Breakdown(questions []model.Question, answers model.Answers) map[int]bool {
	out := make(map[int]bool, len(questions))
	for _, q := range questions {
		out[q.ID] = IsCorrect(q, answers[q.ID])
	}
	return out
}
