package grading

import (
	"reflect"
	"testing"

	"github.com/pavelanni/docexam/internal/model"
)

func twoQuestions() []model.Question {
	return []model.Question{
		{
			ID: 0, Type: model.QuestionSingle, Text: "Q0",
			Options:              []string{"a", "b", "c", "d"},
			CorrectAnswerIndices: []int{1},
			Explanation:          "because b",
		},
		{
			ID: 1, Type: model.QuestionMultiple, Text: "Q1",
			Options:              []string{"a", "b", "c", "d"},
			CorrectAnswerIndices: []int{0, 2},
			Explanation:          "a and c",
		},
	}
}

func TestGrade(t *testing.T) {
	tests := []struct {
		name        string
		answers     model.Answers
		wantCorrect int
		wantWrong   int
		wantScore   int
	}{
		{"all correct, unordered multi", model.Answers{0: {1}, 1: {2, 0}}, 2, 0, 100},
		{"all wrong", model.Answers{0: {0}, 1: {0}}, 0, 2, 0},
		{"half", model.Answers{0: {1}, 1: {0}}, 1, 1, 50},
		{"unanswered", model.Answers{}, 0, 2, 0},
		{"empty selection key", model.Answers{0: {}, 1: {0, 2}}, 1, 1, 50},
		{"superset is wrong", model.Answers{0: {1}, 1: {0, 1, 2}}, 1, 1, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Grade(twoQuestions(), tt.answers)
			if res.CorrectCount != tt.wantCorrect {
				t.Errorf("CorrectCount = %d, want %d", res.CorrectCount, tt.wantCorrect)
			}
			if res.WrongCount != tt.wantWrong {
				t.Errorf("WrongCount = %d, want %d", res.WrongCount, tt.wantWrong)
			}
			if res.Score != tt.wantScore {
				t.Errorf("Score = %d, want %d", res.Score, tt.wantScore)
			}
			if res.TotalQuestions != 2 {
				t.Errorf("TotalQuestions = %d, want 2", res.TotalQuestions)
			}
		})
	}
}

func TestGradeIsPure(t *testing.T) {
	qs := twoQuestions()
	answers := model.Answers{0: {1}, 1: {2, 0}}

	first := Grade(qs, answers)
	second := Grade(qs, answers)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("grading twice differs: %+v vs %+v", first, second)
	}
	if !reflect.DeepEqual(answers, model.Answers{0: {1}, 1: {2, 0}}) {
		t.Errorf("answers mutated: %v", answers)
	}

	// The snapshot must not alias the live answer record.
	answers[0][0] = 3
	if first.UserAnswers[0][0] != 1 {
		t.Errorf("result snapshot aliases caller's answers")
	}
}

func TestIsCorrectOrderIndependent(t *testing.T) {
	q := twoQuestions()[1]
	if IsCorrect(q, []int{0, 2}) != IsCorrect(q, []int{2, 0}) {
		t.Error("verdict depends on selection order")
	}
	if IsCorrect(q, nil) {
		t.Error("empty selection should be incorrect")
	}
}

func TestIsCorrectDuplicates(t *testing.T) {
	q := twoQuestions()[1]
	tests := []struct {
		name     string
		selected []int
		want     bool
	}{
		{"repeated wrong set", []int{0, 0}, false},
		{"repeat standing in for a missing index", []int{2, 2}, false},
		{"repeats of the full set", []int{2, 0, 2}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCorrect(q, tt.selected); got != tt.want {
				t.Errorf("IsCorrect(%v) = %v, want %v", tt.selected, got, tt.want)
			}
		})
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		correct, total, want int
	}{
		{0, 0, 0},
		{1, 3, 33},
		{2, 3, 67},
		{1, 8, 13},
		{50, 50, 100},
	}
	for _, tt := range tests {
		if got := Score(tt.correct, tt.total); got != tt.want {
			t.Errorf("Score(%d, %d) = %d, want %d", tt.correct, tt.total, got, tt.want)
		}
	}
}

func TestBreakdown(t *testing.T) {
	got := Breakdown(twoQuestions(), model.Answers{0: {1}})
	want := map[int]bool{0: true, 1: false}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Breakdown = %v, want %v", got, want)
	}
}
