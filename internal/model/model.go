package model

import (
	"context"
	"slices"
	"time"
)

// QuestionType determines selection and grading semantics of a question.
type QuestionType string

const (
	// QuestionSingle accepts exactly one option.
	QuestionSingle QuestionType = "single"
	// QuestionMultiple accepts one or more options.
	QuestionMultiple QuestionType = "multiple"
)

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	return t == QuestionSingle || t == QuestionMultiple
}

// Question is a generated exam question. Options are referenced by index.
type Question struct {
	ID                   int          `json:"id"`
	Type                 QuestionType `json:"type"`
	Text                 string       `json:"text"`
	Options              []string     `json:"options"`
	CorrectAnswerIndices []int        `json:"correctAnswerIndices"`
	Explanation          string       `json:"explanation"`
}

// IsMultiple reports whether the question is a multiple-choice question.
func (q Question) IsMultiple() bool {
	return q.Type == QuestionMultiple
}

// Answers maps a question id to the selected option indices, kept in
// ascending order. A missing key means the question was never answered.
type Answers map[int][]int

// Clone returns a deep copy of the answer record.
func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for id, sel := range a {
		out[id] = slices.Clone(sel)
	}
	return out
}

// ExamResult is the graded outcome of a submitted exam.
type ExamResult struct {
	Score          int     `json:"score"`
	TotalQuestions int     `json:"totalQuestions"`
	CorrectCount   int     `json:"correctCount"`
	WrongCount     int     `json:"wrongCount"`
	UserAnswers    Answers `json:"userAnswers"`
}

// State is the lifecycle state of an exam session.
type State string

const (
	StateIdle       State = "IDLE"
	StateProcessing State = "PROCESSING"
	StateExam       State = "EXAM"
	StateResult     State = "RESULT"
)

// Document is an uploaded study file.
type Document struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExamConfig holds runtime exam parameters set via CLI flags.
type ExamConfig struct {
	Language         string        // language of generated questions and messages
	NumQuestions     int           // upper bound on generated questions
	MaxChars         int           // input text is truncated to this many characters
	MinChars         int           // shorter documents are rejected before generation
	Retries          int           // generation attempts per request
	Backoff          time.Duration // wait after the first failed attempt, doubled each time
	AutoAdvanceDelay time.Duration // delay before moving on after a single-choice selection
}

// DefaultExamConfig returns the stock exam parameters.
func DefaultExamConfig() ExamConfig {
	return ExamConfig{
		Language:         "en",
		NumQuestions:     50,
		MaxChars:         30000,
		MinChars:         50,
		Retries:          3,
		Backoff:          time.Second,
		AutoAdvanceDelay: 250 * time.Millisecond,
	}
}

type sessionIDCtxKey struct{}

// ContextWithSessionID stores the exam session id in context.
func ContextWithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDCtxKey{}, id)
}

// SessionIDFromContext retrieves the exam session id from context (empty string if not set).
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDCtxKey{}).(string)
	return id
}
