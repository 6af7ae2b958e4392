package model

import "time"

// ExamExport is the top-level JSON structure for exporting a question set.
// It always carries the full answer key and never the user's own answers.
type ExamExport struct {
	Title        string             `json:"title"`
	Language     string             `json:"language"`
	Source       string             `json:"source,omitempty"`
	GeneratedAt  time.Time          `json:"generated_at"`
	NumQuestions int                `json:"num_questions"`
	Questions    []ExportedQuestion `json:"questions"`
}

// ExportedQuestion holds one question with its answer key for export.
type ExportedQuestion struct {
	Number         int          `json:"number"`
	Type           QuestionType `json:"type"`
	Text           string       `json:"text"`
	Options        []string     `json:"options"`
	CorrectLetters []string     `json:"correct_letters"`
	Explanation    string       `json:"explanation"`
}
