// Package export renders question sets with their answer key as DOCX or JSON.
package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/pavelanni/docexam/internal/llm"
	"github.com/pavelanni/docexam/internal/model"
)

// ErrNoQuestions is returned when there is nothing to export.
var ErrNoQuestions = errors.New("no questions to export")

// Letter returns the option label for a 0-based index: A, B, C...
func Letter(i int) string {
	return string(rune('A' + i))
}

// Letters converts option indices to sorted labels.
func Letters(indices []int) []string {
	sorted := slices.Sorted(slices.Values(indices))
	out := make([]string, len(sorted))
	for i, idx := range sorted {
		out[i] = Letter(idx)
	}
	return out
}

// Build assembles the export document for a question set.
func Build(questions []model.Question, title, lang, source string, now time.Time) model.ExamExport {
	ex := model.ExamExport{
		Title:        title,
		Language:     lang,
		Source:       source,
		GeneratedAt:  now.UTC(),
		NumQuestions: len(questions),
		Questions:    make([]model.ExportedQuestion, len(questions)),
	}
	for i, q := range questions {
		ex.Questions[i] = model.ExportedQuestion{
			Number:         i + 1,
			Type:           q.Type,
			Text:           q.Text,
			Options:        slices.Clone(q.Options),
			CorrectLetters: Letters(q.CorrectAnswerIndices),
			Explanation:    q.Explanation,
		}
	}
	return ex
}

// WriteJSON writes ex as indented JSON.
func WriteJSON(w io.Writer, ex model.ExamExport) error {
	if len(ex.Questions) == 0 {
		return ErrNoQuestions
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ex); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	return nil
}

// ReadQuestions decodes a question set written by WriteJSON, or a bare
// JSON array of questions. Every question is validated.
func ReadQuestions(r io.Reader) ([]model.Question, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}
	data = bytes.TrimSpace(data)

	var qs []model.Question
	if bytes.HasPrefix(data, []byte("[")) {
		if err := json.Unmarshal(data, &qs); err != nil {
			return nil, fmt.Errorf("decode questions: %w", err)
		}
	} else {
		var ex model.ExamExport
		if err := json.Unmarshal(data, &ex); err != nil {
			return nil, fmt.Errorf("decode export: %w", err)
		}
		if qs, err = fromExport(ex); err != nil {
			return nil, err
		}
	}

	if len(qs) == 0 {
		return nil, ErrNoQuestions
	}
	for _, q := range qs {
		if err := llm.Validate(q); err != nil {
			return nil, err
		}
	}
	return qs, nil
}

func fromExport(ex model.ExamExport) ([]model.Question, error) {
	qs := make([]model.Question, len(ex.Questions))
	for i, eq := range ex.Questions {
		indices := make([]int, len(eq.CorrectLetters))
		for j, l := range eq.CorrectLetters {
			if len(l) != 1 || l[0] < 'A' || int(l[0]-'A') >= len(eq.Options) {
				return nil, fmt.Errorf("question %d: bad answer letter %q", eq.Number, l)
			}
			indices[j] = int(l[0] - 'A')
		}
		qs[i] = model.Question{
			ID:                   i,
			Type:                 eq.Type,
			Text:                 eq.Text,
			Options:              eq.Options,
			CorrectAnswerIndices: indices,
			Explanation:          eq.Explanation,
		}
	}
	return qs, nil
}
