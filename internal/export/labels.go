package export

import (
	"context"

	"github.com/pavelanni/docexam/internal/i18n"
)

// Labels holds the fixed text of an exported document.
type Labels struct {
	Title         string
	Source        string
	Instructions  string
	Single        string
	Multiple      string
	AnswerKey     string
	CorrectAnswer string
	Explanation   string
}

// DefaultLabels returns English labels.
func DefaultLabels() Labels {
	return Labels{
		Title:         "Exam questions",
		Instructions:  "Choose the correct answer for each question. Single choice questions have exactly one correct option; multiple choice questions may have several.",
		Single:        "Single choice",
		Multiple:      "Multiple choice",
		AnswerKey:     "Answer key",
		CorrectAnswer: "Correct answer",
		Explanation:   "Explanation",
	}
}

// LocalizedLabels translates the labels with the localizer in ctx. source
// is the uploaded filename and may be empty.
func LocalizedLabels(ctx context.Context, source string) Labels {
	l := Labels{
		Title:         i18n.T(ctx, "ExportTitle"),
		Instructions:  i18n.T(ctx, "ExportInstructions"),
		Single:        i18n.T(ctx, "ExportSingle"),
		Multiple:      i18n.T(ctx, "ExportMultiple"),
		AnswerKey:     i18n.T(ctx, "ExportAnswerKey"),
		CorrectAnswer: i18n.T(ctx, "ExportCorrectAnswer"),
		Explanation:   i18n.T(ctx, "ExportExplanation"),
	}
	if source != "" {
		l.Source = i18n.Td(ctx, "ExportSource", map[string]any{"Source": source})
	}
	return l
}
