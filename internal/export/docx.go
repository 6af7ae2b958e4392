package export

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fumiama/go-docx"

	"github.com/pavelanni/docexam/internal/model"
)

// Font sizes in half-points.
const (
	sizeTitle    = 32
	sizeQuestion = 24
	sizeOption   = 22
)

// WriteDocx writes the question set as a Word document: title and
// instructions, numbered questions with lettered options, then the answer
// key with explanations on a new page.
func WriteDocx(w io.Writer, questions []model.Question, l Labels) error {
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	doc := docx.New().WithDefaultTheme()
	addPara(doc, para{text: l.Title, bold: true, size: sizeTitle, center: true})
	if l.Source != "" {
		addPara(doc, para{text: l.Source, italic: true, center: true, before: 200})
	}
	addPara(doc, para{text: l.Instructions, before: 400})

	for i, q := range questions {
		tag := l.Single
		if q.IsMultiple() {
			tag = l.Multiple
		}
		addPara(doc, para{
			text:   fmt.Sprintf("%d. [%s] %s", i+1, tag, q.Text),
			bold:   true,
			size:   sizeQuestion,
			before: 400,
		})
		for j, opt := range q.Options {
			addPara(doc, para{text: fmt.Sprintf("   %s. %s", Letter(j), opt), size: sizeOption, before: 100})
		}
	}

	addPara(doc, para{text: l.AnswerKey, bold: true, size: sizeTitle, center: true, pageBreak: true})
	for i, q := range questions {
		addPara(doc, para{
			text:   fmt.Sprintf("%d. %s: %s", i+1, l.CorrectAnswer, strings.Join(Letters(q.CorrectAnswerIndices), ", ")),
			bold:   true,
			before: 300,
		})
		addPara(doc, para{text: l.Explanation + ": " + q.Explanation, italic: true})
	}
	doc.WithA4Page()

	// Render fully before touching w so a failure leaves it untouched.
	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return fmt.Errorf("render docx: %w", err)
	}
	if _, err := buf.WriteTo(w); err != nil {
		return fmt.Errorf("write docx: %w", err)
	}
	return nil
}

type para struct {
	text      string
	bold      bool
	italic    bool
	size      int
	center    bool
	pageBreak bool
	before    int
}

func addPara(doc *docx.Docx, p para) {
	dp := doc.AddParagraph()
	if p.center {
		dp.Justification("center")
	}
	if p.before > 0 {
		if dp.Properties == nil {
			dp.Properties = &docx.ParagraphProperties{}
		}
		dp.Properties.Spacing = &docx.Spacing{Before: p.before}
	}
	if p.pageBreak {
		dp.AddPageBreaks()
	}

	run := dp.AddText(p.text)
	for _, c := range run.Children {
		if t, ok := c.(*docx.Text); ok {
			t.XMLSpace = "preserve"
		}
	}
	if p.bold {
		run.Bold()
	}
	if p.italic {
		run.Italic()
	}
	if p.size > 0 {
		run.Size(strconv.Itoa(p.size))
	}
}
