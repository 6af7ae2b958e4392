package export

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/pavelanni/docexam/internal/extract"
	"github.com/pavelanni/docexam/internal/i18n"
	"github.com/pavelanni/docexam/internal/llm"
	"github.com/pavelanni/docexam/internal/model"
)

func testQuestions() []model.Question {
	return []model.Question{
		{
			ID: 0, Type: model.QuestionSingle, Text: "Which organelle produces ATP?",
			Options:              []string{"Nucleus", "Mitochondrion", "Ribosome", "Golgi <apparatus>"},
			CorrectAnswerIndices: []int{1},
			Explanation:          "Mitochondria run oxidative phosphorylation.",
		},
		{
			ID: 1, Type: model.QuestionMultiple, Text: "Which are nucleotides?",
			Options:              []string{"Adenine", "Glycine", "Cytosine", "Lysine", "Thymine & co"},
			CorrectAnswerIndices: []int{4, 0, 2},
			Explanation:          "A, C and T are bases.",
		},
	}
}

func TestLetters(t *testing.T) {
	if got := Letters([]int{4, 0, 2}); !reflect.DeepEqual(got, []string{"A", "C", "E"}) {
		t.Errorf("Letters = %v", got)
	}
	if got := Letter(3); got != "D" {
		t.Errorf("Letter(3) = %q", got)
	}
}

func TestWriteDocx(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteDocx(&buf, testQuestions(), DefaultLabels()); err != nil {
		t.Fatalf("WriteDocx: %v", err)
	}

	text, err := extract.New().Extract(context.Background(), model.Document{Filename: "exam.docx", Data: buf.Bytes()})
	if err != nil {
		t.Fatalf("extract written docx: %v", err)
	}

	want := []string{
		"Exam questions",
		"1. [Single choice] Which organelle produces ATP?",
		"   B. Mitochondrion",
		"   D. Golgi <apparatus>",
		"2. [Multiple choice] Which are nucleotides?",
		"   E. Thymine & co",
		"Answer key",
		"1. Correct answer: B",
		"2. Correct answer: A, C, E",
		"Explanation: Mitochondria run oxidative phosphorylation.",
	}
	for _, w := range want {
		if !strings.Contains(text, w) {
			t.Errorf("document missing %q", w)
		}
	}
	if strings.Index(text, "Answer key") < strings.Index(text, "Thymine") {
		t.Error("answer key should follow the questions")
	}

	doc := readPart(t, buf.Bytes(), "word/document.xml")
	if strings.Count(doc, `w:type="page"`) != 1 {
		t.Error("expected exactly one page break before the answer key")
	}
	for _, part := range []string{"[Content_Types].xml", "_rels/.rels"} {
		readPart(t, buf.Bytes(), part)
	}
}

func TestWriteDocxLocalized(t *testing.T) {
	if err := i18n.Init("zh"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	l := LocalizedLabels(context.Background(), "讲义.pdf")

	var buf bytes.Buffer
	if err := WriteDocx(&buf, testQuestions(), l); err != nil {
		t.Fatalf("WriteDocx: %v", err)
	}
	doc := readPart(t, buf.Bytes(), "word/document.xml")
	for _, w := range []string{"考试试题", "来源：讲义.pdf", "[单选题]", "[多选题]", "参考答案", "解析: "} {
		if !strings.Contains(doc, w) {
			t.Errorf("document missing %q", w)
		}
	}
}

func TestWriteEmpty(t *testing.T) {
	if err := WriteDocx(io.Discard, nil, DefaultLabels()); !errors.Is(err, ErrNoQuestions) {
		t.Errorf("WriteDocx: expected ErrNoQuestions, got %v", err)
	}
	if err := WriteJSON(io.Discard, model.ExamExport{}); !errors.Is(err, ErrNoQuestions) {
		t.Errorf("WriteJSON: expected ErrNoQuestions, got %v", err)
	}
}

func TestBuild(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.FixedZone("MSK", 3*3600))
	ex := Build(testQuestions(), "Biology", "en", "cells.pdf", now)

	if ex.NumQuestions != 2 || ex.Source != "cells.pdf" || !ex.GeneratedAt.Equal(now) || ex.GeneratedAt.Location() != time.UTC {
		t.Errorf("unexpected header: %+v", ex)
	}
	q := ex.Questions[1]
	if q.Number != 2 || q.Type != model.QuestionMultiple || !reflect.DeepEqual(q.CorrectLetters, []string{"A", "C", "E"}) {
		t.Errorf("unexpected question: %+v", q)
	}
}

func TestJSONReadBack(t *testing.T) {
	var buf bytes.Buffer
	ex := Build(testQuestions(), "Biology", "en", "", time.Now())
	if err := WriteJSON(&buf, ex); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if strings.Contains(buf.String(), "userAnswers") {
		t.Error("export must not carry user answers")
	}

	qs, err := ReadQuestions(&buf)
	if err != nil {
		t.Fatalf("ReadQuestions: %v", err)
	}
	if len(qs) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(qs))
	}
	if !reflect.DeepEqual(qs[1].CorrectAnswerIndices, []int{0, 2, 4}) || qs[1].ID != 1 {
		t.Errorf("unexpected question: %+v", qs[1])
	}
}

func TestReadQuestions(t *testing.T) {
	t.Run("bare array", func(t *testing.T) {
		in := `[{"id":0,"type":"single","text":"T","options":["a","b","c","d"],"correctAnswerIndices":[2],"explanation":"e"}]`
		qs, err := ReadQuestions(strings.NewReader(in))
		if err != nil {
			t.Fatalf("ReadQuestions: %v", err)
		}
		if qs[0].CorrectAnswerIndices[0] != 2 {
			t.Errorf("unexpected question: %+v", qs[0])
		}
	})

	tests := []struct {
		name string
		in   string
	}{
		{"empty array", `[]`},
		{"no questions", `{"title":"x","questions":[]}`},
		{"bad letter", `{"questions":[{"number":1,"type":"single","text":"T","options":["a","b","c","d"],"correct_letters":["F"],"explanation":"e"}]}`},
		{"garbage", `not json`},
		{"negative index", `[{"id":0,"type":"single","text":"T","options":["a","b","c","d"],"correctAnswerIndices":[-1],"explanation":"e"}]`},
		{"index past options", `[{"id":0,"type":"multiple","text":"T","options":["a","b","c","d"],"correctAnswerIndices":[0,7],"explanation":"e"}]`},
		{"three options", `[{"id":0,"type":"single","text":"T","options":["a","b","c"],"correctAnswerIndices":[0],"explanation":"e"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadQuestions(strings.NewReader(tt.in)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func readPart(t *testing.T, data []byte, name string) string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open docx: %v", err)
	}
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", name, err)
		}
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		return string(b)
	}
	t.Fatalf("docx has no %s", name)
	return ""
}

func TestReadQuestionsRejectsInvalid(t *testing.T) {
	in := `[{"id":3,"type":"single","text":"T","options":["a","b","c","d"],"correctAnswerIndices":[9],"explanation":"e"}]`
	if _, err := ReadQuestions(strings.NewReader(in)); !errors.Is(err, llm.ErrInvalidQuestion) {
		t.Errorf("expected ErrInvalidQuestion, got %v", err)
	}
}
