package main

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/docexam/internal/exam"
	"github.com/pavelanni/docexam/internal/export"
	"github.com/pavelanni/docexam/internal/extract"
	"github.com/pavelanni/docexam/internal/i18n"
	"github.com/pavelanni/docexam/internal/llm"
	"github.com/pavelanni/docexam/internal/model"
	"github.com/pavelanni/docexam/internal/store"
)

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate FILE",
		Short: "Generate questions from a PDF or DOCX file and print them as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runGenerate,
	}
	f := cmd.Flags()
	addLLMFlags(f)
	f.StringP("output", "o", "-", "JSON output path (- for stdout)")
	f.String("docx", "", "Also write the exam as a Word document to this path")
	f.Duration("timeout", 5*time.Minute, "Overall time limit (0 for none)")
	addLogFlags(f)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export QUESTIONS.json",
		Short: "Render a questions JSON file as a Word document",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.StringP("lang", "l", "en", "Language of document labels (en, ru, zh)")
	f.String("source", "", "Source document name shown under the title")
	f.StringP("output", "o", "", "Output path (default: input name with .docx)")
	addLogFlags(f)
	return cmd
}

func runGenerate(cmd *cobra.Command, args []string) error {
	defer setupLogging(cmd)()
	v := viperForCmd(cmd)

	ctx, cancel := withTimeout(cmd.Context(), v.GetDuration("timeout"))
	defer cancel()

	lang := v.GetString("lang")
	if err := i18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	ctx = i18n.WithLanguage(ctx, lang)
	cfg := examConfig(v)

	key, err := apiKeyFor(v)
	if err != nil {
		return err
	}

	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	source := filepath.Base(path)

	text, err := extract.New().Extract(ctx, model.Document{Filename: source, Data: data})
	if err != nil {
		return fmt.Errorf("extract %s: %w", path, err)
	}
	if n := utf8.RuneCountInString(text); n < cfg.MinChars {
		return fmt.Errorf("%s: %w (%d characters)", path, exam.ErrInsufficientContent, n)
	}
	slog.Info("document extracted", "path", path, "chars", utf8.RuneCountInString(text))

	client, err := llm.New(v.GetString("llm-url"), v.GetString("llm-model"), cfg)
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}
	questions, err := client.Generate(ctx, key, text)
	if err != nil {
		return fmt.Errorf("generate questions: %w", err)
	}
	slog.Info("questions generated", "count", len(questions))

	labels := export.LocalizedLabels(ctx, source)
	ex := export.Build(questions, labels.Title, lang, source, time.Now())
	if err := writeOutput(v.GetString("output"), func(w io.Writer) error {
		return export.WriteJSON(w, ex)
	}); err != nil {
		return err
	}

	if docx := v.GetString("docx"); docx != "" {
		if err := writeOutput(docx, func(w io.Writer) error {
			return export.WriteDocx(w, questions, labels)
		}); err != nil {
			return err
		}
		slog.Info("wrote docx", "path", docx)
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	defer setupLogging(cmd)()
	v := viperForCmd(cmd)

	lang := v.GetString("lang")
	if err := i18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	ctx := i18n.WithLanguage(cmd.Context(), lang)

	in := args[0]
	f, err := os.Open(in)
	if err != nil {
		return fmt.Errorf("open %s: %w", in, err)
	}
	defer f.Close()

	questions, err := export.ReadQuestions(f)
	if err != nil {
		return fmt.Errorf("read %s: %w", in, err)
	}

	out := v.GetString("output")
	if out == "" {
		out = strings.TrimSuffix(in, filepath.Ext(in)) + ".docx"
	}
	labels := export.LocalizedLabels(ctx, v.GetString("source"))
	if err := writeOutput(out, func(w io.Writer) error {
		return export.WriteDocx(w, questions, labels)
	}); err != nil {
		return err
	}
	slog.Info("exported questions", "input", in, "output", out, "count", len(questions))
	return nil
}

// apiKeyFor returns the key from the flag or environment, falling back to
// the one stored in the database.
func apiKeyFor(v *viper.Viper) (string, error) {
	if key := strings.TrimSpace(v.GetString("llm-key")); key != "" {
		return key, nil
	}
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return "", fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	key, err := db.APIKey()
	if err != nil {
		return "", fmt.Errorf("load API key: %w", err)
	}
	if key == "" {
		return "", llm.ErrMissingAPIKey
	}
	return key, nil
}

// writeOutput renders into memory, then writes to path, or to stdout for
// "" and "-".
func writeOutput(path string, render func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return err
	}
	if path == "" || path == "-" {
		_, err := buf.WriteTo(os.Stdout)
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
