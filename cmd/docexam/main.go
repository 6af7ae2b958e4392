package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pavelanni/docexam/internal/model"
)

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "docexam",
		Short:        "Turn a PDF or DOCX document into a multiple-choice exam",
		SilenceUsage: true,
	}

	serve := serveCmd()
	root.AddCommand(serve, generateCmd(), exportCmd(), keyCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `docexam --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLLMFlags(f *pflag.FlagSet) {
	d := model.DefaultExamConfig()
	f.String("db", "docexam.db", "SQLite database path")
	f.String("llm-url", "https://generativelanguage.googleapis.com/v1beta/openai/", "OpenAI-compatible API base URL")
	f.String("llm-key", "", "API key for the LLM (stored in the database when given)")
	f.String("llm-model", "gemini-2.5-flash", "LLM model name")
	f.StringP("lang", "l", d.Language, "Language of questions and messages (en, ru, zh)")
	f.IntP("num-questions", "n", d.NumQuestions, "Number of questions to generate")
	f.Int("max-chars", d.MaxChars, "Document text is truncated to this many characters")
	f.Int("min-chars", d.MinChars, "Minimum document length in characters")
	f.Int("retries", d.Retries, "Generation attempts per request")
	f.Duration("backoff", d.Backoff, "Wait after the first failed attempt, doubled each retry")
}

func addLogFlags(f *pflag.FlagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	f.String("log-file", "", "Also write logs to this file, rotated by size")
}

func examConfig(v *viper.Viper) model.ExamConfig {
	cfg := model.DefaultExamConfig()
	cfg.Language = v.GetString("lang")
	cfg.NumQuestions = v.GetInt("num-questions")
	cfg.MaxChars = v.GetInt("max-chars")
	cfg.MinChars = v.GetInt("min-chars")
	cfg.Retries = v.GetInt("retries")
	cfg.Backoff = v.GetDuration("backoff")
	if v.IsSet("auto-advance") {
		cfg.AutoAdvanceDelay = v.GetDuration("auto-advance")
	}
	return cfg
}

// setupLogging configures the default logger. The returned function closes
// the log file, if any.
func setupLogging(cmd *cobra.Command) func() {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	closeFn := func() {}
	if path := v.GetString("log-file"); path != "" {
		file := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stderr, file)
		closeFn = func() { _ = file.Close() }
	}

	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(out, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(out, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
	return closeFn
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("DOCEXAM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("docexam")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/docexam")
	v.AddConfigPath("/etc/docexam")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func withTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}
