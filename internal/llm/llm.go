package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pavelanni/docexam/internal/llm/prompts"
	"github.com/pavelanni/docexam/internal/model"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

const temperature = 0.2

// chatAPI is the subset of the OpenAI client the generator needs.
type chatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	ListModels(ctx context.Context) (openai.ModelsList, error)
}

// Observer receives the outcome of every generation attempt.
type Observer interface {
	ObserveAttempt(outcome string, elapsed time.Duration)
}

// Attempt outcomes reported to the Observer.
const (
	OutcomeSuccess      = "success"
	OutcomeUnauthorized = "unauthorized"
	OutcomeFailure      = "failure"
)

// Client generates question sets through an OpenAI-compatible API.
// The API key is supplied per call; the client itself holds no credential.
type Client struct {
	baseURL  string
	model    string
	lang     prompts.Language
	cfg      model.ExamConfig
	newAPI   func(apiKey string) chatAPI
	sleep    func(ctx context.Context, d time.Duration) error
	observer Observer
}

// Option configures a Client.
type Option func(*Client)

// WithObserver reports attempt outcomes to o.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

// New creates a new LLM client.
func New(baseURL, modelName string, cfg model.ExamConfig, opts ...Option) (*Client, error) {
	if err := prompts.Load(prompts.FS()); err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	if !prompts.IsValidLanguage(cfg.Language) {
		return nil, fmt.Errorf("unsupported question language %q", cfg.Language)
	}
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	if cfg.NumQuestions < 1 {
		cfg.NumQuestions = model.DefaultExamConfig().NumQuestions
	}
	c := &Client{
		baseURL: baseURL,
		model:   modelName,
		lang:    prompts.Language(cfg.Language),
		cfg:     cfg,
		sleep:   sleepContext,
	}
	c.newAPI = c.openAIClient
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Client) openAIClient(apiKey string) chatAPI {
	config := openai.DefaultConfig(apiKey)
	if c.baseURL != "" {
		config.BaseURL = c.baseURL
	}
	return openai.NewClientWithConfig(config)
}

// Ping checks that the endpoint is reachable and accepts the key.
func (c *Client) Ping(ctx context.Context, apiKey string) error {
	if strings.TrimSpace(apiKey) == "" {
		return ErrMissingAPIKey
	}
	if _, err := c.newAPI(apiKey).ListModels(ctx); err != nil {
		if isAuthError(err) {
			return fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// Generate builds a prompt from text and asks the model for a question set.
// Attempts run sequentially; authorization failures are returned at once,
// anything else is retried with exponential backoff.
func (c *Client) Generate(ctx context.Context, apiKey, text string) ([]model.Question, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}

	prompt, err := prompts.BuildGeneratePrompt(c.lang, text, c.cfg.NumQuestions, c.cfg.MaxChars)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}
	api := c.newAPI(apiKey)

	var lastErr error
	for attempt := 1; attempt <= c.cfg.Retries; attempt++ {
		start := time.Now()
		questions, err := c.attempt(ctx, api, prompt)
		if err == nil {
			c.observe(OutcomeSuccess, start)
			slog.Info("generated questions", "attempt", attempt, "count", len(questions), "model", c.model)
			return questions, nil
		}
		lastErr = err

		if isAuthError(err) {
			c.observe(OutcomeUnauthorized, start)
			slog.Error("generation rejected credential", "attempt", attempt, "error", err)
			return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}
		c.observe(OutcomeFailure, start)
		slog.Warn("generation attempt failed", "attempt", attempt, "max_attempts", c.cfg.Retries, "error", err)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < c.cfg.Retries {
			if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
				return nil, err
			}
		}
	}

	slog.Error("generation failed", "attempts", c.cfg.Retries, "error", lastErr)
	return nil, finalError(lastErr)
}

// backoff returns the wait after the given failed attempt: base * 2^(attempt-1).
func (c *Client) backoff(attempt int) time.Duration {
	return c.cfg.Backoff * time.Duration(1<<(attempt-1))
}

func (c *Client) attempt(ctx context.Context, api chatAPI, prompt string) ([]model.Question, error) {
	resp, err := api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "exam_questions",
				Schema: &questionSetSchema,
				Strict: true,
			},
		},
		Temperature: temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "bytes", len(raw))

	return parseQuestions(raw, c.cfg.NumQuestions)
}

func (c *Client) observe(outcome string, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveAttempt(outcome, time.Since(start))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var questionSetSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"questions": {
			Type: jsonschema.Array,
			Items: &jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"type": {
						Type:        jsonschema.String,
						Enum:        []string{string(model.QuestionSingle), string(model.QuestionMultiple)},
						Description: "'single' for single choice, 'multiple' for multiple choice.",
					},
					"text": {
						Type:        jsonschema.String,
						Description: "The question text in the target language.",
					},
					"options": {
						Type:        jsonschema.Array,
						Items:       &jsonschema.Definition{Type: jsonschema.String},
						Description: "4 to 5 answer options in the target language.",
					},
					"correctAnswerIndices": {
						Type:        jsonschema.Array,
						Items:       &jsonschema.Definition{Type: jsonschema.Integer},
						Description: "0-based indices of the correct options. Single choice has exactly one.",
					},
					"explanation": {
						Type:        jsonschema.String,
						Description: "A detailed explanation in the target language.",
					},
				},
				Required:             []string{"type", "text", "options", "correctAnswerIndices", "explanation"},
				AdditionalProperties: false,
			},
		},
	},
	Required:             []string{"questions"},
	AdditionalProperties: false,
}

// rawQuestion is the model's output before normalization.
type rawQuestion struct {
	Type                 string   `json:"type"`
	Text                 string   `json:"text"`
	Options              []string `json:"options"`
	CorrectAnswerIndices []int    `json:"correctAnswerIndices"`
	Explanation          string   `json:"explanation"`
}

type questionSet struct {
	Questions []rawQuestion `json:"questions"`
}

// parseQuestions decodes a response payload, caps it at limit questions,
// renumbers ids by position and fills in a missing type.
func parseQuestions(raw string, limit int) ([]model.Question, error) {
	raw = stripCodeFence(raw)
	if raw == "" {
		return nil, ErrEmptyResponse
	}

	var items []rawQuestion
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
		}
	} else {
		var set questionSet
		if err := json.Unmarshal([]byte(raw), &set); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
		}
		items = set.Questions
	}
	if len(items) == 0 {
		return nil, ErrEmptyResponse
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	questions := make([]model.Question, len(items))
	for i, r := range items {
		qt := model.QuestionType(r.Type)
		if qt == "" {
			qt = model.QuestionSingle
			if len(r.CorrectAnswerIndices) > 1 {
				qt = model.QuestionMultiple
			}
		}
		questions[i] = model.Question{
			ID:                   i,
			Type:                 qt,
			Text:                 r.Text,
			Options:              r.Options,
			CorrectAnswerIndices: r.CorrectAnswerIndices,
			Explanation:          r.Explanation,
		}
		if err := Validate(questions[i]); err != nil {
			return nil, err
		}
	}
	return questions, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Validate checks a normalized question against the data model.
func Validate(q model.Question) error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: question %d: %s", ErrInvalidQuestion, q.ID, fmt.Sprintf(format, args...))
	}
	if !q.Type.Valid() {
		return fail("unknown type %q", q.Type)
	}
	if strings.TrimSpace(q.Text) == "" {
		return fail("empty text")
	}
	if strings.TrimSpace(q.Explanation) == "" {
		return fail("empty explanation")
	}
	if n := len(q.Options); n < 4 || n > 5 {
		return fail("%d options, want 4 or 5", n)
	}
	seenOpt := make(map[string]bool, len(q.Options))
	for _, o := range q.Options {
		key := strings.TrimSpace(o)
		if key == "" {
			return fail("empty option")
		}
		if seenOpt[key] {
			return fail("duplicate option")
		}
		seenOpt[key] = true
	}
	if len(q.CorrectAnswerIndices) == 0 {
		return fail("no correct answer")
	}
	if q.Type == model.QuestionSingle && len(q.CorrectAnswerIndices) != 1 {
		return fail("single choice with %d correct answers", len(q.CorrectAnswerIndices))
	}
	seenIdx := make(map[int]bool, len(q.CorrectAnswerIndices))
	for _, i := range q.CorrectAnswerIndices {
		if i < 0 || i >= len(q.Options) {
			return fail("answer index %d out of range", i)
		}
		if seenIdx[i] {
			return fail("duplicate answer index %d", i)
		}
		seenIdx[i] = true
	}
	return nil
}
