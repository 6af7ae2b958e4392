package exam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/pavelanni/docexam/internal/extract"
	"github.com/pavelanni/docexam/internal/i18n"
	"github.com/pavelanni/docexam/internal/llm"
	"github.com/pavelanni/docexam/internal/llm/prompts"
	"github.com/pavelanni/docexam/internal/model"
)

// Extractor turns an uploaded document into plain text.
type Extractor interface {
	Extract(ctx context.Context, doc model.Document) (string, error)
}

// Generator produces a validated question set from document text.
type Generator interface {
	Generate(ctx context.Context, apiKey, text string) ([]model.Question, error)
}

// KeyStore persists the API credential.
type KeyStore interface {
	APIKey() (string, error)
	SetAPIKey(key string) error
}

// RunObserver receives the outcome of every PROCESSING run.
type RunObserver interface {
	ObserveRun(kind, outcome string, elapsed time.Duration)
}

// Run kinds and outcomes reported to the RunObserver.
const (
	RunUpload     = "upload"
	RunRegenerate = "regenerate"

	OutcomeExam   = "exam"
	OutcomeFailed = "failed"
	OutcomeStale  = "stale"
)

// Service wires extraction and generation into sessions.
type Service struct {
	sessions  Repository
	extractor Extractor
	generator Generator
	keys      KeyStore
	cfg       model.ExamConfig
	observer  RunObserver
	opts      []SessionOption
	ttl       time.Duration

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithRunObserver reports run outcomes to o.
func WithRunObserver(o RunObserver) ServiceOption {
	return func(s *Service) { s.observer = o }
}

// WithSessionOptions applies opts to every session the service creates.
func WithSessionOptions(opts ...SessionOption) ServiceOption {
	return func(s *Service) { s.opts = append(s.opts, opts...) }
}

// WithSessionTTL expires sessions that have been idle longer than ttl.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) { s.ttl = ttl }
}

// NewService creates a Service. User-facing messages are localized in
// cfg.Language; i18n.Init must have been called.
func NewService(repo Repository, ex Extractor, gen Generator, keys KeyStore, cfg model.ExamConfig, opts ...ServiceOption) *Service {
	base, stop := context.WithCancel(context.Background())
	s := &Service{
		sessions:  repo,
		extractor: ex,
		generator: gen,
		keys:      keys,
		cfg:       cfg,
		base:      i18n.WithLocalizer(base, i18n.NewLocalizer(cfg.Language)),
		stop:      stop,
	}
	for _, o := range opts {
		o(s)
	}
	if s.ttl > 0 {
		s.spawn(func() { s.sweep(min(s.ttl, time.Minute)) })
	}
	return s
}

func (s *Service) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.base.Done():
			return
		case now := <-ticker.C:
			s.ExpireIdle(s.base, now.Add(-s.ttl))
		}
	}
}

// ExpireIdle ends every session idle since cutoff and returns how many.
func (s *Service) ExpireIdle(ctx context.Context, cutoff time.Time) int {
	n := s.sessions.Expire(ctx, cutoff)
	if n > 0 {
		slog.Info("expired idle sessions", "count", n)
	}
	return n
}

// Close cancels in-flight runs and waits for them to finish.
func (s *Service) Close() {
	s.stop()
	s.wg.Wait()
}

// NewSession creates and registers an idle session loaded with the stored
// API key.
func (s *Service) NewSession(ctx context.Context) (*Session, error) {
	key, err := s.keys.APIKey()
	if err != nil {
		slog.Warn("load stored API key", "error", err)
	}
	opts := append([]SessionOption{WithAutoAdvanceDelay(s.cfg.AutoAdvanceDelay)}, s.opts...)
	sess := NewSession(uuid.NewString(), key, opts...)
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	slog.Info("session created", "session_id", sess.ID())
	return sess, nil
}

// Session looks up a session by id.
func (s *Service) Session(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}
	sess, ok := s.sessions.Get(ctx, id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.Touch()
	return sess, nil
}

// Resolve returns the session with the given id, or a new one if it is
// unknown.
func (s *Service) Resolve(ctx context.Context, id string) (*Session, error) {
	if sess, err := s.Session(ctx, id); err == nil {
		return sess, nil
	}
	return s.NewSession(ctx)
}

// EndSession removes a session and cancels its work.
func (s *Service) EndSession(ctx context.Context, id string) {
	s.sessions.Delete(ctx, id)
}

// SaveAPIKey persists key and hands it to sess for future runs.
func (s *Service) SaveAPIKey(sess *Session, key string) error {
	key = strings.TrimSpace(key)
	if err := s.keys.SetAPIKey(key); err != nil {
		return fmt.Errorf("save API key: %w", err)
	}
	if sess != nil {
		sess.SetAPIKey(key)
	}
	slog.Info("API key saved", "set", key != "")
	return nil
}

// StartUpload moves sess to PROCESSING and runs extraction and generation
// in the background. The returned channel is closed when the run ends.
func (s *Service) StartUpload(sess *Session, doc model.Document) <-chan struct{} {
	ctx, job := sess.BeginUpload(s.base, doc.Filename)
	slog.Info("upload accepted", "session_id", sess.ID(), "filename", doc.Filename, "bytes", len(doc.Data), "token", job.Token)

	return s.spawn(func() {
		start := time.Now()
		outcome := s.upload(ctx, sess, job, doc)
		s.observe(RunUpload, outcome, start)
	})
}

// StartRegenerate moves sess to PROCESSING and regenerates questions from
// the cached text. Without cached text the session returns to IDLE with a
// message and ErrNoDocument is returned.
func (s *Service) StartRegenerate(sess *Session) (<-chan struct{}, error) {
	ctx, job, err := sess.BeginRegenerate(s.base)
	if err != nil {
		if sess.State() != model.StateProcessing {
			sess.SetError(s.Describe(err))
		}
		return nil, err
	}
	slog.Info("regeneration started", "session_id", sess.ID(), "token", job.Token)

	return s.spawn(func() {
		start := time.Now()
		outcome := s.generate(ctx, sess, job, job.Text)
		s.observe(RunRegenerate, outcome, start)
	}), nil
}

func (s *Service) spawn(run func()) <-chan struct{} {
	done := make(chan struct{})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)
		run()
	}()
	return done
}

func (s *Service) upload(ctx context.Context, sess *Session, job Job, doc model.Document) string {
	text, err := s.extractor.Extract(ctx, doc)
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeStale
		}
		slog.Error("extraction failed", "session_id", sess.ID(), "filename", doc.Filename, "error", err)
		return s.fail(sess, job, s.describeExtraction(ctx, err))
	}

	if n := utf8.RuneCountInString(strings.TrimSpace(text)); n < s.cfg.MinChars {
		slog.Warn("document too short", "session_id", sess.ID(), "chars", n, "min_chars", s.cfg.MinChars)
		return s.fail(sess, job, s.Describe(ErrInsufficientContent))
	}
	chars := utf8.RuneCountInString(text)
	// Prompt building strips markup before truncating to MaxChars, so keep
	// some slack beyond it.
	if s.cfg.MaxChars > 0 {
		text, _ = prompts.Truncate(text, 2*s.cfg.MaxChars)
	}
	if !sess.CacheText(job.Token, text) {
		return OutcomeStale
	}
	slog.Info("document extracted", "session_id", sess.ID(), "chars", chars, "kept", utf8.RuneCountInString(text))

	return s.generate(ctx, sess, job, text)
}

func (s *Service) generate(ctx context.Context, sess *Session, job Job, text string) string {
	questions, err := s.generator.Generate(ctx, job.APIKey, text)
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeStale
		}
		return s.fail(sess, job, s.Describe(err))
	}
	if !sess.Complete(job.Token, questions) {
		slog.Info("discarding stale question set", "session_id", sess.ID(), "token", job.Token)
		return OutcomeStale
	}
	slog.Info("exam ready", "session_id", sess.ID(), "questions", len(questions))
	return OutcomeExam
}

func (s *Service) fail(sess *Session, job Job, msg string) string {
	if !sess.Fail(job.Token, msg) {
		return OutcomeStale
	}
	return OutcomeFailed
}

func (s *Service) observe(kind, outcome string, start time.Time) {
	if s.observer != nil {
		s.observer.ObserveRun(kind, outcome, time.Since(start))
	}
}

// Describe converts a pipeline error into a localized display string.
// Errors without a dedicated message are shown as they are.
func (s *Service) Describe(err error) string {
	ctx := s.base
	switch {
	case errors.Is(err, extract.ErrUnsupportedFormat):
		return i18n.T(ctx, "ErrUnsupportedFormat")
	case errors.Is(err, extract.ErrUnreadable):
		return i18n.T(ctx, "ErrUnreadable")
	case errors.Is(err, extract.ErrParse):
		return i18n.T(ctx, "ErrParseFailed")
	case errors.Is(err, ErrInsufficientContent):
		return i18n.T(ctx, "ErrInsufficientContent")
	case errors.Is(err, ErrNoDocument):
		return i18n.T(ctx, "ErrNoDocument")
	case errors.Is(err, llm.ErrMissingAPIKey):
		return i18n.T(ctx, "ErrMissingAPIKey")
	case errors.Is(err, llm.ErrUnauthorized):
		return i18n.Td(ctx, "ErrUnauthorized", map[string]any{"Detail": err.Error()})
	case errors.Is(err, llm.ErrUnstableNetwork):
		return i18n.T(ctx, "ErrUnstableNetwork")
	case errors.Is(err, llm.ErrGenerationFailed):
		return i18n.T(ctx, "ErrGenerationFailed")
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return i18n.T(ctx, "ErrGenerationFailed")
}

func (s *Service) describeExtraction(ctx context.Context, err error) string {
	if errors.Is(err, extract.ErrUnsupportedFormat) ||
		errors.Is(err, extract.ErrUnreadable) ||
		errors.Is(err, extract.ErrParse) {
		return s.Describe(err)
	}
	return i18n.T(ctx, "ErrUnknown")
}
