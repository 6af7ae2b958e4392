package exam

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/pavelanni/docexam/internal/grading"
	"github.com/pavelanni/docexam/internal/model"
)

// Scheduler runs f once after d and returns a function that cancels it.
type Scheduler func(d time.Duration, f func()) (stop func() bool)

func afterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Job describes one unit of PROCESSING work. Results carrying a token other
// than the session's current one are discarded.
type Job struct {
	Token    uint64
	APIKey   string
	Filename string
	Text     string
}

// Session is one upload-to-result lifecycle. All transitions hold mu.
type Session struct {
	id       string
	delay    time.Duration
	now      func() time.Time
	schedule Scheduler

	mu          sync.RWMutex
	state       model.State
	questions   []model.Question
	answers     model.Answers
	index       int
	errMsg      string
	text        string
	source      string
	apiKey      string
	result      *model.ExamResult
	token       uint64
	cancel      context.CancelFunc
	stopAdvance func() bool
	updatedAt   time.Time
	lastSeen    time.Time
	subscribers map[chan Snapshot]struct{}
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithClock replaces time.Now, for deterministic timestamps in tests.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// WithScheduler replaces the auto-advance timer.
func WithScheduler(sched Scheduler) SessionOption {
	return func(s *Session) { s.schedule = sched }
}

// WithAutoAdvanceDelay sets the pause before moving past an answered
// single-choice question.
func WithAutoAdvanceDelay(d time.Duration) SessionOption {
	return func(s *Session) { s.delay = d }
}

// NewSession creates an idle session holding a copy of the API key.
func NewSession(id, apiKey string, opts ...SessionOption) *Session {
	s := &Session{
		id:          id,
		delay:       model.DefaultExamConfig().AutoAdvanceDelay,
		now:         time.Now,
		schedule:    afterFunc,
		state:       model.StateIdle,
		apiKey:      apiKey,
		subscribers: make(map[chan Snapshot]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	s.updatedAt = s.now()
	s.lastSeen = s.updatedAt
	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() model.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Questions returns a copy of the loaded question set.
func (s *Session) Questions() []model.Question {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneQuestions(s.questions)
}

// Source returns the filename of the document the questions came from.
func (s *Session) Source() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

// Touch marks the session as in use.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = s.now()
}

// IdleSince reports whether the session has been neither used nor changed
// since cutoff. Sessions with live subscribers are never idle.
func (s *Session) IdleSince(cutoff time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.subscribers) > 0 {
		return false
	}
	return s.lastSeen.Before(cutoff) && s.updatedAt.Before(cutoff)
}

// SetAPIKey replaces the credential used by future generation runs.
func (s *Session) SetAPIKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKey = key
	s.broadcastLocked()
}

// SetError records a display message without changing state.
func (s *Session) SetError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = msg
	s.broadcastLocked()
}

// BeginUpload moves to PROCESSING for a new file. The cached text of any
// previous document is dropped and in-flight work is cancelled.
func (s *Session) BeginUpload(parent context.Context, filename string) (context.Context, Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.text = ""
	s.source = filename
	ctx := s.beginLocked(parent)
	return ctx, Job{Token: s.token, APIKey: s.apiKey, Filename: filename}
}

// BeginRegenerate moves to PROCESSING using the cached document text.
// Without cached text ErrNoDocument is reported and the session returns to
// IDLE, unless an upload is still extracting, which is left running.
func (s *Session) BeginRegenerate(parent context.Context) (context.Context, Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.text == "" {
		if s.state == model.StateProcessing {
			return nil, Job{}, ErrNoDocument
		}
		s.abortLocked()
		s.state = model.StateIdle
		s.questions = nil
		s.answers = nil
		s.result = nil
		s.broadcastLocked()
		return nil, Job{}, ErrNoDocument
	}
	ctx := s.beginLocked(parent)
	return ctx, Job{Token: s.token, APIKey: s.apiKey, Filename: s.source, Text: s.text}, nil
}

func (s *Session) beginLocked(parent context.Context) context.Context {
	s.abortLocked()
	s.token++
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.state = model.StateProcessing
	s.errMsg = ""
	s.questions = nil
	s.answers = nil
	s.result = nil
	s.index = 0
	s.broadcastLocked()
	return ctx
}

// abortLocked cancels in-flight work and any pending auto-advance.
func (s *Session) abortLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.stopAdvanceLocked()
}

func (s *Session) stopAdvanceLocked() {
	if s.stopAdvance != nil {
		s.stopAdvance()
		s.stopAdvance = nil
	}
}

func (s *Session) currentLocked(token uint64) bool {
	return token == s.token && s.state == model.StateProcessing
}

// CacheText stores extracted text for later regeneration. It reports false
// if the job is stale.
func (s *Session) CacheText(token uint64, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(token) {
		return false
	}
	s.text = text
	return true
}

// Complete enters EXAM with a fresh question set. It reports false if the
// job is stale.
func (s *Session) Complete(token uint64, questions []model.Question) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(token) {
		return false
	}
	s.releaseLocked()
	s.state = model.StateExam
	s.questions = cloneQuestions(questions)
	s.answers = model.Answers{}
	s.index = 0
	s.errMsg = ""
	s.broadcastLocked()
	return true
}

// Fail returns to IDLE and keeps msg for display. It reports false if the
// job is stale.
func (s *Session) Fail(token uint64, msg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(token) {
		return false
	}
	s.releaseLocked()
	s.state = model.StateIdle
	s.questions = nil
	s.answers = nil
	s.errMsg = msg
	s.broadcastLocked()
	return true
}

func (s *Session) releaseLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Select records a choice for a question. Single-choice selections replace
// the answer and, unless the current question is the last, schedule an
// automatic move to the next question. Multiple-choice selections toggle.
func (s *Session) Select(questionID, option int) (model.Answers, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != model.StateExam {
		return nil, ErrNotInExam
	}
	pos := slices.IndexFunc(s.questions, func(q model.Question) bool { return q.ID == questionID })
	if pos < 0 {
		return nil, ErrUnknownQuestion
	}
	q := s.questions[pos]
	if option < 0 || option >= len(q.Options) {
		return nil, ErrOptionOutOfRange
	}

	if q.IsMultiple() {
		s.answers[questionID] = toggle(s.answers[questionID], option)
	} else {
		s.answers[questionID] = []int{option}
		if s.index < len(s.questions)-1 {
			s.scheduleAdvanceLocked()
		}
	}
	s.broadcastLocked()
	return s.answers.Clone(), nil
}

// toggle flips option in sel and keeps the result in ascending order.
func toggle(sel []int, option int) []int {
	if i := slices.Index(sel, option); i >= 0 {
		return slices.Delete(slices.Clone(sel), i, i+1)
	}
	out := append(slices.Clone(sel), option)
	slices.Sort(out)
	return out
}

func (s *Session) scheduleAdvanceLocked() {
	s.stopAdvanceLocked()
	token, from := s.token, s.index
	s.stopAdvance = s.schedule(s.delay, func() {
		s.advance(token, from)
	})
}

// advance moves one question forward if nothing changed since it was
// scheduled.
func (s *Session) advance(token uint64, from int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token != s.token || s.state != model.StateExam || s.index != from || from >= len(s.questions)-1 {
		return
	}
	s.index = from + 1
	s.stopAdvance = nil
	s.broadcastLocked()
}

// Navigate jumps to question i.
func (s *Session) Navigate(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != model.StateExam {
		return ErrNotInExam
	}
	if i < 0 || i >= len(s.questions) {
		return ErrIndexOutOfRange
	}
	s.stopAdvanceLocked()
	s.index = i
	s.broadcastLocked()
	return nil
}

// Submit grades the exam and enters RESULT.
func (s *Session) Submit() (model.ExamResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != model.StateExam {
		return model.ExamResult{}, ErrNotInExam
	}
	s.stopAdvanceLocked()
	res := grading.Grade(s.questions, s.answers)
	s.result = &res
	s.state = model.StateResult
	s.broadcastLocked()
	return res, nil
}

// Reset returns to IDLE from any state, cancelling in-flight work and
// forgetting the question set, answers, error and cached document.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.abortLocked()
	s.token++
	s.state = model.StateIdle
	s.questions = nil
	s.answers = nil
	s.result = nil
	s.index = 0
	s.errMsg = ""
	s.text = ""
	s.source = ""
	s.broadcastLocked()
}

// Progress reports how many questions have an answer entry.
func (s *Session) Progress() Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return progressOf(len(s.answers), len(s.questions))
}

// Close cancels pending work and disconnects subscribers.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abortLocked()
	s.token++
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}

// Subscribe returns a channel of snapshots, starting with the current one.
// Slow readers only see the latest snapshot. The caller must invoke the
// returned cancel function.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcastLocked() {
	s.updatedAt = s.now()
	if len(s.subscribers) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func cloneQuestions(qs []model.Question) []model.Question {
	if qs == nil {
		return nil
	}
	out := make([]model.Question, len(qs))
	for i, q := range qs {
		q.Options = slices.Clone(q.Options)
		q.CorrectAnswerIndices = slices.Clone(q.CorrectAnswerIndices)
		out[i] = q
	}
	return out
}
