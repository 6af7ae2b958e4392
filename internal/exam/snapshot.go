package exam

import (
	"math"
	"slices"
	"time"

	"github.com/pavelanni/docexam/internal/grading"
	"github.com/pavelanni/docexam/internal/model"
)

// Snapshot is the client-facing view of a session.
type Snapshot struct {
	SessionID    string            `json:"sessionId"`
	State        model.State       `json:"state"`
	Error        string            `json:"error,omitempty"`
	Source       string            `json:"source,omitempty"`
	HasDocument  bool              `json:"hasDocument"`
	HasAPIKey    bool              `json:"hasApiKey"`
	CurrentIndex int               `json:"currentIndex"`
	Questions    []QuestionView    `json:"questions,omitempty"`
	Answers      model.Answers     `json:"answers,omitempty"`
	Progress     Progress          `json:"progress"`
	Result       *model.ExamResult `json:"result,omitempty"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// QuestionView is a question as shown to the user. The answer key and
// explanation are only filled in once the exam is graded.
type QuestionView struct {
	ID                   int                `json:"id"`
	Type                 model.QuestionType `json:"type"`
	Text                 string             `json:"text"`
	Options              []string           `json:"options"`
	CorrectAnswerIndices []int              `json:"correctAnswerIndices,omitempty"`
	Explanation          string             `json:"explanation,omitempty"`
	Correct              *bool              `json:"correct,omitempty"`
}

// Progress counts answered questions.
type Progress struct {
	Answered int     `json:"answered"`
	Total    int     `json:"total"`
	Percent  float64 `json:"percent"`
}

// Rounded returns the percentage rounded for display.
func (p Progress) Rounded() int {
	return int(math.Round(p.Percent))
}

func progressOf(answered, total int) Progress {
	p := Progress{Answered: answered, Total: total}
	if total > 0 {
		p.Percent = float64(answered) / float64(total) * 100
	}
	return p
}

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:    s.id,
		State:        s.state,
		Error:        s.errMsg,
		Source:       s.source,
		HasDocument:  s.text != "",
		HasAPIKey:    s.apiKey != "",
		CurrentIndex: s.index,
		Progress:     progressOf(len(s.answers), len(s.questions)),
		UpdatedAt:    s.updatedAt,
	}
	if s.answers != nil {
		snap.Answers = s.answers.Clone()
	}

	graded := s.state == model.StateResult
	var verdicts map[int]bool
	if graded {
		verdicts = grading.Breakdown(s.questions, s.answers)
		res := *s.result
		res.UserAnswers = s.result.UserAnswers.Clone()
		snap.Result = &res
	}

	if len(s.questions) > 0 {
		snap.Questions = make([]QuestionView, len(s.questions))
		for i, q := range s.questions {
			v := QuestionView{
				ID:      q.ID,
				Type:    q.Type,
				Text:    q.Text,
				Options: slices.Clone(q.Options),
			}
			if graded {
				ok := verdicts[q.ID]
				v.CorrectAnswerIndices = slices.Clone(q.CorrectAnswerIndices)
				v.Explanation = q.Explanation
				v.Correct = &ok
			}
			snap.Questions[i] = v
		}
	}
	return snap
}
