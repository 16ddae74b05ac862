package engine

import (
	"math"
	"time"

	"mathquest-quiz-service/internal/domain"
)

// Status is the session state machine position.
type Status string

const (
	StatusLoading   Status = "loading"
	StatusReady     Status = "ready"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusFeedback  Status = "feedback"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// State is the full quiz session state. It is owned by the session
// runtime and mutated only through Reduce.
type State struct {
	Status         Status
	Questions      []domain.Question
	CurrentIndex   int
	TotalLives     int
	LivesRemaining int
	SelectedAnswer *string
	Answers        []domain.Answer
	AttemptID      string
	QuizStartTime  time.Time
	EndReason      domain.EndReason
	ErrorMessage   string
}

// NewState returns the initial loading state for a session with the
// given number of lives.
func NewState(lives int) State {
	return State{
		Status:         StatusLoading,
		TotalLives:     lives,
		LivesRemaining: lives,
	}
}

// CurrentQuestion returns the question under play, or false when the
// index is out of range.
func (s State) CurrentQuestion() (domain.Question, bool) {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Questions) {
		return domain.Question{}, false
	}
	return s.Questions[s.CurrentIndex], true
}

// currentResolved reports whether the question under play already has a
// recorded answer. Guards the race between a late timer tick and an
// already-accepted selection.
func (s State) currentResolved() bool {
	return len(s.Answers) > s.CurrentIndex
}

// CorrectAnswers counts correct resolutions so far.
func (s State) CorrectAnswers() int {
	n := 0
	for _, a := range s.Answers {
		if a.IsCorrect {
			n++
		}
	}
	return n
}

// Score is the canonical percentage: round(correct/total*100).
func (s State) Score() int {
	total := len(s.Questions)
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(s.CorrectAnswers()) / float64(total) * 100))
}

// PointsEarned sums per-question point values for correct answers.
// Supplementary display only; never the canonical percentage.
func (s State) PointsEarned() int {
	points := 0
	for i, a := range s.Answers {
		if !a.IsCorrect || i >= len(s.Questions) {
			continue
		}
		p := s.Questions[i].Points
		if p == 0 {
			p = 1
		}
		points += p
	}
	return points
}

// LivesUsed is the number of lives lost so far.
func (s State) LivesUsed() int {
	return s.TotalLives - s.LivesRemaining
}

// Action is a dispatched session event.
type Action interface{ isAction() }

// InitializeSuccess carries the created attempt and loaded questions.
type InitializeSuccess struct {
	AttemptID string
	Questions []domain.Question
}

// InitializeFailure is the only blocking failure: without an attempt
// identity the session cannot proceed.
type InitializeFailure struct {
	Message string
}

// StartQuiz begins play and records the session start time.
type StartQuiz struct {
	At time.Time
}

// SelectAnswer resolves the current question with a chosen option text.
type SelectAnswer struct {
	Answer    string
	TimeTaken time.Duration
}

// TimeUp resolves the current question as a timeout. Ignored when the
// question already has a recorded answer.
type TimeUp struct {
	TimeTaken time.Duration
}

// NextQuestion advances out of feedback, or completes the session after
// the last question.
type NextQuestion struct{}

// TogglePause flips between active and paused.
type TogglePause struct{}

// Restart returns the session to ready with fresh lives and answers.
type Restart struct {
	Questions []domain.Question
}

func (InitializeSuccess) isAction() {}
func (InitializeFailure) isAction() {}
func (StartQuiz) isAction()         {}
func (SelectAnswer) isAction()      {}
func (TimeUp) isAction()            {}
func (NextQuestion) isAction()      {}
func (TogglePause) isAction()       {}
func (Restart) isAction()           {}

// Effect is a side effect requested by a transition and interpreted by
// the session runtime. Keeping effects out of Reduce keeps transitions
// pure and unit-testable with plain data.
type Effect interface{ isEffect() }

// EffectStartTimer starts the countdown for the first question.
type EffectStartTimer struct{}

// EffectRestartTimer restarts the countdown fresh at the full limit.
type EffectRestartTimer struct{}

// EffectPauseTimer freezes the countdown.
type EffectPauseTimer struct{}

// EffectResumeTimer continues the countdown from its frozen value.
type EffectResumeTimer struct{}

// EffectStopTimer stops the countdown for good.
type EffectStopTimer struct{}

// EffectSaveAnswer persists one resolved answer, fire-and-forget.
type EffectSaveAnswer struct {
	Answer domain.Answer
	Seq    int
}

// EffectFinalize requests the exactly-once session finalization.
type EffectFinalize struct{}

func (EffectStartTimer) isEffect()   {}
func (EffectRestartTimer) isEffect() {}
func (EffectPauseTimer) isEffect()   {}
func (EffectResumeTimer) isEffect()  {}
func (EffectStopTimer) isEffect()    {}
func (EffectSaveAnswer) isEffect()   {}
func (EffectFinalize) isEffect()     {}

// Reduce is the pure transition function. Invalid actions for the
// current status leave the state unchanged with no effects; in-session
// transitions never fail.
func Reduce(s State, action Action) (State, []Effect) {
	if s.Status == StatusCompleted {
		// Terminal state is idempotent, with restart as the only way out.
		if restart, ok := action.(Restart); ok {
			return reduceRestart(s, restart), nil
		}
		return s, nil
	}

	switch a := action.(type) {
	case InitializeSuccess:
		if s.Status != StatusLoading {
			return s, nil
		}
		s.Status = StatusReady
		s.AttemptID = a.AttemptID
		s.Questions = a.Questions
		s.ErrorMessage = ""
		return s, nil

	case InitializeFailure:
		if s.Status != StatusLoading {
			return s, nil
		}
		s.Status = StatusError
		s.ErrorMessage = a.Message
		return s, nil

	case StartQuiz:
		if s.Status != StatusReady {
			return s, nil
		}
		s.Status = StatusActive
		s.QuizStartTime = a.At
		return s, []Effect{EffectStartTimer{}}

	case SelectAnswer:
		if s.Status != StatusActive {
			return s, nil
		}
		question, ok := s.CurrentQuestion()
		if !ok || s.currentResolved() {
			return s, nil
		}
		selected := a.Answer
		answer := domain.Answer{
			QuestionID:     question.ID,
			SelectedAnswer: &selected,
			IsCorrect:      selected == question.CorrectAnswer,
			TimeTaken:      a.TimeTaken,
		}
		s.SelectedAnswer = &selected
		return resolve(s, answer)

	case TimeUp:
		if s.Status != StatusActive {
			return s, nil
		}
		question, ok := s.CurrentQuestion()
		if !ok || s.currentResolved() {
			return s, nil
		}
		answer := domain.Answer{
			QuestionID:     question.ID,
			SelectedAnswer: nil,
			IsCorrect:      false,
			TimeTaken:      a.TimeTaken,
		}
		return resolve(s, answer)

	case NextQuestion:
		if s.Status != StatusFeedback {
			return s, nil
		}
		s.SelectedAnswer = nil
		if s.CurrentIndex+1 < len(s.Questions) {
			s.CurrentIndex++
			s.Status = StatusActive
			return s, []Effect{EffectRestartTimer{}}
		}
		s.Status = StatusCompleted
		s.EndReason = domain.EndReasonCompleted
		return s, []Effect{EffectStopTimer{}, EffectFinalize{}}

	case TogglePause:
		switch s.Status {
		case StatusActive:
			s.Status = StatusPaused
			return s, []Effect{EffectPauseTimer{}}
		case StatusPaused:
			s.Status = StatusActive
			return s, []Effect{EffectResumeTimer{}}
		}
		return s, nil

	case Restart:
		return reduceRestart(s, a), nil
	}

	return s, nil
}

// resolve records the answer for the current question and decides
// between feedback and early completion on the last life.
func resolve(s State, answer domain.Answer) (State, []Effect) {
	s.Answers = append(append([]domain.Answer(nil), s.Answers...), answer)
	if !answer.IsCorrect {
		s.LivesRemaining--
	}

	effects := []Effect{EffectPauseTimer{}, EffectSaveAnswer{Answer: answer, Seq: s.CurrentIndex}}

	if s.LivesRemaining <= 0 {
		s.Status = StatusCompleted
		s.EndReason = domain.EndReasonNoLives
		return s, append(effects, EffectStopTimer{}, EffectFinalize{})
	}
	s.Status = StatusFeedback
	return s, effects
}

func reduceRestart(s State, a Restart) State {
	fresh := NewState(s.TotalLives)
	fresh.Status = StatusReady
	fresh.Questions = a.Questions
	return fresh
}
