package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"mathquest-quiz-service/internal/domain"
)

// AttemptLifecycle creates and finalizes remote attempt records. The
// app layer wraps the raw store with circuit breaking and retry before
// handing it to the session.
type AttemptLifecycle interface {
	CreateAttempt(ctx context.Context, attempt domain.QuizAttempt) (string, error)
	FinalizeAttempt(ctx context.Context, attemptID string, correctAnswers, score, timeSpent int, completedAt time.Time) error
}

// AnswerPersister appends one resolved answer to the remote store.
type AnswerPersister interface {
	SaveAnswer(ctx context.Context, attemptID string, seq int, answer domain.Answer) error
}

// QuestionSource supplies the question bank for a level/week.
type QuestionSource interface {
	GetQuestions(ctx context.Context, levelID string, weekNo int) (domain.QuestionSet, error)
}

// SessionConfig identifies one attempt and its play parameters.
type SessionConfig struct {
	StudentID        string
	LevelID          string
	WeekNo           int
	Difficulty       domain.Difficulty
	TimeLimitSeconds int
	Lives            int
}

// ViewState is the derived read-only state pushed to clients after
// every dispatch and timer tick. The correct answer is never included.
type ViewState struct {
	Status               Status           `json:"status"`
	CurrentQuestionIndex int              `json:"currentQuestionIndex"`
	TotalQuestions       int              `json:"totalQuestions"`
	Prompt               string           `json:"prompt,omitempty"`
	Options              []string         `json:"options,omitempty"`
	LivesRemaining       int              `json:"livesRemaining"`
	SelectedAnswer       *string          `json:"selectedAnswer,omitempty"`
	CorrectAnswers       int              `json:"correctAnswers"`
	Score                int              `json:"score"`
	Timer                TimerSnapshot    `json:"timer"`
	ErrorMessage         string           `json:"errorMessage,omitempty"`
	EndReason            domain.EndReason `json:"endReason,omitempty"`
}

// Session drives one quiz attempt from initialization to completion.
// Every transition runs synchronously under one mutex, so there is
// never more than one writer to the state; detached persistence work
// never blocks progression.
type Session struct {
	cfg       SessionConfig
	lifecycle AttemptLifecycle
	answers   AnswerPersister
	questions QuestionSource
	logger    *zap.Logger
	clock     func() time.Time

	onComplete func(domain.SessionResults)
	finalized  atomic.Bool

	mu              sync.Mutex
	state           State
	timer           *QuestionTimer
	questionShownAt time.Time
	closed          bool

	subMu       sync.Mutex
	subscribers map[chan ViewState]struct{}
	notices     chan domain.Notice
}

// SessionOption customizes a Session.
type SessionOption func(*Session)

// WithSessionClock injects a deterministic clock for tests.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.clock = now }
}

// NewSession builds a session in the loading state. onComplete is
// invoked exactly once with the locally computed results, whether or
// not finalization synced.
func NewSession(cfg SessionConfig, questions QuestionSource, lifecycle AttemptLifecycle, answers AnswerPersister, logger *zap.Logger, onComplete func(domain.SessionResults), opts ...SessionOption) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		cfg:         cfg,
		lifecycle:   lifecycle,
		answers:     answers,
		questions:   questions,
		logger:      logger,
		clock:       time.Now,
		onComplete:  onComplete,
		state:       NewState(cfg.Lives),
		subscribers: make(map[chan ViewState]struct{}),
		notices:     make(chan domain.Notice, 16),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.timer = NewQuestionTimer(cfg.TimeLimitSeconds, s.handleTimeUp, s.handleTick)
	s.timer.onError = s.handleTimerError
	return s
}

// Initialize loads questions and creates the remote attempt, then
// dispatches the result into the state machine. A failure is blocking
// and user-visible; the caller may call Initialize again to retry.
func (s *Session) Initialize(ctx context.Context) error {
	set, err := s.questions.GetQuestions(ctx, s.cfg.LevelID, s.cfg.WeekNo)
	if err != nil {
		classified := domain.Classify(err)
		s.logger.Warn("question load failed",
			zap.String("levelId", s.cfg.LevelID),
			zap.Int("weekNo", s.cfg.WeekNo),
			zap.Error(classified))
		s.Dispatch(InitializeFailure{Message: classified.UserMessage})
		return classified
	}

	attemptID, err := s.lifecycle.CreateAttempt(ctx, domain.QuizAttempt{
		StudentID:      s.cfg.StudentID,
		LevelID:        s.cfg.LevelID,
		WeekNo:         s.cfg.WeekNo,
		Difficulty:     s.cfg.Difficulty,
		TotalQuestions: len(set.Questions),
		StartedAt:      s.clock(),
	})
	if err != nil {
		classified := domain.Classify(err)
		s.logger.Warn("attempt creation failed",
			zap.String("studentId", s.cfg.StudentID),
			zap.Error(classified))
		s.Dispatch(InitializeFailure{Message: classified.UserMessage})
		return classified
	}

	s.Dispatch(InitializeSuccess{AttemptID: attemptID, Questions: set.Questions})
	return nil
}

// RetryInitialize clears a blocked error state and attempts
// initialization again.
func (s *Session) RetryInitialize(ctx context.Context) error {
	s.mu.Lock()
	if s.state.Status == StatusError {
		s.state = NewState(s.cfg.Lives)
	}
	s.mu.Unlock()
	return s.Initialize(ctx)
}

// Start begins the quiz.
func (s *Session) Start() {
	s.Dispatch(StartQuiz{At: s.clock()})
}

// Answer resolves the current question with the chosen option text.
func (s *Session) Answer(option string) {
	s.Dispatch(SelectAnswer{Answer: option, TimeTaken: s.elapsedOnQuestion()})
}

// Next advances past feedback.
func (s *Session) Next() {
	s.Dispatch(NextQuestion{})
}

// TogglePause flips between active and paused.
func (s *Session) TogglePause() {
	s.Dispatch(TogglePause{})
}

// Restart returns to ready with fresh lives; a new attempt record is
// created on the following Initialize-equivalent path.
func (s *Session) Restart(ctx context.Context) error {
	set, err := s.questions.GetQuestions(ctx, s.cfg.LevelID, s.cfg.WeekNo)
	if err != nil {
		classified := domain.Classify(err)
		s.notify(classified.UserMessage, true)
		return classified
	}
	attemptID, err := s.lifecycle.CreateAttempt(ctx, domain.QuizAttempt{
		StudentID:      s.cfg.StudentID,
		LevelID:        s.cfg.LevelID,
		WeekNo:         s.cfg.WeekNo,
		Difficulty:     s.cfg.Difficulty,
		TotalQuestions: len(set.Questions),
		StartedAt:      s.clock(),
	})
	if err != nil {
		classified := domain.Classify(err)
		s.notify(classified.UserMessage, true)
		return classified
	}

	s.finalized.Store(false)
	s.Dispatch(Restart{Questions: set.Questions})
	s.mu.Lock()
	s.state.AttemptID = attemptID
	s.mu.Unlock()
	s.publish()
	return nil
}

// Dispatch feeds one action through the reducer and interprets the
// resulting effects. All state writes happen here, under the mutex.
func (s *Session) Dispatch(action Action) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	next, effects := Reduce(s.state, action)
	s.state = next

	// Timer effects run under the lock; detached work is collected first.
	var saves []EffectSaveAnswer
	finalize := false
	for _, effect := range effects {
		switch e := effect.(type) {
		case EffectStartTimer:
			s.timer.Start()
			s.timer.Restart()
			s.questionShownAt = s.clock()
		case EffectRestartTimer:
			s.timer.Restart()
			s.questionShownAt = s.clock()
		case EffectPauseTimer:
			s.timer.Pause()
		case EffectResumeTimer:
			s.timer.Resume()
		case EffectStopTimer:
			s.timer.Stop()
		case EffectSaveAnswer:
			saves = append(saves, e)
		case EffectFinalize:
			finalize = true
		}
	}
	s.mu.Unlock()

	for _, save := range saves {
		go s.saveAnswer(save)
	}
	if finalize {
		go s.finalize()
	}
	s.publish()
}

// saveAnswer is the detached durability side channel. Failures surface
// only as a dismissible notice; the in-memory answers list remains the
// authoritative source for scoring.
func (s *Session) saveAnswer(save EffectSaveAnswer) {
	s.mu.Lock()
	attemptID := s.state.AttemptID
	s.mu.Unlock()
	if attemptID == "" {
		return
	}

	if err := s.answers.SaveAnswer(context.Background(), attemptID, save.Seq, save.Answer); err != nil {
		classified := domain.Classify(err)
		s.logger.Warn("answer save failed",
			zap.String("attemptId", attemptID),
			zap.Int("seq", save.Seq),
			zap.Error(classified))
		s.notify(classified.UserMessage, false)
	}
}

// finalize runs the exactly-once completion path: the latch guarantees
// a single finalization and a single results delivery no matter how
// often the completed state is re-entered or re-published.
func (s *Session) finalize() {
	if !s.finalized.CompareAndSwap(false, true) {
		return
	}

	s.mu.Lock()
	state := s.state
	completedAt := s.clock()
	timeSpent := 0
	if !state.QuizStartTime.IsZero() {
		timeSpent = int(completedAt.Sub(state.QuizStartTime).Seconds())
	}
	s.mu.Unlock()

	results := domain.SessionResults{
		AttemptID:      state.AttemptID,
		StudentID:      s.cfg.StudentID,
		LevelID:        s.cfg.LevelID,
		WeekNo:         s.cfg.WeekNo,
		Difficulty:     s.cfg.Difficulty,
		TotalQuestions: len(state.Questions),
		CorrectAnswers: state.CorrectAnswers(),
		Score:          state.Score(),
		PointsEarned:   state.PointsEarned(),
		TimeSpent:      timeSpent,
		Answers:        state.Answers,
		CompletedAt:    completedAt,
		LivesUsed:      state.LivesUsed(),
		EndReason:      state.EndReason,
		Synced:         true,
	}

	err := s.lifecycle.FinalizeAttempt(context.Background(), state.AttemptID,
		results.CorrectAnswers, results.Score, results.TimeSpent, completedAt)
	if err != nil {
		// Results are still delivered; the student only sees a sync notice.
		classified := domain.Classify(err)
		s.logger.Warn("finalize failed",
			zap.String("attemptId", state.AttemptID),
			zap.Error(classified))
		results.Synced = false
		s.notify("Your results may not have synced. They are safe on this device.", false)
	}

	if s.onComplete != nil {
		s.onComplete(results)
	}
}

// handleTimeUp feeds timer expiry back into the dispatch loop. The
// reducer's status gate makes a tick that lost the race against an
// accepted selection a no-op.
func (s *Session) handleTimeUp() {
	limit := time.Duration(s.cfg.TimeLimitSeconds) * time.Second
	s.Dispatch(TimeUp{TimeTaken: limit})
}

func (s *Session) handleTick(TimerSnapshot) {
	s.publish()
}

// handleTimerError absorbs countdown faults: the session keeps running
// untimed and the student only sees a passive notice.
func (s *Session) handleTimerError(err error) {
	classified := domain.NewTimerError("countdown failed", err)
	s.logger.Warn("timer fault absorbed", zap.Error(classified))
	s.notify(classified.UserMessage, false)
}

func (s *Session) elapsedOnQuestion() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.questionShownAt.IsZero() {
		return 0
	}
	return s.clock().Sub(s.questionShownAt)
}

// View returns the derived read-only state for clients.
func (s *Session) View() ViewState {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	view := ViewState{
		Status:               state.Status,
		CurrentQuestionIndex: state.CurrentIndex,
		TotalQuestions:       len(state.Questions),
		LivesRemaining:       state.LivesRemaining,
		SelectedAnswer:       state.SelectedAnswer,
		CorrectAnswers:       state.CorrectAnswers(),
		Score:                state.Score(),
		Timer:                s.timer.Snapshot(),
		ErrorMessage:         state.ErrorMessage,
		EndReason:            state.EndReason,
	}
	if q, ok := state.CurrentQuestion(); ok {
		view.Prompt = q.Prompt
		view.Options = q.Options
	}
	return view
}

// Subscribe returns a channel of view-state snapshots. The caller must
// invoke cancel to avoid leaks.
func (s *Session) Subscribe() (<-chan ViewState, func()) {
	ch := make(chan ViewState, 8)

	s.subMu.Lock()
	s.subscribers[ch] = struct{}{}
	s.subMu.Unlock()

	ch <- s.View()

	cancel := func() {
		s.subMu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.subMu.Unlock()
	}
	return ch, cancel
}

// Notices returns the non-blocking notification channel.
func (s *Session) Notices() <-chan domain.Notice {
	return s.notices
}

// Close stops the timer synchronously and detaches subscribers. An
// in-flight persistence call that resolves later is a no-op against
// session state.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.timer.Stop()
	s.mu.Unlock()

	s.subMu.Lock()
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
	s.subMu.Unlock()
}

// publish fans the current view out to subscribers, dropping stale
// snapshots so a slow client never blocks the dispatch path.
func (s *Session) publish() {
	view := s.View()
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- view:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- view:
			default:
			}
		}
	}
}

// notify emits a user-facing notice without ever blocking gameplay.
func (s *Session) notify(message string, blocking bool) {
	notice := domain.Notice{Message: message, Blocking: blocking, At: s.clock()}
	select {
	case s.notices <- notice:
	default:
		// Drop the oldest notice to make room.
		select {
		case <-s.notices:
		default:
		}
		select {
		case s.notices <- notice:
		default:
		}
	}
}
