package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mathquest-quiz-service/internal/config"
	"mathquest-quiz-service/internal/domain"
	"mathquest-quiz-service/internal/engine"
	"mathquest-quiz-service/internal/observability"
	"mathquest-quiz-service/internal/resilience"
)

// QuizService wires question supply, attempt persistence, and the
// resilience layer into quiz sessions. The two breakers are process-wide
// singletons: one session's repeated failures trip the circuit for all
// sessions of that resource class, protecting the backing store.
type QuizService struct {
	cfg         config.Config
	questions   *QuestionService
	lifecycle   *AttemptLifecycleService
	answers     *AnswerPersistenceService
	leaderboard LeaderboardStore
	logger      *zap.Logger
	metrics     *observability.Metrics

	dbBreaker  *resilience.Breaker
	netBreaker *resilience.Breaker
}

// Deps carries the external collaborators for NewQuizService.
type Deps struct {
	Questions   QuestionRepository
	Attempts    AttemptStore
	Leaderboard LeaderboardStore // optional
	Logger      *zap.Logger
	Metrics     *observability.Metrics // optional
}

func NewQuizService(cfg config.Config, deps Deps) *QuizService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	retryOpts := []resilience.RetryOption{}
	breakerOpts := func() []resilience.BreakerOption {
		opts := []resilience.BreakerOption{
			resilience.WithStateChangeHook(func(name string, from, to resilience.BreakerState) {
				logger.Warn("circuit breaker state change",
					zap.String("breaker", name),
					zap.String("from", string(from)),
					zap.String("to", string(to)))
				if deps.Metrics != nil {
					deps.Metrics.BreakerTransitions.WithLabelValues(name, string(to)).Inc()
				}
			}),
		}
		if deps.Metrics != nil {
			opts = append(opts, resilience.WithRejectHook(func(name string) {
				deps.Metrics.BreakerRejections.WithLabelValues(name).Inc()
			}))
		}
		return opts
	}
	if deps.Metrics != nil {
		retryOpts = append(retryOpts, resilience.WithRetryHook(func(kind domain.ErrorKind, attempt int, delay time.Duration) {
			deps.Metrics.RetryAttempts.WithLabelValues(string(kind)).Inc()
		}))
	}
	retrier := resilience.NewRetrier(retryOpts...)

	dbThreshold, dbRecovery := cfg.DatabaseBreaker()
	netThreshold, netRecovery := cfg.NetworkBreaker()
	dbBreaker := resilience.NewBreaker("database", domain.KindDatabase, dbThreshold, dbRecovery, breakerOpts()...)
	netBreaker := resilience.NewBreaker("network", domain.KindNetwork, netThreshold, netRecovery, breakerOpts()...)

	return &QuizService{
		cfg:         cfg,
		questions:   NewQuestionService(deps.Questions, netBreaker, retrier),
		lifecycle:   NewAttemptLifecycleService(deps.Attempts, dbBreaker, retrier, logger),
		answers:     NewAnswerPersistenceService(deps.Attempts, dbBreaker, retrier, deps.Metrics),
		leaderboard: deps.Leaderboard,
		logger:      logger,
		metrics:     deps.Metrics,
		dbBreaker:   dbBreaker,
		netBreaker:  netBreaker,
	}
}

// StartParams identifies one requested quiz run.
type StartParams struct {
	StudentID  string
	LevelID    string
	WeekNo     int
	Difficulty domain.Difficulty
}

// Validate rejects malformed start requests before any remote work.
func (p StartParams) Validate() error {
	if p.StudentID == "" {
		return domain.NewValidationError("studentId is required")
	}
	if p.LevelID == "" {
		return domain.NewValidationError("levelId is required")
	}
	if p.WeekNo <= 0 {
		return domain.NewValidationError("weekNo must be positive")
	}
	switch p.Difficulty {
	case domain.DifficultyEasy, domain.DifficultyMedium, domain.DifficultyHard:
	default:
		return domain.NewValidationError("unknown difficulty")
	}
	return nil
}

// NewSession builds an initialized-pending session for the given run.
// onComplete fires exactly once with the results; the service records
// metrics and updates the leaderboard before handing them over.
func (s *QuizService) NewSession(params StartParams, onComplete func(domain.SessionResults)) (*engine.Session, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	cfg := engine.SessionConfig{
		StudentID:        params.StudentID,
		LevelID:          params.LevelID,
		WeekNo:           params.WeekNo,
		Difficulty:       params.Difficulty,
		TimeLimitSeconds: s.cfg.TimeLimitSeconds(params.Difficulty),
		Lives:            s.cfg.Lives(),
	}

	session := engine.NewSession(cfg, s.questions, s.lifecycle, s.answers,
		s.logger.With(zap.String("studentId", params.StudentID), zap.String("levelId", params.LevelID)),
		func(results domain.SessionResults) {
			s.recordCompletion(results)
			if onComplete != nil {
				onComplete(results)
			}
		})
	return session, nil
}

// recordCompletion updates metrics and the leaderboard read model.
// Best effort through the network breaker: ranking lag never delays
// result delivery.
func (s *QuizService) recordCompletion(results domain.SessionResults) {
	if s.metrics != nil {
		s.metrics.SessionsCompleted.WithLabelValues(string(results.EndReason)).Inc()
	}
	if s.leaderboard == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.netBreaker.Do(ctx, func(ctx context.Context) error {
		return s.leaderboard.RecordScore(ctx, results.LevelID, results.WeekNo, results.StudentID, results.Score)
	})
	if err != nil {
		s.logger.Warn("leaderboard update failed",
			zap.String("levelId", results.LevelID),
			zap.Error(err))
	}
}

// Leaderboard reads the ranking for a level/week.
func (s *QuizService) Leaderboard(ctx context.Context, levelID string, weekNo, limit int) (domain.Leaderboard, error) {
	if s.leaderboard == nil {
		return domain.Leaderboard{LevelID: levelID, WeekNo: weekNo}, nil
	}
	return s.leaderboard.Top(ctx, levelID, weekNo, limit)
}

// ResetBreakers force-closes both circuits. Test and admin use only.
func (s *QuizService) ResetBreakers() {
	s.dbBreaker.Reset()
	s.netBreaker.Reset()
}
