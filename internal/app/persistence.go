package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mathquest-quiz-service/internal/domain"
	"mathquest-quiz-service/internal/observability"
	"mathquest-quiz-service/internal/resilience"
)

// AttemptStore abstracts the remote attempt records (Postgres,
// in-memory). Mutations are keyed by attempt ID; only success or
// failure is exposed, no partial-write semantics.
type AttemptStore interface {
	CreateAttempt(ctx context.Context, attempt domain.QuizAttempt) error
	SaveAnswer(ctx context.Context, attemptID string, seq int, answer domain.Answer) error
	UpdateAttempt(ctx context.Context, attemptID string, correctAnswers, score, timeSpent int, completedAt time.Time) error
}

// QuestionRepository loads question banks (from cache/backing store).
type QuestionRepository interface {
	GetQuestions(ctx context.Context, levelID string, weekNo int) (domain.QuestionSet, error)
}

// LeaderboardStore is the ranking read model updated at finalization
// and consumed by result screens.
type LeaderboardStore interface {
	RecordScore(ctx context.Context, levelID string, weekNo int, studentID string, score int) error
	Top(ctx context.Context, levelID string, weekNo, limit int) (domain.Leaderboard, error)
}

// AttemptLifecycleService creates and finalizes attempts through the
// database circuit breaker and retry policy.
type AttemptLifecycleService struct {
	store   AttemptStore
	breaker *resilience.Breaker
	retrier *resilience.Retrier
	logger  *zap.Logger
}

func NewAttemptLifecycleService(store AttemptStore, breaker *resilience.Breaker, retrier *resilience.Retrier, logger *zap.Logger) *AttemptLifecycleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttemptLifecycleService{store: store, breaker: breaker, retrier: retrier, logger: logger}
}

// CreateAttempt registers a new pending attempt and returns its ID. On
// exhausted retries the classified error is blocking: without an
// attempt identity the session cannot proceed.
func (s *AttemptLifecycleService) CreateAttempt(ctx context.Context, attempt domain.QuizAttempt) (string, error) {
	attempt.ID = uuid.NewString()
	err := s.retrier.Do(ctx, func(ctx context.Context) error {
		return s.breaker.Do(ctx, func(ctx context.Context) error {
			if err := s.store.CreateAttempt(ctx, attempt); err != nil {
				return classifyStoreErr(err, "create attempt")
			}
			return nil
		})
	})
	if err != nil {
		return "", err
	}
	s.logger.Info("attempt created",
		zap.String("attemptId", attempt.ID),
		zap.String("studentId", attempt.StudentID),
		zap.String("levelId", attempt.LevelID))
	return attempt.ID, nil
}

// FinalizeAttempt writes the attempt outcome. Callers treat a terminal
// failure as degraded, never blocking: results are still delivered.
func (s *AttemptLifecycleService) FinalizeAttempt(ctx context.Context, attemptID string, correctAnswers, score, timeSpent int, completedAt time.Time) error {
	return s.retrier.Do(ctx, func(ctx context.Context) error {
		return s.breaker.Do(ctx, func(ctx context.Context) error {
			err := s.store.UpdateAttempt(ctx, attemptID, correctAnswers, score, timeSpent, completedAt)
			if err != nil {
				return classifyStoreErr(err, "finalize attempt")
			}
			return nil
		})
	})
}

// AnswerPersistenceService appends resolved answers through the
// database circuit breaker and the save retry schedule. Invoked as a
// detached task; the quiz never waits on it.
type AnswerPersistenceService struct {
	store   AttemptStore
	breaker *resilience.Breaker
	retrier *resilience.Retrier
	metrics *observability.Metrics
}

func NewAnswerPersistenceService(store AttemptStore, breaker *resilience.Breaker, retrier *resilience.Retrier, metrics *observability.Metrics) *AnswerPersistenceService {
	return &AnswerPersistenceService{store: store, breaker: breaker, retrier: retrier, metrics: metrics}
}

func (s *AnswerPersistenceService) SaveAnswer(ctx context.Context, attemptID string, seq int, answer domain.Answer) error {
	err := s.retrier.Do(ctx, func(ctx context.Context) error {
		return s.breaker.Do(ctx, func(ctx context.Context) error {
			if err := s.store.SaveAnswer(ctx, attemptID, seq, answer); err != nil {
				return domain.NewSaveError("save answer", err).WithContext("attemptId", attemptID)
			}
			return nil
		})
	})
	if s.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "failed"
		}
		s.metrics.AnswerSaves.WithLabelValues(outcome).Inc()
	}
	return err
}

// QuestionService wraps the question repository with the network
// circuit breaker and the question-load retry schedule.
type QuestionService struct {
	repo    QuestionRepository
	breaker *resilience.Breaker
	retrier *resilience.Retrier
}

func NewQuestionService(repo QuestionRepository, breaker *resilience.Breaker, retrier *resilience.Retrier) *QuestionService {
	return &QuestionService{repo: repo, breaker: breaker, retrier: retrier}
}

func (s *QuestionService) GetQuestions(ctx context.Context, levelID string, weekNo int) (domain.QuestionSet, error) {
	var set domain.QuestionSet
	err := s.retrier.Do(ctx, func(ctx context.Context) error {
		return s.breaker.Do(ctx, func(ctx context.Context) error {
			loaded, err := s.repo.GetQuestions(ctx, levelID, weekNo)
			if err != nil {
				return domain.NewQuestionLoadError("load question set", err).
					WithContext("levelId", levelID)
			}
			set = loaded
			return nil
		})
	})
	return set, err
}

// classifyStoreErr keeps already-classified errors (breaker rejections)
// intact and maps raw store failures to the database kind.
func classifyStoreErr(err error, op string) error {
	classified := domain.Classify(err)
	if classified.Kind != domain.KindUnknown {
		return classified
	}
	return domain.NewDatabaseError(op, err)
}
