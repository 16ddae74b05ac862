package memory

import (
	"context"
	"sync"
	"time"

	"mathquest-quiz-service/internal/domain"
)

// AttemptStore is an in-memory implementation of the attempt record
// store, for tests and running without Postgres.
type AttemptStore struct {
	mu       sync.RWMutex
	attempts map[string]*domain.QuizAttempt
	answers  map[string][]domain.Answer
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts: make(map[string]*domain.QuizAttempt),
		answers:  make(map[string][]domain.Answer),
	}
}

func (s *AttemptStore) CreateAttempt(_ context.Context, attempt domain.QuizAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := attempt
	s.attempts[attempt.ID] = &copied
	return nil
}

func (s *AttemptStore) SaveAnswer(_ context.Context, attemptID string, _ int, answer domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempts[attemptID]; !ok {
		return domain.ErrAttemptNotFound
	}
	s.answers[attemptID] = append(s.answers[attemptID], answer)
	return nil
}

func (s *AttemptStore) UpdateAttempt(_ context.Context, attemptID string, correctAnswers, score, timeSpent int, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	attempt.CorrectAnswers = correctAnswers
	attempt.Score = score
	attempt.TimeSpent = timeSpent
	attempt.CompletedAt = &completedAt
	return nil
}

// Attempt returns a stored attempt; test helper.
func (s *AttemptStore) Attempt(attemptID string) (domain.QuizAttempt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.QuizAttempt{}, false
	}
	return *attempt, true
}

// Answers returns the saved answers for an attempt; test helper.
func (s *AttemptStore) Answers(attemptID string) []domain.Answer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Answer(nil), s.answers[attemptID]...)
}
