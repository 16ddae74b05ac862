package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"mathquest-quiz-service/internal/domain"
)

// AttemptStore persists attempt records and per-question answers.
type AttemptStore struct {
	pool *pgxpool.Pool
}

func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

func (s *AttemptStore) CreateAttempt(ctx context.Context, attempt domain.QuizAttempt) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO quiz_attempts
		   (id, student_id, level_id, week_no, difficulty, total_questions, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		attempt.ID, attempt.StudentID, attempt.LevelID, attempt.WeekNo,
		string(attempt.Difficulty), attempt.TotalQuestions, attempt.StartedAt)
	if err != nil {
		return fmt.Errorf("create attempt: %w", err)
	}
	return nil
}

func (s *AttemptStore) SaveAnswer(ctx context.Context, attemptID string, seq int, answer domain.Answer) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO quiz_answers
		   (attempt_id, seq, question_id, selected_answer, is_correct, time_taken_ms)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (attempt_id, seq) DO NOTHING`,
		attemptID, seq, answer.QuestionID, answer.SelectedAnswer,
		answer.IsCorrect, answer.TimeTaken.Milliseconds())
	if err != nil {
		return fmt.Errorf("save answer: %w", err)
	}
	return nil
}

func (s *AttemptStore) UpdateAttempt(ctx context.Context, attemptID string, correctAnswers, score, timeSpent int, completedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE quiz_attempts
		    SET correct_answers=$2, score=$3, time_spent=$4, completed_at=$5
		  WHERE id=$1 AND completed_at IS NULL`,
		attemptID, correctAnswers, score, timeSpent, completedAt)
	if err != nil {
		return fmt.Errorf("finalize attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either unknown or already finalized; both are terminal here.
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM quiz_attempts WHERE id=$1)`, attemptID).Scan(&exists); err == nil && !exists {
			return domain.ErrAttemptNotFound
		}
	}
	return nil
}
