package memory

import (
	"context"
	"testing"
	"time"

	"mathquest-quiz-service/internal/domain"
)

func TestAttemptStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewAttemptStore()

	attempt := domain.QuizAttempt{ID: "a-1", StudentID: "s-1", TotalQuestions: 3, StartedAt: time.Now()}
	if err := store.CreateAttempt(ctx, attempt); err != nil {
		t.Fatalf("create: %v", err)
	}

	selected := "7"
	if err := store.SaveAnswer(ctx, "a-1", 0, domain.Answer{QuestionID: "q1", SelectedAnswer: &selected, IsCorrect: true}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got := store.Answers("a-1"); len(got) != 1 {
		t.Fatalf("expected 1 answer, got %d", len(got))
	}

	completedAt := time.Now()
	if err := store.UpdateAttempt(ctx, "a-1", 2, 67, 40, completedAt); err != nil {
		t.Fatalf("update: %v", err)
	}
	stored, ok := store.Attempt("a-1")
	if !ok || stored.Score != 67 || stored.CompletedAt == nil {
		t.Fatalf("expected finalized attempt, got %+v", stored)
	}
}

func TestAttemptStoreUnknownAttempt(t *testing.T) {
	ctx := context.Background()
	store := NewAttemptStore()

	if err := store.SaveAnswer(ctx, "missing", 0, domain.Answer{}); err != domain.ErrAttemptNotFound {
		t.Fatalf("expected ErrAttemptNotFound, got %v", err)
	}
	if err := store.UpdateAttempt(ctx, "missing", 0, 0, 0, time.Now()); err != domain.ErrAttemptNotFound {
		t.Fatalf("expected ErrAttemptNotFound, got %v", err)
	}
}
