package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyInfersKindFromMessage(t *testing.T) {
	cases := []struct {
		err  error
		kind ErrorKind
	}{
		{errors.New("fetch failed: network unreachable"), KindNetwork},
		{errors.New("request timeout after 5s"), KindNetwork},
		{errors.New("database is starting up"), KindDatabase},
		{errors.New(`relation "quiz_attempts" does not exist`), KindDatabase},
		{errors.New(`column "score" of wrong type`), KindDatabase},
		{errors.New("segmentation fault"), KindUnknown},
	}
	for _, tc := range cases {
		got := Classify(tc.err)
		if got.Kind != tc.kind {
			t.Fatalf("Classify(%q): expected %s, got %s", tc.err, tc.kind, got.Kind)
		}
		if got.UserMessage == "" {
			t.Fatalf("Classify(%q): missing user message", tc.err)
		}
	}
}

func TestClassifyPassesThroughClassified(t *testing.T) {
	original := NewSaveError("insert failed", errors.New("io broken"))
	wrapped := fmt.Errorf("persist answer: %w", original)

	got := Classify(wrapped)
	if got != original {
		t.Fatalf("expected classified error passed through, got %+v", got)
	}
}

func TestClassifyNilIsNil(t *testing.T) {
	if Classify(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestUnknownErrorHidesTechnicalDetail(t *testing.T) {
	cause := errors.New("panic: index out of range [4]")
	got := Classify(cause)
	if got.Kind != KindUnknown {
		t.Fatalf("expected unknown, got %s", got.Kind)
	}
	if got.UserMessage == cause.Error() {
		t.Fatalf("user message must not leak technical detail")
	}
	if !errors.Is(got, cause) {
		t.Fatalf("expected cause preserved for logging")
	}
}

func TestClassifiedErrorContext(t *testing.T) {
	err := NewDatabaseError("update failed", nil).
		WithContext("attemptId", "a-1").
		WithContext("op", "finalize")
	if err.Context["attemptId"] != "a-1" || err.Context["op"] != "finalize" {
		t.Fatalf("expected context preserved, got %v", err.Context)
	}
}
