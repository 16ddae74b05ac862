package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"mathquest-quiz-service/internal/app"
	"mathquest-quiz-service/internal/config"
	"mathquest-quiz-service/internal/domain"
	"mathquest-quiz-service/internal/infra/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, *memory.AttemptStore) {
	t.Helper()
	store := memory.NewAttemptStore()
	questionRepo := memory.NewQuestionRepository(memory.NewStaticQuestionLoader(sampleSets()), time.Minute)
	service := app.NewQuizService(config.Config{}, app.Deps{
		Questions: questionRepo,
		Attempts:  store,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", NewWSHandler(service, nil).ServeWS)
	mux.Handle("/leaderboard", NewLeaderboardHandler(service))
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, store
}

func sampleSets() []domain.QuestionSet {
	return []domain.QuestionSet{
		{
			LevelID: "level-1",
			WeekNo:  1,
			Questions: []domain.Question{
				{ID: "q1", Prompt: "3 + 4?", Options: []string{"6", "7", "8", "9"}, CorrectAnswer: "7"},
				{ID: "q2", Prompt: "9 - 5?", Options: []string{"3", "4", "5", "6"}, CorrectAnswer: "4"},
			},
		},
	}
}

func TestWebSocketQuizFlow(t *testing.T) {
	server, store := newTestServer(t)

	u := "ws" + server.URL[len("http"):] + "/ws?studentId=s1&levelId=level-1&weekNo=1&difficulty=easy"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitForStatus(conn, t, "ready")

	writeMsg(conn, t, "start", nil)
	waitForStatus(conn, t, "active")

	writeMsg(conn, t, "answer", map[string]any{"option": "7"})
	waitForStatus(conn, t, "feedback")
	writeMsg(conn, t, "next", nil)

	writeMsg(conn, t, "answer", map[string]any{"option": "4"})
	waitForStatus(conn, t, "feedback")
	writeMsg(conn, t, "next", nil)

	results := waitForType(conn, t, "results")
	if results["score"].(float64) != 100 {
		t.Fatalf("expected score 100, got %v", results["score"])
	}
	if results["endReason"].(string) != "completed" {
		t.Fatalf("expected endReason completed, got %v", results["endReason"])
	}

	attempt, ok := store.Attempt(results["attemptId"].(string))
	if !ok {
		t.Fatalf("attempt not persisted")
	}
	if attempt.Score != 100 || attempt.CompletedAt == nil {
		t.Fatalf("attempt not finalized: %+v", attempt)
	}
}

func TestWebSocketRejectsBadParams(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/ws?levelId=level-1&weekNo=1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestWebSocketStateOmitsAnswerKey(t *testing.T) {
	server, _ := newTestServer(t)

	u := "ws" + server.URL[len("http"):] + "/ws?studentId=s1&levelId=level-1&weekNo=1&difficulty=easy"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var raw json.RawMessage
		if err := conn.ReadJSON(&raw); err != nil {
			t.Fatalf("read: %v", err)
		}
		var msg struct {
			Type    string         `json:"type"`
			Payload map[string]any `json:"payload"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.Type != "state" {
			continue
		}
		if _, leaked := msg.Payload["correctAnswer"]; leaked {
			t.Fatalf("state payload leaks the answer key: %s", raw)
		}
		if msg.Payload["status"] == "ready" {
			return
		}
	}
}

func TestLeaderboardHandlerValidation(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/leaderboard?levelId=level-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	resp2, err := http.Get(server.URL + "/leaderboard?levelId=level-1&weekNo=1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp2.StatusCode)
	}
	var board domain.Leaderboard
	if err := json.NewDecoder(resp2.Body).Decode(&board); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if board.LevelID != "level-1" || board.WeekNo != 1 {
		t.Fatalf("unexpected board scope: %+v", board)
	}
}

func writeMsg(conn *websocket.Conn, t *testing.T, msgType string, payload map[string]any) {
	t.Helper()
	msg := map[string]any{"type": msgType}
	if payload != nil {
		msg["payload"] = payload
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

// waitForType reads until a message of the given type arrives.
func waitForType(conn *websocket.Conn, t *testing.T, want string) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg struct {
			Type    string         `json:"type"`
			Payload map[string]any `json:"payload"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		if msg.Type == want {
			return msg.Payload
		}
	}
}

// waitForStatus reads state messages until the session reaches status.
func waitForStatus(conn *websocket.Conn, t *testing.T, status string) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg struct {
			Type    string         `json:"type"`
			Payload map[string]any `json:"payload"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for status %s: %v", status, err)
		}
		if msg.Type == "state" && msg.Payload["status"] == status {
			return
		}
	}
}
