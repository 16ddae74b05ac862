package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mathquest-quiz-service/internal/app"
	"mathquest-quiz-service/internal/domain"
)

type WSHandler struct {
	service  *app.QuizService
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	Option string `json:"option"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type noticePayload struct {
	Message  string `json:"message"`
	Blocking bool   `json:"blocking"`
}

// ServeWS upgrades the request to a websocket and binds it to one quiz
// session: inbound messages drive the session, outbound messages stream
// view-state snapshots, notices, and the final results.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	params, err := startParamsFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	results := make(chan domain.SessionResults, 1)
	session, err := h.service.NewSession(params, func(r domain.SessionResults) {
		select {
		case results <- r:
		default:
		}
	})
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer session.Close()

	updates, cancel := session.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	pumpDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	go func() {
		defer close(pumpDone)
		for {
			var msg outboundMessage[any]
			select {
			case view, ok := <-updates:
				if !ok {
					return
				}
				msg = outboundMessage[any]{Type: "state", Payload: view}
			case notice := <-session.Notices():
				msg = outboundMessage[any]{Type: "notice", Payload: noticePayload{Message: notice.Message, Blocking: notice.Blocking}}
			case r := <-results:
				msg = outboundMessage[any]{Type: "results", Payload: r}
			case <-closeSignals:
				return
			}
			select {
			case send <- msg:
			case <-closeSignals:
				return
			}
		}
	}()

	// Initialization retries can take seconds; run it off the read loop
	// so the client sees loading and error states as they happen.
	go func() {
		if err := session.Initialize(r.Context()); err != nil {
			h.logger.Warn("session initialize failed", zap.Error(err))
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "start":
			session.Start()
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.Option == "" {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
				continue
			}
			session.Answer(payload.Option)
		case "next":
			session.Next()
		case "pause":
			session.TogglePause()
		case "retry":
			go func() {
				if err := session.RetryInitialize(r.Context()); err != nil {
					h.logger.Warn("session retry failed", zap.Error(err))
				}
			}()
		case "restart":
			go func() {
				if err := session.Restart(r.Context()); err != nil {
					h.logger.Warn("session restart failed", zap.Error(err))
				}
			}()
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-pumpDone
	close(send)
	<-writerDone
}

func startParamsFromQuery(r *http.Request) (app.StartParams, error) {
	q := r.URL.Query()
	weekNo, _ := strconv.Atoi(q.Get("weekNo"))
	params := app.StartParams{
		StudentID:  q.Get("studentId"),
		LevelID:    q.Get("levelId"),
		WeekNo:     weekNo,
		Difficulty: domain.Difficulty(q.Get("difficulty")),
	}
	if params.Difficulty == "" {
		params.Difficulty = domain.DifficultyEasy
	}
	if err := params.Validate(); err != nil {
		return app.StartParams{}, err
	}
	return params, nil
}

// LeaderboardHandler serves the weekly ranking read model.
type LeaderboardHandler struct {
	service *app.QuizService
}

func NewLeaderboardHandler(service *app.QuizService) *LeaderboardHandler {
	return &LeaderboardHandler{service: service}
}

func (h *LeaderboardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	levelID := r.URL.Query().Get("levelId")
	weekNo, _ := strconv.Atoi(r.URL.Query().Get("weekNo"))
	if levelID == "" || weekNo <= 0 {
		http.Error(w, "missing levelId or weekNo", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	board, err := h.service.Leaderboard(r.Context(), levelID, weekNo, limit)
	if err != nil {
		http.Error(w, "leaderboard unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(board)
}
