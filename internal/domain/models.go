package domain

import "time"

// Difficulty selects the time limit and scoring profile for a session.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// EndReason records why a session reached the completed state.
type EndReason string

const (
	// EndReasonCompleted means every question was resolved with lives remaining.
	EndReasonCompleted EndReason = "completed"
	// EndReasonNoLives means the session ended early after the last life was lost.
	EndReasonNoLives EndReason = "no_lives"
)

// Question models an MCQ question with exactly one correct option.
// Question content is supplied by an external bank and never mutated.
type Question struct {
	ID            string   `json:"id"`
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	Points        int      `json:"points"` // defaults to 1 if zero
}

// QuestionSet is the ordered bank of questions for one level/week.
type QuestionSet struct {
	LevelID   string     `json:"levelId"`
	WeekNo    int        `json:"weekNo"`
	Questions []Question `json:"questions"`
}

// Answer is the resolution of a single question. Append-only: once
// recorded it is never mutated. A nil SelectedAnswer means the question
// timed out before a choice was made.
type Answer struct {
	QuestionID     string        `json:"questionId"`
	SelectedAnswer *string       `json:"selectedAnswer"`
	IsCorrect      bool          `json:"isCorrect"`
	TimeTaken      time.Duration `json:"timeTaken"`
}

// QuizAttempt is the remote record of one quiz run. It is created at
// session start and updated exactly once at finalization.
type QuizAttempt struct {
	ID             string     `json:"id"`
	StudentID      string     `json:"studentId"`
	LevelID        string     `json:"levelId"`
	WeekNo         int        `json:"weekNo"`
	Difficulty     Difficulty `json:"difficulty"`
	TotalQuestions int        `json:"totalQuestions"`
	CorrectAnswers int        `json:"correctAnswers"`
	Score          int        `json:"score"`
	TimeSpent      int        `json:"timeSpent"` // seconds
	StartedAt      time.Time  `json:"startedAt"`
	CompletedAt    *time.Time `json:"completedAt"`
}

// SessionResults is handed to the completion callback exactly once per
// session. Score is the canonical percentage; PointsEarned is the
// supplementary sum of per-question point values.
type SessionResults struct {
	AttemptID      string     `json:"attemptId"`
	StudentID      string     `json:"studentId"`
	LevelID        string     `json:"levelId"`
	WeekNo         int        `json:"weekNo"`
	Difficulty     Difficulty `json:"difficulty"`
	TotalQuestions int        `json:"totalQuestions"`
	CorrectAnswers int        `json:"correctAnswers"`
	Score          int        `json:"score"`
	PointsEarned   int        `json:"pointsEarned"`
	TimeSpent      int        `json:"timeSpent"` // seconds
	Answers        []Answer   `json:"answers"`
	CompletedAt    time.Time  `json:"completedAt"`
	LivesUsed      int        `json:"livesUsed"`
	EndReason      EndReason  `json:"endReason"`
	Synced         bool       `json:"synced"`
}

// Notice is a non-blocking, user-facing notification (e.g. a failed
// answer save). Dismissible by the client; never gates progression.
type Notice struct {
	Message  string    `json:"message"`
	Blocking bool      `json:"blocking"`
	At       time.Time `json:"at"`
}

// LeaderboardEntry is one row of the ranking read model.
type LeaderboardEntry struct {
	StudentID string `json:"studentId"`
	Score     int    `json:"score"`
	Rank      int    `json:"rank"`
}

// Leaderboard is the ordered ranking for a level/week, consumed by
// result screens only.
type Leaderboard struct {
	LevelID   string             `json:"levelId"`
	WeekNo    int                `json:"weekNo"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}
