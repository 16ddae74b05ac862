package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mathquest-quiz-service/internal/domain"
)

// Leaderboard keeps a per-level/week sorted set of best scores. Updated
// once per finalized attempt; read by result screens only.
type Leaderboard struct {
	client *redis.Client
}

func NewLeaderboard(client *redis.Client) *Leaderboard {
	return &Leaderboard{client: client}
}

// RecordScore stores the student's score if it beats their previous best.
func (l *Leaderboard) RecordScore(ctx context.Context, levelID string, weekNo int, studentID string, score int) error {
	key := leaderboardKey(levelID, weekNo)

	current, err := l.client.ZScore(ctx, key, studentID).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("read leaderboard score: %w", err)
	}
	if err == nil && current >= float64(score) {
		return nil
	}

	if err := l.client.ZAdd(ctx, key, redis.Z{Score: float64(score), Member: studentID}).Err(); err != nil {
		return fmt.Errorf("record leaderboard score: %w", err)
	}
	return nil
}

// Top returns the highest scores, best first.
func (l *Leaderboard) Top(ctx context.Context, levelID string, weekNo, limit int) (domain.Leaderboard, error) {
	if limit <= 0 {
		limit = 10
	}
	key := leaderboardKey(levelID, weekNo)

	rows, err := l.client.ZRevRangeWithScores(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("read leaderboard: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(rows))
	for i, row := range rows {
		member, _ := row.Member.(string)
		entries = append(entries, domain.LeaderboardEntry{
			StudentID: member,
			Score:     int(row.Score),
			Rank:      i + 1,
		})
	}
	return domain.Leaderboard{
		LevelID:   levelID,
		WeekNo:    weekNo,
		Entries:   entries,
		UpdatedAt: time.Now(),
	}, nil
}

func leaderboardKey(levelID string, weekNo int) string {
	return fmt.Sprintf("quiz:leaderboard:%s:%d", levelID, weekNo)
}
