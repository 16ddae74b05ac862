package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"mathquest-quiz-service/internal/domain"
)

// QuestionLoader fetches question banks from a backing store.
type QuestionLoader interface {
	LoadQuestionSet(ctx context.Context, levelID string, weekNo int) (domain.QuestionSet, error)
}

// QuestionRepository caches question sets with TTL to avoid repeated
// backing-store hits.
type QuestionRepository struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedSet
}

type cachedSet struct {
	set       domain.QuestionSet
	expiresAt time.Time
}

func NewQuestionRepository(loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedSet),
	}
}

func (r *QuestionRepository) GetQuestions(ctx context.Context, levelID string, weekNo int) (domain.QuestionSet, error) {
	key := bankKey(levelID, weekNo)
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[key]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.set, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[key]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.set, nil
		}
		r.mu.RUnlock()

		set, err := r.loader.LoadQuestionSet(ctx, levelID, weekNo)
		if err != nil {
			return domain.QuestionSet{}, err
		}

		r.mu.Lock()
		r.cache[key] = cachedSet{
			set:       set,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return set, nil
	})
	if err != nil {
		return domain.QuestionSet{}, err
	}
	return result.(domain.QuestionSet), nil
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

func bankKey(levelID string, weekNo int) string {
	return fmt.Sprintf("%s:%d", levelID, weekNo)
}

// StaticQuestionLoader is a loader backed by an in-memory map, useful
// for tests, demos, and running without Postgres.
type StaticQuestionLoader struct {
	sets map[string]domain.QuestionSet
}

func NewStaticQuestionLoader(sets []domain.QuestionSet) *StaticQuestionLoader {
	byKey := make(map[string]domain.QuestionSet, len(sets))
	for _, set := range sets {
		byKey[bankKey(set.LevelID, set.WeekNo)] = set
	}
	return &StaticQuestionLoader{sets: byKey}
}

func (l *StaticQuestionLoader) LoadQuestionSet(_ context.Context, levelID string, weekNo int) (domain.QuestionSet, error) {
	if set, ok := l.sets[bankKey(levelID, weekNo)]; ok {
		return set, nil
	}
	return domain.QuestionSet{}, domain.ErrQuestionSetNotFound
}
