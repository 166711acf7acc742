package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"school-quiz-service/internal/domain"
)

// CatalogLoader fetches quiz content from a backing store.
type CatalogLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Catalog caches quiz content in process memory so the answer-scoring path
// does not hit the backing store on every call. Each entry carries its own
// jittered lifetime; concurrent misses for the same quiz collapse into one
// load.
type Catalog struct {
	loader CatalogLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu      sync.Mutex
	entries map[string]catalogEntry
}

type catalogEntry struct {
	quiz     domain.Quiz
	loadedAt time.Time
	lifetime time.Duration
}

func NewCatalog(loader CatalogLoader, ttl time.Duration) *Catalog {
	return &Catalog{
		loader:  loader,
		ttl:     ttl,
		clock:   time.Now,
		entries: make(map[string]catalogEntry),
	}
}

func (c *Catalog) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := c.cached(quizID); ok {
		return quiz, nil
	}

	result, err, _ := c.sf.Do(quizID, func() (interface{}, error) {
		if quiz, ok := c.cached(quizID); ok {
			return quiz, nil
		}

		quiz, err := c.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}

		c.mu.Lock()
		c.entries[quizID] = catalogEntry{
			quiz:     quiz,
			loadedAt: c.clock(),
			lifetime: jitteredTTL(c.ttl),
		}
		c.mu.Unlock()
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (c *Catalog) cached(quizID string) (domain.Quiz, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[quizID]
	if !ok || c.clock().Sub(entry.loadedAt) >= entry.lifetime {
		return domain.Quiz{}, false
	}
	return entry.quiz, true
}

// jitteredTTL stretches the base TTL by up to 10% so entries loaded together
// do not all expire together.
func jitteredTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return ttl + time.Duration(rand.Int63n(int64(ttl)/10+1))
}

// StaticCatalogLoader serves quizzes from an in-memory map (tests/demos).
type StaticCatalogLoader struct {
	quizzes map[string]domain.Quiz
}

func NewStaticCatalogLoader(quizzes map[string]domain.Quiz) *StaticCatalogLoader {
	return &StaticCatalogLoader{quizzes: quizzes}
}

func (l *StaticCatalogLoader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := l.quizzes[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}
