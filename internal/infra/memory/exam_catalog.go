package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"exam-grading-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// ExamLoader fetches exam snapshots from a backing store (e.g., Postgres).
type ExamLoader interface {
	LoadExam(ctx context.Context, examID string) (domain.Exam, error)
}

// ExamCatalog caches exam snapshots with TTL to avoid repeated DB hits. Questions are immutable
// once referenced, so a stale entry can only lag on the published flag.
type ExamCatalog struct {
	loader ExamLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedExam
}

type cachedExam struct {
	exam      domain.Exam
	expiresAt time.Time
}

func NewExamCatalog(loader ExamLoader, ttl time.Duration) *ExamCatalog {
	return &ExamCatalog{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedExam),
	}
}

func (c *ExamCatalog) GetExam(ctx context.Context, examID string) (domain.Exam, error) {
	if exam, ok := c.cached(examID); ok {
		return exam, nil
	}

	result, err, _ := c.sf.Do(examID, func() (interface{}, error) {
		// Re-check in case another goroutine filled it.
		if exam, ok := c.cached(examID); ok {
			return exam, nil
		}

		exam, err := c.loader.LoadExam(ctx, examID)
		if err != nil {
			return domain.Exam{}, err
		}

		if c.ttl <= 0 {
			return exam, nil
		}
		c.mu.Lock()
		c.cache[examID] = cachedExam{
			exam:      exam,
			expiresAt: c.clock().Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return exam, nil
	})
	if err != nil {
		return domain.Exam{}, err
	}
	return result.(domain.Exam), nil
}

func (c *ExamCatalog) cached(examID string) (domain.Exam, bool) {
	now := c.clock()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if entry, ok := c.cache[examID]; ok && entry.expiresAt.After(now) {
		return entry.exam, true
	}
	return domain.Exam{}, false
}

func (c *ExamCatalog) ttlWithJitter() time.Duration {
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// StaticExamLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticExamLoader struct {
	exams map[string]domain.Exam
}

func NewStaticExamLoader(exams map[string]domain.Exam) *StaticExamLoader {
	return &StaticExamLoader{exams: exams}
}

func (l *StaticExamLoader) LoadExam(_ context.Context, examID string) (domain.Exam, error) {
	if exam, ok := l.exams[examID]; ok {
		return exam, nil
	}
	return domain.Exam{}, domain.ErrExamNotFound
}

// UserDirectory resolves names from a fixed map.
type UserDirectory struct {
	names map[string]string
}

func NewUserDirectory(names map[string]string) *UserDirectory {
	return &UserDirectory{names: names}
}

func (d *UserDirectory) DisplayName(_ context.Context, userID string) (string, error) {
	if name, ok := d.names[userID]; ok {
		return name, nil
	}
	return "", domain.ErrUserNotFound
}
