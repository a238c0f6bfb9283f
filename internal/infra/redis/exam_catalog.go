package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"exam-grading-service/internal/domain"
	"exam-grading-service/internal/infra/memory"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// ExamCatalog caches exam snapshots in Redis and falls back to a loader on cache miss.
// Exams are stored as JSON: SET exam:{examID}:definition {json} EX ttl. A non-positive ttl
// disables caching.
type ExamCatalog struct {
	client *redis.Client
	loader memory.ExamLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex
}

func NewExamCatalog(client *redis.Client, loader memory.ExamLoader, ttl time.Duration) *ExamCatalog {
	return &ExamCatalog{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *ExamCatalog) GetExam(ctx context.Context, examID string) (domain.Exam, error) {
	if exam, ok := c.cached(ctx, examID); ok {
		return exam, nil
	}

	result, err, _ := c.sf.Do(examID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if exam, ok := c.cached(ctx, examID); ok {
			return exam, nil
		}

		exam, err := c.loader.LoadExam(ctx, examID)
		if err != nil {
			return domain.Exam{}, err
		}

		if c.ttl <= 0 {
			return exam, nil
		}
		if data, err := json.Marshal(exam); err == nil {
			_ = c.client.Set(ctx, examKey(examID), data, c.ttlWithJitter()).Err()
		}
		return exam, nil
	})
	if err != nil {
		return domain.Exam{}, err
	}
	return result.(domain.Exam), nil
}

func (c *ExamCatalog) cached(ctx context.Context, examID string) (domain.Exam, bool) {
	data, err := c.client.Get(ctx, examKey(examID)).Bytes()
	if err != nil {
		return domain.Exam{}, false
	}
	var exam domain.Exam
	if err := json.Unmarshal(data, &exam); err != nil {
		return domain.Exam{}, false
	}
	return exam, true
}

func (c *ExamCatalog) ttlWithJitter() time.Duration {
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
