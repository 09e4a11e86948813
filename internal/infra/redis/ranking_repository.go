package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"chart-abtest-service/internal/domain"
	"chart-abtest-service/internal/infra/memory"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// RankingRepository caches the dataset in Redis and falls back to a loader on cache miss.
// Entries are stored in loader order as: RPUSH ranking:{dataset} {json entity}...
type RankingRepository struct {
	client  *redis.Client
	loader  memory.RankingLoader
	dataset string
	ttl     time.Duration
	sf      singleflight.Group
	rnd     *rand.Rand
	rndMu   sync.Mutex
	log     logrus.FieldLogger
}

func NewRankingRepository(client *redis.Client, loader memory.RankingLoader, dataset string, ttl time.Duration) *RankingRepository {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	return &RankingRepository{
		client:  client,
		loader:  loader,
		dataset: dataset,
		ttl:     ttl,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		log:     discard,
	}
}

// WithLogger sets where cache write failures are reported.
func (r *RankingRepository) WithLogger(log logrus.FieldLogger) *RankingRepository {
	if log != nil {
		r.log = log
	}
	return r
}

func (r *RankingRepository) TopRanked(ctx context.Context, limit int) ([]domain.RankedEntity, error) {
	if cached, ok := r.readCache(ctx); ok {
		return memory.TopN(cached, limit), nil
	}

	result, err, _ := r.sf.Do(r.dataset, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if cached, ok := r.readCache(ctx); ok {
			return cached, nil
		}

		dataset, err := r.loader.LoadRanking(ctx)
		if err != nil {
			return nil, err
		}
		// a failed cache write still serves the loaded data
		if err := r.writeCache(ctx, dataset); err != nil {
			r.log.WithError(err).WithField("dataset", r.dataset).Warn("ranking cache write failed")
		}
		return dataset, nil
	})
	if err != nil {
		return nil, err
	}
	return memory.TopN(result.([]domain.RankedEntity), limit), nil
}

// Invalidate drops the cached dataset so the next read goes to the loader.
func (r *RankingRepository) Invalidate(ctx context.Context) error {
	return r.client.Del(ctx, r.key()).Err()
}

func (r *RankingRepository) readCache(ctx context.Context) ([]domain.RankedEntity, bool) {
	raw, err := r.client.LRange(ctx, r.key(), 0, -1).Result()
	if err != nil || len(raw) == 0 {
		return nil, false
	}
	entities := make([]domain.RankedEntity, 0, len(raw))
	for _, item := range raw {
		var entity domain.RankedEntity
		if err := json.Unmarshal([]byte(item), &entity); err != nil {
			return nil, false
		}
		entities = append(entities, entity)
	}
	return entities, true
}

func (r *RankingRepository) writeCache(ctx context.Context, dataset []domain.RankedEntity) error {
	values := make([]interface{}, 0, len(dataset))
	for _, entity := range dataset {
		encoded, err := json.Marshal(entity)
		if err != nil {
			return fmt.Errorf("encode ranking entry: %w", err)
		}
		values = append(values, string(encoded))
	}

	key := r.key()
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.RPush(ctx, key, values...)
	if ttl := r.ttlWithJitter(); ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write ranking cache: %w", err)
	}
	return nil
}

func (r *RankingRepository) key() string {
	return "ranking:" + r.dataset
}

func (r *RankingRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
