package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"chart-abtest-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

const datasetKey = "ranking"

// RankingLoader fetches the full ranked dataset from a backing store
// (CSV export, Postgres, ...) in its natural order.
type RankingLoader interface {
	LoadRanking(ctx context.Context) ([]domain.RankedEntity, error)
}

// RankingRepository caches the dataset with TTL to avoid repeated source hits.
type RankingRepository struct {
	loader RankingLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu      sync.RWMutex
	cached  []domain.RankedEntity
	expires time.Time
}

func NewRankingRepository(loader RankingLoader, ttl time.Duration) *RankingRepository {
	return &RankingRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// TopRanked returns at most limit entities sorted by score descending.
// Ties keep the loader's order.
func (r *RankingRepository) TopRanked(ctx context.Context, limit int) ([]domain.RankedEntity, error) {
	dataset, err := r.dataset(ctx)
	if err != nil {
		return nil, err
	}
	return TopN(dataset, limit), nil
}

func (r *RankingRepository) dataset(ctx context.Context) ([]domain.RankedEntity, error) {
	now := r.clock()

	r.mu.RLock()
	if r.cached != nil && r.expires.After(now) {
		cached := r.cached
		r.mu.RUnlock()
		return cached, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(datasetKey, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if r.cached != nil && r.expires.After(now) {
			cached := r.cached
			r.mu.RUnlock()
			return cached, nil
		}
		r.mu.RUnlock()

		dataset, err := r.loader.LoadRanking(ctx)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cached = dataset
		r.expires = now.Add(r.ttlWithJitter())
		r.mu.Unlock()
		return dataset, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.RankedEntity), nil
}

// TopN stable-sorts a copy of dataset by score descending and keeps the first limit entries.
func TopN(dataset []domain.RankedEntity, limit int) []domain.RankedEntity {
	sorted := make([]domain.RankedEntity, len(dataset))
	copy(sorted, dataset)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

// StaticRankingLoader is a simple loader backed by an in-memory slice (useful for tests/demos).
type StaticRankingLoader struct {
	entities []domain.RankedEntity
}

func NewStaticRankingLoader(entities []domain.RankedEntity) *StaticRankingLoader {
	return &StaticRankingLoader{entities: entities}
}

func (l *StaticRankingLoader) LoadRanking(_ context.Context) ([]domain.RankedEntity, error) {
	if len(l.entities) == 0 {
		return nil, domain.ErrDataUnavailable
	}
	out := make([]domain.RankedEntity, len(l.entities))
	copy(out, l.entities)
	return out, nil
}

func (r *RankingRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
