package postgres

import (
	"context"
	"fmt"

	"chart-abtest-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// RankingLoader loads ranked rows from the rankings table of a dataset.
type RankingLoader struct {
	pool    *pgxpool.Pool
	dataset string
}

func NewRankingLoader(pool *pgxpool.Pool, dataset string) *RankingLoader {
	return &RankingLoader{pool: pool, dataset: dataset}
}

func (l *RankingLoader) LoadRanking(ctx context.Context) ([]domain.RankedEntity, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT name, score FROM rankings WHERE dataset=$1 ORDER BY position`, l.dataset)
	if err != nil {
		return nil, fmt.Errorf("load ranking: %w", err)
	}
	defer rows.Close()

	var entities []domain.RankedEntity
	for rows.Next() {
		var entity domain.RankedEntity
		if err := rows.Scan(&entity.Name, &entity.Score); err != nil {
			return nil, fmt.Errorf("scan ranking: %w", err)
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load ranking: %w", err)
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("%w: dataset %q has no rows", domain.ErrDataUnavailable, l.dataset)
	}
	return entities, nil
}
