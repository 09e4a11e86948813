package postgres

import (
	"context"
	"fmt"

	"chart-abtest-service/internal/domain"
	"github.com/uptrace/bun"
)

type rankingRow struct {
	bun.BaseModel `bun:"table:rankings"`

	Dataset  string  `bun:"dataset,pk"`
	Position int     `bun:"position,pk"`
	Name     string  `bun:"name,notnull"`
	Score    float64 `bun:"score,notnull"`
}

// SeedRanking replaces the rows of dataset with entities, keeping their order.
func SeedRanking(ctx context.Context, db *bun.DB, dataset string, entities []domain.RankedEntity) error {
	rows := make([]rankingRow, 0, len(entities))
	for i, entity := range entities {
		rows = append(rows, rankingRow{
			Dataset:  dataset,
			Position: i + 1,
			Name:     entity.Name,
			Score:    entity.Score,
		})
	}

	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*rankingRow)(nil)).Where("dataset = ?", dataset).Exec(ctx); err != nil {
			return fmt.Errorf("clear dataset %q: %w", dataset, err)
		}
		if len(rows) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert dataset %q: %w", dataset, err)
		}
		return nil
	})
}
