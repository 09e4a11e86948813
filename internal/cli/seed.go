package cli

import (
	"context"

	"chart-abtest-service/internal/config"
	"chart-abtest-service/internal/infra/csvfile"
	"chart-abtest-service/internal/infra/postgres"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewSeedCmd loads the CSV dataset into the rankings table.
func NewSeedCmd(configPath *string) *cobra.Command {
	var csvPath string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import the ranking CSV into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath, csvPath)
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV file to import (defaults to ranking.csv_path)")
	return cmd
}

func runSeed(ctx context.Context, configPath, csvPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := config.NewLogger(cfg)
	if csvPath == "" {
		csvPath = cfg.Ranking.CSVPath
	}

	entities, err := csvfile.NewRankingLoader(csvPath, cfg.Ranking.NameColumn, cfg.Ranking.ScoreColumn).LoadRanking(ctx)
	if err != nil {
		return err
	}

	if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
		return err
	}
	db, err := openBun(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.SeedRanking(ctx, db, cfg.Ranking.Dataset, entities); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"dataset": cfg.Ranking.Dataset,
		"rows":    len(entities),
	}).Info("ranking seeded")
	return nil
}
