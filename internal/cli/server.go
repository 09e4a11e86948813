package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chart-abtest-service/internal/app"
	"chart-abtest-service/internal/config"
	"chart-abtest-service/internal/domain"
	"chart-abtest-service/internal/infra/csvfile"
	"chart-abtest-service/internal/infra/memory"
	pgloader "chart-abtest-service/internal/infra/postgres"
	redisstore "chart-abtest-service/internal/infra/redis"
	transport "chart-abtest-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the A/B test server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil && os.IsNotExist(err) {
		return config.Default(), nil
	}
	return cfg, err
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	log := config.NewLogger(cfg)

	if cfg.Ranking.Source == "postgres" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 30*time.Minute)

	loader, closeLoader, err := newRankingLoader(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLoader()

	rankingTTL := config.TTLDuration(cfg.Ranking.TTL, 5*time.Minute)
	var rankings app.RankingRepository
	if redisClient != nil {
		rankings = redisstore.NewRankingRepository(redisClient, loader, cfg.Ranking.Dataset, rankingTTL).WithLogger(log)
	} else {
		rankings = memory.NewRankingRepository(loader, rankingTTL)
	}

	var store app.SessionRepository
	if redisClient != nil {
		store = redisstore.NewSessionStore(redisClient, redisTTL)
	} else {
		store = memory.NewSessionStore()
	}

	service := app.NewTrialService(store, rankings, app.Settings{
		TopN:     cfg.Trial.TopN,
		Question: cfg.Trial.Question,
		Title:    cfg.Ranking.Title,
	}, log)
	apiHandler := transport.NewAPIHandler(service, log)
	wsHandler := transport.NewWSHandler(service, log, config.TTLDuration(cfg.Trial.TickInterval, transport.DefaultTickInterval))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	apiHandler.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"port":    finalPort,
			"ranking": cfg.Ranking.Source,
		}).Info("starting chart A/B test service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server...")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newRankingLoader(ctx context.Context, cfg config.Config) (memory.RankingLoader, func(), error) {
	switch cfg.Ranking.Source {
	case "csv":
		return csvfile.NewRankingLoader(cfg.Ranking.CSVPath, cfg.Ranking.NameColumn, cfg.Ranking.ScoreColumn), func() {}, nil
	case "postgres":
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, err
		}
		return pgloader.NewRankingLoader(pool, cfg.Ranking.Dataset), pool.Close, nil
	default:
		return memory.NewStaticRankingLoader(sampleRanking()), func() {}, nil
	}
}

// sampleRanking is the championship rings dataset used when no source is configured.
func sampleRanking() []domain.RankedEntity {
	return []domain.RankedEntity{
		{Name: "Bill Russell", Score: 11},
		{Name: "Sam Jones", Score: 10},
		{Name: "Tom Heinsohn", Score: 8},
		{Name: "K.C. Jones", Score: 8},
		{Name: "Satch Sanders", Score: 8},
		{Name: "John Havlicek", Score: 8},
		{Name: "Jim Loscutoff", Score: 7},
		{Name: "Frank Ramsey", Score: 7},
		{Name: "Robert Horry", Score: 7},
		{Name: "Michael Jordan", Score: 6},
		{Name: "Kareem Abdul-Jabbar", Score: 6},
		{Name: "Scottie Pippen", Score: 6},
	}
}
