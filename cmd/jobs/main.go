package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/lifecycle"
	"github.com/Ramsey-B/clover/pkg/notify"
	"github.com/Ramsey-B/clover/pkg/repositories"
)

var days int

func main() {
	rootCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Run donation request lifecycle batch jobs",
	}
	rootCmd.PersistentFlags().IntVar(&days, "days", 0, "age window in days (0 uses the default)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "flag-unmatched",
		Short: "Flag stale unmatched requests for admin review",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd.Context(), func(ctx context.Context, service *lifecycle.Service) (*lifecycle.JobResult, error) {
				return service.FlagUnmatched(ctx, days)
			})
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "close-unmatched",
		Short: "Close stale or expired unmatched requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd.Context(), func(ctx context.Context, service *lifecycle.Service) (*lifecycle.JobResult, error) {
				return service.CloseUnmatched(ctx, days)
			})
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runJob(ctx context.Context, job func(context.Context, *lifecycle.Service) (*lifecycle.JobResult, error)) error {
	_ = godotenv.Load()

	cfg := &config.Config{}
	if err := ectoenv.BindEnv(cfg); err != nil {
		log.Fatalf("failed to bind config: %v", err)
	}

	zapLogger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	logger := zapadapter.NewZapEctoLogger(zapLogger, nil)

	db, err := connect(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	service, err := buildService(cfg, logger, db)
	if err != nil {
		return err
	}

	result, err := job(ctx, service)
	if err != nil {
		return err
	}

	if result.NoOp {
		fmt.Println("no matching requests")
		return nil
	}
	fmt.Printf("affected %d requests\n", result.Count)
	return nil
}

func connect(cfg *config.Config) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost,
		cfg.DatabasePort,
		cfg.DatabaseUserName,
		cfg.DatabasePassword,
		cfg.DatabaseName,
		cfg.DatabaseSSLMode,
	)
	return sqlx.Connect(cfg.DatabaseDriver, dsn)
}

func buildService(cfg *config.Config, logger ectologger.Logger, db *sqlx.DB) (*lifecycle.Service, error) {
	dbInstance := database.NewDatabaseInstance(db, logger)

	producer := kafka.NewProducer(kafka.Config{
		Brokers:           cfg.KafkaBrokers,
		NotificationTopic: cfg.KafkaNotificationTopic,
		ErrorTopic:        cfg.KafkaErrorTopic,
	}, logger)

	actorRepo := repositories.NewActorRepository(dbInstance, logger)
	requestRepo := repositories.NewRequestRepository(dbInstance, logger)
	notificationRepo := repositories.NewNotificationRepository(dbInstance, logger)
	fanout := notify.NewFanout(actorRepo, notificationRepo, producer, logger)

	return lifecycle.NewService(requestRepo, fanout, logger), nil
}
