package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"datagov-catalog/backend/internal/compliance"
	"datagov-catalog/backend/internal/config"
	"datagov-catalog/backend/internal/logging"
	"datagov-catalog/backend/internal/repository"
	"datagov-catalog/backend/internal/workflows"
)

func main() {
	ctx := context.Background()
	logger := logging.NewLogger()

	configFile := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load config
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to DB
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	// 1. Ensure schema exists
	if err := repository.Migrate(ctx, pool); err != nil {
		log.Fatalf("Failed to migrate schema: %v", err)
	}
	logger.Info("Schema ready")

	// 2. Install default workflows, skipping existing ones
	store := repository.NewPostgresWorkflowStore(pool)
	policyClient := compliance.NewHTTPPolicyClient(cfg.PolicyService.URL)
	capabilities := workflows.DefaultCapabilities(policyClient, cfg.Notifications.WebhookURL, logger)
	catalog := workflows.NewCatalog(store, capabilities, logger)

	created, err := catalog.LoadDefaults(ctx)
	if err != nil {
		log.Fatalf("Failed to load default workflows: %v", err)
	}

	logger.Info("Seeding complete: %d default workflow(s) created", created)
}
