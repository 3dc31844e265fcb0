// export writes an XLSX workbook of processed recipes to a local file.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/recipeworks/photo-worker/internal/common"
	"github.com/recipeworks/photo-worker/internal/export"
	"github.com/recipeworks/photo-worker/internal/repository"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	out := flag.String("out", "recipes.xlsx", "output file path")
	flag.Parse()

	cfg, err := common.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if cfg.Database.DSN == "" {
		log.Fatal("database.dsn (PW_DB_URL) is required")
	}
	logger := common.SetupLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	db, pool, err := repository.Open(ctx, repository.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		DialTimeout:     cfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		log.Fatalf("opening DB: %v", err)
	}
	defer repository.Close(db, pool, logger)

	if err := repository.HealthCheck(ctx, pool, 3*time.Second); err != nil {
		log.Fatalf("DB health: %v", err)
	}

	recipes := repository.NewRecipeRepository(db, repository.DialectPostgres, logger)
	svc := export.NewService(recipes, logger)

	start := time.Now()
	data, err := svc.ExportRecipesXLSX(ctx)
	if err != nil {
		log.Fatalf("exporting: %v", err)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		log.Fatalf("writing %s: %v", *out, err)
	}
	log.Printf("wrote %s (%d bytes) in %s", *out, len(data), time.Since(start))
}
