// The worker daemon: consumes job submissions from Kafka, runs the
// verify/OCR/persist pipeline against S3 and Textract, and records results
// in Postgres. Also serves Prometheus metrics and a gRPC health endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/recipeworks/photo-worker/internal/blobstore"
	"github.com/recipeworks/photo-worker/internal/common"
	"github.com/recipeworks/photo-worker/internal/intake"
	"github.com/recipeworks/photo-worker/internal/metrics"
	"github.com/recipeworks/photo-worker/internal/ocrengine"
	"github.com/recipeworks/photo-worker/internal/pipeline"
	"github.com/recipeworks/photo-worker/internal/repository"
	"github.com/recipeworks/photo-worker/internal/runtime"
	"github.com/recipeworks/photo-worker/internal/statuscache"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := common.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	logger := common.SetupLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	db, pool, err := repository.Open(ctx, repository.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		DialTimeout:     cfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer repository.Close(db, pool, logger)

	if err := repository.HealthCheck(ctx, pool, 3*time.Second); err != nil {
		log.Fatalf("database health: %v", err)
	}
	if err := repository.Migrate(ctx, db, logger); err != nil {
		log.Fatalf("applying migrations: %v", err)
	}

	// AWS clients
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3.Region))
	if err != nil {
		log.Fatalf("loading AWS config: %v", err)
	}
	blobs := blobstore.NewS3Store(s3.NewFromConfig(awsCfg), logger)
	engine := ocrengine.NewTextract(textract.NewFromConfig(awsCfg), cfg.OCR.MaxPages, logger)

	// Optional terminal-status cache
	var cache *statuscache.Cache
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, continuing without status cache", "error", err)
		} else {
			cache = statuscache.New(client, cfg.Redis.TTL, logger)
			defer cache.Close()
		}
	}

	m := metrics.New()

	recipes := repository.NewRecipeRepository(db, repository.DialectPostgres, logger)
	jobs := repository.NewJobRepository(db, repository.DialectPostgres, logger)

	var tagging *pipeline.TaggingStage
	if cfg.Tagging.Enabled {
		tagging = pipeline.NewTaggingStage(recipes, blobs, cfg.S3.Bucket, cfg.Tagging.SchemaVersion, logger)
	}
	processor := pipeline.NewProcessor(
		pipeline.NewVerifyStage(blobs, cfg.OCR.MaxObjectBytes, logger),
		pipeline.NewOCRStage(engine, blobs, cfg.S3.Bucket, logger),
		pipeline.NewPersistStage(recipes, blobs, cfg.S3.Bucket, logger),
		tagging,
		recipes,
		cfg.Retry,
		m,
		logger,
	)
	rt := runtime.New(jobs, processor, cache, cfg.Worker, logger)
	consumer := intake.NewConsumer(cfg.Kafka, rt.Submit, m, logger)

	// gRPC health endpoint
	grpcServer := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.Health.GRPCAddr)
	if err != nil {
		log.Fatalf("listen %s: %v", cfg.Health.GRPCAddr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	metricsServer := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("worker pool starting", "pool_size", cfg.Worker.PoolSize)
		return rt.Run(ctx)
	})
	g.Go(func() error {
		logger.Info("intake consumer starting", "topic", cfg.Kafka.Topic, "group", cfg.Kafka.GroupID)
		return consumer.Run(ctx)
	})
	g.Go(func() error {
		logger.Info("gRPC health serving", "addr", cfg.Health.GRPCAddr)
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		logger.Info("metrics serving", "addr", cfg.Metrics.Addr)
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		grpcServer.GracefulStop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
