// submit publishes a job submission to the Kafka topic the worker consumes.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"

	"github.com/recipeworks/photo-worker/internal/common"
	"github.com/recipeworks/photo-worker/internal/intake"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	jobID := flag.String("job-id", "", "job id (uuid); generated when empty")
	bucket := flag.String("bucket", "", "source object bucket")
	key := flag.String("key", "", "source object key")
	contentType := flag.String("content-type", "", "expected content type hint (optional)")
	flag.Parse()

	if *bucket == "" || *key == "" {
		log.Fatal("-bucket and -key are required")
	}
	id := *jobID
	if id == "" {
		id = uuid.NewString()
	} else if _, err := uuid.Parse(id); err != nil {
		log.Fatalf("-job-id must be a uuid: %v", err)
	}

	cfg, err := common.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	logger := common.SetupLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	producer := intake.NewProducer(cfg.Kafka, logger)
	defer producer.Close()

	err = producer.Publish(ctx, intake.Submission{
		JobID:               id,
		Bucket:              *bucket,
		Key:                 *key,
		ExpectedContentType: *contentType,
	})
	if err != nil {
		log.Fatalf("publishing submission: %v", err)
	}
	log.Printf("submitted job %s", id)
}
