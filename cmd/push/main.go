package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sumangalagouda/DEV-HACK/internal/config"
	"github.com/sumangalagouda/DEV-HACK/internal/detect"
	"github.com/sumangalagouda/DEV-HACK/internal/ingestclient"
	"github.com/sumangalagouda/DEV-HACK/internal/logging"
	"github.com/sumangalagouda/DEV-HACK/internal/outbox"
)

func main() {
	camera := flag.String("camera", "", "camera id the frames came from")
	violation := flag.String("violation", "", "precomputed violation label, skips remote analysis")
	severity := flag.String("severity", "", "severity for the precomputed label (low, medium, high)")
	drain := flag.Bool("drain", false, "keep retrying pending frames until interrupted")
	interval := flag.Duration("interval", 10*time.Second, "retry interval with -drain")
	retryFailed := flag.Bool("retry-failed", false, "move failed frames back to pending first")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: push [flags] image...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg := config.LoadClient()
	logger := logging.Must(cfg.Log)
	defer logger.Sync()

	queue, err := outbox.New(cfg.OutboxDir, logger)
	if err != nil {
		log.Fatalf("❌ Failed to open outbox: %v", err)
	}

	var cameraID *string
	if *camera != "" {
		cameraID = camera
	}
	for _, path := range flag.Args() {
		if _, err := queue.Enqueue(path, cameraID, *violation, *severity); err != nil {
			log.Fatalf("❌ Failed to queue %s: %v", path, err)
		}
	}

	if *retryFailed {
		n, err := queue.RetryFailed()
		if err != nil {
			log.Fatalf("❌ Failed to retry failed frames: %v", err)
		}
		logger.Info("Failed frames requeued", zap.Int("count", n))
	}

	client := ingestclient.New(cfg.ServerURL, cfg.APIKey, nil, cfg.Timeout)
	queue.SetSender(outbox.SenderFunc(func(ctx context.Context, req detect.Request) (string, error) {
		res, err := client.Detect(ctx, req)
		if err != nil {
			if !ingestclient.Retryable(err) {
				return "", outbox.Permanent(err)
			}
			return "", err
		}
		if res.HasViolations {
			logger.Warn("Violation detected", zap.String("type", res.Detection.ViolationType))
		}
		return res.Detection.ID, nil
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *drain {
		queue.Run(ctx, *interval)
	} else {
		sent, failed, err := queue.ProcessPending(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalf("❌ Push failed: %v", err)
		}
		logger.Info("Push finished", zap.Int("sent", sent), zap.Int("failed", failed))
	}

	stats := queue.Stats()
	fmt.Printf("pending=%d sent=%d failed=%d\n", stats.Pending, stats.Sent, stats.Failed)
}
