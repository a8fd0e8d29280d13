package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/sumangalagouda/DEV-HACK/internal/config"
	"github.com/sumangalagouda/DEV-HACK/internal/database"
	"github.com/sumangalagouda/DEV-HACK/internal/imagestore"
	"github.com/sumangalagouda/DEV-HACK/internal/logging"
)

func main() {
	days := flag.Int("days", 30, "delete detections older than this many days")
	orphans := flag.Bool("orphans", false, "also delete auto-created cameras with no detections left")
	flag.Parse()

	if *days < 1 {
		log.Fatalf("❌ -days must be at least 1")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	logger := logging.Must(cfg.Log)
	defer logger.Sync()

	db, err := database.Connect(cfg.Database, logger)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	store := database.NewStore(db, time.Minute, false)
	ctx := context.Background()

	fmt.Println("Start cleanup...")

	cutoff := time.Now().AddDate(0, 0, -*days)
	deleted, err := store.DeleteDetectionsBefore(ctx, cutoff)
	if err != nil {
		log.Fatalf("Failed to delete detections: %v", err)
	}
	fmt.Printf("✅ Deleted %d detections before %s\n", len(deleted), cutoff.Format(time.DateOnly))

	// Bucket images are managed by the bucket's own lifecycle rules
	if cfg.Storage.Driver == config.StorageLocal {
		local, err := imagestore.NewLocalStore(cfg.Storage.UploadDir, cfg.Storage.PublicBaseURL)
		if err != nil {
			log.Fatalf("Failed to open upload dir: %v", err)
		}
		removed := 0
		for _, det := range deleted {
			ok, err := local.Remove(det.ImageURL)
			if err != nil {
				logger.Warn("Failed to remove image", zap.String("url", det.ImageURL), zap.Error(err))
				continue
			}
			if ok {
				removed++
			}
		}
		fmt.Printf("✅ Removed %d images\n", removed)
	}

	if *orphans {
		n, err := store.DeleteOrphanCameras(ctx)
		if err != nil {
			log.Fatalf("Failed to delete orphan cameras: %v", err)
		}
		fmt.Printf("✅ Deleted %d orphan cameras\n", n)
	}

	fmt.Println("Cleanup finished successfully")
}
