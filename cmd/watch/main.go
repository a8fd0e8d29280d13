package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sumangalagouda/DEV-HACK/internal/config"
	"github.com/sumangalagouda/DEV-HACK/internal/events"
	"github.com/sumangalagouda/DEV-HACK/internal/ingestclient"
	"github.com/sumangalagouda/DEV-HACK/internal/livestatus"
	"github.com/sumangalagouda/DEV-HACK/internal/logging"
)

func main() {
	camera := flag.String("camera", "", "camera id to follow (default all cameras)")
	quiet := flag.Duration("quiet", livestatus.DefaultQuietPeriod, "quiet period before a violation clears")
	bell := flag.Bool("bell", true, "ring the terminal bell on alerts")
	flag.Parse()

	cfg := config.LoadClient()
	logger := logging.Must(cfg.Log)
	defer logger.Sync()

	conn, err := nats.Connect(cfg.NATSURL, nats.Name("ppe-watch"), nats.MaxReconnects(-1))
	if err != nil {
		log.Fatalf("❌ Failed to connect to NATS: %v", err)
	}
	defer conn.Close()

	client := ingestclient.New(cfg.ServerURL, cfg.APIKey, nil, cfg.Timeout)

	projector := livestatus.New(livestatus.Options{
		CameraID:    *camera,
		QuietPeriod: *quiet,
		Source:      events.NewBus(conn, logger),
		Fetcher:     client.Fetcher(),
		Logger:      logger,
	})
	projector.OnUpdate(func(u livestatus.Update) {
		printUpdate(u, *bell)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := projector.Start(ctx); err != nil {
		log.Fatalf("❌ Failed to start live status: %v", err)
	}
	defer projector.Stop()

	target := *camera
	if target == "" {
		target = "all cameras"
	}
	fmt.Printf("📺 Watching %s (state: %s)\n", target, projector.State())

	<-ctx.Done()
}

func printUpdate(u livestatus.Update, bell bool) {
	ts := time.Now().Format("15:04:05")
	if u.Row == nil {
		fmt.Printf("%s  %-10s\n", ts, u.State)
		return
	}

	camera := "-"
	if u.Row.CameraID != nil {
		camera = *u.Row.CameraID
	}

	prefix := ""
	if u.Alert {
		prefix = "🚨 "
		if bell {
			prefix = "\a" + prefix
		}
	}
	fmt.Printf("%s%s  %-10s %-8s %s (%d%%)\n", prefix, ts, u.State, camera, u.Row.ViolationType, u.Row.Confidence)
}
