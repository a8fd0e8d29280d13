package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/sumangalagouda/DEV-HACK/internal/config"
	"github.com/sumangalagouda/DEV-HACK/internal/credentials"
	"github.com/sumangalagouda/DEV-HACK/internal/database"
	"github.com/sumangalagouda/DEV-HACK/internal/logging"
	"github.com/sumangalagouda/DEV-HACK/internal/models"
)

var sampleCameras = []struct {
	id, name, location, zone string
}{
	{"CAM-01", "North Gate", "Site entrance", "Zone A"},
	{"CAM-02", "Scaffold East", "Tower block, level 3", "Zone A"},
	{"CAM-03", "Crane Yard", "Material yard", "Zone B"},
	{"CAM-04", "Welding Bay", "Workshop", "Zone C"},
}

func main() {
	username := flag.String("supervisor", "", "supervisor username to create or update")
	password := flag.String("password", "", "supervisor password")
	fullName := flag.String("name", "", "supervisor full name")
	role := flag.String("role", "supervisor", "supervisor role claim")
	zones := flag.String("zones", "", "comma separated zones assigned to the supervisor")
	skipCameras := flag.Bool("skip-cameras", false, "do not create the sample cameras")
	flag.Parse()

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

	store := database.NewStore(db, cfg.Database.Timeout, false)
	ctx := context.Background()

	fmt.Println("🌱 Starting seed...")

	if !*skipCameras {
		for _, sc := range sampleCameras {
			zone := sc.zone
			cam := &models.Camera{
				ID:       sc.id,
				Name:     sc.name,
				Location: sc.location,
				Zone:     &zone,
				Status:   models.CameraStatusActive,
			}
			if err := store.UpsertCamera(ctx, cam); err != nil {
				log.Fatalf("Failed to seed camera %s: %v", sc.id, err)
			}
		}
		fmt.Printf("✅ Seeded %d cameras\n", len(sampleCameras))
	}

	if *username == "" {
		fmt.Println("Seed finished successfully")
		return
	}
	if *password == "" {
		log.Fatalf("❌ -password is required with -supervisor")
	}

	hash, err := credentials.HashPassword(*password)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	sup := &models.Supervisor{
		Username:      *username,
		PasswordHash:  hash,
		FullName:      *fullName,
		Role:          *role,
		AssignedZones: splitZones(*zones),
	}
	if err := store.UpsertSupervisor(ctx, sup); err != nil {
		log.Fatalf("Failed to seed supervisor: %v", err)
	}
	fmt.Printf("✅ Supervisor %s ready (zones: %s)\n", sup.Username, strings.Join(sup.AssignedZones, ", "))
	fmt.Println("Seed finished successfully")
}

func splitZones(raw string) []string {
	var zones []string
	for _, z := range strings.Split(raw, ",") {
		if z = strings.TrimSpace(z); z != "" {
			zones = append(zones, z)
		}
	}
	return zones
}
