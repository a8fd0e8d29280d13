package database

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sumangalagouda/DEV-HACK/internal/config"
	"github.com/sumangalagouda/DEV-HACK/internal/credentials"
	"github.com/sumangalagouda/DEV-HACK/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	t.Cleanup(func() { _ = Close(db) })
	return NewStore(db, time.Second, false)
}

func strPtr(s string) *string { return &s }

func TestCameraLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	cred := credentials.Credential{}

	_, err := store.FindCamera(ctx, cred, "cam-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.CreateCamera(ctx, cred, models.NewAutoCamera("cam-1")))

	cam, err := store.FindCamera(ctx, cred, "cam-1")
	require.NoError(t, err)
	assert.Equal(t, "Camera cam-1", cam.Name)

	err = store.CreateCamera(ctx, cred, models.NewAutoCamera("cam-1"))
	var storeErr *StoreError
	assert.True(t, errors.As(err, &storeErr))
}

func TestLatestAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	cred := credentials.Credential{}
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateCamera(ctx, cred, &models.Camera{ID: "cam-1", Name: "Gate", Zone: strPtr("Zone A")}))

	rows := []models.Detection{
		{CameraID: strPtr("cam-1"), ViolationType: "Missing helmet", HasViolations: true, DetectedAt: base},
		{CameraID: strPtr("cam-1"), ViolationType: "No violations detected - All Clear", DetectedAt: base.Add(time.Minute)},
		{CameraID: strPtr("cam-2"), ViolationType: "No vest", HasViolations: true, DetectedAt: base.Add(2 * time.Minute)},
	}
	for i := range rows {
		require.NoError(t, store.InsertDetection(ctx, cred, &rows[i]))
	}

	latest, err := store.LatestDetection(ctx, cred, "")
	require.NoError(t, err)
	assert.Equal(t, "No vest", latest.ViolationType)

	latest, err = store.LatestDetection(ctx, cred, "cam-1")
	require.NoError(t, err)
	assert.False(t, latest.HasViolations)
	require.NotNil(t, latest.Camera)
	assert.Equal(t, "Zone A", latest.Camera.ZoneName())

	recent, err := store.RecentViolations(ctx, cred, "", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "No vest", recent[0].ViolationType)
	assert.Equal(t, "Missing helmet", recent[1].ViolationType)

	count, err := store.CountViolations(ctx, cred, base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	_, err = store.LatestDetection(ctx, cred, "cam-unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertRejectsEmptyViolationType(t *testing.T) {
	store := newTestStore(t)

	err := store.InsertDetection(context.Background(), credentials.Credential{}, &models.Detection{})
	assert.ErrorIs(t, err, models.ErrEmptyViolationType)
}

func TestDeleteDetectionsBefore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	cred := credentials.Credential{}
	now := time.Now().UTC()

	old := &models.Detection{ViolationType: "Missing helmet", ImageURL: "http://x/uploads/a.jpg", DetectedAt: now.Add(-48 * time.Hour)}
	fresh := &models.Detection{ViolationType: "Missing helmet", DetectedAt: now}
	require.NoError(t, store.InsertDetection(ctx, cred, old))
	require.NoError(t, store.InsertDetection(ctx, cred, fresh))

	deleted, err := store.DeleteDetectionsBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, old.ID, deleted[0].ID)

	latest, err := store.LatestDetection(ctx, cred, "")
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, latest.ID)
}

func TestDeleteOrphanCameras(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	cred := credentials.Credential{}

	require.NoError(t, store.CreateCamera(ctx, cred, models.NewAutoCamera("used")))
	require.NoError(t, store.CreateCamera(ctx, cred, models.NewAutoCamera("orphan")))
	require.NoError(t, store.CreateCamera(ctx, cred, &models.Camera{ID: "seeded", Name: "Dock", Location: "North"}))
	require.NoError(t, store.InsertDetection(ctx, cred, &models.Detection{CameraID: strPtr("used"), ViolationType: "No vest"}))

	n, err := store.DeleteOrphanCameras(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	cams, err := store.ListCameras(ctx, cred)
	require.NoError(t, err)
	assert.Len(t, cams, 2)
}

func TestSupervisorUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sup := &models.Supervisor{Username: "maya", PasswordHash: "h1", Role: "supervisor", AssignedZones: []string{"Zone A"}}
	require.NoError(t, store.UpsertSupervisor(ctx, sup))

	again := &models.Supervisor{Username: "maya", PasswordHash: "h2", Role: "supervisor", AssignedZones: []string{"Zone A", "Zone B"}}
	require.NoError(t, store.UpsertSupervisor(ctx, again))

	got, err := store.FindSupervisor(ctx, "maya")
	require.NoError(t, err)
	assert.Equal(t, "h2", got.PasswordHash)
	assert.Equal(t, []string{"Zone A", "Zone B"}, got.AssignedZones)

	_, err = store.FindSupervisor(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWrapPostgresError(t *testing.T) {
	err := wrap(fmt.Errorf("insert: %w", &pgconn.PgError{
		Code:    "42501",
		Message: "new row violates row-level security policy",
		Detail:  "policy detections_insert",
		Hint:    "check the policy",
	}))

	var storeErr *StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "42501", storeErr.Code)
	assert.Equal(t, "policy detections_insert", storeErr.Details)
	assert.Equal(t, "check the policy", storeErr.Hint)
}

func TestGormLogLevel(t *testing.T) {
	assert.Equal(t, logger.Info, gormLogLevel("debug"))
	for _, level := range []string{"info", "warn", "error", ""} {
		assert.Equal(t, logger.Warn, gormLogLevel(level), level)
	}
}

func TestConnectMigrates(t *testing.T) {
	db, err := Connect(config.DatabaseConfig{
		Driver: config.DriverSQLite,
		URL:    "file:TestConnectMigrates?mode=memory&cache=shared",
	}, zap.NewNop())
	require.NoError(t, err)
	defer Close(db)

	for _, model := range []interface{}{&models.Camera{}, &models.Detection{}, &models.Supervisor{}} {
		assert.True(t, db.Migrator().HasTable(model))
	}
}
