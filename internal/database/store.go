package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sumangalagouda/DEV-HACK/internal/credentials"
	"github.com/sumangalagouda/DEV-HACK/internal/models"
)

// Store is the data access layer. Every call runs under the caller's
// credential so that row level policies see the right identity.
type Store struct {
	db         *gorm.DB
	timeout    time.Duration
	switchRole bool
}

// NewStore wraps an open connection
func NewStore(db *gorm.DB, timeout time.Duration, switchRole bool) *Store {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Store{db: db, timeout: timeout, switchRole: switchRole}
}

// DB exposes the connection for maintenance commands
func (s *Store) DB() *gorm.DB {
	return s.db
}

// scoped runs fn in a short transaction carrying the caller's claims.
// Drivers without row level security just get the timeout.
func (s *Store) scoped(ctx context.Context, cred credentials.Credential, fn func(tx *gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	db := s.db.WithContext(ctx)
	if db.Dialector.Name() != "postgres" || !cred.Verified {
		return wrap(fn(db))
	}

	claims, err := json.Marshal(cred.ClaimsMap())
	if err != nil {
		return fmt.Errorf("failed to encode claims: %w", err)
	}

	return wrap(db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT set_config('request.jwt.claims', ?, true)", string(claims)).Error; err != nil {
			return err
		}
		if s.switchRole && cred.Role != "" {
			if err := tx.Exec("SET LOCAL ROLE " + pgx.Identifier{cred.Role}.Sanitize()).Error; err != nil {
				return err
			}
		}
		return fn(tx)
	}))
}

// FindCamera looks a camera up by id
func (s *Store) FindCamera(ctx context.Context, cred credentials.Credential, id string) (*models.Camera, error) {
	var cam models.Camera
	err := s.scoped(ctx, cred, func(tx *gorm.DB) error {
		return tx.Where("id = ?", id).First(&cam).Error
	})
	if err != nil {
		return nil, err
	}
	return &cam, nil
}

// CreateCamera inserts a camera
func (s *Store) CreateCamera(ctx context.Context, cred credentials.Credential, cam *models.Camera) error {
	return s.scoped(ctx, cred, func(tx *gorm.DB) error {
		return tx.Create(cam).Error
	})
}

// UpsertCamera inserts or updates name, location and zone
func (s *Store) UpsertCamera(ctx context.Context, cam *models.Camera) error {
	return s.scoped(ctx, credentials.Credential{}, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "location", "zone", "status", "updated_at"}),
		}).Create(cam).Error
	})
}

// ListCameras returns every camera ordered by name
func (s *Store) ListCameras(ctx context.Context, cred credentials.Credential) ([]models.Camera, error) {
	var cameras []models.Camera
	err := s.scoped(ctx, cred, func(tx *gorm.DB) error {
		return tx.Order("name ASC").Find(&cameras).Error
	})
	return cameras, err
}

// InsertDetection persists one detection; ID and timestamp are filled in
func (s *Store) InsertDetection(ctx context.Context, cred credentials.Credential, det *models.Detection) error {
	return s.scoped(ctx, cred, func(tx *gorm.DB) error {
		return tx.Omit("Camera").Create(det).Error
	})
}

// LatestDetection returns the newest detection, optionally for one camera.
// Returns ErrNotFound when there is none.
func (s *Store) LatestDetection(ctx context.Context, cred credentials.Credential, cameraID string) (*models.Detection, error) {
	var det models.Detection
	err := s.scoped(ctx, cred, func(tx *gorm.DB) error {
		q := tx.Preload("Camera").Order("detected_at DESC")
		if cameraID != "" {
			q = q.Where("camera_id = ?", cameraID)
		}
		return q.First(&det).Error
	})
	if err != nil {
		return nil, err
	}
	return &det, nil
}

// RecentViolations returns the newest detections flagged as violations
func (s *Store) RecentViolations(ctx context.Context, cred credentials.Credential, cameraID string, limit int) ([]models.Detection, error) {
	if limit <= 0 {
		limit = 10
	}
	var dets []models.Detection
	err := s.scoped(ctx, cred, func(tx *gorm.DB) error {
		q := tx.Preload("Camera").Where("has_violations = ?", true).Order("detected_at DESC").Limit(limit)
		if cameraID != "" {
			q = q.Where("camera_id = ?", cameraID)
		}
		return q.Find(&dets).Error
	})
	return dets, err
}

// CountViolations counts violation detections in [from, to)
func (s *Store) CountViolations(ctx context.Context, cred credentials.Credential, from, to time.Time) (int64, error) {
	var count int64
	err := s.scoped(ctx, cred, func(tx *gorm.DB) error {
		return tx.Model(&models.Detection{}).
			Where("has_violations = ? AND detected_at >= ? AND detected_at < ?", true, from, to).
			Count(&count).Error
	})
	return count, err
}

// DeleteDetectionsBefore removes detections older than cutoff and returns them
func (s *Store) DeleteDetectionsBefore(ctx context.Context, cutoff time.Time) ([]models.Detection, error) {
	var deleted []models.Detection
	err := s.scoped(ctx, credentials.Credential{}, func(tx *gorm.DB) error {
		return tx.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("detected_at < ?", cutoff).Find(&deleted).Error; err != nil {
				return err
			}
			if len(deleted) == 0 {
				return nil
			}
			return tx.Where("detected_at < ?", cutoff).Delete(&models.Detection{}).Error
		})
	})
	return deleted, err
}

// DeleteOrphanCameras removes auto-created cameras no detection references
func (s *Store) DeleteOrphanCameras(ctx context.Context) (int64, error) {
	var affected int64
	err := s.scoped(ctx, credentials.Credential{}, func(tx *gorm.DB) error {
		res := tx.Where("location = ?", models.UnknownLocation).
			Where("id NOT IN (?)", tx.Model(&models.Detection{}).Distinct("camera_id").Where("camera_id IS NOT NULL")).
			Delete(&models.Camera{})
		affected = res.RowsAffected
		return res.Error
	})
	return affected, err
}

// FindSupervisor looks a supervisor up by username. Login happens before
// there is a caller identity, so this is not scoped.
func (s *Store) FindSupervisor(ctx context.Context, username string) (*models.Supervisor, error) {
	var sup models.Supervisor
	err := s.scoped(ctx, credentials.Credential{}, func(tx *gorm.DB) error {
		return tx.Where("username = ?", username).First(&sup).Error
	})
	if err != nil {
		return nil, err
	}
	return &sup, nil
}

// UpsertSupervisor creates or updates a supervisor by username
func (s *Store) UpsertSupervisor(ctx context.Context, sup *models.Supervisor) error {
	return s.scoped(ctx, credentials.Credential{}, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "username"}},
			DoUpdates: clause.AssignmentColumns([]string{"password_hash", "full_name", "role", "assigned_zones", "updated_at"}),
		}).Create(sup).Error
	})
}
