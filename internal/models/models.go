package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Severity enum
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ParseSeverity normalizes case and surrounding whitespace.
// The second return is false for anything outside low/medium/high.
func ParseSeverity(s string) (Severity, bool) {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return sev, true
	}
	return "", false
}

// DetectionStatus enum
type DetectionStatus string

const (
	DetectionStatusNew      DetectionStatus = "new"
	DetectionStatusReviewed DetectionStatus = "reviewed"
	DetectionStatusResolved DetectionStatus = "resolved"
)

// Camera statuses
const (
	CameraStatusActive = "active"
)

// Location given to cameras the ingest path creates on first sight
const UnknownLocation = "Unknown"

var ErrEmptyViolationType = errors.New("violation type must not be empty")

// Camera model
type Camera struct {
	ID       string  `gorm:"primaryKey;column:id" json:"id"`
	Name     string  `gorm:"column:name;not null" json:"name"`
	Location string  `gorm:"column:location" json:"location"`
	Zone     *string `gorm:"column:zone;index" json:"zone,omitempty"`
	Status   string  `gorm:"column:status;default:active" json:"status"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Camera) TableName() string {
	return "cameras"
}

// ZoneName returns the zone or "" when unassigned
func (c *Camera) ZoneName() string {
	if c == nil || c.Zone == nil {
		return ""
	}
	return *c.Zone
}

// NewAutoCamera is the record created for an unseen camera identifier
func NewAutoCamera(id string) *Camera {
	return &Camera{
		ID:       id,
		Name:     "Camera " + id,
		Location: UnknownLocation,
		Status:   CameraStatusActive,
	}
}

// Detection model - one analyzed frame.
// ViolationType is either the joined violation descriptions or the all clear sentinel.
type Detection struct {
	ID            string          `gorm:"primaryKey;column:id" json:"id"`
	CameraID      *string         `gorm:"column:camera_id;index" json:"cameraId"`
	ViolationType string          `gorm:"column:violation_type;not null" json:"violationType"`
	Confidence    int             `gorm:"column:confidence" json:"confidence"`
	Severity      Severity        `gorm:"column:severity" json:"severity"`
	ImageURL      string          `gorm:"column:image_url" json:"imageUrl"`
	Status        DetectionStatus `gorm:"column:status;default:new" json:"status"`
	HasViolations bool            `gorm:"column:has_violations;index" json:"hasViolations"`
	DetectedAt    time.Time       `gorm:"column:detected_at;autoCreateTime;index" json:"detectedAt"`

	Camera *Camera `gorm:"foreignKey:CameraID;references:ID;constraint:OnDelete:SET NULL" json:"camera,omitempty"`
}

func (Detection) TableName() string {
	return "detections"
}

func (d *Detection) BeforeCreate(tx *gorm.DB) error {
	if strings.TrimSpace(d.ViolationType) == "" {
		return ErrEmptyViolationType
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = DetectionStatusNew
	}
	return nil
}

// Supervisor model - dashboard login, optionally limited to zones
type Supervisor struct {
	ID            string   `gorm:"primaryKey;column:id" json:"id"`
	Username      string   `gorm:"column:username;uniqueIndex;not null" json:"username"`
	PasswordHash  string   `gorm:"column:password_hash;not null" json:"-"`
	FullName      string   `gorm:"column:full_name" json:"fullName"`
	Role          string   `gorm:"column:role;default:supervisor" json:"role"`
	AssignedZones []string `gorm:"column:assigned_zones;serializer:json;type:text" json:"assignedZones"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Supervisor) TableName() string {
	return "supervisors"
}

func (s *Supervisor) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
