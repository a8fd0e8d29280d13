// Package events carries detection inserts over NATS so live status
// projectors can follow them.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/sumangalagouda/DEV-HACK/internal/models"
)

// SubjectPrefix is followed by the camera token
const SubjectPrefix = "detections.insert"

// NoCamera is the token for detections without a camera
const NoCamera = "_none"

const (
	TypeInsert     = "INSERT"
	DetectionTable = "detections"
)

// Record is a detection as it travels on the wire. HasViolations is a
// pointer so producers that never set it are classified from the text.
type Record struct {
	ID            string    `json:"id"`
	CameraID      *string   `json:"cameraId"`
	ViolationType string    `json:"violationType"`
	Confidence    int       `json:"confidence"`
	Severity      string    `json:"severity"`
	ImageURL      string    `json:"imageUrl"`
	Status        string    `json:"status"`
	HasViolations *bool     `json:"hasViolations,omitempty"`
	DetectedAt    time.Time `json:"detectedAt"`
}

// RecordFromDetection copies a persisted detection
func RecordFromDetection(d *models.Detection) Record {
	flag := d.HasViolations
	return Record{
		ID:            d.ID,
		CameraID:      d.CameraID,
		ViolationType: d.ViolationType,
		Confidence:    d.Confidence,
		Severity:      string(d.Severity),
		ImageURL:      d.ImageURL,
		Status:        string(d.Status),
		HasViolations: &flag,
		DetectedAt:    d.DetectedAt,
	}
}

// InsertEvent is published after a detection is committed
type InsertEvent struct {
	Type            string    `json:"type"`
	Table           string    `json:"table"`
	Record          Record    `json:"record"`
	CameraZone      string    `json:"cameraZone,omitempty"`
	CommitTimestamp time.Time `json:"commitTimestamp"`
}

// Subject returns the subject a detection for cameraID is published on
func Subject(cameraID *string) string {
	if cameraID == nil || *cameraID == "" {
		return SubjectPrefix + "." + NoCamera
	}
	return SubjectPrefix + "." + Token(*cameraID)
}

// SubjectFilter is the subscription subject; "" follows every camera
func SubjectFilter(cameraID string) string {
	if cameraID == "" {
		return SubjectPrefix + ".*"
	}
	return SubjectPrefix + "." + Token(cameraID)
}

// Token makes a camera id safe as a single subject token
func Token(cameraID string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, cameraID)
}

// Subscription is what SubscribeInserts hands back
type Subscription interface {
	Unsubscribe() error
}

// PublishObserver is told about publish outcomes
type PublishObserver interface {
	EventPublished(ok bool)
}

// Bus publishes and subscribes to detection inserts
type Bus struct {
	conn     *nats.Conn
	logger   *zap.Logger
	observer PublishObserver
	now      func() time.Time
}

// NewBus wraps a NATS connection
func NewBus(conn *nats.Conn, logger *zap.Logger) *Bus {
	return &Bus{conn: conn, logger: logger, now: time.Now}
}

// SetObserver wires metrics
func (b *Bus) SetObserver(o PublishObserver) {
	b.observer = o
}

// PublishInsert announces a committed detection
func (b *Bus) PublishInsert(_ context.Context, det *models.Detection, zone string) error {
	event := InsertEvent{
		Type:            TypeInsert,
		Table:           DetectionTable,
		Record:          RecordFromDetection(det),
		CameraZone:      zone,
		CommitTimestamp: b.now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode detection event: %w", err)
	}

	err = b.conn.Publish(Subject(det.CameraID), data)
	if b.observer != nil {
		b.observer.EventPublished(err == nil)
	}
	if err != nil {
		return fmt.Errorf("failed to publish detection event: %w", err)
	}
	return nil
}

// SubscribeInserts delivers inserts for one camera, or all when cameraID is "".
// NATS calls handler sequentially, in publish order.
func (b *Bus) SubscribeInserts(cameraID string, handler func(InsertEvent)) (Subscription, error) {
	sub, err := b.conn.Subscribe(SubjectFilter(cameraID), func(msg *nats.Msg) {
		var event InsertEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			b.logger.Warn("Dropping malformed detection event",
				zap.String("subject", msg.Subject),
				zap.Error(err))
			return
		}
		// Tokens are lossy ("gate.1" and "gate_1" share a subject)
		if cameraID != "" && (event.Record.CameraID == nil || *event.Record.CameraID != cameraID) {
			return
		}
		handler(event)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", SubjectFilter(cameraID), err)
	}
	return sub, nil
}
