// Package detect implements frame ingestion: analyze, store the image,
// classify, resolve the camera, persist, and announce.
package detect

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/sumangalagouda/DEV-HACK/internal/analysis"
	"github.com/sumangalagouda/DEV-HACK/internal/credentials"
	"github.com/sumangalagouda/DEV-HACK/internal/database"
	"github.com/sumangalagouda/DEV-HACK/internal/imagestore"
	"github.com/sumangalagouda/DEV-HACK/internal/metrics"
	"github.com/sumangalagouda/DEV-HACK/internal/models"
	"github.com/sumangalagouda/DEV-HACK/internal/violation"
)

// Messages returned with a successful ingestion
const (
	MessageViolation = "Safety violation detected!"
	MessageClear     = "No violations detected - all safety protocols followed"
)

// DefaultConfidence is used when the analysis reported none
const DefaultConfidence = 0.75

const (
	defaultPersistDetails = "Failed to save detection to database. Check RLS policies or database connection."
	defaultPersistHint    = "Make sure RLS policies allow INSERT on detections, or disable RLS for testing"
)

// Store is the persistence the pipeline needs
type Store interface {
	FindCamera(ctx context.Context, cred credentials.Credential, id string) (*models.Camera, error)
	CreateCamera(ctx context.Context, cred credentials.Credential, cam *models.Camera) error
	InsertDetection(ctx context.Context, cred credentials.Credential, det *models.Detection) error
}

// Analyzer produces a judgement for a frame
type Analyzer interface {
	Analyze(ctx context.Context, in analysis.Input) (*analysis.Result, error)
}

// Publisher announces committed detections
type Publisher interface {
	PublishInsert(ctx context.Context, det *models.Detection, zone string) error
}

// Request is one frame submitted for analysis
type Request struct {
	ImageBase64   string  `json:"imageBase64"`
	CameraID      *string `json:"cameraId"`
	ViolationType string  `json:"violationType,omitempty"`
	Severity      string  `json:"severity,omitempty"`
}

// Result is the success envelope
type Result struct {
	Success       bool              `json:"success"`
	HasViolations bool              `json:"hasViolations"`
	Detection     *models.Detection `json:"detection"`
	Analysis      *analysis.Result  `json:"analysis"`
	Message       string            `json:"message"`
}

// Pipeline runs the ingestion steps
type Pipeline struct {
	store     Store
	analyzer  Analyzer
	images    imagestore.Store
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger

	// known camera id -> zone, so repeat frames skip the lookup
	cameras *cache.Cache
	now     func() time.Time
}

// NewPipeline wires the required collaborators
func NewPipeline(store Store, analyzer Analyzer, images imagestore.Store, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		store:    store,
		analyzer: analyzer,
		images:   images,
		logger:   logger,
		cameras:  cache.New(10*time.Minute, 20*time.Minute),
		now:      time.Now,
	}
}

// SetPublisher sets the event publisher used after each insert
func (p *Pipeline) SetPublisher(pub Publisher) {
	p.publisher = pub
}

// SetMetrics sets the metrics collector
func (p *Pipeline) SetMetrics(m *metrics.Metrics) {
	p.metrics = m
}

// Ingest processes one frame under the caller's credential
func (p *Pipeline) Ingest(ctx context.Context, req Request, cred credentials.Credential) (*Result, error) {
	start := p.now()
	res, err := p.ingest(ctx, req, cred)

	outcome := "clear"
	switch {
	case err != nil:
		outcome = string(AsError(err).Kind)
	case res.HasViolations:
		outcome = "violation"
	}
	p.metrics.ObserveIngest(outcome, p.now().Sub(start))
	return res, err
}

func (p *Pipeline) ingest(ctx context.Context, req Request, cred credentials.Credential) (*Result, error) {
	if strings.TrimSpace(req.ImageBase64) == "" {
		return nil, ClientError("No image data provided", "imageBase64 is required")
	}

	var severity string
	if strings.TrimSpace(req.Severity) != "" {
		sev, ok := models.ParseSeverity(req.Severity)
		if !ok {
			return nil, ClientError("Invalid severity", "severity must be one of low, medium, high")
		}
		severity = string(sev)
	}

	judgement, err := p.analyzer.Analyze(ctx, analysis.Input{
		ImageBase64:   req.ImageBase64,
		ViolationType: req.ViolationType,
		Severity:      severity,
	})
	if err != nil {
		p.logger.Warn("No analysis available, recording for manual review", zap.Error(err))
		judgement, _ = analysis.Placeholder{}.Analyze(ctx, analysis.Input{})
		judgement.Source = analysis.TierPlaceholder
	}

	imageURL := p.storeImage(ctx, req.ImageBase64)
	decision := violation.Classify(judgement.Violations)
	requested := normalizeCameraID(req.CameraID)
	cameraID, zone, cached := p.resolveCamera(ctx, cred, requested)

	det := &models.Detection{
		CameraID:      cameraID,
		ViolationType: decision.ViolationType,
		Confidence:    confidencePercent(judgement.Confidence),
		Severity:      detectionSeverity(judgement.Severity, decision.HasViolation),
		ImageURL:      imageURL,
		Status:        models.DetectionStatusNew,
		HasViolations: decision.HasViolation,
	}

	err = p.store.InsertDetection(ctx, cred, det)
	if err != nil && cached {
		// The camera may have been deleted since it was cached
		p.logger.Warn("Insert failed with cached camera, resolving again",
			zap.String("camera", *requested),
			zap.Error(err))
		p.cameras.Delete(*requested)
		det.CameraID, zone = p.lookupCamera(ctx, cred, requested)
		err = p.store.InsertDetection(ctx, cred, det)
	}
	if err != nil {
		return nil, persistenceError(err)
	}

	p.logger.Info("Detection saved",
		zap.String("id", det.ID),
		zap.Stringp("camera", det.CameraID),
		zap.Bool("hasViolations", det.HasViolations),
		zap.String("analysis", judgement.Source))

	if p.publisher != nil {
		if err := p.publisher.PublishInsert(ctx, det, zone); err != nil {
			p.logger.Warn("Failed to publish detection event", zap.String("id", det.ID), zap.Error(err))
		}
	}

	message := MessageClear
	if decision.HasViolation {
		message = MessageViolation
	}
	return &Result{
		Success:       true,
		HasViolations: decision.HasViolation,
		Detection:     det,
		Analysis:      judgement,
		Message:       message,
	}, nil
}

// storeImage never fails; problems fall back to the placeholder URL
func (p *Pipeline) storeImage(ctx context.Context, payload string) string {
	img, err := imagestore.Decode(payload)
	if err != nil {
		p.logger.Warn("Image decode failed, using placeholder", zap.Error(err))
		p.metrics.StorageFailed()
		return imagestore.PlaceholderURL
	}

	url, err := p.images.Put(ctx, imagestore.ObjectName(p.now(), img.Ext), img.Data, img.ContentType)
	if err != nil {
		p.logger.Warn("Image upload failed, using placeholder", zap.Error(err))
		p.metrics.StorageFailed()
		return imagestore.PlaceholderURL
	}
	return url
}

// resolveCamera returns the id to store, the camera's zone and whether the
// answer came from the cache. Unknown ids are created on the fly; if that
// fails the detection is stored without one.
func (p *Pipeline) resolveCamera(ctx context.Context, cred credentials.Credential, id *string) (*string, string, bool) {
	if id == nil {
		return nil, "", false
	}
	if zone, ok := p.cameras.Get(*id); ok {
		p.metrics.CameraResolved("cached")
		return id, zone.(string), true
	}
	cameraID, zone := p.lookupCamera(ctx, cred, id)
	return cameraID, zone, false
}

func (p *Pipeline) lookupCamera(ctx context.Context, cred credentials.Credential, id *string) (*string, string) {
	cam, err := p.store.FindCamera(ctx, cred, *id)
	if err == nil {
		p.cameras.SetDefault(*id, cam.ZoneName())
		p.metrics.CameraResolved("found")
		return id, cam.ZoneName()
	}
	if !errors.Is(err, database.ErrNotFound) {
		p.logger.Warn("Camera lookup failed, trying to create it",
			zap.String("camera", *id),
			zap.Error(err))
	}

	cam = models.NewAutoCamera(*id)
	if err := p.store.CreateCamera(ctx, cred, cam); err != nil {
		// A concurrent first frame for the same camera may have won the insert
		if existing, findErr := p.store.FindCamera(ctx, cred, *id); findErr == nil {
			p.cameras.SetDefault(*id, existing.ZoneName())
			p.metrics.CameraResolved("found")
			return id, existing.ZoneName()
		}
		p.logger.Warn("Camera creation failed, storing detection without camera",
			zap.String("camera", *id),
			zap.Error(err))
		p.metrics.CameraResolved("failed")
		return nil, ""
	}

	p.logger.Info("Camera created", zap.String("camera", *id))
	p.cameras.SetDefault(*id, "")
	p.metrics.CameraResolved("created")
	return id, ""
}

func persistenceError(err error) *Error {
	if errors.Is(err, models.ErrEmptyViolationType) {
		return InternalError(err)
	}
	de := &Error{
		Kind:    KindPersistence,
		Message: err.Error(),
		Details: defaultPersistDetails,
		Hint:    defaultPersistHint,
		Err:     err,
	}
	var storeErr *database.StoreError
	if errors.As(err, &storeErr) {
		de.Message = storeErr.Message
		de.Code = storeErr.Code
		if storeErr.Details != "" {
			de.Details = storeErr.Details
		}
		if storeErr.Hint != "" {
			de.Hint = storeErr.Hint
		}
	}
	return de
}

func normalizeCameraID(id *string) *string {
	if id == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*id)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// confidencePercent maps 0..1 to an integer percentage
func confidencePercent(c float64) int {
	if c <= 0 {
		c = DefaultConfidence
	}
	if c > 1 {
		c = 1
	}
	return int(math.Round(c * 100))
}

func detectionSeverity(reported string, hasViolation bool) models.Severity {
	if sev, ok := models.ParseSeverity(reported); ok {
		return sev
	}
	if hasViolation {
		return models.SeverityHigh
	}
	return models.SeverityLow
}
