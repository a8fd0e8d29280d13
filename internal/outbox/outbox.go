// Package outbox is a file-backed queue of frames waiting to be ingested.
//
// Each entry is a directory holding entry.json and a copy of the image.
// Entries move between pending/, sent/ and failed/ by renaming the
// directory, so a crash never leaves a half-written entry in two places.
package outbox

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sumangalagouda/DEV-HACK/internal/detect"
)

// Status of an entry
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

const (
	entryFile         = "entry.json"
	defaultMaxRetries = 5
)

// Entry is one queued frame
type Entry struct {
	ID            string    `json:"id"`
	CameraID      *string   `json:"cameraId,omitempty"`
	ViolationType string    `json:"violationType,omitempty"`
	Severity      string    `json:"severity,omitempty"`
	Image         string    `json:"image"`
	Status        Status    `json:"status"`
	Retries       int       `json:"retries"`
	Error         string    `json:"error,omitempty"`
	DetectionID   string    `json:"detectionId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Stats counts entries per state
type Stats struct {
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
	Sent    int `json:"sent"`
}

// Sender delivers a request and returns the stored detection id
type Sender interface {
	Send(ctx context.Context, req detect.Request) (string, error)
}

// SenderFunc adapts a function to Sender
type SenderFunc func(ctx context.Context, req detect.Request) (string, error)

func (f SenderFunc) Send(ctx context.Context, req detect.Request) (string, error) {
	return f(ctx, req)
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks a send error that retrying cannot fix
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err}
}

// Queue is the outbox
type Queue struct {
	pendingDir string
	sentDir    string
	failedDir  string
	maxRetries int
	logger     *zap.Logger

	// mu serializes processing so one entry is never sent twice
	mu     sync.Mutex
	sender Sender
	now    func() time.Time
}

// New opens (and creates) an outbox under baseDir
func New(baseDir string, logger *zap.Logger) (*Queue, error) {
	q := &Queue{
		pendingDir: filepath.Join(baseDir, string(StatusPending)),
		sentDir:    filepath.Join(baseDir, string(StatusSent)),
		failedDir:  filepath.Join(baseDir, string(StatusFailed)),
		maxRetries: defaultMaxRetries,
		logger:     logger,
		now:        time.Now,
	}

	for _, dir := range []string{q.pendingDir, q.sentDir, q.failedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return q, nil
}

// SetSender sets where entries are delivered
func (q *Queue) SetSender(sender Sender) {
	q.mu.Lock()
	q.sender = sender
	q.mu.Unlock()
}

// Enqueue copies an image into the outbox
func (q *Queue) Enqueue(imagePath string, cameraID *string, violationType, severity string) (*Entry, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image %s is empty", imagePath)
	}

	now := q.now()
	entry := &Entry{
		ID:            uuid.New().String(),
		CameraID:      cameraID,
		ViolationType: violationType,
		Severity:      severity,
		Image:         "image" + filepath.Ext(imagePath),
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	dir := filepath.Join(q.pendingDir, entry.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, entry.Image), data, 0o644); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	if err := writeEntry(q.pendingDir, entry); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	q.logger.Debug("Frame queued", zap.String("id", entry.ID), zap.String("image", imagePath))
	return entry, nil
}

// ProcessPending tries every pending entry once, oldest first
func (q *Queue) ProcessPending(ctx context.Context) (sent, failed int, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.sender == nil {
		return 0, 0, errors.New("outbox has no sender")
	}

	entries, err := loadEntries(q.pendingDir, q.logger)
	if err != nil {
		return 0, 0, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})

	for _, entry := range entries {
		if ctx.Err() != nil {
			return sent, failed, ctx.Err()
		}
		switch q.process(ctx, entry) {
		case StatusSent:
			sent++
		case StatusFailed:
			failed++
		}
	}
	return sent, failed, nil
}

func (q *Queue) process(ctx context.Context, entry *Entry) Status {
	log := q.logger.With(zap.String("id", entry.ID))

	req, err := q.request(entry)
	if err == nil {
		entry.DetectionID, err = q.sender.Send(ctx, req)
	} else {
		err = Permanent(err)
	}
	entry.UpdatedAt = q.now()

	if err == nil {
		entry.Status = StatusSent
		entry.Error = ""
		if err := q.move(entry, q.pendingDir, q.sentDir); err != nil {
			log.Error("Failed to move sent entry", zap.Error(err))
			return StatusPending
		}
		log.Info("Frame sent", zap.String("detection", entry.DetectionID))
		return StatusSent
	}

	entry.Retries++
	entry.Error = err.Error()

	var perm permanentError
	if errors.As(err, &perm) || entry.Retries >= q.maxRetries {
		entry.Status = StatusFailed
		if err := q.move(entry, q.pendingDir, q.failedDir); err != nil {
			log.Error("Failed to move failed entry", zap.Error(err))
			return StatusPending
		}
		log.Warn("Frame failed permanently", zap.Int("retries", entry.Retries), zap.Error(err))
		return StatusFailed
	}

	if err := writeEntry(q.pendingDir, entry); err != nil {
		log.Error("Failed to save entry", zap.Error(err))
	}
	log.Warn("Frame send failed, will retry",
		zap.Int("retry", entry.Retries),
		zap.Int("max", q.maxRetries),
		zap.Error(err))
	return StatusPending
}

func (q *Queue) request(entry *Entry) (detect.Request, error) {
	data, err := os.ReadFile(filepath.Join(q.pendingDir, entry.ID, entry.Image))
	if err != nil {
		return detect.Request{}, fmt.Errorf("failed to read queued image: %w", err)
	}
	return detect.Request{
		ImageBase64:   "data:" + http.DetectContentType(data) + ";base64," + base64.StdEncoding.EncodeToString(data),
		CameraID:      entry.CameraID,
		ViolationType: entry.ViolationType,
		Severity:      entry.Severity,
	}, nil
}

// Run processes pending entries every interval until ctx ends
func (q *Queue) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, _, err := q.ProcessPending(ctx); err != nil && ctx.Err() == nil {
			q.logger.Warn("Outbox pass failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stats counts entries on disk
func (q *Queue) Stats() Stats {
	return Stats{
		Pending: countDirs(q.pendingDir),
		Failed:  countDirs(q.failedDir),
		Sent:    countDirs(q.sentDir),
	}
}

// Failed returns the entries that gave up
func (q *Queue) Failed() ([]*Entry, error) {
	return loadEntries(q.failedDir, q.logger)
}

// RetryFailed moves every failed entry back to pending with a fresh count
func (q *Queue) RetryFailed() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := loadEntries(q.failedDir, q.logger)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, entry := range entries {
		entry.Status = StatusPending
		entry.Retries = 0
		entry.Error = ""
		entry.UpdatedAt = q.now()
		if err := q.move(entry, q.failedDir, q.pendingDir); err != nil {
			q.logger.Warn("Failed to retry entry", zap.String("id", entry.ID), zap.Error(err))
			continue
		}
		count++
	}
	return count, nil
}

// ClearSent removes sent entries older than the given age
func (q *Queue) ClearSent(olderThan time.Duration) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := loadEntries(q.sentDir, q.logger)
	if err != nil {
		return 0, err
	}

	cutoff := q.now().Add(-olderThan)
	count := 0
	for _, entry := range entries {
		if entry.UpdatedAt.Before(cutoff) {
			if err := os.RemoveAll(filepath.Join(q.sentDir, entry.ID)); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}

// move rewrites entry.json and renames the entry directory
func (q *Queue) move(entry *Entry, from, to string) error {
	if err := writeEntry(from, entry); err != nil {
		return err
	}
	return os.Rename(filepath.Join(from, entry.ID), filepath.Join(to, entry.ID))
}

func writeEntry(dir string, entry *Entry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, entry.ID, entryFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func loadEntries(dir string, logger *zap.Logger) ([]*Entry, error) {
	dirs, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var entries []*Entry
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, d.Name(), entryFile))
		if err != nil {
			logger.Warn("Skipping unreadable entry", zap.String("id", d.Name()), zap.Error(err))
			continue
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			logger.Warn("Skipping corrupt entry", zap.String("id", d.Name()), zap.Error(err))
			continue
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

func countDirs(dir string) int {
	dirs, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, d := range dirs {
		if d.IsDir() {
			n++
		}
	}
	return n
}
