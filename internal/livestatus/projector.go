// Package livestatus projects the detection stream into a per viewer state:
// idle until the first row, violation after a violating row, and back to
// monitoring after a quiet period with no newer row.
package livestatus

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sumangalagouda/DEV-HACK/internal/events"
	"github.com/sumangalagouda/DEV-HACK/internal/models"
	"github.com/sumangalagouda/DEV-HACK/internal/violation"
)

// State of a projector
type State string

const (
	StateIdle       State = "idle"
	StateMonitoring State = "monitoring"
	StateViolation  State = "violation"
)

// DefaultQuietPeriod before a violation reverts to monitoring
const DefaultQuietPeriod = 5 * time.Second

// Row is the part of a detection the projector cares about
type Row struct {
	ID            string    `json:"id"`
	CameraID      *string   `json:"cameraId"`
	Zone          string    `json:"zone,omitempty"`
	ViolationType string    `json:"violationType"`
	HasViolations *bool     `json:"hasViolations,omitempty"`
	Confidence    int       `json:"confidence"`
	Severity      string    `json:"severity"`
	ImageURL      string    `json:"imageUrl"`
	DetectedAt    time.Time `json:"detectedAt"`
}

// IsViolation classifies the row, trusting the flag when present
func (r Row) IsViolation() bool {
	return violation.FromRow(r.HasViolations, r.ViolationType)
}

// RowFromEvent converts a stream event
func RowFromEvent(e events.InsertEvent) Row {
	return Row{
		ID:            e.Record.ID,
		CameraID:      e.Record.CameraID,
		Zone:          e.CameraZone,
		ViolationType: e.Record.ViolationType,
		HasViolations: e.Record.HasViolations,
		Confidence:    e.Record.Confidence,
		Severity:      e.Record.Severity,
		ImageURL:      e.Record.ImageURL,
		DetectedAt:    e.Record.DetectedAt,
	}
}

// Source is the detection stream
type Source interface {
	SubscribeInserts(cameraID string, handler func(events.InsertEvent)) (events.Subscription, error)
}

// Fetcher returns the newest stored row, or nil when there is none
type Fetcher interface {
	Latest(ctx context.Context, cameraID string) (*Row, error)
}

// FetcherFunc adapts a function to Fetcher
type FetcherFunc func(ctx context.Context, cameraID string) (*Row, error)

func (f FetcherFunc) Latest(ctx context.Context, cameraID string) (*Row, error) {
	return f(ctx, cameraID)
}

// Update is emitted for every applied row and every reversion
type Update struct {
	Previous State `json:"previous"`
	State    State `json:"state"`
	Row      *Row  `json:"detection,omitempty"`
	// Initial marks the snapshot applied from the store at start
	Initial bool `json:"initial,omitempty"`
	// Alert is set on a streamed transition into violation
	Alert bool `json:"alert,omitempty"`
}

// Observer is notified of projector activity
type Observer interface {
	LiveTransition(state string)
	LiveAlert()
}

// Options configure a projector
type Options struct {
	// CameraID to follow; "" follows every camera
	CameraID    string
	QuietPeriod time.Duration
	Source      Source
	Fetcher     Fetcher
	Logger      *zap.Logger
	Observer    Observer
	// Filter drops rows the viewer may not see; they never change state
	Filter func(Row) bool
}

type stopper interface {
	Stop() bool
}

// Projector holds the live state for one viewer
type Projector struct {
	cameraID string
	quiet    time.Duration
	source   Source
	fetcher  Fetcher
	logger   *zap.Logger
	observer Observer
	filter   func(Row) bool

	mu     sync.Mutex
	state  State
	latest *Row
	// seq increments with every applied row; a reversion only lands if
	// nothing newer arrived since it was armed
	seq    uint64
	timer  stopper
	sub    events.Subscription
	closed bool

	// emitMu keeps listener calls in the order the state changed
	emitMu    sync.Mutex
	listeners []func(Update)

	afterFunc func(time.Duration, func()) stopper
}

// New creates an idle projector
func New(opts Options) *Projector {
	quiet := opts.QuietPeriod
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Projector{
		cameraID: opts.CameraID,
		quiet:    quiet,
		source:   opts.Source,
		fetcher:  opts.Fetcher,
		logger:   logger,
		observer: opts.Observer,
		filter:   opts.Filter,
		state:    StateIdle,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}
}

// OnUpdate registers a listener. Register before Start. Listeners run
// while updates are serialized and must not call back into the projector.
func (p *Projector) OnUpdate(fn func(Update)) {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Start subscribes to the stream first and then fetches the latest stored
// row, so an insert landing in between is not lost. The fetched row only
// applies if no streamed row got there first.
func (p *Projector) Start(ctx context.Context) error {
	if p.source != nil {
		sub, err := p.source.SubscribeInserts(p.cameraID, func(e events.InsertEvent) {
			p.Apply(RowFromEvent(e))
		})
		if err != nil {
			return err
		}
		p.mu.Lock()
		p.sub = sub
		p.mu.Unlock()
	}

	if p.fetcher != nil {
		row, err := p.fetcher.Latest(ctx, p.cameraID)
		if err != nil {
			p.logger.Warn("Failed to fetch latest detection, waiting for stream",
				zap.String("camera", p.cameraID),
				zap.Error(err))
			return nil
		}
		if row != nil {
			p.applyInitial(*row)
		}
	}
	return nil
}

// Stop unsubscribes and cancels any pending reversion
func (p *Projector) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.sub != nil {
		if err := p.sub.Unsubscribe(); err != nil {
			p.logger.Debug("Unsubscribe failed", zap.Error(err))
		}
		p.sub = nil
	}
	p.stopTimer()
}

// State returns the current state
func (p *Projector) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Latest returns a copy of the last applied row
func (p *Projector) Latest() *Row {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latest == nil {
		return nil
	}
	row := *p.latest
	return &row
}

// Snapshot returns state and row together
func (p *Projector) Snapshot() Update {
	p.mu.Lock()
	defer p.mu.Unlock()
	u := Update{Previous: p.state, State: p.state}
	if p.latest != nil {
		row := *p.latest
		u.Row = &row
	}
	return u
}

// Apply feeds a streamed row
func (p *Projector) Apply(row Row) {
	p.apply(row, false)
}

func (p *Projector) applyInitial(row Row) {
	p.apply(row, true)
}

func (p *Projector) apply(row Row, initial bool) {
	if p.filter != nil && !p.filter(row) {
		return
	}

	p.mu.Lock()
	if p.closed || (initial && p.seq > 0) {
		p.mu.Unlock()
		return
	}

	p.seq++
	seq := p.seq
	copied := row
	p.latest = &copied

	prev := p.state
	if row.IsViolation() {
		p.state = StateViolation
		p.stopTimer()
		p.timer = p.afterFunc(p.quiet, func() { p.revert(seq) })
	} else {
		p.state = StateMonitoring
		p.stopTimer()
	}

	update := Update{
		Previous: prev,
		State:    p.state,
		Row:      &copied,
		Initial:  initial,
		Alert:    !initial && p.state == StateViolation && prev != StateViolation,
	}

	p.emitMu.Lock()
	p.mu.Unlock()
	p.emit(update)
	p.emitMu.Unlock()
}

func (p *Projector) revert(seq uint64) {
	p.mu.Lock()
	if p.closed || p.seq != seq || p.state != StateViolation {
		p.mu.Unlock()
		return
	}
	p.state = StateMonitoring
	p.timer = nil

	var row *Row
	if p.latest != nil {
		copied := *p.latest
		row = &copied
	}
	update := Update{Previous: StateViolation, State: StateMonitoring, Row: row}

	p.emitMu.Lock()
	p.mu.Unlock()
	p.emit(update)
	p.emitMu.Unlock()
}

// emit runs with emitMu held
func (p *Projector) emit(u Update) {
	if p.observer != nil {
		if u.State != u.Previous {
			p.observer.LiveTransition(string(u.State))
		}
		if u.Alert {
			p.observer.LiveAlert()
		}
	}
	for _, fn := range p.listeners {
		fn(u)
	}
}

// stopTimer runs with mu held
func (p *Projector) stopTimer() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// RowFromDetection converts a stored detection
func RowFromDetection(d *models.Detection) Row {
	flag := d.HasViolations
	return Row{
		ID:            d.ID,
		CameraID:      d.CameraID,
		Zone:          d.Camera.ZoneName(),
		ViolationType: d.ViolationType,
		HasViolations: &flag,
		Confidence:    d.Confidence,
		Severity:      string(d.Severity),
		ImageURL:      d.ImageURL,
		DetectedAt:    d.DetectedAt,
	}
}
