package livestatus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumangalagouda/DEV-HACK/internal/events"
	"github.com/sumangalagouda/DEV-HACK/internal/violation"
)

// fakeTimers records scheduled reversions so tests fire them by hand
type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

func (f *fakeTimers) afterFunc(_ time.Duration, fn func()) stopper {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{fn: fn}
	f.timers = append(f.timers, t)
	return t
}

// fire runs timer i even if it was stopped, like a timer that already
// started executing when Stop was called
func (f *fakeTimers) fire(i int) {
	f.mu.Lock()
	t := f.timers[i]
	f.mu.Unlock()
	t.fn()
}

type recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *recorder) add(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) alerts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, u := range r.updates {
		if u.Alert {
			n++
		}
	}
	return n
}

func newTestProjector(opts Options) (*Projector, *fakeTimers, *recorder) {
	p := New(opts)
	timers := &fakeTimers{}
	p.afterFunc = timers.afterFunc
	rec := &recorder{}
	p.OnUpdate(rec.add)
	return p, timers, rec
}

func violating(id string) Row {
	flag := true
	return Row{ID: id, ViolationType: "Missing helmet", HasViolations: &flag}
}

func allClear(id string) Row {
	flag := false
	return Row{ID: id, ViolationType: violation.AllClear, HasViolations: &flag}
}

func TestStartsIdle(t *testing.T) {
	p, _, _ := newTestProjector(Options{})
	assert.Equal(t, StateIdle, p.State())
	assert.Nil(t, p.Latest())
}

func TestViolationRevertsAfterQuietPeriod(t *testing.T) {
	p, timers, rec := newTestProjector(Options{})

	p.Apply(violating("a"))
	assert.Equal(t, StateViolation, p.State())
	assert.Equal(t, 1, rec.alerts())

	timers.fire(0)
	assert.Equal(t, StateMonitoring, p.State())
	assert.Equal(t, "a", p.Latest().ID)
}

func TestNewerRowCancelsStaleReversion(t *testing.T) {
	p, timers, _ := newTestProjector(Options{})

	p.Apply(violating("a"))
	p.Apply(allClear("b"))
	assert.Equal(t, StateMonitoring, p.State())

	p.Apply(violating("c"))
	// The reversion armed for "a" must not clear the violation from "c"
	timers.fire(0)
	assert.Equal(t, StateViolation, p.State())
	assert.Equal(t, "c", p.Latest().ID)

	timers.fire(1)
	assert.Equal(t, StateMonitoring, p.State())
}

func TestAlertOnlyOnTransition(t *testing.T) {
	p, _, rec := newTestProjector(Options{})

	p.Apply(violating("a"))
	p.Apply(violating("b"))
	assert.Equal(t, 1, rec.alerts())

	p.Apply(allClear("c"))
	p.Apply(violating("d"))
	assert.Equal(t, 2, rec.alerts())
}

func TestFilteredRowsDoNotChangeState(t *testing.T) {
	inZoneA := func(r Row) bool { return r.Zone == "Zone A" }
	p, _, rec := newTestProjector(Options{Filter: inZoneA})

	other := violating("b1")
	other.Zone = "Zone B"
	p.Apply(other)
	assert.Equal(t, StateIdle, p.State())
	assert.Nil(t, p.Latest())
	assert.Empty(t, rec.updates)

	mine := violating("a1")
	mine.Zone = "Zone A"
	p.Apply(mine)
	assert.Equal(t, StateViolation, p.State())
	assert.Equal(t, 1, rec.alerts())
}

func TestRowWithoutFlagUsesText(t *testing.T) {
	p, _, _ := newTestProjector(Options{})

	p.Apply(Row{ID: "a", ViolationType: "No vest"})
	assert.Equal(t, StateViolation, p.State())

	p.Apply(Row{ID: "b", ViolationType: "Image uploaded - Manual review recommended"})
	assert.Equal(t, StateMonitoring, p.State())
}

type fakeSource struct {
	mu       sync.Mutex
	handler  func(events.InsertEvent)
	cameraID string
}

type fakeSub struct{ unsubscribed bool }

func (s *fakeSub) Unsubscribe() error {
	s.unsubscribed = true
	return nil
}

func (f *fakeSource) SubscribeInserts(cameraID string, h func(events.InsertEvent)) (events.Subscription, error) {
	f.mu.Lock()
	f.handler = h
	f.cameraID = cameraID
	f.mu.Unlock()
	return &fakeSub{}, nil
}

func (f *fakeSource) push(r events.Record) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h(events.InsertEvent{Type: events.TypeInsert, Record: r})
}

func TestInitialSnapshotDoesNotAlert(t *testing.T) {
	src := &fakeSource{}
	fetch := FetcherFunc(func(ctx context.Context, cameraID string) (*Row, error) {
		row := violating("stored")
		return &row, nil
	})
	p, _, rec := newTestProjector(Options{CameraID: "cam-1", Source: src, Fetcher: fetch})

	require.NoError(t, p.Start(context.Background()))
	assert.Equal(t, "cam-1", src.cameraID)
	assert.Equal(t, StateViolation, p.State())
	assert.Equal(t, 0, rec.alerts())
	require.Len(t, rec.updates, 1)
	assert.True(t, rec.updates[0].Initial)
}

func TestStreamedRowBeatsStaleFetch(t *testing.T) {
	src := &fakeSource{}
	flag := false
	fetch := FetcherFunc(func(ctx context.Context, cameraID string) (*Row, error) {
		// an insert lands between subscribe and fetch
		src.push(events.Record{ID: "new", ViolationType: violation.AllClear, HasViolations: &flag})
		row := violating("old")
		return &row, nil
	})
	p, _, rec := newTestProjector(Options{Source: src, Fetcher: fetch})

	require.NoError(t, p.Start(context.Background()))
	assert.Equal(t, StateMonitoring, p.State())
	assert.Equal(t, "new", p.Latest().ID)
	assert.Len(t, rec.updates, 1)
}

func TestFetchFailureKeepsListening(t *testing.T) {
	src := &fakeSource{}
	fetch := FetcherFunc(func(ctx context.Context, cameraID string) (*Row, error) {
		return nil, errors.New("database down")
	})
	p, _, rec := newTestProjector(Options{Source: src, Fetcher: fetch})

	require.NoError(t, p.Start(context.Background()))
	assert.Equal(t, StateIdle, p.State())

	flag := true
	src.push(events.Record{ID: "x", ViolationType: "No gloves", HasViolations: &flag})
	assert.Equal(t, StateViolation, p.State())
	assert.Equal(t, 1, rec.alerts())
}

func TestStopIgnoresLateRows(t *testing.T) {
	p, timers, _ := newTestProjector(Options{})

	p.Apply(violating("a"))
	p.Stop()
	assert.True(t, timers.timers[0].stopped)

	p.Apply(allClear("b"))
	timers.fire(0)
	assert.Equal(t, StateViolation, p.State())
}

func TestRealTimerReverts(t *testing.T) {
	p := New(Options{QuietPeriod: 20 * time.Millisecond})
	p.Apply(violating("a"))

	assert.Eventually(t, func() bool {
		return p.State() == StateMonitoring
	}, time.Second, 5*time.Millisecond)
}
