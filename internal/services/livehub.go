// Package services provides the live status hub behind the /ws/live websocket
package services

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sumangalagouda/DEV-HACK/internal/credentials"
	"github.com/sumangalagouda/DEV-HACK/internal/database"
	"github.com/sumangalagouda/DEV-HACK/internal/livestatus"
	"github.com/sumangalagouda/DEV-HACK/internal/metrics"
)

// AllCameras is the subscription key following every camera
const AllCameras = "*"

// Message types
const (
	MessageStatus = "status"
	MessageAlert  = "alert"
	MessageError  = "error"
	MessagePong   = "pong"
)

// FetcherFor returns a fetcher that reads as the given viewer
type FetcherFor func(cred credentials.Credential) livestatus.Fetcher

// LiveHub manages live status subscriptions and websocket clients.
// Viewers of the same camera key with the same zone scope share one
// projector; zone-scoped projectors only see rows from their zones.
type LiveHub struct {
	source   livestatus.Source
	fetchers FetcherFor
	quiet    time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics

	clients   map[*LiveClient]bool
	clientsMu sync.RWMutex

	subscriptions   map[string]*cameraSubscription
	subscriptionsMu sync.RWMutex

	register   chan *LiveClient
	unregister chan *LiveClient
	// done is closed when Run returns
	done chan struct{}
}

type cameraSubscription struct {
	key       string
	cameraKey string
	projector *livestatus.Projector
	viewers   map[*LiveClient]bool
	viewersMu sync.RWMutex
}

// LiveMessage is a message sent to or from clients
type LiveMessage struct {
	Type   string          `json:"type"`
	Camera string          `json:"camera,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// NewLiveHub creates a hub. fetchers may be nil.
func NewLiveHub(source livestatus.Source, fetchers FetcherFor, quiet time.Duration, logger *zap.Logger) *LiveHub {
	return &LiveHub{
		source:        source,
		fetchers:      fetchers,
		quiet:         quiet,
		logger:        logger,
		clients:       make(map[*LiveClient]bool),
		subscriptions: make(map[string]*cameraSubscription),
		register:      make(chan *LiveClient),
		unregister:    make(chan *LiveClient),
		done:          make(chan struct{}),
	}
}

// SetMetrics sets the metrics collector
func (h *LiveHub) SetMetrics(m *metrics.Metrics) {
	h.metrics = m
}

// StoreFetcher reads the newest detection through the store under the
// viewer's credential, so row level policies apply to the initial state
func StoreFetcher(store *database.Store) FetcherFor {
	return func(cred credentials.Credential) livestatus.Fetcher {
		return livestatus.FetcherFunc(func(ctx context.Context, cameraID string) (*livestatus.Row, error) {
			det, err := store.LatestDetection(ctx, cred, cameraID)
			if errors.Is(err, database.ErrNotFound) {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			row := livestatus.RowFromDetection(det)
			return &row, nil
		})
	}
}

// Register adds a client to the hub
func (h *LiveHub) Register(client *LiveClient) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// leave hands a disconnected client back to the hub, unless it is gone
func (h *LiveHub) leave(client *LiveClient) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Done is closed once Run has returned
func (h *LiveHub) Done() <-chan struct{} {
	return h.done
}

// Run is the hub's main loop; it stops every projector when ctx ends
func (h *LiveHub) Run(ctx context.Context) {
	h.logger.Info("Live status hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.register:
			h.clientsMu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.clientsMu.Unlock()
			h.metrics.SetLiveViewers(count)
			h.logger.Debug("Live client connected", zap.String("remote", client.remoteAddr))

		case client := <-h.unregister:
			// Detach from projectors before closing send so no broadcast
			// can hit a closed channel
			for _, key := range client.cameraKeys() {
				h.unsubscribeClient(client, key)
			}

			h.clientsMu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.clientsMu.Unlock()
			h.metrics.SetLiveViewers(count)
			h.logger.Debug("Live client disconnected", zap.String("remote", client.remoteAddr))
		}
	}
}

// Subscribe attaches a client to a camera's live status
func (h *LiveHub) Subscribe(ctx context.Context, client *LiveClient, cameraKey string) error {
	if cameraKey == "" {
		cameraKey = AllCameras
	}

	key := subscriptionKey(client, cameraKey)

	h.subscriptionsMu.Lock()
	sub, exists := h.subscriptions[key]
	if !exists {
		cameraID := cameraKey
		if cameraKey == AllCameras {
			cameraID = ""
		}
		var fetcher livestatus.Fetcher
		if h.fetchers != nil {
			fetcher = h.fetchers(client.cred)
		}
		var filter func(livestatus.Row) bool
		if len(client.zones) > 0 {
			filter = func(r livestatus.Row) bool { return client.allowsZone(r.Zone) }
		}
		sub = &cameraSubscription{
			key:       key,
			cameraKey: cameraKey,
			viewers:   make(map[*LiveClient]bool),
			projector: livestatus.New(livestatus.Options{
				CameraID:    cameraID,
				QuietPeriod: h.quiet,
				Source:      h.source,
				Fetcher:     fetcher,
				Logger:      h.logger,
				Observer:    h.metrics,
				Filter:      filter,
			}),
		}
		sub.projector.OnUpdate(func(u livestatus.Update) {
			h.broadcastUpdate(key, u)
		})
		h.subscriptions[key] = sub
	}
	sub.viewersMu.Lock()
	sub.viewers[client] = true
	sub.viewersMu.Unlock()
	h.subscriptionsMu.Unlock()

	client.addCamera(cameraKey)

	if !exists {
		// Started outside the lock: the initial snapshot is broadcast
		// through broadcastUpdate, which takes the read lock
		if err := sub.projector.Start(ctx); err != nil {
			h.unsubscribeClient(client, cameraKey)
			return err
		}
		h.logger.Info("Created live subscription", zap.String("camera", cameraKey), zap.String("key", key))
		return nil
	}

	client.sendJSON(LiveMessage{Type: MessageStatus, Camera: cameraKey, Data: mustJSON(sub.projector.Snapshot())})
	return nil
}

// Unsubscribe detaches a client from a camera
func (h *LiveHub) Unsubscribe(client *LiveClient, cameraKey string) {
	if cameraKey == "" {
		cameraKey = AllCameras
	}
	h.unsubscribeClient(client, cameraKey)
}

func (h *LiveHub) unsubscribeClient(client *LiveClient, cameraKey string) {
	client.removeCamera(cameraKey)
	key := subscriptionKey(client, cameraKey)

	h.subscriptionsMu.Lock()
	sub, exists := h.subscriptions[key]
	if !exists {
		h.subscriptionsMu.Unlock()
		return
	}
	sub.viewersMu.Lock()
	delete(sub.viewers, client)
	remaining := len(sub.viewers)
	sub.viewersMu.Unlock()

	if remaining > 0 {
		h.subscriptionsMu.Unlock()
		return
	}
	delete(h.subscriptions, key)
	h.subscriptionsMu.Unlock()

	sub.projector.Stop()
	h.logger.Info("Removed live subscription (no viewers)", zap.String("key", key))
}

// subscriptionKey separates projectors by zone scope. Unscoped viewers
// use the bare camera key.
func subscriptionKey(client *LiveClient, cameraKey string) string {
	if len(client.zones) == 0 {
		return cameraKey
	}
	zones := append([]string(nil), client.zones...)
	sort.Strings(zones)
	return cameraKey + "@" + strings.Join(zones, ",")
}

// broadcastUpdate sends a status to every viewer, plus an alert to the
// viewers whose zones cover the detection
func (h *LiveHub) broadcastUpdate(key string, u livestatus.Update) {
	h.subscriptionsMu.RLock()
	sub, exists := h.subscriptions[key]
	h.subscriptionsMu.RUnlock()
	if !exists {
		return
	}
	cameraKey := sub.cameraKey

	status := mustJSON(LiveMessage{Type: MessageStatus, Camera: cameraKey, Data: mustJSON(u)})
	var alert []byte
	zone := ""
	if u.Alert && u.Row != nil {
		alert = mustJSON(LiveMessage{Type: MessageAlert, Camera: cameraKey, Data: mustJSON(u.Row)})
		zone = u.Row.Zone
	}

	sub.viewersMu.RLock()
	defer sub.viewersMu.RUnlock()
	for client := range sub.viewers {
		client.trySend(status)
		if alert != nil && client.allowsZone(zone) {
			client.trySend(alert)
		}
	}
}

func (h *LiveHub) shutdown() {
	h.subscriptionsMu.Lock()
	subs := h.subscriptions
	h.subscriptions = make(map[string]*cameraSubscription)
	h.subscriptionsMu.Unlock()

	for _, sub := range subs {
		sub.projector.Stop()
	}
	h.logger.Info("Live status hub stopped")
}

// HubStats is reported by /api/feeds/stats
type HubStats struct {
	Clients       int                         `json:"clients"`
	Subscriptions int                         `json:"subscriptions"`
	ActiveCameras []string                    `json:"activeCameras"`
	States        map[string]livestatus.State `json:"states"`
}

// Stats returns hub statistics
func (h *LiveHub) Stats() HubStats {
	h.clientsMu.RLock()
	clientCount := len(h.clients)
	h.clientsMu.RUnlock()

	h.subscriptionsMu.RLock()
	subs := make(map[string]*cameraSubscription, len(h.subscriptions))
	for key, sub := range h.subscriptions {
		subs[key] = sub
	}
	h.subscriptionsMu.RUnlock()

	// Projector state is read outside the hub lock
	cameras := make([]string, 0, len(subs))
	states := make(map[string]livestatus.State, len(subs))
	for key, sub := range subs {
		cameras = append(cameras, key)
		states[key] = sub.projector.State()
	}
	sort.Strings(cameras)

	return HubStats{
		Clients:       clientCount,
		Subscriptions: len(cameras),
		ActiveCameras: cameras,
		States:        states,
	}
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(`null`)
	}
	return data
}
