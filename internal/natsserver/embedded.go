// Package natsserver runs an in-process NATS server for the detection event
// stream when no external server is configured.
package natsserver

import (
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// EmbeddedNATS wraps an embedded NATS server with a client connection
type EmbeddedNATS struct {
	server *server.Server
	conn   *nats.Conn
	logger *zap.Logger
}

// Config holds configuration for the embedded NATS server
type Config struct {
	Host string
	// Port to listen on; server.RANDOM_PORT picks a free one
	Port       int
	MaxPayload int32
	// Max pending bytes per slow consumer before it is cut off
	MaxPendingBytes int64
}

// DefaultConfig returns defaults sized for small JSON events
func DefaultConfig(port int) Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            port,
		MaxPayload:      1024 * 1024,
		MaxPendingBytes: 16 * 1024 * 1024,
	}
}

// New creates and starts an embedded NATS server
func New(cfg Config, logger *zap.Logger) (*EmbeddedNATS, error) {
	if cfg.MaxPendingBytes <= 0 {
		cfg.MaxPendingBytes = 16 * 1024 * 1024
	}
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}

	opts := &server.Options{
		Host:          cfg.Host,
		Port:          cfg.Port,
		NoLog:         true,
		NoSigs:        true,
		MaxPayload:    cfg.MaxPayload,
		WriteDeadline: 10 * time.Second,
		MaxPending:    cfg.MaxPendingBytes,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server not ready after 5 seconds")
	}

	nc, err := nats.Connect(
		ns.ClientURL(),
		nats.Name("ppe-server"),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("failed to connect to embedded NATS: %w", err)
	}

	logger.Info("Embedded NATS server started", zap.String("url", ns.ClientURL()))

	return &EmbeddedNATS{
		server: ns,
		conn:   nc,
		logger: logger,
	}, nil
}

// Conn returns the underlying NATS connection
func (e *EmbeddedNATS) Conn() *nats.Conn {
	return e.conn
}

// Address returns the client URL other processes can connect to
func (e *EmbeddedNATS) Address() string {
	return e.server.ClientURL()
}

// Stats holds NATS server statistics
type Stats struct {
	Clients       int    `json:"clients"`
	Subscriptions uint32 `json:"subscriptions"`
	InMsgs        int64  `json:"inMsgs"`
	OutMsgs       int64  `json:"outMsgs"`
	InBytes       int64  `json:"inBytes"`
	OutBytes      int64  `json:"outBytes"`
	SlowConsumers int64  `json:"slowConsumers"`
}

// GetStats returns current server statistics
func (e *EmbeddedNATS) GetStats() Stats {
	varz, _ := e.server.Varz(nil)
	stats := Stats{
		Clients:       e.server.NumClients(),
		Subscriptions: e.server.NumSubscriptions(),
	}
	if varz != nil {
		stats.InMsgs = varz.InMsgs
		stats.OutMsgs = varz.OutMsgs
		stats.InBytes = varz.InBytes
		stats.OutBytes = varz.OutBytes
		stats.SlowConsumers = varz.SlowConsumers
	}
	return stats
}

// Shutdown closes the client connection and stops the server
func (e *EmbeddedNATS) Shutdown() {
	if e.conn != nil {
		e.conn.Close()
	}
	if e.server != nil {
		e.server.Shutdown()
		e.server.WaitForShutdown()
	}
	e.logger.Info("NATS server shut down")
}
