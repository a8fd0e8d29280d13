package natsserver

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEmbeddedRoundTrip(t *testing.T) {
	cfg := DefaultConfig(server.RANDOM_PORT)
	cfg.Host = "127.0.0.1"
	ns, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	defer ns.Shutdown()

	got := make(chan []byte, 1)
	sub, err := ns.Conn().Subscribe("test.subject", func(m *nats.Msg) { got <- m.Data })
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, ns.Conn().Flush())

	require.NoError(t, ns.Conn().Publish("test.subject", []byte("hello")))

	select {
	case data := <-got:
		assert.Equal(t, []byte("hello"), data)
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}

	assert.GreaterOrEqual(t, ns.GetStats().Clients, 1)
	assert.Contains(t, ns.Address(), "nats://")
}
