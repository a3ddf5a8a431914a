package transport_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/ecoguard/internal/errors"
	"codeberg.org/mutker/ecoguard/internal/logger"
	"codeberg.org/mutker/ecoguard/internal/transport"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	return l.Addr().(*net.TCPAddr).Port
}

// startBroker runs an in-process broker and returns its tcp endpoint.
func startBroker(t *testing.T) (*mochi.Server, string) {
	t.Helper()

	addr := fmt.Sprintf("127.0.0.1:%d", freePort(t))
	broker := mochi.New(&mochi.Options{
		InlineClient: true,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, broker.AddHook(new(auth.AllowHook), nil))
	require.NoError(t, broker.AddListener(listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		ID:      "t1",
		Address: addr,
	})))
	require.NoError(t, broker.Serve())
	t.Cleanup(func() { _ = broker.Close() })

	return broker, "tcp://" + addr
}

func testOptions(t *testing.T) transport.Options {
	opts := transport.DefaultOptions()
	opts.ConnectTimeout = 5 * time.Second
	opts.Logger = logger.New(zerolog.NewTestWriter(t))
	return opts
}

type inbox struct {
	mu   sync.Mutex
	msgs map[string][]string
	ch   chan struct{}
}

func newInbox() *inbox {
	return &inbox{msgs: map[string][]string{}, ch: make(chan struct{}, 64)}
}

func (b *inbox) handle(topic string, payload []byte) {
	b.mu.Lock()
	b.msgs[topic] = append(b.msgs[topic], string(payload))
	b.mu.Unlock()

	select {
	case b.ch <- struct{}{}:
	default:
	}
}

func (b *inbox) wait(t *testing.T, n int) {
	t.Helper()

	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()

		total := 0
		for _, m := range b.msgs {
			total += len(m)
		}
		return total >= n
	}, 5*time.Second, 10*time.Millisecond)
}

func TestConnectSubscribesWildcard(t *testing.T) {
	broker, endpoint := startBroker(t)

	s, err := transport.Connect(context.Background(), endpoint, testOptions(t))
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, transport.Connected, s.State())
	assert.Contains(t, s.ClientID(), "ecoguard-")

	in := newInbox()
	s.OnMessage(in.handle)

	require.NoError(t, broker.Publish("ecoguard/turbine/T-04/data", []byte(`{"turbine_id":"T-04"}`), false, 0))
	require.NoError(t, broker.Publish("ecoguard/turbine/T-01/data", []byte(`{"turbine_id":"T-01"}`), false, 0))
	require.NoError(t, broker.Publish("ecoguard/turbine/T-01/status", []byte(`ignored`), false, 0))
	in.wait(t, 2)

	in.mu.Lock()
	defer in.mu.Unlock()
	assert.Equal(t, []string{`{"turbine_id":"T-04"}`}, in.msgs["ecoguard/turbine/T-04/data"])
	assert.Equal(t, []string{`{"turbine_id":"T-01"}`}, in.msgs["ecoguard/turbine/T-01/data"])
	assert.NotContains(t, in.msgs, "ecoguard/turbine/T-01/status")
}

func TestPublishBetweenSessions(t *testing.T) {
	_, endpoint := startBroker(t)

	sub, err := transport.Connect(context.Background(), endpoint, testOptions(t))
	require.NoError(t, err)
	defer sub.Close()

	in := newInbox()
	sub.OnMessage(in.handle)
	require.NoError(t, sub.Subscribe("ecoguard/site/#"))

	pub, err := transport.Connect(context.Background(), endpoint, testOptions(t))
	require.NoError(t, err)
	defer pub.Close()
	assert.NotEqual(t, sub.ClientID(), pub.ClientID())

	require.NoError(t, pub.Publish("ecoguard/turbine/T-09/data", []byte("a"), false))
	require.NoError(t, pub.Publish("ecoguard/site/north", []byte("b"), false))
	in.wait(t, 2)
}

func TestCloseIdempotent(t *testing.T) {
	_, endpoint := startBroker(t)

	var (
		mu     sync.Mutex
		states []transport.State
	)
	s, err := transport.Connect(context.Background(), endpoint, testOptions(t))
	require.NoError(t, err)
	s.OnStateChange(func(st transport.State) {
		mu.Lock()
		states = append(states, st)
		mu.Unlock()
	})

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Equal(t, transport.Disconnected, s.State())
	assert.False(t, s.Alive())

	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed after Close")
	}

	mu.Lock()
	assert.Equal(t, []transport.State{transport.Disconnected}, states)
	mu.Unlock()

	err = s.Subscribe("ecoguard/#")
	assert.True(t, errors.HasCode(err, transport.ErrSessionClosed))
	err = s.Publish("x", nil, false)
	assert.True(t, errors.HasCode(err, transport.ErrSessionClosed))
}

func TestNoDeliveryAfterClose(t *testing.T) {
	broker, endpoint := startBroker(t)

	s, err := transport.Connect(context.Background(), endpoint, testOptions(t))
	require.NoError(t, err)

	in := newInbox()
	s.OnMessage(in.handle)
	require.NoError(t, s.Close())

	require.NoError(t, broker.Publish("ecoguard/turbine/T-04/data", []byte("late"), false, 0))
	time.Sleep(100 * time.Millisecond)

	in.mu.Lock()
	defer in.mu.Unlock()
	assert.Empty(t, in.msgs)
}

func TestConnectRefused(t *testing.T) {
	opts := testOptions(t)
	opts.ConnectTimeout = time.Second

	_, err := transport.Connect(context.Background(), fmt.Sprintf("tcp://127.0.0.1:%d", freePort(t)), opts)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, transport.ErrConnect))
}

func TestConnectHonorsContext(t *testing.T) {
	opts := testOptions(t)
	opts.ConnectRetry = true

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := transport.Connect(ctx, fmt.Sprintf("tcp://127.0.0.1:%d", freePort(t)), opts)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, transport.ErrConnect))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConnectRejectsBadInput(t *testing.T) {
	ctx := context.Background()

	for _, endpoint := range []string{"", "localhost:1883", "http://localhost", "wss://", "::bad"} {
		_, err := transport.Connect(ctx, endpoint, transport.DefaultOptions())
		assert.True(t, errors.HasCode(err, transport.ErrInvalidEndpoint), "endpoint %q", endpoint)
	}

	opts := transport.DefaultOptions()
	opts.Topic = "ecoguard/#/data"
	_, err := transport.Connect(ctx, "tcp://localhost:1883", opts)
	assert.True(t, errors.HasCode(err, transport.ErrInvalidTopic))

	opts = transport.DefaultOptions()
	opts.CAFile = "/nonexistent/ca.pem"
	_, err = transport.Connect(ctx, "wss://localhost:8083", opts)
	assert.True(t, errors.HasCode(err, transport.ErrTLSConfig))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "connected", transport.Connected.String())
	assert.Equal(t, "disconnected", transport.Disconnected.String())
	assert.Equal(t, "State(7)", transport.State(7).String())
}
