// Package transport owns the MQTT client lifecycle: connect, subscribe,
// message receipt and teardown.
package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/ecoguard/internal/errors"
	"codeberg.org/mutker/ecoguard/internal/logger"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/temoto/alive/v2"
)

// MessageHandler receives a copy of every delivered payload. Handlers run on
// the client's delivery goroutine and must not block.
type MessageHandler func(topic string, payload []byte)

// StateHandler observes connection state transitions.
type StateHandler func(State)

// Session is one broker connection. Its subscriptions survive reconnects.
type Session struct {
	client mqtt.Client
	opts   Options
	log    logger.Logger
	alive  *alive.Alive

	state  atomic.Int32
	closed atomic.Bool

	mu       sync.Mutex
	handlers []MessageHandler
	watchers []StateHandler
	topics   []string

	ready     chan struct{}
	readyOnce sync.Once
	readyErr  error

	closeOnce sync.Once
}

// Connect dials endpoint and returns once the session is connected and
// subscribed to opts.Topic. The handshake honors ctx.
func Connect(ctx context.Context, endpoint string, opts Options) (*Session, error) {
	errFactory := errors.New()

	if err := ValidateEndpoint(endpoint); err != nil {
		return nil, err
	}
	if !validFilter(opts.Topic) && opts.Topic != "" {
		return nil, errFactory.WithData(ErrInvalidTopic, opts.Topic)
	}

	opts = opts.withDefaults()
	tlsConf, err := opts.tlsConfig()
	if err != nil {
		return nil, err
	}

	bridgePahoLogs()

	s := &Session{
		opts:   opts,
		log:    opts.Logger.With("transport"),
		alive:  alive.NewAlive(),
		topics: []string{opts.Topic},
		ready:  make(chan struct{}),
	}

	if !opts.RejectUnauthorized {
		s.log.Warn().
			Str("broker", endpoint).
			Msg("TLS certificate verification disabled")
	}

	mopt := mqtt.NewClientOptions().
		AddBroker(endpoint).
		SetClientID(opts.ClientID).
		SetCleanSession(true).
		SetKeepAlive(opts.KeepAlive).
		SetPingTimeout(opts.ConnectTimeout).
		SetConnectTimeout(opts.ConnectTimeout).
		SetWriteTimeout(opts.ConnectTimeout).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(opts.MaxReconnectInterval).
		SetConnectRetry(opts.ConnectRetry).
		SetConnectRetryInterval(time.Second).
		SetOrderMatters(true).
		SetTLSConfig(tlsConf).
		SetDefaultPublishHandler(s.deliver).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(s.onConnectionLost).
		SetReconnectingHandler(s.onReconnecting)
	if opts.Username != "" {
		mopt.SetUsername(opts.Username).SetPassword(opts.Password)
	}
	s.client = mqtt.NewClient(mopt)

	s.setState(Connecting)
	s.log.Debug().
		Str("broker", endpoint).
		Str("client_id", opts.ClientID).
		Msg("Connecting to broker")

	t := s.client.Connect()
	select {
	case <-t.Done():
	case <-ctx.Done():
		s.abort()
		return nil, errFactory.Wrap(ErrConnect, ctx.Err())
	}
	if err := t.Error(); err != nil {
		s.abort()
		return nil, errFactory.Wrap(ErrConnect, err)
	}

	select {
	case <-s.ready:
	case <-ctx.Done():
		s.abort()
		return nil, errFactory.Wrap(ErrConnect, ctx.Err())
	}
	if s.readyErr != nil {
		s.abort()
		return nil, s.readyErr
	}

	return s, nil
}

// ClientID is the identifier the session presented to the broker.
func (s *Session) ClientID() string {
	return s.opts.ClientID
}

// OnMessage registers h for every message on every subscribed topic.
func (s *Session) OnMessage(h MessageHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handlers = append(s.handlers, h)
}

// OnStateChange registers h for state transitions after registration.
func (s *Session) OnStateChange(h StateHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.watchers = append(s.watchers, h)
}

// Subscribe adds a topic filter. It is subscribed now when connected and
// again after every reconnect.
func (s *Session) Subscribe(filter string) error {
	errFactory := errors.New()

	if !validFilter(filter) {
		return errFactory.WithData(ErrInvalidTopic, filter)
	}
	if !s.alive.IsRunning() {
		return errFactory.New(ErrSessionClosed)
	}

	s.mu.Lock()
	known := false
	for _, t := range s.topics {
		if t == filter {
			known = true
			break
		}
	}
	if !known {
		s.topics = append(s.topics, filter)
	}
	s.mu.Unlock()

	if s.State() != Connected {
		return nil
	}

	return s.subscribe(filter)
}

// Publish sends payload with QoS 0 and waits for it to be written.
func (s *Session) Publish(topic string, payload []byte, retained bool) error {
	errFactory := errors.New()

	if !s.alive.IsRunning() {
		return errFactory.New(ErrSessionClosed)
	}

	t := s.client.Publish(topic, 0, retained, payload)
	if !t.WaitTimeout(s.opts.ConnectTimeout) {
		return errFactory.WithData(ErrTimeout, topic)
	}
	if err := t.Error(); err != nil {
		return errFactory.Wrap(ErrPublish, err)
	}

	return nil
}

// State returns the current connection state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Alive reports whether Close has not been called yet.
func (s *Session) Alive() bool {
	return s.alive.IsRunning()
}

// Done is closed when Close begins.
func (s *Session) Done() <-chan struct{} {
	return s.alive.StopChan()
}

// Close stops delivery, waits for in-flight handlers and disconnects. It
// is safe to call more than once and always returns nil.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.alive.Stop()
		s.alive.Wait()
		s.client.Disconnect(disconnectQuiesce)
		s.closed.Store(true)
		s.setState(Disconnected)
		s.log.Info().Str("client_id", s.opts.ClientID).Msg("Session closed")
	})

	return nil
}

func (s *Session) abort() {
	s.closeOnce.Do(func() {
		s.alive.Stop()
		s.alive.Wait()
		s.client.Disconnect(0)
		s.closed.Store(true)
		s.setState(Disconnected)
	})
}

func (s *Session) deliver(_ mqtt.Client, msg mqtt.Message) {
	if !s.alive.Add(1) {
		return
	}
	defer s.alive.Done()

	s.mu.Lock()
	handlers := s.handlers
	s.mu.Unlock()

	payload := append([]byte(nil), msg.Payload()...)
	for _, h := range handlers {
		h(msg.Topic(), payload)
	}
}

func (s *Session) onConnect(_ mqtt.Client) {
	if !s.alive.IsRunning() {
		return
	}

	s.log.Info().
		Str("client_id", s.opts.ClientID).
		Msg("Connected to broker")

	s.mu.Lock()
	topics := append([]string(nil), s.topics...)
	s.mu.Unlock()

	var firstErr error
	for _, filter := range topics {
		if err := s.subscribe(filter); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	s.setState(Connected)
	s.readyOnce.Do(func() {
		s.readyErr = firstErr
		close(s.ready)
	})
}

func (s *Session) onConnectionLost(_ mqtt.Client, err error) {
	if !s.alive.IsRunning() {
		return
	}

	s.log.ErrorWithCode(errors.New().Wrap(ErrSessionLost, err)).
		Msg("Broker connection lost, reconnecting")
	s.setState(Connecting)
}

func (s *Session) onReconnecting(_ mqtt.Client, _ *mqtt.ClientOptions) {
	if !s.alive.IsRunning() {
		return
	}

	s.log.Debug().Msg("Reconnecting to broker")
	s.setState(Connecting)
}

func (s *Session) subscribe(filter string) error {
	errFactory := errors.New()

	t := s.client.Subscribe(filter, 0, s.deliver)
	if !t.WaitTimeout(s.opts.ConnectTimeout) {
		return errFactory.WithData(ErrTimeout, filter)
	}
	if err := t.Error(); err != nil {
		return errFactory.Wrap(ErrSubscribe, err)
	}

	s.log.Debug().Str("topic", filter).Msg("Subscribed")
	return nil
}

// setState records the transition and notifies watchers. Once the session
// is closed only the final move to Disconnected is allowed.
func (s *Session) setState(next State) {
	for {
		cur := State(s.state.Load())
		if cur == next || (s.closed.Load() && next != Disconnected) {
			return
		}
		if s.state.CompareAndSwap(int32(cur), int32(next)) {
			break
		}
	}

	s.mu.Lock()
	watchers := s.watchers
	s.mu.Unlock()

	for _, w := range watchers {
		w(next)
	}
}
