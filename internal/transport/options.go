package transport

import (
	"crypto/tls"
	"crypto/x509"
	"net/url"
	"os"
	"time"

	"codeberg.org/mutker/ecoguard/internal/errors"
	"codeberg.org/mutker/ecoguard/internal/logger"
	"github.com/google/uuid"
)

const (
	DefaultKeepAlive            = 30 * time.Second
	DefaultConnectTimeout       = 10 * time.Second
	DefaultMaxReconnectInterval = 30 * time.Second

	clientIDPrefix = "ecoguard-"
	// Milliseconds the client waits for in-progress work on disconnect.
	disconnectQuiesce = 250
)

// Options configure a Session. Start from DefaultOptions: the zero value
// disables certificate verification.
type Options struct {
	// ClientID must be unique per concurrent session. Empty generates one.
	ClientID string
	// RejectUnauthorized enables strict TLS certificate verification.
	RejectUnauthorized bool
	// Topic is subscribed on every (re)connect. Empty means DefaultTopic.
	Topic string

	KeepAlive            time.Duration
	ConnectTimeout       time.Duration
	MaxReconnectInterval time.Duration
	// ConnectRetry keeps retrying the initial connect until ctx is done.
	ConnectRetry bool

	CAFile   string
	Username string
	Password string

	Logger logger.Logger
}

// DefaultOptions returns options with certificate verification enabled.
func DefaultOptions() Options {
	return Options{
		RejectUnauthorized:   true,
		Topic:                DefaultTopic,
		KeepAlive:            DefaultKeepAlive,
		ConnectTimeout:       DefaultConnectTimeout,
		MaxReconnectInterval: DefaultMaxReconnectInterval,
	}
}

func (o Options) withDefaults() Options {
	if o.ClientID == "" {
		o.ClientID = NewClientID()
	}
	if o.Topic == "" {
		o.Topic = DefaultTopic
	}
	if o.KeepAlive <= 0 {
		o.KeepAlive = DefaultKeepAlive
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.MaxReconnectInterval <= 0 {
		o.MaxReconnectInterval = DefaultMaxReconnectInterval
	}
	if o.Logger == nil {
		o.Logger = logger.Nop()
	}

	return o
}

// NewClientID returns a client id that does not collide with other
// sessions.
func NewClientID() string {
	return clientIDPrefix + uuid.NewString()
}

var supportedSchemes = map[string]bool{
	"tcp":   true,
	"mqtt":  true,
	"ssl":   true,
	"tls":   true,
	"mqtts": true,
	"ws":    true,
	"wss":   true,
}

// ValidateEndpoint checks that endpoint is a broker URL the client can dial.
func ValidateEndpoint(endpoint string) error {
	errFactory := errors.New()

	u, err := url.Parse(endpoint)
	if err != nil {
		return errFactory.Wrap(ErrInvalidEndpoint, err)
	}
	if !supportedSchemes[u.Scheme] {
		return errFactory.WithData(ErrInvalidEndpoint, endpoint)
	}
	if u.Host == "" {
		return errFactory.WithData(ErrInvalidEndpoint, endpoint)
	}

	return nil
}

func (o Options) tlsConfig() (*tls.Config, error) {
	errFactory := errors.New()

	// #nosec G402 -- relaxed only when explicitly configured
	conf := &tls.Config{
		InsecureSkipVerify: !o.RejectUnauthorized,
		MinVersion:         tls.VersionTLS12,
	}

	if o.CAFile != "" {
		pem, err := os.ReadFile(o.CAFile)
		if err != nil {
			return nil, errFactory.Wrap(ErrTLSConfig, err)
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errFactory.WithData(ErrTLSConfig, o.CAFile)
		}
		conf.RootCAs = pool
	}

	return conf, nil
}
