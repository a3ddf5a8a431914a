package config

import (
	"net/url"
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/ecoguard/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultBroker               = "wss://localhost:8083"
	DefaultTopic                = "ecoguard/turbine/+/data"
	DefaultRenderRate           = 30.0
	DefaultQueueSize            = 256
	DefaultListen               = ":8080"
	DefaultLogLevel             = "info"
	DefaultKeepAlive            = 30 * time.Second
	DefaultConnectTimeout       = 10 * time.Second
	DefaultMaxReconnectInterval = 30 * time.Second

	defaultEnvPrefix  = "ECOGUARD"
	defaultConfigName = "ecoguard"
)

type Config struct {
	Broker               string        `mapstructure:"broker"`
	ClientID             string        `mapstructure:"client_id"`
	RejectUnauthorized   bool          `mapstructure:"reject_unauthorized"`
	Topic                string        `mapstructure:"topic"`
	CAFile               string        `mapstructure:"ca_file"`
	Username             string        `mapstructure:"username"`
	Password             string        `mapstructure:"password"`
	KeepAlive            time.Duration `mapstructure:"keepalive"`
	ConnectTimeout       time.Duration `mapstructure:"connect_timeout"`
	MaxReconnectInterval time.Duration `mapstructure:"max_reconnect_interval"`
	RenderRate           float64       `mapstructure:"render_rate"`
	QueueSize            int           `mapstructure:"queue_size"`
	Listen               string        `mapstructure:"listen"`
	LogLevel             string        `mapstructure:"log_level"`
	Metrics              bool          `mapstructure:"metrics"`
}

// flag name -> config key
var flagKeys = map[string]string{
	"broker":                 "broker",
	"client-id":              "client_id",
	"reject-unauthorized":    "reject_unauthorized",
	"topic":                  "topic",
	"ca-file":                "ca_file",
	"username":               "username",
	"password":               "password",
	"keepalive":              "keepalive",
	"connect-timeout":        "connect_timeout",
	"max-reconnect-interval": "max_reconnect_interval",
	"render-rate":            "render_rate",
	"queue-size":             "queue_size",
	"listen":                 "listen",
	"log-level":              "log_level",
	"metrics":                "metrics",
}

// Load reads configuration from defaults, an optional TOML file, environment
// variables and command line flags, in increasing order of precedence.
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: defaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}
	if o.args == nil && len(os.Args) > 1 {
		o.args = os.Args[1:]
	}

	v := viper.New()
	setDefaults(v)

	fs := newFlagSet()
	if err := fs.Parse(o.args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	configPath := o.configPath
	if configPath == "" {
		configPath = os.Getenv(o.envPrefix + "_CONFIG")
	}
	if flagPath, _ := fs.GetString("config"); flagPath != "" {
		configPath = flagPath
	}

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("broker", DefaultBroker)
	v.SetDefault("client_id", "")
	v.SetDefault("reject_unauthorized", true)
	v.SetDefault("topic", DefaultTopic)
	v.SetDefault("ca_file", "")
	v.SetDefault("username", "")
	v.SetDefault("password", "")
	v.SetDefault("keepalive", DefaultKeepAlive)
	v.SetDefault("connect_timeout", DefaultConnectTimeout)
	v.SetDefault("max_reconnect_interval", DefaultMaxReconnectInterval)
	v.SetDefault("render_rate", DefaultRenderRate)
	v.SetDefault("queue_size", DefaultQueueSize)
	v.SetDefault("listen", DefaultListen)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("metrics", true)
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("ecoguard", pflag.ContinueOnError)
	fs.String("config", "", "Path to configuration file")
	fs.String("broker", DefaultBroker, "Broker endpoint (tcp://, ssl://, ws://, wss://)")
	fs.String("client-id", "", "MQTT client identifier, generated when empty")
	fs.Bool("reject-unauthorized", true, "Verify the broker TLS certificate")
	fs.String("topic", DefaultTopic, "Telemetry topic pattern")
	fs.String("ca-file", "", "PEM bundle used to verify the broker certificate")
	fs.String("username", "", "Broker username")
	fs.String("password", "", "Broker password")
	fs.Duration("keepalive", DefaultKeepAlive, "MQTT keepalive interval")
	fs.Duration("connect-timeout", DefaultConnectTimeout, "Timeout of a single connect attempt")
	fs.Duration("max-reconnect-interval", DefaultMaxReconnectInterval, "Upper bound of the reconnect backoff")
	fs.Float64("render-rate", DefaultRenderRate, "Maximum view renders per second")
	fs.Int("queue-size", DefaultQueueSize, "Inbound message queue capacity")
	fs.String("listen", DefaultListen, "HTTP listen address for the views")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.Bool("metrics", true, "Collect pipeline counters")
	return fs
}

func readConfigFile(v *viper.Viper, path string) error {
	errFactory := errors.New()

	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(defaultConfigName)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/ecoguard")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return errFactory.Wrap(errors.ErrReadConfig, err)
	}

	return nil
}

// Validate checks the loaded values
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(strings.ToLower(c.LogLevel)).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	u, err := url.Parse(c.Broker)
	if err != nil || u.Host == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "broker="+c.Broker)
	}
	switch u.Scheme {
	case "tcp", "mqtt", "ssl", "tls", "mqtts", "ws", "wss":
	default:
		return errFactory.WithData(errors.ErrInvalidConfig, "broker scheme="+u.Scheme)
	}

	if c.Topic == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "topic is empty")
	}
	if c.RenderRate <= 0 {
		return errFactory.WithData(errors.ErrInvalidRate, c.RenderRate)
	}
	if c.QueueSize <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "queue_size must be positive")
	}

	return nil
}
