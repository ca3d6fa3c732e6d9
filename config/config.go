package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type GRPC struct {
	Addr string `yaml:"addr"`
}

type HTTP struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // chat-sync
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Postgres struct {
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"maxConns"`
	MinConns          int32         `yaml:"minConns"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod"`
	ApplicationName   string        `yaml:"applicationName"`
}

type SQLite struct {
	Path string `yaml:"path"`
}

type Storage struct {
	Driver   string   `yaml:"driver"` // postgres|sqlite|memory
	Postgres Postgres `yaml:"postgres"`
	SQLite   SQLite   `yaml:"sqlite"`
}

type Realtime struct {
	HistoryLimit       int           `yaml:"historyLimit"`
	WhiteboardDebounce time.Duration `yaml:"whiteboardDebounce"`
	TypingTTL          time.Duration `yaml:"typingTTL"`
	ExpirySweep        time.Duration `yaml:"expirySweep"`
	PingEvery          time.Duration `yaml:"pingEvery"`
	ReadLimit          int64         `yaml:"readLimit"`
	SendQueue          int           `yaml:"sendQueue"`
	MaxMessageLen      int           `yaml:"maxMessageLen"`
}

type RateLimit struct {
	Rate      float64       `yaml:"rate"`   // events per second per user
	Burst     int           `yaml:"burst"`  // local limiter burst
	Window    time.Duration `yaml:"window"` // redis sliding window
	RedisAddr string        `yaml:"redisAddr"`
}

type Admin struct {
	PublicKeyPath string `yaml:"publicKeyPath"`
	Issuer        string `yaml:"issuer"`
	Audience      string `yaml:"audience"`
}

type Uploads struct {
	Dir string `yaml:"dir"`
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type Config struct {
	HTTP      HTTP      `yaml:"http"`
	GRPC      GRPC      `yaml:"grpc"`
	Logging   Logging   `yaml:"logging"`
	Storage   Storage   `yaml:"storage"`
	Realtime  Realtime  `yaml:"realtime"`
	RateLimit RateLimit `yaml:"rateLimit"`
	Admin     Admin     `yaml:"admin"`
	Uploads   Uploads   `yaml:"uploads"`
	CORS      CORS      `yaml:"cors"`
}

func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if err := c.Storage.validate(); err != nil {
		return err
	}
	if c.Admin.PublicKeyPath != "" && c.Admin.Issuer == "" {
		return errors.New("admin.issuer is required when admin.publicKeyPath is set")
	}

	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "chat-sync"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	c.Realtime.setDefaults()
	c.RateLimit.setDefaults()
	if c.Uploads.Dir == "" {
		c.Uploads.Dir = "./public"
	}
	return nil
}

func (s *Storage) validate() error {
	if s.Driver == "" {
		s.Driver = DriverPostgres
	}
	switch s.Driver {
	case DriverPostgres:
		if s.Postgres.DSN == "" {
			return errors.New("storage.postgres.dsn is required")
		}
	case DriverSQLite:
		if s.SQLite.Path == "" {
			s.SQLite.Path = "./chat.db"
		}
	case DriverMemory:
	default:
		return fmt.Errorf("storage.driver %q is not supported", s.Driver)
	}
	return nil
}

func (r *Realtime) setDefaults() {
	if r.HistoryLimit <= 0 {
		r.HistoryLimit = 100
	}
	if r.WhiteboardDebounce <= 0 {
		r.WhiteboardDebounce = time.Second
	}
	if r.TypingTTL <= 0 {
		r.TypingTTL = 5 * time.Second
	}
	if r.ExpirySweep <= 0 {
		r.ExpirySweep = 30 * time.Second
	}
	if r.PingEvery <= 0 {
		r.PingEvery = 15 * time.Second
	}
	if r.ReadLimit <= 0 {
		// whiteboard snapshots travel in full
		r.ReadLimit = 8 << 20
	}
	if r.SendQueue <= 0 {
		r.SendQueue = 256
	}
	if r.MaxMessageLen <= 0 {
		r.MaxMessageLen = 4000
	}
}

func (r *RateLimit) setDefaults() {
	if r.Rate <= 0 {
		r.Rate = 5
	}
	if r.Burst <= 0 {
		r.Burst = 10
	}
	if r.Window <= 0 {
		r.Window = time.Second
	}
}
