package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Presence  PresenceConfig  `yaml:"presence"`
	Cache     CacheConfig     `yaml:"cache"`
	Transport TransportConfig `yaml:"transport"`
	Redis     RedisConfig     `yaml:"redis"`
	NATS      NATSConfig      `yaml:"nats"`
}

type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	Env         string   `yaml:"env"`
	LogLevel    string   `yaml:"log_level"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	MysqlDSN     string `yaml:"mysql_dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type PresenceConfig struct {
	// Threshold after which a user without activity is considered offline.
	Threshold time.Duration `yaml:"threshold"`
	// HeartbeatInterval is advertised to clients; the server never schedules it.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

type CacheConfig struct {
	Backend string        `yaml:"backend"` // memory, redis
	TTL     time.Duration `yaml:"ttl"`
	// JanitorSpec is a cron spec for purging expired in-memory entries.
	JanitorSpec string `yaml:"janitor_spec"`
}

type TransportConfig struct {
	Broker string `yaml:"broker"` // local, redis, nats
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

// Load reads the yaml file at path, then applies environment overrides. A
// missing file means defaults; any other read error is returned. A .env file
// in the working directory is loaded first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, err
	}

	applyEnv(cfg)
	return cfg, nil
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        ":8080",
			Env:         "dev",
			LogLevel:    "info",
			CORSOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
		},
		Database: DatabaseConfig{
			MysqlDSN:     "root:root@tcp(localhost:3306)/campusline?charset=utf8mb4&parseTime=True&loc=Local",
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Auth: AuthConfig{
			JWTSecret: "campusline-secret-key-change-in-production",
			TokenTTL:  7 * 24 * time.Hour,
		},
		Presence: PresenceConfig{
			Threshold:         2 * time.Minute,
			HeartbeatInterval: 30 * time.Second,
		},
		Cache: CacheConfig{
			Backend:     "memory",
			TTL:         5 * time.Minute,
			JanitorSpec: "@every 1m",
		},
		Transport: TransportConfig{
			Broker: "local",
		},
		Redis: RedisConfig{
			URL: "redis://localhost:6379/0",
		},
		NATS: NATSConfig{
			URL: "nats://localhost:4222",
		},
	}
}

func applyEnv(cfg *Config) {
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Addr = ":" + port
	}
	if env := os.Getenv("ENV"); env != "" {
		cfg.Server.Env = env
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Server.LogLevel = level
	}
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.CORSOrigins = nil
		for _, origin := range strings.Split(origins, ",") {
			cfg.Server.CORSOrigins = append(cfg.Server.CORSOrigins, strings.TrimSpace(origin))
		}
	}
	if dsn := os.Getenv("MYSQL_DSN"); dsn != "" {
		cfg.Database.MysqlDSN = dsn
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if ttl := getDuration("JWT_TTL"); ttl > 0 {
		cfg.Auth.TokenTTL = ttl
	}
	if threshold := getDuration("PRESENCE_THRESHOLD"); threshold > 0 {
		cfg.Presence.Threshold = threshold
	}
	if interval := getDuration("HEARTBEAT_INTERVAL"); interval > 0 {
		cfg.Presence.HeartbeatInterval = interval
	}
	if backend := os.Getenv("CACHE_BACKEND"); backend != "" {
		cfg.Cache.Backend = backend
	}
	if ttl := getDuration("CACHE_TTL"); ttl > 0 {
		cfg.Cache.TTL = ttl
	}
	if broker := os.Getenv("TRANSPORT_BROKER"); broker != "" {
		cfg.Transport.Broker = broker
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		cfg.NATS.URL = url
	}
	if n := os.Getenv("DB_MAX_OPEN_CONNS"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			cfg.Database.MaxOpenConns = v
		}
	}
}

// getDuration accepts Go duration strings ("90s") or plain seconds ("90").
func getDuration(key string) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return 0
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}
