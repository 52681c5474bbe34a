package config

import "time"

type Config struct {
	Service     *ServiceConfig
	HTTP        *HTTPConfig
	Redis       *RedisConfig
	Postgres    *PostgresConfig
	Cache       *CacheConfig
	Presence    *PresenceConfig
	FCM         *FCMConfig
	Worker      *WorkerConfig
	Logger      *LoggerConfig
	Tracer      *TracerConfig
	SecretToken string
}

type ServiceConfig struct {
	Name string
	Env  string
	Add  string
}

type HTTPConfig struct {
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// RedisConfig with an empty URL disables every Redis-backed component.
type RedisConfig struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
	PingTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

type CacheConfig struct {
	Namespace  string
	DefaultTTL time.Duration
}

type PresenceConfig struct {
	// Backend is "memory" or "redis".
	Backend string
}

// FCMConfig holds the service account used for FCM HTTP v1. Push is disabled
// unless all of ProjectID, ClientEmail and PrivateKey are set.
type FCMConfig struct {
	ProjectID   string
	ClientEmail string
	PrivateKey  string
	TokenURL    string
	Endpoint    string
}

func (c FCMConfig) Enabled() bool {
	return c.ProjectID != "" && c.ClientEmail != "" && c.PrivateKey != ""
}

type WorkerConfig struct {
	NotificationStream string
	NotificationGroup  string
	TaskTimeout        time.Duration
}

type LoggerConfig struct {
	Level  string
	Format string
}

type TracerConfig struct {
	Enabled bool
	Address string
}
