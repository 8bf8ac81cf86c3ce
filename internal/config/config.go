package config

import (
	"os"
	"strconv"
	"time"

	commoncfg "clinic-core/common/config"
)

// Config clinic-core settings, read from the environment.
type Config struct {
	HTTP struct {
		Addr string
	}
	DBEnabled bool
	Database  commoncfg.DatabaseConfig

	RedisEnabled bool
	Redis        commoncfg.RedisConfig

	Log struct {
		Level  string
		Format string
	}

	Tenant struct {
		Default  string
		CacheTTL time.Duration
	}

	Permission struct {
		FailOpen        bool
		CatalogCacheTTL time.Duration
	}

	Auth AuthConfig

	AccessLog struct {
		Mode     string // direct | stream
		Buffer   int
		Stream   string
		Group    string
		Consumer string
	}

	MQTT struct {
		Enabled bool
		commoncfg.MQTTConfig
	}
}

// AuthConfig selects how the current user is established.
type AuthConfig struct {
	Mode           string // header | jwt | remote
	JWTSecret      string
	ServiceURL     string
	ServiceTimeout time.Duration
}

const (
	AuthModeHeader = "header"
	AuthModeJWT    = "jwt"
	AuthModeRemote = "remote"

	AccessLogDirect = "direct"
	AccessLogStream = "stream"
)

func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	// Without a database the server runs on in-memory stores seeded with a demo tenant.
	cfg.DBEnabled = getEnv("DB_ENABLED", "true") == "true"
	cfg.Database = commoncfg.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "clinic",
		SSLMode:  "disable",
		MaxConns: 25,
		MaxIdle:  5,
	}
	cfg.Database.LoadFromEnv("DB")

	cfg.RedisEnabled = getEnv("REDIS_ENABLED", "false") == "true"
	cfg.Redis = commoncfg.RedisConfig{Addr: "localhost:6379"}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.Tenant.Default = getEnv("DEFAULT_TENANT", "public")
	cfg.Tenant.CacheTTL = parseDuration(getEnv("TENANT_CACHE_TTL", "60s"), time.Minute)

	cfg.Permission.FailOpen = parseBool(getEnv("PERMISSION_FAIL_OPEN", "true"), true)
	cfg.Permission.CatalogCacheTTL = parseDuration(getEnv("CATALOG_CACHE_TTL", "5m"), 5*time.Minute)

	cfg.Auth.Mode = getEnv("AUTH_MODE", AuthModeHeader)
	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", "")
	cfg.Auth.ServiceURL = getEnv("AUTH_SERVICE_URL", "http://localhost:8084")
	cfg.Auth.ServiceTimeout = parseDuration(getEnv("AUTH_SERVICE_TIMEOUT", "5s"), 5*time.Second)

	cfg.AccessLog.Mode = getEnv("ACCESS_LOG_MODE", AccessLogDirect)
	cfg.AccessLog.Buffer = parseInt(getEnv("ACCESS_LOG_BUFFER", "1024"), 1024)
	cfg.AccessLog.Stream = getEnv("ACCESS_LOG_STREAM", "clinic:access_log")
	cfg.AccessLog.Group = getEnv("ACCESS_LOG_GROUP", "access-log-drainers")
	cfg.AccessLog.Consumer = getEnv("ACCESS_LOG_CONSUMER", hostname())

	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.MQTTConfig = commoncfg.MQTTConfig{
		Broker:   "tcp://localhost:1883",
		ClientID: "clinic-core-" + hostname(),
		Topic:    "clinic-core/catalog/invalidate",
		QoS:      1,
	}
	cfg.MQTT.MQTTConfig.LoadFromEnv("MQTT")

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseBool(s string, def bool) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "local"
	}
	return h
}
