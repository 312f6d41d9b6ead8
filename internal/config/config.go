package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName  string
	AppEnv   string
	AppPort  string
	LogLevel string

	DatabaseURL string
	RedisURL    string
	NATSURL     string

	JWTSecret     string
	JWTCookieName string
	JWTTTL        time.Duration

	StreamMaxLen      int64
	StreamReadTimeout time.Duration
	PageDefault       int
	PageMax           int
	PreviewLength     int

	RealtimeAuthTimeout time.Duration
	HeartbeatTTL        time.Duration
	ChannelBase         string

	WriteBehindWorkers int
	WriteBehindQueue   int

	SwipeFeedTTL         time.Duration
	SwipeFetchMultiplier int
	SwipeFetchMin        int
	SwipeRateLimit       int

	ProfileCacheTTL  time.Duration
	FriendsCacheTTL  time.Duration
	ProfileBatchSize int
	PresenceMirror   bool

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	CloudinaryFolder    string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("SPARK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "Spark Chat API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("jwt.cookie_name", "accessToken")
	v.SetDefault("jwt.ttl", "168h")
	v.SetDefault("chat.stream_max_len", 1000)
	v.SetDefault("chat.stream_read_timeout", "300ms")
	v.SetDefault("chat.page_default", 50)
	v.SetDefault("chat.page_max", 100)
	v.SetDefault("chat.preview_length", 30)
	v.SetDefault("realtime.auth_timeout", "10s")
	v.SetDefault("realtime.heartbeat_ttl", "90s")
	v.SetDefault("realtime.channel_base", "spark")
	v.SetDefault("writebehind.workers", 4)
	v.SetDefault("writebehind.queue", 1024)
	v.SetDefault("swipe.feed_ttl", "30m")
	v.SetDefault("swipe.fetch_multiplier", 5)
	v.SetDefault("swipe.fetch_min", 50)
	v.SetDefault("swipe.rate_limit", 60)
	v.SetDefault("profile.cache_ttl", "10m")
	v.SetDefault("friends.cache_ttl", "5m")
	v.SetDefault("profile.batch_size", 10)
	v.SetDefault("presence.mirror", false)
	v.SetDefault("cloudinary.folder", "spark/profiles")
}

func fromViper(v *viper.Viper) (Config, error) {
	durations := map[string]*time.Duration{}
	cfg := Config{
		AppName:  v.GetString("app.name"),
		AppEnv:   v.GetString("app.env"),
		AppPort:  v.GetString("app.port"),
		LogLevel: strings.ToLower(v.GetString("log.level")),

		DatabaseURL: v.GetString("database.url"),
		RedisURL:    v.GetString("redis.url"),
		NATSURL:     v.GetString("nats.url"),

		JWTSecret:     v.GetString("jwt.secret"),
		JWTCookieName: v.GetString("jwt.cookie_name"),

		StreamMaxLen:  v.GetInt64("chat.stream_max_len"),
		PageDefault:   v.GetInt("chat.page_default"),
		PageMax:       v.GetInt("chat.page_max"),
		PreviewLength: v.GetInt("chat.preview_length"),

		ChannelBase: v.GetString("realtime.channel_base"),

		WriteBehindWorkers: v.GetInt("writebehind.workers"),
		WriteBehindQueue:   v.GetInt("writebehind.queue"),

		SwipeFetchMultiplier: v.GetInt("swipe.fetch_multiplier"),
		SwipeFetchMin:        v.GetInt("swipe.fetch_min"),
		SwipeRateLimit:       v.GetInt("swipe.rate_limit"),

		ProfileBatchSize: v.GetInt("profile.batch_size"),
		PresenceMirror:   v.GetBool("presence.mirror"),

		CloudinaryCloudName: v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:    v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret: v.GetString("cloudinary.api_secret"),
		CloudinaryFolder:    v.GetString("cloudinary.folder"),
	}

	durations["jwt.ttl"] = &cfg.JWTTTL
	durations["chat.stream_read_timeout"] = &cfg.StreamReadTimeout
	durations["realtime.auth_timeout"] = &cfg.RealtimeAuthTimeout
	durations["realtime.heartbeat_ttl"] = &cfg.HeartbeatTTL
	durations["swipe.feed_ttl"] = &cfg.SwipeFeedTTL
	durations["profile.cache_ttl"] = &cfg.ProfileCacheTTL
	durations["friends.cache_ttl"] = &cfg.FriendsCacheTTL

	for key, target := range durations {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if parsed <= 0 {
			return Config{}, fmt.Errorf("%s must be positive", key)
		}
		*target = parsed
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("database url must be provided")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("redis url must be provided")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.StreamMaxLen <= 0 {
		cfg.StreamMaxLen = 1000
	}
	if cfg.PageMax <= 0 {
		cfg.PageMax = 100
	}
	if cfg.PageDefault <= 0 || cfg.PageDefault > cfg.PageMax {
		cfg.PageDefault = cfg.PageMax
	}
	if cfg.PreviewLength <= 0 {
		cfg.PreviewLength = 30
	}
	if cfg.WriteBehindWorkers <= 0 {
		cfg.WriteBehindWorkers = 4
	}
	if cfg.WriteBehindQueue <= 0 {
		cfg.WriteBehindQueue = 1024
	}
	if cfg.SwipeFetchMultiplier <= 0 {
		cfg.SwipeFetchMultiplier = 5
	}
	if cfg.SwipeFetchMin <= 0 {
		cfg.SwipeFetchMin = 50
	}
	if cfg.ProfileBatchSize <= 0 {
		cfg.ProfileBatchSize = 10
	}
	if cfg.ChannelBase == "" {
		cfg.ChannelBase = "spark"
	}

	return cfg, nil
}
