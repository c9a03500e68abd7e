package internal

import (
	"fmt"
	"strings"
	"time"

	"realtime-core/domain"
	"realtime-core/runtime"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel       string `env:"LOG_LEVEL,default=INFO"`
	Host           string `env:"HOST,default=localhost"`
	Port           int    `env:"PORT,default=8080" validate:"gt=0,lte=65535"`
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true" validate:"required"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`
	PermanentRooms string `env:"PERMANENT_ROOMS,default=lobby"`
	AnnounceRoom   string `env:"ANNOUNCE_ROOM,default=lobby"`

	JWTSecret string        `env:"JWT_SECRET,required=true" validate:"min=32"`
	TokenTTL  time.Duration `env:"TOKEN_TTL,default=24h" validate:"gt=0"`

	MaxRetries  int           `env:"MAX_RETRIES,default=3" validate:"gte=0"`
	BaseBackoff time.Duration `env:"BASE_BACKOFF,default=1s" validate:"gt=0"`
	MaxBackoff  time.Duration `env:"MAX_BACKOFF,default=10s" validate:"gtefield=BaseBackoff"`

	DeadLetterBuffer  int           `env:"DEAD_LETTER_BUFFER,default=256" validate:"gt=0"`
	SinkTimeout       time.Duration `env:"SINK_TIMEOUT,default=2s" validate:"gt=0"`
	RedisAddr         string        `env:"REDIS_ADDR"`
	RedisDLQStream    string        `env:"REDIS_DLQ_STREAM,default=realtime_events_dlq"`
	RedisStreamMaxLen int64         `env:"REDIS_STREAM_MAX_LEN,default=100000" validate:"gte=0"`
	RedisNotifyPrefix string        `env:"REDIS_NOTIFY_PREFIX,default=realtime_notifications"`

	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=200ms" validate:"gt=0"`
	JanitorInterval time.Duration `env:"JANITOR_INTERVAL,default=1m" validate:"gt=0"`
	EventRetention  time.Duration `env:"EVENT_RETENTION,default=1h" validate:"gt=0"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT,default=5s" validate:"gt=0"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s" validate:"gt=0"`
}

// LoadConfig reads an optional .env file, then the environment.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c Config) RetryPolicy() runtime.RetryPolicy {
	return runtime.RetryPolicy{MaxRetries: c.MaxRetries, BaseBackoff: c.BaseBackoff, MaxBackoff: c.MaxBackoff}
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Origins splits ALLOWED_ORIGINS on commas. Empty means same origin only.
func (c Config) Origins() []string {
	return splitList(c.AllowedOrigins)
}

// PermanentRoomIDs are the rooms opened at startup, never cleaned up.
func (c Config) PermanentRoomIDs() []domain.RoomID {
	var ids []domain.RoomID
	for _, name := range splitList(c.PermanentRooms) {
		ids = append(ids, domain.NewRoomID(domain.PermanentRoomType, name))
	}
	return ids
}

// AnnounceRoomID is the permanent room told about rooms created over HTTP.
// Empty disables the announcement.
func (c Config) AnnounceRoomID() domain.RoomID {
	if c.AnnounceRoom == "" {
		return ""
	}
	return domain.NewRoomID(domain.PermanentRoomType, c.AnnounceRoom)
}

func splitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
