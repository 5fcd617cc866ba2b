package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN        string `env:"DATABASE_DSN,required=true"`
	RedisURL           string `env:"REDIS_URL,required=true"`
	RendererURL        string `env:"RENDERER_URL,required=true"`
	ObjectStoreURL     string `env:"OBJECT_STORE_URL,required=true"`
	ArtifactDir        string `env:"ARTIFACT_DIR,default=/var/lib/qwork/artifacts"`
	DBMaxOpenConns     int    `env:"DB_MAX_OPEN_CONNS,default=25"`
	APIPort            int    `env:"API_PORT,default=8080"`
	MetricsPort        int    `env:"METRICS_PORT,default=9090"`
	LogLevel           string `env:"LOG_LEVEL,default=info"`
	GracePeriodMinutes int    `env:"GRACE_PERIOD_MINUTES,default=10"`
	SweepLimit         int    `env:"SWEEP_LIMIT,default=100"`
	SweepIntervalSec   int    `env:"SWEEP_INTERVAL_SEC,default=60"`
	WorkerConcurrency  int    `env:"WORKER_CONCURRENCY,default=4"`
	WorkerPollSec      int    `env:"WORKER_POLL_SEC,default=5"`
	MaxQueueAttempts   int    `env:"MAX_QUEUE_ATTEMPTS,default=5"`
	RenderRatePerSec   int    `env:"RENDER_RATE_PER_SEC,default=10"`
	UploadTimeoutSec   int    `env:"UPLOAD_TIMEOUT_SEC,default=30"`
	ResetReasonMinLen  int    `env:"RESET_REASON_MIN_LEN,default=20"`
	PresenceTTLSec     int    `env:"PRESENCE_TTL_SEC,default=90"`
	StuckAfterMinutes  int    `env:"STUCK_AFTER_MINUTES,default=5"`
	MonitorWindowHours int    `env:"MONITOR_WINDOW_HOURS,default=24"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodMinutes) * time.Minute
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSec) * time.Second
}

func (c *Config) WorkerPollInterval() time.Duration {
	return time.Duration(c.WorkerPollSec) * time.Second
}

func (c *Config) UploadTimeout() time.Duration {
	return time.Duration(c.UploadTimeoutSec) * time.Second
}

func (c *Config) PresenceTTL() time.Duration {
	return time.Duration(c.PresenceTTLSec) * time.Second
}

func (c *Config) StuckThreshold() time.Duration {
	return time.Duration(c.StuckAfterMinutes) * time.Minute
}

func (c *Config) MonitorWindow() time.Duration {
	return time.Duration(c.MonitorWindowHours) * time.Hour
}
