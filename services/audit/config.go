package audit

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds runtime configuration for the audit service.
type Config struct {
	NATSURL   string        `env:"NATS_URL,default=nats://127.0.0.1:4222"`
	DBDSN     string        `env:"DB_DSN,required"`
	Retention time.Duration `env:"AUDIT_RETENTION,default=2160h"`
}

// LoadConfig returns a Config populated from environment variables.
func LoadConfig(ctx context.Context) (Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
