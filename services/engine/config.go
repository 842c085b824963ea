package engine

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds runtime configuration for the engine service.
type Config struct {
	Addr          string        `env:"ADDR,default=:8080"`
	NATSURL       string        `env:"NATS_URL,default=nats://127.0.0.1:4222"`
	DBDSN         string        `env:"DB_DSN,required"`
	TokenTTL      time.Duration `env:"TOKEN_TTL,default=30m"`
	FBSBaseURL    string        `env:"FBS_BASE_URL,required"`
	FBSToken      string        `env:"FBS_TOKEN"`
	ReceiptBucket string        `env:"RECEIPT_BUCKET"`
	OTLPEndpoint  string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// LoadConfig returns a Config populated from environment variables.
func LoadConfig(ctx context.Context) (Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
