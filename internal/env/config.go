package env

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	// Host and Port of the server the oracle runs against, and that serve
	// listens on
	Host string `env:"HOX_HOST,default=localhost"`
	Port int    `env:"HOX_PORT,default=8000"`

	// Timeout bounds every send and receive
	Timeout time.Duration `env:"HOX_TIMEOUT,default=5s"`

	LogLevel string `env:"HOX_LOG_LEVEL,default=info"`

	// HTTPPort serves the reference server's status endpoints
	HTTPPort int `env:"HOX_HTTP_PORT,default=8001"`

	// AnnounceTables makes the reference server follow NEW replies with an
	// I_TABLE event
	AnnounceTables bool `env:"HOX_ANNOUNCE_TABLES,default=false"`

	DebugHTTP bool `env:"HOX_DEBUG_HTTP"`
}

func LoadConfig(ctx context.Context) (*Config, error) {
	config := Config{}

	if err := godotenv.Load(".env.local"); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
