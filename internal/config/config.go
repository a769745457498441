package config

import (
	"github.com/caarlos0/env/v6"
	"github.com/tonkeeper/tongo/config"
	"log/slog"
	"reflect"
	"time"
)

// Replay holds what both the service and the command line tool need to retrace a transaction.
type Replay struct {
	LogLevel        slog.Level          `env:"LOG_LEVEL" envDefault:"INFO"`
	LiteServers     []config.LiteServer `env:"LITE_SERVERS"`
	Testnet         bool                `env:"TESTNET" envDefault:"false"`
	RedisAddr       string              `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	EmulatorQueue   string              `env:"EMULATOR_QUEUE" envDefault:"emulatorqueue"`
	EmulatorTimeout time.Duration       `env:"EMULATOR_TIMEOUT" envDefault:"30s"`
	// Pause between consecutive liteserver requests of one job
	RequestDelay time.Duration `env:"REQUEST_DELAY" envDefault:"0s"`
}

type Config struct {
	Replay
	Port            int           `env:"PORT" envDefault:"8081"`
	PostgresURI     string        `env:"POSTGRES_URI,required"`
	Token           string        `env:"TOKEN,required"`
	Workers         int           `env:"WORKERS" envDefault:"2"`
	JobTimeout      time.Duration `env:"JOB_TIMEOUT" envDefault:"2m"`
	JobTTL          time.Duration `env:"JOB_TTL" envDefault:"168h"`
	WebhookEndpoint string        `env:"WEBHOOK_ENDPOINT"`
	// Key for generating a private key for webhook signing
	Key string `env:"KEY"` // 32 bytes in hex representation
}

func parsers() map[reflect.Type]env.ParserFunc {
	var ll slog.Level
	return map[reflect.Type]env.ParserFunc{
		reflect.TypeOf(ll): func(v string) (interface{}, error) {
			var level slog.Level
			err := level.UnmarshalText([]byte(v))
			return level, err
		},
		reflect.TypeOf([]config.LiteServer{}): func(v string) (interface{}, error) {
			servers, err := config.ParseLiteServersEnvVar(v)
			if err != nil {
				return nil, err
			}
			return servers, nil
		},
	}
}

func load(c any) error {
	return env.ParseWithFuncs(c, parsers())
}

func Load() Config {
	var c Config
	if err := load(&c); err != nil {
		panic("parse config error: " + err.Error())
	}
	return c
}

func LoadReplay() Replay {
	var c Replay
	if err := load(&c); err != nil {
		panic("parse config error: " + err.Error())
	}
	return c
}
