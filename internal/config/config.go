package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`

	// Store selects the durable team store backend: "sqlite" or "mongo".
	Store    string `env:"STORE" envDefault:"sqlite"`
	DBPath   string `env:"DB_PATH" envDefault:"data/cityhunt.db"`
	MongoURI string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDB  string `env:"MONGO_DB" envDefault:"cityhunt"`

	// RedisURL enables the leaderboard snapshot mirror and the redis health
	// check when non-empty.
	RedisURL string `env:"REDIS_URL"`

	// AuthSecret signs and verifies player identity tokens.
	AuthSecret string `env:"AUTH_SECRET,required"`

	// AdminPasswordHash is a bcrypt hash guarding the admin wipe endpoint.
	// Empty disables the endpoint.
	AdminPasswordHash string `env:"ADMIN_PASSWORD_HASH"`

	// QuestionsPath points at the question catalog JSON. The built-in demo
	// catalog is used when the file does not exist.
	QuestionsPath string `env:"QUESTIONS_PATH" envDefault:"data/questions.json"`

	SolveReward     int `env:"SOLVE_REWARD" envDefault:"200"`
	KillReward      int `env:"KILL_REWARD" envDefault:"5"`
	DeathPenalty    int `env:"DEATH_PENALTY" envDefault:"5"`
	LeaderboardSize int `env:"LEADERBOARD_SIZE" envDefault:"10"`

	// MaxSpeed is the speed-check ceiling in units/second. Nominal player
	// movement is 15 u/s; the ceiling leaves room for sprint and network jitter.
	MaxSpeed float64 `env:"MAX_SPEED" envDefault:"30"`

	// ProximityTolerance is the planar distance, in world units, within which
	// answer attempts are accepted.
	ProximityTolerance float64 `env:"PROXIMITY_TOLERANCE" envDefault:"10"`

	// MoveResetGap resets the speed-check baseline after idle or lag.
	MoveResetGap time.Duration `env:"MOVE_RESET_GAP" envDefault:"2s"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.Store != "sqlite" && cfg.Store != "mongo" {
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store)
	}
	return &cfg, nil
}
