package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
)

// Config holds all server configuration.
// Priority (lowest → highest): defaults < .env file < env vars < CLI flags.
type Config struct {
	Addr     string
	Dev      bool   // console logging, debug defaults
	LogLevel string // zap level name

	PhaseDuration  time.Duration
	MinPlayers     int
	RoomCodeLength int

	AllowedOrigins []string // extra websocket origin patterns, e.g. "localhost:*"
	PingInterval   time.Duration // websocket keepalive; a missed pong disconnects

	DatabaseURL string // empty disables the game journal
}

func Default() Config {
	return Config{
		Addr:           ":8080",
		LogLevel:       "info",
		PhaseDuration:  60 * time.Second,
		MinPlayers:     4,
		RoomCodeLength: 5,
		PingInterval:   30 * time.Second,
	}
}

// Load builds a config by layering defaults, the optional env file, the
// process environment and finally args. A missing env file is not an error.
func Load(envFile string, args []string) (Config, error) {
	if envFile != "" {
		// godotenv never overrides variables already set in the environment
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("env file %s: %w", envFile, err)
		}
	}

	cfg := Default()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.applyFlags(args); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return "", false
		}
		return v, true
	}

	var errs error
	str := func(key string, dst *string) {
		if v, ok := get(key); ok {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := get(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := get(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := get(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("ADDR", &c.Addr)
	boolean("DEV", &c.Dev)
	str("LOG_LEVEL", &c.LogLevel)
	duration("PHASE_DURATION", &c.PhaseDuration)
	integer("MIN_PLAYERS", &c.MinPlayers)
	integer("ROOM_CODE_LENGTH", &c.RoomCodeLength)
	duration("PING_INTERVAL", &c.PingInterval)
	str("DATABASE_URL", &c.DatabaseURL)
	if v, ok := get("ALLOWED_ORIGINS"); ok {
		c.AllowedOrigins = splitList(v)
	}
	return errs
}

func (c *Config) applyFlags(args []string) error {
	flags := flag.NewFlagSet("werewolf-server", flag.ContinueOnError)
	flags.SetOutput(io.Discard)

	// Bound to the layered values so unset flags keep them.
	flags.StringVar(&c.Addr, "addr", c.Addr, "HTTP listen address")
	flags.BoolVar(&c.Dev, "dev", c.Dev, "development mode")
	flags.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
	flags.DurationVar(&c.PhaseDuration, "phase-duration", c.PhaseDuration, "length of each day and night")
	flags.IntVar(&c.MinPlayers, "min-players", c.MinPlayers, "players needed to start a game")
	flags.IntVar(&c.RoomCodeLength, "code-length", c.RoomCodeLength, "room code length")
	flags.DurationVar(&c.PingInterval, "ping-interval", c.PingInterval, "websocket keepalive ping period")
	flags.StringVar(&c.DatabaseURL, "db", c.DatabaseURL, "postgres DSN for the game journal")
	origins := flags.String("origins", "", "comma separated websocket origin patterns")

	if err := flags.Parse(args); err != nil {
		return err
	}
	flags.Visit(func(f *flag.Flag) {
		if f.Name == "origins" {
			c.AllowedOrigins = splitList(*origins)
		}
	})
	return nil
}

func (c Config) Validate() error {
	var errs error
	if c.Addr == "" {
		errs = multierr.Append(errs, errors.New("addr is empty"))
	}
	if c.PhaseDuration <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("phase duration must be positive, got %s", c.PhaseDuration))
	}
	if c.MinPlayers < 1 {
		errs = multierr.Append(errs, fmt.Errorf("min players must be at least 1, got %d", c.MinPlayers))
	}
	if c.RoomCodeLength < 3 {
		errs = multierr.Append(errs, fmt.Errorf("room code length must be at least 3, got %d", c.RoomCodeLength))
	}
	if c.PingInterval <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("ping interval must be positive, got %s", c.PingInterval))
	}
	return errs
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
