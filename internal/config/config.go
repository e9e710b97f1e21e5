// Package config holds the server settings and binds them to command-line
// flags and CHESS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/casalena404/crypto-chess/internal/auth"
)

// EnvPrefix is prepended to every flag name to form its environment
// variable: --jwt-secret is read from CHESS_JWT_SECRET.
const EnvPrefix = "CHESS"

const minSecretLength = 16

type Config struct {
	Port            int
	DBPath          string
	JWTSecret       string
	TokenTTL        time.Duration
	CORSOrigins     []string
	SweepInterval   time.Duration
	TicketTTL       time.Duration
	LogLevel        string
	LogFormat       string
	StrictPositions bool
	WSRate          float64
	WSBurst         int
	HTTPRate        float64
	HTTPBurst       int
	BcryptCost      int
}

// RegisterFlags declares every setting on fs with its default.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.IntVarP(&c.Port, "port", "p", 8080, "port to listen on (env: CHESS_PORT)")
	fs.StringVar(&c.DBPath, "db-path", "data/chess.db", "path to the sqlite database (env: CHESS_DB_PATH)")
	fs.StringVar(&c.JWTSecret, "jwt-secret", "", "HMAC secret for access tokens, at least 16 characters (env: CHESS_JWT_SECRET)")
	fs.DurationVar(&c.TokenTTL, "token-ttl", auth.DefaultTTL, "lifetime of issued tokens (env: CHESS_TOKEN_TTL)")
	fs.StringSliceVar(&c.CORSOrigins, "cors-origin", []string{"http://localhost:3000"}, "allowed CORS origins, comma separated (env: CHESS_CORS_ORIGIN)")
	fs.DurationVar(&c.SweepInterval, "sweep-interval", 2*time.Second, "how often waiting tickets are re-paired (env: CHESS_SWEEP_INTERVAL)")
	fs.DurationVar(&c.TicketTTL, "ticket-ttl", 5*time.Minute, "age at which a waiting ticket is dropped (env: CHESS_TICKET_TTL)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug, info, warn or error (env: CHESS_LOG_LEVEL)")
	fs.StringVar(&c.LogFormat, "log-format", "text", "text or json (env: CHESS_LOG_FORMAT)")
	fs.BoolVar(&c.StrictPositions, "strict-positions", false, "reject moves whose FEN does not parse (env: CHESS_STRICT_POSITIONS)")
	fs.Float64Var(&c.WSRate, "ws-rate", 10, "websocket events per second per connection (env: CHESS_WS_RATE)")
	fs.IntVar(&c.WSBurst, "ws-burst", 20, "websocket event burst per connection (env: CHESS_WS_BURST)")
	fs.Float64Var(&c.HTTPRate, "http-rate", 20, "API requests per second per client (env: CHESS_HTTP_RATE)")
	fs.IntVar(&c.HTTPBurst, "http-burst", 40, "API request burst per client (env: CHESS_HTTP_BURST)")
	fs.IntVar(&c.BcryptCost, "bcrypt-cost", auth.DefaultCost, "bcrypt work factor (env: CHESS_BCRYPT_COST)")
}

// BindEnv fills every flag the command line left unset from its CHESS_*
// environment variable. Call it after the flags have been parsed.
func BindEnv(fs *pflag.FlagSet) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if f.Changed || !v.IsSet(f.Name) {
			return
		}
		if err := fs.Set(f.Name, envValue(v.Get(f.Name))); err != nil {
			errs = append(errs, fmt.Errorf("%s_%s: %w",
				EnvPrefix, strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_")), err))
		}
	})
	return errors.Join(errs...)
}

// envValue renders a viper value as flag text. Slice flags come back as
// []string when bound to a pflag, so they are re-joined.
func envValue(v any) string {
	if s, ok := v.([]string); ok {
		return strings.Join(s, ",")
	}
	return fmt.Sprintf("%v", v)
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return errors.New("--db-path must not be empty")
	}
	if len(c.JWTSecret) < minSecretLength {
		return fmt.Errorf("--jwt-secret must be at least %d characters", minSecretLength)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("--token-ttl must be positive: %s", c.TokenTTL)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("--sweep-interval must be positive: %s", c.SweepInterval)
	}
	if c.TicketTTL <= 0 {
		return fmt.Errorf("--ticket-ttl must be positive: %s", c.TicketTTL)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("--log-format must be text or json: %q", c.LogFormat)
	}
	if c.WSRate <= 0 || c.WSBurst < 1 {
		return errors.New("--ws-rate and --ws-burst must be positive")
	}
	if c.HTTPRate <= 0 || c.HTTPBurst < 1 {
		return errors.New("--http-rate and --http-burst must be positive")
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("--log-level: %w", err)
	}
	return lvl, nil
}
