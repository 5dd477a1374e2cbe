// Package config provides Viper-based configuration loading for the arena server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// HTTPConfig holds the public JSON API listener settings.
type HTTPConfig struct {
	// Host is the bind address for the HTTP listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the HTTP listener. Overridable via ARENA_HTTP_PORT.
	Port int `mapstructure:"port"`
	// ReadTimeout is the per-request read timeout.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the per-request write timeout.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// DatabaseConfig holds PostgreSQL connection settings for the Postgres-backed
// state store.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// Store backend names accepted by StoreConfig.Backend.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// StoreConfig selects and tunes the shared state store backend.
type StoreConfig struct {
	// Backend is the store implementation: "postgres" or "memory".
	Backend string `mapstructure:"backend"`
	// OpTimeout bounds every individual store read/write. A call that
	// exceeds it is treated as a transient failure by the periodic loops.
	OpTimeout time.Duration `mapstructure:"op_timeout"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// GameConfig holds every gameplay tunable for a match. Defaults reproduce the
// production balance; tests shrink the timers.
type GameConfig struct {
	// Capacity is the maximum roster size per match.
	Capacity int `mapstructure:"capacity"`
	// MaxRounds is the number of rounds before the match ends on time.
	MaxRounds int `mapstructure:"max_rounds"`
	// RoundSeconds is the duration of one round in scheduler ticks.
	RoundSeconds int `mapstructure:"round_seconds"`
	// SchedulerTick is the wall-clock period of one scheduler tick.
	SchedulerTick time.Duration `mapstructure:"scheduler_tick"`
	// BotTick is the period of the bot decision loop.
	BotTick time.Duration `mapstructure:"bot_tick"`
	// InterBotDelay is the pause between consecutive bot submissions
	// within one bot tick.
	InterBotDelay time.Duration `mapstructure:"inter_bot_delay"`
	// BotFillDelay is the wait before the one-shot bot-fill check that
	// follows a create or join, giving humans a window to fill the match.
	BotFillDelay time.Duration `mapstructure:"bot_fill_delay"`

	// ItemCount is the number of items generated at each round start.
	ItemCount int `mapstructure:"item_count"`
	// SpawnExtent is the half-width of the square spawn region on x/z.
	SpawnExtent int `mapstructure:"spawn_extent"`

	// InitialRadius is the safe-zone radius at round 1.
	InitialRadius float64 `mapstructure:"initial_radius"`
	// RadiusStep is subtracted from InitialRadius per completed round.
	RadiusStep float64 `mapstructure:"radius_step"`
	// MinRadius is the floor for mid-round shrinks.
	MinRadius float64 `mapstructure:"min_radius"`
	// ShrinkFactor is the multiplicative mid-round shrink.
	ShrinkFactor float64 `mapstructure:"shrink_factor"`
	// ShrinkEvery is the tick interval between mid-round shrinks.
	ShrinkEvery int `mapstructure:"shrink_every"`
	// ShrinkBelow gates mid-round shrinks to late round time.
	ShrinkBelow int `mapstructure:"shrink_below"`

	// PickupRadius is the item pickup distance.
	PickupRadius float64 `mapstructure:"pickup_radius"`
	// InteractionRadius is the proximity distance logged between combatants.
	InteractionRadius float64 `mapstructure:"interaction_radius"`
	// AttackRange is the maximum attack distance.
	AttackRange float64 `mapstructure:"attack_range"`
	// BaseDamage is the attack damage before the random multiplier.
	BaseDamage int `mapstructure:"base_damage"`
	// DefeatScore is awarded to an attacker for each defeat.
	DefeatScore int `mapstructure:"defeat_score"`
	// SpeedBoostDuration is how long a consumed speed item lasts.
	SpeedBoostDuration time.Duration `mapstructure:"speed_boost_duration"`

	// BotStep is the movement distance of one bot move.
	BotStep float64 `mapstructure:"bot_step"`
	// BotLowHealth triggers the bot's heal-seeking branch.
	BotLowHealth int `mapstructure:"bot_low_health"`
	// BotEngageHealth is the minimum health at which a bot fights
	// rather than flees.
	BotEngageHealth int `mapstructure:"bot_engage_health"`
}

// RoundDuration returns one round expressed as wall-clock time.
func (g GameConfig) RoundDuration() time.Duration {
	return time.Duration(g.RoundSeconds) * g.SchedulerTick
}

// Config is the top-level application configuration.
type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Database DatabaseConfig `mapstructure:"database"`
	Store    StoreConfig    `mapstructure:"store"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Game     GameConfig     `mapstructure:"game"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateHTTP(c.HTTP); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateStore(c.Store); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Store.Backend == BackendPostgres {
		if err := validateDatabase(c.Database); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateGame(c.Game); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateHTTP(h HTTPConfig) error {
	var errs []string
	if h.Port < 1 || h.Port > 65535 {
		errs = append(errs, fmt.Sprintf("http.port must be 1-65535, got %d", h.Port))
	}
	if h.ReadTimeout < 0 {
		errs = append(errs, "http.read_timeout must not be negative")
	}
	if h.WriteTimeout < 0 {
		errs = append(errs, "http.write_timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateStore(s StoreConfig) error {
	validBackends := map[string]bool{BackendPostgres: true, BackendMemory: true}
	if !validBackends[s.Backend] {
		return fmt.Errorf("store.backend must be one of [postgres, memory], got %q", s.Backend)
	}
	if s.OpTimeout <= 0 {
		return errors.New("store.op_timeout must be positive")
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateGame(g GameConfig) error {
	var errs []string
	if g.Capacity < 2 {
		errs = append(errs, fmt.Sprintf("game.capacity must be >= 2, got %d", g.Capacity))
	}
	if g.MaxRounds < 1 {
		errs = append(errs, fmt.Sprintf("game.max_rounds must be >= 1, got %d", g.MaxRounds))
	}
	if g.RoundSeconds < 1 {
		errs = append(errs, fmt.Sprintf("game.round_seconds must be >= 1, got %d", g.RoundSeconds))
	}
	if g.SchedulerTick <= 0 {
		errs = append(errs, "game.scheduler_tick must be positive")
	}
	if g.BotTick <= 0 {
		errs = append(errs, "game.bot_tick must be positive")
	}
	if g.InterBotDelay < 0 {
		errs = append(errs, "game.inter_bot_delay must not be negative")
	}
	if g.BotFillDelay < 0 {
		errs = append(errs, "game.bot_fill_delay must not be negative")
	}
	if g.ItemCount < 0 {
		errs = append(errs, fmt.Sprintf("game.item_count must be >= 0, got %d", g.ItemCount))
	}
	if g.InitialRadius <= 0 {
		errs = append(errs, "game.initial_radius must be positive")
	}
	if g.MinRadius <= 0 || g.MinRadius > g.InitialRadius {
		errs = append(errs, "game.min_radius must be in (0, initial_radius]")
	}
	if g.RadiusStep < 0 {
		errs = append(errs, "game.radius_step must not be negative")
	}
	if g.ShrinkFactor <= 0 || g.ShrinkFactor >= 1 {
		errs = append(errs, fmt.Sprintf("game.shrink_factor must be in (0, 1), got %g", g.ShrinkFactor))
	}
	if g.ShrinkEvery < 1 {
		errs = append(errs, fmt.Sprintf("game.shrink_every must be >= 1, got %d", g.ShrinkEvery))
	}
	if g.AttackRange <= 0 {
		errs = append(errs, "game.attack_range must be positive")
	}
	if g.BaseDamage < 1 {
		errs = append(errs, fmt.Sprintf("game.base_damage must be >= 1, got %d", g.BaseDamage))
	}
	if g.BotStep <= 0 {
		errs = append(errs, "game.bot_step must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with ARENA_ prefix
	v.SetEnvPrefix("ARENA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// DefaultGame returns the production gameplay tunables.
//
// Postcondition: The returned GameConfig passes validation.
func DefaultGame() GameConfig {
	return GameConfig{
		Capacity:           20,
		MaxRounds:          3,
		RoundSeconds:       300,
		SchedulerTick:      time.Second,
		BotTick:            3 * time.Second,
		InterBotDelay:      300 * time.Millisecond,
		BotFillDelay:       15 * time.Second,
		ItemCount:          50,
		SpawnExtent:        500,
		InitialRadius:      500,
		RadiusStep:         100,
		MinRadius:          50,
		ShrinkFactor:       0.8,
		ShrinkEvery:        60,
		ShrinkBelow:        240,
		PickupRadius:       5,
		InteractionRadius:  10,
		AttackRange:        15,
		BaseDamage:         10,
		DefeatScore:        100,
		SpeedBoostDuration: 30 * time.Second,
		BotStep:            5,
		BotLowHealth:       30,
		BotEngageHealth:    50,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 3002)
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "10s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "arena")
	v.SetDefault("database.password", "arena")
	v.SetDefault("database.name", "arena")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("store.backend", "postgres")
	v.SetDefault("store.op_timeout", "5s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	g := DefaultGame()
	v.SetDefault("game.capacity", g.Capacity)
	v.SetDefault("game.max_rounds", g.MaxRounds)
	v.SetDefault("game.round_seconds", g.RoundSeconds)
	v.SetDefault("game.scheduler_tick", g.SchedulerTick)
	v.SetDefault("game.bot_tick", g.BotTick)
	v.SetDefault("game.inter_bot_delay", g.InterBotDelay)
	v.SetDefault("game.bot_fill_delay", g.BotFillDelay)
	v.SetDefault("game.item_count", g.ItemCount)
	v.SetDefault("game.spawn_extent", g.SpawnExtent)
	v.SetDefault("game.initial_radius", g.InitialRadius)
	v.SetDefault("game.radius_step", g.RadiusStep)
	v.SetDefault("game.min_radius", g.MinRadius)
	v.SetDefault("game.shrink_factor", g.ShrinkFactor)
	v.SetDefault("game.shrink_every", g.ShrinkEvery)
	v.SetDefault("game.shrink_below", g.ShrinkBelow)
	v.SetDefault("game.pickup_radius", g.PickupRadius)
	v.SetDefault("game.interaction_radius", g.InteractionRadius)
	v.SetDefault("game.attack_range", g.AttackRange)
	v.SetDefault("game.base_damage", g.BaseDamage)
	v.SetDefault("game.defeat_score", g.DefeatScore)
	v.SetDefault("game.speed_boost_duration", g.SpeedBoostDuration)
	v.SetDefault("game.bot_step", g.BotStep)
	v.SetDefault("game.bot_low_health", g.BotLowHealth)
	v.SetDefault("game.bot_engage_health", g.BotEngageHealth)
}
