// Package daemon holds the bot's configuration: a TOML file under the tierbot
// home directory, overlaid by environment variables.
package daemon

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vip-ladder/tierbot/internal/app/ladder"
	"github.com/vip-ladder/tierbot/internal/app/roles"
	"github.com/vip-ladder/tierbot/internal/domain"
)

// Config is the full configuration file.
type Config struct {
	Discord   DiscordConfig   `toml:"discord" yaml:"discord"`
	API       APIConfig       `toml:"api" yaml:"api"`
	Store     StoreConfig     `toml:"store" yaml:"store"`
	Promotion PromotionConfig `toml:"promotion" yaml:"promotion"`
	Dispatch  DispatchConfig  `toml:"dispatch" yaml:"dispatch"`
	Log       LogConfig       `toml:"log" yaml:"log"`
	Tiers     []TierConfig    `toml:"tiers" yaml:"tiers"`
}

// DiscordConfig is the chat connection.
type DiscordConfig struct {
	Token         string  `toml:"token" yaml:"token"`
	GuildID       string  `toml:"guild_id" yaml:"guild_id"`
	StatusCommand string  `toml:"status_command" yaml:"status_command"`
	APIBase       string  `toml:"api_base" yaml:"api_base"`
	SearchRate    float64 `toml:"search_rate" yaml:"search_rate"` // lookups per second
	SearchBurst   int     `toml:"search_burst" yaml:"search_burst"`
}

// APIConfig is the liveness/status HTTP server.
type APIConfig struct {
	Host string `toml:"host" yaml:"host"`
	Port int    `toml:"port" yaml:"port"`
}

// StoreConfig selects the progress backend.
type StoreConfig struct {
	Backend       string `toml:"backend" yaml:"backend"` // "sqlite" or "redis"
	Path          string `toml:"path" yaml:"path"`    // sqlite directory; empty means the tierbot home
	RedisURL      string `toml:"redis_url" yaml:"redis_url"`
	FlushInterval string `toml:"flush_interval" yaml:"flush_interval"`
}

// PromotionConfig controls how tier increases are applied.
type PromotionConfig struct {
	Mode     string `toml:"mode" yaml:"mode"` // "confirm" or "auto"
	OfferTTL string `toml:"offer_ttl" yaml:"offer_ttl"`
}

// DispatchConfig bounds concurrent activity handling.
type DispatchConfig struct {
	MaxConcurrent int    `toml:"max_concurrent" yaml:"max_concurrent"`
	Timeout       string `toml:"timeout" yaml:"timeout"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"` // "text" or "json"; serve defaults to json
}

// TierConfig is one rung of the ladder with its role.
type TierConfig struct {
	Name      string `toml:"name" yaml:"name"`
	Threshold int64  `toml:"threshold" yaml:"threshold"`
	RoleID    string `toml:"role_id" yaml:"role_id"`
}

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// DefaultConfig returns the stock configuration: the VIP ladder of the
// community the bot was first written for.
func DefaultConfig() Config {
	return Config{
		Discord: DiscordConfig{
			StatusCommand: "!vip",
			APIBase:       "https://discord.com/api/v9",
			SearchRate:    1,
			SearchBurst:   2,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 3000,
		},
		Store: StoreConfig{
			Backend:       BackendSQLite,
			FlushInterval: "30s",
		},
		Promotion: PromotionConfig{
			Mode:     string(ladder.ModeConfirm),
			OfferTTL: "15m",
		},
		Dispatch: DispatchConfig{
			MaxConcurrent: 16,
			Timeout:       "30s",
		},
		Log: LogConfig{
			Level: "info",
		},
		Tiers: []TierConfig{
			{"VIP1", 500, "651371929915097104"},
			{"VIP2", 1000, "947879607061839872"},
			{"VIP2.5", 1700, "1310963415136862289"},
			{"VIP3", 2500, "1062277593925169232"},
			{"VIP3.5", 3700, "1310963759539556435"},
			{"VIP4", 5000, "948562538965114880"},
			{"VIP4.5", 6300, "1310963883007017091"},
			{"VIP5", 7500, "1074642101939212378"},
			{"VIP5.5", 8700, "1310964505337004063"},
			{"VIP6", 10000, "947878777659203646"},
			{"VIP7", 15000, "1066336299209994240"},
			{"VIP8", 20000, "950330398653685770"},
			{"VIP9", 25000, "1057570022148554772"},
			{"VIP10", 30000, "1027168795518849034"},
			{"VIP11", 35000, "1400298348568772781"},
			{"VIP12", 40000, "1400302120871133235"},
		},
	}
}

// ─── Paths ──────────────────────────────────────────────────────────────────

// Home returns the tierbot home directory: $TIERBOT_HOME or ~/.tierbot.
func Home() string {
	if h := os.Getenv("TIERBOT_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tierbot"
	}
	return filepath.Join(home, ".tierbot")
}

// DefaultPath returns the config file location inside Home.
func DefaultPath() string {
	return filepath.Join(Home(), "config.toml")
}

// ─── Loading ────────────────────────────────────────────────────────────────

// Load reads path over DefaultConfig, applies environment overrides and
// validates the result. A missing file is not an error. An empty path means
// DefaultPath. A [[tiers]] list in the file replaces the default ladder.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		file := cfg
		file.Tiers = nil
		md, err := toml.DecodeFile(path, &file)
		if err != nil {
			return Config{}, fmt.Errorf("%w: parse %s: %v", domain.ErrConfiguration, path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("%w: unknown key %q in %s", domain.ErrConfiguration, undecoded[0].String(), path)
		}
		if len(file.Tiers) == 0 {
			file.Tiers = cfg.Tiers
		}
		cfg = file
	} else if !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("%w: stat %s: %v", domain.ErrConfiguration, path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("DISCORD_TOKEN"); v != "" {
		c.Discord.Token = v
	}
	if v := os.Getenv("GUILD_ID"); v != "" {
		c.Discord.GuildID = v
	}
	if v := os.Getenv("TIERBOT_REDIS_URL"); v != "" {
		c.Store.RedisURL = v
		c.Store.Backend = BackendRedis
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: PORT=%q is not a number", domain.ErrConfiguration, v)
		}
		c.API.Port = port
	}
	return nil
}

// Validate checks everything that can be checked without a guild connection.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{domain.ErrConfiguration}, args...)...))
	}

	if c.API.Port < 0 || c.API.Port > 65535 {
		bad("api.port %d out of range", c.API.Port)
	}
	switch c.Store.Backend {
	case BackendSQLite:
	case BackendRedis:
		if c.Store.RedisURL == "" {
			bad("store.redis_url required for the redis backend")
		}
	default:
		bad("unknown store.backend %q", c.Store.Backend)
	}
	if _, err := ladder.ParseMode(c.Promotion.Mode); err != nil {
		errs = append(errs, err)
	}
	for key, v := range map[string]string{
		"store.flush_interval": c.Store.FlushInterval,
		"promotion.offer_ttl":  c.Promotion.OfferTTL,
		"dispatch.timeout":     c.Dispatch.Timeout,
	} {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err != nil || d <= 0 {
			bad("%s %q is not a positive duration", key, v)
		}
	}

	table, err := c.TierTable()
	if err != nil {
		errs = append(errs, err)
	} else if _, err := roles.NewBinding(table, c.Bindings()); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ─── Derived Values ─────────────────────────────────────────────────────────

// TierTable builds the validated ladder.
func (c Config) TierTable() (*domain.TierTable, error) {
	defs := make([]domain.TierDefinition, len(c.Tiers))
	for i, t := range c.Tiers {
		defs[i] = domain.TierDefinition{Name: t.Name, Threshold: t.Threshold}
	}
	return domain.NewTierTable(defs)
}

// Bindings returns the tier → role pairs.
func (c Config) Bindings() []roles.TierGroupBinding {
	out := make([]roles.TierGroupBinding, 0, len(c.Tiers))
	for _, t := range c.Tiers {
		out = append(out, roles.TierGroupBinding{TierName: t.Name, GroupID: t.RoleID})
	}
	return out
}

// Mode returns the promotion mode.
func (c Config) Mode() ladder.Mode {
	m, err := ladder.ParseMode(c.Promotion.Mode)
	if err != nil {
		return ladder.ModeConfirm
	}
	return m
}

// FlushInterval returns how often progress is flushed.
func (c Config) FlushInterval() time.Duration {
	return parseDuration(c.Store.FlushInterval, 30*time.Second)
}

// OfferTTL returns how long a promotion prompt stays confirmable.
func (c Config) OfferTTL() time.Duration {
	return parseDuration(c.Promotion.OfferTTL, 15*time.Minute)
}

// DispatchTimeout returns the per-event handling timeout.
func (c Config) DispatchTimeout() time.Duration {
	return parseDuration(c.Dispatch.Timeout, 30*time.Second)
}

// StorePath returns the sqlite directory.
func (c Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return Home()
}

// Addr returns the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Discord.Token != "" {
		c.Discord.Token = "********"
	}
	c.Tiers = append([]TierConfig(nil), c.Tiers...)
	return c
}

// Encode writes c as TOML.
func (c Config) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
