package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vip-ladder/tierbot/internal/app/ladder"
	"github.com/vip-ladder/tierbot/internal/domain"
)

// clearEnv isolates a test from the caller's environment.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"DISCORD_TOKEN", "GUILD_ID", "PORT", "TIERBOT_REDIS_URL"} {
		t.Setenv(k, "")
	}
	t.Setenv("TIERBOT_HOME", t.TempDir())
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.API.Port != 3000 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 3000)
	}
	if cfg.Store.Backend != BackendSQLite {
		t.Errorf("Store.Backend = %q, want %q", cfg.Store.Backend, BackendSQLite)
	}
	if cfg.Mode() != ladder.ModeConfirm {
		t.Errorf("Mode() = %q, want %q", cfg.Mode(), ladder.ModeConfirm)
	}
	if cfg.OfferTTL() != 15*time.Minute {
		t.Errorf("OfferTTL() = %v, want 15m", cfg.OfferTTL())
	}
	if len(cfg.Tiers) != 16 {
		t.Fatalf("len(Tiers) = %d, want 16", len(cfg.Tiers))
	}
	if cfg.Tiers[0].Name != "VIP1" || cfg.Tiers[0].Threshold != 500 {
		t.Errorf("Tiers[0] = %+v, want VIP1@500", cfg.Tiers[0])
	}
	if last := cfg.Tiers[15]; last.Name != "VIP12" || last.Threshold != 40000 {
		t.Errorf("Tiers[15] = %+v, want VIP12@40000", last)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Addr() != "0.0.0.0:3000" {
		t.Errorf("Addr() = %q", cfg.Addr())
	}
	if cfg.StorePath() != os.Getenv("TIERBOT_HOME") {
		t.Errorf("StorePath() = %q, want TIERBOT_HOME", cfg.StorePath())
	}
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[discord]
guild_id = "42"
status_command = "!rank"

[promotion]
mode = "auto"
offer_ttl = "2m"

[[tiers]]
name = "Bronze"
threshold = 0
role_id = "1"

[[tiers]]
name = "Silver"
threshold = 100
role_id = "2"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Discord.GuildID != "42" || cfg.Discord.StatusCommand != "!rank" {
		t.Errorf("Discord = %+v", cfg.Discord)
	}
	if cfg.Discord.APIBase == "" {
		t.Error("unset keys should keep defaults")
	}
	if cfg.Mode() != ladder.ModeAuto {
		t.Errorf("Mode() = %q, want auto", cfg.Mode())
	}
	if cfg.OfferTTL() != 2*time.Minute {
		t.Errorf("OfferTTL() = %v, want 2m", cfg.OfferTTL())
	}
	if len(cfg.Tiers) != 2 {
		t.Fatalf("file tiers should replace the default ladder, got %d", len(cfg.Tiers))
	}

	table, err := cfg.TierTable()
	if err != nil {
		t.Fatalf("TierTable() error: %v", err)
	}
	if got := table.Resolve(150).Name; got != "Silver" {
		t.Errorf("Resolve(150) = %q, want Silver", got)
	}
	if b := cfg.Bindings(); b[1].GroupID != "2" {
		t.Errorf("Bindings()[1] = %+v", b[1])
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DISCORD_TOKEN", "tok")
	t.Setenv("GUILD_ID", "99")
	t.Setenv("PORT", "8080")
	t.Setenv("TIERBOT_REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Discord.Token != "tok" || cfg.Discord.GuildID != "99" {
		t.Errorf("Discord = %+v", cfg.Discord)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("API.Port = %d, want 8080", cfg.API.Port)
	}
	if cfg.Store.Backend != BackendRedis {
		t.Errorf("Store.Backend = %q, want redis", cfg.Store.Backend)
	}

	if red := cfg.Redacted(); red.Discord.Token == "tok" {
		t.Error("Redacted() leaked the token")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
	}{
		{"syntax", `[api`, nil},
		{"unknown key", "[api]\nhots = \"x\"\n", nil},
		{"bad mode", "[promotion]\nmode = \"sometimes\"\n", nil},
		{"bad backend", "[store]\nbackend = \"mongo\"\n", nil},
		{"redis without url", "[store]\nbackend = \"redis\"\n", nil},
		{"bad duration", "[store]\nflush_interval = \"soon\"\n", nil},
		{"bad ladder", "[[tiers]]\nname = \"A\"\nthreshold = 10\nrole_id = \"1\"\n[[tiers]]\nname = \"B\"\nthreshold = 5\nrole_id = \"2\"\n", nil},
		{"shared role", "[[tiers]]\nname = \"A\"\nthreshold = 0\nrole_id = \"1\"\n[[tiers]]\nname = \"B\"\nthreshold = 5\nrole_id = \"1\"\n", nil},
		{"bad port env", "", map[string]string{"PORT": "http"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeConfig(t, tt.body))
			if !errors.Is(err, domain.ErrConfiguration) && !errors.Is(err, domain.ErrInvalidTierTable) {
				t.Errorf("Load() error = %v, want configuration error", err)
			}
		})
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	clearEnv(t)
	data, err := DefaultConfig().Encode()
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	if !strings.Contains(string(data), `name = "VIP12"`) {
		t.Errorf("encoded config missing ladder:\n%s", data)
	}

	cfg, err := Load(writeConfig(t, string(data)))
	if err != nil {
		t.Fatalf("Load(encoded) error: %v", err)
	}
	if len(cfg.Tiers) != 16 {
		t.Errorf("len(Tiers) = %d, want 16", len(cfg.Tiers))
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"45s", 45 * time.Second},
		{"", time.Minute},
		{"garbage", time.Minute},
		{"-5s", time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseDuration(tt.input, time.Minute); got != tt.want {
				t.Errorf("parseDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
