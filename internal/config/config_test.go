package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"orderflow-signals/internal/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(body), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return dir
}

const minimalConfig = `
[[instruments]]
symbol = "NIFTY 50"
token = 256265
name = "Nifty 50 Index"
`

func TestLoadDefaults(t *testing.T) {
	dir := writeConfig(t, minimalConfig)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Session.OpenMinute != 555 || cfg.Session.CloseMinute != 930 {
		t.Errorf("session minutes = %d/%d, want 555/930",
			cfg.Session.OpenMinute, cfg.Session.CloseMinute)
	}
	if cfg.Broadcast.Interval != 5*time.Second {
		t.Errorf("broadcast interval = %v, want 5s", cfg.Broadcast.Interval)
	}
	if cfg.Supervisor.MaxRestarts != 3 {
		t.Errorf("max_restarts = %d, want 3", cfg.Supervisor.MaxRestarts)
	}
	if cfg.Engine.ModerateScale != 8.0 {
		t.Errorf("moderate_scale = %v, want 8.0", cfg.Engine.ModerateScale)
	}

	instruments := cfg.InstrumentList()
	want := models.Instrument{Symbol: "NIFTY 50", Token: 256265, Name: "Nifty 50 Index"}
	if len(instruments) != 1 || instruments[0] != want {
		t.Errorf("instruments = %+v", instruments)
	}
}

func TestLoadOverrides(t *testing.T) {
	dir := writeConfig(t, minimalConfig+`
[broadcast]
interval = "2s"
fetch_timeout = "500ms"
subscriber_buffer = 4

[engine]
trend_scale = 1.5
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Broadcast.Interval != 2*time.Second {
		t.Errorf("interval = %v, want 2s", cfg.Broadcast.Interval)
	}
	if cfg.Broadcast.FetchTimeout != 500*time.Millisecond {
		t.Errorf("fetch_timeout = %v, want 500ms", cfg.Broadcast.FetchTimeout)
	}
	if cfg.Engine.TrendScale != 1.5 {
		t.Errorf("trend_scale = %v, want 1.5", cfg.Engine.TrendScale)
	}
	// Untouched sections keep their defaults.
	if cfg.Engine.ModerateCap != 60.0 {
		t.Errorf("moderate_cap = %v, want 60.0", cfg.Engine.ModerateCap)
	}
}

func TestEnvOverrides(t *testing.T) {
	dir := writeConfig(t, minimalConfig)

	t.Setenv("KITE_API_KEY", "key-from-env")
	t.Setenv("KITE_ACCESS_TOKEN", "token-from-env")
	t.Setenv("SIGNALD_LOG_LEVEL", "debug")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Kite.APIKey != "key-from-env" || cfg.Kite.AccessToken != "token-from-env" {
		t.Errorf("kite credentials not taken from environment")
	}
	if !cfg.HasKiteCredentials() {
		t.Error("HasKiteCredentials = false with both env vars set")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %s, want debug", cfg.Logging.Level)
	}
}

func TestLoadCreatesTemplate(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(dir)
	if err == nil {
		t.Fatal("Load on empty dir did not error")
	}
	if _, statErr := os.Stat(filepath.Join(dir, "config.toml")); statErr != nil {
		t.Errorf("template not created: %v", statErr)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  string
		wantErr string
	}{
		{
			"no instruments",
			`[session]`,
			"at least one instrument",
		},
		{
			"duplicate symbol",
			minimalConfig + minimalConfig,
			"duplicate instrument",
		},
		{
			"inverted session",
			minimalConfig + "\n[session]\nopen_minute = 930\nclose_minute = 555\n",
			"pre_open < open < close",
		},
		{
			"empty weekdays",
			minimalConfig + "\n[session]\nweekdays = []\n",
			"trading weekday",
		},
		{
			"fetch timeout too long",
			minimalConfig + "\n[broadcast]\ninterval = \"1s\"\nfetch_timeout = \"2s\"\n",
			"fetch_timeout",
		},
		{
			"zero restarts",
			minimalConfig + "\n[supervisor]\nmax_restarts = 0\n",
			"max_restarts",
		},
		{
			"bad moderate cap",
			minimalConfig + "\n[engine]\nmoderate_cap = 150.0\n",
			"moderate_cap",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeConfig(t, tt.mutate)
			_, err := Load(dir)
			if err == nil {
				t.Fatal("Load accepted invalid config")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestSessionBoundaries(t *testing.T) {
	dir := writeConfig(t, minimalConfig)
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	b := cfg.SessionBoundaries()
	if b.PreOpenStart != 540 || b.Open != 555 || b.Close != 930 {
		t.Errorf("boundaries = %d/%d/%d", b.PreOpenStart, b.Open, b.Close)
	}
	if !b.Weekdays[time.Monday] || !b.Weekdays[time.Friday] {
		t.Error("weekdays missing Monday or Friday")
	}
	if b.Weekdays[time.Saturday] || b.Weekdays[time.Sunday] {
		t.Error("weekend marked as trading day")
	}
}
