package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()

	d := Defaults()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("concurrency", d.Concurrency, "")
	fs.Int("attempts", d.Attempts, "")
	fs.Duration("delay", d.Delay, "")
	fs.Bool("omit-result", d.OmitResult, "")
	fs.String("format", d.Format, "")
	fs.String("history", d.History, "")
	require.NoError(t, fs.Parse(args))
	return fs
}

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), *cfg)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := writeConfig(t, "settle.yaml", `
concurrency: 8
attempts: 2
delay: 250ms
omit_result: true
format: YAML
history: sqlite:/tmp/settle.db
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 2, cfg.Attempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Delay)
	assert.True(t, cfg.OmitResult)
	assert.Equal(t, "yaml", cfg.Format)
	assert.Equal(t, "sqlite:/tmp/settle.db", cfg.History)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "settle.json", `{"concurrency": 8, "attempts": 1}`)
	t.Setenv("SETTLE_CONCURRENCY", "3")
	t.Setenv("SETTLE_DELAY", "2s")
	t.Setenv("SETTLE_TIMEOUT", "1m")

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.Timeout)

	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, 1, cfg.Attempts)
	assert.Equal(t, 2*time.Second, cfg.Delay)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("SETTLE_CONCURRENCY", "3")
	t.Setenv("SETTLE_ATTEMPTS", "5")

	cfg, err := Load("", testFlags(t, "--concurrency=6", "--omit-result"))
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Concurrency)
	assert.Equal(t, 5, cfg.Attempts, "unset flags do not mask the environment")
	assert.True(t, cfg.OmitResult)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	cases := map[string][]string{
		"concurrency": {"--concurrency=0"},
		"attempts":    {"--attempts=-1"},
		"format":      {"--format=xml"},
		"history":     {"--history=postgres://db"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load("", testFlags(t, args...))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid config")
		})
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
}

func TestConfig_Options(t *testing.T) {
	cfg := Defaults()
	cfg.Concurrency = 2
	cfg.Attempts = 3
	cfg.Delay = time.Second

	opts := cfg.Options()
	require.NoError(t, opts.Validate())
	assert.Equal(t, 2, opts.Concurrency)
	assert.Equal(t, 3, opts.OnFail.Attempts)
	assert.Equal(t, time.Second, opts.OnFail.Delay)
}

func TestConfig_SlogLevel(t *testing.T) {
	levels := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for name, want := range levels {
		cfg := Config{LogLevel: name}
		assert.Equal(t, want, cfg.SlogLevel(), name)
	}
}

func TestParseHistory(t *testing.T) {
	tests := []struct {
		in     string
		kind   string
		target string
		ok     bool
	}{
		{"", HistoryNone, "", true},
		{"memory", HistoryMemory, "", true},
		{"sqlite:runs.db", HistorySQLite, "runs.db", true},
		{"redis://localhost:6379/2", HistoryRedis, "redis://localhost:6379/2", true},
		{"sqlite:", "", "", false},
		{"mongo://x", "", "", false},
	}
	for _, tt := range tests {
		kind, target, err := ParseHistory(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.kind, kind, tt.in)
		assert.Equal(t, tt.target, target, tt.in)
	}
}
