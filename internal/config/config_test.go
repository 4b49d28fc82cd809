package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "254", cfg.USSD.CountryCode)
	assert.Equal(t, "*789#", cfg.USSD.ServiceCode)
	assert.Equal(t, 30, cfg.USSD.SMSTimeoutSecs)
	assert.Equal(t, 48, cfg.Confidence.WindowHours)
	assert.Equal(t, 30, cfg.Confidence.ReliabilityWindowDays)
	assert.InDelta(t, 0.7, cfg.Confidence.HighThreshold, 0.001)
	assert.InDelta(t, 0.4, cfg.Confidence.MediumThreshold, 0.001)
	assert.Equal(t, 60, cfg.Alerts.CooldownMins)
	assert.Equal(t, 5, cfg.Alerts.SummaryMaxLines)
	assert.Equal(t, "0 */15 * * * *", cfg.Alerts.CheckSchedule)
	assert.Equal(t, "sandbox", cfg.SMS.Username)
	assert.Equal(t, "SokoPrice", cfg.SMS.SenderID)
	assert.Empty(t, cfg.SMS.APIKey)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: soko.db
log:
  level: debug
  format: console
server:
  port: 9090
alerts:
  cooldown_mins: 30
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "soko.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Alerts.CooldownMins)
	// Defaults still apply for unset values
	assert.Equal(t, 48, cfg.Confidence.WindowHours)
}

func TestLoadFile_NamedPath(t *testing.T) {
	chdirTemp(t)
	path := filepath.Join(t.TempDir(), "sokoprice.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 7070\nussd:\n  country_code: \"255\"\n"), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "255", cfg.USSD.CountryCode)
}

func TestLoadFile_MissingNamedPath(t *testing.T) {
	chdirTemp(t)

	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("SOKOPRICE_STORE_DRIVER", "postgres")
	t.Setenv("SOKOPRICE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("SOKOPRICE_SERVER_PORT", "3000")
	t.Setenv("SOKOPRICE_SMS_API_KEY", "at-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "at-key", cfg.SMS.APIKey)
}

func TestLoad_LiveUsernameLeavesBaseURLUnset(t *testing.T) {
	chdirTemp(t)

	t.Setenv("SOKOPRICE_SMS_USERNAME", "sokoprice-live")
	t.Setenv("SOKOPRICE_SMS_API_KEY", "live-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sokoprice-live", cfg.SMS.Username)
	assert.Empty(t, cfg.SMS.BaseURL)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SOKOPRICE_STORE_DRIVER", "mongo")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestValidate_Thresholds(t *testing.T) {
	base := Config{
		Store:      StoreConfig{Driver: "sqlite"},
		USSD:       USSDConfig{CountryCode: "254"},
		Confidence: ConfidenceConfig{WindowHours: 48, HighThreshold: 0.7, MediumThreshold: 0.4},
	}
	require.NoError(t, base.Validate())

	inverted := base
	inverted.Confidence.HighThreshold = 0.3
	assert.Error(t, inverted.Validate())

	noWindow := base
	noWindow.Confidence.WindowHours = 0
	assert.Error(t, noWindow.Validate())
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerBadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "loud", Format: "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}

func TestAlertsLocation(t *testing.T) {
	loc, err := AlertsConfig{Timezone: "Africa/Nairobi"}.Location()
	require.NoError(t, err)
	assert.Equal(t, "Africa/Nairobi", loc.String())

	loc, err = AlertsConfig{}.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	_, err = AlertsConfig{Timezone: "Nowhere/Special"}.Location()
	assert.Error(t, err)
}
