package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
app:
  name: for-monday
  environment: test
monday:
  client_id: client
  client_secret: secret
  signing_secret: signing
database:
  path: data/transfers.db
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.API.HTTP.Port)
	assert.Equal(t, "https://api.monday.com/v2", cfg.Monday.APIURL)
	assert.Equal(t, "720h", cfg.Redis.TokenTTL)
	assert.NotEmpty(t, cfg.Pipeline.ScratchDir)

	// Every scenario gets a constants block even when the file names none.
	require.Len(t, cfg.Pipeline.Scenarios, 4)
	c2c := cfg.Scenario(ScenarioColumnToColumn)
	assert.Equal(t, 3, c2c.Concurrency)
	assert.Equal(t, 20, c2c.WindowLimit)
	assert.Equal(t, 50*time.Minute, c2c.DrainCeiling.Std())
	assert.Equal(t, 8, c2c.Breaker.FailureThreshold)

	// item_to_item and update_to_files carry their own defaults.
	assert.Equal(t, 4, cfg.Scenario(ScenarioItemToItem).Concurrency)
	assert.Equal(t, 25, cfg.Scenario(ScenarioItemToItem).WindowLimit)
	assert.Equal(t, 5, cfg.Scenario(ScenarioUpdateToFiles).Concurrency)
	assert.Equal(t, 30, cfg.Scenario(ScenarioUpdateToFiles).WindowLimit)
}

func TestLoadMergesPartialScenario(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
pipeline:
  scenarios:
    column_to_column:
      concurrency: 9
      inter_task_delay: 5s
`))
	require.NoError(t, err)

	sc := cfg.Scenario(ScenarioColumnToColumn)
	assert.Equal(t, 9, sc.Concurrency)
	assert.Equal(t, 5*time.Second, sc.InterTaskDelay.Std())
	// Unspecified fields fall back to defaults.
	assert.Equal(t, 20, sc.WindowLimit)
	assert.Equal(t, 10, sc.MaxTaskRetries)
	assert.Equal(t, 5, sc.Retry.MaxRetries)
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TEST_MONDAY_SECRET", "from-env")

	cfg, err := Load(writeConfig(t, `
monday:
  client_id: client
  client_secret: ${TEST_MONDAY_SECRET}
  signing_secret: signing
database:
  path: data/transfers.db
`))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Monday.ClientSecret)
}

func TestLoadDurationForms(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
pipeline:
  scenarios:
    board_to_board:
      window_size: 90
      drain_ceiling: 30m
`))
	require.NoError(t, err)

	sc := cfg.Scenario(ScenarioBoardToBoard)
	assert.Equal(t, 90*time.Second, sc.WindowSize.Std(), "bare integers read as seconds")
	assert.Equal(t, 30*time.Minute, sc.DrainCeiling.Std())
}

func TestValidateFailures(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing client credentials", `
monday:
  signing_secret: signing
database:
  path: data/transfers.db
`},
		{"missing signing secret", `
monday:
  client_id: client
  client_secret: secret
database:
  path: data/transfers.db
`},
		{"missing database path", `
monday:
  client_id: client
  client_secret: secret
  signing_secret: signing
`},
		{"bad concurrency", minimalConfig + `
pipeline:
  scenarios:
    item_to_item:
      concurrency: -1
`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestScenarioFallback(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	unknown := cfg.Scenario("no_such_scenario")
	assert.Equal(t, cfg.Scenario(ScenarioColumnToColumn), unknown)
}

func TestApplyScenarioOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	overrides := filepath.Join(t.TempDir(), "scenarios.yaml")
	require.NoError(t, os.WriteFile(overrides, []byte(`
scenarios:
  item_to_item:
    concurrency: 8
    window_limit: 40
    inter_task_delay: 750ms
  no_such_scenario:
    concurrency: 99
`), 0o644))

	require.NoError(t, cfg.ApplyScenarioOverrides(overrides))

	sc := cfg.Scenario(ScenarioItemToItem)
	assert.Equal(t, 8, sc.Concurrency)
	assert.Equal(t, 40, sc.WindowLimit)
	assert.Equal(t, 750*time.Millisecond, sc.InterTaskDelay.Std())
	// Untouched fields survive the overlay.
	assert.Equal(t, 10, sc.MaxTaskRetries)

	_, ok := cfg.Pipeline.Scenarios["no_such_scenario"]
	assert.False(t, ok, "unknown names are ignored")
}

func TestApplyScenarioOverridesMissingFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	require.NoError(t, cfg.ApplyScenarioOverrides(filepath.Join(t.TempDir(), "absent.yaml")))
}

func TestApplyScenarioOverridesBadDuration(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	overrides := filepath.Join(t.TempDir(), "scenarios.yaml")
	require.NoError(t, os.WriteFile(overrides, []byte(`
scenarios:
  item_to_item:
    window_size: soon
`), 0o644))
	assert.Error(t, cfg.ApplyScenarioOverrides(overrides))
}
