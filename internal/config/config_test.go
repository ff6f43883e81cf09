package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigLoader_Defaults(t *testing.T) {
	config, err := NewConfigLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, ".csv", config.Input.AlignmentExt)
	assert.Equal(t, ".fa", config.Input.SequenceExt)
	assert.Equal(t, ",", config.Input.AlignmentDelimiter)
	assert.Equal(t, 90.0, config.Reduction.HighIdentityThreshold)
	assert.Equal(t, "sqlite", config.Store.Driver)
	assert.Equal(t, "<RUN_DATE>", config.RunDate.Marker)
	assert.Equal(t, int64(3000000000), config.SeqStats.GenomeSize)
	assert.ElementsMatch(t, []string{".partial", "_non_hitters.fa"}, config.Input.IgnoreSuffixes)
}

func TestConfigLoader_Load(t *testing.T) {
	tmpfile := filepath.Join(t.TempDir(), "blastsum.yaml")
	configContent := `
input:
  dir: "/data/traces"
  batch_pattern: "trc_(\\d+)"
  alignment_delimiter: "\t"
reduction:
  high_identity_threshold: 95.5
store:
  driver: "postgres"
  dsn: "host=db user=blast dbname=traces sslmode=disable"
  keep_intermediates: true
logging:
  level: "debug"
  format: "json"
`
	require.NoError(t, os.WriteFile(tmpfile, []byte(configContent), 0644))

	loader := NewConfigLoader()
	loader.SetConfigFile(tmpfile)

	config, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "/data/traces", config.Input.Dir)
	assert.Equal(t, `trc_(\d+)`, config.Input.BatchPattern)
	assert.Equal(t, "\t", config.Input.AlignmentDelimiter)
	assert.Equal(t, 95.5, config.Reduction.HighIdentityThreshold)
	assert.Equal(t, "postgres", config.Store.Driver)
	assert.True(t, config.Store.KeepIntermediates)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "json", config.Logging.Format)
}

func TestConfigLoader_EnvironmentOverride(t *testing.T) {
	tmpfile := filepath.Join(t.TempDir(), "blastsum.yaml")
	configContent := `
output:
  dir: "/tmp/out"
reduction:
  high_identity_threshold: 80
`
	require.NoError(t, os.WriteFile(tmpfile, []byte(configContent), 0644))

	t.Setenv("BLASTSUM_OUTPUT_DIR", "/srv/reports")
	t.Setenv("BLASTSUM_STORE_PATH", "override.sqlite")

	loader := NewConfigLoader()
	loader.SetConfigFile(tmpfile)

	config, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "/srv/reports", config.Output.Dir)
	assert.Equal(t, "override.sqlite", config.Store.Path)
	assert.Equal(t, 80.0, config.Reduction.HighIdentityThreshold) // from YAML file
}

func TestConfigLoader_TabEscape(t *testing.T) {
	loader := NewConfigLoader()
	loader.Set("input.alignment_delimiter", `\t`)

	config, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "\t", config.Input.AlignmentDelimiter)
}

func TestConfigValidation(t *testing.T) {
	validConfig := &AppConfig{
		Input:     InputConfig{BatchPattern: `(\d{3})`, AlignmentDelimiter: ","},
		Reduction: ReductionConfig{HighIdentityThreshold: 90},
		Store:     StoreConfig{Driver: "sqlite", Path: "corpus.sqlite"},
		SeqStats:  SeqStatsConfig{GenomeSize: 3000000000},
		Capacity:  CapacityConfig{MaxUsedPercent: 95},
	}
	assert.NoError(t, validateConfig(validConfig))

	badDriver := *validConfig
	badDriver.Store.Driver = "mysql"
	err := validateConfig(&badDriver)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")

	missingDSN := *validConfig
	missingDSN.Store.Driver = "postgres"
	err = validateConfig(&missingDSN)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.dsn cannot be empty")

	badThreshold := *validConfig
	badThreshold.Reduction.HighIdentityThreshold = 120
	err = validateConfig(&badThreshold)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "high_identity_threshold")

	badDelimiter := *validConfig
	badDelimiter.Input.AlignmentDelimiter = ";;"
	err = validateConfig(&badDelimiter)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "single character")
}
