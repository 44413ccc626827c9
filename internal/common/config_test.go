package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/humus/internal/models"
)

func validProduct() ProductConfig {
	return ProductConfig{
		Name:        "soil_moisture",
		Granularity: "month",
		AssetFolder: "projects/sm/assets/SM",
		NameFormat:  "SM{year}Valparaiso_GCOM_mes{month}",
		NamePattern: `SM(\d{4})Valparaiso_GCOM_mes(\d+)`,
		EpochYear:   2015,
		Lag:         2,
		Region:      "valparaiso",
	}
}

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, "development", config.Environment)
	assert.Equal(t, 5, config.Scheduler.BatchSize)
	assert.Equal(t, "sm_tasks.json", config.Scheduler.LedgerPath)
	assert.Equal(t, 2, config.Collector.Lag)
	assert.Equal(t, "Humedad de suelo", config.Collector.FolderName)
	assert.Equal(t, 1000, config.Export.Scale)
	assert.Equal(t, "EPSG:4326", config.Export.CRS)
	assert.Equal(t, 1e13, config.Export.MaxPixels)
	assert.Equal(t, 30*time.Second, config.Catalog.TimeoutDuration())
	assert.Equal(t, 2*time.Minute, config.Predictor.TimeoutDuration())
	assert.Equal(t, 60*time.Second, config.Export.TimeoutDuration())
}

func TestLoadShippedConfig(t *testing.T) {
	// The sample config at the repo root must stay loadable; both
	// binaries auto-discover it in the working directory.
	config, err := LoadFromFile(filepath.Join("..", "..", "humus.toml"))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, config.Catalog.TimeoutDuration())
	assert.Equal(t, 2*time.Minute, config.Predictor.TimeoutDuration())
	assert.Equal(t, 60*time.Second, config.Export.TimeoutDuration())
	assert.Equal(t, 5, config.Scheduler.BatchSize)
	require.Len(t, config.Products, 2)
	assert.Equal(t, "soil_moisture", config.Products[0].Name)
	assert.Equal(t, "lst_viirs_day", config.Products[1].Name)
}

func TestTimeoutDuration(t *testing.T) {
	assert.Equal(t, 10*time.Second, CatalogConfig{Timeout: "10s"}.TimeoutDuration())
	assert.Equal(t, 30*time.Second, CatalogConfig{}.TimeoutDuration(), "empty falls back to the default")
	assert.Equal(t, 90*time.Second, ExportConfig{Timeout: "1m30s"}.TimeoutDuration())
}

func TestLoadFromFile(t *testing.T) {
	content := `
environment = "production"

[catalog]
base_url = "https://catalog.example.com"
rate_limit = 3
timeout = "10s"

[scheduler]
batch_size = 10
ledger_path = "/var/lib/humus/sm_tasks.json"

[[products]]
name = "soil_moisture"
granularity = "month"
asset_folder = "projects/sm/assets/SM"
name_format = "SM{year}Valparaiso_GCOM_mes{month}"
name_pattern = 'SM(\d{4})Valparaiso_GCOM_mes(\d+)'
epoch_year = 2015
lag = 2
region = "valparaiso"
`
	path := filepath.Join(t.TempDir(), "humus.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "production", config.Environment)
	assert.True(t, config.IsProduction())
	assert.Equal(t, "https://catalog.example.com", config.Catalog.BaseURL)
	assert.Equal(t, 3, config.Catalog.RateLimit)
	assert.Equal(t, 10*time.Second, config.Catalog.TimeoutDuration())
	assert.Equal(t, 10, config.Scheduler.BatchSize)
	assert.Equal(t, "/var/lib/humus/sm_tasks.json", config.Scheduler.LedgerPath)

	require.Len(t, config.Products, 1)
	p := config.Products[0]
	assert.Equal(t, "soil_moisture", p.Name)
	assert.Equal(t, models.GranularityMonth, p.GranularityType())
	assert.Equal(t, 2015, p.EpochYear)

	// File values merge over defaults, untouched sections keep them.
	assert.Equal(t, 1000, config.Export.Scale)
}

func TestLoadFromFilesLaterOverrides(t *testing.T) {
	dir := t.TempDir()

	base := filepath.Join(dir, "base.toml")
	require.NoError(t, os.WriteFile(base, []byte("[scheduler]\nbatch_size = 3\n"), 0644))
	local := filepath.Join(dir, "local.toml")
	require.NoError(t, os.WriteFile(local, []byte("[scheduler]\nbatch_size = 7\n"), 0644))

	config, err := LoadFromFiles(base, local)
	require.NoError(t, err)
	assert.Equal(t, 7, config.Scheduler.BatchSize)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HUMUS_ENV", "production")
	t.Setenv("HUMUS_CATALOG_TOKEN", "env-token")
	t.Setenv("HUMUS_CATALOG_TIMEOUT", "45s")
	t.Setenv("HUMUS_SCHEDULER_BATCH_SIZE", "12")
	t.Setenv("HUMUS_COLLECTOR_LAG", "4")
	t.Setenv("HUMUS_DRIVE_REFRESH_TOKEN", "refresh-from-env")

	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, "production", config.Environment)
	assert.Equal(t, "env-token", config.Catalog.Token)
	assert.Equal(t, 45*time.Second, config.Catalog.TimeoutDuration())
	assert.Equal(t, 12, config.Scheduler.BatchSize)
	assert.Equal(t, 4, config.Collector.Lag)
	assert.Equal(t, "refresh-from-env", config.Drive.RefreshToken)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "batch size zero",
			mutate:  func(c *Config) { c.Scheduler.BatchSize = 0 },
			wantErr: "batch_size",
		},
		{
			name:    "bad cron schedule",
			mutate:  func(c *Config) { c.Scheduler.Schedule = "not a cron" },
			wantErr: "schedule",
		},
		{
			name:    "negative collector lag",
			mutate:  func(c *Config) { c.Collector.Lag = -1 },
			wantErr: "lag",
		},
		{
			name:    "unparseable timeout",
			mutate:  func(c *Config) { c.Predictor.Timeout = "ninety seconds" },
			wantErr: "predictor timeout",
		},
		{
			name: "product without name",
			mutate: func(c *Config) {
				p := validProduct()
				p.Name = ""
				c.Products = []ProductConfig{p}
			},
			wantErr: "name is required",
		},
		{
			name: "duplicate product names",
			mutate: func(c *Config) {
				c.Products = []ProductConfig{validProduct(), validProduct()}
			},
			wantErr: "duplicate",
		},
		{
			name: "bad granularity",
			mutate: func(c *Config) {
				p := validProduct()
				p.Granularity = "weekly"
				c.Products = []ProductConfig{p}
			},
			wantErr: "granularity",
		},
		{
			name: "missing epoch year",
			mutate: func(c *Config) {
				p := validProduct()
				p.EpochYear = 0
				c.Products = []ProductConfig{p}
			},
			wantErr: "epoch_year",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewDefaultConfig()
			tt.mutate(config)

			err := config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, ValidateSchedule("0 6 * * *"))
	assert.NoError(t, ValidateSchedule("*/15 * * * *"))
	assert.Error(t, ValidateSchedule("* * * * *"), "every minute is below the minimum interval")
	assert.Error(t, ValidateSchedule("*/2 * * * *"))
	assert.Error(t, ValidateSchedule("bogus"))
}

func TestProductAssetNaming(t *testing.T) {
	p := validProduct()

	assert.Equal(t, "SM2019Valparaiso_GCOM_mes7", p.AssetName(models.Period{Year: 2019, Month: 7}))
	assert.Equal(t, "projects/sm/assets/SM/SM2019Valparaiso_GCOM_mes7", p.AssetID(models.Period{Year: 2019, Month: 7}))

	yearly := ProductConfig{AssetFolder: "projects/sm/assets/LST/", NameFormat: "LST_VIIRS_Day_{year}"}
	assert.Equal(t, "projects/sm/assets/LST/LST_VIIRS_Day_2021", yearly.AssetID(models.Period{Year: 2021}))
}
