// Package config loads pipeline configuration from file and environment
// and owns global logger initialization.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Inputs   InputsConfig   `yaml:"inputs" mapstructure:"inputs"`
	Features FeaturesConfig `yaml:"features" mapstructure:"features"`
	Validate ValidateConfig `yaml:"validate" mapstructure:"validate"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
	Ledger   LedgerConfig   `yaml:"ledger" mapstructure:"ledger"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// InputsConfig names the input tables handed over by the acquisition
// collaborator.
type InputsConfig struct {
	Primary string            `yaml:"primary" mapstructure:"primary"`
	Sources map[string]string `yaml:"sources" mapstructure:"sources"`
}

// FeaturesConfig configures the feature-engineering stage.
type FeaturesConfig struct {
	DateColumn      string   `yaml:"date_column" mapstructure:"date_column"`
	ValueCols       []string `yaml:"value_columns" mapstructure:"value_columns"`
	Lags            []int    `yaml:"lags" mapstructure:"lags"`
	Windows         []int    `yaml:"windows" mapstructure:"windows"`
	Holidays        []string `yaml:"holidays" mapstructure:"holidays"`
	Epoch           string   `yaml:"epoch" mapstructure:"epoch"`
	GroupCols       []string `yaml:"group_columns" mapstructure:"group_columns"`
	AggregateTarget string   `yaml:"aggregate_target" mapstructure:"aggregate_target"`
}

// ValidateConfig configures the validation stage thresholds.
type ValidateConfig struct {
	MissingThreshold float64  `yaml:"missing_threshold" mapstructure:"missing_threshold"`
	MinCategories    int      `yaml:"min_categories" mapstructure:"min_categories"`
	MaxCategories    int      `yaml:"max_categories" mapstructure:"max_categories"`
	DateColumns      []string `yaml:"date_columns" mapstructure:"date_columns"`
}

// OutputConfig names the output artifacts.
type OutputConfig struct {
	DatasetPath string `yaml:"dataset_path" mapstructure:"dataset_path"`
	ReportPath  string `yaml:"report_path" mapstructure:"report_path"`
}

// LedgerConfig configures the local run ledger.
type LedgerConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the report server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("EDSIGNAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("features.date_column", "visit_date")
	v.SetDefault("features.lags", []int{1, 3, 7, 14})
	v.SetDefault("features.windows", []int{3, 7, 14})
	v.SetDefault("features.holidays", []string{"2023-01-01", "2023-07-04", "2023-11-23", "2023-12-25"})
	v.SetDefault("features.epoch", "2020-01-01")
	v.SetDefault("validate.missing_threshold", 0.5)
	v.SetDefault("validate.min_categories", 2)
	v.SetDefault("validate.max_categories", 100)
	v.SetDefault("validate.date_columns", []string{"visit_date"})
	v.SetDefault("output.dataset_path", "merged_dataset.csv")
	v.SetDefault("output.report_path", "validation_report.json")
	v.SetDefault("ledger.path", "edsignal.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// ParsedHolidays parses the configured holiday dates.
func (c FeaturesConfig) ParsedHolidays() ([]time.Time, error) {
	out := make([]time.Time, 0, len(c.Holidays))
	for _, s := range c.Holidays {
		ts, err := time.Parse("2006-01-02", s)
		if err != nil {
			return nil, eris.Wrapf(err, "config: parse holiday %q", s)
		}
		out = append(out, ts)
	}
	return out, nil
}

// ParsedEpoch parses the configured day-offset epoch.
func (c FeaturesConfig) ParsedEpoch() (time.Time, error) {
	ts, err := time.Parse("2006-01-02", c.Epoch)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "config: parse epoch %q", c.Epoch)
	}
	return ts, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
