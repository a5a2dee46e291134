package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Batch  BatchConfig  `yaml:"batch" mapstructure:"batch"`
	Badge  BadgeConfig  `yaml:"badge" mapstructure:"badge"`
	Report ReportConfig `yaml:"report" mapstructure:"report"`
	Policy PolicyConfig `yaml:"policy" mapstructure:"policy"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port          int `yaml:"port" mapstructure:"port"`
	HeartbeatSecs int `yaml:"heartbeat_secs" mapstructure:"heartbeat_secs"`
}

// BatchConfig configures how a job's leads are processed.
type BatchConfig struct {
	MaxConcurrentLeads int     `yaml:"max_concurrent_leads" mapstructure:"max_concurrent_leads"`
	MaxLeads           int     `yaml:"max_leads" mapstructure:"max_leads"`
	RatePerSec         float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	HarvestRetries     int     `yaml:"harvest_retries" mapstructure:"harvest_retries"`
}

// ResolveMaxLeads picks the per-request limit when set, else the
// configured one. A negative request disables the cap.
func (b BatchConfig) ResolveMaxLeads(requested int) int {
	if requested != 0 {
		return requested
	}
	return b.MaxLeads
}

// BadgeConfig points at an optional badge rule file.
type BadgeConfig struct {
	RulesPath string `yaml:"rules_path" mapstructure:"rules_path"`
}

// ReportConfig configures where workbooks are written.
type ReportConfig struct {
	OutputDir   string `yaml:"output_dir" mapstructure:"output_dir"`
	TitlePrefix string `yaml:"title_prefix" mapstructure:"title_prefix"`
}

// PolicyConfig configures policy section parsing.
type PolicyConfig struct {
	MaxBlockChars int `yaml:"max_block_chars" mapstructure:"max_block_chars"`
}

// AppName tags every log line.
const AppName = "lead-intake"

// DefaultEnvFile is read when no other env file is named.
const DefaultEnvFile = ".env"

// LoadEnv exports the variables of a dotenv file into the process
// environment. Variables already set win. The default file may be absent;
// any other path must exist.
func LoadEnv(path string) error {
	if path == "" {
		path = DefaultEnvFile
	}
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if path == DefaultEnvFile && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return eris.Wrapf(err, "config: load env file %s", path)
}

// Load reads configuration from config.yaml and the environment. Call
// LoadEnv first when a dotenv file should feed the environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INTAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.heartbeat_secs", 15)
	v.SetDefault("batch.max_concurrent_leads", 4)
	v.SetDefault("batch.max_leads", 200)
	v.SetDefault("batch.rate_per_sec", 0)
	v.SetDefault("batch.harvest_retries", 3)
	v.SetDefault("badge.rules_path", "")
	v.SetDefault("report.output_dir", "out")
	v.SetDefault("report.title_prefix", "Leads")
	v.SetDefault("policy.max_block_chars", 2500)

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

// Validate checks the settings the given mode ("run" or "serve") depends
// on and reports every problem at once.
func (c *Config) Validate(mode string) error {
	var errs []string
	switch mode {
	case "run":
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		if c.Server.HeartbeatSecs < 1 {
			errs = append(errs, "server.heartbeat_secs must be >= 1")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Batch.MaxConcurrentLeads < 1 || c.Batch.MaxConcurrentLeads > 50 {
		errs = append(errs, "batch.max_concurrent_leads must be between 1 and 50")
	}
	if c.Batch.MaxLeads < 1 {
		errs = append(errs, "batch.max_leads must be >= 1")
	}
	if c.Batch.RatePerSec < 0 {
		errs = append(errs, "batch.rate_per_sec must be >= 0")
	}
	if c.Batch.HarvestRetries < 0 {
		errs = append(errs, "batch.harvest_retries must be >= 0")
	}
	if c.Policy.MaxBlockChars < 1 {
		errs = append(errs, "policy.max_block_chars must be >= 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger installs the global zap logger. "console" suits a person
// running the CLI; "json" (the default) suits serve behind a collector.
func InitLogger(cfg LogConfig) error {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}

	var zapCfg zap.Config
	switch cfg.Format {
	case "console":
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.DisableStacktrace = true
	case "json", "":
		zapCfg = zap.NewProductionConfig()
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		// Per-lead lines must not be sampled away.
		zapCfg.Sampling = nil
	default:
		return eris.Errorf("config: unknown log format %q", cfg.Format)
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.InitialFields = map[string]any{"app": AppName}

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return nil
}
