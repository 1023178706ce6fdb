package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dhumphrey11/moda-trading/internal/core"
)

type Config struct {
	Server       ServerConfig              `mapstructure:"server"`
	Providers    map[string]ProviderConfig `mapstructure:"providers"`
	Orchestrator OrchestratorConfig        `mapstructure:"orchestrator"`
	Risk         RiskConfig                `mapstructure:"risk"`
	Portfolio    PortfolioConfig           `mapstructure:"portfolio"`
	Archive      ArchiveConfig             `mapstructure:"archive"`
	Notifiers    map[string]NotifierConfig `mapstructure:"notifiers"`
	Metrics      MetricsConfig             `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Mode        string `mapstructure:"mode"`
	APIKey      string `mapstructure:"api_key"`
	JobTTLHours int    `mapstructure:"job_ttl_hours"`
	MaxJobs     int    `mapstructure:"max_jobs"`
}

type ProviderConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	DailyQuota int    `mapstructure:"daily_quota"`
}

type OrchestratorConfig struct {
	IntradayPacing      time.Duration `mapstructure:"intraday_pacing"`
	DailyPacing         time.Duration `mapstructure:"daily_pacing"`
	FundamentalsPacing  time.Duration `mapstructure:"fundamentals_pacing"`
	NewsToIntraday      time.Duration `mapstructure:"news_to_intraday_delay"`
	IntradayToDaily     time.Duration `mapstructure:"intraday_to_daily_delay"`
	DailyToFundamentals time.Duration `mapstructure:"daily_to_fundamentals_delay"`
	FundamentalsHours   []int         `mapstructure:"fundamentals_hours"`
}

type RiskConfig struct {
	MaxPositionPct float64 `mapstructure:"max_position_pct"`
	StopLossPct    float64 `mapstructure:"stop_loss_pct"`
	TakeProfitPct  float64 `mapstructure:"take_profit_pct"`
	MaxSectorPct   float64 `mapstructure:"max_sector_pct"`
	MaxDrawdownPct float64 `mapstructure:"max_drawdown_pct"`
	MinConfidence  float64 `mapstructure:"min_confidence"`
	MaxPositions   int     `mapstructure:"max_positions"`
}

type PortfolioConfig struct {
	FeeRate            float64 `mapstructure:"fee_rate"`
	SignalHorizonHours int     `mapstructure:"signal_horizon_hours"`
}

type ArchiveConfig struct {
	Type string   `mapstructure:"type"` // "localfs" or "s3"
	Path string   `mapstructure:"path"` // For localfs
	S3   S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

type NotifierConfig struct {
	Enabled bool              `mapstructure:"enabled"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// knownProviders are the provider section keys accepted in config.
var knownProviders = map[string]bool{
	"alphavantage": true,
	"finnhub":      true,
	"polygon":      true,
	"tiingo":       true,
}

// Load reads configuration from file
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			Mode:        "release",
			JobTTLHours: 1,
			MaxJobs:     100,
		},
		Providers: map[string]ProviderConfig{
			"alphavantage": {Enabled: true, DailyQuota: 100},
			"finnhub":      {Enabled: true, DailyQuota: 250},
			"polygon":      {Enabled: true, DailyQuota: 100},
			"tiingo":       {Enabled: true, DailyQuota: 500},
		},
		Orchestrator: OrchestratorConfig{
			IntradayPacing:      500 * time.Millisecond,
			DailyPacing:         1 * time.Second,
			FundamentalsPacing:  2 * time.Second,
			NewsToIntraday:      5 * time.Second,
			IntradayToDaily:     10 * time.Second,
			DailyToFundamentals: 10 * time.Second,
			FundamentalsHours:   []int{9, 15},
		},
		Risk: RiskConfig{
			MaxPositionPct: 0.10,
			StopLossPct:    0.08,
			TakeProfitPct:  0.15,
			MaxSectorPct:   0.30,
			MaxDrawdownPct: 0.20,
			MinConfidence:  80,
			MaxPositions:   20,
		},
		Portfolio: PortfolioConfig{
			FeeRate:            0.001,
			SignalHorizonHours: 24,
		},
		Archive: ArchiveConfig{
			Type: "localfs",
			Path: "./data/archive",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}

	// Provider validation
	enabled := 0
	for name, p := range c.Providers {
		if !knownProviders[name] {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("unknown provider %q", name))
		}
		if !p.Enabled {
			continue
		}
		enabled++
		if p.APIKey == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("api_key required for enabled provider %s", name))
		}
		if p.DailyQuota < 0 {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("daily_quota cannot be negative for %s", name))
		}
	}
	if enabled == 0 {
		return core.WrapError(core.ErrConfigMissing,
			fmt.Errorf("at least one provider must be enabled"))
	}

	// Risk validation
	if c.Risk.MaxPositionPct <= 0 || c.Risk.MaxPositionPct > 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("max_position_pct must be in (0, 1], got %f", c.Risk.MaxPositionPct))
	}
	if c.Risk.StopLossPct <= 0 || c.Risk.StopLossPct >= 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("stop_loss_pct must be in (0, 1), got %f", c.Risk.StopLossPct))
	}
	if c.Risk.TakeProfitPct <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("take_profit_pct must be positive, got %f", c.Risk.TakeProfitPct))
	}
	if c.Risk.MaxSectorPct < 0 || c.Risk.MaxSectorPct > 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("max_sector_pct must be in [0, 1], got %f", c.Risk.MaxSectorPct))
	}
	if c.Risk.MaxDrawdownPct < 0 || c.Risk.MaxDrawdownPct > 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("max_drawdown_pct must be in [0, 1], got %f", c.Risk.MaxDrawdownPct))
	}
	if c.Risk.MinConfidence < 0 || c.Risk.MinConfidence > 100 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("min_confidence must be between 0 and 100, got %f", c.Risk.MinConfidence))
	}
	if c.Risk.MaxPositions < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("max_positions must be at least 1, got %d", c.Risk.MaxPositions))
	}

	// Portfolio validation
	if c.Portfolio.FeeRate < 0 || c.Portfolio.FeeRate >= 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("fee_rate must be in [0, 1), got %f", c.Portfolio.FeeRate))
	}
	if c.Portfolio.SignalHorizonHours < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("signal_horizon_hours must be at least 1, got %d", c.Portfolio.SignalHorizonHours))
	}

	// Orchestrator validation
	for _, h := range c.Orchestrator.FundamentalsHours {
		if h < 0 || h > 23 {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("fundamentals hour %d out of range", h))
		}
	}

	// Archive validation
	switch c.Archive.Type {
	case "", "localfs":
	case "s3":
		if c.Archive.S3.Bucket == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("s3 bucket required when archive type is s3"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown archive type %q", c.Archive.Type))
	}

	return nil
}
