package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Estimator struct {
		URL     string        `yaml:"url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"estimator"`
	Predictor struct {
		URL     string        `yaml:"url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"predictor"`
	Kafka struct {
		Enabled       bool          `yaml:"enabled"`
		Brokers       []string      `yaml:"brokers"`
		SnapshotTopic string        `yaml:"snapshot_topic"`
		GroupID       string        `yaml:"group_id"`
		Workers       int           `yaml:"workers"`
		BufferSize    int           `yaml:"buffer_size"`
		RetryMax      int           `yaml:"retry_max"`
		BackoffMin    time.Duration `yaml:"backoff_min"`
		BackoffMax    time.Duration `yaml:"backoff_max"`
		MinBytes      int           `yaml:"min_bytes"`
		MaxBytes      int           `yaml:"max_bytes"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Host     string        `yaml:"host"`
		Port     int           `yaml:"port"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		TTL      time.Duration `yaml:"ttl"`
	} `yaml:"redis"`
	Simulation Simulation `yaml:"simulation"`
}

// Simulation carries the process-wide model constants: regime chain,
// thresholds, shock scaling, and Monte Carlo defaults.
type Simulation struct {
	LatentDim          int         `yaml:"latent_dim"`
	TradingDaysPerMo   int         `yaml:"trading_days_per_month"`
	FragileThreshold   float64     `yaml:"fragile_threshold"`
	CrisisThreshold    float64     `yaml:"crisis_threshold"`
	TransitionMatrix   [][]float64 `yaml:"transition_matrix"`
	RegimeNoiseScales  []float64   `yaml:"regime_noise_scales"`
	ShockCreditStress  float64     `yaml:"shock_credit_stress"`
	ShockCreditLiq     float64     `yaml:"shock_credit_liquidity"`
	ShockVolStress     float64     `yaml:"shock_vol_stress"`
	ShockRateBps       float64     `yaml:"shock_rate_bps"`
	DefaultPaths       int         `yaml:"default_paths"`
	DefaultHorizon     int         `yaml:"default_horizon"`
	DefaultSpeedMs     int         `yaml:"default_speed_ms"`
	SpaghettiCount     int         `yaml:"spaghetti_count"`
	HeuristicPathCap   int         `yaml:"heuristic_path_cap"`
	ChartPathCap       int         `yaml:"chart_path_cap"`
	BaseSeed           int64       `yaml:"base_seed"`
	StreamRequestRate  float64     `yaml:"stream_request_rate"`
	StreamRequestBurst float64     `yaml:"stream_request_burst"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.Simulation.applyDefaults()

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables
	if v := os.Getenv("ESTIMATOR_URL"); v != "" {
		c.Estimator.URL = v
	}
	if v := os.Getenv("PREDICTOR_URL"); v != "" {
		c.Predictor.URL = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_SNAPSHOT_TOPIC"); v != "" {
		c.Kafka.SnapshotTopic = v
	}

	return c, nil
}

func (s *Simulation) applyDefaults() {
	if s.LatentDim == 0 {
		s.LatentDim = 3
	}
	if s.TradingDaysPerMo == 0 {
		s.TradingDaysPerMo = 21
	}
	if s.FragileThreshold == 0 {
		s.FragileThreshold = 0.5
	}
	if s.CrisisThreshold == 0 {
		s.CrisisThreshold = 1.5
	}
	if len(s.TransitionMatrix) == 0 {
		s.TransitionMatrix = [][]float64{
			{0.95, 0.05, 0.00},
			{0.05, 0.90, 0.05},
			{0.00, 0.10, 0.90},
		}
	}
	if len(s.RegimeNoiseScales) == 0 {
		s.RegimeNoiseScales = []float64{1.0, 1.8, 3.0}
	}
	if s.ShockCreditStress == 0 {
		s.ShockCreditStress = 0.8
	}
	if s.ShockCreditLiq == 0 {
		s.ShockCreditLiq = 0.5
	}
	if s.ShockVolStress == 0 {
		s.ShockVolStress = 1.0
	}
	if s.ShockRateBps == 0 {
		s.ShockRateBps = 50.0
	}
	if s.DefaultPaths == 0 {
		s.DefaultPaths = 5000
	}
	if s.DefaultHorizon == 0 {
		s.DefaultHorizon = 24
	}
	if s.DefaultSpeedMs == 0 {
		s.DefaultSpeedMs = 120
	}
	if s.SpaghettiCount == 0 {
		s.SpaghettiCount = 30
	}
	if s.HeuristicPathCap == 0 {
		s.HeuristicPathCap = 2000
	}
	if s.ChartPathCap == 0 {
		s.ChartPathCap = 2000
	}
	if s.BaseSeed == 0 {
		s.BaseSeed = 42
	}
	if s.StreamRequestRate == 0 {
		s.StreamRequestRate = 1
	}
	if s.StreamRequestBurst == 0 {
		s.StreamRequestBurst = 5
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Estimator.URL == "" {
		return fmt.Errorf("estimator.url is required")
	}
	s := c.Simulation
	if len(s.TransitionMatrix) != 3 {
		return fmt.Errorf("simulation.transition_matrix must be 3x3, got %d rows", len(s.TransitionMatrix))
	}
	for i, row := range s.TransitionMatrix {
		if len(row) != 3 {
			return fmt.Errorf("simulation.transition_matrix row %d must have 3 entries", i)
		}
		sum := 0.0
		for _, p := range row {
			if p < 0 {
				return fmt.Errorf("simulation.transition_matrix row %d has a negative entry", i)
			}
			sum += p
		}
		if sum < 0.999 || sum > 1.001 {
			return fmt.Errorf("simulation.transition_matrix row %d sums to %f, want 1", i, sum)
		}
	}
	if len(s.RegimeNoiseScales) != 3 {
		return fmt.Errorf("simulation.regime_noise_scales must have 3 entries")
	}
	for i, sc := range s.RegimeNoiseScales {
		if sc <= 0 {
			return fmt.Errorf("simulation.regime_noise_scales[%d] must be positive", i)
		}
	}
	if s.FragileThreshold >= s.CrisisThreshold {
		return fmt.Errorf("simulation.fragile_threshold must be below crisis_threshold")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers required when kafka is enabled")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host required when clickhouse is enabled")
	}
	return nil
}
