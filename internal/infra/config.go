package infra

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/AdamOShea/food-market-simulator/internal/domain"
)

// DefaultConfigPath is where the seller looks for its configuration.
const DefaultConfigPath = "configs/seller.yaml"

// Config holds every setting of the seller process.
// LoadConfig overlays the YAML file on DefaultConfig, then applies environment overrides.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Seller struct {
		ID int `yaml:"id"` // 0 picks a random id at startup
	} `yaml:"seller"`

	Market struct {
		TimeLimit         time.Duration `yaml:"time_limit"`
		CheckInterval     time.Duration `yaml:"check_interval"`
		CountdownInterval time.Duration `yaml:"countdown_interval"`
		Items             []domain.Item `yaml:"items"`
	} `yaml:"market"`

	Server struct {
		Addr         string        `yaml:"addr"`
		WSAddr       string        `yaml:"ws_addr"` // empty disables the WebSocket listener
		IdleTimeout  time.Duration `yaml:"idle_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"server"`

	Storage struct {
		Path string `yaml:"path"` // empty disables the purchase ledger
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`

	Debug struct {
		PprofAddr string `yaml:"pprof_addr"`
	} `yaml:"debug"`
}

// DefaultConfig returns the built-in configuration: the four staple items on port 5000.
func DefaultConfig() *Config {
	var cfg Config
	cfg.App.Name = "food-market-seller"
	cfg.App.Version = "dev"

	cfg.Market.TimeLimit = 60 * time.Second
	cfg.Market.CheckInterval = 1 * time.Second
	cfg.Market.CountdownInterval = 12 * time.Second
	cfg.Market.Items = []domain.Item{
		{Name: "flour", Stock: 50, Price: decimal.RequireFromString("1.20")},
		{Name: "sugar", Stock: 40, Price: decimal.RequireFromString("0.95")},
		{Name: "potato", Stock: 60, Price: decimal.RequireFromString("0.40")},
		{Name: "oil", Stock: 30, Price: decimal.RequireFromString("2.75")},
	}

	cfg.Server.Addr = ":5000"
	cfg.Server.WriteTimeout = 5 * time.Second

	cfg.Storage.Path = "data/ledger.db"

	cfg.Logging.Level = "info"
	cfg.Logging.File = "logs/seller.log"
	return &cfg
}

// LoadConfig reads the YAML file at path on top of DefaultConfig.
// A missing file yields an error wrapping domain.ErrConfigNotFound.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadConfigOrDefault behaves like LoadConfig but falls back to DefaultConfig
// (with environment overrides) when the file does not exist.
func LoadConfigOrDefault(path string) (*Config, bool, error) {
	cfg, err := LoadConfig(path)
	if err == nil {
		return cfg, true, nil
	}
	if !errors.Is(err, domain.ErrConfigNotFound) {
		return nil, false, err
	}

	cfg = DefaultConfig()
	overrideWithEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, false, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, false, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Seller.ID < 0 {
		return &domain.ConfigError{Field: "seller.id", Err: fmt.Errorf("must not be negative, got %d", c.Seller.ID)}
	}

	// Market
	if c.Market.TimeLimit <= 0 {
		return &domain.ConfigError{Field: "market.time_limit", Err: errors.New("must be positive")}
	}
	if c.Market.CheckInterval <= 0 {
		return &domain.ConfigError{Field: "market.check_interval", Err: errors.New("must be positive")}
	}
	if c.Market.CountdownInterval <= 0 {
		return &domain.ConfigError{Field: "market.countdown_interval", Err: errors.New("must be positive")}
	}
	if len(c.Market.Items) == 0 {
		return &domain.ConfigError{Field: "market.items", Err: errors.New("at least one item is required")}
	}
	if _, err := domain.NewInventory(c.Market.Items); err != nil {
		return &domain.ConfigError{Field: "market.items", Err: err}
	}
	for _, it := range c.Market.Items {
		if it.Price.IsNegative() {
			return &domain.ConfigError{Field: "market.items", Err: fmt.Errorf("item %q has negative price", it.Name)}
		}
	}

	// Server
	if c.Server.Addr == "" {
		return &domain.ConfigError{Field: "server.addr", Err: errors.New("listen address is required")}
	}
	if c.Server.IdleTimeout < 0 || c.Server.WriteTimeout < 0 {
		return &domain.ConfigError{Field: "server", Err: errors.New("timeouts must not be negative")}
	}

	// Logging
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return &domain.ConfigError{Field: "logging.level", Err: fmt.Errorf("unknown level %q", c.Logging.Level)}
	}

	return nil
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) {
	if addr := os.Getenv("MARKET_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if addr, ok := os.LookupEnv("MARKET_WS_ADDR"); ok {
		cfg.Server.WSAddr = addr
	}
	if id := os.Getenv("MARKET_SELLER_ID"); id != "" {
		if n, err := strconv.Atoi(id); err == nil {
			cfg.Seller.ID = n
		} else {
			slog.Warn("Ignoring non-numeric MARKET_SELLER_ID", slog.String("value", id))
		}
	}
	if path, ok := os.LookupEnv("MARKET_DB_PATH"); ok {
		cfg.Storage.Path = path
	}
	if level := os.Getenv("MARKET_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
