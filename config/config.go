package config

import (
	"errors"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type HTTP struct {
	Addr string `yaml:"addr" envconfig:"HTTP_ADDR"`
}

type Logging struct {
	Env       string `yaml:"env" envconfig:"LOG_ENV"`       // dev|stage|prod
	Service   string `yaml:"service"`                       // relay-service
	Version   string `yaml:"version"`                       // v0.1.0
	Backend   string `yaml:"backend" envconfig:"LOG_BACKEND"` // std|zap
	AddSource bool   `yaml:"addSource"`
	Debug     bool   `yaml:"debug" envconfig:"LOG_DEBUG"`
}

type SeedRoom struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type Relay struct {
	LogCapacity int        `yaml:"logCapacity" envconfig:"LOG_CAPACITY"` // bounded room log, FIFO
	HistoryTail int        `yaml:"historyTail" envconfig:"HISTORY_TAIL"` // snapshot size on join
	SeedRooms   []SeedRoom `yaml:"seedRooms"`
}

type Config struct {
	HTTP    HTTP    `yaml:"http"`
	Logging Logging `yaml:"logging"`
	Relay   Relay   `yaml:"relay"`
}

// LoadConfig reads CONFIG_PATH (default ./config/config.yaml), then lets
// RELAY_* environment variables override individual fields.
func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := envconfig.Process("relay", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	// fill defaults for anything omitted
	if c.Logging.Service == "" {
		c.Logging.Service = "relay-service"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	if c.Relay.LogCapacity <= 0 {
		c.Relay.LogCapacity = 1000
	}
	if c.Relay.HistoryTail <= 0 {
		c.Relay.HistoryTail = 50
	}
	return nil
}
