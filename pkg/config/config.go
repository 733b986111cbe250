// Kunhua Huang 2026

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Client   ClientConfig   `yaml:"client"`
	Pool     PoolConfig     `yaml:"pool"`
	Registry RegistryConfig `yaml:"registry"`
	Log      LogConfig      `yaml:"log"`
}

type ClientConfig struct {
	Codec string `yaml:"codec"`
	// Compression applies to bindings whose reference has no override.
	Compress          bool     `yaml:"compress"`
	CompressType      string   `yaml:"compress_type"`
	ResolveTimeout    Duration `yaml:"resolve_timeout"`
	LoadBalancer      string   `yaml:"load_balancer"`
	AffinityCacheSize int      `yaml:"affinity_cache_size"`
	RateLimit         struct {
		Rate  int64 `yaml:"rate"` // 0 disables
		Burst int64 `yaml:"burst"`
		Wait  bool  `yaml:"wait"`
	} `yaml:"rate_limit"`
	Interceptors struct {
		Logging  bool `yaml:"logging"`
		Metrics  bool `yaml:"metrics"`
		Recovery bool `yaml:"recovery"`
	} `yaml:"interceptors"`
}

type PoolConfig struct {
	MaxSize             int      `yaml:"max_size"`
	MaxIdleTime         Duration `yaml:"max_idle_time"`
	MaxLifetime         Duration `yaml:"max_lifetime"`
	CleanupInterval     Duration `yaml:"cleanup_interval"`
	DialTimeout         Duration `yaml:"dial_timeout"`
	DialRetries         int      `yaml:"dial_retries"`
	DialRetryInterval   Duration `yaml:"dial_retry_interval"`
	KeepAlive           bool     `yaml:"keep_alive"`
	KeepAlivePeriod     Duration `yaml:"keep_alive_period"`
	EnableHealthCheck   bool     `yaml:"enable_health_check"`
	HealthCheckInterval Duration `yaml:"health_check_interval"`
	WaitTimeout         Duration `yaml:"wait_timeout"`
}

type RegistryConfig struct {
	Type string `yaml:"type"` // none/memory/etcd
	Etcd struct {
		Endpoints   []string `yaml:"endpoints"`
		DialTimeout Duration `yaml:"dial_timeout"`
		KeyPrefix   string   `yaml:"key_prefix"`
	} `yaml:"etcd"`
	// Static seeds the memory locator.
	Static []StaticInstance `yaml:"static"`
}

type StaticInstance struct {
	Service string `yaml:"service"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	Version string `yaml:"version"`
	Weight  int    `yaml:"weight"`
}

type LogConfig struct {
	// Level is a go-logging level name; RPC_LOG_LEVEL wins when set.
	Level string `yaml:"level"`
}

type Duration struct{ time.Duration }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dd, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = dd
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Default mirrors the defaults of the pool, binder and transport packages.
func Default() *Config {
	cfg := &Config{
		Client: ClientConfig{
			Codec:             "json",
			CompressType:      "gzip",
			ResolveTimeout:    Duration{10 * time.Second},
			LoadBalancer:      "round-robin",
			AffinityCacheSize: 1024,
		},
		Pool: PoolConfig{
			MaxSize:             4,
			MaxIdleTime:         Duration{90 * time.Second},
			MaxLifetime:         Duration{30 * time.Minute},
			CleanupInterval:     Duration{30 * time.Second},
			DialTimeout:         Duration{5 * time.Second},
			DialRetryInterval:   Duration{200 * time.Millisecond},
			KeepAlive:           true,
			KeepAlivePeriod:     Duration{30 * time.Second},
			EnableHealthCheck:   true,
			HealthCheckInterval: Duration{60 * time.Second},
			WaitTimeout:         Duration{5 * time.Second},
		},
		Registry: RegistryConfig{Type: "none"},
		Log:      LogConfig{Level: "warning"},
	}
	cfg.Client.Interceptors.Recovery = true
	cfg.Client.Interceptors.Metrics = true
	cfg.Registry.Etcd.Endpoints = []string{"localhost:2379"}
	cfg.Registry.Etcd.DialTimeout = Duration{5 * time.Second}
	cfg.Registry.Etcd.KeyPrefix = "/rpc/services"
	return cfg
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Registry.Type {
	case "none", "memory":
	case "etcd":
		if len(c.Registry.Etcd.Endpoints) == 0 {
			return fmt.Errorf("registry: etcd needs at least one endpoint")
		}
	default:
		return fmt.Errorf("registry: unknown type %q", c.Registry.Type)
	}

	if len(c.Registry.Static) > 0 && c.Registry.Type != "memory" {
		return fmt.Errorf("registry: static instances need type memory, got %q", c.Registry.Type)
	}
	for i, inst := range c.Registry.Static {
		if inst.Service == "" || inst.Address == "" || inst.Port <= 0 {
			return fmt.Errorf("registry: static[%d] needs service, address and port", i)
		}
	}

	if c.Client.RateLimit.Rate < 0 || c.Client.RateLimit.Burst < 0 {
		return fmt.Errorf("client: negative rate limit")
	}
	if c.Client.RateLimit.Rate > 0 && c.Client.RateLimit.Burst == 0 {
		c.Client.RateLimit.Burst = c.Client.RateLimit.Rate
	}
	if c.Pool.DialRetries < 0 {
		return fmt.Errorf("pool: dial_retries must be >= 0, got %d", c.Pool.DialRetries)
	}
	return nil
}
