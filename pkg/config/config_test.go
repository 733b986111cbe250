package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sample = `
client:
  compress: true
  resolve_timeout: 3s
  load_balancer: consistent-hash
  rate_limit:
    rate: 50
  interceptors:
    logging: true
pool:
  max_size: 8
  dial_retries: 2
registry:
  type: memory
  static:
    - service: greeter
      address: 10.0.0.1
      port: 9000
      version: 1.4.0
log:
  level: debug
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if !cfg.Client.Compress || cfg.Client.ResolveTimeout.Duration != 3*time.Second {
		t.Errorf("client = %+v", cfg.Client)
	}
	if cfg.Client.RateLimit.Burst != 50 {
		t.Errorf("burst = %d, want it to default to the rate", cfg.Client.RateLimit.Burst)
	}
	if !cfg.Client.Interceptors.Logging || !cfg.Client.Interceptors.Recovery {
		t.Errorf("interceptors = %+v", cfg.Client.Interceptors)
	}
	if cfg.Pool.MaxSize != 8 || cfg.Pool.MaxIdleTime.Duration != 90*time.Second {
		t.Errorf("pool = %+v", cfg.Pool)
	}
	if len(cfg.Registry.Static) != 1 || cfg.Registry.Static[0].Version != "1.4.0" {
		t.Errorf("static = %+v", cfg.Registry.Static)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad duration", "pool:\n  max_idle_time: soon\n", "invalid duration"},
		{"unknown registry", "registry:\n  type: consul\n", "unknown type"},
		{"static without memory", "registry:\n  type: etcd\n  static:\n    - {service: a, address: b, port: 1}\n", "need type memory"},
		{"incomplete static", "registry:\n  type: memory\n  static:\n    - {service: a}\n", "static[0]"},
		{"negative retries", "pool:\n  dial_retries: -1\n", "dial_retries"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatal(err)
	}
}
