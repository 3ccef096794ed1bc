//go:build !integration

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimal = `
database:
  url: postgres://u:p@localhost:5432/momo
gateway:
  api_user: user
  api_key: key
plans:
  monthly: 3000
  yearly: 30000
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimal), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	checks := []struct {
		name string
		ok   bool
	}{
		{"http port", cfg.HTTP.Port == 8080},
		{"provider", cfg.Gateway.Provider == "fapshi"},
		{"live base url", cfg.Gateway.BaseURL == "https://live.fapshi.com"},
		{"attempts", cfg.Gateway.MaxAttempts == 3},
		{"timeout", cfg.Gateway.Timeout == 10*time.Second},
		{"tolerance", cfg.Plans.Tolerance == 0.05},
		{"batch size", cfg.Reconciler.BatchSize == 50},
		{"stale after", cfg.Reconciler.StaleAfter == 5*time.Minute},
		{"call delay", cfg.Reconciler.CallDelay == 100*time.Millisecond},
		{"phone pattern", cfg.Payments.PhonePattern != ""},
		{"log format", cfg.Log.Format == "json"},
	}
	for _, c := range checks {
		if !c.ok {
			t.Errorf("default not applied: %s", c.name)
		}
	}
}

func TestParse_Overrides(t *testing.T) {
	cfg, err := Parse([]byte(minimal+"reconciler:\n  interval: 30s\n"), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Reconciler.Interval != 30*time.Second || !cfg.Runtime.Dev {
		t.Errorf("unexpected: interval=%v dev=%v", cfg.Reconciler.Interval, cfg.Runtime.Dev)
	}

	sandbox := strings.Replace(minimal, "  api_key: key", "  api_key: key\n  sandbox: true", 1)
	cfg, err = Parse([]byte(sandbox), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Gateway.BaseURL != "https://sandbox.fapshi.com" {
		t.Errorf("expected sandbox url, got %s", cfg.Gateway.BaseURL)
	}
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing database", strings.Replace(minimal, "url: postgres://u:p@localhost:5432/momo", "url: \"\"", 1)},
		{"missing credentials", strings.Replace(minimal, "api_key: key", "api_key: \"\"", 1)},
		{"missing prices", strings.Replace(minimal, "yearly: 30000", "yearly: 0", 1)},
		{"bad phone pattern", minimal + "payments:\n  phone_pattern: \"(\"\n"},
		{"bad yaml", "database: [\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.doc), false); err == nil {
				t.Error("expected an error")
			}
		})
	}

	t.Run("memory provider needs no credentials", func(t *testing.T) {
		doc := strings.Replace(minimal, "  api_key: key", "  api_key: \"\"\n  provider: memory", 1)
		if _, err := Parse([]byte(doc), false); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestLoadConfig_ExpandsEnv(t *testing.T) {
	t.Setenv("MOMO_API_KEY", "from-env")
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := strings.Replace(minimal, "api_key: key", "api_key: ${MOMO_API_KEY}", 1)
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path, false)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Gateway.APIKey != "from-env" {
		t.Errorf("expected env expansion, got %q", cfg.Gateway.APIKey)
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), false); err == nil {
		t.Error("expected an error for a missing file")
	}
}
