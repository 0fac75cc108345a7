package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeTempConfig writes content to a temporary config file and returns its
// path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	return f.Name()
}

const minimal = `app:
  name: "TestApp"
  version: "1.0"
exchanges:
  kucoin:
    enabled: true
    symbols: ["BTC/USDT"]
  upbit:
    enabled: false
collector:
  enabled: true
  interval: 2s
storage:
  s3:
    enabled: false
`

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t, minimal)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.App.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.App.Name)
	}
	if cfg.Collector.Interval != 2*time.Second {
		t.Errorf("unexpected interval: %s", cfg.Collector.Interval)
	}
	if cfg.Transport.Timeout != 10*time.Second || cfg.Collector.Depth != 20 {
		t.Errorf("defaults not applied: %+v %+v", cfg.Transport, cfg.Collector)
	}
	if !cfg.Metrics.UsedWeight || cfg.Metrics.Listen != ":2112" {
		t.Errorf("metric defaults not applied: %+v", cfg.Metrics)
	}
	if got := cfg.EnabledExchanges(); len(got) != 1 || got[0] != "kucoin" {
		t.Errorf("enabled exchanges = %v", got)
	}
}

func TestEnvOverridesCredentials(t *testing.T) {
	t.Setenv("KUCOIN_API_KEY", "key")
	t.Setenv("KUCOIN_SECRET", "secret")
	t.Setenv("KUCOIN_PASSWORD", "pass")

	cfg, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	ex := cfg.Exchanges["kucoin"]
	if ex.APIKey != "key" || ex.Secret != "secret" || ex.Password != "pass" || !ex.HasCredentials() {
		t.Fatalf("credentials not overridden: %+v", ex)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			content: "app:\n  version: \"1\"\n",
			wantErr: "app.name is required",
		},
		{
			name:    "unknown exchange",
			content: "app:\n  name: x\nexchanges:\n  binance:\n    enabled: true\n",
			wantErr: "exchanges.binance is not a supported exchange",
		},
		{
			name:    "kucoin without password",
			content: "app:\n  name: x\nexchanges:\n  kucoin:\n    api_key: k\n    secret: s\n",
			wantErr: "exchanges.kucoin.password is required when api_key is set",
		},
		{
			name:    "key without secret",
			content: "app:\n  name: x\nexchanges:\n  upbit:\n    api_key: k\n",
			wantErr: "exchanges.upbit.secret is required when api_key is set",
		},
		{
			name:    "collector without symbols",
			content: "app:\n  name: x\ncollector:\n  enabled: true\n",
			wantErr: "collector requires at least one enabled exchange with symbols",
		},
		{
			name:    "bad bucket",
			content: "app:\n  name: x\nstorage:\n  s3:\n    enabled: true\n    bucket: Bad_Bucket\n    region: eu-west-1\n",
			wantErr: "storage.s3.bucket 'Bad_Bucket' is invalid",
		},
		{
			name:    "kafka without brokers",
			content: "app:\n  name: x\nstorage:\n  kafka:\n    enabled: true\n    topic: t\n",
			wantErr: "storage.kafka.brokers is required when Kafka is enabled",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("S3_BUCKET", "")
			t.Setenv("UPBIT_SECRET", "")
			_, err := Parse([]byte(tt.content))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q does not contain %q", err, tt.wantErr)
			}
			if !strings.HasPrefix(err.Error(), "configuration validation failed: ") {
				t.Fatalf("error not wrapped: %q", err)
			}
		})
	}
}

func TestIsValidS3Bucket(t *testing.T) {
	for name, want := range map[string]bool{
		"exchange-data": true,
		"ab":            false,
		"a..b":          false,
		"Upper":         false,
		"data.archive":  true,
	} {
		if got := isValidS3Bucket(name); got != want {
			t.Errorf("isValidS3Bucket(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestResolvePathUsesEnvironmentFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	if err := os.WriteFile(filepath.Join(dir, "config.production.yml"), []byte(minimal), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("APP_ENV", "prod")
	if got := ResolvePath(""); got != "config.production.yml" {
		t.Fatalf("ResolvePath = %q", got)
	}
	if got := ResolvePath("custom.yml"); got != "custom.yml" {
		t.Fatalf("explicit path replaced: %q", got)
	}

	t.Setenv("APP_ENV", "")
	if got := ResolvePath(""); got != DefaultPath {
		t.Fatalf("ResolvePath without env file = %q", got)
	}
	if IsProductionLike(getAppEnvironment()) {
		t.Fatalf("development must not be production-like")
	}
}
