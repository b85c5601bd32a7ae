package config

import (
	"os"
	"testing"
)

// writeTempConfig creates a minimal configuration file for LoadConfig
// and returns its path.
func writeTempConfig(t *testing.T) string {
	t.Helper()
	content := `ssmdquery:
  name: "TestApp"
  version: "1.0"
gcs:
  bucket: "test-market-data"
  transport: gsutil
api:
  url: "http://localhost:8080"
`
	f, err := os.CreateTemp("", "cfg-*.yml")
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

func TestLoadConfig(t *testing.T) {
	clearEnvOverrides(t)
	path := writeTempConfig(t)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Ssmdquery.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Ssmdquery.Name)
	}
	if cfg.GCS.Bucket != "test-market-data" {
		t.Errorf("unexpected bucket: %s", cfg.GCS.Bucket)
	}
	if cfg.GCS.Endpoint != "storage.googleapis.com" {
		t.Errorf("default endpoint not applied: %s", cfg.GCS.Endpoint)
	}
	if cfg.Freshness.StaleThresholdHours != 7 {
		t.Errorf("default stale threshold not applied: %v", cfg.Freshness.StaleThresholdHours)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	clearEnvOverrides(t)

	cfg, err := LoadConfig("/nonexistent/config.yml")
	if err != nil {
		t.Fatalf("missing file should fall back to defaults: %v", err)
	}
	if cfg.Ssmdquery.Name != "ssmdquery" {
		t.Errorf("default name not applied: %s", cfg.Ssmdquery.Name)
	}
	if cfg.RemoteConfigured() {
		t.Error("no bucket and no API URL should mean remote unconfigured")
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	clearEnvOverrides(t)
	t.Setenv("SSMD_API_URL", "http://api.example.com")
	t.Setenv("SSMD_GCS_BUCKET", "override-bucket")

	cfg, err := LoadConfig("/nonexistent/config.yml")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.API.URL != "http://api.example.com" {
		t.Errorf("SSMD_API_URL override not applied: %s", cfg.API.URL)
	}
	if cfg.GCS.Bucket != "override-bucket" {
		t.Errorf("SSMD_GCS_BUCKET override not applied: %s", cfg.GCS.Bucket)
	}
	if !cfg.RemoteConfigured() {
		t.Error("expected remote configured")
	}
}

func TestLoadConfigExpandsEnvRefs(t *testing.T) {
	clearEnvOverrides(t)
	t.Setenv("TEST_BUCKET", "expanded-bucket")
	t.Setenv("TEST_KEY", "s3cret")

	content := `ssmdquery:
  name: "TestApp"
  version: "1.0"
gcs:
  bucket: "${TEST_BUCKET}"
  transport: gsutil
api:
  url: "http://localhost:8080"
  key: "${TEST_KEY}"
`
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()

	cfg, err := LoadConfig(f.Name())
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.GCS.Bucket != "expanded-bucket" {
		t.Errorf("${TEST_BUCKET} not expanded: %s", cfg.GCS.Bucket)
	}
	if cfg.API.Key != "s3cret" {
		t.Errorf("${TEST_KEY} not expanded: %s", cfg.API.Key)
	}
}

func TestExpandEnvRefsLeavesPlainDollarsAlone(t *testing.T) {
	t.Setenv("WHO", "ops")
	in := []byte("note: $5 for ${WHO}, $WHO stays")
	got := string(expandEnvRefs(in))
	if got != "note: $5 for ops, $WHO stays" {
		t.Errorf("unexpected expansion: %s", got)
	}
}

func TestLoadConfigInvalidBucket(t *testing.T) {
	clearEnvOverrides(t)
	t.Setenv("SSMD_GCS_BUCKET", "..bad..")

	if _, err := LoadConfig("/nonexistent/config.yml"); err == nil {
		t.Fatal("expected error for invalid bucket name")
	}
}

func TestIsValidBucket(t *testing.T) {
	valid := []string{"market-data", "ssmd.prod.data", "abc"}
	invalid := []string{"ab", "UPPER", ".leading", "trailing.", "a..b"}
	for _, name := range valid {
		if !isValidBucket(name) {
			t.Errorf("expected %q to be valid", name)
		}
	}
	for _, name := range invalid {
		if isValidBucket(name) {
			t.Errorf("expected %q to be invalid", name)
		}
	}
}

func TestIsProductionLike(t *testing.T) {
	if !IsProductionLike(EnvironmentProduction) {
		t.Error("production should be production-like")
	}
	if !IsProductionLike(EnvironmentStaging) {
		t.Error("staging should be production-like")
	}
	if IsProductionLike(EnvironmentDevelopment) {
		t.Error("development should not be production-like")
	}
}

func clearEnvOverrides(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "")
	t.Setenv("SSMD_API_URL", "")
	t.Setenv("SSMD_API_KEY", "")
	t.Setenv("SSMD_GCS_BUCKET", "")
	t.Setenv("SSMD_CACHE_DIR", "")
}
