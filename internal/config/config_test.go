package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
app:
  name: "neulbom"
database:
  host: "localhost"
  port: 3306
  user: "u"
  password: "p"
  name: "neulbom"
  charset: "utf8mb4"
  parse_time: true
  loc: "Local"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.ZEP.BaseURL != "https://api.zep.us/v1" {
		t.Errorf("ZEP base URL default wrong: %q", cfg.ZEP.BaseURL)
	}
	if cfg.ZEP.MaxRetries != 3 || cfg.ZEP.RetryDelay != 2*time.Second || cfg.ZEP.Timeout != 30*time.Second {
		t.Errorf("ZEP retry defaults wrong: %+v", cfg.ZEP)
	}
	if cfg.Provisioning.PasswordLength != 12 {
		t.Errorf("password length default = %d", cfg.Provisioning.PasswordLength)
	}
	if cfg.Provisioning.MaxAutoSpaceBatch != 30 {
		t.Errorf("auto space batch default = %d", cfg.Provisioning.MaxAutoSpaceBatch)
	}
	if cfg.Provisioning.MaxUploadSizeBytes != 5*1024*1024 {
		t.Errorf("upload size default = %d", cfg.Provisioning.MaxUploadSizeBytes)
	}
	if cfg.Redis.SessionTTL != 30*time.Minute {
		t.Errorf("session TTL default = %v", cfg.Redis.SessionTTL)
	}
}

func TestDatabaseDSN(t *testing.T) {
	cfg := &Config{}
	cfg.Database = DatabaseConfig{
		Host: "db", Port: 3306, User: "u", Password: "p", Name: "neulbom",
		Charset: "utf8mb4", ParseTime: true, Loc: "Local",
	}
	want := "u:p@tcp(db:3306)/neulbom?charset=utf8mb4&parseTime=true&loc=Local"
	if got := cfg.DatabaseDSN(); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
