package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewConfigDefaultsWhenMissing(t *testing.T) {
	projectDir := t.TempDir()
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if c.Project.Version != 1 {
		t.Fatalf("expected default version == 1, got %d", c.Project.Version)
	}
	if c.HistoryDriver() != HistorySQLite {
		t.Fatalf("expected sqlite history, got %q", c.HistoryDriver())
	}
	wantHistory := filepath.Join(c.ProjectDir, IntelDir, "state", "history.db")
	if c.HistoryPath() != wantHistory {
		t.Fatalf("history path = %s, want %s", c.HistoryPath(), wantHistory)
	}
	if c.ReportsDir() != filepath.Join(c.ProjectDir, IntelDir, "reports") {
		t.Fatalf("unexpected reports dir %s", c.ReportsDir())
	}
	if c.LogLevel() != "info" {
		t.Fatalf("unexpected log level %q", c.LogLevel())
	}
	if c.HTTPTimeout() != 15*time.Second {
		t.Fatalf("unexpected timeout %s", c.HTTPTimeout())
	}
	if c.SchemaPath() != "" || c.CatalogPath() != "" {
		t.Fatalf("expected embedded schema and catalog")
	}
}

func TestInitIntelDirWritesParseableConfig(t *testing.T) {
	projectDir := t.TempDir()
	if err := InitIntelDir(projectDir); err != nil {
		t.Fatalf("InitIntelDir: %v", err)
	}
	for _, dir := range []string{"logs", "state", "profiles", "reports", "recon-ng"} {
		if info, err := os.Stat(filepath.Join(projectDir, IntelDir, dir)); err != nil || !info.IsDir() {
			t.Fatalf("expected %s directory: %v", dir, err)
		}
	}
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if got := c.ModuleConfig("Skiptracer")["default_country_code"]; got != "61" {
		t.Fatalf("skiptracer country code = %v", got)
	}
	if got := c.ModuleConfig("Photon")["max_pages"]; got != 25 {
		t.Fatalf("photon max_pages = %v (%T)", got, got)
	}
	if c.ModuleConfig("GHunt") != nil {
		t.Fatalf("expected no GHunt settings")
	}

	// A second init keeps an edited config.
	path := c.ProjectConfigPath()
	if err := os.WriteFile(path, []byte("version: 1\nlogging:\n  level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := InitIntelDir(projectDir); err != nil {
		t.Fatalf("second InitIntelDir: %v", err)
	}
	c, err = NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if c.LogLevel() != "debug" {
		t.Fatalf("config was overwritten, level %q", c.LogLevel())
	}
}

func TestLoadProjectConfigParsesYaml(t *testing.T) {
	projectDir := t.TempDir()
	intelDir := filepath.Join(projectDir, IntelDir)
	if err := os.MkdirAll(intelDir, 0o755); err != nil {
		t.Fatal(err)
	}
	configYAML := strings.TrimSpace(`
version: 1
schema: custom/schema.yaml
catalog: /etc/intel/catalog.yaml
history:
  driver: JSON
reports:
  dir: out
logging:
  level: WARN
http:
  timeout: 3s
modules:
  Sherlock:
    parallelism: 2
    platforms_file: platforms.yaml
`)
	if err := os.WriteFile(filepath.Join(intelDir, "config.yaml"), []byte(configYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if !strings.HasPrefix(c.SchemaPath(), c.ProjectDir) {
		t.Fatalf("expected schema path to be resolved, got %s", c.SchemaPath())
	}
	if c.CatalogPath() != "/etc/intel/catalog.yaml" {
		t.Fatalf("absolute catalog path changed: %s", c.CatalogPath())
	}
	if c.HistoryDriver() != HistoryJSON {
		t.Fatalf("driver = %q", c.HistoryDriver())
	}
	if c.HistoryPath() != filepath.Join(c.ProjectDir, IntelDir, "state", "history.json") {
		t.Fatalf("json history path = %s", c.HistoryPath())
	}
	if c.ReportsDir() != filepath.Join(c.ProjectDir, "out") {
		t.Fatalf("reports dir = %s", c.ReportsDir())
	}
	if c.LogLevel() != "warn" {
		t.Fatalf("level = %q", c.LogLevel())
	}
	if c.HTTPTimeout() != 3*time.Second {
		t.Fatalf("timeout = %s", c.HTTPTimeout())
	}
	sherlock := c.ModuleConfig("Sherlock")
	if sherlock["parallelism"] != 2 || sherlock["platforms_file"] != "platforms.yaml" {
		t.Fatalf("unexpected sherlock settings %+v", sherlock)
	}
	sherlock["parallelism"] = 99
	if c.ModuleConfig("Sherlock")["parallelism"] != 2 {
		t.Fatalf("ModuleConfig must return a copy")
	}
}

func TestLoadProjectConfigValidation(t *testing.T) {
	cases := map[string]string{
		"driver":  "version: 1\nhistory:\n  driver: postgres\n",
		"level":   "version: 1\nlogging:\n  level: loud\n",
		"timeout": "version: 1\nhttp:\n  timeout: soon\n",
		"yaml":    "version: [\n",
	}
	for name, body := range cases {
		projectDir := t.TempDir()
		intelDir := filepath.Join(projectDir, IntelDir)
		if err := os.MkdirAll(intelDir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(intelDir, "config.yaml"), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := NewConfig(projectDir); err == nil {
			t.Fatalf("%s: expected validation error but got none", name)
		}
	}
}

func TestSetHistoryDriverPersists(t *testing.T) {
	projectDir := t.TempDir()
	if err := InitIntelDir(projectDir); err != nil {
		t.Fatal(err)
	}
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.SetHistoryDriver("redis"); err == nil {
		t.Fatalf("expected unknown driver to be rejected")
	}
	if err := c.SetHistoryDriver(" JSON "); err != nil {
		t.Fatalf("SetHistoryDriver: %v", err)
	}
	reloaded, err := NewConfig(projectDir)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.HistoryDriver() != HistoryJSON {
		t.Fatalf("driver not persisted: %q", reloaded.HistoryDriver())
	}
	if !strings.HasSuffix(reloaded.HistoryPath(), "history.json") {
		t.Fatalf("path not reset for json driver: %s", reloaded.HistoryPath())
	}
	if reloaded.ModuleConfig("Skiptracer")["default_country_code"] != "61" {
		t.Fatalf("module settings lost on save")
	}
}
