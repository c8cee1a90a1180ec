// internal/config/config.go
//
// This package handles configuration and the .intel directory structure.
// Every investigation workspace gets a .intel/ folder created in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// IntelDir is the name of the directory we create in each workspace
	IntelDir = ".intel"

	// HistorySQLite stores run history in a SQLite database.
	HistorySQLite = "sqlite"
	// HistoryJSON stores run history in a JSON file.
	HistoryJSON = "json"

	defaultHistoryPath = "state/history.db"
	defaultJSONHistory = "state/history.json"
	defaultReportsDir  = "reports"
	defaultLogLevel    = "info"
	defaultHTTPTimeout = 15 * time.Second
)

const defaultProjectConfigYAML = `# intel workspace configuration
version: 1

# Override the embedded profile schema or module catalog with local files.
# Relative paths resolve against the workspace root.
# schema: schema/profile_schema.yaml
# catalog: catalog/modules.yaml

history:
  driver: sqlite   # sqlite | json
  path: .intel/state/history.db

reports:
  dir: .intel/reports

logging:
  level: info      # debug | info | warn | error

http:
  timeout: 15s

# Per-module settings, keyed by catalog id.
modules:
  Skiptracer:
    default_country_code: "61"
  Sherlock:
    parallelism: 8
  Photon:
    max_pages: 25
    max_depth: 2
`

// HistoryConfig selects the run history store.
type HistoryConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path,omitempty"`
}

// ReportConfig controls where reports are written.
type ReportConfig struct {
	Dir string `yaml:"dir,omitempty"`
}

// LoggingConfig controls the log file verbosity.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"`
}

// HTTPConfig configures the HTTP client shared by modules.
type HTTPConfig struct {
	Timeout string `yaml:"timeout,omitempty"`
}

// ProjectConfig models .intel/config.yaml.
type ProjectConfig struct {
	Version int                       `yaml:"version"`
	Schema  string                    `yaml:"schema,omitempty"`
	Catalog string                    `yaml:"catalog,omitempty"`
	History HistoryConfig             `yaml:"history"`
	Reports ReportConfig              `yaml:"reports,omitempty"`
	Logging LoggingConfig             `yaml:"logging,omitempty"`
	HTTP    HTTPConfig                `yaml:"http,omitempty"`
	Modules map[string]map[string]any `yaml:"modules,omitempty"`
}

// Config holds the runtime configuration for one workspace.
type Config struct {
	// ProjectDir is the directory the user ran `intel` from
	ProjectDir string

	// IntelProjectDir is ProjectDir/.intel
	IntelProjectDir string

	Project ProjectConfig
}

// InitIntelDir creates the .intel directory structure in the given workspace.
//
// Structure created:
// .intel/
// ├── config.yaml
// ├── logs/         <- zap log file
// ├── state/        <- run history
// ├── profiles/     <- profile documents
// ├── reports/      <- generated reports
// └── recon-ng/     <- Recon-ng workspaces
func InitIntelDir(projectDir string) error {
	intelDir := filepath.Join(projectDir, IntelDir)
	dirs := []string{
		filepath.Join(intelDir, "logs"),
		filepath.Join(intelDir, "state"),
		filepath.Join(intelDir, "profiles"),
		filepath.Join(intelDir, "reports"),
		filepath.Join(intelDir, "recon-ng"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return ensureProjectConfig(filepath.Join(intelDir, "config.yaml"))
}

// NewConfig creates a Config populated from .intel/config.yaml when present.
func NewConfig(projectDir string) (*Config, error) {
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("config: resolve %s: %w", projectDir, err)
	}
	cfg := &Config{
		ProjectDir:      abs,
		IntelProjectDir: filepath.Join(abs, IntelDir),
		Project:         defaultProjectConfig(),
	}
	cfg.Project.normalize(abs)
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.IntelProjectDir, "logs")
}

// StateDir returns the path to the state directory
func (c *Config) StateDir() string {
	return filepath.Join(c.IntelProjectDir, "state")
}

// ProfilesDir returns the default location for profile documents
func (c *Config) ProfilesDir() string {
	return filepath.Join(c.IntelProjectDir, "profiles")
}

// ReconWorkspaceDir is handed to Recon-ng as its workspace root
func (c *Config) ReconWorkspaceDir() string {
	return filepath.Join(c.IntelProjectDir, "recon-ng")
}

// ReportsDir returns the configured report output directory.
func (c *Config) ReportsDir() string {
	return c.Project.Reports.Dir
}

// ProjectConfigPath returns the on-disk location for the config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.IntelProjectDir, "config.yaml")
}

// SchemaPath returns the schema override, or "" for the embedded schema.
func (c *Config) SchemaPath() string {
	return c.Project.Schema
}

// CatalogPath returns the catalog override, or "" for the embedded catalog.
func (c *Config) CatalogPath() string {
	return c.Project.Catalog
}

// HistoryDriver returns the run history driver name.
func (c *Config) HistoryDriver() string {
	return c.Project.History.Driver
}

// HistoryPath returns the absolute path of the run history store.
func (c *Config) HistoryPath() string {
	return c.Project.History.Path
}

// LogLevel returns the configured log level.
func (c *Config) LogLevel() string {
	return c.Project.Logging.Level
}

// HTTPTimeout returns the module HTTP client timeout.
func (c *Config) HTTPTimeout() time.Duration {
	d, err := time.ParseDuration(c.Project.HTTP.Timeout)
	if err != nil || d <= 0 {
		return defaultHTTPTimeout
	}
	return d
}

// ModuleConfig returns a copy of the settings for module id.
func (c *Config) ModuleConfig(id string) map[string]any {
	settings := c.Project.Modules[id]
	if len(settings) == 0 {
		return nil
	}
	out := make(map[string]any, len(settings))
	for key, value := range settings {
		out[key] = value
	}
	return out
}

// ModuleIDs lists modules that carry settings.
func (c *Config) ModuleIDs() []string {
	ids := make([]string, 0, len(c.Project.Modules))
	for id := range c.Project.Modules {
		ids = append(ids, id)
	}
	return ids
}

// SetHistoryDriver switches the history store and persists the value back to
// .intel/config.yaml. The path resets to the driver's default location.
func (c *Config) SetHistoryDriver(driver string) error {
	driver = normalizeDriver(driver)
	if driver != HistorySQLite && driver != HistoryJSON {
		return fmt.Errorf("config: history driver must be %q or %q", HistorySQLite, HistoryJSON)
	}
	c.Project.History = HistoryConfig{Driver: driver}
	return c.saveProjectConfig()
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize(c.ProjectDir)
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{}
	pc.applyDefaults()
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if strings.TrimSpace(pc.History.Driver) == "" {
		pc.History.Driver = HistorySQLite
	}
	if strings.TrimSpace(pc.Reports.Dir) == "" {
		pc.Reports.Dir = filepath.Join(IntelDir, defaultReportsDir)
	}
	if strings.TrimSpace(pc.Logging.Level) == "" {
		pc.Logging.Level = defaultLogLevel
	}
	if strings.TrimSpace(pc.HTTP.Timeout) == "" {
		pc.HTTP.Timeout = defaultHTTPTimeout.String()
	}
	if pc.Modules == nil {
		pc.Modules = map[string]map[string]any{}
	}
}

func (pc *ProjectConfig) normalize(base string) {
	pc.Schema = resolvePath(base, pc.Schema)
	pc.Catalog = resolvePath(base, pc.Catalog)
	pc.History.Driver = normalizeDriver(pc.History.Driver)
	if strings.TrimSpace(pc.History.Path) == "" {
		switch pc.History.Driver {
		case HistoryJSON:
			pc.History.Path = filepath.Join(IntelDir, defaultJSONHistory)
		default:
			pc.History.Path = filepath.Join(IntelDir, defaultHistoryPath)
		}
	}
	pc.History.Path = resolvePath(base, pc.History.Path)
	pc.Reports.Dir = resolvePath(base, pc.Reports.Dir)
	pc.Logging.Level = strings.ToLower(strings.TrimSpace(pc.Logging.Level))
	pc.HTTP.Timeout = strings.TrimSpace(pc.HTTP.Timeout)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	switch pc.History.Driver {
	case HistorySQLite, HistoryJSON:
	default:
		return fmt.Errorf("history.driver must be %q or %q", HistorySQLite, HistoryJSON)
	}
	switch pc.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", pc.Logging.Level)
	}
	if d, err := time.ParseDuration(pc.HTTP.Timeout); err != nil || d <= 0 {
		return fmt.Errorf("http.timeout %q must be a positive duration", pc.HTTP.Timeout)
	}
	for id := range pc.Modules {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("modules: id is required")
		}
	}
	return nil
}

func normalizeDriver(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}

func (c *Config) saveProjectConfig() error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	c.Project.applyDefaults()
	c.Project.normalize(c.ProjectDir)
	if err := c.Project.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(c.IntelProjectDir, 0o755); err != nil {
		return fmt.Errorf("config: ensure intel dir: %w", err)
	}
	data, err := yaml.Marshal(c.Project)
	if err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := os.WriteFile(c.ProjectConfigPath(), data, 0o644); err != nil {
		return fmt.Errorf("config: write project config: %w", err)
	}
	return nil
}
