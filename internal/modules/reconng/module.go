package reconng

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kingrea/intel-lattice/internal/module"
	"github.com/kingrea/intel-lattice/internal/profile"
	"github.com/kingrea/intel-lattice/internal/target"
)

const (
	moduleID      = "Recon-ng"
	moduleVersion = "1.0.0"

	defaultBinary = "recon-ng"
	outputLimit   = 4000

	// SkipNoTarget is reported when the profile carries no usable seed lead.
	SkipNoTarget = "No suitable target found for Recon-ng execution."
)

// Supported seed target types.
const (
	TargetDomain  = "domain"
	TargetCompany = "company"
	TargetContact = "contact"
)

// DefaultSelection is run when no modules are configured.
var DefaultSelection = []string{"whois", "breach", "contacts"}

var categoryModules = map[string]map[string]string{
	"whois": {
		TargetDomain:  "recon/domains-contacts/whois_pocs",
		TargetCompany: "recon/companies-contacts/whois_pocs",
		TargetContact: "recon/contacts-contacts/whois_pocs",
	},
	"breach": {
		TargetDomain:  "recon/domains-credentials/hibp_breach",
		TargetCompany: "recon/companies-credentials/hibp_breach",
		TargetContact: "recon/contacts-credentials/hibp_breach",
	},
	"contacts": {
		TargetDomain:  "recon/domains-contacts/whois_pocs",
		TargetCompany: "recon/companies-contacts/companies_contacts",
		TargetContact: "recon/contacts-contacts/mangle",
	},
}

var workspaceCleaner = regexp.MustCompile(`[^A-Za-z0-9]+`)

// CommandRunner executes recon-ng with a resource script. dir may be empty.
type CommandRunner func(ctx context.Context, dir, name string, args ...string) (stdout, stderr string, exitCode int, err error)

// Option customizes the Recon-ng module.
type Option func(*Module)

// Module runs recon-ng modules inside a dedicated workspace.
type Module struct {
	*module.Base
	logger       *zap.Logger
	now          func() time.Time
	runCmd       CommandRunner
	external     bool
	binary       string
	workspaceDir string
	workspace    string
	targetType   string
	targetValue  string
	selection    []Selection
}

// Selection is one recon-ng module scheduled for a run.
type Selection struct {
	Category string
	Module   string
	Option   string
}

// Register adds the module, with its target-deriving Prepare hook, to reg.
func Register(reg *module.Registry, opts ...Option) {
	if reg == nil {
		return
	}
	reg.MustRegister(module.Spec{
		ID:      moduleID,
		Prepare: Prepare,
		Factory: func(env module.Env, cfg module.Config) (module.Module, error) {
			base := []Option{
				WithLogger(env.Logger),
				WithClock(env.Now),
				WithBinary(cfg.String("binary", defaultBinary)),
				WithWorkspaceDir(cfg.String("workspace_dir", "")),
				WithWorkspace(cfg.String("workspace", "")),
				WithTarget(cfg.String("target_type", ""), cfg.String("target_value", "")),
				WithModules(cfg.Strings("modules")...),
			}
			m := New(append(base, opts...)...)
			if err := m.validate(); err != nil {
				return nil, err
			}
			return m, nil
		},
	})
}

// Prepare derives the seed target and workspace name from the profile.
func Prepare(env module.Env, snapshot profile.Profile, cfg module.Config) (module.Config, error) {
	lead, ok := target.Primary(snapshot)
	if !ok || strings.TrimSpace(lead.Value) == "" {
		return nil, module.Skip(SkipNoTarget)
	}
	return module.Config{
		"workspace":    WorkspaceName(lead.Value, env.Clock()()),
		"target_type":  string(lead.Type),
		"target_value": lead.Value,
	}, nil
}

// WorkspaceName builds "orchestrator_<slug>_<UTC timestamp>" for a target.
func WorkspaceName(value string, now time.Time) string {
	cleaned := strings.Trim(workspaceCleaner.ReplaceAllString(value, "_"), "_")
	if cleaned == "" {
		cleaned = "target"
	}
	if len(cleaned) > 32 {
		cleaned = cleaned[:32]
	}
	return fmt.Sprintf("orchestrator_%s_%s", cleaned, now.UTC().Format("20060102150405"))
}

// New creates a Recon-ng module.
func New(opts ...Option) *Module {
	info := module.Info{
		ID:          moduleID,
		Name:        "Reconnaissance workspace",
		Description: "Runs recon-ng modules for the seed target and correlates the workspace records.",
		Version:     moduleVersion,
	}
	m := &Module{
		Base:   module.NewBase(info, profile.SectionIntelligence),
		logger: zap.NewNop(),
		now:    time.Now,
		runCmd:   execRunner,
		external: true,
		binary:   defaultBinary,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if m.workspaceDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			m.workspaceDir = filepath.Join(home, ".recon-ng", "workspaces")
		}
	}
	if m.selection == nil {
		m.selection = m.normalizeSelection(DefaultSelection)
	}
	return m
}

// WithLogger sets the module logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Module) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(m *Module) {
		if clock != nil {
			m.now = clock
		}
	}
}

// WithCommandRunner overrides how recon-ng is executed.
func WithCommandRunner(runner CommandRunner) Option {
	return func(m *Module) {
		if runner != nil {
			m.runCmd = runner
			m.external = false
		}
	}
}

// WithBinary sets the recon-ng executable name or path.
func WithBinary(binary string) Option {
	return func(m *Module) {
		if strings.TrimSpace(binary) != "" {
			m.binary = strings.TrimSpace(binary)
		}
	}
}

// WithWorkspaceDir sets the directory holding recon-ng workspaces.
func WithWorkspaceDir(dir string) Option {
	return func(m *Module) {
		if strings.TrimSpace(dir) != "" {
			m.workspaceDir = dir
		}
	}
}

// WithWorkspace sets the workspace name.
func WithWorkspace(name string) Option {
	return func(m *Module) {
		m.workspace = strings.TrimSpace(name)
	}
}

// WithTarget sets the seed target.
func WithTarget(targetType, value string) Option {
	return func(m *Module) {
		m.targetType = strings.ToLower(strings.TrimSpace(targetType))
		m.targetValue = strings.TrimSpace(value)
	}
}

// WithModules sets the recon-ng module selection. Category tokens (whois,
// breach, contacts) map to the module suited to the target type; anything
// else is loaded verbatim.
func WithModules(tokens ...string) Option {
	return func(m *Module) {
		if len(tokens) > 0 {
			m.selection = m.normalizeSelection(tokens)
		}
	}
}

func (m *Module) normalizeSelection(tokens []string) []Selection {
	out := []Selection{}
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		lowered := strings.ToLower(token)
		if byType, ok := categoryModules[lowered]; ok {
			name, found := byType[m.targetType]
			if !found {
				name = byType[TargetDomain]
			}
			out = append(out, Selection{Category: lowered, Module: name, Option: "SOURCE"})
			continue
		}
		out = append(out, Selection{Category: "custom", Module: token, Option: "SOURCE"})
	}
	return out
}

func (m *Module) validate() error {
	if m.workspace == "" {
		return errors.New("reconng: workspace is required")
	}
	if m.targetValue == "" {
		return errors.New("reconng: target is required")
	}
	switch m.targetType {
	case TargetDomain, TargetCompany, TargetContact:
	default:
		return fmt.Errorf("reconng: unsupported target type %q", m.targetType)
	}
	if len(m.selection) == 0 {
		return errors.New("reconng: no recon-ng modules selected for execution")
	}
	if !m.external {
		return nil
	}
	if _, err := exec.LookPath(m.binary); err != nil {
		return fmt.Errorf("%w: recon-ng executable %q not found", module.ErrUnavailable, m.binary)
	}
	return nil
}

// Run records one recon-ng module invocation.
type Run struct {
	Category string
	Module   string
	Status   string
	Option   string
	Details  string
	stdout   string
	stderr   string
	exitCode int
}

// Execute implements module.Module.
func (m *Module) Execute(ctx context.Context, snapshot profile.Profile) (profile.Update, error) {
	if err := os.MkdirAll(m.workspaceDir, 0o755); err != nil {
		return nil, fmt.Errorf("reconng: create workspace dir: %w", err)
	}
	if err := m.initWorkspace(ctx); err != nil {
		return nil, err
	}
	if _, _, _, err := m.script(ctx, m.selectCmd(), m.seedCmd(), "exit"); err != nil {
		return nil, err
	}

	runs := make([]Run, 0, len(m.selection))
	for _, sel := range m.selection {
		run, err := m.runModule(ctx, sel)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	dbPath, err := m.workspaceDB()
	if err != nil {
		return nil, err
	}
	records, err := LoadWorkspace(ctx, dbPath)
	if err != nil {
		return nil, err
	}
	analysis := Analyze(records, m.targetType, m.targetValue)
	return m.Update(map[string]any{"reconng": m.report(records, runs, analysis)}), nil
}

func (m *Module) initWorkspace(ctx context.Context) error {
	_, _, code, err := m.script(ctx, m.selectCmd(), "exit")
	if err != nil {
		return err
	}
	if code == 0 {
		return nil
	}
	_, _, _, err = m.script(ctx, "workspaces add "+quote(m.workspace), m.selectCmd(), "exit")
	return err
}

func (m *Module) runModule(ctx context.Context, sel Selection) (Run, error) {
	stdout, stderr, code, err := m.script(ctx,
		m.selectCmd(),
		"modules load "+sel.Module,
		fmt.Sprintf("options set %s %s", sel.Option, quote(m.targetValue)),
		"run",
		"exit",
	)
	if err != nil {
		return Run{}, err
	}
	status := "success"
	if code != 0 {
		status = "error"
	}
	details := strings.TrimSpace(stderr)
	if details == "" {
		details = strings.TrimSpace(stdout)
	}
	m.logger.Debug("recon-ng module finished", zap.String("module", sel.Module), zap.Int("exit_code", code))
	return Run{
		Category: sel.Category,
		Module:   sel.Module,
		Status:   status,
		Option:   sel.Option,
		Details:  truncate(details),
		stdout:   stdout,
		stderr:   stderr,
		exitCode: code,
	}, nil
}

func (m *Module) selectCmd() string {
	return "workspaces select " + quote(m.workspace)
}

func (m *Module) seedCmd() string {
	switch m.targetType {
	case TargetDomain:
		return "db insert domains " + quote(m.targetValue)
	case TargetCompany:
		return "db insert companies " + quote(m.targetValue)
	default:
		return "db insert contacts " + quote(m.targetValue)
	}
}

// script writes commands to a temporary resource file and runs recon-ng -r.
func (m *Module) script(ctx context.Context, commands ...string) (string, string, int, error) {
	file, err := os.CreateTemp("", "reconng-*.rc")
	if err != nil {
		return "", "", 0, fmt.Errorf("reconng: create resource script: %w", err)
	}
	defer os.Remove(file.Name())
	if _, err := file.WriteString(strings.Join(commands, "\n") + "\n"); err != nil {
		file.Close()
		return "", "", 0, fmt.Errorf("reconng: write resource script: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", "", 0, fmt.Errorf("reconng: write resource script: %w", err)
	}
	stdout, stderr, code, err := m.runCmd(ctx, m.workspaceDir, m.binary, "-r", file.Name())
	if err != nil {
		return "", "", 0, fmt.Errorf("reconng: run %s: %w", m.binary, err)
	}
	return stdout, stderr, code, nil
}

func (m *Module) workspaceDB() (string, error) {
	candidates := []string{filepath.Join(m.workspaceDir, m.workspace, "data.db")}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".recon-ng", "workspaces", m.workspace, "data.db"))
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", errors.New("Recon-ng workspace database not found after execution.")
}

func (m *Module) report(records Records, runs []Run, analysis Analysis) map[string]any {
	requested := make([]any, 0, len(m.selection))
	for _, sel := range m.selection {
		requested = append(requested, sel.Category)
	}
	ran := make([]any, 0, len(runs))
	execution := map[string]any{"return_code": 0, "stdout": "", "stderr": ""}
	for _, run := range runs {
		ran = append(ran, map[string]any{
			"category": run.Category,
			"module":   run.Module,
			"status":   run.Status,
			"option":   run.Option,
			"details":  run.Details,
		})
		execution = map[string]any{
			"return_code": run.exitCode,
			"stdout":      truncate(run.stdout),
			"stderr":      truncate(run.stderr),
		}
	}
	return map[string]any{
		"workspace":          m.workspace,
		"target":             map[string]any{"type": m.targetType, "value": m.targetValue},
		"modules_requested":  requested,
		"modules_run":        ran,
		"records":            records.AsMap(),
		"correlations":       analysis.correlationList(),
		"anomalies":          analysis.anomalyList(),
		"confidence_summary": analysis.Summary.AsMap(),
		"execution":          execution,
		"queried_at":         m.now().UTC().Format(time.RFC3339),
	}
}

func quote(value string) string {
	if value == "" {
		return `""`
	}
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	if strings.ContainsAny(escaped, " \t\r\n") {
		return `"` + escaped + `"`
	}
	return escaped
}

func truncate(text string) string {
	if len(text) <= outputLimit {
		return text
	}
	return strings.TrimRight(text[:outputLimit], " \t\r\n") + "..."
}

func execRunner(ctx context.Context, dir, name string, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.String(), stderr.String(), exitErr.ExitCode(), nil
	}
	if err != nil {
		return "", "", 0, err
	}
	return stdout.String(), stderr.String(), 0, nil
}
