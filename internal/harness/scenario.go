package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/derive/internal/appctx"
)

// DefaultRunID is the run ID used when a scenario does not set one, so that
// golden traces are byte-identical across runs.
const DefaultRunID = "test-run-default"

// Scenario drives the application sources on a simulated clock and asserts
// on what subscribers observed.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// RunID fixes the recorded run ID. Defaults to DefaultRunID.
	RunID string `yaml:"run_id,omitempty"`

	// Start is the simulated clock's initial time (RFC 3339).
	// Defaults to 2024-01-01T00:00:00Z.
	Start string `yaml:"start,omitempty"`

	// TickInterval is the currentDate period. Defaults to 1s.
	TickInterval string `yaml:"tick_interval,omitempty"`

	// SettingsFiles is a CUE settings cascade, evaluated in order.
	// Paths are relative to the scenario file.
	SettingsFiles []string `yaml:"settings_files,omitempty"`

	// Settings are merged over the cascade to form the initial settings.
	Settings map[string]any `yaml:"settings,omitempty"`

	// User is the initially signed-in user; nil means signed out.
	User *appctx.User `yaml:"user,omitempty"`

	// LightTheme is the initial theme.
	LightTheme bool `yaml:"light_theme,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the recorded trace after all steps ran.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one scenario action. Exactly one field must be set.
type Step struct {
	// Subscribe starts recording the named source.
	Subscribe string `yaml:"subscribe,omitempty"`

	// Unsubscribe stops recording the named source.
	Unsubscribe string `yaml:"unsubscribe,omitempty"`

	// SetRepo publishes a resolved repository.
	SetRepo *RepoStep `yaml:"set_repo,omitempty"`

	// SetTheme publishes the theme flag.
	SetTheme *bool `yaml:"set_theme,omitempty"`

	// SetUser signs a user in.
	SetUser *appctx.User `yaml:"set_user,omitempty"`

	// SignOut publishes a nil user.
	SignOut bool `yaml:"sign_out,omitempty"`

	// SetSettings replaces the settings value.
	SetSettings map[string]any `yaml:"set_settings,omitempty"`

	// Advance moves the simulated clock forward by a duration ("3s").
	Advance string `yaml:"advance,omitempty"`
}

// RepoStep describes a resolved repository.
type RepoStep struct {
	Name   string `yaml:"name"`
	OID    string `yaml:"oid"`
	Author string `yaml:"author,omitempty"`

	// Date is the tip commit's author date (RFC 3339). Empty means unknown.
	Date string `yaml:"date,omitempty"`
}

// Assertion validates the recorded trace.
type Assertion struct {
	// Type specifies the assertion type:
	// - "emissions": the source's recorded values equal Values, in order
	// - "count": the source was recorded exactly Count times
	// - "active_tickers": exactly Count clock tickers are still running
	Type string `yaml:"type"`

	// Source names the observable (used by emissions and count).
	Source string `yaml:"source,omitempty"`

	// Values is the expected value sequence (used by emissions).
	Values []any `yaml:"values,omitempty"`

	// Count is the expected number (used by count and active_tickers).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertEmissions     = "emissions"
	AssertCount         = "count"
	AssertActiveTickers = "active_tickers"
)

// Source names a scenario can subscribe to.
const (
	SourceCurrentDate       = "currentDate"
	SourceResolvedRepo      = "resolvedRepo"
	SourceRepoHasNewCommits = "repoHasNewCommits"
)

// defaultStart is the simulated clock's time when a scenario sets none.
var defaultStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// SourceNames lists every source a scenario can subscribe to.
func SourceNames() []string {
	return append(appctx.SourceNames(), SourceCurrentDate, SourceResolvedRepo, SourceRepoHasNewCommits)
}

// LoadScenario reads and parses a scenario YAML file.
// Settings file paths are resolved relative to the scenario's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	for i, p := range scenario.SettingsFiles {
		if !filepath.IsAbs(p) {
			scenario.SettingsFiles[i] = filepath.Join(base, p)
		}
	}

	for _, p := range scenario.SettingsFiles {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid scenario: settings file not found: %s", p)
		}
	}

	return scenario, nil
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.Start != "" {
		if _, err := time.Parse(time.RFC3339, s.Start); err != nil {
			return fmt.Errorf("start: %w", err)
		}
	}

	if s.TickInterval != "" {
		d, err := time.ParseDuration(s.TickInterval)
		if err != nil {
			return fmt.Errorf("tick_interval: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("tick_interval must be positive")
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// kind returns the name of the single action set on the step, or an error
// if none or several are set.
func (s *Step) kind() (string, error) {
	var kinds []string
	if s.Subscribe != "" {
		kinds = append(kinds, "subscribe")
	}
	if s.Unsubscribe != "" {
		kinds = append(kinds, "unsubscribe")
	}
	if s.SetRepo != nil {
		kinds = append(kinds, "set_repo")
	}
	if s.SetTheme != nil {
		kinds = append(kinds, "set_theme")
	}
	if s.SetUser != nil {
		kinds = append(kinds, "set_user")
	}
	if s.SignOut {
		kinds = append(kinds, "sign_out")
	}
	if s.SetSettings != nil {
		kinds = append(kinds, "set_settings")
	}
	if s.Advance != "" {
		kinds = append(kinds, "advance")
	}

	switch len(kinds) {
	case 0:
		return "", fmt.Errorf("no action set")
	case 1:
		return kinds[0], nil
	default:
		return "", fmt.Errorf("multiple actions set: %v", kinds)
	}
}

func validateStep(index int, s *Step) error {
	kind, err := s.kind()
	if err != nil {
		return fmt.Errorf("steps[%d]: %w", index, err)
	}

	switch kind {
	case "subscribe":
		if !isKnownSource(s.Subscribe) {
			return fmt.Errorf("steps[%d]: unknown source %q", index, s.Subscribe)
		}
	case "unsubscribe":
		if !isKnownSource(s.Unsubscribe) {
			return fmt.Errorf("steps[%d]: unknown source %q", index, s.Unsubscribe)
		}
	case "set_repo":
		if s.SetRepo.Name == "" {
			return fmt.Errorf("steps[%d].set_repo: name is required", index)
		}
		if s.SetRepo.Date != "" {
			if _, err := time.Parse(time.RFC3339, s.SetRepo.Date); err != nil {
				return fmt.Errorf("steps[%d].set_repo: date: %w", index, err)
			}
		}
	case "advance":
		d, err := time.ParseDuration(s.Advance)
		if err != nil {
			return fmt.Errorf("steps[%d].advance: %w", index, err)
		}
		if d < 0 {
			return fmt.Errorf("steps[%d].advance: duration must not be negative", index)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertEmissions:
		if !isKnownSource(a.Source) {
			return fmt.Errorf("assertions[%d]: known source is required for emissions, got %q", index, a.Source)
		}
	case AssertCount:
		if !isKnownSource(a.Source) {
			return fmt.Errorf("assertions[%d]: known source is required for count, got %q", index, a.Source)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertActiveTickers:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

func isKnownSource(name string) bool {
	for _, s := range SourceNames() {
		if s == name {
			return true
		}
	}
	return false
}
