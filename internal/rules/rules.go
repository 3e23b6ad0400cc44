// Package rules holds the scoring rules applied to LLM classifications of
// merged pull requests.
package rules

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ericfisherdev/mergemint/internal/domain/port/driven"
)

// Severity is a scoring tier. Points are the base score before the component
// multiplier is applied.
type Severity struct {
	Points      int    `yaml:"points"`
	Description string `yaml:"description"`
}

// Component is an area of the codebase whose changes are weighted by Multiplier.
type Component struct {
	Multiplier  float64 `yaml:"multiplier"`
	Description string  `yaml:"description"`
}

// Eligibility decides which PRs are scored at all.
type Eligibility struct {
	MinChangedLines int      `yaml:"min_changed_lines"`
	ExcludedAuthors []string `yaml:"excluded_authors"`
}

// Rules is the full scoring configuration.
type Rules struct {
	Severities  map[string]Severity  `yaml:"severities"`
	Components  map[string]Component `yaml:"components"`
	Eligibility Eligibility          `yaml:"eligibility"`
}

// Default returns the built-in rules used when no rules file is configured.
func Default() *Rules {
	return &Rules{
		Severities: map[string]Severity{
			"trivial":  {Points: 1, Description: "Typos, formatting, comment-only or dependency bumps."},
			"minor":    {Points: 3, Description: "Small fixes or refactors with local impact."},
			"major":    {Points: 8, Description: "New features or fixes that change user-visible behavior."},
			"critical": {Points: 13, Description: "Security fixes, data-loss fixes or large architectural work."},
		},
		Components: map[string]Component{
			"core":     {Multiplier: 1.5, Description: "Business logic, data model, storage."},
			"api":      {Multiplier: 1.2, Description: "Public endpoints and integrations."},
			"frontend": {Multiplier: 1.0, Description: "User interface code and assets."},
			"infra":    {Multiplier: 1.0, Description: "Build, CI, deployment and tooling."},
			"docs":     {Multiplier: 0.5, Description: "Documentation only."},
			"tests":    {Multiplier: 0.8, Description: "Test-only changes."},
		},
		Eligibility: Eligibility{
			MinChangedLines: 1,
			ExcludedAuthors: []string{"dependabot[bot]", "renovate[bot]", "github-actions[bot]"},
		},
	}
}

// Load reads rules from a YAML file. An empty path returns Default.
func Load(path string) (*Rules, error) {
	if path == "" {
		return Default(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file %s: %w", path, err)
	}

	r, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("rules file %s: %w", path, err)
	}

	return r, nil
}

// Parse decodes and validates YAML rules.
func Parse(raw []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}

	return &r, nil
}

// Validate checks that the rules can score a classification.
func (r *Rules) Validate() error {
	if len(r.Severities) == 0 {
		return errors.New("rules: at least one severity is required")
	}

	for name, s := range r.Severities {
		if strings.TrimSpace(name) == "" {
			return errors.New("rules: severity name must not be empty")
		}
		if s.Points < 0 {
			return fmt.Errorf("rules: severity %q has negative points", name)
		}
	}

	for name, c := range r.Components {
		if c.Multiplier < 0 {
			return fmt.Errorf("rules: component %q has negative multiplier", name)
		}
	}

	if r.Eligibility.MinChangedLines < 0 {
		return errors.New("rules: min_changed_lines must not be negative")
	}

	return nil
}

// Score returns round(points * multiplier). An unknown severity scores as the
// lowest configured severity; an unknown component has multiplier 1.0.
func (r *Rules) Score(severity, component string) int {
	s := r.Severities[r.NormalizeSeverity(severity)]

	multiplier := 1.0
	if c, ok := r.Components[r.NormalizeComponent(component)]; ok {
		multiplier = c.Multiplier
	}

	return int(math.Round(float64(s.Points) * multiplier))
}

// CheckEligibility reports whether a PR by author with changedLines lines
// changed is scored. When it is not, reason explains why.
func (r *Rules) CheckEligibility(author string, changedLines int) (eligible bool, reason string) {
	for _, excluded := range r.Eligibility.ExcludedAuthors {
		if strings.EqualFold(excluded, author) {
			return false, fmt.Sprintf("author %s is excluded from scoring", author)
		}
	}

	if changedLines < r.Eligibility.MinChangedLines {
		return false, fmt.Sprintf("%d changed lines is below the minimum of %d", changedLines, r.Eligibility.MinChangedLines)
	}

	return true, ""
}

// Guide returns the vocabulary handed to the classifier: severities ordered by
// points, components ordered by name.
func (r *Rules) Guide() driven.ScoringGuide {
	severityNames := make([]string, 0, len(r.Severities))
	for name := range r.Severities {
		severityNames = append(severityNames, name)
	}
	sort.Slice(severityNames, func(i, j int) bool {
		pi, pj := r.Severities[severityNames[i]].Points, r.Severities[severityNames[j]].Points
		if pi != pj {
			return pi < pj
		}
		return severityNames[i] < severityNames[j]
	})

	componentNames := make([]string, 0, len(r.Components))
	for name := range r.Components {
		componentNames = append(componentNames, name)
	}
	sort.Strings(componentNames)

	guide := driven.ScoringGuide{
		Severities: make([]driven.GuideEntry, 0, len(severityNames)),
		Components: make([]driven.GuideEntry, 0, len(componentNames)),
	}
	for _, name := range severityNames {
		guide.Severities = append(guide.Severities, driven.GuideEntry{Name: name, Description: r.Severities[name].Description})
	}
	for _, name := range componentNames {
		guide.Components = append(guide.Components, driven.GuideEntry{Name: name, Description: r.Components[name].Description})
	}

	return guide
}

// NormalizeSeverity maps a classifier answer onto a configured severity name,
// falling back to the lowest severity.
func (r *Rules) NormalizeSeverity(name string) string {
	name = strings.TrimSpace(name)
	if _, ok := r.Severities[name]; ok {
		return name
	}
	for candidate := range r.Severities {
		if strings.EqualFold(candidate, name) {
			return candidate
		}
	}
	return r.lowestSeverityName()
}

// NormalizeComponent maps a classifier answer onto a configured component
// name. Unknown components are returned trimmed as-is.
func (r *Rules) NormalizeComponent(name string) string {
	name = strings.TrimSpace(name)
	if _, ok := r.Components[name]; ok {
		return name
	}
	for candidate := range r.Components {
		if strings.EqualFold(candidate, name) {
			return candidate
		}
	}
	return name
}

func (r *Rules) lowestSeverityName() string {
	lowest := ""
	for name, s := range r.Severities {
		if lowest == "" {
			lowest = name
			continue
		}
		cur := r.Severities[lowest]
		if s.Points < cur.Points || (s.Points == cur.Points && name < lowest) {
			lowest = name
		}
	}
	return lowest
}
