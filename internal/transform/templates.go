package transform

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rgehrsitz/costshare/internal/domain"
)

// TemplateRegistry manages named policy templates
type TemplateRegistry struct {
	templates map[string]Template
}

// Template represents a named collection of transforms
type Template struct {
	Name        string
	Description string
	Transforms  []PolicyTransform
}

// NewTemplateRegistry creates an empty template registry
func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{
		templates: make(map[string]Template),
	}
}

// Register adds a template to the registry
func (tr *TemplateRegistry) Register(t Template) {
	tr.templates[strings.ToLower(t.Name)] = t
}

// Get retrieves a template by name (case-insensitive)
func (tr *TemplateRegistry) Get(name string) (Template, bool) {
	t, ok := tr.templates[strings.ToLower(name)]
	return t, ok
}

// List returns all registered template names, sorted
func (tr *TemplateRegistry) List() []string {
	names := make([]string, 0, len(tr.templates))
	for name := range tr.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreateBuiltInTemplates returns the templates for the coverage migration
func CreateBuiltInTemplates() *TemplateRegistry {
	registry := NewTemplateRegistry()

	registry.Register(Template{
		Name:        "legacy_limits",
		Description: "Resolve limits from the plan's flat deductible and OOP columns",
		Transforms: []PolicyTransform{
			&SetCoverageSource{Source: domain.CoverageFromLegacyLimits},
		},
	})

	registry.Register(Template{
		Name:        "pre_migration",
		Description: "Legacy limits with single-plan member lookup",
		Transforms: []PolicyTransform{
			&SetCoverageSource{Source: domain.CoverageFromLegacyLimits},
			&SetMemberPlanLookup{Lookup: domain.LookupSinglePlan},
		},
	})

	registry.Register(Template{
		Name:        "employee_plus_embedded",
		Description: "Legacy limits with every EMPLOYEE_PLUS plan treated as embedded",
		Transforms: []PolicyTransform{
			&SetCoverageSource{Source: domain.CoverageFromLegacyLimits},
			&SetEmployeePlusEmbedding{Mode: domain.EmbeddingAlwaysEmbedded},
		},
	})

	registry.Register(Template{
		Name:        "coverage_rows",
		Description: "Coverage rows with effective-dated member lookup",
		Transforms: []PolicyTransform{
			&SetCoverageSource{Source: domain.CoverageFromRows},
			&SetMemberPlanLookup{Lookup: domain.LookupEffectiveDated},
		},
	})

	return registry
}

// ApplyTemplate applies every transform of a template to base
func ApplyTemplate(base domain.ComputationPolicy, t Template) (domain.ComputationPolicy, error) {
	if len(t.Transforms) == 0 {
		return base, fmt.Errorf("template %s has no transforms", t.Name)
	}
	return ApplyTransforms(base, t.Transforms)
}
