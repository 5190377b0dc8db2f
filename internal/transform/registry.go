package transform

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rgehrsitz/costshare/internal/domain"
)

// TransformRegistry creates transforms from string parameters for the CLI
type TransformRegistry struct {
	factories map[string]TransformFactory
}

// TransformFactory is a function that creates a transform from parameters.
type TransformFactory func(params map[string]string) (PolicyTransform, error)

// NewTransformRegistry creates a new registry with all built-in transforms registered.
func NewTransformRegistry() *TransformRegistry {
	registry := &TransformRegistry{
		factories: make(map[string]TransformFactory),
	}

	registry.Register("coverage_source", createSetCoverageSource)
	registry.Register("member_plan_lookup", createSetMemberPlanLookup)
	registry.Register("employee_plus_embedding", createSetEmployeePlusEmbedding)
	registry.Register("migration_cutoff", createSetMigrationCutoff)

	return registry
}

// Register adds a transform factory to the registry.
func (r *TransformRegistry) Register(name string, factory TransformFactory) {
	r.factories[name] = factory
}

// Create creates a transform by name with the given parameters.
func (r *TransformRegistry) Create(name string, params map[string]string) (PolicyTransform, error) {
	factory, exists := r.factories[name]
	if !exists {
		return nil, fmt.Errorf("unknown transform: %s", name)
	}
	return factory(params)
}

// List returns the sorted names of all registered transforms.
func (r *TransformRegistry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseTransformSpec parses a transform specification string.
// Format: "transform_name:param1=value1,param2=value2"
// Example: "coverage_source:source=legacy_limits"
func (r *TransformRegistry) ParseTransformSpec(spec string) (PolicyTransform, error) {
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid transform spec format, expected 'name:params', got: %s", spec)
	}

	name := strings.TrimSpace(parts[0])
	paramsStr := strings.TrimSpace(parts[1])

	params := make(map[string]string)
	if paramsStr != "" {
		for _, paramPair := range strings.Split(paramsStr, ",") {
			kv := strings.SplitN(paramPair, "=", 2)
			if len(kv) != 2 {
				return nil, fmt.Errorf("invalid parameter format, expected 'key=value', got: %s", paramPair)
			}
			params[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
	}

	return r.Create(name, params)
}

// ParseTransformSpecs parses every spec, stopping at the first error
func (r *TransformRegistry) ParseTransformSpecs(specs []string) ([]PolicyTransform, error) {
	transforms := make([]PolicyTransform, 0, len(specs))
	for _, spec := range specs {
		t, err := r.ParseTransformSpec(spec)
		if err != nil {
			return nil, err
		}
		transforms = append(transforms, t)
	}
	return transforms, nil
}

func createSetCoverageSource(params map[string]string) (PolicyTransform, error) {
	source, ok := params["source"]
	if !ok {
		return nil, fmt.Errorf("coverage_source requires 'source' parameter")
	}
	return &SetCoverageSource{Source: domain.CoverageSource(source)}, nil
}

func createSetMemberPlanLookup(params map[string]string) (PolicyTransform, error) {
	lookup, ok := params["lookup"]
	if !ok {
		return nil, fmt.Errorf("member_plan_lookup requires 'lookup' parameter")
	}
	return &SetMemberPlanLookup{Lookup: domain.MemberPlanLookup(lookup)}, nil
}

func createSetEmployeePlusEmbedding(params map[string]string) (PolicyTransform, error) {
	mode, ok := params["mode"]
	if !ok {
		return nil, fmt.Errorf("employee_plus_embedding requires 'mode' parameter")
	}
	return &SetEmployeePlusEmbedding{Mode: domain.EmployeePlusEmbedding(mode)}, nil
}

func createSetMigrationCutoff(params map[string]string) (PolicyTransform, error) {
	dateStr, ok := params["date"]
	if !ok {
		return nil, fmt.Errorf("migration_cutoff requires 'date' parameter")
	}
	if strings.EqualFold(dateStr, "none") {
		return &SetMigrationCutoff{}, nil
	}
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return nil, fmt.Errorf("invalid date format, expected YYYY-MM-DD: %w", err)
	}
	return &SetMigrationCutoff{Date: &date}, nil
}
