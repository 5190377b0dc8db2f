// Package transform builds alternative computation policies from a base policy.
// Transforms are small composable edits (switch the coverage source, set a
// migration cutoff, ...) used by the compare command to price the same claims
// under two policies.
package transform

import (
	"fmt"

	"github.com/rgehrsitz/costshare/internal/config"
	"github.com/rgehrsitz/costshare/internal/domain"
)

// PolicyTransform is one edit of a computation policy
type PolicyTransform interface {
	// Apply returns the edited policy; the base is not modified.
	Apply(base domain.ComputationPolicy) (domain.ComputationPolicy, error)

	// Name returns the registry name of the transform (e.g. "coverage_source").
	Name() string

	// Description returns a human-readable summary of the edit.
	Description() string
}

// ApplyTransforms applies transforms in order and validates the resulting policy
func ApplyTransforms(base domain.ComputationPolicy, transforms []PolicyTransform) (domain.ComputationPolicy, error) {
	current := clonePolicy(base)
	for i, t := range transforms {
		if t == nil {
			return base, fmt.Errorf("transform at index %d is nil", i)
		}
		next, err := t.Apply(current)
		if err != nil {
			return base, NewTransformError(t.Name(), "apply", "cannot apply", err)
		}
		current = next
	}
	if err := config.ValidatePolicy(&current); err != nil {
		return base, NewTransformError("policy", "validate", "resulting policy is invalid", err)
	}
	return current, nil
}

// clonePolicy copies p so the cutoff pointer is not shared
func clonePolicy(p domain.ComputationPolicy) domain.ComputationPolicy {
	if p.MigrationCutoff != nil {
		cutoff := *p.MigrationCutoff
		p.MigrationCutoff = &cutoff
	}
	return p
}

// TransformError represents an error that occurred during transformation.
type TransformError struct {
	TransformName string
	Operation     string
	Reason        string
	Err           error
}

func (e *TransformError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transform %s (%s): %s: %v", e.TransformName, e.Operation, e.Reason, e.Err)
	}
	return fmt.Sprintf("transform %s (%s): %s", e.TransformName, e.Operation, e.Reason)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

// NewTransformError creates a new TransformError.
func NewTransformError(transformName, operation, reason string, err error) error {
	return &TransformError{
		TransformName: transformName,
		Operation:     operation,
		Reason:        reason,
		Err:           err,
	}
}
