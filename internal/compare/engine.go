package compare

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rgehrsitz/costshare/internal/calculation"
	"github.com/rgehrsitz/costshare/internal/domain"
	"github.com/rgehrsitz/costshare/internal/transform"
)

// CompareEngine prices claims under a base and an alternative computation
// policy without persisting anything
type CompareEngine struct {
	Collaborators     calculation.Collaborators
	BasePolicy        domain.ComputationPolicy
	Logger            calculation.Logger
	TemplateRegistry  *transform.TemplateRegistry
	TransformRegistry *transform.TransformRegistry
}

// NewCompareEngine creates a comparison engine over the given collaborators
func NewCompareEngine(c calculation.Collaborators, base domain.ComputationPolicy) *CompareEngine {
	return &CompareEngine{
		Collaborators:     c,
		BasePolicy:        base,
		Logger:            calculation.NopLogger{},
		TemplateRegistry:  transform.CreateBuiltInTemplates(),
		TransformRegistry: transform.NewTransformRegistry(),
	}
}

// CompareOptions configures comparison behavior
type CompareOptions struct {
	Template       string   // built-in template applied first, optional
	Transforms     []string // transform specs applied after the template
	Procedures     []int64
	Reimbursements []int64
}

// AlternativePolicy builds the alternative policy from the options and
// returns it with a display name and description
func (ce *CompareEngine) AlternativePolicy(options CompareOptions) (domain.ComputationPolicy, string, string, error) {
	if options.Template == "" && len(options.Transforms) == 0 {
		return ce.BasePolicy, "", "", fmt.Errorf("an alternative needs a template or at least one transform")
	}

	policy := ce.BasePolicy
	var names, descriptions []string
	if options.Template != "" {
		tmpl, ok := ce.TemplateRegistry.Get(options.Template)
		if !ok {
			return ce.BasePolicy, "", "", fmt.Errorf("template %s not found (available: %s)",
				options.Template, strings.Join(ce.TemplateRegistry.List(), ", "))
		}
		var err error
		if policy, err = transform.ApplyTemplate(policy, tmpl); err != nil {
			return ce.BasePolicy, "", "", fmt.Errorf("failed to apply template %s: %w", tmpl.Name, err)
		}
		names = append(names, tmpl.Name)
		descriptions = append(descriptions, tmpl.Description)
	}

	if len(options.Transforms) > 0 {
		transforms, err := ce.TransformRegistry.ParseTransformSpecs(options.Transforms)
		if err != nil {
			return ce.BasePolicy, "", "", err
		}
		if policy, err = transform.ApplyTransforms(policy, transforms); err != nil {
			return ce.BasePolicy, "", "", err
		}
		for _, t := range transforms {
			names = append(names, t.Name())
			descriptions = append(descriptions, t.Description())
		}
	}
	return policy, strings.Join(names, "+"), strings.Join(descriptions, "; "), nil
}

// Compare prices every requested claim under both policies. Each claim is
// priced against the stored ledger independently of the others.
func (ce *CompareEngine) Compare(ctx context.Context, options CompareOptions) (*ComparisonSet, error) {
	altPolicy, name, description, err := ce.AlternativePolicy(options)
	if err != nil {
		return nil, err
	}

	base := ce.newEngine(ce.BasePolicy)
	alt := ce.newEngine(altPolicy)

	compSet := &ComparisonSet{
		BasePolicy:        ce.BasePolicy,
		AlternativeName:   name,
		Description:       description,
		AlternativePolicy: altPolicy,
	}

	for _, id := range options.Procedures {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result := ComparisonResult{
			Claim:       fmt.Sprintf("procedure:%d", id),
			Base:        outcome(base.CalculateForProcedure(ctx, id)),
			Alternative: outcome(alt.CalculateForProcedure(ctx, id)),
		}
		compSet.Results = append(compSet.Results, calculateComparison(result))
	}
	for _, id := range options.Reimbursements {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result := ComparisonResult{
			Claim:       fmt.Sprintf("reimbursement:%d", id),
			Base:        outcome(base.CalculateForReimbursement(ctx, id)),
			Alternative: outcome(alt.CalculateForReimbursement(ctx, id)),
		}
		compSet.Results = append(compSet.Results, calculateComparison(result))
	}

	compSet.Recommendations = GenerateRecommendations(compSet)
	ce.Logger.Infof("compared %d claims under %s: %d changed", len(compSet.Results), name, compSet.Changed())
	return compSet, nil
}

func (ce *CompareEngine) newEngine(policy domain.ComputationPolicy) *calculation.CalculationEngine {
	c := ce.Collaborators
	c.Breakdowns = &previewStore{BreakdownStore: c.Breakdowns}
	engine := calculation.NewCalculationEngine(c, policy)
	engine.SetLogger(ce.Logger)
	return engine
}

func outcome(cb *domain.CostBreakdown, err error) Outcome {
	if err != nil {
		return Outcome{Error: err.Error()}
	}
	return Outcome{Breakdown: cb}
}

// previewStore reads through to the real breakdown store but never writes.
// Appends get the version the real store would assign.
type previewStore struct {
	calculation.BreakdownStore
}

func (ps *previewStore) AppendCostBreakdown(ctx context.Context, cb *domain.CostBreakdown) error {
	var (
		prior *domain.CostBreakdown
		err   error
	)
	switch {
	case cb.TreatmentProcedureID != nil:
		prior, err = ps.LatestForProcedure(ctx, *cb.TreatmentProcedureID)
	case cb.ReimbursementRequestID != nil:
		prior, err = ps.LatestForReimbursement(ctx, *cb.ReimbursementRequestID)
	default:
		return fmt.Errorf("cost breakdown %s has no claim", cb.ID)
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	cb.EffectiveVersion = 1
	if prior != nil {
		cb.EffectiveVersion = prior.EffectiveVersion + 1
	}
	return nil
}
