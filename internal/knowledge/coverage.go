package knowledge

import (
	"context"

	"github.com/ziadkadry99/hitl/internal/uncertainty"
)

// Coverage estimates topic coverage as the best similarity between an
// output and the indexed documents. An empty base defers to fallback.
type Coverage struct {
	base     *Base
	fallback uncertainty.CoverageEstimator
}

var _ uncertainty.CoverageEstimator = (*Coverage)(nil)

// NewCoverage creates a coverage estimator over base. A nil fallback uses
// the context-based estimate.
func NewCoverage(base *Base, fallback uncertainty.CoverageEstimator) *Coverage {
	if fallback == nil {
		fallback = uncertainty.ContextCoverage{}
	}
	return &Coverage{base: base, fallback: fallback}
}

func (c *Coverage) Coverage(ctx context.Context, in uncertainty.Input) (float64, error) {
	if c.base == nil || c.base.Count() == 0 {
		return c.fallback.Coverage(ctx, in)
	}
	res, err := c.base.Search(ctx, in.Output, 1)
	if err != nil {
		return 0, err
	}
	if len(res) == 0 {
		return c.fallback.Coverage(ctx, in)
	}
	return uncertainty.Clamp(float64(res[0].Similarity)), nil
}
