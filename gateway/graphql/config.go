package graphql

import (
	"fmt"
)

// CostConfig holds the query shape ceilings the analyzer scores against.
type CostConfig struct {
	// MaximumComplexity is the ceiling for the weighted-nesting score.
	MaximumComplexity float64
	// MaximumCost is the ceiling for the field-count based cost score.
	MaximumCost float64
	// MaximumDepth is the recursion cap. Selections deeper than this
	// contribute nothing to either score.
	MaximumDepth int
	// DefaultFieldWeight applies to any field without an override.
	DefaultFieldWeight float64
	// FieldWeights overrides the default weight per field name.
	FieldWeights map[string]float64
	// BaseCostPerField is the per-field unit cost.
	BaseCostPerField float64
	// CostMultiplierPerDepth scales cost with the deepest nesting level.
	CostMultiplierPerDepth float64
}

// Validate applies defaults and checks bounds.
func (c *CostConfig) Validate() error {
	if c.MaximumComplexity == 0 {
		c.MaximumComplexity = 1000
	}
	if c.MaximumCost == 0 {
		c.MaximumCost = 10000
	}
	if c.MaximumDepth == 0 {
		c.MaximumDepth = 15
	}
	if c.MaximumDepth < 1 {
		return fmt.Errorf("maximum depth must be positive, got %d", c.MaximumDepth)
	}
	if c.DefaultFieldWeight == 0 {
		c.DefaultFieldWeight = 1
	}
	if c.BaseCostPerField == 0 {
		c.BaseCostPerField = 1
	}
	if c.CostMultiplierPerDepth == 0 {
		c.CostMultiplierPerDepth = 1.5
	}
	if c.MaximumComplexity < 0 || c.MaximumCost < 0 {
		return fmt.Errorf("ceilings cannot be negative")
	}
	return nil
}

func (c *CostConfig) weightFor(field string) float64 {
	if w, ok := c.FieldWeights[field]; ok {
		return w
	}
	return c.DefaultFieldWeight
}

// SizeLimits bounds the structural size of extracted inputs.
type SizeLimits struct {
	MaxStringLength int
	MaxArrayLength  int
}

// Validate applies defaults and checks bounds.
func (l *SizeLimits) Validate() error {
	if l.MaxStringLength == 0 {
		l.MaxStringLength = 10000
	}
	if l.MaxArrayLength == 0 {
		l.MaxArrayLength = 1000
	}
	if l.MaxStringLength < 0 || l.MaxArrayLength < 0 {
		return fmt.Errorf("size limits cannot be negative")
	}
	return nil
}
