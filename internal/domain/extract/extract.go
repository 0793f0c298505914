// Package extract pulls impact indicator values out of a ready
// calculation result.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/lcarun/internal/domain/schema"
)

// Defaults used when Options leave a field empty.
const (
	DefaultFallbackLimit = 5
	DefaultClimateLabel  = "GWP100"
	UnknownUnit          = "unknown unit"
)

// DefaultClimateKeywords identify climate-change impact categories.
var DefaultClimateKeywords = []string{"climate", "gwp", "global warming", "气候"}

// Reader is the read side of a calculation result.
type Reader interface {
	ImpactCategories(ctx context.Context) ([]schema.Ref, error)
	TechFlows(ctx context.Context) ([]schema.TechFlow, error)
	TotalImpactValueOf(ctx context.Context, category schema.Ref, techFlow schema.TechFlow) (schema.ImpactValue, error)
}

// Options tune the extraction.
type Options struct {
	ClimateKeywords []string
	// FallbackLimit caps how many categories are shown when no climate
	// category exists.
	FallbackLimit int
	// ClimateLabel replaces the category name on climate lines.
	ClimateLabel string
}

func (o Options) withDefaults() Options {
	if len(o.ClimateKeywords) == 0 {
		o.ClimateKeywords = DefaultClimateKeywords
	}
	if o.FallbackLimit <= 0 {
		o.FallbackLimit = DefaultFallbackLimit
	}
	if o.ClimateLabel == "" {
		o.ClimateLabel = DefaultClimateLabel
	}
	return o
}

// Line is one extracted indicator, or the error that prevented it.
type Line struct {
	Label    string
	Category schema.Ref
	Amount   float64
	Unit     string
	Err      error
}

// Report is the outcome of an extraction.
type Report struct {
	TechFlow schema.TechFlow
	// Climate is set when at least one climate category matched; Lines then
	// only hold climate lines. Otherwise Lines hold the fallback listing.
	Climate bool
	Lines   []Line
	// Empty is set when the result had no impact categories or no
	// technical flows.
	Empty bool
}

// Extract reads categories and technical flows from r, picks the technical
// flow produced by processID, and collects climate indicator values. When
// no category looks climate related it collects the first few categories
// instead; in that mode a failing lookup is recorded on its line rather
// than aborting.
func Extract(ctx context.Context, r Reader, processID string, opts Options) (Report, error) {
	opts = opts.withDefaults()

	categories, err := r.ImpactCategories(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("impact categories: %w", err)
	}
	flows, err := r.TechFlows(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("tech flows: %w", err)
	}
	if len(categories) == 0 || len(flows) == 0 {
		return Report{Empty: true}, nil
	}

	report := Report{TechFlow: SelectTechFlow(flows, processID)}

	for _, category := range categories {
		if category.Name == "" || !IsClimate(category.Name, opts.ClimateKeywords) {
			continue
		}
		value, err := r.TotalImpactValueOf(ctx, category, report.TechFlow)
		if err != nil {
			return report, fmt.Errorf("total impact of %q: %w", category.Name, err)
		}
		report.Climate = true
		report.Lines = append(report.Lines, Line{
			Label:    opts.ClimateLabel,
			Category: category,
			Amount:   value.Amount,
			Unit:     unitOf(category),
		})
	}
	if report.Climate {
		return report, nil
	}

	limit := min(opts.FallbackLimit, len(categories))
	for _, category := range categories[:limit] {
		if category.Name == "" {
			continue
		}
		line := Line{Label: category.Name, Category: category, Unit: unitOf(category)}
		value, err := r.TotalImpactValueOf(ctx, category, report.TechFlow)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			line.Err = err
		} else {
			line.Amount = value.Amount
		}
		report.Lines = append(report.Lines, line)
	}
	return report, nil
}

// SelectTechFlow returns the technical flow provided by processID, or the
// first flow when none is. flows must not be empty.
func SelectTechFlow(flows []schema.TechFlow, processID string) schema.TechFlow {
	for _, tf := range flows {
		if processID != "" && tf.ProviderID() == processID {
			return tf
		}
	}
	return flows[0]
}

// IsClimate reports whether a category name contains any climate keyword,
// compared lower-cased.
func IsClimate(name string, keywords []string) bool {
	lower := strings.ToLower(name)
	for _, k := range keywords {
		if k != "" && strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

func unitOf(category schema.Ref) string {
	if category.RefUnit == "" {
		return UnknownUnit
	}
	return category.RefUnit
}
