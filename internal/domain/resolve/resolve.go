// Package resolve locates database entities by name with the fallback
// chain exact name -> keyword scan -> first available.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/lcarun/internal/domain/schema"
)

// ErrNoMatch is returned when every enabled tier came up empty.
var ErrNoMatch = errors.New("no matching entity")

// Catalog is the read side of the application database.
type Catalog interface {
	Find(ctx context.Context, t schema.RefType, name string) (schema.Ref, error)
	Descriptors(ctx context.Context, t schema.RefType) ([]schema.Ref, error)
}

// Tier names the step of the fallback chain that produced a match.
type Tier string

// Fallback tiers in the order they are tried.
const (
	TierExact   Tier = "exact"
	TierKeyword Tier = "keyword"
	TierFirst   Tier = "first"
)

// Query describes what to look for.
type Query struct {
	// Name is tried first as an exact lookup. Empty skips the lookup.
	Name string
	// Keywords match case-insensitively anywhere in a descriptor name.
	Keywords []string
	// RawKeywords match case-sensitively anywhere in a descriptor name.
	RawKeywords []string
	// FirstAvailable accepts the first descriptor when no keyword matched.
	FirstAvailable bool
}

// Match is a resolved entity.
type Match struct {
	Ref  schema.Ref
	Tier Tier
	// LookupErr is why the exact lookup did not produce the match, if it
	// was attempted.
	LookupErr error
}

// ProcessQuery is the default query for the target process: exact name,
// then keyword scan, no first-available fallback.
func ProcessQuery(name string, keywords ...string) Query {
	return Query{Name: name, Keywords: keywords}
}

// MethodQuery is the default query for the impact method: exact name,
// then keyword scan, then the first available method.
func MethodQuery(name string, keywords, rawKeywords []string) Query {
	return Query{Name: name, Keywords: keywords, RawKeywords: rawKeywords, FirstAvailable: true}
}

// Resolve runs the fallback chain for entities of type t.
func Resolve(ctx context.Context, catalog Catalog, t schema.RefType, q Query) (Match, error) {
	var lookupErr error
	if q.Name != "" {
		ref, err := catalog.Find(ctx, t, q.Name)
		if err == nil && !ref.IsZero() {
			return Match{Ref: ref, Tier: TierExact}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Match{}, ctxErr
		}
		lookupErr = err
		if lookupErr == nil {
			lookupErr = fmt.Errorf("%s %q: empty descriptor", t, q.Name)
		}
	}

	all, err := catalog.Descriptors(ctx, t)
	if err != nil {
		return Match{}, fmt.Errorf("list %s descriptors: %w", t, err)
	}

	if ref, ok := firstMatching(all, q.Keywords, q.RawKeywords); ok {
		return Match{Ref: ref, Tier: TierKeyword, LookupErr: lookupErr}, nil
	}

	if q.FirstAvailable && len(all) > 0 {
		return Match{Ref: all[0], Tier: TierFirst, LookupErr: lookupErr}, nil
	}

	return Match{}, fmt.Errorf("%w: %s %q (keywords %v)", ErrNoMatch, t, q.Name, append(append([]string{}, q.Keywords...), q.RawKeywords...))
}

// Process resolves the target process.
func Process(ctx context.Context, catalog Catalog, q Query) (Match, error) {
	return Resolve(ctx, catalog, schema.RefProcess, q)
}

// Method resolves the impact assessment method.
func Method(ctx context.Context, catalog Catalog, q Query) (Match, error) {
	return Resolve(ctx, catalog, schema.RefImpactMethod, q)
}

// firstMatching returns the first descriptor, in catalog order, whose name
// contains any keyword.
func firstMatching(refs []schema.Ref, keywords, rawKeywords []string) (schema.Ref, bool) {
	if len(keywords) == 0 && len(rawKeywords) == 0 {
		return schema.Ref{}, false
	}
	for _, ref := range refs {
		if ContainsAny(ref.Name, keywords, rawKeywords) {
			return ref, true
		}
	}
	return schema.Ref{}, false
}

// ContainsAny reports whether name contains any of keywords (compared
// lower-cased) or any of rawKeywords (compared verbatim). Empty keywords
// never match.
func ContainsAny(name string, keywords, rawKeywords []string) bool {
	lower := strings.ToLower(name)
	for _, k := range keywords {
		if k != "" && strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	for _, k := range rawKeywords {
		if k != "" && strings.Contains(name, k) {
			return true
		}
	}
	return false
}
