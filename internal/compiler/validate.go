package compiler

import (
	"fmt"
	"regexp"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/corpusql/internal/ir"
	"github.com/roach88/corpusql/internal/schema"
)

// Validate returns every structural problem of m against s. A matrix with
// no problems compiles under the general strategy.
func Validate(m ir.Matrix, s *schema.Schema) []string {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if len(m.Columns) == 0 {
		add("matrix has no columns")
		return problems
	}
	if m.MaxMatches < 0 {
		add("max_matches must not be negative, got %d", m.MaxMatches)
	}
	if m.MinAnchorConfidence != nil && *m.MinAnchorConfidence < 0 {
		add("min_anchor_confidence must not be negative, got %d", *m.MinAnchorConfidence)
	}

	targets := 0
	for i, col := range m.Columns {
		if col.Adj < 0 {
			add("column %d: adjacency must not be negative, got %d", i, col.Adj)
		}
		constrained := false
		for _, id := range col.LayerIDs(s.Index) {
			l, ok := s.Layer(id)
			if !ok {
				add("column %d: unknown layer %q", i, id)
				continue
			}
			if !l.IsTemporal() {
				add("column %d: layer %q is not a time-aligned layer", i, id)
				continue
			}
			for j, lm := range col.Layers[id] {
				where := fmt.Sprintf("column %d, layer %q, match %d", i, id, j)
				if lm.IsRegex() && lm.IsRange() {
					add("%s: a constraint is either a pattern or a range, not both", where)
				}
				if lm.Min != nil && lm.Max != nil && *lm.Min >= *lm.Max {
					add("%s: min %g is not below max %g", where, *lm.Min, *lm.Max)
				}
				if lm.IsRegex() {
					if _, err := regexp.Compile(anchorPattern(lm.Pattern)); err != nil {
						add("%s: invalid pattern %q: %v", where, lm.Pattern, err)
					}
				}
				if lm.Not && !lm.IsRegex() {
					add("%s: negation needs a pattern", where)
				}
				if lm.IsAbsence() && id == schema.WordLayer {
					add("%s: every position has a word; the word layer cannot be absent", where)
				}
				if lm.Target {
					targets++
					if lm.IsAbsence() {
						add("%s: an absence constraint cannot be the target", where)
					}
				}
				if lm.Constrains() {
					constrained = true
				}
			}
		}
		if !constrained {
			add("column %d: no constraint restricts anything", i)
		}
	}
	if targets > 1 {
		add("%d constraints are marked as target; at most one is allowed", targets)
	}
	return problems
}

// anchorPattern makes a pattern match whole labels.
func anchorPattern(p string) string {
	return "^(" + norm.NFC.String(p) + ")$"
}
