package compiler

import (
	"fmt"

	"github.com/roach88/corpusql/internal/ir"
	"github.com/roach88/corpusql/internal/schema"
)

// Strategy names a query shape for a matrix.
type Strategy int

const (
	// StrategyGeneral chains per-column joins anchored on word positions.
	// It is valid for every matrix.
	StrategyGeneral Strategy = iota + 1
	// StrategyOrthography self-joins the orthography layer on word ordinal.
	StrategyOrthography
	// StrategySpan queries one free-form span layer directly; word tokens
	// are assigned afterwards.
	StrategySpan
)

func (s Strategy) String() string {
	switch s {
	case StrategyGeneral:
		return "general"
	case StrategyOrthography:
		return "orthography"
	case StrategySpan:
		return "span"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy parses a strategy name.
func ParseStrategy(name string) (Strategy, error) {
	for _, s := range []Strategy{StrategyGeneral, StrategyOrthography, StrategySpan} {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown strategy %q", name)
}

// ChooseStrategy picks the query shape for a valid matrix by static
// analysis. The choice never depends on the data.
func ChooseStrategy(m ir.Matrix, s *schema.Schema) Strategy {
	if spanApplies(m, s) {
		return StrategySpan
	}
	if orthographyApplies(m, s) {
		return StrategyOrthography
	}
	return StrategyGeneral
}

// Applies reports whether strategy st can compile m.
func Applies(st Strategy, m ir.Matrix, s *schema.Schema) bool {
	switch st {
	case StrategyGeneral:
		return true
	case StrategyOrthography:
		return orthographyApplies(m, s)
	case StrategySpan:
		return spanApplies(m, s)
	}
	return false
}

// spanApplies: one column holding exactly one constraint, which is a
// positive constraint on a free-form layer, and no filters.
func spanApplies(m ir.Matrix, s *schema.Schema) bool {
	if len(m.Columns) != 1 || m.HasFilters() || m.MinAnchorConfidence != nil {
		return false
	}
	var found *ir.LayerMatch
	for id, matches := range m.Columns[0].Layers {
		for j := range matches {
			lm := matches[j]
			if !lm.Constrains() {
				continue
			}
			if found != nil {
				return false
			}
			l, ok := s.Layer(id)
			if !ok || !l.IsTemporal() || l.Scope != schema.ScopeFreeform {
				return false
			}
			found = &lm
		}
	}
	return found != nil && !found.IsEmpty() && !found.IsAbsence()
}

// orthographyApplies: every constraint is a plain pattern on the
// orthography layer, no filters, no anchoring and adjacency 1 throughout.
func orthographyApplies(m ir.Matrix, s *schema.Schema) bool {
	if _, ok := s.Orthography(); !ok {
		return false
	}
	if len(m.Columns) == 0 || m.HasFilters() || m.MinAnchorConfidence != nil {
		return false
	}
	for i, col := range m.Columns {
		if i < len(m.Columns)-1 && col.Adjacency() != 1 {
			return false
		}
		constrained := false
		for id, matches := range col.Layers {
			for _, lm := range matches {
				if !lm.Constrains() {
					continue
				}
				if id != schema.OrthographyLayer || !lm.IsRegex() || lm.IsRange() || lm.IsAbsence() ||
					lm.AnchorStart || lm.AnchorEnd {
					return false
				}
				constrained = true
			}
		}
		if !constrained {
			return false
		}
	}
	return true
}
