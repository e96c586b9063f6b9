package compiler

import (
	"fmt"
	"log/slog"

	"github.com/roach88/corpusql/internal/agql"
	"github.com/roach88/corpusql/internal/ir"
	"github.com/roach88/corpusql/internal/queryir"
	"github.com/roach88/corpusql/internal/querysql"
	"github.com/roach88/corpusql/internal/schema"
)

// DefaultResultTable is the table matches are inserted into when Options
// names none.
const DefaultResultTable = "_result"

// Options control matrix compilation.
type Options struct {
	// Dialect is the SQL dialect to render. Zero means SQLite.
	Dialect querysql.Dialect
	// Access, when set, restricts matches to visible transcripts.
	Access queryir.Restriction
	// ResultTable receives the matches. Empty means DefaultResultTable.
	ResultTable string
	// Expressions compiles participant and transcript filters. When nil a
	// compiler for the schema and dialect is created.
	Expressions *agql.Compiler
	// Force selects a strategy instead of the automatic choice. Zero
	// means automatic.
	Force Strategy
}

// Plan is a compiled search.
type Plan struct {
	Strategy Strategy
	// SQL inserts one row per candidate match into the result table.
	SQL    string
	Params []any
	// Statement is the folded statement SQL was rendered from.
	Statement *queryir.Insert
	// Columns are the result table columns the statement fills.
	Columns []string
	Target  Target
	// TargetLayer is the layer of the target annotation.
	TargetLayer *schema.Layer
	// Scope holds one count query per filter.
	Scope []ScopeCheck
	// Span is set for StrategySpan.
	Span *SpanPlan
	// Fingerprint identifies the matrix.
	Fingerprint string
}

// Compile validates m against s and compiles it into a plan. Every
// problem found is reported in one *CompilationError.
func Compile(m ir.Matrix, s *schema.Schema, opts Options) (*Plan, error) {
	if opts.Dialect == 0 {
		opts.Dialect = querysql.SQLite
	}
	if opts.ResultTable == "" {
		opts.ResultTable = DefaultResultTable
	}
	if opts.Expressions == nil {
		opts.Expressions = agql.NewCompiler(s, opts.Dialect)
	}

	problems := Validate(m, s)
	if len(problems) > 0 {
		return nil, &CompilationError{Problems: problems}
	}
	strategy := opts.Force
	if strategy == 0 {
		strategy = ChooseStrategy(m, s)
	} else if !Applies(strategy, m, s) {
		return nil, &CompilationError{Problems: []string{fmt.Sprintf("the %s strategy cannot compile this matrix", strategy)}}
	}

	f, problems := buildFilters(m, opts.Expressions, opts.Access)
	if len(problems) > 0 {
		return nil, &CompilationError{Problems: problems}
	}

	fingerprint, err := ir.Fingerprint(m)
	if err != nil {
		return nil, fmt.Errorf("fingerprint matrix: %w", err)
	}
	target := ResolveTarget(m, s)
	plan := &Plan{Strategy: strategy, Target: target, Scope: f.checks, Fingerprint: fingerprint}
	var sel *queryir.Select
	switch strategy {
	case StrategyOrthography:
		sel, plan.Columns = buildOrthography(m, s, target, f)
		plan.TargetLayer, _ = s.Orthography()
	case StrategySpan:
		sel, plan.Columns, plan.Span = buildSpan(m, s, f)
		plan.TargetLayer = plan.Span.Layer
		plan.Target = spanTarget(m, s)
	default:
		sel, plan.Columns = buildGeneral(m, s, target, f)
		plan.TargetLayer = targetLayer(s, target)
	}

	ins := queryir.Fold(&queryir.Insert{Table: opts.ResultTable, Columns: plan.Columns, Query: sel}).(*queryir.Insert)
	if res := queryir.Validate(ins); !res.Valid {
		return nil, fmt.Errorf("compile %s plan: malformed statement: %v", strategy, res.Problems)
	}
	sqlText, params, err := querysql.NewSQLCompiler(opts.Dialect).Compile(ins)
	if err != nil {
		return nil, fmt.Errorf("render %s plan: %w", strategy, err)
	}
	plan.Statement, plan.SQL, plan.Params = ins, sqlText, params

	slog.Debug("compiled matrix",
		"strategy", strategy.String(),
		"fingerprint", plan.Fingerprint,
		"columns", len(m.Columns),
		"params", len(params))
	return plan, nil
}

func targetLayer(s *schema.Schema, t Target) *schema.Layer {
	if t.Match < 0 {
		return s.Word()
	}
	l, _ := s.Layer(t.Layer)
	return l
}

func spanTarget(m ir.Matrix, s *schema.Schema) Target {
	for _, id := range m.Columns[0].LayerIDs(s.Index) {
		for j, lm := range m.Columns[0].Layers[id] {
			if lm.Constrains() {
				return Target{Column: 0, Layer: id, Match: j}
			}
		}
	}
	return Target{Match: -1}
}
