package compiler

import (
	"fmt"

	"github.com/roach88/corpusql/internal/agql"
	"github.com/roach88/corpusql/internal/ir"
	"github.com/roach88/corpusql/internal/queryir"
)

// ScopeCheck is a COUNT query over the entities selected by one of the
// matrix's filters. A search whose filter selects nothing is aborted before
// the main query runs.
type ScopeCheck struct {
	// Name is "participant" or "transcript".
	Name   string
	SQL    string
	Params []any
}

// filters holds the restrictions applied to the first column.
type filters struct {
	participants *queryir.Select
	transcripts  *queryir.Select
	mainOnly     bool
	turnTable    string
	access       queryir.Restriction
	checks       []ScopeCheck
}

// filterExpression scopes a user filter to the given layer.
func filterExpression(layer, filter string) string {
	return fmt.Sprintf("layer.id == '%s' && (%s)", layer, filter)
}

// buildFilters compiles the participant and transcript filters of m into
// id subqueries and scope checks.
func buildFilters(m ir.Matrix, exprs *agql.Compiler, access queryir.Restriction) (*filters, []string) {
	f := &filters{mainOnly: m.MainParticipantOnly, turnTable: exprs.Schema().Turn().Table(), access: access}
	var problems []string

	compile := func(name, filter string) *queryir.Select {
		expr := filterExpression(name, filter)
		sel, err := exprs.Select(expr, agql.ProjectIDs, nil, "")
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s filter: %v", name, err))
			return nil
		}
		sqlText, params, err := exprs.Compile(expr, agql.ProjectCount, access, "")
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s filter: %v", name, err))
			return nil
		}
		f.checks = append(f.checks, ScopeCheck{Name: name, SQL: sqlText, Params: params})
		sel.OrderBy = nil
		return sel
	}

	if m.ParticipantQuery != "" {
		f.participants = compile("participant", m.ParticipantQuery)
	}
	if m.TranscriptQuery != "" {
		f.transcripts = compile("transcript", m.TranscriptQuery)
	}
	return f, problems
}

// apply restricts sel through the transcript and turn columns of its first
// column. A nil receiver applies nothing.
func (f *filters) apply(sel *queryir.Select, agID, turn queryir.Col) {
	if f == nil {
		return
	}
	if f.participants != nil || f.mainOnly {
		sel.AddJoin(queryir.Join{
			Table: queryir.Table{Name: f.turnTable, Alias: "turn"},
			On:    queryir.Eq(queryir.C("turn", "annotation_id"), turn),
		})
	}
	if f.participants != nil {
		sel.AddWhere(queryir.InQuery{X: queryir.C("turn", "parent_id"), Query: f.participants})
	}
	if f.mainOnly {
		sel.AddWhere(queryir.Exists{Query: &queryir.Select{
			Fields: []queryir.Field{{Expr: queryir.Num{Value: 1}}},
			From:   queryir.Table{Name: "transcript_speaker", Alias: "main_speaker"},
			Where: []queryir.Expr{
				queryir.Eq(queryir.C("main_speaker", "ag_id"), agID),
				queryir.Eq(queryir.C("main_speaker", "speaker_number"), queryir.C("turn", "parent_id")),
				queryir.Eq(queryir.C("main_speaker", "main_speaker"), queryir.Num{Value: 1}),
			},
		}})
	}
	if f.transcripts != nil {
		sel.AddWhere(queryir.InQuery{X: agID, Query: f.transcripts})
	}
	if f.access != nil {
		sel.AddWhere(f.access.Apply(agID))
	}
}
