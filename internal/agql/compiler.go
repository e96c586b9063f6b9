package agql

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/roach88/corpusql/internal/queryir"
	"github.com/roach88/corpusql/internal/querysql"
	"github.com/roach88/corpusql/internal/schema"
)

// Projections accepted by Compile.
const (
	// ProjectRows selects the identifying columns of each annotation,
	// including its uid.
	ProjectRows = "rows"
	// ProjectIDs selects only the numeric key (ag_id for transcripts,
	// speaker_number for participants, annotation_id otherwise).
	ProjectIDs = "ids"
	// ProjectCount selects COUNT(*).
	ProjectCount = "count"
)

// DefaultCacheSize is the number of compiled expressions kept per compiler.
const DefaultCacheSize = 256

type cacheKey struct {
	expression string
	projection string
	limit      string
	access     string
}

type compiled struct {
	sql    string
	params []any
}

// Compiler compiles AGQL expressions over one schema to one SQL dialect.
// It is safe for concurrent use.
type Compiler struct {
	schema *schema.Schema
	sql    *querysql.SQLCompiler
	cache  *lru.Cache[cacheKey, compiled]
}

// NewCompiler returns a compiler with a cache of DefaultCacheSize entries.
func NewCompiler(s *schema.Schema, d querysql.Dialect) *Compiler {
	cache, err := lru.New[cacheKey, compiled](DefaultCacheSize)
	if err != nil {
		panic(fmt.Sprintf("agql: creating cache: %v", err))
	}
	return &Compiler{schema: s, sql: querysql.NewSQLCompiler(d), cache: cache}
}

// Schema returns the schema expressions are compiled against.
func (c *Compiler) Schema() *schema.Schema { return c.schema }

// Dialect returns the SQL dialect queries are rendered in.
func (c *Compiler) Dialect() querysql.Dialect { return c.sql.Dialect }

// Compile translates expression to a parameterized query.
//
// projection is one of ProjectRows (the default when empty), ProjectIDs or
// ProjectCount. access, when non-nil, restricts the transcripts visible to
// the caller. limit is empty, "n", "LIMIT n", "LIMIT n OFFSET m" or
// "LIMIT m, n".
//
// Every problem found is reported in a single *CompilationError.
func (c *Compiler) Compile(expression, projection string, access queryir.Restriction, limit string) (string, []any, error) {
	key := cacheKey{expression: expression, projection: projection, limit: limit, access: c.accessKey(access)}
	if hit, ok := c.cache.Get(key); ok {
		return hit.sql, append([]any(nil), hit.params...), nil
	}

	sel, err := c.Select(expression, projection, access, limit)
	if err != nil {
		return "", nil, err
	}
	sqlText, params, err := c.sql.Compile(sel)
	if err != nil {
		return "", nil, fmt.Errorf("render %q: %w", expression, err)
	}
	c.cache.Add(key, compiled{sql: sqlText, params: params})
	slog.Debug("compiled expression", "expression", expression, "sql", sqlText)
	return sqlText, append([]any(nil), params...), nil
}

// Select translates expression to a folded query tree without rendering
// it, for embedding in larger queries.
func (c *Compiler) Select(expression, projection string, access queryir.Restriction, limit string) (*queryir.Select, error) {
	var problems []string
	root, bad := Parse(expression)
	for _, b := range bad {
		problems = append(problems, fmt.Sprintf("%s: %q", b.Msg, b.Text))
	}

	layer, err := Deduce(root, c.schema)
	if err != nil {
		problems = append(problems, err.Error())
		return nil, &CompilationError{Expression: expression, Problems: problems}
	}

	sc := newScope(expression, c.schema, layer)
	if v, ok := sc.translate(root); ok {
		if v.kind != kindBool {
			sc.problem(root, "expression is not a condition")
		} else {
			sc.sel.AddWhere(v.expr)
		}
	}
	sc.restrict(access)
	if err := sc.project(projection); err != nil {
		sc.problems = append(sc.problems, err.Error())
	}
	if err := applyLimit(sc.sel, limit); err != nil {
		sc.problems = append(sc.problems, err.Error())
	}

	problems = append(problems, sc.problems...)
	if len(problems) > 0 {
		return nil, &CompilationError{Expression: expression, Problems: problems}
	}
	return queryir.FoldSelect(sc.sel), nil
}

// accessKey renders a restriction over a placeholder column so that
// equivalent restrictions share cache entries.
func (c *Compiler) accessKey(access queryir.Restriction) string {
	if access == nil {
		return ""
	}
	text, params, err := c.sql.CompileExpr(access.Apply(queryir.C("", "ag_id")))
	if err != nil {
		return fmt.Sprintf("unrenderable:%p", access)
	}
	return fmt.Sprintf("%s %v", text, params)
}

// restrict applies access to the selected rows. Participants and their
// attributes are visible when they appear in a visible transcript.
func (sc *scope) restrict(access queryir.Restriction) {
	if access == nil {
		return
	}
	if ag, ok := sc.agID(); ok {
		sc.sel.AddWhere(access.Apply(ag))
		return
	}
	spk, _ := sc.speaker()
	la := "access_link"
	sc.sel.AddWhere(queryir.Exists{Query: &queryir.Select{
		Fields: []queryir.Field{{Expr: queryir.Num{Value: 1}}},
		From:   queryir.Table{Name: "transcript_speaker", Alias: la},
		Where: []queryir.Expr{
			queryir.Eq(queryir.C(la, "speaker_number"), spk),
			access.Apply(queryir.C(la, "ag_id")),
		},
	}})
}

// project sets the select list and ordering.
func (sc *scope) project(projection string) error {
	switch projection {
	case "", ProjectRows:
		sc.sel.Fields = sc.rowFields()
	case ProjectIDs:
		sc.sel.Fields = []queryir.Field{{Expr: sc.key()}}
	case ProjectCount:
		sc.sel.Fields = []queryir.Field{{Expr: queryir.Count(), Alias: "n"}}
		return nil
	default:
		return fmt.Errorf("unknown projection %q", projection)
	}
	sc.sel.OrderBy = []queryir.Order{{Expr: sc.key()}}
	return nil
}

func (sc *scope) rowFields() []queryir.Field {
	f := func(name string) queryir.Field { return queryir.Field{Expr: sc.col(name)} }
	uid := queryir.Field{Expr: sc.uid(), Alias: "uid"}
	switch sc.cat {
	case catTranscript:
		return []queryir.Field{uid, f("ag_id"), f("corpus_name"), f("episode_name")}
	case catParticipant:
		return []queryir.Field{uid, f("speaker_number"), {Expr: sc.col("name"), Alias: "label"}}
	case catParticipantAttribute:
		return []queryir.Field{uid, f("annotation_id"), f("speaker_number"), f("label"), f("label_status"), f("ordinal")}
	case catTranscriptAttribute:
		return []queryir.Field{uid, f("annotation_id"), f("ag_id"), f("label"), f("label_status"), f("ordinal")}
	default:
		return []queryir.Field{uid, f("annotation_id"), f("ag_id"), f("label"), f("label_status"), f("ordinal"),
			f("parent_id"), f("start_anchor_id"), f("end_anchor_id")}
	}
}

// applyLimit parses a limit clause into bound LIMIT/OFFSET values.
func applyLimit(s *queryir.Select, limit string) error {
	words := strings.Fields(strings.ReplaceAll(limit, ",", " , "))
	if len(words) == 0 {
		return nil
	}
	if strings.EqualFold(words[0], "LIMIT") {
		words = words[1:]
	}
	num := func(w string) (queryir.Expr, bool) {
		n, err := strconv.ParseInt(w, 10, 64)
		if err != nil || n < 0 {
			return nil, false
		}
		return queryir.L(n), true
	}
	bad := fmt.Errorf("invalid limit clause %q", limit)
	switch {
	case len(words) == 1:
		n, ok := num(words[0])
		if !ok {
			return bad
		}
		s.Limit = n
	case len(words) == 3 && words[1] == ",":
		off, ok1 := num(words[0])
		n, ok2 := num(words[2])
		if !ok1 || !ok2 {
			return bad
		}
		s.Limit, s.Offset = n, off
	case len(words) == 3 && strings.EqualFold(words[1], "OFFSET"):
		n, ok1 := num(words[0])
		off, ok2 := num(words[2])
		if !ok1 || !ok2 {
			return bad
		}
		s.Limit, s.Offset = n, off
	default:
		return bad
	}
	return nil
}
