package agql

import (
	"github.com/roach88/corpusql/internal/matchid"
	"github.com/roach88/corpusql/internal/queryir"
	"github.com/roach88/corpusql/internal/schema"
)

type relMode int

const (
	relLabels relMode = iota + 1
	relAll
	relFirst
	relLast
)

// relation is the set of annotations on another layer that are linked to
// the selected annotation, as named by labels('L'), all('L'), first('L')
// or last('L').
type relation struct {
	mode       relMode
	layer      *schema.Layer
	from       queryir.Table
	joins      []queryir.Join
	where      []queryir.Expr
	label      queryir.Expr
	uid        queryir.Expr
	ordinal    queryir.Expr
	confidence queryir.Expr
	key        queryir.Expr
}

// query selects fields from the related annotations. first and last keep
// only the lowest or highest ordinal.
func (r *relation) query(fields ...queryir.Expr) *queryir.Select {
	s := &queryir.Select{
		From:  r.from,
		Joins: append([]queryir.Join(nil), r.joins...),
		Where: append([]queryir.Expr(nil), r.where...),
	}
	for _, f := range fields {
		s.Fields = append(s.Fields, queryir.Field{Expr: f})
	}
	if r.mode == relFirst || r.mode == relLast {
		desc := r.mode == relLast
		s.OrderBy = []queryir.Order{{Expr: r.ordinal, Desc: desc}, {Expr: r.key, Desc: desc}}
		s.Limit = queryir.Num{Value: 1}
	}
	return s
}

// count is the number of related annotations.
func (r *relation) count() queryir.Expr {
	return queryir.Subquery{Query: &queryir.Select{
		Fields: []queryir.Field{{Expr: queryir.Count()}},
		From:   r.from,
		Joins:  r.joins,
		Where:  r.where,
	}}
}

// scopeKeys names the foreign key shared by annotations within one unit of
// each temporal scope.
var scopeKeys = map[schema.Scope]string{
	schema.ScopeFreeform: "ag_id",
	schema.ScopeMeta:     "turn_annotation_id",
	schema.ScopeWord:     "word_annotation_id",
	schema.ScopeSegment:  "segment_annotation_id",
}

// relate builds the relation from the selected annotation to layer id.
func (sc *scope) relate(n Node, id string, mode relMode) (*relation, bool) {
	target, ok := sc.schema.Layer(id)
	if !ok {
		sc.problem(n, "unknown layer %q", id)
		return nil, false
	}
	alias := sc.nextAlias("rel")
	rc := func(name string) queryir.Col { return queryir.C(alias, name) }
	r := &relation{mode: mode, layer: target, from: queryir.Table{Name: target.Table(), Alias: alias}}

	// link joins the transcript_speaker table so a transcript-keyed
	// relation can follow a speaker-keyed selection, or the reverse.
	link := func(on queryir.Col, onCol string, whereCol string, whereVal queryir.Expr) {
		la := sc.nextAlias("link")
		r.joins = append(r.joins, queryir.Join{
			Table: queryir.Table{Name: "transcript_speaker", Alias: la},
			On:    queryir.Eq(queryir.C(la, onCol), on),
		})
		r.where = append(r.where, queryir.Eq(queryir.C(la, whereCol), whereVal))
	}

	linked := false
	switch target.Kind {
	case schema.KindTranscript:
		r.label, r.uid, r.ordinal, r.key = rc("transcript_id"), rc("transcript_id"), rc("ag_id"), rc("ag_id")
		if ag, ok := sc.agID(); ok {
			r.where = append(r.where, queryir.Eq(rc("ag_id"), ag))
			linked = true
		} else if spk, ok := sc.speaker(); ok {
			link(rc("ag_id"), "ag_id", "speaker_number", spk)
			linked = true
		}

	case schema.KindParticipant:
		r.label, r.ordinal, r.key = rc("name"), rc("speaker_number"), rc("speaker_number")
		r.uid = queryir.IDRef{Prefix: matchid.ParticipantPrefix, Col: rc("speaker_number")}
		if spk, ok := sc.speaker(); ok {
			r.where = append(r.where, queryir.Eq(rc("speaker_number"), spk))
			linked = true
		} else if ag, ok := sc.agID(); ok {
			link(rc("speaker_number"), "speaker_number", "ag_id", ag)
			linked = true
		}

	case schema.KindAttribute:
		r.label, r.ordinal, r.confidence, r.key = rc("label"), rc("ordinal"), rc("label_status"), rc("annotation_id")
		r.uid = queryir.IDRef{Prefix: target.UIDPrefix(), Col: rc("annotation_id")}
		r.where = append(r.where, queryir.Eq(rc("layer"), queryir.L(target.Attribute)))
		if target.Class == schema.ClassParticipant {
			if spk, ok := sc.speaker(); ok {
				r.where = append(r.where, queryir.Eq(rc("speaker_number"), spk))
				linked = true
			} else if ag, ok := sc.agID(); ok {
				link(rc("speaker_number"), "speaker_number", "ag_id", ag)
				linked = true
			}
		} else {
			if ag, ok := sc.agID(); ok {
				r.where = append(r.where, queryir.Eq(rc("ag_id"), ag))
				linked = true
			} else if spk, ok := sc.speaker(); ok {
				link(rc("ag_id"), "ag_id", "speaker_number", spk)
				linked = true
			}
		}

	case schema.KindTemporal:
		r.label, r.ordinal, r.confidence, r.key = rc("label"), rc("ordinal"), rc("label_status"), rc("annotation_id")
		r.uid = queryir.IDRef{Prefix: target.UIDPrefix(), Col: rc("annotation_id")}
		switch {
		case sc.cat == catTemporal:
			sc.linkTemporal(r, alias)
			linked = true
		case sc.cat == catTranscript || sc.cat == catTranscriptAttribute:
			ag, _ := sc.agID()
			r.where = append(r.where, queryir.Eq(rc("ag_id"), ag))
			linked = true
		case target.Scope.Rank() >= schema.ScopeMeta.Rank():
			// a participant's annotations are those within their turns
			spk, _ := sc.speaker()
			ta := sc.nextAlias("link")
			r.joins = append(r.joins, queryir.Join{
				Table: queryir.Table{Name: sc.schema.Turn().Table(), Alias: ta},
				On:    queryir.Eq(queryir.C(ta, "annotation_id"), rc("turn_annotation_id")),
			})
			r.where = append(r.where, queryir.Eq(queryir.C(ta, "parent_id"), spk))
			linked = true
		}
	}

	if !linked {
		sc.problem(n, "no link from %s layer %q to layer %q", sc.cat, sc.layer.ID, target.ID)
		return nil, false
	}
	return r, true
}

// linkTemporal relates two temporal layers through the foreign key of the
// coarser scope. When the scopes differ, the finer annotation must also
// start within the coarser one.
func (sc *scope) linkTemporal(r *relation, alias string) {
	cur, other := sc.layer.Scope, r.layer.Scope
	coarse := cur
	if other.Rank() < cur.Rank() {
		coarse = other
	}
	fk := scopeKeys[coarse]
	r.where = append(r.where, queryir.Eq(queryir.C(alias, fk), sc.col(fk)))
	if cur == other {
		return
	}

	relAnchor := func(suffix, fk string) queryir.Col {
		a := alias + suffix
		r.joins = append(r.joins, queryir.Join{
			Table: queryir.Table{Name: "anchor", Alias: a},
			On:    queryir.Eq(queryir.C(a, "anchor_id"), queryir.C(alias, fk)),
		})
		return queryir.C(a, "time_offset")
	}

	if other.Rank() < cur.Rank() {
		// related annotation is coarser: it contains the selected one
		start := relAnchor("_start", "start_anchor_id")
		end := relAnchor("_end", "end_anchor_id")
		at := queryir.C(sc.anchor(false), "time_offset")
		r.where = append(r.where, queryir.Le(start, at), queryir.Lt(at, end))
		return
	}
	start := relAnchor("_start", "start_anchor_id")
	from := queryir.C(sc.anchor(false), "time_offset")
	to := queryir.C(sc.anchor(true), "time_offset")
	r.where = append(r.where, queryir.Le(from, start), queryir.Lt(start, to))
}
