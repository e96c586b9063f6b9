package agql

import (
	"fmt"
	"strings"

	"github.com/roach88/corpusql/internal/matchid"
	"github.com/roach88/corpusql/internal/queryir"
	"github.com/roach88/corpusql/internal/schema"
)

// category groups layers by the shape of the table backing them.
type category int

const (
	catTranscript category = iota + 1
	catParticipant
	catParticipantAttribute
	catTranscriptAttribute
	catTemporal
)

func (c category) String() string {
	switch c {
	case catTranscript:
		return "transcript"
	case catParticipant:
		return "participant"
	case catParticipantAttribute:
		return "participant attribute"
	case catTranscriptAttribute:
		return "transcript attribute"
	case catTemporal:
		return "temporal"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

func categoryOf(l *schema.Layer) category {
	switch l.Kind {
	case schema.KindTranscript:
		return catTranscript
	case schema.KindParticipant:
		return catParticipant
	case schema.KindAttribute:
		if l.Class == schema.ClassParticipant {
			return catParticipantAttribute
		}
		return catTranscriptAttribute
	default:
		return catTemporal
	}
}

// Table aliases of the outer query.
const (
	aliasGraph       = "graph"
	aliasParticipant = "participant"
	aliasAnnotation  = "annotation"
	aliasStart       = "annotation_start"
	aliasEnd         = "annotation_end"
	aliasTurn        = "annotation_turn"
)

// scope is the state threaded through translation: the layer being
// selected, the outer query (which accumulates joins needed by property
// references) and the problems found so far.
type scope struct {
	src      string
	schema   *schema.Schema
	layer    *schema.Layer
	cat      category
	alias    string
	sel      *queryir.Select
	problems []string
	seq      int
}

func newScope(src string, s *schema.Schema, l *schema.Layer) *scope {
	sc := &scope{src: src, schema: s, layer: l, cat: categoryOf(l)}
	switch sc.cat {
	case catTranscript:
		sc.alias = aliasGraph
	case catParticipant:
		sc.alias = aliasParticipant
	default:
		sc.alias = aliasAnnotation
	}
	sc.sel = &queryir.Select{From: queryir.Table{Name: l.Table(), Alias: sc.alias}}
	if l.Kind == schema.KindAttribute {
		sc.sel.AddWhere(queryir.Eq(sc.col("layer"), queryir.L(l.Attribute)))
	}
	return sc
}

func (sc *scope) col(name string) queryir.Col {
	return queryir.C(sc.alias, name)
}

// problem records a translation problem triggered by n.
func (sc *scope) problem(n Node, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if n != nil {
		pos, end := n.Span()
		if pos >= 0 && end <= len(sc.src) && pos < end {
			msg = fmt.Sprintf("%s: %q", msg, sc.src[pos:end])
		}
	}
	sc.problems = append(sc.problems, msg)
}

// nextAlias returns a fresh alias for a subquery table.
func (sc *scope) nextAlias(base string) string {
	sc.seq++
	return fmt.Sprintf("%s_%d", base, sc.seq)
}

// uid reconstructs the uid of the selected annotation.
func (sc *scope) uid() queryir.Expr {
	switch sc.cat {
	case catTranscript:
		return sc.col("transcript_id")
	case catParticipant:
		return queryir.IDRef{Prefix: matchid.ParticipantPrefix, Col: sc.col("speaker_number")}
	default:
		return queryir.IDRef{Prefix: sc.layer.UIDPrefix(), Col: sc.col("annotation_id")}
	}
}

// key is the numeric primary key of the selected row.
func (sc *scope) key() queryir.Col {
	switch sc.cat {
	case catTranscript:
		return sc.col("ag_id")
	case catParticipant:
		return sc.col("speaker_number")
	default:
		return sc.col("annotation_id")
	}
}

// agID is the transcript column of the selected row; ok is false for
// participants, which span transcripts.
func (sc *scope) agID() (queryir.Col, bool) {
	switch sc.cat {
	case catTranscript, catTranscriptAttribute, catTemporal:
		return sc.col("ag_id"), true
	default:
		return queryir.Col{}, false
	}
}

// speaker is the speaker-number column of the selected row; ok is false
// when the row belongs to no single participant. For temporal layers it joins
// the enclosing turn.
func (sc *scope) speaker() (queryir.Col, bool) {
	switch sc.cat {
	case catParticipant, catParticipantAttribute:
		return sc.col("speaker_number"), true
	case catTemporal:
		if sc.layer.ID == schema.TurnLayer {
			return sc.col("parent_id"), true
		}
		if sc.layer.Scope.Rank() < schema.ScopeMeta.Rank() {
			return queryir.Col{}, false
		}
		turn := sc.schema.Turn()
		sc.sel.AddJoin(queryir.Join{
			Table: queryir.Table{Name: turn.Table(), Alias: aliasTurn},
			On:    queryir.Eq(queryir.C(aliasTurn, "annotation_id"), sc.col("turn_annotation_id")),
		})
		return queryir.C(aliasTurn, "parent_id"), true
	default:
		return queryir.Col{}, false
	}
}

// graph joins the transcript table to the outer query.
func (sc *scope) graph() string {
	if sc.cat == catTranscript {
		return aliasGraph
	}
	sc.sel.AddJoin(queryir.Join{
		Table: queryir.Table{Name: "transcript", Alias: aliasGraph},
		On:    queryir.Eq(queryir.C(aliasGraph, "ag_id"), sc.col("ag_id")),
	})
	return aliasGraph
}

// anchor joins the start or end anchor of a temporal annotation to the
// outer query.
func (sc *scope) anchor(end bool) string {
	alias, fk := aliasStart, "start_anchor_id"
	if end {
		alias, fk = aliasEnd, "end_anchor_id"
	}
	sc.sel.AddJoin(queryir.Join{
		Table: queryir.Table{Name: "anchor", Alias: alias},
		On:    queryir.Eq(queryir.C(alias, "anchor_id"), sc.col(fk)),
	})
	return alias
}

// property resolves a dotted reference to the selected annotation.
func (sc *scope) property(p []string) (value, bool) {
	name := strings.Join(p, ".")
	if name == "layer.id" || name == "layerId" {
		return scalar(queryir.L(sc.layer.ID)), true
	}
	switch sc.cat {
	case catTranscript:
		switch name {
		case "id", "label", "graph.id":
			return text(sc.col("transcript_id")), true
		case "corpus", "graph.corpus":
			return text(sc.col("corpus_name")), true
		case "episode", "graph.episode":
			return text(sc.col("episode_name")), true
		}
	case catParticipant:
		switch name {
		case "id":
			return scalar(sc.uid()), true
		case "label":
			return text(sc.col("name")), true
		}
	case catParticipantAttribute, catTranscriptAttribute:
		if v, ok := sc.annotationProperty(name); ok {
			return v, true
		}
		if sc.cat == catParticipantAttribute {
			switch name {
			case "participant.id", "parent.id":
				return scalar(queryir.IDRef{Prefix: matchid.ParticipantPrefix, Col: sc.col("speaker_number")}), true
			case "participant.label":
				return text(sc.participantName(sc.col("speaker_number"))), true
			}
		} else {
			switch name {
			case "graph.id", "parent.id":
				return text(queryir.C(sc.graph(), "transcript_id")), true
			case "graph.corpus":
				return text(queryir.C(sc.graph(), "corpus_name")), true
			case "graph.episode":
				return text(queryir.C(sc.graph(), "episode_name")), true
			}
		}
	case catTemporal:
		if v, ok := sc.annotationProperty(name); ok {
			return v, true
		}
		return sc.temporalProperty(name)
	}
	return value{}, false
}

// annotationProperty resolves the columns shared by temporal and attribute
// annotation tables.
func (sc *scope) annotationProperty(name string) (value, bool) {
	switch name {
	case "id":
		return scalar(sc.uid()), true
	case "label":
		return text(sc.col("label")), true
	case "ordinal":
		return scalar(sc.col("ordinal")), true
	case "confidence", "labelStatus":
		return scalar(sc.col("label_status")), true
	}
	return value{}, false
}

func (sc *scope) temporalProperty(name string) (value, bool) {
	switch name {
	case "start.offset":
		return scalar(queryir.C(sc.anchor(false), "time_offset")), true
	case "end.offset":
		return scalar(queryir.C(sc.anchor(true), "time_offset")), true
	case "start.id":
		return scalar(queryir.IDRef{Prefix: matchid.AnchorPrefix, Col: sc.col("start_anchor_id")}), true
	case "end.id":
		return scalar(queryir.IDRef{Prefix: matchid.AnchorPrefix, Col: sc.col("end_anchor_id")}), true
	case "start.confidence":
		return scalar(queryir.C(sc.anchor(false), "alignment_status")), true
	case "end.confidence":
		return scalar(queryir.C(sc.anchor(true), "alignment_status")), true
	case "graph.id":
		return text(queryir.C(sc.graph(), "transcript_id")), true
	case "graph.corpus":
		return text(queryir.C(sc.graph(), "corpus_name")), true
	case "graph.episode":
		return text(queryir.C(sc.graph(), "episode_name")), true
	case "parent.id":
		return sc.parentID()
	case "turn.id":
		if sc.layer.Scope.Rank() < schema.ScopeMeta.Rank() {
			return value{}, false
		}
		return scalar(queryir.IDRef{Prefix: sc.schema.Turn().UIDPrefix(), Col: sc.col("turn_annotation_id")}), true
	case "word.id":
		if sc.layer.Scope.Rank() < schema.ScopeWord.Rank() {
			return value{}, false
		}
		return scalar(queryir.IDRef{Prefix: sc.schema.Word().UIDPrefix(), Col: sc.col("word_annotation_id")}), true
	case "participant.id":
		if spk, ok := sc.speaker(); ok {
			return scalar(queryir.IDRef{Prefix: matchid.ParticipantPrefix, Col: spk}), true
		}
	case "participant.label":
		if spk, ok := sc.speaker(); ok {
			return text(sc.participantName(spk)), true
		}
	}
	return value{}, false
}

func (sc *scope) parentID() (value, bool) {
	parent, ok := sc.schema.Layer(sc.layer.ParentID)
	if !ok {
		return value{}, false
	}
	switch parent.Kind {
	case schema.KindTemporal:
		return scalar(queryir.IDRef{Prefix: parent.UIDPrefix(), Col: sc.col("parent_id")}), true
	case schema.KindParticipant:
		return scalar(queryir.IDRef{Prefix: matchid.ParticipantPrefix, Col: sc.col("parent_id")}), true
	case schema.KindTranscript:
		return text(queryir.C(sc.graph(), "transcript_id")), true
	}
	return value{}, false
}

// participantName joins the speaker table for the given speaker column.
func (sc *scope) participantName(speaker queryir.Expr) queryir.Expr {
	if sc.cat == catParticipant {
		return sc.col("name")
	}
	sc.sel.AddJoin(queryir.Join{
		Table: queryir.Table{Name: "speaker", Alias: aliasParticipant},
		On:    queryir.Eq(queryir.C(aliasParticipant, "speaker_number"), speaker),
	})
	return queryir.C(aliasParticipant, "name")
}
