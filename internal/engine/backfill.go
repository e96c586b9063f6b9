package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/roach88/corpusql/internal/compiler"
	"github.com/roach88/corpusql/internal/store"
)

// spanRow is a span-strategy candidate awaiting word tokens.
type spanRow struct {
	MatchID       int64           `db:"match_id"`
	AgID          int64           `db:"ag_id"`
	StartAnchorID sql.NullInt64   `db:"start_anchor_id"`
	EndAnchorID   sql.NullInt64   `db:"end_anchor_id"`
	StartOffset   sql.NullFloat64 `db:"start_offset"`
	EndOffset     sql.NullFloat64 `db:"end_offset"`
}

// token is a word annotation assigned to a span.
type token struct {
	ID   int64         `db:"annotation_id"`
	Turn sql.NullInt64 `db:"turn_annotation_id"`
}

// backfill assigns first and last word tokens to span-strategy rows. Each
// row tries, in order: the words contained in the span, the words sharing
// one of its anchors, and unless the span was anchor-exact the word whose
// start is nearest the span's start. Rows with no token are dropped.
func (t *Task) backfill(ctx context.Context, db *store.Store) (int, error) {
	if t.plan.Strategy != compiler.StrategySpan {
		return 0, nil
	}
	var rows []spanRow
	if err := db.Select(ctx, &rows, fmt.Sprintf(`
		SELECT m.match_id, m.ag_id, m.start_anchor_id, m.end_anchor_id,
			sa.time_offset AS start_offset, ea.time_offset AS end_offset
		FROM %s m
		LEFT OUTER JOIN anchor sa ON sa.anchor_id = m.start_anchor_id
		LEFT OUTER JOIN anchor ea ON ea.anchor_id = m.end_anchor_id
		ORDER BY m.match_id
	`, scratchTable)); err != nil {
		return 0, fmt.Errorf("read span candidates: %w", err)
	}

	words := t.opts.Schema.Word().Table()
	exact := t.plan.Span != nil && t.plan.Span.AnchorExact
	assigned := 0
	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return assigned, err
		}
		first, last, err := t.tokens(ctx, db, words, r, exact)
		if err != nil {
			return assigned, err
		}
		if first == nil {
			if _, err := db.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE match_id = ?", scratchTable), r.MatchID); err != nil {
				return assigned, fmt.Errorf("drop span without words: %w", err)
			}
			continue
		}
		if _, err := db.Exec(ctx, fmt.Sprintf(`
			UPDATE %s SET
				first_matched_word_annotation_id = ?,
				last_matched_word_annotation_id = ?,
				turn_annotation_id = ?
			WHERE match_id = ?
		`, scratchTable), first.ID, last.ID, first.Turn, r.MatchID); err != nil {
			return assigned, fmt.Errorf("assign span words: %w", err)
		}
		assigned++
	}
	return assigned, nil
}

// tokens finds the first and last word of r. Both are nil when no tier
// finds a word.
func (t *Task) tokens(ctx context.Context, db *store.Store, words string, r spanRow, exact bool) (*token, *token, error) {
	timed := r.StartOffset.Valid && r.EndOffset.Valid
	if !timed {
		slog.Warn("span has unaligned anchors",
			"error", &IntegrityError{SearchID: t.id, MatchID: r.MatchID, Reason: "span anchors have no offset"})
	}

	var found []token
	if timed {
		if err := db.Select(ctx, &found, fmt.Sprintf(`
			SELECT w.annotation_id, w.turn_annotation_id
			FROM %s w
			INNER JOIN anchor ws ON ws.anchor_id = w.start_anchor_id
			INNER JOIN anchor we ON we.anchor_id = w.end_anchor_id
			WHERE w.ag_id = ? AND ws.time_offset >= ? AND we.time_offset <= ?
			ORDER BY ws.time_offset, w.annotation_id
		`, words), r.AgID, r.StartOffset.Float64, r.EndOffset.Float64); err != nil {
			return nil, nil, fmt.Errorf("find contained words: %w", err)
		}
	}
	if len(found) == 0 && r.StartAnchorID.Valid && r.EndAnchorID.Valid {
		if err := db.Select(ctx, &found, fmt.Sprintf(`
			SELECT w.annotation_id, w.turn_annotation_id
			FROM %s w
			INNER JOIN anchor ws ON ws.anchor_id = w.start_anchor_id
			WHERE w.ag_id = ? AND (w.start_anchor_id = ? OR w.end_anchor_id = ?)
			ORDER BY ws.time_offset, w.annotation_id
		`, words), r.AgID, r.StartAnchorID.Int64, r.EndAnchorID.Int64); err != nil {
			return nil, nil, fmt.Errorf("find words sharing anchors: %w", err)
		}
	}
	if len(found) == 0 && timed && !exact {
		if err := db.Select(ctx, &found, fmt.Sprintf(`
			SELECT w.annotation_id, w.turn_annotation_id
			FROM %s w
			INNER JOIN anchor ws ON ws.anchor_id = w.start_anchor_id
			WHERE w.ag_id = ? AND ws.time_offset IS NOT NULL
			ORDER BY ABS(ws.time_offset - ?), w.annotation_id
			LIMIT 1
		`, words), r.AgID, r.StartOffset.Float64); err != nil {
			return nil, nil, fmt.Errorf("find nearest word: %w", err)
		}
	}
	if len(found) == 0 {
		return nil, nil, nil
	}
	return &found[0], &found[len(found)-1], nil
}
