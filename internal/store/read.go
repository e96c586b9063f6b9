package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/corpusql/internal/matchid"
	"github.com/roach88/corpusql/internal/querysql"
	"github.com/roach88/corpusql/internal/schema"
)

// Result is one durable match of a search, joined with its transcript name
// and the offsets of its outer anchors.
type Result struct {
	SearchID             string          `db:"search_id"`
	MatchNumber          int64           `db:"match_id"`
	Rank                 int64           `db:"rank"`
	AgID                 int64           `db:"ag_id"`
	TranscriptID         string          `db:"transcript_id"`
	SpeakerNumber        sql.NullInt64   `db:"speaker_number"`
	StartAnchorID        sql.NullInt64   `db:"start_anchor_id"`
	EndAnchorID          sql.NullInt64   `db:"end_anchor_id"`
	StartOffset          sql.NullFloat64 `db:"start_offset"`
	EndOffset            sql.NullFloat64 `db:"end_offset"`
	DefiningAnnotationID sql.NullInt64   `db:"defining_annotation_id"`
	SegmentAnnotationID  sql.NullInt64   `db:"segment_annotation_id"`
	TargetAnnotationID   sql.NullInt64   `db:"target_annotation_id"`
	TargetAnnotationUID  sql.NullString  `db:"target_annotation_uid"`
	TurnAnnotationID     sql.NullInt64   `db:"turn_annotation_id"`
	FirstWordID          sql.NullInt64   `db:"first_matched_word_annotation_id"`
	LastWordID           sql.NullInt64   `db:"last_matched_word_annotation_id"`
	Complete             bool            `db:"complete"`
}

// MatchID converts the row to its portable identifier.
func (r Result) MatchID() matchid.MatchID {
	m := matchid.MatchID{Transcript: r.TranscriptID}
	if r.DefiningAnnotationID.Valid {
		m.Defining = matchid.Temporal(schema.ScopeMeta.UIDLetter(), schema.UtteranceKey, r.DefiningAnnotationID.Int64)
	}
	if r.StartAnchorID.Valid && r.EndAnchorID.Valid {
		m.StartAnchor = matchid.Anchor(r.StartAnchorID.Int64)
		m.EndAnchor = matchid.Anchor(r.EndAnchorID.Int64)
	}
	if r.StartOffset.Valid && r.EndOffset.Valid {
		start, end := r.StartOffset.Float64, r.EndOffset.Float64
		m.StartOffset, m.EndOffset = &start, &end
	}
	if r.SpeakerNumber.Valid {
		m.Participant = matchid.Participant(r.SpeakerNumber.Int64)
	}
	if r.TargetAnnotationUID.Valid {
		m.Target = r.TargetAnnotationUID.String
	}
	word := func(id int64) string {
		return matchid.Temporal(schema.ScopeWord.UIDLetter(), schema.WordKey, id)
	}
	if r.FirstWordID.Valid {
		m.Matched = append(m.Matched, matchid.Keyed{Key: matchid.KeyFirst, UID: word(r.FirstWordID.Int64)})
	}
	if r.LastWordID.Valid {
		m.Matched = append(m.Matched, matchid.Keyed{Key: matchid.KeyLast, UID: word(r.LastWordID.Int64)})
	}
	return m
}

const resultColumns = `
	r.search_id, r.match_id, r.rank, r.ag_id, t.transcript_id, r.speaker_number,
	r.start_anchor_id, r.end_anchor_id, sa.time_offset AS start_offset, ea.time_offset AS end_offset,
	r.defining_annotation_id, r.segment_annotation_id, r.target_annotation_id,
	r.target_annotation_uid, r.turn_annotation_id,
	r.first_matched_word_annotation_id, r.last_matched_word_annotation_id, r.complete`

const resultFrom = `
	FROM result r
	INNER JOIN transcript t ON t.ag_id = r.ag_id
	LEFT OUTER JOIN anchor sa ON sa.anchor_id = r.start_anchor_id
	LEFT OUTER JOIN anchor ea ON ea.anchor_id = r.end_anchor_id`

// Results returns up to limit rows of a search in rank order, skipping the
// first offset. A limit of zero or less means no limit.
//
// Returns empty slices (not nil) if no rows exist.
func (s *Store) Results(ctx context.Context, searchID string, offset, limit int) ([]Result, error) {
	query := "SELECT" + resultColumns + resultFrom + `
		WHERE r.search_id = ?
		ORDER BY r.rank ASC`
	args := []any{searchID}
	switch {
	case limit > 0:
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	case offset > 0 && s.dialect == querysql.Postgres:
		query += " OFFSET ?"
		args = append(args, offset)
	case offset > 0:
		query += " LIMIT -1 OFFSET ?"
		args = append(args, offset)
	}

	results := []Result{}
	if err := sqlx.SelectContext(ctx, s.q, &results, s.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("read results of %s: %w", searchID, err)
	}
	return results, nil
}

// ResultsAfter returns up to limit rows of a search ranked after rank, in
// rank order. Rows removed before rank do not shift later pages.
func (s *Store) ResultsAfter(ctx context.Context, searchID string, rank int64, limit int) ([]Result, error) {
	query := "SELECT" + resultColumns + resultFrom + `
		WHERE r.search_id = ? AND r.rank > ?
		ORDER BY r.rank ASC
		LIMIT ?`
	results := []Result{}
	if err := sqlx.SelectContext(ctx, s.q, &results, s.Rebind(query), searchID, rank, limit); err != nil {
		return nil, fmt.Errorf("read results of %s after rank %d: %w", searchID, rank, err)
	}
	return results, nil
}

// Result returns one row of a search by match number.
func (s *Store) Result(ctx context.Context, searchID string, match int64) (Result, error) {
	var r Result
	query := "SELECT" + resultColumns + resultFrom + `
		WHERE r.search_id = ? AND r.match_id = ?`
	if err := sqlx.GetContext(ctx, s.q, &r, s.Rebind(query), searchID, match); err != nil {
		return Result{}, fmt.Errorf("read result %d of %s: %w", match, searchID, err)
	}
	return r, nil
}

// CountResults returns the number of durable rows of a search.
func (s *Store) CountResults(ctx context.Context, searchID string) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, s.q, &n, s.Rebind("SELECT COUNT(*) FROM result WHERE search_id = ?"), searchID); err != nil {
		return 0, fmt.Errorf("count results of %s: %w", searchID, err)
	}
	return n, nil
}

// DeleteResults removes every durable row of a search.
func (s *Store) DeleteResults(ctx context.Context, searchID string) error {
	if _, err := s.Exec(ctx, "DELETE FROM result WHERE search_id = ?", searchID); err != nil {
		return fmt.Errorf("delete results of %s: %w", searchID, err)
	}
	return nil
}

// DeleteResult removes one row of a search. Removing a missing row is not
// an error.
func (s *Store) DeleteResult(ctx context.Context, searchID string, match int64) error {
	if _, err := s.Exec(ctx, "DELETE FROM result WHERE search_id = ? AND match_id = ?", searchID, match); err != nil {
		return fmt.Errorf("delete result %d of %s: %w", match, searchID, err)
	}
	return nil
}
