package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/roach88/corpusql/internal/schema"
	"github.com/roach88/corpusql/internal/store"
)

// Filter is a post-match filter. Filters see the rows of a search in rank
// order, one forward pass; a row is removed as soon as one filter rejects
// it, and later filters never see it.
type Filter interface {
	// Name labels the filter in logs and metrics.
	Name() string
	// Clone returns a filter with the same settings and none of the
	// state kept between rows. Every search runs its own clones.
	Clone() Filter
	// Keep decides whether r stays. st runs on the search's connection.
	Keep(ctx context.Context, st *store.Store, r store.Result) (bool, error)
}

// OverlapFilter removes a match when another utterance of the same
// transcript overlaps its bounding utterance by more than MaxPercent of
// the bounding utterance's duration.
type OverlapFilter struct {
	MaxPercent float64
	// Schema locates the utterance layer. Nil means schema.Default().
	Schema *schema.Schema
}

// Name implements Filter.
func (f *OverlapFilter) Name() string { return "overlap" }

// Clone implements Filter.
func (f *OverlapFilter) Clone() Filter {
	c := *f
	return &c
}

// Keep implements Filter.
func (f *OverlapFilter) Keep(ctx context.Context, st *store.Store, r store.Result) (bool, error) {
	sc := f.Schema
	if sc == nil {
		sc = schema.Default()
	}
	utt := sc.Utterance().Table()

	start, end, exclude := r.StartOffset, r.EndOffset, int64(0)
	if r.DefiningAnnotationID.Valid {
		exclude = r.DefiningAnnotationID.Int64
		rows, err := st.Query(ctx, fmt.Sprintf(`
			SELECT us.time_offset, ue.time_offset
			FROM %s u
			INNER JOIN anchor us ON us.anchor_id = u.start_anchor_id
			INNER JOIN anchor ue ON ue.anchor_id = u.end_anchor_id
			WHERE u.annotation_id = ?
		`, utt), exclude)
		if err != nil {
			return false, fmt.Errorf("read bounding utterance: %w", err)
		}
		if rows.Next() {
			if err := rows.Scan(&start, &end); err != nil {
				rows.Close()
				return false, fmt.Errorf("read bounding utterance: %w", err)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return false, fmt.Errorf("read bounding utterance: %w", err)
		}
	}
	if !start.Valid || !end.Valid || end.Float64 <= start.Float64 {
		slog.Warn("skipping overlap check",
			"error", &IntegrityError{SearchID: r.SearchID, MatchID: r.MatchNumber, Reason: "bounding utterance has no duration"})
		return true, nil
	}
	own := end.Float64 - start.Float64

	rows, err := st.Query(ctx, fmt.Sprintf(`
		SELECT us.time_offset, ue.time_offset
		FROM %s u
		INNER JOIN anchor us ON us.anchor_id = u.start_anchor_id
		INNER JOIN anchor ue ON ue.anchor_id = u.end_anchor_id
		WHERE u.ag_id = ? AND u.annotation_id <> ?
		AND us.time_offset < ? AND ue.time_offset > ?
	`, utt), r.AgID, exclude, end.Float64, start.Float64)
	if err != nil {
		return false, fmt.Errorf("read overlapping utterances: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var os, oe float64
		if err := rows.Scan(&os, &oe); err != nil {
			return false, fmt.Errorf("read overlapping utterances: %w", err)
		}
		overlap := math.Min(end.Float64, oe) - math.Max(start.Float64, os)
		if overlap/own*100 > f.MaxPercent {
			return false, nil
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("read overlapping utterances: %w", err)
	}
	return true, nil
}

// TranscriptCap keeps only the first PerTranscript rows of each source
// transcript.
type TranscriptCap struct {
	PerTranscript int
	counts        map[int64]int
}

// Name implements Filter.
func (c *TranscriptCap) Name() string { return "per_transcript" }

// Clone implements Filter.
func (c *TranscriptCap) Clone() Filter {
	return &TranscriptCap{PerTranscript: c.PerTranscript}
}

// Keep implements Filter.
func (c *TranscriptCap) Keep(_ context.Context, _ *store.Store, r store.Result) (bool, error) {
	if c.counts == nil {
		c.counts = make(map[int64]int)
	}
	c.counts[r.AgID]++
	return c.counts[r.AgID] <= c.PerTranscript, nil
}

// Current returns the number of rows seen for a transcript.
func (c *TranscriptCap) Current(agID int64) int {
	return c.counts[agID]
}
