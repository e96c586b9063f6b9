package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Search is the durable record of one search.
type Search struct {
	ID          string `db:"search_id"`
	Fingerprint string `db:"fingerprint"`
	Strategy    string `db:"strategy"`
	State       string `db:"state"`
	MatchCount  int    `db:"match_count"`
}

// ErrSearchNotFound is returned when no search has the requested id.
var ErrSearchNotFound = errors.New("search not found")

// CreateSearch records a new search.
func (s *Store) CreateSearch(ctx context.Context, sr Search) error {
	_, err := s.Exec(ctx, `
		INSERT INTO search (search_id, fingerprint, strategy, state, match_count)
		VALUES (?, ?, ?, ?, ?)
	`, sr.ID, sr.Fingerprint, sr.Strategy, sr.State, sr.MatchCount)
	if err != nil {
		return fmt.Errorf("create search %s: %w", sr.ID, err)
	}
	return nil
}

// UpdateSearch sets the state and match count of a search.
func (s *Store) UpdateSearch(ctx context.Context, id, state string, matches int) error {
	_, err := s.Exec(ctx, "UPDATE search SET state = ?, match_count = ? WHERE search_id = ?", state, matches, id)
	if err != nil {
		return fmt.Errorf("update search %s: %w", id, err)
	}
	return nil
}

// GetSearch returns the record of a search, or ErrSearchNotFound.
func (s *Store) GetSearch(ctx context.Context, id string) (Search, error) {
	var sr Search
	err := sqlx.GetContext(ctx, s.q, &sr, s.Rebind(`
		SELECT search_id, fingerprint, strategy, state, match_count
		FROM search WHERE search_id = ?
	`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return Search{}, fmt.Errorf("search %s: %w", id, ErrSearchNotFound)
	}
	if err != nil {
		return Search{}, fmt.Errorf("get search %s: %w", id, err)
	}
	return sr, nil
}

// DeleteSearch removes a search and its durable rows.
func (s *Store) DeleteSearch(ctx context.Context, id string) error {
	if err := s.DeleteResults(ctx, id); err != nil {
		return err
	}
	if _, err := s.Exec(ctx, "DELETE FROM search WHERE search_id = ?", id); err != nil {
		return fmt.Errorf("delete search %s: %w", id, err)
	}
	return nil
}

// CreateScratch creates the temporary table a search inserts its candidate
// matches into. It must run on the connection the search uses. match_id
// increases with insertion order.
func (s *Store) CreateScratch(ctx context.Context, table string) error {
	if err := s.DropScratch(ctx, table); err != nil {
		return err
	}
	_, err := s.q.ExecContext(ctx, fmt.Sprintf(`CREATE TEMPORARY TABLE %s (
		match_id %s,
		ag_id BIGINT NOT NULL,
		speaker_number BIGINT,
		start_anchor_id BIGINT,
		end_anchor_id BIGINT,
		defining_annotation_id BIGINT,
		segment_annotation_id BIGINT,
		target_annotation_id BIGINT,
		target_annotation_uid TEXT,
		turn_annotation_id BIGINT,
		first_matched_word_annotation_id BIGINT,
		last_matched_word_annotation_id BIGINT
	)`, table, s.dialect.SerialPrimaryKey()))
	if err != nil {
		return fmt.Errorf("create scratch table %s: %w", table, err)
	}
	return nil
}

// DropScratch removes a search's temporary table if it exists.
func (s *Store) DropScratch(ctx context.Context, table string) error {
	if _, err := s.q.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return fmt.Errorf("drop scratch table %s: %w", table, err)
	}
	return nil
}
