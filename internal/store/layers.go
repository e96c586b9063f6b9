package store

import (
	"context"
	"fmt"

	"github.com/roach88/corpusql/internal/schema"
)

// EnsureLayers creates the annotation table and indexes of every temporal
// layer in s that does not have one yet.
func (s *Store) EnsureLayers(ctx context.Context, sc *schema.Schema) error {
	for _, l := range sc.TemporalLayers() {
		if err := s.EnsureLayer(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

// EnsureLayer creates the annotation table of one temporal layer.
func (s *Store) EnsureLayer(ctx context.Context, l *schema.Layer) error {
	if !l.IsTemporal() {
		return fmt.Errorf("layer %q is not time-aligned", l.ID)
	}
	for _, stmt := range layerDDL(s.dialect.SerialPrimaryKey(), l.Table()) {
		if _, err := s.q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create layer %q: %w", l.ID, err)
		}
	}
	return nil
}

func layerDDL(serial, table string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
			annotation_id %[2]s,
			ag_id BIGINT NOT NULL REFERENCES transcript(ag_id) ON DELETE CASCADE,
			label TEXT,
			label_status INTEGER NOT NULL DEFAULT 0,
			start_anchor_id BIGINT,
			end_anchor_id BIGINT,
			parent_id BIGINT,
			ordinal INTEGER NOT NULL DEFAULT 1,
			turn_annotation_id BIGINT,
			word_annotation_id BIGINT,
			segment_annotation_id BIGINT,
			ordinal_in_turn INTEGER,
			ordinal_in_word INTEGER
		)`, table, serial),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%[1]s_ag ON %[1]s(ag_id)", table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%[1]s_turn ON %[1]s(turn_annotation_id, ordinal_in_turn)", table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%[1]s_word ON %[1]s(word_annotation_id, ordinal_in_word)", table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%[1]s_label ON %[1]s(label)", table),
	}
}
