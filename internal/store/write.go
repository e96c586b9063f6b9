package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/corpusql/internal/schema"
)

// Transcript is one annotation graph.
type Transcript struct {
	AgID         int64  `db:"ag_id"`
	TranscriptID string `db:"transcript_id"`
	Corpus       string `db:"corpus_name"`
	Episode      string `db:"episode_name"`
}

// Annotation is one row of a temporal layer table. Zero ids are stored as
// NULL.
type Annotation struct {
	AgID          int64
	Label         string
	LabelStatus   int
	StartAnchorID int64
	EndAnchorID   int64
	ParentID      int64
	Ordinal       int
	TurnID        int64
	WordID        int64
	SegmentID     int64
	OrdinalInTurn int
	OrdinalInWord int
}

// WriteTranscript inserts a transcript and returns its ag_id.
func (s *Store) WriteTranscript(ctx context.Context, t Transcript) (int64, error) {
	var id int64
	err := s.q.QueryRowxContext(ctx, s.Rebind(`
		INSERT INTO transcript (transcript_id, corpus_name, episode_name)
		VALUES (?, ?, ?)
		RETURNING ag_id
	`), t.TranscriptID, t.Corpus, t.Episode).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("write transcript %q: %w", t.TranscriptID, err)
	}
	return id, nil
}

// WriteSpeaker returns the speaker number of name, creating the speaker if
// needed.
func (s *Store) WriteSpeaker(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.q.QueryRowxContext(ctx, s.Rebind(`
		INSERT INTO speaker (name) VALUES (?)
		ON CONFLICT (name) DO UPDATE SET name = excluded.name
		RETURNING speaker_number
	`), name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("write speaker %q: %w", name, err)
	}
	return id, nil
}

// LinkSpeaker records that speaker takes part in transcript agID.
// Linking twice updates the main-participant flag.
func (s *Store) LinkSpeaker(ctx context.Context, agID, speaker int64, main bool) error {
	_, err := s.Exec(ctx, `
		INSERT INTO transcript_speaker (ag_id, speaker_number, main_speaker)
		VALUES (?, ?, ?)
		ON CONFLICT (ag_id, speaker_number) DO UPDATE SET main_speaker = excluded.main_speaker
	`, agID, speaker, boolInt(main))
	if err != nil {
		return fmt.Errorf("link speaker %d to transcript %d: %w", speaker, agID, err)
	}
	return nil
}

// WriteAnchor inserts an anchor. A nil offset marks it unaligned.
func (s *Store) WriteAnchor(ctx context.Context, agID int64, offset *float64, status int) (int64, error) {
	var off sql.NullFloat64
	if offset != nil {
		off = sql.NullFloat64{Float64: *offset, Valid: true}
	}
	var id int64
	err := s.q.QueryRowxContext(ctx, s.Rebind(`
		INSERT INTO anchor (ag_id, time_offset, alignment_status)
		VALUES (?, ?, ?)
		RETURNING anchor_id
	`), agID, off, status).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("write anchor: %w", err)
	}
	return id, nil
}

// WriteAnnotation inserts a into the table of layer l and returns its id.
//
// Rows of the turn, word and segment layers reference themselves in the
// matching denormalized column when a leaves it zero.
func (s *Store) WriteAnnotation(ctx context.Context, l *schema.Layer, a Annotation) (int64, error) {
	if !l.IsTemporal() {
		return 0, fmt.Errorf("write annotation: layer %q is not time-aligned", l.ID)
	}
	if a.Ordinal == 0 {
		a.Ordinal = 1
	}
	var id int64
	err := s.q.QueryRowxContext(ctx, s.Rebind(fmt.Sprintf(`
		INSERT INTO %s (ag_id, label, label_status, start_anchor_id, end_anchor_id, parent_id,
			ordinal, turn_annotation_id, word_annotation_id, segment_annotation_id,
			ordinal_in_turn, ordinal_in_word)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING annotation_id
	`, l.Table())),
		a.AgID, a.Label, a.LabelStatus,
		nullID(a.StartAnchorID), nullID(a.EndAnchorID), nullID(a.ParentID),
		a.Ordinal, nullID(a.TurnID), nullID(a.WordID), nullID(a.SegmentID),
		nullOrdinal(a.OrdinalInTurn), nullOrdinal(a.OrdinalInWord),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("write %s annotation: %w", l.ID, err)
	}

	var self string
	switch {
	case l.ID == schema.TurnLayer && a.TurnID == 0:
		self = "turn_annotation_id"
	case l.ID == schema.WordLayer && a.WordID == 0:
		self = "word_annotation_id"
	case l.ID == schema.SegmentLayer && a.SegmentID == 0:
		self = "segment_annotation_id"
	}
	if self != "" {
		_, err := s.Exec(ctx, fmt.Sprintf("UPDATE %s SET %s = annotation_id WHERE annotation_id = ?", l.Table(), self), id)
		if err != nil {
			return 0, fmt.Errorf("write %s annotation: %w", l.ID, err)
		}
	}
	return id, nil
}

// WriteAttribute stores one value of attribute layer l. owner is the
// transcript's ag_id or the participant's speaker number, by class.
func (s *Store) WriteAttribute(ctx context.Context, l *schema.Layer, owner int64, label string, ordinal int) (int64, error) {
	if l.Kind != schema.KindAttribute {
		return 0, fmt.Errorf("write attribute: layer %q is not an attribute layer", l.ID)
	}
	if ordinal == 0 {
		ordinal = 1
	}
	ownerCol := "ag_id"
	if l.Class == schema.ClassParticipant {
		ownerCol = "speaker_number"
	}
	var id int64
	err := s.q.QueryRowxContext(ctx, s.Rebind(fmt.Sprintf(`
		INSERT INTO %s (%s, layer, label, ordinal)
		VALUES (?, ?, ?, ?)
		RETURNING annotation_id
	`, l.Table(), ownerCol)), owner, l.Attribute, label, ordinal).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("write %s attribute: %w", l.ID, err)
	}
	return id, nil
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func nullOrdinal(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
