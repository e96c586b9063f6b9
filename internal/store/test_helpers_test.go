package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/corpusql/internal/schema"
)

// createTestStore creates a new file-backed store with the default layers.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.EnsureLayers(context.Background(), schema.Default()); err != nil {
		t.Fatalf("EnsureLayers() failed: %v", err)
	}
	return s
}

// createTestTranscript writes a transcript with one main speaker and a
// single turn spanning [0, 10).
func createTestTranscript(t *testing.T, s *Store, name string) (agID, speaker, turn int64) {
	t.Helper()
	ctx := context.Background()
	agID, err := s.WriteTranscript(ctx, Transcript{TranscriptID: name, Corpus: "test"})
	if err != nil {
		t.Fatalf("WriteTranscript() failed: %v", err)
	}
	speaker, err = s.WriteSpeaker(ctx, name+"-speaker")
	if err != nil {
		t.Fatalf("WriteSpeaker() failed: %v", err)
	}
	if err := s.LinkSpeaker(ctx, agID, speaker, true); err != nil {
		t.Fatalf("LinkSpeaker() failed: %v", err)
	}
	start := createTestAnchor(t, s, agID, 0)
	end := createTestAnchor(t, s, agID, 10)
	turn, err = s.WriteAnnotation(ctx, schema.Default().Turn(), Annotation{
		AgID: agID, StartAnchorID: start, EndAnchorID: end, ParentID: speaker,
	})
	if err != nil {
		t.Fatalf("WriteAnnotation(turn) failed: %v", err)
	}
	return agID, speaker, turn
}

func createTestAnchor(t *testing.T, s *Store, agID int64, offset float64) int64 {
	t.Helper()
	id, err := s.WriteAnchor(context.Background(), agID, &offset, 50)
	if err != nil {
		t.Fatalf("WriteAnchor() failed: %v", err)
	}
	return id
}
