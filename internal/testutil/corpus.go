package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/roach88/corpusql/internal/schema"
	"github.com/roach88/corpusql/internal/store"
)

// DefaultConfidence is the alignment status of anchors written by Corpus.
const DefaultConfidence = 50

// Utterance is one speaker's run of words. Each utterance becomes its own
// turn and utterance annotation; words last Step seconds each from Start.
type Utterance struct {
	Speaker string `yaml:"speaker"`
	// Main marks the speaker as a main participant of the transcript.
	Main  bool    `yaml:"main"`
	Start float64 `yaml:"start"`
	// Step is the duration of each word. Zero means one second.
	Step  float64  `yaml:"step"`
	Words []string `yaml:"words"`
	// Segments holds each word's segment labels, splitting its duration
	// evenly. Missing or empty entries write no segments.
	Segments [][]string `yaml:"segments"`
	// Layers maps a word-scope layer id to one label per word. Empty labels
	// write no annotation.
	Layers map[string][]string `yaml:"layers"`
	// Confidence is the alignment status of the anchors. Zero means
	// DefaultConfidence.
	Confidence int `yaml:"confidence"`
}

// Transcript records the ids written for one transcript.
type Transcript struct {
	AgID       int64
	Name       string
	Speakers   map[string]int64
	Turns      []int64
	Utterances []int64
	// Words holds word ids per utterance, in order.
	Words [][]int64
	// Segments holds segment ids per utterance and word.
	Segments [][][]int64

	anchors map[float64]int64
}

// Builder writes small transcripts into a store and reports failures as
// errors. Corpus wraps it for tests.
type Builder struct {
	Store  *store.Store
	Schema *schema.Schema
}

// NewBuilder writes into st using the layers of sc. The layer tables must
// already exist.
func NewBuilder(st *store.Store, sc *schema.Schema) *Builder {
	if sc == nil {
		sc = schema.Default()
	}
	return &Builder{Store: st, Schema: sc}
}

// Add writes a transcript made of utts.
func (b *Builder) Add(ctx context.Context, name string, utts ...Utterance) (*Transcript, error) {
	agID, err := b.Store.WriteTranscript(ctx, store.Transcript{TranscriptID: name, Corpus: "test"})
	if err != nil {
		return nil, err
	}
	tr := &Transcript{AgID: agID, Name: name, Speakers: map[string]int64{}, anchors: map[float64]int64{}}
	for _, u := range utts {
		if err := b.addUtterance(ctx, tr, u); err != nil {
			return nil, fmt.Errorf("transcript %s: %w", name, err)
		}
	}
	return tr, nil
}

func (b *Builder) addUtterance(ctx context.Context, tr *Transcript, u Utterance) error {
	if u.Step == 0 {
		u.Step = 1
	}
	if u.Confidence == 0 {
		u.Confidence = DefaultConfidence
	}
	speaker, ok := tr.Speakers[u.Speaker]
	if !ok {
		var err error
		if speaker, err = b.Store.WriteSpeaker(ctx, u.Speaker); err != nil {
			return err
		}
		tr.Speakers[u.Speaker] = speaker
	}
	if err := b.Store.LinkSpeaker(ctx, tr.AgID, speaker, u.Main); err != nil {
		return err
	}

	end := u.Start + u.Step*float64(len(u.Words))
	first, err := b.anchorAt(ctx, tr, u.Start, u.Confidence)
	if err != nil {
		return err
	}
	last, err := b.anchorAt(ctx, tr, end, u.Confidence)
	if err != nil {
		return err
	}
	label := strconv.FormatInt(speaker, 10)

	turn, err := b.Store.WriteAnnotation(ctx, b.Schema.Turn(), store.Annotation{
		AgID: tr.AgID, Label: label, StartAnchorID: first, EndAnchorID: last, ParentID: speaker,
	})
	if err != nil {
		return err
	}
	utt, err := b.Store.WriteAnnotation(ctx, b.Schema.Utterance(), store.Annotation{
		AgID: tr.AgID, Label: label, StartAnchorID: first, EndAnchorID: last, ParentID: turn, TurnID: turn,
	})
	if err != nil {
		return err
	}
	tr.Turns = append(tr.Turns, turn)
	tr.Utterances = append(tr.Utterances, utt)

	ortho, hasOrtho := b.Schema.Orthography()
	words := make([]int64, len(u.Words))
	segments := make([][]int64, len(u.Words))
	for i, w := range u.Words {
		ws := u.Start + u.Step*float64(i)
		start, err := b.anchorAt(ctx, tr, ws, u.Confidence)
		if err != nil {
			return err
		}
		stop, err := b.anchorAt(ctx, tr, ws+u.Step, u.Confidence)
		if err != nil {
			return err
		}
		word, err := b.Store.WriteAnnotation(ctx, b.Schema.Word(), store.Annotation{
			AgID: tr.AgID, Label: w, StartAnchorID: start, EndAnchorID: stop,
			ParentID: turn, Ordinal: i + 1, TurnID: turn, OrdinalInTurn: i + 1,
		})
		if err != nil {
			return err
		}
		words[i] = word

		dependent := store.Annotation{
			AgID: tr.AgID, StartAnchorID: start, EndAnchorID: stop, ParentID: word,
			TurnID: turn, WordID: word, OrdinalInTurn: i + 1,
		}
		if hasOrtho {
			a := dependent
			a.Label = strings.ToLower(w)
			if _, err := b.Store.WriteAnnotation(ctx, ortho, a); err != nil {
				return err
			}
		}
		for id, labels := range u.Layers {
			if i >= len(labels) || labels[i] == "" {
				continue
			}
			l, ok := b.Schema.Layer(id)
			if !ok {
				return fmt.Errorf("unknown layer %q", id)
			}
			a := dependent
			a.Label = labels[i]
			if _, err := b.Store.WriteAnnotation(ctx, l, a); err != nil {
				return err
			}
		}
		if i < len(u.Segments) {
			if segments[i], err = b.addSegments(ctx, tr, u, dependent, ws, u.Segments[i]); err != nil {
				return err
			}
		}
	}
	tr.Words = append(tr.Words, words)
	tr.Segments = append(tr.Segments, segments)
	return nil
}

func (b *Builder) addSegments(ctx context.Context, tr *Transcript, u Utterance, word store.Annotation, ws float64, labels []string) ([]int64, error) {
	seg, ok := b.Schema.Layer(schema.SegmentLayer)
	if !ok || len(labels) == 0 {
		return nil, nil
	}
	step := u.Step / float64(len(labels))
	ids := make([]int64, len(labels))
	for j, label := range labels {
		a := word
		a.Label = label
		a.ParentID = word.WordID
		a.Ordinal = j + 1
		a.OrdinalInWord = j + 1
		var err error
		if j > 0 {
			if a.StartAnchorID, err = b.anchorAt(ctx, tr, ws+step*float64(j), u.Confidence); err != nil {
				return nil, err
			}
		}
		if j < len(labels)-1 {
			if a.EndAnchorID, err = b.anchorAt(ctx, tr, ws+step*float64(j+1), u.Confidence); err != nil {
				return nil, err
			}
		}
		if ids[j], err = b.Store.WriteAnnotation(ctx, seg, a); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// Span writes an annotation of a freeform or meta layer between two
// offsets, sharing anchors already written at those offsets.
func (b *Builder) Span(ctx context.Context, tr *Transcript, layer, label string, start, end float64) (int64, error) {
	l, ok := b.Schema.Layer(layer)
	if !ok {
		return 0, fmt.Errorf("unknown layer %q", layer)
	}
	first, err := b.anchorAt(ctx, tr, start, DefaultConfidence)
	if err != nil {
		return 0, err
	}
	last, err := b.anchorAt(ctx, tr, end, DefaultConfidence)
	if err != nil {
		return 0, err
	}
	return b.Store.WriteAnnotation(ctx, l, store.Annotation{
		AgID:          tr.AgID,
		Label:         label,
		StartAnchorID: first,
		EndAnchorID:   last,
	})
}

// Attribute writes a transcript or participant attribute value.
func (b *Builder) Attribute(ctx context.Context, layer string, owner int64, label string) error {
	l, ok := b.Schema.Layer(layer)
	if !ok {
		return fmt.Errorf("unknown layer %q", layer)
	}
	_, err := b.Store.WriteAttribute(ctx, l, owner, label, 0)
	return err
}

func (b *Builder) anchorAt(ctx context.Context, tr *Transcript, offset float64, confidence int) (int64, error) {
	if id, ok := tr.anchors[offset]; ok {
		return id, nil
	}
	id, err := b.Store.WriteAnchor(ctx, tr.AgID, &offset, confidence)
	if err != nil {
		return 0, err
	}
	tr.anchors[offset] = id
	return id, nil
}

// Corpus is a Builder over a throwaway store that fails the test on any
// write error.
type Corpus struct {
	*Builder
	tb  testing.TB
	ctx context.Context
}

// NewCorpus opens a SQLite store under tb.TempDir() with the tables of sc.
// A nil sc means schema.Default().
func NewCorpus(tb testing.TB, sc *schema.Schema) *Corpus {
	tb.Helper()
	if sc == nil {
		sc = schema.Default()
	}
	ctx := context.Background()
	st, err := store.OpenSQLite(ctx, filepath.Join(tb.TempDir(), "corpus.db"))
	if err != nil {
		tb.Fatalf("open corpus store: %v", err)
	}
	tb.Cleanup(func() { st.Close() })
	if err := st.EnsureLayers(ctx, sc); err != nil {
		tb.Fatalf("create layer tables: %v", err)
	}
	return &Corpus{Builder: NewBuilder(st, sc), tb: tb, ctx: ctx}
}

// Add writes a transcript made of utts.
func (c *Corpus) Add(name string, utts ...Utterance) *Transcript {
	c.tb.Helper()
	tr, err := c.Builder.Add(c.ctx, name, utts...)
	c.check(err)
	return tr
}

// Span writes a freeform or meta annotation between two offsets.
func (c *Corpus) Span(tr *Transcript, layer, label string, start, end float64) int64 {
	c.tb.Helper()
	id, err := c.Builder.Span(c.ctx, tr, layer, label, start, end)
	c.check(err)
	return id
}

// Attribute writes a transcript or participant attribute value.
func (c *Corpus) Attribute(layer string, owner int64, label string) {
	c.tb.Helper()
	c.check(c.Builder.Attribute(c.ctx, layer, owner, label))
}

func (c *Corpus) check(err error) {
	c.tb.Helper()
	if err != nil {
		c.tb.Fatalf("write corpus: %v", err)
	}
}
