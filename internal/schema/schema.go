package schema

import (
	"errors"
	"fmt"
)

// Standard layer ids.
const (
	TranscriptLayer  = "transcript"
	ParticipantLayer = "participant"
	TurnLayer        = "turn"
	UtteranceLayer   = "utterance"
	WordLayer        = "word"
	OrthographyLayer = "orthography"
	SegmentLayer     = "segment"
)

// Storage keys of the standard temporal layers.
const (
	WordKey        = 0
	SegmentKey     = 1
	OrthographyKey = 2
	TurnKey        = 11
	UtteranceKey   = 12
)

// Schema is an ordered, read-only set of layers.
type Schema struct {
	layers []*Layer
	byID   map[string]*Layer
	byKey  map[int]*Layer
}

// New builds a schema from layers in declaration order.
// It fails if the layers are inconsistent (see Validate).
func New(layers ...Layer) (*Schema, error) {
	s := &Schema{
		byID:  make(map[string]*Layer, len(layers)),
		byKey: make(map[int]*Layer),
	}
	for i := range layers {
		l := layers[i]
		if _, dup := s.byID[l.ID]; dup {
			return nil, fmt.Errorf("duplicate layer id %q", l.ID)
		}
		s.layers = append(s.layers, &l)
		s.byID[l.ID] = &l
		if l.Kind == KindTemporal {
			if other, dup := s.byKey[l.Key]; dup {
				return nil, fmt.Errorf("layers %q and %q share storage key %d", other.ID, l.ID, l.Key)
			}
			s.byKey[l.Key] = &l
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// DefaultLayers returns the standard layers every corpus has.
func DefaultLayers() []Layer {
	return []Layer{
		{ID: TranscriptLayer, Kind: KindTranscript, Scope: ScopeEpisode, Description: "Transcript"},
		{ID: ParticipantLayer, ParentID: TranscriptLayer, Kind: KindParticipant, Scope: ScopeParticipant, Description: "Participants"},
		{ID: TurnLayer, ParentID: ParticipantLayer, Kind: KindTemporal, Scope: ScopeMeta, Alignment: AlignInterval, Key: TurnKey, Description: "Speaker turns"},
		{ID: UtteranceLayer, ParentID: TurnLayer, Kind: KindTemporal, Scope: ScopeMeta, Alignment: AlignInterval, Key: UtteranceKey, Description: "Utterances"},
		{ID: WordLayer, ParentID: TurnLayer, Kind: KindTemporal, Scope: ScopeWord, Alignment: AlignInterval, Key: WordKey, Description: "Word tokens"},
		{ID: OrthographyLayer, ParentID: WordLayer, Kind: KindTemporal, Scope: ScopeWord, Alignment: AlignNone, Key: OrthographyKey, Description: "Orthography"},
		{ID: SegmentLayer, ParentID: WordLayer, Kind: KindTemporal, Scope: ScopeSegment, Alignment: AlignInterval, Key: SegmentKey, Description: "Phone segments"},
	}
}

// Default returns a schema containing only the standard layers.
func Default() *Schema {
	s, err := New(DefaultLayers()...)
	if err != nil {
		panic(fmt.Sprintf("default schema invalid: %v", err))
	}
	return s
}

// WithDefaults returns a schema of the standard layers followed by extra.
func WithDefaults(extra ...Layer) (*Schema, error) {
	return New(append(DefaultLayers(), extra...)...)
}

// Validate checks structural consistency of the schema.
func (s *Schema) Validate() error {
	var errs []error
	for _, id := range []string{TranscriptLayer, ParticipantLayer, TurnLayer, UtteranceLayer, WordLayer} {
		if _, ok := s.byID[id]; !ok {
			errs = append(errs, fmt.Errorf("schema is missing standard layer %q", id))
		}
	}
	for _, l := range s.layers {
		if l.ID == "" {
			errs = append(errs, errors.New("layer with empty id"))
			continue
		}
		if l.ParentID != "" {
			if _, ok := s.byID[l.ParentID]; !ok {
				errs = append(errs, fmt.Errorf("layer %q: unknown parent %q", l.ID, l.ParentID))
			}
		}
		switch l.Kind {
		case KindTemporal:
			if !l.Scope.IsTemporal() {
				errs = append(errs, fmt.Errorf("layer %q: temporal layer has non-temporal scope %s", l.ID, l.Scope))
			}
			if l.Key < 0 {
				errs = append(errs, fmt.Errorf("layer %q: negative storage key", l.ID))
			}
		case KindAttribute:
			if l.Class != ClassTranscript && l.Class != ClassParticipant {
				errs = append(errs, fmt.Errorf("layer %q: attribute class must be %q or %q", l.ID, ClassTranscript, ClassParticipant))
			}
			if l.Attribute == "" {
				errs = append(errs, fmt.Errorf("layer %q: attribute layer without attribute name", l.ID))
			}
		case KindTranscript, KindParticipant:
		default:
			errs = append(errs, fmt.Errorf("layer %q: unknown kind %s", l.ID, l.Kind))
		}
	}
	return errors.Join(errs...)
}

// Layer returns the layer with the given id.
func (s *Schema) Layer(id string) (*Layer, bool) {
	l, ok := s.byID[id]
	return l, ok
}

// ByKey returns the temporal layer stored under key.
func (s *Schema) ByKey(key int) (*Layer, bool) {
	l, ok := s.byKey[key]
	return l, ok
}

// ByAttribute returns the attribute layer for (class, attribute).
func (s *Schema) ByAttribute(class, attribute string) (*Layer, bool) {
	for _, l := range s.layers {
		if l.Kind == KindAttribute && l.Class == class && l.Attribute == attribute {
			return l, true
		}
	}
	return nil, false
}

// Layers returns all layers in declaration order.
func (s *Schema) Layers() []*Layer {
	out := make([]*Layer, len(s.layers))
	copy(out, s.layers)
	return out
}

// TemporalLayers returns the temporal layers in declaration order.
func (s *Schema) TemporalLayers() []*Layer {
	var out []*Layer
	for _, l := range s.layers {
		if l.Kind == KindTemporal {
			out = append(out, l)
		}
	}
	return out
}

// Index returns the declaration position of a layer, or -1.
func (s *Schema) Index(id string) int {
	for i, l := range s.layers {
		if l.ID == id {
			return i
		}
	}
	return -1
}

// Word returns the word-token layer.
func (s *Schema) Word() *Layer { return s.mustLayer(WordLayer) }

// Turn returns the speaker-turn layer.
func (s *Schema) Turn() *Layer { return s.mustLayer(TurnLayer) }

// Utterance returns the utterance layer.
func (s *Schema) Utterance() *Layer { return s.mustLayer(UtteranceLayer) }

// Orthography returns the orthography layer, if the schema has one.
func (s *Schema) Orthography() (*Layer, bool) { return s.Layer(OrthographyLayer) }

func (s *Schema) mustLayer(id string) *Layer {
	l, ok := s.byID[id]
	if !ok {
		panic(fmt.Sprintf("schema has no %q layer", id))
	}
	return l
}
