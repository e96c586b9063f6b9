package schema

import (
	"fmt"
	"strings"
)

// Scope is the temporal coarseness class of a layer.
type Scope int

const (
	ScopeEpisode Scope = iota + 1
	ScopeParticipant
	ScopeFreeform
	ScopeMeta
	ScopeWord
	ScopeSegment
)

var scopeNames = map[Scope]string{
	ScopeEpisode:     "episode",
	ScopeParticipant: "participant",
	ScopeFreeform:    "freeform",
	ScopeMeta:        "meta",
	ScopeWord:        "word",
	ScopeSegment:     "segment",
}

func (s Scope) String() string {
	if name, ok := scopeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Scope(%d)", int(s))
}

// Rank orders temporal scopes from coarsest to finest:
// freeform(0) < meta(1) < word(2) < segment(3).
// Non-temporal scopes return -1.
func (s Scope) Rank() int {
	switch s {
	case ScopeFreeform:
		return 0
	case ScopeMeta:
		return 1
	case ScopeWord:
		return 2
	case ScopeSegment:
		return 3
	default:
		return -1
	}
}

// IsTemporal reports whether annotations of this scope are time-anchored.
func (s Scope) IsTemporal() bool {
	return s.Rank() >= 0
}

// UIDLetter is the scope letter used in annotation identifiers
// ("e" + letter + "_" + key + "_" + id).
func (s Scope) UIDLetter() string {
	switch s {
	case ScopeMeta:
		return "m"
	case ScopeWord:
		return "w"
	case ScopeSegment:
		return "s"
	default:
		return ""
	}
}

// ParseScope parses a scope name.
func ParseScope(name string) (Scope, error) {
	for s, n := range scopeNames {
		if strings.EqualFold(n, name) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown scope %q", name)
}

// Alignment describes how a layer's annotations are anchored in time.
type Alignment int

const (
	AlignNone Alignment = iota
	AlignInstant
	AlignInterval
)

func (a Alignment) String() string {
	switch a {
	case AlignNone:
		return "none"
	case AlignInstant:
		return "instant"
	case AlignInterval:
		return "interval"
	default:
		return fmt.Sprintf("Alignment(%d)", int(a))
	}
}

// ParseAlignment parses an alignment name. The empty string is AlignNone.
func ParseAlignment(name string) (Alignment, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return AlignNone, nil
	case "instant":
		return AlignInstant, nil
	case "interval":
		return AlignInterval, nil
	default:
		return 0, fmt.Errorf("unknown alignment %q", name)
	}
}

// Kind tags which physical shape backs a layer.
type Kind int

const (
	KindTranscript Kind = iota + 1
	KindParticipant
	KindTemporal
	KindAttribute
)

func (k Kind) String() string {
	switch k {
	case KindTranscript:
		return "transcript"
	case KindParticipant:
		return "participant"
	case KindTemporal:
		return "temporal"
	case KindAttribute:
		return "attribute"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind parses a kind name.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(name) {
	case "transcript":
		return KindTranscript, nil
	case "participant":
		return KindParticipant, nil
	case "", "temporal":
		return KindTemporal, nil
	case "attribute":
		return KindAttribute, nil
	default:
		return 0, fmt.Errorf("unknown layer kind %q", name)
	}
}

// Attribute classes.
const (
	ClassTranscript  = "transcript"
	ClassParticipant = "participant"
)

// Layer is one annotation layer.
//
// Key is meaningful only for KindTemporal; Class and Attribute only for
// KindAttribute.
type Layer struct {
	ID          string
	ParentID    string
	Kind        Kind
	Scope       Scope
	Alignment   Alignment
	Key         int
	Class       string
	Attribute   string
	Description string
}

// IsTemporal reports whether the layer is backed by an annotation_layer table.
func (l *Layer) IsTemporal() bool {
	return l.Kind == KindTemporal
}

// Table returns the physical table backing the layer.
func (l *Layer) Table() string {
	switch l.Kind {
	case KindTranscript:
		return "transcript"
	case KindParticipant:
		return "speaker"
	case KindAttribute:
		if l.Class == ClassParticipant {
			return "annotation_participant"
		}
		return "annotation_transcript"
	default:
		return fmt.Sprintf("annotation_layer_%d", l.Key)
	}
}

// UIDPrefix returns the identifier prefix of annotations on this layer, such
// that prefix + numeric id is the annotation's uid. Transcripts have no
// prefix: their uid is the transcript name.
func (l *Layer) UIDPrefix() string {
	switch l.Kind {
	case KindParticipant:
		return "m_-2_"
	case KindAttribute:
		if l.Class == ClassParticipant {
			return "p_" + l.Attribute + "_"
		}
		return "t_" + l.Attribute + "_"
	case KindTemporal:
		return fmt.Sprintf("e%s_%d_", l.Scope.UIDLetter(), l.Key)
	default:
		return ""
	}
}
