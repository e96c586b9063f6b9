// Package matchid encodes and decodes the string identifiers handed to
// consumers of search results: annotation uids and match identifiers.
//
// Annotation uid forms:
//
//	e<s>_<key>_<id>   temporal annotation; <s> is "" (freeform), m, w or s
//	m_-2_<n>          participant (speaker number n)
//	p_<attr>_<id>     participant attribute annotation
//	t_<attr>_<id>     transcript attribute annotation
//	n_<id>            anchor
package matchid

import (
	"fmt"
	"strconv"
	"strings"
)

// UIDKind classifies an annotation uid.
type UIDKind int

const (
	UIDTemporal UIDKind = iota + 1
	UIDParticipant
	UIDParticipantAttribute
	UIDTranscriptAttribute
	UIDAnchor
)

func (k UIDKind) String() string {
	switch k {
	case UIDTemporal:
		return "temporal"
	case UIDParticipant:
		return "participant"
	case UIDParticipantAttribute:
		return "participant-attribute"
	case UIDTranscriptAttribute:
		return "transcript-attribute"
	case UIDAnchor:
		return "anchor"
	default:
		return fmt.Sprintf("UIDKind(%d)", int(k))
	}
}

// ParticipantPrefix prefixes participant uids.
const ParticipantPrefix = "m_-2_"

// AnchorPrefix prefixes anchor uids.
const AnchorPrefix = "n_"

// UID is a decoded annotation identifier.
type UID struct {
	Kind UIDKind
	// ScopeLetter is "", "m", "w" or "s" for temporal uids.
	ScopeLetter string
	// Key is the storage key of a temporal layer.
	Key int
	// Attribute names the attribute of attribute uids.
	Attribute string
	// ID is the numeric row id (speaker number for participants).
	ID int64
}

// Prefix returns everything before the numeric id.
func (u UID) Prefix() string {
	switch u.Kind {
	case UIDTemporal:
		return fmt.Sprintf("e%s_%d_", u.ScopeLetter, u.Key)
	case UIDParticipant:
		return ParticipantPrefix
	case UIDParticipantAttribute:
		return "p_" + u.Attribute + "_"
	case UIDTranscriptAttribute:
		return "t_" + u.Attribute + "_"
	case UIDAnchor:
		return AnchorPrefix
	default:
		return ""
	}
}

func (u UID) String() string {
	return u.Prefix() + strconv.FormatInt(u.ID, 10)
}

// ParseUID decodes an annotation, participant or anchor uid.
func ParseUID(s string) (UID, error) {
	switch {
	case strings.HasPrefix(s, ParticipantPrefix):
		id, err := parseID(s, s[len(ParticipantPrefix):])
		return UID{Kind: UIDParticipant, ID: id}, err
	case strings.HasPrefix(s, AnchorPrefix):
		id, err := parseID(s, s[len(AnchorPrefix):])
		return UID{Kind: UIDAnchor, ID: id}, err
	case strings.HasPrefix(s, "p_"), strings.HasPrefix(s, "t_"):
		rest := s[2:]
		i := strings.LastIndexByte(rest, '_')
		if i <= 0 {
			return UID{}, fmt.Errorf("malformed attribute uid %q", s)
		}
		id, err := parseID(s, rest[i+1:])
		if err != nil {
			return UID{}, err
		}
		kind := UIDTranscriptAttribute
		if s[0] == 'p' {
			kind = UIDParticipantAttribute
		}
		return UID{Kind: kind, Attribute: rest[:i], ID: id}, nil
	case strings.HasPrefix(s, "e"):
		parts := strings.Split(s[1:], "_")
		if len(parts) != 3 {
			return UID{}, fmt.Errorf("malformed annotation uid %q", s)
		}
		letter := parts[0]
		if letter != "" && letter != "m" && letter != "w" && letter != "s" {
			return UID{}, fmt.Errorf("annotation uid %q: unknown scope letter %q", s, letter)
		}
		key, err := strconv.Atoi(parts[1])
		if err != nil || key < 0 {
			return UID{}, fmt.Errorf("annotation uid %q: bad layer key", s)
		}
		id, err := parseID(s, parts[2])
		if err != nil {
			return UID{}, err
		}
		return UID{Kind: UIDTemporal, ScopeLetter: letter, Key: key, ID: id}, nil
	default:
		return UID{}, fmt.Errorf("unrecognized uid %q", s)
	}
}

func parseID(uid, digits string) (int64, error) {
	id, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("uid %q: bad numeric id", uid)
	}
	return id, nil
}

// Temporal formats a temporal annotation uid.
func Temporal(scopeLetter string, key int, id int64) string {
	return UID{Kind: UIDTemporal, ScopeLetter: scopeLetter, Key: key, ID: id}.String()
}

// Participant formats a participant uid.
func Participant(speaker int64) string {
	return ParticipantPrefix + strconv.FormatInt(speaker, 10)
}

// Anchor formats an anchor uid.
func Anchor(id int64) string {
	return AnchorPrefix + strconv.FormatInt(id, 10)
}
