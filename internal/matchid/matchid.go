package matchid

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Keyed is one named matched sub-annotation, e.g. the first or last matched
// word of a multi-token match.
type Keyed struct {
	Key string
	UID string
}

// Standard keys for multi-word matches.
const (
	KeyFirst = "first"
	KeyLast  = "last"
)

// MatchID identifies a match, or a bare utterance, independently of the
// search that produced it.
//
// Encoded form (unset fields omitted):
//
//	transcript;defining;n_a-n_b;start-end;m_-2_n;prefix=..;#=target;[key]=uid
//
// The transcript is always first; other positional fields are recognised by
// their shape, named fields by their key. A range with only one end set
// leaves the other side empty, as in n_a- or -end.
type MatchID struct {
	Transcript  string
	Defining    string
	StartAnchor string
	EndAnchor   string
	StartOffset *float64
	EndOffset   *float64
	Participant string
	Prefix      string
	Target      string
	Matched     []Keyed
}

// Utterance identifies a whole utterance of a participant.
func Utterance(transcript, utteranceUID, participantUID string, start, end float64) MatchID {
	return MatchID{
		Transcript:  transcript,
		Defining:    utteranceUID,
		StartOffset: &start,
		EndOffset:   &end,
		Participant: participantUID,
	}
}

// Encode returns the canonical string form.
func (m MatchID) Encode() string {
	fields := []string{url.QueryEscape(m.Transcript)}
	if m.Defining != "" {
		fields = append(fields, m.Defining)
	}
	if m.StartAnchor != "" || m.EndAnchor != "" {
		fields = append(fields, m.StartAnchor+"-"+m.EndAnchor)
	}
	if m.StartOffset != nil || m.EndOffset != nil {
		fields = append(fields, formatOffset(m.StartOffset)+"-"+formatOffset(m.EndOffset))
	}
	if m.Participant != "" {
		fields = append(fields, m.Participant)
	}
	if m.Prefix != "" {
		fields = append(fields, "prefix="+url.QueryEscape(m.Prefix))
	}
	if m.Target != "" {
		fields = append(fields, "#="+m.Target)
	}
	for _, k := range m.Matched {
		fields = append(fields, "["+k.Key+"]="+k.UID)
	}
	return strings.Join(fields, ";")
}

func (m MatchID) String() string { return m.Encode() }

// Parse decodes a string produced by Encode.
func Parse(s string) (MatchID, error) {
	if s == "" {
		return MatchID{}, fmt.Errorf("empty match id")
	}
	fields := strings.Split(s, ";")

	var m MatchID
	t, err := url.QueryUnescape(fields[0])
	if err != nil {
		return MatchID{}, fmt.Errorf("match id %q: transcript: %w", s, err)
	}
	m.Transcript = t

	for _, f := range fields[1:] {
		switch {
		case f == "":
			return MatchID{}, fmt.Errorf("match id %q: empty field", s)
		case strings.HasPrefix(f, "prefix="):
			p, err := url.QueryUnescape(f[len("prefix="):])
			if err != nil {
				return MatchID{}, fmt.Errorf("match id %q: prefix: %w", s, err)
			}
			m.Prefix = p
		case strings.HasPrefix(f, "#="):
			m.Target = f[2:]
		case strings.HasPrefix(f, "["):
			end := strings.Index(f, "]=")
			if end < 0 {
				return MatchID{}, fmt.Errorf("match id %q: malformed keyed field %q", s, f)
			}
			m.Matched = append(m.Matched, Keyed{Key: f[1:end], UID: f[end+2:]})
		case strings.HasPrefix(f, ParticipantPrefix):
			m.Participant = f
		case strings.HasPrefix(f, AnchorPrefix), strings.HasPrefix(f, "-"+AnchorPrefix):
			a, b, ok := strings.Cut(f, "-")
			if !ok || !anchorEnd(a) || !anchorEnd(b) || a+b == "" {
				return MatchID{}, fmt.Errorf("match id %q: malformed anchor range %q", s, f)
			}
			m.StartAnchor, m.EndAnchor = a, b
		case strings.HasPrefix(f, "e"):
			if _, err := ParseUID(f); err != nil {
				return MatchID{}, fmt.Errorf("match id %q: defining annotation: %w", s, err)
			}
			m.Defining = f
		default:
			start, end, err := parseOffsets(f)
			if err != nil {
				return MatchID{}, fmt.Errorf("match id %q: %w", s, err)
			}
			m.StartOffset, m.EndOffset = start, end
		}
	}
	return m, nil
}

// Equal compares the fields that locate a match: transcript, bounding range,
// participant and defining annotation. Prefix, target and keyed matches are
// ignored.
func (m MatchID) Equal(other MatchID) bool {
	return m.Transcript == other.Transcript &&
		m.Defining == other.Defining &&
		m.StartAnchor == other.StartAnchor &&
		m.EndAnchor == other.EndAnchor &&
		equalOffset(m.StartOffset, other.StartOffset) &&
		equalOffset(m.EndOffset, other.EndOffset) &&
		m.Participant == other.Participant
}

// Lookup returns the uid stored under key in Matched.
func (m MatchID) Lookup(key string) (string, bool) {
	for _, k := range m.Matched {
		if k.Key == key {
			return k.UID, true
		}
	}
	return "", false
}

func equalOffset(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// anchorEnd reports whether s is one side of an anchor range.
func anchorEnd(s string) bool {
	return s == "" || strings.HasPrefix(s, AnchorPrefix)
}

func formatOffset(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// parseOffsets reads start-end, start- or -end.
func parseOffsets(f string) (*float64, *float64, error) {
	bad := fmt.Errorf("unrecognized field %q", f)
	if start, ok := strings.CutSuffix(f, "-"); ok {
		v, err := strconv.ParseFloat(start, 64)
		if err != nil {
			return nil, nil, bad
		}
		return &v, nil, nil
	}
	if end, ok := strings.CutPrefix(f, "-"); ok {
		if v, err := strconv.ParseFloat(end, 64); err == nil {
			return nil, &v, nil
		}
	}
	// the separator is the first '-' after the leading character
	i := strings.IndexByte(f[1:], '-')
	if i < 0 {
		return nil, nil, bad
	}
	i++
	start, err := strconv.ParseFloat(f[:i], 64)
	if err != nil {
		return nil, nil, bad
	}
	end, err := strconv.ParseFloat(f[i+1:], 64)
	if err != nil {
		return nil, nil, bad
	}
	return &start, &end, nil
}
