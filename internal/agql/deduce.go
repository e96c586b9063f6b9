package agql

import (
	"fmt"

	"github.com/roach88/corpusql/internal/matchid"
	"github.com/roach88/corpusql/internal/schema"
)

// Deduce finds the layer an expression selects from. It scans the tree in
// pre-order, left to right, for an equality or list-membership test between
// id, layer.id or layerId and string literals, and returns the layer named
// by the first such test. Because the first candidate wins,
// "layer.id == 'word' && id == 'em_12_3'" selects word while the reversed
// conjunction selects utterance.
func Deduce(root Node, s *schema.Schema) (*schema.Layer, error) {
	var (
		found *schema.Layer
		err   error
	)
	walk(root, func(n Node) bool {
		ref, lits := candidate(n)
		if ref == "" {
			return true
		}
		for _, lit := range lits {
			if ref == "layer" {
				l, ok := s.Layer(lit)
				if !ok {
					err = fmt.Errorf("unknown layer %q", lit)
					return false
				}
				found = l
				return false
			}
			if l, ok := layerOfUID(lit, s); ok {
				found = l
				return false
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("cannot determine the layer to select from: compare id or layer.id with a literal")
	}
	return found, nil
}

// candidate reports whether n tests an identifying reference against string
// literals. ref is "layer" for layer.id / layerId and "id" for id.
func candidate(n Node) (ref string, lits []string) {
	switch x := n.(type) {
	case *Binary:
		if x.Op != OpEq {
			return "", nil
		}
		if r := idRef(x.L); r != "" {
			if s, ok := x.R.(*String); ok {
				return r, []string{s.Value}
			}
		}
		if r := idRef(x.R); r != "" {
			if s, ok := x.L.(*String); ok {
				return r, []string{s.Value}
			}
		}
	case *Call:
		m, ok := x.Fn.(*Member)
		if !ok || (m.Name != "includes" && m.Name != "includesAny") || len(x.Args) != 1 {
			return "", nil
		}
		list, ok := m.X.(*List)
		if !ok {
			return "", nil
		}
		r := idRef(x.Args[0])
		if r == "" {
			return "", nil
		}
		for _, item := range list.Items {
			if s, ok := item.(*String); ok {
				lits = append(lits, s.Value)
			}
		}
		if len(lits) > 0 {
			return r, lits
		}
	}
	return "", nil
}

func idRef(n Node) string {
	p := path(n)
	switch {
	case len(p) == 1 && p[0] == "id":
		return "id"
	case len(p) == 1 && p[0] == "layerId":
		return "layer"
	case len(p) == 2 && p[0] == "layer" && p[1] == "id":
		return "layer"
	}
	return ""
}

// layerOfUID resolves the layer an annotation uid belongs to. Anchor uids
// and uids of unknown layers resolve to nothing.
func layerOfUID(lit string, s *schema.Schema) (*schema.Layer, bool) {
	uid, err := matchid.ParseUID(lit)
	if err != nil {
		return nil, false
	}
	switch uid.Kind {
	case matchid.UIDTemporal:
		return s.ByKey(uid.Key)
	case matchid.UIDParticipant:
		return s.Layer(schema.ParticipantLayer)
	case matchid.UIDParticipantAttribute:
		return s.ByAttribute(schema.ClassParticipant, uid.Attribute)
	case matchid.UIDTranscriptAttribute:
		return s.ByAttribute(schema.ClassTranscript, uid.Attribute)
	}
	return nil, false
}
