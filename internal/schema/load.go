package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// File is the on-disk shape of a schema definition.
type File struct {
	// ReplaceDefaults drops the standard layers; the file must then define them.
	ReplaceDefaults bool        `yaml:"replace_defaults" json:"replace_defaults"`
	Layers          []LayerSpec `yaml:"layers" json:"layers"`
}

// LayerSpec is the on-disk shape of one layer.
type LayerSpec struct {
	ID          string `yaml:"id" json:"id"`
	Parent      string `yaml:"parent" json:"parent"`
	Kind        string `yaml:"kind" json:"kind"`
	Scope       string `yaml:"scope" json:"scope"`
	Alignment   string `yaml:"alignment" json:"alignment"`
	Key         int    `yaml:"key" json:"key"`
	Class       string `yaml:"class" json:"class"`
	Attribute   string `yaml:"attribute" json:"attribute"`
	Description string `yaml:"description" json:"description"`
}

// LoadFile reads a schema from a .yaml/.yml or .cue file.
func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}

	var f File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = ParseYAML(data, &f)
	case ".cue":
		err = ParseCUE(data, path, &f)
	default:
		return nil, fmt.Errorf("read schema %s: unsupported extension", path)
	}
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	return f.Build()
}

// ParseYAML decodes a YAML schema document.
func ParseYAML(data []byte, f *File) error {
	if err := yaml.Unmarshal(data, f); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

// ParseCUE evaluates a CUE schema document and decodes it.
// The document must evaluate to a concrete value with the File shape.
func ParseCUE(data []byte, filename string, f *File) error {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return fmt.Errorf("compile cue: %w", err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validate cue: %w", err)
	}
	if err := v.Decode(f); err != nil {
		return fmt.Errorf("decode cue: %w", err)
	}
	return nil
}

// Build converts the file into a Schema.
func (f *File) Build() (*Schema, error) {
	var layers []Layer
	if !f.ReplaceDefaults {
		layers = DefaultLayers()
	}
	for _, def := range f.Layers {
		l, err := def.toLayer()
		if err != nil {
			return nil, err
		}
		layers = append(layers, l)
	}
	return New(layers...)
}

func (def LayerSpec) toLayer() (Layer, error) {
	kind, err := ParseKind(def.Kind)
	if err != nil {
		return Layer{}, fmt.Errorf("layer %q: %w", def.ID, err)
	}
	align, err := ParseAlignment(def.Alignment)
	if err != nil {
		return Layer{}, fmt.Errorf("layer %q: %w", def.ID, err)
	}

	l := Layer{
		ID:          def.ID,
		ParentID:    def.Parent,
		Kind:        kind,
		Alignment:   align,
		Description: def.Description,
	}
	switch kind {
	case KindTemporal:
		scope, err := ParseScope(def.Scope)
		if err != nil {
			return Layer{}, fmt.Errorf("layer %q: %w", def.ID, err)
		}
		l.Scope = scope
		l.Key = def.Key
	case KindAttribute:
		l.Class = def.Class
		l.Attribute = def.Attribute
		if l.Attribute == "" {
			l.Attribute = strings.TrimPrefix(def.ID, def.Class+"_")
		}
		l.Scope = ScopeEpisode
		if l.Class == ClassParticipant {
			l.Scope = ScopeParticipant
		}
		if l.ParentID == "" {
			l.ParentID = TranscriptLayer
			if l.Class == ClassParticipant {
				l.ParentID = ParticipantLayer
			}
		}
	case KindParticipant:
		l.Scope = ScopeParticipant
	case KindTranscript:
		l.Scope = ScopeEpisode
	}
	return l, nil
}
