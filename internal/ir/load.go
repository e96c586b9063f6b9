package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadMatrixFile reads a matrix from a .yaml/.yml or .json file.
func LoadMatrixFile(path string) (Matrix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Matrix{}, fmt.Errorf("read matrix %s: %w", path, err)
	}
	var m Matrix
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		m, err = ParseMatrixJSON(data)
	case ".yaml", ".yml":
		m, err = ParseMatrixYAML(data)
	default:
		return Matrix{}, fmt.Errorf("read matrix %s: unsupported extension", path)
	}
	if err != nil {
		return Matrix{}, fmt.Errorf("read matrix %s: %w", path, err)
	}
	return m, nil
}

// ParseMatrixYAML decodes a YAML matrix. Unknown fields are rejected.
func ParseMatrixYAML(data []byte) (Matrix, error) {
	var m Matrix
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return Matrix{}, fmt.Errorf("parse yaml: %w", err)
	}
	m.Normalize()
	return m, nil
}

// ParseMatrixJSON decodes a JSON matrix. Unknown fields are rejected.
func ParseMatrixJSON(data []byte) (Matrix, error) {
	var m Matrix
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return Matrix{}, fmt.Errorf("parse json: %w", err)
	}
	m.Normalize()
	return m, nil
}
