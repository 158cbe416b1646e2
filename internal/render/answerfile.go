// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package render

import (
	"fmt"
	"io"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// AnswerFile is the on-disk form of one answered question. A saved answer
// can be re-rendered, for example as a bibliography, without re-running
// retrieval or generation.
type AnswerFile struct {
	Question  string        `yaml:"question"`
	Status    string        `yaml:"status"`
	Answer    *types.Answer `yaml:"answer"`
	Timestamp time.Time     `yaml:"timestamp"`
}

// now is the timestamp source; tests replace it.
var now = time.Now

// NewAnswerFile wraps a for saving.
func NewAnswerFile(a *types.Answer) AnswerFile {
	return AnswerFile{
		Question:  a.Query.Text,
		Status:    string(a.Status),
		Answer:    a,
		Timestamp: now().UTC(),
	}
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// WriteAnswerFile saves a to path as YAML.
func WriteAnswerFile(path string, a *types.Answer) error {
	data, err := yaml.Marshal(NewAnswerFile(a))
	if err != nil {
		return fmt.Errorf("marshaling answer file: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadAnswerFile loads an answer saved by WriteAnswerFile.
func ReadAnswerFile(path string) (*AnswerFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading answer file: %w", err)
	}
	var af AnswerFile
	if err := yaml.Unmarshal(data, &af); err != nil {
		return nil, fmt.Errorf("parsing answer file: %w", err)
	}
	if af.Answer == nil {
		return nil, fmt.Errorf("parsing answer file: %s has no answer", path)
	}
	return &af, nil
}
