// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys and credentials from a directory of plain-text files.
// Each file in the directory represents one secret: the filename is the key name and the
// file contents (trimmed) are the value.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/evidence-engine/internal/logging"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Supported key files.
const (
	KeyNCBI            = "ncbi-api-key"
	KeyTavily          = "tavily-api-key"
	KeyOpenAI          = "openai-api-key"
	KeySemanticScholar = "semantic-scholar-api-key"
	KeyOpenAlexEmail   = "openalex-email"
)

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files are logged and skipped.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logging.New("secrets").Warn("could not read secret", "name", name, "error", err)
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// Apply copies loaded secrets into cfg. Values already set in cfg win, so a
// key in the config file or environment overrides the secrets directory.
func Apply(cfg *types.Config, secrets map[string]string) {
	if cfg.Retrieval.Sources == nil {
		cfg.Retrieval.Sources = make(map[string]types.SourceConfig)
	}
	setSource := func(src types.Source, key string, email bool) {
		v := secrets[key]
		if v == "" {
			return
		}
		sc := cfg.Retrieval.Sources[string(src)]
		switch {
		case email && sc.Email == "":
			sc.Email = v
		case !email && sc.APIKey == "":
			sc.APIKey = v
		}
		cfg.Retrieval.Sources[string(src)] = sc
	}
	setSource(types.SourcePubMed, KeyNCBI, false)
	setSource(types.SourceTavily, KeyTavily, false)
	setSource(types.SourceSemanticScholar, KeySemanticScholar, false)
	setSource(types.SourceOpenAlex, KeyOpenAlexEmail, true)

	if v := secrets[KeyOpenAI]; v != "" {
		if cfg.Synthesis.APIKey == "" {
			cfg.Synthesis.APIKey = v
		}
		if cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = v
		}
	}
}
