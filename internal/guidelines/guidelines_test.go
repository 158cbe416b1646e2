// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package guidelines

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

const htnGuideline = `---
id: htn-2024
title: Hypertension Management Guideline
organization: National Heart Society
published: "2024-03-01"
url: https://example.org/htn-2024
---
# Hypertension Management Guideline

## Diagnosis

Confirm elevated office blood pressure with ambulatory monitoring before starting therapy.

## First-line therapy

Thiazide diuretics, ACE inhibitors, ARBs or calcium channel blockers are recommended as first-line agents for most adults with hypertension.
`

const diabetesGuideline = `id: t2dm-2023
title: Type 2 Diabetes Standards
organization: Diabetes Association
published: "2023"
sections:
  - heading: Pharmacologic therapy
    text: Metformin remains the preferred initial agent for type 2 diabetes when tolerated.
  - heading: Cardiovascular risk
    text: SGLT2 inhibitors reduce heart failure hospitalization in type 2 diabetes.
`

func testStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, docsDir), 0o755))
	s, err := NewStore(types.GuidelinesConfig{Dir: dir, MaxResults: 5})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func writeDoc(t *testing.T, s *Store, name, content string) string {
	t.Helper()
	path := filepath.Join(s.DocsDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewStore_RequiresDir(t *testing.T) {
	_, err := NewStore(types.GuidelinesConfig{})
	assert.Error(t, err)
}

func TestIngestAndSearch(t *testing.T) {
	s := testStore(t)
	writeDoc(t, s, "htn.md", htnGuideline)
	writeDoc(t, s, "t2dm.yaml", diabetesGuideline)
	writeDoc(t, s, "notes.txt", "ignored")

	var out bytes.Buffer
	summary, err := s.Ingest(context.Background(), &out)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Indexed)
	assert.Equal(t, 2, summary.Total())
	assert.Contains(t, out.String(), "indexing htn-2024 (2 chunks)")

	chunks, err := s.Search(context.Background(), "first-line therapy for hypertension?", 0)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	top := chunks[0]
	assert.Equal(t, "htn-2024", top.DocID)
	assert.Equal(t, "First-line therapy", top.Section)
	assert.Equal(t, "National Heart Society", top.Organization)
	assert.Equal(t, "https://example.org/htn-2024", top.URL)
	assert.Equal(t, "2024-03-01", top.Published)

	chunks, err = s.Search(context.Background(), "metformin", 1)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "t2dm-2023", chunks[0].DocID)
	assert.Equal(t, 0, chunks[0].Index)
}

func TestIngest_Incremental(t *testing.T) {
	s := testStore(t)
	path := writeDoc(t, s, "htn.md", htnGuideline)

	_, err := s.Ingest(context.Background(), &bytes.Buffer{})
	require.NoError(t, err)

	summary, err := s.Ingest(context.Background(), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)

	updated := strings.Replace(htnGuideline, "ambulatory monitoring", "home monitoring", 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	summary, err = s.Ingest(context.Background(), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)

	docs, err := s.Documents(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, 2, docs[0].Chunks)

	chunks, err := s.Search(context.Background(), "ambulatory", 0)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestIngest_BadDocumentCountsAsFailed(t *testing.T) {
	s := testStore(t)
	writeDoc(t, s, "broken.yaml", "title: [unclosed")
	writeDoc(t, s, "untitled.md", "no headings here\n")

	var out bytes.Buffer
	summary, err := s.Ingest(context.Background(), &out)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Failed)
	assert.Contains(t, out.String(), "failed  broken.yaml")
}

func TestSearch_PunctuationOnly(t *testing.T) {
	s := testStore(t)
	chunks, err := s.Search(context.Background(), "?? -- !!", 0)
	require.NoError(t, err)
	assert.Nil(t, chunks)
}

func TestMatchQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ACE inhibitors?", `"ace" OR "inhibitors"`},
		{"a b", ""},
		{`"quoted" AND NOT`, `"quoted" OR "and" OR "not"`},
		{"HbA1c hba1c", `"hba1c"`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, matchQuery(tt.in))
		})
	}
}

func TestParseMarkdown_TitleFromHeading(t *testing.T) {
	doc, chunks, err := ParseMarkdown("asthma", "# Asthma Guide\n\n## Step therapy\n\nUse inhaled corticosteroids.\n")
	require.NoError(t, err)
	assert.Equal(t, "asthma", doc.ID)
	assert.Equal(t, "Asthma Guide", doc.Title)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Step therapy", chunks[0].Heading)
}

func TestSplitSection(t *testing.T) {
	para := strings.Repeat("word ", 300)
	text := para + "\n\n" + para + "\n\n" + para
	chunks := splitSection(types.GuidelineSection{Heading: "Long", Text: text})
	require.Len(t, chunks, 3)
	for _, ch := range chunks {
		assert.Equal(t, "Long", ch.Heading)
		assert.LessOrEqual(t, len(ch.Text), maxChunkChars)
	}

	assert.Nil(t, splitSection(types.GuidelineSection{Heading: "Empty", Text: "  "}))
}
