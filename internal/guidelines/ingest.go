// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package guidelines

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// maxChunkChars bounds chunk size; longer sections are split at paragraph
// boundaries.
const maxChunkChars = 2000

// parseWorkers bounds concurrent document parsing during ingest.
var parseWorkers = 4

// IngestSummary holds counts from one ingest run.
type IngestSummary struct {
	Indexed int
	Updated int
	Skipped int
	Failed  int
}

// Total returns the number of documents processed.
func (s IngestSummary) Total() int {
	return s.Indexed + s.Updated + s.Skipped + s.Failed
}

type parsedDoc struct {
	file    string
	modTime string
	doc     types.GuidelineDocument
	chunks  []types.GuidelineSection
	err     error
}

// Ingest reads Markdown (with YAML front matter) and YAML guideline
// documents from the docs directory and indexes them. Unchanged files are
// skipped; changed files replace their previous chunks.
func (s *Store) Ingest(ctx context.Context, w io.Writer) (IngestSummary, error) {
	dir := s.DocsDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return IngestSummary{}, fmt.Errorf("reading guideline directory %s: %w", dir, err)
	}

	var files []os.DirEntry
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".md", ".yaml", ".yml":
			files = append(files, e)
		}
	}

	parsed := make([]parsedDoc, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parseWorkers)
	for i, e := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			parsed[i] = parseFile(filepath.Join(dir, e.Name()), e)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return IngestSummary{}, err
	}

	var summary IngestSummary
	for _, p := range parsed {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		if p.err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", p.file, p.err)
			summary.Failed++
			continue
		}

		var stored string
		err := s.db.QueryRowContext(ctx,
			`SELECT file_mod_time FROM documents WHERE id = ?`, p.doc.ID,
		).Scan(&stored)
		if err == nil && stored == p.modTime {
			fmt.Fprintf(w, "skipped %s\n", p.doc.ID)
			summary.Skipped++
			continue
		}
		isUpdate := err == nil

		if err := s.ingestDoc(ctx, p); err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", p.doc.ID, err)
			summary.Failed++
			continue
		}
		if isUpdate {
			fmt.Fprintf(w, "updated %s (%d chunks)\n", p.doc.ID, len(p.chunks))
			summary.Updated++
		} else {
			fmt.Fprintf(w, "indexing %s (%d chunks)\n", p.doc.ID, len(p.chunks))
			summary.Indexed++
		}
	}

	fmt.Fprintf(w, "\nindexed: %d, updated: %d, skipped: %d, failed: %d\n",
		summary.Indexed, summary.Updated, summary.Skipped, summary.Failed)
	return summary, nil
}

func (s *Store) ingestDoc(ctx context.Context, p parsedDoc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE doc_id = ?`, p.doc.ID); err != nil {
		return fmt.Errorf("deleting old chunks: %w", err)
	}

	d := p.doc
	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, title, organization, published, url, file_mod_time)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title=excluded.title, organization=excluded.organization,
			published=excluded.published, url=excluded.url,
			file_mod_time=excluded.file_mod_time`,
		d.ID, d.Title, d.Organization, d.Published, d.URL, p.modTime,
	)
	if err != nil {
		return fmt.Errorf("upserting document: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (doc_id, idx, section, content) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, ch := range p.chunks {
		if _, err := stmt.ExecContext(ctx, d.ID, i, ch.Heading, ch.Text); err != nil {
			return fmt.Errorf("inserting chunk %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func parseFile(path string, e os.DirEntry) parsedDoc {
	p := parsedDoc{file: e.Name()}
	info, err := e.Info()
	if err != nil {
		p.err = err
		return p
	}
	p.modTime = info.ModTime().UTC().Format(time.RFC3339Nano)

	data, err := os.ReadFile(path)
	if err != nil {
		p.err = err
		return p
	}

	stem := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
	if strings.EqualFold(filepath.Ext(e.Name()), ".md") {
		p.doc, p.chunks, p.err = ParseMarkdown(stem, string(data))
	} else {
		p.doc, p.chunks, p.err = ParseYAML(stem, data)
	}
	return p
}

// ParseYAML parses a YAML guideline document. id is used when the document
// declares none.
func ParseYAML(id string, data []byte) (types.GuidelineDocument, []types.GuidelineSection, error) {
	var doc types.GuidelineDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, nil, fmt.Errorf("parse error: %w", err)
	}
	if doc.ID == "" {
		doc.ID = id
	}
	if doc.Title == "" {
		return doc, nil, fmt.Errorf("document %s has no title", doc.ID)
	}

	var chunks []types.GuidelineSection
	for _, sec := range doc.Sections {
		chunks = append(chunks, splitSection(sec)...)
	}
	doc.Sections = nil
	if len(chunks) == 0 {
		return doc, nil, fmt.Errorf("document %s has no text", doc.ID)
	}
	return doc, chunks, nil
}

// ParseMarkdown parses a Markdown guideline with optional YAML front matter
// delimited by "---" lines. The title falls back to the first level-one
// heading.
func ParseMarkdown(id, content string) (types.GuidelineDocument, []types.GuidelineSection, error) {
	var doc types.GuidelineDocument
	body := content
	if front, rest, ok := splitFrontMatter(content); ok {
		if err := yaml.Unmarshal([]byte(front), &doc); err != nil {
			return doc, nil, fmt.Errorf("front matter: %w", err)
		}
		body = rest
	}
	if doc.ID == "" {
		doc.ID = id
	}

	var chunks []types.GuidelineSection
	for _, sec := range chunkByHeadings(body) {
		if sec.level == 1 && doc.Title == "" {
			doc.Title = sec.Heading
		}
		if strings.TrimSpace(sec.Text) == "" {
			continue
		}
		chunks = append(chunks, splitSection(sec.GuidelineSection)...)
	}
	if doc.Title == "" {
		return doc, nil, fmt.Errorf("document %s has no title", doc.ID)
	}
	if len(chunks) == 0 {
		return doc, nil, fmt.Errorf("document %s has no text", doc.ID)
	}
	return doc, chunks, nil
}

func splitFrontMatter(content string) (front, rest string, ok bool) {
	content = strings.TrimPrefix(content, "\ufeff")
	if !strings.HasPrefix(content, "---\n") && !strings.HasPrefix(content, "---\r\n") {
		return "", content, false
	}
	after := content[strings.Index(content, "\n")+1:]
	end := strings.Index(after, "\n---")
	if end < 0 {
		return "", content, false
	}
	front = after[:end]
	rest = after[end+len("\n---"):]
	if i := strings.Index(rest, "\n"); i >= 0 {
		rest = rest[i+1:]
	} else {
		rest = ""
	}
	return front, rest, true
}

type headedSection struct {
	types.GuidelineSection
	level int
}

// chunkByHeadings splits Markdown at #, ## and ### headings. Each section
// carries the heading text and the body up to the next heading.
func chunkByHeadings(content string) []headedSection {
	var (
		sections []headedSection
		current  headedSection
		body     []string
	)
	flush := func() {
		current.Text = strings.TrimSpace(strings.Join(body, "\n"))
		if current.Heading != "" || current.Text != "" {
			sections = append(sections, current)
		}
		body = nil
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if level := headingLevel(trimmed); level > 0 {
			flush()
			current = headedSection{level: level}
			current.Heading = strings.TrimSpace(trimmed[level:])
			continue
		}
		body = append(body, line)
	}
	flush()
	return sections
}

func headingLevel(line string) int {
	for level := 1; level <= 3; level++ {
		if strings.HasPrefix(line, strings.Repeat("#", level)+" ") {
			return level
		}
	}
	return 0
}

// splitSection breaks a section longer than maxChunkChars at blank-line
// paragraph boundaries. A single oversized paragraph stays whole.
func splitSection(sec types.GuidelineSection) []types.GuidelineSection {
	text := strings.TrimSpace(sec.Text)
	if text == "" {
		return nil
	}
	if len(text) <= maxChunkChars {
		return []types.GuidelineSection{{Heading: sec.Heading, Text: text}}
	}

	var (
		out []types.GuidelineSection
		buf strings.Builder
	)
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if buf.Len() > 0 && buf.Len()+len(para)+2 > maxChunkChars {
			out = append(out, types.GuidelineSection{Heading: sec.Heading, Text: buf.String()})
			buf.Reset()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(para)
	}
	if buf.Len() > 0 {
		out = append(out, types.GuidelineSection{Heading: sec.Heading, Text: buf.String()})
	}
	return out
}
