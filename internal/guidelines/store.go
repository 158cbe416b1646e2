// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package guidelines maintains the local clinical guideline index: documents
// are chunked by heading and stored in SQLite with an FTS5 table over the
// chunk text.
package guidelines

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

const (
	docsDir  = "docs"
	indexDir = "index"
	dbFile   = "guidelines.db"
)

// Store manages the guideline SQLite database.
type Store struct {
	db         *sql.DB
	dir        string
	maxResults int
}

// NewStore opens or creates the database at dir/index/guidelines.db and
// creates the schema if it does not exist.
func NewStore(cfg types.GuidelinesConfig) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("guidelines directory not configured")
	}
	dbDir := filepath.Join(cfg.Dir, indexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dbDir, dbFile)+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}
	s := &Store{db: db, dir: cfg.Dir, maxResults: maxResults}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DocsDir returns the directory Ingest reads documents from.
func (s *Store) DocsDir() string {
	return filepath.Join(s.dir, docsDir)
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			organization TEXT,
			published TEXT,
			url TEXT,
			file_mod_time TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			doc_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			idx INTEGER NOT NULL,
			section TEXT,
			content TEXT NOT NULL,
			UNIQUE(doc_id, idx)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_doc_id ON chunks(doc_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='chunks_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}
	if ftsExists > 0 {
		return nil
	}

	ftsStatements := []string{
		`CREATE VIRTUAL TABLE chunks_fts USING fts5(section, content, content=chunks, content_rowid=rowid)`,
		`CREATE TRIGGER chunks_ai AFTER INSERT ON chunks BEGIN
			INSERT INTO chunks_fts(rowid, section, content) VALUES (new.rowid, new.section, new.content);
		END`,
		`CREATE TRIGGER chunks_ad AFTER DELETE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, section, content) VALUES('delete', old.rowid, old.section, old.content);
		END`,
		`CREATE TRIGGER chunks_au AFTER UPDATE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, section, content) VALUES('delete', old.rowid, old.section, old.content);
			INSERT INTO chunks_fts(rowid, section, content) VALUES (new.rowid, new.section, new.content);
		END`,
	}
	for _, stmt := range ftsStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("creating FTS infrastructure: %w", err)
		}
	}
	return nil
}

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// matchQuery turns free text into an FTS5 query: each token of two or more
// characters is quoted and the tokens are OR-joined, so punctuation in
// user text cannot break the MATCH syntax.
func matchQuery(text string) string {
	seen := make(map[string]bool)
	var terms []string
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if len([]rune(tok)) < 2 || seen[tok] {
			continue
		}
		seen[tok] = true
		terms = append(terms, `"`+tok+`"`)
	}
	return strings.Join(terms, " OR ")
}

// Search returns the chunks best matching query by bm25 rank. A limit of
// zero uses the configured default.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]types.GuidelineChunk, error) {
	match := matchQuery(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = s.maxResults
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT c.doc_id, c.idx, c.section, c.content,
			d.title, d.organization, d.published, d.url, bm25(chunks_fts) AS rank
		FROM chunks_fts
		JOIN chunks c ON c.rowid = chunks_fts.rowid
		JOIN documents d ON d.id = c.doc_id
		WHERE chunks_fts MATCH ?
		ORDER BY rank, c.doc_id, c.idx
		LIMIT ?`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("querying guidelines: %w", err)
	}
	defer rows.Close()

	var results []types.GuidelineChunk
	for rows.Next() {
		var (
			ch                types.GuidelineChunk
			section, org, pub sql.NullString
			url               sql.NullString
		)
		if err := rows.Scan(&ch.DocID, &ch.Index, &section, &ch.Text,
			&ch.Title, &org, &pub, &url, &ch.Rank); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		ch.Section = section.String
		ch.Organization = org.String
		ch.Published = pub.String
		ch.URL = url.String
		results = append(results, ch)
	}
	return results, rows.Err()
}

// Documents lists indexed documents with their chunk counts, ordered by id.
func (s *Store) Documents(ctx context.Context) ([]DocumentInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT d.id, d.title, d.organization, d.published, count(c.rowid)
		FROM documents d LEFT JOIN chunks c ON c.doc_id = d.id
		GROUP BY d.id ORDER BY d.id`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentInfo
	for rows.Next() {
		var (
			info     DocumentInfo
			org, pub sql.NullString
		)
		if err := rows.Scan(&info.ID, &info.Title, &org, &pub, &info.Chunks); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		info.Organization = org.String
		info.Published = pub.String
		out = append(out, info)
	}
	return out, rows.Err()
}

// DocumentInfo summarizes one indexed document.
type DocumentInfo struct {
	ID           string `json:"id" yaml:"id"`
	Title        string `json:"title" yaml:"title"`
	Organization string `json:"organization,omitempty" yaml:"organization,omitempty"`
	Published    string `json:"published,omitempty" yaml:"published,omitempty"`
	Chunks       int    `json:"chunks" yaml:"chunks"`
}
