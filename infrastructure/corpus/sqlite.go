package corpus

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/huihuang/mdaqa/internal/domain"
	"github.com/huihuang/mdaqa/internal/ports"
)

const papersDDL = `CREATE TABLE IF NOT EXISTS papers (
  arxiv_id TEXT PRIMARY KEY,
  content  TEXT NOT NULL
)`

// SQLiteStore resolves paper content from a SQLite database, typically built
// once from a text-dump directory with ImportDir and shipped alongside the
// run configuration.
type SQLiteStore struct {
	db *sql.DB
}

var _ ports.PaperStore = (*SQLiteStore)(nil)

// OpenSQLiteStore opens (creating if necessary) a corpus database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening corpus database: %w", err)
	}

	// SQLite doesn't support concurrent writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(papersDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing corpus schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Lookup returns the stored text for an arXiv identifier, or
// domain.ErrPaperNotFound when absent.
func (s *SQLiteStore) Lookup(ctx context.Context, arxivID string) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx,
		`SELECT content FROM papers WHERE arxiv_id = ?`, arxivID).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("arxiv id %s: %w", arxivID, domain.ErrPaperNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("querying corpus for %s: %w", arxivID, err)
	}
	return content, nil
}

// Put stores (or replaces) the text for an arXiv identifier.
func (s *SQLiteStore) Put(ctx context.Context, arxivID, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO papers (arxiv_id, content) VALUES (?, ?)`,
		arxivID, content)
	if err != nil {
		return fmt.Errorf("storing paper %s: %w", arxivID, err)
	}
	return nil
}

// Count returns the number of stored papers.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM papers`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting papers: %w", err)
	}
	return n, nil
}

// ImportDir loads every usable "<arxivID>v<version>.txt" file under dir into
// the database, applying the same size and extraction-quality filters as
// FSStore. Later versions of the same paper overwrite earlier ones. It
// returns the number of papers imported.
func (s *SQLiteStore) ImportDir(ctx context.Context, dir string, minKB, maxKB int) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading corpus directory %s: %w", dir, err)
	}

	minSize := int64(minKB) * 1024
	maxSize := int64(maxKB) * 1024

	imported := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return imported, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}

		arxivID, ok := splitVersionedName(entry.Name())
		if !ok {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if minSize > 0 && info.Size() < minSize {
			continue
		}
		if maxSize > 0 && info.Size() > maxSize {
			continue
		}

		content, ok := readPaperFile(filepath.Join(dir, entry.Name()))
		if !ok {
			continue
		}
		if err := s.Put(ctx, arxivID, content); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}

// splitVersionedName strips the "v<N>.txt" suffix from a corpus file name,
// returning the bare arXiv identifier.
func splitVersionedName(name string) (string, bool) {
	base := strings.TrimSuffix(name, ".txt")
	idx := strings.LastIndex(base, "v")
	if idx <= 0 || idx == len(base)-1 {
		return "", false
	}
	for _, r := range base[idx+1:] {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return base[:idx], true
}
