// Package corpus provides the paper-store and identifier-mapper
// implementations backing the dataset pipeline: a filesystem store over a
// directory of pre-extracted paper text files, a SQLite store for imported
// corpora, and a JSON-backed identifier mapping table.
package corpus

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/huihuang/mdaqa/internal/domain"
	"github.com/huihuang/mdaqa/internal/ports"
)

// maxPaperVersion bounds the arXiv version suffix probed when locating a
// paper file.
const maxPaperVersion = 14

// FSStore resolves paper content from a directory of extracted text files
// named "<arxivID>v<version>.txt", the layout of the SPIQA text dump.
type FSStore struct {
	dir string

	// minSize and maxSize filter out stub extractions and oversized files;
	// zero disables the respective bound.
	minSize int64
	maxSize int64
}

var _ ports.PaperStore = (*FSStore)(nil)

// NewFSStore creates a store over dir. minKB and maxKB bound acceptable file
// sizes in kilobytes; zero disables a bound.
func NewFSStore(dir string, minKB, maxKB int) (*FSStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("corpus directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("corpus path %s is not a directory", dir)
	}
	return &FSStore{
		dir:     dir,
		minSize: int64(minKB) * 1024,
		maxSize: int64(maxKB) * 1024,
	}, nil
}

// Lookup returns the extracted text for an arXiv identifier, probing version
// suffixes in ascending order. Files outside the size bounds or starting
// with a raw LaTeX section marker are treated as unusable extractions.
// Returns domain.ErrPaperNotFound when no usable file exists.
func (s *FSStore) Lookup(ctx context.Context, arxivID string) (string, error) {
	for version := 1; version <= maxPaperVersion; version++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		path := filepath.Join(s.dir, fmt.Sprintf("%sv%d.txt", arxivID, version))
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if s.minSize > 0 && info.Size() < s.minSize {
			continue
		}
		if s.maxSize > 0 && info.Size() > s.maxSize {
			continue
		}

		content, ok := readPaperFile(path)
		if ok {
			return content, nil
		}
	}
	return "", fmt.Errorf("arxiv id %s: %w", arxivID, domain.ErrPaperNotFound)
}

// readPaperFile loads one extraction, rejecting files whose first line still
// contains LaTeX section markup (a sign the extraction failed upstream).
func readPaperFile(path string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	firstLine, err := reader.ReadString('\n')
	if err != nil && firstLine == "" {
		return "", false
	}
	if strings.Contains(firstLine, `\section`) {
		return "", false
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return strings.ReplaceAll(string(raw), "\n\n", "\n"), true
}
