package corpus

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/huihuang/mdaqa/internal/domain"
	"github.com/huihuang/mdaqa/internal/ports"
)

// JSONMapper is the identifier mapping table loaded from a static JSON file
// of the form {"<semantic id>": {"arxiv_id": "...", "title": "..."}}.
type JSONMapper struct {
	entries map[domain.PaperID]domain.PaperMeta
}

var _ ports.IdentifierMapper = (*JSONMapper)(nil)

// LoadJSONMapper reads and parses the mapping table at path.
func LoadJSONMapper(path string) (*JSONMapper, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mapping file %s: %w", path, err)
	}

	var entries map[domain.PaperID]domain.PaperMeta
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parsing mapping file %s: %w", path, err)
	}
	return &JSONMapper{entries: entries}, nil
}

// NewJSONMapper wraps an in-memory mapping table; used by tests and by
// callers that build the table elsewhere.
func NewJSONMapper(entries map[domain.PaperID]domain.PaperMeta) *JSONMapper {
	return &JSONMapper{entries: entries}
}

// Lookup returns the public identity for an internal paper identifier.
func (m *JSONMapper) Lookup(id domain.PaperID) (domain.PaperMeta, bool) {
	meta, ok := m.entries[id]
	if !ok || meta.ArxivID == "" {
		return domain.PaperMeta{}, false
	}
	return meta, true
}

// Len returns the number of mapped identifiers.
func (m *JSONMapper) Len() int { return len(m.entries) }
