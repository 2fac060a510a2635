// Package domain defines the core data model for multi-document QA dataset
// generation: paper communities, candidate question-answer pairs, judge
// verdicts, and the final dataset entries.
package domain

import "unicode/utf8"

// PaperID is the opaque internal identifier for a paper within the corpus.
// In practice this is a Semantic Scholar content hash; the pipeline never
// interprets it beyond using it as a lookup key.
type PaperID string

// PaperMeta carries the public identity of a paper as resolved through the
// identifier mapping table.
type PaperMeta struct {
	// ArxivID is the public citation identifier (e.g. "2106.01234").
	ArxivID string `json:"arxiv_id"`

	// Title is the paper title from the mapping table.
	Title string `json:"title"`
}

// PaperRecord joins a paper's identity with its extracted text content.
// Records are assembled on demand for a single generation or evaluation call
// and are never persisted.
type PaperRecord struct {
	ID      PaperID `json:"id"`
	Title   string  `json:"title"`
	ArxivID string  `json:"arxiv_id,omitempty"`
	Text    string  `json:"text"`
}

// TruncateText caps the record's text at n bytes without splitting a
// multi-byte rune, backing off to the nearest rune boundary.
func (r PaperRecord) TruncateText(n int) PaperRecord {
	if n >= len(r.Text) {
		return r
	}
	for n > 0 && !utf8.RuneStart(r.Text[n]) {
		n--
	}
	r.Text = r.Text[:n]
	return r
}

// Community is a cluster of related papers produced by external community
// detection over the citation graph. It is read-only input to the pipeline.
type Community struct {
	CommunityID int       `json:"community_id"`
	Papers      []PaperID `json:"papers"`
}

// Valid reports whether the community can possibly yield a multi-document
// question: it needs at least two distinct member papers.
func (c Community) Valid() bool {
	if len(c.Papers) < 2 {
		return false
	}
	seen := make(map[PaperID]struct{}, len(c.Papers))
	for _, p := range c.Papers {
		seen[p] = struct{}{}
	}
	return len(seen) >= 2
}

// Contains reports whether id is a member of the community.
func (c Community) Contains(id PaperID) bool {
	for _, p := range c.Papers {
		if p == id {
			return true
		}
	}
	return false
}
