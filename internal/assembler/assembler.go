// Package assembler builds the final dataset from accepted evaluation
// results: entries get dense numeric identifiers starting at zero, and every
// supporting paper is rendered as its arXiv identifier. An entry whose
// support cannot be fully mapped is dropped rather than emitted partially.
package assembler

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/huihuang/mdaqa/internal/domain"
	"github.com/huihuang/mdaqa/internal/ports"
)

// Dropped records one entry excluded from the final dataset and why.
type Dropped struct {
	CommunityID int
	PaperID     domain.PaperID
	Reason      string
}

// Assembler maps accepted candidates into dataset entries.
type Assembler struct {
	mapper ports.IdentifierMapper
	logger *zap.Logger
}

// New constructs an Assembler. A nil logger disables logging.
func New(mapper ports.IdentifierMapper, logger *zap.Logger) (*Assembler, error) {
	if mapper == nil {
		return nil, fmt.Errorf("identifier mapper cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{mapper: mapper, logger: logger}, nil
}

// Assemble converts accepted results into dataset entries in input order.
// IDs are assigned densely from 0 over the entries that survive, so the same
// input always produces the same dataset. Rejected results are skipped;
// accepted results with unmappable support are dropped and reported in the
// second return value. The input slice is not mutated.
func (a *Assembler) Assemble(results []domain.EvaluationResult) ([]domain.DatasetEntry, []Dropped) {
	entries := make([]domain.DatasetEntry, 0, len(results))
	var dropped []Dropped

	for _, result := range results {
		if !result.Accepted {
			continue
		}

		support, bad := a.mapSupport(result.Candidate)
		if bad != nil {
			dropped = append(dropped, *bad)
			a.logger.Warn("dropping entry with unmappable support",
				zap.Int("community_id", bad.CommunityID),
				zap.String("paper_id", string(bad.PaperID)),
				zap.String("reason", bad.Reason))
			continue
		}

		entries = append(entries, domain.DatasetEntry{
			ID:       len(entries),
			Question: result.Candidate.Question,
			Answer:   result.Candidate.Answer,
			Support:  support,
		})
	}
	return entries, dropped
}

// mapSupport renders the candidate's support set as arXiv identifiers,
// preserving order. The first identifier without a usable mapping aborts the
// whole entry.
func (a *Assembler) mapSupport(candidate domain.Candidate) ([]string, *Dropped) {
	support := make([]string, 0, len(candidate.Support))
	for _, id := range candidate.Support {
		meta, ok := a.mapper.Lookup(id)
		if !ok || meta.ArxivID == "" {
			return nil, &Dropped{
				CommunityID: candidate.CommunityID,
				PaperID:     id,
				Reason:      domain.ErrUnmappableIdentifier.Error(),
			}
		}
		support = append(support, meta.ArxivID)
	}
	return support, nil
}
