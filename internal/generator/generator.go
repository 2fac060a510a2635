// Package generator implements the question-generation stage: it assembles
// the text of a community's papers into a single prompt, asks the model for
// a question whose answer requires several of those papers, and parses the
// response into a validated candidate.
package generator

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"go.uber.org/zap"

	"github.com/huihuang/mdaqa/internal/domain"
	"github.com/huihuang/mdaqa/internal/parse"
	"github.com/huihuang/mdaqa/internal/ports"
)

// minPaperChars is the smallest content slice worth including for a paper.
// A paper that cannot get at least this much of the budget is left out of
// the prompt entirely rather than represented by a useless fragment.
const minPaperChars = 500

const systemPrompt = "You are an expert at constructing question-answering " +
	"datasets from collections of academic papers. You always respond with " +
	"a single valid JSON object and nothing else."

// generationTemplate builds the user prompt. The support_ids contract uses
// the arXiv identifiers shown in the paper headers so the model echoes
// identifiers it has actually seen.
var generationTemplate = template.Must(template.New("generation").Parse(
	`You are given {{len .Papers}} related academic papers.

{{range .Papers}}**title**: {{.Title}}
**arxiv_id**: {{.ArxivID}}
**content**: {{.Text}}

{{end}}Write one question-answer pair that satisfies all of the following:
1. The question cannot be answered from any single paper alone.
2. The answer synthesizes content from at least two of the papers above.
3. You explicitly list the arxiv_id of every paper you used.

Respond with exactly this JSON structure:
{"question": "<the question>", "answer": "<the answer>", "support_ids": ["<arxiv_id>", ...]}`))

// Config carries the generator tuning parameters.
type Config struct {
	// MaxContentChars caps the total paper content placed in the prompt.
	// Papers earlier in community order take priority when it is exceeded.
	MaxContentChars int

	// MaxAttempts is the number of model calls allowed per community when
	// responses fail to parse; the prompt is identical on every attempt.
	MaxAttempts int

	// Temperature and MaxTokens are passed through to the model.
	Temperature float64
	MaxTokens   int
}

// Result is a successfully generated candidate together with the paper
// records that were embedded in its prompt, which the evaluator reuses.
type Result struct {
	Candidate domain.Candidate
	Papers    map[domain.PaperID]domain.PaperRecord
}

// Generator turns a community into a candidate QA pair.
type Generator struct {
	store  ports.PaperStore
	mapper ports.IdentifierMapper
	llm    ports.LLMClient
	config Config
	logger *zap.Logger
}

// New constructs a Generator. A nil logger disables logging.
func New(store ports.PaperStore, mapper ports.IdentifierMapper, llm ports.LLMClient, config Config, logger *zap.Logger) (*Generator, error) {
	if store == nil {
		return nil, fmt.Errorf("paper store cannot be nil")
	}
	if mapper == nil {
		return nil, fmt.Errorf("identifier mapper cannot be nil")
	}
	if llm == nil {
		return nil, fmt.Errorf("LLM client cannot be nil")
	}
	if config.MaxContentChars <= 0 {
		return nil, fmt.Errorf("content budget must be positive")
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		store:  store,
		mapper: mapper,
		llm:    llm,
		config: config,
		logger: logger,
	}, nil
}

// Generate produces a candidate for one community. It fails with
// domain.ErrInsufficientPapers when fewer than two papers resolve, and with
// domain.ErrMalformedResponse when the model's output cannot be parsed into
// a valid candidate within the attempt budget. Inputs are never mutated.
func (g *Generator) Generate(ctx context.Context, community domain.Community) (Result, error) {
	if !community.Valid() {
		return Result{}, fmt.Errorf("community %d has fewer than 2 distinct papers: %w",
			community.CommunityID, domain.ErrInsufficientPapers)
	}

	records, err := g.resolvePapers(ctx, community)
	if err != nil {
		return Result{}, err
	}

	records = g.fitBudget(community.CommunityID, records)
	if len(records) < 2 {
		return Result{}, fmt.Errorf("community %d: %d papers fit the content budget: %w",
			community.CommunityID, len(records), domain.ErrInsufficientPapers)
	}

	prompt, err := buildPrompt(records)
	if err != nil {
		return Result{}, fmt.Errorf("community %d: %w", community.CommunityID, err)
	}

	options := map[string]any{
		"temperature":   g.config.Temperature,
		"max_tokens":    g.config.MaxTokens,
		"system":        systemPrompt,
		"json_response": true,
	}

	var lastParseErr error
	for attempt := 1; attempt <= g.config.MaxAttempts; attempt++ {
		response, err := g.llm.Complete(ctx, prompt, options)
		if err != nil {
			return Result{}, fmt.Errorf("community %d: generation call failed: %w",
				community.CommunityID, err)
		}

		candidate, err := g.parseCandidate(community, records, response)
		if err != nil {
			lastParseErr = err
			g.logger.Warn("generation response rejected",
				zap.Int("community_id", community.CommunityID),
				zap.Int("attempt", attempt),
				zap.Error(err))
			continue
		}

		papers := make(map[domain.PaperID]domain.PaperRecord, len(records))
		for _, rec := range records {
			papers[rec.ID] = rec
		}
		return Result{Candidate: candidate, Papers: papers}, nil
	}

	return Result{}, fmt.Errorf("community %d: %d attempts exhausted (%v): %w",
		community.CommunityID, g.config.MaxAttempts, lastParseErr, domain.ErrMalformedResponse)
}

// resolvePapers builds a PaperRecord for every member paper that has both a
// mapping entry and readable corpus content, preserving community order.
// Unresolvable papers are skipped with a warning.
func (g *Generator) resolvePapers(ctx context.Context, community domain.Community) ([]domain.PaperRecord, error) {
	records := make([]domain.PaperRecord, 0, len(community.Papers))
	seen := make(map[domain.PaperID]struct{}, len(community.Papers))

	for _, id := range community.Papers {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		meta, ok := g.mapper.Lookup(id)
		if !ok {
			g.logger.Warn("paper has no identifier mapping",
				zap.Int("community_id", community.CommunityID),
				zap.String("paper_id", string(id)))
			continue
		}

		text, err := g.store.Lookup(ctx, meta.ArxivID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			g.logger.Warn("paper content unavailable",
				zap.Int("community_id", community.CommunityID),
				zap.String("paper_id", string(id)),
				zap.String("arxiv_id", meta.ArxivID),
				zap.Error(err))
			continue
		}

		records = append(records, domain.PaperRecord{
			ID:      id,
			Title:   meta.Title,
			ArxivID: meta.ArxivID,
			Text:    text,
		})
	}

	if len(records) < 2 {
		return nil, fmt.Errorf("community %d: %d of %d papers resolvable: %w",
			community.CommunityID, len(records), len(community.Papers), domain.ErrInsufficientPapers)
	}
	return records, nil
}

// fitBudget truncates paper text so the total stays within the configured
// budget. Earlier papers keep their full text for as long as the budget
// allows; a paper that would receive less than minPaperChars is dropped
// along with everything after it.
func (g *Generator) fitBudget(communityID int, records []domain.PaperRecord) []domain.PaperRecord {
	remaining := g.config.MaxContentChars
	fitted := make([]domain.PaperRecord, 0, len(records))

	for _, rec := range records {
		if remaining < minPaperChars {
			g.logger.Warn("content budget exhausted, dropping remaining papers",
				zap.Int("community_id", communityID),
				zap.Int("included", len(fitted)),
				zap.Int("dropped", len(records)-len(fitted)))
			break
		}
		rec = rec.TruncateText(remaining)
		remaining -= len(rec.Text)
		fitted = append(fitted, rec)
	}
	return fitted
}

func buildPrompt(records []domain.PaperRecord) (string, error) {
	var buf bytes.Buffer
	err := generationTemplate.Execute(&buf, struct{ Papers []domain.PaperRecord }{Papers: records})
	if err != nil {
		return "", fmt.Errorf("executing generation template: %w", err)
	}
	return buf.String(), nil
}

// parseCandidate decodes the model response and validates the claimed
// support against the papers actually supplied. Identifiers outside the
// supplied set are stripped; fewer than two surviving supports is a parse
// failure.
func (g *Generator) parseCandidate(community domain.Community, records []domain.PaperRecord, response string) (domain.Candidate, error) {
	parsed, err := parse.Generation(response)
	if err != nil {
		return domain.Candidate{}, err
	}

	support := parse.ResolveSupport(parsed.SupportIDs, records)
	if len(support) < 2 {
		return domain.Candidate{}, fmt.Errorf("only %d of %d claimed support papers match the supplied set",
			len(support), len(parsed.SupportIDs))
	}

	candidate := domain.Candidate{
		CommunityID: community.CommunityID,
		Question:    parsed.Question,
		Answer:      parsed.Answer,
		Support:     support,
	}
	if err := candidate.Validate(community); err != nil {
		return domain.Candidate{}, err
	}
	return candidate, nil
}
