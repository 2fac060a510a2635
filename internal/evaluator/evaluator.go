// Package evaluator implements the LLM-as-judge quality gate: each candidate
// question is scored against its supporting papers and either accepted or
// rejected. Ambiguous judgments are rejections, never acceptances.
package evaluator

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

const judgeSystemPrompt = "You are a meticulous reviewer of question-answering " +
	"datasets built from academic papers. You always respond with a single " +
	"valid JSON object and nothing else."

var judgeTemplate = template.Must(template.New("judge").Parse(
	`Below is a candidate question-answer pair and the papers it claims to rely on.

Question: {{.Question}}

Answer: {{.Answer}}

{{range .Papers}}**title**: {{.Title}}
**arxiv_id**: {{.ArxivID}}
**content**: {{.Text}}

{{end}}Judge the pair on these criteria:
1. The question genuinely requires information from more than one of the papers.
2. The answer is faithful to the papers and contains no unsupported claims.
3. The question is clear, specific, and self-contained.

Score the pair from 1 (unusable) to 10 (excellent). Set "pass" to true only
if the pair requires multiple papers AND the answer is faithful.

Respond with exactly this JSON structure:
{"score": <number>, "pass": <true|false>, "reasoning": "<one or two sentences>"}`))

// Config carries the judge tuning parameters.
type Config struct {
	// AcceptThreshold is the minimum score an otherwise passing candidate
	// needs to be accepted.
	AcceptThreshold float64

	// MaxAttempts bounds repeated judge calls when responses fail to parse.
	MaxAttempts int

	// MaxContentChars caps the supporting paper content in the judge prompt.
	MaxContentChars int

	Temperature float64
	MaxTokens   int
}

// Evaluator scores candidates with a judge model.
type Evaluator struct {
	llm    ports.LLMClient
	config Config
	logger *zap.Logger
}

// New constructs an Evaluator. A nil logger disables logging.
func New(llm ports.LLMClient, config Config, logger *zap.Logger) (*Evaluator, error) {
	if llm == nil {
		return nil, fmt.Errorf("LLM client cannot be nil")
	}
	if config.AcceptThreshold <= 0 {
		return nil, fmt.Errorf("accept threshold must be positive")
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
	return &Evaluator{llm: llm, config: config, logger: logger}, nil
}

// Evaluate judges one candidate against the supplied paper records. It
// returns domain.ErrMalformedJudgment when the judge's output cannot be
// parsed within the attempt budget; such candidates are rejected, never
// silently accepted. The candidate is not mutated.
func (e *Evaluator) Evaluate(ctx context.Context, candidate domain.Candidate, papers map[domain.PaperID]domain.PaperRecord) (domain.EvaluationResult, error) {
	support, err := e.supportRecords(candidate, papers)
	if err != nil {
		return domain.EvaluationResult{}, err
	}

	prompt, err := buildJudgePrompt(candidate, support)
	if err != nil {
		return domain.EvaluationResult{}, fmt.Errorf("community %d: %w", candidate.CommunityID, err)
	}

	options := map[string]any{
		"temperature":   e.config.Temperature,
		"max_tokens":    e.config.MaxTokens,
		"system":        judgeSystemPrompt,
		"json_response": true,
	}

	var lastParseErr error
	for attempt := 1; attempt <= e.config.MaxAttempts; attempt++ {
		response, err := e.llm.Complete(ctx, prompt, options)
		if err != nil {
			return domain.EvaluationResult{}, fmt.Errorf("community %d: judge call failed: %w",
				candidate.CommunityID, err)
		}

		parsed, err := parse.Verdict(response)
		if err != nil {
			lastParseErr = err
			e.logger.Warn("judge response rejected",
				zap.Int("community_id", candidate.CommunityID),
				zap.Int("attempt", attempt),
				zap.Error(err))
			continue
		}

		verdict := domain.Verdict{
			Score:     *parsed.Score,
			Pass:      *parsed.Pass,
			Reasoning: parsed.Reasoning,
		}
		return domain.EvaluationResult{
			Candidate: candidate,
			Verdict:   verdict,
			Accepted:  verdict.Pass && verdict.Score >= e.config.AcceptThreshold,
		}, nil
	}

	return domain.EvaluationResult{}, fmt.Errorf("community %d: %d attempts exhausted (%v): %w",
		candidate.CommunityID, e.config.MaxAttempts, lastParseErr, domain.ErrMalformedJudgment)
}

// supportRecords gathers the paper records for the candidate's support set
// in support order, truncated to the judge's content budget.
func (e *Evaluator) supportRecords(candidate domain.Candidate, papers map[domain.PaperID]domain.PaperRecord) ([]domain.PaperRecord, error) {
	records := make([]domain.PaperRecord, 0, len(candidate.Support))
	remaining := e.config.MaxContentChars

	for _, id := range candidate.Support {
		rec, ok := papers[id]
		if !ok {
			return nil, fmt.Errorf("community %d: support paper %s has no record: %w",
				candidate.CommunityID, id, domain.ErrPaperNotFound)
		}
		rec = rec.TruncateText(remaining)
		remaining -= len(rec.Text)
		records = append(records, rec)
	}
	return records, nil
}

func buildJudgePrompt(candidate domain.Candidate, support []domain.PaperRecord) (string, error) {
	var buf bytes.Buffer
	err := judgeTemplate.Execute(&buf, struct {
		Question string
		Answer   string
		Papers   []domain.PaperRecord
	}{
		Question: candidate.Question,
		Answer:   candidate.Answer,
		Papers:   support,
	})
	if err != nil {
		return "", fmt.Errorf("executing judge template: %w", err)
	}
	return buf.String(), nil
}
