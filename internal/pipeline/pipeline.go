// Package pipeline orchestrates the full dataset build: generation across
// communities on a bounded worker pool, evaluation of each candidate, and
// final assembly. Output order always follows community order regardless of
// which worker finishes first, and finished stages are persisted so an
// interrupted run can resume.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/huihuang/mdaqa/internal/assembler"
	"github.com/huihuang/mdaqa/internal/domain"
	"github.com/huihuang/mdaqa/internal/evaluator"
	"github.com/huihuang/mdaqa/internal/generator"
	"github.com/huihuang/mdaqa/internal/ports"
)

// Config carries the orchestration parameters.
type Config struct {
	// Workers bounds how many communities are processed concurrently.
	Workers int

	// OutputDir receives the stage artifacts and the final dataset.
	OutputDir string

	// Resume skips communities already present in the generation artifact.
	Resume bool
}

// GenerationOutcome is one community's generation result. Papers is nil when
// the candidate was restored from a previous run's artifact; the evaluation
// stage resolves the support texts again in that case.
type GenerationOutcome struct {
	CommunityID int
	Candidate   domain.Candidate
	Papers      map[domain.PaperID]domain.PaperRecord
}

// Runner wires the three stages together.
type Runner struct {
	gen     *generator.Generator
	eval    *evaluator.Evaluator
	asm     *assembler.Assembler
	store   ports.PaperStore
	mapper  ports.IdentifierMapper
	metrics ports.MetricsCollector
	audit   *AuditLog
	logger  *zap.Logger
	config  Config
}

// NewRunner constructs a Runner. metrics and audit may be nil; a nil logger
// disables logging.
func NewRunner(gen *generator.Generator, eval *evaluator.Evaluator, asm *assembler.Assembler,
	store ports.PaperStore, mapper ports.IdentifierMapper,
	metrics ports.MetricsCollector, audit *AuditLog, logger *zap.Logger, config Config) (*Runner, error) {

	if gen == nil || eval == nil || asm == nil {
		return nil, fmt.Errorf("all three stages must be provided")
	}
	if store == nil || mapper == nil {
		return nil, fmt.Errorf("paper store and identifier mapper must be provided")
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		gen:     gen,
		eval:    eval,
		asm:     asm,
		store:   store,
		mapper:  mapper,
		metrics: metrics,
		audit:   audit,
		logger:  logger,
		config:  config,
	}, nil
}

// GenerateAll runs the generation stage over every community on the worker
// pool and persists the artifact. Communities that fail are audited and
// skipped; only context cancellation aborts the whole stage. Outcomes come
// back in community order.
func (r *Runner) GenerateAll(ctx context.Context, communities []domain.Community) ([]GenerationOutcome, error) {
	restored := make(map[int]domain.Candidate)
	if r.config.Resume {
		artifacts, err := LoadGenerated(r.config.OutputDir)
		if err != nil {
			return nil, fmt.Errorf("loading generation artifact: %w", err)
		}
		for _, a := range artifacts {
			restored[a.CommunityID] = a.Candidate
		}
		if len(restored) > 0 {
			r.logger.Info("resuming generation",
				zap.Int("already_generated", len(restored)))
		}
	}

	// One slot per community keeps output order independent of worker
	// scheduling. A nil slot marks a skipped community.
	outcomes := make([]*GenerationOutcome, len(communities))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Workers)
	for i, community := range communities {
		if candidate, ok := restored[community.CommunityID]; ok {
			outcomes[i] = &GenerationOutcome{
				CommunityID: community.CommunityID,
				Candidate:   candidate,
			}
			continue
		}
		g.Go(func() error {
			result, err := r.gen.Generate(gctx, community)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.skip(community.CommunityID, "generate", err, "")
				return nil
			}
			r.count("generation_success_total")
			outcomes[i] = &GenerationOutcome{
				CommunityID: community.CommunityID,
				Candidate:   result.Candidate,
				Papers:      result.Papers,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	kept := make([]GenerationOutcome, 0, len(communities))
	artifacts := make([]GeneratedArtifact, 0, len(communities))
	for _, outcome := range outcomes {
		if outcome == nil {
			continue
		}
		kept = append(kept, *outcome)
		artifacts = append(artifacts, GeneratedArtifact{
			CommunityID: outcome.CommunityID,
			Candidate:   outcome.Candidate,
		})
	}
	if err := SaveGenerated(r.config.OutputDir, artifacts); err != nil {
		return nil, err
	}
	r.logger.Info("generation stage complete",
		zap.Int("communities", len(communities)),
		zap.Int("generated", len(kept)))
	return kept, nil
}

// EvaluateAll judges every generated candidate on the worker pool and
// persists the artifact. Candidates whose judgment fails are audited and
// skipped. Results come back in input order.
func (r *Runner) EvaluateAll(ctx context.Context, generated []GenerationOutcome) ([]domain.EvaluationResult, error) {
	results := make([]*domain.EvaluationResult, len(generated))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Workers)
	for i, outcome := range generated {
		g.Go(func() error {
			papers := outcome.Papers
			if papers == nil {
				var err error
				papers, err = r.resolveSupport(gctx, outcome.Candidate)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					r.skip(outcome.CommunityID, "evaluate", err, outcome.Candidate.Question)
					return nil
				}
			}

			result, err := r.eval.Evaluate(gctx, outcome.Candidate, papers)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.skip(outcome.CommunityID, "evaluate", err, outcome.Candidate.Question)
				return nil
			}
			if result.Accepted {
				r.count("evaluation_accepted_total")
			} else {
				r.count("evaluation_rejected_total")
			}
			results[i] = &result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	kept := make([]domain.EvaluationResult, 0, len(generated))
	artifacts := make([]EvaluatedArtifact, 0, len(generated))
	for _, result := range results {
		if result == nil {
			continue
		}
		kept = append(kept, *result)
		artifacts = append(artifacts, EvaluatedArtifact{
			CommunityID: result.Candidate.CommunityID,
			Result:      *result,
		})
	}
	if err := SaveEvaluated(r.config.OutputDir, artifacts); err != nil {
		return nil, err
	}
	r.logger.Info("evaluation stage complete",
		zap.Int("evaluated", len(kept)))
	return kept, nil
}

// Assemble runs the final stage, persists the dataset, and audits dropped
// entries.
func (r *Runner) Assemble(results []domain.EvaluationResult) ([]domain.DatasetEntry, error) {
	entries, dropped := r.asm.Assemble(results)
	for _, d := range dropped {
		r.count("assembly_dropped_total")
		if r.audit != nil {
			if err := r.audit.Record(AuditEntry{
				CommunityID: d.CommunityID,
				Stage:       "assemble",
				Reason:      d.Reason,
			}); err != nil {
				r.logger.Warn("audit write failed", zap.Error(err))
			}
		}
	}
	if err := SaveDataset(r.config.OutputDir, entries); err != nil {
		return nil, err
	}
	r.logger.Info("dataset assembled",
		zap.Int("entries", len(entries)),
		zap.Int("dropped", len(dropped)))
	return entries, nil
}

// Run executes all three stages in sequence.
func (r *Runner) Run(ctx context.Context, communities []domain.Community) ([]domain.DatasetEntry, error) {
	generated, err := r.GenerateAll(ctx, communities)
	if err != nil {
		return nil, err
	}
	evaluated, err := r.EvaluateAll(ctx, generated)
	if err != nil {
		return nil, err
	}
	return r.Assemble(evaluated)
}

// resolveSupport rebuilds the paper records for a restored candidate's
// support set from the mapper and store.
func (r *Runner) resolveSupport(ctx context.Context, candidate domain.Candidate) (map[domain.PaperID]domain.PaperRecord, error) {
	papers := make(map[domain.PaperID]domain.PaperRecord, len(candidate.Support))
	for _, id := range candidate.Support {
		meta, ok := r.mapper.Lookup(id)
		if !ok {
			return nil, fmt.Errorf("support paper %s: %w", id, domain.ErrUnmappableIdentifier)
		}
		text, err := r.store.Lookup(ctx, meta.ArxivID)
		if err != nil {
			return nil, fmt.Errorf("support paper %s: %w", id, err)
		}
		papers[id] = domain.PaperRecord{
			ID:      id,
			Title:   meta.Title,
			ArxivID: meta.ArxivID,
			Text:    text,
		}
	}
	return papers, nil
}

func (r *Runner) skip(communityID int, stage string, cause error, question string) {
	r.logger.Warn("community skipped",
		zap.Int("community_id", communityID),
		zap.String("stage", stage),
		zap.Error(cause))
	r.count("communities_skipped_total")

	reason := "error"
	switch {
	case errors.Is(cause, domain.ErrInsufficientPapers):
		reason = "insufficient_papers"
	case errors.Is(cause, domain.ErrMalformedResponse):
		reason = "malformed_response"
	case errors.Is(cause, domain.ErrMalformedJudgment):
		reason = "malformed_judgment"
	case errors.Is(cause, domain.ErrUnmappableIdentifier):
		reason = "unmappable_identifier"
	}

	if r.audit != nil {
		if err := r.audit.Record(AuditEntry{
			CommunityID: communityID,
			Stage:       stage,
			Reason:      reason,
			Question:    question,
		}); err != nil {
			r.logger.Warn("audit write failed", zap.Error(err))
		}
	}
}

func (r *Runner) count(name string) {
	if r.metrics != nil {
		r.metrics.RecordCounter(name, 1, nil)
	}
}
