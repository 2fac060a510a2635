// Package ports declares the interfaces between the dataset-generation core
// and its external collaborators: the language-model backends, the paper
// corpus, the identifier mapping table, and the metrics sink.
package ports

import (
	"context"
	"time"

	"github.com/huihuang/mdaqa/internal/domain"
)

// LLMClient abstracts a language-model backend. Implementations handle
// provider-specific authentication, request formatting, and error
// classification; callers stay provider-agnostic.
type LLMClient interface {
	// Complete sends a prompt to the model and returns the raw response
	// text. The options map carries generation parameters understood by the
	// provider, commonly:
	//   - "temperature": float64
	//   - "max_tokens": int
	//   - "system": string (system prompt)
	Complete(ctx context.Context, prompt string, options map[string]any) (string, error)

	// EstimateTokens approximates the token count of text for budget
	// bookkeeping before a request is made.
	EstimateTokens(text string) (int, error)

	// GetModel returns the configured model identifier, used for logging.
	GetModel() string
}

// PaperStore resolves a public paper identifier to its pre-extracted text
// content. Lookup returns domain.ErrPaperNotFound (possibly wrapped) when no
// readable content exists for the identifier.
type PaperStore interface {
	Lookup(ctx context.Context, arxivID string) (string, error)
}

// IdentifierMapper translates internal paper identifiers into public
// identity. The second return value is false when the identifier has no
// entry in the mapping table.
type IdentifierMapper interface {
	Lookup(id domain.PaperID) (domain.PaperMeta, bool)
}

// MetricsCollector records operational metrics from the pipeline and the
// LLM client middleware. Implementations integrate with Prometheus or stay
// no-ops in tests.
type MetricsCollector interface {
	// RecordCounter increments a counter metric by value.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordLatency records the duration of an operation.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)
}
