package domain

import "errors"

// Sentinel errors shared across the pipeline. Callers classify failures with
// errors.Is; every skip or drop decision maps to exactly one of these.
var (
	// ErrInsufficientPapers indicates that a community resolved to fewer
	// than two readable papers and cannot yield a multi-document question.
	ErrInsufficientPapers = errors.New("community has fewer than 2 resolvable papers")

	// ErrMalformedResponse indicates that the generation model's output
	// could not be parsed into a valid candidate after all retries.
	ErrMalformedResponse = errors.New("malformed generation response")

	// ErrMalformedJudgment indicates that the judge model's output could
	// not be parsed into a verdict after all retries.
	ErrMalformedJudgment = errors.New("malformed judgment response")

	// ErrUnmappableIdentifier indicates that a support paper has no public
	// identifier at assembly time.
	ErrUnmappableIdentifier = errors.New("paper has no public identifier")

	// ErrPaperNotFound indicates that the paper store holds no readable
	// content for the requested identifier.
	ErrPaperNotFound = errors.New("paper not found in corpus")
)
