// Package parse turns loosely structured model output into typed values.
// All tolerance heuristics (markdown fences, surrounding prose, near-miss
// identifier echoes) live here so the generator and evaluator retry logic
// stays deterministic and testable without a model in the loop.
package parse

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"

	"github.com/huihuang/mdaqa/internal/domain"
)

var (
	validate = validator.New()

	// foldCaser is a package-level Unicode case folder so identifier
	// normalization does not allocate a caser per call.
	foldCaser = cases.Fold()
)

// GenerationResponse is the JSON contract the generation prompt demands from
// the model.
type GenerationResponse struct {
	Question string `json:"question" validate:"required,min=10"`
	Answer   string `json:"answer" validate:"required,min=10"`

	// SupportIDs lists the identifiers of the papers the model claims to
	// have used, in citation order.
	SupportIDs []string `json:"support_ids" validate:"required,min=2"`
}

// VerdictResponse is the JSON contract the judging prompt demands.
type VerdictResponse struct {
	// Score is the judge's quality score on a 1-10 scale.
	Score *float64 `json:"score" validate:"required"`

	// Pass is the judge's explicit multi-document validity decision. A
	// pointer distinguishes an absent field from an explicit false.
	Pass *bool `json:"pass" validate:"required"`

	Reasoning string `json:"reasoning" validate:"required,min=10"`
}

// Generation extracts and validates a GenerationResponse from raw model
// output.
func Generation(response string) (GenerationResponse, error) {
	jsonStr := ExtractJSON(response)
	if jsonStr == "" {
		return GenerationResponse{}, fmt.Errorf("no JSON object found in response (%d chars)", len(response))
	}

	var parsed GenerationResponse
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return GenerationResponse{}, fmt.Errorf("decoding generation response: %w", err)
	}
	if err := validate.Struct(parsed); err != nil {
		return GenerationResponse{}, fmt.Errorf("incomplete generation response: %w", err)
	}

	parsed.Question = strings.TrimSpace(parsed.Question)
	parsed.Answer = strings.TrimSpace(parsed.Answer)
	return parsed, nil
}

// Verdict extracts and validates a VerdictResponse from raw judge output.
func Verdict(response string) (VerdictResponse, error) {
	jsonStr := ExtractJSON(response)
	if jsonStr == "" {
		return VerdictResponse{}, fmt.Errorf("no JSON object found in response (%d chars)", len(response))
	}

	var parsed VerdictResponse
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return VerdictResponse{}, fmt.Errorf("decoding verdict response: %w", err)
	}
	if err := validate.Struct(parsed); err != nil {
		return VerdictResponse{}, fmt.Errorf("incomplete verdict response: %w", err)
	}
	if *parsed.Score < 1 || *parsed.Score > 10 {
		return VerdictResponse{}, fmt.Errorf("verdict score %.2f outside the 1-10 scale", *parsed.Score)
	}
	return parsed, nil
}

// minFuzzyLen is the shortest identifier eligible for fuzzy matching; below
// this a single edit covers too much of the identifier space.
const minFuzzyLen = 8

// ResolveSupport maps the identifiers a model claims to have used onto the
// papers actually supplied in the prompt. Claimed entries may echo either
// the internal identifier or the arXiv identifier; matching is
// case-insensitive after trimming. An edit distance of 1 is tolerated for
// identifiers of at least eight characters, but only when the match is
// unambiguous: an identifier with another supplied identifier within
// distance 2 never matches fuzzily, and a claim within distance 1 of more
// than one paper is treated as hallucinated. Identifiers that match nothing
// supplied are dropped; the result preserves claimed order without
// duplicates.
func ResolveSupport(claimed []string, supplied []domain.PaperRecord) []domain.PaperID {
	matcher := newSupportMatcher(supplied)
	resolved := make([]domain.PaperID, 0, len(claimed))
	seen := make(map[domain.PaperID]struct{}, len(claimed))

	for _, raw := range claimed {
		id, ok := matcher.match(raw)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		resolved = append(resolved, id)
	}
	return resolved
}

// supportMatcher resolves claimed identifiers against the supplied papers.
// Each paper is known by its normalized internal and arXiv forms.
type supportMatcher struct {
	records []domain.PaperRecord
	forms   [][]string

	// fuzzyOK marks the forms eligible for distance-1 matching. arXiv ids
	// of papers in the same community routinely differ by a single digit,
	// so a form with any other paper's form within distance 2 must match
	// exactly: one tolerated edit on top of that gap would attribute
	// support to a paper the model never cited.
	fuzzyOK [][]bool
}

func newSupportMatcher(supplied []domain.PaperRecord) *supportMatcher {
	m := &supportMatcher{
		records: supplied,
		forms:   make([][]string, len(supplied)),
		fuzzyOK: make([][]bool, len(supplied)),
	}
	for i, rec := range supplied {
		m.forms[i] = []string{normalizeID(string(rec.ID)), normalizeID(rec.ArxivID)}
	}
	for i, forms := range m.forms {
		m.fuzzyOK[i] = make([]bool, len(forms))
		for j, form := range forms {
			m.fuzzyOK[i][j] = len(form) >= minFuzzyLen && !m.hasNearForm(i, form)
		}
	}
	return m
}

// hasNearForm reports whether any other paper's identifier sits within
// distance 2 of form.
func (m *supportMatcher) hasNearForm(owner int, form string) bool {
	for i, forms := range m.forms {
		if i == owner {
			continue
		}
		for _, other := range forms {
			if other != "" && levenshtein.ComputeDistance(form, other) <= 2 {
				return true
			}
		}
	}
	return false
}

func (m *supportMatcher) match(claimed string) (domain.PaperID, bool) {
	norm := normalizeID(claimed)
	if norm == "" {
		return "", false
	}

	for i, forms := range m.forms {
		for _, form := range forms {
			if form != "" && norm == form {
				return m.records[i].ID, true
			}
		}
	}

	if len(norm) < minFuzzyLen {
		return "", false
	}

	// A fuzzy match must be unique across all supplied papers; a claim
	// near two of them is a hallucination, not a typo.
	matched := -1
	for i, forms := range m.forms {
		for j, form := range forms {
			if !m.fuzzyOK[i][j] {
				continue
			}
			if levenshtein.ComputeDistance(norm, form) <= 1 {
				if matched >= 0 && matched != i {
					return "", false
				}
				matched = i
			}
		}
	}
	if matched < 0 {
		return "", false
	}
	return m.records[matched].ID, true
}

func normalizeID(s string) string {
	return foldCaser.String(strings.TrimSpace(s))
}

// ExtractJSON pulls a JSON object out of model output that may wrap it in
// markdown code fences or surrounding prose. It returns the empty string
// when no balanced object can be found.
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)

	if idx := strings.Index(response, "```json"); idx != -1 {
		rest := response[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end != -1 {
			return strings.TrimSpace(rest[:end])
		}
	}

	if idx := strings.Index(response, "```"); idx != -1 {
		rest := response[idx+3:]
		if nl := strings.Index(rest, "\n"); nl != -1 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end != -1 {
			candidate := strings.TrimSpace(rest[:end])
			if strings.HasPrefix(candidate, "{") {
				return candidate
			}
		}
	}

	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}

	// Walk to the matching closing brace, ignoring braces inside strings.
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		ch := response[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			escaped = true
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return response[start : i+1]
				}
			}
		}
	}
	return ""
}
