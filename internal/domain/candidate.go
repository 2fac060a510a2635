package domain

import "fmt"

// Candidate is an unvalidated, model-generated question-answer-support triple
// produced by the question generator for a single community.
type Candidate struct {
	CommunityID int `json:"community_id"`

	// Question is the synthesized multi-document question.
	Question string `json:"question"`

	// Answer is the model's answer, expected to synthesize content from at
	// least two of the supporting papers.
	Answer string `json:"answer"`

	// Support lists the papers the model used, in the order it cited them.
	// Every entry is guaranteed by the generator to be a member of the
	// originating community.
	Support []PaperID `json:"support"`
}

// Validate checks the structural invariants of a candidate against its
// originating community: non-empty question and answer, and at least two
// support papers all drawn from the community.
func (c Candidate) Validate(community Community) error {
	if c.CommunityID != community.CommunityID {
		return fmt.Errorf("candidate community %d does not match community %d",
			c.CommunityID, community.CommunityID)
	}
	if c.Question == "" {
		return fmt.Errorf("candidate for community %d has empty question", c.CommunityID)
	}
	if c.Answer == "" {
		return fmt.Errorf("candidate for community %d has empty answer", c.CommunityID)
	}
	if len(c.Support) < 2 {
		return fmt.Errorf("candidate for community %d has %d support papers, need at least 2",
			c.CommunityID, len(c.Support))
	}
	for _, id := range c.Support {
		if !community.Contains(id) {
			return fmt.Errorf("candidate for community %d cites paper %s outside the community",
				c.CommunityID, id)
		}
	}
	return nil
}

// Verdict is the quality judge's structured assessment of a candidate.
type Verdict struct {
	// Score is the judge's numeric quality score on the configured scale.
	Score float64 `json:"score"`

	// Pass is the judge's explicit multi-document validity decision.
	Pass bool `json:"pass"`

	// Reasoning is the judge's justification text, kept for auditing.
	Reasoning string `json:"reasoning"`
}

// EvaluationResult pairs a candidate with its verdict and the final
// accept/reject decision. Results are immutable once produced.
type EvaluationResult struct {
	Candidate Candidate `json:"candidate"`
	Verdict   Verdict   `json:"verdict"`

	// Accepted is true only when the verdict passes and the score meets the
	// configured acceptance threshold. Ambiguous verdicts never reach this
	// struct; they fail closed upstream.
	Accepted bool `json:"accepted"`
}

// DatasetEntry is the terminal, persisted record of the dataset. IDs are
// dense, strictly increasing, and assigned only at assembly time so they
// never depend on concurrent completion order.
type DatasetEntry struct {
	ID       int      `json:"id"`
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Support  []string `json:"support"`
}
