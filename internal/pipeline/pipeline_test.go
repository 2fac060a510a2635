package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huihuang/mdaqa/internal/assembler"
	"github.com/huihuang/mdaqa/internal/domain"
	"github.com/huihuang/mdaqa/internal/evaluator"
	"github.com/huihuang/mdaqa/internal/generator"
	"github.com/huihuang/mdaqa/internal/testutils"
)

// fixture builds four communities of two papers each. The mock LLM is
// scripted per community: judge rules match on the generated question text
// and are registered first so they win on judge prompts.
type fixture struct {
	store       *testutils.MemoryStore
	mapper      *testutils.MemoryMapper
	llm         *testutils.MockLLM
	communities []domain.Community
}

func generationJSON(communityID int, arxivA, arxivB string) string {
	return fmt.Sprintf(`{"question": "Q-%d compares the two objectives?", `+
		`"answer": "Community %d answer synthesizing both papers.", `+
		`"support_ids": ["%s", "%s"]}`, communityID, communityID, arxivA, arxivB)
}

func newFixture() *fixture {
	papers := make(map[string]string)
	entries := make(map[domain.PaperID]domain.PaperMeta)
	var communities []domain.Community

	ids := []int{11458, 11459, 11460, 11461}
	for i, communityID := range ids {
		arxivA := fmt.Sprintf("21%02d.00001", i)
		arxivB := fmt.Sprintf("21%02d.00002", i)
		idA := domain.PaperID(fmt.Sprintf("w%da", communityID))
		idB := domain.PaperID(fmt.Sprintf("w%db", communityID))

		papers[arxivA] = strings.Repeat("a", 600)
		papers[arxivB] = strings.Repeat("b", 600)
		entries[idA] = domain.PaperMeta{ArxivID: arxivA, Title: "Paper A"}
		entries[idB] = domain.PaperMeta{ArxivID: arxivB, Title: "Paper B"}
		communities = append(communities, domain.Community{
			CommunityID: communityID,
			Papers:      []domain.PaperID{idA, idB},
		})
	}

	llm := testutils.NewMockLLM()
	// Judge verdicts, matched on the question each generation produced.
	llm.Respond("Q-11458", `{"score": 9, "pass": true, "reasoning": "Needs both papers clearly."}`)
	llm.Respond("Q-11459", `{"score": 4, "pass": true, "reasoning": "Answerable from one paper."}`)
	llm.Respond("Q-11461", `{"score": 8, "pass": true, "reasoning": "Needs both papers clearly."}`)
	// Generation responses, matched on a paper unique to each community.
	llm.Respond("2100.00001", generationJSON(11458, "2100.00001", "2100.00002"))
	llm.Respond("2101.00001", generationJSON(11459, "2101.00001", "2101.00002"))
	llm.Respond("2102.00001", "this community only ever gets malformed output")
	llm.Respond("2103.00001", generationJSON(11461, "2103.00001", "2103.00002"))

	return &fixture{
		store:       testutils.NewMemoryStore(papers),
		mapper:      testutils.NewMemoryMapper(entries),
		llm:         llm,
		communities: communities,
	}
}

func newTestRunner(t *testing.T, f *fixture, dir string, resume bool) (*Runner, *AuditLog) {
	t.Helper()

	gen, err := generator.New(f.store, f.mapper, f.llm, generator.Config{
		MaxContentChars: 100000,
		MaxAttempts:     2,
		Temperature:     0.7,
		MaxTokens:       2048,
	}, nil)
	require.NoError(t, err)

	eval, err := evaluator.New(f.llm, evaluator.Config{
		AcceptThreshold: 7.0,
		MaxAttempts:     2,
		MaxContentChars: 100000,
		MaxTokens:       1024,
	}, nil)
	require.NoError(t, err)

	asm, err := assembler.New(f.mapper, nil)
	require.NoError(t, err)

	audit, err := OpenAuditLog(dir)
	require.NoError(t, err)
	t.Cleanup(func() { audit.Close() })

	runner, err := NewRunner(gen, eval, asm, f.store, f.mapper, nil, audit, nil, Config{
		Workers:   4,
		OutputDir: dir,
		Resume:    resume,
	})
	require.NoError(t, err)
	return runner, audit
}

func TestRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	f := newFixture()
	runner, _ := newTestRunner(t, f, dir, false)

	entries, err := runner.Run(context.Background(), f.communities)
	require.NoError(t, err)

	// 11458 and 11461 are accepted, 11459 is rejected by score, 11460 never
	// produces parseable output. IDs are dense and follow community order.
	require.Len(t, entries, 2)
	assert.Equal(t, 0, entries[0].ID)
	assert.Equal(t, 1, entries[1].ID)
	assert.Contains(t, entries[0].Question, "Q-11458")
	assert.Contains(t, entries[1].Question, "Q-11461")
	assert.Equal(t, []string{"2100.00001", "2100.00002"}, entries[0].Support)

	var persisted []domain.DatasetEntry
	data, err := os.ReadFile(filepath.Join(dir, DatasetFile))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &persisted))
	assert.Equal(t, entries, persisted)
}

func TestRunWritesAudit(t *testing.T) {
	dir := t.TempDir()
	f := newFixture()
	runner, audit := newTestRunner(t, f, dir, false)

	_, err := runner.Run(context.Background(), f.communities)
	require.NoError(t, err)
	require.NoError(t, audit.Close())

	file, err := os.Open(filepath.Join(dir, AuditFile))
	require.NoError(t, err)
	defer file.Close()

	byCommunity := make(map[int]AuditEntry)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry AuditEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		byCommunity[entry.CommunityID] = entry
	}
	require.NoError(t, scanner.Err())

	malformed, ok := byCommunity[11460]
	require.True(t, ok, "malformed community must be audited")
	assert.Equal(t, "generate", malformed.Stage)
	assert.Equal(t, "malformed_response", malformed.Reason)

	_, accepted := byCommunity[11458]
	assert.False(t, accepted, "accepted community must not be audited")
}

func TestGenerateAllDeterministicOrder(t *testing.T) {
	dir := t.TempDir()
	f := newFixture()
	runner, _ := newTestRunner(t, f, dir, false)

	generated, err := runner.GenerateAll(context.Background(), f.communities)
	require.NoError(t, err)

	require.Len(t, generated, 3)
	assert.Equal(t, 11458, generated[0].CommunityID)
	assert.Equal(t, 11459, generated[1].CommunityID)
	assert.Equal(t, 11461, generated[2].CommunityID)
}

func TestGenerateAllResume(t *testing.T) {
	dir := t.TempDir()
	f := newFixture()
	runner, _ := newTestRunner(t, f, dir, false)

	first, err := runner.GenerateAll(context.Background(), f.communities)
	require.NoError(t, err)
	require.Len(t, first, 3)
	callsAfterFirst := len(f.llm.Calls())

	// A resumed run over the same communities restores everything that
	// succeeded and only re-attempts the malformed community.
	resumed, _ := newTestRunner(t, f, dir, true)
	second, err := resumed.GenerateAll(context.Background(), f.communities)
	require.NoError(t, err)

	require.Len(t, second, 3)
	for i := range first {
		assert.Equal(t, first[i].CommunityID, second[i].CommunityID)
		assert.Equal(t, first[i].Candidate, second[i].Candidate)
	}
	retried := len(f.llm.Calls()) - callsAfterFirst
	assert.Equal(t, 2, retried, "only the malformed community should be retried")
}

func TestEvaluateAllResolvesRestoredSupport(t *testing.T) {
	dir := t.TempDir()
	f := newFixture()
	runner, _ := newTestRunner(t, f, dir, false)

	// Outcomes without paper records force the evaluation stage to resolve
	// support texts from the mapper and store, as happens after a resume.
	generated := []GenerationOutcome{{
		CommunityID: 11458,
		Candidate: domain.Candidate{
			CommunityID: 11458,
			Question:    "Q-11458 compares the two objectives?",
			Answer:      "Community 11458 answer synthesizing both papers.",
			Support:     []domain.PaperID{"w11458a", "w11458b"},
		},
	}}

	results, err := runner.EvaluateAll(context.Background(), generated)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Accepted)
}
