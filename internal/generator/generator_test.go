package generator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huihuang/mdaqa/internal/domain"
	"github.com/huihuang/mdaqa/internal/testutils"
)

const validResponse = `{"question": "How do the two training objectives differ?", ` +
	`"answer": "The first paper trains contrastively while the second uses masking.", ` +
	`"support_ids": ["2101.00001", "2101.00002"]}`

func testFixtures(textLen int) (*testutils.MemoryStore, *testutils.MemoryMapper, domain.Community) {
	text := strings.Repeat("x", textLen)
	store := testutils.NewMemoryStore(map[string]string{
		"2101.00001": text,
		"2101.00002": text,
		"2101.00003": text,
	})
	mapper := testutils.NewMemoryMapper(map[domain.PaperID]domain.PaperMeta{
		"w1": {ArxivID: "2101.00001", Title: "Paper One"},
		"w2": {ArxivID: "2101.00002", Title: "Paper Two"},
		"w3": {ArxivID: "2101.00003", Title: "Paper Three"},
	})
	community := domain.Community{
		CommunityID: 11458,
		Papers:      []domain.PaperID{"w1", "w2", "w3"},
	}
	return store, mapper, community
}

func newTestGenerator(t *testing.T, llm *testutils.MockLLM, store *testutils.MemoryStore,
	mapper *testutils.MemoryMapper, budget int) *Generator {
	t.Helper()
	gen, err := New(store, mapper, llm, Config{
		MaxContentChars: budget,
		MaxAttempts:     2,
		Temperature:     0.7,
		MaxTokens:       2048,
	}, nil)
	require.NoError(t, err)
	return gen
}

func TestGenerateSuccess(t *testing.T) {
	store, mapper, community := testFixtures(600)
	llm := testutils.NewMockLLM().Enqueue(testutils.Response{Text: validResponse})
	gen := newTestGenerator(t, llm, store, mapper, 100000)

	result, err := gen.Generate(context.Background(), community)
	require.NoError(t, err)

	assert.Equal(t, 11458, result.Candidate.CommunityID)
	assert.Equal(t, []domain.PaperID{"w1", "w2"}, result.Candidate.Support)
	assert.Len(t, result.Papers, 3)

	calls := llm.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0], "**title**: Paper One")
	assert.Contains(t, calls[0], "**arxiv_id**: 2101.00003")
	assert.Contains(t, calls[0], `"support_ids"`)
}

func TestGenerateInsufficientPapers(t *testing.T) {
	text := strings.Repeat("x", 600)
	store := testutils.NewMemoryStore(map[string]string{"2101.00001": text})
	mapper := testutils.NewMemoryMapper(map[domain.PaperID]domain.PaperMeta{
		"w1": {ArxivID: "2101.00001", Title: "Paper One"},
		"w2": {ArxivID: "2101.00002", Title: "Paper Two"},
	})
	community := domain.Community{CommunityID: 5, Papers: []domain.PaperID{"w1", "w2", "w9"}}

	llm := testutils.NewMockLLM()
	gen := newTestGenerator(t, llm, store, mapper, 100000)

	_, err := gen.Generate(context.Background(), community)
	require.ErrorIs(t, err, domain.ErrInsufficientPapers)
	assert.Empty(t, llm.Calls(), "no model call should happen without enough papers")
}

func TestGenerateRecoversAfterStrippedSupport(t *testing.T) {
	store, mapper, community := testFixtures(600)

	// First response cites one real paper and one hallucinated id, leaving a
	// single valid support; second response is usable.
	hallucinated := `{"question": "How do the two training objectives differ?", ` +
		`"answer": "The first paper trains contrastively while the second uses masking.", ` +
		`"support_ids": ["2101.00001", "2199.77777"]}`
	llm := testutils.NewMockLLM().Enqueue(
		testutils.Response{Text: hallucinated},
		testutils.Response{Text: validResponse},
	)
	gen := newTestGenerator(t, llm, store, mapper, 100000)

	result, err := gen.Generate(context.Background(), community)
	require.NoError(t, err)
	assert.Equal(t, []domain.PaperID{"w1", "w2"}, result.Candidate.Support)

	calls := llm.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, calls[0], calls[1], "retry must reuse the identical prompt")
}

func TestGenerateExhaustsAttempts(t *testing.T) {
	store, mapper, community := testFixtures(600)
	llm := testutils.NewMockLLM().Enqueue(
		testutils.Response{Text: "not json at all"},
		testutils.Response{Text: `{"question": "q"}`},
	)
	gen := newTestGenerator(t, llm, store, mapper, 100000)

	_, err := gen.Generate(context.Background(), community)
	require.ErrorIs(t, err, domain.ErrMalformedResponse)
	assert.Len(t, llm.Calls(), 2)
}

func TestGenerateTransportErrorNotRetriedHere(t *testing.T) {
	store, mapper, community := testFixtures(600)
	transportErr := errors.New("connection reset")
	llm := testutils.NewMockLLM().Enqueue(testutils.Response{Err: transportErr})
	gen := newTestGenerator(t, llm, store, mapper, 100000)

	_, err := gen.Generate(context.Background(), community)
	require.ErrorIs(t, err, transportErr)
	assert.NotErrorIs(t, err, domain.ErrMalformedResponse)
	assert.Len(t, llm.Calls(), 1)
}

func TestGenerateBudgetExcludesLaterPapers(t *testing.T) {
	store, mapper, community := testFixtures(600)

	// 1200 chars fit exactly two papers; the third is left out of the prompt
	// and is therefore not a valid support paper.
	citesDropped := `{"question": "How do the two training objectives differ?", ` +
		`"answer": "The first paper trains contrastively while the second uses masking.", ` +
		`"support_ids": ["2101.00001", "2101.00003"]}`
	llm := testutils.NewMockLLM().Enqueue(
		testutils.Response{Text: citesDropped},
		testutils.Response{Text: citesDropped},
	)
	gen := newTestGenerator(t, llm, store, mapper, 1200)

	_, err := gen.Generate(context.Background(), community)
	require.ErrorIs(t, err, domain.ErrMalformedResponse)

	calls := llm.Calls()
	require.Len(t, calls, 2)
	assert.NotContains(t, calls[0], "**arxiv_id**: 2101.00003")
}

func TestGenerateBudgetCutKeepsValidText(t *testing.T) {
	// 400 CJK runes are 1200 bytes each; a 1900-byte budget lands the cut
	// for the second paper in the middle of a rune.
	text := strings.Repeat("界", 400)
	store := testutils.NewMemoryStore(map[string]string{
		"2101.00001": text,
		"2101.00002": text,
	})
	mapper := testutils.NewMemoryMapper(map[domain.PaperID]domain.PaperMeta{
		"w1": {ArxivID: "2101.00001", Title: "Paper One"},
		"w2": {ArxivID: "2101.00002", Title: "Paper Two"},
	})
	community := domain.Community{CommunityID: 11458, Papers: []domain.PaperID{"w1", "w2"}}

	llm := testutils.NewMockLLM().Enqueue(testutils.Response{Text: validResponse})
	gen := newTestGenerator(t, llm, store, mapper, 1900)

	result, err := gen.Generate(context.Background(), community)
	require.NoError(t, err)
	assert.Len(t, result.Candidate.Support, 2)

	calls := llm.Calls()
	require.Len(t, calls, 1)
	assert.True(t, utf8.ValidString(calls[0]))
}

func TestGenerateDuplicateMembersCollapse(t *testing.T) {
	store, mapper, _ := testFixtures(600)
	community := domain.Community{
		CommunityID: 11458,
		Papers:      []domain.PaperID{"w1", "w1", "w2"},
	}
	llm := testutils.NewMockLLM().Enqueue(testutils.Response{Text: validResponse})
	gen := newTestGenerator(t, llm, store, mapper, 100000)

	result, err := gen.Generate(context.Background(), community)
	require.NoError(t, err)
	assert.Len(t, result.Papers, 2)

	calls := llm.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 1, strings.Count(calls[0], "**arxiv_id**: 2101.00001"))
}
