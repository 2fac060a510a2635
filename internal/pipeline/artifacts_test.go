package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huihuang/mdaqa/internal/domain"
)

func TestGeneratedArtifactRoundTrip(t *testing.T) {
	dir := t.TempDir()

	artifacts := []GeneratedArtifact{
		{
			CommunityID: 11458,
			Candidate: domain.Candidate{
				CommunityID: 11458,
				Question:    "How do the approaches differ?",
				Answer:      "They use different objectives.",
				Support:     []domain.PaperID{"w1", "w2"},
			},
		},
	}
	require.NoError(t, SaveGenerated(dir, artifacts))

	loaded, err := LoadGenerated(dir)
	require.NoError(t, err)
	assert.Equal(t, artifacts, loaded)

	// No stray temp file left behind by the atomic write.
	_, err = os.Stat(filepath.Join(dir, GeneratedFile+".tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestLoadGeneratedMissingFile(t *testing.T) {
	loaded, err := LoadGenerated(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestLoadGeneratedCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, GeneratedFile), []byte("not json"), 0o644))

	_, err := LoadGenerated(dir)
	assert.Error(t, err)
}

func TestAuditLogAppends(t *testing.T) {
	dir := t.TempDir()

	first, err := OpenAuditLog(dir)
	require.NoError(t, err)
	require.NoError(t, first.Record(AuditEntry{CommunityID: 1, Stage: "generate", Reason: "malformed_response"}))
	require.NoError(t, first.Close())

	// Reopening appends rather than truncating.
	second, err := OpenAuditLog(dir)
	require.NoError(t, err)
	require.NoError(t, second.Record(AuditEntry{CommunityID: 2, Stage: "assemble", Reason: "unmappable_identifier"}))
	require.NoError(t, second.Close())

	data, err := os.ReadFile(filepath.Join(dir, AuditFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"community_id":1`)
	assert.Contains(t, string(data), `"community_id":2`)
}
