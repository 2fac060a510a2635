package corpus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huihuang/mdaqa/internal/domain"
)

func TestLoadJSONMapper(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "abc123": {"arxiv_id": "2101.00001", "title": "Paper One"},
  "def456": {"arxiv_id": "", "title": "Lost Paper"}
}`), 0o644))

	mapper, err := LoadJSONMapper(path)
	require.NoError(t, err)
	assert.Equal(t, 2, mapper.Len())

	meta, ok := mapper.Lookup("abc123")
	require.True(t, ok)
	assert.Equal(t, "2101.00001", meta.ArxivID)
	assert.Equal(t, "Paper One", meta.Title)

	_, ok = mapper.Lookup("def456")
	assert.False(t, ok, "entry without an arXiv id is unmappable")

	_, ok = mapper.Lookup("missing")
	assert.False(t, ok)
}

func TestLoadJSONMapperErrors(t *testing.T) {
	_, err := LoadJSONMapper(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))
	_, err = LoadJSONMapper(path)
	assert.Error(t, err)
}

func TestLoadCommunities(t *testing.T) {
	path := filepath.Join(t.TempDir(), "communities.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "11458": ["a", "b", "c"],
  "7": ["d", "e"],
  "203": ["f", "g"]
}`), 0o644))

	communities, err := LoadCommunities(path)
	require.NoError(t, err)
	require.Len(t, communities, 3)

	// Numeric order, independent of JSON key order.
	assert.Equal(t, 7, communities[0].CommunityID)
	assert.Equal(t, 203, communities[1].CommunityID)
	assert.Equal(t, 11458, communities[2].CommunityID)
	assert.Equal(t, []domain.PaperID{"a", "b", "c"}, communities[2].Papers)
}

func TestLoadCommunitiesErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadCommunities(filepath.Join(dir, "absent.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"not-a-number": ["a"]}`), 0o644))
	_, err = LoadCommunities(bad)
	assert.Error(t, err)
}
