package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/huihuang/mdaqa/internal/domain"
)

// LoadCommunities reads a communities file: a JSON object mapping community
// identifiers to their member paper identifiers, for example
// {"11458": ["id1", "id2", ...]}. Communities are returned sorted by numeric
// identifier so every load of the same file yields the same order.
func LoadCommunities(path string) ([]domain.Community, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading communities file: %w", err)
	}

	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing communities file %s: %w", path, err)
	}

	communities := make([]domain.Community, 0, len(raw))
	for key, members := range raw {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("community key %q is not numeric: %w", key, err)
		}
		papers := make([]domain.PaperID, len(members))
		for i, m := range members {
			papers[i] = domain.PaperID(m)
		}
		communities = append(communities, domain.Community{CommunityID: id, Papers: papers})
	}

	sort.Slice(communities, func(i, j int) bool {
		return communities[i].CommunityID < communities[j].CommunityID
	})
	return communities, nil
}
