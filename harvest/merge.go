package harvest

import (
	"slices"
	"strings"

	"github.com/teranos/lpharvest/logpoint"
)

// Merge concatenates the repositories' records in request order, drops repeated
// identities (first occurrence wins), orders by timestamp descending with
// identity ascending on ties, and truncates to limit.
func Merge(results []RepoResult, limit int) []logpoint.RawRecord {
	total := 0
	for _, r := range results {
		total += len(r.Records)
	}

	merged := make([]logpoint.RawRecord, 0, total)
	seen := make(map[string]struct{}, total)
	for _, r := range results {
		for _, rec := range r.Records {
			if _, dup := seen[rec.ID]; dup {
				continue
			}
			seen[rec.ID] = struct{}{}
			merged = append(merged, rec)
		}
	}

	slices.SortStableFunc(merged, Compare)

	if limit >= 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// Compare orders records newest first, then by identity
func Compare(a, b logpoint.RawRecord) int {
	switch {
	case a.Timestamp.After(b.Timestamp):
		return -1
	case a.Timestamp.Before(b.Timestamp):
		return 1
	}
	return strings.Compare(a.ID, b.ID)
}
