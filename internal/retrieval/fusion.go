package retrieval

import (
	"fmt"
	"sort"
)

// fuse combines per-partition chunks according to mode, sorts them by
// boosted score (stable) and keeps the first chunk for each file name.
func fuse(mode AccessMode, byKind map[SourceType][]ContextChunk) ([]ContextChunk, error) {
	var combined []ContextChunk
	switch mode {
	case AccessPrivateOnly:
		combined = append(combined, byKind[SourcePrivate]...)
	case AccessSharedOnly:
		combined = append(combined, byKind[SourceShared]...)
	case AccessUnified:
		combined = append(combined, byKind[SourceShared]...)
		combined = append(combined, byKind[SourcePrivate]...)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidAccessMode, mode)
	}

	sort.SliceStable(combined, func(i, j int) bool {
		return combined[i].BoostedScore > combined[j].BoostedScore
	})

	seen := make(map[string]struct{}, len(combined))
	out := make([]ContextChunk, 0, len(combined))
	for _, c := range combined {
		if _, dup := seen[c.FileName]; dup {
			continue
		}
		seen[c.FileName] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}
