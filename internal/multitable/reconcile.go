package multitable

import (
	"context"
	"slices"

	"catalog/internal/transformer"
)

// Lookup reads dimension and course mappings back from the destination.
// storage.Tx satisfies it, so derivers observe the run's own writes.
type Lookup interface {
	SelectAllKeyValue(ctx context.Context, table, keyColumn, valueColumn string) (map[string]int64, error)
	SelectAllKeyText(ctx context.Context, table, keyColumn, valueColumn string) (map[string]string, error)
}

// foldKeys re-keys a lookup map by the normalized (lowercased, trimmed) key.
func foldKeys[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[transformer.Normalize(k)] = v
	}
	return out
}

// resolve maps every source value through m. ok[i] is false for values with
// no entry.
func resolve[K any](source []string, m map[string]K) (ids []K, ok []bool) {
	ids = make([]K, len(source))
	ok = make([]bool, len(source))
	for i, s := range source {
		ids[i], ok[i] = m[transformer.Normalize(s)]
	}
	return ids, ok
}

// reconcile checks that resolving source to ids was a bijection over the
// observed values: the sorted per-value occurrence counts must equal the
// sorted per-id occurrence counts of the resolved rows. An unresolved value
// or two values sharing an id both break the equality.
func reconcile[K comparable](table, field string, source []string, resolved []K, ok []bool) error {
	bySource := make(map[string]int, len(source))
	for _, s := range source {
		bySource[transformer.Normalize(s)]++
	}
	byID := make(map[K]int, len(resolved))
	for i, id := range resolved {
		if ok[i] {
			byID[id]++
		}
	}

	sc := sortedCounts(bySource)
	rc := sortedCounts(byID)
	if !slices.Equal(sc, rc) {
		return &ReferentialIntegrityError{Table: table, Field: field, SourceCounts: sc, ResolvedCounts: rc}
	}
	return nil
}

func sortedCounts[K comparable](m map[K]int) []int {
	out := make([]int, 0, len(m))
	for _, n := range m {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}
