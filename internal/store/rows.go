package store

import "sort"

// ProjectRows flattens map-shaped rows (keyed by original column name) into
// positional value slices ordered by sanitized column name.
//
// The sanitized order is sorted so every backend builds byte-identical SQL
// for the same mapping regardless of map iteration order. Missing keys
// become SQL NULLs.
func ProjectRows(rows []map[string]any, mapping map[string]string) (columns []string, values [][]any) {
	type pair struct{ orig, sanitized string }
	pairs := make([]pair, 0, len(mapping))
	for orig, san := range mapping {
		pairs = append(pairs, pair{orig, san})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].sanitized < pairs[j].sanitized })

	columns = make([]string, len(pairs))
	for i, p := range pairs {
		columns[i] = p.sanitized
	}

	values = make([][]any, len(rows))
	for i, row := range rows {
		vals := make([]any, len(pairs))
		for j, p := range pairs {
			if v, ok := row[p.orig]; ok {
				vals[j] = v
			}
		}
		values[i] = vals
	}
	return columns, values
}
