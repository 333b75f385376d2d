package importer

import (
	"github.com/lazarus/tiss-importer/internal/tiss"
)

// Consolidate merges procedure items that share a code into a single item,
// summing quantity and total value. First-occurrence order is preserved and
// the first item's descriptive fields win. Items without a code are never
// merged with each other.
func Consolidate(items []tiss.ProcedureItem) []tiss.ProcedureItem {
	var out []tiss.ProcedureItem
	index := make(map[string]int, len(items))

	for _, item := range items {
		if item.Code == "" {
			out = append(out, item)
			continue
		}
		if i, ok := index[item.Code]; ok {
			out[i].Quantity += item.Quantity
			out[i].TotalValue += item.TotalValue
			continue
		}
		index[item.Code] = len(out)
		out = append(out, item)
	}
	return out
}
