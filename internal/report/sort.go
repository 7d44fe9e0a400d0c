package report

import (
	"slices"

	"github.com/anstrom/bannerscan/internal/scanning"
)

// sortedByPort returns a port-ordered copy; scan results arrive in completion order.
func sortedByPort(results []scanning.PortResult) []scanning.PortResult {
	sorted := slices.Clone(results)
	slices.SortFunc(sorted, func(a, b scanning.PortResult) int {
		return int(a.Port) - int(b.Port)
	})
	return sorted
}
