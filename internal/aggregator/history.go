package aggregator

import (
	"sort"

	"github.com/KingofLakemoor/chainlink/internal/domain"
)

// MonthlySeries returns the last n months of history in ascending month order.
func MonthlySeries(monthly domain.MonthlyStats, n int) []domain.MonthlyPoint {
	keys := make([]string, 0, len(monthly))
	for k := range monthly {
		if ValidMonthKey(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if n > 0 && len(keys) > n {
		keys = keys[len(keys)-n:]
	}

	points := make([]domain.MonthlyPoint, 0, len(keys))
	for _, k := range keys {
		r := monthly[k]
		points = append(points, domain.MonthlyPoint{
			Month:   k,
			Wins:    r.Wins,
			Losses:  r.Losses,
			Pushes:  r.Pushes,
			WinRate: r.WinRate(),
		})
	}
	return points
}
