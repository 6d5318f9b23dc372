// Package aggregator folds resolved pick outcomes into squad aggregates.
//
// Everything here is a pure function of its arguments: inputs are never mutated and
// every result is a fresh copy, so the same events can be replayed against a snapshot
// and compared. Persisting the result and recomputing score and rank is the caller's job.
package aggregator

import (
	"fmt"
	"time"

	"github.com/KingofLakemoor/chainlink/internal/domain"
)

// ApplyPickOutcome returns squad with outcome applied to the squad totals, the
// member's totals and the league bucket. Monthly stats are left alone; see RollupMonth.
func ApplyPickOutcome(squad domain.Squad, userID string, outcome domain.Outcome) (domain.Squad, error) {
	if err := outcome.Validate(); err != nil {
		return domain.Squad{}, err
	}

	idx := memberIndex(squad.Members, userID)
	if idx < 0 {
		return domain.Squad{}, fmt.Errorf("%w: user %s in squad %s", domain.ErrMemberNotFound, userID, squad.ID)
	}

	delta := outcome.Delta()
	next := squad.Clone()

	next.Stats = next.Stats.Add(delta)
	next.Members[idx].Stats = next.Members[idx].Stats.Add(delta)
	next.StatsByLeague = applyLeague(next.StatsByLeague, outcome.League, delta.Record())

	return next, nil
}

// RollupMonth returns a copy of monthly with outcome added to the month bucket.
// It is the hook for the monthly history rollup; ApplyPickOutcome never calls it.
func RollupMonth(monthly domain.MonthlyStats, month string, outcome domain.Outcome) (domain.MonthlyStats, error) {
	if err := outcome.Validate(); err != nil {
		return nil, err
	}
	if !ValidMonthKey(month) {
		return nil, fmt.Errorf("%w: month key %q", domain.ErrInvalidOutcome, month)
	}

	out := make(domain.MonthlyStats, len(monthly)+1)
	for k, v := range monthly {
		out[k] = v
	}
	out[month] = out[month].Add(outcome.Delta())
	return out, nil
}

// MonthKey formats t as the YYYYMM bucket key, in UTC.
func MonthKey(t time.Time) string {
	return t.UTC().Format("200601")
}

// ValidMonthKey reports whether key is a YYYYMM month.
func ValidMonthKey(key string) bool {
	if len(key) != 6 {
		return false
	}
	_, err := time.Parse("200601", key)
	return err == nil
}

func applyLeague(stats domain.LeagueStats, league string, delta domain.LeagueRecord) domain.LeagueStats {
	if stats == nil {
		stats = make(domain.LeagueStats, 1)
	}
	stats[league] = stats[league].Add(delta)
	return stats
}

func memberIndex(members []domain.Member, userID string) int {
	for i, m := range members {
		if m.UserID == userID {
			return i
		}
	}
	return -1
}
