package scoring

import (
	"math"
	"sort"
)

// Tier is a discrete rank level
type Tier struct {
	Rank int    `json:"rank"`
	Name string `json:"name"`
}

// thresholds[i] is the lowest score of tier i+2. A score equal to a threshold
// belongs to the higher tier.
var thresholds = []float64{1000, 5000, 15000, 40000, 100000}

var tierNames = []string{"Rookie", "Bronze", "Silver", "Gold", "Platinum", "Legend"}

// ResolveRank maps a score to its tier number, 1 being the lowest. NaN maps to 1.
func ResolveRank(score float64) int {
	if math.IsNaN(score) {
		return 1
	}
	return sort.Search(len(thresholds), func(i int) bool {
		return thresholds[i] > score
	}) + 1
}

// ResolveTier is ResolveRank with the tier's name.
func ResolveTier(score float64) Tier {
	rank := ResolveRank(score)
	return Tier{Rank: rank, Name: tierNames[rank-1]}
}

// MinScore returns the lowest score of a tier; tier 1 has no lower bound.
func MinScore(rank int) (float64, bool) {
	if rank < 2 || rank > len(thresholds)+1 {
		return 0, false
	}
	return thresholds[rank-2], true
}
