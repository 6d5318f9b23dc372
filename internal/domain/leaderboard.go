package domain

import "time"

// LeaderboardEntry represents a single squad's position on the leaderboard
type LeaderboardEntry struct {
	Position int64   `json:"position"`
	SquadID  string  `json:"squad_id"`
	Name     string  `json:"name,omitempty"`
	Slug     string  `json:"slug,omitempty"`
	Image    string  `json:"image,omitempty"`
	Score    float64 `json:"score"`
	Rank     int     `json:"rank"`
	Tier     string  `json:"tier,omitempty"`

	// NextTierScore is the score needed for the next tier, absent at the top tier
	NextTierScore *float64 `json:"next_tier_score,omitempty"`
}

// ScoreRecord is the slice of a squad the leaderboard index is built from
type ScoreRecord struct {
	SquadID   string
	Score     float64
	Version   int64
	CreatedAt time.Time
}

// LeaderboardStats contains statistics about the leaderboard
type LeaderboardStats struct {
	TotalSquads int64   `json:"total_squads"`
	TopScore    float64 `json:"top_score,omitempty"`
}

// MonthlyPoint is one month of the squad history chart
type MonthlyPoint struct {
	Month   string  `json:"month"`
	Wins    int64   `json:"wins"`
	Losses  int64   `json:"losses"`
	Pushes  int64   `json:"pushes"`
	WinRate float64 `json:"win_rate"`
}
