package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultSquadImage is used when a squad has no image or its image is removed.
const DefaultSquadImage = "https://chainlink.st/icons/icon-256x256.png"

// Role is a member's role within a squad
type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleMember Role = "MEMBER"
)

// Stats is the aggregate of resolved picks for a squad or a member
type Stats struct {
	Coins  decimal.Decimal `json:"coins"`
	Wins   int64           `json:"wins"`
	Losses int64           `json:"losses"`
	Pushes int64           `json:"pushes"`
}

// Add returns the component-wise sum of s and delta.
func (s Stats) Add(delta Stats) Stats {
	return Stats{
		Coins:  s.Coins.Add(delta.Coins),
		Wins:   s.Wins + delta.Wins,
		Losses: s.Losses + delta.Losses,
		Pushes: s.Pushes + delta.Pushes,
	}
}

// Record drops the coins, leaving the win/loss/push counters.
func (s Stats) Record() LeagueRecord {
	return LeagueRecord{Wins: s.Wins, Losses: s.Losses, Pushes: s.Pushes}
}

// LeagueRecord is the per-league subtotal of outcomes
type LeagueRecord struct {
	Wins   int64 `json:"wins"`
	Losses int64 `json:"losses"`
	Pushes int64 `json:"pushes"`
}

func (r LeagueRecord) Add(delta LeagueRecord) LeagueRecord {
	return LeagueRecord{
		Wins:   r.Wins + delta.Wins,
		Losses: r.Losses + delta.Losses,
		Pushes: r.Pushes + delta.Pushes,
	}
}

// LeagueStats maps a league identifier to its record
type LeagueStats map[string]LeagueRecord

// MonthlyRecord is one month of squad history used for charting
type MonthlyRecord struct {
	Coins  decimal.Decimal `json:"coins"`
	Wins   int64           `json:"wins"`
	Losses int64           `json:"losses"`
	Pushes int64           `json:"pushes"`
}

func (r MonthlyRecord) Add(delta Stats) MonthlyRecord {
	return MonthlyRecord{
		Coins:  r.Coins.Add(delta.Coins),
		Wins:   r.Wins + delta.Wins,
		Losses: r.Losses + delta.Losses,
		Pushes: r.Pushes + delta.Pushes,
	}
}

// WinRate is wins over decided picks (pushes excluded), 0 when nothing was decided.
func (r MonthlyRecord) WinRate() float64 {
	decided := r.Wins + r.Losses
	if decided == 0 {
		return 0
	}
	return float64(r.Wins) / float64(decided)
}

// MonthlyStats maps a YYYYMM key to that month's record
type MonthlyStats map[string]MonthlyRecord

// Member is a user's role and personal statistics within one squad
type Member struct {
	UserID   string    `json:"user_id"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
	Stats    Stats     `json:"stats"`
}

// Squad is a persistent group of users sharing aggregated statistics.
//
// Score and Rank are projections of Stats and are only written by recomputation.
// Version is incremented on every persisted write and used for conditional updates.
type Squad struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Slug           string       `json:"slug"`
	Description    string       `json:"description"`
	Image          string       `json:"image"`
	ImageStorageID string       `json:"image_storage_id,omitempty"`
	Open           bool         `json:"open"`
	Active         bool         `json:"active"`
	Featured       bool         `json:"featured"`
	OwnerID        string       `json:"owner_id"`
	Score          float64      `json:"score"`
	Rank           int          `json:"rank"`
	Stats          Stats        `json:"stats"`
	StatsByLeague  LeagueStats  `json:"stats_by_league"`
	MonthlyStats   MonthlyStats `json:"monthly_stats"`
	Members        []Member     `json:"members"`
	Version        int64        `json:"version"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Member returns the roster entry for userID.
func (s *Squad) Member(userID string) (Member, bool) {
	for _, m := range s.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return Member{}, false
}

// Clone returns a deep copy; the maps and the member slice are not shared.
func (s Squad) Clone() Squad {
	out := s
	out.Members = append([]Member(nil), s.Members...)
	if s.StatsByLeague != nil {
		out.StatsByLeague = make(LeagueStats, len(s.StatsByLeague))
		for k, v := range s.StatsByLeague {
			out.StatsByLeague[k] = v
		}
	}
	if s.MonthlyStats != nil {
		out.MonthlyStats = make(MonthlyStats, len(s.MonthlyStats))
		for k, v := range s.MonthlyStats {
			out.MonthlyStats[k] = v
		}
	}
	return out
}

// User is the identity side of membership: a user belongs to at most one squad.
type User struct {
	ID      string `json:"id"`
	SquadID string `json:"squad_id,omitempty"`
}
