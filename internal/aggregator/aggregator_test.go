package aggregator

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/KingofLakemoor/chainlink/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSquad() domain.Squad {
	joined := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return domain.Squad{
		ID:      "squad-1",
		Name:    "Sharps",
		Slug:    "sharps",
		OwnerID: "user-1",
		Active:  true,
		Stats: domain.Stats{
			Coins: decimal.RequireFromString("40"),
			Wins:  3,
		},
		StatsByLeague: domain.LeagueStats{
			"NFL": {Wins: 3},
		},
		MonthlyStats: domain.MonthlyStats{},
		Members: []domain.Member{
			{UserID: "user-1", Role: domain.RoleOwner, JoinedAt: joined, Stats: domain.Stats{Coins: decimal.RequireFromString("40"), Wins: 3}},
			{UserID: "user-2", Role: domain.RoleMember, JoinedAt: joined.Add(time.Hour)},
		},
		Version: 7,
	}
}

func snapshot(t *testing.T, s domain.Squad) string {
	t.Helper()
	data, err := json.Marshal(s)
	require.NoError(t, err)
	return string(data)
}

func outcome(status domain.PickStatus, coins, league string) domain.Outcome {
	return domain.Outcome{Status: status, Coins: decimal.RequireFromString(coins), League: league}
}

func TestApplyPickOutcome_Win(t *testing.T) {
	squad := testSquad()

	got, err := ApplyPickOutcome(squad, "user-2", outcome(domain.PickWin, "5", "NBA"))
	require.NoError(t, err)

	assert.Equal(t, squad.Stats.Wins+1, got.Stats.Wins)
	assert.True(t, got.Stats.Coins.Equal(squad.Stats.Coins.Add(decimal.NewFromInt(5))))
	assert.Equal(t, squad.Stats.Losses, got.Stats.Losses)
	assert.Equal(t, squad.Stats.Pushes, got.Stats.Pushes)
	assert.Equal(t, domain.LeagueRecord{Wins: 1}, got.StatsByLeague["NBA"])
	assert.Equal(t, domain.LeagueRecord{Wins: 3}, got.StatsByLeague["NFL"])

	member, ok := got.Member("user-2")
	require.True(t, ok)
	assert.Equal(t, int64(1), member.Stats.Wins)
	assert.True(t, member.Stats.Coins.Equal(decimal.NewFromInt(5)))

	other, _ := got.Member("user-1")
	assert.Equal(t, int64(3), other.Stats.Wins)
	assert.Empty(t, got.MonthlyStats)
}

func TestApplyPickOutcome_LossAndPush(t *testing.T) {
	squad := testSquad()

	got, err := ApplyPickOutcome(squad, "user-1", outcome(domain.PickLoss, "0", "NFL"))
	require.NoError(t, err)
	got, err = ApplyPickOutcome(got, "user-1", outcome(domain.PickPush, "2.5", "NFL"))
	require.NoError(t, err)

	assert.Equal(t, int64(3), got.Stats.Wins)
	assert.Equal(t, int64(1), got.Stats.Losses)
	assert.Equal(t, int64(1), got.Stats.Pushes)
	assert.Equal(t, "42.5", got.Stats.Coins.String())
	assert.Equal(t, domain.LeagueRecord{Wins: 3, Losses: 1, Pushes: 1}, got.StatsByLeague["NFL"])
}

func TestApplyPickOutcome_DoesNotMutateInput(t *testing.T) {
	squad := testSquad()
	before := snapshot(t, squad)

	_, err := ApplyPickOutcome(squad, "user-1", outcome(domain.PickWin, "10", "MLB"))
	require.NoError(t, err)

	assert.Equal(t, before, snapshot(t, squad))
}

func TestApplyPickOutcome_NilLeagueStats(t *testing.T) {
	squad := testSquad()
	squad.StatsByLeague = nil

	got, err := ApplyPickOutcome(squad, "user-1", outcome(domain.PickWin, "1", "NHL"))
	require.NoError(t, err)
	assert.Equal(t, domain.LeagueRecord{Wins: 1}, got.StatsByLeague["NHL"])
	assert.Nil(t, squad.StatsByLeague)
}

func TestApplyPickOutcome_Commutative(t *testing.T) {
	events := []struct {
		user    string
		outcome domain.Outcome
	}{
		{"user-1", outcome(domain.PickWin, "12.25", "NBA")},
		{"user-2", outcome(domain.PickLoss, "0", "NBA")},
		{"user-2", outcome(domain.PickPush, "3.1", "NFL")},
		{"user-1", outcome(domain.PickWin, "0.75", "MLB")},
	}

	apply := func(order []int) string {
		squad := testSquad()
		for _, i := range order {
			var err error
			squad, err = ApplyPickOutcome(squad, events[i].user, events[i].outcome)
			require.NoError(t, err)
		}
		return snapshot(t, squad)
	}

	want := apply([]int{0, 1, 2, 3})
	assert.Equal(t, want, apply([]int{3, 2, 1, 0}))
	assert.Equal(t, want, apply([]int{1, 3, 0, 2}))
	assert.Equal(t, want, apply([]int{2, 0, 3, 1}))
}

func TestApplyPickOutcome_MemberNotFound(t *testing.T) {
	squad := testSquad()
	before := snapshot(t, squad)

	got, err := ApplyPickOutcome(squad, "stranger", outcome(domain.PickWin, "5", "NBA"))

	assert.ErrorIs(t, err, domain.ErrMemberNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, got.ID)
	assert.Equal(t, before, snapshot(t, squad))
}

func TestApplyPickOutcome_InvalidOutcome(t *testing.T) {
	tests := []struct {
		name    string
		outcome domain.Outcome
	}{
		{"unknown status", outcome("DRAW", "1", "NBA")},
		{"negative coins", outcome(domain.PickWin, "-1", "NBA")},
		{"missing league", outcome(domain.PickWin, "1", "")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			squad := testSquad()
			before := snapshot(t, squad)

			_, err := ApplyPickOutcome(squad, "user-1", tt.outcome)

			assert.ErrorIs(t, err, domain.ErrInvalidOutcome)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
			assert.Equal(t, before, snapshot(t, squad))
		})
	}
}

func TestApplyPickOutcome_ZeroCoins(t *testing.T) {
	got, err := ApplyPickOutcome(testSquad(), "user-2", outcome(domain.PickWin, "0", "NBA"))
	require.NoError(t, err)
	assert.Equal(t, "40", got.Stats.Coins.String())
	assert.Equal(t, int64(4), got.Stats.Wins)
}

func TestRollupMonth(t *testing.T) {
	monthly := domain.MonthlyStats{"202602": {Wins: 2}}

	got, err := RollupMonth(monthly, "202603", outcome(domain.PickWin, "4", "NBA"))
	require.NoError(t, err)
	got, err = RollupMonth(got, "202603", outcome(domain.PickLoss, "0", "NBA"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), got["202603"].Wins)
	assert.Equal(t, int64(1), got["202603"].Losses)
	assert.Equal(t, "4", got["202603"].Coins.String())
	assert.Equal(t, int64(2), got["202602"].Wins)
	assert.NotContains(t, monthly, "202603")

	_, err = RollupMonth(monthly, "2026-03", outcome(domain.PickWin, "1", "NBA"))
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)
}

func TestMonthKey(t *testing.T) {
	ts := time.Date(2026, 1, 31, 23, 30, 0, 0, time.FixedZone("UTC-5", -5*3600))
	assert.Equal(t, "202602", MonthKey(ts))
	assert.True(t, ValidMonthKey("202612"))
	assert.False(t, ValidMonthKey("202613"))
	assert.False(t, ValidMonthKey("2026"))
}

func TestMonthlySeries(t *testing.T) {
	monthly := domain.MonthlyStats{}
	for m := 1; m <= 12; m++ {
		monthly[time.Date(2025, time.Month(m), 1, 0, 0, 0, 0, time.UTC).Format("200601")] = domain.MonthlyRecord{Wins: int64(m)}
	}
	monthly["202601"] = domain.MonthlyRecord{Wins: 3, Losses: 1}
	monthly["bogus"] = domain.MonthlyRecord{Wins: 99}

	points := MonthlySeries(monthly, 12)

	require.Len(t, points, 12)
	assert.Equal(t, "202502", points[0].Month)
	assert.Equal(t, "202601", points[11].Month)
	assert.Equal(t, 0.75, points[11].WinRate)
}
