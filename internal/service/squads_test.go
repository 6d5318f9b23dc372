package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/KingofLakemoor/chainlink/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSquad(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	squad := f.createSquad(t, "owner", "sharps")

	assert.Equal(t, "squad-1", squad.ID)
	assert.Equal(t, int64(1), squad.Version)
	assert.Equal(t, domain.DefaultSquadImage, squad.Image)
	assert.Equal(t, 1, squad.Rank)

	mine, err := f.squads.GetUserSquad(ctx, "owner")
	require.NoError(t, err)
	assert.Equal(t, squad.ID, mine.ID)
}

func TestCreateSquad_DuplicateSlug(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createSquad(t, "owner", "sharps")

	_, err := f.squads.CreateSquad(ctx, "other", CreateSquadInput{Name: "Other", Slug: "sharps"})
	assert.ErrorIs(t, err, domain.ErrDuplicateSlug)

	_, err = f.squads.GetUserSquad(ctx, "other")
	assert.ErrorIs(t, err, domain.ErrSquadNotFound)
}

func TestCreateSquad_OwnerAlreadyInSquad(t *testing.T) {
	f := newFixture(t, nil)
	f.createSquad(t, "owner", "sharps")

	_, err := f.squads.CreateSquad(context.Background(), "owner", CreateSquadInput{Name: "Second", Slug: "second"})
	assert.ErrorIs(t, err, domain.ErrAlreadyInSquad)
}

func TestCreateSquad_Invalid(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.squads.CreateSquad(context.Background(), "", CreateSquadInput{Name: "x", Slug: "x"})
	assert.ErrorIs(t, err, domain.ErrMissingIdentity)

	_, err = f.squads.CreateSquad(context.Background(), "owner", CreateSquadInput{Name: "x", Slug: "not a slug"})
	assert.ErrorIs(t, err, domain.ErrInvalidSquad)
}

func TestJoinLeave_RestoresUserAndKeepsStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	squad := f.createSquad(t, "owner", "sharps")

	_, err := f.squads.JoinSquad(ctx, squad.ID, "alice")
	require.NoError(t, err)
	mine, err := f.squads.GetUserSquad(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, squad.ID, mine.ID)

	_, err = f.outcomes.HandlePickOutcome(ctx, win(squad.ID, "alice", "25", "NBA"))
	require.NoError(t, err)
	before, err := f.squads.GetSquad(ctx, squad.ID)
	require.NoError(t, err)

	left, err := f.squads.LeaveSquad(ctx, squad.ID, "alice")
	require.NoError(t, err)

	_, err = f.squads.GetUserSquad(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrSquadNotFound)
	_, ok := left.Member("alice")
	assert.False(t, ok)

	wantStats, _ := json.Marshal(before.Stats)
	gotStats, _ := json.Marshal(left.Stats)
	assert.JSONEq(t, string(wantStats), string(gotStats))
	assert.Equal(t, before.Score, left.Score)
}

func TestJoinSquad_AlreadyInAnotherSquad(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	a := f.createSquad(t, "owner-a", "alpha")
	b := f.createSquad(t, "owner-b", "bravo")

	_, err := f.squads.JoinSquad(ctx, a.ID, "alice")
	require.NoError(t, err)

	_, err = f.squads.JoinSquad(ctx, b.ID, "alice")
	assert.ErrorIs(t, err, domain.ErrAlreadyInSquad)

	got, err := f.squads.GetSquad(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, got.Members, 1)
}

func TestJoinSquad_NotFound(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.squads.JoinSquad(context.Background(), "missing", "alice")
	assert.ErrorIs(t, err, domain.ErrSquadNotFound)

	_, err = f.squads.GetUserSquad(context.Background(), "alice")
	assert.ErrorIs(t, err, domain.ErrSquadNotFound)
}

func TestLeaveSquad_NotAMember(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	a := f.createSquad(t, "owner-a", "alpha")
	b := f.createSquad(t, "owner-b", "bravo")

	_, err := f.squads.LeaveSquad(ctx, a.ID, "nobody")
	assert.ErrorIs(t, err, domain.ErrNotAMember)

	_, err = f.squads.LeaveSquad(ctx, a.ID, "owner-b")
	assert.ErrorIs(t, err, domain.ErrNotAMember)

	_, err = f.squads.GetSquad(ctx, b.ID)
	require.NoError(t, err)
}

func TestLeaveSquad_OwnerHandsOver(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	squad := f.createSquad(t, "owner", "sharps")
	_, err := f.squads.JoinSquad(ctx, squad.ID, "alice")
	require.NoError(t, err)
	_, err = f.squads.JoinSquad(ctx, squad.ID, "bob")
	require.NoError(t, err)

	got, err := f.squads.LeaveSquad(ctx, squad.ID, "owner")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.OwnerID)
	assert.True(t, got.Active)

	got, err = f.squads.LeaveSquad(ctx, squad.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "bob", got.OwnerID)

	got, err = f.squads.LeaveSquad(ctx, squad.ID, "bob")
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Empty(t, got.Members)
}

func TestUpdateSquad(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	squad := f.createSquad(t, "owner", "sharps")
	f.createSquad(t, "other", "taken")

	name := "The Sharps"
	featured := true
	got, err := f.squads.UpdateSquad(ctx, "owner", squad.ID, UpdateSquadInput{Name: &name, Featured: &featured})
	require.NoError(t, err)
	assert.Equal(t, "The Sharps", got.Name)
	assert.True(t, got.Featured)
	assert.Equal(t, int64(2), got.Version)

	_, err = f.squads.UpdateSquad(ctx, "other", squad.ID, UpdateSquadInput{Name: &name})
	assert.ErrorIs(t, err, domain.ErrNotSquadOwner)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	slug := "taken"
	_, err = f.squads.UpdateSquad(ctx, "owner", squad.ID, UpdateSquadInput{Slug: &slug})
	assert.ErrorIs(t, err, domain.ErrDuplicateSlug)

	slug = "sharps-2"
	got, err = f.squads.UpdateSquad(ctx, "owner", squad.ID, UpdateSquadInput{Slug: &slug})
	require.NoError(t, err)
	bySlug, err := f.squads.GetSquadBySlug(ctx, "Sharps-2")
	require.NoError(t, err)
	assert.Equal(t, got.ID, bySlug.ID)
}

func TestDeleteSquadImage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	squad, err := f.squads.CreateSquad(ctx, "owner", CreateSquadInput{
		Name: "Pics", Slug: "pics", Image: "https://cdn.example.com/p.png", ImageStorageID: "blob-9",
	})
	require.NoError(t, err)
	assert.Equal(t, "blob-9", squad.ImageStorageID)

	got, err := f.squads.DeleteSquadImage(ctx, "owner", squad.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSquadImage, got.Image)
	assert.Empty(t, got.ImageStorageID)
}

func TestSearchAndList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createSquad(t, "u1", "sharp-money")
	f.createSquad(t, "u2", "public-fade")
	closed := f.createSquad(t, "u3", "sharp-ends")
	active := false
	_, err := f.squads.UpdateSquad(ctx, "u3", closed.ID, UpdateSquadInput{Active: &active})
	require.NoError(t, err)

	found, err := f.squads.SearchSquads(ctx, "SHARP")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "sharp-money", found[0].Slug)

	empty, err := f.squads.SearchSquads(ctx, "   ")
	require.NoError(t, err)
	assert.Empty(t, empty)

	all, err := f.squads.ListSquads(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMonthlyHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.outcomes.config.MonthlyRollup = true
	squad := f.createSquad(t, "owner", "sharps")

	_, err := f.outcomes.HandlePickOutcome(ctx, win(squad.ID, "owner", "5", "NBA"))
	require.NoError(t, err)
	loss := win(squad.ID, "owner", "0", "NBA")
	loss.Status = domain.PickLoss
	_, err = f.outcomes.HandlePickOutcome(ctx, loss)
	require.NoError(t, err)

	points, err := f.squads.MonthlyHistory(ctx, squad.ID)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "202605", points[0].Month)
	assert.Equal(t, int64(1), points[0].Wins)
	assert.Equal(t, int64(1), points[0].Losses)
	assert.Equal(t, 0.5, points[0].WinRate)
}
