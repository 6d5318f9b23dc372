package postgres

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/KingofLakemoor/chainlink/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRepository(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewRepositoryWithDB(mock, slog.New(slog.NewTextHandler(io.Discard, nil))), mock
}

var columns = []string{
	"id", "name", "slug", "description", "image", "image_storage_id", "open", "active", "featured",
	"owner_id", "score", "rank", "stats", "stats_by_league", "monthly_stats", "members",
	"version", "created_at", "updated_at",
}

var now = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

func testSquad() domain.Squad {
	return domain.Squad{
		ID:            "squad-1",
		Name:          "Sharps",
		Slug:          "sharps",
		Image:         domain.DefaultSquadImage,
		Open:          true,
		Active:        true,
		OwnerID:       "owner",
		Score:         105,
		Rank:          1,
		Stats:         domain.Stats{Coins: decimal.NewFromInt(5), Wins: 1},
		StatsByLeague: domain.LeagueStats{"NBA": {Wins: 1}},
		MonthlyStats:  domain.MonthlyStats{},
		Members:       []domain.Member{{UserID: "owner", Role: domain.RoleOwner, JoinedAt: now}},
		Version:       3,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// insertArgs and updateArgs pin the scalar columns; JSON blobs and timestamps are matched loosely.
func insertArgs(s domain.Squad) []interface{} {
	loose := pgxmock.AnyArg()
	return []interface{}{
		s.ID, s.Name, s.Slug, s.Description, s.Image, s.ImageStorageID,
		s.Open, s.Active, s.Featured, s.OwnerID, s.Score, s.Rank,
		loose, loose, loose, loose, loose, loose,
	}
}

func updateArgs(s domain.Squad) []interface{} {
	loose := pgxmock.AnyArg()
	return []interface{}{
		s.ID, s.Version,
		s.Name, s.Slug, s.Description, s.Image, s.ImageStorageID,
		s.Open, s.Active, s.Featured, s.OwnerID, s.Score, s.Rank,
		loose, loose, loose, loose, loose,
	}
}

func squadRow(rows *pgxmock.Rows, id, slug string, score float64) *pgxmock.Rows {
	return rows.AddRow(
		id, "Squad "+id, slug, "", domain.DefaultSquadImage, "", true, true, false,
		"owner", score, 1,
		[]byte(`{"coins":"5","wins":1,"losses":0,"pushes":0}`),
		[]byte(`{"NBA":{"wins":1,"losses":0,"pushes":0}}`),
		[]byte(`{}`),
		[]byte(`[{"user_id":"owner","role":"OWNER","joined_at":"2026-06-01T10:00:00Z","stats":{"coins":"5","wins":1,"losses":0,"pushes":0}}]`),
		int64(3), now, now,
	)
}

func TestRepository_GetSquad(t *testing.T) {
	repo, mock := setupRepository(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT .+ FROM squads WHERE id`).
		WithArgs("squad-1").
		WillReturnRows(squadRow(pgxmock.NewRows(columns), "squad-1", "sharps", 105))

	squad, err := repo.GetSquad(ctx, "squad-1")

	require.NoError(t, err)
	assert.Equal(t, "sharps", squad.Slug)
	assert.Equal(t, int64(3), squad.Version)
	assert.Equal(t, "5", squad.Stats.Coins.String())
	assert.Equal(t, domain.LeagueRecord{Wins: 1}, squad.StatsByLeague["NBA"])
	require.Len(t, squad.Members, 1)
	assert.Equal(t, domain.RoleOwner, squad.Members[0].Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetSquad_NotFound(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectQuery(`SELECT .+ FROM squads WHERE id`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetSquad(context.Background(), "missing")

	assert.ErrorIs(t, err, domain.ErrSquadNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreateSquad(t *testing.T) {
	repo, mock := setupRepository(t)
	squad := testSquad()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO squads`).
		WithArgs(insertArgs(testSquad())...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO users`).
		WithArgs("owner", "squad-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	created, err := repo.CreateSquad(context.Background(), squad)

	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreateSquad_DuplicateSlug(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO squads`).
		WithArgs(insertArgs(testSquad())...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "squads_slug_key"})
	mock.ExpectRollback()

	_, err := repo.CreateSquad(context.Background(), testSquad())

	assert.ErrorIs(t, err, domain.ErrDuplicateSlug)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreateSquad_OwnerAlreadyInSquad(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO squads`).
		WithArgs(insertArgs(testSquad())...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO users`).
		WithArgs("owner", "squad-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectRollback()

	_, err := repo.CreateSquad(context.Background(), testSquad())

	assert.ErrorIs(t, err, domain.ErrAlreadyInSquad)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_SaveSquad(t *testing.T) {
	repo, mock := setupRepository(t)
	squad := testSquad()

	mock.ExpectExec(`UPDATE squads SET`).
		WithArgs(updateArgs(testSquad())...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	saved, err := repo.SaveSquad(context.Background(), squad)

	require.NoError(t, err)
	assert.Equal(t, int64(4), saved.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_SaveSquad_VersionConflict(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectExec(`UPDATE squads SET`).
		WithArgs(updateArgs(testSquad())...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	_, err := repo.SaveSquad(context.Background(), testSquad())

	assert.ErrorIs(t, err, domain.ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_JoinSquad(t *testing.T) {
	repo, mock := setupRepository(t)
	squad := testSquad()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO users`).
		WithArgs("alice", "squad-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE squads SET`).
		WithArgs(updateArgs(testSquad())...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	saved, err := repo.JoinSquad(context.Background(), squad, "alice")

	require.NoError(t, err)
	assert.Equal(t, int64(4), saved.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_JoinSquad_VersionConflictRollsBack(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO users`).
		WithArgs("alice", "squad-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE squads SET`).
		WithArgs(updateArgs(testSquad())...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	_, err := repo.JoinSquad(context.Background(), testSquad(), "alice")

	assert.ErrorIs(t, err, domain.ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_LeaveSquad_NotAMember(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE users SET squad_id = NULL`).
		WithArgs("alice", "squad-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	_, err := repo.LeaveSquad(context.Background(), testSquad(), "alice")

	assert.ErrorIs(t, err, domain.ErrNotAMember)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_LeaveSquad(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE users SET squad_id = NULL`).
		WithArgs("alice", "squad-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE squads SET`).
		WithArgs(updateArgs(testSquad())...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	saved, err := repo.LeaveSquad(context.Background(), testSquad(), "alice")

	require.NoError(t, err)
	assert.Equal(t, int64(4), saved.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetUser(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectQuery(`SELECT id, COALESCE`).
		WithArgs("alice").
		WillReturnRows(pgxmock.NewRows([]string{"id", "squad_id"}).AddRow("alice", "squad-1"))
	mock.ExpectQuery(`SELECT id, COALESCE`).
		WithArgs("bob").
		WillReturnError(pgx.ErrNoRows)

	user, err := repo.GetUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "squad-1", user.SquadID)

	_, err = repo.GetUser(context.Background(), "bob")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_TopSquads(t *testing.T) {
	repo, mock := setupRepository(t)

	rows := pgxmock.NewRows(columns)
	squadRow(rows, "b", "bravo", 900)
	squadRow(rows, "a", "alpha", 100)
	mock.ExpectQuery(`SELECT .+ FROM squads ORDER BY score DESC`).
		WithArgs(10, 0).
		WillReturnRows(rows)

	squads, err := repo.TopSquads(context.Background(), 10, 0)

	require.NoError(t, err)
	require.Len(t, squads, 2)
	assert.Equal(t, "b", squads[0].ID)
	assert.Equal(t, float64(100), squads[1].Score)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetSquadsByIDs_OrderedByInput(t *testing.T) {
	repo, mock := setupRepository(t)
	ids := []string{"c", "a"}

	rows := pgxmock.NewRows(columns)
	squadRow(rows, "c", "charlie", 10)
	squadRow(rows, "a", "alpha", 30)
	mock.ExpectQuery(`FROM squads WHERE id = ANY\(\$1\) ORDER BY array_position\(\$1, id\)`).
		WithArgs(ids).
		WillReturnRows(rows)

	squads, err := repo.GetSquadsByIDs(context.Background(), ids)

	require.NoError(t, err)
	require.Len(t, squads, 2)
	assert.Equal(t, "c", squads[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_SearchSquadsEscapesPattern(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectQuery(`SELECT .+ FROM squads\s+WHERE active AND name ILIKE`).
		WithArgs(`%100\%%`, 10).
		WillReturnRows(pgxmock.NewRows(columns))

	squads, err := repo.SearchSquads(context.Background(), "100%", 10)

	require.NoError(t, err)
	assert.Empty(t, squads)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_SquadPosition(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectQuery(`SELECT \(SELECT COUNT`).
		WithArgs("squad-1").
		WillReturnRows(pgxmock.NewRows([]string{"position"}).AddRow(int64(4)))

	pos, err := repo.SquadPosition(context.Background(), "squad-1")

	require.NoError(t, err)
	assert.Equal(t, int64(4), pos)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ScoreRecords(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectQuery(`SELECT id, score, version, created_at FROM squads`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "score", "version", "created_at"}).
			AddRow("a", 10.5, int64(2), now).
			AddRow("b", 0.0, int64(1), now))

	records, err := repo.ScoreRecords(context.Background())

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, domain.ScoreRecord{SquadID: "a", Score: 10.5, Version: 2, CreatedAt: now}, records[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_RecordOutcome(t *testing.T) {
	repo, mock := setupRepository(t)
	event := domain.OutcomeEvent{
		SquadID: "squad-1", UserID: "alice", PickID: "pick-9",
		Status: domain.PickWin, Coins: decimal.RequireFromString("2.50"), League: "NHL",
		ResolvedAt: now,
	}

	mock.ExpectExec(`INSERT INTO pick_outcomes`).
		WithArgs("squad-1", "alice", "pick-9", "WIN", "2.5", "NHL", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.RecordOutcome(context.Background(), event))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_RunMigrations(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS squads`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS users`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS pick_outcomes`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	for i := 0; i < 4; i++ {
		mock.ExpectExec(`CREATE INDEX IF NOT EXISTS`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}

	require.NoError(t, repo.RunMigrations(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
