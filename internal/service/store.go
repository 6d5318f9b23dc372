package service

import (
	"context"
	"log/slog"

	"github.com/KingofLakemoor/chainlink/internal/domain"
)

// Store is the primary squad store. Every squad write is conditional on the
// Version of the squad passed in and returns the squad with its new version;
// a stale version yields domain.ErrVersionConflict.
type Store interface {
	// CreateSquad inserts squad and points the owner's user record at it.
	CreateSquad(ctx context.Context, squad domain.Squad) (domain.Squad, error)
	SaveSquad(ctx context.Context, squad domain.Squad) (domain.Squad, error)
	// JoinSquad writes the roster and sets the user's squad reference together.
	JoinSquad(ctx context.Context, squad domain.Squad, userID string) (domain.Squad, error)
	// LeaveSquad writes the roster and clears the user's squad reference together.
	LeaveSquad(ctx context.Context, squad domain.Squad, userID string) (domain.Squad, error)

	GetSquad(ctx context.Context, id string) (domain.Squad, error)
	GetSquadBySlug(ctx context.Context, slug string) (domain.Squad, error)
	GetSquadsByIDs(ctx context.Context, ids []string) ([]domain.Squad, error)
	GetUser(ctx context.Context, userID string) (domain.User, error)

	ListSquads(ctx context.Context, limit, offset int) ([]domain.Squad, error)
	SearchSquads(ctx context.Context, query string, limit int) ([]domain.Squad, error)
	RecentSquads(ctx context.Context, limit int) ([]domain.Squad, error)
	TopSquads(ctx context.Context, limit, offset int) ([]domain.Squad, error)
	SquadPosition(ctx context.Context, id string) (int64, error)
	CountSquads(ctx context.Context) (int64, error)
	ScoreRecords(ctx context.Context) ([]domain.ScoreRecord, error)

	RecordOutcome(ctx context.Context, event domain.OutcomeEvent) error
	Ping(ctx context.Context) error
}

// Index is the leaderboard projection of squad scores. It may lag the Store and is
// rebuilt from it.
type Index interface {
	// SetScore records rec unless a newer version is already indexed.
	SetScore(ctx context.Context, rec domain.ScoreRecord) (bool, error)
	Top(ctx context.Context, offset, limit int64) ([]domain.ScoreRecord, error)
	// Position returns the 1-based position and score, or domain.ErrSquadNotFound.
	Position(ctx context.Context, squadID string) (int64, float64, error)
	Recent(ctx context.Context, limit int64) ([]string, error)
	Count(ctx context.Context) (int64, error)
	Rebuild(ctx context.Context, records []domain.ScoreRecord) error
	Ping(ctx context.Context) error
}

// indexScore writes a committed squad's score to the index. Failures are logged;
// the sync worker repairs the index from the store.
func indexScore(ctx context.Context, index Index, logger *slog.Logger, squad domain.Squad) {
	if index == nil {
		return
	}
	_, err := index.SetScore(ctx, domain.ScoreRecord{
		SquadID:   squad.ID,
		Score:     squad.Score,
		Version:   squad.Version,
		CreatedAt: squad.CreatedAt,
	})
	if err != nil {
		logger.Warn("failed to update leaderboard index", "squad_id", squad.ID, "error", err)
	}
}
