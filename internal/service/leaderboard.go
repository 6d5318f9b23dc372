package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/KingofLakemoor/chainlink/internal/config"
	"github.com/KingofLakemoor/chainlink/internal/domain"
	"github.com/KingofLakemoor/chainlink/internal/scoring"
)

// LeaderboardService answers leaderboard queries from the index, falling back to the
// primary store when the index is unavailable.
type LeaderboardService struct {
	store  Store
	index  Index
	config config.LeaderboardConfig
	logger *slog.Logger
}

// NewLeaderboardService creates a new leaderboard service. index may be nil.
func NewLeaderboardService(store Store, index Index, cfg config.LeaderboardConfig, logger *slog.Logger) *LeaderboardService {
	return &LeaderboardService{
		store:  store,
		index:  index,
		config: cfg,
		logger: logger,
	}
}

// Top returns squads ordered by score, highest first.
func (s *LeaderboardService) Top(ctx context.Context, limit, offset int) ([]domain.LeaderboardEntry, error) {
	limit = clampLimit(limit, s.config.DefaultLimit, s.config.MaxLimit)
	if offset < 0 {
		offset = 0
	}

	if s.index != nil {
		records, err := s.index.Top(ctx, int64(offset), int64(limit))
		if err == nil {
			return s.hydrate(ctx, records, int64(offset))
		}
		s.logger.Warn("leaderboard index unavailable, reading from store", "error", err)
	}

	squads, err := s.store.TopSquads(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("getting top squads: %w", err)
	}
	entries := make([]domain.LeaderboardEntry, 0, len(squads))
	for i, squad := range squads {
		entries = append(entries, entryFor(squad, int64(offset+i+1)))
	}
	return entries, nil
}

// Position returns a squad's leaderboard entry.
func (s *LeaderboardService) Position(ctx context.Context, squadID string) (domain.LeaderboardEntry, error) {
	squad, err := s.store.GetSquad(ctx, squadID)
	if err != nil {
		return domain.LeaderboardEntry{}, err
	}

	if s.index != nil {
		pos, _, err := s.index.Position(ctx, squadID)
		if err == nil {
			return entryFor(squad, pos), nil
		}
		if !errors.Is(err, domain.ErrSquadNotFound) {
			s.logger.Warn("leaderboard index unavailable, reading from store", "squad_id", squadID, "error", err)
		}
	}

	pos, err := s.store.SquadPosition(ctx, squadID)
	if err != nil {
		return domain.LeaderboardEntry{}, fmt.Errorf("getting squad position: %w", err)
	}
	return entryFor(squad, pos), nil
}

// Stats returns the number of ranked squads and the top score.
func (s *LeaderboardService) Stats(ctx context.Context) (domain.LeaderboardStats, error) {
	top, err := s.Top(ctx, 1, 0)
	if err != nil {
		return domain.LeaderboardStats{}, err
	}

	count, err := s.count(ctx)
	if err != nil {
		return domain.LeaderboardStats{}, fmt.Errorf("counting squads: %w", err)
	}

	stats := domain.LeaderboardStats{TotalSquads: count}
	if len(top) > 0 {
		stats.TopScore = top[0].Score
	}
	return stats, nil
}

// Recent returns the most recently created squads.
func (s *LeaderboardService) Recent(ctx context.Context, limit int) ([]domain.Squad, error) {
	limit = clampLimit(limit, s.config.RecentLimit, s.config.MaxLimit)

	if s.index != nil {
		ids, err := s.index.Recent(ctx, int64(limit))
		if err == nil {
			return s.loadInOrder(ctx, ids)
		}
		s.logger.Warn("leaderboard index unavailable, reading from store", "error", err)
	}
	return s.store.RecentSquads(ctx, limit)
}

// Rebuild replaces the index contents with the scores held in the primary store.
func (s *LeaderboardService) Rebuild(ctx context.Context) (int, error) {
	if s.index == nil {
		return 0, nil
	}
	records, err := s.store.ScoreRecords(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading score records: %w", err)
	}
	if err := s.index.Rebuild(ctx, records); err != nil {
		return 0, fmt.Errorf("rebuilding index: %w", err)
	}
	return len(records), nil
}

func (s *LeaderboardService) count(ctx context.Context) (int64, error) {
	if s.index != nil {
		count, err := s.index.Count(ctx)
		if err == nil {
			return count, nil
		}
		s.logger.Warn("leaderboard index unavailable, reading from store", "error", err)
	}
	return s.store.CountSquads(ctx)
}

func (s *LeaderboardService) hydrate(ctx context.Context, records []domain.ScoreRecord, offset int64) ([]domain.LeaderboardEntry, error) {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.SquadID
	}
	byID, err := s.loadByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.LeaderboardEntry, 0, len(records))
	for i, r := range records {
		squad, ok := byID[r.SquadID]
		if !ok {
			s.logger.Warn("indexed squad missing from store", "squad_id", r.SquadID)
			continue
		}
		entries = append(entries, entryFor(squad, offset+int64(i)+1))
	}
	return entries, nil
}

// loadInOrder returns the stored squads for ids in the order of ids. The store does
// not guarantee any order for a multi-id lookup.
func (s *LeaderboardService) loadInOrder(ctx context.Context, ids []string) ([]domain.Squad, error) {
	byID, err := s.loadByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	squads := make([]domain.Squad, 0, len(ids))
	for _, id := range ids {
		if squad, ok := byID[id]; ok {
			squads = append(squads, squad)
		}
	}
	return squads, nil
}

func (s *LeaderboardService) loadByID(ctx context.Context, ids []string) (map[string]domain.Squad, error) {
	squads, err := s.store.GetSquadsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading squads: %w", err)
	}
	byID := make(map[string]domain.Squad, len(squads))
	for _, squad := range squads {
		byID[squad.ID] = squad
	}
	return byID, nil
}

func entryFor(squad domain.Squad, pos int64) domain.LeaderboardEntry {
	entry := domain.LeaderboardEntry{
		Position: pos,
		SquadID:  squad.ID,
		Name:     squad.Name,
		Slug:     squad.Slug,
		Image:    squad.Image,
		Score:    squad.Score,
		Rank:     squad.Rank,
		Tier:     scoring.ResolveTier(squad.Score).Name,
	}
	if next, ok := scoring.MinScore(squad.Rank + 1); ok {
		entry.NextTierScore = &next
	}
	return entry
}
