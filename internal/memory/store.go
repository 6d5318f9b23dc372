// Package memory is an in-process squad store with the same conditional write
// semantics as the Postgres repository. It backs local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/KingofLakemoor/chainlink/internal/domain"
)

// Store keeps squads, users and the outcome log in maps guarded by one lock
type Store struct {
	mu       sync.RWMutex
	squads   map[string]domain.Squad
	slugs    map[string]string
	users    map[string]string
	outcomes []domain.OutcomeEvent
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		squads: make(map[string]domain.Squad),
		slugs:  make(map[string]string),
		users:  make(map[string]string),
	}
}

// CreateSquad inserts squad at version 1 and points the owner at it.
func (s *Store) CreateSquad(_ context.Context, squad domain.Squad) (domain.Squad, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.squads[squad.ID]; ok {
		return domain.Squad{}, fmt.Errorf("%w: squad %s exists", domain.ErrInvalidSquad, squad.ID)
	}
	if _, ok := s.slugs[squad.Slug]; ok {
		return domain.Squad{}, fmt.Errorf("%w: %s", domain.ErrDuplicateSlug, squad.Slug)
	}
	if s.users[squad.OwnerID] != "" {
		return domain.Squad{}, fmt.Errorf("%w: user %s", domain.ErrAlreadyInSquad, squad.OwnerID)
	}

	stored := squad.Clone()
	stored.Version = 1
	s.squads[stored.ID] = stored
	s.slugs[stored.Slug] = stored.ID
	s.users[stored.OwnerID] = stored.ID
	return stored.Clone(), nil
}

// SaveSquad replaces the squad if its version is current.
func (s *Store) SaveSquad(_ context.Context, squad domain.Squad) (domain.Squad, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(squad)
}

// JoinSquad saves the roster and sets the user's squad reference.
func (s *Store) JoinSquad(_ context.Context, squad domain.Squad, userID string) (domain.Squad, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current := s.users[userID]; current != "" {
		return domain.Squad{}, fmt.Errorf("%w: user %s is in squad %s", domain.ErrAlreadyInSquad, userID, current)
	}
	saved, err := s.save(squad)
	if err != nil {
		return domain.Squad{}, err
	}
	s.users[userID] = squad.ID
	return saved, nil
}

// LeaveSquad saves the roster and clears the user's squad reference.
func (s *Store) LeaveSquad(_ context.Context, squad domain.Squad, userID string) (domain.Squad, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.users[userID] != squad.ID {
		return domain.Squad{}, fmt.Errorf("%w: user %s in squad %s", domain.ErrNotAMember, userID, squad.ID)
	}
	saved, err := s.save(squad)
	if err != nil {
		return domain.Squad{}, err
	}
	delete(s.users, userID)
	return saved, nil
}

func (s *Store) save(squad domain.Squad) (domain.Squad, error) {
	current, ok := s.squads[squad.ID]
	if !ok {
		return domain.Squad{}, domain.ErrSquadNotFound
	}
	if current.Version != squad.Version {
		return domain.Squad{}, domain.ErrVersionConflict
	}
	if squad.Slug != current.Slug {
		if _, taken := s.slugs[squad.Slug]; taken {
			return domain.Squad{}, fmt.Errorf("%w: %s", domain.ErrDuplicateSlug, squad.Slug)
		}
		delete(s.slugs, current.Slug)
		s.slugs[squad.Slug] = squad.ID
	}

	stored := squad.Clone()
	stored.Version = current.Version + 1
	s.squads[stored.ID] = stored
	return stored.Clone(), nil
}

// GetSquad returns a squad by id
func (s *Store) GetSquad(_ context.Context, id string) (domain.Squad, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	squad, ok := s.squads[id]
	if !ok {
		return domain.Squad{}, domain.ErrSquadNotFound
	}
	return squad.Clone(), nil
}

// GetSquadBySlug returns a squad by slug
func (s *Store) GetSquadBySlug(_ context.Context, slug string) (domain.Squad, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.slugs[slug]
	if !ok {
		return domain.Squad{}, domain.ErrSquadNotFound
	}
	return s.squads[id].Clone(), nil
}

// GetSquadsByIDs returns the squads that exist, in the order of ids.
func (s *Store) GetSquadsByIDs(_ context.Context, ids []string) ([]domain.Squad, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Squad, 0, len(ids))
	for _, id := range ids {
		if squad, ok := s.squads[id]; ok {
			out = append(out, squad.Clone())
		}
	}
	return out, nil
}

// GetUser returns the user's squad reference, or domain.ErrUserNotFound.
func (s *Store) GetUser(_ context.Context, userID string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	squadID, ok := s.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return domain.User{ID: userID, SquadID: squadID}, nil
}

// ListSquads pages through squads, newest first.
func (s *Store) ListSquads(_ context.Context, limit, offset int) ([]domain.Squad, error) {
	return page(s.sorted(nil, byCreatedDesc), limit, offset), nil
}

// SearchSquads matches active squads by case-insensitive name substring.
func (s *Store) SearchSquads(_ context.Context, query string, limit int) ([]domain.Squad, error) {
	q := strings.ToLower(query)
	match := func(sq domain.Squad) bool {
		return sq.Active && strings.Contains(strings.ToLower(sq.Name), q)
	}
	return page(s.sorted(match, byScoreDesc), limit, 0), nil
}

// RecentSquads returns the newest squads
func (s *Store) RecentSquads(_ context.Context, limit int) ([]domain.Squad, error) {
	return page(s.sorted(nil, byCreatedDesc), limit, 0), nil
}

// TopSquads pages through squads by score, highest first.
func (s *Store) TopSquads(_ context.Context, limit, offset int) ([]domain.Squad, error) {
	return page(s.sorted(nil, byScoreDesc), limit, offset), nil
}

// SquadPosition is one plus the number of squads scoring strictly higher.
func (s *Store) SquadPosition(_ context.Context, id string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	target, ok := s.squads[id]
	if !ok {
		return 0, domain.ErrSquadNotFound
	}
	var pos int64 = 1
	for _, sq := range s.squads {
		if sq.Score > target.Score {
			pos++
		}
	}
	return pos, nil
}

// CountSquads returns the number of squads
func (s *Store) CountSquads(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.squads)), nil
}

// ScoreRecords returns the index projection of every squad.
func (s *Store) ScoreRecords(_ context.Context) ([]domain.ScoreRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ScoreRecord, 0, len(s.squads))
	for _, sq := range s.squads {
		out = append(out, domain.ScoreRecord{
			SquadID:   sq.ID,
			Score:     sq.Score,
			Version:   sq.Version,
			CreatedAt: sq.CreatedAt,
		})
	}
	return out, nil
}

// RecordOutcome appends event to the outcome log.
func (s *Store) RecordOutcome(_ context.Context, event domain.OutcomeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, event)
	return nil
}

// Outcomes returns a copy of the outcome log.
func (s *Store) Outcomes() []domain.OutcomeEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.OutcomeEvent(nil), s.outcomes...)
}

// Ping always succeeds
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op
func (s *Store) Close() {}

func byScoreDesc(a, b domain.Squad) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func byCreatedDesc(a, b domain.Squad) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (s *Store) sorted(match func(domain.Squad) bool, less func(a, b domain.Squad) bool) []domain.Squad {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Squad, 0, len(s.squads))
	for _, sq := range s.squads {
		if match == nil || match(sq) {
			out = append(out, sq.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func page(squads []domain.Squad, limit, offset int) []domain.Squad {
	if offset >= len(squads) {
		return []domain.Squad{}
	}
	squads = squads[offset:]
	if limit > 0 && limit < len(squads) {
		squads = squads[:limit]
	}
	return squads
}
