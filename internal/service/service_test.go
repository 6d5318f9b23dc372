package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/KingofLakemoor/chainlink/internal/config"
	"github.com/KingofLakemoor/chainlink/internal/domain"
	"github.com/KingofLakemoor/chainlink/internal/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Squads.MaxWriteRetries = 50
	cfg.Squads.RetryBaseDelay = time.Millisecond
	cfg.Squads.RetryMaxDelay = 2 * time.Millisecond
	return cfg
}

type fixture struct {
	store    *memory.Store
	squads   *SquadService
	outcomes *OutcomeService

	mu    sync.Mutex
	clock time.Time
}

func newFixture(t *testing.T, index Index) *fixture {
	t.Helper()
	cfg := testConfig()
	store := memory.NewStore()
	f := &fixture{
		store:    store,
		squads:   NewSquadService(store, index, cfg.Squads, cfg.Leaderboard, testLogger()),
		outcomes: NewOutcomeService(store, index, cfg.Squads, testLogger()),
		clock:    time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	var ids int
	f.squads.newID = func() string {
		ids++
		return fmt.Sprintf("squad-%d", ids)
	}
	f.squads.now = f.now
	f.outcomes.now = f.now
	return f
}

func (f *fixture) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fixture) createSquad(t *testing.T, owner, slug string) domain.Squad {
	t.Helper()
	squad, err := f.squads.CreateSquad(context.Background(), owner, CreateSquadInput{Name: slug, Slug: slug, Open: true})
	require.NoError(t, err)
	return squad
}

func win(squadID, userID, coins, league string) domain.OutcomeEvent {
	return domain.OutcomeEvent{
		SquadID:    squadID,
		UserID:     userID,
		PickID:     "pick-" + userID,
		Status:     domain.PickWin,
		Coins:      decimal.RequireFromString(coins),
		League:     league,
		ResolvedAt: time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC),
	}
}
