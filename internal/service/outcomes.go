package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/KingofLakemoor/chainlink/internal/aggregator"
	"github.com/KingofLakemoor/chainlink/internal/config"
	"github.com/KingofLakemoor/chainlink/internal/domain"
	"github.com/KingofLakemoor/chainlink/internal/scoring"
)

// OutcomeService folds resolved pick outcomes into squads
type OutcomeService struct {
	store  Store
	index  Index
	config config.SquadsConfig
	retry  retrier
	logger *slog.Logger
	now    func() time.Time
}

// NewOutcomeService creates a new outcome service. index may be nil.
func NewOutcomeService(store Store, index Index, cfg config.SquadsConfig, logger *slog.Logger) *OutcomeService {
	return &OutcomeService{
		store:  store,
		index:  index,
		config: cfg,
		retry:  newRetrier(cfg, logger),
		logger: logger,
		now:    time.Now,
	}
}

// HandlePickOutcome applies one resolved pick to its squad, recomputes score and
// rank, and persists the result with a conditional write. Lost races are retried
// against a fresh read. Events are not deduplicated: a redelivered event is
// applied again.
func (s *OutcomeService) HandlePickOutcome(ctx context.Context, event domain.OutcomeEvent) (domain.Squad, error) {
	if err := event.Validate(); err != nil {
		return domain.Squad{}, err
	}

	month := aggregator.MonthKey(event.ResolvedAt)
	if event.ResolvedAt.IsZero() {
		month = aggregator.MonthKey(s.now())
	}

	var saved domain.Squad
	err := s.retry.do(ctx, event.SquadID, func() error {
		squad, err := s.store.GetSquad(ctx, event.SquadID)
		if err != nil {
			return err
		}

		next, err := aggregator.ApplyPickOutcome(squad, event.UserID, event.Outcome())
		if err != nil {
			return err
		}
		if s.config.MonthlyRollup {
			next.MonthlyStats, err = aggregator.RollupMonth(next.MonthlyStats, month, event.Outcome())
			if err != nil {
				return err
			}
		}
		next.Score = scoring.ComputeScore(next.Stats)
		next.Rank = scoring.ResolveRank(next.Score)
		next.UpdatedAt = s.now().UTC()

		saved, err = s.store.SaveSquad(ctx, next)
		return err
	})
	if err != nil {
		return domain.Squad{}, fmt.Errorf("applying outcome for pick %s: %w", event.PickID, err)
	}

	indexScore(ctx, s.index, s.logger, saved)

	if err := s.store.RecordOutcome(ctx, event); err != nil {
		s.logger.Warn("failed to record pick outcome",
			"squad_id", event.SquadID,
			"pick_id", event.PickID,
			"error", err,
		)
	}

	s.logger.Debug("pick outcome applied",
		"squad_id", saved.ID,
		"user_id", event.UserID,
		"pick_id", event.PickID,
		"score", saved.Score,
		"rank", saved.Rank,
		"version", saved.Version,
	)
	return saved, nil
}

// HandlePickOutcomeBatch applies events in order and returns the events that failed
// with their errors. A failure does not stop the rest of the batch.
func (s *OutcomeService) HandlePickOutcomeBatch(ctx context.Context, events []domain.OutcomeEvent) map[int]error {
	failed := make(map[int]error)
	for i, event := range events {
		if _, err := s.HandlePickOutcome(ctx, event); err != nil {
			s.logger.Error("failed to apply pick outcome in batch",
				"squad_id", event.SquadID,
				"user_id", event.UserID,
				"pick_id", event.PickID,
				"error", err,
			)
			failed[i] = err
		}
	}
	return failed
}
