package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/KingofLakemoor/chainlink/internal/domain"
	"github.com/panjf2000/ants/v2"
)

// dispatcher fans a batch out to a worker pool. Events of one squad stay on one
// worker and keep their order; different squads run in parallel.
type dispatcher struct {
	pool    *ants.Pool
	handler OutcomeHandler
	logger  *slog.Logger
}

func newDispatcher(workers int, handler OutcomeHandler, logger *slog.Logger) (*dispatcher, error) {
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	return &dispatcher{pool: pool, handler: handler, logger: logger}, nil
}

func (d *dispatcher) release() {
	d.pool.Release()
}

// dispatch applies events and returns how many failed.
func (d *dispatcher) dispatch(ctx context.Context, events []domain.OutcomeEvent) int {
	var wg sync.WaitGroup
	var failed atomic.Int64

	for _, group := range groupBySquad(events) {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			failed.Add(int64(len(d.handler.HandlePickOutcomeBatch(ctx, group))))
		}
		if err := d.pool.Submit(task); err != nil {
			d.logger.Warn("worker pool rejected task, running inline", "squad_id", group[0].SquadID, "error", err)
			task()
		}
	}

	wg.Wait()
	return int(failed.Load())
}

// groupBySquad splits events per squad, keeping arrival order within each squad and
// ordering groups by first appearance.
func groupBySquad(events []domain.OutcomeEvent) [][]domain.OutcomeEvent {
	index := make(map[string]int)
	var groups [][]domain.OutcomeEvent
	for _, e := range events {
		i, ok := index[e.SquadID]
		if !ok {
			i = len(groups)
			index[e.SquadID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], e)
	}
	return groups
}
