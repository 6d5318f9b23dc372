package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/KingofLakemoor/chainlink/internal/config"
	"github.com/KingofLakemoor/chainlink/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	scoreKey    = "squads:by_score"
	createdKey  = "squads:by_created"
	versionsKey = "squads:index_versions"

	rebuildBatch = 500
)

// setScoreScript writes a squad's score only when its version is newer than the
// indexed one. Creation time is written once.
//
// KEYS: by_score, versions, by_created. ARGV: squad id, score, version, created ms.
var setScoreScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[2], ARGV[1])
if current and tonumber(current) >= tonumber(ARGV[3]) then
	return 0
end
redis.call('HSET', KEYS[2], ARGV[1], ARGV[3])
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
redis.call('ZADD', KEYS[3], 'NX', ARGV[4], ARGV[1])
return 1
`)

// Index is the Redis sorted-set projection of squad scores
type Index struct {
	client *redis.Client
	logger *slog.Logger
}

// NewIndex connects to Redis and returns the leaderboard index
func NewIndex(cfg *config.RedisConfig, logger *slog.Logger) (*Index, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewIndexWithClient(client, logger), nil
}

// NewIndexWithClient wraps an existing client
func NewIndexWithClient(client *redis.Client, logger *slog.Logger) *Index {
	return &Index{
		client: client,
		logger: logger,
	}
}

// Close closes the Redis connection
func (x *Index) Close() error {
	return x.client.Close()
}

// Ping checks the connection
func (x *Index) Ping(ctx context.Context) error {
	return x.client.Ping(ctx).Err()
}

func scoreArgs(rec domain.ScoreRecord) []interface{} {
	return []interface{}{
		rec.SquadID,
		strconv.FormatFloat(rec.Score, 'f', -1, 64),
		rec.Version,
		rec.CreatedAt.UnixMilli(),
	}
}

var scriptKeys = []string{scoreKey, versionsKey, createdKey}

// SetScore indexes rec unless a newer version of the squad is already indexed.
// It reports whether the write was applied.
func (x *Index) SetScore(ctx context.Context, rec domain.ScoreRecord) (bool, error) {
	applied, err := setScoreScript.Run(ctx, x.client, scriptKeys, scoreArgs(rec)...).Int()
	if err != nil {
		return false, fmt.Errorf("setting score: %w", err)
	}
	return applied == 1, nil
}

// Top returns limit records starting at offset, highest score first.
func (x *Index) Top(ctx context.Context, offset, limit int64) ([]domain.ScoreRecord, error) {
	if limit <= 0 {
		return []domain.ScoreRecord{}, nil
	}
	results, err := x.client.ZRevRangeWithScores(ctx, scoreKey, offset, offset+limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("getting top squads: %w", err)
	}

	records := make([]domain.ScoreRecord, len(results))
	for i, z := range results {
		records[i] = domain.ScoreRecord{
			SquadID: z.Member.(string),
			Score:   z.Score,
		}
	}
	return records, nil
}

// Position returns a squad's 1-based position and indexed score.
func (x *Index) Position(ctx context.Context, squadID string) (int64, float64, error) {
	pipe := x.client.Pipeline()
	rankCmd := pipe.ZRevRank(ctx, scoreKey, squadID)
	scoreCmd := pipe.ZScore(ctx, scoreKey, squadID)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, 0, fmt.Errorf("getting squad position: %w", err)
	}

	rank, err := rankCmd.Result()
	if errors.Is(err, redis.Nil) {
		return 0, 0, domain.ErrSquadNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("getting squad position: %w", err)
	}
	return rank + 1, scoreCmd.Val(), nil
}

// Recent returns the ids of the most recently created squads.
func (x *Index) Recent(ctx context.Context, limit int64) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}
	ids, err := x.client.ZRevRange(ctx, createdKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("getting recent squads: %w", err)
	}
	return ids, nil
}

// Count returns the number of indexed squads
func (x *Index) Count(ctx context.Context) (int64, error) {
	count, err := x.client.ZCard(ctx, scoreKey).Result()
	if err != nil {
		return 0, fmt.Errorf("counting squads: %w", err)
	}
	return count, nil
}

// Rebuild writes every record through the version guard in pipelined batches, so a
// concurrent newer write is never overwritten by the rebuild.
func (x *Index) Rebuild(ctx context.Context, records []domain.ScoreRecord) error {
	if err := setScoreScript.Load(ctx, x.client).Err(); err != nil {
		return fmt.Errorf("loading script: %w", err)
	}

	var applied int
	for start := 0; start < len(records); start += rebuildBatch {
		end := min(start+rebuildBatch, len(records))

		pipe := x.client.Pipeline()
		cmds := make([]*redis.Cmd, 0, end-start)
		for _, rec := range records[start:end] {
			cmds = append(cmds, setScoreScript.EvalSha(ctx, pipe, scriptKeys, scoreArgs(rec)...))
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("rebuilding index: %w", err)
		}
		for _, cmd := range cmds {
			if n, _ := cmd.Int(); n == 1 {
				applied++
			}
		}
	}

	x.logger.Debug("leaderboard index rebuilt", "records", len(records), "applied", applied)
	return nil
}
