package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/KingofLakemoor/chainlink/internal/config"
	"github.com/KingofLakemoor/chainlink/internal/domain"
	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// DB is the subset of *pgxpool.Pool the repository uses
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository is the primary squad store backed by PostgreSQL
type Repository struct {
	db     DB
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return NewRepositoryWithDB(pool, logger), nil
}

// NewRepositoryWithDB wraps an existing pool
func NewRepositoryWithDB(db DB, logger *slog.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.db.Close()
}

// Ping checks the connection
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS squads (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			slug VARCHAR(64) NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			image TEXT NOT NULL,
			image_storage_id VARCHAR(255) NOT NULL DEFAULT '',
			open BOOLEAN NOT NULL DEFAULT TRUE,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			featured BOOLEAN NOT NULL DEFAULT FALSE,
			owner_id VARCHAR(64) NOT NULL,
			score DOUBLE PRECISION NOT NULL DEFAULT 0,
			rank INT NOT NULL DEFAULT 1,
			stats JSONB NOT NULL,
			stats_by_league JSONB NOT NULL DEFAULT '{}',
			monthly_stats JSONB NOT NULL DEFAULT '{}',
			members JSONB NOT NULL DEFAULT '[]',
			version BIGINT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(64) PRIMARY KEY,
			squad_id VARCHAR(64) REFERENCES squads(id)
		)`,
		`CREATE TABLE IF NOT EXISTS pick_outcomes (
			id BIGSERIAL PRIMARY KEY,
			squad_id VARCHAR(64) NOT NULL,
			user_id VARCHAR(64) NOT NULL,
			pick_id VARCHAR(64) NOT NULL,
			status VARCHAR(8) NOT NULL,
			coins NUMERIC NOT NULL,
			league VARCHAR(32) NOT NULL,
			resolved_at TIMESTAMPTZ,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_squads_score ON squads(score DESC, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_squads_created ON squads(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_users_squad ON users(squad_id)`,
		`CREATE INDEX IF NOT EXISTS idx_pick_outcomes_pick ON pick_outcomes(pick_id)`,
	}

	for _, migration := range migrations {
		_, err := r.db.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

const squadColumns = `id, name, slug, description, image, image_storage_id, open, active, featured, ` +
	`owner_id, score, rank, stats, stats_by_league, monthly_stats, members, version, created_at, updated_at`

const (
	insertSquadSQL = `
		INSERT INTO squads (` + squadColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, 1, $17, $18)
	`
	updateSquadSQL = `
		UPDATE squads SET
			name = $3, slug = $4, description = $5, image = $6, image_storage_id = $7,
			open = $8, active = $9, featured = $10, owner_id = $11, score = $12, rank = $13,
			stats = $14, stats_by_league = $15, monthly_stats = $16, members = $17,
			updated_at = $18, version = version + 1
		WHERE id = $1 AND version = $2
	`
	assignUserSQL = `
		INSERT INTO users (id, squad_id) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET squad_id = EXCLUDED.squad_id
		WHERE users.squad_id IS NULL
	`
	releaseUserSQL = `UPDATE users SET squad_id = NULL WHERE id = $1 AND squad_id = $2`
)

type squadJSON struct {
	stats, leagues, monthly, members []byte
}

func encodeSquad(squad domain.Squad) (squadJSON, error) {
	var out squadJSON
	var err error
	if out.stats, err = sonic.Marshal(squad.Stats); err != nil {
		return out, fmt.Errorf("marshaling stats: %w", err)
	}
	leagues := squad.StatsByLeague
	if leagues == nil {
		leagues = domain.LeagueStats{}
	}
	if out.leagues, err = sonic.Marshal(leagues); err != nil {
		return out, fmt.Errorf("marshaling league stats: %w", err)
	}
	monthly := squad.MonthlyStats
	if monthly == nil {
		monthly = domain.MonthlyStats{}
	}
	if out.monthly, err = sonic.Marshal(monthly); err != nil {
		return out, fmt.Errorf("marshaling monthly stats: %w", err)
	}
	members := squad.Members
	if members == nil {
		members = []domain.Member{}
	}
	if out.members, err = sonic.Marshal(members); err != nil {
		return out, fmt.Errorf("marshaling members: %w", err)
	}
	return out, nil
}

// CreateSquad inserts squad and assigns the owner to it in one transaction.
func (r *Repository) CreateSquad(ctx context.Context, squad domain.Squad) (domain.Squad, error) {
	enc, err := encodeSquad(squad)
	if err != nil {
		return domain.Squad{}, err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.Squad{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, insertSquadSQL,
		squad.ID, squad.Name, squad.Slug, squad.Description, squad.Image, squad.ImageStorageID,
		squad.Open, squad.Active, squad.Featured, squad.OwnerID, squad.Score, squad.Rank,
		enc.stats, enc.leagues, enc.monthly, enc.members, squad.CreatedAt, squad.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Squad{}, fmt.Errorf("%w: %s", domain.ErrDuplicateSlug, squad.Slug)
		}
		return domain.Squad{}, fmt.Errorf("inserting squad: %w", err)
	}

	if err := assignUser(ctx, tx, squad.OwnerID, squad.ID); err != nil {
		return domain.Squad{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Squad{}, fmt.Errorf("committing transaction: %w", err)
	}

	squad.Version = 1
	return squad, nil
}

// SaveSquad writes squad if its version is still current.
func (r *Repository) SaveSquad(ctx context.Context, squad domain.Squad) (domain.Squad, error) {
	if err := writeSquad(ctx, r.db, squad); err != nil {
		return domain.Squad{}, err
	}
	squad.Version++
	return squad, nil
}

// JoinSquad assigns userID to the squad and writes the roster in one transaction.
func (r *Repository) JoinSquad(ctx context.Context, squad domain.Squad, userID string) (domain.Squad, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.Squad{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := assignUser(ctx, tx, userID, squad.ID); err != nil {
		return domain.Squad{}, err
	}
	if err := writeSquad(ctx, tx, squad); err != nil {
		return domain.Squad{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Squad{}, fmt.Errorf("committing transaction: %w", err)
	}

	squad.Version++
	return squad, nil
}

// LeaveSquad clears userID's squad and writes the roster in one transaction.
func (r *Repository) LeaveSquad(ctx context.Context, squad domain.Squad, userID string) (domain.Squad, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.Squad{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, releaseUserSQL, userID, squad.ID)
	if err != nil {
		return domain.Squad{}, fmt.Errorf("releasing user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Squad{}, fmt.Errorf("%w: user %s in squad %s", domain.ErrNotAMember, userID, squad.ID)
	}
	if err := writeSquad(ctx, tx, squad); err != nil {
		return domain.Squad{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Squad{}, fmt.Errorf("committing transaction: %w", err)
	}

	squad.Version++
	return squad, nil
}

func assignUser(ctx context.Context, q querier, userID, squadID string) error {
	tag, err := q.Exec(ctx, assignUserSQL, userID, squadID)
	if err != nil {
		return fmt.Errorf("assigning user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user %s", domain.ErrAlreadyInSquad, userID)
	}
	return nil
}

// writeSquad is the conditional update every squad write goes through. No row
// updated means the version moved or the squad is gone; the caller re-reads.
func writeSquad(ctx context.Context, q querier, squad domain.Squad) error {
	enc, err := encodeSquad(squad)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, updateSquadSQL,
		squad.ID, squad.Version,
		squad.Name, squad.Slug, squad.Description, squad.Image, squad.ImageStorageID,
		squad.Open, squad.Active, squad.Featured, squad.OwnerID, squad.Score, squad.Rank,
		enc.stats, enc.leagues, enc.monthly, enc.members, squad.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateSlug, squad.Slug)
		}
		return fmt.Errorf("updating squad: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

// GetSquad retrieves a squad by ID
func (r *Repository) GetSquad(ctx context.Context, id string) (domain.Squad, error) {
	query := `SELECT ` + squadColumns + ` FROM squads WHERE id = $1`
	squad, err := scanSquad(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Squad{}, domain.ErrSquadNotFound
		}
		return domain.Squad{}, fmt.Errorf("getting squad: %w", err)
	}
	return squad, nil
}

// GetSquadBySlug retrieves a squad by slug
func (r *Repository) GetSquadBySlug(ctx context.Context, slug string) (domain.Squad, error) {
	query := `SELECT ` + squadColumns + ` FROM squads WHERE slug = $1`
	squad, err := scanSquad(r.db.QueryRow(ctx, query, slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Squad{}, domain.ErrSquadNotFound
		}
		return domain.Squad{}, fmt.Errorf("getting squad by slug: %w", err)
	}
	return squad, nil
}

// GetSquadsByIDs retrieves the squads that exist among ids, in the order of ids.
func (r *Repository) GetSquadsByIDs(ctx context.Context, ids []string) ([]domain.Squad, error) {
	if len(ids) == 0 {
		return []domain.Squad{}, nil
	}
	query := `SELECT ` + squadColumns + ` FROM squads WHERE id = ANY($1) ORDER BY array_position($1, id)`
	return r.querySquads(ctx, "getting squads", query, ids)
}

// GetUser retrieves a user's squad reference
func (r *Repository) GetUser(ctx context.Context, userID string) (domain.User, error) {
	query := `SELECT id, COALESCE(squad_id, '') FROM users WHERE id = $1`
	var user domain.User
	err := r.db.QueryRow(ctx, query, userID).Scan(&user.ID, &user.SquadID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("getting user: %w", err)
	}
	return user, nil
}

// ListSquads pages through squads, newest first
func (r *Repository) ListSquads(ctx context.Context, limit, offset int) ([]domain.Squad, error) {
	query := `SELECT ` + squadColumns + ` FROM squads ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`
	return r.querySquads(ctx, "listing squads", query, limit, offset)
}

// SearchSquads matches active squads by case-insensitive name substring
func (r *Repository) SearchSquads(ctx context.Context, query string, limit int) ([]domain.Squad, error) {
	sql := `SELECT ` + squadColumns + ` FROM squads
		WHERE active AND name ILIKE $1
		ORDER BY score DESC, created_at, id
		LIMIT $2`
	return r.querySquads(ctx, "searching squads", sql, "%"+escapeLike(query)+"%", limit)
}

// RecentSquads returns the newest squads
func (r *Repository) RecentSquads(ctx context.Context, limit int) ([]domain.Squad, error) {
	query := `SELECT ` + squadColumns + ` FROM squads ORDER BY created_at DESC, id LIMIT $1`
	return r.querySquads(ctx, "getting recent squads", query, limit)
}

// TopSquads pages through squads by score, highest first
func (r *Repository) TopSquads(ctx context.Context, limit, offset int) ([]domain.Squad, error) {
	query := `SELECT ` + squadColumns + ` FROM squads ORDER BY score DESC, created_at, id LIMIT $1 OFFSET $2`
	return r.querySquads(ctx, "getting top squads", query, limit, offset)
}

// SquadPosition is one plus the number of squads scoring strictly higher
func (r *Repository) SquadPosition(ctx context.Context, id string) (int64, error) {
	query := `
		SELECT (SELECT COUNT(*) FROM squads o WHERE o.score > s.score) + 1
		FROM squads s
		WHERE s.id = $1
	`
	var pos int64
	if err := r.db.QueryRow(ctx, query, id).Scan(&pos); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrSquadNotFound
		}
		return 0, fmt.Errorf("getting squad position: %w", err)
	}
	return pos, nil
}

// CountSquads returns the number of squads
func (r *Repository) CountSquads(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM squads`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting squads: %w", err)
	}
	return count, nil
}

// ScoreRecords returns the leaderboard projection of every squad
func (r *Repository) ScoreRecords(ctx context.Context) ([]domain.ScoreRecord, error) {
	rows, err := r.db.Query(ctx, `SELECT id, score, version, created_at FROM squads`)
	if err != nil {
		return nil, fmt.Errorf("getting score records: %w", err)
	}
	defer rows.Close()

	var records []domain.ScoreRecord
	for rows.Next() {
		var rec domain.ScoreRecord
		if err := rows.Scan(&rec.SquadID, &rec.Score, &rec.Version, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning score record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// RecordOutcome appends an applied outcome to the audit log
func (r *Repository) RecordOutcome(ctx context.Context, event domain.OutcomeEvent) error {
	query := `
		INSERT INTO pick_outcomes (squad_id, user_id, pick_id, status, coins, league, resolved_at, recorded_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8)
	`
	var resolvedAt *time.Time
	if !event.ResolvedAt.IsZero() {
		resolvedAt = &event.ResolvedAt
	}
	_, err := r.db.Exec(ctx, query,
		event.SquadID,
		event.UserID,
		event.PickID,
		string(event.Status),
		event.Coins.String(),
		event.League,
		resolvedAt,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording outcome: %w", err)
	}
	return nil
}

func (r *Repository) querySquads(ctx context.Context, op, query string, args ...any) ([]domain.Squad, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	squads := []domain.Squad{}
	for rows.Next() {
		squad, err := scanSquad(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		squads = append(squads, squad)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return squads, nil
}

func scanSquad(row pgx.Row) (domain.Squad, error) {
	var s domain.Squad
	var stats, leagues, monthly, members []byte
	err := row.Scan(
		&s.ID, &s.Name, &s.Slug, &s.Description, &s.Image, &s.ImageStorageID,
		&s.Open, &s.Active, &s.Featured, &s.OwnerID, &s.Score, &s.Rank,
		&stats, &leagues, &monthly, &members,
		&s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return domain.Squad{}, err
	}

	if err := sonic.Unmarshal(stats, &s.Stats); err != nil {
		return domain.Squad{}, fmt.Errorf("decoding stats: %w", err)
	}
	if err := sonic.Unmarshal(leagues, &s.StatsByLeague); err != nil {
		return domain.Squad{}, fmt.Errorf("decoding league stats: %w", err)
	}
	if err := sonic.Unmarshal(monthly, &s.MonthlyStats); err != nil {
		return domain.Squad{}, fmt.Errorf("decoding monthly stats: %w", err)
	}
	if err := sonic.Unmarshal(members, &s.Members); err != nil {
		return domain.Squad{}, fmt.Errorf("decoding members: %w", err)
	}
	return s, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
