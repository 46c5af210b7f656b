// Package postgres is the durable [authflow.UserStore] backed by pgx.
//
// The unique index on users.identity is what reports duplicate
// registrations; the engine's pre-checks are advisory.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/balancebuddy/authflow"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
create extension if not exists pgcrypto;

create table if not exists users (
	id uuid primary key default gen_random_uuid(),
	identity text not null,
	display_name text not null default '',
	password_hash text not null,
	reset_token_hash text null,
	reset_expires_at timestamptz null,
	created_at timestamptz not null default now(),
	updated_at timestamptz not null default now()
);

create unique index if not exists users_identity_key on users (identity);
create index if not exists users_reset_token_hash_idx on users (reset_token_hash)
	where reset_token_hash is not null;
`

const userColumns = `id::text, identity, display_name, password_hash,
	coalesce(reset_token_hash, ''), reset_expires_at, created_at, updated_at`

type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects and pings. It fails fast when the database is
// unreachable.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	defer cancelPing()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &Store{pool: pool}, nil
}

// NewStoreFromPool wraps an existing pool. Close still closes it.
func NewStoreFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the users table and its indexes if they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", mapPgErr(err))
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) FindByIdentity(ctx context.Context, identity string) (authflow.User, error) {
	return s.queryUser(ctx, `select `+userColumns+` from users where identity = $1`, identity)
}

func (s *Store) FindByID(ctx context.Context, id string) (authflow.User, error) {
	return s.queryUser(ctx, `select `+userColumns+` from users where id::text = $1`, id)
}

func (s *Store) Create(ctx context.Context, in authflow.NewUser) (authflow.User, error) {
	return s.queryUser(ctx, `
		insert into users (identity, display_name, password_hash)
		values ($1, $2, $3)
		returning `+userColumns, in.Identity, in.DisplayName, in.PasswordHash)
}

func (s *Store) SetResetToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	return s.execOne(ctx, `
		update users
		set reset_token_hash = $2, reset_expires_at = $3, updated_at = now()
		where id::text = $1
	`, userID, tokenHash, expiresAt.UTC())
}

func (s *Store) FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (authflow.User, error) {
	return s.queryUser(ctx, `
		select `+userColumns+`
		from users
		where reset_token_hash = $1 and reset_expires_at > $2
	`, tokenHash, now.UTC())
}

// ConsumeResetToken is a single conditional update; of several concurrent
// callers with the same token at most one gets a row back.
func (s *Store) ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (authflow.User, error) {
	return s.queryUser(ctx, `
		update users
		set password_hash = $2,
		    reset_token_hash = null,
		    reset_expires_at = null,
		    updated_at = now()
		where reset_token_hash = $1 and reset_expires_at > $3
		returning `+userColumns, tokenHash, passwordHash, now.UTC())
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	return s.execOne(ctx, `
		update users
		set password_hash = $2, updated_at = now()
		where id::text = $1
	`, userID, passwordHash)
}

func (s *Store) PurgeExpiredResetTokens(ctx context.Context, before time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		update users
		set reset_token_hash = null, reset_expires_at = null
		where reset_token_hash is not null and reset_expires_at <= $1
	`, before.UTC())
	if err != nil {
		return 0, mapPgErr(err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) queryUser(ctx context.Context, sql string, args ...any) (authflow.User, error) {
	var (
		u        authflow.User
		resetExp *time.Time
	)
	err := s.pool.QueryRow(ctx, sql, args...).Scan(
		&u.ID,
		&u.Identity,
		&u.DisplayName,
		&u.PasswordHash,
		&u.ResetTokenHash,
		&resetExp,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return authflow.User{}, mapPgErr(err)
	}
	if resetExp != nil {
		u.ResetExpiresAt = *resetExp
	}
	return u, nil
}

func (s *Store) execOne(ctx context.Context, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return authflow.ErrUserNotFound
	}
	return nil
}

func mapPgErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return authflow.ErrUserNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return authflow.ErrAccountExists
		default:
			return fmt.Errorf("%w: db_error %s: %s", authflow.ErrUserStoreUnavailable, pgErr.Code, pgErr.Message)
		}
	}
	return err
}
