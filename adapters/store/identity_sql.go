package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/core"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// SQLIdentityStore persists identities in SQLite or PostgreSQL.
// The UNIQUE constraint on wallet_address is the authority for
// find-or-create; an insert that loses the race is skipped by ON CONFLICT
// and the winner is read back.
type SQLIdentityStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// OpenSQLIdentityStore opens the database for driver and prepares the schema.
// For SQLite, dsn is a file path; parent directories are created if needed.
func OpenSQLIdentityStore(ctx context.Context, driver, dsn string, logger *slog.Logger) (*SQLIdentityStore, error) {
	var (
		db  *sqlx.DB
		err error
	)

	switch driver {
	case DriverSQLite:
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		db, err = sqlx.Open("sqlite", "file:"+dsn+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		// SQLite allows a single writer; serialize at the pool instead of
		// surfacing SQLITE_BUSY to callers.
		db.SetMaxOpenConns(1)
	case DriverPostgres:
		db, err = sqlx.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	s, err := NewSQLIdentityStore(ctx, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLIdentityStore wraps an open database and creates the schema if missing
func NewSQLIdentityStore(ctx context.Context, db *sqlx.DB, logger *slog.Logger) (*SQLIdentityStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SQLIdentityStore{
		db:     db,
		logger: logger.With("component", "identity_store"),
	}

	if err := s.createSchema(ctx); err != nil {
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s.logger.Info("identity store initialized", "driver", db.DriverName())
	return s, nil
}

func (s *SQLIdentityStore) createSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS identities (
			id TEXT PRIMARY KEY,
			wallet_address TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			created_at BIGINT NOT NULL
		)
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection
func (s *SQLIdentityStore) Close() error {
	s.logger.Info("closing identity store")
	return s.db.Close()
}

// identityRow is the column layout of the identities table
type identityRow struct {
	ID            string `db:"id"`
	WalletAddress string `db:"wallet_address"`
	Name          string `db:"name"`
	Email         string `db:"email"`
	CreatedAt     int64  `db:"created_at"`
}

func (r identityRow) identity() *core.Identity {
	return &core.Identity{
		ID:            r.ID,
		WalletAddress: r.WalletAddress,
		Name:          r.Name,
		Email:         r.Email,
		CreatedAt:     time.UnixMilli(r.CreatedAt).UTC(),
	}
}

// FindOrCreate returns the identity for candidate's address, inserting candidate if absent
func (s *SQLIdentityStore) FindOrCreate(ctx context.Context, candidate *core.Identity) (*core.Identity, bool, error) {
	address := core.CanonicalAddress(candidate.WalletAddress)

	existing, err := s.FindByAddress(ctx, address)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	stored := *candidate
	stored.WalletAddress = address
	stored.CreatedAt = stored.CreatedAt.UTC().Truncate(time.Millisecond)
	return s.insertOrGet(ctx, &stored)
}

// insertOrGet inserts identity unless its address is already taken, in which
// case the existing row wins and is returned instead
func (s *SQLIdentityStore) insertOrGet(ctx context.Context, identity *core.Identity) (*core.Identity, bool, error) {
	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO identities (id, wallet_address, name, email, created_at)
		VALUES (:id, :wallet_address, :name, :email, :created_at)
		ON CONFLICT DO NOTHING
	`, identityRow{
		ID:            identity.ID,
		WalletAddress: identity.WalletAddress,
		Name:          identity.Name,
		Email:         identity.Email,
		CreatedAt:     identity.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return nil, false, fmt.Errorf("inserting identity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("inserting identity: %w", err)
	}

	if n == 0 {
		winner, err := s.FindByAddress(ctx, identity.WalletAddress)
		if err != nil {
			return nil, false, fmt.Errorf("re-reading identity after conflict: %w", err)
		}
		s.logger.Debug("concurrent identity insert resolved to existing record", "address", identity.WalletAddress, "id", winner.ID)
		return winner, false, nil
	}

	s.logger.Debug("created identity", "address", identity.WalletAddress, "id", identity.ID)
	return identity, true, nil
}

// FindByID looks an identity up by internal id
func (s *SQLIdentityStore) FindByID(ctx context.Context, id string) (*core.Identity, error) {
	return s.findOne(ctx, `
		SELECT id, wallet_address, name, email, created_at
		FROM identities WHERE id = ?
	`, id)
}

// FindByAddress looks an identity up by canonical wallet address
func (s *SQLIdentityStore) FindByAddress(ctx context.Context, address string) (*core.Identity, error) {
	return s.findOne(ctx, `
		SELECT id, wallet_address, name, email, created_at
		FROM identities WHERE wallet_address = ?
	`, core.CanonicalAddress(address))
}

// Count returns the number of rows for address; used to check uniqueness
func (s *SQLIdentityStore) Count(ctx context.Context, address string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM identities WHERE wallet_address = ?`),
		core.CanonicalAddress(address))
	if err != nil {
		return 0, fmt.Errorf("counting identities: %w", err)
	}
	return n, nil
}

func (s *SQLIdentityStore) findOne(ctx context.Context, query string, arg string) (*core.Identity, error) {
	var row identityRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(query), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying identity: %w", err)
	}
	return row.identity(), nil
}
