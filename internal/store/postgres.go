// ABOUTME: PostgreSQL implementation of the Store interface using pgx
// ABOUTME: Schema is managed by goose migrations embedded in the binary

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/2389/refuge-gateway/internal/store/migrations"
)

// PostgreSQL SQLSTATE codes
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// PgxPool is the subset of *pgxpool.Pool used by PostgresStore.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements the Store interface on top of a pgx pool.
type PostgresStore struct {
	pool   PgxPool
	logger *slog.Logger
}

// gooseUp is a seam for tests.
var gooseUp = func(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Postgres)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "postgres")
}

// NewPostgresStore connects to the database at dsn and applies pending
// migrations before returning.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	logger := slog.Default().With("component", "store")

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	err = gooseUp(ctx, db)
	_ = db.Close()
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("PostgreSQL store initialized")
	return NewPostgresStoreWithPool(pool, logger), nil
}

// NewPostgresStoreWithPool wraps an existing pool. No migrations are run.
func NewPostgresStoreWithPool(pool PgxPool, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default().With("component", "store")
	}
	return &PostgresStore{pool: pool, logger: logger}
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.logger.Info("closing PostgreSQL store")
	s.pool.Close()
	return nil
}

// Ping verifies the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const selectIdentityPostgres = `
	SELECT u.id, u.email, u.mot_de_passe, a.id, a.nom, f.id, f.nom
	FROM utilisateur u
	LEFT JOIN association a ON a.utilisateur_id = u.id
	LEFT JOIN famille f ON f.utilisateur_id = u.id
`

// FindIdentityByEmail returns the identity registered with email, or ErrNotFound.
func (s *PostgresStore) FindIdentityByEmail(ctx context.Context, email string) (*Identity, error) {
	row := s.pool.QueryRow(ctx, selectIdentityPostgres+" WHERE u.email = $1", NormalizeEmail(email))
	return scanIdentity(pgxScan(row))
}

// FindIdentityByID returns the identity with the given id, or ErrNotFound.
func (s *PostgresStore) FindIdentityByID(ctx context.Context, id int64) (*Identity, error) {
	row := s.pool.QueryRow(ctx, selectIdentityPostgres+" WHERE u.id = $1", id)
	return scanIdentity(pgxScan(row))
}

// CreateIdentity inserts a new identity. The email is normalized first.
func (s *PostgresStore) CreateIdentity(ctx context.Context, email, passwordHash string) (*Identity, error) {
	email = NormalizeEmail(email)

	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO utilisateur (email, mot_de_passe) VALUES ($1, $2) RETURNING id`,
		email, passwordHash,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("inserting identity: %w", err)
	}

	s.logger.Info("identity created", "id", id)
	return &Identity{ID: id, Email: email, PasswordHash: passwordHash}, nil
}

// AttachShelter registers identityID as the operator of a new shelter.
func (s *PostgresStore) AttachShelter(ctx context.Context, identityID int64, name string) (*Shelter, error) {
	id, err := s.insertAssociation(ctx, "association", identityID, name)
	if err != nil {
		return nil, err
	}
	return &Shelter{ID: id, Name: name}, nil
}

// AttachFoster registers identityID as a foster family.
func (s *PostgresStore) AttachFoster(ctx context.Context, identityID int64, name string) (*Foster, error) {
	id, err := s.insertAssociation(ctx, "famille", identityID, name)
	if err != nil {
		return nil, err
	}
	return &Foster{ID: id, Name: name}, nil
}

func (s *PostgresStore) insertAssociation(ctx context.Context, table string, identityID int64, name string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO `+table+` (nom, utilisateur_id) VALUES ($1, $2) RETURNING id`,
		name, identityID,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return 0, ErrNotFound
		}
		if isUniqueViolation(err) {
			return 0, ErrAlreadyAttached
		}
		return 0, fmt.Errorf("inserting %s: %w", table, err)
	}
	return id, nil
}

// DeleteIdentity removes the identity and its associations in one
// transaction. It returns ErrNotFound if the identity does not exist.
func (s *PostgresStore) DeleteIdentity(ctx context.Context, id int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, table := range []string{"association", "famille"} {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE utilisateur_id = $1`, id); err != nil {
			return fmt.Errorf("deleting %s: %w", table, err)
		}
	}

	tag, err := tx.Exec(ctx, `DELETE FROM utilisateur WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing identity delete: %w", err)
	}
	s.logger.Info("identity deleted", "id", id)
	return nil
}

// pgxScan adapts a pgx.Row to scanIdentity, translating pgx.ErrNoRows.
func pgxScan(row pgx.Row) func(dest ...any) error {
	return func(dest ...any) error {
		err := row.Scan(dest...)
		if errors.Is(err, pgx.ErrNoRows) {
			return sql.ErrNoRows
		}
		return err
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Ensure PostgresStore implements Store
var _ Store = (*PostgresStore)(nil)

// Ensure *pgxpool.Pool satisfies PgxPool
var _ PgxPool = (*pgxpool.Pool)(nil)
