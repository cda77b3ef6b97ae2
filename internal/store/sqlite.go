// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides identity persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared across queries
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS utilisateur (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			email        TEXT NOT NULL UNIQUE,
			mot_de_passe TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS association (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			nom            TEXT NOT NULL,
			utilisateur_id INTEGER NOT NULL UNIQUE,
			FOREIGN KEY (utilisateur_id) REFERENCES utilisateur(id) ON UPDATE CASCADE
		);

		CREATE TABLE IF NOT EXISTS famille (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			nom            TEXT NOT NULL,
			utilisateur_id INTEGER NOT NULL UNIQUE,
			FOREIGN KEY (utilisateur_id) REFERENCES utilisateur(id) ON UPDATE CASCADE
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const selectIdentitySQLite = `
	SELECT u.id, u.email, u.mot_de_passe, a.id, a.nom, f.id, f.nom
	FROM utilisateur u
	LEFT JOIN association a ON a.utilisateur_id = u.id
	LEFT JOIN famille f ON f.utilisateur_id = u.id
`

// FindIdentityByEmail returns the identity registered with email, or ErrNotFound.
func (s *SQLiteStore) FindIdentityByEmail(ctx context.Context, email string) (*Identity, error) {
	row := s.db.QueryRowContext(ctx, selectIdentitySQLite+" WHERE u.email = ?", NormalizeEmail(email))
	return scanIdentity(row.Scan)
}

// FindIdentityByID returns the identity with the given id, or ErrNotFound.
func (s *SQLiteStore) FindIdentityByID(ctx context.Context, id int64) (*Identity, error) {
	row := s.db.QueryRowContext(ctx, selectIdentitySQLite+" WHERE u.id = ?", id)
	return scanIdentity(row.Scan)
}

// CreateIdentity inserts a new identity. The email is normalized first.
func (s *SQLiteStore) CreateIdentity(ctx context.Context, email, passwordHash string) (*Identity, error) {
	email = NormalizeEmail(email)

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO utilisateur (email, mot_de_passe) VALUES (?, ?)`,
		email, passwordHash,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("inserting identity: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading identity id: %w", err)
	}

	s.logger.Info("identity created", "id", id)
	return &Identity{ID: id, Email: email, PasswordHash: passwordHash}, nil
}

// AttachShelter registers identityID as the operator of a new shelter.
func (s *SQLiteStore) AttachShelter(ctx context.Context, identityID int64, name string) (*Shelter, error) {
	id, err := s.insertAssociation(ctx, "association", identityID, name)
	if err != nil {
		return nil, err
	}
	return &Shelter{ID: id, Name: name}, nil
}

// AttachFoster registers identityID as a foster family.
func (s *SQLiteStore) AttachFoster(ctx context.Context, identityID int64, name string) (*Foster, error) {
	id, err := s.insertAssociation(ctx, "famille", identityID, name)
	if err != nil {
		return nil, err
	}
	return &Foster{ID: id, Name: name}, nil
}

// insertAssociation is shared by AttachShelter and AttachFoster; table is
// never user input.
func (s *SQLiteStore) insertAssociation(ctx context.Context, table string, identityID int64, name string) (int64, error) {
	if _, err := s.FindIdentityByID(ctx, identityID); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO `+table+` (nom, utilisateur_id) VALUES (?, ?)`,
		name, identityID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return 0, ErrAlreadyAttached
		}
		return 0, fmt.Errorf("inserting %s: %w", table, err)
	}
	return res.LastInsertId()
}

// DeleteIdentity removes the identity and its associations in one
// transaction. It returns ErrNotFound if the identity does not exist.
func (s *SQLiteStore) DeleteIdentity(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"association", "famille"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE utilisateur_id = ?`, id); err != nil {
			return fmt.Errorf("deleting %s: %w", table, err)
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM utilisateur WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting identity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing identity delete: %w", err)
	}
	s.logger.Info("identity deleted", "id", id)
	return nil
}

// scanIdentity reads one joined identity row. It takes the Scan method so it
// works for both *sql.Row and pgx.Row.
func scanIdentity(scan func(dest ...any) error) (*Identity, error) {
	var (
		identity    Identity
		shelterID   sql.NullInt64
		shelterName sql.NullString
		fosterID    sql.NullInt64
		fosterName  sql.NullString
	)

	err := scan(&identity.ID, &identity.Email, &identity.PasswordHash, &shelterID, &shelterName, &fosterID, &fosterName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning identity: %w", err)
	}

	if shelterID.Valid {
		identity.Shelter = &Shelter{ID: shelterID.Int64, Name: shelterName.String}
	}
	if fosterID.Valid {
		identity.Foster = &Foster{ID: fosterID.Int64, Name: fosterName.String}
	}
	return &identity, nil
}

// isUniqueConstraintError checks if the error is a unique constraint violation
func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") || strings.Contains(err.Error(), "unique constraint"))
}

// Ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)
