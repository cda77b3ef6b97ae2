// ABOUTME: Tests for the PostgreSQL store using pgxmock
// ABOUTME: Covers joined identity scans, not-found mapping and constraint errors

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var identityColumns = []string{"id", "email", "mot_de_passe", "shelter_id", "shelter_nom", "foster_id", "foster_nom"}

func createTestPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()

	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)

	return NewPostgresStoreWithPool(mockDB, nil), mockDB
}

func TestPostgresStore_FindIdentityByEmail(t *testing.T) {
	tests := []struct {
		name        string
		row         []any
		err         error
		wantErr     error
		wantShelter bool
		wantFoster  bool
	}{
		{
			name:        "shelter operator",
			row:         []any{int64(1), "refuge@example.com", "hash", int64(3), "Refuge", nil, nil},
			wantShelter: true,
		},
		{
			name:       "foster",
			row:        []any{int64(2), "refuge@example.com", "hash", nil, nil, int64(9), "Famille"},
			wantFoster: true,
		},
		{
			name:    "unknown email",
			err:     pgx.ErrNoRows,
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mockDB := createTestPostgresStore(t)
			defer mockDB.Close()

			exp := mockDB.ExpectQuery("SELECT u.id, u.email").WithArgs("refuge@example.com")
			if tt.err != nil {
				exp.WillReturnError(tt.err)
			} else {
				exp.WillReturnRows(pgxmock.NewRows(identityColumns).AddRow(tt.row...))
			}

			got, err := s.FindIdentityByEmail(context.Background(), " Refuge@Example.com")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "refuge@example.com", got.Email)
				assert.Equal(t, tt.wantShelter, got.Shelter != nil)
				assert.Equal(t, tt.wantFoster, got.Foster != nil)
			}

			assert.NoError(t, mockDB.ExpectationsWereMet())
		})
	}
}

func TestPostgresStore_FindIdentityByID_DatabaseError(t *testing.T) {
	s, mockDB := createTestPostgresStore(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("SELECT u.id, u.email").WithArgs(int64(5)).WillReturnError(errors.New("connection reset"))

	_, err := s.FindIdentityByID(context.Background(), 5)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestPostgresStore_CreateIdentity(t *testing.T) {
	s, mockDB := createTestPostgresStore(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("INSERT INTO utilisateur").
		WithArgs("new@example.com", "hash").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(12)))

	got, err := s.CreateIdentity(context.Background(), "New@example.com", "hash")
	require.NoError(t, err)
	assert.Equal(t, int64(12), got.ID)
	assert.Equal(t, "new@example.com", got.Email)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestPostgresStore_CreateIdentity_Duplicate(t *testing.T) {
	s, mockDB := createTestPostgresStore(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("INSERT INTO utilisateur").
		WithArgs("dup@example.com", "hash").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := s.CreateIdentity(context.Background(), "dup@example.com", "hash")
	assert.ErrorIs(t, err, ErrEmailExists)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestPostgresStore_AttachFoster(t *testing.T) {
	s, mockDB := createTestPostgresStore(t)
	defer mockDB.Close()

	mockDB.ExpectQuery("INSERT INTO famille").
		WithArgs("Famille Martin", int64(4)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(2)))
	mockDB.ExpectQuery("INSERT INTO association").
		WithArgs("Refuge", int64(99)).
		WillReturnError(&pgconn.PgError{Code: "23503"})

	foster, err := s.AttachFoster(context.Background(), 4, "Famille Martin")
	require.NoError(t, err)
	assert.Equal(t, &Foster{ID: 2, Name: "Famille Martin"}, foster)

	_, err = s.AttachShelter(context.Background(), 99, "Refuge")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mockDB.ExpectationsWereMet())
}

func TestPostgresStore_DeleteIdentity(t *testing.T) {
	t.Run("deletes associations then identity", func(t *testing.T) {
		s, mockDB := createTestPostgresStore(t)
		defer mockDB.Close()

		mockDB.ExpectBegin()
		mockDB.ExpectExec("DELETE FROM association").WithArgs(int64(7)).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mockDB.ExpectExec("DELETE FROM famille").WithArgs(int64(7)).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockDB.ExpectExec("DELETE FROM utilisateur").WithArgs(int64(7)).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mockDB.ExpectCommit()

		require.NoError(t, s.DeleteIdentity(context.Background(), 7))
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("unknown identity rolls back", func(t *testing.T) {
		s, mockDB := createTestPostgresStore(t)
		defer mockDB.Close()

		mockDB.ExpectBegin()
		mockDB.ExpectExec("DELETE FROM association").WithArgs(int64(99)).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockDB.ExpectExec("DELETE FROM famille").WithArgs(int64(99)).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockDB.ExpectExec("DELETE FROM utilisateur").WithArgs(int64(99)).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockDB.ExpectRollback()

		assert.ErrorIs(t, s.DeleteIdentity(context.Background(), 99), ErrNotFound)
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("failed exec rolls back", func(t *testing.T) {
		s, mockDB := createTestPostgresStore(t)
		defer mockDB.Close()

		mockDB.ExpectBegin()
		mockDB.ExpectExec("DELETE FROM association").WithArgs(int64(3)).
			WillReturnError(errors.New("connection reset"))
		mockDB.ExpectRollback()

		err := s.DeleteIdentity(context.Background(), 3)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "deleting association")
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})
}

func TestPostgresStore_Ping(t *testing.T) {
	s, mockDB := createTestPostgresStore(t)
	defer mockDB.Close()

	mockDB.ExpectPing()
	assert.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, mockDB.ExpectationsWereMet())
}
