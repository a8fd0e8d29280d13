package database

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sumangalagouda/DEV-HACK/internal/credentials"
)

func newMockStore(t *testing.T, switchRole bool) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewStore(db, time.Second, switchRole), mock
}

var supervisorCred = credentials.Credential{
	Subject:  "sup-1",
	Role:     "authenticated",
	Zones:    []string{"Zone A"},
	Verified: true,
}

func TestScopedForwardsClaimsAndRole(t *testing.T) {
	store, mock := newMockStore(t, true)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT set_config('request.jwt.claims', $1, true)")).
		WithArgs(`{"role":"authenticated","sub":"sup-1","zones":["Zone A"]}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`SET LOCAL ROLE "authenticated"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "cameras" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "location", "status"}).
			AddRow("CAM-01", "North Gate", "Site entrance", "active"))
	mock.ExpectCommit()

	cam, err := store.FindCamera(context.Background(), supervisorCred, "CAM-01")
	require.NoError(t, err)
	assert.Equal(t, "North Gate", cam.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScopedSkipsClaimsForUnverifiedCredential(t *testing.T) {
	store, mock := newMockStore(t, true)

	mock.ExpectQuery(`SELECT \* FROM "cameras" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.FindCamera(context.Background(), credentials.Credential{Token: "anon"}, "CAM-404")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScopedMapsPostgresErrors(t *testing.T) {
	store, mock := newMockStore(t, false)

	mock.ExpectBegin()
	mock.ExpectExec("set_config").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM "cameras"`).WillReturnError(&pgconn.PgError{
		Code:    "42501",
		Message: "permission denied for table cameras",
		Detail:  "policy cameras_select rejected the row",
		Hint:    "check assigned zones",
	})
	mock.ExpectRollback()

	_, err := store.FindCamera(context.Background(), supervisorCred, "CAM-01")
	var storeErr *StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "42501", storeErr.Code)
	assert.Equal(t, "policy cameras_select rejected the row", storeErr.Details)
	assert.Equal(t, "check assigned zones", storeErr.Hint)
	assert.NoError(t, mock.ExpectationsWereMet())
}
