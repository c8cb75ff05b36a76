package postgresql

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parking_backend/internal/domain"
	"parking_backend/internal/repository"
)

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

var spotCols = []string{"id", "number", "floor", "section", "status", "user_id", "plate_number",
	"entry_time", "reservation_time", "created_at", "updated_at", "version"}

var sessionCols = []string{"id", "parking_spot_id", "user_id", "plate_number", "entry_time",
	"exit_time", "duration", "amount", "status", "payment_id"}

func availableSpotRows(version int64) *sqlmock.Rows {
	return sqlmock.NewRows(spotCols).AddRow("s1", "A1", 1, "A", "available", nil, nil, nil, nil, now, now, version)
}

func occupiedSpotRows(version int64) *sqlmock.Rows {
	return sqlmock.NewRows(spotCols).AddRow("s1", "A1", 1, "A", "occupied", "u1", "ABC123", now, nil, now, now, version)
}

func expectReadSet(mock sqlmock.Sqlmock, spot *sqlmock.Rows, active *sqlmock.Rows) {
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM parking_spots WHERE id = \$1`).WithArgs("s1").WillReturnRows(spot)
	mock.ExpectQuery(`FROM parking_history WHERE parking_spot_id = \$1 AND status = \$2`).
		WithArgs("s1", "active").WillReturnRows(active)
}

func enterGuard(snap repository.SpotSnapshot) (repository.WriteSet, error) {
	next, err := snap.Spot.Enter("u1", "ABC123", now)
	if err != nil {
		return repository.WriteSet{}, err
	}
	session, err := domain.OpenSession("h1", snap.Spot.ID, "u1", "ABC123", snap.Active, now)
	if err != nil {
		return repository.WriteSet{}, err
	}
	return repository.WriteSet{Spot: &next, OpenSession: &session}, nil
}

func TestLedgerEntryCommits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectReadSet(mock, availableSpotRows(3), sqlmock.NewRows(sessionCols))
	mock.ExpectExec(`UPDATE parking_spots`).
		WithArgs("occupied", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "s1", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO parking_history`).
		WithArgs("h1", "s1", "u1", "ABC123", now, "active").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ws, err := NewPgSpotLedger(db).RunAtomic(context.Background(), "s1", enterGuard)
	require.NoError(t, err)
	assert.EqualValues(t, 4, ws.Spot.Version)
	assert.Equal(t, "h1", ws.OpenSession.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerLostRaceIsInvalidTransition(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectReadSet(mock, availableSpotRows(3), sqlmock.NewRows(sessionCols))
	mock.ExpectExec(`UPDATE parking_spots`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err = NewPgSpotLedger(db).RunAtomic(context.Background(), "s1", enterGuard)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerGuardRejectionRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	active := sqlmock.NewRows(sessionCols).AddRow("h0", "s1", "u1", "ABC123", now, nil, nil, nil, "active", nil)
	expectReadSet(mock, occupiedSpotRows(5), active)
	mock.ExpectRollback()

	_, err = NewPgSpotLedger(db).RunAtomic(context.Background(), "s1", enterGuard)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerDuplicateActiveSession(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectReadSet(mock, availableSpotRows(1), sqlmock.NewRows(sessionCols))
	mock.ExpectExec(`UPDATE parking_spots`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO parking_history`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "parking_history_one_active_per_spot"})
	mock.ExpectRollback()

	_, err = NewPgSpotLedger(db).RunAtomic(context.Background(), "s1", enterGuard)
	assert.ErrorIs(t, err, domain.ErrDuplicateActiveSession)
	assert.True(t, domain.IsInternal(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerExitWithPayment(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	active := sqlmock.NewRows(sessionCols).AddRow("h1", "s1", "u1", "ABC123", now, nil, nil, nil, "active", nil)
	expectReadSet(mock, occupiedSpotRows(7), active)
	mock.ExpectExec(`UPDATE parking_spots`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE parking_history`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO payments`).
		WithArgs("p1", "h1", "u1", 10.0, "card", "completed", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	exitAt := now.Add(90 * time.Minute)
	ws, err := NewPgSpotLedger(db).RunAtomic(context.Background(), "s1", func(snap repository.SpotSnapshot) (repository.WriteSet, error) {
		next, err := snap.Spot.Exit(exitAt)
		if err != nil {
			return repository.WriteSet{}, err
		}
		closed, err := domain.CloseSession(snap.Active, exitAt, 5)
		if err != nil {
			return repository.WriteSet{}, err
		}
		p := domain.NewPayment("p1", closed, "card", exitAt)
		return repository.WriteSet{Spot: &next, CloseSession: &closed, Payment: &p}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SpotAvailable, ws.Spot.State)
	assert.Equal(t, 10.0, ws.CloseSession.Amount.Float64)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerCloseOfStaleSessionIsInconsistent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	active := sqlmock.NewRows(sessionCols).AddRow("h1", "s1", "u1", "ABC123", now, nil, nil, nil, "active", nil)
	expectReadSet(mock, occupiedSpotRows(7), active)
	mock.ExpectExec(`UPDATE parking_spots`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE parking_history`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err = NewPgSpotLedger(db).RunAtomic(context.Background(), "s1", func(snap repository.SpotSnapshot) (repository.WriteSet, error) {
		next, _ := snap.Spot.Exit(now)
		closed, err := domain.CloseSession(snap.Active, now, 5)
		return repository.WriteSet{Spot: &next, CloseSession: &closed}, err
	})
	assert.ErrorIs(t, err, domain.ErrInconsistentState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerMissingSpotAndOutage(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM parking_spots WHERE id = \$1`).WithArgs("s1").WillReturnRows(sqlmock.NewRows(spotCols))
	mock.ExpectRollback()

	ledger := NewPgSpotLedger(db)
	_, err = ledger.RunAtomic(context.Background(), "s1", enterGuard)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	mock.ExpectBegin().WillReturnError(context.DeadlineExceeded)
	_, err = ledger.RunAtomic(context.Background(), "s1", enterGuard)
	assert.ErrorIs(t, err, repository.ErrStoreUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassify(t *testing.T) {
	assert.Nil(t, classify(nil))
	assert.ErrorIs(t, classify(&pgconn.PgError{Code: "08006"}), repository.ErrStoreUnavailable)
	assert.ErrorIs(t, classify(&pgconn.PgError{Code: "57P01"}), repository.ErrStoreUnavailable)
	assert.NotErrorIs(t, classify(&pgconn.PgError{Code: "23505"}), repository.ErrStoreUnavailable)

	name, ok := uniqueViolation(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})
	assert.True(t, ok)
	assert.Equal(t, "users_email_key", name)
	assert.True(t, foreignKeyViolation(&pq.Error{Code: "23503"}))
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE UNIQUE INDEX IF NOT EXISTS parking_history_one_active_per_spot")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
