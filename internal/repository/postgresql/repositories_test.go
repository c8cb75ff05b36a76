package postgresql

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parking_backend/internal/domain"
	"parking_backend/internal/repository"
)

func TestSessionFindBuildsFilteredQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows(sessionCols).
		AddRow("h2", "s1", "u1", "ABC123", now.Add(2*time.Hour), now.Add(3*time.Hour), 1.0, 5.0, "completed", nil).
		AddRow("h1", "s2", "u1", "ABC123", now, now.Add(time.Hour), 1.0, 5.0, "completed", "p1")
	mock.ExpectQuery(regexp.QuoteMeta(`FROM parking_history WHERE user_id = $1 AND status = $2 ORDER BY entry_time DESC, id DESC`)).
		WithArgs("u1", "completed").
		WillReturnRows(rows)

	user := "u1"
	status := domain.SessionCompleted
	sessions, err := NewPgSessionRepository(db).Find(context.Background(), domain.SessionFilter{UserID: &user, Status: &status})
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "h2", sessions[0].ID)
	assert.Equal(t, "p1", sessions[1].PaymentID.String)
	assert.False(t, sessions[0].PaymentID.Valid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionFindAll(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM parking_history ORDER BY entry_time DESC`)).
		WillReturnRows(sqlmock.NewRows(sessionCols))

	sessions, err := NewPgSessionRepository(db).Find(context.Background(), domain.SessionFilter{})
	require.NoError(t, err)
	assert.Empty(t, sessions)
	assert.NotNil(t, sessions)
}

func TestSpotCreateDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO parking_spots`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "parking_spots_floor_section_number_key"})

	spot := domain.NewParkingSpot("s1", "A1", 1, "A", now)
	_, err = NewPgSpotRepository(db).Create(context.Background(), &spot)
	assert.ErrorIs(t, err, repository.ErrDuplicateEntry)
}

func TestSpotFindByState(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM parking_spots WHERE status = $1 ORDER BY floor, section, number`)).
		WithArgs("occupied").
		WillReturnRows(occupiedSpotRows(2))

	state := domain.SpotOccupied
	spots, err := NewPgSpotRepository(db).Find(context.Background(), domain.SpotFilter{State: &state})
	require.NoError(t, err)
	require.Len(t, spots, 1)
	assert.Equal(t, "u1", spots[0].OccupantID.String)
	assert.NoError(t, spots[0].CheckInvariant())
}

func TestSpotFindByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM parking_spots WHERE id`).WithArgs("x").WillReturnRows(sqlmock.NewRows(spotCols))
	_, err = NewPgSpotRepository(db).FindByID(context.Background(), "x")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

var paymentCols = []string{"id", "history_id", "user_id", "amount", "method", "status", "created_at", "refund_reason", "refund_date"}

func refundOf(id string) *domain.Payment {
	p := domain.Payment{ID: id, Status: domain.PaymentCompleted}
	refunded, _ := p.Refund("duplicate charge", now)
	return &refunded
}

func TestPaymentRefundOnlyFromCompleted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE payments SET status = $1, refund_reason = $2, refund_date = $3`)).
		WithArgs("refunded", "duplicate charge", sqlmock.AnyArg(), "p1", "completed").
		WillReturnRows(sqlmock.NewRows(paymentCols).
			AddRow("p1", "h1", "u1", 5.0, "card", "refunded", now, "duplicate charge", now))

	p, err := NewPgPaymentRepository(db).Refund(context.Background(), refundOf("p1"))
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentRefunded, p.Status)
	assert.Equal(t, "duplicate charge", p.RefundReason.String)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRefundLosesToEarlierRefund(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`UPDATE payments SET status`).WillReturnRows(sqlmock.NewRows(paymentCols))
	mock.ExpectQuery(`SELECT status FROM payments WHERE id`).WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("refunded"))

	_, err = NewPgPaymentRepository(db).Refund(context.Background(), refundOf("p1"))
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRefundMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`UPDATE payments SET status`).WillReturnRows(sqlmock.NewRows(paymentCols))
	mock.ExpectQuery(`SELECT status FROM payments WHERE id`).WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}))

	_, err = NewPgPaymentRepository(db).Refund(context.Background(), refundOf("p1"))
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

var userCols = []string{"id", "email", "first_name", "last_name", "phone", "role", "created_at", "updated_at",
	"pref_notifications", "pref_language", "pref_theme"}

func TestUserFindAllReadsPreferences(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users ORDER BY created_at, id`)).
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("u1", "a@example.com", "Ann", "Lee", "", "user", now, now, true, "es", "system").
			AddRow("u2", "b@example.com", "Bo", "Kim", "", "admin", now, now, false, "en", "dark"))

	users, err := NewPgUserRepository(db).FindAll(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, domain.UserPreferences{Notifications: false, Language: "en", Theme: "dark"}, users[1].Preferences)
	assert.Equal(t, domain.RoleAdmin, users[1].Role)
}

func TestUserUpdateWritesPreferences(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`UPDATE users SET first_name`).
		WithArgs("Ann", "Lee", "", false, "en", "dark", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))

	user := &domain.User{ID: "u1", FirstName: "Ann", LastName: "Lee",
		Preferences: domain.UserPreferences{Notifications: false, Language: "en", Theme: "dark"}}
	_, err = NewPgUserRepository(db).Update(context.Background(), user)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserAndCredentialDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM users WHERE id`).WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM users WHERE id`).WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM credentials WHERE user_id`).WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 1))

	users := NewPgUserRepository(db)
	require.NoError(t, users.Delete(context.Background(), "u1"))
	assert.ErrorIs(t, users.Delete(context.Background(), "u1"), repository.ErrNotFound)
	require.NoError(t, NewPgCredentialRepository(db).DeleteByUserID(context.Background(), "u1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
