package postgresql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"strings"

	"parking_backend/internal/config"
	"parking_backend/internal/repository"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// NewDB opens the pool with cfg.DBDriver: "pgx" (default) or "postgres" for lib/pq.
func NewDB(cfg *config.Config) (*sql.DB, error) {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSslMode)

	db, err := sql.Open(cfg.DBDriver, psqlInfo)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.StoreTimeout)
	defer cancel()
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error pinging database: %w", err)
	}
	return db, nil
}

// Migrate creates the tables and indexes if they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("postgresql.Migrate: %w", classify(err))
	}
	return nil
}

// NewStore wires every repository onto one pool.
func NewStore(db *sql.DB) repository.Store {
	return repository.Store{
		Spots:       NewPgSpotRepository(db),
		Sessions:    NewPgSessionRepository(db),
		Payments:    NewPgPaymentRepository(db),
		Users:       NewPgUserRepository(db),
		Credentials: NewPgCredentialRepository(db),
		Ledger:      NewPgSpotLedger(db),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// uniqueViolation returns the violated constraint name, or "" if err is not a unique violation.
// Both drivers are handled since either may be configured.
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return pqErr.Constraint, true
	}
	return "", false
}

func foreignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return true
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation"
}

// classify turns connectivity failures into repository.ErrStoreUnavailable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.As(err, &netErr):
		return fmt.Errorf("%w: %v", repository.ErrStoreUnavailable, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (strings.HasPrefix(pgErr.Code, "08") || pgErr.Code == "57P01") {
		return fmt.Errorf("%w: %v", repository.ErrStoreUnavailable, err)
	}
	return err
}
