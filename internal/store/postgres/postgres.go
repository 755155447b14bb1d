package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"

	"sarisari/backend/internal/domain"
	"sarisari/backend/internal/store"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db   *sql.DB
	q    querier
	inTx bool
}

var (
	_ store.Repository = (*Store)(nil)
	_ store.Atomic     = (*Store)(nil)
)

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, classify(err, "ping postgres")
	}

	return &Store{db: db, q: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return classify(s.db.PingContext(ctx), "ping postgres")
}

// RunInTx runs fn inside one READ COMMITTED transaction. Every ledger write is
// a row-locking or conditional UPDATE, so concurrent units on the same day
// queue on the counter row instead of failing serialization. Calls made on a
// store that is already inside a transaction join it.
func (s *Store) RunInTx(ctx context.Context, fn func(repo store.Repository) error) error {
	if s.inTx {
		return fn(s)
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return classify(err, "begin tx")
	}
	defer func() { _ = pgTx.Rollback() }()

	if err := fn(&Store{db: s.db, q: pgTx, inTx: true}); err != nil {
		return err
	}
	if err := pgTx.Commit(); err != nil {
		return classify(err, "commit tx")
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	err := s.q.QueryRowContext(ctx, `
		SELECT id, username, full_name, role, active
		FROM users
		WHERE id = $1
	`, id).Scan(&u.ID, &u.Username, &u.FullName, &u.Role, &u.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, classify(err, "get user")
	}
	return &u, nil
}

func (s *Store) Next(ctx context.Context, day string) (int64, error) {
	if day == "" {
		return 0, fmt.Errorf("%w: empty sequence day", store.ErrInvalidInput)
	}
	var value int64
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO transaction_counters (day, last_value)
		VALUES ($1, 1)
		ON CONFLICT (day)
		DO UPDATE SET last_value = transaction_counters.last_value + 1
		RETURNING last_value
	`, day).Scan(&value)
	if err != nil {
		return 0, classify(err, "next sequence value")
	}
	return value, nil
}

// classify turns driver failures into store errors. Serialization conflicts,
// lock timeouts, cancellations and connection loss are retryable.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, driver.ErrBadConn) {
		return store.Unavailable(errors.Wrap(err, op))
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "40001", pgErr.Code == "40P01", pgErr.Code == "55P03", pgErr.Code == "57014":
			return store.Unavailable(errors.Wrap(err, op))
		case len(pgErr.Code) == 5 && pgErr.Code[:2] == "08":
			return store.Unavailable(errors.Wrap(err, op))
		case pgErr.Code == "23514", pgErr.Code == "22003":
			return fmt.Errorf("%w: %s: %s", store.ErrInvalidInput, op, pgErr.Message)
		}
		return errors.Wrap(err, op)
	}
	var netErr net.Error
	if errors.As(err, &netErr) || pgconn.Timeout(err) {
		return store.Unavailable(errors.Wrap(err, op))
	}
	return errors.Wrap(err, op)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
