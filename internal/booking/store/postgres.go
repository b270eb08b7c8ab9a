package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"rentguard/internal/booking/models"
	id "rentguard/pkg/domain"
	"rentguard/pkg/platform/sentinel"
)

// Schema creates the bookings table. The full record is kept as JSONB; the
// scalar columns exist for indexing and the overlap query.
const Schema = `
CREATE TABLE IF NOT EXISTS bookings (
	id          BIGSERIAL PRIMARY KEY,
	tenant_id   TEXT NOT NULL,
	property_id TEXT NOT NULL,
	status      TEXT NOT NULL,
	check_in    TIMESTAMPTZ NOT NULL,
	check_out   TIMESTAMPTZ NOT NULL,
	version     BIGINT NOT NULL,
	record      JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	CHECK (check_in < check_out)
);
CREATE INDEX IF NOT EXISTS bookings_tenant_idx ON bookings (tenant_id, id);
CREATE INDEX IF NOT EXISTS bookings_property_idx ON bookings (property_id, id);
CREATE INDEX IF NOT EXISTS bookings_status_idx ON bookings (status, id);
CREATE INDEX IF NOT EXISTS bookings_open_idx ON bookings (property_id, check_in, check_out)
	WHERE status NOT IN ('completed', 'cancelled');
`

// PostgresStore persists bookings in PostgreSQL. Overlap checks serialize on
// a transaction-scoped advisory lock derived from the property id, and
// updates lock the row with SELECT ... FOR UPDATE.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies Schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate bookings: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, b *models.Booking) (*models.Booking, error) {
	var stored *models.Booking
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, string(b.PropertyID)); err != nil {
			return fmt.Errorf("lock property %s: %w", b.PropertyID, err)
		}

		var clash bool
		err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM bookings
				WHERE property_id = $1
				  AND status NOT IN ('completed', 'cancelled')
				  AND check_in < $3 AND check_out > $2
			)`, string(b.PropertyID), b.Dates.CheckIn, b.Dates.CheckOut).Scan(&clash)
		if err != nil {
			return fmt.Errorf("check overlap: %w", err)
		}
		if clash {
			return ErrOverlap
		}

		var next int64
		if err := tx.QueryRowContext(ctx, `SELECT nextval(pg_get_serial_sequence('bookings', 'id'))`).Scan(&next); err != nil {
			return fmt.Errorf("allocate booking id: %w", err)
		}
		stored = b.Clone()
		stored.ID = id.BookingID(next)
		record, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("encode booking: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO bookings (id, tenant_id, property_id, status, check_in, check_out, version, record, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			next, string(stored.TenantID), string(stored.PropertyID), string(stored.Status),
			stored.Dates.CheckIn, stored.Dates.CheckOut, int64(stored.Version), record,
			stored.CreatedAt, stored.UpdatedAt)
		if err != nil {
			return translateInsertErr(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *PostgresStore) Get(ctx context.Context, bookingID id.BookingID) (*models.Booking, error) {
	return scanRecord(s.db.QueryRowContext(ctx, `SELECT record FROM bookings WHERE id = $1`, int64(bookingID)), bookingID)
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.Booking, error) {
	return s.list(ctx, `SELECT record FROM bookings WHERE tenant_id = $1 ORDER BY id`, string(tenantID))
}

func (s *PostgresStore) ListByProperty(ctx context.Context, propertyID id.PropertyID) ([]*models.Booking, error) {
	return s.list(ctx, `SELECT record FROM bookings WHERE property_id = $1 ORDER BY id`, string(propertyID))
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status models.Status) ([]*models.Booking, error) {
	return s.list(ctx, `SELECT record FROM bookings WHERE status = $1 ORDER BY id`, string(status))
}

func (s *PostgresStore) Update(ctx context.Context, bookingID id.BookingID, fn UpdateFunc) (*models.Booking, error) {
	var next *models.Booking
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := scanRecord(tx.QueryRowContext(ctx, `SELECT record FROM bookings WHERE id = $1 FOR UPDATE`, int64(bookingID)), bookingID)
		if err != nil {
			return err
		}
		next, err = applyUpdate(current, fn)
		if err != nil {
			return err
		}
		record, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode booking %s: %w", bookingID, err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE bookings SET status = $2, version = $3, record = $4, updated_at = $5
			WHERE id = $1`,
			int64(bookingID), string(next.Status), int64(next.Version), record, next.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update booking %s: %w", bookingID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

func (s *PostgresStore) list(ctx context.Context, query string, arg any) ([]*models.Booking, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var out []*models.Booking
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		var b models.Booking
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, fmt.Errorf("decode booking: %w", err)
		}
		out = append(out, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bookings: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func scanRecord(row *sql.Row, bookingID id.BookingID) (*models.Booking, error) {
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(bookingID)
		}
		return nil, fmt.Errorf("load booking %s: %w", bookingID, err)
	}
	var b models.Booking
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode booking %s: %w", bookingID, err)
	}
	return &b, nil
}

// translateInsertErr maps constraint violations onto store sentinels.
func translateInsertErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return fmt.Errorf("insert booking: %w", sentinel.ErrConflict)
		case "23514":
			return fmt.Errorf("insert booking: %s: %w", pqErr.Constraint, sentinel.ErrInvalidState)
		}
	}
	return fmt.Errorf("insert booking: %w", err)
}
