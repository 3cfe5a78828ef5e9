package store

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"meetstake-backend/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS meeting_stakes (
	meeting_id        TEXT PRIMARY KEY,
	event_id          TEXT NOT NULL,
	organizer_address TEXT NOT NULL,
	required_stake    NUMERIC(78,0) NOT NULL,
	start_time        TIMESTAMPTZ NOT NULL,
	end_time          TIMESTAMPTZ NOT NULL,
	attendance_code   TEXT,
	code_generated_at TIMESTAMPTZ,
	is_settled        BOOLEAN NOT NULL DEFAULT FALSE,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS stake_records (
	id             UUID PRIMARY KEY,
	meeting_id     TEXT NOT NULL REFERENCES meeting_stakes(meeting_id),
	wallet_address TEXT NOT NULL,
	amount         NUMERIC(78,0) NOT NULL,
	staked_at      TIMESTAMPTZ NOT NULL,
	has_checked_in BOOLEAN NOT NULL DEFAULT FALSE,
	check_in_time  TIMESTAMPTZ,
	is_refunded    BOOLEAN NOT NULL DEFAULT FALSE,
	UNIQUE (meeting_id, wallet_address)
);

CREATE TABLE IF NOT EXISTS profiles (
	id             UUID PRIMARY KEY,
	wallet_address TEXT UNIQUE NOT NULL,
	name           TEXT,
	email          TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Postgres is the pgx-backed Store. Update holds a row lock on the meeting
// for the duration of the callback, which is what gives the at-most-one
// settlement and one-stake-per-wallet guarantees under concurrent requests;
// the UNIQUE constraint on (meeting_id, wallet_address) backs the latter at
// the schema level too.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Init creates the ledger tables if they do not exist.
func (s *Postgres) Init(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *Postgres) Create(ctx context.Context, m *models.MeetingStake) error {
	query := `
		INSERT INTO meeting_stakes (meeting_id, event_id, organizer_address, required_stake, start_time, end_time, is_settled)
		VALUES ($1, $2, $3, $4, $5, $6, false)
	`

	_, err := s.pool.Exec(ctx, query,
		m.MeetingID,
		m.EventID,
		m.Organizer,
		m.RequiredStake.String(),
		m.StartTime,
		m.EndTime,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrMeetingExists
		}
		return fmt.Errorf("failed to insert meeting: %w", err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, meetingID string) (*models.MeetingStake, error) {
	return s.load(ctx, s.pool, meetingID, false)
}

func (s *Postgres) Update(ctx context.Context, meetingID string, fn func(m *models.MeetingStake) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := s.load(ctx, tx, meetingID, true)
	if err != nil {
		return err
	}

	if err := fn(rec); err != nil {
		return err
	}

	if err := s.write(ctx, tx, rec); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit update: %w", err)
	}
	return nil
}

func (s *Postgres) Close() {
	s.pool.Close()
}

// querier covers both the pool and an open transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *Postgres) load(ctx context.Context, q querier, meetingID string, forUpdate bool) (*models.MeetingStake, error) {
	query := `
		SELECT meeting_id, event_id, organizer_address, required_stake::text,
		       start_time, end_time, attendance_code, code_generated_at,
		       is_settled, created_at, updated_at
		FROM meeting_stakes
		WHERE meeting_id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var m models.MeetingStake
	var requiredStake string
	var attendanceCode *string

	err := q.QueryRow(ctx, query, meetingID).Scan(
		&m.MeetingID,
		&m.EventID,
		&m.Organizer,
		&requiredStake,
		&m.StartTime,
		&m.EndTime,
		&attendanceCode,
		&m.CodeGeneratedAt,
		&m.IsSettled,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMeetingNotFound
		}
		return nil, fmt.Errorf("failed to load meeting: %w", err)
	}

	m.RequiredStake, err = parseAmount(requiredStake)
	if err != nil {
		return nil, err
	}
	if attendanceCode != nil {
		m.AttendanceCode = *attendanceCode
	}

	stakesQuery := `
		SELECT id, wallet_address, amount::text, staked_at, has_checked_in, check_in_time, is_refunded
		FROM stake_records
		WHERE meeting_id = $1
		ORDER BY staked_at, id
	`

	rows, err := q.Query(ctx, stakesQuery, meetingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load stake records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r models.StakeRecord
		var amount string
		if err := rows.Scan(
			&r.ID,
			&r.WalletAddress,
			&amount,
			&r.StakedAt,
			&r.HasCheckedIn,
			&r.CheckInTime,
			&r.IsRefunded,
		); err != nil {
			return nil, fmt.Errorf("failed to scan stake record: %w", err)
		}
		if r.Amount, err = parseAmount(amount); err != nil {
			return nil, err
		}
		m.Stakes = append(m.Stakes, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stake records: %w", err)
	}

	return &m, nil
}

func (s *Postgres) write(ctx context.Context, q querier, m *models.MeetingStake) error {
	var attendanceCode *string
	if m.AttendanceCode != "" {
		attendanceCode = &m.AttendanceCode
	}

	meetingQuery := `
		UPDATE meeting_stakes
		SET attendance_code = $1, code_generated_at = $2, is_settled = $3, updated_at = $4
		WHERE meeting_id = $5
	`

	if _, err := q.Exec(ctx, meetingQuery,
		attendanceCode,
		m.CodeGeneratedAt,
		m.IsSettled,
		time.Now().UTC(),
		m.MeetingID,
	); err != nil {
		return fmt.Errorf("failed to update meeting: %w", err)
	}

	stakeQuery := `
		INSERT INTO stake_records (id, meeting_id, wallet_address, amount, staked_at, has_checked_in, check_in_time, is_refunded)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (meeting_id, wallet_address) DO UPDATE SET
			has_checked_in = EXCLUDED.has_checked_in,
			check_in_time  = EXCLUDED.check_in_time,
			is_refunded    = EXCLUDED.is_refunded
	`

	for i := range m.Stakes {
		r := &m.Stakes[i]
		if _, err := q.Exec(ctx, stakeQuery,
			r.ID,
			m.MeetingID,
			r.WalletAddress,
			r.Amount.String(),
			r.StakedAt,
			r.HasCheckedIn,
			r.CheckInTime,
			r.IsRefunded,
		); err != nil {
			return fmt.Errorf("failed to upsert stake record: %w", err)
		}
	}
	return nil
}

func parseAmount(s string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount in store: %q", s)
	}
	return amount, nil
}
