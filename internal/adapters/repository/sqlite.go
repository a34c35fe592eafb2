package repository

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/okian/facecheck/internal/domain/model"
	"github.com/okian/facecheck/pkg/metrics"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS identities (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	id            TEXT NOT NULL UNIQUE,
	external_id   TEXT NOT NULL UNIQUE,
	display_name  TEXT NOT NULL,
	email         TEXT NOT NULL DEFAULT '',
	phone         TEXT NOT NULL DEFAULT '',
	organization  TEXT NOT NULL DEFAULT '',
	job_title     TEXT NOT NULL DEFAULT '',
	descriptor    BLOB NOT NULL,
	registered_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS attendance (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	id            TEXT NOT NULL UNIQUE,
	identity_id   TEXT NOT NULL,
	identity_name TEXT NOT NULL,
	ts            TEXT NOT NULL,
	day           TEXT NOT NULL,
	confidence    REAL NOT NULL,
	session_type  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attendance_day ON attendance(day);

CREATE UNIQUE INDEX IF NOT EXISTS idx_attendance_checkin
	ON attendance(identity_id, day) WHERE session_type = 'check-in';
`

// SQLiteStore persists identities and attendance in a SQLite file.
type SQLiteStore struct {
	db *sql.DB
	options
}

// NewSQLiteStore opens (or creates) the database at path. Use ":memory:" for
// a throwaway database.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serializes writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &SQLiteStore{db: db, options: defaultOptions()}
	for _, opt := range opts {
		opt(&s.options)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append implements AttendanceStore. The partial unique index on
// (identity_id, day) makes the check-in insert atomic with the day check. A
// reused record id fails with ErrDuplicateRecord.
func (s *SQLiteStore) Append(ctx context.Context, rec model.AttendanceRecord) error {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	day := model.DayKey(rec.Timestamp, s.loc)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance (id, identity_id, identity_name, ts, day, confidence, session_type)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (identity_id, day) WHERE session_type = 'check-in' DO NOTHING`,
		rec.ID, rec.IdentityID, rec.IdentityName,
		rec.Timestamp.UTC().Format(time.RFC3339Nano), day,
		rec.Confidence, string(rec.SessionType),
	)
	if err != nil {
		if s.hasRecord(ctx, rec.ID) {
			return fmt.Errorf("%s: %w", rec.ID, ErrDuplicateRecord)
		}
		return fmt.Errorf("failed to insert attendance record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to insert attendance record: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s on %s: %w", rec.IdentityID, day, ErrAlreadyCheckedIn)
	}
	return nil
}

func (s *SQLiteStore) hasRecord(ctx context.Context, id string) bool {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM attendance WHERE id = ?`, id).Scan(&one)
	return err == nil
}

// RecordsForDay implements AttendanceStore.
func (s *SQLiteStore) RecordsForDay(ctx context.Context, day time.Time) ([]model.AttendanceRecord, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, identity_id, identity_name, ts, confidence, session_type
		FROM attendance WHERE day = ? ORDER BY seq`, model.DayKey(day, s.loc))
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}
	defer rows.Close()

	var out []model.AttendanceRecord
	for rows.Next() {
		var (
			rec         model.AttendanceRecord
			ts, session string
		)
		if err := rows.Scan(&rec.ID, &rec.IdentityID, &rec.IdentityName, &ts, &rec.Confidence, &session); err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}
		if rec.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("bad timestamp for record %s: %w", rec.ID, err)
		}
		rec.SessionType = model.SessionType(session)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count implements AttendanceStore.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendance`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count attendance: %w", err)
	}
	return n, nil
}

// SaveIdentity implements IdentityStore.
func (s *SQLiteStore) SaveIdentity(ctx context.Context, id *model.Identity) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO identities (id, external_id, display_name, email, phone, organization, job_title, descriptor, registered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		id.ID, id.ExternalID, id.DisplayName, id.Email, id.Phone, id.Organization, id.JobTitle,
		encodeDescriptor(&id.Descriptor), id.RegisteredAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert identity: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", id.ExternalID, ErrDuplicateIdentity)
	}
	return nil
}

// Identities implements IdentityStore.
func (s *SQLiteStore) Identities(ctx context.Context) ([]*model.Identity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, external_id, display_name, email, phone, organization, job_title, descriptor, registered_at
		FROM identities ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query identities: %w", err)
	}
	defer rows.Close()

	var out []*model.Identity
	for rows.Next() {
		var (
			id   model.Identity
			blob []byte
			reg  string
		)
		if err := rows.Scan(&id.ID, &id.ExternalID, &id.DisplayName, &id.Email, &id.Phone,
			&id.Organization, &id.JobTitle, &blob, &reg); err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		if err := decodeDescriptor(blob, &id.Descriptor); err != nil {
			return nil, fmt.Errorf("identity %s: %w", id.ID, err)
		}
		if id.RegisteredAt, err = time.Parse(time.RFC3339Nano, reg); err != nil {
			return nil, fmt.Errorf("identity %s: bad registered_at: %w", id.ID, err)
		}
		out = append(out, &id)
	}
	return out, rows.Err()
}

const descriptorBytes = model.DescriptorSize * 4

func encodeDescriptor(d *model.Descriptor) []byte {
	buf := make([]byte, descriptorBytes)
	for i, v := range d {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeDescriptor(buf []byte, d *model.Descriptor) error {
	if len(buf) != descriptorBytes {
		return errors.New("descriptor blob has wrong length")
	}
	for i := range d {
		d[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return nil
}
