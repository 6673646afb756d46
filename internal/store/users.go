package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/celerix-dev/nestsync/pkg/schema"
)

// timeLayout is fixed-width so that text comparison orders timestamps correctly.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// Insert creates the row for code with no profile and empty logs.
// created_at is assigned here, once.
func (s *Store) Insert(ctx context.Context, code string) (schema.UserRecord, error) {
	rec := schema.NewUserRecord(code)
	rec.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)

	_, err := s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO app_users (code, profile, event_log, growth_records, created_at) VALUES (?, NULL, '[]', '[]', ?)`),
		code, formatTime(rec.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return schema.UserRecord{}, ErrDuplicate
		}
		return schema.UserRecord{}, fmt.Errorf("insert user: %w", err)
	}
	return rec, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Get loads the record for code.
func (s *Store) Get(ctx context.Context, code string) (schema.UserRecord, error) {
	return s.get(ctx, s.db, code, "")
}

func (s *Store) get(ctx context.Context, q queryRower, code, suffix string) (schema.UserRecord, error) {
	var (
		profile   sql.NullString
		eventLog  string
		growth    string
		createdAt string
	)
	err := q.QueryRowContext(ctx,
		s.rebind(`SELECT profile, event_log, growth_records, created_at FROM app_users WHERE code = ?`+suffix),
		code).Scan(&profile, &eventLog, &growth, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.UserRecord{}, ErrNotFound
	}
	if err != nil {
		return schema.UserRecord{}, fmt.Errorf("get user: %w", err)
	}

	rec := schema.NewUserRecord(code)
	if profile.Valid && profile.String != "" && profile.String != "null" {
		var p schema.Profile
		if err := json.Unmarshal([]byte(profile.String), &p); err != nil {
			return schema.UserRecord{}, fmt.Errorf("decode profile: %w", err)
		}
		rec.Profile = &p
	}
	if err := json.Unmarshal([]byte(eventLog), &rec.EventLog); err != nil {
		return schema.UserRecord{}, fmt.Errorf("decode event log: %w", err)
	}
	if err := json.Unmarshal([]byte(growth), &rec.GrowthRecords); err != nil {
		return schema.UserRecord{}, fmt.Errorf("decode growth records: %w", err)
	}
	if rec.EventLog == nil {
		rec.EventLog = []schema.LogEntry{}
	}
	if rec.GrowthRecords == nil {
		rec.GrowthRecords = []schema.GrowthRecord{}
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return schema.UserRecord{}, fmt.Errorf("decode created_at: %w", err)
	}
	return rec, nil
}

// Update writes only the columns present in p. Growth records are stored sorted by date.
// The event log and growth records are append-only: a partial that drops or rewrites an
// existing entry fails with a *schema.ValidationError and nothing is written.
func (s *Store) Update(ctx context.Context, code string, p schema.Partial) (schema.UserRecord, error) {
	var (
		sets []string
		args []any
	)
	if p.Profile != nil {
		data, err := json.Marshal(p.Profile)
		if err != nil {
			return schema.UserRecord{}, fmt.Errorf("encode profile: %w", err)
		}
		sets = append(sets, "profile = ?")
		args = append(args, string(data))
	}
	if p.EventLog != nil {
		data, err := json.Marshal(p.EventLog)
		if err != nil {
			return schema.UserRecord{}, fmt.Errorf("encode event log: %w", err)
		}
		sets = append(sets, "event_log = ?")
		args = append(args, string(data))
	}
	if p.GrowthRecords != nil {
		records := append([]schema.GrowthRecord{}, p.GrowthRecords...)
		schema.SortGrowthRecords(records)
		data, err := json.Marshal(records)
		if err != nil {
			return schema.UserRecord{}, fmt.Errorf("encode growth records: %w", err)
		}
		sets = append(sets, "growth_records = ?")
		args = append(args, string(data))
	}
	if len(sets) == 0 {
		return s.Get(ctx, code)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return schema.UserRecord{}, fmt.Errorf("update user: %w", err)
	}
	defer tx.Rollback()

	lock := ""
	if s.driver == DriverPostgres {
		lock = " FOR UPDATE"
	}
	cur, err := s.get(ctx, tx, code, lock)
	if err != nil {
		return schema.UserRecord{}, err
	}
	if err := schema.CheckAppendOnly(cur, p); err != nil {
		return schema.UserRecord{}, err
	}

	args = append(args, code)
	if _, err := tx.ExecContext(ctx,
		s.rebind(`UPDATE app_users SET `+strings.Join(sets, ", ")+` WHERE code = ?`),
		args...); err != nil {
		return schema.UserRecord{}, fmt.Errorf("update user: %w", err)
	}

	rec, err := s.get(ctx, tx, code, "")
	if err != nil {
		return schema.UserRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return schema.UserRecord{}, fmt.Errorf("update user: %w", err)
	}
	return rec, nil
}
