/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package dlr

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
)

// SQLConfig names the table and columns the reports live in, so the
// storage can share a database whose schema we don't control.
type SQLConfig struct {
	Table string

	FieldSMSC        string
	FieldTimestamp   string
	FieldSource      string
	FieldDestination string
	FieldService     string
	FieldURL         string
	FieldBoxID       string
	FieldMask        string
	FieldStatus      string

	// Dialect selects the "only one row" idiom: "oracle" gets
	// ROWNUM, everything else a LIMIT clause.
	Dialect string
}

func (c *SQLConfig) defaults() {
	set := func(f *string, v string) {
		if *f == "" {
			*f = v
		}
	}
	set(&c.Table, "dlr")
	set(&c.FieldSMSC, "smsc")
	set(&c.FieldTimestamp, "ts")
	set(&c.FieldSource, "source")
	set(&c.FieldDestination, "destination")
	set(&c.FieldService, "service")
	set(&c.FieldURL, "url")
	set(&c.FieldBoxID, "boxc")
	set(&c.FieldMask, "mask")
	set(&c.FieldStatus, "status")
}

// limitOne is the dialect-dependent trailer that keeps a keyed SELECT
// to a single row.
func (c *SQLConfig) limitOne() string {
	if strings.EqualFold(c.Dialect, "oracle") {
		return "AND ROWNUM < 2"
	}
	return "LIMIT 1"
}

// SQLStorage keeps delivery reports in a relational table via
// database/sql.  The driver is the caller's choice; the queries stick
// to ? placeholders and portable SQL.
type SQLStorage struct {
	db  *sql.DB
	cfg SQLConfig
	mu  sync.Mutex
}

// NewSQLStorage wraps an open database.  Closing the storage closes
// the database.
func NewSQLStorage(db *sql.DB, cfg SQLConfig) *SQLStorage {
	cfg.defaults()
	return &SQLStorage{db: db, cfg: cfg}
}

// EnsureTable creates the configured table if it doesn't exist.
func (s *SQLStorage) EnsureTable(ctx context.Context) error {
	c := &s.cfg
	q := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s TEXT, %s TEXT, %s TEXT, %s TEXT, %s TEXT, %s TEXT, %s TEXT, %s INTEGER, %s INTEGER)",
		c.Table, c.FieldSMSC, c.FieldTimestamp, c.FieldSource, c.FieldDestination,
		c.FieldService, c.FieldURL, c.FieldBoxID, c.FieldMask, c.FieldStatus)
	_, err := s.db.ExecContext(ctx, q)
	return err
}

func (s *SQLStorage) Add(ctx context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := &s.cfg
	q := fmt.Sprintf(
		"INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s, %s, %s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		c.Table, c.FieldSMSC, c.FieldTimestamp, c.FieldSource, c.FieldDestination,
		c.FieldService, c.FieldURL, c.FieldBoxID, c.FieldMask, c.FieldStatus)
	_, err := s.db.ExecContext(ctx, q,
		e.SMSC, e.Timestamp, e.Source, e.Destination,
		e.Service, e.URL, e.BoxID, e.Mask, e.Status)
	return err
}

func (s *SQLStorage) Get(ctx context.Context, smsc, ts, dst string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := &s.cfg
	q := fmt.Sprintf(
		"SELECT %s, %s, %s, %s, %s, %s FROM %s WHERE %s=? AND %s=? AND %s=? %s",
		c.FieldSource, c.FieldService, c.FieldURL, c.FieldBoxID, c.FieldMask, c.FieldStatus,
		c.Table, c.FieldSMSC, c.FieldTimestamp, c.FieldDestination, c.limitOne())

	e := &Entry{SMSC: smsc, Timestamp: ts, Destination: dst}
	err := s.db.QueryRowContext(ctx, q, smsc, ts, dst).Scan(
		&e.Source, &e.Service, &e.URL, &e.BoxID, &e.Mask, &e.Status)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *SQLStorage) Update(ctx context.Context, smsc, ts, dst string, status int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := &s.cfg
	q := fmt.Sprintf("UPDATE %s SET %s=? WHERE %s=? AND %s=? AND %s=?",
		c.Table, c.FieldStatus, c.FieldSMSC, c.FieldTimestamp, c.FieldDestination)
	res, err := s.db.ExecContext(ctx, q, status, smsc, ts, dst)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStorage) Remove(ctx context.Context, smsc, ts, dst string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := &s.cfg
	q := fmt.Sprintf("DELETE FROM %s WHERE %s=? AND %s=? AND %s=?",
		c.Table, c.FieldSMSC, c.FieldTimestamp, c.FieldDestination)
	res, err := s.db.ExecContext(ctx, q, smsc, ts, dst)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStorage) Messages(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s", s.cfg.Table)
	if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLStorage) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := fmt.Sprintf("DELETE FROM %s", s.cfg.Table)
	_, err := s.db.ExecContext(ctx, q)
	return err
}

func (s *SQLStorage) Close() error {
	return s.db.Close()
}
