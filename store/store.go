// Package store keeps crawl records in a SQL database so large crawls do not
// have to live in a single CSV file. It supports SQLite and PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"

	"github.com/lukemcguire/zombietrail/record"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// SQLStore is a record.Source over the crawl_records table. NewSink replaces
// the table contents with a new crawl.
type SQLStore struct {
	db     *sql.DB
	driver string
	name   string
	log    zerolog.Logger
}

// Open connects to the database and applies migrations.
func Open(ctx context.Context, driver, dsn string, log zerolog.Logger) (*SQLStore, error) {
	name := driver
	if driver == DriverSQLite {
		name = driver + ":" + dsn
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, &record.InputUnavailableError{Path: name, Err: err}
	}
	if driver == DriverSQLite {
		// One connection avoids SQLITE_BUSY between a scan and a sink.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &record.InputUnavailableError{Path: name, Err: err}
	}

	if err := RunMigrations(db, driver); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", name, err)
	}
	log.Debug().Str("store", name).Msg("migrations ran successfully")

	return &SQLStore{db: db, driver: driver, name: name, log: log}, nil
}

// Name identifies the store in logs and errors without exposing credentials.
func (s *SQLStore) Name() string {
	return s.name
}

// Close closes the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Scan visits every record in insertion order.
func (s *SQLStore) Scan(ctx context.Context, fn func(record.Record) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, origin_url, origin_status, status_description, anchor_text, destination_url
		FROM crawl_records
		ORDER BY id`)
	if err != nil {
		return &record.InputUnavailableError{Path: s.name, Err: err}
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			id          int64
			originURL   string
			status      sql.NullInt64
			description string
			anchor      sql.NullString
			destination sql.NullString
		)
		if err := rows.Scan(&id, &originURL, &status, &description, &anchor, &destination); err != nil {
			return &record.InputUnavailableError{Path: s.name, Err: err}
		}

		rec, err := decodeRow(id, originURL, status, description, anchor, destination)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return &record.InputUnavailableError{Path: s.name, Err: err}
	}
	return nil
}

func decodeRow(id int64, originURL string, status sql.NullInt64, description string, anchor, destination sql.NullString) (record.Record, error) {
	line := int(id)
	if originURL == "" {
		return nil, &record.MalformedRecordError{Line: line, Field: "origin_url", Reason: "empty value"}
	}
	if anchor.Valid != destination.Valid {
		return nil, &record.MalformedRecordError{Line: line, Field: "destination_url", Reason: "anchor text and destination must both be set or both be NULL"}
	}

	origin := record.Origin{URL: originURL, Status: int(status.Int64), Description: description}
	if !destination.Valid {
		return record.OriginOnly{Origin: origin}, nil
	}

	dest := record.StripFragment(destination.String)
	if dest == "" {
		return nil, &record.MalformedRecordError{Line: line, Field: "destination_url", Reason: "empty value"}
	}
	return record.Edge{Origin: origin, AnchorText: anchor.String, DestinationURL: dest}, nil
}

// NewSink starts a transaction that clears the previous crawl. Records
// written through the sink replace the old ones only on Commit.
func (s *SQLStore) NewSink(ctx context.Context) (*SQLSink, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin crawl transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM crawl_records`); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("clear previous crawl: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, s.insertSQL())
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	return &SQLSink{ctx: ctx, tx: tx, stmt: stmt, log: s.log}, nil
}

func (s *SQLStore) insertSQL() string {
	if s.driver == DriverPostgres {
		return `INSERT INTO crawl_records (origin_url, origin_status, status_description, anchor_text, destination_url)
			VALUES ($1, $2, $3, $4, $5)`
	}
	return `INSERT INTO crawl_records (origin_url, origin_status, status_description, anchor_text, destination_url)
		VALUES (?, ?, ?, ?, ?)`
}

// SQLSink is a record.Sink writing into one transaction.
type SQLSink struct {
	ctx     context.Context
	tx      *sql.Tx
	stmt    *sql.Stmt
	log     zerolog.Logger
	written int
}

// Write inserts one record.
func (s *SQLSink) Write(rec record.Record) error {
	origin := rec.OriginPage()

	var status sql.NullInt64
	if origin.Status != 0 {
		status = sql.NullInt64{Int64: int64(origin.Status), Valid: true}
	}
	var anchor, destination sql.NullString
	if edge, ok := rec.(record.Edge); ok {
		anchor = sql.NullString{String: record.SanitizeAnchorText(edge.AnchorText), Valid: true}
		destination = sql.NullString{String: record.StripFragment(edge.DestinationURL), Valid: true}
		if destination.String == "" {
			return fmt.Errorf("insert record for %s: %w", origin.URL, record.ErrEmptyDestination)
		}
	}

	if _, err := s.stmt.ExecContext(s.ctx, origin.URL, status, origin.Description, anchor, destination); err != nil {
		return fmt.Errorf("insert record for %s: %w", origin.URL, err)
	}
	s.written++
	return nil
}

// Commit makes the new crawl visible.
func (s *SQLSink) Commit() error {
	_ = s.stmt.Close()
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("commit crawl records: %w", err)
	}
	s.log.Debug().Int("records", s.written).Msg("crawl records committed")
	return nil
}

// Abort rolls back everything written and keeps the previous crawl.
func (s *SQLSink) Abort() error {
	_ = s.stmt.Close()
	if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback crawl records: %w", err)
	}
	return nil
}
