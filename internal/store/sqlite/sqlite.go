package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/roompool/internal/store"
)

// Schema creates the private room registry table.
const Schema = `
CREATE TABLE IF NOT EXISTS private_rooms (
	space_id   TEXT    NOT NULL PRIMARY KEY,
	number     INTEGER NOT NULL UNIQUE CHECK (number > 0),
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, nil)
}

// NewWithSetup creates a new SQLite store, applies the schema and then runs a setup function.
// Useful for tests to seed rows.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with single connection; also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// firstFreeNumberQuery yields 1 when number 1 is unused, otherwise the
// smallest a+1 with no row numbered a+1. A dense table falls through to max+1.
const firstFreeNumberQuery = `
	SELECT CASE
		WHEN NOT EXISTS (SELECT 1 FROM private_rooms WHERE number = 1) THEN 1
		ELSE (
			SELECT MIN(a.number + 1)
			FROM private_rooms a
			WHERE NOT EXISTS (
				SELECT 1 FROM private_rooms b WHERE b.number = a.number + 1
			)
		)
	END
`

// InsertIfAbsent registers spaceID under the first free number.
func (s *SQLiteStore) InsertIfAbsent(ctx context.Context, spaceID string) (*store.RoomRecord, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var number int
	if err := tx.QueryRowContext(ctx, firstFreeNumberQuery).Scan(&number); err != nil {
		return nil, false, fmt.Errorf("query first free number: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO private_rooms (space_id, number)
		VALUES (?, ?)
		ON CONFLICT (space_id) DO NOTHING
	`, spaceID, number)
	if err != nil {
		return nil, false, fmt.Errorf("insert private room: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		return nil, false, nil
	}

	rec, err := scanRoom(tx.QueryRowContext(ctx, `
		SELECT space_id, number, created_at
		FROM private_rooms
		WHERE space_id = ?
	`, spaceID))
	if err != nil {
		return nil, false, fmt.Errorf("query inserted room: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit transaction: %w", err)
	}

	return rec, true, nil
}

// FindAll lists every registered room ordered by number.
func (s *SQLiteStore) FindAll(ctx context.Context) ([]*store.RoomRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT space_id, number, created_at
		FROM private_rooms
		ORDER BY number ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query private rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*store.RoomRecord
	for rows.Next() {
		rec, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan private room: %w", err)
		}
		rooms = append(rooms, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate private rooms: %w", err)
	}

	return rooms, nil
}

// FindBySpaceID retrieves a room by space id. Returns nil, nil when absent.
func (s *SQLiteStore) FindBySpaceID(ctx context.Context, spaceID string) (*store.RoomRecord, error) {
	rec, err := scanRoom(s.db.QueryRowContext(ctx, `
		SELECT space_id, number, created_at
		FROM private_rooms
		WHERE space_id = ?
	`, spaceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query private room: %w", err)
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (*store.RoomRecord, error) {
	var rec store.RoomRecord
	if err := row.Scan(&rec.SpaceID, &rec.Number, &rec.CreatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)
