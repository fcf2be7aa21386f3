package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"xdao.co/oeuvre/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS change_records (
	seq         INTEGER PRIMARY KEY,
	event_id    TEXT NOT NULL UNIQUE,
	kind        TEXT NOT NULL,
	entry_id    INTEGER NOT NULL,
	recorded_at TEXT NOT NULL,
	body        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS change_records_entry ON change_records(entry_id, seq);
`

// SQLiteSink stores records in a change_records table. Seq is the primary
// key, so a duplicate or replayed record is refused by the database.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path. ":memory:" is
// accepted for tests.
func OpenSQLite(path string) (*SQLiteSink, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// One connection: an in-memory database is per connection, and writes are
	// serialized by the registry anyway.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Append(rec model.ChangeRecord) error {
	body, err := Encode(rec)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO change_records (seq, event_id, kind, entry_id, recorded_at, body) VALUES (?, ?, ?, ?, ?, ?)`,
		int64(rec.Seq), rec.EventID, string(rec.Kind), int64(rec.EntryID), rec.Timestamp.UTC().Format("2006-01-02T15:04:05.000000000Z"), string(body),
	)
	return err
}

func (s *SQLiteSink) Load() ([]model.ChangeRecord, error) {
	rows, err := s.db.Query(`SELECT seq, body FROM change_records ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ChangeRecord
	for rows.Next() {
		var seq int64
		var body string
		if err := rows.Scan(&seq, &body); err != nil {
			return nil, err
		}
		rec, err := Decode([]byte(body))
		if err != nil {
			return nil, fmt.Errorf("seq %d: %w", seq, err)
		}
		if rec.Seq != uint64(seq) {
			return nil, fmt.Errorf("seq %d: body claims seq %d", seq, rec.Seq)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// History returns the records touching entry id, in order.
func (s *SQLiteSink) History(id uint64) ([]model.ChangeRecord, error) {
	rows, err := s.db.Query(`SELECT body FROM change_records WHERE entry_id = ? ORDER BY seq`, int64(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ChangeRecord
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		rec, err := Decode([]byte(body))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteSink) Close() error { return s.db.Close() }
