package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteClient struct {
	db *sql.DB
}

func NewSQLiteClient(path string) (*SQLiteClient, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("error connecting to SQLite: %v", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS matches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scanned_at DATETIME NOT NULL,
		source_path TEXT NOT NULL,
		offset_s INTEGER NOT NULL,
		track TEXT NOT NULL,
		UNIQUE(source_path, track)
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating matches table: %v", err)
	}

	return &SQLiteClient{db: db}, nil
}

func (c *SQLiteClient) Close() error {
	return c.db.Close()
}

func (c *SQLiteClient) SaveMatch(m Match) error {
	_, err := c.db.Exec(
		`INSERT OR IGNORE INTO matches (scanned_at, source_path, offset_s, track) VALUES (?, ?, ?, ?)`,
		m.ScannedAt, m.SourcePath, m.OffsetS, m.Track,
	)
	if err != nil {
		return fmt.Errorf("error saving match: %v", err)
	}
	return nil
}

func (c *SQLiteClient) RecentMatches(limit int) ([]Match, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := c.db.Query(
		`SELECT scanned_at, source_path, offset_s, track FROM matches ORDER BY scanned_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("error querying matches: %v", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ScannedAt, &m.SourcePath, &m.OffsetS, &m.Track); err != nil {
			return nil, fmt.Errorf("error scanning match row: %v", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}
