package db

import (
	"fmt"
	"time"

	"song-scanner/utils"
)

// Match is one recognized track persisted to history.
type Match struct {
	ScannedAt  time.Time `bson:"scanned_at"`
	SourcePath string    `bson:"source_path"`
	OffsetS    int       `bson:"offset_s"`
	Track      string    `bson:"track"`
}

// Client stores and retrieves scan history.
type Client interface {
	Close() error
	SaveMatch(m Match) error
	// RecentMatches returns up to limit matches, newest first.
	RecentMatches(limit int) ([]Match, error)
}

// NewDBClient picks the backend from the DB_TYPE env var, defaulting
// to sqlite.
func NewDBClient() (Client, error) {
	dbType := utils.GetEnv("DB_TYPE", "sqlite")
	switch dbType {
	case "sqlite":
		return NewSQLiteClient(utils.GetEnv("DB_SQLITE_PATH", "scan-history.db"))
	case "mongo":
		return NewMongoClient(utils.GetEnv("DB_MONGO_URI", "mongodb://localhost:27017"))
	default:
		return nil, fmt.Errorf("unsupported DB_TYPE: %s", dbType)
	}
}
