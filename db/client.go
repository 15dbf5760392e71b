package db

import (
	"fmt"
	"strings"

	"justintune/models"
	"justintune/utils"
)

// Client persists the fingerprint index and the piece registry.
// Stored postings must round-trip exactly: loading an index saved from
// a build yields identical identification results for any query.
type Client interface {
	Close() error

	RegisterPiece(name, composer, track, scorePath string) (uint32, error)
	GetPieceByName(name string) (models.Piece, bool, error)
	AllPieces() ([]models.Piece, error)
	TotalPieces() (int, error)

	StoreFingerprints(entries map[uint64][]models.Posting) error
	LoadFingerprints() (map[uint64][]models.Posting, error)

	DeleteAll() error
}

// NewDBClient creates a client for the configured backend. SQLite is
// the default; set DB_TYPE=mongo to use MongoDB.
func NewDBClient() (Client, error) {
	dbType := strings.ToLower(utils.GetEnv("DB_TYPE", "sqlite"))
	switch dbType {
	case "sqlite", "sqlite3":
		return NewSQLiteClient(utils.GetEnv("SQLITE_DB_PATH", "storage/index.db"))
	case "mongo", "mongodb":
		return NewMongoClient(utils.GetEnv("MONGO_URI", "mongodb://localhost:27017"))
	default:
		return nil, fmt.Errorf("unsupported DB_TYPE: %s", dbType)
	}
}
