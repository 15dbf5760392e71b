package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration

	"justintune/models"
	"justintune/utils"
)

type SQLiteClient struct {
	db *sql.DB
}

func NewSQLiteClient(dataSourceName string) (*SQLiteClient, error) {
	// Extract the file path before query parameters
	dbPath := dataSourceName
	if idx := strings.Index(dataSourceName, "?"); idx != -1 {
		dbPath = dataSourceName[:idx]
	}

	dbDir := filepath.Dir(dbPath)
	if dbDir != "." && dbDir != "" {
		if err := utils.CreateFolder(dbDir); err != nil {
			return nil, fmt.Errorf("error creating database directory: %s", err)
		}
	}

	// Add busy timeout param to DSN (milliseconds)
	if !strings.Contains(dataSourceName, "_busy_timeout") {
		if strings.Contains(dataSourceName, "?") {
			dataSourceName += "&_busy_timeout=5000"
		} else {
			dataSourceName += "?_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("error connecting to SQLite: %s", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("error creating tables: %s", err)
	}

	return &SQLiteClient{db: db}, nil
}

func createTables(db *sql.DB) error {
	createPiecesTable := `
    CREATE TABLE IF NOT EXISTS pieces (
        id INTEGER PRIMARY KEY,
        name TEXT NOT NULL UNIQUE,
        composer TEXT,
        track TEXT,
        scorePath TEXT
    );
    `

	createFingerprintsTable := `
    CREATE TABLE IF NOT EXISTS fingerprints (
        hash INTEGER NOT NULL,
        pieceID INTEGER NOT NULL,
        positions TEXT NOT NULL,
        PRIMARY KEY (hash, pieceID)
    );
    `

	if _, err := db.Exec(createPiecesTable); err != nil {
		return fmt.Errorf("error creating pieces table: %s", err)
	}
	if _, err := db.Exec(createFingerprintsTable); err != nil {
		return fmt.Errorf("error creating fingerprints table: %s", err)
	}
	return nil
}

func (s *SQLiteClient) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteClient) RegisterPiece(name, composer, track, scorePath string) (uint32, error) {
	pieceID := utils.GenerateUniqueID()
	_, err := s.db.Exec(
		"INSERT INTO pieces (id, name, composer, track, scorePath) VALUES (?, ?, ?, ?, ?)",
		pieceID, name, composer, track, scorePath,
	)
	if err != nil {
		errMsg := err.Error()
		if strings.Contains(errMsg, "UNIQUE constraint") || strings.Contains(errMsg, "constraint failed") {
			return 0, fmt.Errorf("piece %q already registered: %v", name, err)
		}
		return 0, fmt.Errorf("failed to register piece: %v", err)
	}
	return pieceID, nil
}

func (s *SQLiteClient) GetPieceByName(name string) (models.Piece, bool, error) {
	row := s.db.QueryRow("SELECT id, name, composer, track, scorePath FROM pieces WHERE name = ?", name)

	var piece models.Piece
	var scorePath sql.NullString
	err := row.Scan(&piece.ID, &piece.Name, &piece.Composer, &piece.Track, &scorePath)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.Piece{}, false, nil
		}
		return models.Piece{}, false, fmt.Errorf("failed to retrieve piece: %s", err)
	}
	piece.ScorePath = scorePath.String
	return piece, true, nil
}

func (s *SQLiteClient) AllPieces() ([]models.Piece, error) {
	rows, err := s.db.Query("SELECT id, name, composer, track, scorePath FROM pieces ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("error querying pieces: %s", err)
	}
	defer rows.Close()

	var pieces []models.Piece
	for rows.Next() {
		var piece models.Piece
		var scorePath sql.NullString
		if err := rows.Scan(&piece.ID, &piece.Name, &piece.Composer, &piece.Track, &scorePath); err != nil {
			return nil, fmt.Errorf("error scanning piece: %s", err)
		}
		piece.ScorePath = scorePath.String
		pieces = append(pieces, piece)
	}
	return pieces, rows.Err()
}

func (s *SQLiteClient) TotalPieces() (int, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM pieces").Scan(&count); err != nil {
		return 0, fmt.Errorf("error counting pieces: %s", err)
	}
	return count, nil
}

func (s *SQLiteClient) StoreFingerprints(entries map[uint64][]models.Posting) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("error starting transaction: %s", err)
	}

	stmt, err := tx.Prepare("INSERT OR REPLACE INTO fingerprints (hash, pieceID, positions) VALUES (?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("error preparing statement: %s", err)
	}
	defer stmt.Close()

	for hash, postings := range entries {
		for _, posting := range postings {
			positions, err := json.Marshal(posting.Positions)
			if err != nil {
				tx.Rollback()
				return fmt.Errorf("error marshaling positions: %s", err)
			}
			if _, err := stmt.Exec(int64(hash), posting.PieceID, string(positions)); err != nil {
				tx.Rollback()
				return fmt.Errorf("error executing statement: %s", err)
			}
		}
	}

	return tx.Commit()
}

// LoadFingerprints rebuilds the postings map. Rows are read in rowid
// order so that per-hash posting order matches the build order.
func (s *SQLiteClient) LoadFingerprints() (map[uint64][]models.Posting, error) {
	rows, err := s.db.Query("SELECT hash, pieceID, positions FROM fingerprints ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("error querying fingerprints: %s", err)
	}
	defer rows.Close()

	entries := make(map[uint64][]models.Posting)
	for rows.Next() {
		var hash int64
		var pieceID uint32
		var positionsJSON string
		if err := rows.Scan(&hash, &pieceID, &positionsJSON); err != nil {
			return nil, fmt.Errorf("error scanning fingerprint: %s", err)
		}

		var positions []uint32
		if err := json.Unmarshal([]byte(positionsJSON), &positions); err != nil {
			return nil, fmt.Errorf("error unmarshaling positions: %s", err)
		}

		entries[uint64(hash)] = append(entries[uint64(hash)], models.Posting{
			PieceID:   pieceID,
			Positions: positions,
		})
	}
	return entries, rows.Err()
}

func (s *SQLiteClient) DeleteAll() error {
	if _, err := s.db.Exec("DELETE FROM fingerprints"); err != nil {
		return fmt.Errorf("error clearing fingerprints: %v", err)
	}
	if _, err := s.db.Exec("DELETE FROM pieces"); err != nil {
		return fmt.Errorf("error clearing pieces: %v", err)
	}
	return nil
}
