package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/sqdops/seedtrack/internal/domain"
	_ "modernc.org/sqlite"
)

// formatTimestamp converts time.Time to SQLite-compatible UTC ISO8601 string
// The Z suffix ensures the Go sqlite driver parses it back as UTC
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

//go:embed schema.sql
var schema string

// Store provides database access
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Enable foreign keys, WAL mode for better performance, and busy timeout for concurrency
	if _, err := db.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}

	// Create tables
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Server methods ---

// UpsertServer creates or updates a server
func (s *Store) UpsertServer(ctx context.Context, srv *domain.GameServer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO servers (name, address)
		VALUES (?, ?)
		ON CONFLICT(address) DO UPDATE SET
			name = excluded.name
	`, srv.Name, srv.Address)
	if err != nil {
		return err
	}

	// Always query for the ID (LastInsertId unreliable with ON CONFLICT)
	return s.db.QueryRowContext(ctx, "SELECT id FROM servers WHERE address = ?", srv.Address).Scan(&srv.ID)
}

// GetServers returns all servers
func (s *Store) GetServers(ctx context.Context) ([]domain.GameServer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, address, created_at FROM servers ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var servers []domain.GameServer
	for rows.Next() {
		var srv domain.GameServer
		if err := rows.Scan(&srv.ID, &srv.Name, &srv.Address, &srv.CreatedAt); err != nil {
			return nil, err
		}
		servers = append(servers, srv)
	}
	return servers, rows.Err()
}

// GetServerByID returns a server by ID
func (s *Store) GetServerByID(ctx context.Context, id int64) (*domain.GameServer, error) {
	var srv domain.GameServer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, address, created_at FROM servers WHERE id = ?
	`, id).Scan(&srv.ID, &srv.Name, &srv.Address, &srv.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.NewNotFoundError("server %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &srv, nil
}
