package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/voicebank-gateway/internal/domain"
)

// Store is a SQLite-backed audit log of conversation turns.
type Store struct {
	db *sqlx.DB
}

// New opens (or creates) the database at dbPath and initializes the schema.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS turns (
			id TEXT PRIMARY KEY,
			request_json TEXT,
			raw_output TEXT,
			intent_json TEXT,
			action TEXT,
			result_json TEXT,
			reply TEXT,
			status TEXT NOT NULL,
			model_calls INTEGER NOT NULL DEFAULT 0,
			duration_ns INTEGER,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_status ON turns(status)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_created ON turns(created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

// SaveTurn persists the audit record for one turn. An empty ID is filled in.
func (s *Store) SaveTurn(ctx context.Context, rec *domain.TurnRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `INSERT INTO turns (id, request_json, raw_output, intent_json, action, result_json, reply, status, model_calls, duration_ns, created_at)
	          VALUES (:id, :request_json, :raw_output, :intent_json, :action, :result_json, :reply, :status, :model_calls, :duration_ns, :created_at)`

	if _, err := s.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("failed to save turn: %w", err)
	}

	return nil
}

// GetTurn retrieves a single turn by ID.
func (s *Store) GetTurn(ctx context.Context, id string) (*domain.TurnRecord, error) {
	var rec domain.TurnRecord
	err := s.db.GetContext(ctx, &rec, `SELECT * FROM turns WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("turn %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get turn: %w", err)
	}
	return &rec, nil
}

// ListRecent returns the most recent turns, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]*domain.TurnRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	var recs []*domain.TurnRecord
	err := s.db.SelectContext(ctx, &recs,
		`SELECT * FROM turns ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	return recs, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
