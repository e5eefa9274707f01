// Package litestore is an embedded SQLite implementation of domain.Store for
// single-node deployments such as the standalone MCP server. It needs no external
// database and keeps everything in one file.
package litestore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/organ-waitlist-engine/internal/domain"
)

// Store implements domain.Store using SQLite.
type Store struct {
	db     *sql.DB
	dbPath string
	log    *logrus.Logger
}

// Open creates or opens the SQLite database at dbPath and ensures the schema
// exists.
func Open(dbPath string, logger *logrus.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer; one connection avoids SQLITE_BUSY between
	// our own goroutines.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.WithField("path", dbPath).Info("SQLite store opened")

	return &Store{db: db, dbPath: dbPath, log: logger}, nil
}

// New wraps an existing handle whose schema is already in place.
func New(db *sql.DB, logger *logrus.Logger) *Store {
	return &Store{db: db, log: logger}
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS recipients (
		id TEXT PRIMARY KEY,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		blood_type TEXT NOT NULL,
		organ_needed TEXT NOT NULL,
		hla_typing TEXT NOT NULL DEFAULT '',
		medical_urgency TEXT NOT NULL DEFAULT '',
		functional_status TEXT NOT NULL DEFAULT '',
		prognosis_rating TEXT NOT NULL DEFAULT '',
		waitlist_entry_date DATETIME,
		last_evaluation_date DATETIME,
		date_of_birth DATETIME,
		meld_score REAL,
		las_score REAL,
		pra_percentage REAL,
		cpra_percentage REAL,
		weight_kg REAL,
		height_cm REAL,
		comorbidity_score REAL,
		previous_transplants INTEGER NOT NULL DEFAULT 0,
		compliance_score REAL,
		priority_score REAL NOT NULL DEFAULT 0,
		priority_breakdown TEXT,
		waitlist_status TEXT NOT NULL DEFAULT 'active',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_recipients_pool
		ON recipients(organ_needed, waitlist_status, waitlist_entry_date, id);

	CREATE TABLE IF NOT EXISTS donor_organs (
		id TEXT PRIMARY KEY,
		donor_id TEXT NOT NULL DEFAULT '',
		organ_type TEXT NOT NULL,
		blood_type TEXT NOT NULL,
		hla_typing TEXT NOT NULL DEFAULT '',
		donor_age INTEGER,
		donor_weight_kg REAL,
		donor_height_cm REAL
	);

	CREATE TABLE IF NOT EXISTS weight_configs (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		medical_urgency_weight REAL NOT NULL,
		time_on_waitlist_weight REAL NOT NULL,
		organ_specific_weight REAL NOT NULL,
		evaluation_recency_weight REAL NOT NULL,
		blood_type_rarity_weight REAL NOT NULL,
		decay_rate REAL NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS matches (
		id TEXT PRIMARY KEY,
		donor_organ_id TEXT NOT NULL,
		recipient_id TEXT NOT NULL,
		recipient_name TEXT NOT NULL DEFAULT '',
		compatibility_score REAL NOT NULL,
		abo_compatible INTEGER NOT NULL,
		blood_type_exact INTEGER NOT NULL,
		hla_match_score REAL NOT NULL,
		hla_a_matches INTEGER NOT NULL DEFAULT 0,
		hla_b_matches INTEGER NOT NULL DEFAULT 0,
		hla_dr_matches INTEGER NOT NULL DEFAULT 0,
		hla_dq_matches INTEGER NOT NULL DEFAULT 0,
		hla_total_matches INTEGER NOT NULL DEFAULT 0,
		size_compatible INTEGER NOT NULL,
		rank INTEGER NOT NULL,
		virtual_crossmatch TEXT NOT NULL,
		physical_crossmatch TEXT NOT NULL,
		predicted_survival REAL NOT NULL,
		status TEXT NOT NULL,
		created_by TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_matches_donor ON matches(donor_organ_id, created_at, rank);

	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		type TEXT NOT NULL,
		severity TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		donor_organ_id TEXT NOT NULL,
		recipient_id TEXT NOT NULL,
		match_id TEXT NOT NULL REFERENCES matches(id),
		created_by TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at);
	`

	_, err := db.Exec(schema)
	return err
}

func (s *Store) Recipients() domain.RecipientRepository { return recipients{s} }
func (s *Store) DonorOrgans() domain.DonorOrganRepository { return donorOrgans{s} }
func (s *Store) WeightConfigs() domain.WeightConfigRepository { return weightConfigs{s} }
func (s *Store) Matches() domain.MatchRepository { return matches{s} }
func (s *Store) Users() domain.UserDirectory { return users{s} }
func (s *Store) Effects() domain.MatchEffectWriter { return matches{s} }

// Ping checks that the database file is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Path returns the database file path, empty for wrapped handles.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the store and releases resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}
