package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fhelabs/fhegas/internal/model"
)

// DB wraps the SQL database connection
type DB struct {
	*sql.DB
}

// User represents an account that owns cost overrides and analyses
type User struct {
	ID           string
	Username     string
	PasswordHash string
	APIKey       string
	CreatedAt    time.Time
}

// Event is one persisted observability notification
type Event struct {
	Type      string
	SubjectID string
	Detail    string
	CreatedAt time.Time
}

// Open opens a SQLite database connection
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set busy timeout to avoid "database is locked" errors under concurrent load
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	return &DB{db}, nil
}

// Migrate creates the database schema
func (db *DB) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		api_key TEXT UNIQUE NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS cost_overrides (
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		base_cost INTEGER NOT NULL,
		per_byte_cost INTEGER NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, name),
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS analyses (
		user_id TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		subject_name TEXT,
		total_fhe_ops INTEGER NOT NULL,
		estimated_gas INTEGER NOT NULL,
		suggestions TEXT NOT NULL DEFAULT '[]',
		analyzed_at TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, subject_id),
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS subject_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		analyzed_at TIMESTAMP NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_subject_log_user ON subject_log(user_id, id);

	CREATE TABLE IF NOT EXISTS analysis_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		subject_id TEXT,
		detail TEXT,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_events_user ON analysis_events(user_id, id);

	CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		expiry REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_expiry ON sessions(expiry);
	`

	_, err := db.Exec(schema)
	return err
}

// CreateUser creates a new user
func (db *DB) CreateUser(user *User) error {
	_, err := db.Exec(
		`INSERT INTO users (id, username, password_hash, api_key, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.PasswordHash, user.APIKey, user.CreatedAt,
	)
	return err
}

// GetUserByUsername retrieves a user by username
func (db *DB) GetUserByUsername(username string) (*User, error) {
	return db.getUser(`SELECT id, username, password_hash, api_key, created_at
		 FROM users WHERE username = ?`, username)
}

// GetUserByID retrieves a user by ID
func (db *DB) GetUserByID(id string) (*User, error) {
	return db.getUser(`SELECT id, username, password_hash, api_key, created_at
		 FROM users WHERE id = ?`, id)
}

// GetUserByAPIKey retrieves a user by API key
func (db *DB) GetUserByAPIKey(apiKey string) (*User, error) {
	return db.getUser(`SELECT id, username, password_hash, api_key, created_at
		 FROM users WHERE api_key = ?`, apiKey)
}

func (db *DB) getUser(query string, arg interface{}) (*User, error) {
	user := &User{}
	err := db.QueryRow(query, arg).Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.APIKey, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateUserAPIKey replaces a user's API key
func (db *DB) UpdateUserAPIKey(userID, apiKey string) error {
	_, err := db.Exec(`UPDATE users SET api_key = ? WHERE id = ?`, apiKey, userID)
	return err
}

// UpsertCostOverride stores one cost table override for a user
func (db *DB) UpsertCostOverride(userID string, cost model.OperationCost) error {
	_, err := db.Exec(`
		INSERT INTO cost_overrides (user_id, name, base_cost, per_byte_cost, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, name) DO UPDATE SET
			base_cost = excluded.base_cost,
			per_byte_cost = excluded.per_byte_cost,
			updated_at = excluded.updated_at
	`, userID, cost.Name, int64(cost.BaseCost), int64(cost.PerByteCost), time.Now())
	return err
}

// ListCostOverrides returns a user's cost overrides
func (db *DB) ListCostOverrides(userID string) ([]model.OperationCost, error) {
	rows, err := db.Query(`
		SELECT name, base_cost, per_byte_cost FROM cost_overrides
		WHERE user_id = ? ORDER BY name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overrides []model.OperationCost
	for rows.Next() {
		var c model.OperationCost
		var base, perByte int64
		if err := rows.Scan(&c.Name, &base, &perByte); err != nil {
			return nil, err
		}
		c.BaseCost = uint64(base)
		c.PerByteCost = uint64(perByte)
		overrides = append(overrides, c)
	}
	return overrides, rows.Err()
}

// SaveAnalysis stores the analysis as the current value for the subject and
// appends the subject to the analyzed-subject log. Both writes happen in
// one transaction so a failure never leaves a partially-updated subject.
func (db *DB) SaveAnalysis(userID, subjectID string, analysis model.ContractAnalysis) error {
	suggestions, err := json.Marshal(analysis.OptimizationSuggestions)
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	_, err = tx.Exec(`
		INSERT INTO analyses (user_id, subject_id, subject_name, total_fhe_ops, estimated_gas, suggestions, analyzed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, subject_id) DO UPDATE SET
			subject_name = excluded.subject_name,
			total_fhe_ops = excluded.total_fhe_ops,
			estimated_gas = excluded.estimated_gas,
			suggestions = excluded.suggestions,
			analyzed_at = excluded.analyzed_at
	`, userID, subjectID, analysis.SubjectName,
		int64(analysis.TotalFheOps), int64(analysis.EstimatedGas), string(suggestions), now)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO subject_log (user_id, subject_id, analyzed_at) VALUES (?, ?, ?)
	`, userID, subjectID, now)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// GetAnalysis returns the stored analysis for a subject. A subject that was
// never analyzed comes back as a zero-value analysis with found == false;
// absence is not an error.
func (db *DB) GetAnalysis(userID, subjectID string) (model.ContractAnalysis, bool, error) {
	var analysis model.ContractAnalysis
	var totalOps, gas int64
	var suggestions string

	err := db.QueryRow(`
		SELECT subject_name, total_fhe_ops, estimated_gas, suggestions
		FROM analyses WHERE user_id = ? AND subject_id = ?
	`, userID, subjectID).Scan(&analysis.SubjectName, &totalOps, &gas, &suggestions)
	if err == sql.ErrNoRows {
		return model.ContractAnalysis{}, false, nil
	}
	if err != nil {
		return model.ContractAnalysis{}, false, err
	}

	analysis.TotalFheOps = uint64(totalOps)
	analysis.EstimatedGas = uint64(gas)
	if err := json.Unmarshal([]byte(suggestions), &analysis.OptimizationSuggestions); err != nil {
		return model.ContractAnalysis{}, false, err
	}
	return analysis, true, nil
}

// ListSubjects returns the full analyzed-subject log for a user in
// recording order, duplicates included.
func (db *DB) ListSubjects(userID string) ([]string, error) {
	rows, err := db.Query(`
		SELECT subject_id FROM subject_log WHERE user_id = ? ORDER BY id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subjects []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		subjects = append(subjects, id)
	}
	return subjects, rows.Err()
}

// AnalysisCount returns how many analyses a user has recorded, counting
// re-analyses of the same subject.
func (db *DB) AnalysisCount(userID string) (int64, error) {
	var n int64
	err := db.QueryRow(`SELECT COUNT(*) FROM subject_log WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

// InsertEvents appends a batch of observability events
func (db *DB) InsertEvents(userID string, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO analysis_events (user_id, event_type, subject_id, detail, created_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.Exec(userID, e.Type, e.SubjectID, e.Detail, e.CreatedAt); err != nil {
			return err
		}
	}

	return tx.Commit()
}
