package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cloudcost-tools/cost-sentinel/pkg/model"
	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// SQLite implements the Store interface using an SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens or creates an SQLite ledger at the given path.
func NewSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Append(ctx context.Context, record *model.HistoryRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	alertJSON, err := json.Marshal(record.Alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	channelsJSON, err := json.Marshal(record.Channels)
	if err != nil {
		return fmt.Errorf("marshal channel results: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO alert_history (id, type, service, severity, outcome, alert, channels, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.Type, record.Service, record.Severity,
		record.Outcome, string(alertJSON), string(channelsJSON), record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}
	return nil
}

func (s *SQLite) Since(ctx context.Context, d time.Duration) ([]model.HistoryRecord, error) {
	cutoff := time.Now().UTC().Add(-d)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, outcome, alert, channels, timestamp
		 FROM alert_history WHERE timestamp >= ? ORDER BY timestamp DESC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var records []model.HistoryRecord
	for rows.Next() {
		var (
			r            model.HistoryRecord
			alertJSON    string
			channelsJSON string
			ts           time.Time
		)
		if err := rows.Scan(&r.ID, &r.Outcome, &alertJSON, &channelsJSON, &ts); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		if err := json.Unmarshal([]byte(alertJSON), &r.Alert); err != nil {
			return nil, fmt.Errorf("parse stored alert: %w", err)
		}
		if err := json.Unmarshal([]byte(channelsJSON), &r.Channels); err != nil {
			return nil, fmt.Errorf("parse stored channel results: %w", err)
		}
		r.Timestamp = ts
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLite) Stats(ctx context.Context) (*model.Stats, error) {
	now := time.Now().UTC()
	stats := &model.Stats{AlertTypes: make(map[model.AlertType]int)}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN timestamp >= ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN timestamp >= ? THEN 1 ELSE 0 END), 0)
		 FROM alert_history`,
		now.Add(-24*time.Hour), now.Add(-7*24*time.Hour),
	).Scan(&stats.TotalAlerts, &stats.Alerts24h, &stats.Alerts7d)
	if err != nil {
		return nil, fmt.Errorf("aggregate history: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT type, COUNT(*) FROM alert_history GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("aggregate by type: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			t     model.AlertType
			count int
		)
		if err := rows.Scan(&t, &count); err != nil {
			return nil, fmt.Errorf("scan type aggregate: %w", err)
		}
		stats.AlertTypes[t] = count
	}
	return stats, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
