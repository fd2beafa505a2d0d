package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cloudcost-tools/cost-sentinel/pkg/model"
	"github.com/google/uuid"
)

// JSONFile is a Store backed by a single JSON-array file. Writes are
// serialized by a mutex and go through a temp-file rename, so concurrent
// appends never corrupt or lose records.
type JSONFile struct {
	mu      sync.Mutex
	path    string
	records []model.HistoryRecord
	now     func() time.Time
}

// NewJSONFile opens (or creates) the ledger file at path, loading any
// existing records.
func NewJSONFile(path string) (*JSONFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	s := &JSONFile{path: path, now: time.Now}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history file: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.records); err != nil {
			return nil, fmt.Errorf("parse history file: %w", err)
		}
	}
	return s, nil
}

func (s *JSONFile) Append(_ context.Context, record *model.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = s.now().UTC()
	}

	s.records = append(s.records, *record)
	if err := s.persistLocked(); err != nil {
		// Roll back the in-memory append so memory and disk stay in step.
		s.records = s.records[:len(s.records)-1]
		return err
	}
	return nil
}

func (s *JSONFile) persistLocked() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write history temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace history file: %w", err)
	}
	return nil
}

func (s *JSONFile) Since(_ context.Context, d time.Duration) ([]model.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-d)
	var out []model.HistoryRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		if !s.records[i].Timestamp.Before(cutoff) {
			out = append(out, s.records[i])
		}
	}
	return out, nil
}

func (s *JSONFile) Stats(_ context.Context) (*model.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stats := &model.Stats{
		TotalAlerts: len(s.records),
		AlertTypes:  make(map[model.AlertType]int),
	}
	for _, r := range s.records {
		stats.AlertTypes[r.Type]++
		if !r.Timestamp.Before(now.Add(-24 * time.Hour)) {
			stats.Alerts24h++
		}
		if !r.Timestamp.Before(now.Add(-7 * 24 * time.Hour)) {
			stats.Alerts7d++
		}
	}
	return stats, nil
}

func (s *JSONFile) Close() error { return nil }
