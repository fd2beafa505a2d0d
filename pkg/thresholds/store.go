package thresholds

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cloudcost-tools/cost-sentinel/pkg/model"
	"gopkg.in/yaml.v3"
)

// MatchPolicy controls which threshold wins when several target the same
// (service, type) pair.
type MatchPolicy string

const (
	// MatchFirst picks the first threshold in file order.
	MatchFirst MatchPolicy = "first"
	// MatchStrictest picks the threshold with the lowest amount limit.
	MatchStrictest MatchPolicy = "strictest"
)

// Store holds the configured threshold list. Contents never change after
// construction, so it is safe for concurrent readers.
type Store struct {
	thresholds []model.Threshold
	policy     MatchPolicy
}

// Defaults returns the built-in threshold set used when no file is
// configured or the configured file cannot be read.
func Defaults() []model.Threshold {
	return []model.Threshold{
		{
			Service:             model.ServiceAll,
			AlertType:           model.TypeCostSpike,
			ThresholdAmount:     100.0,
			ThresholdPercentage: 50.0,
			TimeWindowHours:     24,
		},
		{
			Service:             model.ServiceAll,
			AlertType:           model.TypeBudgetExceeded,
			ThresholdAmount:     500.0,
			ThresholdPercentage: 100.0,
			TimeWindowHours:     24,
		},
		{
			Service:             model.ServiceAll,
			AlertType:           model.TypeAnomaly,
			ThresholdAmount:     50.0,
			ThresholdPercentage: 25.0,
			TimeWindowHours:     1,
		},
	}
}

// New builds a store from an explicit threshold list.
func New(ths []model.Threshold, policy MatchPolicy) *Store {
	if policy == "" {
		policy = MatchFirst
	}
	cp := make([]model.Threshold, len(ths))
	copy(cp, ths)
	return &Store{thresholds: cp, policy: policy}
}

// Load reads thresholds from a JSON array (or YAML list, by extension) at
// path. A missing or malformed file is not fatal: the built-in defaults are
// used and a warning is logged.
func Load(path string, policy MatchPolicy, logger *slog.Logger) *Store {
	if path == "" {
		return New(Defaults(), policy)
	}

	ths, err := parseFile(path)
	if err != nil {
		logger.Warn("threshold config unusable, falling back to defaults",
			"path", path, "error", err)
		return New(Defaults(), policy)
	}
	return New(ths, policy)
}

func parseFile(path string) ([]model.Threshold, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read thresholds: %w", err)
	}

	var ths []model.Threshold
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &ths); err != nil {
			return nil, fmt.Errorf("parse yaml thresholds: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &ths); err != nil {
			return nil, fmt.Errorf("parse json thresholds: %w", err)
		}
	}

	if len(ths) == 0 {
		return nil, fmt.Errorf("threshold file %s contains no thresholds", path)
	}
	return ths, nil
}

// Thresholds returns a copy of the configured list in file order.
func (s *Store) Thresholds() []model.Threshold {
	cp := make([]model.Threshold, len(s.thresholds))
	copy(cp, s.thresholds)
	return cp
}

// Len returns the number of configured thresholds.
func (s *Store) Len() int {
	return len(s.thresholds)
}

// Policy returns the configured match policy.
func (s *Store) Policy() MatchPolicy {
	return s.policy
}

// Match returns the thresholds applying to the given type and service,
// ordered so the first element is the one that should win: file order for
// MatchFirst, ascending amount limit for MatchStrictest.
func (s *Store) Match(alertType model.AlertType, service string) []model.Threshold {
	var out []model.Threshold
	for _, t := range s.thresholds {
		if t.Matches(alertType, service) {
			out = append(out, t)
		}
	}
	if s.policy == MatchStrictest {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].ThresholdAmount < out[j].ThresholdAmount
		})
	}
	return out
}
