package store

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/nmpcsim/internal/sim"
)

const (
	metadataFile = "metadata.json"
	historyFile  = "history.csv"
)

var historyHeader = []string{"time", "x", "y", "theta", "x_ref", "y_ref", "theta_ref", "v", "omega", "degraded"}

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID           string             `json:"id"`
	Curve        string             `json:"curve"`
	Optimizer    string             `json:"optimizer"`
	Timestamp    time.Time          `json:"timestamp"`
	SamplingTime float64            `json:"sampling_time"`
	Horizon      int                `json:"horizon_len"`
	SimDt        float64            `json:"sim_dt"`
	SimTime      float64            `json:"sim_time"`
	Steps        int                `json:"steps"`
	Updates      int                `json:"updates"`
	Failures     int                `json:"failures"`
	Elapsed      time.Duration      `json:"elapsed_ns"`
	Metrics      map[string]float64 `json:"metrics"`
}

// Save writes meta and h under a new run directory and returns its id.
func (s *Store) Save(meta RunMetadata, h *sim.History) (string, error) {
	runID := fmt.Sprintf("%s_%s_%s", meta.Curve, time.Now().Format("20060102-150405"), uuid.NewString()[:8])
	runDir := filepath.Join(s.baseDir, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta.ID = runID
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	meta.Steps = h.Len()

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := writeHistory(filepath.Join(runDir, historyFile), h); err != nil {
		return "", err
	}
	return runID, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func writeHistory(path string, h *sim.History) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(historyHeader); err != nil {
		return err
	}
	for i := 0; i < h.Len(); i++ {
		row := make([]string, 0, len(historyHeader))
		row = append(row, formatFloat(h.Times[i]))
		for _, v := range h.States[i] {
			row = append(row, formatFloat(v))
		}
		for _, v := range h.References[i] {
			row = append(row, formatFloat(v))
		}
		for _, v := range h.Inputs[i] {
			row = append(row, formatFloat(v))
		}
		row = append(row, strconv.FormatBool(h.Degraded[i]))
		if len(row) != len(historyHeader) {
			return fmt.Errorf("history row %d has %d fields, want %d", i, len(row), len(historyHeader))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// List returns every stored run, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// HistoryPath is where a run's CSV lives.
func (s *Store) HistoryPath(runID string) string {
	return filepath.Join(s.baseDir, runID, historyFile)
}

func (s *Store) LoadHistory(runID string) (*sim.History, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(s.HistoryPath(runID))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(historyHeader)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", historyFile, err)
	}

	h := sim.NewHistory(meta.SimDt, max(len(records)-1, 0))
	for i := 1; i < len(records); i++ {
		rec := records[i]
		vals := make([]float64, 9)
		for j := range vals {
			v, err := strconv.ParseFloat(rec[j], 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", i, historyHeader[j], err)
			}
			vals[j] = v
		}
		degraded, err := strconv.ParseBool(rec[9])
		if err != nil {
			return nil, fmt.Errorf("row %d column degraded: %w", i, err)
		}
		h.Append(vals[0], sim.State(vals[1:4]), sim.State(vals[4:7]), sim.Control(vals[7:9]), degraded)
	}
	return h, nil
}

// ExportJSON writes the metadata and full history of a run as one document.
func (s *Store) ExportJSON(path, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	h, err := s.LoadHistory(runID)
	if err != nil {
		return err
	}
	return writeJSON(path, struct {
		Meta    *RunMetadata `json:"meta"`
		History *sim.History `json:"history"`
	}{meta, h})
}
